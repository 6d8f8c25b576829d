package routers

import (
	"Script2Video-server/routers/api"

	"github.com/gin-gonic/gin"
)

func InitRouter() *gin.Engine {
	r := gin.Default()
	v1 := r.Group("/v1/api")
	{
		v1.POST("/projects", api.CreateProject)
		v1.GET("/projects/:project_id", api.GetProject)
		v1.DELETE("/projects/:project_id", api.DeleteProject)
		v1.POST("/projects/:project_id/analyze", api.AnalyzeProject)
		v1.POST("/projects/:project_id/generate", api.GenerateProject)
		v1.POST("/projects/:project_id/merge", api.MergeVideos)
		v1.GET("/projects/:project_id/merge/status", api.CheckMergeStatus)
		v1.POST("/scenes/:scene_id/generate", api.GenerateScene)
		v1.GET("/scenes/:scene_id/status", api.CheckSceneStatus)

		admin := v1.Group("/admin", api.AdminAuth())
		{
			admin.GET("/keys", api.ListApiKeys)
			admin.POST("/keys", api.AddApiKey)
			admin.POST("/keys/:key_id/toggle", api.ToggleApiKey)
			admin.DELETE("/keys/:key_id", api.DeleteApiKey)
		}
	}
	r.GET("/projects/:project_id/progress/wss", api.ProjectProgressWebSocket)
	return r
}

package api

import (
	"errors"
	"net/http"

	"Script2Video-server/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// 提交单个场景的生成任务（同步返回外部任务句柄）
func GenerateScene(c *gin.Context) {
	sceneID := c.Param("scene_id")

	scene, err := models.GetSceneByIDGorm(models.GormDB, sceneID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "场景未找到"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if scene.Status != models.SceneStatusPending {
		c.JSON(http.StatusBadRequest, gin.H{"error": "场景状态为 " + scene.Status + "，无法提交生成"})
		return
	}

	taskID, err := Submitter.SubmitScene(c.Request.Context(), sceneID)
	if err != nil {
		// 提交失败已把场景置为 failed，轮询器照样要启动：
		// 失败场景的自动重试全靠它的重试策略接管
		Poller.StartScenePoller(scene.ProjectId)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// 确保项目轮询器在跑
	Poller.StartScenePoller(scene.ProjectId)

	c.JSON(http.StatusOK, gin.H{
		"jobHandle": taskID,
		"status":    models.SceneStatusGenerating,
	})
}

// 查询场景生成状态（按需单次轮询；生成中反复调用不改任何状态）
func CheckSceneStatus(c *gin.Context) {
	sceneID := c.Param("scene_id")

	scene, err := models.GetSceneByIDGorm(models.GormDB, sceneID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "场景未找到"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if scene.Status == models.SceneStatusGenerating && scene.GenTaskId != "" {
		if err := Poller.CheckScene(c.Request.Context(), sceneID); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "状态查询失败: " + err.Error()})
			return
		}
		// 查询可能推进了状态，重新读取
		scene, err = models.GetSceneByIDGorm(models.GormDB, sceneID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	resp := gin.H{"status": scene.Status}
	if scene.VideoUrl != "" {
		resp["assetUrl"] = scene.VideoUrl
	}
	if scene.ErrorMessage != "" {
		resp["error"] = scene.ErrorMessage
	}
	resp["retryCount"] = scene.RetryCount
	c.JSON(http.StatusOK, resp)
}

package api

import (
	"log"
	"net/http"
	"time"

	"Script2Video-server/models"
	"Script2Video-server/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 创建项目
func CreateProject(c *gin.Context) {
	var req struct {
		Title          string `json:"title"`
		Script         string `json:"script"`
		AspectRatio    string `json:"aspectRatio"`
		ReferenceImage string `json:"referenceImage"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Script == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少剧本内容"})
		return
	}
	if req.AspectRatio == "" {
		req.AspectRatio = "16:9"
	}

	project := models.Project{
		ID:             uuid.NewString(),
		Title:          req.Title,
		Script:         req.Script,
		Status:         models.ProjectStatusDraft,
		AspectRatio:    req.AspectRatio,
		ReferenceImage: req.ReferenceImage,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}

	if err := models.CreateProject(&project); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "创建项目失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"project": project})
}

// 获取项目详情（含场景列表与进度汇总）
func GetProject(c *gin.Context) {
	projectID := c.Param("project_id")

	project, err := models.GetProjectByIDGorm(models.GormDB, projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "项目未找到: " + err.Error()})
		return
	}

	scenes, err := models.GetScenesByProjectIDGorm(models.GormDB, projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取场景失败: " + err.Error()})
		return
	}

	completed := 0
	failed := 0
	for _, s := range scenes {
		switch s.Status {
		case models.SceneStatusCompleted:
			completed++
		case models.SceneStatusFailed:
			failed++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"project":          project,
		"scenes":           scenes,
		"scenes_completed": completed,
		"scenes_failed":    failed,
	})
}

// 分析剧本：切分场景并批量建库（同步返回场景列表）
func AnalyzeProject(c *gin.Context) {
	projectID := c.Param("project_id")

	if _, err := models.GetProjectByIDGorm(models.GormDB, projectID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "项目未找到: " + err.Error()})
		return
	}

	sceneCount, err := Analyzer.AnalyzeProject(c.Request.Context(), projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "剧本分析失败: " + err.Error()})
		return
	}

	scenes, err := models.GetScenesByProjectIDGorm(models.GormDB, projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取场景失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"scene_count": sceneCount,
		"scenes":      scenes,
	})
}

// 批量生成：把项目全部 pending 场景入队，并启动轮询器
func GenerateProject(c *gin.Context) {
	projectID := c.Param("project_id")

	project, err := models.GetProjectByIDGorm(models.GormDB, projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "项目未找到: " + err.Error()})
		return
	}

	if err := project.MarkGenerating(models.GormDB); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	scenes, err := models.GetScenesByProjectIDGorm(models.GormDB, projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取场景失败: " + err.Error()})
		return
	}

	enqueued := 0
	for _, scene := range scenes {
		if scene.Status != models.SceneStatusPending {
			continue
		}
		if err := service.EnqueueSceneGeneration(scene.ID); err != nil {
			log.Printf("场景 %d 入队失败: %v", scene.SceneNumber, err)
			continue
		}
		enqueued++
	}

	Poller.StartScenePoller(projectID)

	c.JSON(http.StatusOK, gin.H{
		"project_id":      projectID,
		"scenes_enqueued": enqueued,
		"status":          models.ProjectStatusGenerating,
	})
}

// 删除项目：先停掉轮询，再级联删除场景
func DeleteProject(c *gin.Context) {
	projectID := c.Param("project_id")

	if service.CancelProjectPoll(projectID) {
		log.Printf("Cancelled scene poll for project %s", projectID)
	}
	if service.CancelProjectPoll("merge:" + projectID) {
		log.Printf("Cancelled merge poll for project %s", projectID)
	}

	if err := models.DeleteProjectByID(projectID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除项目失败: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"deleteAt": time.Now(),
		"message":  "项目已删除",
	})
}

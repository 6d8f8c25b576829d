package api

import (
	"errors"
	"net/http"

	"Script2Video-server/models"
	"Script2Video-server/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// 发起合并。可选 sceneIds 指定显式顺序（拖拽排序），
// 校验失败同步返回结构化明细，不会部分执行。
func MergeVideos(c *gin.Context) {
	projectID := c.Param("project_id")

	var req struct {
		SceneIds []string `json:"sceneIds"`
	}
	// body 可以为空（默认按 scene_number 顺序）
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	result, err := Merger.Merge(c.Request.Context(), projectID, req.SceneIds)
	if err != nil {
		writeMergeError(c, err)
		return
	}

	// 合并已提交，启动渲染轮询（与客户端连接无关，导航走了照样推进）
	Poller.StartMergePoller(projectID)

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"renderJobHandle": result.RenderID,
		"status":          models.ProjectStatusMerging,
		"totalScenes":     result.TotalScenes,
		"scenesMerged":    result.ScenesMerged,
		"customOrder":     result.CustomOrder,
	})
}

// writeMergeError 合并失败的错误分发：校验类 400（带逐场景明细），
// 状态不允许 409，项目不存在 404，其余（key 耗尽、渲染服务、兜底不变量）500。
func writeMergeError(c *gin.Context, err error) {
	var stateErr *service.ErrProjectNotMergeable
	if errors.As(err, &stateErr) {
		c.JSON(http.StatusConflict, gin.H{
			"error":  stateErr.Error(),
			"status": stateErr.Status,
		})
		return
	}

	var sizeErr *service.ErrOrderSizeMismatch
	if errors.As(err, &sizeErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":         sizeErr.Error(),
			"expectedCount": sizeErr.Expected,
			"receivedCount": sizeErr.Received,
		})
		return
	}

	var valErr *service.ErrMergeValidation
	if errors.As(err, &valErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    valErr.Error(),
			"problems": valErr.Problems,
		})
		return
	}

	var incErr *service.ErrIncompleteProject
	if errors.As(err, &incErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":          incErr.Error(),
			"completedCount": incErr.Completed,
			"totalScenes":    incErr.Expected,
			"missingScenes":  incErr.Missing,
		})
		return
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "项目未找到"})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// 查询合并状态（非终态返回渲染进度）
func CheckMergeStatus(c *gin.Context) {
	projectID := c.Param("project_id")

	view, err := Merger.CheckStatus(c.Request.Context(), projectID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "项目未找到"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"status": view.Status}
	if view.Progress > 0 {
		resp["progress"] = view.Progress
	}
	if view.VideoURL != "" {
		resp["videoUrl"] = view.VideoURL
	}
	if view.Error != "" {
		resp["error"] = view.Error
	}
	c.JSON(http.StatusOK, resp)
}

package api

import (
	"net/http"
	"time"

	"Script2Video-server/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// progressSnapshot 推送给前端的项目进度快照
type progressSnapshot struct {
	ProjectID       string         `json:"projectId"`
	Status          string         `json:"status"`
	MergeProgress   int            `json:"mergeProgress,omitempty"`
	ScenesTotal     int            `json:"scenesTotal"`
	ScenesCompleted int            `json:"scenesCompleted"`
	ScenesFailed    int            `json:"scenesFailed"`
	Scenes          []models.Scene `json:"scenes"`
}

func snapshotProject(projectID string) (*progressSnapshot, error) {
	project, err := models.GetProjectByIDGorm(models.GormDB, projectID)
	if err != nil {
		return nil, err
	}
	scenes, err := models.GetScenesByProjectIDGorm(models.GormDB, projectID)
	if err != nil {
		return nil, err
	}
	snap := &progressSnapshot{
		ProjectID:     project.ID,
		Status:        project.Status,
		MergeProgress: project.MergeProgress,
		ScenesTotal:   len(scenes),
		Scenes:        scenes,
	}
	for _, s := range scenes {
		switch s.Status {
		case models.SceneStatusCompleted:
			snap.ScenesCompleted++
		case models.SceneStatusFailed:
			snap.ScenesFailed++
		}
	}
	return snap, nil
}

// 项目进度 WebSocket 推送。以数据库为唯一来源：后台轮询器写库，
// 这里只读库并把变化推给连接方；连接断开不影响生成进度。
func ProjectProgressWebSocket(c *gin.Context) {
	projectID := c.Param("project_id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "WebSocket升级失败"})
		return
	}
	defer conn.Close()

	snap, err := snapshotProject(projectID)
	if err != nil {
		conn.WriteJSON(map[string]interface{}{"error": "project not found: " + err.Error()})
		return
	}
	_ = conn.WriteJSON(snap)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	prevStatus := snap.Status
	prevCompleted := snap.ScenesCompleted
	prevFailed := snap.ScenesFailed
	prevProgress := snap.MergeProgress

	for range ticker.C {
		cur, err := snapshotProject(projectID)
		if err != nil {
			// 项目可能被删除，结束推送
			break
		}

		if cur.Status != prevStatus || cur.ScenesCompleted != prevCompleted ||
			cur.ScenesFailed != prevFailed || cur.MergeProgress != prevProgress {
			if err := conn.WriteJSON(cur); err != nil {
				break
			}
			prevStatus = cur.Status
			prevCompleted = cur.ScenesCompleted
			prevFailed = cur.ScenesFailed
			prevProgress = cur.MergeProgress
		}

		if cur.Status == models.ProjectStatusCompleted || cur.Status == models.ProjectStatusFailed {
			_ = conn.WriteJSON(cur)
			break
		}
	}
}

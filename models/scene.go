package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

const (
	SceneStatusPending    = "pending"
	SceneStatusGenerating = "generating"
	SceneStatusCompleted  = "completed"
	SceneStatusFailed     = "failed"

	// 单个场景生成失败后的最大重试次数
	SceneMaxRetries = 3
)

type Scene struct {
	ID          string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectId   string `json:"projectId"`
	SceneNumber int    `json:"sceneNumber"`
	TextContent string `json:"textContent"`
	// CharacterPrompt 所有场景共用的人物设定描述，保证人物一致性
	CharacterPrompt   string    `json:"characterPrompt"`
	EstimatedDuration float64   `json:"estimatedDuration"`
	Status            string    `json:"status"`
	// GenTaskId 生成服务返回的任务句柄，仅在提交成功后有值
	GenTaskId    string    `json:"genTaskId"`
	RetryCount   int       `json:"retryCount"`
	VideoUrl     string    `json:"videoUrl"`
	ErrorMessage string    `json:"errorMessage"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (Scene) TableName() string {
	return "scene"
}

// CanRetry 场景是否还能自动重试
func (s *Scene) CanRetry() bool {
	return s.Status == SceneStatusFailed && s.RetryCount < SceneMaxRetries
}

// 场景状态流转统一走下面四个函数，各自校验前置状态。

// MarkGenerating pending -> generating，记录生成任务句柄
func (s *Scene) MarkGenerating(db *gorm.DB, genTaskID string) error {
	if s.Status != SceneStatusPending {
		return fmt.Errorf("场景 %d 状态为 %s，无法进入 generating", s.SceneNumber, s.Status)
	}
	return s.update(db, map[string]interface{}{
		"status":      SceneStatusGenerating,
		"gen_task_id": genTaskID,
	})
}

// MarkCompleted generating -> completed，记录成片地址
func (s *Scene) MarkCompleted(db *gorm.DB, videoURL string) error {
	if s.Status != SceneStatusGenerating {
		return fmt.Errorf("场景 %d 状态为 %s，无法标记完成", s.SceneNumber, s.Status)
	}
	if videoURL == "" {
		return fmt.Errorf("场景 %d 完成时缺少视频地址", s.SceneNumber)
	}
	return s.update(db, map[string]interface{}{
		"status":        SceneStatusCompleted,
		"video_url":     videoURL,
		"error_message": "",
	})
}

// MarkFailed pending/generating -> failed。retry_count 只由 ResetForRetry 递增。
func (s *Scene) MarkFailed(db *gorm.DB, errMsg string) error {
	if s.Status != SceneStatusPending && s.Status != SceneStatusGenerating {
		return fmt.Errorf("场景 %d 状态为 %s，无法标记失败", s.SceneNumber, s.Status)
	}
	return s.update(db, map[string]interface{}{
		"status":        SceneStatusFailed,
		"error_message": errMsg,
	})
}

// ResetForRetry failed -> pending，retry_count+1，清空错误信息。
// 到达上限后不再允许回到 pending。
func (s *Scene) ResetForRetry(db *gorm.DB) error {
	if !s.CanRetry() {
		return fmt.Errorf("场景 %d 状态为 %s (retry=%d)，无法重试", s.SceneNumber, s.Status, s.RetryCount)
	}
	return s.update(db, map[string]interface{}{
		"status":        SceneStatusPending,
		"retry_count":   s.RetryCount + 1,
		"error_message": "",
		"gen_task_id":   "",
	})
}

func (s *Scene) update(db *gorm.DB, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	if err := db.Model(s).Updates(updates).Error; err != nil {
		return err
	}
	if v, ok := updates["status"].(string); ok {
		s.Status = v
	}
	if v, ok := updates["gen_task_id"].(string); ok {
		s.GenTaskId = v
	}
	if v, ok := updates["video_url"].(string); ok {
		s.VideoUrl = v
	}
	if v, ok := updates["retry_count"].(int); ok {
		s.RetryCount = v
	}
	if v, ok := updates["error_message"].(string); ok {
		s.ErrorMessage = v
	}
	return nil
}

func BatchCreateScenes(db *gorm.DB, scenes []Scene) error {
	if len(scenes) == 0 {
		return nil
	}
	return db.Create(&scenes).Error
}

func GetSceneByIDGorm(db *gorm.DB, sceneID string) (*Scene, error) {
	var scene Scene
	if err := db.First(&scene, "id = ?", sceneID).Error; err != nil {
		return nil, err
	}
	return &scene, nil
}

// DeleteScenesByProjectID 删除项目的全部场景（重新分析前清场用）
func DeleteScenesByProjectID(db *gorm.DB, projectID string) error {
	return db.Delete(&Scene{}, "project_id = ?", projectID).Error
}

// GetScenesByProjectIDGorm 按 scene_number 升序返回项目全部场景
func GetScenesByProjectIDGorm(db *gorm.DB, projectID string) ([]Scene, error) {
	var scenes []Scene
	if err := db.Where("project_id = ?", projectID).Order("scene_number ASC").Find(&scenes).Error; err != nil {
		return nil, err
	}
	return scenes, nil
}

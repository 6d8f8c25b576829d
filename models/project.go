package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// 项目状态常量（严格向前的状态机，回退只发生在场景层面）
const (
	ProjectStatusDraft       = "draft"        // 项目已创建，剧本未分析
	ProjectStatusAnalyzing   = "analyzing"    // 剧本分析中
	ProjectStatusScenesReady = "scenes_ready" // 分镜场景已生成，可开始生成视频
	ProjectStatusGenerating  = "generating"   // 场景视频生成中
	ProjectStatusMerging     = "merging"      // 渲染服务合并中
	ProjectStatusCompleted   = "completed"    // 成片已生成
	ProjectStatusFailed      = "failed"       // 合并失败
)

type Project struct {
	ID             string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Title          string    `json:"title"`
	Script         string    `json:"script"`
	Status         string    `json:"status"`
	AspectRatio    string    `json:"aspectRatio"`
	ReferenceImage string    `json:"referenceImage"`
	// SceneCount 在剧本分析完成时写入，之后不再变更（合并完整性校验的权威基准）
	SceneCount    int       `json:"sceneCount"`
	RenderID      string    `json:"renderId"`
	FinalVideoUrl string    `json:"finalVideoUrl"`
	MergeProgress int       `json:"mergeProgress"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (Project) TableName() string {
	return "project"
}

// 项目级状态流转统一走下面的函数，每个函数校验自己的前置状态，
// 避免各处随手写 status 导致非法流转。

func (p *Project) MarkAnalyzing(db *gorm.DB) error {
	if p.Status != ProjectStatusDraft {
		return fmt.Errorf("项目 %s 状态为 %s，无法开始分析", p.ID, p.Status)
	}
	return p.updateStatus(db, map[string]interface{}{"status": ProjectStatusAnalyzing})
}

// MarkScenesReady 写入 scene_count，此后不再变更
func (p *Project) MarkScenesReady(db *gorm.DB, sceneCount int) error {
	if p.Status != ProjectStatusAnalyzing {
		return fmt.Errorf("项目 %s 状态为 %s，无法写入分镜结果", p.ID, p.Status)
	}
	if sceneCount <= 0 {
		return fmt.Errorf("非法的场景数量: %d", sceneCount)
	}
	return p.updateStatus(db, map[string]interface{}{
		"status":      ProjectStatusScenesReady,
		"scene_count": sceneCount,
	})
}

// RevertAnalysis analyzing -> draft。剧本分析失败后的退出路径：
// MarkAnalyzing 只接受 draft，不回退的话项目会永远卡在 analyzing。
func (p *Project) RevertAnalysis(db *gorm.DB) error {
	if p.Status != ProjectStatusAnalyzing {
		return fmt.Errorf("项目 %s 状态为 %s，无法回退到草稿", p.ID, p.Status)
	}
	return p.updateStatus(db, map[string]interface{}{"status": ProjectStatusDraft})
}

func (p *Project) MarkGenerating(db *gorm.DB) error {
	// 允许从 generating 重入（重新触发批量生成）
	if p.Status != ProjectStatusScenesReady && p.Status != ProjectStatusGenerating {
		return fmt.Errorf("项目 %s 状态为 %s，无法开始生成", p.ID, p.Status)
	}
	return p.updateStatus(db, map[string]interface{}{"status": ProjectStatusGenerating})
}

// CanMerge 当前状态是否允许发起合并。允许从 failed 重入：
// 上一次合并在渲染端失败后可以换一个顺序重新提交。
// merging/completed 下的重复请求必须在提交渲染前就被这里拒绝。
func (p *Project) CanMerge() bool {
	switch p.Status {
	case ProjectStatusScenesReady, ProjectStatusGenerating, ProjectStatusFailed:
		return true
	}
	return false
}

// MarkMerging 记录渲染任务句柄
func (p *Project) MarkMerging(db *gorm.DB, renderID string) error {
	if !p.CanMerge() {
		return fmt.Errorf("项目 %s 状态为 %s，无法发起合并", p.ID, p.Status)
	}
	return p.updateStatus(db, map[string]interface{}{
		"status":         ProjectStatusMerging,
		"render_id":      renderID,
		"merge_progress": 0,
	})
}

func (p *Project) MarkCompleted(db *gorm.DB, videoURL string) error {
	if p.Status != ProjectStatusMerging {
		return fmt.Errorf("项目 %s 状态为 %s，无法标记完成", p.ID, p.Status)
	}
	return p.updateStatus(db, map[string]interface{}{
		"status":          ProjectStatusCompleted,
		"final_video_url": videoURL,
		"merge_progress":  100,
	})
}

func (p *Project) MarkFailed(db *gorm.DB) error {
	if p.Status != ProjectStatusMerging {
		return fmt.Errorf("项目 %s 状态为 %s，无法标记失败", p.ID, p.Status)
	}
	return p.updateStatus(db, map[string]interface{}{"status": ProjectStatusFailed})
}

func (p *Project) UpdateMergeProgress(db *gorm.DB, progress int) error {
	return p.updateStatus(db, map[string]interface{}{"merge_progress": progress})
}

func (p *Project) updateStatus(db *gorm.DB, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	if err := db.Model(p).Updates(updates).Error; err != nil {
		return err
	}
	if s, ok := updates["status"].(string); ok {
		p.Status = s
	}
	return nil
}

func GetProjectByIDGorm(db *gorm.DB, projectID string) (*Project, error) {
	var project Project
	if err := db.First(&project, "id = ?", projectID).Error; err != nil {
		return nil, err
	}
	return &project, nil
}

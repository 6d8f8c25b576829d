package service

import (
	"context"
	"fmt"
	"log"

	"Script2Video-server/models"

	"gorm.io/gorm"
)

// FixedClipDuration 生成服务产出的片段时长固定为 10 秒，
// 时间轴拼接不做时长协商。
const FixedClipDuration = 10.0

// MergeResult 合并提交成功后的回执
type MergeResult struct {
	RenderID     string `json:"renderId"`
	TotalScenes  int    `json:"totalScenes"`
	ScenesMerged int    `json:"scenesMerged"`
	CustomOrder  bool   `json:"customOrder"`
}

// ResolveMergeOrder 合并校验：解析片段顺序并做完整性检查。
//
// 提供 explicitOrder 时，长度必须等于 scene_count，每个 id 必须解析到一个
// completed 场景；问题场景全部收集后一次性返回，不在第一个就停。
// 未提供时取 completed 场景按 scene_number 升序。
// 无论哪条路径，最终选出的场景数必须等于 scene_count 且都有成片地址，
// 部分合并绝不允许。
func ResolveMergeOrder(project *models.Project, scenes []models.Scene, explicitOrder []string) ([]models.Scene, error) {
	total := project.SceneCount

	byID := make(map[string]*models.Scene, len(scenes))
	for i := range scenes {
		byID[scenes[i].ID] = &scenes[i]
	}

	var selected []models.Scene
	if len(explicitOrder) > 0 {
		if len(explicitOrder) != total {
			return nil, &ErrOrderSizeMismatch{Expected: total, Received: len(explicitOrder)}
		}

		var problems []SceneProblem
		seen := make(map[string]bool, len(explicitOrder))
		for _, id := range explicitOrder {
			// 重复 id 会顶掉另一个场景的名额，必须拒绝，
			// 否则 len(selected)==scene_count 不再代表覆盖了全部场景
			if seen[id] {
				problem := SceneProblem{SceneID: id, Reason: ProblemDuplicateSceneID}
				if scene, ok := byID[id]; ok {
					problem.SceneNumber = scene.SceneNumber
					problem.Status = scene.Status
				}
				problems = append(problems, problem)
				continue
			}
			seen[id] = true

			scene, ok := byID[id]
			if !ok {
				problems = append(problems, SceneProblem{SceneID: id, Reason: ProblemUnknownSceneID})
				continue
			}
			if scene.Status != models.SceneStatusCompleted {
				problems = append(problems, SceneProblem{
					SceneID:     id,
					SceneNumber: scene.SceneNumber,
					Status:      scene.Status,
					Reason:      ProblemSceneNotReady,
				})
				continue
			}
			selected = append(selected, *scene)
		}
		if len(problems) > 0 {
			return nil, &ErrMergeValidation{ProjectID: project.ID, Problems: problems}
		}
	} else {
		// 默认顺序：completed 场景按 scene_number 升序（scenes 已按此排序）
		for _, scene := range scenes {
			if scene.Status == models.SceneStatusCompleted {
				selected = append(selected, scene)
			}
		}
	}

	// 完整性：选出的场景数必须等于 scene_count
	if len(selected) != total {
		var missing []SceneProblem
		for _, scene := range scenes {
			if scene.Status != models.SceneStatusCompleted {
				missing = append(missing, SceneProblem{
					SceneNumber: scene.SceneNumber,
					Status:      scene.Status,
					Reason:      ProblemSceneNotReady,
				})
			}
		}
		return nil, &ErrIncompleteProject{
			ProjectID: project.ID,
			Expected:  total,
			Completed: len(selected),
			Missing:   missing,
		}
	}

	// 每个入选场景必须有成片地址
	var noAsset []SceneProblem
	for _, scene := range selected {
		if scene.VideoUrl == "" {
			noAsset = append(noAsset, SceneProblem{
				SceneNumber: scene.SceneNumber,
				Status:      scene.Status,
				Reason:      ProblemMissingAsset,
			})
		}
	}
	if len(noAsset) > 0 {
		return nil, &ErrIncompleteProject{
			ProjectID: project.ID,
			Expected:  total,
			Completed: total - len(noAsset),
			Missing:   noAsset,
		}
	}

	return selected, nil
}

// BuildTimeline 按入选顺序把片段铺到单轨时间轴：
// 第 i 个 clip 起点 i*FixedClipDuration，长度固定，总时长 n*FixedClipDuration。
// 提交前兜底校验 clip 数等于 expected（上游逻辑错误的最后防线）。
func BuildTimeline(scenes []models.Scene, expected int) (RenderEdit, error) {
	clips := make([]Clip, 0, len(scenes))
	for i, scene := range scenes {
		clips = append(clips, Clip{
			Asset:  ClipAsset{Type: "video", Src: scene.VideoUrl},
			Start:  float64(i) * FixedClipDuration,
			Length: FixedClipDuration,
			Fit:    "crop",
			Scale:  1,
		})
	}
	if len(clips) != expected {
		return RenderEdit{}, &ErrClipCountMismatch{Expected: expected, Built: len(clips)}
	}

	return RenderEdit{
		Timeline: Timeline{
			Background: "#000000",
			Tracks:     []Track{{Clips: clips}},
		},
		Output: RenderOutput{Format: "mp4", Resolution: "hd"},
	}, nil
}

// Merger 合并编排器：校验 -> 时间轴 -> 经轮换器提交渲染 -> 项目转 merging
type Merger struct {
	DB      *gorm.DB
	Rotator *Rotator
	Render  RenderClient
}

func NewMerger(db *gorm.DB, rotator *Rotator, render RenderClient) *Merger {
	return &Merger{DB: db, Rotator: rotator, Render: render}
}

// Merge 校验失败是同步返回的，不会发生部分执行；
// 只有全部场景验证通过才会触发渲染提交。
func (m *Merger) Merge(ctx context.Context, projectID string, explicitOrder []string) (*MergeResult, error) {
	project, err := models.GetProjectByIDGorm(m.DB, projectID)
	if err != nil {
		return nil, fmt.Errorf("project not found: %w", err)
	}
	// 状态前置检查必须在任何付费提交之前：merging 中的重复请求
	// 一旦先提交再校验，就会产生一个被丢弃句柄的孤儿渲染任务
	if !project.CanMerge() {
		return nil, &ErrProjectNotMergeable{ProjectID: project.ID, Status: project.Status}
	}
	scenes, err := models.GetScenesByProjectIDGorm(m.DB, projectID)
	if err != nil {
		return nil, fmt.Errorf("获取场景失败: %w", err)
	}

	selected, err := ResolveMergeOrder(project, scenes, explicitOrder)
	if err != nil {
		return nil, err
	}

	edit, err := BuildTimeline(selected, project.SceneCount)
	if err != nil {
		return nil, err
	}

	log.Printf("[Merger] 项目 %s: %d 个片段, 总时长 %.0f 秒", projectID, len(selected), float64(len(selected))*FixedClipDuration)

	var renderID string
	rotErr := m.Rotator.WithRotation(models.ServiceVideoRender, func(apiKey string) error {
		id, opErr := m.Render.Submit(ctx, apiKey, edit)
		if opErr != nil {
			return opErr
		}
		renderID = id
		return nil
	})
	if rotErr != nil {
		return nil, rotErr
	}

	if err := project.MarkMerging(m.DB, renderID); err != nil {
		return nil, err
	}
	log.Printf("[Merger] 项目 %s 渲染已提交: %s", projectID, renderID)

	return &MergeResult{
		RenderID:     renderID,
		TotalScenes:  project.SceneCount,
		ScenesMerged: len(selected),
		CustomOrder:  len(explicitOrder) > 0,
	}, nil
}

// MergeStatusView 合并状态查询结果
type MergeStatusView struct {
	Status   string `json:"status"`
	Progress int    `json:"progress,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CheckStatus 查询渲染任务状态并推进项目：done -> completed，failed -> failed，
// 其余状态只回报进度不改项目状态。
func (m *Merger) CheckStatus(ctx context.Context, projectID string) (*MergeStatusView, error) {
	project, err := models.GetProjectByIDGorm(m.DB, projectID)
	if err != nil {
		return nil, fmt.Errorf("project not found: %w", err)
	}

	if project.Status == models.ProjectStatusCompleted {
		return &MergeStatusView{Status: models.ProjectStatusCompleted, VideoURL: project.FinalVideoUrl}, nil
	}
	if project.Status != models.ProjectStatusMerging || project.RenderID == "" {
		return &MergeStatusView{Status: project.Status}, nil
	}

	var status *RenderStatus
	rotErr := m.Rotator.WithRotation(models.ServiceVideoRender, func(apiKey string) error {
		st, opErr := m.Render.Status(ctx, apiKey, project.RenderID)
		if opErr != nil {
			return opErr
		}
		status = st
		return nil
	})
	if rotErr != nil {
		return nil, rotErr
	}

	switch status.Status {
	case RenderStatusDone:
		if err := project.MarkCompleted(m.DB, status.URL); err != nil {
			return nil, err
		}
		return &MergeStatusView{Status: models.ProjectStatusCompleted, Progress: 100, VideoURL: status.URL}, nil
	case RenderStatusFailed:
		if err := project.MarkFailed(m.DB); err != nil {
			return nil, err
		}
		errMsg := status.Error
		if errMsg == "" {
			errMsg = "视频渲染失败"
		}
		return &MergeStatusView{Status: models.ProjectStatusFailed, Error: errMsg}, nil
	default:
		if err := project.UpdateMergeProgress(m.DB, status.Progress); err != nil {
			log.Printf("[Merger] 更新合并进度失败: %v", err)
		}
		return &MergeStatusView{Status: status.Status, Progress: status.Progress}, nil
	}
}

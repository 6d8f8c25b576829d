package models

import "testing"

// 状态流转函数在非法前置状态下必须在触库前就拒绝，
// 这里传 nil db 验证拒绝路径不会走到数据库。

func TestSceneTransitionPreconditions(t *testing.T) {
	tests := []struct {
		name string
		run  func() error
	}{
		{"非 pending 不能进入 generating", func() error {
			s := &Scene{SceneNumber: 1, Status: SceneStatusCompleted}
			return s.MarkGenerating(nil, "task-1")
		}},
		{"非 generating 不能标记完成", func() error {
			s := &Scene{SceneNumber: 1, Status: SceneStatusPending}
			return s.MarkCompleted(nil, "https://oss/video.mp4")
		}},
		{"完成时缺少视频地址", func() error {
			s := &Scene{SceneNumber: 1, Status: SceneStatusGenerating}
			return s.MarkCompleted(nil, "")
		}},
		{"completed 不能标记失败", func() error {
			s := &Scene{SceneNumber: 1, Status: SceneStatusCompleted}
			return s.MarkFailed(nil, "boom")
		}},
		{"到达重试上限不能重置", func() error {
			s := &Scene{SceneNumber: 1, Status: SceneStatusFailed, RetryCount: SceneMaxRetries}
			return s.ResetForRetry(nil)
		}},
		{"非 failed 不能重置重试", func() error {
			s := &Scene{SceneNumber: 1, Status: SceneStatusGenerating}
			return s.ResetForRetry(nil)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); err == nil {
				t.Error("expected precondition error, got nil")
			}
		})
	}
}

func TestProjectCanMerge(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{ProjectStatusScenesReady, true},
		{ProjectStatusGenerating, true},
		{ProjectStatusFailed, true}, // 渲染失败后允许重新合并
		{ProjectStatusDraft, false},
		{ProjectStatusAnalyzing, false},
		{ProjectStatusMerging, false}, // 渲染进行中的重复请求必须拒绝
		{ProjectStatusCompleted, false},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			p := &Project{ID: "p1", Status: tt.status}
			if got := p.CanMerge(); got != tt.want {
				t.Errorf("CanMerge() from %s = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestProjectTransitionPreconditions(t *testing.T) {
	tests := []struct {
		name string
		run  func() error
	}{
		{"非 draft 不能开始分析", func() error {
			p := &Project{ID: "p1", Status: ProjectStatusGenerating}
			return p.MarkAnalyzing(nil)
		}},
		{"非 analyzing 不能写入分镜结果", func() error {
			p := &Project{ID: "p1", Status: ProjectStatusDraft}
			return p.MarkScenesReady(nil, 3)
		}},
		{"场景数必须为正", func() error {
			p := &Project{ID: "p1", Status: ProjectStatusAnalyzing}
			return p.MarkScenesReady(nil, 0)
		}},
		{"draft 不能直接生成", func() error {
			p := &Project{ID: "p1", Status: ProjectStatusDraft}
			return p.MarkGenerating(nil)
		}},
		{"completed 不能再发起合并", func() error {
			p := &Project{ID: "p1", Status: ProjectStatusCompleted}
			return p.MarkMerging(nil, "render-1")
		}},
		{"merging 之外不能标记完成", func() error {
			p := &Project{ID: "p1", Status: ProjectStatusGenerating}
			return p.MarkCompleted(nil, "https://oss/final.mp4")
		}},
		{"merging 之外不能标记失败", func() error {
			p := &Project{ID: "p1", Status: ProjectStatusScenesReady}
			return p.MarkFailed(nil)
		}},
		{"非 analyzing 不能回退草稿", func() error {
			p := &Project{ID: "p1", Status: ProjectStatusScenesReady}
			return p.RevertAnalysis(nil)
		}},
		{"draft 不需要回退", func() error {
			p := &Project{ID: "p1", Status: ProjectStatusDraft}
			return p.RevertAnalysis(nil)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); err == nil {
				t.Error("expected precondition error, got nil")
			}
		})
	}
}

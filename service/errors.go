package service

import (
	"fmt"
	"strings"
)

// ErrNoKeysAvailable 数据库与环境变量都找不到可用凭证
type ErrNoKeysAvailable struct {
	Service string
}

func (e *ErrNoKeysAvailable) Error() string {
	return fmt.Sprintf("服务 %s 没有可用的 API key", e.Service)
}

// KeyAttempt 一次失败的 key 尝试，用于诊断输出
type KeyAttempt struct {
	KeyLabel string
	Err      string
}

// ErrAllKeysExhausted 所有候选 key 都因 key 类故障失败
type ErrAllKeysExhausted struct {
	Service  string
	Attempts []KeyAttempt
}

func (e *ErrAllKeysExhausted) Error() string {
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.KeyLabel, a.Err))
	}
	return fmt.Sprintf("服务 %s 的全部 %d 个 key 均失败: %s", e.Service, len(e.Attempts), strings.Join(parts, "; "))
}

// ErrProjectNotMergeable 项目当前状态不允许发起合并
// （典型场景：渲染进行中或已完成时重复提交）
type ErrProjectNotMergeable struct {
	ProjectID string
	Status    string
}

func (e *ErrProjectNotMergeable) Error() string {
	return fmt.Sprintf("项目 %s 状态为 %s，无法发起合并", e.ProjectID, e.Status)
}

// ErrOrderSizeMismatch 显式合并顺序的长度与 scene_count 不一致
type ErrOrderSizeMismatch struct {
	Expected int
	Received int
}

func (e *ErrOrderSizeMismatch) Error() string {
	return fmt.Sprintf("合并顺序数量不正确: 收到 %d 个场景, 需要 %d 个", e.Received, e.Expected)
}

// SceneProblem 合并校验中单个场景的问题
type SceneProblem struct {
	SceneID     string `json:"sceneId,omitempty"`
	SceneNumber int    `json:"sceneNumber,omitempty"`
	Status      string `json:"status,omitempty"`
	Reason      string `json:"reason"`
}

const (
	ProblemUnknownSceneID   = "unknown_scene_id"
	ProblemDuplicateSceneID = "duplicate_scene_id"
	ProblemSceneNotReady    = "scene_not_ready"
	ProblemMissingAsset     = "missing_asset"
)

// ErrMergeValidation 合并校验失败的结构化报告。
// 一次返回全部问题场景，调用方不需要多个来回逐个排查。
type ErrMergeValidation struct {
	ProjectID string
	Problems  []SceneProblem
}

func (e *ErrMergeValidation) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		if p.SceneNumber > 0 {
			parts = append(parts, fmt.Sprintf("场景 %d (%s): %s", p.SceneNumber, p.Status, p.Reason))
		} else {
			parts = append(parts, fmt.Sprintf("场景 %s: %s", p.SceneID, p.Reason))
		}
	}
	return fmt.Sprintf("项目 %s 合并校验失败: %s", e.ProjectID, strings.Join(parts, "; "))
}

// ErrIncompleteProject 完整性校验失败：完成的场景数达不到 scene_count
type ErrIncompleteProject struct {
	ProjectID string
	Expected  int
	Completed int
	Missing   []SceneProblem
}

func (e *ErrIncompleteProject) Error() string {
	parts := make([]string, 0, len(e.Missing))
	for _, p := range e.Missing {
		parts = append(parts, fmt.Sprintf("场景 %d (%s)", p.SceneNumber, p.Status))
	}
	return fmt.Sprintf("项目 %s 不完整, 无法合并: %d/%d 个场景完成, 缺少: %s",
		e.ProjectID, e.Completed, e.Expected, strings.Join(parts, ", "))
}

// ErrClipCountMismatch 提交前的兜底不变量：clip 数必须等于 scene_count。
// 正常运行不会触发，触发即内部错误。
type ErrClipCountMismatch struct {
	Expected int
	Built    int
}

func (e *ErrClipCountMismatch) Error() string {
	return fmt.Sprintf("clip 数量不一致: 构建 %d 个, 预期 %d 个", e.Built, e.Expected)
}

package service

import (
	"errors"
	"fmt"
	"testing"

	"Script2Video-server/models"
)

func mergeProject(sceneCount int) *models.Project {
	return &models.Project{ID: "proj-1", SceneCount: sceneCount}
}

func completedScene(n int) models.Scene {
	return models.Scene{
		ID:          fmt.Sprintf("scene-%d", n),
		ProjectId:   "proj-1",
		SceneNumber: n,
		Status:      models.SceneStatusCompleted,
		VideoUrl:    fmt.Sprintf("https://oss.example.com/scenes/scene-%d/video.mp4", n),
	}
}

func completedScenes(n int) []models.Scene {
	scenes := make([]models.Scene, 0, n)
	for i := 1; i <= n; i++ {
		scenes = append(scenes, completedScene(i))
	}
	return scenes
}

func TestResolveMergeOrderDefault(t *testing.T) {
	scenes := completedScenes(3)
	selected, err := ResolveMergeOrder(mergeProject(3), scenes, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(selected) != 3 {
		t.Fatalf("selected %d scenes, want 3", len(selected))
	}
	for i, s := range selected {
		if s.SceneNumber != i+1 {
			t.Errorf("position %d has scene number %d", i, s.SceneNumber)
		}
	}
}

func TestResolveMergeOrderExplicitPreserved(t *testing.T) {
	scenes := completedScenes(3)
	order := []string{"scene-3", "scene-1", "scene-2"}
	selected, err := ResolveMergeOrder(mergeProject(3), scenes, order)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := []int{selected[0].SceneNumber, selected[1].SceneNumber, selected[2].SceneNumber}
	want := []int{3, 1, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestResolveMergeOrderSizeMismatch(t *testing.T) {
	scenes := completedScenes(5)
	order := []string{"scene-1", "scene-2", "scene-3", "scene-4"}
	_, err := ResolveMergeOrder(mergeProject(5), scenes, order)

	var mismatch *ErrOrderSizeMismatch
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ErrOrderSizeMismatch, got %v", err)
	}
	if mismatch.Expected != 5 || mismatch.Received != 4 {
		t.Errorf("expected=%d received=%d, want 5/4", mismatch.Expected, mismatch.Received)
	}
}

func TestResolveMergeOrderCollectsAllProblems(t *testing.T) {
	// 一个未知 id + 一个未完成场景，问题必须一次性全部返回
	scenes := completedScenes(3)
	scenes[1].Status = models.SceneStatusGenerating
	scenes[1].VideoUrl = ""
	order := []string{"scene-1", "scene-2", "scene-404"}

	_, err := ResolveMergeOrder(mergeProject(3), scenes, order)
	var verr *ErrMergeValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected ErrMergeValidation, got %v", err)
	}
	if len(verr.Problems) != 2 {
		t.Fatalf("expected 2 problems, got %d: %+v", len(verr.Problems), verr.Problems)
	}

	byReason := make(map[string]SceneProblem)
	for _, p := range verr.Problems {
		byReason[p.Reason] = p
	}
	notReady, ok := byReason[ProblemSceneNotReady]
	if !ok || notReady.SceneNumber != 2 || notReady.Status != models.SceneStatusGenerating {
		t.Errorf("scene_not_ready problem wrong: %+v", notReady)
	}
	unknown, ok := byReason[ProblemUnknownSceneID]
	if !ok || unknown.SceneID != "scene-404" {
		t.Errorf("unknown_scene_id problem wrong: %+v", unknown)
	}
}

func TestResolveMergeOrderRejectsDuplicateIDs(t *testing.T) {
	// 3 号场景 failed 时, 用重复的 scene-1 凑数不能让合并通过
	scenes := completedScenes(3)
	scenes[2].Status = models.SceneStatusFailed
	scenes[2].VideoUrl = ""
	order := []string{"scene-1", "scene-1", "scene-2"}

	_, err := ResolveMergeOrder(mergeProject(3), scenes, order)
	var verr *ErrMergeValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected ErrMergeValidation, got %v", err)
	}

	var dup *SceneProblem
	for i := range verr.Problems {
		if verr.Problems[i].Reason == ProblemDuplicateSceneID {
			dup = &verr.Problems[i]
		}
	}
	if dup == nil {
		t.Fatalf("expected a duplicate_scene_id problem, got %+v", verr.Problems)
	}
	if dup.SceneID != "scene-1" || dup.SceneNumber != 1 {
		t.Errorf("duplicate problem wrong: %+v", dup)
	}
}

func TestResolveMergeOrderDuplicateCollectedWithOthers(t *testing.T) {
	// 重复 id 与其它问题一起收集, 一次性全部返回
	scenes := completedScenes(3)
	scenes[1].Status = models.SceneStatusGenerating
	scenes[1].VideoUrl = ""
	order := []string{"scene-1", "scene-1", "scene-2"}

	_, err := ResolveMergeOrder(mergeProject(3), scenes, order)
	var verr *ErrMergeValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected ErrMergeValidation, got %v", err)
	}
	if len(verr.Problems) != 2 {
		t.Fatalf("expected 2 problems, got %d: %+v", len(verr.Problems), verr.Problems)
	}
	reasons := map[string]bool{}
	for _, p := range verr.Problems {
		reasons[p.Reason] = true
	}
	if !reasons[ProblemDuplicateSceneID] || !reasons[ProblemSceneNotReady] {
		t.Errorf("problems = %+v, want duplicate + not-ready", verr.Problems)
	}
}

func TestResolveMergeOrderIncompleteProject(t *testing.T) {
	// 3 个场景中 2 号 failed，默认路径必须拒绝并点名缺失场景
	scenes := completedScenes(3)
	scenes[1].Status = models.SceneStatusFailed
	scenes[1].VideoUrl = ""

	_, err := ResolveMergeOrder(mergeProject(3), scenes, nil)
	var incomplete *ErrIncompleteProject
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected ErrIncompleteProject, got %v", err)
	}
	if incomplete.Expected != 3 || incomplete.Completed != 2 {
		t.Errorf("completed=%d expected=%d, want 2/3", incomplete.Completed, incomplete.Expected)
	}
	if len(incomplete.Missing) != 1 || incomplete.Missing[0].SceneNumber != 2 {
		t.Errorf("missing = %+v, want scene 2", incomplete.Missing)
	}
}

func TestResolveMergeOrderMissingAsset(t *testing.T) {
	// completed 但没有成片地址的场景同样不允许进入合并
	scenes := completedScenes(2)
	scenes[0].VideoUrl = ""

	_, err := ResolveMergeOrder(mergeProject(2), scenes, nil)
	var incomplete *ErrIncompleteProject
	if !errors.As(err, &incomplete) {
		t.Fatalf("expected ErrIncompleteProject, got %v", err)
	}
	if len(incomplete.Missing) != 1 || incomplete.Missing[0].Reason != ProblemMissingAsset {
		t.Errorf("missing = %+v, want one missing_asset problem", incomplete.Missing)
	}
}

func TestBuildTimeline(t *testing.T) {
	scenes := completedScenes(4)
	edit, err := BuildTimeline(scenes, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(edit.Timeline.Tracks) != 1 {
		t.Fatalf("expected single track, got %d", len(edit.Timeline.Tracks))
	}
	clips := edit.Timeline.Tracks[0].Clips
	if len(clips) != 4 {
		t.Fatalf("expected 4 clips, got %d", len(clips))
	}
	var total float64
	for i, clip := range clips {
		if want := float64(i) * FixedClipDuration; clip.Start != want {
			t.Errorf("clip %d start = %v, want %v", i, clip.Start, want)
		}
		if clip.Length != FixedClipDuration {
			t.Errorf("clip %d length = %v, want %v", i, clip.Length, FixedClipDuration)
		}
		if clip.Asset.Src != scenes[i].VideoUrl {
			t.Errorf("clip %d src = %s", i, clip.Asset.Src)
		}
		total += clip.Length
	}
	if total != 40 {
		t.Errorf("total duration = %v, want 40", total)
	}
	if edit.Output.Format != "mp4" || edit.Output.Resolution != "hd" {
		t.Errorf("output = %+v", edit.Output)
	}
}

func TestBuildTimelineClipCountMismatch(t *testing.T) {
	scenes := completedScenes(3)
	_, err := BuildTimeline(scenes, 4)

	var mismatch *ErrClipCountMismatch
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected ErrClipCountMismatch, got %v", err)
	}
	if mismatch.Expected != 4 || mismatch.Built != 3 {
		t.Errorf("expected=%d built=%d, want 4/3", mismatch.Expected, mismatch.Built)
	}
}

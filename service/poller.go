package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"Script2Video-server/models"

	"gorm.io/gorm"
)

// 每个活跃项目一个轮询协程（projectID -> cancelFunc）。
// 协程自身在项目到达终态时退出并注销；项目删除时由外部取消。
var pollCancelRegistry = struct {
	sync.Mutex
	m map[string]context.CancelFunc
}{
	m: make(map[string]context.CancelFunc),
}

func registerPollCancel(projectID string, cancel context.CancelFunc) bool {
	pollCancelRegistry.Lock()
	defer pollCancelRegistry.Unlock()
	if _, ok := pollCancelRegistry.m[projectID]; ok {
		return false
	}
	pollCancelRegistry.m[projectID] = cancel
	return true
}

func unregisterPollCancel(projectID string) {
	pollCancelRegistry.Lock()
	defer pollCancelRegistry.Unlock()
	delete(pollCancelRegistry.m, projectID)
}

// CancelProjectPoll 取消某项目的轮询（项目删除时调用），返回是否实际取消
func CancelProjectPoll(projectID string) bool {
	pollCancelRegistry.Lock()
	defer pollCancelRegistry.Unlock()
	if cancel, ok := pollCancelRegistry.m[projectID]; ok {
		cancel()
		delete(pollCancelRegistry.m, projectID)
		return true
	}
	return false
}

// Poller 项目级后台轮询器：场景生成轮询 + 合并渲染轮询。
// 与客户端连接解耦，页面关了生成照样推进；所有状态都在库里，
// 任意时刻中断后新的轮询器都能接着跑。
type Poller struct {
	DB       *gorm.DB
	Rotator  *Rotator
	Gen      VideoGenClient
	Assets   AssetStore
	Interval time.Duration
	// EnqueueRetry 重试策略的再提交入口（经队列回到 Submitter）
	EnqueueRetry func(sceneID string) error
	Merger       *Merger
}

func NewPoller(db *gorm.DB, rotator *Rotator, gen VideoGenClient, assets AssetStore, interval time.Duration, merger *Merger) *Poller {
	return &Poller{
		DB:       db,
		Rotator:  rotator,
		Gen:      gen,
		Assets:   assets,
		Interval: interval,
		Merger:   merger,
	}
}

// StartScenePoller 启动项目的场景轮询协程。已在跑则什么都不做。
func (p *Poller) StartScenePoller(projectID string) {
	ctx, cancel := context.WithCancel(context.Background())
	if !registerPollCancel(projectID, cancel) {
		cancel()
		return
	}
	log.Printf("[Poller] 项目 %s 场景轮询启动, 间隔 %s", projectID, p.Interval)

	go func() {
		defer unregisterPollCancel(projectID)
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Printf("[Poller] 项目 %s 轮询被取消", projectID)
				return
			case <-ticker.C:
				done, err := p.sweepScenes(ctx, projectID)
				if err != nil {
					log.Printf("[Poller] 项目 %s 轮询出错(下一轮继续): %v", projectID, err)
					continue
				}
				if done {
					return
				}
			}
		}
	}()
}

// sweepScenes 一轮扫描。返回 true 表示项目已到终态，轮询结束。
func (p *Poller) sweepScenes(ctx context.Context, projectID string) (bool, error) {
	scenes, err := models.GetScenesByProjectIDGorm(p.DB, projectID)
	if err != nil {
		return false, fmt.Errorf("获取场景失败: %w", err)
	}
	if len(scenes) == 0 {
		return false, nil
	}

	// generating 场景并发查询，互不依赖；单次查询内的 key 轮换仍是串行的
	var wg sync.WaitGroup
	for i := range scenes {
		scene := &scenes[i]
		if scene.Status != models.SceneStatusGenerating || scene.GenTaskId == "" {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.CheckScene(ctx, scene.ID); err != nil {
				log.Printf("[Poller] 场景 %d 状态查询失败: %v", scene.SceneNumber, err)
			}
		}()
	}
	wg.Wait()

	// 重试策略：failed 且未到上限的场景回到 pending 并重新入队
	refreshed, err := models.GetScenesByProjectIDGorm(p.DB, projectID)
	if err != nil {
		return false, fmt.Errorf("获取场景失败: %w", err)
	}
	for i := range refreshed {
		scene := &refreshed[i]
		if !scene.CanRetry() {
			continue
		}
		if err := scene.ResetForRetry(p.DB); err != nil {
			log.Printf("[Poller] 场景 %d 重置重试失败: %v", scene.SceneNumber, err)
			continue
		}
		log.Printf("[Poller] 场景 %d 第 %d 次重试", scene.SceneNumber, scene.RetryCount)
		if p.EnqueueRetry != nil {
			if err := p.EnqueueRetry(scene.ID); err != nil {
				log.Printf("[Poller] 场景 %d 重试入队失败: %v", scene.SceneNumber, err)
			}
		}
	}

	final, err := models.GetScenesByProjectIDGorm(p.DB, projectID)
	if err != nil {
		return false, fmt.Errorf("获取场景失败: %w", err)
	}
	allCompleted, stalled, failedNumbers := SweepOutcome(final)
	if allCompleted {
		log.Printf("[Poller] 项目 %s 全部场景完成, 轮询结束", projectID)
		return true, nil
	}
	if stalled {
		// 重试上限已到，不再静默重试，只报告一次
		log.Printf("[Poller] 项目 %s 无法继续: 场景 %v 已达重试上限, 等待用户介入", projectID, failedNumbers)
		return true, nil
	}
	return false, nil
}

// SweepOutcome 判定一轮扫描后的项目级终态：
//   - 全部 completed
//   - 没有 generating/可重试场景, 且存在到达重试上限的 failed 场景（停摆）
func SweepOutcome(scenes []models.Scene) (allCompleted bool, stalled bool, failedNumbers []int) {
	if len(scenes) == 0 {
		return false, false, nil
	}
	completed := 0
	active := 0
	for _, s := range scenes {
		switch s.Status {
		case models.SceneStatusCompleted:
			completed++
		case models.SceneStatusGenerating, models.SceneStatusPending:
			active++
		case models.SceneStatusFailed:
			if s.CanRetry() {
				active++
			} else {
				failedNumbers = append(failedNumbers, s.SceneNumber)
			}
		}
	}
	if completed == len(scenes) {
		return true, false, nil
	}
	if active == 0 && len(failedNumbers) > 0 {
		return false, true, failedNumbers
	}
	return false, false, nil
}

// SceneCheckResult 单次状态查询的结果视图（供 API 查询接口复用）
type SceneCheckResult struct {
	Status   string `json:"status"`
	VideoURL string `json:"videoUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

// genOutcome 一次状态查询解析出的落库动作；nil 表示生成中，什么都不改
type genOutcome struct {
	completed bool
	videoURL  string
	errMsg    string
}

// resolveSceneOutcome 经轮换器查询外部任务状态，成功时顺带把产物
// 物化到持久存储。不触库，场景结构体原样不动。
func (p *Poller) resolveSceneOutcome(ctx context.Context, scene *models.Scene) (*genOutcome, error) {
	var status *GenStatus
	rotErr := p.Rotator.WithRotation(models.ServiceVideoGeneration, func(apiKey string) error {
		st, opErr := p.Gen.Status(ctx, apiKey, scene.GenTaskId)
		if opErr != nil {
			return opErr
		}
		status = st
		return nil
	})
	if rotErr != nil {
		return nil, rotErr
	}

	switch status.Flag {
	case GenFlagInProgress:
		return nil, nil
	case GenFlagSuccess:
		if status.VideoURL == "" {
			return nil, fmt.Errorf("场景 %d 生成成功但没有视频地址", scene.SceneNumber)
		}
		objectName := fmt.Sprintf("scenes/%s/video.mp4", scene.ID)
		finalURL, err := p.Assets.SaveFromURL(status.VideoURL, objectName)
		if err != nil {
			return nil, fmt.Errorf("处理视频资源失败: %w", err)
		}
		return &genOutcome{completed: true, videoURL: finalURL}, nil
	case GenFlagSubmitFailed, GenFlagGenerationFailed:
		errMsg := status.ErrorMessage
		if errMsg == "" {
			errMsg = "视频生成失败"
		}
		return &genOutcome{errMsg: errMsg}, nil
	default:
		return nil, fmt.Errorf("未知的生成状态码: %d", status.Flag)
	}
}

// CheckScene 查询一个 generating 场景的外部任务状态并应用结果。
// 生成中不做任何状态变更（反复调用幂等）；成功则把产物物化到持久存储；
// 失败记录服务端错误信息。场景在两轮之间被删掉按 no-op 处理。
func (p *Poller) CheckScene(ctx context.Context, sceneID string) error {
	scene, err := models.GetSceneByIDGorm(p.DB, sceneID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	if scene.Status != models.SceneStatusGenerating || scene.GenTaskId == "" {
		return nil
	}

	outcome, err := p.resolveSceneOutcome(ctx, scene)
	if err != nil {
		return err
	}
	if outcome == nil {
		return nil
	}
	if outcome.completed {
		log.Printf("[Poller] 场景 %d 视频已落盘: %s", scene.SceneNumber, outcome.videoURL)
		return scene.MarkCompleted(p.DB, outcome.videoURL)
	}
	return scene.MarkFailed(p.DB, outcome.errMsg)
}

// StartMergePoller 启动合并渲染轮询，项目到 completed/failed 即退出。
func (p *Poller) StartMergePoller(projectID string) {
	key := "merge:" + projectID
	ctx, cancel := context.WithCancel(context.Background())
	if !registerPollCancel(key, cancel) {
		cancel()
		return
	}
	log.Printf("[Poller] 项目 %s 合并轮询启动", projectID)

	go func() {
		defer unregisterPollCancel(key)
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				view, err := p.Merger.CheckStatus(ctx, projectID)
				if err != nil {
					log.Printf("[Poller] 项目 %s 合并状态查询失败(下一轮继续): %v", projectID, err)
					continue
				}
				if view.Status == models.ProjectStatusCompleted || view.Status == models.ProjectStatusFailed {
					log.Printf("[Poller] 项目 %s 合并结束: %s", projectID, view.Status)
					return
				}
			}
		}
	}()
}

package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"Script2Video-server/config"
	"Script2Video-server/models"

	"github.com/hibiken/asynq"
)

// Processor 队列消费者：取出场景生成任务，经 Submitter 提交外部生成服务，
// 并保证所属项目的轮询器在跑。
type Processor struct {
	Submitter *Submitter
	Poller    *Poller
}

func NewProcessor(submitter *Submitter, poller *Poller) *Processor {
	return &Processor{Submitter: submitter, Poller: poller}
}

// StartProcessor 启动任务消费者
func (p *Processor) StartProcessor(concurrency int) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     config.AppConfig.Redis.Addr,
			Password: config.AppConfig.Redis.Password,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSceneGenerate, p.HandleSceneGenerate)

	log.Printf("Starting Scene Processor with concurrency %d...", concurrency)
	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatalf("could not run server: %v", err)
		}
	}()
}

// HandleSceneGenerate 单个场景的生成提交。
// 提交失败已由 Submitter 落库（场景置 failed），这里不向队列返回 err，
// 重试与否交给轮询器的重试策略判断。
func (p *Processor) HandleSceneGenerate(ctx context.Context, t *asynq.Task) error {
	var payload ScenePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	log.Printf("Processing Scene: %s", payload.SceneID)

	scene, err := models.GetSceneByIDGorm(p.Submitter.DB, payload.SceneID)
	if err != nil {
		// 场景在排队期间被删掉，按 no-op 处理
		log.Printf("场景 %s 不存在, 跳过: %v", payload.SceneID, err)
		return nil
	}

	if _, err := p.Submitter.SubmitScene(ctx, payload.SceneID); err != nil {
		log.Printf("场景 %s 提交失败(已落库): %v", payload.SceneID, err)
	}

	// 不管提交成败都确保轮询器在跑：失败的场景也要靠它走重试策略
	p.Poller.StartScenePoller(scene.ProjectId)
	return nil
}

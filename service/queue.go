package service

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"Script2Video-server/config"

	"github.com/hibiken/asynq"
)

const (
	TypeSceneGenerate = "scene:generate"
)

type ScenePayload struct {
	SceneID string `json:"scene_id"`
}

var QueueClient *asynq.Client

// InitQueue 初始化
func InitQueue() {
	QueueClient = asynq.NewClient(asynq.RedisClientOpt{
		Addr:     config.AppConfig.Redis.Addr,
		Password: config.AppConfig.Redis.Password,
	})
}

// EnqueueSceneGeneration 场景生成任务入队（批量生成与重试再提交都走这里）。
// 队列层不做重试：提交失败的场景由轮询器的重试策略控制次数。
func EnqueueSceneGeneration(sceneID string) error {
	payload, err := json.Marshal(ScenePayload{SceneID: sceneID})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(TypeSceneGenerate, payload,
		asynq.MaxRetry(0),
		asynq.Timeout(5*time.Minute),
		asynq.Retention(24*time.Hour), // 任务结果在 Redis 保留时间
	)

	info, err := QueueClient.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}

	log.Printf("[Queue] Scene Enqueued: SceneID=%s, TaskID=%s", sceneID, info.ID)
	return nil
}

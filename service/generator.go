package service

import (
	"context"
	"fmt"
	"log"

	"Script2Video-server/models"

	"gorm.io/gorm"
)

// Submitter 场景生成提交器：构建生成请求，经轮换器拿到外部任务句柄，
// 把场景推进到 generating。各场景的提交相互独立，可并发调用。
type Submitter struct {
	DB      *gorm.DB
	Rotator *Rotator
	Gen     VideoGenClient
}

func NewSubmitter(db *gorm.DB, rotator *Rotator, gen VideoGenClient) *Submitter {
	return &Submitter{DB: db, Rotator: rotator, Gen: gen}
}

// BuildPrompt 场景提示词 = 人物设定 + 场景文本
func BuildPrompt(scene *models.Scene) string {
	if scene.CharacterPrompt == "" {
		return scene.TextContent
	}
	return scene.CharacterPrompt + ". " + scene.TextContent
}

// SubmitScene 提交单个场景的生成任务。
// 前置条件 status=pending；提交失败直接置 failed（retry_count 不在这里动，
// 只由重试策略递增）。人物参考图每次现查项目，不做缓存（可能被用户替换）。
func (s *Submitter) SubmitScene(ctx context.Context, sceneID string) (string, error) {
	scene, err := models.GetSceneByIDGorm(s.DB, sceneID)
	if err != nil {
		return "", fmt.Errorf("scene not found: %w", err)
	}
	if scene.Status != models.SceneStatusPending {
		return "", fmt.Errorf("场景 %d 状态为 %s，无法提交生成", scene.SceneNumber, scene.Status)
	}

	project, err := models.GetProjectByIDGorm(s.DB, scene.ProjectId)
	if err != nil {
		return "", fmt.Errorf("project not found: %w", err)
	}

	req := GenerateRequest{
		Prompt:         BuildPrompt(scene),
		AspectRatio:    project.AspectRatio,
		ReferenceImage: project.ReferenceImage,
	}

	var taskID string
	rotErr := s.Rotator.WithRotation(models.ServiceVideoGeneration, func(apiKey string) error {
		id, opErr := s.Gen.Generate(ctx, apiKey, req)
		if opErr != nil {
			return opErr
		}
		taskID = id
		return nil
	})
	if rotErr != nil {
		log.Printf("[Submitter] 场景 %d 提交失败: %v", scene.SceneNumber, rotErr)
		if markErr := scene.MarkFailed(s.DB, rotErr.Error()); markErr != nil {
			log.Printf("[Submitter] 场景 %d 标记失败出错: %v", scene.SceneNumber, markErr)
		}
		return "", rotErr
	}

	if err := scene.MarkGenerating(s.DB, taskID); err != nil {
		return "", err
	}
	log.Printf("[Submitter] 场景 %d 已提交, 任务句柄: %s", scene.SceneNumber, taskID)
	return taskID, nil
}

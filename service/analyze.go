package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"Script2Video-server/config"
	"Script2Video-server/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const analyzeSystemPrompt = `你是一名剧本分析师兼导演。把给定剧本切分为若干视频场景:
1. 每个场景不超过 10 秒, 不要截断句子
2. 为所有场景生成一个统一的人物设定描述 (characterPrompt), 保证人物一致
3. 保留原文, 不翻译不改写
只返回 JSON: {"sceneCount": n, "scenes": [{"sceneNumber": 1, "textContent": "...", "estimatedDuration": 7.5, "characterPrompt": "..."}]}`

type analyzedScene struct {
	SceneNumber       int     `json:"sceneNumber"`
	TextContent       string  `json:"textContent"`
	EstimatedDuration float64 `json:"estimatedDuration"`
	CharacterPrompt   string  `json:"characterPrompt"`
}

type analysisResult struct {
	SceneCount int             `json:"sceneCount"`
	Scenes     []analyzedScene `json:"scenes"`
}

// Analyzer 剧本分析：调用 LLM 把剧本切成场景并批量建库。
// scene_count 在这里一次性写入项目，之后不再变更。
type Analyzer struct {
	DB      *gorm.DB
	Rotator *Rotator
	client  *http.Client
}

func NewAnalyzer(db *gorm.DB, rotator *Rotator) *Analyzer {
	return &Analyzer{DB: db, Rotator: rotator, client: &http.Client{Timeout: 120 * time.Second}}
}

// AnalyzeProject 分析项目剧本并生成 pending 场景。
// 前置条件 project.status=draft。
func (a *Analyzer) AnalyzeProject(ctx context.Context, projectID string) (int, error) {
	project, err := models.GetProjectByIDGorm(a.DB, projectID)
	if err != nil {
		return 0, fmt.Errorf("project not found: %w", err)
	}
	if project.Script == "" {
		return 0, fmt.Errorf("项目 %s 没有剧本内容", projectID)
	}
	if err := project.MarkAnalyzing(a.DB); err != nil {
		return 0, err
	}

	var result analysisResult
	rotErr := a.Rotator.WithRotation(models.ServiceScriptAnalysis, func(apiKey string) error {
		r, opErr := a.callLLM(ctx, apiKey, project.Script)
		if opErr != nil {
			return opErr
		}
		result = *r
		return nil
	})
	if rotErr != nil {
		a.revertAnalysis(project)
		return 0, rotErr
	}
	if len(result.Scenes) == 0 {
		a.revertAnalysis(project)
		return 0, fmt.Errorf("剧本分析没有返回任何场景")
	}

	now := time.Now()
	scenes := make([]models.Scene, 0, len(result.Scenes))
	for i, sc := range result.Scenes {
		num := sc.SceneNumber
		if num == 0 {
			num = i + 1
		}
		scenes = append(scenes, models.Scene{
			ID:                uuid.NewString(),
			ProjectId:         projectID,
			SceneNumber:       num,
			TextContent:       sc.TextContent,
			CharacterPrompt:   sc.CharacterPrompt,
			EstimatedDuration: sc.EstimatedDuration,
			Status:            models.SceneStatusPending,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}
	if err := models.BatchCreateScenes(a.DB, scenes); err != nil {
		a.revertAnalysis(project)
		return 0, fmt.Errorf("批量创建场景失败: %w", err)
	}
	if err := project.MarkScenesReady(a.DB, len(scenes)); err != nil {
		a.revertAnalysis(project)
		return 0, err
	}

	log.Printf("[Analyzer] 项目 %s 分析完成, 共 %d 个场景", projectID, len(scenes))
	return len(scenes), nil
}

// revertAnalysis 分析中途失败时把项目退回 draft 并清掉本轮可能残留的场景，
// 保证用户可以直接重新发起分析。
func (a *Analyzer) revertAnalysis(project *models.Project) {
	if err := models.DeleteScenesByProjectID(a.DB, project.ID); err != nil {
		log.Printf("[Analyzer] 清理项目 %s 场景失败: %v", project.ID, err)
	}
	if err := project.RevertAnalysis(a.DB); err != nil {
		log.Printf("[Analyzer] 项目 %s 回退 draft 失败: %v", project.ID, err)
	}
}

// callLLM chat completions 兼容接口, 要求 JSON 输出
func (a *Analyzer) callLLM(ctx context.Context, apiKey, script string) (*analysisResult, error) {
	cfg := config.AppConfig.Providers
	body := map[string]interface{}{
		"model": cfg.ScriptAnalysisModel,
		"messages": []map[string]string{
			{"role": "system", "content": analyzeSystemPrompt},
			{"role": "user", "content": script},
		},
		"temperature":     0.7,
		"response_format": map[string]string{"type": "json_object"},
	}
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.ScriptAnalysisAPI+"/v1/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("分析服务返回 %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var completion struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(bodyBytes, &completion); err != nil {
		return nil, fmt.Errorf("解析分析响应失败: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("分析服务没有返回内容")
	}

	var result analysisResult
	if err := json.Unmarshal([]byte(completion.Choices[0].Message.Content), &result); err != nil {
		return nil, fmt.Errorf("解析分镜 JSON 失败: %w", err)
	}
	return &result, nil
}

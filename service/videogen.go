package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// 视频生成服务的终态码（接口返回的 successFlag）
const (
	GenFlagInProgress       = 0 // 生成中
	GenFlagSuccess          = 1 // 成功
	GenFlagSubmitFailed     = 2 // 任务创建失败
	GenFlagGenerationFailed = 3 // 生成失败
)

type GenerateRequest struct {
	Prompt         string
	AspectRatio    string // "16:9" / "9:16"
	ReferenceImage string // 可选的人物参考图
}

type GenStatus struct {
	Flag         int
	VideoURL     string
	ErrorMessage string
}

// VideoGenClient 视频生成服务客户端。接口化便于轮询/提交逻辑单测。
type VideoGenClient interface {
	Generate(ctx context.Context, apiKey string, req GenerateRequest) (string, error)
	Status(ctx context.Context, apiKey string, taskID string) (*GenStatus, error)
}

// soraGenClient Sora2API 兼容实现
type soraGenClient struct {
	baseURL string
	client  *http.Client
}

func NewVideoGenClient(baseURL string) VideoGenClient {
	return &soraGenClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// soraEnvelope 接口统一外层：{code, msg, data}
type soraEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (c *soraGenClient) Generate(ctx context.Context, apiKey string, req GenerateRequest) (string, error) {
	aspect := "landscape"
	if req.AspectRatio == "9:16" {
		aspect = "portrait"
	}
	body := map[string]interface{}{
		"prompt":      req.Prompt,
		"aspectRatio": aspect,
		"quality":     "hd",
	}
	if req.ReferenceImage != "" {
		body["imageUrls"] = []string{req.ReferenceImage}
	}

	data, err := c.post(ctx, apiKey, c.baseURL+"/api/v1/generate", body)
	if err != nil {
		return "", err
	}

	var result struct {
		TaskId string `json:"taskId"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("解析生成响应失败: %w", err)
	}
	if result.TaskId == "" {
		return "", fmt.Errorf("生成服务未返回 taskId")
	}
	return result.TaskId, nil
}

func (c *soraGenClient) Status(ctx context.Context, apiKey string, taskID string) (*GenStatus, error) {
	url := fmt.Sprintf("%s/api/v1/record-info?taskId=%s", c.baseURL, taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	data, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var result struct {
		SuccessFlag int `json:"successFlag"`
		Response    struct {
			VideoUrl string `json:"videoUrl"`
		} `json:"response"`
		ErrorMessage string `json:"errorMessage"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("解析状态响应失败: %w", err)
	}
	return &GenStatus{
		Flag:         result.SuccessFlag,
		VideoURL:     result.Response.VideoUrl,
		ErrorMessage: result.ErrorMessage,
	}, nil
}

func (c *soraGenClient) post(ctx context.Context, apiKey, url string, body interface{}) (json.RawMessage, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	return c.do(req)
}

// do 发送请求并拆开 {code, msg, data} 外层。
// 非 200 的响应体原样带进错误文案，供轮换器做 key 故障判定。
func (c *soraGenClient) do(req *http.Request) (json.RawMessage, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("生成服务返回 %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var envelope soraEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	if envelope.Code != 200 {
		return nil, fmt.Errorf("生成服务错误 (code=%d): %s", envelope.Code, envelope.Msg)
	}
	return envelope.Data, nil
}

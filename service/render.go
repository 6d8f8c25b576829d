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

// 渲染服务的状态词表
const (
	RenderStatusQueued    = "queued"
	RenderStatusFetching  = "fetching"
	RenderStatusRendering = "rendering"
	RenderStatusSaving    = "saving"
	RenderStatusDone      = "done"
	RenderStatusFailed    = "failed"
)

// 时间轴结构（Shotstack 兼容的 edit payload）

type ClipAsset struct {
	Type string `json:"type"`
	Src  string `json:"src"`
}

type Clip struct {
	Asset  ClipAsset `json:"asset"`
	Start  float64   `json:"start"`
	Length float64   `json:"length"`
	Fit    string    `json:"fit"`
	Scale  float64   `json:"scale"`
}

type Track struct {
	Clips []Clip `json:"clips"`
}

type Timeline struct {
	Background string  `json:"background"`
	Tracks     []Track `json:"tracks"`
}

type RenderOutput struct {
	Format     string `json:"format"`
	Resolution string `json:"resolution"`
}

type RenderEdit struct {
	Timeline Timeline     `json:"timeline"`
	Output   RenderOutput `json:"output"`
}

type RenderStatus struct {
	Status   string
	Progress int
	URL      string
	Error    string
}

// RenderClient 视频渲染/合并服务客户端
type RenderClient interface {
	Submit(ctx context.Context, apiKey string, edit RenderEdit) (string, error)
	Status(ctx context.Context, apiKey string, renderID string) (*RenderStatus, error)
}

type shotstackClient struct {
	baseURL string
	client  *http.Client
}

func NewRenderClient(baseURL string) RenderClient {
	return &shotstackClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *shotstackClient) Submit(ctx context.Context, apiKey string, edit RenderEdit) (string, error) {
	jsonBody, err := json.Marshal(edit)
	if err != nil {
		return "", fmt.Errorf("marshal edit failed: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/render", bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)

	bodyBytes, err := c.do(req)
	if err != nil {
		return "", err
	}

	var result struct {
		Response struct {
			Id string `json:"id"`
		} `json:"response"`
	}
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return "", fmt.Errorf("解析渲染响应失败: %w", err)
	}
	if result.Response.Id == "" {
		return "", fmt.Errorf("渲染服务未返回任务 id")
	}
	return result.Response.Id, nil
}

func (c *shotstackClient) Status(ctx context.Context, apiKey string, renderID string) (*RenderStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/render/"+renderID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", apiKey)

	bodyBytes, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var result struct {
		Response struct {
			Status   string  `json:"status"`
			Progress float64 `json:"progress"`
			Url      string  `json:"url"`
			Error    string  `json:"error"`
		} `json:"response"`
	}
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return nil, fmt.Errorf("解析渲染状态失败: %w", err)
	}
	return &RenderStatus{
		Status:   result.Response.Status,
		Progress: int(result.Response.Progress),
		URL:      result.Response.Url,
		Error:    result.Response.Error,
	}, nil
}

func (c *shotstackClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("渲染服务返回 %d: %s", resp.StatusCode, string(bodyBytes))
	}
	return bodyBytes, nil
}

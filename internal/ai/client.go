package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Anumulaashok/resume-builder-backend/internal/config"
	"github.com/Anumulaashok/resume-builder-backend/internal/metrics"
)

// ErrUpstream 表示 AI 服务调用失败：无响应、超时或返回非 2xx。
var ErrUpstream = errors.New("ai service request failed")

// ErrNotConfigured 表示缺少 AI 服务地址或密钥。
var ErrNotConfigured = errors.New("ai service configuration is incomplete")

// Client 调用外部 LLM 接口，根据提示词生成简历摘要。
type Client struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

// NewClient 根据配置构造客户端。
func NewClient(cfg config.AIConfig) (*Client, error) {
	url := strings.TrimSpace(cfg.URL)
	key := strings.TrimSpace(cfg.APIKey)
	if url == "" || key == "" {
		return nil, ErrNotConfigured
	}
	return &Client{
		url:        url,
		apiKey:     key,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type analyzeRequest struct {
	Prompt string `json:"prompt"`
}

// AnalyzePrompt 发送提示词并返回摘要文本。
func (c *Client) AnalyzePrompt(ctx context.Context, prompt string) (string, error) {
	summary, err := c.analyze(ctx, prompt)
	if err != nil {
		metrics.ObserveAIRequest("error")
		return "", err
	}
	metrics.ObserveAIRequest("ok")
	return summary, nil
}

func (c *Client) analyze(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(analyzeRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("encode ai request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build ai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		return "", fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}
	return extractSummary(data), nil
}

// extractSummary 优先取常见的文本字段，否则把原始响应作为摘要保存。
func extractSummary(data []byte) string {
	trimmed := bytes.TrimSpace(data)

	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		return strings.TrimSpace(text)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err == nil {
		for _, key := range []string{"summary", "text", "response", "content"} {
			raw, ok := fields[key]
			if !ok {
				continue
			}
			if err := json.Unmarshal(raw, &text); err == nil && strings.TrimSpace(text) != "" {
				return strings.TrimSpace(text)
			}
		}
	}
	return string(trimmed)
}

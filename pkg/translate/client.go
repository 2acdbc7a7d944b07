// Package translate 提供了消息翻译服务的 HTTP 客户端。
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"layla-insight-go/internal/config"
	"net/http"
)

// Client defines the interface for a translation client.
type Client interface {
	// Translate 将文本从 source 语言翻译到 target 语言。
	// source 传 "auto" 时由服务端自动检测。
	Translate(ctx context.Context, text, source, target string) (string, error)
}

type httpClient struct {
	cfg    config.TranslateConfig
	client *http.Client
}

// NewClient 创建一个新的翻译客户端。
func NewClient(cfg config.TranslateConfig) Client {
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{},
	}
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
}

func (c *httpClient) Translate(ctx context.Context, text, source, target string) (string, error) {
	if text == "" {
		return "", nil
	}
	if source == "" {
		source = "auto"
	}
	if target == "" {
		target = c.cfg.Target
	}

	reqBody := translateRequest{
		Q:      text,
		Source: source,
		Target: target,
		Format: "text",
		APIKey: c.cfg.APIKey,
	}
	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal translate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/translate", bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create translate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call translate api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("translate api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var result translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode translate response: %w", err)
	}
	return result.TranslatedText, nil
}

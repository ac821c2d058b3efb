// Package tts 提供了一个与文本转语音服务交互的客户端。
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mentor-go/internal/config"
)

// Client 是 TTS 服务的客户端。
type Client struct {
	apiKey     string
	baseURL    string
	voiceID    string
	modelID    string
	httpClient *http.Client
}

// NewClient 创建一个新的 TTS 客户端实例。
func NewClient(cfg config.TTSConfig) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		voiceID: cfg.VoiceID,
		modelID: cfg.ModelID,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type synthesizeRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id,omitempty"`
}

// Synthesize 把文本合成为 MP3 音频字节流。
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	reqBody, err := json.Marshal(synthesizeRequest{
		Text:    text,
		ModelID: c.modelID,
	})
	if err != nil {
		return nil, fmt.Errorf("序列化 TTS 请求失败: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", c.baseURL, c.voiceID)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("创建 TTS 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 TTS 服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("TTS 服务返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取 TTS 响应失败: %w", err)
	}
	return audio, nil
}

// Package chat 封装对 OpenAI 兼容推理服务的调用，只暴露流式增量与一次性补全两种形态。
package chat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"sage/internal/config"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Client struct {
	baseURL string
	apiKey  string
	model   string
	httpc   *http.Client
}

func NewClient(cfg config.ChatConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		// 流式响应不能设置整体超时，依赖 ctx 取消。
		httpc: &http.Client{},
	}
}

func (c *Client) Model() string { return c.model }

// Stream 发起流式补全，每个增量调用一次 onDelta；onDelta 返回错误时中止读取。
func (c *Client) Stream(ctx context.Context, messages []Message, onDelta func(delta string) error) error {
	resp, err := c.post(ctx, messages, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			if payload == "[DONE]" {
				return nil
			}
			continue
		}
		delta := gjson.Get(payload, "choices.0.delta.content")
		if !delta.Exists() || delta.String() == "" {
			continue
		}
		if err := onDelta(delta.String()); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("读取对话流失败: %w", err)
	}
	return nil
}

// Complete 是一次性补全，用于模型连通性诊断等不需要流式的场景。
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.post(ctx, messages, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return "", fmt.Errorf("读取对话响应失败: %w", err)
	}
	content := gjson.GetBytes(body, "choices.0.message.content")
	if !content.Exists() {
		return "", errors.New("对话响应缺少 choices.0.message.content")
	}
	return content.String(), nil
}

// TestConnection 对后端做一次最小补全探活。
func (c *Client) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	_, err := c.Complete(ctx, []Message{{Role: "user", Content: "ping"}})
	return err
}

func (c *Client) post(ctx context.Context, messages []Message, stream bool) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, errors.New("未配置对话服务地址")
	}

	body := "{}"
	body, _ = sjson.Set(body, "model", c.model)
	body, _ = sjson.Set(body, "stream", stream)
	for i, m := range messages {
		body, _ = sjson.Set(body, fmt.Sprintf("messages.%d.role", i), m.Role)
		body, _ = sjson.Set(body, fmt.Sprintf("messages.%d.content", i), m.Content)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("构造对话请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求对话服务失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8*1024))
		_ = resp.Body.Close()
		return nil, fmt.Errorf("对话服务返回 %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return resp, nil
}

package service

import (
	"context"

	"sage/internal/chat"
)

// ChatService 由 OpenAI 兼容客户端实现；未配置推理后端时 Registry.Chat 为 nil。
type ChatService interface {
	Stream(ctx context.Context, messages []chat.Message, onDelta func(delta string) error) error
	Complete(ctx context.Context, messages []chat.Message) (string, error)
	TestConnection(ctx context.Context) error
	Model() string
}

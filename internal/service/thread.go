package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	"sage/internal/apierr"
	"sage/internal/auth"
	"sage/internal/chat"
	"sage/internal/policy"
	"sage/internal/runstream"
	"sage/internal/store"
)

type ThreadService interface {
	// Resolve 按 public id 取线程并做读判定；临时线程对非所有者一律 NOT_FOUND。
	Resolve(ctx context.Context, principal auth.Principal, publicID string) (*store.Thread, error)
	List(ctx context.Context, principal auth.Principal, ids []int64, onlyMine bool, afterID, beforeID *int64, limit int, backward bool) ([]store.Thread, error)
	Messages(ctx context.Context, principal auth.Principal, threadPublicID string, afterID, beforeID *int64, limit int, backward bool) ([]store.ThreadMessage, error)
	Delete(ctx context.Context, principal auth.Principal, publicID string) error
	SetPersisted(ctx context.Context, principal auth.Principal, publicID string) error
	// DeleteMessagePair 只允许删除线程尾部完整的 user/assistant 对。
	DeleteMessagePair(ctx context.Context, principal auth.Principal, threadPublicID, userMessageID, assistantMessageID string) error
	UpdateMessageContent(ctx context.Context, principal auth.Principal, threadPublicID, messagePublicID, content string) error
	// CreateRunForNewThread 建线程、落用户消息后返回流；线程与用户消息在返回前已持久化。
	CreateRunForNewThread(ctx context.Context, principal auth.Principal, userMessage string, persisted bool) (*store.Thread, *runstream.Stream, error)
	// CreateRun 在既有线程上追加一轮运行，仅线程所有者可用。
	CreateRun(ctx context.Context, principal auth.Principal, threadPublicID, userMessage string) (*runstream.Stream, error)
}

type threadService struct {
	store  *store.Store
	policy *policy.AccessPolicy
	chat   ChatService
}

func newThreadService(st *store.Store, pol *policy.AccessPolicy, chatSvc ChatService) *threadService {
	return &threadService{store: st, policy: pol, chat: chatSvc}
}

func (s *threadService) Resolve(ctx context.Context, principal auth.Principal, publicID string) (*store.Thread, error) {
	t, err := s.store.GetThreadByPublicID(ctx, publicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("线程不存在")
	}
	if err != nil {
		return nil, err
	}
	if err := s.policy.CheckReadThread(principal, t.UserID, t.IsEphemeral); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *threadService) List(ctx context.Context, principal auth.Principal, ids []int64, onlyMine bool, afterID, beforeID *int64, limit int, backward bool) ([]store.Thread, error) {
	var owner *int64
	excludeEphemeral := false
	if onlyMine {
		owner = &principal.UserID
	} else if !principal.IsAdmin {
		// 全量视图下非管理员看不到他人的临时线程；自己的临时线程走 mine 视图。
		excludeEphemeral = true
	}
	return s.store.ListThreads(ctx, ids, owner, excludeEphemeral, afterID, beforeID, limit, backward)
}

func (s *threadService) Messages(ctx context.Context, principal auth.Principal, threadPublicID string, afterID, beforeID *int64, limit int, backward bool) ([]store.ThreadMessage, error) {
	t, err := s.Resolve(ctx, principal, threadPublicID)
	if err != nil {
		return nil, err
	}
	return s.store.ListThreadMessages(ctx, t.ID, afterID, beforeID, limit, backward)
}

func (s *threadService) Delete(ctx context.Context, principal auth.Principal, publicID string) error {
	t, err := s.Resolve(ctx, principal, publicID)
	if err != nil {
		return err
	}
	if err := s.policy.CheckDeleteThread(principal, t.UserID); err != nil {
		return err
	}
	return s.store.DeleteThread(ctx, t.ID)
}

func (s *threadService) SetPersisted(ctx context.Context, principal auth.Principal, publicID string) error {
	t, err := s.Resolve(ctx, principal, publicID)
	if err != nil {
		return err
	}
	if t.UserID != principal.UserID {
		return apierr.Forbidden("只有线程所有者可以保存线程")
	}
	return s.store.SetThreadPersisted(ctx, t.ID)
}

func (s *threadService) DeleteMessagePair(ctx context.Context, principal auth.Principal, threadPublicID, userMessageID, assistantMessageID string) error {
	t, err := s.Resolve(ctx, principal, threadPublicID)
	if err != nil {
		return err
	}
	if err := s.policy.CheckUpdateThreadMessage(principal, t.UserID); err != nil {
		return err
	}

	userMsg, assistantMsg, err := s.store.LastAssistantMessagePair(ctx, t.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return apierr.InvalidInput(apierr.FieldError{Path: "userMessageId", Message: "线程尾部不是完整的对话轮次"})
	}
	if err != nil {
		return err
	}
	if userMsg.PublicID != userMessageID || assistantMsg.PublicID != assistantMessageID {
		return apierr.InvalidInput(apierr.FieldError{Path: "userMessageId", Message: "只能删除线程最后一轮对话"})
	}
	return s.store.DeleteThreadMessages(ctx, userMsg.ID, assistantMsg.ID)
}

func (s *threadService) UpdateMessageContent(ctx context.Context, principal auth.Principal, threadPublicID, messagePublicID, content string) error {
	t, err := s.Resolve(ctx, principal, threadPublicID)
	if err != nil {
		return err
	}
	if err := s.policy.CheckUpdateThreadMessage(principal, t.UserID); err != nil {
		return err
	}
	m, err := s.store.GetThreadMessageByPublicID(ctx, messagePublicID)
	if errors.Is(err, sql.ErrNoRows) {
		return apierr.NotFound("消息不存在")
	}
	if err != nil {
		return err
	}
	if m.ThreadID != t.ID {
		return apierr.NotFound("消息不存在")
	}
	// 仅允许修订模型输出，用户消息保持原样作为审计依据。
	if m.Role != "assistant" {
		return apierr.Forbidden("只能修改助手消息")
	}
	return s.store.UpdateThreadMessageContent(ctx, m.ID, content)
}

func (s *threadService) CreateRunForNewThread(ctx context.Context, principal auth.Principal, userMessage string, persisted bool) (*store.Thread, *runstream.Stream, error) {
	if s.chat == nil {
		return nil, nil, apierr.NotEnabled("对话服务未启用")
	}
	if strings.TrimSpace(userMessage) == "" {
		return nil, nil, apierr.InvalidInput(apierr.FieldError{Path: "userMessage", Message: "消息内容不能为空"})
	}

	publicID := uuid.NewString()
	if _, err := s.store.CreateThread(ctx, publicID, principal.UserID, !persisted); err != nil {
		return nil, nil, err
	}
	thread, err := s.store.GetThreadByPublicID(ctx, publicID)
	if err != nil {
		return nil, nil, err
	}

	stream, err := s.startRun(ctx, principal, thread, userMessage)
	if err != nil {
		return nil, nil, err
	}
	return thread, stream, nil
}

func (s *threadService) CreateRun(ctx context.Context, principal auth.Principal, threadPublicID, userMessage string) (*runstream.Stream, error) {
	if s.chat == nil {
		return nil, apierr.NotEnabled("对话服务未启用")
	}
	t, err := s.Resolve(ctx, principal, threadPublicID)
	if err != nil {
		return nil, err
	}
	if t.UserID != principal.UserID {
		return nil, apierr.Forbidden("只有线程所有者可以继续对话")
	}
	if strings.TrimSpace(userMessage) == "" {
		return nil, apierr.InvalidInput(apierr.FieldError{Path: "userMessage", Message: "消息内容不能为空"})
	}
	return s.startRun(ctx, principal, t, userMessage)
}

// startRun 同步落用户消息后启动生产者；客户端断开只会中断流式读取，
// 已生成的部分输出仍会落库。
func (s *threadService) startRun(ctx context.Context, principal auth.Principal, t *store.Thread, userMessage string) (*runstream.Stream, error) {
	persistCtx := context.WithoutCancel(ctx)

	userMsgID := uuid.NewString()
	if _, err := s.store.CreateThreadMessage(ctx, userMsgID, t.ID, "user", userMessage); err != nil {
		return nil, err
	}

	history, err := s.store.ListThreadMessages(ctx, t.ID, nil, nil, 64, true)
	if err != nil {
		return nil, err
	}
	// 倒序取的最近 64 条，正序喂给模型。
	msgs := make([]chat.Message, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		msgs = append(msgs, chat.Message{Role: history[i].Role, Content: history[i].Content})
	}

	stream := runstream.New(32)
	go func() {
		assistantMsgID := uuid.NewString()

		frame, _ := sjson.Set("{}", "thread_id", t.PublicID)
		frame, _ = sjson.Set(frame, "user_message_id", userMsgID)
		frame, _ = sjson.Set(frame, "assistant_message_id", assistantMsgID)
		_ = stream.Emit(ctx, runstream.Event{Name: "run_created", Data: frame})

		var b strings.Builder
		streamErr := s.chat.Stream(ctx, msgs, func(delta string) error {
			b.WriteString(delta)
			data, _ := sjson.Set("{}", "delta", delta)
			return stream.Emit(ctx, runstream.Event{Name: "delta", Data: data})
		})

		if b.Len() > 0 || streamErr == nil {
			if _, err := s.store.CreateThreadMessage(persistCtx, assistantMsgID, t.ID, "assistant", b.String()); err != nil {
				slog.Error("落库助手消息失败", "thread", t.PublicID, "err", err)
			}
		}
		if streamErr == nil {
			payload, _ := sjson.Set("{}", "thread_id", t.PublicID)
			if err := s.store.CreateUserEvent(persistCtx, principal.UserID, store.EventChat, payload); err != nil {
				slog.Warn("记录对话事件失败", "err", err)
			}
		}
		stream.Close(streamErr)
	}()
	return stream, nil
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

type PageService interface {
	Resolve(ctx context.Context, publicID string) (*store.Page, error)
	List(ctx context.Context, ids []int64, afterID, beforeID *int64, limit int, backward bool) ([]store.Page, error)
	UpdateTitle(ctx context.Context, principal auth.Principal, publicID, title string) error
	UpdateContent(ctx context.Context, principal auth.Principal, publicID, content string) error
	Delete(ctx context.Context, principal auth.Principal, publicID string) error
	Sections(ctx context.Context, pagePublicID string, afterID, beforeID *int64, limit int, backward bool) ([]store.PageSection, error)
	UpdateSection(ctx context.Context, principal auth.Principal, sectionPublicID, title, content string) error
	DeleteSection(ctx context.Context, principal auth.Principal, sectionPublicID string) error
	// MoveSection 上移或下移一个位置；direction 取 "up"/"down"。
	MoveSection(ctx context.Context, principal auth.Principal, sectionPublicID, direction string) error
	// CreateRun 从一句标题提示生成新页面，页面行在流返回前已持久化。
	CreateRun(ctx context.Context, principal auth.Principal, titlePrompt string) (*store.Page, *runstream.Stream, error)
	// CreateRunFromThread 把一条线程沉淀为页面。
	CreateRunFromThread(ctx context.Context, principal auth.Principal, threadPublicID string) (*store.Page, *runstream.Stream, error)
	// AppendSectionRun 为既有页面生成一个新小节。
	AppendSectionRun(ctx context.Context, principal auth.Principal, pagePublicID, titlePrompt string) (*runstream.Stream, error)
}

type pageService struct {
	store  *store.Store
	policy *policy.AccessPolicy
	chat   ChatService
}

func newPageService(st *store.Store, pol *policy.AccessPolicy, chatSvc ChatService) *pageService {
	return &pageService{store: st, policy: pol, chat: chatSvc}
}

func (s *pageService) Resolve(ctx context.Context, publicID string) (*store.Page, error) {
	p, err := s.store.GetPageByPublicID(ctx, publicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("页面不存在")
	}
	return p, err
}

func (s *pageService) List(ctx context.Context, ids []int64, afterID, beforeID *int64, limit int, backward bool) ([]store.Page, error) {
	return s.store.ListPages(ctx, ids, afterID, beforeID, limit, backward)
}

func (s *pageService) resolveOwned(ctx context.Context, principal auth.Principal, publicID string) (*store.Page, error) {
	p, err := s.Resolve(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CheckUpdatePage(principal, p.AuthorID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *pageService) UpdateTitle(ctx context.Context, principal auth.Principal, publicID, title string) error {
	if strings.TrimSpace(title) == "" {
		return apierr.InvalidInput(apierr.FieldError{Path: "title", Message: "标题不能为空"})
	}
	p, err := s.resolveOwned(ctx, principal, publicID)
	if err != nil {
		return err
	}
	return s.store.UpdatePageTitle(ctx, p.ID, title)
}

func (s *pageService) UpdateContent(ctx context.Context, principal auth.Principal, publicID, content string) error {
	p, err := s.resolveOwned(ctx, principal, publicID)
	if err != nil {
		return err
	}
	return s.store.UpdatePageContent(ctx, p.ID, content)
}

func (s *pageService) Delete(ctx context.Context, principal auth.Principal, publicID string) error {
	p, err := s.resolveOwned(ctx, principal, publicID)
	if err != nil {
		return err
	}
	return s.store.DeletePage(ctx, p.ID)
}

func (s *pageService) Sections(ctx context.Context, pagePublicID string, afterID, beforeID *int64, limit int, backward bool) ([]store.PageSection, error) {
	p, err := s.Resolve(ctx, pagePublicID)
	if err != nil {
		return nil, err
	}
	return s.store.ListPageSections(ctx, p.ID, afterID, beforeID, limit, backward)
}

func (s *pageService) resolveOwnedSection(ctx context.Context, principal auth.Principal, sectionPublicID string) (*store.PageSection, error) {
	sec, err := s.store.GetPageSectionByPublicID(ctx, sectionPublicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("页面小节不存在")
	}
	if err != nil {
		return nil, err
	}
	pages, err := s.store.ListPages(ctx, []int64{sec.PageID}, nil, nil, 1, false)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, apierr.NotFound("页面不存在")
	}
	if err := s.policy.CheckUpdatePage(principal, pages[0].AuthorID); err != nil {
		return nil, err
	}
	return sec, nil
}

func (s *pageService) UpdateSection(ctx context.Context, principal auth.Principal, sectionPublicID, title, content string) error {
	sec, err := s.resolveOwnedSection(ctx, principal, sectionPublicID)
	if err != nil {
		return err
	}
	return s.store.UpdatePageSection(ctx, sec.ID, title, content)
}

func (s *pageService) DeleteSection(ctx context.Context, principal auth.Principal, sectionPublicID string) error {
	sec, err := s.resolveOwnedSection(ctx, principal, sectionPublicID)
	if err != nil {
		return err
	}
	return s.store.DeletePageSection(ctx, sec.ID)
}

func (s *pageService) MoveSection(ctx context.Context, principal auth.Principal, sectionPublicID, direction string) error {
	var dir int
	switch direction {
	case "up":
		dir = -1
	case "down":
		dir = 1
	default:
		return apierr.InvalidInput(apierr.FieldError{Path: "direction", Message: "方向只支持 up/down"})
	}
	sec, err := s.resolveOwnedSection(ctx, principal, sectionPublicID)
	if err != nil {
		return err
	}
	return s.store.MovePageSection(ctx, sec.ID, dir)
}

func (s *pageService) CreateRun(ctx context.Context, principal auth.Principal, titlePrompt string) (*store.Page, *runstream.Stream, error) {
	if s.chat == nil {
		return nil, nil, apierr.NotEnabled("对话服务未启用")
	}
	titlePrompt = strings.TrimSpace(titlePrompt)
	if titlePrompt == "" {
		return nil, nil, apierr.InvalidInput(apierr.FieldError{Path: "titlePrompt", Message: "标题提示不能为空"})
	}

	page, err := s.createPageRow(ctx, principal, titlePrompt)
	if err != nil {
		return nil, nil, err
	}
	prompt := fmt.Sprintf("围绕主题《%s》写一篇结构完整的知识页面正文。", titlePrompt)
	return page, s.generateContent(ctx, page, prompt), nil
}

func (s *pageService) CreateRunFromThread(ctx context.Context, principal auth.Principal, threadPublicID string) (*store.Page, *runstream.Stream, error) {
	if s.chat == nil {
		return nil, nil, apierr.NotEnabled("对话服务未启用")
	}
	t, err := s.store.GetThreadByPublicID(ctx, threadPublicID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, apierr.NotFound("线程不存在")
	}
	if err != nil {
		return nil, nil, err
	}
	if err := s.policy.CheckReadThread(principal, t.UserID, t.IsEphemeral); err != nil {
		return nil, nil, err
	}

	history, err := s.store.ListThreadMessages(ctx, t.ID, nil, nil, 64, true)
	if err != nil {
		return nil, nil, err
	}
	if len(history) == 0 {
		return nil, nil, apierr.InvalidInput(apierr.FieldError{Path: "threadId", Message: "空线程无法生成页面"})
	}

	var b strings.Builder
	for i := len(history) - 1; i >= 0; i-- {
		fmt.Fprintf(&b, "%s: %s\n", history[i].Role, history[i].Content)
	}

	page, err := s.createPageRow(ctx, principal, "来自对话的页面")
	if err != nil {
		return nil, nil, err
	}
	prompt := "把下面这段对话整理为一篇知识页面正文，保留结论并去掉口语：\n\n" + b.String()
	return page, s.generateContent(ctx, page, prompt), nil
}

func (s *pageService) AppendSectionRun(ctx context.Context, principal auth.Principal, pagePublicID, titlePrompt string) (*runstream.Stream, error) {
	if s.chat == nil {
		return nil, apierr.NotEnabled("对话服务未启用")
	}
	titlePrompt = strings.TrimSpace(titlePrompt)
	if titlePrompt == "" {
		return nil, apierr.InvalidInput(apierr.FieldError{Path: "titlePrompt", Message: "标题提示不能为空"})
	}
	p, err := s.resolveOwned(ctx, principal, pagePublicID)
	if err != nil {
		return nil, err
	}

	sectionID := uuid.NewString()
	if _, err := s.store.CreatePageSection(ctx, sectionID, p.ID, titlePrompt, ""); err != nil {
		return nil, err
	}

	persistCtx := context.WithoutCancel(ctx)
	stream := runstream.New(32)
	go func() {
		frame, _ := sjson.Set("{}", "section_id", sectionID)
		_ = stream.Emit(ctx, runstream.Event{Name: "section_created", Data: frame})

		prompt := fmt.Sprintf("页面《%s》需要新增小节《%s》，请写出该小节正文。", p.Title, titlePrompt)
		content, streamErr := s.streamCompletion(ctx, stream, prompt)
		if content != "" || streamErr == nil {
			sec, err := s.store.GetPageSectionByPublicID(persistCtx, sectionID)
			if err == nil {
				if err := s.store.UpdatePageSection(persistCtx, sec.ID, sec.Title, content); err != nil {
					slog.Error("落库页面小节失败", "section", sectionID, "err", err)
				}
			}
		}
		stream.Close(streamErr)
	}()
	return stream, nil
}

func (s *pageService) createPageRow(ctx context.Context, principal auth.Principal, title string) (*store.Page, error) {
	publicID := uuid.NewString()
	if _, err := s.store.CreatePage(ctx, publicID, principal.UserID, title, ""); err != nil {
		return nil, err
	}
	return s.store.GetPageByPublicID(ctx, publicID)
}

// generateContent 启动生产者为页面正文生成内容，结束时整体落库。
func (s *pageService) generateContent(ctx context.Context, page *store.Page, prompt string) *runstream.Stream {
	persistCtx := context.WithoutCancel(ctx)
	stream := runstream.New(32)
	go func() {
		frame, _ := sjson.Set("{}", "page_id", page.PublicID)
		_ = stream.Emit(ctx, runstream.Event{Name: "page_created", Data: frame})

		content, streamErr := s.streamCompletion(ctx, stream, prompt)
		if content != "" || streamErr == nil {
			if err := s.store.UpdatePageContent(persistCtx, page.ID, content); err != nil {
				slog.Error("落库页面内容失败", "page", page.PublicID, "err", err)
			}
		}
		stream.Close(streamErr)
	}()
	return stream
}

func (s *pageService) streamCompletion(ctx context.Context, stream *runstream.Stream, prompt string) (string, error) {
	var b strings.Builder
	err := s.chat.Stream(ctx, []chat.Message{{Role: "user", Content: prompt}}, func(delta string) error {
		b.WriteString(delta)
		data, _ := sjson.Set("{}", "delta", delta)
		return stream.Emit(ctx, runstream.Event{Name: "delta", Data: data})
	})
	return b.String(), err
}

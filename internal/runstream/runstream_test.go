package runstream

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEmitAndDrain(t *testing.T) {
	s := New(4)
	ctx := context.Background()

	if err := s.Emit(ctx, Event{Name: "delta", Data: `"你好"`}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := s.Emit(ctx, Event{Name: "delta", Data: `"世界"`}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	s.Close(nil)

	var got []string
	for ev := range s.Events() {
		got = append(got, ev.Data)
	}
	if len(got) != 2 || got[0] != `"你好"` || got[1] != `"世界"` {
		t.Fatalf("事件应按序收到，得到 %v", got)
	}
	if s.Err() != nil {
		t.Fatalf("正常收尾不应有错误: %v", s.Err())
	}
}

func TestEmitAfterClose(t *testing.T) {
	s := New(1)
	s.Close(nil)
	if err := s.Emit(context.Background(), Event{Name: "delta"}); !errors.Is(err, ErrClosed) {
		t.Fatalf("关闭后 Emit 应返回 ErrClosed，得到 %v", err)
	}
	// 重复关闭无效。
	s.Close(errors.New("late"))
	if s.Err() != nil {
		t.Fatal("重复 Close 不应覆盖首次记录的结果")
	}
}

func TestEmitAbortsOnContextCancel(t *testing.T) {
	s := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Emit(ctx, Event{Name: "delta"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	// 缓冲已满，下一次 Emit 阻塞；取消 ctx 应令其放弃。
	errc := make(chan error, 1)
	go func() { errc <- s.Emit(ctx, Event{Name: "delta"}) }()
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("应返回 context.Canceled，得到 %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Emit 在 ctx 取消后仍未返回")
	}
}

func TestServeSSEDoneFrame(t *testing.T) {
	s := New(4)
	if err := s.Emit(context.Background(), Event{Name: "delta", Data: `"hi"`}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	s.Close(nil)

	rec := httptest.NewRecorder()
	if err := ServeSSE(context.Background(), rec, s); err != nil {
		t.Fatalf("ServeSSE: %v", err)
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type 应为 text/event-stream，得到 %q", ct)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: delta\ndata: \"hi\"\n\n") {
		t.Fatalf("应包含 delta 帧，得到:\n%s", body)
	}
	if !strings.HasSuffix(body, "event: done\ndata: {}\n\n") {
		t.Fatalf("流应以 done 帧收尾，得到:\n%s", body)
	}
}

func TestServeSSEErrorFrame(t *testing.T) {
	s := New(1)
	s.Close(errors.New("模型后端不可用"))

	rec := httptest.NewRecorder()
	if err := ServeSSE(context.Background(), rec, s); err != nil {
		t.Fatalf("ServeSSE: %v", err)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: error\n") || !strings.Contains(body, "模型后端不可用") {
		t.Fatalf("流异常收尾应下发 error 帧，得到:\n%s", body)
	}
}

func TestServeSSEClientGone(t *testing.T) {
	s := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	if err := ServeSSE(ctx, rec, s); err != nil {
		t.Fatalf("客户端断开不应作为错误返回: %v", err)
	}
	// 断开后生产者仍可安全收尾。
	s.Close(nil)
}

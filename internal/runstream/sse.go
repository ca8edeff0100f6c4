package runstream

import (
	"context"
	"fmt"
	"net/http"

	"sage/internal/obs"
)

// ServeSSE 把流下发为 text/event-stream，直到流关闭或客户端断开。
// 客户端断开不是错误：生产者通过 ctx 取消感知并自行决定收尾动作。
func ServeSSE(ctx context.Context, w http.ResponseWriter, s *Stream) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("响应不支持流式输出")
	}

	done := obs.TrackRunStream()
	defer done()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case ev, open := <-s.Events():
			if !open {
				if err := s.Err(); err != nil {
					obs.RecordRunStreamResult("error")
					writeFrame(w, flusher, Event{Name: "error", Data: fmt.Sprintf("%q", err.Error())})
					return nil
				}
				obs.RecordRunStreamResult("done")
				writeFrame(w, flusher, Event{Name: "done", Data: "{}"})
				return nil
			}
			writeFrame(w, flusher, ev)
		case <-ctx.Done():
			obs.RecordRunStreamResult("client_gone")
			return nil
		}
	}
}

func writeFrame(w http.ResponseWriter, flusher http.Flusher, ev Event) {
	if ev.Name != "" {
		fmt.Fprintf(w, "event: %s\n", ev.Name)
	}
	fmt.Fprintf(w, "data: %s\n\n", ev.Data)
	flusher.Flush()
}

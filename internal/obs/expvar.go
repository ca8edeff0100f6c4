package obs

import (
	"expvar"
	"sync/atomic"
)

var (
	activeRunStreams int64
	totalRunStreams  int64

	runStreamResults = expvar.NewMap("run_stream_results_total")
)

func init() {
	expvar.Publish("active_run_streams", expvar.Func(func() any {
		return atomic.LoadInt64(&activeRunStreams)
	}))
	expvar.Publish("total_run_streams", expvar.Func(func() any {
		return atomic.LoadInt64(&totalRunStreams)
	}))
}

// TrackRunStream 登记一条订阅流，返回的函数应 defer 调用以递减活跃计数。
func TrackRunStream() func() {
	atomic.AddInt64(&activeRunStreams, 1)
	atomic.AddInt64(&totalRunStreams, 1)
	return func() {
		atomic.AddInt64(&activeRunStreams, -1)
	}
}

// RecordRunStreamResult 按结束原因（ok/client_disconnect/producer_error）累计订阅流结果。
func RecordRunStreamResult(reason string) {
	key := reason
	if key == "" {
		key = "ok"
	}
	if v := runStreamResults.Get(key); v != nil {
		v.(*expvar.Int).Add(1)
		return
	}
	i := new(expvar.Int)
	i.Add(1)
	runStreamResults.Set(key, i)
}

package router

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"sage/internal/apierr"
)

func wrapHTTP(h http.Handler) gin.HandlerFunc {
	if h == nil {
		return func(c *gin.Context) {
			c.Status(http.StatusNotFound)
		}
	}

	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// respond 输出成功包络。
func respond(c *gin.Context, data any) {
	c.JSON(http.StatusOK, apierr.Envelope{Success: true, Data: data})
}

// fail 把业务错误翻译为状态码与失败包络。
func fail(c *gin.Context, err error) {
	status, env := apierr.Translate(err)
	c.JSON(status, env)
}

// pageArgs 承载 relay 风格分页参数。
type pageArgs struct {
	After  *string
	Before *string
	First  *int
	Last   *int
}

func parsePageArgs(c *gin.Context) pageArgs {
	var args pageArgs
	if v := c.Query("after"); v != "" {
		args.After = &v
	}
	if v := c.Query("before"); v != "" {
		args.Before = &v
	}
	if v := c.Query("first"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			args.First = &n
		}
	}
	if v := c.Query("last"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			args.Last = &n
		}
	}
	return args
}

// parseIDList 解析逗号分隔的 id 列表；任何一段不是整数都会返回 INVALID_ID。
func parseIDList(c *gin.Context, key string) ([]int64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, apierr.InvalidID()
		}
		out = append(out, id)
	}
	return out, nil
}

func parsePathID(c *gin.Context, key string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(key), 10, 64)
	if err != nil || id <= 0 {
		return 0, apierr.InvalidID()
	}
	return id, nil
}

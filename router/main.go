package router

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

func SetRouter(r *gin.Engine, opts Options) {
	// SSE 路由直接挂在引擎上，避开 gzip 对流式响应的缓冲。
	setThreadRunRoutes(r, opts)
	setPageRunRoutes(r, opts)

	api := r.Group("/api")
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	setAuthAPIRoutes(api, opts)
	setUserAPIRoutes(api, opts)
	setInvitationAPIRoutes(api, opts)
	setSettingAPIRoutes(api, opts)
	setRepositoryAPIRoutes(api, opts)
	setJobAPIRoutes(api, opts)
	setAnalyticsAPIRoutes(api, opts)
	setThreadAPIRoutes(api, opts)
	setPageAPIRoutes(api, opts)
	setUserGroupAPIRoutes(api, opts)
	setSystemAPIRoutes(api, opts)
}

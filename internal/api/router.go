package api

import (
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/followgraph/config"
	_ "github.com/d60-Lab/followgraph/docs"
	"github.com/d60-Lab/followgraph/internal/api/handler"
	"github.com/d60-Lab/followgraph/internal/api/middleware"
)

// SetupRouter 注册中间件和全部路由
func SetupRouter(h *handler.Handler, cfg *config.Config) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog())
	r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	auth := middleware.NewAuth(cfg.JWT.Secret, cfg.JWT.Issuer)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	v1 := r.Group("/api/v1")
	v1.Use(limiter.Middleware())
	{
		follows := v1.Group("/follows")
		{
			follows.POST("", auth.Required(), h.Follow)
			follows.DELETE("", auth.Required(), h.Unfollow)
			follows.GET("/status", auth.Required(), h.Status)
			follows.POST("/buttons", auth.Optional(), h.Buttons)
		}

		objects := v1.Group("/objects/:id")
		{
			objects.GET("/followers", h.Followers)
			objects.GET("/following", h.Following)
			objects.GET("/counts", h.Counts)
		}

		v1.POST("/entities/removed", auth.Host(), h.EntityRemoved)
	}
	return r
}

// Package httpserver is the moderator-facing admin HTTP API built on gin.
package httpserver

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/campus-board/internal/metrics"
	"github.com/and161185/campus-board/internal/service"
)

// Config tunes the admin router.
type Config struct {
	CORSOrigin string // "" disables CORS
	Dev        bool
}

// Handler serves the admin endpoints.
type Handler struct {
	mod     service.ModerationService
	metrics *metrics.Metrics
	log     *zap.Logger
}

// New builds the gin engine with middleware and all admin routes.
func New(mod service.ModerationService, m *metrics.Metrics, log *zap.Logger, cfg Config) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	h := &Handler{mod: mod, metrics: m, log: log}

	r := gin.New()
	r.Use(ZapRecovery(log), ZapLogger(log), Metrics(m), SecurityHeaders())
	if cfg.CORSOrigin != "" {
		r.Use(cors.New(cors.Config{
			AllowOrigins:  []string{cfg.CORSOrigin},
			AllowMethods:  []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders: []string{"Content-Length"},
			MaxAge:        12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	admin := r.Group("/admin")
	{
		admin.POST("/login", h.Login)
		authed := admin.Group("", RequireModerator(mod))
		authed.POST("/delete", h.Delete)
		authed.GET("/flags", h.Flags)
		authed.POST("/moderators", h.Register)
	}
	return r
}

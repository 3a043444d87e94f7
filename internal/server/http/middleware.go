package httpserver

import (
	"errors"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/metrics"
	"github.com/and161185/campus-board/internal/model"
	"github.com/and161185/campus-board/internal/service"
)

const moderatorKey = "cb.moderator"

// ZapLogger logs one line per request: route, status, latency and client.
func ZapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", c.ClientIP()),
		)
	}
}

// ZapRecovery turns panics into 500 responses.
func ZapRecovery(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic",
					zap.Any("reason", r),
					zap.ByteString("stack", debug.Stack()),
					zap.String("route", c.FullPath()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal"})
			}
		}()
		c.Next()
	}
}

// Metrics counts requests per route and status. m may be nil.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveHTTP(route, strconv.Itoa(c.Writer.Status()))
	}
}

// SecurityHeaders adds basic hardening headers. The admin API serves no HTML.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// RequireModerator verifies the bearer credential and stores the moderator in context.
func RequireModerator(mod service.ModerationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "moderator credential required"})
			return
		}
		m, err := mod.Authorize(c.Request.Context(), raw)
		switch {
		case errors.Is(err, errs.ErrUnauthorized):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid moderator credential"})
			return
		case err != nil:
			c.AbortWithStatusJSON(httpStatus(err), gin.H{"error": errorText(err)})
			return
		}
		c.Set(moderatorKey, m)
		c.Next()
	}
}

func moderatorFrom(c *gin.Context) *model.Moderator {
	v, ok := c.Get(moderatorKey)
	if !ok {
		return nil
	}
	m, _ := v.(*model.Moderator)
	return m
}

package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/campus-board/internal/errs"
	"github.com/and161185/campus-board/internal/model"
)

type credentialsInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginOutput struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type deleteInput struct {
	SubjectType string `json:"subject_type" binding:"required,oneof=post comment"`
	ID          string `json:"id" binding:"required"`
}

type flagReportOutput struct {
	SubjectType string         `json:"subject_type"`
	ID          string         `json:"id"`
	Count       int            `json:"count"`
	Reporters   int            `json:"reporters"`
	Reasons     map[string]int `json:"reasons"`
	LatestAt    time.Time      `json:"latest_at"`
	Exists      bool           `json:"exists"`
	Excerpt     string         `json:"excerpt,omitempty"`
}

// httpStatus maps domain errors onto HTTP status codes.
func httpStatus(err error) int {
	switch errs.KindOf(err) {
	case errs.KindInvalidInput:
		return http.StatusBadRequest
	case errs.KindUnauthorized:
		return http.StatusForbidden
	case errs.KindTokenExpired:
		return http.StatusUnauthorized
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindTimeout:
		return http.StatusGatewayTimeout
	case errs.KindRateLimited:
		return http.StatusTooManyRequests
	case errs.KindIssuanceFailed:
		return http.StatusBadGateway
	case errs.KindAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorText(err error) string {
	if errs.KindOf(err) == errs.KindInvalidInput {
		return err.Error()
	}
	return errs.KindOf(err).String()
}

func (h *Handler) fail(c *gin.Context, op string, err error) {
	code := httpStatus(err)
	if code == http.StatusInternalServerError {
		h.log.Error(op, zap.Error(err))
	}
	c.AbortWithStatusJSON(code, gin.H{"error": errorText(err)})
}

// Login exchanges moderator credentials for a bearer token.
func (h *Handler) Login(c *gin.Context) {
	var in credentialsInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}
	tok, err := h.mod.LoginWithIP(c.Request.Context(), in.Username, in.Password, c.ClientIP())
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad credentials"})
			return
		}
		h.fail(c, "login", err)
		return
	}
	c.JSON(http.StatusOK, loginOutput{AccessToken: tok.AccessToken, ExpiresAt: tok.ExpiresAt})
}

// Delete is the privileged deletion endpoint. It always answers {ok, error?}.
func (h *Handler) Delete(c *gin.Context) {
	var in deleteInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.DeleteResult{Error: "subject_type (post|comment) and id required"})
		return
	}
	id, err := uuid.FromString(in.ID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.DeleteResult{Error: "bad id"})
		return
	}
	sub := model.Subject{Type: model.SubjectType(in.SubjectType), ID: id}
	if err := h.mod.Delete(c.Request.Context(), moderatorFrom(c), sub); err != nil {
		code := httpStatus(err)
		if code == http.StatusInternalServerError {
			h.log.Error("moderator delete", zap.Error(err))
		}
		h.metrics.ObserveContent("moderator_delete", err)
		c.AbortWithStatusJSON(code, model.DeleteResult{Error: errorText(err)})
		return
	}
	h.metrics.ObserveContent("moderator_delete", nil)
	c.JSON(http.StatusOK, model.DeleteResult{OK: true})
}

// Flags lists flagged subjects, most reported first.
func (h *Handler) Flags(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "bad limit"})
			return
		}
		limit = n
	}
	reports, err := h.mod.FlagReport(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, "flag report", err)
		return
	}
	out := make([]flagReportOutput, 0, len(reports))
	for _, r := range reports {
		out = append(out, flagReportOutput{
			SubjectType: string(r.Subject.Type),
			ID:          r.Subject.ID.String(),
			Count:       r.Count,
			Reporters:   r.Reporters,
			Reasons:     r.Reasons,
			LatestAt:    r.LatestAt,
			Exists:      r.Exists,
			Excerpt:     r.Excerpt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"flags": out})
}

// Register adds another moderator account.
func (h *Handler) Register(c *gin.Context) {
	var in credentialsInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}
	id, err := h.mod.Register(c.Request.Context(), in.Username, in.Password)
	if err != nil {
		h.fail(c, "register moderator", err)
		return
	}
	h.log.Info("moderator added", zap.String("by", moderatorFrom(c).Username), zap.String("username", in.Username))
	c.JSON(http.StatusCreated, gin.H{"id": id.String()})
}

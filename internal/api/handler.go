// Package api maps HTTP requests to the attendance services.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CostinMirescu/sala-alternativa/internal/attendance"
	"github.com/CostinMirescu/sala-alternativa/internal/auth"
	"github.com/CostinMirescu/sala-alternativa/internal/token"
)

// Checker reports whether a dependency is reachable.
type Checker interface {
	Healthy(ctx context.Context) bool
}

// Config holds what handlers need beyond their services.
type Config struct {
	JWTIssuer     string
	JWTSigningKey string
	AccessTTL     time.Duration
	PublicURL     string
	SecureCookies bool
}

// Handler serves the HTTP API.
type Handler struct {
	svc      *attendance.Service
	codec    *token.Codec
	teachers *auth.Teachers
	cfg      Config
	checks   map[string]Checker
}

// New creates a handler. checks are reported by /healthz under their names.
func New(svc *attendance.Service, codec *token.Codec, teachers *auth.Teachers, cfg Config, checks map[string]Checker) *Handler {
	return &Handler{svc: svc, codec: codec, teachers: teachers, cfg: cfg, checks: checks}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.health)

	v1 := r.Group("/v1")
	v1.POST("/teachers/login", h.login)
	v1.GET("/device", h.device)
	v1.POST("/checkin", h.checkIn)
	v1.POST("/checkout", h.checkOut)
	v1.GET("/sessions/:id/status", h.sessionStatus)
	v1.GET("/sessions/:id/me", h.codeStatus)
	v1.GET("/classes/:class/current", h.currentSession)

	teacher := v1.Group("", auth.TeacherAuth(h.cfg.JWTSigningKey, h.cfg.JWTIssuer))
	teacher.GET("/sessions/:id/token", h.sessionToken)
	teacher.GET("/sessions/:id/qr.png", h.sessionQR)
}

func (h *Handler) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, chk := range h.checks {
		ok := chk.Healthy(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func toHTTPStatus(err error) int {
	var denial *attendance.DenialError
	switch {
	case errors.As(err, &denial):
		switch denial.Reason {
		case attendance.ReasonRateLimit:
			return http.StatusTooManyRequests
		case attendance.ReasonDuplicateCode, attendance.ReasonAlreadyLeft:
			return http.StatusConflict
		default:
			return http.StatusForbidden
		}
	case errors.Is(err, attendance.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, token.ErrExpired), errors.Is(err, token.ErrInvalid):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := toHTTPStatus(err)
	var denial *attendance.DenialError
	switch {
	case errors.As(err, &denial):
		c.JSON(code, gin.H{"ok": false, "reason": denial.Reason, "message": message(denial.Reason)})
	case errors.Is(err, token.ErrExpired):
		c.JSON(code, gin.H{"ok": false, "reason": "token-expired", "message": msgTokenExpired})
	case errors.Is(err, token.ErrInvalid):
		c.JSON(code, gin.H{"ok": false, "reason": "token-invalid", "message": msgTokenInvalid})
	case code == http.StatusBadRequest:
		c.JSON(code, gin.H{"ok": false, "error": err.Error()})
	case code == http.StatusNotFound:
		c.JSON(code, gin.H{"ok": false, "error": msgNotFound})
	default:
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		c.JSON(code, gin.H{"ok": false, "error": msgInternal})
	}
}

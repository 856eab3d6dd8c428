package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/skip2/go-qrcode"

	"github.com/CostinMirescu/sala-alternativa/internal/attendance"
	"github.com/CostinMirescu/sala-alternativa/internal/auth"
	"github.com/CostinMirescu/sala-alternativa/internal/window"
)

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.teachers.Authenticate(c.Request.Context(), req.Email, req.Password)
	if errors.Is(err, auth.ErrBadCredentials) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "email sau parolă greșită"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	tok, err := auth.Issue(id, h.cfg.JWTIssuer, h.cfg.JWTSigningKey, h.cfg.AccessTTL, time.Now())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token": tok.Token,
		"expires_at":   tok.ExpiresAt.Unix(),
		"class_id":     id.ClassID,
	})
}

// teacherSession loads the session and checks it belongs to the teacher's class.
func (h *Handler) teacherSession(c *gin.Context) (attendance.Session, bool) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return attendance.Session{}, false
	}
	sess, err := h.svc.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return attendance.Session{}, false
	}
	if sess.ClassID != id.ClassID {
		c.JSON(http.StatusForbidden, gin.H{"error": "sesiunea aparține altei clase"})
		return attendance.Session{}, false
	}
	return sess, true
}

func (h *Handler) phase(c *gin.Context, sess attendance.Session) (window.Phase, bool) {
	if p := window.Phase(c.Query("phase")); p != "" {
		if !p.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "phase must be start or end"})
			return "", false
		}
		return p, true
	}
	return window.PhaseAt(h.svc.Now(), sess.EndsAt, h.svc.Window()), true
}

func (h *Handler) scanURL(raw string, phase window.Phase) string {
	path := "/scan"
	if phase == window.PhaseEnd {
		path = "/scan/out"
	}
	return fmt.Sprintf("%s%s?t=%s", h.cfg.PublicURL, path, url.QueryEscape(raw))
}

func (h *Handler) sessionToken(c *gin.Context) {
	sess, ok := h.teacherSession(c)
	if !ok {
		return
	}
	phase, ok := h.phase(c, sess)
	if !ok {
		return
	}
	raw, exp, err := h.codec.Issue(sess.ID, phase)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":       raw,
		"phase":       phase,
		"expires_at":  exp,
		"max_age_sec": int(h.codec.MaxAge().Seconds()),
		"scan_url":    h.scanURL(raw, phase),
	})
}

func (h *Handler) sessionQR(c *gin.Context) {
	sess, ok := h.teacherSession(c)
	if !ok {
		return
	}
	phase, ok := h.phase(c, sess)
	if !ok {
		return
	}
	raw, _, err := h.codec.Issue(sess.ID, phase)
	if err != nil {
		writeError(c, err)
		return
	}
	png, err := qrcode.Encode(h.scanURL(raw, phase), qrcode.Medium, 320)
	if err != nil {
		writeError(c, fmt.Errorf("encode qr: %w", err))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

func (h *Handler) sessionStatus(c *gin.Context) {
	st, err := h.svc.SessionStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) currentSession(c *gin.Context) {
	st, err := h.svc.CurrentSession(c.Request.Context(), c.Param("class"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

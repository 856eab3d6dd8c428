package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/CostinMirescu/sala-alternativa/internal/attendance"
	"github.com/CostinMirescu/sala-alternativa/internal/metrics"
	"github.com/CostinMirescu/sala-alternativa/internal/token"
	"github.com/CostinMirescu/sala-alternativa/internal/window"
)

const (
	deviceCookie    = "device_id"
	deviceCookieAge = 365 * 24 * 60 * 60
)

type scanRequest struct {
	Token    string `json:"token" binding:"required"`
	Code     string `json:"code" binding:"required"`
	DeviceID string `json:"device_id"`
}

// device returns the caller's device id, issuing a new cookie when absent.
func (h *Handler) device(c *gin.Context) {
	id, err := c.Cookie(deviceCookie)
	if err != nil || id == "" {
		id = uuid.NewString()
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(deviceCookie, id, deviceCookieAge, "/", "", h.cfg.SecureCookies, true)
	}
	c.JSON(http.StatusOK, gin.H{"device_id": id})
}

func (h *Handler) bindScan(c *gin.Context) (scanRequest, bool) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": err.Error()})
		return req, false
	}
	if req.DeviceID == "" {
		req.DeviceID, _ = c.Cookie(deviceCookie)
	}
	return req, true
}

// verify checks a QR token and that its phase matches the action. The
// session id always comes from the token.
func (h *Handler) verify(raw string, want window.Phase) (token.Claims, error) {
	claims, err := h.codec.Verify(raw)
	switch {
	case errors.Is(err, token.ErrExpired):
		metrics.TokenVerifications.WithLabelValues("expired").Inc()
		return claims, err
	case err != nil:
		metrics.TokenVerifications.WithLabelValues("invalid").Inc()
		return claims, err
	case claims.Phase != want:
		metrics.TokenVerifications.WithLabelValues("invalid").Inc()
		return claims, token.ErrInvalid
	}
	metrics.TokenVerifications.WithLabelValues("ok").Inc()
	return claims, nil
}

func (h *Handler) checkIn(c *gin.Context) {
	req, ok := h.bindScan(c)
	if !ok {
		return
	}
	claims, err := h.verify(req.Token, window.PhaseStart)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := h.svc.CheckIn(c.Request.Context(), attendance.CheckInRequest{
		SessionID: claims.SessionID,
		Code:      req.Code,
		DeviceID:  req.DeviceID,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"ok":         true,
		"session_id": res.SessionID,
		"status":     res.Status,
		"at":         res.At,
		"message":    message(attendance.ReasonOK),
	})
}

func (h *Handler) checkOut(c *gin.Context) {
	req, ok := h.bindScan(c)
	if !ok {
		return
	}
	claims, err := h.verify(req.Token, window.PhaseEnd)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := h.svc.CheckOut(c.Request.Context(), attendance.CheckOutRequest{
		SessionID: claims.SessionID,
		Code:      req.Code,
		DeviceID:  req.DeviceID,
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"ok":             true,
		"session_id":     res.SessionID,
		"status":         res.Status,
		"checkin_status": res.CheckinStatus,
		"at":             res.At,
		"message":        message(attendance.ReasonOK),
	})
}

func (h *Handler) codeStatus(c *gin.Context) {
	p, err := h.svc.CodeStatus(c.Request.Context(), c.Param("id"), c.Query("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

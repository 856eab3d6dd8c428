package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/CostinMirescu/sala-alternativa/internal/window"
)

var (
	// ErrExpired means the signature verified but the token is older than the max age.
	ErrExpired = errors.New("token expired")
	// ErrInvalid covers bad signatures, malformed payloads and unknown phases.
	ErrInvalid = errors.New("token invalid")
)

// clockSkew tolerates tokens issued slightly in the future by another instance.
const clockSkew = 5 * time.Second

// Claims is the QR token payload. It carries no participant identity.
// IssuedMs keeps the issue time at millisecond precision; the registered
// iat claim is truncated to whole seconds.
type Claims struct {
	SessionID string       `json:"sid"`
	Phase     window.Phase `json:"phase"`
	IssuedMs  int64        `json:"iat_ms"`
	jwt.RegisteredClaims
}

// Codec issues and verifies phase-bound session tokens.
type Codec struct {
	key    []byte
	issuer string
	maxAge time.Duration
	now    func() time.Time
}

// New creates a codec. A nil now uses time.Now.
func New(key, issuer string, maxAge time.Duration, now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}
	if maxAge <= 0 {
		maxAge = 90 * time.Second
	}
	return &Codec{key: []byte(key), issuer: issuer, maxAge: maxAge, now: now}
}

// MaxAge returns how long an issued token stays valid.
func (c *Codec) MaxAge() time.Duration { return c.maxAge }

// Issue signs a token for the session and phase.
func (c *Codec) Issue(sessionID string, phase window.Phase) (string, time.Time, error) {
	if sessionID == "" || !phase.Valid() {
		return "", time.Time{}, ErrInvalid
	}
	issued := c.now()
	claims := Claims{
		SessionID: sessionID,
		Phase:     phase,
		IssuedMs:  issued.UnixMilli(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Issuer:   c.issuer,
			IssuedAt: jwt.NewNumericDate(issued),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, issued.Add(c.maxAge), nil
}

// Verify checks the signature and age of raw and returns its claims.
func (c *Codec) Verify(raw string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return c.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(c.now))
	if err != nil {
		return Claims{}, ErrInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalid
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return Claims{}, ErrInvalid
	}
	if claims.SessionID == "" || !claims.Phase.Valid() || claims.IssuedMs <= 0 {
		return Claims{}, ErrInvalid
	}

	now := c.now()
	issued := time.UnixMilli(claims.IssuedMs)
	if issued.After(now.Add(clockSkew)) {
		return Claims{}, ErrInvalid
	}
	if now.Truncate(time.Millisecond).Sub(issued) > c.maxAge {
		return *claims, ErrExpired
	}
	return *claims, nil
}

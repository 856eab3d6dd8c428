package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any teacher token that fails validation.
var ErrInvalidToken = errors.New("invalid token")

// AccessToken is a signed teacher token and its expiry.
type AccessToken struct {
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Claims represents the teacher JWT payload.
type Claims struct {
	TeacherID string `json:"tid"`
	ClassID   string `json:"class"`
	jwt.RegisteredClaims
}

// Identity is the authenticated teacher passed explicitly to handlers.
type Identity struct {
	TeacherID string
	ClassID   string
}

// Issue signs an access token for the teacher.
func Issue(id Identity, issuer, key string, ttl time.Duration, now time.Time) (AccessToken, error) {
	if id.TeacherID == "" || id.ClassID == "" {
		return AccessToken{}, errors.New("teacher and class are required")
	}
	exp := now.Add(ttl)
	claims := Claims{
		TeacherID: id.TeacherID,
		ClassID:   id.ClassID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.TeacherID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, ExpiresAt: exp}, nil
}

// Parse validates a token and returns the identity it carries.
func Parse(tokenStr, key, issuer string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if issuer != "" && claims.Issuer != issuer {
		return Identity{}, ErrInvalidToken
	}
	if claims.TeacherID == "" || claims.ClassID == "" {
		return Identity{}, ErrInvalidToken
	}
	return Identity{TeacherID: claims.TeacherID, ClassID: claims.ClassID}, nil
}

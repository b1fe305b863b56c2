package jwt

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"account_service/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// NewToken mints a signed access token carrying the account's identity and
// privilege flag.
func NewToken(account models.Account, ttl time.Duration, secret string) (string, error) {
	claims := jwt.MapClaims{
		"sub":      account.ID,
		"name":     account.Name,
		"sysadmin": account.Sysadmin,
		"exp":      time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	return token.SignedString([]byte(secret))
}

// ParseActor validates an access token and extracts the calling actor.
func ParseActor(tokenStr, secret string) (models.Actor, error) {
	const op = "jwt.ParseActor"

	claims := jwt.MapClaims{}

	parsedToken, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%s: unexpected signing method", op)
		}
		return []byte(secret), nil
	})
	if err != nil {
		return models.Actor{}, fmt.Errorf("%s: failed to parse token: %w", op, err)
	}

	if !parsedToken.Valid {
		return models.Actor{}, fmt.Errorf("%s: invalid token", op)
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return models.Actor{}, fmt.Errorf("%s: missing sub claim", op)
	}

	name, _ := claims["name"].(string)
	sysadmin, _ := claims["sysadmin"].(bool)

	return models.Actor{
		ID:       sub,
		Name:     name,
		Sysadmin: sysadmin,
	}, nil
}

// NewRefreshToken returns an opaque random token. Only its bcrypt hash is
// persisted.
func NewRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("jwt.NewRefreshToken: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

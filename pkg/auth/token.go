// Package auth verifies the HS256 bearer tokens issued by the storefront's
// identity provider. Minting lives here too for tests and local tooling.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/pastrypickup-backend/pkg/config"
)

const clockSkew = 30 * time.Second

var (
	ErrMissingSecret = errors.New("jwt secret is required")
	ErrInvalidClaims = errors.New("token claims invalid")
)

// MintAccessToken signs a token for id that expires after the configured TTL.
func MintAccessToken(cfg config.JWTConfig, now time.Time, id Identity) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", ErrMissingSecret
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	case cfg.ExpirationMinutes <= 0:
		return "", errors.New("jwt expiration minutes must be positive")
	case id.UserID == uuid.Nil:
		return "", fmt.Errorf("%w: user id is required", ErrInvalidClaims)
	case !id.Role.IsValid():
		return "", fmt.Errorf("%w: role %q", ErrInvalidClaims, id.Role)
	}
	body := claims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, body).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken checks signature, issuer and expiry (with a small clock
// skew allowance) and returns the identity the token carries.
func ParseAccessToken(cfg config.JWTConfig, raw string) (Identity, error) {
	if cfg.Secret == "" {
		return Identity{}, ErrMissingSecret
	}
	parsed := &claims{}
	_, err := jwt.ParseWithClaims(raw, parsed,
		func(*jwt.Token) (any, error) { return []byte(cfg.Secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return Identity{}, err
	}
	userID, err := uuid.Parse(parsed.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: subject %q", ErrInvalidClaims, parsed.Subject)
	}
	if !parsed.Role.IsValid() {
		return Identity{}, fmt.Errorf("%w: role %q", ErrInvalidClaims, parsed.Role)
	}
	return Identity{UserID: userID, Role: parsed.Role}, nil
}

// Package auth guards the admin console: a shared secret checked with bcrypt
// is exchanged for a short-lived HS256 token.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/rkrmr33/bukber/internal/apperrors"
	"github.com/rkrmr33/bukber/internal/models"
)

const (
	tokenIssuer  = "bukber"
	adminSubject = "admin"
)

// Admin issues and checks admin tokens
type Admin struct {
	secretHash []byte
	key        []byte
	ttl        time.Duration
	now        func() time.Time
}

// AdminConfig configures an Admin. Exactly one of Secret or SecretHash is needed.
type AdminConfig struct {
	Secret     string
	SecretHash string
	TokenKey   string
	TokenTTL   time.Duration
	Now        func() time.Time
}

// NewAdmin builds an Admin, hashing Secret when no precomputed hash is given
func NewAdmin(cfg AdminConfig) (*Admin, error) {
	if strings.TrimSpace(cfg.TokenKey) == "" {
		return nil, errors.New("admin token key is required")
	}
	if cfg.TokenTTL <= 0 {
		return nil, errors.New("admin token ttl must be positive")
	}

	var hash []byte
	switch {
	case cfg.SecretHash != "":
		hash = []byte(strings.TrimSpace(cfg.SecretHash))
		if _, err := bcrypt.Cost(hash); err != nil {
			return nil, fmt.Errorf("admin secret hash: %w", err)
		}
	case cfg.Secret != "":
		var err error
		hash, err = HashSecret(cfg.Secret)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.New("admin secret or secret hash is required")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Admin{
		secretHash: hash,
		key:        []byte(cfg.TokenKey),
		ttl:        cfg.TokenTTL,
		now:        now,
	}, nil
}

// HashSecret returns the bcrypt hash of secret
func HashSecret(secret string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash admin secret: %w", err)
	}
	return hash, nil
}

// Login exchanges the admin secret for a signed token
func (a *Admin) Login(secret string) (models.AdminToken, error) {
	if bcrypt.CompareHashAndPassword(a.secretHash, []byte(secret)) != nil {
		return models.AdminToken{}, apperrors.Auth(apperrors.ReasonInvalidSecret, "invalid admin secret")
	}

	issuedAt := a.now()
	expiresAt := issuedAt.Add(a.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   adminSubject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.key)
	if err != nil {
		return models.AdminToken{}, fmt.Errorf("sign admin token: %w", err)
	}
	return models.AdminToken{Token: signed, ExpiresAt: expiresAt.UTC()}, nil
}

// Authenticate checks that token was issued by Login and has not expired
func (a *Admin) Authenticate(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperrors.Auth(apperrors.ReasonInvalidToken, "admin token is required")
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithSubject(adminSubject),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return apperrors.Auth(apperrors.ReasonInvalidToken, "admin token expired")
		}
		return apperrors.Auth(apperrors.ReasonInvalidToken, "invalid admin token")
	}
	return nil
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

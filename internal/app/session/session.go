package session

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt"

	"pixrecon/internal/app/model"
)

var ErrInvalidToken = errors.New("invalid token")

type Creator interface {
	// Create session for operator and return signed token
	Create(ctx context.Context, o *model.Operator) (string, error)
}

type Reader interface {
	// Read operator from signed token
	Read(ctx context.Context, token string) (*model.Operator, error)
}

type Manager interface {
	Creator
	Reader
}

type Claims struct {
	jwt.StandardClaims
	Operator string `json:"operator"`
}

type Option func(*JWT)

func WithTokenLifetime(d time.Duration) Option {
	return func(j *JWT) {
		j.lifetime = d
	}
}

func WithIssuer(issuer string) Option {
	return func(j *JWT) {
		j.issuer = issuer
	}
}

func WithClock(now func() time.Time) Option {
	return func(j *JWT) {
		j.now = now
	}
}

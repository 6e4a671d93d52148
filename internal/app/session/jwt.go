package session

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"

	"pixrecon/internal/app/logger"
	"pixrecon/internal/app/model"
)

var _ Manager = (*JWT)(nil)

// JWT issues and verifies HS256 operator tokens, no server side state is kept
type JWT struct {
	issuer   string
	key      []byte
	lifetime time.Duration
	now      func() time.Time
	parser   *jwt.Parser
}

func (j *JWT) LoggerComponent() string {
	return "Session.JWT"
}

func NewJWT(secretKey string, opts ...Option) *JWT {
	j := &JWT{
		issuer:   "pixrecon",
		key:      []byte(secretKey),
		lifetime: time.Hour,
		now:      time.Now,
		// time based claims are checked against j.now below
		parser: &jwt.Parser{
			ValidMethods:         []string{jwt.SigningMethodHS256.Alg()},
			SkipClaimsValidation: true,
		},
	}

	for _, opt := range opts {
		opt(j)
	}

	return j
}

// Create method of session.Creator implementation
func (j *JWT) Create(ctx context.Context, o *model.Operator) (string, error) {
	l := logger.Get(ctx, j)

	now := j.now()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Id:        uuid.New().String(),
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(j.lifetime).Unix(),
			Issuer:    j.issuer,
		},
		Operator: o.Name,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.key)
	if err != nil {
		l.Error().Err(err).Send()

		return "", fmt.Errorf("jwt encode: %w", err)
	}

	l.Debug().Str("operator", o.Name).Str("token_id", claims.Id).Msg("Token issued")

	return token, nil
}

// Read method of session.Reader implementation
func (j *JWT) Read(ctx context.Context, token string) (*model.Operator, error) {
	l := logger.Get(ctx, j)

	c := &Claims{}
	if _, err := j.parser.ParseWithClaims(token, c, func(*jwt.Token) (interface{}, error) {
		return j.key, nil
	}); err != nil {
		l.Debug().Err(err).Msg("ParseWithClaims failed")

		return nil, ErrInvalidToken
	}

	now := j.now().Unix()
	switch {
	case !c.VerifyExpiresAt(now, true):
		l.Debug().Str("token_id", c.Id).Str("operator", c.Operator).Msg("Token expired")
		return nil, ErrInvalidToken
	case !c.VerifyIssuer(j.issuer, true):
		l.Debug().Str("issuer", c.Issuer).Msg("Foreign issuer")
		return nil, ErrInvalidToken
	case c.Operator == "":
		l.Debug().Msg("Token without operator")
		return nil, ErrInvalidToken
	}

	return &model.Operator{Name: c.Operator}, nil
}

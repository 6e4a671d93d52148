package session

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/require"

	"pixrecon/internal/app/model"
)

func sign(t *testing.T, c *Claims, key string) string {
	t.Helper()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(key))
	require.NoError(t, err)

	return token
}

func TestRoundTrip(t *testing.T) {
	j := NewJWT("secret")
	ctx := context.Background()

	token, err := j.Create(ctx, &model.Operator{Name: "ops"})
	require.NoError(t, err)

	o, err := j.Read(ctx, token)
	require.NoError(t, err)
	require.Equal(t, "ops", o.Name)
}

func TestTokenExpires(t *testing.T) {
	now := time.Now()
	j := NewJWT("secret", WithTokenLifetime(time.Hour), WithClock(func() time.Time { return now }))

	token, err := j.Create(context.Background(), &model.Operator{Name: "ops"})
	require.NoError(t, err)

	now = now.Add(59 * time.Minute)
	_, err = j.Read(context.Background(), token)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = j.Read(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestRejectedTokens(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
		StandardClaims: jwt.StandardClaims{ExpiresAt: exp, Issuer: "pixrecon"},
		Operator:       "ops",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	foreign, err := NewJWT("other").Create(context.Background(), &model.Operator{Name: "ops"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-token"},
		{name: "foreign key", token: foreign},
		{name: "unsigned", token: none},
		{
			name:  "no expiry",
			token: sign(t, &Claims{StandardClaims: jwt.StandardClaims{Issuer: "pixrecon"}, Operator: "ops"}, "secret"),
		},
		{
			name:  "other issuer",
			token: sign(t, &Claims{StandardClaims: jwt.StandardClaims{ExpiresAt: exp, Issuer: "elsewhere"}, Operator: "ops"}, "secret"),
		},
		{
			name:  "no operator",
			token: sign(t, &Claims{StandardClaims: jwt.StandardClaims{ExpiresAt: exp, Issuer: "pixrecon"}}, "secret"),
		},
	}

	j := NewJWT("secret")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := j.Read(context.Background(), tt.token)
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

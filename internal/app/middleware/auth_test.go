package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"pixrecon/internal/app/handler"
	"pixrecon/internal/app/logger"
	"pixrecon/internal/app/model"
	"pixrecon/internal/app/session"
)

func TestAuth(t *testing.T) {
	sm := session.NewJWT("secret")
	token, err := sm.Create(context.Background(), &model.Operator{Name: "ops"})
	require.NoError(t, err)

	var seen *model.Operator
	h := Log(logger.Nop())(Auth(sm)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, err = handler.ReadContextOperator(r.Context())
		require.NoError(t, err)
		w.WriteHeader(http.StatusNoContent)
	})))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "no header", header: "", want: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer abc", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + token, want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/transactions", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			require.Equal(t, tt.want, rec.Code)
			require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
		})
	}

	require.NotNil(t, seen)
	require.Equal(t, "ops", seen.Name)
}

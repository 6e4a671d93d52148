package middleware

import (
	"context"
	"net/http"
	"strings"

	"pixrecon/internal/app/apperr"
	"pixrecon/internal/app/handler"
	"pixrecon/internal/app/logger"
	"pixrecon/internal/app/session"
)

// Auth requires a bearer token issued to an operator
func Auth(jwt session.Reader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := logger.Get(r.Context(), "Middleware.Auth")

			reqHeader := r.Header.Get("Authorization")
			token := strings.TrimPrefix(reqHeader, "Bearer ")
			if token == "" || token == reqHeader {
				log.Debug().Msg("Missing Authorization header")
				handler.WriteError(w, apperr.ErrUnauthorized, http.StatusUnauthorized)
				return
			}

			o, err := jwt.Read(r.Context(), token)
			if err != nil {
				log.Debug().Err(err).Msg("Token validation failed")
				handler.WriteError(w, apperr.ErrUnauthorized, http.StatusUnauthorized)
				return
			}

			log.Debug().Str("operator", o.Name).Msg("Operator authorized")
			r = r.WithContext(context.WithValue(r.Context(), handler.ContextKeyOperator{}, o))
			next.ServeHTTP(w, r)
		})
	}
}

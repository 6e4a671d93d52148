package middleware

import (
	"net/http"
	"time"

	"github.com/justinas/alice"
	"github.com/rs/zerolog/hlog"

	"pixrecon/internal/app/logger"
)

// Log injects request scoped logger with request id and writes access log
func Log(l logger.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return alice.New(
			hlog.NewHandler(l.Logger),
			hlog.RequestIDHandler("req_id", "X-Request-Id"),
			hlog.RemoteAddrHandler("ip"),
			hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
				hlog.FromRequest(r).Info().
					Str("method", r.Method).
					Stringer("url", r.URL).
					Int("status", status).
					Int("size", size).
					Dur("duration", duration).
					Msg("Request")
			}),
		).Then(next)
	}
}

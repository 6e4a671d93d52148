package handler

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"pixrecon/internal/app/apperr"
	"pixrecon/internal/app/logger"
	"pixrecon/internal/app/queue"
)

// maxWebhookBody bounds a single inbound notification
const maxWebhookBody = 1 << 20

// WebhookHandler relays gateway notifications to a queue verbatim. The body is
// not interpreted here, classification happens on the consumer side.
type WebhookHandler struct {
	queue queue.Producer
	token string
	name  string
}

// NewWebhookHandler relays to q. When token is set, requests must carry it in
// the asaas-access-token header.
func NewWebhookHandler(name string, q queue.Producer, token string) *WebhookHandler {
	return &WebhookHandler{
		queue: q,
		token: token,
		name:  name,
	}
}

func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	l := logger.Get(ctx, "Handler.Webhook").With().Str("queue", h.name).Logger()

	if h.token != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get("asaas-access-token")), []byte(h.token)) != 1 {
		l.Warn().Msg("Webhook with wrong access token")
		WriteError(w, apperr.ErrUnauthorized, http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	_ = r.Body.Close()
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			WriteError(w, err, http.StatusRequestEntityTooLarge)
			return
		}
		l.Debug().Err(err).Msg("Body read failed")
		WriteError(w, err, http.StatusBadRequest)
		return
	}

	if len(body) == 0 {
		WriteError(w, errors.New("empty body"), http.StatusBadRequest)
		return
	}

	// a failed enqueue must reach the gateway so that it re-delivers
	if err := h.queue.Enqueue(ctx, body); err != nil {
		l.Error().Err(err).Msg("Enqueue failed")
		WriteError(w, err, http.StatusInternalServerError)
		return
	}

	l.Debug().Int("size", len(body)).Msg("Webhook enqueued")

	WriteResponse(w, struct {
		Received bool `json:"received"`
	}{true}, http.StatusOK)
}

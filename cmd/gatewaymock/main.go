// Command gatewaymock serves the subset of the Asaas PIX API used by pixrecon and,
// when a relay address is given, posts settlement webhooks back after a delay.
package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/xid"
	"github.com/spf13/pflag"

	"pixrecon/internal/app/logger"
	mw "pixrecon/internal/app/middleware"
	"pixrecon/pkg/asaas"
)

type mock struct {
	relay     string
	token     string
	delay     time.Duration
	failRatio float64
	errRatio  float64
	client    *http.Client
	logger    logger.Logger
}

func main() {
	m := &mock{client: &http.Client{Timeout: 10 * time.Second}}

	listen := pflag.StringP("listen-addr", "a", "127.0.0.1:8090", "Address to listen on")
	pflag.StringVar(&m.relay, "relay", "", "Relay base URL to post webhooks to, empty disables webhooks")
	pflag.StringVar(&m.token, "webhook-token", "", "Value of the asaas-access-token header on webhooks")
	pflag.DurationVar(&m.delay, "delay", 2*time.Second, "Delay before a webhook is sent")
	pflag.Float64Var(&m.failRatio, "fail-ratio", 0.2, "Share of operations settled as failed")
	pflag.Float64Var(&m.errRatio, "error-ratio", 0, "Share of API calls answered with 503")
	pflag.Parse()

	m.logger = logger.New(true, true)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := m.runServer(ctx, *listen); err != nil {
		m.logger.Fatal().Err(err).Msg("Server run failed")
	}
}

func (m *mock) runServer(ctx context.Context, listenAddr string) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(mw.Log(m.logger))
	r.Post("/pix/qrCodes", m.createQRCode)
	r.Post("/pix/transfers", m.createTransfer)

	srv := &http.Server{
		Addr:    listenAddr,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		m.logger.Info().Str("listen_address", listenAddr).Msg("Listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctxShutdown); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	m.logger.Info().Msg("Server exited properly")

	return nil
}

func (m *mock) createQRCode(w http.ResponseWriter, r *http.Request) {
	if m.flaky(w) {
		return
	}

	in := &asaas.CreateQRCodeRequest{}
	if err := json.NewDecoder(r.Body).Decode(in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	id := "pay_" + xid.New().String()
	payload := "00020101021226800014br.gov.bcb.pix2558mock/" + id
	writeJSON(w, &asaas.CreateQRCodeResponse{
		ID:           id,
		EncodedImage: base64.StdEncoding.EncodeToString([]byte(payload)),
		Payload:      payload,
	})

	event := "PAYMENT_RECEIVED"
	if rand.Float64() < m.failRatio {
		event = "PAYMENT_CANCELLED"
	}
	m.notify("/webhook/cashin", &asaas.Webhook{
		Event:   event,
		Payment: &asaas.WebhookObject{ID: id, Value: in.Value},
	})
}

func (m *mock) createTransfer(w http.ResponseWriter, r *http.Request) {
	if m.flaky(w) {
		return
	}

	in := &asaas.CreateTransferRequest{}
	if err := json.NewDecoder(r.Body).Decode(in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.PixKey == "" {
		http.Error(w, `{"errors":[{"code":"invalid_pixAddressKey"}]}`, http.StatusBadRequest)
		return
	}

	id := "tr_" + xid.New().String()
	writeJSON(w, &asaas.CreateTransferResponse{ID: id, Status: "PENDING"})

	event := "TRANSFER_COMPLETED"
	if rand.Float64() < m.failRatio {
		event = "TRANSFER_FAILED"
	}
	// an intermediate neutral notification precedes settlement
	m.notify("/webhook/cashout", &asaas.Webhook{
		Event:    "TRANSFER_IN_BANK_PROCESSING",
		Transfer: &asaas.WebhookObject{ID: id, Value: in.Value, Status: "BANK_PROCESSING"},
	})
	m.notify("/webhook/cashout", &asaas.Webhook{
		Event:    event,
		Transfer: &asaas.WebhookObject{ID: id, Value: in.Value},
	})
}

func (m *mock) flaky(w http.ResponseWriter) bool {
	if rand.Float64() < m.errRatio {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return true
	}
	return false
}

// notify posts the webhook in the background after the configured delay
func (m *mock) notify(path string, hook *asaas.Webhook) {
	if m.relay == "" {
		return
	}

	body, err := json.Marshal(hook)
	if err != nil {
		m.logger.Error().Err(err).Send()
		return
	}

	l := m.logger.With().Str("event", hook.Event).Str("path", path).Logger()

	time.AfterFunc(m.delay, func() {
		req, err := http.NewRequest(http.MethodPost, m.relay+path, bytes.NewReader(body))
		if err != nil {
			l.Error().Err(err).Msg("Webhook request build failed")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if m.token != "" {
			req.Header.Set("asaas-access-token", m.token)
		}

		res, err := m.client.Do(req)
		if err != nil {
			l.Error().Err(err).Msg("Webhook delivery failed")
			return
		}
		_ = res.Body.Close()

		l.Info().Int("http_status", res.StatusCode).Msg("Webhook delivered")
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

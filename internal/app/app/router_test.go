package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pixrecon/internal/app/config"
	"pixrecon/internal/app/logger"
	"pixrecon/internal/app/model"
)

func testConfig() config.Config {
	c := config.New()
	c.Store.Driver = config.StoreMemory
	c.Queue.Driver = config.QueueMemory
	c.Queue.Visibility = time.Second
	c.Gateway.Mode = config.GatewayFake
	c.Gateway.WebhookToken = "hook"
	c.Auth.SecretKey = "secret"
	c.Auth.OperatorKey = "operator-key"
	c.Auth.TokenLifetime = time.Hour
	c.Reconciler = config.ReconcilerConfig{
		BatchSize:        10,
		PollTimeout:      20 * time.Millisecond,
		WorkerCount:      2,
		OperationTimeout: time.Second,
	}
	return c
}

func do(t *testing.T, h http.Handler, method, path, token, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDepositSettlesThroughWebhook(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(), logger.Nop(), nil)
	require.NoError(t, err)
	defer a.Close()

	h := a.Router()

	rec := do(t, h, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/pix/qrcode", "", `{"value":"10.00"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/auth/token", "", `{"key":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/auth/token", "", `{"key":"operator-key"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	auth := struct {
		Token string `json:"token"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))
	require.NotEmpty(t, auth.Token)

	rec = do(t, h, http.MethodPost, "/api/pix/qrcode", auth.Token, `{"value":"10.00","description":"top up"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := &model.Transaction{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), created))
	require.Equal(t, model.StatusPending, created.Status)

	hook := `{"event":"PAYMENT_RECEIVED","payment":{"id":"` + created.GatewayReference + `"}}`
	rec = do(t, h, http.MethodPost, "/webhook/cashin", "", hook)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	for i := 0; i < 2; i++ {
		rec = do(t, h, http.MethodPost, "/webhook/cashin", "", hook, "asaas-access-token", "hook")
		require.Equal(t, http.StatusOK, rec.Code)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	deposits := a.Reconcilers()[0]
	go func() { done <- deposits.Run(runCtx) }()

	require.Eventually(t, func() bool {
		tx, err := a.Store().Read(ctx, created.ID)
		return err == nil && tx.Status == model.StatusConfirmed
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	rec = do(t, h, http.MethodGet, "/api/pix/qrcodes", auth.Token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := struct {
		Transactions []*model.Transaction `json:"transactions"`
		Summary      model.Summary        `json:"summary"`
	}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Transactions, 1)
	require.NotNil(t, list.Transactions[0].ProcessedAt)
	require.Equal(t, 1, list.Summary.Count[model.StatusConfirmed])
}

func TestCashoutValidation(t *testing.T) {
	a, err := New(context.Background(), testConfig(), logger.Nop(), nil)
	require.NoError(t, err)
	defer a.Close()

	h := a.Router()
	token, err := a.session.Create(context.Background(), &model.Operator{Name: "ops"})
	require.NoError(t, err)

	rec := do(t, h, http.MethodPost, "/api/pix/cashout", token, `{"value":"5","pixKey":"k","pixKeyType":"IBAN"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/pix/cashout", token, `{"value":"-5","pixKey":"k","pixKeyType":"EVP"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/pix/cashout", token, `{"value":"10.555","pixKey":"k","pixKeyType":"EVP"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/pix/qrcode", token, `{"value":0.001}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/pix/cashout", token, `{"value":"5","pixKey":"k","pixKeyType":"EVP"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/transactions", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"kind":"withdrawal"`)
}

package asaas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("gateway unavailable")

// Gateway is implemented by Service and Fake.
type Gateway interface {
	CreateQRCode(ctx context.Context, in *CreateQRCodeRequest, out *CreateQRCodeResponse) error
	CreateTransfer(ctx context.Context, in *CreateTransferRequest, out *CreateTransferResponse) error
}

var _ Gateway = (*Service)(nil)

type Service struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     zerolog.Logger
}

func (s *Service) LoggerComponent() string {
	return "Asaas.Service"
}

func NewService(apiURL, apiKey string, opts ...ServiceOption) (*Service, error) {
	if apiURL == "" {
		return nil, errors.New("asaas: empty api url")
	}

	c := &Service{
		apiURL:     apiURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.Logger,
	}

	for _, o := range opts {
		o(c)
	}

	c.logger = c.logger.With().Str("component", c.LoggerComponent()).Logger()

	if c.breaker == nil {
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "asaas",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Circuit breaker state changed")
			},
		})
	}

	return c, nil
}

type ServiceOption func(*Service)

func WithLogger(l zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

func WithHTTPClient(c *http.Client) ServiceOption {
	return func(s *Service) {
		s.httpClient = c
	}
}

func WithBreaker(settings gobreaker.Settings) ServiceOption {
	return func(s *Service) {
		s.breaker = gobreaker.NewCircuitBreaker(settings)
	}
}

// CreateQRCode creates a static PIX charge and returns its QR code.
func (s *Service) CreateQRCode(ctx context.Context, in *CreateQRCodeRequest, out *CreateQRCodeResponse) error {
	l := s.logger.With().
		Str("method", "CreateQRCode").
		Str("value", in.Value.String()).
		Logger()
	ctx = l.WithContext(ctx)

	if err := s.call(ctx, http.MethodPost, "/pix/qrCodes", in, out); err != nil {
		return err
	}

	l.Debug().Str("charge_id", out.ID).Msg("CreateQRCode success")

	return nil
}

// CreateTransfer requests a PIX transfer to the given key.
func (s *Service) CreateTransfer(ctx context.Context, in *CreateTransferRequest, out *CreateTransferResponse) error {
	l := s.logger.With().
		Str("method", "CreateTransfer").
		Str("value", in.Value.String()).
		Str("pix_key_type", in.PixKeyType).
		Logger()
	ctx = l.WithContext(ctx)

	if err := s.call(ctx, http.MethodPost, "/pix/transfers", in, out); err != nil {
		return err
	}

	l.Debug().Str("transfer_id", out.ID).Str("transfer_status", out.Status).Msg("CreateTransfer success")

	return nil
}

type RemoteError struct {
	ResponseBody string
	StatusCode   int
}

func NewRemoteError(responseBody string, statusCode int) *RemoteError {
	return &RemoteError{ResponseBody: responseBody, StatusCode: statusCode}
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("asaas: status %d: %s", e.StatusCode, e.ResponseBody)
}

// Temporary reports whether retrying the same request may succeed.
func (e *RemoteError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// call goes through the breaker, client side rejections do not trip it
func (s *Service) call(ctx context.Context, method, endpoint string, in interface{}, out interface{}) error {
	var clientErr error

	_, err := s.breaker.Execute(func() (interface{}, error) {
		err := s.genericCall(ctx, method, endpoint, in, out)
		var re *RemoteError
		if errors.As(err, &re) && !re.Temporary() {
			clientErr = err
			return nil, nil
		}
		return nil, err
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return err
	}

	return clientErr
}

func (s *Service) genericCall(ctx context.Context, method, endpoint string, in interface{}, out interface{}) error {
	l := zerolog.Ctx(ctx).With().Str("http_method", method).Str("endpoint", endpoint).Logger()
	ctx = l.WithContext(ctx)

	res, err := s.request(ctx, method, endpoint, in)
	if err != nil {
		l.Error().Err(err).
			Msg("Service request failed")
		return fmt.Errorf("request: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode >= 400 {
		resBody := readString(res.Body)
		l.Error().
			Int("http_status", res.StatusCode).
			Str("http_body", resBody).
			Msg("Service responded with error")
		return NewRemoteError(resBody, res.StatusCode)
	}

	if err := readJSON(res.Body, out); err != nil {
		return fmt.Errorf("body read: %w", err)
	}

	return nil
}

func (s *Service) request(
	ctx context.Context,
	method string,
	endpoint string,
	bodyParams interface{},
) (*http.Response, error) {
	fullURL := s.apiURL + endpoint
	l := zerolog.Ctx(ctx).With().
		Str("url", fullURL).
		Logger()

	rawJSON, err := json.Marshal(bodyParams)
	if err != nil {
		return nil, fmt.Errorf("json encode: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bytes.NewReader(rawJSON))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}

	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	req.Header.Add("access_token", s.apiKey)

	l.Debug().Str("request_body", string(rawJSON)).Msg("Doing request")

	res, err := s.httpClient.Do(req)
	if err != nil {
		l.Error().Err(err).
			Msg("Call failed")
		return nil, fmt.Errorf("do request: %w", err)
	}

	return res, nil
}

package pix

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"pixrecon/internal/app/apperr"
	"pixrecon/internal/app/logger"
	"pixrecon/internal/app/model"
	"pixrecon/internal/app/storage"
	"pixrecon/pkg/asaas"
)

// Service opens deposits and withdrawals at the gateway and records them as
// PENDING. Settlement happens later through webhooks.
type Service struct {
	gateway asaas.Gateway
	store   storage.TransactionRepository
	now     func() time.Time
}

func (s *Service) LoggerComponent() string {
	return "PIX.Service"
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(gateway asaas.Gateway, store storage.TransactionRepository, opts ...Option) *Service {
	s := &Service{
		gateway: gateway,
		store:   store,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

type DepositRequest struct {
	Value       decimal.Decimal
	Description string
}

type WithdrawalRequest struct {
	Value       decimal.Decimal
	PixKey      string
	PixKeyType  model.PixKeyType
	Description string
}

// CreateDeposit issues a PIX QR code charge and stores the pending deposit.
func (s *Service) CreateDeposit(ctx context.Context, in DepositRequest) (*model.Transaction, error) {
	l := logger.Get(ctx, s)

	if err := validateValue(in.Value); err != nil {
		return nil, err
	}

	out := &asaas.CreateQRCodeResponse{}
	err := s.gateway.CreateQRCode(ctx, &asaas.CreateQRCodeRequest{
		Value:       in.Value,
		Description: in.Description,
	}, out)
	if err != nil {
		l.Error().Err(err).Msg("Gateway charge failed")
		return nil, gatewayError(err)
	}

	t, err := s.store.Create(ctx, &model.Transaction{
		ID:               uuid.New(),
		Kind:             model.KindDeposit,
		Value:            in.Value,
		GatewayReference: out.ID,
		Status:           model.StatusPending,
		Description:      in.Description,
		CreatedAt:        s.now().UTC(),
		Deposit: &model.DepositDetails{
			QRCodeImage: out.EncodedImage,
			QRCodeText:  out.Payload,
		},
	})
	if err != nil {
		l.Error().Err(err).Str("gateway_reference", out.ID).Msg("Deposit record failed")
		return nil, fmt.Errorf("deposit create: %w", err)
	}

	l.Info().
		Str("transaction_id", t.ID.String()).
		Str("gateway_reference", t.GatewayReference).
		Str("value", t.Value.String()).
		Msg("Deposit opened")

	return t, nil
}

// CreateWithdrawal requests a PIX transfer and stores the pending withdrawal.
func (s *Service) CreateWithdrawal(ctx context.Context, in WithdrawalRequest) (*model.Transaction, error) {
	l := logger.Get(ctx, s)

	if err := validateValue(in.Value); err != nil {
		return nil, err
	}

	out := &asaas.CreateTransferResponse{}
	err := s.gateway.CreateTransfer(ctx, &asaas.CreateTransferRequest{
		Value:       in.Value,
		PixKey:      in.PixKey,
		PixKeyType:  string(in.PixKeyType),
		Description: in.Description,
	}, out)
	if err != nil {
		l.Error().Err(err).Msg("Gateway transfer failed")
		return nil, gatewayError(err)
	}

	t, err := s.store.Create(ctx, &model.Transaction{
		ID:               uuid.New(),
		Kind:             model.KindWithdrawal,
		Value:            in.Value,
		GatewayReference: out.ID,
		Status:           model.StatusPending,
		Description:      in.Description,
		CreatedAt:        s.now().UTC(),
		Withdrawal: &model.WithdrawalDetails{
			PixKey:     in.PixKey,
			PixKeyType: in.PixKeyType,
		},
	})
	if err != nil {
		l.Error().Err(err).Str("gateway_reference", out.ID).Msg("Withdrawal record failed")
		return nil, fmt.Errorf("withdrawal create: %w", err)
	}

	l.Info().
		Str("transaction_id", t.ID.String()).
		Str("gateway_reference", t.GatewayReference).
		Str("value", t.Value.String()).
		Msg("Withdrawal requested")

	return t, nil
}

// List transactions of kind with their per status summary, all kinds when kind is empty.
func (s *Service) List(ctx context.Context, kind model.Kind) ([]*model.Transaction, model.Summary, error) {
	tt, err := s.store.List(ctx, kind)
	if err != nil {
		return nil, model.Summary{}, fmt.Errorf("list: %w", err)
	}
	return tt, model.Summarize(tt), nil
}

// validateValue accepts positive amounts in cents, the stored precision
func validateValue(v decimal.Decimal) error {
	if !v.IsPositive() {
		return fmt.Errorf("%w: value must be positive", apperr.ErrInvalidInput)
	}
	if !v.Equal(v.Truncate(2)) {
		return fmt.Errorf("%w: value has more than 2 decimal places", apperr.ErrInvalidInput)
	}
	return nil
}

func gatewayError(err error) error {
	var re *asaas.RemoteError
	switch {
	case errors.Is(err, asaas.ErrUnavailable):
		return fmt.Errorf("%w: %v", apperr.ErrGatewayUnavailable, err)
	case errors.As(err, &re) && !re.Temporary():
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	return fmt.Errorf("%w: %v", apperr.ErrGatewayUnavailable, err)
}

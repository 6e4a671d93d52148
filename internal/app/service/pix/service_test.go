package pix

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pixrecon/internal/app/apperr"
	"pixrecon/internal/app/model"
	"pixrecon/internal/app/storage/memory"
	"pixrecon/pkg/asaas"
)

func newService(t *testing.T) (*Service, *asaas.Fake, *memory.TransactionRepository) {
	t.Helper()

	gw := asaas.NewFake()
	store := memory.NewTransactionRepository()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	return New(gw, store, WithClock(clock)), gw, store
}

func TestCreateDeposit(t *testing.T) {
	s, gw, store := newService(t)
	ctx := context.Background()

	tx, err := s.CreateDeposit(ctx, DepositRequest{Value: decimal.RequireFromString("10.50"), Description: "top up"})
	require.NoError(t, err)
	require.Equal(t, model.KindDeposit, tx.Kind)
	require.Equal(t, model.StatusPending, tx.Status)
	require.Nil(t, tx.ProcessedAt)
	require.NotEmpty(t, tx.GatewayReference)
	require.NotNil(t, tx.Deposit)
	require.NotEmpty(t, tx.Deposit.QRCodeText)
	require.Equal(t, 1, gw.Charges())

	stored, err := store.ReadByGatewayReference(ctx, tx.GatewayReference)
	require.NoError(t, err)
	require.Equal(t, tx.ID, stored.ID)
}

func TestCreateWithdrawal(t *testing.T) {
	s, gw, _ := newService(t)

	tx, err := s.CreateWithdrawal(context.Background(), WithdrawalRequest{
		Value:      decimal.NewFromInt(30),
		PixKey:     "someone@example.com",
		PixKeyType: model.PixKeyTypeEmail,
	})
	require.NoError(t, err)
	require.Equal(t, model.KindWithdrawal, tx.Kind)
	require.Equal(t, model.StatusPending, tx.Status)
	require.Equal(t, "someone@example.com", tx.Withdrawal.PixKey)
	require.Equal(t, 1, gw.Transfers())
}

func TestCreateRejectsNonPositiveValue(t *testing.T) {
	s, gw, _ := newService(t)

	_, err := s.CreateDeposit(context.Background(), DepositRequest{Value: decimal.Zero})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
	require.Equal(t, 0, gw.Charges())
}

func TestCreateRejectsSubCentValue(t *testing.T) {
	s, gw, store := newService(t)
	ctx := context.Background()

	for _, v := range []string{"10.555", "0.001", "-0.5"} {
		_, err := s.CreateDeposit(ctx, DepositRequest{Value: decimal.RequireFromString(v)})
		require.ErrorIs(t, err, apperr.ErrInvalidInput, v)

		_, err = s.CreateWithdrawal(ctx, WithdrawalRequest{Value: decimal.RequireFromString(v), PixKey: "k", PixKeyType: model.PixKeyTypeEVP})
		require.ErrorIs(t, err, apperr.ErrInvalidInput, v)
	}
	require.Equal(t, 0, gw.Charges())
	require.Equal(t, 0, gw.Transfers())

	// trailing zeros are still whole cents
	tx, err := s.CreateDeposit(ctx, DepositRequest{Value: decimal.RequireFromString("10.5000")})
	require.NoError(t, err)
	require.True(t, decimal.RequireFromString("10.50").Equal(tx.Value))

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestGatewayFailureRecordsNothing(t *testing.T) {
	s, gw, store := newService(t)
	gw.FailWith(asaas.ErrUnavailable)

	_, err := s.CreateWithdrawal(context.Background(), WithdrawalRequest{Value: decimal.NewFromInt(1), PixKey: "k", PixKeyType: model.PixKeyTypeEVP})
	require.ErrorIs(t, err, apperr.ErrGatewayUnavailable)

	all, err := store.List(context.Background(), "")
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestGatewayRejectionIsInvalidInput(t *testing.T) {
	s, gw, _ := newService(t)
	gw.FailWith(asaas.NewRemoteError("invalid key", 400))

	_, err := s.CreateWithdrawal(context.Background(), WithdrawalRequest{Value: decimal.NewFromInt(1), PixKey: "k", PixKeyType: model.PixKeyTypeEVP})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestListWithSummary(t *testing.T) {
	s, _, store := newService(t)
	ctx := context.Background()

	d1, err := s.CreateDeposit(ctx, DepositRequest{Value: decimal.NewFromInt(10)})
	require.NoError(t, err)
	_, err = s.CreateDeposit(ctx, DepositRequest{Value: decimal.NewFromInt(5)})
	require.NoError(t, err)
	_, err = s.CreateWithdrawal(ctx, WithdrawalRequest{Value: decimal.NewFromInt(7), PixKey: "k", PixKeyType: model.PixKeyTypeEVP})
	require.NoError(t, err)

	require.NoError(t, store.Transition(ctx, d1.ID, model.StatusPending, model.StatusConfirmed, time.Now()))

	deposits, sum, err := s.List(ctx, model.KindDeposit)
	require.NoError(t, err)
	require.Len(t, deposits, 2)
	require.Equal(t, 1, sum.Count[model.StatusConfirmed])
	require.Equal(t, 1, sum.Count[model.StatusPending])
	require.True(t, decimal.NewFromInt(10).Equal(sum.Amount[model.StatusConfirmed]))

	all, sum, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, 2, sum.Count[model.StatusPending])
	require.Equal(t, model.KindWithdrawal, all[0].Kind)
}

package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pixrecon/internal/app/apperr"
	"pixrecon/internal/app/model"
)

func newTransaction(ref string, kind model.Kind) *model.Transaction {
	return &model.Transaction{
		ID:               uuid.New(),
		Kind:             kind,
		Value:            decimal.NewFromInt(5),
		GatewayReference: ref,
		Status:           model.StatusPending,
		CreatedAt:        time.Now(),
	}
}

func TestCreateConflict(t *testing.T) {
	ctx := context.Background()
	r := NewTransactionRepository()

	_, err := r.Create(ctx, newTransaction("g1", model.KindDeposit))
	require.NoError(t, err)

	_, err = r.Create(ctx, newTransaction("g1", model.KindWithdrawal))
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestTransitionIsConditional(t *testing.T) {
	ctx := context.Background()
	r := NewTransactionRepository()
	m := newTransaction("g1", model.KindDeposit)
	_, err := r.Create(ctx, m)
	require.NoError(t, err)

	at := time.Now()
	require.NoError(t, r.Transition(ctx, m.ID, model.StatusPending, model.StatusConfirmed, at))
	require.ErrorIs(t, r.Transition(ctx, m.ID, model.StatusPending, model.StatusFailed, at.Add(time.Hour)), apperr.ErrPreconditionFailed)
	require.ErrorIs(t, r.Transition(ctx, uuid.New(), model.StatusPending, model.StatusFailed, at), apperr.ErrNotFound)

	got, err := r.Read(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusConfirmed, got.Status)
	require.True(t, at.Equal(*got.ProcessedAt))
}

func TestConcurrentTransitionsApplyOnce(t *testing.T) {
	ctx := context.Background()
	r := NewTransactionRepository()
	m := newTransaction("g1", model.KindDeposit)
	_, err := r.Create(ctx, m)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := model.StatusConfirmed
			if i%2 == 0 {
				next = model.StatusFailed
			}
			if err := r.Transition(ctx, m.ID, model.StatusPending, next, time.Now()); err == nil {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, applied)
}

func TestReadReturnsCopies(t *testing.T) {
	ctx := context.Background()
	r := NewTransactionRepository()
	m := newTransaction("g1", model.KindDeposit)
	_, err := r.Create(ctx, m)
	require.NoError(t, err)

	got, err := r.ReadByGatewayReference(ctx, "g1")
	require.NoError(t, err)
	got.Status = model.StatusFailed

	again, err := r.Read(ctx, m.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, again.Status)
}

func TestListAndDeleteByKind(t *testing.T) {
	ctx := context.Background()
	r := NewTransactionRepository()

	old := newTransaction("d1", model.KindDeposit)
	old.CreatedAt = time.Now().Add(-time.Hour)
	for _, m := range []*model.Transaction{old, newTransaction("d2", model.KindDeposit), newTransaction("w1", model.KindWithdrawal)} {
		_, err := r.Create(ctx, m)
		require.NoError(t, err)
	}

	deposits, err := r.List(ctx, model.KindDeposit)
	require.NoError(t, err)
	require.Len(t, deposits, 2)
	require.Equal(t, "d2", deposits[0].GatewayReference)

	n, err := r.DeleteAll(ctx, model.KindDeposit)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	all, err := r.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)

	_, err = r.ReadByGatewayReference(ctx, "d1")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

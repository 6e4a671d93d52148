package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pixrecon/internal/app/apperr"
	"pixrecon/internal/app/model"
	"pixrecon/internal/app/storage"
)

// storage.TransactionRepository interface implementation
var _ storage.TransactionRepository = (*TransactionRepository)(nil)

type TransactionRepository struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]*model.Transaction
	byRef map[string]uuid.UUID
}

func (r *TransactionRepository) LoggerComponent() string {
	return "MemoryTransactionRepository"
}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{
		byID:  make(map[uuid.UUID]*model.Transaction),
		byRef: make(map[string]uuid.UUID),
	}
}

// Create implementation of interface storage.TransactionRepository
func (r *TransactionRepository) Create(_ context.Context, m *model.Transaction) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[m.ID]; ok {
		return nil, apperr.ErrConflict
	}
	if _, ok := r.byRef[m.GatewayReference]; ok {
		return nil, apperr.ErrConflict
	}

	r.byID[m.ID] = m.Clone()
	r.byRef[m.GatewayReference] = m.ID

	return m, nil
}

// Read implementation of interface storage.TransactionRepository
func (r *TransactionRepository) Read(_ context.Context, id uuid.UUID) (*model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.byID[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}

	return m.Clone(), nil
}

// ReadByGatewayReference implementation of interface storage.TransactionRepository
func (r *TransactionRepository) ReadByGatewayReference(_ context.Context, ref string) (*model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byRef[ref]
	if !ok {
		return nil, apperr.ErrNotFound
	}

	return r.byID[id].Clone(), nil
}

// Transition implementation of interface storage.TransactionRepository
func (r *TransactionRepository) Transition(_ context.Context, id uuid.UUID, expected, next model.Status, processedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byID[id]
	if !ok {
		return apperr.ErrNotFound
	}
	if m.Status != expected {
		return apperr.ErrPreconditionFailed
	}

	m.Status = next
	m.ProcessedAt = &processedAt

	return nil
}

// List implementation of interface storage.TransactionRepository
func (r *TransactionRepository) List(_ context.Context, kind model.Kind) ([]*model.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res := make([]*model.Transaction, 0, len(r.byID))
	for _, m := range r.byID {
		if kind != "" && m.Kind != kind {
			continue
		}
		res = append(res, m.Clone())
	}

	sort.Slice(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})

	return res, nil
}

// DeleteAll implementation of interface storage.TransactionRepository
func (r *TransactionRepository) DeleteAll(_ context.Context, kind model.Kind) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for id, m := range r.byID {
		if kind != "" && m.Kind != kind {
			continue
		}
		delete(r.byRef, m.GatewayReference)
		delete(r.byID, id)
		n++
	}

	return n, nil
}

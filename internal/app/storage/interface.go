//go:generate mockgen -source=./interface.go -destination=./mock/storage.go -package=storagemock
package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pixrecon/internal/app/model"
)

type TransactionRepository interface {
	// Create a new model.Transaction, apperr.ErrConflict on duplicated gateway reference
	Create(ctx context.Context, m *model.Transaction) (*model.Transaction, error)
	// Read instance of model.Transaction
	Read(ctx context.Context, id uuid.UUID) (*model.Transaction, error)
	// ReadByGatewayReference instance of model.Transaction, apperr.ErrNotFound when unknown
	ReadByGatewayReference(ctx context.Context, ref string) (*model.Transaction, error)
	// Transition sets status and processedAt only if the stored status equals expected.
	// Returns apperr.ErrPreconditionFailed when it does not, apperr.ErrNotFound when
	// the record is missing.
	Transition(ctx context.Context, id uuid.UUID, expected, next model.Status, processedAt time.Time) error
	// List transactions of kind, all kinds when kind is empty, newest first
	List(ctx context.Context, kind model.Kind) ([]*model.Transaction, error)
	// DeleteAll transactions of kind, returns number of deleted records
	DeleteAll(ctx context.Context, kind model.Kind) (int, error)
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	pg "github.com/lib/pq"

	"pixrecon/internal/app/apperr"
	"pixrecon/internal/app/logger"
	"pixrecon/internal/app/model"
	"pixrecon/internal/app/storage"
)

// storage.TransactionRepository interface implementation
var _ storage.TransactionRepository = (*TransactionRepository)(nil)

const selectColumns = `
	id, kind, value, gateway_reference, status, description, created_at, processed_at,
	qr_code_image, qr_code_text, pix_key, pix_key_type`

type TransactionRepository struct {
	db *sql.DB
}

func (r *TransactionRepository) LoggerComponent() string {
	return "TransactionRepository"
}

func NewTransactionRepository(db *sql.DB) (*TransactionRepository, error) {
	s := &TransactionRepository{
		db: db,
	}
	return s, nil
}

// Create implementation of interface storage.TransactionRepository
func (r *TransactionRepository) Create(ctx context.Context, m *model.Transaction) (*model.Transaction, error) {
	l := logger.Get(ctx, r).With().
		Str("method", "Create").
		Str("gateway_reference", m.GatewayReference).
		Logger()
	l.Debug().Msg("Creating transaction")

	var qrImage, qrText, pixKey, pixKeyType sql.NullString
	if m.Deposit != nil {
		qrImage = sql.NullString{String: m.Deposit.QRCodeImage, Valid: true}
		qrText = sql.NullString{String: m.Deposit.QRCodeText, Valid: true}
	}
	if m.Withdrawal != nil {
		pixKey = sql.NullString{String: m.Withdrawal.PixKey, Valid: true}
		pixKeyType = sql.NullString{String: string(m.Withdrawal.PixKeyType), Valid: true}
	}

	const SQL = `
		INSERT INTO transactions (
			id, kind, value, gateway_reference, status, description, created_at,
			qr_code_image, qr_code_text, pix_key, pix_key_type
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`
	_, err := r.db.ExecContext(ctx, SQL,
		m.ID, string(m.Kind), m.Value, m.GatewayReference, string(m.Status), m.Description, m.CreatedAt,
		qrImage, qrText, pixKey, pixKeyType,
	)
	if err != nil {
		if pgErr, ok := err.(*pg.Error); ok {
			if pgerrcode.IsIntegrityConstraintViolation(string(pgErr.Code)) {
				return nil, apperr.ErrConflict
			}
		}

		return nil, fmt.Errorf("insert: %w", err)
	}

	return m, nil
}

// Read implementation of interface storage.TransactionRepository
func (r *TransactionRepository) Read(ctx context.Context, id uuid.UUID) (*model.Transaction, error) {
	SQL := `SELECT` + selectColumns + ` FROM transactions WHERE id=$1`

	m, err := scanTransaction(r.db.QueryRowContext(ctx, SQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("select: %w", err)
	}

	return m, nil
}

// ReadByGatewayReference implementation of interface storage.TransactionRepository
func (r *TransactionRepository) ReadByGatewayReference(ctx context.Context, ref string) (*model.Transaction, error) {
	SQL := `SELECT` + selectColumns + ` FROM transactions WHERE gateway_reference=$1`

	m, err := scanTransaction(r.db.QueryRowContext(ctx, SQL, ref))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("select: %w", err)
	}

	return m, nil
}

// Transition implementation of interface storage.TransactionRepository
func (r *TransactionRepository) Transition(ctx context.Context, id uuid.UUID, expected, next model.Status, processedAt time.Time) error {
	l := logger.Get(ctx, r).With().
		Str("method", "Transition").
		Str("transaction_id", id.String()).
		Logger()

	const SQL = `
		UPDATE transactions
		SET status=$1, processed_at=$2
		WHERE id=$3 AND status=$4
`
	res, err := r.db.ExecContext(ctx, SQL, string(next), processedAt, id, string(expected))
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	// nothing updated: tell a missing record from a lost race
	var current string
	const sqlStatus = `SELECT status FROM transactions WHERE id=$1`
	if err := r.db.QueryRowContext(ctx, sqlStatus, id).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrNotFound
		}
		return fmt.Errorf("select: %w", err)
	}

	l.Debug().Str("status", current).Msg("Precondition failed")

	return apperr.ErrPreconditionFailed
}

// List implementation of interface storage.TransactionRepository
func (r *TransactionRepository) List(ctx context.Context, kind model.Kind) ([]*model.Transaction, error) {
	l := logger.Ctx(ctx).With().Str("method", "List").Logger()

	SQL := `SELECT` + selectColumns + ` FROM transactions WHERE ($1 = '' OR kind = $1) ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, SQL, string(kind))
	if err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	res := make([]*model.Transaction, 0)

	for rows.Next() {
		m, err := scanTransaction(rows)
		if err != nil {
			l.Debug().Err(err).Send()
			return nil, fmt.Errorf("scan: %w", err)
		}
		res = append(res, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return res, nil
}

// DeleteAll implementation of interface storage.TransactionRepository
func (r *TransactionRepository) DeleteAll(ctx context.Context, kind model.Kind) (int, error) {
	const SQL = `DELETE FROM transactions WHERE ($1 = '' OR kind = $1)`

	res, err := r.db.ExecContext(ctx, SQL, string(kind))
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	return int(n), nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row scanner) (*model.Transaction, error) {
	var (
		m                  model.Transaction
		kind, status       string
		processedAt        sql.NullTime
		qrImage, qrText    sql.NullString
		pixKey, pixKeyType sql.NullString
	)

	err := row.Scan(
		&m.ID, &kind, &m.Value, &m.GatewayReference, &status, &m.Description, &m.CreatedAt, &processedAt,
		&qrImage, &qrText, &pixKey, &pixKeyType,
	)
	if err != nil {
		return nil, err
	}

	m.Kind = model.Kind(kind)
	m.Status = model.Status(status)
	if processedAt.Valid {
		t := processedAt.Time
		m.ProcessedAt = &t
	}
	if qrImage.Valid || qrText.Valid {
		m.Deposit = &model.DepositDetails{QRCodeImage: qrImage.String, QRCodeText: qrText.String}
	}
	if pixKey.Valid || pixKeyType.Valid {
		m.Withdrawal = &model.WithdrawalDetails{PixKey: pixKey.String, PixKeyType: model.PixKeyType(pixKeyType.String)}
	}

	return &m, nil
}

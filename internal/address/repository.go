package address

import (
	"context"
	"database/sql"
	"errors"

	"monarchmail-be/internal/logger"

	"github.com/georgysavva/scany/sqlscan"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Repository interface {
	ListByOwner(ctx context.Context, owner string) ([]SavedAddress, error)
	GetByID(ctx context.Context, id uuid.UUID, owner string) (*SavedAddress, error)
	Create(ctx context.Context, a *SavedAddress) error
	IncrementUsage(ctx context.Context, id uuid.UUID, owner string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const savedAddressColumns = `
	id, owner_email, label, recipient_name,
	COALESCE(company, '') AS company,
	street1, COALESCE(street2, '') AS street2,
	city, state, zip,
	COALESCE(phone, '') AS phone,
	times_used, created_at`

// ListByOwner returns the owner's address book, most used first.
func (r *repository) ListByOwner(ctx context.Context, owner string) ([]SavedAddress, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "SavedAddress"),
		zap.String("method", "ListByOwner"),
		zap.String("owner", owner),
	)

	q := `SELECT ` + savedAddressColumns + `
		FROM saved_addresses
		WHERE owner_email = $1
		ORDER BY times_used DESC, created_at DESC`

	var res []SavedAddress
	if err := sqlscan.Select(ctx, r.db, &res, q, owner); err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, err
	}
	return res, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID, owner string) (*SavedAddress, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "SavedAddress"),
		zap.String("method", "GetByID"),
		zap.String("address_id", id.String()),
	)

	q := `SELECT ` + savedAddressColumns + `
		FROM saved_addresses
		WHERE id = $1 AND owner_email = $2
		LIMIT 1`

	var a SavedAddress
	err := sqlscan.Get(ctx, r.db, &a, q, id, owner)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSavedAddressNotFound
	}
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, err
	}
	return &a, nil
}

func (r *repository) Create(ctx context.Context, a *SavedAddress) error {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "SavedAddress"),
		zap.String("method", "Create"),
		zap.String("address_id", a.ID.String()),
	)

	const q = `
		INSERT INTO saved_addresses (
			id, owner_email, label, recipient_name, company,
			street1, street2, city, state, zip, phone, times_used
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0)
		RETURNING created_at
	`

	err := r.db.QueryRowContext(ctx, q,
		a.ID, a.OwnerEmail, a.Label, a.RecipientName, a.Company,
		a.Street1, a.Street2, a.City, a.State, a.Zip, a.Phone,
	).Scan(&a.CreatedAt)
	if err != nil {
		log.Error("insert failed", zap.Error(err))
		return err
	}
	return nil
}

func (r *repository) IncrementUsage(ctx context.Context, id uuid.UUID, owner string) error {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "SavedAddress"),
		zap.String("method", "IncrementUsage"),
		zap.String("address_id", id.String()),
	)

	const q = `
		UPDATE saved_addresses
		SET times_used = times_used + 1
		WHERE id = $1 AND owner_email = $2
	`

	res, err := r.db.ExecContext(ctx, q, id, owner)
	if err != nil {
		log.Error("update failed", zap.Error(err))
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSavedAddressNotFound
	}
	return nil
}

package order

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
	Insert(ctx context.Context, row *DraftRow) (uuid.UUID, error)
	Update(ctx context.Context, row *DraftRow) error
	GetByID(ctx context.Context, id uuid.UUID) (*DraftRow, error)
	MarkSubmitted(ctx context.Context, id uuid.UUID) (changed bool, err error)
	ListByOwner(ctx context.Context, owner, kind string) ([]DraftRow, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, row *DraftRow) (uuid.UUID, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "OrderDraft"),
		zap.String("method", "Insert"),
		zap.String("kind", row.Kind),
		zap.String("reference", row.Reference),
	)

	const q = `
		INSERT INTO order_drafts (kind, owner_email, status, step, payload, reference)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	var id uuid.UUID
	err := r.db.QueryRowContext(ctx, q,
		row.Kind, row.OwnerEmail, row.Status, row.Step, []byte(row.Payload), row.Reference,
	).Scan(&id)
	if err != nil {
		log.Error("insert failed", zap.Error(err))
		return uuid.Nil, err
	}

	log.Info("order draft created", zap.String("draft_id", id.String()))
	return id, nil
}

func (r *repository) Update(ctx context.Context, row *DraftRow) error {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "OrderDraft"),
		zap.String("method", "Update"),
		zap.String("draft_id", row.ID.String()),
	)

	const q = `
		UPDATE order_drafts
		SET status = $2, step = $3, payload = $4, updated_at = now()
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, q, row.ID, row.Status, row.Step, []byte(row.Payload))
	if err != nil {
		log.Error("update failed", zap.Error(err))
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		log.Error("rows affected failed", zap.Error(err))
		return err
	}
	if n == 0 {
		log.Warn("order draft not found")
		return ErrDraftNotFound
	}
	return nil
}

const draftColumns = `id, kind, owner_email, status, step, payload, reference, created_at, updated_at`

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*DraftRow, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "OrderDraft"),
		zap.String("method", "GetByID"),
		zap.String("draft_id", id.String()),
	)

	var row DraftRow
	err := sqlscan.Get(ctx, r.db, &row, `SELECT `+draftColumns+` FROM order_drafts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, err
	}
	return &row, nil
}

// MarkSubmitted reports changed=false when the draft was already submitted.
func (r *repository) MarkSubmitted(ctx context.Context, id uuid.UUID) (bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "OrderDraft"),
		zap.String("method", "MarkSubmitted"),
		zap.String("draft_id", id.String()),
	)

	const q = `
		UPDATE order_drafts
		SET status = 'submitted', updated_at = now()
		WHERE id = $1 AND status <> 'submitted'
	`

	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		log.Error("update failed", zap.Error(err))
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *repository) ListByOwner(ctx context.Context, owner, kind string) ([]DraftRow, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "OrderDraft"),
		zap.String("method", "ListByOwner"),
		zap.String("owner", owner),
		zap.String("kind", kind),
	)

	var rows []DraftRow
	err := sqlscan.Select(ctx, r.db, &rows,
		`SELECT `+draftColumns+` FROM order_drafts
		WHERE owner_email = $1 AND kind = $2
		ORDER BY created_at DESC`,
		owner, kind,
	)
	if err != nil {
		log.Error("query failed", zap.Error(err))
		return nil, err
	}
	return rows, nil
}

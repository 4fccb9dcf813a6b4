package shipping

import (
	"context"
	"database/sql"
	"errors"

	"monarchmail-be/internal/logger"

	"github.com/georgysavva/scany/sqlscan"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type LabelRepository interface {
	Create(ctx context.Context, l *Label) error
	GetByDraft(ctx context.Context, draftID uuid.UUID) (*Label, error)
	ListByOwner(ctx context.Context, owner string) ([]Label, error)
}

type labelRepository struct {
	db *sql.DB
}

func NewLabelRepository(db *sql.DB) LabelRepository {
	return &labelRepository{db: db}
}

func (r *labelRepository) Create(ctx context.Context, l *Label) error {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Label"),
		zap.String("method", "Create"),
		zap.String("draft_id", l.DraftID.String()),
	)

	const q = `
		INSERT INTO shipping_labels (
			owner_email, draft_id, rate_id, carrier, service, amount, tracking_number, label_url
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, q,
		l.OwnerEmail, l.DraftID, l.RateID, l.Carrier, l.Service, l.Amount, l.TrackingNumber, l.LabelURL,
	).Scan(&l.ID, &l.CreatedAt)
	if err != nil {
		log.Error("insert failed", zap.Error(err))
		return err
	}

	log.Info("label stored", zap.String("tracking_number", l.TrackingNumber))
	return nil
}

const labelColumns = `id, owner_email, draft_id, rate_id, carrier, service, amount, tracking_number, label_url, created_at`

func (r *labelRepository) GetByDraft(ctx context.Context, draftID uuid.UUID) (*Label, error) {
	var l Label
	err := sqlscan.Get(ctx, r.db, &l, `SELECT `+labelColumns+` FROM shipping_labels WHERE draft_id = $1`, draftID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLabelNotFound
	}
	if err != nil {
		logger.FromCtx(ctx).Error("get label by draft failed",
			zap.String("draft_id", draftID.String()),
			zap.Error(err),
		)
		return nil, err
	}
	return &l, nil
}

func (r *labelRepository) ListByOwner(ctx context.Context, owner string) ([]Label, error) {
	var labels []Label
	err := sqlscan.Select(ctx, r.db, &labels,
		`SELECT `+labelColumns+` FROM shipping_labels WHERE owner_email = $1 ORDER BY created_at DESC`,
		owner,
	)
	if err != nil {
		logger.FromCtx(ctx).Error("list labels failed",
			zap.String("owner", owner),
			zap.Error(err),
		)
		return nil, err
	}
	return labels, nil
}

package contact

import (
	"context"
	"database/sql"

	"monarchmail-be/internal/logger"

	"go.uber.org/zap"
)

type Repository interface {
	Create(ctx context.Context, in *Inquiry) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, in *Inquiry) error {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Contact"),
		zap.String("method", "Create"),
	)

	const q = `
		INSERT INTO contact_inquiries (name, email, phone, service_interest, message)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, q,
		in.Name, in.Email, in.Phone, in.ServiceInterest, in.Message,
	).Scan(&in.ID, &in.CreatedAt)
	if err != nil {
		log.Error("insert inquiry failed", zap.Error(err))
		return err
	}
	return nil
}

package payment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"monarchmail-be/internal/logger"

	"go.uber.org/zap"
)

// Repository records every webhook event so redelivery is a no-op. An event
// whose processing failed can be claimed again by the next delivery.
type Repository interface {
	SaveWebhookEvent(
		ctx context.Context,
		eventID string,
		eventType string,
		reference string,
		payload json.RawMessage,
	) (webhookID int64, isDuplicate bool, err error)

	MarkWebhookProcessed(ctx context.Context, webhookID int64) error
	MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) SaveWebhookEvent(
	ctx context.Context,
	eventID string,
	eventType string,
	reference string,
	payload json.RawMessage,
) (int64, bool, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("repo", "Payment"),
		zap.String("method", "SaveWebhookEvent"),
		zap.String("event_id", eventID),
	)

	const q = `
	INSERT INTO processed_webhook_events (
		provider,
		event_id,
		event_type,
		reference,
		payload
	)
	VALUES ('stripe', $1, $2, $3, $4)
	ON CONFLICT (provider, event_id)
	DO UPDATE SET process_error = NULL
	WHERE processed_webhook_events.processed_at IS NULL
	  AND processed_webhook_events.process_error IS NOT NULL
	RETURNING id;
	`

	var id int64
	err := r.db.QueryRowContext(ctx, q, eventID, eventType, reference, []byte(payload)).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Info("duplicate webhook event")
			return 0, true, nil
		}
		log.Error("insert failed", zap.Error(err))
		return 0, false, err
	}

	return id, false, nil
}

func (r *repository) MarkWebhookProcessed(ctx context.Context, webhookID int64) error {
	const q = `
	UPDATE processed_webhook_events
	SET processed_at = now()
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID)
	return err
}

func (r *repository) MarkWebhookFailed(ctx context.Context, webhookID int64, reason string) error {
	const q = `
	UPDATE processed_webhook_events
	SET process_error = $2
	WHERE id = $1;
	`

	_, err := r.db.ExecContext(ctx, q, webhookID, reason)
	return err
}

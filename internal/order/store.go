package order

import (
	"context"
	"encoding/json"
	"fmt"

	"monarchmail-be/internal/logger"
	"monarchmail-be/internal/metrics"
	"monarchmail-be/internal/utils"
	"monarchmail-be/internal/wizard"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Store is the wizard's persistence adapter. A draft without an id is
// created; one with an id is only ever updated. Nothing is retried here.
type Store struct {
	repo Repository
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

func (s *Store) Save(ctx context.Context, d wizard.Draft, rec wizard.Record) (id uuid.UUID, err error) {
	log := logger.FromCtx(ctx).With(
		zap.String("service", "OrderStore"),
		zap.String("method", "Save"),
		zap.String("kind", rec.Kind()),
		zap.String("draft_id", d.RecordID.String()),
	)

	timer := metrics.StartTimer()
	defer func() { metrics.ObserveAdapter("record_store", timer, err) }()

	payload, err := json.Marshal(rec)
	if err != nil {
		log.Error("failed to marshal record", zap.Error(err))
		return uuid.Nil, fmt.Errorf("marshal %s: %w", rec.Kind(), err)
	}

	row := &DraftRow{
		ID:         d.RecordID,
		Kind:       rec.Kind(),
		OwnerEmail: d.Owner,
		Status:     string(d.Status),
		Step:       d.Step,
		Payload:    payload,
	}

	if d.RecordID == uuid.Nil {
		row.Reference = utils.GenerateReferenceNumber(prefixFor(row.Kind))
		return s.repo.Insert(ctx, row)
	}

	if err := s.repo.Update(ctx, row); err != nil {
		return uuid.Nil, err
	}
	return d.RecordID, nil
}

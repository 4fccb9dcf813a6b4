package account

import (
	"context"
	"time"

	"monarchmail-be/internal/address"
	"monarchmail-be/internal/logger"
	"monarchmail-be/internal/order"
	"monarchmail-be/internal/shipment"
	"monarchmail-be/internal/shipping"
	"monarchmail-be/internal/wizard"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type ShipmentSummary struct {
	ID        uuid.UUID       `json:"id"`
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	From      address.Address `json:"from"`
	To        address.Address `json:"to"`
	Rate      *shipping.Rate  `json:"rate,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type Summary struct {
	SavedAddresses []address.SavedAddress `json:"saved_addresses"`
	Labels         []shipping.Label       `json:"labels"`
	Shipments      []ShipmentSummary      `json:"shipments"`
}

type Service interface {
	Summary(ctx context.Context, owner string) (*Summary, error)
}

type service struct {
	addresses address.Repository
	labels    shipping.LabelRepository
	drafts    order.Repository
}

func NewService(addresses address.Repository, labels shipping.LabelRepository, drafts order.Repository) Service {
	return &service{addresses: addresses, labels: labels, drafts: drafts}
}

// Summary loads the three lists concurrently. The first failure cancels the
// others.
func (s *service) Summary(ctx context.Context, owner string) (*Summary, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("service", "Account"),
		zap.String("method", "Summary"),
		zap.String("owner", owner),
	)

	out := &Summary{
		SavedAddresses: []address.SavedAddress{},
		Labels:         []shipping.Label{},
		Shipments:      []ShipmentSummary{},
	}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		list, err := s.addresses.ListByOwner(ctx, owner)
		if err == nil && list != nil {
			out.SavedAddresses = list
		}
		return err
	})
	g.Go(func() error {
		list, err := s.labels.ListByOwner(ctx, owner)
		if err == nil && list != nil {
			out.Labels = list
		}
		return err
	})
	g.Go(func() error {
		rows, err := s.drafts.ListByOwner(ctx, owner, shipment.RecordKind)
		if err != nil {
			return err
		}
		out.Shipments = summarize(ctx, rows)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("failed loading account summary", zap.Error(err))
		return nil, err
	}
	return out, nil
}

// summarize lists shipments still awaiting a label. Submitted drafts are
// reported through Labels.
func summarize(ctx context.Context, rows []order.DraftRow) []ShipmentSummary {
	out := make([]ShipmentSummary, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		if row.Status == string(wizard.StatusSubmitted) {
			continue
		}
		var ps shipment.PendingShipment
		if err := row.Decode(&ps); err != nil {
			logger.FromCtx(ctx).Warn("skipping undecodable shipment",
				zap.String("draft_id", row.ID.String()),
				zap.Error(err),
			)
			continue
		}
		out = append(out, ShipmentSummary{
			ID:        row.ID,
			Reference: row.Reference,
			Status:    row.Status,
			From:      ps.From,
			To:        ps.To,
			Rate:      ps.Rate,
			CreatedAt: row.CreatedAt,
		})
	}
	return out
}

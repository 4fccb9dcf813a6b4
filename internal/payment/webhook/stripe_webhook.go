package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"monarchmail-be/internal/apperr"
	"monarchmail-be/internal/logger"
	"monarchmail-be/internal/mailbox"
	"monarchmail-be/internal/metrics"
	"monarchmail-be/internal/notify"
	"monarchmail-be/internal/order"
	"monarchmail-be/internal/payment"
	"monarchmail-be/internal/shipment"
	"monarchmail-be/internal/shipping"
	"monarchmail-be/internal/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/zap"
)

const maxPayloadBytes = 1 << 20

var errUnprocessable = errors.New("unprocessable webhook event")

// Event is the subset of a Stripe event envelope the handler reads.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object CheckoutSession `json:"object"`
	} `json:"data"`
}

type CheckoutSession struct {
	ID                string `json:"id"`
	ClientReferenceID string `json:"client_reference_id"`
	CustomerEmail     string `json:"customer_email"`
	CustomerDetails   struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Metadata      map[string]string `json:"metadata"`
}

func (s CheckoutSession) draftRef() string {
	return utils.FirstNonEmpty(s.Metadata["draft_id"], s.ClientReferenceID)
}

func (s CheckoutSession) amount() decimal.Decimal {
	return decimal.New(s.AmountTotal, -2)
}

func (s CheckoutSession) paid() bool {
	return stripe.CheckoutSessionPaymentStatus(s.PaymentStatus) == stripe.CheckoutSessionPaymentStatusPaid
}

// draftKinds maps the checkout metadata type to the draft kind it pays for.
var draftKinds = map[string]string{
	payment.TypeShippingLabel: shipment.RecordKind,
	payment.TypeMailboxRental: mailbox.RecordKind,
}

type Handler struct {
	events     payment.Repository
	drafts     order.Repository
	labels     shipping.LabelRepository
	purchaser  shipping.LabelPurchaser
	notifier   notify.Sender
	secret     string
	adminEmail string
}

func NewWebhookHandler(
	events payment.Repository,
	drafts order.Repository,
	labels shipping.LabelRepository,
	purchaser shipping.LabelPurchaser,
	notifier notify.Sender,
	secret string,
	adminEmail string,
) *Handler {
	return &Handler{
		events:     events,
		drafts:     drafts,
		labels:     labels,
		purchaser:  purchaser,
		notifier:   notifier,
		secret:     secret,
		adminEmail: adminEmail,
	}
}

// PaymentWebhookHandler acknowledges duplicates and unknown event types with
// 200. A failed event answers 500 so the processor redelivers it.
func (h *Handler) PaymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromCtx(ctx).With(
		zap.String("service", "Webhook"),
		zap.String("method", "PaymentWebhookHandler"),
	)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		utils.WriteJSONError(w, "failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if err := verifySignature(body, r.Header.Get("Stripe-Signature"), h.secret); err != nil {
		log.Warn("rejected webhook", zap.Error(err))
		metrics.WebhookEventsTotal.WithLabelValues("rejected").Inc()
		utils.WriteJSONError(w, "invalid signature", http.StatusBadRequest)
		return
	}

	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil || ev.ID == "" {
		utils.WriteJSONError(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	log = log.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))

	webhookID, dup, err := h.events.SaveWebhookEvent(ctx, ev.ID, ev.Type, ev.Data.Object.draftRef(), body)
	if err != nil {
		utils.WriteJSONError(w, "failed to record event", http.StatusInternalServerError)
		return
	}
	if dup {
		metrics.WebhookEventsTotal.WithLabelValues("duplicate").Inc()
		utils.WriteJSON(w, http.StatusOK, map[string]any{"received": true, "duplicate": true})
		return
	}

	switch stripe.EventType(ev.Type) {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		err = h.completeCheckout(ctx, ev.Data.Object)
	}

	if err != nil {
		log.Error("webhook processing failed", zap.Error(err))
		if markErr := h.events.MarkWebhookFailed(ctx, webhookID, err.Error()); markErr != nil {
			log.Error("failed to mark webhook failed", zap.Error(markErr))
		}
		metrics.WebhookEventsTotal.WithLabelValues("failed").Inc()

		if errors.Is(err, errUnprocessable) || errors.Is(err, apperr.ErrNotFound) {
			utils.WriteJSON(w, http.StatusOK, map[string]any{"received": true})
			return
		}
		utils.WriteJSONError(w, "failed to process event", http.StatusInternalServerError)
		return
	}

	if err := h.events.MarkWebhookProcessed(ctx, webhookID); err != nil {
		log.Error("failed to mark webhook processed", zap.Error(err))
	}
	metrics.WebhookEventsTotal.WithLabelValues("processed").Inc()
	utils.WriteJSON(w, http.StatusOK, map[string]any{"received": true})
}

func (h *Handler) completeCheckout(ctx context.Context, s CheckoutSession) error {
	log := logger.FromCtx(ctx).With(
		zap.String("service", "Webhook"),
		zap.String("method", "completeCheckout"),
		zap.String("checkout_session", s.ID),
	)

	// delayed methods complete unpaid and follow up with async_payment_succeeded
	if !s.paid() {
		log.Info("checkout not paid yet", zap.String("payment_status", s.PaymentStatus))
		return nil
	}

	draftID, err := uuid.Parse(s.draftRef())
	if err != nil {
		return fmt.Errorf("%w: draft reference %q", errUnprocessable, s.draftRef())
	}

	kind, ok := draftKinds[s.Metadata["type"]]
	if !ok {
		return fmt.Errorf("%w: checkout type %q", errUnprocessable, s.Metadata["type"])
	}

	row, err := h.drafts.GetByID(ctx, draftID)
	if err != nil {
		return err
	}
	if row.Kind != kind {
		return fmt.Errorf("%w: draft %s is a %s, checkout paid for a %s", errUnprocessable, row.ID, row.Kind, kind)
	}

	changed, err := h.drafts.MarkSubmitted(ctx, draftID)
	if err != nil {
		return err
	}

	if kind == shipment.RecordKind {
		return h.fulfillLabel(ctx, row, s)
	}
	if changed {
		h.notifyReservation(ctx, row, s)
	}
	return nil
}

func verifySignature(body []byte, header, secret string) error {
	if secret == "" {
		return payment.ErrInvalidSignature
	}
	if err := stripewebhook.ValidatePayload(body, header, secret); err != nil {
		return fmt.Errorf("%w: %v", payment.ErrInvalidSignature, err)
	}
	return nil
}

// fulfillLabel buys the label at most once per draft. A redelivered event
// finds the stored label and stops.
func (h *Handler) fulfillLabel(ctx context.Context, row *order.DraftRow, s CheckoutSession) error {
	log := logger.FromCtx(ctx).With(
		zap.String("service", "Webhook"),
		zap.String("method", "fulfillLabel"),
		zap.String("draft_id", row.ID.String()),
	)

	_, err := h.labels.GetByDraft(ctx, row.ID)
	if err == nil {
		log.Info("label already purchased")
		return nil
	}
	if !errors.Is(err, shipping.ErrLabelNotFound) {
		return err
	}

	var ps shipment.PendingShipment
	if err := row.Decode(&ps); err != nil {
		return fmt.Errorf("%w: %v", errUnprocessable, err)
	}

	rateID := s.Metadata["rate_id"]
	if rateID == "" && ps.Rate != nil {
		rateID = ps.Rate.ID
	}
	if rateID == "" {
		return fmt.Errorf("%w: no rate on shipment", errUnprocessable)
	}

	bought, err := h.purchaser.Purchase(ctx, rateID)
	if err != nil {
		return err
	}

	label := &shipping.Label{
		OwnerEmail:     row.OwnerEmail,
		DraftID:        row.ID,
		RateID:         rateID,
		TrackingNumber: bought.TrackingNumber,
		LabelURL:       bought.LabelURL,
		Amount:         s.amount(),
	}
	if ps.Rate != nil {
		label.Carrier = ps.Rate.Carrier
		label.Service = ps.Rate.Service
		label.Amount = ps.Rate.Amount
	}

	if err := h.labels.Create(ctx, label); err != nil {
		// the carrier has charged for it; keep enough in the log to recover it
		log.Error("purchased label not stored",
			zap.String("transaction_id", bought.TransactionID),
			zap.String("tracking_number", bought.TrackingNumber),
			zap.String("label_url", bought.LabelURL),
			zap.Error(err),
		)
		return err
	}

	h.notifier.Send(ctx, notify.Message{
		To:      utils.FirstNonEmpty(s.CustomerDetails.Email, s.CustomerEmail, row.OwnerEmail),
		Subject: "Your shipping label is ready - " + row.Reference,
		Body: fmt.Sprintf(
			"Carrier: %s %s\nTracking number: %s\nLabel: %s\nShip to: %s, %s, %s %s\n",
			label.Carrier, label.Service, label.TrackingNumber, label.LabelURL,
			ps.To.Name, ps.To.City, ps.To.State, ps.To.Zip,
		),
	})

	log.Info("label purchased", zap.String("tracking_number", label.TrackingNumber))
	return nil
}

func (h *Handler) notifyReservation(ctx context.Context, row *order.DraftRow, s CheckoutSession) {
	var res mailbox.Reservation
	if err := row.Decode(&res); err != nil {
		logger.FromCtx(ctx).Warn("failed decoding reservation", zap.String("draft_id", row.ID.String()), zap.Error(err))
	}

	customer := utils.FirstNonEmpty(s.CustomerDetails.Email, s.CustomerEmail, res.Email, row.OwnerEmail)
	h.notifier.Send(ctx, notify.Message{
		To:      customer,
		Subject: "Your Monarch Mail reservation is confirmed - " + row.Reference,
		Body: fmt.Sprintf(
			"Thank you %s.\nReservation: %s\nMailbox: %s (%s)\nAmount paid: $%s\nStart date: %s\n",
			res.CustomerName, row.Reference, res.MailboxType, res.PreferredSize,
			s.amount().StringFixed(2), res.StartDate,
		),
	})

	h.notifier.Send(ctx, notify.Message{
		To:      h.adminEmail,
		Subject: "Mailbox payment received - " + row.Reference,
		Body: fmt.Sprintf(
			"Customer: %s <%s>\nPhone: %s\nMailbox: %s (%s)\nAmount: $%s\nCheckout session: %s\n",
			res.CustomerName, customer, res.Phone, res.MailboxType, res.PreferredSize,
			s.amount().StringFixed(2), s.ID,
		),
	})
}

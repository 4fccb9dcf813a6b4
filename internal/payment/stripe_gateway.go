package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"monarchmail-be/internal/logger"
	"monarchmail-be/internal/metrics"

	"go.uber.org/zap"
)

const stripeBaseURL = "https://api.stripe.com"

type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

type stripeGateway struct {
	secretKey  string
	baseURL    string
	successURL string
	cancelURL  string
	httpClient *http.Client
}

func NewStripeGateway(secretKey, successURL, cancelURL string) Gateway {
	if secretKey == "" {
		logger.L().Warn("Stripe secret key is empty")
	}
	return &stripeGateway{
		secretKey:  secretKey,
		baseURL:    stripeBaseURL,
		successURL: successURL,
		cancelURL:  cancelURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (s *stripeGateway) form(r CheckoutRequest) url.Values {
	f := url.Values{}
	f.Set("mode", "payment")
	f.Set("success_url", s.successURL)
	f.Set("cancel_url", s.cancelURL)
	f.Set("client_reference_id", r.DraftID.String())
	if r.CustomerEmail != "" {
		f.Set("customer_email", r.CustomerEmail)
	}

	for i, it := range r.ChargeItems() {
		p := "line_items[" + strconv.Itoa(i) + "]"
		f.Set(p+"[price_data][currency]", "usd")
		f.Set(p+"[price_data][product_data][name]", it.Name)
		if it.Description != "" {
			f.Set(p+"[price_data][product_data][description]", it.Description)
		}
		f.Set(p+"[price_data][unit_amount]", strconv.FormatInt(Cents(it.Amount), 10))
		f.Set(p+"[quantity]", strconv.Itoa(it.Quantity))
	}

	f.Set("metadata[type]", r.Type)
	f.Set("metadata[draft_id]", r.DraftID.String())
	if r.CouponCode != "" {
		f.Set("metadata[coupon_code]", r.CouponCode)
		f.Set("metadata[discount_amount]", r.Discount.StringFixed(2))
	}
	for k, v := range r.Metadata {
		f.Set("metadata["+k+"]", v)
	}
	return f
}

func (s *stripeGateway) CreateCheckoutSession(ctx context.Context, r CheckoutRequest) (sess *CheckoutSession, err error) {
	log := logger.FromCtx(ctx).With(
		zap.String("adapter", "stripe"),
		zap.String("method", "CreateCheckoutSession"),
		zap.String("draft_id", r.DraftID.String()),
		zap.String("type", r.Type),
		zap.String("total", r.Total().StringFixed(2)),
	)

	if len(r.ChargeItems()) == 0 {
		return nil, ErrEmptyCheckout
	}

	timer := metrics.StartTimer()
	defer func() { metrics.ObserveAdapter("checkout", timer, err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/checkout/sessions", strings.NewReader(s.form(r).Encode()))
	if err != nil {
		log.Error("failed creating request", zap.Error(err))
		return nil, err
	}
	req.SetBasicAuth(s.secretKey, "")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if r.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", r.IdempotencyKey)
	}

	log.Info("creating checkout session")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		log.Error("stripe request failed", zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("failed to read response body", zap.Error(err))
		return nil, fmt.Errorf("failed to read stripe response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Error("stripe returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return nil, fmt.Errorf("stripe error: %s", string(bodyBytes))
	}

	var res CheckoutSession
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		log.Error("failed decoding stripe response", zap.Error(err))
		return nil, err
	}
	if res.URL == "" {
		return nil, fmt.Errorf("stripe error: session %s has no url", res.ID)
	}

	metrics.CheckoutSessionsTotal.WithLabelValues(r.Type).Inc()
	log.Info("checkout session created", zap.String("session_id", res.ID))
	return &res, nil
}

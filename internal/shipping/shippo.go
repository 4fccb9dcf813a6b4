package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"monarchmail-be/internal/address"
	"monarchmail-be/internal/logger"
	"monarchmail-be/internal/metrics"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const shippoBaseURL = "https://api.goshippo.com"

type RateLookup interface {
	Rates(ctx context.Context, from, to address.Address, parcel Parcel) (*Batch, error)
}

type LabelPurchaser interface {
	Purchase(ctx context.Context, rateID string) (*Purchase, error)
}

type Carrier interface {
	RateLookup
	LabelPurchaser
}

type shippoCarrier struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

func NewShippoCarrier(apiKey string) Carrier {
	if apiKey == "" {
		logger.L().Warn("Shippo API key is empty")
	}
	return &shippoCarrier{
		apiKey:  apiKey,
		baseURL: shippoBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		now: time.Now,
	}
}

type shippoAddress struct {
	Name    string `json:"name,omitempty"`
	Company string `json:"company,omitempty"`
	Street1 string `json:"street1,omitempty"`
	Street2 string `json:"street2,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
}

func toShippoAddress(a address.Address) shippoAddress {
	country := address.NormalizeCountry(a.Country)
	if country == "" {
		country = "US"
	}
	return shippoAddress{
		Name:    a.Name,
		Company: a.Company,
		Street1: a.Street1,
		Street2: a.Street2,
		City:    a.City,
		State:   a.State,
		Zip:     a.Zip,
		Country: country,
		Phone:   a.Phone,
		Email:   a.Email,
	}
}

type shippoParcel struct {
	Length       string `json:"length"`
	Width        string `json:"width"`
	Height       string `json:"height"`
	DistanceUnit string `json:"distance_unit"`
	Weight       string `json:"weight"`
	MassUnit     string `json:"mass_unit"`
}

type shippoShipmentRequest struct {
	AddressFrom shippoAddress  `json:"address_from"`
	AddressTo   shippoAddress  `json:"address_to"`
	Parcels     []shippoParcel `json:"parcels"`
	Async       bool           `json:"async"`
}

type shippoRate struct {
	ObjectID      string `json:"object_id"`
	Provider      string `json:"provider"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	EstimatedDays *int   `json:"estimated_days"`
	DurationTerms string `json:"duration_terms"`
	ServiceLevel  struct {
		Name  string `json:"name"`
		Token string `json:"token"`
	} `json:"servicelevel"`
}

type shippoShipmentResponse struct {
	ObjectID string       `json:"object_id"`
	Rates    []shippoRate `json:"rates"`
}

type shippoTransactionResponse struct {
	ObjectID       string `json:"object_id"`
	Status         string `json:"status"`
	TrackingNumber string `json:"tracking_number"`
	LabelURL       string `json:"label_url"`
	Messages       []struct {
		Text string `json:"text"`
	} `json:"messages"`
}

func (c *shippoCarrier) Rates(ctx context.Context, from, to address.Address, parcel Parcel) (batch *Batch, err error) {
	log := logger.FromCtx(ctx).With(
		zap.String("adapter", "shippo"),
		zap.String("method", "Rates"),
		zap.String("from_zip", from.Zip),
		zap.String("to_zip", to.Zip),
	)

	timer := metrics.StartTimer()
	defer func() { metrics.ObserveAdapter("rate_lookup", timer, err) }()

	p := parcel.WithDefaults()
	payload := shippoShipmentRequest{
		AddressFrom: toShippoAddress(from),
		AddressTo:   toShippoAddress(to),
		Parcels: []shippoParcel{{
			Length:       p.Length.String(),
			Width:        p.Width.String(),
			Height:       p.Height.String(),
			DistanceUnit: "in",
			Weight:       p.Weight.String(),
			MassUnit:     "lb",
		}},
		Async: false,
	}

	var res shippoShipmentResponse
	if err := c.post(ctx, log, "/shipments/", payload, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateLookupUnavailable, err)
	}

	batch = &Batch{ShipmentID: res.ObjectID, FetchedAt: c.now()}
	seen := make(map[string]bool, len(res.Rates))
	for _, r := range res.Rates {
		if r.ObjectID == "" || seen[r.ObjectID] {
			continue
		}
		amount, err := decimal.NewFromString(r.Amount)
		if err != nil {
			log.Warn("skipping rate with unparseable amount",
				zap.String("rate_id", r.ObjectID),
				zap.String("amount", r.Amount),
			)
			continue
		}
		seen[r.ObjectID] = true
		batch.Rates = append(batch.Rates, Rate{
			ID:            r.ObjectID,
			Carrier:       normalizeCarrier(r.Provider),
			Service:       r.ServiceLevel.Name,
			Amount:        amount,
			Currency:      r.Currency,
			EstimatedDays: r.EstimatedDays,
			Guaranteed:    strings.Contains(strings.ToLower(r.DurationTerms), "guarantee"),
		})
	}

	if len(batch.Rates) == 0 {
		log.Warn("shippo returned no usable rates")
		return nil, ErrNoRates
	}

	log.Info("rates fetched",
		zap.String("shipment_id", batch.ShipmentID),
		zap.Int("count", len(batch.Rates)),
	)
	return batch, nil
}

func (c *shippoCarrier) Purchase(ctx context.Context, rateID string) (purchase *Purchase, err error) {
	log := logger.FromCtx(ctx).With(
		zap.String("adapter", "shippo"),
		zap.String("method", "Purchase"),
		zap.String("rate_id", rateID),
	)

	timer := metrics.StartTimer()
	defer func() { metrics.ObserveAdapter("label_purchase", timer, err) }()

	payload := map[string]any{
		"rate":            rateID,
		"label_file_type": "PDF",
		"async":           false,
	}

	var res shippoTransactionResponse
	if err := c.post(ctx, log, "/transactions/", payload, &res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLabelPurchaseFailed, err)
	}

	if res.Status != "SUCCESS" {
		msgs := make([]string, 0, len(res.Messages))
		for _, m := range res.Messages {
			msgs = append(msgs, m.Text)
		}
		log.Error("label transaction not successful",
			zap.String("status", res.Status),
			zap.Strings("messages", msgs),
		)
		return nil, fmt.Errorf("%w: status %s: %s", ErrLabelPurchaseFailed, res.Status, strings.Join(msgs, "; "))
	}

	log.Info("label purchased",
		zap.String("transaction_id", res.ObjectID),
		zap.String("tracking_number", res.TrackingNumber),
	)
	return &Purchase{
		TransactionID:  res.ObjectID,
		TrackingNumber: res.TrackingNumber,
		LabelURL:       res.LabelURL,
	}, nil
}

func (c *shippoCarrier) post(ctx context.Context, log *zap.Logger, path string, payload, out any) error {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "ShippoToken "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error("shippo request failed", zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("failed to read response body", zap.Error(err))
		return err
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Error("shippo returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return fmt.Errorf("shippo error: %s", string(bodyBytes))
	}

	if err := json.Unmarshal(bodyBytes, out); err != nil {
		log.Error("failed decoding shippo response", zap.Error(err))
		return err
	}
	return nil
}

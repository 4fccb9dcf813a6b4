package address

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"monarchmail-be/internal/logger"
	"monarchmail-be/internal/metrics"

	"go.uber.org/zap"
)

const shippoBaseURL = "https://api.goshippo.com"

type Verifier interface {
	Verify(ctx context.Context, addr Address) (*Candidate, error)
}

type shippoVerifier struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewShippoVerifier(apiKey string) Verifier {
	if apiKey == "" {
		logger.L().Warn("Shippo API key is empty")
	}
	return &shippoVerifier{
		apiKey:  apiKey,
		baseURL: shippoBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type shippoAddress struct {
	Name     string `json:"name,omitempty"`
	Company  string `json:"company,omitempty"`
	Street1  string `json:"street1"`
	Street2  string `json:"street2,omitempty"`
	City     string `json:"city"`
	State    string `json:"state"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
	Phone    string `json:"phone,omitempty"`
	Email    string `json:"email,omitempty"`
	Validate bool   `json:"validate,omitempty"`
}

type shippoValidationResponse struct {
	shippoAddress
	ValidationResults struct {
		IsValid  bool `json:"is_valid"`
		Messages []struct {
			Code string `json:"code"`
			Text string `json:"text"`
		} `json:"messages"`
	} `json:"validation_results"`
}

// Verify never mutates addr. Every failure to get an answer wraps
// ErrVerifierUnavailable so callers can tell it from a rejection.
func (v *shippoVerifier) Verify(ctx context.Context, addr Address) (cand *Candidate, err error) {
	log := logger.FromCtx(ctx).With(
		zap.String("adapter", "shippo"),
		zap.String("method", "Verify"),
		zap.String("zip", addr.Zip),
	)

	timer := metrics.StartTimer()
	defer func() { metrics.ObserveAdapter("address_verifier", timer, err) }()

	payload := shippoAddress{
		Name:     addr.Name,
		Company:  addr.Company,
		Street1:  addr.Street1,
		Street2:  addr.Street2,
		City:     addr.City,
		State:    addr.State,
		Zip:      addr.Zip,
		Country:  NormalizeCountry(addr.Country),
		Phone:    addr.Phone,
		Email:    addr.Email,
		Validate: true,
	}
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/addresses/", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}
	req.Header.Set("Authorization", "ShippoToken "+v.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		log.Error("shippo request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Error("failed to read response body", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Error("shippo returned non-success status",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("response", bodyBytes),
		)
		return nil, fmt.Errorf("%w: shippo status %d", ErrVerifierUnavailable, resp.StatusCode)
	}

	var res shippoValidationResponse
	if err := json.Unmarshal(bodyBytes, &res); err != nil {
		log.Error("failed decoding shippo response", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrVerifierUnavailable, err)
	}

	cand = &Candidate{
		Entered: addr,
		Valid:   res.ValidationResults.IsValid,
	}
	for _, m := range res.ValidationResults.Messages {
		if m.Text != "" {
			cand.Messages = append(cand.Messages, m.Text)
		}
	}
	if res.Street1 != "" {
		suggested := &Address{
			Name:    addr.Name,
			Company: addr.Company,
			Street1: res.Street1,
			Street2: res.Street2,
			City:    res.City,
			State:   res.State,
			Zip:     res.Zip,
			Country: res.Country,
			Phone:   addr.Phone,
			Email:   addr.Email,
		}
		cand.Suggested = suggested
		// Shippo echoes the submitted address on invalid results.
		if !cand.Valid && !cand.NeedsCorrection() {
			cand.Suggested = nil
		}
	}

	log.Info("address verified",
		zap.Bool("valid", cand.Valid),
		zap.Bool("needs_correction", cand.NeedsCorrection()),
		zap.Int("messages", len(cand.Messages)),
	)
	return cand, nil
}

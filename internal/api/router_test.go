package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"monarchmail-be/internal/account"
	"monarchmail-be/internal/address"
	"monarchmail-be/internal/auth"
	"monarchmail-be/internal/contact"
	"monarchmail-be/internal/mailbox"
	"monarchmail-be/internal/notify"
	"monarchmail-be/internal/payment"
	"monarchmail-be/internal/shipment"
	"monarchmail-be/internal/shipping"
	"monarchmail-be/internal/wizard"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

// --- Fakes ---

type echoVerifier struct{}

func (echoVerifier) Verify(_ context.Context, a address.Address) (*address.Candidate, error) {
	s := a
	return &address.Candidate{Entered: a, Suggested: &s, Valid: true}, nil
}

type memStore struct {
	mu sync.Mutex
}

func (m *memStore) Save(_ context.Context, d wizard.Draft, _ wizard.Record) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.RecordID == uuid.Nil {
		return uuid.New(), nil
	}
	return d.RecordID, nil
}

type fakeGateway struct{}

func (fakeGateway) CreateCheckoutSession(_ context.Context, r payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	return &payment.CheckoutSession{ID: "cs_1", URL: "https://checkout.example/" + r.Type}, nil
}

type fakeUploader struct{}

func (fakeUploader) Upload(_ context.Context, name, _ string, body io.Reader) (string, error) {
	_, _ = io.ReadAll(body)
	return "https://files.example/" + name, nil
}

type fakeRates struct{}

func (fakeRates) Rates(_ context.Context, _, _ address.Address, _ shipping.Parcel) (*shipping.Batch, error) {
	return &shipping.Batch{ShipmentID: "shp_1", Rates: []shipping.Rate{
		{ID: "r_usps", Carrier: "USPS", Service: "Ground", Amount: decimal.RequireFromString("7.50"), Currency: "USD"},
		{ID: "r_ups", Carrier: "UPS", Service: "Ground", Amount: decimal.RequireFromString("11.20"), Currency: "USD"},
	}}, nil
}

type fakeAddresses struct{}

func (fakeAddresses) ListByOwner(context.Context, string) ([]address.SavedAddress, error) {
	return nil, nil
}

func (fakeAddresses) GetByID(context.Context, uuid.UUID, string) (*address.SavedAddress, error) {
	return nil, address.ErrSavedAddressNotFound
}

func (fakeAddresses) Create(context.Context, *address.SavedAddress) error { return nil }

func (fakeAddresses) IncrementUsage(context.Context, uuid.UUID, string) error { return nil }

type fakeAccount struct{ owner string }

func (f *fakeAccount) Summary(_ context.Context, owner string) (*account.Summary, error) {
	f.owner = owner
	return &account.Summary{SavedAddresses: []address.SavedAddress{}, Labels: []shipping.Label{}, Shipments: []account.ShipmentSummary{}}, nil
}

type fakeContact struct{}

func (fakeContact) Submit(_ context.Context, in contact.Inquiry) (*contact.Inquiry, error) {
	if in.Message == "" {
		return nil, &wizard.ValidationError{Step: "contact", Fields: []wizard.FieldError{{Field: "message", Message: "Message is required"}}}
	}
	in.ID = uuid.New()
	return &in, nil
}

// --- Helpers ---

type testServer struct {
	handler http.Handler
	acct    *fakeAccount
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	catalog, err := mailbox.LoadCatalog(time.Now().Add(-time.Hour))
	require.NoError(t, err)

	deps := wizard.Deps{Verifier: echoVerifier{}, Store: &memStore{}, Gateway: fakeGateway{}}
	acct := &fakeAccount{}

	h := NewRouter(Deps{
		Mailbox:          mailbox.NewService(catalog, deps, fakeUploader{}, notify.NewLogSender(), "admin@example.com"),
		MailboxSessions:  wizard.NewRegistry[*mailbox.Session](time.Hour),
		Shipments:        shipment.NewService(deps, fakeRates{}, fakeAddresses{}),
		ShipmentSessions: wizard.NewRegistry[*shipment.Session](time.Hour),
		Estimator:        shipping.NewEstimator(fakeRates{}),
		Account:          acct,
		Contact:          fakeContact{},
		Webhook: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
		JWTSecret:    testSecret,
		StoreBaseURL: "https://store.example",
	})
	return &testServer{handler: h, acct: acct}
}

func token(t *testing.T, email string) string {
	t.Helper()
	tok, err := auth.SignToken(testSecret, "user-"+email, email, "Ana Ruiz", time.Hour)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, tok string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// --- Tests ---

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_WizardRequiresLogin(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/mailbox", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/shipments", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/account/summary", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/mailbox", "garbage", nil).Code)
}

func TestRouter_MailboxSession(t *testing.T) {
	s := newTestServer(t)
	tok := token(t, "ana@example.com")

	w := s.do(t, http.MethodPost, "/api/mailbox", tok, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	id := created["id"].(string)
	assert.EqualValues(t, 1, created["step"])

	t.Run("Validation_Error_Lists_Fields", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/mailbox/"+id+"/next", tok, nil)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		body := decode(t, w)
		assert.Equal(t, "validation", body["kind"])
		assert.Equal(t, "Please complete all required fields", body["error"])
		fields := body["fields"].([]any)
		require.NotEmpty(t, fields)
		assert.Equal(t, "use_type", fields[0].(map[string]any)["field"])
	})

	t.Run("Set_And_Advance", func(t *testing.T) {
		w := s.do(t, http.MethodPut, "/api/mailbox/"+id+"/steps/use_type", tok, map[string]string{"use_type": "personal"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = s.do(t, http.MethodPost, "/api/mailbox/"+id+"/next", tok, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decode(t, w)
		assert.Equal(t, true, body["outcome"].(map[string]any)["advanced"])

		w = s.do(t, http.MethodGet, "/api/mailbox/"+id, tok, nil)
		require.Equal(t, http.StatusOK, w.Code)
		view := decode(t, w)
		assert.EqualValues(t, 2, view["step"])
		steps := view["steps"].(map[string]any)
		assert.Equal(t, "ana@example.com", steps["applicant"].(map[string]any)["email"])
	})

	t.Run("Back", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/mailbox/"+id+"/back", tok, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.EqualValues(t, 1, decode(t, w)["session"].(map[string]any)["step"])
	})

	t.Run("Other_Owner_Cannot_See_Session", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/mailbox/"+id, token(t, "eve@example.com"), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Malformed_ID", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/mailbox/not-a-uuid", tok, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Submit_Before_Final_Step", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/mailbox/"+id+"/submit", tok, map[string]string{"nonce": "n1"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestRouter_MailboxDocumentUpload(t *testing.T) {
	s := newTestServer(t)
	tok := token(t, "ana@example.com")
	id := decode(t, s.do(t, http.MethodPost, "/api/mailbox", tok, nil))["id"].(string)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "license.jpg")
	require.NoError(t, err)
	_, _ = part.Write([]byte("jpeg-bytes"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/mailbox/"+id+"/documents/primary_id", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	t.Run("Unknown_Field", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, _ := mw.CreateFormFile("file", "x.jpg")
		_, _ = part.Write([]byte("x"))
		_ = mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/api/mailbox/"+id+"/documents/selfie", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+tok)
		w := httptest.NewRecorder()
		s.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Missing_File", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/mailbox/"+id+"/documents/primary_id", tok, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestRouter_ShipmentFlow(t *testing.T) {
	s := newTestServer(t)
	tok := token(t, "ana@example.com")

	w := s.do(t, http.MethodPost, "/api/shipments", tok, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decode(t, w)["id"].(string)
	base := "/api/shipments/" + id

	w = s.do(t, http.MethodPost, base+"/rates", tok, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodPut, base+"/steps/details", tok, map[string]string{
		"from_name": "Ana Ruiz", "from_street1": "1 Main St", "from_city": "San Antonio", "from_state": "TX", "from_zip": "78258",
		"to_name": "Ben Ode", "to_street1": "9 Elm Ave", "to_city": "Austin", "to_state": "TX", "to_zip": "78701",
		"weight": "3",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, base+"/next", tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, base+"/rates", tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	grouped := decode(t, w)
	assert.Equal(t, "r_usps", grouped["cheapest"].(map[string]any)["id"])
	assert.Len(t, grouped["best_value"], 2)

	w = s.do(t, http.MethodPut, base+"/steps/rate", tok, map[string]string{"rate_id": "r_ups"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, base+"/submit", tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "https://checkout.example/shipping_label", decode(t, w)["checkout_url"])

	t.Run("Saved_Address_Not_Found", func(t *testing.T) {
		w := s.do(t, http.MethodPost, base+"/saved-address", tok, map[string]any{"role": "to", "address_id": uuid.New()})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRouter_PublicEndpoints(t *testing.T) {
	s := newTestServer(t)

	t.Run("Estimate", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/rates/estimate", "", map[string]any{"to_zip": "78701", "weight": "2"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		body := decode(t, w)
		assert.Equal(t, "r_usps", body["best"].(map[string]any)["id"])
	})

	t.Run("Estimate_Missing_Input", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/rates/estimate", "", map[string]any{"to_zip": ""})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Estimate_Bad_JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/rates/estimate", bytes.NewBufferString("{"))
		w := httptest.NewRecorder()
		s.handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "Invalid request body.", decode(t, w)["error"])
	})

	t.Run("Contact", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/api/contact", "", map[string]string{"name": "Ana", "email": "ana@example.com", "message": "Hi"})
		assert.Equal(t, http.StatusCreated, w.Code)

		w = s.do(t, http.MethodPost, "/api/contact", "", map[string]string{"name": "Ana"})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("Store_Redirect", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/store/holiday-gifts", "", nil)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "https://store.example/collections/holiday-gifts", w.Header().Get("Location"))

		w = s.do(t, http.MethodGet, "/store/unknown", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Account_Summary", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/api/account/summary", token(t, "ana@example.com"), nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ana@example.com", s.acct.owner)
	})

	t.Run("Webhook_Mounted", func(t *testing.T) {
		w := s.do(t, http.MethodPost, "/webhook/payment", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("Metrics", func(t *testing.T) {
		w := s.do(t, http.MethodGet, "/metrics", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "monarch_wizard_sessions")
	})
}

func TestWriteError_Unclassified(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	w := httptest.NewRecorder()

	writeError(w, req, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "internal", body["kind"])
	assert.NotContains(t, body["error"], "pq")
}

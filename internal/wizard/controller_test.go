package wizard

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"monarchmail-be/internal/address"
	"monarchmail-be/internal/apperr"
	"monarchmail-be/internal/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

type verifierFunc func(ctx context.Context, a address.Address) (*address.Candidate, error)

func (f verifierFunc) Verify(ctx context.Context, a address.Address) (*address.Candidate, error) {
	return f(ctx, a)
}

// exactMatch echoes the address back upper-cased, which must not prompt.
var exactMatch = verifierFunc(func(_ context.Context, a address.Address) (*address.Candidate, error) {
	s := a
	s.Street1 = " " + strings.ToUpper(a.Street1)
	s.City = strings.ToUpper(a.City)
	return &address.Candidate{Entered: a, Suggested: &s, Valid: true}, nil
})

type fakeStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]Record
	creates int
	updates int
	fail    error
	gate    chan struct{}
	entered chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[uuid.UUID]Record{}}
}

func (f *fakeStore) Save(_ context.Context, d Draft, rec Record) (uuid.UUID, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return uuid.Nil, f.fail
	}
	if d.RecordID == uuid.Nil {
		id := uuid.New()
		f.records[id] = rec
		f.creates++
		return id, nil
	}
	if _, ok := f.records[d.RecordID]; !ok {
		return uuid.Nil, errors.New("draft not found")
	}
	f.records[d.RecordID] = rec
	f.updates++
	return d.RecordID, nil
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCheckoutSession(ctx context.Context, req payment.CheckoutRequest) (*payment.CheckoutSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.CheckoutSession), args.Error(1)
}

// --- Flow under test ---

const (
	stepContact StepName = "contact"
	stepAddress StepName = "address"
	stepReview  StepName = "review"
)

type testRecord struct {
	Name   string
	Street string
	Zip    string
	Status Status
}

func (testRecord) Kind() string { return "test" }

func testFlow() Flow {
	return Flow{
		Name: "test",
		Steps: []Step{
			{Name: stepContact, Validate: Required(stepContact, "name")},
			{
				Name:      stepAddress,
				Validate:  Required(stepAddress, "street1", "city", "state", "zip"),
				Addresses: []AddressField{{Role: "home"}},
				Persist:   true,
			},
			{
				Name: stepReview,
				Validate: Check("agree_to_terms", "You must agree to the terms", func(s Snapshot) bool {
					return s.Value(stepReview, "agree_to_terms") == "true"
				}),
			},
		},
		Encode: func(d Draft) (Record, error) {
			return testRecord{
				Name:   d.Value(stepContact, "name"),
				Street: d.Value(stepAddress, "street1"),
				Zip:    d.Value(stepAddress, "zip"),
				Status: d.Status,
			}, nil
		},
		Checkout: func(d Draft) (payment.CheckoutRequest, error) {
			return payment.CheckoutRequest{
				Type:  "test",
				Items: []payment.LineItem{{Name: "Thing", Amount: decimal.NewFromInt(5), Quantity: 1}},
			}, nil
		},
	}
}

var homeAddress = Fields{"street1": "100 Main St", "city": "San Antonio", "state": "TX", "zip": "78201"}

func newTestController(v address.Verifier, s Persister, g payment.Gateway) *Controller {
	return NewController(testFlow(), Deps{Verifier: v, Store: s, Gateway: g}, "jane@example.com")
}

// toReview drives a fresh controller to the final step.
func toReview(t *testing.T, c *Controller) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, c.Set(stepContact, Fields{"name": "Jane"}))
	_, err := c.Next(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Set(stepAddress, homeAddress))
	out, err := c.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, out.Step)
}

// --- Tests ---

func TestController_NextBlockedByValidation(t *testing.T) {
	store := newFakeStore()
	c := newTestController(exactMatch, store, nil)

	require.NoError(t, c.Set(stepContact, Fields{"name": "   "}))
	out, err := c.Next(context.Background())

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Fields[0].Field)
	assert.Equal(t, apperr.KindValidation, apperr.Kind(err))
	assert.False(t, out.Advanced)
	assert.Equal(t, 1, c.Snapshot().Step)
	assert.Equal(t, PhaseEditing, c.Snapshot().Phase)
	assert.Zero(t, store.creates)
}

func TestController_RecordIDStable(t *testing.T) {
	store := newFakeStore()
	c := newTestController(exactMatch, store, nil)
	ctx := context.Background()

	toReview(t, c)
	first := c.Snapshot().RecordID
	require.NotNil(t, first)
	assert.Equal(t, 1, store.creates)

	// Back and forward again with a changed value: update, same id.
	_, err := c.Back()
	require.NoError(t, err)
	require.NoError(t, c.Set(stepAddress, Fields{"street1": "200 Main St"}))
	_, err = c.Next(ctx)
	require.NoError(t, err)

	assert.Equal(t, *first, *c.Snapshot().RecordID)
	assert.Equal(t, 1, store.creates)
	assert.Equal(t, 1, store.updates)
	assert.Equal(t, "200 Main St", store.records[*first].(testRecord).Street)
}

func TestController_RepeatedSaveIsIdempotent(t *testing.T) {
	store := newFakeStore()
	c := newTestController(exactMatch, store, nil)
	ctx := context.Background()

	toReview(t, c)
	id := *c.Snapshot().RecordID
	after := store.records[id]

	for i := 0; i < 2; i++ {
		_, err := c.Back()
		require.NoError(t, err)
		_, err = c.Next(ctx)
		require.NoError(t, err)
	}

	assert.Len(t, store.records, 1)
	assert.Equal(t, after, store.records[id])
}

func TestController_ExactMatchDoesNotPrompt(t *testing.T) {
	c := newTestController(exactMatch, newFakeStore(), nil)
	toReview(t, c)
	assert.Nil(t, c.Snapshot().Correction)
}

func TestController_CorrectionFlow(t *testing.T) {
	zipFix := verifierFunc(func(_ context.Context, a address.Address) (*address.Candidate, error) {
		s := a
		s.Zip = "78205"
		return &address.Candidate{Entered: a, Suggested: &s, Valid: true, Messages: []string{"ZIP code corrected"}}, nil
	})

	setup := func(t *testing.T) (*Controller, *fakeStore) {
		store := newFakeStore()
		c := newTestController(zipFix, store, nil)
		require.NoError(t, c.Set(stepContact, Fields{"name": "Jane"}))
		_, err := c.Next(context.Background())
		require.NoError(t, err)
		require.NoError(t, c.Set(stepAddress, homeAddress))
		return c, store
	}

	t.Run("Pauses with entered and suggested", func(t *testing.T) {
		c, store := setup(t)

		out, err := c.Next(context.Background())
		require.NoError(t, err)
		assert.False(t, out.Advanced)
		require.NotNil(t, out.Correction)
		assert.Equal(t, "78201", out.Correction.Entered.Zip)
		assert.Equal(t, "78205", out.Correction.Suggested.Zip)
		assert.Equal(t, 2, c.Snapshot().Step)
		assert.Equal(t, PhaseAwaitingResolution, c.Snapshot().Phase)
		assert.Zero(t, store.creates)

		_, err = c.Next(context.Background())
		assert.ErrorIs(t, err, ErrCorrectionPending)
	})

	t.Run("Accepting suggestion merges it and advances", func(t *testing.T) {
		c, store := setup(t)
		_, err := c.Next(context.Background())
		require.NoError(t, err)

		out, err := c.Resolve(context.Background(), ChoiceSuggested)
		require.NoError(t, err)
		assert.True(t, out.Advanced)
		assert.Equal(t, 3, out.Step)
		assert.Equal(t, "78205", c.Snapshot().Value(stepAddress, "zip"))
		assert.Equal(t, 1, store.creates)
	})

	t.Run("Keeping original leaves fields untouched", func(t *testing.T) {
		c, _ := setup(t)
		_, err := c.Next(context.Background())
		require.NoError(t, err)

		out, err := c.Resolve(context.Background(), ChoiceOriginal)
		require.NoError(t, err)
		assert.True(t, out.Advanced)
		assert.Equal(t, "78201", c.Snapshot().Value(stepAddress, "zip"))
	})

	t.Run("Editing drops the correction", func(t *testing.T) {
		c, _ := setup(t)
		_, err := c.Next(context.Background())
		require.NoError(t, err)

		require.NoError(t, c.Set(stepAddress, Fields{"zip": "78205"}))
		assert.Nil(t, c.Snapshot().Correction)
		assert.Equal(t, PhaseEditing, c.Snapshot().Phase)

		_, err = c.Resolve(context.Background(), ChoiceOriginal)
		assert.ErrorIs(t, err, ErrNoCorrectionPending)
	})

	t.Run("Back drops the correction", func(t *testing.T) {
		c, _ := setup(t)
		_, err := c.Next(context.Background())
		require.NoError(t, err)

		step, err := c.Back()
		require.NoError(t, err)
		assert.Equal(t, 1, step)
		assert.Nil(t, c.Snapshot().Correction)
		assert.Equal(t, "78201", c.Snapshot().Value(stepAddress, "zip"))
	})
}

func TestController_HardRejection(t *testing.T) {
	reject := verifierFunc(func(_ context.Context, a address.Address) (*address.Candidate, error) {
		return &address.Candidate{Entered: a, Valid: false, Messages: []string{"Address not found"}}, nil
	})
	store := newFakeStore()
	c := newTestController(reject, store, nil)
	require.NoError(t, c.Set(stepContact, Fields{"name": "Jane"}))
	_, err := c.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Set(stepAddress, homeAddress))

	out, err := c.Next(context.Background())
	require.NoError(t, err)
	require.NotNil(t, out.Correction)
	assert.True(t, out.Correction.Rejected)

	_, err = c.Resolve(context.Background(), ChoiceOriginal)
	assert.ErrorIs(t, err, ErrAddressRejected)
	assert.Equal(t, 2, c.Snapshot().Step)
	assert.Equal(t, PhaseEditing, c.Snapshot().Phase)
	assert.Zero(t, store.creates)
}

func TestController_InvalidAddress(t *testing.T) {
	setup := func(t *testing.T, v address.Verifier) (*Controller, *fakeStore) {
		store := newFakeStore()
		c := newTestController(v, store, nil)
		require.NoError(t, c.Set(stepContact, Fields{"name": "Jane"}))
		_, err := c.Next(context.Background())
		require.NoError(t, err)
		require.NoError(t, c.Set(stepAddress, homeAddress))
		return c, store
	}

	t.Run("Echoed suggestion cannot be kept", func(t *testing.T) {
		echo := verifierFunc(func(_ context.Context, a address.Address) (*address.Candidate, error) {
			s := a
			s.Street1 = strings.ToUpper(a.Street1)
			return &address.Candidate{Entered: a, Suggested: &s, Valid: false}, nil
		})
		c, store := setup(t, echo)

		out, err := c.Next(context.Background())
		require.NoError(t, err)
		require.NotNil(t, out.Correction)
		assert.True(t, out.Correction.Rejected)

		_, err = c.Resolve(context.Background(), ChoiceOriginal)
		assert.ErrorIs(t, err, ErrAddressRejected)
		assert.Equal(t, 2, c.Snapshot().Step)
		assert.Zero(t, store.creates)
	})

	t.Run("Only the suggestion is accepted", func(t *testing.T) {
		moved := verifierFunc(func(_ context.Context, a address.Address) (*address.Candidate, error) {
			s := a
			s.Zip = "78205"
			return &address.Candidate{Entered: a, Suggested: &s, Valid: false}, nil
		})
		c, _ := setup(t, moved)

		out, err := c.Next(context.Background())
		require.NoError(t, err)
		require.NotNil(t, out.Correction)
		assert.False(t, out.Correction.Rejected)
		assert.False(t, out.Correction.Valid)

		_, err = c.Resolve(context.Background(), ChoiceOriginal)
		assert.ErrorIs(t, err, ErrAddressRejected)
		assert.Equal(t, PhaseAwaitingResolution, c.Snapshot().Phase)

		out, err = c.Resolve(context.Background(), ChoiceSuggested)
		require.NoError(t, err)
		assert.True(t, out.Advanced)
		assert.Equal(t, "78205", c.Snapshot().Value(stepAddress, "zip"))
	})
}

func TestController_VerifierUnavailable(t *testing.T) {
	calls := 0
	flaky := verifierFunc(func(ctx context.Context, a address.Address) (*address.Candidate, error) {
		calls++
		if calls == 1 {
			return nil, address.ErrVerifierUnavailable
		}
		return exactMatch(ctx, a)
	})
	store := newFakeStore()
	c := newTestController(flaky, store, nil)
	require.NoError(t, c.Set(stepContact, Fields{"name": "Jane"}))
	_, err := c.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Set(stepAddress, homeAddress))

	_, err = c.Next(context.Background())
	var ae *AdapterError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AdapterVerifier, ae.Adapter)
	assert.Equal(t, "We could not verify your address. Please try again.", apperr.UserMessage(err))
	assert.Equal(t, 2, c.Snapshot().Step)
	assert.Zero(t, store.creates)

	out, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, out.Step)
}

func TestController_PersistenceFailure(t *testing.T) {
	store := newFakeStore()
	store.fail = errors.New("connection reset")
	c := newTestController(exactMatch, store, nil)
	require.NoError(t, c.Set(stepContact, Fields{"name": "Jane"}))
	_, err := c.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Set(stepAddress, homeAddress))

	_, err = c.Next(context.Background())
	var ae *AdapterError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AdapterStore, ae.Adapter)
	assert.Equal(t, 2, c.Snapshot().Step)
	assert.Nil(t, c.Snapshot().RecordID)

	store.fail = nil
	out, err := c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, out.Step)
	assert.Equal(t, 1, store.creates)
}

func TestController_HookResultsAreKept(t *testing.T) {
	flow := testFlow()
	runs := 0
	flow.Steps[1].Hook = func(ctx context.Context, d Draft) (Fields, error) {
		runs++
		if d.Value(stepAddress, "uploaded") != "" {
			return nil, nil
		}
		return Fields{"uploaded": "https://files.test/id.png"}, nil
	}
	store := newFakeStore()
	store.fail = errors.New("down")
	c := NewController(flow, Deps{Verifier: exactMatch, Store: store}, "jane@example.com")
	require.NoError(t, c.Set(stepContact, Fields{"name": "Jane"}))
	_, err := c.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Set(stepAddress, homeAddress))

	_, err = c.Next(context.Background())
	require.Error(t, err)
	assert.Equal(t, "https://files.test/id.png", c.Snapshot().Value(stepAddress, "uploaded"))

	store.fail = nil
	_, err = c.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, runs)
}

func TestController_HookFailure(t *testing.T) {
	flow := testFlow()
	flow.Steps[1].Hook = func(ctx context.Context, d Draft) (Fields, error) {
		return nil, &HookError{Adapter: "upload", Message: "We couldn't upload your ID. Please try again.", Err: errors.New("503")}
	}
	store := newFakeStore()
	c := NewController(flow, Deps{Verifier: exactMatch, Store: store}, "jane@example.com")
	require.NoError(t, c.Set(stepContact, Fields{"name": "Jane"}))
	_, err := c.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Set(stepAddress, homeAddress))

	_, err = c.Next(context.Background())
	var ae *AdapterError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "upload", ae.Adapter)
	assert.Equal(t, "We couldn't upload your ID. Please try again.", apperr.UserMessage(err))
	assert.Zero(t, store.creates)
}

func TestController_DoubleNext(t *testing.T) {
	store := newFakeStore()
	c := newTestController(exactMatch, store, nil)
	require.NoError(t, c.Set(stepContact, Fields{"name": "Jane"}))
	_, err := c.Next(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Set(stepAddress, homeAddress))

	store.gate = make(chan struct{})
	store.entered = make(chan struct{}, 4)

	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := c.Next(context.Background())
		done <- result{out, err}
	}()

	select {
	case <-store.entered:
	case <-time.After(time.Second):
		t.Fatal("first Next never reached the store")
	}

	_, err = c.Next(context.Background())
	assert.ErrorIs(t, err, ErrTransitionInFlight)
	assert.ErrorIs(t, c.Set(stepAddress, Fields{"zip": "00000"}), ErrTransitionInFlight)
	_, err = c.Back()
	assert.ErrorIs(t, err, ErrTransitionInFlight)

	close(store.gate)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 3, res.out.Step)

	assert.Equal(t, 1, store.creates)
	assert.LessOrEqual(t, store.updates, 1)
}

func TestController_Back(t *testing.T) {
	store := newFakeStore()
	c := newTestController(exactMatch, store, nil)

	step, err := c.Back()
	require.NoError(t, err)
	assert.Equal(t, 1, step)

	toReview(t, c)
	before := store.creates + store.updates

	step, err = c.Back()
	require.NoError(t, err)
	assert.Equal(t, 2, step)
	assert.Equal(t, before, store.creates+store.updates)
	assert.Equal(t, "100 Main St", c.Snapshot().Value(stepAddress, "street1"))
	assert.Equal(t, "Jane", c.Snapshot().Value(stepContact, "name"))
}

func TestController_Submit(t *testing.T) {
	ctx := context.Background()

	t.Run("Refused before final step", func(t *testing.T) {
		c := newTestController(exactMatch, newFakeStore(), new(MockGateway))
		_, err := c.Submit(ctx, "n1")
		assert.ErrorIs(t, err, ErrNotAtFinalStep)
	})

	t.Run("Next at final step", func(t *testing.T) {
		c := newTestController(exactMatch, newFakeStore(), new(MockGateway))
		toReview(t, c)
		_, err := c.Next(ctx)
		assert.ErrorIs(t, err, ErrAtFinalStep)
	})

	t.Run("Validates final step", func(t *testing.T) {
		gw := new(MockGateway)
		c := newTestController(exactMatch, newFakeStore(), gw)
		toReview(t, c)

		_, err := c.Submit(ctx, "n1")
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve)
		gw.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
	})

	t.Run("Success", func(t *testing.T) {
		gw := new(MockGateway)
		store := newFakeStore()
		notified := 0
		flow := testFlow()
		flow.BeforeCheckout = func(ctx context.Context, d Draft) { notified++ }
		c := NewController(flow, Deps{Verifier: exactMatch, Store: store, Gateway: gw}, "jane@example.com")
		toReview(t, c)
		id := *c.Snapshot().RecordID

		gw.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(r payment.CheckoutRequest) bool {
			return r.DraftID == id && r.IdempotencyKey == id.String()+":n1"
		})).Return(&payment.CheckoutSession{ID: "cs_1", URL: "https://pay.test/cs_1"}, nil).Once()

		require.NoError(t, c.Set(stepReview, Fields{"agree_to_terms": "true"}))
		url, err := c.Submit(ctx, "n1")
		require.NoError(t, err)
		assert.Equal(t, "https://pay.test/cs_1", url)
		assert.Equal(t, 1, notified)

		view := c.Snapshot()
		assert.Equal(t, PhaseFinalized, view.Phase)
		assert.Equal(t, StatusPendingPayment, view.Status)
		assert.Equal(t, StatusPendingPayment, store.records[id].(testRecord).Status)
		assert.Equal(t, 1, store.creates)

		_, err = c.Submit(ctx, "n1")
		assert.ErrorIs(t, err, ErrAlreadyFinalized)
		_, err = c.Back()
		assert.ErrorIs(t, err, ErrAlreadyFinalized)
		gw.AssertNumberOfCalls(t, "CreateCheckoutSession", 1)
	})

	t.Run("Checkout failure allows manual retry", func(t *testing.T) {
		gw := new(MockGateway)
		c := newTestController(exactMatch, newFakeStore(), gw)
		toReview(t, c)
		require.NoError(t, c.Set(stepReview, Fields{"agree_to_terms": "true"}))

		gw.On("CreateCheckoutSession", mock.Anything, mock.Anything).Return(nil, errors.New("stripe down")).Once()
		_, err := c.Submit(ctx, "n1")
		var ae *AdapterError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, AdapterCheckout, ae.Adapter)
		assert.Equal(t, PhaseEditing, c.Snapshot().Phase)
		assert.Equal(t, StatusDraft, c.Snapshot().Status)

		gw.On("CreateCheckoutSession", mock.Anything, mock.Anything).Return(&payment.CheckoutSession{URL: "https://pay.test/2"}, nil).Once()
		url, err := c.Submit(ctx, "n2")
		require.NoError(t, err)
		assert.Equal(t, "https://pay.test/2", url)
	})
}

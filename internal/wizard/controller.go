package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"monarchmail-be/internal/logger"
	"monarchmail-be/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type pendingTransition struct {
	step       Step
	next       int
	correction *Correction
}

// Controller drives one draft through its flow. mu guards the field store and
// state; busy is the in-flight guard that makes a second Next, Resolve or
// Submit return ErrTransitionInFlight instead of queueing.
type Controller struct {
	flow  Flow
	deps  Deps
	owner string

	busy atomic.Bool

	mu       sync.Mutex
	store    *FieldStore
	state    State
	recordID uuid.UUID
	status   Status
	pending  *pendingTransition
}

func NewController(flow Flow, deps Deps, owner string) *Controller {
	return &Controller{
		flow:  flow,
		deps:  deps,
		owner: owner,
		store: NewFieldStore(flow.names()...),
		state: State{
			Phase:       PhaseEditing,
			Step:        1,
			Total:       len(flow.Steps),
			PersistFrom: flow.persistFrom(),
		},
		status: StatusDraft,
	}
}

func (c *Controller) Owner() string { return c.owner }

func (c *Controller) FlowName() string { return c.flow.Name }

func (c *Controller) draftLocked() Draft {
	snap := c.store.Get()
	return Draft{
		RecordID: c.recordID,
		Owner:    c.owner,
		Step:     snap.Step,
		Steps:    snap.Steps,
		Status:   c.status,
	}
}

// Draft returns the current aggregate.
func (c *Controller) Draft() Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draftLocked()
}

func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Snapshot: c.store.Get(),
		Phase:    c.state.Phase,
		Status:   c.status,
	}
	if c.recordID != uuid.Nil {
		id := c.recordID
		v.RecordID = &id
	}
	if c.pending != nil && c.pending.correction != nil {
		corr := *c.pending.correction
		v.Correction = &corr
	}
	return v
}

// Set merges fields into one step. Editing while a correction is pending
// drops the correction: the address it was about may have changed.
func (c *Controller) Set(step StepName, fields Fields) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.Phase {
	case PhaseBusy:
		return ErrTransitionInFlight
	case PhaseFinalized:
		return ErrAlreadyFinalized
	case PhaseAwaitingResolution:
		st, err := Transition(c.state, EventAbort)
		if err != nil {
			return err
		}
		c.state = st
		c.pending = nil
	}

	if !c.store.Set(step, fields) {
		return fmt.Errorf("%w: unknown step %q", ErrIllegalTransition, step)
	}
	return nil
}

func (c *Controller) Next(ctx context.Context) (Outcome, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return Outcome{}, ErrTransitionInFlight
	}
	defer c.busy.Store(false)

	c.mu.Lock()
	cur := c.state.Step
	if c.state.Phase == PhaseEditing && cur >= c.state.Total {
		c.mu.Unlock()
		return Outcome{Step: cur}, ErrAtFinalStep
	}
	st, err := Transition(c.state, EventBegin)
	if err != nil {
		c.mu.Unlock()
		return Outcome{Step: cur}, err
	}
	c.state = st
	snap := c.store.Get()
	c.mu.Unlock()

	step := c.flow.Steps[snap.Step-1]
	if err := Validate(snap, step.Name, step.Validate); err != nil {
		c.abort()
		c.count(step.Name, "invalid")
		return Outcome{Step: snap.Step}, err
	}

	return c.proceed(ctx, &pendingTransition{step: step})
}

// Resolve answers a pending correction and carries on with the transition
// it interrupted.
func (c *Controller) Resolve(ctx context.Context, choice Choice) (Outcome, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return Outcome{}, ErrTransitionInFlight
	}
	defer c.busy.Store(false)

	log := logger.FromCtx(ctx).With(
		zap.String("service", "wizard"),
		zap.String("method", "Resolve"),
		zap.String("flow", c.flow.Name),
		zap.String("choice", string(choice)),
	)

	c.mu.Lock()
	st, err := Transition(c.state, EventResume)
	if err != nil {
		cur := c.state.Step
		c.mu.Unlock()
		return Outcome{Step: cur}, err
	}
	p := c.pending
	corr := p.correction

	if corr.Rejected {
		c.state, _ = Transition(c.state, EventAbort)
		c.pending = nil
		c.mu.Unlock()
		log.Info("rejected address cannot be kept", zap.String("role", corr.Role))
		c.count(p.step.Name, "rejected")
		return Outcome{Step: st.Step}, ErrAddressRejected
	}

	switch choice {
	case ChoiceSuggested:
		if corr.Suggested == nil {
			c.mu.Unlock()
			return Outcome{Step: st.Step}, fmt.Errorf("%w: no suggestion to accept", ErrIllegalTransition)
		}
		af := p.step.Addresses[p.next-1]
		c.store.Set(p.step.Name, af.Write(*corr.Suggested))
	case ChoiceOriginal:
		if !corr.Valid {
			c.mu.Unlock()
			log.Info("invalid address cannot be kept", zap.String("role", corr.Role))
			return Outcome{Step: st.Step, Correction: corr}, ErrAddressRejected
		}
	default:
		c.mu.Unlock()
		return Outcome{Step: st.Step}, fmt.Errorf("%w: unknown choice %q", ErrIllegalTransition, choice)
	}

	c.state = st
	p.correction = nil
	c.pending = nil
	c.mu.Unlock()

	log.Info("address correction resolved", zap.String("role", corr.Role))
	return c.proceed(ctx, p)
}

// Back never has side effects. It keeps every field and drops a pending
// correction.
func (c *Controller) Back() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := Transition(c.state, EventBack)
	if err != nil {
		return c.state.Step, err
	}
	c.state = st
	c.store.Retreat()
	c.pending = nil
	return st.Step, nil
}

// Submit runs the terminal transition: validate, persist, notify, create the
// payment session once. The nonce identifies one user-initiated submission;
// a network retry carrying the same nonce reuses the processor's session.
func (c *Controller) Submit(ctx context.Context, nonce string) (string, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return "", ErrTransitionInFlight
	}
	defer c.busy.Store(false)

	c.mu.Lock()
	if c.state.Phase == PhaseFinalized {
		c.mu.Unlock()
		return "", ErrAlreadyFinalized
	}
	if c.state.Step != c.state.Total {
		c.mu.Unlock()
		return "", ErrNotAtFinalStep
	}
	st, err := Transition(c.state, EventBegin)
	if err != nil {
		c.mu.Unlock()
		return "", err
	}
	c.state = st
	snap := c.store.Get()
	c.mu.Unlock()

	step := c.flow.Steps[snap.Step-1]
	log := logger.FromCtx(ctx).With(
		zap.String("service", "wizard"),
		zap.String("method", "Submit"),
		zap.String("flow", c.flow.Name),
	)

	if err := Validate(snap, step.Name, step.Validate); err != nil {
		c.abort()
		c.count(step.Name, "invalid")
		return "", err
	}
	if err := c.runHook(ctx, step); err != nil {
		c.abort()
		c.count(step.Name, "failed")
		return "", err
	}
	if err := c.persist(ctx); err != nil {
		c.abort()
		c.count(step.Name, "failed")
		return "", err
	}

	d := c.Draft()
	if c.flow.BeforeCheckout != nil {
		c.flow.BeforeCheckout(ctx, d)
	}

	req, err := c.flow.Checkout(d)
	if err != nil {
		c.abort()
		log.Error("failed building checkout request", zap.Error(err))
		return "", err
	}
	if nonce == "" {
		nonce = uuid.NewString()
	}
	req.DraftID = d.RecordID
	req.IdempotencyKey = d.RecordID.String() + ":" + nonce

	sess, err := c.deps.Gateway.CreateCheckoutSession(ctx, req)
	if err != nil {
		c.abort()
		c.count(step.Name, "failed")
		log.Error("checkout failed", zap.Error(err))
		return "", &AdapterError{Adapter: AdapterCheckout, Err: err}
	}

	c.mu.Lock()
	st, err = Transition(c.state, EventCheckout)
	if err != nil {
		c.mu.Unlock()
		c.abort()
		return "", err
	}
	c.state = st
	c.status = StatusPendingPayment
	final := c.draftLocked()
	c.mu.Unlock()

	if rec, err := c.flow.Encode(final); err != nil {
		log.Warn("failed encoding finalized draft", zap.Error(err))
	} else if _, err := c.deps.Store.Save(ctx, final, rec); err != nil {
		log.Warn("failed recording pending payment", zap.String("record_id", final.RecordID.String()), zap.Error(err))
	}

	c.count(step.Name, "submitted")
	log.Info("checkout session ready", zap.String("record_id", final.RecordID.String()))
	return sess.URL, nil
}

func (c *Controller) proceed(ctx context.Context, p *pendingTransition) (Outcome, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("service", "wizard"),
		zap.String("method", "Next"),
		zap.String("flow", c.flow.Name),
		zap.String("step", string(p.step.Name)),
	)

	for p.next < len(p.step.Addresses) {
		af := p.step.Addresses[p.next]

		c.mu.Lock()
		snap := c.store.Get()
		c.mu.Unlock()

		cand, err := c.deps.Verifier.Verify(ctx, af.Read(snap.Steps[p.step.Name]))
		if err != nil {
			c.abort()
			c.count(p.step.Name, "failed")
			log.Warn("address verification unavailable", zap.String("role", af.Role), zap.Error(err))
			return Outcome{Step: snap.Step}, &AdapterError{Adapter: AdapterVerifier, Err: err}
		}
		p.next++

		if !cand.NeedsReview() {
			continue
		}

		corr := &Correction{
			Role:      af.Role,
			Entered:   cand.Entered,
			Suggested: cand.Suggested,
			Messages:  cand.Messages,
			Valid:     cand.Valid,
			Rejected:  cand.Rejected(),
		}

		c.mu.Lock()
		st, err := Transition(c.state, EventPause)
		if err != nil {
			c.mu.Unlock()
			c.abort()
			return Outcome{Step: snap.Step}, err
		}
		c.state = st
		p.correction = corr
		c.pending = p
		c.mu.Unlock()

		c.count(p.step.Name, "correction")
		log.Info("address needs review", zap.String("role", af.Role), zap.Bool("rejected", corr.Rejected))
		return Outcome{Step: snap.Step, Correction: corr}, nil
	}

	return c.finish(ctx, p.step)
}

func (c *Controller) finish(ctx context.Context, step Step) (Outcome, error) {
	if err := c.runHook(ctx, step); err != nil {
		c.abort()
		c.count(step.Name, "failed")
		return Outcome{Step: c.currentStep()}, err
	}

	if step.Persist || c.hasRecord() {
		if err := c.persist(ctx); err != nil {
			c.abort()
			c.count(step.Name, "failed")
			return Outcome{Step: c.currentStep()}, err
		}
	}

	c.mu.Lock()
	st, err := Transition(c.state, EventNext)
	if err != nil {
		c.mu.Unlock()
		c.abort()
		return Outcome{Step: c.currentStep()}, err
	}
	c.state = st
	c.store.Advance()
	c.mu.Unlock()

	c.count(step.Name, "advanced")
	return Outcome{Step: st.Step, Advanced: true}, nil
}

func (c *Controller) runHook(ctx context.Context, step Step) error {
	if step.Hook == nil {
		return nil
	}

	updates, err := step.Hook(ctx, c.Draft())
	if len(updates) > 0 {
		c.mu.Lock()
		c.store.Set(step.Name, updates)
		c.mu.Unlock()
	}
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			return err
		}
		name := AdapterHook
		var he *HookError
		if errors.As(err, &he) {
			name = he.Adapter
		}
		logger.FromCtx(ctx).Error("step hook failed",
			zap.String("flow", c.flow.Name),
			zap.String("step", string(step.Name)),
			zap.Error(err),
		)
		return &AdapterError{Adapter: name, Err: err}
	}
	return nil
}

// persist creates the record on first call and updates it afterwards. The id
// is captured once and never replaced.
func (c *Controller) persist(ctx context.Context) error {
	log := logger.FromCtx(ctx).With(
		zap.String("service", "wizard"),
		zap.String("method", "persist"),
		zap.String("flow", c.flow.Name),
	)

	d := c.Draft()
	rec, err := c.flow.Encode(d)
	if err != nil {
		log.Error("failed encoding draft", zap.Error(err))
		return fmt.Errorf("encode %s draft: %w", c.flow.Name, err)
	}

	id, err := c.deps.Store.Save(ctx, d, rec)
	if err != nil {
		log.Error("failed saving draft", zap.String("record_id", d.RecordID.String()), zap.Error(err))
		return &AdapterError{Adapter: AdapterStore, Err: err}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recordID == uuid.Nil {
		c.recordID = id
		c.state.HasRecord = true
		log.Info("draft created", zap.String("record_id", id.String()))
	} else if id != c.recordID {
		log.Warn("store returned a different id for an update",
			zap.String("record_id", c.recordID.String()),
			zap.String("returned_id", id.String()),
		)
	}
	return nil
}

func (c *Controller) abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, err := Transition(c.state, EventAbort); err == nil {
		c.state = st
	}
	c.pending = nil
}

func (c *Controller) hasRecord() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recordID != uuid.Nil
}

func (c *Controller) currentStep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Step
}

func (c *Controller) count(step StepName, outcome string) {
	metrics.WizardTransitionsTotal.WithLabelValues(c.flow.Name, string(step), outcome).Inc()
}

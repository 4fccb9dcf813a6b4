package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransition(t *testing.T) {
	editing := State{Phase: PhaseEditing, Step: 2, Total: 3, PersistFrom: 2}
	busy := editing
	busy.Phase = PhaseBusy
	awaiting := editing
	awaiting.Phase = PhaseAwaitingResolution

	tests := []struct {
		name      string
		from      State
		event     Event
		wantErr   error
		wantPhase Phase
		wantStep  int
	}{
		{"Begin from editing", editing, EventBegin, nil, PhaseBusy, 2},
		{"Begin while busy", busy, EventBegin, ErrTransitionInFlight, PhaseBusy, 2},
		{"Begin while awaiting", awaiting, EventBegin, ErrCorrectionPending, PhaseAwaitingResolution, 2},
		{"Pause", busy, EventPause, nil, PhaseAwaitingResolution, 2},
		{"Resume", awaiting, EventResume, nil, PhaseBusy, 2},
		{"Resume without correction", editing, EventResume, ErrNoCorrectionPending, PhaseEditing, 2},
		{"Abort", busy, EventAbort, nil, PhaseEditing, 2},
		{"Next without record past persisting step", busy, EventNext, ErrMissingRecordID, PhaseBusy, 2},
		{"Next from editing is illegal", editing, EventNext, ErrIllegalTransition, PhaseEditing, 2},
		{"Back while busy", busy, EventBack, ErrTransitionInFlight, PhaseBusy, 2},
		{"Back from awaiting", awaiting, EventBack, nil, PhaseEditing, 1},
		{"Checkout off final step", busy, EventCheckout, ErrNotAtFinalStep, PhaseBusy, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.from, tt.event)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantPhase, got.Phase)
			assert.Equal(t, tt.wantStep, got.Step)
		})
	}

	t.Run("Next with record", func(t *testing.T) {
		s := busy
		s.HasRecord = true
		got, err := Transition(s, EventNext)
		assert.NoError(t, err)
		assert.Equal(t, 3, got.Step)
		assert.Equal(t, PhaseEditing, got.Phase)
	})

	t.Run("Next before the persisting step needs no record", func(t *testing.T) {
		s := State{Phase: PhaseBusy, Step: 1, Total: 3, PersistFrom: 2}
		got, err := Transition(s, EventNext)
		assert.NoError(t, err)
		assert.Equal(t, 2, got.Step)
	})

	t.Run("Next at final step", func(t *testing.T) {
		s := State{Phase: PhaseBusy, Step: 3, Total: 3, HasRecord: true}
		_, err := Transition(s, EventNext)
		assert.ErrorIs(t, err, ErrAtFinalStep)
	})

	t.Run("Back at first step stays", func(t *testing.T) {
		got, err := Transition(State{Phase: PhaseEditing, Step: 1, Total: 3}, EventBack)
		assert.NoError(t, err)
		assert.Equal(t, 1, got.Step)
	})

	t.Run("Checkout needs a record", func(t *testing.T) {
		s := State{Phase: PhaseBusy, Step: 3, Total: 3, PersistFrom: 2}
		_, err := Transition(s, EventCheckout)
		assert.ErrorIs(t, err, ErrMissingRecordID)

		s.HasRecord = true
		got, err := Transition(s, EventCheckout)
		assert.NoError(t, err)
		assert.Equal(t, PhaseFinalized, got.Phase)
	})

	t.Run("Finalized refuses everything", func(t *testing.T) {
		s := State{Phase: PhaseFinalized, Step: 3, Total: 3}
		for _, e := range []Event{EventBegin, EventBack, EventNext, EventCheckout, EventAbort} {
			_, err := Transition(s, e)
			assert.ErrorIs(t, err, ErrAlreadyFinalized, e.String())
		}
	})
}

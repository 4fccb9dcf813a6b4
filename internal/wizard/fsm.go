package wizard

import "fmt"

type Phase int

const (
	PhaseEditing Phase = iota
	PhaseBusy
	PhaseAwaitingResolution
	PhaseFinalized
)

func (p Phase) String() string {
	switch p {
	case PhaseEditing:
		return "editing"
	case PhaseBusy:
		return "busy"
	case PhaseAwaitingResolution:
		return "awaiting_resolution"
	case PhaseFinalized:
		return "finalized"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

type Event int

const (
	// EventBegin starts a Next or Submit.
	EventBegin Event = iota
	// EventPause parks a transition on an address the user must review.
	EventPause
	// EventResume continues a parked transition after Resolve.
	EventResume
	// EventAbort ends a transition without moving.
	EventAbort
	EventNext
	EventBack
	EventCheckout
)

var eventNames = [...]string{"begin", "pause", "resume", "abort", "next", "back", "checkout"}

func (e Event) String() string {
	if int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// State is the controller's position. PersistFrom is the first step whose
// exit creates the record; no step after it can be entered without one.
type State struct {
	Phase       Phase
	Step        int
	Total       int
	PersistFrom int
	HasRecord   bool
}

// Transition is the single place steps and phases change.
func Transition(s State, e Event) (State, error) {
	if s.Phase == PhaseFinalized {
		return s, ErrAlreadyFinalized
	}

	switch e {
	case EventBegin:
		switch s.Phase {
		case PhaseEditing:
			s.Phase = PhaseBusy
			return s, nil
		case PhaseBusy:
			return s, ErrTransitionInFlight
		case PhaseAwaitingResolution:
			return s, ErrCorrectionPending
		}

	case EventPause:
		if s.Phase == PhaseBusy {
			s.Phase = PhaseAwaitingResolution
			return s, nil
		}

	case EventResume:
		switch s.Phase {
		case PhaseAwaitingResolution:
			s.Phase = PhaseBusy
			return s, nil
		case PhaseBusy:
			return s, ErrTransitionInFlight
		default:
			return s, ErrNoCorrectionPending
		}

	case EventAbort:
		if s.Phase == PhaseBusy || s.Phase == PhaseAwaitingResolution {
			s.Phase = PhaseEditing
			return s, nil
		}

	case EventNext:
		if s.Phase != PhaseBusy {
			break
		}
		if s.Step >= s.Total {
			return s, ErrAtFinalStep
		}
		if s.PersistFrom > 0 && s.Step+1 > s.PersistFrom && !s.HasRecord {
			return s, ErrMissingRecordID
		}
		s.Step++
		s.Phase = PhaseEditing
		return s, nil

	case EventBack:
		if s.Phase == PhaseBusy {
			return s, ErrTransitionInFlight
		}
		if s.Step > 1 {
			s.Step--
		}
		s.Phase = PhaseEditing
		return s, nil

	case EventCheckout:
		if s.Phase != PhaseBusy {
			break
		}
		if s.Step != s.Total {
			return s, ErrNotAtFinalStep
		}
		if s.PersistFrom > 0 && !s.HasRecord {
			return s, ErrMissingRecordID
		}
		s.Phase = PhaseFinalized
		return s, nil
	}

	return s, fmt.Errorf("%w: %s on %v", ErrIllegalTransition, s.Phase, e)
}

package wizard

import "maps"

type StepName string

// Fields holds the raw string values one step has collected.
type Fields map[string]string

func (f Fields) clone() Fields {
	out := make(Fields, len(f))
	maps.Copy(out, f)
	return out
}

// Snapshot is an immutable copy of the aggregate form state.
type Snapshot struct {
	Step  int                 `json:"step"`
	Total int                 `json:"total"`
	Names []StepName          `json:"names"`
	Steps map[StepName]Fields `json:"steps"`
}

func (s Snapshot) Value(step StepName, field string) string {
	return s.Steps[step][field]
}

func (s Snapshot) Current() StepName {
	if s.Step < 1 || s.Step > len(s.Names) {
		return ""
	}
	return s.Names[s.Step-1]
}

// FieldStore is pure bookkeeping: no validation and no side effects. It is not
// safe for concurrent use; the controller serialises access.
type FieldStore struct {
	names []StepName
	index map[StepName]struct{}
	step  int
	steps map[StepName]Fields
}

func NewFieldStore(names ...StepName) *FieldStore {
	s := &FieldStore{
		names: names,
		index: make(map[StepName]struct{}, len(names)),
		step:  1,
		steps: make(map[StepName]Fields, len(names)),
	}
	for _, n := range names {
		s.index[n] = struct{}{}
		s.steps[n] = Fields{}
	}
	return s
}

func (s *FieldStore) Get() Snapshot {
	steps := make(map[StepName]Fields, len(s.steps))
	for k, v := range s.steps {
		steps[k] = v.clone()
	}
	return Snapshot{
		Step:  s.step,
		Total: len(s.names),
		Names: append([]StepName(nil), s.names...),
		Steps: steps,
	}
}

// Set merges partial into one step's fields. Unknown steps are ignored.
func (s *FieldStore) Set(step StepName, partial Fields) bool {
	if _, ok := s.index[step]; !ok {
		return false
	}
	maps.Copy(s.steps[step], partial)
	return true
}

func (s *FieldStore) Advance() bool {
	if s.step >= len(s.names) {
		return false
	}
	s.step++
	return true
}

func (s *FieldStore) Retreat() bool {
	if s.step <= 1 {
		return false
	}
	s.step--
	return true
}

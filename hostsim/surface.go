package hostsim

import (
	"context"
	"fmt"
	"sync"

	"github.com/gristlabs/gristbridge/domain/entities"
	"github.com/gristlabs/gristbridge/domain/ports"
)

// Update is one recorded slot update.
type Update struct {
	Value   any
	Options entities.DisplayOptions
	Slot    int
}

// Surface is a ports.DisplaySurface that keeps every slot's current value
// and the full update history.
type Surface struct {
	mu      sync.Mutex
	slots   []entities.SlotState
	history []Update
	failAt  int
}

// NewSurface creates an empty Surface.
func NewSurface() *Surface {
	return &Surface{failAt: -1}
}

// NewSlot appends a slot.
func (s *Surface) NewSlot(context.Context) (ports.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = append(s.slots, entities.SlotState{})
	return &slot{surface: s, index: len(s.slots) - 1}, nil
}

// FailSlot makes updates of slot i fail until cleared with -1.
func (s *Surface) FailSlot(i int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAt = i
}

// Len returns the number of slots created.
func (s *Surface) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// Values returns the current value of every slot.
func (s *Surface) Values() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]any, len(s.slots))
	for i, st := range s.slots {
		out[i] = st.Value
	}
	return out
}

// Slot returns the state of slot i.
func (s *Surface) Slot(i int) entities.SlotState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[i]
}

// History returns a copy of all updates in the order they happened.
func (s *Surface) History() []Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Update(nil), s.history...)
}

// Filled returns the values of slots holding something other than the blank
// placeholder, in slot order.
func (s *Surface) Filled() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []any
	for _, st := range s.slots {
		if st.Filled {
			out = append(out, st.Value)
		}
	}
	return out
}

type slot struct {
	surface *Surface
	index   int
}

func (sl *slot) Update(_ context.Context, value any, opts entities.DisplayOptions) error {
	s := sl.surface
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt == sl.index {
		return fmt.Errorf("hostsim: slot %d unavailable", sl.index)
	}
	s.slots[sl.index] = entities.SlotState{
		Value:   value,
		Options: opts,
		Filled:  !isBlank(value, opts),
	}
	s.history = append(s.history, Update{Slot: sl.index, Value: value, Options: opts})
	return nil
}

func isBlank(value any, opts entities.DisplayOptions) bool {
	s, ok := value.(string)
	return ok && s == "" && opts.Raw
}

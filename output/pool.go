package output

import (
	"context"
	"fmt"
	"sync"

	"github.com/gristlabs/gristbridge/domain/entities"
	"github.com/gristlabs/gristbridge/domain/ports"
)

// DefaultCapacity is the number of slots pre-created for a listener cell.
const DefaultCapacity = 45

// DefaultOverflowMessage is shown in the last slot once all others are used.
const DefaultOverflowMessage = "Too many outputs produced"

// blank is the content of an empty slot.
var blank = entities.DisplayOptions{Raw: true}

// Pool is a fixed-capacity ordered sequence of output slots.
// The last slot is reserved for the overflow message.
type Pool struct {
	slots           []ports.Slot
	overflowMessage string
	cursor          int
	overflowed      bool
	mu              sync.Mutex
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithOverflowMessage sets the message shown once the pool is exhausted.
func WithOverflowMessage(msg string) PoolOption {
	return func(p *Pool) {
		p.overflowMessage = msg
	}
}

// Acquire eagerly creates capacity slots on surface so that their screen
// positions are fixed before any content exists.
func Acquire(ctx context.Context, surface ports.DisplaySurface, capacity int, opts ...PoolOption) (*Pool, error) {
	if capacity < 2 {
		return nil, fmt.Errorf("output: pool capacity must be at least 2, got %d", capacity)
	}
	p := &Pool{
		slots:           make([]ports.Slot, 0, capacity),
		overflowMessage: DefaultOverflowMessage,
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < capacity; i++ {
		slot, err := surface.NewSlot(ctx)
		if err != nil {
			return nil, fmt.Errorf("output: creating slot %d: %w", i, err)
		}
		if err := slot.Update(ctx, "", blank); err != nil {
			return nil, fmt.Errorf("output: initializing slot %d: %w", i, err)
		}
		p.slots = append(p.slots, slot)
	}
	return p, nil
}

// Capacity returns the number of slots, including the overflow slot.
func (p *Pool) Capacity() int {
	return len(p.slots)
}

// Written returns how many values the current invocation has written,
// not counting the overflow message.
func (p *Pool) Written() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cursor
}

// Overflowed reports whether the overflow message has been shown.
func (p *Pool) Overflowed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.overflowed
}

// Reset blanks every slot and rewinds the cursor. It is idempotent.
func (p *Pool) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cursor = 0
	p.overflowed = false
	for i, slot := range p.slots {
		if err := slot.Update(ctx, "", blank); err != nil {
			return fmt.Errorf("output: resetting slot %d: %w", i, err)
		}
	}
	return nil
}

// Write places value in the next free slot. Once only the last slot remains
// it shows the overflow message, exactly once; later writes are dropped.
func (p *Pool) Write(ctx context.Context, value any, opts entities.DisplayOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	last := len(p.slots) - 1
	if p.cursor < last {
		if err := p.slots[p.cursor].Update(ctx, value, opts); err != nil {
			return fmt.Errorf("output: writing slot %d: %w", p.cursor, err)
		}
		p.cursor++
		return nil
	}

	if p.overflowed {
		return nil
	}
	p.overflowed = true
	if err := p.slots[last].Update(ctx, p.overflowMessage, blank); err != nil {
		return fmt.Errorf("output: writing overflow slot: %w", err)
	}
	return nil
}

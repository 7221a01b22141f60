package ports

import (
	"context"

	"github.com/gristlabs/gristbridge/domain/entities"
)

// DisplaySurface creates host-visible output placeholders. Slots are shown in
// creation order, so their position is fixed before they carry content.
type DisplaySurface interface {
	NewSlot(ctx context.Context) (Slot, error)
}

// Slot is one independently updatable output placeholder.
type Slot interface {
	// Update replaces the slot content. The last write wins.
	Update(ctx context.Context, value any, opts entities.DisplayOptions) error
}

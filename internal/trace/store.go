package trace

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no trace matches a lookup.
var ErrNotFound = errors.New("trace not found")

// Store is durable storage for finalized traces.
type Store interface {
	Save(ctx context.Context, t *Trace) error
	Get(ctx context.Context, id string) (*Trace, error)
	// Last returns the most recent trace of a graph. An empty eventType
	// matches every event type.
	Last(ctx context.Context, ownerID, graphID, eventType string) (*Trace, error)
}

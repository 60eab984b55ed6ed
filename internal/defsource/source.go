// Package defsource loads the graph definitions of an owner.
//
// Two sources exist. FileSource reads HCL manifests from a directory tree
// laid out as <root>/<owner>/*.hcl. SQLSource reads the graphs table of a
// SQLite or PostgreSQL database and also applies persistence intents back
// to it.
package defsource

import (
	"context"
	"errors"

	"github.com/vk/botgraph/internal/graph"
)

// ErrUnknownOwner is returned by sources that keep a per-owner namespace
// when the owner has none.
var ErrUnknownOwner = errors.New("unknown owner")

// Definition is one stored graph. Structure is the raw structural JSON; it
// is parsed by the graph manager so that one malformed graph does not stop
// the others from loading.
type Definition struct {
	ID        string
	OwnerID   string
	Name      string
	Enabled   bool
	Triggers  []string
	Structure []byte
	Variables []graph.Variable
}

// Source lists the definitions of an owner.
type Source interface {
	Definitions(ctx context.Context, ownerID string) ([]Definition, error)
}

// Enabled filters out disabled definitions.
func Enabled(defs []Definition) []Definition {
	out := make([]Definition, 0, len(defs))
	for _, d := range defs {
		if d.Enabled {
			out = append(out, d)
		}
	}
	return out
}

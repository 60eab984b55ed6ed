package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vk/botgraph/internal/graph"
	"github.com/vk/botgraph/internal/runtime"
)

// validateDescriptor checks that the descriptor's pins and behaviors match
// its kind.
func validateDescriptor(d *Descriptor) error {
	var errs []string

	if d.Type == "" {
		return errors.New("type tag is empty")
	}

	for _, side := range []struct {
		dir  graph.Direction
		pins []graph.Pin
	}{{graph.Input, d.Inputs}, {graph.Output, d.Outputs}} {
		seen := make(map[string]bool, len(side.pins))
		for _, p := range side.pins {
			if p.ID == "" {
				errs = append(errs, "pin with empty id")
				continue
			}
			if seen[p.ID] {
				errs = append(errs, fmt.Sprintf("duplicate pin '%s'", p.ID))
			}
			seen[p.ID] = true
			if p.Direction != side.dir {
				errs = append(errs, fmt.Sprintf("pin '%s' declared on the wrong side", p.ID))
			}
		}
	}

	execIn := d.HasExecInput()
	switch d.Kind {
	case KindEvent:
		if !strings.HasPrefix(d.Type, runtime.StartPrefix) {
			errs = append(errs, fmt.Sprintf("event node type must start with '%s'", runtime.StartPrefix))
		}
		if execIn {
			errs = append(errs, "event node must not declare an exec input")
		}
		if d.Executor != nil || d.Perform != nil || d.Evaluator != nil {
			errs = append(errs, "event node must not declare behaviors")
		}
	case KindAction:
		if !execIn {
			errs = append(errs, "action node must declare an exec input")
		}
		if d.Executor == nil {
			errs = append(errs, "action node must declare an executor")
		}
		if d.Perform != nil {
			errs = append(errs, "action node must not declare a legacy behavior")
		}
	case KindData:
		if execIn {
			errs = append(errs, "data node must not declare an exec input")
		}
		if d.Evaluator == nil {
			errs = append(errs, "data node must declare an evaluator")
		}
		if d.Executor != nil || d.Perform != nil {
			errs = append(errs, "data node must not declare exec behaviors")
		}
	case KindLegacy:
		if !execIn {
			errs = append(errs, "legacy node must declare an exec input")
		}
		if d.Perform == nil {
			errs = append(errs, "legacy node must declare a perform behavior")
		}
		if d.Executor != nil || d.Evaluator != nil {
			errs = append(errs, "legacy node must not declare an executor or evaluator")
		}
		pin, ok := LegacyAdvancePin(d.Type)
		if !ok {
			errs = append(errs, "legacy node type is not in the fallback table")
		} else if p, ok := d.Pin(pin, graph.Output); !ok || p.Kind != graph.PinExec {
			errs = append(errs, fmt.Sprintf("legacy node must declare exec output '%s'", pin))
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown kind %d", d.Kind))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

package app

import (
	"github.com/vk/botgraph/internal/config"
	"github.com/vk/botgraph/internal/registry"
	"github.com/vk/botgraph/modules/actions"
	"github.com/vk/botgraph/modules/data"
	"github.com/vk/botgraph/modules/events"
	"github.com/vk/botgraph/modules/flow"
	"github.com/vk/botgraph/modules/legacy"
	"github.com/vk/botgraph/modules/variables"
)

// coreModules is the definitive list of node modules compiled into the
// botgraph binary.
func coreModules(s *config.Settings) []registry.Module {
	return []registry.Module{
		&events.Module{},
		&flow.Module{MaxIterations: s.Engine.MaxLoopIterations},
		&variables.Module{},
		&data.Module{},
		&actions.Module{},
		&legacy.Module{},
	}
}

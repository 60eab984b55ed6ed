// Package manager keeps the loaded graphs of every owner and dispatches
// bot events to them.
//
// # Loading
//
// Load fetches an owner's definitions from a defsource.Source, parses the
// structural JSON of every enabled graph, seeds the graph's persistent
// variables and indexes the graph under each event type it triggers on. A
// graph whose structure fails to parse is logged and skipped.
//
// # Dispatch
//
// HandleEvent runs every graph subscribed to an event concurrently and
// waits for all of them. Runs of the same graph are serialized on the
// variable store: the persisted variables are read, the graph runs, and on
// success the run's final variables replace the stored ones, all while the
// graph's store entry is held.
package manager

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/vk/botgraph/internal/ctxlog"
	"github.com/vk/botgraph/internal/defsource"
	"github.com/vk/botgraph/internal/graph"
	"github.com/vk/botgraph/internal/runtime"
	"github.com/vk/botgraph/internal/varstore"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrOwnerNotLoaded is returned for calls against an owner without
	// loaded graphs.
	ErrOwnerNotLoaded = errors.New("owner not loaded")
	// ErrGraphNotFound is returned when an API call names no loaded graph.
	ErrGraphNotFound = errors.New("graph not found")
)

// Runner executes one graph for one event. *engine.Engine implements it.
type Runner interface {
	Run(ctx context.Context, g *graph.Graph, rc *runtime.Context, eventType string) (*runtime.Context, error)
}

// Bots resolves the bot of an owner: its capabilities and its current
// world snapshot.
type Bots interface {
	Bot(ownerID string) (runtime.Capabilities, runtime.World)
}

// Publisher receives the telemetry events republished to observers.
type Publisher interface {
	Publish(ctx context.Context, ownerID, eventType string, args map[string]any)
}

// telemetry lists the event types republished to observers.
var telemetry = map[string]bool{
	runtime.EventHealth:       true,
	runtime.EventPlayerJoined: true,
	runtime.EventPlayerLeft:   true,
	runtime.EventBotDied:      true,
	runtime.EventEntitySpawn:  true,
	runtime.EventEntityGone:   true,
}

// IsTelemetry reports whether events of the type are republished.
func IsTelemetry(eventType string) bool { return telemetry[eventType] }

// GraphInfo describes a loaded graph.
type GraphInfo struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Triggers []string `json:"triggers"`
}

type loaded struct {
	def   defsource.Definition
	graph *graph.Graph
}

type ownerState struct {
	graphs  []*loaded
	byEvent map[string][]*loaded
}

// Manager is safe for concurrent use.
type Manager struct {
	runner    Runner
	source    defsource.Source
	bots      Bots
	vars      *varstore.Store
	publisher Publisher
	sink      runtime.IntentSink

	mu     sync.RWMutex
	owners map[string]*ownerState
}

// Option configures a Manager.
type Option func(*Manager)

// WithIntentSink sets the sink that receives the persistence intents of
// successful runs.
func WithIntentSink(sink runtime.IntentSink) Option {
	return func(m *Manager) { m.sink = sink }
}

// New creates a Manager. bots and publisher may be nil.
func New(runner Runner, source defsource.Source, bots Bots, vars *varstore.Store, publisher Publisher, opts ...Option) *Manager {
	if vars == nil {
		vars = varstore.New()
	}
	m := &Manager{
		runner:    runner,
		source:    source,
		bots:      bots,
		vars:      vars,
		publisher: publisher,
		owners:    make(map[string]*ownerState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load (re)loads the graphs of an owner and returns how many were indexed.
// Persisted variables of graphs that survive a reload are kept.
func (m *Manager) Load(ctx context.Context, ownerID string) (int, error) {
	logger := ctxlog.FromContext(ctx).With("owner", ownerID)

	defs, err := m.source.Definitions(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch graphs of %s: %w", ownerID, err)
	}

	state := &ownerState{byEvent: make(map[string][]*loaded)}
	for _, def := range defsource.Enabled(defs) {
		g, err := graph.Parse(def.Structure)
		if err != nil {
			logger.Error("Skipping graph with malformed structure.", "graph", def.ID, "error", err)
			continue
		}
		g.ID = def.ID
		g.Name = def.Name
		if len(def.Variables) > 0 {
			g.Variables = def.Variables
		}

		lg := &loaded{def: def, graph: g}
		state.graphs = append(state.graphs, lg)
		for _, t := range def.Triggers {
			state.byEvent[t] = append(state.byEvent[t], lg)
		}
		m.vars.Seed(ownerID, def.ID, g.Variables)
	}

	keep := make(map[string]bool, len(state.graphs))
	for _, lg := range state.graphs {
		keep[lg.def.ID] = true
	}
	for _, id := range m.vars.Graphs(ownerID) {
		if !keep[id] {
			m.vars.Drop(ownerID, id)
		}
	}

	m.mu.Lock()
	m.owners[ownerID] = state
	m.mu.Unlock()

	logger.Info("Graphs loaded.", "graphs", len(state.graphs), "skipped", len(defs)-len(state.graphs))
	return len(state.graphs), nil
}

// Unload drops the graphs and persisted variables of an owner.
func (m *Manager) Unload(ctx context.Context, ownerID string) {
	m.mu.Lock()
	delete(m.owners, ownerID)
	m.mu.Unlock()
	m.vars.DropOwner(ownerID)
	ctxlog.FromContext(ctx).Info("Graphs unloaded.", "owner", ownerID)
}

// Owners returns the loaded owners, sorted.
func (m *Manager) Owners() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.owners))
	for o := range m.owners {
		out = append(out, o)
	}
	slices.Sort(out)
	return out
}

// Graphs describes the loaded graphs of an owner in load order.
func (m *Manager) Graphs(ownerID string) []GraphInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.owners[ownerID]
	if !ok {
		return nil
	}
	out := make([]GraphInfo, 0, len(st.graphs))
	for _, lg := range st.graphs {
		out = append(out, GraphInfo{ID: lg.def.ID, Name: lg.def.Name, Triggers: slices.Clone(lg.def.Triggers)})
	}
	return out
}

// Variables returns the persisted variables of a loaded graph.
func (m *Manager) Variables(ctx context.Context, ownerID, graphID string) (map[string]any, error) {
	return m.vars.Get(ctx, ownerID, graphID)
}

func (m *Manager) subscribed(ownerID, eventType string) ([]*loaded, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.owners[ownerID]
	if !ok {
		return nil, false
	}
	return slices.Clone(st.byEvent[eventType]), true
}

// HandleEvent runs every graph of the owner subscribed to eventType. Run
// failures are logged and traced by the engine; the returned error joins
// them for callers that want to report it. Events for owners that are not
// loaded are ignored.
//
// api_call events only run the graph named by the graphName argument and
// discard its response; use Call to receive it.
func (m *Manager) HandleEvent(ctx context.Context, ownerID, eventType string, args map[string]any) error {
	if telemetry[eventType] && m.publisher != nil {
		m.publisher.Publish(ctx, ownerID, eventType, args)
	}

	graphs, ok := m.subscribed(ownerID, eventType)
	if !ok {
		ctxlog.FromContext(ctx).Debug("Event for unloaded owner ignored.", "owner", ownerID, "event", eventType)
		return nil
	}
	if eventType == runtime.EventAPICall {
		name, _ := args["graphName"].(string)
		graphs = slices.DeleteFunc(graphs, func(lg *loaded) bool { return lg.def.Name != name })
	}
	return m.dispatch(ctx, ownerID, eventType, args, graphs, nil)
}

// Call runs the api_call graph named graphName with data as its payload
// and returns what the graph responded with, or nil when it never
// responded. When several responses are sent, the first wins.
func (m *Manager) Call(ctx context.Context, ownerID, graphName string, data any) (any, error) {
	graphs, ok := m.subscribed(ownerID, runtime.EventAPICall)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOwnerNotLoaded, ownerID)
	}
	idx := slices.IndexFunc(graphs, func(lg *loaded) bool { return lg.def.Name == graphName })
	if idx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrGraphNotFound, graphName)
	}

	var (
		once     sync.Once
		response any
	)
	respond := func(v any) {
		once.Do(func() { response = v })
	}
	args := map[string]any{"graphName": graphName, "data": data}
	if err := m.dispatch(ctx, ownerID, runtime.EventAPICall, args, graphs[idx:idx+1], respond); err != nil {
		return nil, err
	}
	return response, nil
}

func (m *Manager) dispatch(ctx context.Context, ownerID, eventType string, args map[string]any, graphs []*loaded, respond func(any)) error {
	if len(graphs) == 0 {
		return nil
	}
	var (
		mu   sync.Mutex
		errs []error
	)
	var eg errgroup.Group
	for _, lg := range graphs {
		eg.Go(func() error {
			if err := m.run(ctx, ownerID, eventType, args, lg, respond); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("graph %s: %w", lg.def.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = eg.Wait()
	return errors.Join(errs...)
}

func (m *Manager) run(ctx context.Context, ownerID, eventType string, args map[string]any, lg *loaded, respond func(any)) error {
	logger := ctxlog.FromContext(ctx).With("owner", ownerID, "graph", lg.def.ID)
	ctx = ctxlog.WithLogger(ctx, logger)

	var (
		bot   runtime.Capabilities
		world runtime.World
	)
	if m.bots != nil {
		bot, world = m.bots.Bot(ownerID)
	}

	var intents []runtime.Intent
	err := m.vars.Update(ctx, ownerID, lg.def.ID, func(vars map[string]any) (map[string]any, error) {
		rc := runtime.NewContext(ownerID, eventType, args, bot)
		rc.GraphID = lg.def.ID
		rc.GraphName = lg.def.Name
		rc.World = world
		rc.Variables = vars
		rc.Respond = respond

		out, err := m.runner.Run(ctx, lg.graph, rc, eventType)
		if err != nil {
			return nil, err
		}
		intents = out.Intents.List()
		return out.Variables, nil
	})
	if err != nil {
		return err
	}

	if m.sink != nil && len(intents) > 0 {
		if err := m.sink.Apply(ctx, ownerID, lg.def.ID, intents); err != nil {
			logger.Warn("Failed to apply persistence intents.", "count", len(intents), "error", err)
		}
	}
	return nil
}

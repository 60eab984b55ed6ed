package testutil

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/vk/botgraph/internal/ctxlog"
	"github.com/vk/botgraph/internal/debug"
	"github.com/vk/botgraph/internal/engine"
	"github.com/vk/botgraph/internal/registry"
	"github.com/vk/botgraph/internal/trace"
	"github.com/vk/botgraph/modules/actions"
	"github.com/vk/botgraph/modules/data"
	"github.com/vk/botgraph/modules/events"
	"github.com/vk/botgraph/modules/flow"
	"github.com/vk/botgraph/modules/legacy"
	"github.com/vk/botgraph/modules/variables"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// Context returns a context carrying a debug-level logger that writes into
// the returned buffer. With BOTGRAPH_TEST_LOGS=true the captured output is
// printed when the test ends.
func Context(t *testing.T) (context.Context, *SafeBuffer) {
	t.Helper()
	buf := &SafeBuffer{}
	logger := slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	if os.Getenv("BOTGRAPH_TEST_LOGS") == "true" {
		t.Cleanup(func() { t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), buf.String()) })
	}
	return ctxlog.WithLogger(context.Background(), logger), buf
}

// Modules returns every node module compiled into the binary.
func Modules() []registry.Module {
	return []registry.Module{
		&events.Module{},
		&flow.Module{},
		&variables.Module{},
		&data.Module{},
		&actions.Module{},
		&legacy.Module{},
	}
}

// NewRegistry returns a registry with every node module registered.
func NewRegistry() *registry.Registry {
	r := registry.New()
	r.RegisterModules(Modules()...)
	return r
}

// Harness bundles an engine with a real trace collector, debug manager and
// recording bot.
type Harness struct {
	Ctx      context.Context
	Logs     *SafeBuffer
	Registry *registry.Registry
	Traces   *trace.Collector
	Debug    *debug.Manager
	Engine   *engine.Engine
	Bot      *RecordingBot
}

// NewHarness creates a Harness with default engine limits.
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	ctx, logs := Context(t)
	reg := NewRegistry()
	traces := trace.NewCollector(nil, 0)
	dbg := debug.NewManager()
	return &Harness{
		Ctx:      ctx,
		Logs:     logs,
		Registry: reg,
		Traces:   traces,
		Debug:    dbg,
		Engine:   engine.New(reg, traces, dbg, engine.Config{}),
		Bot:      &RecordingBot{},
	}
}

// LastTrace returns the most recent finalized trace of a graph.
func (h *Harness) LastTrace(t *testing.T, ownerID, graphID string) *trace.Trace {
	t.Helper()
	tr, err := h.Traces.LastForGraph(h.Ctx, ownerID, graphID, "")
	if err != nil {
		t.Fatalf("no trace for %s/%s: %v", ownerID, graphID, err)
	}
	return tr
}

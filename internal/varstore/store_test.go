package varstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/botgraph/internal/graph"
)

func TestSeedAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	vars, err := s.Get(ctx, "o", "g")
	require.NoError(t, err)
	assert.Empty(t, vars)

	s.Seed("o", "g", []graph.Variable{
		{Name: "count", Type: graph.VarNumber, Value: "3"},
		{Name: "on", Type: graph.VarBoolean, Value: "true"},
	})
	vars, err = s.Get(ctx, "o", "g")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": float64(3), "on": true}, vars)

	s.Seed("o", "g", []graph.Variable{{Name: "count", Type: graph.VarNumber, Value: 9}})
	vars, err = s.Get(ctx, "o", "g")
	require.NoError(t, err)
	assert.Equal(t, float64(3), vars["count"], "seeding keeps an existing entry")

	vars["count"] = 100
	again, err := s.Get(ctx, "o", "g")
	require.NoError(t, err)
	assert.Equal(t, float64(3), again["count"], "callers receive copies")
}

func TestUpdate(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Seed("o", "g", []graph.Variable{{Name: "count", Type: graph.VarNumber, Value: 1}})

	err := s.Update(ctx, "o", "g", func(vars map[string]any) (map[string]any, error) {
		vars["count"] = 2
		return vars, nil
	})
	require.NoError(t, err)
	vars, _ := s.Get(ctx, "o", "g")
	assert.Equal(t, 2, vars["count"])

	boom := errors.New("run failed")
	err = s.Update(ctx, "o", "g", func(vars map[string]any) (map[string]any, error) {
		vars["count"] = 3
		return vars, boom
	})
	require.ErrorIs(t, err, boom)
	vars, _ = s.Get(ctx, "o", "g")
	assert.Equal(t, 2, vars["count"], "failed updates are discarded")
}

func TestUpdateSerializesWriters(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.Seed("o", "g", []graph.Variable{{Name: "n", Type: graph.VarNumber, Value: 0}})

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Update(ctx, "o", "g", func(vars map[string]any) (map[string]any, error) {
				vars["n"] = vars["n"].(float64) + 1
				return vars, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	vars, _ := s.Get(ctx, "o", "g")
	assert.Equal(t, float64(workers), vars["n"])
}

func TestUpdateHonorsContext(t *testing.T) {
	s := New()
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = s.Update(context.Background(), "o", "g", func(vars map[string]any) (map[string]any, error) {
			close(held)
			<-release
			return vars, nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Update(ctx, "o", "g", func(vars map[string]any) (map[string]any, error) { return vars, nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDrop(t *testing.T) {
	s := New()
	s.Seed("a", "g1", nil)
	s.Seed("a", "g2", nil)
	s.Seed("b", "g1", nil)
	assert.Equal(t, []string{"g1", "g2"}, s.Graphs("a"))

	s.Drop("a", "g2")
	assert.Equal(t, []string{"g1"}, s.Graphs("a"))

	s.DropOwner("a")
	assert.Empty(t, s.Graphs("a"))
	assert.Equal(t, []string{"g1"}, s.Graphs("b"))
}

package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/botgraph/internal/config"
	"github.com/vk/botgraph/internal/testutil"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestNewApp_AppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "botgraph.yaml")
	writeFile(t, cfgPath, "server:\n  port: 9000\nlog:\n  level: warn\n  format: json\n")

	logs := &testutil.SafeBuffer{}
	a := NewApp(logs, &Config{ConfigPath: cfgPath, LogLevel: "debug", LogFormat: "text", Port: -1, GraphsPath: dir})

	s := a.Settings()
	assert.Equal(t, 9000, s.Server.Port, "port -1 keeps the file value")
	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, "text", s.Log.Format)
	assert.Equal(t, config.SourceFile, s.Definitions.Source)
	assert.Equal(t, dir, s.Definitions.Path)
	assert.Positive(t, a.Registry().Len())
	assert.Contains(t, logs.String(), "All node modules registered.")
}

func TestNewApp_PanicsOnInvalidSettings(t *testing.T) {
	assert.PanicsWithError(t, "invalid configuration: log.level must be 'debug', 'info', 'warn', or 'error', got 'loud'", func() {
		NewApp(&testutil.SafeBuffer{}, &Config{LogLevel: "loud", Port: -1})
	})
}

func TestNewConfig(t *testing.T) {
	_, err := NewConfig(Config{Port: 70000})
	assert.Error(t, err)
	cfg, err := NewConfig(Config{Port: -1, LogLevel: "info"})
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "graphs", "alice", "main.hcl"), `
graph "greeter" {
  triggers  = ["chat"]
  structure = <<EOT
{"nodes":[{"id":"start","type":"event:chat"}],"connections":[]}
EOT
}
`)
	writeFile(t, filepath.Join(dir, "botgraph.yaml"), fmt.Sprintf(`
definitions:
  source: file
  path: %s
database:
  type: sqlite
  path: %s
traces:
  backend: sql
  history_size: 10
owners: [alice]
`, filepath.Join(dir, "graphs"), filepath.Join(dir, "botgraph.db")))

	logs := &testutil.SafeBuffer{}
	a := NewApp(logs, &Config{ConfigPath: filepath.Join(dir, "botgraph.yaml"), LogLevel: "debug", LogFormat: "text", Port: 0})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	var addr string
	select {
	case addr = <-a.Ready():
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not start")
	}

	port := addr[strings.LastIndex(addr, ":")+1:]
	resp, err := http.Get("http://127.0.0.1:" + port + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Contains(t, logs.String(), "Graphs loaded.")
	assert.FileExists(t, filepath.Join(dir, "botgraph.db"))
}

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vk/botgraph/internal/cli"
	"github.com/vk/botgraph/internal/testutil"
)

func TestRun_PanicRecovery(t *testing.T) {
	t.Parallel()

	// A settings file that is not valid YAML makes app.NewApp panic.
	filePath := filepath.Join(t.TempDir(), "botgraph.yaml")
	require.NoError(t, os.WriteFile(filePath, []byte("server: [unclosed"), 0o600))

	out := &testutil.SafeBuffer{}
	runErr := run(context.Background(), out, []string{"--config", filePath, "--env-file", ""})

	var exitErr *cli.ExitError
	require.ErrorAs(t, runErr, &exitErr)
	require.Equal(t, 1, exitErr.Code)
	require.Contains(t, exitErr.Message, "application startup panicked")
	require.Contains(t, exitErr.Message, "failed to parse config file")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	out := &testutil.SafeBuffer{}
	err := run(context.Background(), out, []string{"-h"})

	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	out := &testutil.SafeBuffer{}
	err := run(context.Background(), out, []string{"--this-is-not-a-valid-flag"})

	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_StopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := &testutil.SafeBuffer{}
	err := run(ctx, out, []string{"--graphs", t.TempDir(), "--port", "0", "--env-file", "", "--log-level", "debug"})
	require.NoError(t, err)
	logs := out.String()
	require.Contains(t, logs, "botgraph started.")
	// The listener goroutine has finished logging by the time run returns.
	require.Contains(t, logs, "Gateway listening.")
	require.Contains(t, logs, "Gateway shut down.")
}

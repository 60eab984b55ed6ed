package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, exit, err := Parse(nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.False(t, exit)
	assert.Equal(t, -1, cfg.Port)
	assert.Equal(t, ".env", cfg.EnvFile)
	assert.Empty(t, cfg.ConfigPath)
}

func TestParse_Flags(t *testing.T) {
	cfg, _, err := Parse([]string{"-c", "bot.yaml", "--graphs", "g", "--port", "9000", "--log-level", "DEBUG", "--log-format", "text"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "bot.yaml", cfg.ConfigPath)
	assert.Equal(t, "g", cfg.GraphsPath)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)

	cfg, _, err = Parse([]string{"--config", "long.yaml", "-c", "short.yaml"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "long.yaml", cfg.ConfigPath)
}

func TestParse_Help(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, exit, err := Parse([]string{"-h"}, out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Nil(t, cfg)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParse_Errors(t *testing.T) {
	cases := map[string][]string{
		"invalid log-format":    {"--log-format", "xml"},
		"invalid log-level":     {"--log-level", "loud"},
		"unexpected argument":   {"extra"},
		"port must be between":  {"--port", "70000"},
		"flag provided but not": {"--nope"},
	}
	for want, args := range cases {
		t.Run(want, func(t *testing.T) {
			_, _, err := Parse(args, &bytes.Buffer{})
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, want)
		})
	}
}

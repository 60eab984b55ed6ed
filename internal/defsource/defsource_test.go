package defsource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/botgraph/internal/config"
	"github.com/vk/botgraph/internal/database"
	"github.com/vk/botgraph/internal/graph"
	"github.com/vk/botgraph/internal/runtime"
)

const greeterJSON = `{"nodes":[{"id":"start","type":"event:chat"}],"connections":[]}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileSource_Definitions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "alice", "greeter.json"), greeterJSON)
	writeFile(t, filepath.Join(root, "alice", "graphs.hcl"), `
graph "greeter" {
  name           = "Greeter"
  triggers       = ["chat", "private"]
  structure_file = "greeter.json"

  variable "count" {
    type  = "number"
    value = 3
  }
  variable "names" {
    type  = "array"
    value = ["a", "b"]
  }
  variable "label" {
    type = "string"
  }
}

graph "off" {
  enabled   = false
  triggers  = ["tick"]
  structure = <<EOT
{"nodes":[{"id":"t","type":"event:tick"}],"connections":[]}
EOT
}
`)

	defs, err := NewFileSource(root).Definitions(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, defs, 2)

	g := defs[0]
	assert.Equal(t, "greeter", g.ID)
	assert.Equal(t, "alice", g.OwnerID)
	assert.Equal(t, "Greeter", g.Name)
	assert.True(t, g.Enabled)
	assert.Equal(t, []string{"chat", "private"}, g.Triggers)
	assert.JSONEq(t, greeterJSON, string(g.Structure))
	assert.Equal(t, []graph.Variable{
		{Name: "count", Type: graph.VarNumber, Value: float64(3)},
		{Name: "names", Type: graph.VarArray, Value: []any{"a", "b"}},
		{Name: "label", Type: graph.VarString},
	}, g.Variables)

	off := defs[1]
	assert.Equal(t, "off", off.Name, "name defaults to the id")
	assert.False(t, off.Enabled)
	parsed, err := graph.Parse(off.Structure)
	require.NoError(t, err)
	assert.Equal(t, "event:tick", parsed.Nodes[0].Type)

	assert.Len(t, Enabled(defs), 1)
}

func TestFileSource_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown owner", func(t *testing.T) {
		_, err := NewFileSource(t.TempDir()).Definitions(ctx, "nobody")
		assert.ErrorIs(t, err, ErrUnknownOwner)
	})

	t.Run("syntax error", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "o", "bad.hcl"), `graph "x" {`)
		_, err := NewFileSource(root).Definitions(ctx, "o")
		assert.ErrorContains(t, err, "failed to parse HCL file")
	})

	t.Run("duplicate graph id", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "o", "a.hcl"), `graph "x" { structure = "{}" }`)
		writeFile(t, filepath.Join(root, "o", "b.hcl"), `graph "x" { structure = "{}" }`)
		_, err := NewFileSource(root).Definitions(ctx, "o")
		assert.ErrorContains(t, err, "already defined")
	})

	t.Run("bad variable type", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "o", "a.hcl"), `
graph "x" {
  variable "v" {
    type = "matrix"
  }
}`)
		_, err := NewFileSource(root).Definitions(ctx, "o")
		assert.ErrorContains(t, err, `unsupported type "matrix"`)
	})

	t.Run("missing structure file is left empty", func(t *testing.T) {
		root := t.TempDir()
		writeFile(t, filepath.Join(root, "o", "a.hcl"), `graph "x" { structure_file = "gone.json" }`)
		defs, err := NewFileSource(root).Definitions(ctx, "o")
		require.NoError(t, err)
		require.Len(t, defs, 1)
		assert.Empty(t, defs[0].Structure)
	})
}

func TestFileSource_Owners(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "alice", "a.hcl"), "")
	writeFile(t, filepath.Join(root, "bob", "b.hcl"), "")
	writeFile(t, filepath.Join(root, "README"), "")

	owners, err := NewFileSource(root).Owners()
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, owners)
}

func openSQLite(t *testing.T) *SQLSource {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, config.DataSource{Type: config.DBSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	s := NewSQLSource(db)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestSQLSource_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t)

	want := Definition{
		ID:        "greeter",
		OwnerID:   "alice",
		Name:      "Greeter",
		Enabled:   true,
		Triggers:  []string{"chat"},
		Structure: []byte(greeterJSON),
		Variables: []graph.Variable{{Name: "count", Type: graph.VarNumber, Value: float64(1)}},
	}
	require.NoError(t, s.Save(ctx, want))
	require.NoError(t, s.Save(ctx, Definition{ID: "off", OwnerID: "alice", Name: "Off", Structure: []byte("{}")}))
	require.NoError(t, s.Save(ctx, Definition{ID: "other", OwnerID: "bob", Name: "Other", Enabled: true, Structure: []byte("{}")}))

	defs, err := s.Definitions(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, want, defs[0])
	assert.False(t, defs[1].Enabled)
	assert.Empty(t, defs[1].Triggers)

	err = s.Apply(ctx, "alice", "greeter", []runtime.Intent{
		{Kind: runtime.IntentPersistVariable, Name: "count", Value: float64(5)},
		{Kind: runtime.IntentPersistVariable, Name: "count", Value: float64(7)},
		{Kind: runtime.IntentPersistVariable, Name: "undeclared", Value: "x"},
	})
	require.NoError(t, err)

	defs, err = s.Definitions(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, float64(7), defs[0].Variables[0].Value)
	assert.Len(t, defs[0].Variables, 1)

	err = s.Apply(ctx, "alice", "missing", []runtime.Intent{{Kind: runtime.IntentPersistVariable, Name: "count", Value: 1}})
	assert.ErrorIs(t, err, ErrGraphNotFound)

	assert.NoError(t, s.Apply(ctx, "alice", "missing", nil), "no intents means no lookup")
}

func TestSQLSource_PostgresDialect(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	s := NewSQLSource(database.NewClient(db, config.DBPostgres))

	mock.ExpectQuery(`SELECT id, name, enabled, triggers, structure, variables FROM graphs WHERE owner_id = \$1`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "enabled", "triggers", "structure", "variables"}).
			AddRow("g1", "One", true, `["chat"]`, greeterJSON, `[]`).
			AddRow("g2", "Two", true, `not json`, greeterJSON, `[]`))

	defs, err := s.Definitions(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, []string{"chat"}, defs[0].Triggers)
	assert.Empty(t, defs[1].Triggers, "malformed triggers are ignored")

	mock.ExpectQuery(`SELECT variables FROM graphs WHERE owner_id = \$1 AND id = \$2`).
		WithArgs("alice", "g1").
		WillReturnRows(sqlmock.NewRows([]string{"variables"}).AddRow(`[{"name":"n","type":"number","value":0}]`))
	mock.ExpectExec(`UPDATE graphs SET variables = \$1 WHERE owner_id = \$2 AND id = \$3`).
		WithArgs(`[{"name":"n","type":"number","value":2}]`, "alice", "g1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = s.Apply(context.Background(), "alice", "g1", []runtime.Intent{{Kind: runtime.IntentPersistVariable, Name: "n", Value: 2}})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

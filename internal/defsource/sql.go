package defsource

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/vk/botgraph/internal/ctxlog"
	"github.com/vk/botgraph/internal/database"
	"github.com/vk/botgraph/internal/graph"
	"github.com/vk/botgraph/internal/runtime"
)

var (
	queryCreateGraphs = database.Query{
		ID: "GRS-01",
		Query: `CREATE TABLE IF NOT EXISTS graphs (
	id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	triggers TEXT NOT NULL DEFAULT '[]',
	structure TEXT NOT NULL,
	variables TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY (owner_id, id)
)`,
	}
	queryListGraphs = database.Query{
		ID:            "GRS-02",
		PostgresQuery: `SELECT id, name, enabled, triggers, structure, variables FROM graphs WHERE owner_id = $1 ORDER BY id`,
		SQLiteQuery:   `SELECT id, name, enabled, triggers, structure, variables FROM graphs WHERE owner_id = ? ORDER BY id`,
	}
	queryUpsertGraph = database.Query{
		ID: "GRS-03",
		PostgresQuery: `INSERT INTO graphs (id, owner_id, name, enabled, triggers, structure, variables)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (owner_id, id) DO UPDATE SET name = EXCLUDED.name, enabled = EXCLUDED.enabled,
triggers = EXCLUDED.triggers, structure = EXCLUDED.structure, variables = EXCLUDED.variables`,
		SQLiteQuery: `INSERT OR REPLACE INTO graphs (id, owner_id, name, enabled, triggers, structure, variables)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
	}
	queryGetVariables = database.Query{
		ID:            "GRS-04",
		PostgresQuery: `SELECT variables FROM graphs WHERE owner_id = $1 AND id = $2`,
		SQLiteQuery:   `SELECT variables FROM graphs WHERE owner_id = ? AND id = ?`,
	}
	queryUpdateVariables = database.Query{
		ID:            "GRS-05",
		PostgresQuery: `UPDATE graphs SET variables = $1 WHERE owner_id = $2 AND id = $3`,
		SQLiteQuery:   `UPDATE graphs SET variables = ? WHERE owner_id = ? AND id = ?`,
	}
)

// ErrGraphNotFound is returned when an intent targets a graph the table
// does not hold.
var ErrGraphNotFound = errors.New("graph not found")

// SQLSource reads definitions from the graphs table. Triggers and
// variables are stored as JSON arrays.
type SQLSource struct {
	db *database.Client
}

var (
	_ Source             = (*SQLSource)(nil)
	_ runtime.IntentSink = (*SQLSource)(nil)
)

// NewSQLSource creates a source over an open database.
func NewSQLSource(db *database.Client) *SQLSource {
	return &SQLSource{db: db}
}

// Migrate creates the graphs table if it does not exist.
func (s *SQLSource) Migrate(ctx context.Context) error {
	if _, err := s.db.Execute(ctx, queryCreateGraphs); err != nil {
		return fmt.Errorf("failed to migrate graphs table: %w", err)
	}
	return nil
}

// Definitions returns every graph of the owner, enabled or not.
func (s *SQLSource) Definitions(ctx context.Context, ownerID string) ([]Definition, error) {
	rows, err := s.db.Query(ctx, queryListGraphs, ownerID)
	if err != nil {
		return nil, err
	}

	logger := ctxlog.FromContext(ctx).With("owner", ownerID)
	defs := make([]Definition, 0, len(rows))
	for _, row := range rows {
		d := Definition{
			ID:        database.AsString(row["id"]),
			OwnerID:   ownerID,
			Name:      database.AsString(row["name"]),
			Enabled:   asBool(row["enabled"]),
			Structure: []byte(database.AsString(row["structure"])),
		}
		if err := decodeJSON(row["triggers"], &d.Triggers); err != nil {
			logger.Warn("Ignoring malformed graph triggers.", "graph", d.ID, "error", err)
		}
		if err := decodeJSON(row["variables"], &d.Variables); err != nil {
			logger.Warn("Ignoring malformed graph variables.", "graph", d.ID, "error", err)
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// Save inserts or replaces a definition.
func (s *SQLSource) Save(ctx context.Context, d Definition) error {
	triggers, err := sonic.MarshalString(nonNil(d.Triggers))
	if err != nil {
		return fmt.Errorf("failed to encode triggers of %s: %w", d.ID, err)
	}
	vars := d.Variables
	if vars == nil {
		vars = []graph.Variable{}
	}
	variables, err := sonic.MarshalString(vars)
	if err != nil {
		return fmt.Errorf("failed to encode variables of %s: %w", d.ID, err)
	}
	_, err = s.db.Execute(ctx, queryUpsertGraph,
		d.ID, d.OwnerID, d.Name, d.Enabled, triggers, string(d.Structure), variables)
	return err
}

// Apply stores the values of persist_variable intents as the new declared
// defaults of the graph, so they survive a reload. Later intents for the
// same variable win. Other intent kinds are ignored.
func (s *SQLSource) Apply(ctx context.Context, ownerID, graphID string, intents []runtime.Intent) error {
	updates := make(map[string]any)
	for _, in := range intents {
		if in.Kind == runtime.IntentPersistVariable {
			updates[in.Name] = in.Value
		}
	}
	if len(updates) == 0 {
		return nil
	}

	rows, err := s.db.Query(ctx, queryGetVariables, ownerID, graphID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: %s/%s", ErrGraphNotFound, ownerID, graphID)
	}
	var decls []graph.Variable
	if err := decodeJSON(rows[0]["variables"], &decls); err != nil {
		return fmt.Errorf("failed to decode variables of %s: %w", graphID, err)
	}

	for i := range decls {
		if v, ok := updates[decls[i].Name]; ok {
			decls[i].Value = v
			delete(updates, decls[i].Name)
		}
	}
	if len(updates) > 0 {
		ctxlog.FromContext(ctx).Warn("Persist intents for undeclared variables ignored.", "graph", graphID, "count", len(updates))
	}

	encoded, err := sonic.MarshalString(decls)
	if err != nil {
		return fmt.Errorf("failed to encode variables of %s: %w", graphID, err)
	}
	_, err = s.db.Execute(ctx, queryUpdateVariables, encoded, ownerID, graphID)
	return err
}

func decodeJSON(v any, out any) error {
	s := database.AsString(v)
	if s == "" {
		return nil
	}
	return sonic.UnmarshalString(s, out)
}

func asBool(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case int64:
		return b != 0
	}
	s := database.AsString(v)
	return s == "1" || s == "true" || s == "t"
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

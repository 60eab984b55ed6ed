package tracestore

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/vk/botgraph/internal/database"
	"github.com/vk/botgraph/internal/trace"
)

var (
	queryCreateTable = database.Query{
		ID: "TRS-01",
		Query: `CREATE TABLE IF NOT EXISTS graph_traces (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	graph_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at BIGINT NOT NULL,
	payload TEXT NOT NULL
)`,
	}
	queryCreateIndex = database.Query{
		ID:    "TRS-02",
		Query: `CREATE INDEX IF NOT EXISTS graph_traces_lookup ON graph_traces (owner_id, graph_id, started_at)`,
	}
	querySave = database.Query{
		ID: "TRS-03",
		PostgresQuery: `INSERT INTO graph_traces (id, owner_id, graph_id, event_type, status, started_at, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, payload = EXCLUDED.payload`,
		SQLiteQuery: `INSERT OR REPLACE INTO graph_traces (id, owner_id, graph_id, event_type, status, started_at, payload)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
	}
	queryGet = database.Query{
		ID:            "TRS-04",
		PostgresQuery: `SELECT payload FROM graph_traces WHERE id = $1`,
		SQLiteQuery:   `SELECT payload FROM graph_traces WHERE id = ?`,
	}
	queryLast = database.Query{
		ID:            "TRS-05",
		PostgresQuery: `SELECT payload FROM graph_traces WHERE owner_id = $1 AND graph_id = $2 ORDER BY started_at DESC LIMIT 1`,
		SQLiteQuery:   `SELECT payload FROM graph_traces WHERE owner_id = ? AND graph_id = ? ORDER BY started_at DESC LIMIT 1`,
	}
	queryLastByEvent = database.Query{
		ID:            "TRS-06",
		PostgresQuery: `SELECT payload FROM graph_traces WHERE owner_id = $1 AND graph_id = $2 AND event_type = $3 ORDER BY started_at DESC LIMIT 1`,
		SQLiteQuery:   `SELECT payload FROM graph_traces WHERE owner_id = ? AND graph_id = ? AND event_type = ? ORDER BY started_at DESC LIMIT 1`,
	}
)

// SQLStore keeps traces in the graph_traces table.
type SQLStore struct {
	db *database.Client
}

var _ trace.Store = (*SQLStore)(nil)

// NewSQLStore creates a store over an open database.
func NewSQLStore(db *database.Client) *SQLStore {
	return &SQLStore{db: db}
}

// Migrate creates the table if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, q := range []database.Query{queryCreateTable, queryCreateIndex} {
		if _, err := s.db.Execute(ctx, q); err != nil {
			return fmt.Errorf("failed to migrate trace table: %w", err)
		}
	}
	return nil
}

// Save inserts or replaces a trace.
func (s *SQLStore) Save(ctx context.Context, t *trace.Trace) error {
	payload, err := sonic.MarshalString(t)
	if err != nil {
		return fmt.Errorf("failed to encode trace %s: %w", t.ID, err)
	}
	_, err = s.db.Execute(ctx, querySave,
		t.ID, t.OwnerID, t.GraphID, t.EventType, string(t.Status), t.StartedAt.UnixNano(), payload)
	return err
}

// Get returns the trace with the given id.
func (s *SQLStore) Get(ctx context.Context, id string) (*trace.Trace, error) {
	return s.one(ctx, queryGet, id)
}

// Last returns the most recently started trace of a graph.
func (s *SQLStore) Last(ctx context.Context, ownerID, graphID, eventType string) (*trace.Trace, error) {
	if eventType == "" {
		return s.one(ctx, queryLast, ownerID, graphID)
	}
	return s.one(ctx, queryLastByEvent, ownerID, graphID, eventType)
}

func (s *SQLStore) one(ctx context.Context, q database.Query, args ...any) (*trace.Trace, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, trace.ErrNotFound
	}
	return decode(database.AsString(rows[0]["payload"]))
}

func decode(payload string) (*trace.Trace, error) {
	var t trace.Trace
	if err := sonic.UnmarshalString(payload, &t); err != nil {
		return nil, fmt.Errorf("failed to decode trace: %w", err)
	}
	return &t, nil
}

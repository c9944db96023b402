package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/DMHCAIT/turteltrader/internal/event"

	_ "github.com/glebarez/go-sqlite"
)

// AuditStore persists engine events to SQLite. Signals, transitions and
// order outcomes live here and nowhere else; the store is an audit trail,
// never an input to engine decisions.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore opens (or creates) the audit database with WAL mode enabled.
func NewAuditStore(dbPath string) (*AuditStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA cache_size=-2000;", // 2MB cache
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	// Metadata table carries small KV state that must survive restarts
	// (session date, cached reference closes).
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			type INTEGER NOT NULL,
			ts INTEGER NOT NULL,
			symbol TEXT NOT NULL DEFAULT '',
			payload BLOB NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}

	return &AuditStore{db: db}, nil
}

// SaveEvent stores an event in the database.
func (s *AuditStore) SaveEvent(ctx context.Context, ev event.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO events (id, type, ts, symbol, payload) VALUES (?, ?, ?, ?, ?)",
		ev.GetSeq(), ev.GetType(), ev.GetTs(), eventSymbol(ev), payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// Consume implements event.Sink so the store can subscribe to the hub
// directly. Persistence failures are reported, not fatal: the audit
// trail must never take the engine down.
func (s *AuditStore) Consume(ev event.Event) {
	if err := s.SaveEvent(context.Background(), ev); err != nil {
		slog.Error("audit store: failed to persist event",
			slog.Uint64("seq", ev.GetSeq()), slog.String("err", err.Error()))
	}
}

// UpsertMetadata saves a key-value pair to the metadata table.
func (s *AuditStore) UpsertMetadata(ctx context.Context, key, value string, ts int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO metadata (key, value, updated_at) VALUES (?, ?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at",
		key, value, ts,
	)
	return err
}

// GetMetadata retrieves a value from the metadata table.
// Returns empty string when the key does not exist.
func (s *AuditStore) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// GetLastSeq returns the highest event sequence number stored.
// Returns 0 if no events exist.
func (s *AuditStore) GetLastSeq(ctx context.Context) (uint64, error) {
	var lastSeq sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(id) FROM events").Scan(&lastSeq)
	if err != nil {
		return 0, fmt.Errorf("failed to get last seq: %w", err)
	}
	if !lastSeq.Valid {
		return 0, nil
	}
	return uint64(lastSeq.Int64), nil
}

// LoadTransitions loads transition events for a symbol, oldest first.
// Empty symbol loads all. Used by the dashboard's history view and by
// tests verifying the audit trail.
func (s *AuditStore) LoadTransitions(ctx context.Context, symbol string) ([]*event.TransitionEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM events WHERE type = ? AND (symbol = ? OR ? = '') ORDER BY id ASC",
		event.EvTransition, symbol, symbol,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out []*event.TransitionEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		var ev event.TransitionEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transition: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// LoadAlerts loads alert events at or above the given level order
// (INFO < WARN < FATAL), oldest first.
func (s *AuditStore) LoadAlerts(ctx context.Context) ([]*event.AlertEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM events WHERE type = ? ORDER BY id ASC", event.EvAlert)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var out []*event.AlertEvent
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		var ev event.AlertEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert: %w", err)
		}
		out = append(out, &ev)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *AuditStore) Close() error {
	return s.db.Close()
}

func eventSymbol(ev event.Event) string {
	switch e := ev.(type) {
	case *event.SignalEvent:
		return e.Signal.Symbol
	case *event.TransitionEvent:
		return e.Symbol
	case *event.OrderUpdateEvent:
		return e.Symbol
	case *event.AlertEvent:
		return e.Symbol
	default:
		return ""
	}
}

// Package usagelog keeps a local mirror of usage events in SQLite. The ledger
// provider is the billing source of truth; the mirror powers local analytics
// and holds events that failed to sync for later reconciliation.
package usagelog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/researchai/research-bridge/internal/types"
	_ "modernc.org/sqlite"
)

// DayBucket is one day of aggregated usage for a user.
type DayBucket struct {
	Date         string `json:"date"`
	CreditsUsed  int    `json:"creditsUsed"`
	EventCount   int    `json:"eventCount"`
	FailedEvents int    `json:"failedEvents"`
}

// Manager owns the local usage database.
type Manager struct {
	db *sql.DB
}

// NewManager opens (or creates) the usage database at dbPath.
func NewManager(dbPath string) (*Manager, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create usage log directory: %w", err)
		}
	}

	// _busy_timeout=5000 - wait up to 5 seconds when database is locked
	connStr := dbPath + "?_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open usage database: %w", err)
	}

	// SQLite handles one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.Printf("⚠️ [UsageLog] Failed to enable WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		log.Printf("⚠️ [UsageLog] Failed to set busy timeout: %v", err)
	}

	m := &Manager{db: db}
	if err := m.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("📊 [UsageLog] Usage database ready: %s", dbPath)
	return m, nil
}

func (m *Manager) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage_events (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		event_type TEXT NOT NULL,
		credits    INTEGER NOT NULL,
		success    INTEGER NOT NULL DEFAULT 1,
		synced     INTEGER NOT NULL DEFAULT 0,
		error      TEXT,
		metadata   TEXT,
		timestamp  DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_events_user_time ON usage_events(user_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_usage_events_synced ON usage_events(synced);
	`
	if _, err := m.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to migrate usage schema: %w", err)
	}
	return nil
}

// RecordEvent mirrors one usage event. synced marks whether the ledger
// provider accepted it; unsynced rows are reconciliation candidates.
func (m *Manager) RecordEvent(event types.UsageEvent, synced bool) error {
	success := true
	var errText sql.NullString
	if v, ok := event.Metadata["success"].(bool); ok {
		success = v
	}
	if v, ok := event.Metadata["error"].(string); ok && v != "" {
		errText = sql.NullString{String: v, Valid: true}
	}

	var metadata []byte
	if event.Metadata != nil {
		metadata, _ = json.Marshal(event.Metadata)
	}

	_, err := m.db.Exec(`
		INSERT OR REPLACE INTO usage_events (id, user_id, event_type, credits, success, synced, error, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.UserID, event.EventType, event.Credits,
		boolToInt(success), boolToInt(synced), errText, string(metadata),
		event.Timestamp.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to record usage event: %w", err)
	}
	return nil
}

// Analytics aggregates the user's events over the last `days` days into
// per-day buckets, newest first. Days without activity are omitted.
func (m *Manager) Analytics(userID string, days int) ([]DayBucket, error) {
	if days <= 0 {
		days = 30
	}
	since := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)

	rows, err := m.db.Query(`
		SELECT substr(timestamp, 1, 10) AS day,
		       COALESCE(SUM(credits), 0),
		       COUNT(*),
		       COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0)
		FROM usage_events
		WHERE user_id = ? AND timestamp >= ?
		GROUP BY day
		ORDER BY day DESC`,
		userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage analytics: %w", err)
	}
	defer rows.Close()

	var buckets []DayBucket
	for rows.Next() {
		var b DayBucket
		if err := rows.Scan(&b.Date, &b.CreditsUsed, &b.EventCount, &b.FailedEvents); err != nil {
			return nil, fmt.Errorf("failed to scan usage bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// UnsyncedCount returns how many mirrored events the provider has not
// accepted yet.
func (m *Manager) UnsyncedCount() (int, error) {
	var count int
	err := m.db.QueryRow(`SELECT COUNT(*) FROM usage_events WHERE synced = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unsynced events: %w", err)
	}
	return count, nil
}

// MarkSynced flags one event as accepted by the provider.
func (m *Manager) MarkSynced(eventID string) error {
	_, err := m.db.Exec(`UPDATE usage_events SET synced = 1 WHERE id = ?`, eventID)
	if err != nil {
		return fmt.Errorf("failed to mark event synced: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (m *Manager) Close() error {
	return m.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

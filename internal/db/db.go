package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// FileName is the name of the event database inside the config directory.
const FileName = "events.db"

// DB wraps the SQLite database connection and provides logging methods
type DB struct {
	conn *sql.DB
	path string
}

// Open opens or creates the SQLite database at the specified path
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	db := &DB{
		conn: conn,
		path: path,
	}

	if err := db.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection
func (db *DB) Close() error {
	if db.conn != nil {
		// Checkpoint the WAL to ensure all data is written to the main database file
		db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return db.conn.Close()
	}
	return nil
}

// Flush forces a WAL checkpoint to write pending changes to the main database file
func (db *DB) Flush() error {
	if db.conn != nil {
		_, err := db.conn.Exec("PRAGMA wal_checkpoint(RESTART)")
		return err
	}
	return nil
}

func (db *DB) initSchema() error {
	schema := `
	-- Canonical device lifecycle events
	CREATE TABLE IF NOT EXISTS device_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		canonical_id TEXT NOT NULL,
		device_name TEXT,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Daemon lifecycle events
	CREATE TABLE IF NOT EXISTS daemon_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		details TEXT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_device_events_timestamp ON device_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_device_events_canonical_id ON device_events(canonical_id);
	CREATE INDEX IF NOT EXISTS idx_daemon_events_timestamp ON daemon_events(timestamp);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// execWithRetry retries briefly while the database is locked (3 attempts,
// 5ms apart). Logging is best-effort and must not block the daemon.
func (db *DB) execWithRetry(query string, args ...any) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		_, err := db.conn.Exec(query, args...)
		if err == nil {
			return nil
		}
		if strings.Contains(err.Error(), "database is locked") || strings.Contains(err.Error(), "SQLITE_BUSY") {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		return err
	}
	return fmt.Errorf("failed to write event after %d retries: database locked", maxRetries)
}

// DeviceEvent represents a canonical device lifecycle event
type DeviceEvent struct {
	ID          int64     `json:"id"`
	CanonicalID string    `json:"canonical_id"`
	DeviceName  string    `json:"device_name"`
	EventType   string    `json:"event_type"`
	Details     string    `json:"details"`
	Timestamp   time.Time `json:"timestamp"`
}

// LogDeviceEvent logs a device lifecycle event to the database
func (db *DB) LogDeviceEvent(canonicalID, deviceName, eventType, details string) error {
	return db.LogDeviceEventAt(canonicalID, deviceName, eventType, details, time.Now())
}

// LogDeviceEventAt logs a device lifecycle event with an explicit timestamp
func (db *DB) LogDeviceEventAt(canonicalID, deviceName, eventType, details string, ts time.Time) error {
	return db.execWithRetry(
		`INSERT INTO device_events (canonical_id, device_name, event_type, details, timestamp)
		 VALUES (?, ?, ?, ?, ?)`,
		canonicalID, deviceName, eventType, details, ts,
	)
}

// DaemonEvent represents a daemon lifecycle event
type DaemonEvent struct {
	ID        int64     `json:"id"`
	EventType string    `json:"event_type"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// LogDaemonEvent logs a daemon lifecycle event to the database
func (db *DB) LogDaemonEvent(eventType, details string) error {
	return db.execWithRetry(
		`INSERT INTO daemon_events (event_type, details, timestamp)
		 VALUES (?, ?, ?)`,
		eventType, details, time.Now(),
	)
}

// GetRecentDeviceEvents retrieves recent device events, newest first. A
// non-empty canonicalID limits the result to that device.
func (db *DB) GetRecentDeviceEvents(canonicalID string, limit int) ([]DeviceEvent, error) {
	query := `SELECT id, canonical_id, device_name, event_type, details, timestamp
		 FROM device_events`
	args := []any{}
	if canonicalID != "" {
		query += ` WHERE canonical_id = ?`
		args = append(args, canonicalID)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []DeviceEvent
	for rows.Next() {
		var e DeviceEvent
		var name, details sql.NullString
		if err := rows.Scan(&e.ID, &e.CanonicalID, &name, &e.EventType, &details, &e.Timestamp); err != nil {
			return nil, err
		}
		e.DeviceName = name.String
		e.Details = details.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetRecentDaemonEvents retrieves recent daemon events, newest first
func (db *DB) GetRecentDaemonEvents(limit int) ([]DaemonEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, event_type, details, timestamp
		 FROM daemon_events
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []DaemonEvent
	for rows.Next() {
		var e DaemonEvent
		var details sql.NullString
		if err := rows.Scan(&e.ID, &e.EventType, &details, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Details = details.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// GetLastDeviceEventPerDevice retrieves the most recent event for each device
func (db *DB) GetLastDeviceEventPerDevice() ([]DeviceEvent, error) {
	rows, err := db.conn.Query(
		`SELECT id, canonical_id, device_name, event_type, details, timestamp
		 FROM device_events
		 WHERE id IN (
			 SELECT MAX(id)
			 FROM device_events
			 GROUP BY canonical_id
		 )
		 ORDER BY timestamp DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []DeviceEvent
	for rows.Next() {
		var e DeviceEvent
		var name, details sql.NullString
		if err := rows.Scan(&e.ID, &e.CanonicalID, &name, &e.EventType, &details, &e.Timestamp); err != nil {
			return nil, err
		}
		e.DeviceName = name.String
		e.Details = details.String
		events = append(events, e)
	}
	return events, rows.Err()
}

// PruneDeviceEvents deletes device events older than cutoff and returns the
// number of rows removed.
func (db *DB) PruneDeviceEvents(cutoff time.Time) (int64, error) {
	res, err := db.conn.Exec(`DELETE FROM device_events WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

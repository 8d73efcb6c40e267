// Package history persists identity evidence for devices keyed by their
// persistent serial, so that devices can be recognised again while offline
// or after their transport id changed.
package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// FileName is the name of the history file inside the config directory.
const FileName = "devices.json"

const fileVersion = "1"

// Record is the durable metadata of one physical device.
type Record struct {
	PersistentSerial string    `json:"persistent_serial"`
	CustomName       string    `json:"custom_name,omitempty"`
	LastKnownIP      string    `json:"last_known_ip,omitempty"`
	LastKnownPort    int       `json:"last_known_port,omitempty"`
	LastSeen         time.Time `json:"last_seen"`
	Model            string    `json:"model,omitempty"`
	Brand            string    `json:"brand,omitempty"`
}

// Address returns "ip:port" of the last known network address, or "" if
// either part is missing.
func (r Record) Address() string {
	if r.LastKnownIP == "" || r.LastKnownPort == 0 {
		return ""
	}
	return fmt.Sprintf("%s:%d", r.LastKnownIP, r.LastKnownPort)
}

// File is the on-disk layout of the history file.
type File struct {
	Version string   `json:"version"`
	Devices []Record `json:"devices"`
}

// Store keeps all records in memory and rewrites the whole file on every
// mutation. Reads are safe from any goroutine.
type Store struct {
	path    string
	mu      sync.RWMutex
	records map[string]Record
	logger  *slog.Logger
}

// Open loads the store at path. A missing or unreadable file yields an
// empty store; the problem is logged but never returned.
func Open(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		path:    path,
		records: make(map[string]Record),
		logger:  logger.With("component", "history"),
	}

	records, err := load(path)
	if err != nil {
		s.logger.Warn("Failed to load device history, starting empty", "path", path, "error", err)
		return s
	}
	for _, r := range records {
		if r.PersistentSerial == "" {
			continue
		}
		s.records[r.PersistentSerial] = r
	}
	s.logger.Debug("Device history loaded", "path", path, "records", len(s.records))
	return s
}

// NewMemory returns a store that is never written to disk.
func NewMemory() *Store {
	return &Store{
		records: make(map[string]Record),
		logger:  slog.Default().With("component", "history"),
	}
}

func load(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse history file: %w", err)
	}
	if file.Version != fileVersion {
		return nil, fmt.Errorf("unsupported history file version: %s (expected %s)", file.Version, fileVersion)
	}
	return file.Devices, nil
}

// Path returns the backing file path ("" for memory stores).
func (s *Store) Path() string {
	return s.path
}

// Get returns the record of a serial.
func (s *Store) Get(serial string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[serial]
	return r, ok
}

// FindByIP returns the record last seen at ip. When several records share
// the address, the most recently seen one wins.
func (s *Store) FindByIP(ip string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best Record
	found := false
	for _, r := range s.records {
		if r.LastKnownIP != ip {
			continue
		}
		if !found || r.LastSeen.After(best.LastSeen) ||
			(r.LastSeen.Equal(best.LastSeen) && r.PersistentSerial < best.PersistentSerial) {
			best = r
			found = true
		}
	}
	return best, found
}

// All returns every record, most recently seen first.
func (s *Store) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

func (s *Store) sortedLocked() []Record {
	records := make([]Record, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].LastSeen.Equal(records[j].LastSeen) {
			return records[i].LastSeen.After(records[j].LastSeen)
		}
		return records[i].PersistentSerial < records[j].PersistentSerial
	})
	return records
}

// Upsert stores all records and persists once.
func (s *Store) Upsert(records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		if r.PersistentSerial == "" {
			continue
		}
		s.records[r.PersistentSerial] = r
	}
	return s.persistLocked()
}

// Touch merges sightings into the stored records and persists once. Only
// LastSeen, a non-empty address and non-blank model and brand are taken
// from each sighting; the stored custom name always wins.
func (s *Store) Touch(sightings ...Record) error {
	if len(sightings) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seen := range sightings {
		if seen.PersistentSerial == "" {
			continue
		}
		r, ok := s.records[seen.PersistentSerial]
		if !ok {
			r = Record{PersistentSerial: seen.PersistentSerial}
		}
		if !seen.LastSeen.IsZero() {
			r.LastSeen = seen.LastSeen
		}
		if seen.LastKnownIP != "" && seen.LastKnownPort != 0 {
			r.LastKnownIP = seen.LastKnownIP
			r.LastKnownPort = seen.LastKnownPort
		}
		if seen.Model != "" {
			r.Model = seen.Model
		}
		if seen.Brand != "" {
			r.Brand = seen.Brand
		}
		s.records[seen.PersistentSerial] = r
	}
	return s.persistLocked()
}

// SetCustomName sets or clears the custom name of a serial, creating the
// record if needed.
func (s *Store) SetCustomName(serial, name string) error {
	if serial == "" {
		return fmt.Errorf("persistent serial is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[serial]
	if !ok {
		r = Record{PersistentSerial: serial, LastSeen: time.Now()}
	}
	r.CustomName = name
	s.records[serial] = r
	return s.persistLocked()
}

// Remove deletes the record of a serial. It reports whether a record existed.
func (s *Store) Remove(serial string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[serial]; !ok {
		return false, nil
	}
	delete(s.records, serial)
	return true, s.persistLocked()
}

// Clear deletes every record.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]Record)
	return s.persistLocked()
}

// persistLocked rewrites the whole file via temp file + rename.
func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(File{Version: fileVersion, Devices: s.sortedLocked()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal device history: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write history temp file: %w", err)
	}
	if err := os.Rename(tempPath, s.path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename history file: %w", err)
	}
	return nil
}

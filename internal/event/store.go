package event

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Store persists envelopes for post-hoc inspection and replay.
// The core only appends; it never reads events back during a run.
type Store interface {
	Append(env Envelope) error
	Close() error
}

// JSONLStore appends one JSON-encoded envelope per line to a file.
type JSONLStore struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLStore opens (or creates) the event log at {dir}/events.jsonl.
func NewJSONLStore(dir string) (*JSONLStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create event log directory: %w", err)
	}

	path := filepath.Join(dir, "events.jsonl")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}

	return &JSONLStore{file: file, enc: json.NewEncoder(file)}, nil
}

// Append writes one envelope as a JSON line.
func (s *JSONLStore) Append(env Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return fmt.Errorf("event log closed")
	}
	return s.enc.Encode(env)
}

// Close flushes and closes the log file.
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Attach subscribes a store to the bus, returning the subscription ID.
// Append failures are reported through onErr when provided; event delivery
// to other consumers is never interrupted by a failing store.
func Attach(bus *Bus, store Store, onErr func(error)) uint64 {
	return bus.SubscribeAll(func(env Envelope) {
		if err := store.Append(env); err != nil && onErr != nil {
			onErr(err)
		}
	})
}

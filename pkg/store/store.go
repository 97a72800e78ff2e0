package store

import (
	"encoding/json"
	"sync"

	"loaddash/pkg/result"

	"github.com/pkg/errors"
)

// ErrMalformedPayload is returned when an authoritative result list is not a JSON
// array of records. The store is emptied when it occurs.
var ErrMalformedPayload = errors.New("malformed results payload")

// Store holds result records newest first. The session controller is its only writer;
// views read through Snapshot.
type Store struct {
	mu      sync.RWMutex
	records []result.Record
}

// New creates an empty store
func New() *Store {
	return &Store{}
}

// ReplaceAll swaps the stored sequence for records. Every record is validated first;
// if any fails, the store is left empty and the validation error is returned.
func (s *Store) ReplaceAll(records []result.Record) error {
	if err := result.ValidateAll(records); err != nil {
		s.set(nil)
		return err
	}

	next := make([]result.Record, len(records))
	copy(next, records)
	s.set(next)
	return nil
}

// ReplaceAllJSON decodes a results payload and replaces the stored sequence with it.
// Anything other than a JSON array of well-formed records empties the store.
func (s *Store) ReplaceAllJSON(payload []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil || raw == nil {
		s.set(nil)
		if err == nil {
			err = errors.New("payload is null")
		}
		return errors.Wrap(ErrMalformedPayload, err.Error())
	}

	records := make([]result.Record, 0, len(raw))
	for i, item := range raw {
		var r result.Record
		if err := json.Unmarshal(item, &r); err != nil {
			s.set(nil)
			return errors.Wrapf(ErrMalformedPayload, "element %d: %v", i, err)
		}
		records = append(records, r)
	}

	return s.ReplaceAll(records)
}

// Prepend inserts r in front of the stored records. It is not idempotent.
func (s *Store) Prepend(r result.Record) error {
	if _, err := result.Validate(r); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]result.Record, 0, len(s.records)+1)
	next = append(next, r)
	next = append(next, s.records...)
	s.records = next
	return nil
}

// Snapshot returns a copy of the stored records in store order.
func (s *Store) Snapshot() []result.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]result.Record, len(s.records))
	copy(out, s.records)
	return out
}

// Len returns the number of stored records
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *Store) set(records []result.Record) {
	s.mu.Lock()
	s.records = records
	s.mu.Unlock()
}

// Package cache stores timestamped payloads on top of the persisted client
// state. Entries past the freshness window are kept so they can be served
// as a fallback when the API is unreachable.
package cache

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/guidedesk/guidedesk/internal/kv"
)

// DefaultWindow is the freshness window used for tour data.
const DefaultWindow = 60 * time.Second

// Payload wraps cached data with the instant it was written.
type Payload[T any] struct {
	Timestamp time.Time
	Data      T
}

// FreshAt reports whether the payload is still fresh at now for window.
func (p Payload[T]) FreshAt(now time.Time, window time.Duration) bool {
	if p.Timestamp.IsZero() {
		return false
	}
	return now.Sub(p.Timestamp) < window
}

// record is the stored form. The timestamp is unix milliseconds so files
// written by older clients stay readable.
type record struct {
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Store reads and writes cache entries.
type Store struct {
	kv     kv.Store
	window time.Duration
	now    func() time.Time
	log    *zap.SugaredLogger

	mu     sync.RWMutex
	legacy map[string]string
}

// Option customizes a Store.
type Option func(*Store)

// WithWindow overrides the freshness window.
func WithWindow(window time.Duration) Option {
	return func(s *Store) {
		if window > 0 {
			s.window = window
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger used to report unreadable entries.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithLegacyKey registers the raw-payload key kept alongside primary.
func WithLegacyKey(primary, legacy string) Option {
	return func(s *Store) {
		s.legacy[primary] = legacy
	}
}

// New builds a Store over backing.
func New(backing kv.Store, opts ...Option) *Store {
	s := &Store{
		kv:     backing,
		window: DefaultWindow,
		now:    time.Now,
		log:    zap.NewNop().Sugar(),
		legacy: map[string]string{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Window returns the configured freshness window.
func (s *Store) Window() time.Duration {
	return s.window
}

// Now returns the store's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// LegacyKey returns the legacy key registered for primary, if any.
func (s *Store) LegacyKey(primary string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	legacy, ok := s.legacy[primary]
	return legacy, ok
}

// IsFresh reports whether p is inside the store's freshness window.
func IsFresh[T any](s *Store, p Payload[T]) bool {
	return p.FreshAt(s.now(), s.window)
}

// Read returns the entry for key. It never fails: a missing, unreadable or
// malformed entry is reported as absent. When the primary entry is absent
// the legacy raw payload is returned with a zero timestamp, which is never
// fresh.
func Read[T any](s *Store, key string) (Payload[T], bool) {
	if p, ok := readPrimary[T](s, key); ok {
		return p, true
	}
	if data, ok := ReadLegacy[T](s, key); ok {
		return Payload[T]{Data: data}, true
	}
	return Payload[T]{}, false
}

func readPrimary[T any](s *Store, key string) (Payload[T], bool) {
	raw, ok, err := s.kv.Get(key)
	if err != nil {
		s.log.Warnf("cache read %s failed: %v", key, err)
		return Payload[T]{}, false
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return Payload[T]{}, false
	}

	var rec record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.Timestamp <= 0 || len(rec.Data) == 0 {
		s.log.Debugf("cache entry %s is malformed, ignoring", key)
		return Payload[T]{}, false
	}
	var data T
	if err := json.Unmarshal(rec.Data, &data); err != nil {
		s.log.Debugf("cache entry %s has unexpected data: %v", key, err)
		return Payload[T]{}, false
	}
	return Payload[T]{Timestamp: time.UnixMilli(rec.Timestamp), Data: data}, true
}

// ReadLegacy decodes the raw payload stored under the legacy key of primary.
func ReadLegacy[T any](s *Store, primary string) (T, bool) {
	var zero T
	legacy, ok := s.LegacyKey(primary)
	if !ok {
		return zero, false
	}
	raw, ok, err := s.kv.Get(legacy)
	if err != nil || !ok || strings.TrimSpace(raw) == "" {
		return zero, false
	}
	var data T
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return zero, false
	}
	return data, true
}

// Write stores data under key stamped with the current time.
func Write[T any](s *Store, key string, data T) error {
	return WriteAt(s, key, data, s.now())
}

// WriteAt stores data under key with an explicit timestamp. It is used for
// local edits that must not extend the freshness of server data.
func WriteAt[T any](s *Store, key string, data T, at time.Time) error {
	if at.IsZero() {
		at = time.UnixMilli(1)
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", key, err)
	}
	rec, err := json.Marshal(record{Timestamp: at.UnixMilli(), Data: encoded})
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", key, err)
	}
	if err := s.kv.Set(key, string(rec)); err != nil {
		return fmt.Errorf("write cache %s: %w", key, err)
	}
	return nil
}

// WriteLegacy stores the raw payload under the legacy key of primary. It is a
// no-op when no legacy key is registered.
func WriteLegacy[T any](s *Store, primary string, data T) error {
	legacy, ok := s.LegacyKey(primary)
	if !ok {
		return nil
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", legacy, err)
	}
	if err := s.kv.Set(legacy, string(encoded)); err != nil {
		return fmt.Errorf("write cache %s: %w", legacy, err)
	}
	return nil
}

// WriteThrough stores data under key and its legacy key.
func WriteThrough[T any](s *Store, key string, data T) error {
	if err := Write(s, key, data); err != nil {
		return err
	}
	return WriteLegacy(s, key, data)
}

// Clear removes key together with its legacy key. Clearing an absent key is
// a no-op.
func (s *Store) Clear(key string) error {
	keys := []string{key}
	if legacy, ok := s.LegacyKey(key); ok {
		keys = append(keys, legacy)
	}
	if err := s.kv.Delete(keys...); err != nil {
		return fmt.Errorf("clear cache %s: %w", key, err)
	}
	return nil
}

// Package prefs provides the bounded key/value preference store used for
// runtime settings: credentials, broker settings, debug level, hostname and
// per-device names and topics.
package prefs

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
)

// Size limits inherited from the flash-backed stores nodes usually run on.
const (
	MaxKeyLength   = 16
	MaxValueLength = 255
)

var (
	// ErrKeyLength is returned for empty keys or keys longer than MaxKeyLength.
	ErrKeyLength = errors.New("prefs: key length out of range")
	// ErrValueLength is returned for values longer than MaxValueLength.
	ErrValueLength = errors.New("prefs: value too long")
)

// Store is the persistence backend.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
	// Keys returns all stored keys.
	Keys() ([]string, error)
}

// Preferences validates keys and values and converts types on top of a Store.
// Read errors degrade to the supplied default; callers only see write errors.
type Preferences struct {
	store Store
}

// New wraps store.
func New(store Store) *Preferences {
	return &Preferences{store: store}
}

func checkKey(key string) error {
	if len(key) == 0 || len(key) > MaxKeyLength {
		return fmt.Errorf("%w: %q", ErrKeyLength, key)
	}
	return nil
}

// GetString returns the stored string for key or def.
func (p *Preferences) GetString(key, def string) string {
	if checkKey(key) != nil {
		return def
	}
	v, ok, err := p.store.Get(key)
	if err != nil || !ok {
		return def
	}
	return v
}

// GetInt returns the stored integer for key or def. Values that do not parse
// as integers yield def.
func (p *Preferences) GetInt(key string, def int) int {
	s := p.GetString(key, "")
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// SetString stores value under key.
func (p *Preferences) SetString(key, value string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if len(value) > MaxValueLength {
		return fmt.Errorf("%w: %d bytes for %q", ErrValueLength, len(value), key)
	}
	if err := p.store.Set(key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// SetInt stores an integer under key.
func (p *Preferences) SetInt(key string, value int) error {
	return p.SetString(key, strconv.Itoa(value))
}

// Dump returns all stored key/value pairs sorted by key.
func (p *Preferences) Dump() ([][2]string, error) {
	keys, err := p.store.Keys()
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	sort.Strings(keys)
	out := make([][2]string, 0, len(keys))
	for _, k := range keys {
		v, ok, err := p.store.Get(k)
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", k, err)
		}
		if ok {
			out = append(out, [2]string{k, v})
		}
	}
	return out, nil
}

// MemoryStore is an in-memory Store for tests and diskless runs.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string

	// SetError, if set, is returned by Set.
	SetError error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get returns the value for key.
func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

// Set stores value under key.
func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SetError != nil {
		return m.SetError
	}
	m.values[key] = value
	return nil
}

// Keys returns all stored keys in no particular order.
func (m *MemoryStore) Keys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	return keys, nil
}

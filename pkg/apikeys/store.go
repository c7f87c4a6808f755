// Package apikeys is the JSON-file-backed API key store behind the
// HTTP/MCP surfaces' X-API-Key authentication: keys of the form
// ra_<urlsafe-24>, tracked with per-key usage counters.
package apikeys

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Key is one entry in the store.
type Key struct {
	ID              string    `json:"id"`
	Key             string    `json:"key"`
	Name            string    `json:"name"`
	Admin           bool      `json:"admin"`
	Revoked         bool      `json:"revoked"`
	CreatedAt       time.Time `json:"created_at"`
	Requests        int64     `json:"requests"`
	SessionsStarted int64     `json:"sessions_started"`
	TokensUsed      int64     `json:"tokens_used"`
	CostUSD         float64   `json:"cost_usd"`
}

// Store is a mutex-guarded, file-persisted array of Keys. The zero value
// is not usable; construct with Load.
type Store struct {
	path string

	mu   sync.Mutex
	keys []Key
}

// Load reads the key store from path, creating an empty one if the file
// does not yet exist — a fresh deployment starts with zero valid keys
// rather than failing to boot.
func Load(path string) (*Store, error) {
	s := &Store{path: path}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("apikeys: read %s: %w", path, err)
	}
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, &s.keys); err != nil {
		return nil, fmt.Errorf("apikeys: parse %s: %w", path, err)
	}
	return s, nil
}

// Authenticate looks up an API key string and returns the matching Key if
// it exists and is not revoked.
func (s *Store) Authenticate(key string) (Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.Key == key && !k.Revoked {
			return k, true
		}
	}
	return Key{}, false
}

// RecordRequest increments the request counter for the key with the given
// ID. A no-op if the ID is unknown, so a stale lookup never panics.
func (s *Store) RecordRequest(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.keys {
		if s.keys[i].ID == id {
			s.keys[i].Requests++
			return
		}
	}
}

// RecordSessionStarted increments the key's SessionsStarted counter when
// the key is used to start a research session, and persists the update.
// No cost or token counters are updated here.
func (s *Store) RecordSessionStarted(id string) error {
	s.mu.Lock()
	for i := range s.keys {
		if s.keys[i].ID == id {
			s.keys[i].SessionsStarted++
			break
		}
	}
	s.mu.Unlock()
	return s.save()
}

// Create mints a new key with a fresh ra_<urlsafe-24> value and ID, and
// persists the updated store.
func (s *Store) Create(name string, admin bool) (Key, error) {
	id, err := randomID()
	if err != nil {
		return Key{}, err
	}
	key, err := randomID()
	if err != nil {
		return Key{}, err
	}

	k := Key{
		ID:        id,
		Key:       "ra_" + key,
		Name:      name,
		Admin:     admin,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.keys = append(s.keys, k)
	s.mu.Unlock()

	if err := s.save(); err != nil {
		return Key{}, err
	}
	return k, nil
}

// Revoke marks the key with the given ID revoked and persists the update.
func (s *Store) Revoke(id string) error {
	s.mu.Lock()
	found := false
	for i := range s.keys {
		if s.keys[i].ID == id {
			s.keys[i].Revoked = true
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return fmt.Errorf("apikeys: no key with id %q", id)
	}
	return s.save()
}

// save serializes the store to its path, writing to a temp file and
// renaming over the original so a crash mid-write can't corrupt the file.
func (s *Store) save() error {
	s.mu.Lock()
	data, err := json.MarshalIndent(s.keys, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("apikeys: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".apikeys-*.tmp")
	if err != nil {
		return fmt.Errorf("apikeys: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("apikeys: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("apikeys: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("apikeys: rename into place: %w", err)
	}
	return nil
}

func randomID() (string, error) {
	buf := make([]byte, 18) // 24 base64url chars, no padding
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("apikeys: generate random id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

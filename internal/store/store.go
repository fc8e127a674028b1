// Package store keeps saved preset lists in a YAML file keyed by actuator
// key. Every save rewrites the file atomically.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/ServoGo/internal/config"
	"github.com/cjeanneret/ServoGo/internal/debug"
	"github.com/cjeanneret/ServoGo/internal/logic/servo"
)

// FileMode is the permission of the presets file.
const FileMode = 0o644

// PresetStore maps actuator keys to their encoded preset lists.
// It is safe for concurrent use.
type PresetStore struct {
	mu      sync.Mutex
	path    string
	entries map[string]string
}

// Open loads path if it exists. A missing file yields an empty store that
// is created on the first save. Entries that do not decode are dropped.
func Open(path string) (*PresetStore, error) {
	s := &PresetStore{path: path, entries: make(map[string]string)}

	data, err := config.ReadLimited(path)
	if errors.Is(err, fs.ErrNotExist) {
		debug.Verbose("store: %s does not exist yet", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}

	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal presets %s: %w", path, err)
	}
	for key, encoded := range raw {
		if _, err := servo.DecodePresets(encoded); err != nil {
			debug.Error(fmt.Errorf("store: dropping presets for %q: %w", key, err))
			continue
		}
		s.entries[key] = encoded
	}
	debug.Verbose("store: loaded presets for %d actuators from %s", len(s.entries), path)
	return s, nil
}

// Path returns the backing file.
func (s *PresetStore) Path() string { return s.path }

// Lookup returns the encoded presets saved for key.
func (s *PresetStore) Lookup(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	encoded, ok := s.entries[key]
	return encoded, ok
}

// Keys returns the stored actuator keys in sorted order.
func (s *PresetStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StorePresets records encoded for key and rewrites the file. An empty
// encoded list removes the key. The in-memory entry is only updated when
// the write succeeds.
func (s *PresetStore) StorePresets(key, encoded string) error {
	if key == "" {
		return errors.New("store: empty actuator key")
	}
	if _, err := servo.DecodePresets(encoded); err != nil {
		return fmt.Errorf("store %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]string, len(s.entries)+1)
	for k, v := range s.entries {
		next[k] = v
	}
	if encoded == "" {
		delete(next, key)
	} else {
		next[key] = encoded
	}

	if err := s.write(next); err != nil {
		return err
	}
	s.entries = next
	debug.Preset(key, "stored", encoded)
	return nil
}

func (s *PresetStore) write(entries map[string]string) error {
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal presets: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create presets dir: %w", err)
		}
	}
	if err := renameio.WriteFile(s.path, data, FileMode); err != nil {
		return fmt.Errorf("write presets %s: %w", s.path, err)
	}
	return nil
}

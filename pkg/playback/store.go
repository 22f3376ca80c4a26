package playback

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

type MemoryStore struct {
	mu     sync.Mutex
	values map[string]float64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]float64)}
}

func (m *MemoryStore) Get(key string) (float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key string, seconds float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = seconds
	return nil
}

// FileStore keeps positions in a YAML map on disk. Every Set rewrites the
// file through a temporary file and rename.
type FileStore struct {
	path string

	mu     sync.Mutex
	values map[string]float64
	loaded bool
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) load() error {
	if f.loaded {
		return nil
	}
	f.values = make(map[string]float64)
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", f.path, err)
	}
	if err := yaml.Unmarshal(data, &f.values); err != nil {
		return fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	if f.values == nil {
		f.values = make(map[string]float64)
	}
	f.loaded = true
	return nil
}

func (f *FileStore) Get(key string) (float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return 0, false, err
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *FileStore) Set(key string, seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.load(); err != nil {
		return err
	}
	f.values[key] = seconds

	data, err := yaml.Marshal(f.values)
	if err != nil {
		return fmt.Errorf("failed to encode positions: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".positions-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write positions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write positions: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.path, err)
	}
	return nil
}

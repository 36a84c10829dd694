package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/dom/pack-minter/internal/domain"
	"github.com/dom/pack-minter/internal/repository"
)

type counterFile struct {
	Current uint64 `json:"current"`
}

// CounterStore keeps {"current": N} in a single JSON file. It is only safe for
// a single process; run it behind memory.Locker.
type CounterStore struct {
	path      string
	onCorrupt repository.CorruptionHandler
	mu        sync.Mutex
}

func NewCounterStore(path string, onCorrupt repository.CorruptionHandler) *CounterStore {
	return &CounterStore{path: path, onCorrupt: onCorrupt}
}

func (s *CounterStore) Peek(ctx context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx), nil
}

func (s *CounterStore) read(ctx context.Context) uint64 {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0
	}
	if err != nil {
		s.corrupt(ctx, fmt.Errorf("%w: read %s: %v", domain.ErrCounterCorruption, s.path, err))
		return 0
	}

	var state counterFile
	if err := json.Unmarshal(raw, &state); err != nil {
		s.corrupt(ctx, fmt.Errorf("%w: decode %s: %v", domain.ErrCounterCorruption, s.path, err))
		return 0
	}
	return state.Current
}

func (s *CounterStore) corrupt(ctx context.Context, err error) {
	if s.onCorrupt != nil {
		s.onCorrupt(ctx, err)
	}
}

func (s *CounterStore) Advance(ctx context.Context, value uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current := s.read(ctx); current >= value {
		return nil
	}

	data, err := json.MarshalIndent(counterFile{Current: value}, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(s.path, data)
}

// writeAtomic replaces path through a temp file and rename.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

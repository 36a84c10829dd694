package filestore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/dom/pack-minter/internal/domain"
)

// ReconciliationQueue is a JSON-lines file, one item per line.
type ReconciliationQueue struct {
	path string
	mu   sync.Mutex
}

func NewReconciliationQueue(path string) *ReconciliationQueue {
	return &ReconciliationQueue{path: path}
}

func (q *ReconciliationQueue) Enqueue(ctx context.Context, item *domain.ReconciliationItem) error {
	line, err := json.Marshal(item)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (q *ReconciliationQueue) List(ctx context.Context) ([]*domain.ReconciliationItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.list()
}

func (q *ReconciliationQueue) list() ([]*domain.ReconciliationItem, error) {
	raw, err := os.ReadFile(q.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var items []*domain.ReconciliationItem
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var item domain.ReconciliationItem
		if err := json.Unmarshal(line, &item); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", q.path, n, err)
		}
		items = append(items, &item)
	}
	return items, scanner.Err()
}

// Update drops resolved items and overwrites retried ones by id. Items
// enqueued after the caller's List are kept.
func (q *ReconciliationQueue) Update(ctx context.Context, resolved []string, retried []*domain.ReconciliationItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	items, err := q.list()
	if err != nil {
		return err
	}

	drop := make(map[string]bool, len(resolved))
	for _, id := range resolved {
		drop[id] = true
	}
	updated := make(map[string]*domain.ReconciliationItem, len(retried))
	for _, item := range retried {
		updated[item.ID] = item
	}

	var buf bytes.Buffer
	for _, item := range items {
		if drop[item.ID] {
			continue
		}
		if u, ok := updated[item.ID]; ok {
			item = u
		}
		line, err := json.Marshal(item)
		if err != nil {
			return err
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return writeAtomic(q.path, buf.Bytes())
}

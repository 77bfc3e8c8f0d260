package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	ErrFull  = errors.New("queue is full")
	ErrEmpty = errors.New("queue is empty")
)

// Persistent is a FIFO backed by a JSON file. Every mutation rewrites the file.
type Persistent[T any] struct {
	items    []T
	mu       sync.RWMutex
	dataFile string
	maxSize  int
}

func NewPersistent[T any](dataDir, filename string, maxSize int) (*Persistent[T], error) {
	q := &Persistent[T]{
		items:    make([]T, 0),
		dataFile: filepath.Join(dataDir, filename),
		maxSize:  maxSize,
	}
	if err := q.load(); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Persistent[T]) Add(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		return fmt.Errorf("%w (%d/%d)", ErrFull, len(q.items), q.maxSize)
	}

	q.items = append(q.items, item)
	return q.save()
}

func (q *Persistent[T]) Pop() (*T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, ErrEmpty
	}

	item := q.items[0]
	q.items = q.items[1:]
	return &item, q.save()
}

func (q *Persistent[T]) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

func (q *Persistent[T]) List() []T {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]T, len(q.items))
	copy(result, q.items)
	return result
}

func (q *Persistent[T]) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = make([]T, 0)
	return q.save()
}

func (q *Persistent[T]) FindAndRemove(predicate func(T) bool) (*T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.items {
		if predicate(item) {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return &item, q.save()
		}
	}
	return nil, nil
}

// Drain calls fn for every queued item in order. Items for which fn returns
// nil are removed; failed items stay queued. The first error is returned
// after all items have been attempted.
func (q *Persistent[T]) Drain(fn func(T) error) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var (
		kept     []T
		firstErr error
		done     int
	)
	for _, item := range q.items {
		if err := fn(item); err != nil {
			kept = append(kept, item)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		done++
	}

	if kept == nil {
		kept = make([]T, 0)
	}
	q.items = kept
	if err := q.save(); err != nil {
		return done, err
	}
	return done, firstErr
}

func (q *Persistent[T]) load() error {
	data, err := os.ReadFile(q.dataFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read queue file: %w", err)
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("parse queue file %s: %w", q.dataFile, err)
	}

	q.items = items
	return nil
}

func (q *Persistent[T]) save() error {
	data, err := json.MarshalIndent(q.items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(q.dataFile), 0755); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}
	if err := os.WriteFile(q.dataFile, data, 0644); err != nil {
		return fmt.Errorf("write queue file: %w", err)
	}
	return nil
}

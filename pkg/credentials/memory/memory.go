// Package memory provides an in-memory credential backend for tests and
// ephemeral sessions.
package memory

import (
	"context"
	"sync"
)

// Backend keeps credentials in a map. Err, when set, is returned by every
// operation to simulate an unavailable medium.
type Backend struct {
	mu     sync.RWMutex
	values map[string]string
	Err    error
	writes int
}

func New() *Backend {
	return &Backend{values: make(map[string]string)}
}

func (b *Backend) Get(_ context.Context, name string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.Err != nil {
		return "", false, b.Err
	}

	value, ok := b.values[name]

	return value, ok, nil
}

func (b *Backend) Set(_ context.Context, name, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.Err != nil {
		return b.Err
	}

	b.values[name] = value
	b.writes++

	return nil
}

func (b *Backend) Delete(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.Err != nil {
		return b.Err
	}

	delete(b.values, name)

	return nil
}

func (b *Backend) HealthCheck(_ context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.Err
}

func (b *Backend) Close(_ context.Context) error {
	return nil
}

// Writes returns the number of successful Set calls.
func (b *Backend) Writes() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.writes
}

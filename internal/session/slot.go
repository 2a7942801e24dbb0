package session

import (
	"context"
	"errors"
	"sync"
)

// ErrNoCredential is returned by Slot.Load when nothing is stored.
var ErrNoCredential = errors.New("no stored credential")

// Slot is the single named durable location of the credential.
type Slot interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, credential string) error
	Delete(ctx context.Context) error
}

// MemorySlot keeps the credential for the lifetime of the process.
type MemorySlot struct {
	mu    sync.Mutex
	value string
}

func NewMemorySlot() *MemorySlot { return &MemorySlot{} }

func (m *MemorySlot) Load(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.value == "" {
		return "", ErrNoCredential
	}
	return m.value, nil
}

func (m *MemorySlot) Save(_ context.Context, credential string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = credential
	return nil
}

func (m *MemorySlot) Delete(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.value = ""
	return nil
}

var (
	_ Slot = (*MemorySlot)(nil)
	_ Slot = (*FileSlot)(nil)
	_ Slot = (*RedisSlot)(nil)
)

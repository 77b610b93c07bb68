package profile

import (
	"context"
	"errors"
	"sync"

	"github.com/MrEthical07/authstate"
)

// MemoryStore is an in-process authstate.ProfileRepository.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]authstate.Profile
	created int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]authstate.Profile)}
}

// CreateOrFetch returns the record for id, inserting defaults if absent.
func (m *MemoryStore) CreateOrFetch(ctx context.Context, id string, defaults authstate.Profile) (authstate.Profile, error) {
	if err := ctx.Err(); err != nil {
		return authstate.Profile{}, err
	}
	if id == "" {
		return authstate.Profile{}, errors.New("empty profile id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.records[id]; ok {
		return p, nil
	}
	defaults.ID = id
	if err := defaults.Validate(); err != nil {
		return authstate.Profile{}, err
	}
	m.records[id] = defaults
	m.created++
	return defaults, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (authstate.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.records[id]
	if !ok {
		return authstate.Profile{}, ErrNotFound
	}
	return p, nil
}

func (m *MemoryStore) Put(_ context.Context, p authstate.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.records[p.ID] = p
	m.mu.Unlock()
	return nil
}

// Created returns how many records CreateOrFetch has inserted.
func (m *MemoryStore) Created() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.created
}

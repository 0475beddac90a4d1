package storage

import (
	"context"
	"sync"

	"aina-notebook/internal/model"
)

// MemoryStore keeps history for the life of the process.
type MemoryStore struct {
	presentations map[string]*model.Presentation
	seq           uint64
	mu            sync.RWMutex
	notifier      *notifier
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		presentations: make(map[string]*model.Presentation),
		notifier:      newNotifier(),
	}
}

func (m *MemoryStore) Init(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	m.notifier.reset()
	return nil
}

func (m *MemoryStore) Append(ctx context.Context, p *model.Presentation) error {
	m.mu.Lock()
	if _, exists := m.presentations[p.ID]; exists {
		m.mu.Unlock()
		return ErrPresentationExists
	}
	m.presentations[p.ID] = p.Clone()
	seq, list := m.changed()
	m.mu.Unlock()

	m.notifier.publish(seq, list)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*model.Presentation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.presentations[id]
	if !exists {
		return nil, ErrPresentationNotFound
	}
	return p.Clone(), nil
}

func (m *MemoryStore) List(ctx context.Context) ([]*model.Presentation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return cloneList(m.sorted()), nil
}

func (m *MemoryStore) Update(ctx context.Context, p *model.Presentation) error {
	m.mu.Lock()
	if _, exists := m.presentations[p.ID]; !exists {
		m.mu.Unlock()
		return ErrPresentationNotFound
	}
	m.presentations[p.ID] = p.Clone()
	seq, list := m.changed()
	m.mu.Unlock()

	m.notifier.publish(seq, list)
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.presentations = make(map[string]*model.Presentation)
	seq, list := m.changed()
	m.mu.Unlock()

	m.notifier.publish(seq, list)
	return nil
}

func (m *MemoryStore) Subscribe(ctx context.Context, fn Listener) (func(), error) {
	m.mu.RLock()
	seq, list := m.seq, m.sorted()
	m.mu.RUnlock()

	return m.notifier.subscribe(ctx, seq, list, fn), nil
}

// changed bumps the sequence; the caller holds the write lock. Stored
// presentations are never mutated in place, so the list may be read after unlock.
func (m *MemoryStore) changed() (uint64, []*model.Presentation) {
	m.seq++
	return m.seq, m.sorted()
}

func (m *MemoryStore) sorted() []*model.Presentation {
	list := make([]*model.Presentation, 0, len(m.presentations))
	for _, p := range m.presentations {
		list = append(list, p)
	}
	sortNewestFirst(list)
	return list
}

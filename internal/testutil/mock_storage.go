// mock_storage.go - In-memory stores for testing
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nimbl/backend/internal/models"
	"github.com/nimbl/backend/internal/responses"
	"github.com/nimbl/backend/internal/storage"
)

// MockFormStore implements storage.FormStore in memory.
type MockFormStore struct {
	mu      sync.RWMutex
	forms   map[string]*models.FormRecord
	updates int

	// UpdateErr, when set, is returned by Update.
	UpdateErr error
}

// NewMockFormStore creates an empty MockFormStore.
func NewMockFormStore() *MockFormStore {
	return &MockFormStore{forms: make(map[string]*models.FormRecord)}
}

func (m *MockFormStore) Create(rec *models.FormRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.forms[rec.ID]; ok {
		return fmt.Errorf("%w: id %s", storage.ErrConflict, rec.ID)
	}
	for _, other := range m.forms {
		if rec.Slug != "" && other.Slug == rec.Slug {
			return fmt.Errorf("%w: slug %s", storage.ErrConflict, rec.Slug)
		}
	}
	m.forms[rec.ID] = copyRecord(rec)
	return nil
}

func (m *MockFormStore) Get(id string) (*models.FormRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.forms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	return copyRecord(rec), nil
}

func (m *MockFormStore) GetBySlug(slug string) (*models.FormRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.forms {
		if rec.Slug == slug {
			return copyRecord(rec), nil
		}
	}
	return nil, fmt.Errorf("%w: slug %s", storage.ErrNotFound, slug)
}

func (m *MockFormStore) List(ownerID string, limit, offset int) ([]*models.FormRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []*models.FormRecord
	for _, rec := range m.forms {
		if ownerID == "" || rec.OwnerID == ownerID {
			list = append(list, copyRecord(rec))
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })

	total := len(list)
	if offset > total {
		offset = total
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list, total, nil
}

func (m *MockFormStore) Update(rec *models.FormRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	if _, ok := m.forms[rec.ID]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, rec.ID)
	}
	m.forms[rec.ID] = copyRecord(rec)
	m.updates++
	return nil
}

func (m *MockFormStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.forms[id]; !ok {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	delete(m.forms, id)
	return nil
}

// Ensure MockFormStore implements storage.FormStore
var _ storage.FormStore = (*MockFormStore)(nil)

// Test Helper Methods

// AddForm stores rec directly.
func (m *MockFormStore) AddForm(rec *models.FormRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forms[rec.ID] = copyRecord(rec)
}

// UpdateCount returns how many successful updates were made.
func (m *MockFormStore) UpdateCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updates
}

// FormCount returns the number of stored forms.
func (m *MockFormStore) FormCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.forms)
}

func copyRecord(rec *models.FormRecord) *models.FormRecord {
	c := *rec
	c.Definition = rec.Definition.Clone()
	if rec.PublishedAt != nil {
		t := *rec.PublishedAt
		c.PublishedAt = &t
	}
	return &c
}

// MockResponseStore implements responses.Store in memory.
type MockResponseStore struct {
	mu    sync.RWMutex
	items map[string]*models.Response
}

// NewMockResponseStore creates an empty MockResponseStore.
func NewMockResponseStore() *MockResponseStore {
	return &MockResponseStore{items: make(map[string]*models.Response)}
}

func (m *MockResponseStore) Create(ctx context.Context, r *models.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *r
	m.items[r.ID] = &c
	return nil
}

func (m *MockResponseStore) Get(ctx context.Context, id string) (*models.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", responses.ErrNotFound, id)
	}
	c := *r
	return &c, nil
}

func (m *MockResponseStore) List(ctx context.Context, formID string, limit, offset int) ([]*models.Response, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*models.Response, 0)
	for _, r := range m.items {
		if r.FormID == formID {
			c := *r
			list = append(list, &c)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].SubmittedAt.Equal(list[j].SubmittedAt) {
			return list[i].SubmittedAt.After(list[j].SubmittedAt)
		}
		return list[i].ID < list[j].ID
	})

	total := len(list)
	if offset > total {
		offset = total
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list, total, nil
}

func (m *MockResponseStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[id]; !ok {
		return fmt.Errorf("%w: %s", responses.ErrNotFound, id)
	}
	delete(m.items, id)
	return nil
}

func (m *MockResponseStore) DeleteByForm(ctx context.Context, formID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for id, r := range m.items {
		if r.FormID == formID {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

func (m *MockResponseStore) Close() error { return nil }

// Ensure MockResponseStore implements responses.Store
var _ responses.Store = (*MockResponseStore)(nil)

// Count returns the number of stored responses.
func (m *MockResponseStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

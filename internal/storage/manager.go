package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/nimbl/backend/internal/logging"
	"github.com/nimbl/backend/internal/models"
)

var (
	// ErrNotFound is returned when no form matches the lookup.
	ErrNotFound = errors.New("form not found")
	// ErrConflict is returned when an id or slug is already taken.
	ErrConflict = errors.New("form already exists")
)

// FormStore persists form records.
type FormStore interface {
	Create(rec *models.FormRecord) error
	Get(id string) (*models.FormRecord, error)
	GetBySlug(slug string) (*models.FormRecord, error)
	List(ownerID string, limit, offset int) ([]*models.FormRecord, int, error)
	Update(rec *models.FormRecord) error
	Delete(id string) error
}

// LocalStore implements FormStore as one JSON file per form plus an
// in-memory index rebuilt from the directory on startup.
type LocalStore struct {
	mu     sync.RWMutex
	dir    string
	forms  map[string]*models.FormRecord
	bySlug map[string]string
	logger *log.Logger
}

// NewLocalStore creates a LocalStore rooted at dir and loads existing forms.
func NewLocalStore(dir string, logger *log.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating forms directory: %w", err)
	}

	s := &LocalStore{
		dir:    dir,
		forms:  make(map[string]*models.FormRecord),
		bySlug: make(map[string]string),
		logger: logging.OrDefault(logger).WithPrefix("storage"),
	}
	if err := s.scanExisting(); err != nil {
		return nil, err
	}
	return s, nil
}

// scanExisting loads every form_<id>.json file in the directory.
// Unreadable files are skipped with a warning.
func (s *LocalStore) scanExisting() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("scanning forms directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, "form_") || filepath.Ext(name) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			s.logger.Warn("skipping unreadable form file", "file", name, "err", err)
			continue
		}
		var rec models.FormRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			s.logger.Warn("skipping corrupt form file", "file", name, "err", err)
			continue
		}
		s.forms[rec.ID] = &rec
		if rec.Slug != "" {
			s.bySlug[rec.Slug] = rec.ID
		}
	}

	s.logger.Debug("scanned existing forms", "count", len(s.forms))
	return nil
}

func (s *LocalStore) path(id string) string {
	return filepath.Join(s.dir, "form_"+id+".json")
}

// write persists rec atomically through a temp file.
func (s *LocalStore) write(rec *models.FormRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding form: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "form-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing form: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(rec.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming form file: %w", err)
	}
	return nil
}

// Create stores a new form. The id and slug must be unused.
func (s *LocalStore) Create(rec *models.FormRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.forms[rec.ID]; ok {
		return fmt.Errorf("%w: id %s", ErrConflict, rec.ID)
	}
	if _, ok := s.bySlug[rec.Slug]; ok && rec.Slug != "" {
		return fmt.Errorf("%w: slug %s", ErrConflict, rec.Slug)
	}

	stored := cloneRecord(rec)
	if err := s.write(stored); err != nil {
		return err
	}
	s.forms[rec.ID] = stored
	if rec.Slug != "" {
		s.bySlug[rec.Slug] = rec.ID
	}
	return nil
}

// Get retrieves a form by ID.
func (s *LocalStore) Get(id string) (*models.FormRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.forms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneRecord(rec), nil
}

// GetBySlug retrieves a form by its slug.
func (s *LocalStore) GetBySlug(slug string) (*models.FormRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySlug[slug]
	if !ok {
		return nil, fmt.Errorf("%w: slug %s", ErrNotFound, slug)
	}
	return cloneRecord(s.forms[id]), nil
}

// List returns forms of ownerID (all owners when empty), most recently
// updated first, with the unpaged total.
func (s *LocalStore) List(ownerID string, limit, offset int) ([]*models.FormRecord, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var list []*models.FormRecord
	for _, rec := range s.forms {
		if ownerID != "" && rec.OwnerID != ownerID {
			continue
		}
		list = append(list, rec)
	}

	sort.Slice(list, func(i, j int) bool {
		if !list[i].UpdatedAt.Equal(list[j].UpdatedAt) {
			return list[i].UpdatedAt.After(list[j].UpdatedAt)
		}
		return list[i].ID < list[j].ID
	})

	total := len(list)
	if offset > total {
		offset = total
	}
	if offset < 0 {
		offset = 0
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}

	out := make([]*models.FormRecord, 0, end-offset)
	for _, rec := range list[offset:end] {
		out = append(out, cloneRecord(rec))
	}
	return out, total, nil
}

// Update replaces an existing form.
func (s *LocalStore) Update(rec *models.FormRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.forms[rec.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, rec.ID)
	}
	if owner, taken := s.bySlug[rec.Slug]; taken && owner != rec.ID && rec.Slug != "" {
		return fmt.Errorf("%w: slug %s", ErrConflict, rec.Slug)
	}

	stored := cloneRecord(rec)
	if err := s.write(stored); err != nil {
		return err
	}
	if old.Slug != rec.Slug {
		delete(s.bySlug, old.Slug)
	}
	if rec.Slug != "" {
		s.bySlug[rec.Slug] = rec.ID
	}
	s.forms[rec.ID] = stored
	return nil
}

// Delete removes a form from storage.
func (s *LocalStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.forms[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting form file: %w", err)
	}

	delete(s.bySlug, rec.Slug)
	delete(s.forms, id)
	return nil
}

func cloneRecord(rec *models.FormRecord) *models.FormRecord {
	c := *rec
	c.Definition = rec.Definition.Clone()
	if rec.PublishedAt != nil {
		t := *rec.PublishedAt
		c.PublishedAt = &t
	}
	return &c
}

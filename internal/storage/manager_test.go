// manager_test.go - Tests for form storage
package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nimbl/backend/internal/logging"
	"github.com/nimbl/backend/internal/models"
)

func createTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir(), logging.Discard())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func testRecord(id, owner, slug string, updated time.Time) *models.FormRecord {
	return &models.FormRecord{
		ID:        id,
		OwnerID:   owner,
		Title:     "Form " + id,
		Slug:      slug,
		CreatedAt: updated,
		UpdatedAt: updated,
		Definition: models.FormDefinition{
			ID:          id,
			RootFrameID: "root",
			Frames: map[string]models.Frame{"root": {
				ID:     "root",
				Layout: models.FrameLayout{W: 960, H: 1200},
				Grid:   models.GridSpec{Columns: 20, RowUnit: 40},
			}},
			Fields: map[string]models.Field{"f1": {
				ID:     "f1",
				Type:   models.FieldTypeText,
				Props:  models.FieldProps{Label: "Name", Required: true},
				Layout: models.FieldLayout{FrameID: "root", W: 6, H: 2},
			}},
		},
	}
}

func TestNewLocalStore(t *testing.T) {
	t.Run("creates forms directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "forms")

		if _, err := NewLocalStore(dir, nil); err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			t.Error("Expected forms directory to be created")
		}
	})

	t.Run("loads existing forms on startup", func(t *testing.T) {
		dir := t.TempDir()
		first, err := NewLocalStore(dir, logging.Discard())
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		if err := first.Create(testRecord("a", "u1", "form-a", time.Now())); err != nil {
			t.Fatalf("Failed to create form: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "form_broken.json"), []byte("{"), 0644); err != nil {
			t.Fatal(err)
		}

		second, err := NewLocalStore(dir, logging.Discard())
		if err != nil {
			t.Fatalf("Failed to reopen store: %v", err)
		}
		rec, err := second.GetBySlug("form-a")
		if err != nil {
			t.Fatalf("Expected form to survive restart: %v", err)
		}
		if rec.Definition.Fields["f1"].Props.Label != "Name" {
			t.Errorf("Expected field label to survive restart, got %+v", rec.Definition.Fields["f1"])
		}
	})
}

func TestLocalStore_CreateGet(t *testing.T) {
	store := createTestStore(t)
	rec := testRecord("a", "u1", "form-a", time.Now())

	if err := store.Create(rec); err != nil {
		t.Fatalf("Failed to create form: %v", err)
	}

	got, err := store.Get("a")
	if err != nil {
		t.Fatalf("Failed to get form: %v", err)
	}
	if got.Title != rec.Title {
		t.Errorf("Expected title %q, got %q", rec.Title, got.Title)
	}

	// returned records are copies
	got.Title = "mutated"
	got.Definition.Fields["f1"] = models.Field{}
	again, _ := store.Get("a")
	if again.Title != rec.Title || again.Definition.Fields["f1"].ID != "f1" {
		t.Error("Mutating a returned record changed the stored one")
	}

	if _, err := store.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLocalStore_CreateConflicts(t *testing.T) {
	store := createTestStore(t)
	if err := store.Create(testRecord("a", "u1", "same", time.Now())); err != nil {
		t.Fatal(err)
	}

	if err := store.Create(testRecord("a", "u1", "other", time.Now())); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected id conflict, got %v", err)
	}
	if err := store.Create(testRecord("b", "u1", "same", time.Now())); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected slug conflict, got %v", err)
	}
}

func TestLocalStore_List(t *testing.T) {
	store := createTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		owner := "u1"
		if id == "d" {
			owner = "u2"
		}
		if err := store.Create(testRecord(id, owner, "slug-"+id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatal(err)
		}
	}

	t.Run("filters by owner newest first", func(t *testing.T) {
		list, total, err := store.List("u1", 10, 0)
		if err != nil {
			t.Fatal(err)
		}
		if total != 3 || len(list) != 3 {
			t.Fatalf("Expected 3 forms, got %d (total %d)", len(list), total)
		}
		if list[0].ID != "c" || list[2].ID != "a" {
			t.Errorf("Unexpected order: %s, %s, %s", list[0].ID, list[1].ID, list[2].ID)
		}
	})

	t.Run("pages", func(t *testing.T) {
		list, total, err := store.List("", 2, 1)
		if err != nil {
			t.Fatal(err)
		}
		if total != 4 {
			t.Errorf("Expected total 4, got %d", total)
		}
		if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
			t.Errorf("Unexpected page: %+v", list)
		}
	})

	t.Run("offset past end", func(t *testing.T) {
		list, total, _ := store.List("", 10, 99)
		if len(list) != 0 || total != 4 {
			t.Errorf("Expected empty page with total 4, got %d items, total %d", len(list), total)
		}
	})
}

func TestLocalStore_Update(t *testing.T) {
	store := createTestStore(t)
	rec := testRecord("a", "u1", "old-slug", time.Now())
	if err := store.Create(rec); err != nil {
		t.Fatal(err)
	}
	if err := store.Create(testRecord("b", "u1", "taken", time.Now())); err != nil {
		t.Fatal(err)
	}

	rec.Slug = "new-slug"
	rec.Title = "Renamed"
	if err := store.Update(rec); err != nil {
		t.Fatalf("Failed to update: %v", err)
	}
	if _, err := store.GetBySlug("old-slug"); !errors.Is(err, ErrNotFound) {
		t.Error("Expected old slug to be released")
	}
	got, err := store.GetBySlug("new-slug")
	if err != nil || got.Title != "Renamed" {
		t.Errorf("Expected renamed form by new slug, got %+v, %v", got, err)
	}

	rec.Slug = "taken"
	if err := store.Update(rec); !errors.Is(err, ErrConflict) {
		t.Errorf("Expected slug conflict, got %v", err)
	}

	if err := store.Update(testRecord("missing", "u1", "x", time.Now())); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestLocalStore_Delete(t *testing.T) {
	store := createTestStore(t)
	if err := store.Create(testRecord("a", "u1", "form-a", time.Now())); err != nil {
		t.Fatal(err)
	}

	if err := store.Delete("a"); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if _, err := os.Stat(store.path("a")); !os.IsNotExist(err) {
		t.Error("Expected form file to be removed")
	}
	if _, err := store.GetBySlug("form-a"); !errors.Is(err, ErrNotFound) {
		t.Error("Expected slug to be released")
	}
	if err := store.Delete("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, got %v", err)
	}
}

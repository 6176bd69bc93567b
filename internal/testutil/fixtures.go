package testutil

import (
	"time"

	"github.com/nimbl/backend/internal/models"
)

// RootFrameID is the root frame of fixture definitions.
const RootFrameID = "root"

// Definition returns a 960x1200 root frame with 20 columns of 40px rows
// holding fields.
func Definition(id string, fields ...models.Field) models.FormDefinition {
	def := models.FormDefinition{
		ID:          id,
		Title:       "Fixture " + id,
		RootFrameID: RootFrameID,
		Frames: map[string]models.Frame{RootFrameID: {
			ID:     RootFrameID,
			Name:   "Page 1",
			Layout: models.FrameLayout{W: 960, H: 1200},
			Grid:   models.GridSpec{Columns: 20, RowUnit: 40},
		}},
		Fields: make(map[string]models.Field, len(fields)),
	}
	for _, f := range fields {
		def.Fields[f.ID] = f
	}
	return def
}

// Field returns a root-frame field labelled after its id.
func Field(id string, t models.FieldType, x, y, w, h float64) models.Field {
	return models.Field{
		ID:     id,
		Type:   t,
		Props:  models.FieldProps{Label: id},
		Layout: models.FieldLayout{FrameID: RootFrameID, X: x, Y: y, W: w, H: h},
	}
}

// Record wraps def in a form record with a slug derived from its id.
func Record(def models.FormDefinition, published bool) *models.FormRecord {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &models.FormRecord{
		ID:         def.ID,
		OwnerID:    "owner-1",
		Title:      def.Title,
		Slug:       "form-" + def.ID,
		Published:  published,
		CreatedAt:  now,
		UpdatedAt:  now,
		Definition: def,
	}
	if published {
		rec.PublishedAt = &now
	}
	return rec
}

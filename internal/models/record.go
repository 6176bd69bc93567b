package models

import "time"

// FormRecord is a persisted form: metadata plus its definition.
type FormRecord struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"ownerId"`
	Title       string         `json:"title"`
	Slug        string         `json:"slug"`
	Description string         `json:"description,omitempty"`
	Published   bool           `json:"published"`
	PublishedAt *time.Time     `json:"publishedAt,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	Definition  FormDefinition `json:"definition"`
}

// FormSummary is the listing view of a form record.
type FormSummary struct {
	ID          string     `json:"id"`
	OwnerID     string     `json:"ownerId"`
	Title       string     `json:"title"`
	Slug        string     `json:"slug"`
	Published   bool       `json:"published"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	FieldCount  int        `json:"fieldCount"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Summary returns the listing view of r.
func (r *FormRecord) Summary() FormSummary {
	return FormSummary{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Title:       r.Title,
		Slug:        r.Slug,
		Published:   r.Published,
		PublishedAt: r.PublishedAt,
		FieldCount:  len(r.Definition.Fields),
		UpdatedAt:   r.UpdatedAt,
	}
}

// Page is a slice of items plus the unpaged total.
type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

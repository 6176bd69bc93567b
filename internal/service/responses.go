package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/nimbl/backend/internal/logging"
	"github.com/nimbl/backend/internal/models"
	"github.com/nimbl/backend/internal/responses"
	"github.com/nimbl/backend/internal/storage"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// ResponseService accepts and reads back form submissions.
type ResponseService struct {
	forms     storage.FormStore
	responses responses.Store
	logger    *log.Logger
	now       func() time.Time
	newID     func() string
}

// NewResponseService creates a ResponseService.
func NewResponseService(forms storage.FormStore, resp responses.Store, logger *log.Logger) *ResponseService {
	return &ResponseService{
		forms:     forms,
		responses: resp,
		logger:    logging.OrDefault(logger).WithPrefix("responses"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Submit validates values against a published form and stores them.
func (s *ResponseService) Submit(ctx context.Context, formID string, values map[string]any, meta models.ResponseMeta) (*models.Response, error) {
	rec, err := s.forms.Get(formID)
	if err != nil {
		return nil, classify(err)
	}
	if !rec.Published {
		return nil, fmt.Errorf("%w: %s", ErrNotPublished, formID)
	}
	if values == nil {
		values = map[string]any{}
	}
	if issues := ValidateSubmission(rec.Definition, values); len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	r := &models.Response{
		ID:          s.newID(),
		FormID:      formID,
		Values:      values,
		Meta:        meta,
		SubmittedAt: s.now().UTC(),
	}
	if err := s.responses.Create(ctx, r); err != nil {
		return nil, err
	}
	s.logger.Debug("response stored", "form", formID, "id", r.ID)
	return r, nil
}

// Get returns one response.
func (s *ResponseService) Get(ctx context.Context, id string) (*models.Response, error) {
	r, err := s.responses.Get(ctx, id)
	return r, classify(err)
}

// List returns a page of a form's responses, newest first.
func (s *ResponseService) List(ctx context.Context, formID string, limit, offset int) (models.Page[*models.Response], error) {
	if _, err := s.forms.Get(formID); err != nil {
		return models.Page[*models.Response]{}, classify(err)
	}
	limit, offset = pageBounds(limit, offset)
	items, total, err := s.responses.List(ctx, formID, limit, offset)
	if err != nil {
		return models.Page[*models.Response]{}, err
	}
	return models.Page[*models.Response]{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// Delete removes one response.
func (s *ResponseService) Delete(ctx context.Context, id string) error {
	return classify(s.responses.Delete(ctx, id))
}

// Export writes every response of a form to w, oldest first, as CSV or
// indented JSON.
func (s *ResponseService) Export(ctx context.Context, formID, format string, w io.Writer) error {
	if format != FormatCSV && format != FormatJSON {
		return fmt.Errorf("%w: unknown export format %q", ErrInvalidInput, format)
	}
	if _, err := s.forms.Get(formID); err != nil {
		return classify(err)
	}

	items, _, err := s.responses.List(ctx, formID, 0, 0)
	if err != nil {
		return err
	}
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}

	if items == nil {
		items = []*models.Response{}
	}
	if format == FormatJSON {
		return writeJSON(w, items)
	}
	return writeCSV(w, items)
}

func writeJSON(w io.Writer, items []*models.Response) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

// writeCSV writes a "Submitted At" column followed by one column per field
// id in the order the ids first appear.
func writeCSV(w io.Writer, items []*models.Response) error {
	var ids []string
	seen := make(map[string]bool)
	for _, r := range items {
		for _, id := range sortedKeys(r.Values) {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"Submitted At"}, ids...)); err != nil {
		return err
	}
	for _, r := range items {
		row := make([]string, 0, len(ids)+1)
		row = append(row, r.SubmittedAt.UTC().Format("2006-01-02T15:04:05.000Z"))
		for _, id := range ids {
			row = append(row, stringify(r.Values[id]))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nimbl/backend/internal/camera"
	"github.com/nimbl/backend/internal/form"
	"github.com/nimbl/backend/internal/interaction"
	"github.com/nimbl/backend/internal/logging"
	"github.com/nimbl/backend/internal/models"
	"github.com/nimbl/backend/internal/service"
	"github.com/nimbl/backend/internal/session"
	"github.com/nimbl/backend/internal/share"
	"github.com/nimbl/backend/internal/templates"
	"github.com/nimbl/backend/internal/testutil"
)

var viewport = camera.Viewport{Width: 1200, Height: 800}

type testEnv struct {
	e         *echo.Echo
	forms     *testutil.MockFormStore
	responses *testutil.MockResponseStore
	sessions  *session.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tpl, err := templates.Load("")
	require.NoError(t, err)

	env := &testEnv{
		e:         echo.New(),
		forms:     testutil.NewMockFormStore(),
		responses: testutil.NewMockResponseStore(),
	}
	model := form.New(form.DefaultSettings())
	formSvc := service.NewFormService(env.forms, env.responses, model, tpl, logging.Discard())
	env.sessions = session.NewManager(formSvc, model, session.Options{
		AutosaveDebounce: time.Hour,
		Interaction:      interaction.DefaultOptions(),
	}, logging.Discard())

	SetupErrorHandling(env.e, logging.Discard(), true)
	RegisterRoutes(env.e, NewHandlers(&Dependencies{
		Forms:      formSvc,
		Responses:  service.NewResponseService(env.forms, env.responses, logging.Discard()),
		Templates:  tpl,
		SessionMgr: env.sessions,
		Linker:     share.NewLinker("https://forms.example.com", 0, 128),
		Version:    "test",
		Logger:     logging.Discard(),
	}))
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("User-Agent", "handler-test")
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (env *testEnv) createForm(t *testing.T, in service.CreateInput) *models.FormRecord {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/api/forms", in)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*models.FormRecord](t, rec)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, 0.0, body["sessions"])
}

func TestTemplates(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/templates", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list := decode[[]templates.Summary](t, rec)
	var names []string
	for _, s := range list {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"booking", "contact", "feedback", "registration", "survey"}, names)
}

func TestFormLifecycle(t *testing.T) {
	env := newTestEnv(t)
	created := env.createForm(t, service.CreateInput{OwnerID: "u1", Template: "contact"})
	assert.Equal(t, "Contact Us", created.Title)
	assert.Len(t, created.Definition.Fields, 5)
	assert.False(t, created.Published)

	base := "/api/forms/" + created.ID

	t.Run("get", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, base, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, created.Slug, decode[*models.FormRecord](t, rec).Slug)
	})

	t.Run("list by owner", func(t *testing.T) {
		env.createForm(t, service.CreateInput{OwnerID: "u2", Title: "Other"})
		rec := env.do(t, http.MethodGet, "/api/forms?ownerId=u1&limit=5", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		page := decode[models.Page[models.FormSummary]](t, rec)
		assert.Equal(t, 1, page.Total)
		assert.Equal(t, 5, page.Limit)
		require.Len(t, page.Items, 1)
		assert.Equal(t, 5, page.Items[0].FieldCount)
	})

	t.Run("bad paging", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/forms?limit=abc", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION_ERROR", decode[APIError](t, rec).Code)
	})

	t.Run("update title keeps slug", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, base, map[string]string{"title": "<b>Reach</b> us"})
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[*models.FormRecord](t, rec)
		assert.Equal(t, "Reach us", got.Title)
		assert.Equal(t, created.Slug, got.Slug)
	})

	t.Run("share requires publishing", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, base+"/share", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)

		rec = env.do(t, http.MethodGet, "/api/forms/published/"+created.Slug, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("publish and share", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, base+"/publish", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[*models.FormRecord](t, rec).Published)

		rec = env.do(t, http.MethodGet, base+"/share", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://forms.example.com/f/"+created.Slug, decode[map[string]string](t, rec)["url"])

		rec = env.do(t, http.MethodGet, base+"/qr?size=200", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

		rec = env.do(t, http.MethodGet, base+"/qr?size=99999", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = env.do(t, http.MethodGet, "/api/forms/published/"+created.Slug, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unpublish hides slug", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, base+"/unpublish", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		rec = env.do(t, http.MethodGet, "/api/forms/published/"+created.Slug, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, base, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = env.do(t, http.MethodGet, base, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", decode[APIError](t, rec).Code)
	})

	t.Run("unknown template", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/forms", service.CreateInput{Template: "nope"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestFieldEndpoints(t *testing.T) {
	env := newTestEnv(t)
	created := env.createForm(t, service.CreateInput{Title: "Fields"})
	base := "/api/forms/" + created.ID + "/fields"

	rec := env.do(t, http.MethodPost, base, form.NewField{Type: models.FieldTypeText})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decode[models.Field](t, rec)
	assert.Equal(t, models.FieldLayout{FrameID: first.Layout.FrameID, X: 0, Y: 0, W: 6, H: 2}, first.Layout)
	assert.Equal(t, "Text Field", first.Props.Label)

	rec = env.do(t, http.MethodPost, base, form.NewField{Type: models.FieldTypeEmail})
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decode[models.Field](t, rec)
	assert.Equal(t, 2.0, second.Layout.Y)

	t.Run("missing type", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, base, map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown type", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, base, form.NewField{Type: "hologram"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("overlapping move conflicts", func(t *testing.T) {
		y := 1.0
		rec := env.do(t, http.MethodPatch, base+"/"+second.ID, models.FieldPatch{Layout: &models.FieldLayoutPatch{Y: &y}})
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "CONFLICT", decode[APIError](t, rec).Code)
	})

	t.Run("move is clamped", func(t *testing.T) {
		x := 40.0
		rec := env.do(t, http.MethodPatch, base+"/"+second.ID, models.FieldPatch{Layout: &models.FieldLayoutPatch{X: &x}})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 14.0, decode[models.Field](t, rec).Layout.X)
	})

	t.Run("render", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/forms/"+created.ID+"/render", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		out := decode[form.Rendered](t, rec)
		require.Len(t, out.Fields, 2)
		assert.Equal(t, first.ID, out.Fields[0].ID)
		assert.Equal(t, 14*48.0, out.Fields[1].Pixels.X)
	})

	t.Run("remove", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, base+"/"+first.ID, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = env.do(t, http.MethodDelete, base+"/"+first.ID, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestResponseEndpoints(t *testing.T) {
	env := newTestEnv(t)
	created := env.createForm(t, service.CreateInput{Title: "Survey"})
	base := "/api/forms/" + created.ID

	rec := env.do(t, http.MethodPost, base+"/fields", form.NewField{
		Type:  models.FieldTypeText,
		Props: &models.FieldProps{Label: "Name", Required: true},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	field := decode[models.Field](t, rec)

	t.Run("draft rejects submissions", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, base+"/responses", map[string]any{"values": map[string]any{field.ID: "x"}})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/publish", nil).Code)

	t.Run("validation issues", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, base+"/responses", map[string]any{"values": map[string]any{"ghost": 1}})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		apiErr := decode[APIError](t, rec)
		assert.Equal(t, "VALIDATION_ERROR", apiErr.Code)
		assert.Equal(t, `Field "Name" is required; Field "ghost" does not exist in this form`, apiErr.Details)
	})

	var stored *models.Response
	t.Run("submit", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, base+"/responses", map[string]any{"values": map[string]any{field.ID: "Ada"}})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		stored = decode[*models.Response](t, rec)
		assert.Equal(t, "handler-test", stored.Meta.UserAgent)
		assert.NotEmpty(t, stored.Meta.IP)
	})

	t.Run("list and get", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, base+"/responses", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		page := decode[models.Page[*models.Response]](t, rec)
		assert.Equal(t, 1, page.Total)

		rec = env.do(t, http.MethodGet, "/api/responses/"+stored.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "Ada", decode[*models.Response](t, rec).Values[field.ID])
	})

	t.Run("export csv", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, base+"/export", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/csv")
		assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "responses-"+created.ID+".csv")
		lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
		require.Len(t, lines, 2)
		assert.Equal(t, "Submitted At,"+field.ID, lines[0])
		assert.True(t, strings.HasSuffix(lines[1], ",Ada"))
	})

	t.Run("export json", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, base+"/export?format=json", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, decode[[]models.Response](t, rec), 1)
	})

	t.Run("export unknown format", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, base+"/export?format=xml", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/api/responses/"+stored.ID, nil)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		rec = env.do(t, http.MethodGet, "/api/responses/"+stored.ID, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestSessionEndpoints(t *testing.T) {
	env := newTestEnv(t)
	created := env.createForm(t, service.CreateInput{Template: "contact"})

	t.Run("open requires viewport", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/sessions", map[string]any{"formId": created.ID})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("open unknown form", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/sessions", openSessionRequest{FormID: "nope", Viewport: viewport})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	rec := env.do(t, http.MethodPost, "/api/sessions", openSessionRequest{FormID: created.ID, Viewport: viewport})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	opened := decode[sessionResponse](t, rec)
	base := "/api/sessions/" + opened.Session.ID
	require.Len(t, opened.View.Layout.Fields, 5)
	target := opened.View.Layout.Fields[1].ID

	t.Run("pointer selects field", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, base+"/pointer/down", pointerRequest{
			X: 100, Y: 100, Target: interaction.Target{Kind: interaction.TargetField, FieldID: target},
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, target, decode[interaction.View](t, rec).Selected)

		rec = env.do(t, http.MethodPost, base+"/pointer/up", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, interaction.ModeIdle, decode[interaction.View](t, rec).Mode)
	})

	t.Run("escape deselects", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, base+"/key", interaction.Key{Key: "Escape"})
		require.Equal(t, http.StatusOK, rec.Code)
		got := decode[keyResponse](t, rec)
		assert.True(t, got.Handled)
		assert.Empty(t, got.View.Selected)
	})

	t.Run("modifier wheel zooms", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, base+"/wheel", wheelRequest{X: 600, Y: 400, DeltaY: -100, Modifier: true})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Greater(t, decode[interaction.View](t, rec).Camera.Zoom, opened.View.Camera.Zoom)
	})

	t.Run("viewport", func(t *testing.T) {
		rec := env.do(t, http.MethodPut, base+"/viewport", map[string]float64{"width": 0, "height": 10})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		rec = env.do(t, http.MethodPut, base+"/viewport", map[string]float64{"width": 800, "height": 600})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 800.0, decode[interaction.View](t, rec).Viewport.Width)
	})

	t.Run("msgpack view", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, base+"/view/msgpack", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, MIMEApplicationMsgpack, rec.Header().Get(echo.HeaderContentType))

		var view map[string]any
		require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &view))
		assert.Contains(t, view, "layout")
		assert.Contains(t, view, "camera")
	})

	t.Run("keepalive and get", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, base+"/keepalive", nil).Code)
		rec := env.do(t, http.MethodGet, base, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, created.ID, decode[sessionResponse](t, rec).Session.FormID)
	})

	t.Run("close", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, base, nil).Code)
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, base, nil).Code)
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, base+"/keepalive", nil).Code)
		assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, base+"/view", nil).Code)
	})
}

func TestUpdateFormRejectsInvalidDefinition(t *testing.T) {
	env := newTestEnv(t)
	created := env.createForm(t, service.CreateInput{OwnerID: "u1", Title: "Layout"})
	root := created.Definition.RootFrameID

	def := created.Definition.Clone()
	def.Fields["a"] = models.Field{ID: "a", Type: models.FieldTypeText,
		Layout: models.FieldLayout{FrameID: root, X: 0, Y: 0, W: 6, H: 2}}
	def.Fields["b"] = models.Field{ID: "b", Type: models.FieldTypeText,
		Layout: models.FieldLayout{FrameID: root, X: 3, Y: 1, W: 6, H: 2}}

	rec := env.do(t, http.MethodPut, "/api/forms/"+created.ID, map[string]any{"definition": def})
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Equal(t, "BAD_REQUEST", decode[APIError](t, rec).Code)

	rec = env.do(t, http.MethodGet, "/api/forms/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[*models.FormRecord](t, rec).Definition.Fields)
}

func TestFieldEditsRefusedDuringSession(t *testing.T) {
	env := newTestEnv(t)
	created := env.createForm(t, service.CreateInput{Template: "contact"})
	fieldID := ""
	for id := range created.Definition.Fields {
		fieldID = id
		break
	}
	fieldPath := "/api/forms/" + created.ID + "/fields/" + fieldID

	rec := env.do(t, http.MethodPost, "/api/sessions", openSessionRequest{FormID: created.ID, Viewport: viewport})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	opened := decode[sessionResponse](t, rec)

	label := "Renamed"
	def := created.Definition
	for _, tc := range []struct {
		name, method, path string
		body               any
	}{
		{"add", http.MethodPost, "/api/forms/" + created.ID + "/fields", map[string]any{"type": "text"}},
		{"patch", http.MethodPatch, fieldPath, models.FieldPatch{Props: &models.FieldPropsPatch{Label: &label}}},
		{"remove", http.MethodDelete, fieldPath, nil},
		{"replace definition", http.MethodPut, "/api/forms/" + created.ID, map[string]any{"definition": def}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, tc.method, tc.path, tc.body)
			require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
			assert.Contains(t, decode[APIError](t, rec).Message, opened.Session.ID)
		})
	}

	rec = env.do(t, http.MethodPut, "/api/forms/"+created.ID, map[string]any{"title": "Still editable"})
	assert.Equal(t, http.StatusOK, rec.Code, "metadata edits stay allowed")

	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodDelete, "/api/sessions/"+opened.Session.ID, nil).Code)
	rec = env.do(t, http.MethodPatch, fieldPath, models.FieldPatch{Props: &models.FieldPropsPatch{Label: &label}})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestFromError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", fmt.Errorf("load: %w", service.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"session not found", session.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"conflict", service.ErrConflict, http.StatusConflict, "CONFLICT"},
		{"form in use", session.ErrFormInUse, http.StatusConflict, "CONFLICT"},
		{"not published", service.ErrNotPublished, http.StatusConflict, "CONFLICT"},
		{"invalid input", service.ErrInvalidInput, http.StatusBadRequest, "BAD_REQUEST"},
		{"invalid field", fmt.Errorf("open: %w", models.ErrInvalidField), http.StatusBadRequest, "BAD_REQUEST"},
		{"submission", &service.ValidationError{Issues: []string{"a", "b"}}, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"session cap", session.ErrTooManySessions, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"api error", NewConflictError("x"), http.StatusConflict, "CONFLICT"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromError(tt.err)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.code, got.Code)
		})
	}
}

func TestErrorHandlerHidesInternalDetails(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := httptest.NewRecorder()
	NewErrorHandler(logging.Discard(), false)(errors.New("db password wrong"), e.NewContext(req, rec))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = httptest.NewRecorder()
	NewErrorHandler(logging.Discard(), true)(errors.New("db password wrong"), e.NewContext(req, rec))
	assert.Contains(t, rec.Body.String(), "password")

	rec = httptest.NewRecorder()
	NewErrorHandler(logging.Discard(), false)(echo.NewHTTPError(http.StatusMethodNotAllowed, "nope"), e.NewContext(req, rec))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "HTTP_ERROR", decode[APIError](t, rec).Code)
}

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbl/backend/internal/camera"
	"github.com/nimbl/backend/internal/form"
	"github.com/nimbl/backend/internal/interaction"
	"github.com/nimbl/backend/internal/logging"
	"github.com/nimbl/backend/internal/models"
	"github.com/nimbl/backend/internal/testutil"
)

// fakeForms is a FormSource recording every save.
type fakeForms struct {
	mu    sync.Mutex
	forms map[string]*models.FormRecord
	saves int
	err   error
}

func newFakeForms(recs ...*models.FormRecord) *fakeForms {
	f := &fakeForms{forms: make(map[string]*models.FormRecord)}
	for _, r := range recs {
		f.forms[r.ID] = r
	}
	return f
}

func (f *fakeForms) Get(ctx context.Context, id string) (*models.FormRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.forms[id]
	if !ok {
		return nil, errors.New("form not found")
	}
	c := *rec
	c.Definition = rec.Definition.Clone()
	return &c, nil
}

func (f *fakeForms) SaveDefinition(ctx context.Context, id string, def models.FormDefinition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saves++
	f.forms[id].Definition = def.Clone()
	return nil
}

func (f *fakeForms) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func (f *fakeForms) field(formID, fieldID string) models.Field {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.forms[formID].Definition.Fields[fieldID]
}

var viewport = camera.Viewport{Width: 1200, Height: 800}

func newTestManager(t *testing.T, opts Options) (*Manager, *fakeForms) {
	t.Helper()
	var recs []*models.FormRecord
	for _, id := range []string{"f1", "f2", "f3"} {
		def := testutil.Definition(id,
			testutil.Field("a", models.FieldTypeText, 0, 0, 6, 2),
			testutil.Field("b", models.FieldTypeText, 10, 0, 4, 2),
		)
		recs = append(recs, testutil.Record(def, false))
	}
	forms := newFakeForms(recs...)
	if opts.Interaction.HistoryLimit == 0 {
		opts.Interaction = interaction.DefaultOptions()
	}
	m := NewManager(forms, form.New(form.DefaultSettings()), opts, logging.Discard())
	return m, forms
}

func TestOpenSession(t *testing.T) {
	m, _ := newTestManager(t, Options{})

	sess, view, err := m.Open(context.Background(), "f1", viewport)
	require.NoError(t, err)
	assert.Equal(t, "f1", sess.FormID)
	assert.Equal(t, models.SessionStatusActive, sess.Status)
	assert.Len(t, view.Layout.Fields, 2)
	assert.Equal(t, 1, m.Count())

	got, ok := m.Get(sess.ID)
	require.True(t, ok)
	assert.Equal(t, sess.ID, got.ID)

	_, _, err = m.Open(context.Background(), "missing", viewport)
	assert.Error(t, err)
}

func TestDoRunsControllerAndTouches(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	clock := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	sess, _, err := m.Open(context.Background(), "f1", viewport)
	require.NoError(t, err)

	clock = clock.Add(time.Minute)
	view, err := m.Do(sess.ID, func(c *interaction.Controller) error {
		c.Select("a")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "a", view.Selected)

	got, _ := m.Get(sess.ID)
	assert.Equal(t, clock, got.LastAccessed)

	_, err = m.Do("nope", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = m.Do(sess.ID, func(c *interaction.Controller) error { return errors.New("boom") })
	assert.EqualError(t, err, "boom")
}

func TestAutosaveDebounces(t *testing.T) {
	m, forms := newTestManager(t, Options{AutosaveDebounce: 20 * time.Millisecond})
	sess, _, err := m.Open(context.Background(), "f1", viewport)
	require.NoError(t, err)

	for _, y := range []float64{4, 6, 8} {
		y := y
		_, err := m.Do(sess.ID, func(c *interaction.Controller) error {
			return c.UpdateField("a", models.FieldPatch{Layout: &models.FieldLayoutPatch{Y: &y}})
		})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return forms.saveCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 8.0, forms.field("f1", "a").Layout.Y)

	got, _ := m.Get(sess.ID)
	assert.NotNil(t, got.LastSavedAt)
	assert.Empty(t, got.SaveError)
}

func TestAutosaveSkipsUnchangedDefinition(t *testing.T) {
	m, forms := newTestManager(t, Options{AutosaveDebounce: 10 * time.Millisecond})
	sess, _, err := m.Open(context.Background(), "f1", viewport)
	require.NoError(t, err)

	// move away and back within one debounce window
	_, err = m.Do(sess.ID, func(c *interaction.Controller) error {
		y := 5.0
		if err := c.UpdateField("a", models.FieldPatch{Layout: &models.FieldLayoutPatch{Y: &y}}); err != nil {
			return err
		}
		c.Undo()
		return nil
	})
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 0, forms.saveCount())
}

func TestAutosaveRecordsFailure(t *testing.T) {
	m, forms := newTestManager(t, Options{AutosaveDebounce: 5 * time.Millisecond})
	forms.err = errors.New("disk full")
	sess, _, err := m.Open(context.Background(), "f1", viewport)
	require.NoError(t, err)

	_, err = m.Do(sess.ID, func(c *interaction.Controller) error {
		return c.RemoveField("b")
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, _ := m.Get(sess.ID)
		return got.SaveError == "disk full"
	}, time.Second, 5*time.Millisecond)
}

func TestCloseFlushesPendingSave(t *testing.T) {
	m, forms := newTestManager(t, Options{AutosaveDebounce: time.Hour})
	sess, _, err := m.Open(context.Background(), "f1", viewport)
	require.NoError(t, err)

	_, err = m.Do(sess.ID, func(c *interaction.Controller) error { return c.RemoveField("b") })
	require.NoError(t, err)
	assert.Equal(t, 0, forms.saveCount())

	require.NoError(t, m.Close(context.Background(), sess.ID))
	assert.Equal(t, 1, forms.saveCount())
	assert.Equal(t, 0, m.Count())

	assert.ErrorIs(t, m.Close(context.Background(), sess.ID), ErrNotFound)
}

func TestSubscribeReceivesChanges(t *testing.T) {
	m, _ := newTestManager(t, Options{AutosaveDebounce: time.Hour})
	sess, _, err := m.Open(context.Background(), "f1", viewport)
	require.NoError(t, err)

	events, cancel, err := m.Subscribe(sess.ID)
	require.NoError(t, err)

	_, err = m.Do(sess.ID, func(c *interaction.Controller) error {
		c.Select("b")
		return nil
	})
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, sess.ID, ev.SessionID)
		assert.Equal(t, interaction.ChangeSelection, ev.Change.Kind)
		assert.Equal(t, "b", ev.Change.FieldID)
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}

	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open, "channel closed after cancel")

	_, _, err = m.Subscribe("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	sess, _, err := m.Open(context.Background(), "f1", viewport)
	require.NoError(t, err)
	events, cancel, err := m.Subscribe(sess.ID)
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, m.Close(context.Background(), sess.ID))
	_, open := <-events
	assert.False(t, open)
}

func TestMaxSessionsEvictsLeastRecentlyUsed(t *testing.T) {
	m, _ := newTestManager(t, Options{MaxSessions: 2})
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	var ids []string
	for _, formID := range []string{"f1", "f2"} {
		clock = clock.Add(time.Minute)
		sess, _, err := m.Open(context.Background(), formID, viewport)
		require.NoError(t, err)
		ids = append(ids, sess.ID)
	}

	clock = clock.Add(time.Minute)
	require.True(t, m.TouchSession(ids[0]))

	third, _, err := m.Open(context.Background(), "f3", viewport)
	require.NoError(t, err)
	assert.Equal(t, 2, m.Count())

	_, ok := m.Get(ids[1])
	assert.False(t, ok, "least recently used session evicted")
	_, ok = m.Get(ids[0])
	assert.True(t, ok)
	_, ok = m.Get(third.ID)
	assert.True(t, ok)
}

func TestMaxSessionsKeepsSubscribedSessions(t *testing.T) {
	m, _ := newTestManager(t, Options{MaxSessions: 1})
	sess, _, err := m.Open(context.Background(), "f1", viewport)
	require.NoError(t, err)
	_, cancel, err := m.Subscribe(sess.ID)
	require.NoError(t, err)
	defer cancel()

	_, _, err = m.Open(context.Background(), "f2", viewport)
	assert.ErrorIs(t, err, ErrTooManySessions)
}

func TestCleanupOldSessions(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	old, _, err := m.Open(context.Background(), "f1", viewport)
	require.NoError(t, err)
	watched, _, err := m.Open(context.Background(), "f2", viewport)
	require.NoError(t, err)
	_, cancel, err := m.Subscribe(watched.ID)
	require.NoError(t, err)
	defer cancel()

	clock = clock.Add(50 * time.Minute)
	recent, _, err := m.Open(context.Background(), "f3", viewport)
	require.NoError(t, err)

	clock = clock.Add(2 * time.Minute)
	removed := m.CleanupOldSessions(30 * time.Minute)
	assert.Equal(t, 1, removed)

	for _, tc := range []struct {
		id   string
		want bool
	}{
		{old.ID, false},
		{watched.ID, true},
		{recent.ID, true},
	} {
		_, ok := m.Get(tc.id)
		assert.Equal(t, tc.want, ok, fmt.Sprintf("session %s", tc.id))
	}
}

func TestCloseAll(t *testing.T) {
	m, forms := newTestManager(t, Options{AutosaveDebounce: time.Hour})
	for i, formID := range []string{"f1", "f2", "f3"} {
		sess, _, err := m.Open(context.Background(), formID, viewport)
		require.NoError(t, err)
		if i == 0 {
			_, err = m.Do(sess.ID, func(c *interaction.Controller) error { return c.RemoveField("a") })
			require.NoError(t, err)
		}
	}

	m.CloseAll(context.Background())
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, 1, forms.saveCount())
}

func TestOpenReplacesAbandonedSession(t *testing.T) {
	m, forms := newTestManager(t, Options{AutosaveDebounce: time.Hour})
	first, _, err := m.Open(context.Background(), "f1", viewport)
	require.NoError(t, err)
	_, err = m.Do(first.ID, func(c *interaction.Controller) error { return c.RemoveField("b") })
	require.NoError(t, err)

	id, ok := m.Editing("f1")
	require.True(t, ok)
	assert.Equal(t, first.ID, id)

	second, view, err := m.Open(context.Background(), "f1", viewport)
	require.NoError(t, err)
	assert.Equal(t, 1, forms.saveCount(), "pending edit saved before the form is reopened")
	assert.Len(t, view.Layout.Fields, 1)
	assert.Equal(t, 1, m.Count())

	_, ok = m.Get(first.ID)
	assert.False(t, ok)
	_, err = m.Do(first.ID, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	id, _ = m.Editing("f1")
	assert.Equal(t, second.ID, id)
}

func TestOpenRefusesWatchedForm(t *testing.T) {
	m, _ := newTestManager(t, Options{})
	sess, _, err := m.Open(context.Background(), "f1", viewport)
	require.NoError(t, err)
	_, cancel, err := m.Subscribe(sess.ID)
	require.NoError(t, err)

	_, _, err = m.Open(context.Background(), "f1", viewport)
	assert.ErrorIs(t, err, ErrFormInUse)

	cancel()
	_, _, err = m.Open(context.Background(), "f1", viewport)
	assert.NoError(t, err)
}

func TestClosedSessionStopsAutosaving(t *testing.T) {
	m, forms := newTestManager(t, Options{AutosaveDebounce: time.Hour})
	sess, _, err := m.Open(context.Background(), "f1", viewport)
	require.NoError(t, err)

	var ctrl *interaction.Controller
	_, err = m.Do(sess.ID, func(c *interaction.Controller) error {
		ctrl = c
		return nil
	})
	require.NoError(t, err)
	require.NoError(t, m.Close(context.Background(), sess.ID))

	_, ok := m.Editing("f1")
	assert.False(t, ok)

	// A late edit on the detached controller schedules nothing.
	require.NoError(t, ctrl.RemoveField("a"))
	m.CloseAll(context.Background())
	assert.Equal(t, 0, forms.saveCount())
	assert.Equal(t, "a", forms.field("f1", "a").ID)
}

func TestFingerprintIsDeterministic(t *testing.T) {
	def := testutil.Definition("f1",
		testutil.Field("a", models.FieldTypeText, 0, 0, 6, 2),
		testutil.Field("b", models.FieldTypeText, 0, 2, 6, 2),
		testutil.Field("c", models.FieldTypeText, 0, 4, 6, 2),
	)
	first, err := fingerprint(def)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := fingerprint(def.Clone())
		require.NoError(t, err)
		require.Equal(t, first, again)
	}

	moved := def.Clone()
	f := moved.Fields["c"]
	f.Layout.Y = 9
	moved.Fields["c"] = f
	other, err := fingerprint(moved)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

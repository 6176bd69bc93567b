// Package session holds server-side editing sessions: one interaction
// controller per open form, with debounced autosave and change fan-out.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/nimbl/backend/internal/camera"
	"github.com/nimbl/backend/internal/form"
	"github.com/nimbl/backend/internal/interaction"
	"github.com/nimbl/backend/internal/logging"
	"github.com/nimbl/backend/internal/models"
)

var (
	ErrNotFound        = errors.New("session not found")
	ErrTooManySessions = errors.New("too many editing sessions")
	ErrFormInUse       = errors.New("form is open in another editing session")
)

// SessionKeepAliveWindow is how long a recently used session is protected
// from cleanup.
const SessionKeepAliveWindow = 5 * time.Minute

// subscriberBuffer is how many events a slow subscriber may lag behind
// before events are dropped for it.
const subscriberBuffer = 16

// FormSource loads forms and stores edited definitions.
type FormSource interface {
	Get(ctx context.Context, id string) (*models.FormRecord, error)
	SaveDefinition(ctx context.Context, id string, def models.FormDefinition) error
}

// Options configure a Manager.
type Options struct {
	// MaxSessions caps open sessions; 0 means no cap.
	MaxSessions      int
	AutosaveDebounce time.Duration
	Interaction      interaction.Options
}

// Event is pushed to subscribers after every committed controller update.
type Event struct {
	SessionID string
	Change    interaction.Change
}

// Manager handles open editing sessions.
type Manager struct {
	sessions map[string]*SessionState
	// form id -> id of the session editing it
	byForm map[string]string
	mu     sync.RWMutex
	forms    FormSource
	model    *form.Model
	opts     Options
	logger   *log.Logger
	now      func() time.Time
}

// SessionState holds the session metadata and its controller.
type SessionState struct {
	// serializes controller access
	mu         sync.Mutex
	Session    *models.EditSession
	controller *interaction.Controller
	saver      *autosaver

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// NewManager creates a session manager editing forms from src.
func NewManager(src FormSource, model *form.Model, opts Options, logger *log.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*SessionState),
		byForm:   make(map[string]string),
		forms:    src,
		model:    model,
		opts:     opts,
		logger:   logging.OrDefault(logger).WithPrefix("session"),
		now:      time.Now,
	}
}

// Open starts an editing session on formID with the camera fitted to the
// form's root frame in vp. A form has at most one session: an earlier one
// without subscribers is saved and replaced, a watched one makes Open fail
// with ErrFormInUse.
func (m *Manager) Open(ctx context.Context, formID string, vp camera.Viewport) (*models.EditSession, interaction.View, error) {
	if err := m.takeOver(ctx, formID); err != nil {
		return nil, interaction.View{}, err
	}

	rec, err := m.forms.Get(ctx, formID)
	if err != nil {
		return nil, interaction.View{}, err
	}

	ctrl, err := interaction.New(m.model, rec.Definition, vp, m.opts.Interaction)
	if err != nil {
		return nil, interaction.View{}, err
	}

	if err := m.makeRoom(ctx); err != nil {
		return nil, interaction.View{}, err
	}

	id := uuid.New().String()
	state := &SessionState{
		Session:    models.NewEditSession(id, formID, m.now()),
		controller: ctrl,
		subs:       make(map[int]chan Event),
	}
	state.saver = newAutosaver(m.opts.AutosaveDebounce, rec.Definition, func(ctx context.Context, def models.FormDefinition) error {
		return m.forms.SaveDefinition(ctx, formID, def)
	}, m.logger.With("session", shortID(id)))
	state.saver.onSaved = func(at time.Time, err error) {
		state.mu.Lock()
		defer state.mu.Unlock()
		if err != nil {
			state.Session.SaveError = err.Error()
			return
		}
		state.Session.SaveError = ""
		state.Session.LastSavedAt = &at
	}

	ctrl.OnChange(func(ch interaction.Change) {
		if ch.Kind&interaction.ChangeLayout != 0 {
			state.saver.schedule(ctrl.Definition())
		}
		state.publish(Event{SessionID: id, Change: ch})
	})

	m.mu.Lock()
	if _, busy := m.byForm[formID]; busy {
		m.mu.Unlock()
		return nil, interaction.View{}, fmt.Errorf("%w: %s", ErrFormInUse, formID)
	}
	m.sessions[id] = state
	m.byForm[formID] = id
	m.mu.Unlock()

	m.logger.Info("session opened", "id", shortID(id), "form", formID)
	return cloneSession(state.Session), ctrl.View(), nil
}

// takeOver ends the session holding formID, if any, so a new one can start.
func (m *Manager) takeOver(ctx context.Context, formID string) error {
	m.mu.Lock()
	id, ok := m.byForm[formID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	state := m.sessions[id]
	if state.subscriberCount() > 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFormInUse, formID)
	}
	m.detachLocked(id)
	m.mu.Unlock()

	m.logger.Info("replacing abandoned session", "id", shortID(id), "form", formID)
	if err := m.shutdown(ctx, state); err != nil {
		return fmt.Errorf("saving replaced session: %w", err)
	}
	return nil
}

// Editing returns the id of the session holding formID.
func (m *Manager) Editing(formID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byForm[formID]
	return id, ok
}

// detachLocked removes a session from the indexes. m.mu must be held.
func (m *Manager) detachLocked(id string) {
	state, ok := m.sessions[id]
	if !ok {
		return
	}
	delete(m.sessions, id)
	if m.byForm[state.Session.FormID] == id {
		delete(m.byForm, state.Session.FormID)
	}
}

// makeRoom evicts the least recently used session without subscribers
// when the cap is reached.
func (m *Manager) makeRoom(ctx context.Context) error {
	if m.opts.MaxSessions <= 0 {
		return nil
	}

	m.mu.Lock()
	if len(m.sessions) < m.opts.MaxSessions {
		m.mu.Unlock()
		return nil
	}

	type candidate struct {
		id   string
		seen time.Time
	}
	var idle []candidate
	for id, state := range m.sessions {
		if state.subscriberCount() > 0 {
			continue
		}
		idle = append(idle, candidate{id, state.lastAccessed()})
	}
	sort.Slice(idle, func(i, j int) bool { return idle[i].seen.Before(idle[j].seen) })

	toFree := len(m.sessions) - m.opts.MaxSessions + 1
	if len(idle) < toFree {
		m.mu.Unlock()
		return ErrTooManySessions
	}
	evicted := make([]*SessionState, 0, toFree)
	for _, c := range idle[:toFree] {
		evicted = append(evicted, m.sessions[c.id])
		m.detachLocked(c.id)
	}
	m.mu.Unlock()

	for _, state := range evicted {
		m.logger.Info("evicted idle session", "id", shortID(state.Session.ID))
		m.shutdown(ctx, state)
	}
	return nil
}

// Get returns a copy of a session's metadata.
func (m *Manager) Get(id string) (*models.EditSession, bool) {
	state, ok := m.state(id)
	if !ok {
		return nil, false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return cloneSession(state.Session), true
}

// Do runs fn with exclusive access to the session's controller and
// returns the resulting view. The session counts as accessed.
func (m *Manager) Do(id string, fn func(c *interaction.Controller) error) (interaction.View, error) {
	state, ok := m.state(id)
	if !ok {
		return interaction.View{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if state.Session.Status == models.SessionStatusClosed {
		return interaction.View{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	state.Session.LastAccessed = m.now()
	if fn != nil {
		if err := fn(state.controller); err != nil {
			return interaction.View{}, err
		}
	}
	return state.controller.View(), nil
}

// View returns the session's current view.
func (m *Manager) View(id string) (interaction.View, error) {
	return m.Do(id, nil)
}

// TouchSession updates the LastAccessed timestamp for a session.
// This should be called whenever a session is actively being used
// to prevent it from being cleaned up.
func (m *Manager) TouchSession(id string) bool {
	state, ok := m.state(id)
	if !ok {
		return false
	}
	state.mu.Lock()
	state.Session.LastAccessed = m.now()
	state.mu.Unlock()
	return true
}

// Subscribe registers for a session's change events. The returned cancel
// function unregisters and closes the channel.
func (m *Manager) Subscribe(id string) (<-chan Event, func(), error) {
	state, ok := m.state(id)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	state.subMu.Lock()
	defer state.subMu.Unlock()

	key := state.nextSub
	state.nextSub++
	ch := make(chan Event, subscriberBuffer)
	state.subs[key] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			state.subMu.Lock()
			defer state.subMu.Unlock()
			if c, ok := state.subs[key]; ok {
				delete(state.subs, key)
				close(c)
			}
		})
	}
	return ch, cancel, nil
}

// Close saves any pending edit and ends the session.
func (m *Manager) Close(ctx context.Context, id string) error {
	m.mu.Lock()
	state, ok := m.sessions[id]
	m.detachLocked(id)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.logger.Info("session closed", "id", shortID(id))
	return m.shutdown(ctx, state)
}

// CloseAll ends every session, saving pending edits.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	all := make([]*SessionState, 0, len(m.sessions))
	for _, state := range m.sessions {
		all = append(all, state)
	}
	clear(m.sessions)
	clear(m.byForm)
	m.mu.Unlock()

	for _, state := range all {
		if err := m.shutdown(ctx, state); err != nil {
			m.logger.Warn("final save failed", "id", shortID(state.Session.ID), "err", err)
		}
	}
}

// CleanupOldSessions removes sessions idle for longer than maxAge,
// but keeps sessions that have been accessed within SessionKeepAliveWindow
// or that still have subscribers.
func (m *Manager) CleanupOldSessions(maxAge time.Duration) int {
	now := m.now()
	cutoff := now.Add(-maxAge)
	keepAliveCutoff := now.Add(-SessionKeepAliveWindow)

	m.mu.Lock()
	var stale []*SessionState
	for id, state := range m.sessions {
		seen := state.lastAccessed()
		if seen.After(keepAliveCutoff) || state.subscriberCount() > 0 {
			continue
		}
		if seen.Before(cutoff) {
			stale = append(stale, state)
			m.detachLocked(id)
		}
	}
	m.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	for _, state := range stale {
		m.logger.Info("cleaned up idle session", "id", shortID(state.Session.ID),
			"idle", now.Sub(state.lastAccessed()).Round(time.Second))
		if err := m.shutdown(ctx, state); err != nil {
			m.logger.Warn("final save failed", "id", shortID(state.Session.ID), "err", err)
		}
	}
	return len(stale)
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *Manager) state(id string) (*SessionState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.sessions[id]
	return state, ok
}

// shutdown detaches the controller from the autosaver, flushes it and
// closes all subscriber channels.
func (m *Manager) shutdown(ctx context.Context, state *SessionState) error {
	state.mu.Lock()
	state.Session.Status = models.SessionStatusClosed
	state.controller.OnChange(nil)
	state.mu.Unlock()

	err := state.saver.flush(ctx)

	state.subMu.Lock()
	for key, ch := range state.subs {
		close(ch)
		delete(state.subs, key)
	}
	state.subMu.Unlock()
	return err
}

func (s *SessionState) publish(ev Event) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			// subscriber is behind; it re-syncs on the next view it reads
		}
	}
}

func (s *SessionState) subscriberCount() int {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs)
}

func (s *SessionState) lastAccessed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Session.LastAccessed
}

func cloneSession(s *models.EditSession) *models.EditSession {
	c := *s
	if s.LastSavedAt != nil {
		t := *s.LastSavedAt
		c.LastSavedAt = &t
	}
	return &c
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package session

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/nimbl/backend/internal/models"
)

// saveTimeout bounds a single background save.
const saveTimeout = 10 * time.Second

// SaveFunc writes a definition back to persistent storage.
type SaveFunc func(ctx context.Context, def models.FormDefinition) error

// autosaver debounces definition saves. Every schedule call restarts the
// delay; when it expires the latest definition is saved unless it matches
// the last saved one byte for byte.
type autosaver struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	pending *models.FormDefinition

	// serializes saves so an older definition never overwrites a newer one
	saveMu    sync.Mutex
	lastPrint []byte

	save   SaveFunc
	logger *log.Logger
	// onSaved reports the outcome of each save that was attempted.
	onSaved func(at time.Time, err error)
}

func newAutosaver(delay time.Duration, initial models.FormDefinition, save SaveFunc, logger *log.Logger) *autosaver {
	a := &autosaver{delay: delay, save: save, logger: logger}
	if fp, err := fingerprint(initial); err == nil {
		a.lastPrint = fp
	}
	return a
}

// fingerprint encodes def deterministically. Map keys are sorted so equal
// definitions always produce equal bytes.
func fingerprint(def models.FormDefinition) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(def); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// schedule queues def and restarts the debounce timer.
func (a *autosaver) schedule(def models.FormDefinition) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending = &def
	if a.timer != nil {
		a.timer.Stop()
	}
	if a.delay <= 0 {
		go a.run()
		return
	}
	a.timer = time.AfterFunc(a.delay, a.run)
}

func (a *autosaver) run() {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := a.flush(ctx); err != nil {
		a.logger.Warn("autosave failed", "err", err)
	}
}

// flush saves the pending definition now, if there is one.
func (a *autosaver) flush(ctx context.Context) error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	def := a.pending
	a.pending = nil
	a.mu.Unlock()

	if def == nil {
		return nil
	}

	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	fp, err := fingerprint(*def)
	if err == nil && bytes.Equal(fp, a.lastPrint) {
		a.logger.Debug("autosave skipped, definition unchanged", "form", def.ID)
		return nil
	}

	err = a.save(ctx, *def)
	if a.onSaved != nil {
		a.onSaved(time.Now(), err)
	}
	if err != nil {
		return err
	}
	a.lastPrint = fp
	a.logger.Debug("autosaved", "form", def.ID, "fields", len(def.Fields))
	return nil
}

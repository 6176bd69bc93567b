// Package responses persists form submissions in DuckDB.
package responses

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/marcboeker/go-duckdb"

	"github.com/nimbl/backend/internal/logging"
	"github.com/nimbl/backend/internal/models"
)

// ErrNotFound is returned when no response matches the id.
var ErrNotFound = errors.New("response not found")

// Store persists responses.
type Store interface {
	Create(ctx context.Context, r *models.Response) error
	Get(ctx context.Context, id string) (*models.Response, error)
	// List returns responses of formID, newest first, with the unpaged
	// total. limit <= 0 returns everything from offset on.
	List(ctx context.Context, formID string, limit, offset int) ([]*models.Response, int, error)
	Delete(ctx context.Context, id string) error
	DeleteByForm(ctx context.Context, formID string) (int, error)
	Close() error
}

// Options tunes the DuckDB connection.
type Options struct {
	Threads     int
	MemoryLimit string
}

// DuckStore implements Store on a DuckDB file.
type DuckStore struct {
	db     *sql.DB
	dbPath string
	logger *log.Logger

	// limits concurrent queries
	querySem chan struct{}
}

// Open opens (or creates) the response database at dbPath. An empty path
// opens an in-memory database.
func Open(dbPath string, opts Options, logger *log.Logger) (*DuckStore, error) {
	logger = logging.OrDefault(logger).WithPrefix("responses")

	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	pragmas := []string{"PRAGMA enable_progress_bar=false"}
	if opts.MemoryLimit != "" {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit))
	}
	if opts.Threads > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA threads=%d", opts.Threads))
	}

	connector, err := duckdb.NewConnector(dbPath, func(execer driver.ExecerContext) error {
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				logger.Warn("pragma failed", "pragma", pragma, "err", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)

	schema := []string{
		`CREATE TABLE IF NOT EXISTS responses (
			id           VARCHAR PRIMARY KEY,
			form_id      VARCHAR NOT NULL,
			values_json  VARCHAR NOT NULL,
			meta_json    VARCHAR NOT NULL,
			submitted_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_responses_form ON responses(form_id)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	logger.Debug("response database ready", "path", dbPath)
	return &DuckStore{
		db:       db,
		dbPath:   dbPath,
		logger:   logger,
		querySem: make(chan struct{}, 4),
	}, nil
}

func (ds *DuckStore) acquire(ctx context.Context) error {
	select {
	case ds.querySem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (ds *DuckStore) release() { <-ds.querySem }

// Create inserts r.
func (ds *DuckStore) Create(ctx context.Context, r *models.Response) error {
	values, err := json.Marshal(r.Values)
	if err != nil {
		return fmt.Errorf("encoding values: %w", err)
	}
	meta, err := json.Marshal(r.Meta)
	if err != nil {
		return fmt.Errorf("encoding meta: %w", err)
	}

	if err := ds.acquire(ctx); err != nil {
		return err
	}
	defer ds.release()

	_, err = ds.db.ExecContext(ctx,
		`INSERT INTO responses (id, form_id, values_json, meta_json, submitted_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.FormID, string(values), string(meta), r.SubmittedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting response: %w", err)
	}
	return nil
}

// Get returns the response with the given id.
func (ds *DuckStore) Get(ctx context.Context, id string) (*models.Response, error) {
	if err := ds.acquire(ctx); err != nil {
		return nil, err
	}
	defer ds.release()

	row := ds.db.QueryRowContext(ctx,
		`SELECT id, form_id, values_json, meta_json, submitted_at FROM responses WHERE id = ?`, id)
	r, err := scanResponse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// List returns a page of formID's responses, newest first.
func (ds *DuckStore) List(ctx context.Context, formID string, limit, offset int) ([]*models.Response, int, error) {
	if err := ds.acquire(ctx); err != nil {
		return nil, 0, err
	}
	defer ds.release()

	var total int
	if err := ds.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM responses WHERE form_id = ?`, formID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting responses: %w", err)
	}

	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, form_id, values_json, meta_json, submitted_at FROM responses
		WHERE form_id = ? ORDER BY submitted_at DESC, id`
	args := []any{formID}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	} else if offset > 0 {
		query += ` OFFSET ?`
		args = append(args, offset)
	}

	rows, err := ds.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying responses: %w", err)
	}
	defer rows.Close()

	list := make([]*models.Response, 0)
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("reading responses: %w", err)
	}
	return list, total, nil
}

// Delete removes one response.
func (ds *DuckStore) Delete(ctx context.Context, id string) error {
	if err := ds.acquire(ctx); err != nil {
		return err
	}
	defer ds.release()

	res, err := ds.db.ExecContext(ctx, `DELETE FROM responses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting response: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// DeleteByForm removes every response of formID and reports how many.
func (ds *DuckStore) DeleteByForm(ctx context.Context, formID string) (int, error) {
	if err := ds.acquire(ctx); err != nil {
		return 0, err
	}
	defer ds.release()

	res, err := ds.db.ExecContext(ctx, `DELETE FROM responses WHERE form_id = ?`, formID)
	if err != nil {
		return 0, fmt.Errorf("deleting form responses: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		ds.logger.Debug("deleted form responses", "form", formID, "count", n)
	}
	return int(n), nil
}

// Close closes the database.
func (ds *DuckStore) Close() error {
	if ds.db == nil {
		return nil
	}
	return ds.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResponse(row rowScanner) (*models.Response, error) {
	var (
		r           models.Response
		values      string
		meta        string
		submittedAt time.Time
	)
	if err := row.Scan(&r.ID, &r.FormID, &values, &meta, &submittedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(values), &r.Values); err != nil {
		return nil, fmt.Errorf("decoding values of %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(meta), &r.Meta); err != nil {
		return nil, fmt.Errorf("decoding meta of %s: %w", r.ID, err)
	}
	r.SubmittedAt = submittedAt.UTC()
	return &r, nil
}

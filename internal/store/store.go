// Package store persists wiki pages, tags and attributions in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Registers the "pgx" database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Attribution credits a user with a page
type Attribution struct {
	PageID string
	User   string
	Kind   string
}

// Page is the stored metadata of one wiki page
type Page struct {
	ID        string
	Title     string
	CreatedBy string
	CreatedAt time.Time
	Rating    int
	Tags      []string
}

// Store is a PostgreSQL-backed page store.
type Store struct {
	db *sql.DB
}

// Open connects to the database at dsn and checks the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db), nil
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables when they do not already exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS page (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	created_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ,
	rating     INTEGER NOT NULL DEFAULT 0,
	updated    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS tag (
	page_id TEXT NOT NULL,
	name    TEXT NOT NULL,
	PRIMARY KEY (page_id, name)
);
CREATE TABLE IF NOT EXISTS attribution (
	page_id  TEXT NOT NULL,
	username TEXT NOT NULL,
	kind     TEXT NOT NULL,
	PRIMARY KEY (page_id, username, kind)
);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// InsertAttributions stores attributions, ignoring ones already present.
func (s *Store) InsertAttributions(ctx context.Context, attrs []Attribution) (err error) {
	if len(attrs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `
INSERT INTO attribution (page_id, username, kind)
VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING`

	for _, a := range attrs {
		if _, err = tx.ExecContext(ctx, query, a.PageID, a.User, a.Kind); err != nil {
			return fmt.Errorf("insert attribution %s/%s: %w", a.PageID, a.User, err)
		}
	}
	return tx.Commit()
}

// Authors returns every distinct page creator.
func (s *Store) Authors(ctx context.Context) ([]string, error) {
	return s.strings(ctx, `SELECT DISTINCT created_by FROM page WHERE created_by <> ''`)
}

// PageIDs returns the id of every stored page.
func (s *Store) PageIDs(ctx context.Context) ([]string, error) {
	return s.strings(ctx, `SELECT id FROM page`)
}

func (s *Store) strings(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpsertPages inserts or updates pages and replaces their tags.
func (s *Store) UpsertPages(ctx context.Context, pages []Page) (err error) {
	if len(pages) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const upsert = `
INSERT INTO page (id, title, created_by, created_at, rating, updated)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (id) DO UPDATE
SET title = EXCLUDED.title,
	created_by = EXCLUDED.created_by,
	created_at = EXCLUDED.created_at,
	rating = EXCLUDED.rating,
	updated = EXCLUDED.updated`

	for _, p := range pages {
		var created interface{}
		if !p.CreatedAt.IsZero() {
			created = p.CreatedAt
		}
		if _, err = tx.ExecContext(ctx, upsert, p.ID, p.Title, p.CreatedBy, created, p.Rating); err != nil {
			return fmt.Errorf("upsert page %s: %w", p.ID, err)
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM tag WHERE page_id = $1`, p.ID); err != nil {
			return fmt.Errorf("clear tags of %s: %w", p.ID, err)
		}
		for _, tag := range p.Tags {
			if _, err = tx.ExecContext(ctx,
				`INSERT INTO tag (page_id, name) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				p.ID, tag); err != nil {
				return fmt.Errorf("insert tag %s on %s: %w", tag, p.ID, err)
			}
		}
	}
	return tx.Commit()
}

// PurgePages deletes pages with their tags and attributions.
func (s *Store) PurgePages(ctx context.Context, ids []string) (err error) {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, id := range ids {
		for _, q := range []string{
			`DELETE FROM tag WHERE page_id = $1`,
			`DELETE FROM attribution WHERE page_id = $1`,
			`DELETE FROM page WHERE id = $1`,
		} {
			if _, err = tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("purge page %s: %w", id, err)
			}
		}
	}
	return tx.Commit()
}

// Package relational stores resources in SQLite or PostgreSQL.
package relational

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MrSnakeDoc/urldammit/internal/domain"
	"github.com/MrSnakeDoc/urldammit/internal/store"
	"github.com/MrSnakeDoc/urldammit/internal/store/relational/migrations"
)

// Store persists resources across the urldammit_uris, urldammit_tags and
// urldammit_pairs tables.
type Store struct {
	db      *sql.DB
	dialect dialect
	limits  domain.Limits
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenSQLite opens a SQLite database file and applies embedded migrations.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open(sqliteDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection serializes writers and avoids SQLITE_BUSY on
	// transaction upgrades.
	db.SetMaxOpenConns(1)
	return open(ctx, db, sqliteDialect)
}

// OpenPostgres connects to PostgreSQL and applies embedded migrations.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	return open(ctx, db, postgresDialect)
}

func open(ctx context.Context, db *sql.DB, d dialect) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", d.name, err)
	}
	if err := applyMigrations(ctx, db, d, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, dialect: d, limits: domain.DefaultLimits()}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Load retrieves one resource with its tags and pairs.
func (s *Store) Load(ctx context.Context, id string) (*domain.Resource, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin load: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rec, rev, ok, err := s.loadRecord(ctx, tx, id)
	if err != nil || !ok {
		return nil, false, err
	}

	r, err := domain.FromRecord(rec, s.limits)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode resource %s: %w", id, err)
	}
	r.SetMeta(store.MetaRev, strconv.FormatInt(rev, 10))
	return r, true, nil
}

func (s *Store) loadRecord(ctx context.Context, q querier, id string) (domain.Record, int64, bool, error) {
	rec := domain.Record{ID: id}
	var created, updated, rev int64
	err := q.QueryRowContext(ctx,
		s.dialect.rebind(`SELECT uri, location, status, created, updated, rev FROM urldammit_uris WHERE id = ?`),
		id,
	).Scan(&rec.URI, &rec.Location, &rec.Status, &created, &updated, &rev)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Record{}, 0, false, nil
		}
		return domain.Record{}, 0, false, fmt.Errorf("failed to load resource: %w", err)
	}
	rec.Created = fromMillis(created)
	rec.Updated = fromMillis(updated)

	rows, err := q.QueryContext(ctx, s.dialect.rebind(`SELECT tag FROM urldammit_tags WHERE id = ? ORDER BY tag`), id)
	if err != nil {
		return domain.Record{}, 0, false, fmt.Errorf("failed to load tags: %w", err)
	}
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			_ = rows.Close()
			return domain.Record{}, 0, false, fmt.Errorf("failed to scan tag: %w", err)
		}
		rec.Tags = append(rec.Tags, tag)
	}
	if err := closeRows(rows); err != nil {
		return domain.Record{}, 0, false, fmt.Errorf("failed to load tags: %w", err)
	}

	rows, err = q.QueryContext(ctx, s.dialect.rebind(`SELECT pair_key, pair_value FROM urldammit_pairs WHERE id = ?`), id)
	if err != nil {
		return domain.Record{}, 0, false, fmt.Errorf("failed to load pairs: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			_ = rows.Close()
			return domain.Record{}, 0, false, fmt.Errorf("failed to scan pair: %w", err)
		}
		if rec.Pairs == nil {
			rec.Pairs = make(map[string]string)
		}
		rec.Pairs[k] = v
	}
	if err := closeRows(rows); err != nil {
		return domain.Record{}, 0, false, fmt.Errorf("failed to load pairs: %w", err)
	}

	return rec, rev, true, nil
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	return rows.Close()
}

// Insert adds a new resource at revision 1.
func (s *Store) Insert(ctx context.Context, r *domain.Resource) error {
	rec := r.Record()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			s.dialect.rebind(`INSERT INTO urldammit_uris (id, uri, location, status, created, updated, rev)
			 VALUES (?, ?, ?, ?, ?, ?, 1)`),
			rec.ID, rec.URI, rec.Location, rec.Status, toMillis(rec.Created), toMillis(rec.Updated),
		)
		if err != nil {
			if s.dialect.isUniqueViolation(err) {
				return store.ErrAlreadyExists
			}
			return fmt.Errorf("failed to insert resource: %w", err)
		}
		return s.writeChildren(ctx, tx, rec)
	})
	if err != nil {
		return err
	}
	r.SetMeta(store.MetaRev, "1")
	return nil
}

// Update rewrites an existing resource if its revision still matches.
func (s *Store) Update(ctx context.Context, r *domain.Resource) error {
	rec := r.Record()
	expected, err := strconv.ParseInt(r.Meta(store.MetaRev), 10, 64)
	if err != nil {
		expected = -1
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			s.dialect.rebind(`UPDATE urldammit_uris
			 SET location = ?, status = ?, updated = ?, rev = rev + 1
			 WHERE id = ? AND rev = ?`),
			rec.Location, rec.Status, toMillis(rec.Updated), rec.ID, expected,
		)
		if err != nil {
			return fmt.Errorf("failed to update resource: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to update resource: %w", err)
		}
		if n == 0 {
			var one int
			err := tx.QueryRowContext(ctx, s.dialect.rebind(`SELECT 1 FROM urldammit_uris WHERE id = ?`), rec.ID).Scan(&one)
			if errors.Is(err, sql.ErrNoRows) {
				return store.ErrNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to check resource: %w", err)
			}
			return store.ErrConflict
		}

		if err := s.deleteChildren(ctx, tx, rec.ID); err != nil {
			return err
		}
		return s.writeChildren(ctx, tx, rec)
	})
	if err != nil {
		return err
	}
	r.SetMeta(store.MetaRev, strconv.FormatInt(expected+1, 10))
	return nil
}

// Delete removes a resource with its tags and pairs.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.deleteRows(ctx, tx, id)
	})
}

// PurgeNotFound drops NOTFOUND resources last updated before the cutoff.
func (s *Store) PurgeNotFound(ctx context.Context, before time.Time) ([]string, error) {
	var purged []string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			s.dialect.rebind(`SELECT id FROM urldammit_uris WHERE status = ? AND updated < ?`),
			domain.StatusNotFound.Code(), toMillis(before),
		)
		if err != nil {
			return fmt.Errorf("failed to list stale resources: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				_ = rows.Close()
				return fmt.Errorf("failed to scan id: %w", err)
			}
			purged = append(purged, id)
		}
		if err := closeRows(rows); err != nil {
			return fmt.Errorf("failed to list stale resources: %w", err)
		}

		for _, id := range purged {
			if err := s.deleteRows(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return purged, nil
}

func (s *Store) deleteRows(ctx context.Context, tx *sql.Tx, id string) error {
	if err := s.deleteChildren(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM urldammit_uris WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete resource: %w", err)
	}
	return nil
}

func (s *Store) deleteChildren(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM urldammit_tags WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete tags: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(`DELETE FROM urldammit_pairs WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete pairs: %w", err)
	}
	return nil
}

func (s *Store) writeChildren(ctx context.Context, tx *sql.Tx, rec domain.Record) error {
	for _, tag := range rec.Tags {
		if _, err := tx.ExecContext(ctx,
			s.dialect.rebind(`INSERT INTO urldammit_tags (id, tag) VALUES (?, ?)`),
			rec.ID, tag,
		); err != nil {
			return fmt.Errorf("failed to insert tag: %w", err)
		}
	}
	for k, v := range rec.Pairs {
		if _, err := tx.ExecContext(ctx,
			s.dialect.rebind(`INSERT INTO urldammit_pairs (id, pair_key, pair_value) VALUES (?, ?, ?)`),
			rec.ID, k, v,
		); err != nil {
			return fmt.Errorf("failed to insert pair: %w", err)
		}
	}
	return nil
}

// inTx runs fn in a transaction, committing only when fn succeeds.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

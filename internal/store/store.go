// Package store persists the synced catalog and the page refresh
// schedule in a relational database, Postgres or SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"anisync/pkg/catalog"
)

// Store is the persistence interface consumed by the sync loop and
// the status server.
type Store interface {
	// Apply reconciles one staged batch into the catalog tables.
	Apply(ctx context.Context, batch *catalog.Batch) error

	// Page schedule primitives.
	PageCount(ctx context.Context) (int, error)
	NextDuePage(ctx context.Context, dueBefore time.Time) (int, bool, error)
	RegisterPages(ctx context.Context, pages []int, due time.Time) error
	SetPageDue(ctx context.Context, page int, due time.Time) error

	// Read-only counters for the status endpoints.
	ItemCount(ctx context.Context) (int, error)
	GenreCount(ctx context.Context) (int, error)

	Close() error
}

// SQLStore implements Store on top of sqlx. Queries are written with
// ? placeholders and rebound for the active driver, so the same code
// runs against Postgres and SQLite.
type SQLStore struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

var _ Store = (*SQLStore)(nil)

// Open connects to the database named by dsn and applies the schema.
// A postgres:// or postgresql:// DSN selects the pgx driver; anything
// else is treated as a SQLite file path.
func Open(dsn string) (*SQLStore, error) {
	driver, schema := "sqlite", sqliteSchema
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver, schema = "pgx", postgresSchema
	} else if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}

	// pgx rejects multi-statement Exec, so the schema is applied one
	// statement at a time.
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	return &SQLStore{
		db:     db,
		logger: log.With().Str("component", "store").Logger(),
	}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Apply runs the four-step reconciliation for one batch inside a
// single transaction: upsert item rows, insert missing genres, drop
// every staged item's old associations, insert the staged ones.
// Association sets are fully replaced, not diffed, so items whose
// remote genre list shrank lose the stale rows.
func (s *SQLStore) Apply(ctx context.Context, batch *catalog.Batch) error {
	if batch.Len() == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	// created_at is deliberately absent from the update list so it
	// survives re-upserts, as does the surrogate id.
	upsertAnime := tx.Rebind(`
		INSERT INTO animes (anilist_id, mal_id, title, cover_url, format, status, release_year, score, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (anilist_id) DO UPDATE SET
			mal_id = excluded.mal_id,
			title = excluded.title,
			cover_url = excluded.cover_url,
			format = excluded.format,
			status = excluded.status,
			release_year = excluded.release_year,
			score = excluded.score,
			updated_at = excluded.updated_at`)
	for _, item := range batch.Items() {
		if _, err := tx.ExecContext(ctx, upsertAnime,
			item.AniListID, item.MALID, item.Title, item.CoverURL,
			item.Format, item.Status, item.ReleaseYear, item.Score,
			now, now); err != nil {
			return fmt.Errorf("upsert anime %d: %w", item.AniListID, err)
		}
	}

	insertGenre := tx.Rebind(`INSERT INTO genres (name) VALUES (?) ON CONFLICT (name) DO NOTHING`)
	for _, genre := range batch.Genres() {
		if _, err := tx.ExecContext(ctx, insertGenre, genre); err != nil {
			return fmt.Errorf("insert genre %s: %w", genre, err)
		}
	}

	deleteAssociations := tx.Rebind(`
		DELETE FROM anime_genres
		WHERE anime_id = (SELECT id FROM animes WHERE anilist_id = ?)`)
	for _, anilistID := range batch.AniListIDs() {
		if _, err := tx.ExecContext(ctx, deleteAssociations, anilistID); err != nil {
			return fmt.Errorf("clear associations for %d: %w", anilistID, err)
		}
	}

	insertAssociation := tx.Rebind(`
		INSERT INTO anime_genres (anime_id, genre_id)
		VALUES (
			(SELECT id FROM animes WHERE anilist_id = ?),
			(SELECT id FROM genres WHERE name = ?)
		)
		ON CONFLICT (anime_id, genre_id) DO NOTHING`)
	for _, assoc := range batch.Associations() {
		if _, err := tx.ExecContext(ctx, insertAssociation, assoc.AniListID, assoc.Genre); err != nil {
			return fmt.Errorf("insert association %d/%s: %w", assoc.AniListID, assoc.Genre, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	s.logger.Debug().Int("items", batch.Len()).Msg("Batch applied")
	return nil
}

// PageCount reports how many pages the schedule tracks. Pages are
// contiguous from 1, so the count equals the highest known page.
func (s *SQLStore) PageCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(page) FROM update_schedule`); err != nil {
		return 0, fmt.Errorf("count pages: %w", err)
	}
	return count, nil
}

// NextDuePage returns the page with the soonest next_due timestamp
// among pages due before the cutoff, or ok=false when none qualify.
func (s *SQLStore) NextDuePage(ctx context.Context, dueBefore time.Time) (int, bool, error) {
	var page int
	err := s.db.GetContext(ctx, &page,
		s.db.Rebind(`SELECT page FROM update_schedule WHERE next_due <= ? ORDER BY next_due LIMIT 1`),
		dueBefore.UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("next due page: %w", err)
	}
	return page, true, nil
}

// RegisterPages inserts schedule rows for newly discovered pages.
// Existing rows are never overwritten.
func (s *SQLStore) RegisterPages(ctx context.Context, pages []int, due time.Time) error {
	insert := s.db.Rebind(`INSERT INTO update_schedule (page, next_due) VALUES (?, ?) ON CONFLICT (page) DO NOTHING`)
	for _, page := range pages {
		if _, err := s.db.ExecContext(ctx, insert, page, due.UTC()); err != nil {
			return fmt.Errorf("register page %d: %w", page, err)
		}
	}
	return nil
}

// SetPageDue persists a new next-due timestamp for a tracked page.
func (s *SQLStore) SetPageDue(ctx context.Context, page int, due time.Time) error {
	if _, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE update_schedule SET next_due = ? WHERE page = ?`),
		due.UTC(), page); err != nil {
		return fmt.Errorf("set page %d due: %w", page, err)
	}
	return nil
}

func (s *SQLStore) ItemCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(id) FROM animes`); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return count, nil
}

func (s *SQLStore) GenreCount(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(id) FROM genres`); err != nil {
		return 0, fmt.Errorf("count genres: %w", err)
	}
	return count, nil
}

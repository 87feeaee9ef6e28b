package store

// Per-dialect DDL. The logical shape is identical: an items table with
// an auto-increment surrogate key and a unique external id, a genres
// lookup keyed by label, the association table, and the page schedule.

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS animes (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    anilist_id   INTEGER NOT NULL UNIQUE,
    mal_id       INTEGER,
    title        TEXT NOT NULL DEFAULT '',
    cover_url    TEXT NOT NULL DEFAULT '',
    format       TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT '',
    release_year INTEGER,
    score        REAL NOT NULL DEFAULT 0,
    created_at   DATETIME NOT NULL,
    updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS genres (
    id   INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS anime_genres (
    anime_id INTEGER NOT NULL REFERENCES animes(id),
    genre_id INTEGER NOT NULL REFERENCES genres(id),
    PRIMARY KEY (anime_id, genre_id)
);

CREATE INDEX IF NOT EXISTS idx_anime_genres_genre ON anime_genres(genre_id);

CREATE TABLE IF NOT EXISTS update_schedule (
    page     INTEGER PRIMARY KEY,
    next_due DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_update_schedule_due ON update_schedule(next_due);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS animes (
    id           BIGSERIAL PRIMARY KEY,
    anilist_id   BIGINT NOT NULL UNIQUE,
    mal_id       BIGINT,
    title        TEXT NOT NULL DEFAULT '',
    cover_url    TEXT NOT NULL DEFAULT '',
    format       TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT '',
    release_year INTEGER,
    score        DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL,
    updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS genres (
    id   BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS anime_genres (
    anime_id BIGINT NOT NULL REFERENCES animes(id),
    genre_id BIGINT NOT NULL REFERENCES genres(id),
    PRIMARY KEY (anime_id, genre_id)
);

CREATE INDEX IF NOT EXISTS idx_anime_genres_genre ON anime_genres(genre_id);

CREATE TABLE IF NOT EXISTS update_schedule (
    page     INTEGER PRIMARY KEY,
    next_due TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_update_schedule_due ON update_schedule(next_due);
`

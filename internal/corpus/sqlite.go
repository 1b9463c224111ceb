package corpus

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS articles (
	title        TEXT NOT NULL,
	url          TEXT NOT NULL,
	author       TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL DEFAULT '',
	published_at TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	content      TEXT NOT NULL DEFAULT '',
	country      TEXT NOT NULL DEFAULT '',
	category     TEXT NOT NULL DEFAULT '',
	position     INTEGER NOT NULL,
	generation   INTEGER NOT NULL,
	PRIMARY KEY (title, url)
);
CREATE INDEX IF NOT EXISTS idx_articles_position ON articles(position);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// SQLiteStore keeps the corpus in a SQLite database keyed by title and URL.
// Save upserts every record and drops rows absent from the new corpus in one
// transaction.
type SQLiteStore struct {
	db   *sqlx.DB
	path string
}

// OpenSQLiteStore opens or creates the database at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating corpus directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening corpus db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing corpus schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// Path implements FileBacked.
func (s *SQLiteStore) Path() string { return s.path }

// KeyPolicy implements Store.
func (s *SQLiteStore) KeyPolicy() KeyPolicy { return KeyTitleURL }

// Close implements Store.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) (Corpus, error) {
	var rows []ArticleRecord
	err := s.db.SelectContext(ctx, &rows, `
		SELECT title, author, source, published_at, description, content, url, country, category
		FROM articles ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("loading corpus: %w", err)
	}
	c := make(Corpus, len(rows))
	for i, r := range rows {
		c[i] = WithDerivedText(r)
	}
	return c, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, c Corpus) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning corpus save: %w", err)
	}
	defer tx.Rollback()

	var gen int64
	if err := tx.GetContext(ctx, &gen, `SELECT COALESCE(MAX(generation), 0) + 1 FROM articles`); err != nil {
		return fmt.Errorf("reading corpus generation: %w", err)
	}

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO articles (title, url, author, source, published_at, description, content, country, category, position, generation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(title, url) DO UPDATE SET
			author = excluded.author,
			source = excluded.source,
			published_at = excluded.published_at,
			description = excluded.description,
			content = excluded.content,
			country = excluded.country,
			category = excluded.category,
			position = excluded.position,
			generation = excluded.generation`)
	if err != nil {
		return fmt.Errorf("preparing corpus upsert: %w", err)
	}
	defer stmt.Close()

	for i, r := range c {
		if _, err := stmt.ExecContext(ctx, r.Title, r.URL, r.Author, r.Source, r.PublishedAt,
			r.Description, r.Content, r.Country, r.Category, i, gen); err != nil {
			return fmt.Errorf("upserting article %q: %w", r.URL, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM articles WHERE generation <> ?`, gen); err != nil {
		return fmt.Errorf("pruning corpus: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES ('last_saved', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("recording save time: %w", err)
	}

	return tx.Commit()
}

// Stat implements Statter.
func (s *SQLiteStore) Stat(ctx context.Context) (Stat, error) {
	var st Stat
	if err := s.db.GetContext(ctx, &st.Records, `SELECT COUNT(*) FROM articles`); err != nil {
		return Stat{}, fmt.Errorf("counting articles: %w", err)
	}
	var saved []string
	if err := s.db.SelectContext(ctx, &saved, `SELECT value FROM meta WHERE key = 'last_saved'`); err != nil {
		return Stat{}, fmt.Errorf("reading save time: %w", err)
	}
	if len(saved) == 1 {
		if t, err := time.Parse(time.RFC3339Nano, saved[0]); err == nil {
			st.LastModified = t
		}
	}
	return st, nil
}

// Package metastore is the relational side of the system: user accounts and
// document metadata rows in sqlite. The collaboration core only sees it as
// the last-modified marker behind the Snapshot Store.
package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUsernameTaken = errors.New("username already registered")
	ErrNotOwner      = errors.New("not the document owner")
)

// User is an account row.
type User struct {
	ID             int64
	Username       string
	HashedPassword string
}

// Document is a metadata row; content lives in the snapshot store.
type Document struct {
	ID        string
	Title     string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store wraps the sqlite database.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open opens (creating if needed) the sqlite database at path and ensures
// the schema exists. Use ":memory:" for tests.
func Open(path string, logger zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_fk=1")
	if err != nil {
		return nil, fmt.Errorf("open metadata db: %w", err)
	}

	// WAL mode so the HTTP API and the collaboration core don't serialize
	// on each other's writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	s := &Store{db: db, logger: logger.With().Str("component", "metastore").Logger()}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT UNIQUE NOT NULL,
	hashed_password TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateUser inserts a new account. Returns ErrUsernameTaken on conflict.
func (s *Store) CreateUser(ctx context.Context, username, hashedPassword string) error {
	var exists int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM users WHERE username = ?", username).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if exists > 0 {
		return ErrUsernameTaken
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO users (username, hashed_password) VALUES (?, ?)",
		username, hashedPassword)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UserByName returns the account for username, or ErrNotFound.
func (s *Store) UserByName(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username, hashed_password FROM users WHERE username = ?",
		username).Scan(&u.ID, &u.Username, &u.HashedPassword)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	return u, nil
}

// CreateDocument inserts a new metadata row.
func (s *Store) CreateDocument(ctx context.Context, id, title, ownerID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO documents (id, title, owner_id) VALUES (?, ?, ?)",
		id, title, ownerID)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Document returns one metadata row by id, or ErrNotFound.
func (s *Store) Document(ctx context.Context, id string) (Document, error) {
	var d Document
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, owner_id, created_at, updated_at FROM documents WHERE id = ?",
		id).Scan(&d.ID, &d.Title, &d.OwnerID, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("query document: %w", err)
	}
	return d, nil
}

// ListDocuments returns ownerID's documents, most recently updated first.
func (s *Store) ListDocuments(ctx context.Context, ownerID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, owner_id, created_at, updated_at FROM documents WHERE owner_id = ? ORDER BY updated_at DESC",
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Title, &d.OwnerID, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes a metadata row owned by ownerID. Returns
// ErrNotFound for unknown ids and ErrNotOwner for someone else's document.
// Snapshots are append-only and deliberately survive deletion for audit.
func (s *Store) DeleteDocument(ctx context.Context, id, ownerID string) error {
	d, err := s.Document(ctx, id)
	if err != nil {
		return err
	}
	if d.OwnerID != ownerID {
		return ErrNotOwner
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Touch updates a document's last-modified marker. Implements the Snapshot
// Store's Marker interface; unknown ids are a no-op.
func (s *Store) Touch(ctx context.Context, docID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE documents SET updated_at = ? WHERE id = ?",
		at, docID)
	if err != nil {
		return fmt.Errorf("touch document: %w", err)
	}
	return nil
}

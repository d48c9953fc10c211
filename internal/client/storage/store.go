// Package storage opens the local SQLite database and groups the
// repositories built on it.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/diarysync/internal/client/migrations"
	"github.com/dmitrijs2005/diarysync/internal/client/repositories/assets"
	"github.com/dmitrijs2005/diarysync/internal/client/repositories/conflicts"
	"github.com/dmitrijs2005/diarysync/internal/client/repositories/downloads"
	"github.com/dmitrijs2005/diarysync/internal/client/repositories/entries"
	"github.com/dmitrijs2005/diarysync/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/diarysync/internal/client/repositories/pendingchanges"
	"github.com/dmitrijs2005/diarysync/internal/client/repositories/syncstate"
	"github.com/dmitrijs2005/diarysync/internal/client/repositories/uploads"
	"github.com/dmitrijs2005/diarysync/internal/dbx"

	_ "modernc.org/sqlite"
)

// Repositories is the set of repositories bound to one handle.
type Repositories struct {
	Entries        entries.Repository
	SyncState      syncstate.Repository
	Assets         assets.Repository
	Downloads      downloads.Repository
	Uploads        uploads.Repository
	PendingChanges pendingchanges.Repository
	Conflicts      conflicts.Repository
	Metadata       metadata.Repository
}

// NewRepositories binds every repository to db.
func NewRepositories(db dbx.DBTX) *Repositories {
	return &Repositories{
		Entries:        entries.NewSQLiteRepository(db),
		SyncState:      syncstate.NewSQLiteRepository(db),
		Assets:         assets.NewSQLiteRepository(db),
		Downloads:      downloads.NewSQLiteRepository(db),
		Uploads:        uploads.NewSQLiteRepository(db),
		PendingChanges: pendingchanges.NewSQLiteRepository(db),
		Conflicts:      conflicts.NewSQLiteRepository(db),
		Metadata:       metadata.NewSQLiteRepository(db),
	}
}

// Store owns the database and the repositories bound to it.
type Store struct {
	*Repositories
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies
// migrations. SQLite allows one writer, so the pool is capped at a single
// connection.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrations.Up(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{Repositories: NewRepositories(db), db: db}, nil
}

func dsn(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)"
}

// WithTx runs fn with repositories bound to a single transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx *Repositories) error) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, NewRepositories(tx))
	})
}

// Recover resets state left behind by a process that stopped mid-pass:
// in-progress sync flags and transfers claimed but never finished.
func (s *Store) Recover(ctx context.Context) error {
	if _, err := s.SyncState.ResetInProgress(ctx); err != nil {
		return err
	}
	if _, err := s.Downloads.ResetInFlight(ctx); err != nil {
		return err
	}
	if _, err := s.Uploads.ResetInFlight(ctx); err != nil {
		return err
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

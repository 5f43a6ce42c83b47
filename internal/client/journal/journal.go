// Package journal keeps a kiosk-local record of the submissions the backend
// accepted, so staff can answer "did my photo go through?" without operator
// access.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/photodrop/internal/client/migrations"
	"github.com/dmitrijs2005/photodrop/internal/dbx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Entry is one accepted submission.
type Entry struct {
	ID           string
	Name         string
	Email        string
	FolderNumber string
	Device       string
	Width        int
	Height       int
	SubmittedAt  time.Time
}

type Repository interface {
	Add(ctx context.Context, e Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Forget(ctx context.Context, id string) error
}

// RunMigrations applies the embedded journal schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate journal: %w", err)
	}
	return nil
}

// Open opens (creating if needed) the journal database at path and
// migrates it.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Add(ctx context.Context, e Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO journal (id, name, email, folder_number, device, width, height, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, e.ID, e.Name, e.Email, e.FolderNumber, e.Device, e.Width, e.Height, e.SubmittedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to add journal entry %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, folder_number, device, width, height, submitted_at
		FROM journal
		ORDER BY submitted_at DESC, id
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.ID, &e.Name, &e.Email, &e.FolderNumber, &e.Device, &e.Width, &e.Height, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan journal row: %w", err)
		}
		e.SubmittedAt = time.UnixMilli(ms)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal rows: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Forget(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM journal WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete journal entry %s: %w", id, err)
	}
	return nil
}

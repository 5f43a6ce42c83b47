package recordstore

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/dmitrijs2005/photodrop/internal/dbx"
	"github.com/dmitrijs2005/photodrop/internal/models"
	"github.com/dmitrijs2005/photodrop/internal/server/migrations"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema to db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// PostgresCollection keeps submissions in the submissions table. The target
// folder is a row of the folders table resolved with one atomic upsert, so
// concurrent first use never creates duplicates.
type PostgresCollection struct {
	db   *sql.DB
	name string
	now  func() time.Time
}

// NewPostgresCollection binds a collection to the folder called name.
func NewPostgresCollection(db *sql.DB, name string) *PostgresCollection {
	return &PostgresCollection{db: db, name: name, now: time.Now}
}

// EnsureFolder returns the id of the folder row, inserting it if needed.
func (c *PostgresCollection) EnsureFolder(ctx context.Context) (string, error) {
	var id string
	err := dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO folders (id, name) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING`,
			uuid.NewString(), c.name); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, `SELECT id FROM folders WHERE name = $1`, c.name).Scan(&id)
	})
	if err != nil {
		return "", common.NewStoreError("ensure folder", 0, err)
	}
	return id, nil
}

func (c *PostgresCollection) Create(ctx context.Context, s models.NewSubmission) (models.Receipt, error) {
	folderID, err := c.EnsureFolder(ctx)
	if err != nil {
		return models.Receipt{}, err
	}

	id := uuid.NewString()
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO submissions (id, folder_id, email, folder_number, file_name, content_type, photo, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, folderID, s.Email, s.FolderNumber, s.FileName, s.ContentType, s.Photo, c.now().UTC())
	if err != nil {
		return models.Receipt{}, common.NewStoreError("create", 0, err)
	}
	return models.Receipt{ID: id, Name: s.FileName}, nil
}

func (c *PostgresCollection) List(ctx context.Context, limit int) ([]models.Submission, error) {
	folderID, err := c.EnsureFolder(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, email, folder_number, created_at FROM submissions
		WHERE folder_id = $1 AND email <> '' AND folder_number <> ''
		ORDER BY created_at DESC
		LIMIT $2`, folderID, PageSize(limit))
	if err != nil {
		return nil, common.NewStoreError("list", 0, err)
	}
	defer rows.Close()

	result := make([]models.Submission, 0)
	for rows.Next() {
		var s models.Submission
		if err := rows.Scan(&s.ID, &s.Email, &s.FolderNumber, &s.CreatedAt); err != nil {
			return nil, common.NewStoreError("list", 0, err)
		}
		s.PhotoRef = PhotoPath(s.ID)
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewStoreError("list", 0, err)
	}
	return result, nil
}

func (c *PostgresCollection) Delete(ctx context.Context, id string) error {
	folderID, err := c.EnsureFolder(ctx)
	if err != nil {
		return err
	}

	res, err := c.db.ExecContext(ctx, `DELETE FROM submissions WHERE id = $1 AND folder_id = $2`, id, folderID)
	if err != nil {
		return common.NewStoreError("delete", 0, err)
	}
	if err := dbx.ExpectOneRow(res); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.NewStoreError("delete", http.StatusNotFound, fmt.Errorf("submission %s: %w", id, err))
		}
		return common.NewStoreError("delete", 0, err)
	}
	return nil
}

func (c *PostgresCollection) Photo(ctx context.Context, id string) (io.ReadCloser, string, error) {
	folderID, err := c.EnsureFolder(ctx)
	if err != nil {
		return nil, "", err
	}

	var (
		contentType string
		photo       []byte
	)
	err = c.db.QueryRowContext(ctx,
		`SELECT content_type, photo FROM submissions WHERE id = $1 AND folder_id = $2`,
		id, folderID).Scan(&contentType, &photo)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", common.NewStoreError("photo", http.StatusNotFound, fmt.Errorf("submission %s: %w", id, common.ErrorNotFound))
	}
	if err != nil {
		return nil, "", common.NewStoreError("photo", 0, err)
	}
	return io.NopCloser(bytes.NewReader(photo)), contentType, nil
}

func (c *PostgresCollection) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return common.NewStoreError("ping", 0, err)
	}
	return nil
}

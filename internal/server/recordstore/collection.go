// Package recordstore emulates a minimal document collection of submissions.
//
// The object-store flavour (FolderCollection) keeps every submission as an
// object inside one named folder and its identifying fields as object
// metadata: there is no separate index, so listing reads the folder and
// reconstructs submissions from metadata. PostgresCollection offers the same
// Collection contract over a real table.
//
// Known limitations:
//   - FolderCollection resolves its folder with a lookup-then-create that is
//     not atomic across processes. Two servers starting against an empty store
//     can create two folders with the same name; nothing merges them.
//     PostgresCollection resolves the folder with a single upsert.
//   - List returns the first page only. Submissions beyond MaxPageSize are
//     not reachable through List.
package recordstore

import (
	"context"
	"io"
	"net/url"

	"github.com/dmitrijs2005/photodrop/internal/models"
)

const (
	// DefaultPageSize is used when the caller does not ask for a size.
	DefaultPageSize = 100
	// MaxPageSize bounds a single List call.
	MaxPageSize = 1000
)

// Collection is the create/list/delete capability every store offers.
//
// List returns submissions newest first and never returns one with an empty
// Email or FolderNumber. Delete of a missing id returns an error matching
// common.ErrorNotFound.
type Collection interface {
	Create(ctx context.Context, s models.NewSubmission) (models.Receipt, error)
	List(ctx context.Context, limit int) ([]models.Submission, error)
	Delete(ctx context.Context, id string) error
	Photo(ctx context.Context, id string) (io.ReadCloser, string, error)
	Ping(ctx context.Context) error
}

// PageSize clamps a requested page size into [1, MaxPageSize].
func PageSize(n int) int {
	switch {
	case n <= 0:
		return DefaultPageSize
	case n > MaxPageSize:
		return MaxPageSize
	default:
		return n
	}
}

// PhotoPath is the API path that streams the photo of a submission.
func PhotoPath(id string) string {
	return "/submissions/" + url.PathEscape(id) + "/photo"
}

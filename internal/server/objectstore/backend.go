// Package objectstore exposes the primitives of a hierarchical object store
// that has no notion of records: folders that contain objects, and free-form
// key/value metadata on every object. The record store builds its document
// semantics on top of these primitives.
//
// Two backends are provided: S3Backend (any S3-compatible service, folders
// are key prefixes) and MemoryBackend (process-local, for development and
// tests).
package objectstore

import (
	"context"
	"io"
	"strings"
	"time"
)

// Metadata holds per-object key/value fields. Lookups ignore key case
// because some services (S3) fold user metadata keys to lower case.
type Metadata map[string]string

// Get returns the value stored under key, matching case-insensitively.
func (m Metadata) Get(key string) string {
	if v, ok := m[key]; ok {
		return v
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// Folder is a named container of objects.
type Folder struct {
	ID   string
	Name string
}

// ObjectInfo describes one stored object without its content.
type ObjectInfo struct {
	ID          string
	Name        string
	ContentType string
	Size        int64
	CreatedAt   time.Time
	Metadata    Metadata
}

// PutInput is the content and description of an object to create.
type PutInput struct {
	Name        string
	ContentType string
	Body        []byte
	Metadata    Metadata
}

// Backend is the set of primitives every object store must offer.
//
// FindFolders is an exact-name lookup and may return several folders: the
// store does not enforce unique names. ListChildren returns at most limit
// objects of a folder (folder markers excluded). Missing objects are
// reported as errors matching common.ErrorNotFound.
type Backend interface {
	FindFolders(ctx context.Context, name string) ([]Folder, error)
	CreateFolder(ctx context.Context, name string) (Folder, error)
	Put(ctx context.Context, folderID string, in PutInput) (ObjectInfo, error)
	ListChildren(ctx context.Context, folderID string, limit int) ([]ObjectInfo, error)
	Open(ctx context.Context, folderID, id string) (io.ReadCloser, ObjectInfo, error)
	Delete(ctx context.Context, folderID, id string) error
	PreviewURL(ctx context.Context, folderID, id string) (string, error)
	Ping(ctx context.Context) error
}

package recordstore

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/dmitrijs2005/photodrop/internal/logging"
	"github.com/dmitrijs2005/photodrop/internal/models"
	"github.com/dmitrijs2005/photodrop/internal/server/objectstore"
)

// FolderCollection stores submissions as objects of a single named folder.
type FolderCollection struct {
	backend objectstore.Backend
	name    string
	log     logging.Logger

	mu       sync.Mutex
	folderID string
}

// NewFolderCollection binds a collection to the folder called name. The
// folder is resolved lazily on first use.
func NewFolderCollection(backend objectstore.Backend, name string, log logging.Logger) *FolderCollection {
	return &FolderCollection{
		backend: backend,
		name:    name,
		log:     log.With("module", "recordstore", "folder", name),
	}
}

// EnsureFolder looks the folder up by exact name and creates it when absent.
// The result is cached for the lifetime of the collection. The lookup and
// the create are two separate store calls; see the package documentation.
func (c *FolderCollection) EnsureFolder(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.folderID != "" {
		return c.folderID, nil
	}

	found, err := c.backend.FindFolders(ctx, c.name)
	if err != nil {
		return "", asStoreError("find folder", err)
	}

	if len(found) > 0 {
		if len(found) > 1 {
			c.log.Warn(ctx, "several folders share the target name, using the first", "count", len(found))
		}
		c.folderID = found[0].ID
		return c.folderID, nil
	}

	f, err := c.backend.CreateFolder(ctx, c.name)
	if err != nil {
		return "", asStoreError("create folder", err)
	}
	c.log.Info(ctx, "folder created", "folder_id", f.ID)
	c.folderID = f.ID
	return c.folderID, nil
}

func (c *FolderCollection) Create(ctx context.Context, s models.NewSubmission) (models.Receipt, error) {
	folderID, err := c.EnsureFolder(ctx)
	if err != nil {
		return models.Receipt{}, err
	}

	info, err := c.backend.Put(ctx, folderID, objectstore.PutInput{
		Name:        s.FileName,
		ContentType: s.ContentType,
		Body:        s.Photo,
		Metadata: objectstore.Metadata{
			common.FieldEmail:        s.Email,
			common.FieldFolderNumber: s.FolderNumber,
		},
	})
	if err != nil {
		return models.Receipt{}, asStoreError("create", err)
	}

	return models.Receipt{ID: info.ID, Name: info.Name}, nil
}

// List returns at most limit submissions of the folder, newest first.
// Objects without both identifying fields are skipped.
func (c *FolderCollection) List(ctx context.Context, limit int) ([]models.Submission, error) {
	folderID, err := c.EnsureFolder(ctx)
	if err != nil {
		return nil, err
	}

	objects, err := c.backend.ListChildren(ctx, folderID, PageSize(limit))
	if err != nil {
		return nil, asStoreError("list", err)
	}

	result := make([]models.Submission, 0, len(objects))
	for _, o := range objects {
		s := models.Submission{
			ID:           o.ID,
			Email:        o.Metadata.Get(common.FieldEmail),
			FolderNumber: o.Metadata.Get(common.FieldFolderNumber),
			CreatedAt:    o.CreatedAt,
		}
		if !s.Valid() {
			c.log.Debug(ctx, "skipping object without submission fields", "id", o.ID)
			continue
		}

		ref, err := c.backend.PreviewURL(ctx, folderID, o.ID)
		if err != nil {
			return nil, asStoreError("list", err)
		}
		if ref == "" {
			ref = PhotoPath(o.ID)
		}
		s.PhotoRef = ref
		result = append(result, s)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (c *FolderCollection) Delete(ctx context.Context, id string) error {
	folderID, err := c.EnsureFolder(ctx)
	if err != nil {
		return err
	}
	if err := c.backend.Delete(ctx, folderID, id); err != nil {
		return asStoreError("delete", err)
	}
	return nil
}

// Photo opens the stored image. The caller closes the reader.
func (c *FolderCollection) Photo(ctx context.Context, id string) (io.ReadCloser, string, error) {
	folderID, err := c.EnsureFolder(ctx)
	if err != nil {
		return nil, "", err
	}
	rc, info, err := c.backend.Open(ctx, folderID, id)
	if err != nil {
		return nil, "", asStoreError("photo", err)
	}
	return rc, info.ContentType, nil
}

func (c *FolderCollection) Ping(ctx context.Context) error {
	return asStoreError("ping", c.backend.Ping(ctx))
}

func asStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *common.StoreError
	if errors.As(err, &se) {
		return err
	}
	return common.NewStoreError(op, 0, err)
}

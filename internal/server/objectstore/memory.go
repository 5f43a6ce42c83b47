package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/google/uuid"
)

type memObject struct {
	info ObjectInfo
	body []byte
	seq  uint64
}

// MemoryBackend keeps folders and objects in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	folders []Folder
	objects map[string]map[string]*memObject
	seq     uint64
	now     func() time.Time
}

// NewMemoryBackend returns an empty store. now may be nil.
func NewMemoryBackend(now func() time.Time) *MemoryBackend {
	if now == nil {
		now = time.Now
	}
	return &MemoryBackend{
		objects: make(map[string]map[string]*memObject),
		now:     now,
	}
}

func (m *MemoryBackend) FindFolders(ctx context.Context, name string) ([]Folder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []Folder
	for _, f := range m.folders {
		if f.Name == name {
			result = append(result, f)
		}
	}
	return result, nil
}

func (m *MemoryBackend) CreateFolder(ctx context.Context, name string) (Folder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f := Folder{ID: uuid.NewString(), Name: name}
	m.folders = append(m.folders, f)
	m.objects[f.ID] = make(map[string]*memObject)
	return f, nil
}

func (m *MemoryBackend) Put(ctx context.Context, folderID string, in PutInput) (ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	children, ok := m.objects[folderID]
	if !ok {
		return ObjectInfo{}, common.NewStoreError("put", http.StatusNotFound, fmt.Errorf("folder %s: %w", folderID, common.ErrorNotFound))
	}

	info := ObjectInfo{
		ID:          uuid.NewString(),
		Name:        in.Name,
		ContentType: in.ContentType,
		Size:        int64(len(in.Body)),
		CreatedAt:   m.now(),
		Metadata:    maps.Clone(in.Metadata),
	}
	m.seq++
	children[info.ID] = &memObject{info: info, body: bytes.Clone(in.Body), seq: m.seq}
	return info, nil
}

// ListChildren returns objects newest first. Objects with equal creation
// times come back in reverse insertion order.
func (m *MemoryBackend) ListChildren(ctx context.Context, folderID string, limit int) ([]ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	children, ok := m.objects[folderID]
	if !ok {
		return nil, common.NewStoreError("list", http.StatusNotFound, fmt.Errorf("folder %s: %w", folderID, common.ErrorNotFound))
	}

	ordered := make([]*memObject, 0, len(children))
	for _, o := range children {
		ordered = append(ordered, o)
	}
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.info.CreatedAt.Equal(b.info.CreatedAt) {
			return a.info.CreatedAt.After(b.info.CreatedAt)
		}
		return a.seq > b.seq
	})

	result := make([]ObjectInfo, 0, len(ordered))
	for _, o := range ordered {
		info := o.info
		info.Metadata = maps.Clone(o.info.Metadata)
		result = append(result, info)
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MemoryBackend) Open(ctx context.Context, folderID, id string) (io.ReadCloser, ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	o, err := m.lookup(folderID, id, "open")
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	return io.NopCloser(bytes.NewReader(o.body)), o.info, nil
}

func (m *MemoryBackend) Delete(ctx context.Context, folderID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.lookup(folderID, id, "delete"); err != nil {
		return err
	}
	delete(m.objects[folderID], id)
	return nil
}

// PreviewURL returns "" because memory objects have no external address;
// callers fall back to the API photo endpoint.
func (m *MemoryBackend) PreviewURL(ctx context.Context, folderID, id string) (string, error) {
	return "", nil
}

func (m *MemoryBackend) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryBackend) lookup(folderID, id, op string) (*memObject, error) {
	o, ok := m.objects[folderID][id]
	if !ok {
		return nil, common.NewStoreError(op, http.StatusNotFound, fmt.Errorf("object %s: %w", id, common.ErrorNotFound))
	}
	return o, nil
}

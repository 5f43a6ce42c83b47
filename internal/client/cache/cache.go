// Package cache mirrors the operator's submission listing in memory.
//
// The order is the server's (newest first). Remove is optimistic: the entry
// disappears locally and observers hear about it before the remote delete
// runs; if the remote delete fails the entry goes back at the index it had.
package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/dmitrijs2005/photodrop/internal/logging"
	"github.com/dmitrijs2005/photodrop/internal/models"
)

// Remote is the slice of the backend API the cache needs.
type Remote interface {
	List(ctx context.Context) ([]models.Submission, error)
	Delete(ctx context.Context, id string) error
}

// Observer receives a snapshot of the entries after every change.
type Observer func(entries []models.Submission)

type Cache struct {
	remote Remote
	log    logging.Logger
	locks  *keyedMutex

	mu       sync.RWMutex
	entries  []models.Submission
	loading  bool
	removing map[string]bool

	subMu   sync.Mutex
	subs    map[int]Observer
	nextSub int
}

func New(remote Remote, log logging.Logger) *Cache {
	return &Cache{
		remote:   remote,
		log:      log.With("module", "cache"),
		locks:    newKeyedMutex(),
		removing: make(map[string]bool),
		subs:     make(map[int]Observer),
	}
}

// Load replaces the cache with the server listing. On failure the previous
// contents stay as they were.
func (c *Cache) Load(ctx context.Context) error {
	c.mu.Lock()
	c.loading = true
	c.mu.Unlock()

	list, err := c.remote.List(ctx)

	c.mu.Lock()
	c.loading = false
	if err != nil {
		c.mu.Unlock()
		c.log.Error(ctx, "load submissions", "error", err)
		return err
	}
	c.entries = normalize(list)
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// Remove deletes id optimistically. Removing an id that is not cached is a
// no-op, as is a remote "not found". Operations on the same id run one at a
// time.
func (c *Cache) Remove(ctx context.Context, id string) error {
	unlock := c.locks.lock(id)
	defer unlock()

	c.mu.Lock()
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return nil
	}
	entry := c.entries[idx]
	c.entries = append(c.entries[:idx:idx], c.entries[idx+1:]...)
	c.removing[id] = true
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.notify(snap)

	err := c.remote.Delete(ctx, id)
	if err != nil && errors.Is(err, common.ErrorNotFound) {
		c.log.Info(ctx, "submission already gone", "id", id)
		err = nil
	}

	c.mu.Lock()
	delete(c.removing, id)
	if err == nil {
		c.mu.Unlock()
		return nil
	}
	if c.indexLocked(id) < 0 {
		at := min(idx, len(c.entries))
		c.entries = append(c.entries[:at], append([]models.Submission{entry}, c.entries[at:]...)...)
	}
	snap = c.snapshotLocked()
	c.mu.Unlock()

	c.log.Error(ctx, "delete submission, restored", "id", id, "email", entry.Email, "folder_number", entry.FolderNumber, "error", err)
	c.notify(snap)
	return err
}

// Entries returns a copy of the cached submissions in server order.
func (c *Cache) Entries() []models.Submission {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Cache) Get(id string) (models.Submission, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexLocked(id); i >= 0 {
		return c.entries[i], true
	}
	return models.Submission{}, false
}

// Index returns the position of id, or -1.
func (c *Cache) Index(id string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexLocked(id)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Loading reports whether a Load is in flight.
func (c *Cache) Loading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loading
}

// Removing reports whether a remote delete of id is in flight.
func (c *Cache) Removing(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.removing[id]
}

// Subscribe registers fn and returns the function that removes it.
func (c *Cache) Subscribe(fn Observer) func() {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Cache) notify(snap []models.Submission) {
	c.subMu.Lock()
	subs := make([]Observer, 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (c *Cache) indexLocked(id string) int {
	for i, e := range c.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (c *Cache) snapshotLocked() []models.Submission {
	out := make([]models.Submission, len(c.entries))
	copy(out, c.entries)
	return out
}

// normalize drops entries without identifying fields and repeated ids,
// keeping the first occurrence.
func normalize(list []models.Submission) []models.Submission {
	out := make([]models.Submission, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, s := range list {
		if s.ID == "" || !s.Valid() {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			continue
		}
		seen[s.ID] = struct{}{}
		out = append(out, s)
	}
	return out
}

package draft

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/photodrop/internal/models"
)

// Generator produces a draft for one submission.
type Generator interface {
	Generate(ctx context.Context, email, folderNumber string) (string, error)
}

// Tracker wraps a Generator with a per-submission in-flight flag.
type Tracker struct {
	gen Generator

	mu      sync.Mutex
	running map[string]int
}

func NewTracker(gen Generator) *Tracker {
	return &Tracker{gen: gen, running: make(map[string]int)}
}

// Generate runs the generator for s. The flag for s.ID is set for exactly
// the duration of the call, whatever its outcome.
func (t *Tracker) Generate(ctx context.Context, s models.Submission) (string, error) {
	t.mu.Lock()
	t.running[s.ID]++
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.running[s.ID]--
		if t.running[s.ID] <= 0 {
			delete(t.running, s.ID)
		}
		t.mu.Unlock()
	}()

	return t.gen.Generate(ctx, s.Email, s.FolderNumber)
}

// Generating reports whether a draft for id is being generated.
func (t *Tracker) Generating(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running[id] > 0
}

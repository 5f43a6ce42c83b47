package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/dmitrijs2005/photodrop/internal/textx"
	"github.com/gofrs/flock"
)

// LockedDevice makes a device exclusive across processes with a lock file.
// The lock is taken before the device is opened and dropped when the stream
// closes or the open fails.
type LockedDevice struct {
	dev  Device
	path string
}

// NewLockedDevice guards dev with <lockDir>/<name>.lock.
func NewLockedDevice(dev Device, lockDir, name string) *LockedDevice {
	return &LockedDevice{dev: dev, path: filepath.Join(lockDir, textx.SafeFileComponent(name)+".lock")}
}

// LockPath returns the lock file location.
func (d *LockedDevice) LockPath() string { return d.path }

func (d *LockedDevice) Open(ctx context.Context) (Stream, error) {
	if err := os.MkdirAll(filepath.Dir(d.path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: lock dir: %w", common.ErrDeviceUnavailable, err)
	}

	lock := flock.New(d.path)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("%w: acquire lock: %w", common.ErrDeviceUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: camera is in use (lock %s)", common.ErrDeviceUnavailable, d.path)
	}

	stream, err := d.dev.Open(ctx)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return &lockedStream{Stream: stream, lock: lock}, nil
}

type lockedStream struct {
	Stream
	lock *flock.Flock
	once sync.Once
	err  error
}

func (s *lockedStream) Close() error {
	s.once.Do(func() {
		s.err = errors.Join(s.Stream.Close(), s.lock.Unlock())
	})
	return s.err
}

package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockedDevice_SecondHolderRefused(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first := NewLockedDevice(newFakeDevice(1, 1), dir, "/dev/video0")
	second := NewLockedDevice(newFakeDevice(1, 1), dir, "/dev/video0")
	assert.Equal(t, first.LockPath(), second.LockPath())

	s1, err := first.Open(ctx)
	require.NoError(t, err)

	_, err = second.Open(ctx)
	require.ErrorIs(t, err, common.ErrDeviceUnavailable)

	require.NoError(t, s1.Close())
	require.NoError(t, s1.Close())

	s2, err := second.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestLockedDevice_FailedOpenReleasesLock(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	broken := newFakeDevice(1, 1)
	broken.openErr = errors.New("no such device")

	_, err := NewLockedDevice(broken, dir, "cam").Open(ctx)
	require.Error(t, err)

	s, err := NewLockedDevice(newFakeDevice(1, 1), dir, "cam").Open(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestLockedDevice_ClosesUnderlyingStreamOnce(t *testing.T) {
	dev := newFakeDevice(1, 1)
	s, err := NewLockedDevice(dev, t.TempDir(), "cam").Open(context.Background())
	require.NoError(t, err)

	_ = s.Close()
	_ = s.Close()
	assert.Equal(t, 1, dev.stream.closed)
}

package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/dmitrijs2005/photodrop/internal/logging"
	"github.com/pilebones/go-udev/netlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnumerate(t *testing.T) {
	root := t.TempDir()
	for dir, name := range map[string]string{
		"video2":   "Rear Camera",
		"video0":   "Integrated Webcam",
		"v4l-sub0": "ignored",
		"video1":   "",
	} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
		if name != "" {
			require.NoError(t, os.WriteFile(filepath.Join(root, dir, "name"), []byte(name+"\n"), 0o644))
		}
	}

	infos, err := Enumerate(root)
	require.NoError(t, err)
	assert.Equal(t, []Info{
		{Path: "/dev/video0", Name: "Integrated Webcam", Facing: FacingUser},
		{Path: "/dev/video1", Name: "video1", Facing: FacingUnknown},
		{Path: "/dev/video2", Name: "Rear Camera", Facing: FacingEnvironment},
	}, infos)
}

func TestEnumerate_MissingClassDir(t *testing.T) {
	_, err := Enumerate(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}

func TestChooser_PrefersEnvironment(t *testing.T) {
	infos := []Info{
		{Path: "/dev/video0", Facing: FacingUser},
		{Path: "/dev/video1", Facing: FacingEnvironment},
	}
	c := NewChooser(infos, FacingEnvironment, func(i Info) Device {
		d := newFakeDevice(1, 1)
		d.stream.src = Source{Device: i.Path, Facing: i.Facing}
		return d
	}, logging.Discard())

	s, err := c.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/dev/video1", s.Source().Device)
	assert.False(t, s.Source().Fallback)
}

func TestChooser_FallsBackAndReportsIt(t *testing.T) {
	infos := []Info{
		{Path: "/dev/video0", Facing: FacingUser},
		{Path: "/dev/video1", Facing: FacingEnvironment},
	}
	c := NewChooser(infos, FacingEnvironment, func(i Info) Device {
		d := newFakeDevice(1, 1)
		d.stream.src = Source{Device: i.Path, Facing: i.Facing}
		if i.Facing == FacingEnvironment {
			d.openErr = errors.New("busy")
		}
		return d
	}, logging.Discard())

	s, err := c.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/dev/video0", s.Source().Device)
	assert.True(t, s.Source().Fallback)
}

func TestChooser_NothingOpens(t *testing.T) {
	c := NewChooser(nil, "", nil, logging.Discard())
	_, err := c.Open(context.Background())
	assert.ErrorIs(t, err, common.ErrDeviceUnavailable)

	c = NewChooser([]Info{{Path: "/dev/video0"}}, "", func(Info) Device {
		return &fakeDevice{openErr: errors.New("gone")}
	}, logging.Discard())
	_, err = c.Open(context.Background())
	assert.ErrorIs(t, err, common.ErrDeviceUnavailable)
}

func TestChooser_HonoursUserPreference(t *testing.T) {
	infos := []Info{
		{Path: "/dev/video0", Facing: FacingEnvironment},
		{Path: "/dev/video1", Facing: FacingUser},
	}
	c := NewChooser(infos, FacingUser, func(i Info) Device {
		d := newFakeDevice(1, 1)
		d.stream.src = Source{Device: i.Path, Facing: i.Facing}
		return d
	}, logging.Discard())

	s, err := c.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/dev/video1", s.Source().Device)
	assert.False(t, s.Source().Fallback)
}

func TestWatcher_TracksHotplug(t *testing.T) {
	w := NewWatcher([]Info{{Path: "/dev/video0"}}, logging.Discard())
	ctx := context.Background()

	assert.True(t, w.Available("/dev/video0"))
	assert.False(t, w.Available("/dev/video1"))

	w.handleEvent(ctx, netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"SUBSYSTEM": "video4linux", "DEVNAME": "video1"}})
	assert.True(t, w.Available("/dev/video1"))

	w.handleEvent(ctx, netlink.UEvent{Action: netlink.REMOVE, Env: map[string]string{"SUBSYSTEM": "video4linux", "DEVPATH": "/devices/pci0000:00/usb1/video4linux/video0"}})
	assert.False(t, w.Available("/dev/video0"))

	w.handleEvent(ctx, netlink.UEvent{Action: netlink.ADD, Env: map[string]string{}})
	w.Stop()
}

func TestWatcher_GuardFailsFast(t *testing.T) {
	w := NewWatcher(nil, logging.Discard())
	dev := newFakeDevice(1, 1)
	guarded := w.Guard(dev, "/dev/video0")

	_, err := guarded.Open(context.Background())
	assert.ErrorIs(t, err, common.ErrDeviceUnavailable)
	assert.Equal(t, 0, dev.opens)

	w.handleEvent(context.Background(), netlink.UEvent{Action: netlink.ADD, Env: map[string]string{"DEVNAME": "/dev/video0"}})
	_, err = guarded.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, dev.opens)
}

func stubUEventConn(t *testing.T) (monitorQuit chan struct{}, closed *int) {
	t.Helper()
	origMonitor, origClose := monitorUEvents, closeUEventConn
	monitorQuit = make(chan struct{})
	closed = new(int)
	monitorUEvents = func(*netlink.UEventConn, chan netlink.UEvent, chan error, netlink.Matcher) chan struct{} {
		return monitorQuit
	}
	closeUEventConn = func(*netlink.UEventConn) error { *closed++; return nil }
	t.Cleanup(func() { monitorUEvents, closeUEventConn = origMonitor, origClose })
	return monitorQuit, closed
}

func runningWatcher() (*Watcher, *netlink.UEventConn, chan struct{}) {
	w := NewWatcher(nil, logging.Discard())
	conn := new(netlink.UEventConn)
	quit := make(chan struct{})
	w.conn, w.quit, w.running = conn, quit, true
	return w, conn, quit
}

func TestWatcher_ContextCancelClosesConn(t *testing.T) {
	monitorQuit, closed := stubUEventConn(t)
	w, conn, quit := runningWatcher()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.loop(ctx, conn, quit)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not return after cancel")
	}
	_, open := <-monitorQuit
	assert.False(t, open)
	assert.Equal(t, 1, *closed)

	w.Stop()
	assert.Equal(t, 1, *closed)
}

func TestWatcher_StopClosesOnce(t *testing.T) {
	_, closed := stubUEventConn(t)
	w, _, quit := runningWatcher()

	w.Stop()
	w.Stop()
	assert.Equal(t, 1, *closed)
	_, open := <-quit
	assert.False(t, open)
}

func TestWatcher_StaleShutdownIgnored(t *testing.T) {
	_, closed := stubUEventConn(t)
	w, _, _ := runningWatcher()

	w.shutdown(make(chan struct{}))
	assert.Equal(t, 0, *closed)
	assert.True(t, w.running)
}

func TestGuessFacing(t *testing.T) {
	tests := []struct {
		name string
		want Facing
	}{
		{"HD Pro Webcam C920", FacingUnknown},
		{"Back Camera", FacingEnvironment},
		{"FaceTime HD Camera", FacingUser},
		{"world-facing sensor", FacingEnvironment},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GuessFacing(tt.name), tt.name)
	}
}

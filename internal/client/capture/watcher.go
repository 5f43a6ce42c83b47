package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/dmitrijs2005/photodrop/internal/logging"
	"github.com/pilebones/go-udev/netlink"
)

var (
	monitorUEvents = func(conn *netlink.UEventConn, queue chan netlink.UEvent, errs chan error, m netlink.Matcher) chan struct{} {
		return conn.Monitor(queue, errs, m)
	}
	closeUEventConn = func(conn *netlink.UEventConn) error { return conn.Close() }
)

// Watcher tracks which video4linux nodes are plugged in by listening to udev
// netlink events.
type Watcher struct {
	log logging.Logger

	mu      sync.Mutex
	present map[string]bool
	conn    *netlink.UEventConn
	quit    chan struct{}
	running bool
}

// NewWatcher seeds the presence table with the nodes known at startup.
func NewWatcher(initial []Info, log logging.Logger) *Watcher {
	present := make(map[string]bool, len(initial))
	for _, info := range initial {
		present[info.Path] = true
	}
	return &Watcher{log: log.With("module", "udev"), present: present}
}

// Start connects to the kernel uevent socket. A failed connect is logged and
// leaves the watcher passive; Available then reports the startup table.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		w.log.Warn(ctx, "netlink connect failed, hotplug detection disabled", "error", err)
		return nil
	}

	w.conn = conn
	w.quit = make(chan struct{})
	w.running = true

	go w.loop(ctx, conn, w.quit)
	return nil
}

// Stop closes the socket. Safe to call when not started.
func (w *Watcher) Stop() {
	w.shutdown(nil)
}

// shutdown releases the socket of the current run. A non-nil quit limits it
// to the run that owns that channel.
func (w *Watcher) shutdown(quit chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running || (quit != nil && w.quit != quit) {
		return
	}
	close(w.quit)
	_ = closeUEventConn(w.conn)
	w.conn = nil
	w.quit = nil
	w.running = false
}

// Available reports whether path is currently plugged in.
func (w *Watcher) Available(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.present[path]
}

// Guard wraps dev so that Open fails fast while path is unplugged.
func (w *Watcher) Guard(dev Device, path string) Device {
	return &guardedDevice{Device: dev, path: path, w: w}
}

type guardedDevice struct {
	Device
	path string
	w    *Watcher
}

func (d *guardedDevice) Open(ctx context.Context) (Stream, error) {
	if !d.w.Available(d.path) {
		return nil, fmt.Errorf("%w: %s is not connected", common.ErrDeviceUnavailable, d.path)
	}
	return d.Device.Open(ctx)
}

func (w *Watcher) loop(ctx context.Context, conn *netlink.UEventConn, quit chan struct{}) {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	monitorQuit := monitorUEvents(conn, queue, errs, buildMatcher())

	for {
		select {
		case <-ctx.Done():
			close(monitorQuit)
			w.shutdown(quit)
			return
		case <-quit:
			close(monitorQuit)
			return
		case uevent := <-queue:
			w.handleEvent(ctx, uevent)
		case err := <-errs:
			w.log.Warn(ctx, "netlink monitor error", "error", err)
		}
	}
}

func buildMatcher() netlink.Matcher {
	action := "add|remove"
	rules := &netlink.RuleDefinitions{}
	rules.AddRule(netlink.RuleDefinition{
		Action: &action,
		Env:    map[string]string{"SUBSYSTEM": "video4linux"},
	})
	return rules
}

func (w *Watcher) handleEvent(ctx context.Context, uevent netlink.UEvent) {
	dev := deviceName(uevent)
	if dev == "" {
		return
	}

	w.mu.Lock()
	switch uevent.Action {
	case netlink.ADD:
		w.present[dev] = true
	case netlink.REMOVE:
		delete(w.present, dev)
	}
	w.mu.Unlock()

	w.log.Info(ctx, "camera hotplug", "device", dev, "action", string(uevent.Action))
}

func deviceName(uevent netlink.UEvent) string {
	if name := uevent.Env["DEVNAME"]; name != "" {
		if !strings.HasPrefix(name, "/") {
			name = "/dev/" + name
		}
		return name
	}
	devpath := uevent.Env["DEVPATH"]
	if devpath == "" {
		return ""
	}
	parts := strings.Split(devpath, "/")
	return "/dev/" + parts[len(parts)-1]
}

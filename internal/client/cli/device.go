package cli

import (
	"context"

	"github.com/dmitrijs2005/photodrop/internal/client/capture"
	"github.com/dmitrijs2005/photodrop/internal/client/capture/gstcam"
	"github.com/dmitrijs2005/photodrop/internal/client/capture/imagedev"
	"github.com/dmitrijs2005/photodrop/internal/client/config"
	"github.com/dmitrijs2005/photodrop/internal/logging"
)

// enumerateCameras is a test seam for capture.Enumerate.
var enumerateCameras = func() ([]capture.Info, error) {
	return capture.Enumerate(capture.DefaultSysClass)
}

// openCamera turns a camera node into a Device; tests replace it to avoid
// GStreamer.
var openCamera = func(info capture.Info) capture.Device {
	return gstcam.New(info)
}

// buildDevice picks the capture device described by cfg. The returned stop
// func, when non-nil, ends the hotplug watcher.
func buildDevice(ctx context.Context, cfg config.Camera, log logging.Logger) (capture.Device, func()) {
	if cfg.ImagePath != "" {
		return imagedev.New(cfg.ImagePath), nil
	}

	infos, err := enumerateCameras()
	if err != nil {
		log.Warn(ctx, "camera enumeration failed", "error", err)
	}
	infos = selectCameras(infos, cfg.Device)

	var watcher *capture.Watcher
	if cfg.WatchUdev {
		watcher = capture.NewWatcher(infos, log)
		if err := watcher.Start(ctx); err != nil {
			log.Warn(ctx, "hotplug watcher unavailable", "error", err)
			watcher = nil
		}
	}

	opener := func(info capture.Info) capture.Device {
		var dev capture.Device = capture.NewLockedDevice(openCamera(info), cfg.LockDir, info.Path)
		if watcher != nil {
			dev = watcher.Guard(dev, info.Path)
		}
		return dev
	}

	chooser := capture.NewChooser(infos, capture.Facing(cfg.Facing), opener, log)
	if watcher == nil {
		return chooser, nil
	}
	return chooser, watcher.Stop
}

// selectCameras narrows infos to the configured device path. A path that
// was not enumerated is still tried, with its facing unknown.
func selectCameras(infos []capture.Info, device string) []capture.Info {
	if device == "" {
		return infos
	}
	for _, info := range infos {
		if info.Path == device {
			return []capture.Info{info}
		}
	}
	return []capture.Info{{Path: device, Name: device, Facing: capture.FacingUnknown}}
}

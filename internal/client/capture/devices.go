package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/dmitrijs2005/photodrop/internal/logging"
)

// DefaultSysClass is where the kernel lists V4L2 devices.
const DefaultSysClass = "/sys/class/video4linux"

// Info describes a camera node found on the system.
type Info struct {
	Path   string
	Name   string
	Facing Facing
}

// Enumerate lists video4linux nodes under sysClass, sorted by path.
func Enumerate(sysClass string) ([]Info, error) {
	entries, err := os.ReadDir(sysClass)
	if err != nil {
		return nil, fmt.Errorf("enumerate cameras: %w", err)
	}

	infos := make([]Info, 0, len(entries))
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "video") {
			continue
		}
		name := e.Name()
		if raw, err := os.ReadFile(filepath.Join(sysClass, e.Name(), "name")); err == nil {
			name = strings.TrimSpace(string(raw))
		}
		infos = append(infos, Info{
			Path:   "/dev/" + e.Name(),
			Name:   name,
			Facing: GuessFacing(name),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

// GuessFacing derives the facing from the driver-reported camera name.
func GuessFacing(name string) Facing {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "back"), strings.Contains(n, "rear"), strings.Contains(n, "world"), strings.Contains(n, "environment"):
		return FacingEnvironment
	case strings.Contains(n, "front"), strings.Contains(n, "user"), strings.Contains(n, "facetime"), strings.Contains(n, "integrated"):
		return FacingUser
	default:
		return FacingUnknown
	}
}

// Opener builds the device for one camera node.
type Opener func(Info) Device

// Chooser opens the best camera it can get: the preferred facing first
// (environment unless told otherwise), then unknown, then the rest. The
// granted stream reports Fallback when it is not the preferred facing.
type Chooser struct {
	infos     []Info
	preferred Facing
	open      Opener
	log       logging.Logger
}

func NewChooser(infos []Info, preferred Facing, open Opener, log logging.Logger) *Chooser {
	if preferred == "" || preferred == FacingUnknown {
		preferred = FacingEnvironment
	}
	ordered := make([]Info, len(infos))
	copy(ordered, infos)
	sort.SliceStable(ordered, func(i, j int) bool {
		return facingRank(ordered[i].Facing, preferred) < facingRank(ordered[j].Facing, preferred)
	})
	return &Chooser{infos: ordered, preferred: preferred, open: open, log: log.With("module", "capture")}
}

func facingRank(f, preferred Facing) int {
	switch f {
	case preferred:
		return 0
	case FacingUnknown:
		return 1
	default:
		return 2
	}
}

func (c *Chooser) Open(ctx context.Context) (Stream, error) {
	if len(c.infos) == 0 {
		return nil, fmt.Errorf("%w: no cameras found", common.ErrDeviceUnavailable)
	}

	var errs []error
	for _, info := range c.infos {
		s, err := c.open(info).Open(ctx)
		if err != nil {
			c.log.Debug(ctx, "camera refused", "device", info.Path, "error", err)
			errs = append(errs, err)
			continue
		}
		return &grantedStream{Stream: s, fallback: info.Facing != c.preferred}, nil
	}
	return nil, fmt.Errorf("%w: %w", common.ErrDeviceUnavailable, errors.Join(errs...))
}

type grantedStream struct {
	Stream
	fallback bool
}

func (s *grantedStream) Source() Source {
	src := s.Stream.Source()
	src.Fallback = s.fallback
	return src
}

package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/dmitrijs2005/photodrop/internal/client/api"
	"github.com/dmitrijs2005/photodrop/internal/client/cache"
	"github.com/dmitrijs2005/photodrop/internal/client/capture"
	"github.com/dmitrijs2005/photodrop/internal/client/config"
	"github.com/dmitrijs2005/photodrop/internal/client/draft"
	"github.com/dmitrijs2005/photodrop/internal/client/encoder"
	"github.com/dmitrijs2005/photodrop/internal/client/journal"
	"github.com/dmitrijs2005/photodrop/internal/client/session"
	"github.com/dmitrijs2005/photodrop/internal/logging"
	"github.com/dmitrijs2005/photodrop/internal/models"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const statusInterval = 15 * time.Second

var errNotLoggedIn = errors.New("operator login required (type 'login')")

// backend is the part of api.Client the app drives.
type backend interface {
	Ping(ctx context.Context) error
	Login(ctx context.Context, passcode string) (string, error)
	List(ctx context.Context) ([]models.Submission, error)
	Delete(ctx context.Context, id string) error
	Photo(ctx context.Context, id string) ([]byte, string, error)
	Submit(ctx context.Context, image []byte, email, folderNumber string) (models.Receipt, error)
}

type drafter interface {
	Generate(ctx context.Context, s models.Submission) (string, error)
	Generating(id string) bool
}

type App struct {
	log     logging.Logger
	api     backend
	session *session.Session
	cache   *cache.Cache
	drafts  drafter
	journal journal.Repository
	device  capture.Device
	encoder capture.Encoder
	closers []func() error

	modeMu sync.Mutex
	mode   Mode

	reader *bufio.Reader
	out    io.Writer
	tty    bool
}

// NewApp wires the client components from cfg. The camera is only opened by
// submit, so operator commands work on machines without one.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger, in io.Reader, out io.Writer) (*App, error) {
	sess := session.New(log)

	client, err := api.New(cfg.Server.URL, time.Duration(cfg.Server.TimeoutSeconds)*time.Second, log,
		api.WithTokenSource(sess.Token))
	if err != nil {
		return nil, err
	}

	a := newApp(log, client, sess, in, out)
	a.drafts = draft.NewTracker(draft.NewClient(draft.Config{
		APIKey:         cfg.Draft.APIKey,
		BaseURL:        cfg.Draft.BaseURL,
		Model:          cfg.Draft.Model,
		TimeoutSeconds: cfg.Draft.TimeoutSeconds,
	}, log))
	a.encoder = encoder.JPEG{Quality: encoder.Quality}

	if cfg.Journal.Enabled {
		db, err := journal.Open(ctx, cfg.Journal.Path)
		if err != nil {
			return nil, err
		}
		a.journal = journal.NewSQLiteRepository(db)
		a.closers = append(a.closers, db.Close)
	}

	dev, stop := buildDevice(ctx, cfg.Camera, log)
	a.device = dev
	if stop != nil {
		a.closers = append(a.closers, func() error { stop(); return nil })
	}

	return a, nil
}

// newApp holds the wiring shared by NewApp and tests.
func newApp(log logging.Logger, b backend, sess *session.Session, in io.Reader, out io.Writer) *App {
	a := &App{
		log:     log.With("module", "cli"),
		api:     b,
		session: sess,
		cache:   cache.New(b, log),
		reader:  bufio.NewReader(in),
		out:     out,
		tty:     isTerminal(out),
	}
	sess.OnAuthenticated(func(ctx context.Context) {
		if err := a.cache.Load(ctx); err != nil {
			a.log.Warn(ctx, "initial listing failed", "error", err)
		}
	})
	return a
}

// Close releases the journal and stops the hotplug watcher.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Run starts the interactive loop and returns when the user exits or in
// reaches EOF.
func (a *App) Run(ctx context.Context) {
	printlnFn("PhotoDrop CLI (type 'help' for commands)")

	a.checkOnline(ctx)
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.StartOnlineStatusWatcher(watchCtx, statusInterval)

	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) isLoggedIn() bool {
	return a.session.Authenticated()
}

func (a *App) getStatus() string {
	s := "kiosk"
	if a.isLoggedIn() {
		s = "operator"
	}
	if m := a.Mode(); m != "" {
		s = s + " " + string(m)
	}
	return "(" + s + ")"
}

// Mode is the last observed backend connectivity.
func (a *App) Mode() Mode {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return a.mode
}

func (a *App) setMode(ctx context.Context, mode Mode) {
	a.modeMu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.modeMu.Unlock()
	if changed {
		a.log.Info(ctx, "connectivity changed", "mode", string(mode))
	}
}

func (a *App) checkOnline(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := a.api.Ping(pctx); err != nil {
		a.setMode(ctx, ModeOffline)
		return
	}
	a.setMode(ctx, ModeOnline)
}

// StartOnlineStatusWatcher pings the backend every interval until ctx ends.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// authFailed signs the operator out when err says the token is no longer
// accepted, and returns err unchanged.
func (a *App) authFailed(err error) error {
	if a.session.Invalidate(err) {
		printlnFn("Session expired; please log in again.")
	}
	return err
}

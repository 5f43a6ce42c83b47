// Package httpapi exposes the submission service over HTTP.
//
//	GET    /                          liveness text
//	POST   /upload                    multipart file, email, folderNumber (public)
//	POST   /login                     {passcode} -> {token}
//	GET    /submissions               operator listing, newest first
//	DELETE /submissions/{id}          operator delete
//	GET    /submissions/{id}/photo    operator photo download
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/photodrop/internal/logging"
	"github.com/dmitrijs2005/photodrop/internal/models"
	"github.com/dmitrijs2005/photodrop/internal/server/submissions"
)

// Submissions is the service the handlers drive.
type Submissions interface {
	Submit(ctx context.Context, u submissions.Upload) (models.Receipt, error)
	List(ctx context.Context) ([]models.Submission, error)
	Delete(ctx context.Context, id string) error
	Photo(ctx context.Context, id string) (io.ReadCloser, string, error)
}

// Authenticator is the operator gate.
type Authenticator interface {
	Login(passcode string) (string, error)
	Verify(token string) error
}

// Options tune the HTTP layer.
type Options struct {
	Addr           string
	MaxUploadBytes int64
	AllowedOrigin  string
}

// DefaultMaxUploadBytes matches the 10 MiB limit of the kiosk frontend.
const DefaultMaxUploadBytes = 10 << 20

type Server struct {
	opts   Options
	svc    Submissions
	auth   Authenticator
	log    logging.Logger
	server *http.Server
}

func NewServer(opts Options, svc Submissions, auth Authenticator, log logging.Logger) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	s := &Server{
		opts: opts,
		svc:  svc,
		auth: auth,
		log:  log.With("module", "httpapi"),
	}
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the full middleware-wrapped router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /login", s.handleLogin)
	mux.Handle("GET /submissions", s.requireSession(http.HandlerFunc(s.handleList)))
	mux.Handle("DELETE /submissions/{id}", s.requireSession(http.HandlerFunc(s.handleDelete)))
	mux.Handle("GET /submissions/{id}/photo", s.requireSession(http.HandlerFunc(s.handlePhoto)))

	return s.withRequestLog(s.withCORS(mux))
}

// Serve listens on Options.Addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log.Info(ctx, "http server listening", "address", listener.Addr().String())
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api serve: %w", err)
	}
	return nil
}

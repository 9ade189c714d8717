package visionstream

import (
	"context"
	"net/http"
	"time"

	errors "golang.org/x/xerrors"

	"github.com/lanikai/visionstream/internal/logging"
	"github.com/lanikai/visionstream/internal/media"
	"github.com/lanikai/visionstream/internal/serve"
	"github.com/lanikai/visionstream/internal/snapshot"
	"github.com/lanikai/visionstream/internal/stream"
	"github.com/lanikai/visionstream/internal/transport"
)

var log = logging.DefaultLogger.WithTag("visionstream")

const shutdownTimeout = 5 * time.Second

// Server ties the stream manager to the serving loop, the viewer endpoints and
// the control API.
type Server struct {
	Config

	// Producers push frames here.
	Manager *stream.Manager

	// OnRestart is called after a configuration change that requires the
	// producers of a stream to restart at its new resolution.
	OnRestart func(st stream.StreamType)

	loop    *serve.Loop
	hub     *transport.Hub
	handler http.Handler
}

func NewServer(cfg Config) (*Server, error) {
	cfgs, err := cfg.StreamConfigs()
	if err != nil {
		return nil, err
	}

	s := &Server{Config: cfg}

	opts := []stream.Option{
		stream.WithClearOnResolutionChange(cfg.ClearOnResolutionChange),
		stream.WithChangeHook(s.streamChanged),
	}
	for st, c := range cfgs {
		opts = append(opts, stream.WithStreamConfig(st, c))
	}
	if cfg.SnapshotDir != "" {
		store, err := snapshot.NewFileStore(cfg.SnapshotDir, cfg.JPEGQuality)
		if err != nil {
			return nil, err
		}
		opts = append(opts, stream.WithSnapshotSink(store))
	}

	s.Manager = stream.New(opts...)
	s.hub = transport.NewHub()
	s.loop = serve.NewLoop(s.Manager, s.hub, media.NewJPEGEncoder(cfg.JPEGQuality))

	mux := http.NewServeMux()
	s.hub.Register(mux)
	s.registerAPI(mux)
	s.handler = mux

	return s, nil
}

// Handler serves the viewer endpoints and the control API.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving frames to connected viewers.
func (s *Server) Start() error {
	return s.loop.Start()
}

// Close stops the serving loop and disconnects every viewer.
func (s *Server) Close() error {
	err := s.loop.Stop()
	s.hub.Close()
	return err
}

// ListenAndServe runs the server on the configured address until ctx is
// cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	defer s.Close()

	httpServer := &http.Server{
		Addr:    s.Listen,
		Handler: s.handler,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("Listening on %s", s.Listen)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Errorf("listen on %s: %w", s.Listen, err)
	case <-ctx.Done():
	}

	// Streaming viewers never finish on their own.
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// streamChanged runs after every configuration change.
func (s *Server) streamChanged(st stream.StreamType) {
	if s.loop != nil {
		s.loop.Wake()
	}
}

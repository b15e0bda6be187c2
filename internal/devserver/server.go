package devserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/buildplan/internal/assets"
)

const (
	upstreamWait    = 30 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Builder rebuilds assets whenever their inputs change.
type Builder interface {
	Watch(ctx context.Context, onRebuild func(*assets.BuildResult, error)) error
}

// Server serves built assets, proxies everything else to an upstream and
// pushes live reload events to browsers.
type Server struct {
	opts    Options
	builder Builder
	hub     *Hub
}

// New creates a dev server. builder may be nil when only static files are served.
func New(opts Options, builder Builder) (*Server, error) {
	if opts.WorkDir == "" {
		opts.WorkDir = "."
	}
	abs, err := filepath.Abs(opts.WorkDir)
	if err != nil {
		return nil, err
	}
	opts.WorkDir = abs

	for _, rule := range opts.Proxy {
		if rule.Target == nil {
			return nil, fmt.Errorf("%w: proxy %q has no target", ErrInvalidProxyTarget, rule.Context)
		}
	}

	return &Server{opts: opts, builder: builder, hub: NewHub()}, nil
}

// Hub returns the live reload hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the HTTP handler: live reload stream, then static files, then proxy.
func (s *Server) Handler() (http.Handler, error) {
	roots := make([]string, 0, len(s.opts.ContentBase))
	for _, dir := range s.opts.ContentBase {
		if filepath.IsAbs(dir) {
			roots = append(roots, filepath.Clean(dir))
			continue
		}
		roots = append(roots, filepath.Join(s.opts.WorkDir, filepath.FromSlash(dir)))
	}

	var files http.Handler = newStaticHandler(roots, s.opts.Proxy)
	if s.opts.Compress {
		wrapper, err := gzhttp.NewWrapper(gzhttp.MinSize(1024))
		if err != nil {
			return nil, err
		}
		files = wrapper(files)
	}

	mux := http.NewServeMux()
	if s.opts.LiveReload {
		// registered outside the gzip wrapper so events are flushed immediately
		mux.Handle("GET "+LiveReloadPath, s.hub)
	}
	mux.Handle("/", requestLogger(files))

	var handler http.Handler = mux
	if len(s.opts.AllowedOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins:   s.opts.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler(handler)
	}

	return handler, nil
}

// Run serves until ctx is cancelled. It starts the asset watcher and file
// watcher, waits for proxy targets and shuts the HTTP server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	if s.builder != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.builder.Watch(ctx, s.onRebuild); err != nil {
				errCh <- fmt.Errorf("asset watch failed: %w", err)
			}
		}()
	}

	if len(s.opts.WatchFiles) > 0 {
		fw, err := newFileWatcher(s.opts.WorkDir, s.opts.WatchFiles)
		if err != nil {
			return fmt.Errorf("%w: watchFiles: %w", ErrInvalidOptions, err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fw.Run(ctx, func(rel string) {
				s.hub.Broadcast(ctx, EventContentChanged, rel)
			})
			if err != nil {
				errCh <- fmt.Errorf("file watch failed: %w", err)
			}
		}()
	}

	for _, rule := range s.opts.Proxy {
		if err := waitForUpstream(ctx, rule.Target, upstreamWait); err != nil {
			log.Warn().Err(err).Str("target", rule.Target.String()).Msg("Proxy target not reachable, continuing")
		}
	}

	srv := &http.Server{
		Addr:              s.opts.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Minute,
		// live reload streams stay open, so there is no write timeout
		IdleTimeout:    5 * time.Minute,
		MaxHeaderBytes: 8 * 1024, // 8KiB
		BaseContext:    func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		cancel()
		wg.Wait()
		return err
	}

	log.Info().Str("addr", ln.Addr().String()).Strs("content_base", s.opts.ContentBase).Bool("live_reload", s.opts.LiveReload).Msg("Dev server listening")
	if s.opts.Open {
		log.Info().Str("url", s.opts.URL()).Msg("Open in browser")
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	log.Info().Msg("Shutting down dev server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer shutdownCancel()

	cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Dev server shutdown incomplete")
	}
	wg.Wait()

	return runErr
}

func (s *Server) onRebuild(res *assets.BuildResult, err error) {
	if err != nil {
		log.Error().Err(err).Msg("Rebuild failed")
		return
	}
	if s.opts.LiveReload {
		s.hub.Broadcast(context.Background(), EventReload, res.ID)
	}
}

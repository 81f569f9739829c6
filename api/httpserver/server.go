package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"
)

// RouteRegistrar is implemented by services that mount routes on a server.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// HTTPServerConfig configures a BaseServer.
type HTTPServerConfig struct {
	// ListenAddr may use port 0; Addr reports the bound address.
	ListenAddr  string
	EnablePprof bool
	Log         *slog.Logger

	// DrainDuration is how long /drain keeps reporting "draining" before
	// logging that the server can be stopped.
	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

// BaseServer serves a chi router with request logging and health endpoints.
type BaseServer struct {
	cfg   *HTTPServerConfig
	log   *slog.Logger
	ready atomic.Bool

	srv *http.Server

	mu       sync.RWMutex
	listener net.Listener
}

// New builds the router from routes. The server does not listen until
// RunInBackground is called.
func New(cfg *HTTPServerConfig, routes ...RouteRegistrar) (*BaseServer, error) {
	if cfg.Log == nil {
		return nil, errors.New("logger is required")
	}

	s := &BaseServer{cfg: cfg, log: cfg.Log}
	s.ready.Store(true)
	s.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router(routes),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

func (s *BaseServer) router(routes []RouteRegistrar) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP)
	r.Use(func(next http.Handler) http.Handler {
		return httplogger.LoggingMiddlewareSlog(s.log, next)
	})
	r.Use(middleware.Recoverer)

	for _, rr := range routes {
		rr.RegisterRoutes(r)
	}

	r.Get("/livez", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "alive")
	})
	r.Get("/readyz", s.handleReady)
	r.Get("/drain", s.handleDrain)
	r.Get("/undrain", s.handleUndrain)

	if s.cfg.EnablePprof {
		s.log.Info("pprof enabled", "path", "/debug")
		r.Mount("/debug", middleware.Profiler())
	}
	return r
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *BaseServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready.Load() {
		writeStatus(w, http.StatusOK, "ready")
	} else {
		writeStatus(w, http.StatusServiceUnavailable, "not ready")
	}
}

func (s *BaseServer) handleDrain(w http.ResponseWriter, _ *http.Request) {
	if !s.ready.Swap(false) {
		writeStatus(w, http.StatusOK, "already draining")
		return
	}
	s.log.Info("draining", "duration", s.cfg.DrainDuration)
	time.AfterFunc(s.cfg.DrainDuration, func() {
		s.log.Info("drained")
	})
	writeStatus(w, http.StatusOK, "draining")
}

func (s *BaseServer) handleUndrain(w http.ResponseWriter, _ *http.Request) {
	if s.ready.Swap(true) {
		writeStatus(w, http.StatusOK, "already ready")
		return
	}
	s.log.Info("ready again")
	writeStatus(w, http.StatusOK, "ready")
}

// Handler returns the router so it can be served without a listener.
func (s *BaseServer) Handler() http.Handler {
	return s.srv.Handler
}

// RunInBackground binds the listen address and serves in a goroutine.
// Bind errors are returned; serve errors are only logged.
func (s *BaseServer) RunInBackground() error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.log.Info("http server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server stopped", "err", err)
		}
	}()
	return nil
}

// Addr is the bound address once running, the configured one before.
func (s *BaseServer) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return s.cfg.ListenAddr
	}
	return s.listener.Addr().String()
}

// Shutdown waits up to GracefulShutdownDuration for in-flight requests.
func (s *BaseServer) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Error("http server shutdown", "err", err)
		return
	}
	s.log.Info("http server stopped")
}

package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/muurk/ippower/internal/device"
	"github.com/muurk/ippower/internal/engine"
	"github.com/muurk/ippower/internal/logging"
	"github.com/muurk/ippower/internal/poller"
	"github.com/muurk/ippower/internal/state"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	// commandTimeout bounds a set command plus its confirming poll
	commandTimeout = 10 * time.Second

	// shutdownTimeout bounds waiting for in-flight requests on shutdown
	shutdownTimeout = 10 * time.Second
)

// Engine is the engine surface exposed over HTTP.
type Engine interface {
	Socket(id device.SocketID) (device.SocketRecord, error)
	Sockets() [device.NumSockets]device.SocketRecord
	Status() (engine.Status, error)
	PollState() poller.State
	Variables() map[string]string
	Subscribe(fn state.Observer) (cancel func())
	SubscribeStatus(fn engine.StatusObserver) (cancel func())
	SetSocketPower(ctx context.Context, id device.SocketID, desired device.PowerState) error
	ToggleSocketPower(ctx context.Context, id device.SocketID) error
	RefreshPowerState(ctx context.Context) error
	RefreshSocketNames(ctx context.Context) error
}

// Config holds the server configuration
type Config struct {
	Listen   string              // host:port to listen on
	Metrics  bool                // Expose /metrics
	Gatherer prometheus.Gatherer // Metrics source (default: prometheus.DefaultGatherer)
}

// Server serves the HTTP API, the websocket event stream and metrics.
type Server struct {
	config  Config
	engine  Engine
	hub     *Hub
	router  *mux.Router
	http    *http.Server
	cancels []func()
}

// New creates a server for eng and starts forwarding engine events to
// websocket clients.
func New(config Config, eng Engine) *Server {
	if config.Gatherer == nil {
		config.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		config: config,
		engine: eng,
		hub:    NewHub(),
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              config.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.cancels = append(s.cancels,
		eng.Subscribe(func(ch state.Change) {
			s.hub.Broadcast(newChangeEvent(ch))
		}),
		eng.SubscribeStatus(func(status engine.Status, err error) {
			s.hub.Broadcast(newStatusEvent(status, err))
		}),
	)

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(logRequests)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/sockets", s.handleSockets).Methods(http.MethodGet)
	api.HandleFunc("/sockets/{id}", s.handleSocket).Methods(http.MethodGet)
	api.HandleFunc("/sockets/{id}/power", s.handleSetPower).Methods(http.MethodPut)
	api.HandleFunc("/sockets/{id}/toggle", s.handleToggle).Methods(http.MethodPost)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/refresh/names", s.handleRefreshNames).Methods(http.MethodPost)
	api.HandleFunc("/variables", s.handleVariables).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	if s.config.Metrics {
		r.Handle("/metrics", promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// Serve listens on the configured address and blocks until ctx is cancelled
// or the listener fails.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}

	logging.Info("HTTP API listening",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("metrics", s.config.Metrics),
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.http.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown() error {
	logging.Info("Shutting down HTTP API...")

	for _, cancel := range s.cancels {
		cancel()
	}
	s.hub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		logging.Warn("Shutdown timeout, forcing close", zap.Error(err))
		return s.http.Close()
	}
	return nil
}

// statusRecorder captures the response code for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes the connection through for the websocket upgrade
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, rec.status)
	})
}

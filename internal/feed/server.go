package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/alpacanet/internal/history"
	"github.com/muurk/alpacanet/internal/logging"
	"github.com/muurk/alpacanet/internal/registry"
)

// Controller is the part of the prober the feed can drive.
type Controller interface {
	Wake()
	Reset()
}

// History is the read side of the sighting store.
type History interface {
	Units(ctx context.Context) ([]history.UnitRecord, error)
	Devices(ctx context.Context) ([]history.DeviceRecord, error)
}

// Server is the registry feed.
type Server struct {
	reg      *registry.Registry
	ctrl     Controller
	hist     History
	router   *mux.Router
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	wg      sync.WaitGroup
}

// Option customises a Server.
type Option func(*Server)

// WithHistory exposes the sighting history routes.
func WithHistory(h History) Option {
	return func(s *Server) { s.hist = h }
}

// New creates a feed for reg. ctrl may be nil, in which case wake and reset
// answer 503.
func New(reg *registry.Registry, ctrl Controller, opts ...Option) *Server {
	s := &Server{
		reg:     reg,
		ctrl:    ctrl,
		router:  mux.NewRouter(),
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(logRequests)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/units", s.getUnits).Methods(http.MethodGet)
	api.HandleFunc("/units/{addr}", s.getUnit).Methods(http.MethodGet)
	api.HandleFunc("/devices", s.getDevices).Methods(http.MethodGet)
	api.HandleFunc("/wake", s.postWake).Methods(http.MethodPost)
	api.HandleFunc("/reset", s.postReset).Methods(http.MethodPost)
	api.HandleFunc("/ws", s.serveWS).Methods(http.MethodGet)
	if s.hist != nil {
		api.HandleFunc("/history/units", s.getHistoryUnits).Methods(http.MethodGet)
		api.HandleFunc("/history/devices", s.getHistoryDevices).Methods(http.MethodGet)
	}
}

// Handler returns the feed's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and closes every websocket client.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info("Feed listening", zap.String("addr", ln.Addr().String()))

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Feed shutdown timeout, forcing close", zap.Error(err))
		_ = srv.Close()
	}
	s.closeClients()
	s.wg.Wait()
	logging.Info("Feed stopped")
	return nil
}

// CycleComplete pushes snap to every websocket client.
func (s *Server) CycleComplete(_ context.Context, snap registry.Snapshot) {
	msg, err := encodeSnapshot(snap)
	if err != nil {
		logging.Error("Failed to encode snapshot", zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.offer(msg)
	}
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) getUnits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.ListUnits())
}

func (s *Server) getUnit(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["addr"]
	ap, err := netip.ParseAddrPort(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid unit address %q", raw))
		return
	}
	u, ok := s.reg.Unit(registry.KeyOf(ap))
	if !ok {
		writeError(w, http.StatusNotFound, "unit not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) getDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.reg.ListRemoteDevices())
}

func (s *Server) postWake(w http.ResponseWriter, _ *http.Request) {
	if s.ctrl == nil {
		writeError(w, http.StatusServiceUnavailable, "prober not running")
		return
	}
	s.ctrl.Wake()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) postReset(w http.ResponseWriter, _ *http.Request) {
	if s.ctrl == nil {
		writeError(w, http.StatusServiceUnavailable, "prober not running")
		return
	}
	s.ctrl.Reset()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) getHistoryUnits(w http.ResponseWriter, r *http.Request) {
	units, err := s.hist.Units(r.Context())
	if err != nil {
		logging.Error("History query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, units)
}

func (s *Server) getHistoryDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.hist.Devices(r.Context())
	if err != nil {
		logging.Error("History query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.Debug("Feed request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

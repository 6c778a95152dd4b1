package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bitmark-inc/logger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/gravitas-games/citybuilder/internal/config"
	"github.com/gravitas-games/citybuilder/internal/depot"
	"github.com/gravitas-games/citybuilder/internal/network"
)

// Server exposes a depot over WebSocket and a small read-only HTTP API
type Server struct {
	log      *logger.L
	config   *config.Config
	depot    *depot.Depot
	auth     TokenValidator
	session  *Session
	upgrader websocket.Upgrader
	router   chi.Router
	httpSrv  *http.Server

	// Connection tracking
	connections map[*Connection]bool
	connMu      sync.RWMutex

	// Shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a new server instance
func New(cfg *config.Config, d *depot.Depot, auth TokenValidator, session *Session) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	srv := &Server{
		log:         logger.New("server"),
		config:      cfg,
		depot:       d,
		auth:        auth,
		session:     session,
		connections: make(map[*Connection]bool),
		ctx:         ctx,
		cancel:      cancel,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{"access_token"},
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/ws", srv.handleWebSocket)
	r.Get("/health", srv.handleHealth)
	r.Get("/storages", srv.handleStorages)
	r.Get("/storages/{id}", srv.handleStorage)
	srv.router = r

	return srv
}

// Handler returns the HTTP handler serving all routes
func (s *Server) Handler() http.Handler { return s.router }

// Start begins listening for connections
func (s *Server) Start(addr string) error {
	s.log.Infof("starting server on %s", addr)

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.log.Infof("websocket endpoint: ws://%s/ws", addr)
	s.log.Infof("health endpoint: http://%s/health", addr)

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.log.Info("shutting down server")

	s.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	if s.httpSrv != nil {
		if err = s.httpSrv.Shutdown(ctx); err != nil {
			s.log.Errorf("http server shutdown error: %s", err)
		}
	}

	// Close all WebSocket connections
	s.connMu.RLock()
	conns := make([]*Connection, 0, len(s.connections))
	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.connMu.RUnlock()
	for _, conn := range conns {
		conn.Close()
	}

	s.log.Info("server shutdown complete")
	return err
}

// handleWebSocket handles WebSocket connection requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	tokenString := extractTokenFromHeader(r)
	if tokenString == "" {
		s.log.Warnf("missing token from %s", r.RemoteAddr)
		http.Error(w, "Missing authentication token", http.StatusUnauthorized)
		return
	}

	player, err := s.auth.ValidateToken(r.Context(), tokenString)
	if err != nil {
		s.log.Warnf("invalid token from %s: %s", r.RemoteAddr, err)
		http.Error(w, fmt.Sprintf("Invalid token: %v", err), http.StatusUnauthorized)
		return
	}
	player.ConnectedAt = time.Now()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("websocket upgrade failed: %s", err)
		return
	}

	conn := NewConnection(ws, s, player)

	s.connMu.Lock()
	s.connections[conn] = true
	s.connMu.Unlock()
	s.session.AddPlayer(player, conn)

	s.log.Infof("connection established: %s (%s)", player.Username, r.RemoteAddr)

	welcome := network.WelcomePayload{
		PlayerID: player.ID,
		Username: player.Username,
		Admin:    player.IsAdmin(),
	}
	for _, item := range s.depot.Registry().Items() {
		welcome.Items = append(welcome.Items, item.Key)
	}
	ctx, cancel := context.WithTimeout(s.ctx, commandTimeout)
	_ = s.depot.Do(ctx, func(w *depot.World) error {
		welcome.Tick = w.Tick()
		welcome.Storages = w.IDs()
		return nil
	})
	cancel()
	conn.SendMessage(&network.ServerMessage{Type: network.MsgTypeWelcome, Payload: welcome})

	// Blocking
	conn.Handle()

	s.connMu.Lock()
	delete(s.connections, conn)
	s.connMu.Unlock()

	s.log.Infof("connection closed: %s (%s)", player.Username, r.RemoteAddr)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := struct {
		Status  string        `json:"status"`
		Tick    uint64        `json:"tick"`
		Session SessionStatus `json:"session"`
	}{
		Status:  "ok",
		Session: s.session.GetStatus(),
	}
	status := http.StatusOK
	if err := s.do(r, func(w *depot.World) error {
		health.Tick = w.Tick()
		return nil
	}); err != nil {
		health.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) handleStorages(w http.ResponseWriter, r *http.Request) {
	var list []depot.StorageStatus
	if err := s.do(r, func(w *depot.World) error {
		list = w.StatusAll()
		return nil
	}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, network.StorageListPayload{Storages: list})
}

func (s *Server) handleStorage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var status depot.StorageStatus
	if err := s.do(r, func(w *depot.World) (err error) {
		status, err = w.Status(id)
		return err
	}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) do(r *http.Request, fn func(*depot.World) error) error {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()
	return s.depot.Do(ctx, fn)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errorCode(err) {
	case network.ErrCodeNotFound:
		status = http.StatusNotFound
	case network.ErrCodeUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, network.ErrorPayload{Code: errorCode(err), Message: err.Error()})
}

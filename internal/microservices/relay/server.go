package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"gfxrelay/internal/config"
	"gfxrelay/internal/protocol"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// DashboardPath is where dashboards open their websocket.
const DashboardPath = "/ws/dashboard"

// Options configures a relay Server.
type Options struct {
	Host             string
	Port             int // 0 picks a free port
	SweepInterval    time.Duration
	HeartbeatTimeout time.Duration
	MaxMessageSize   int64
	InboundRate      float64 // frames per second per peer; 0 disables limiting
	InboundBurst     int
}

// DefaultOptions mirrors config.Default.
func DefaultOptions() Options {
	return OptionsFromConfig(config.Default())
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Host:             cfg.RelayHost,
		Port:             cfg.RelayPort,
		SweepInterval:    cfg.SweepInterval,
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		MaxMessageSize:   cfg.MaxMessageSize,
		InboundRate:      cfg.InboundRate,
		InboundBurst:     cfg.InboundBurst,
	}
}

// Status is served by GET /status.
type Status struct {
	Running      bool `json:"running"`
	Port         int  `json:"port"`
	TotalClients int  `json:"totalClients"`
	MainClients  int  `json:"mainClients"`
	SubClients   int  `json:"subClients"`
}

// Server accepts Main and Sub dashboards and relays messages between them.
type Server struct {
	opts     Options
	logger   *slog.Logger
	registry *Registry
	router   *Router
	monitor  *HeartbeatMonitor
	presence PresenceStore
	engine   *gin.Engine

	mu         sync.Mutex // serializes Start and Stop
	httpServer *http.Server
	cancel     context.CancelFunc
	loops      sync.WaitGroup // monitor + http serve
	conns      sync.WaitGroup // read/write pumps
	running    atomic.Bool
	port       atomic.Int64
}

// NewServer wires a relay. A nil presence store disables publishing.
func NewServer(opts Options, logger *slog.Logger, presence PresenceStore) *Server {
	if presence == nil {
		presence = NopPresence{}
	}

	registry := NewRegistry(opts.HeartbeatTimeout, logger)
	s := &Server{
		opts:     opts,
		logger:   logger,
		registry: registry,
		router:   NewRouter(registry, logger),
		monitor:  NewHeartbeatMonitor(registry, opts.SweepInterval, logger),
		presence: presence,
	}
	s.monitor.onSweep = s.publishPresence
	s.port.Store(int64(opts.Port))

	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(s))
	engine.GET(DashboardPath, DashboardHandler(s))
	engine.GET("/status", StatusHandler(s))
	engine.GET("/health", HealthHandler())
	s.engine = engine

	return s
}

// Handler exposes the HTTP routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start binds the listener and starts the sweep loop. Calling Start on a
// running server logs a warning and does nothing.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		s.logger.Warn("relay_already_running", "port", s.port.Load())
		return nil
	}

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.port.Store(int64(ln.Addr().(*net.TCPAddr).Port))

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.httpServer = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.loops.Add(2)
	go func() {
		defer s.loops.Done()
		s.monitor.Run(ctx)
	}()
	go func(srv *http.Server) {
		defer s.loops.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("relay_serve_failed", "error", err)
		}
	}(s.httpServer)

	s.running.Store(true)
	s.logger.Info("relay_started",
		"addr", ln.Addr().String(),
		"endpoint", DashboardPath,
		"sweep_interval", s.opts.SweepInterval.String(),
		"heartbeat_timeout", s.opts.HeartbeatTimeout.String(),
	)
	return nil
}

// Stop closes every peer, stops the sweep loop and shuts the HTTP server down.
// Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return nil
	}
	s.running.Store(false)
	s.cancel()

	s.registry.CloseAll(CloseGoingAway, "Server shutting down")
	err := s.httpServer.Shutdown(ctx)
	s.loops.Wait()

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("relay_stop_incomplete", "error", ctx.Err())
	}

	s.publishPresence(ctx, nil)
	s.logger.Info("relay_stopped")
	return err
}

// Status reports whether the server runs and how many peers of each role are registered.
func (s *Server) Status() Status {
	return Status{
		Running:      s.running.Load(),
		Port:         int(s.port.Load()),
		TotalClients: s.registry.Count(""),
		MainClients:  s.registry.Count(protocol.RoleMain),
		SubClients:   s.registry.Count(protocol.RoleSub),
	}
}

// Addr returns host:port of the bound listener.
func (s *Server) Addr() string {
	host := s.opts.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.port.Load())))
}

// Snapshot captures the status and all peers for presence publishing.
func (s *Server) Snapshot(now time.Time) Snapshot {
	peers := s.registry.Peers()
	snap := Snapshot{
		Status:    s.Status(),
		Peers:     make([]PeerSnapshot, 0, len(peers)),
		UpdatedAt: now,
	}
	for _, p := range peers {
		snap.Peers = append(snap.Peers, PeerSnapshot{
			ID:              p.ID,
			Role:            p.Role.String(),
			ConnectedAt:     p.ConnectedAt,
			LastHeartbeatAt: p.LastHeartbeatAt,
		})
	}
	return snap
}

func (s *Server) publishPresence(ctx context.Context, _ []string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	if err := s.presence.Publish(ctx, s.Snapshot(time.Now())); err != nil {
		s.logger.Warn("presence_publish_failed", "error", err)
	}
}

func (s *Server) accept(conn *websocket.Conn, role string) {
	var limiter *rate.Limiter
	if s.opts.InboundRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.InboundRate), max(1, s.opts.InboundBurst))
	}
	sock := newPeerConn(conn, limiter, s.logger.With("remote_addr", conn.RemoteAddr().String()))

	peerID, err := s.registry.Register(sock, role)
	if err != nil {
		s.logger.Error("invalid_client_type",
			"type", role,
			"remote_addr", conn.RemoteAddr().String(),
		)
		sock.Close(ClosePolicyViolation, "Invalid client type")
		return
	}
	peer, ok := s.registry.Get(peerID)
	if !ok {
		// Stop closed it between Register and here
		return
	}

	s.logger.Info("peer_connected",
		"peer_id", peerID,
		"role", peer.Role,
		"remote_addr", conn.RemoteAddr().String(),
		"total_clients", s.registry.Count(""),
	)

	s.conns.Add(2)
	go func() {
		defer s.conns.Done()
		sock.writePump()
	}()
	go func() {
		defer s.conns.Done()
		sock.readPump(s.opts.MaxMessageSize, func(frame []byte) {
			s.router.Route(peerID, peer.Role, frame)
		})
		if s.registry.Remove(peerID) {
			s.logger.Info("peer_disconnected",
				"peer_id", peerID,
				"role", peer.Role,
			)
		}
		sock.Close(CloseNormalClosure, "")
	}()
}

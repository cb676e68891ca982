// ABOUTME: Websocket control server for the routing graph
// ABOUTME: Manages control clients and answers list, connect and disconnect requests
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Resonate-Protocol/hound/internal/protocol"
	"github.com/Resonate-Protocol/hound/internal/version"
	"github.com/Resonate-Protocol/hound/pkg/hound"
)

const (
	// Path is the websocket endpoint
	Path = "/hound"
	// MetricsPath serves Prometheus metrics when enabled
	MetricsPath = "/metrics"

	sendBuffer    = 64
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	shutdownGrace = 5 * time.Second
)

// Config holds server configuration
type Config struct {
	Listen string
	Port   int
	Name   string
	// Metrics is mounted at MetricsPath when non-nil
	Metrics http.Handler
}

// Server answers control requests against a registry
type Server struct {
	config   Config
	serverID string
	registry *hound.Registry
	log      *zap.Logger

	upgrader websocket.Upgrader
	mux      *http.ServeMux

	clientsMu  sync.Mutex
	clients    map[uuid.UUID]*client
	isShutdown bool
	wg         sync.WaitGroup
}

// client is one control connection
type client struct {
	id       uuid.UUID
	conn     *websocket.Conn
	sendChan chan protocol.Response
}

// New creates a control server
func New(config Config, registry *hound.Registry, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		config:   config,
		serverID: uuid.New().String(),
		registry: registry,
		log:      log,
		upgrader: websocket.Upgrader{
			// control clients live on the local network and are not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux:     http.NewServeMux(),
		clients: make(map[uuid.UUID]*client),
	}
	s.mux.HandleFunc(Path, s.handleWebSocket)
	if config.Metrics != nil {
		s.mux.Handle(MetricsPath, config.Metrics)
	}
	return s
}

// Handler returns the HTTP handler serving the control and metrics endpoints
func (s *Server) Handler() http.Handler { return s.mux }

// ServerID returns the id reported in server/info
func (s *Server) ServerID() string { return s.serverID }

// Addr is the listen address from the config
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.Listen, strconv.Itoa(s.config.Port))
}

// Run serves until ctx is cancelled, then closes every client
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.log.Info("control server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	var serverErr error
	select {
	case <-ctx.Done():
	case err, ok := <-errChan:
		if ok {
			serverErr = fmt.Errorf("control server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("control server shutdown error", zap.Error(err))
	}
	s.Close()
	s.log.Info("control server stopped")
	return serverErr
}

// Close disconnects every client and waits for their handlers
func (s *Server) Close() {
	s.clientsMu.Lock()
	s.isShutdown = true
	for _, c := range s.clients {
		c.conn.Close()
	}
	s.clientsMu.Unlock()
	s.wg.Wait()
}

// ClientCount returns the number of connected control clients
func (s *Server) ClientCount() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()
	return len(s.clients)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.log.Debug("control client connected", zap.String("remote", r.RemoteAddr))
	s.handleConnection(conn)
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	c := &client{
		id:       uuid.New(),
		conn:     conn,
		sendChan: make(chan protocol.Response, sendBuffer),
	}

	s.clientsMu.Lock()
	if s.isShutdown {
		s.clientsMu.Unlock()
		s.log.Debug("rejecting control client during shutdown")
		return
	}
	s.clients[c.id] = c
	s.wg.Add(1)
	s.clientsMu.Unlock()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.clientWriter(c)
	}()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, c.id)
		s.clientsMu.Unlock()
		close(c.sendChan)
		<-writerDone
		s.wg.Done()
		s.log.Debug("control client disconnected", zap.Stringer("client", c.id))
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("control read error", zap.Error(err))
			}
			return
		}

		var req protocol.Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.send(c, protocol.ErrorResponse(req, fmt.Errorf("%w: malformed request: %v", hound.ErrInvalidArgument, err)))
			continue
		}
		s.send(c, s.handle(req))
	}
}

// clientWriter sends queued responses and keeps the connection alive
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case resp, ok := <-c.sendChan:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteJSON(resp); err != nil {
				s.log.Debug("control write failed", zap.Stringer("client", c.id), zap.Error(err))
				c.conn.Close()
				// keep draining so the reader never blocks
				for range c.sendChan {
				}
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				c.conn.Close()
				for range c.sendChan {
				}
				return
			}
		}
	}
}

func (s *Server) send(c *client, resp protocol.Response) {
	select {
	case c.sendChan <- resp:
	default:
		s.log.Warn("control client send buffer full, dropping response",
			zap.Stringer("client", c.id),
			zap.String("type", resp.Type))
	}
}

func (s *Server) info() *protocol.ServerInfo {
	return &protocol.ServerInfo{
		ServerID:        s.serverID,
		Name:            s.config.Name,
		Version:         protocol.Version,
		ProductName:     version.Product,
		Manufacturer:    version.Manufacturer,
		SoftwareVersion: version.Version,
	}
}

// handle runs one request against the registry
func (s *Server) handle(req protocol.Request) protocol.Response {
	resp := protocol.Response{ID: req.ID, Type: req.Type, OK: true}

	switch req.Type {
	case protocol.TypeServerInfo:
		resp.Server = s.info()

	case protocol.TypeListSources:
		resp.Sources = s.registry.ListSources()

	case protocol.TypeListSinks:
		resp.Sinks = s.registry.ListSinks()

	case protocol.TypeListConnections:
		resp.Connections = s.registry.ListConnections()

	case protocol.TypeListDevices:
		resp.Devices = s.registry.Devices()

	case protocol.TypeGraphSnapshot:
		g := s.registry.Snapshot()
		resp.Graph = &g

	case protocol.TypeConnect:
		conn, err := s.registry.Connect(req.Source, req.Sink)
		if err != nil {
			return protocol.ErrorResponse(req, err)
		}
		resp.Connection = &hound.ConnectionInfo{
			ID:     conn.ID(),
			Source: conn.Source().Name(),
			Sink:   conn.Sink().Name(),
		}

	case protocol.TypeDisconnect, protocol.TypeDisconnectPair:
		disconnect := s.registry.Disconnect
		if req.Type == protocol.TypeDisconnectPair {
			disconnect = s.registry.DisconnectPair
		}
		n, err := disconnect(req.Source, req.Sink)
		if err != nil {
			return protocol.ErrorResponse(req, err)
		}
		resp.Removed = n

	default:
		return protocol.ErrorResponse(req, fmt.Errorf("%w: unknown request type %q", hound.ErrInvalidArgument, req.Type))
	}

	s.log.Debug("control request handled", zap.String("type", req.Type), zap.String("id", req.ID))
	return resp
}

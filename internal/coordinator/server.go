package coordinator

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/flowspace/internal/auth"
	"github.com/cory-johannsen/flowspace/internal/config"
	"github.com/cory-johannsen/flowspace/internal/space"
)

const (
	// writeWait is the deadline for a single outbound frame.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is dropped.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait so pings keep the read alive.
	pingPeriod = 54 * time.Second
)

// Server is the websocket front door. It verifies the handshake token,
// creates a Session per connection, and runs the read/write pumps that feed
// the Coordinator.
type Server struct {
	cfg        config.ServerConfig
	verifier   *auth.Verifier
	coord      *Coordinator
	bufferSize int
	logger     *zap.Logger
	upgrader   websocket.Upgrader
	httpServer *http.Server
}

// NewServer creates a websocket Server.
//
// Precondition: verifier, coord, and logger must be non-nil; bufferSize > 0.
func NewServer(
	cfg config.ServerConfig,
	verifier *auth.Verifier,
	coord *Coordinator,
	bufferSize int,
	logger *zap.Logger,
) *Server {
	s := &Server{
		cfg:        cfg,
		verifier:   verifier,
		coord:      coord,
		bufferSize: bufferSize,
		logger:     logger,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if cfg.AllowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == cfg.AllowedOrigin
		},
	}
	return s
}

// Handler returns the HTTP handler serving the websocket endpoint at /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// Start listens on the configured address and serves until Stop is called.
//
// Postcondition: Blocks until the listener is closed; returns nil on a
// graceful shutdown.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Addr(),
		Handler: s.Handler(),
	}
	s.logger.Info("websocket server listening", zap.String("addr", s.cfg.Addr()))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the listener down, allowing in-flight handshakes to finish.
func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("shutting down websocket server", zap.Error(err))
	}
}

// handleWS authenticates the handshake and upgrades the connection. A bad
// token is rejected with 401 before any session state exists.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		if h := r.Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
			token = h[7:]
		}
	}

	identity, err := s.verifier.Verify(token)
	if err != nil {
		s.logger.Debug("rejecting connection", zap.Error(err))
		http.Error(w, CodeAuthFailure, http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading connection", zap.Error(err))
		return
	}

	sess := space.NewSession(uuid.NewString(), identity.UserID, identity.DisplayName, s.bufferSize)
	s.logger.Info("connection established",
		zap.String("conn_id", sess.ConnID),
		zap.String("user_id", identity.UserID),
	)

	go s.writePump(conn, sess)
	s.readPump(r.Context(), conn, sess)
}

// readPump reads frames until the connection dies, feeding each one to the
// Coordinator. It owns connection teardown.
func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, sess *space.Session) {
	defer func() {
		s.coord.Disconnect(sess)
		_ = conn.Close()
		s.logger.Info("connection closed", zap.String("conn_id", sess.ConnID))
	}()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("read error",
					zap.String("conn_id", sess.ConnID),
					zap.Error(err),
				)
			}
			return
		}
		s.coord.HandleFrame(ctx, sess, message)
	}
}

// writePump drains the session outbox to the connection and keeps it alive
// with pings. It exits when the outbox closes or a write fails.
func (s *Server) writePump(conn *websocket.Conn, sess *space.Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame, ok := <-sess.Out().Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

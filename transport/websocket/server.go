package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/dyedai/shiritori-sugoroku/internal/apperror"
	"github.com/dyedai/shiritori-sugoroku/internal/entity"
	"github.com/dyedai/shiritori-sugoroku/internal/protocol"
	"github.com/dyedai/shiritori-sugoroku/internal/registry"
	"github.com/dyedai/shiritori-sugoroku/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 32

	// inbound messages per second a single connection may produce.
	inboundRate  = 10
	inboundBurst = 20
)

type resolver interface {
	Resolve(ctx context.Context, token string) (*entity.User, error)
}

type Server struct {
	logger   *slog.Logger
	registry *registry.Registry
	identity resolver

	upgrader websocket.Upgrader

	handlers map[string]func(ctx context.Context, client *client, msg *protocol.Message)
}

func New(logger *slog.Logger, reg *registry.Registry, identity resolver) *Server {
	server := &Server{
		logger:   logger.With("component", "websocket"),
		registry: reg,
		identity: identity,

		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(_ *http.Request) bool { return true },
		},

		handlers: make(map[string]func(context.Context, *client, *protocol.Message)),
	}

	server.handlers[protocol.ActionJoin] = server.handleJoin
	server.handlers[protocol.ActionStartRoulette] = server.handleStartRoulette
	server.handlers[protocol.ActionCheckWord] = server.handleCheckWord
	server.handlers[protocol.ActionTimeIsUp] = server.handleTimeIsUp

	return server
}

// Start - starts the WebSocket server.
func (that *Server) Start(ctx context.Context, port string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.serveWS(ctx, w, r)
	})

	srv := &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// serveWS authenticates the handshake, upgrades the connection and runs
// the read loop until the client goes away.
func (that *Server) serveWS(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "serveWS")

	user, err := that.identity.Resolve(r.Context(), sessionToken(r))
	if errors.Is(err, apperror.ErrUnauthenticated) {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	if err != nil {
		log.Error("failed to resolve identity", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	conn, err := that.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	c := newClient(that.logger, conn, user)
	log.Info("connection established", "userID", user.ID, "userName", user.Name)

	go c.writePump()
	that.readPump(ctx, c)
}

// readPump consumes client messages until the connection drops, applying
// the per-connection rate limit before dispatching.
func (that *Server) readPump(ctx context.Context, c *client) {
	log := that.logger.With("method", "readPump", "userID", c.user.ID)

	defer func() {
		that.registry.Disconnect(ctx, c.user.ID)
		c.close()
		log.Info("connection closed")
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	limiter := rate.NewLimiter(rate.Limit(inboundRate), inboundBurst)

	for {
		var msg protocol.Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error("unexpected close", "error", err)
			}
			return
		}

		if !limiter.Allow() {
			_ = c.Send(protocol.NewError("too many messages"))
			continue
		}

		handler, ok := that.handlers[msg.Type]
		if !ok {
			log.Warn("unknown message type", "type", msg.Type)
			continue
		}

		handler(ctx, c, &msg)
	}
}

// routeToSession looks up the running session of the client and replies
// with an error when there is none.
func (that *Server) routeToSession(c *client) (*session.Session, bool) {
	sess, ok := that.registry.SessionFor(c.user.ID)
	if !ok {
		_ = c.Send(protocol.NewError(apperror.ErrPlayerNotInRoom.Error()))
		return nil, false
	}

	return sess, true
}

// sessionToken extracts the credential from the token cookie, falling back
// to the query parameter the webapp uses during local development.
func sessionToken(r *http.Request) string {
	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value
	}

	return r.URL.Query().Get("token")
}

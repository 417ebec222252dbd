package websocket

import (
	"context"
	"errors"

	"github.com/dyedai/shiritori-sugoroku/internal/apperror"
	"github.com/dyedai/shiritori-sugoroku/internal/protocol"
)

// handleJoin seats the authenticated user in a waiting room. Identity
// fields in the payload are ignored: the handshake identity wins.
func (that *Server) handleJoin(ctx context.Context, c *client, _ *protocol.Message) {
	log := that.logger.With("method", "handleJoin", "userID", c.user.ID)

	_, err := that.registry.Join(ctx, c.user, c)
	if errors.Is(err, apperror.ErrAlreadyJoined) {
		_ = c.Send(protocol.NewError(err.Error()))
		return
	}
	if err != nil {
		log.Error("failed to join", "error", err)
		_ = c.Send(protocol.NewError("failed to join a room"))
		return
	}

	log.Info("player joined")
}

// handleStartRoulette requests the server-generated roll for the active
// turn. Any client-side roll value is ignored.
func (that *Server) handleStartRoulette(_ context.Context, c *client, _ *protocol.Message) {
	sess, ok := that.routeToSession(c)
	if !ok {
		return
	}

	sess.Roll(c.user.ID)
}

func (that *Server) handleCheckWord(_ context.Context, c *client, msg *protocol.Message) {
	sess, ok := that.routeToSession(c)
	if !ok {
		return
	}

	sess.SubmitWord(c.user.ID, msg.Word)
}

// handleTimeIsUp forwards the client-observed deadline; the session only
// honors it once its own timer agrees.
func (that *Server) handleTimeIsUp(_ context.Context, c *client, _ *protocol.Message) {
	sess, ok := that.routeToSession(c)
	if !ok {
		return
	}

	sess.TimeIsUp(c.user.ID)
}

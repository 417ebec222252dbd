// Package registry is the matchmaking side of the coordinator: it seats
// authenticated players into fixed-capacity rooms and hands full rooms to
// a game session.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/dyedai/shiritori-sugoroku/internal/apperror"
	"github.com/dyedai/shiritori-sugoroku/internal/config"
	"github.com/dyedai/shiritori-sugoroku/internal/entity"
	"github.com/dyedai/shiritori-sugoroku/internal/oracle"
	"github.com/dyedai/shiritori-sugoroku/internal/pkg"
	"github.com/dyedai/shiritori-sugoroku/internal/protocol"
	"github.com/dyedai/shiritori-sugoroku/internal/session"
)

type playerRepo interface {
	CreateOrUpdate(ctx context.Context, player *entity.Participant) error
	DeleteByID(ctx context.Context, id string) error
}

type roomRepo interface {
	CreateOrUpdate(ctx context.Context, room *entity.Room) error
	DeleteByID(ctx context.Context, id string) error
}

// waitingRoom pairs a waiting entity.Room with the live connections of its
// members.
type waitingRoom struct {
	room  *entity.Room
	conns map[string]session.Sender
}

type Registry struct {
	logger *slog.Logger
	conf   *config.Config

	// baseCtx outlives individual requests; sessions are bound to it, not
	// to the join request that created them.
	baseCtx context.Context

	playerRepo playerRepo
	roomRepo   roomRepo
	dict       oracle.Oracle
	rng        *rand.Rand

	mu       sync.Mutex
	waiting  []*waitingRoom
	sessions map[string]*session.Session
	byPlayer map[string]*session.Session
}

func New(ctx context.Context, logger *slog.Logger, conf *config.Config, playerRepo playerRepo, roomRepo roomRepo, dict oracle.Oracle) *Registry {
	return &Registry{
		logger:  logger.With("component", "registry"),
		conf:    conf,
		baseCtx: ctx,

		playerRepo: playerRepo,
		roomRepo:   roomRepo,
		dict:       dict,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // game randomness, not crypto

		sessions: make(map[string]*session.Session),
		byPlayer: make(map[string]*session.Session),
	}
}

// Join seats the user in the oldest open waiting room, creating a new room
// when none has space. Rejoining with the same identity reattaches the new
// connection instead of seating a duplicate.
func (that *Registry) Join(ctx context.Context, user *entity.User, conn session.Sender) (*entity.Room, error) {
	log := that.logger.With("method", "Join", "userID", user.ID)

	that.mu.Lock()
	defer that.mu.Unlock()

	// A member of a running game reconnects straight into its session.
	if sess, ok := that.byPlayer[user.ID]; ok {
		log.Info("rejoining running session")
		sess.Attach(user.ID, conn)
		return nil, nil
	}

	for _, wr := range that.waiting {
		if !wr.room.HasMember(user.ID) {
			continue
		}

		if _, connected := wr.conns[user.ID]; connected {
			return nil, apperror.ErrAlreadyJoined
		}

		log.Info("rejoining waiting room", "roomID", wr.room.ID)
		wr.conns[user.ID] = conn
		that.broadcastRoster(wr)

		return wr.room, nil
	}

	wr := that.openRoom()

	if err := wr.room.AddMember(user.ID, user.Name); err != nil {
		return nil, fmt.Errorf("failed to seat player: %w", err)
	}
	wr.conns[user.ID] = conn

	participant := &entity.Participant{ID: user.ID, Name: user.Name, RoomID: wr.room.ID}
	if err := that.playerRepo.CreateOrUpdate(ctx, participant); err != nil {
		return nil, fmt.Errorf("failed to persist participant: %w", err)
	}
	if err := that.roomRepo.CreateOrUpdate(ctx, wr.room); err != nil {
		return nil, fmt.Errorf("failed to persist room: %w", err)
	}

	log.Info("player seated", "roomID", wr.room.ID, "count", len(wr.room.Members))
	that.broadcastRoster(wr)

	if wr.room.IsFull() {
		that.startRoom(ctx, wr)
	}

	return wr.room, nil
}

// Leave unseats a player from its waiting room. Departures after the game
// started are the session's concern, not the registry's.
func (that *Registry) Leave(ctx context.Context, playerID string) {
	log := that.logger.With("method", "Leave", "playerID", playerID)

	that.mu.Lock()
	defer that.mu.Unlock()

	for i, wr := range that.waiting {
		if !wr.room.HasMember(playerID) {
			continue
		}

		wr.room.RemoveMember(playerID)
		delete(wr.conns, playerID)

		if err := that.playerRepo.DeleteByID(ctx, playerID); err != nil {
			log.Error("failed to delete participant", "error", err)
		}

		if len(wr.room.Members) == 0 {
			that.waiting = append(that.waiting[:i], that.waiting[i+1:]...)
			if err := that.roomRepo.DeleteByID(ctx, wr.room.ID); err != nil {
				log.Error("failed to delete room", "error", err)
			}
			log.Info("empty room discarded", "roomID", wr.room.ID)
			return
		}

		if err := that.roomRepo.CreateOrUpdate(ctx, wr.room); err != nil {
			log.Error("failed to persist room", "error", err)
		}

		that.broadcastRoster(wr)
		return
	}
}

// Disconnect routes a dropped connection either to the waiting-room leave
// path or to the member's running session.
func (that *Registry) Disconnect(ctx context.Context, playerID string) {
	that.mu.Lock()
	sess, inGame := that.byPlayer[playerID]
	that.mu.Unlock()

	if inGame {
		sess.Detach(playerID)
		return
	}

	that.Leave(ctx, playerID)
}

// SessionFor routes in-game actions to the member's session.
func (that *Registry) SessionFor(playerID string) (*session.Session, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	sess, ok := that.byPlayer[playerID]
	return sess, ok
}

// openRoom returns the oldest waiting room with a free seat, or creates one.
func (that *Registry) openRoom() *waitingRoom {
	for _, wr := range that.waiting {
		if !wr.room.IsFull() {
			return wr
		}
	}

	wr := &waitingRoom{
		room:  entity.NewRoom(pkg.GenerateRoomID(), that.conf.Game.RoomCapacity),
		conns: make(map[string]session.Sender),
	}
	that.waiting = append(that.waiting, wr)

	that.logger.Info("room opened", "roomID", wr.room.ID)

	return wr
}

// startRoom fixes the seat order, announces the start exactly once and
// hands the members over to a new game session. Caller holds the lock.
func (that *Registry) startRoom(ctx context.Context, wr *waitingRoom) {
	log := that.logger.With("method", "startRoom", "roomID", wr.room.ID)

	if that.conf.Game.SeatOrder == config.SeatOrderRandom {
		that.rng.Shuffle(len(wr.room.Members), func(i, j int) {
			wr.room.Members[i], wr.room.Members[j] = wr.room.Members[j], wr.room.Members[i]
		})
	}

	wr.room.Status = entity.StatusStarting
	if err := that.roomRepo.CreateOrUpdate(ctx, wr.room); err != nil {
		log.Error("failed to persist starting room", "error", err)
	}

	for i, wrCandidate := range that.waiting {
		if wrCandidate == wr {
			that.waiting = append(that.waiting[:i], that.waiting[i+1:]...)
			break
		}
	}

	start := protocol.NewStartGame(wr.room.ID, wr.room.MemberNames())
	for playerID, conn := range wr.conns {
		if err := conn.Send(start); err != nil {
			log.Error("failed to send start game", "playerID", playerID, "error", err)
		}
	}

	sess := session.New(that.logger, that.conf.Game, wr.room, that.dict, that.rng, func(roomID string) {
		that.finishRoom(roomID)
	})

	that.sessions[wr.room.ID] = sess
	for playerID, conn := range wr.conns {
		that.byPlayer[playerID] = sess
		sess.Attach(playerID, conn)
	}

	go sess.Run(that.baseCtx)

	log.Info("game session started", "players", wr.room.MemberNames())
}

// finishRoom tears down a finished or abandoned session.
func (that *Registry) finishRoom(roomID string) {
	log := that.logger.With("method", "finishRoom", "roomID", roomID)

	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.sessions, roomID)
	for playerID, sess := range that.byPlayer {
		if sess != nil && sess.Game().RoomID == roomID {
			delete(that.byPlayer, playerID)

			if err := that.playerRepo.DeleteByID(context.Background(), playerID); err != nil {
				log.Error("failed to delete participant", "error", err)
			}
		}
	}

	if err := that.roomRepo.DeleteByID(context.Background(), roomID); err != nil {
		log.Error("failed to delete room", "error", err)
	}

	log.Info("room closed")
}

// broadcastRoster pushes the waiting-room roster to every member.
func (that *Registry) broadcastRoster(wr *waitingRoom) {
	update := protocol.NewPlayerUpdate(wr.room.ID, wr.room.MemberNames())

	for playerID, conn := range wr.conns {
		if err := conn.Send(update); err != nil {
			that.logger.Error("failed to send player update", "playerID", playerID, "error", err)
		}
	}
}

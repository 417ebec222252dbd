// Package session implements the per-room game coordinator: one goroutine
// owns one room's state and serializes every mutation through an inbox.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/dyedai/shiritori-sugoroku/internal/apperror"
	"github.com/dyedai/shiritori-sugoroku/internal/config"
	"github.com/dyedai/shiritori-sugoroku/internal/entity"
	"github.com/dyedai/shiritori-sugoroku/internal/oracle"
	"github.com/dyedai/shiritori-sugoroku/internal/protocol"
	"github.com/dyedai/shiritori-sugoroku/internal/shiritori"
)

// Sender delivers one event to one connected client. Implementations must
// not block: the transport buffers writes and drops slow consumers.
type Sender interface {
	Send(v any) error
}

type command interface{}

type cmdRoll struct{ playerID string }

type cmdWord struct {
	playerID string
	word     string
}

type cmdTimeIsUp struct{ playerID string }

type cmdVerdict struct {
	seq   uint64
	word  string
	valid bool
}

type cmdDeadline struct{ seq uint64 }

type cmdAdvance struct{ seq uint64 }

type cmdCountdown struct{ count int }

type cmdAttach struct {
	playerID string
	conn     Sender
}

type cmdDetach struct{ playerID string }

// Session drives one room's turn state machine. All state behind the inbox
// is owned by the Run goroutine; only the conns map has its own lock
// because broadcasts and attach/detach race with the transport.
type Session struct {
	logger *slog.Logger
	rules  config.Game

	room *entity.Room
	game *entity.Game
	dict oracle.Oracle
	rng  *rand.Rand

	connsMu sync.RWMutex
	conns   map[string]Sender

	inbox chan command
	done  chan struct{}

	// timerSeq invalidates armed timers: a fired callback whose seq no
	// longer matches is a no-op.
	timerSeq  uint64
	turnTimer *time.Timer
	deadline  time.Time

	onFinished func(roomID string)
}

func New(logger *slog.Logger, rules config.Game, room *entity.Room, dict oracle.Oracle, rng *rand.Rand, onFinished func(roomID string)) *Session {
	return &Session{
		logger: logger.With("component", "session", "roomID", room.ID),
		rules:  rules,

		room: room,
		game: entity.NewGame(room.ID, len(room.Members), rules.Goal, shiritori.SeedKana),
		dict: dict,
		rng:  rng,

		conns: make(map[string]Sender),

		inbox: make(chan command, 64),
		done:  make(chan struct{}),

		onFinished: onFinished,
	}
}

// Game exposes the current state for tests and state snapshots.
func (that *Session) Game() *entity.Game {
	return that.game
}

// Attach binds a member's connection, replacing any previous one.
func (that *Session) Attach(playerID string, conn Sender) {
	that.connsMu.Lock()
	that.conns[playerID] = conn
	that.connsMu.Unlock()

	that.post(cmdAttach{playerID: playerID, conn: conn})
}

// Detach forgets a member's connection. Timers tied to the member's turn
// keep running so the forfeit still fires at the deadline.
func (that *Session) Detach(playerID string) {
	that.connsMu.Lock()
	delete(that.conns, playerID)
	empty := len(that.conns) == 0
	that.connsMu.Unlock()

	if empty {
		that.shutdown()
		return
	}

	that.post(cmdDetach{playerID: playerID})
}

func (that *Session) Roll(playerID string) {
	that.post(cmdRoll{playerID: playerID})
}

func (that *Session) SubmitWord(playerID, word string) {
	that.post(cmdWord{playerID: playerID, word: word})
}

func (that *Session) TimeIsUp(playerID string) {
	that.post(cmdTimeIsUp{playerID: playerID})
}

// Run owns the session state until the game ends or the context is
// canceled. It must be started exactly once.
func (that *Session) Run(ctx context.Context) {
	log := that.logger.With("method", "Run")
	log.Info("session started", "members", len(that.room.Members))

	defer func() {
		that.shutdown()
		if that.turnTimer != nil {
			that.turnTimer.Stop()
		}
		if that.onFinished != nil {
			that.onFinished(that.room.ID)
		}
		log.Info("session stopped")
	}()

	that.handleCountdown(cmdCountdown{count: that.rules.CountdownFrom})

	for {
		select {
		case <-ctx.Done():
			return
		case <-that.done:
			return
		case cmd := <-that.inbox:
			that.handle(ctx, cmd)
			if that.game.IsOver() {
				return
			}
		}
	}
}

func (that *Session) post(cmd command) {
	select {
	case that.inbox <- cmd:
	case <-that.done:
	}
}

func (that *Session) shutdown() {
	select {
	case <-that.done:
	default:
		close(that.done)
	}
}

func (that *Session) handle(ctx context.Context, cmd command) {
	switch c := cmd.(type) {
	case cmdCountdown:
		that.handleCountdown(c)
	case cmdRoll:
		that.handleRoll(c)
	case cmdWord:
		that.handleWord(ctx, c)
	case cmdTimeIsUp:
		that.handleTimeIsUp(c)
	case cmdVerdict:
		that.handleVerdict(c)
	case cmdDeadline:
		that.handleDeadline(c)
	case cmdAdvance:
		that.handleAdvance(c)
	case cmdAttach:
		that.handleAttach(c)
	case cmdDetach:
		// nothing to do beyond the conns map update; the turn timer
		// takes care of an absent active player.
	}
}

// handleCountdown runs the cosmetic pre-game countdown, one tick a second.
func (that *Session) handleCountdown(c cmdCountdown) {
	if that.game.Phase != entity.PhaseCountdown {
		return
	}

	that.broadcast(protocol.NewCountdown(c.count))

	if c.count <= 0 {
		that.beginTurn()
		return
	}

	time.AfterFunc(time.Second, func() {
		that.post(cmdCountdown{count: c.count - 1})
	})
}

// beginTurn opens the rolling phase for the current seat.
func (that *Session) beginTurn() {
	that.game.Phase = entity.PhaseRolling
	that.armDeadline(that.rules.TurnTime)

	that.broadcastState()
	that.broadcastStartTurn()
}

func (that *Session) handleRoll(c cmdRoll) {
	log := that.logger.With("method", "handleRoll", "playerID", c.playerID)

	if err := that.confirmActive(c.playerID, entity.PhaseRolling); err != nil {
		that.sendError(c.playerID, err)
		return
	}

	// The roll is generated here and nowhere else: clients only display it.
	result := rollValue(that.rng, that.rules.RollMin, that.rules.RollMax)

	that.game.PendingRoll = result
	that.game.Phase = entity.PhaseAwaitingWord
	that.armDeadline(that.rules.TurnTime)

	that.broadcast(protocol.NewRouletteResult(result, that.game.Positions))
	log.Info("roll generated", "result", result)
}

func (that *Session) handleWord(ctx context.Context, c cmdWord) {
	log := that.logger.With("method", "handleWord", "playerID", c.playerID)

	if err := that.confirmActive(c.playerID, entity.PhaseAwaitingWord); err != nil {
		that.sendError(c.playerID, err)
		return
	}

	// A word ending in the forbidden kana consumes the turn outright; the
	// dictionary is never consulted.
	if shiritori.EndsWithForbidden(c.word) {
		log.Info("word ends with forbidden kana", "word", c.word)
		that.broadcast(protocol.NewCheckResult(false, that.game.CurrentTurn))
		that.broadcast(protocol.NewResultMessage(fmt.Sprintf("「%s」\n「ん」で終わったので失敗！", c.word)))
		that.completeTurn()
		return
	}

	err := shiritori.CheckSubmission(c.word, that.game.PendingRoll, that.game.LastKana, that.game.WordHistory, that.rules.RejectRepeats)
	if err != nil {
		// Local-rule rejections do not consume the turn and are answered
		// to the submitter only; the deadline keeps running.
		log.Info("submission rejected", "word", c.word, "reason", err)
		that.sendError(c.playerID, err)
		return
	}

	that.game.Phase = entity.PhaseJudging
	that.stopTimer()

	seq := that.armSeq()
	word := c.word

	go func() {
		exists, lookupErr := that.dict.Exists(ctx, word)
		if lookupErr != nil {
			// A broken dictionary degrades to "not found"; it never kills
			// the session.
			that.logger.Error("dictionary lookup failed", "word", word, "error", lookupErr)
			exists = false
		}
		that.post(cmdVerdict{seq: seq, word: word, valid: exists})
	}()
}

func (that *Session) handleVerdict(c cmdVerdict) {
	if c.seq != that.timerSeq || that.game.Phase != entity.PhaseJudging {
		return
	}

	that.broadcast(protocol.NewCheckResult(c.valid, that.game.CurrentTurn))

	if c.valid {
		that.game.ApplyAcceptedWord(c.word, shiritori.LastKana(c.word))
		if that.game.Winner == entity.NoWinner && that.game.AtGoal(that.game.CurrentTurn) {
			that.game.Winner = that.game.CurrentTurn
		}

		that.broadcast(protocol.NewResultMessage(fmt.Sprintf("「%s」\n正解！", c.word)))
		that.broadcastState()

		if that.isRaceOver() {
			that.finishGame()
			return
		}
	} else {
		that.broadcast(protocol.NewResultMessage(fmt.Sprintf("「%s」\n失敗！", c.word)))
	}

	that.completeTurn()
}

func (that *Session) handleTimeIsUp(c cmdTimeIsUp) {
	// The client clock is informational; only honor it once the server's
	// own deadline has in fact passed.
	if that.seatOf(c.playerID) != that.game.CurrentTurn {
		return
	}
	if that.game.Phase != entity.PhaseRolling && that.game.Phase != entity.PhaseAwaitingWord {
		return
	}
	if time.Now().Before(that.deadline) {
		return
	}

	that.forfeitTurn()
}

func (that *Session) handleDeadline(c cmdDeadline) {
	if c.seq != that.timerSeq {
		return
	}
	if that.game.Phase != entity.PhaseRolling && that.game.Phase != entity.PhaseAwaitingWord {
		return
	}

	that.forfeitTurn()
}

func (that *Session) handleAdvance(c cmdAdvance) {
	if c.seq != that.timerSeq || that.game.Phase != entity.PhaseTurnComplete {
		return
	}

	that.game.AdvanceTurn()
	that.beginTurn()
}

// handleAttach replays the current state to a freshly (re)connected member.
func (that *Session) handleAttach(c cmdAttach) {
	seat := that.seatOf(c.playerID)
	if seat < 0 {
		return
	}

	if err := c.conn.Send(that.stateSnapshot()); err != nil {
		that.logger.Error("failed to replay state", "playerID", c.playerID, "error", err)
	}
}

func (that *Session) forfeitTurn() {
	that.broadcast(protocol.NewResultMessage("時間切れ！失敗！"))
	that.completeTurn()
}

// completeTurn holds the result on screen for the display pause, then the
// advance timer hands the turn over.
func (that *Session) completeTurn() {
	that.game.Phase = entity.PhaseTurnComplete

	seq := that.armSeq()
	that.turnTimer = time.AfterFunc(that.rules.DisplayPause, func() {
		that.post(cmdAdvance{seq: seq})
	})
}

func (that *Session) isRaceOver() bool {
	finished := that.game.FinishedCount()

	switch that.rules.Termination {
	case config.TerminationFirstToGoal:
		return finished >= 1
	default:
		return finished >= len(that.room.Members)-1
	}
}

func (that *Session) finishGame() {
	that.game.Phase = entity.PhaseGameOver
	that.stopTimer()

	ranking := make([]protocol.PlayerState, 0, len(that.room.Members))
	for _, seat := range that.game.Ranking() {
		ranking = append(ranking, protocol.PlayerState{
			ID:       that.room.Members[seat].PlayerID,
			Name:     that.room.Members[seat].Name,
			Position: that.game.Positions[seat],
		})
	}

	that.broadcast(protocol.NewGameOver(that.game.Winner, ranking))
	that.logger.Info("game over", "winner", that.game.Winner)
}

// rollValue draws a uniform wheel outcome in [min, max].
func rollValue(rng *rand.Rand, min, max int) int {
	return min + rng.Intn(max-min+1)
}

// confirmActive rejects actions that are out of phase or out of turn.
func (that *Session) confirmActive(playerID string, phase string) error {
	if err := that.game.ConfirmPhase(phase); err != nil {
		return err
	}

	seat := that.seatOf(playerID)
	if seat < 0 {
		return apperror.ErrPlayerNotInRoom
	}
	if seat != that.game.CurrentTurn {
		return apperror.ErrNotYourTurn
	}

	return nil
}

func (that *Session) seatOf(playerID string) int {
	return that.room.SeatOf(playerID)
}

// armSeq invalidates every previously armed timer and in-flight verdict.
func (that *Session) armSeq() uint64 {
	that.stopTimer()
	that.timerSeq++
	return that.timerSeq
}

func (that *Session) armDeadline(d time.Duration) {
	seq := that.armSeq()
	that.deadline = time.Now().Add(d)
	that.turnTimer = time.AfterFunc(d, func() {
		that.post(cmdDeadline{seq: seq})
	})
}

func (that *Session) stopTimer() {
	if that.turnTimer != nil {
		that.turnTimer.Stop()
		that.turnTimer = nil
	}
}

func (that *Session) stateSnapshot() protocol.GameState {
	players := make([]protocol.PlayerState, len(that.room.Members))
	for i, seat := range that.room.Members {
		players[i] = protocol.PlayerState{
			ID:       seat.PlayerID,
			Name:     seat.Name,
			Position: that.game.Positions[i],
		}
	}

	return protocol.NewGameState(players, that.game.CurrentTurn, that.game.WordHistory, that.game.LastKana, that.game.Phase)
}

func (that *Session) broadcastState() {
	that.broadcast(that.stateSnapshot())
}

func (that *Session) broadcastStartTurn() {
	deadline := that.deadline.UnixMilli()
	activeID := that.room.Members[that.game.CurrentTurn].PlayerID

	that.connsMu.RLock()
	defer that.connsMu.RUnlock()

	for playerID, conn := range that.conns {
		msg := protocol.NewStartTurn(that.game.CurrentTurn, playerID == activeID, deadline)
		if err := conn.Send(msg); err != nil {
			that.logger.Error("failed to send start turn", "playerID", playerID, "error", err)
		}
	}
}

func (that *Session) broadcast(v any) {
	that.connsMu.RLock()
	defer that.connsMu.RUnlock()

	for playerID, conn := range that.conns {
		if err := conn.Send(v); err != nil {
			that.logger.Error("failed to broadcast", "playerID", playerID, "error", err)
		}
	}
}

func (that *Session) sendError(playerID string, err error) {
	that.connsMu.RLock()
	conn, ok := that.conns[playerID]
	that.connsMu.RUnlock()

	if !ok {
		return
	}

	if sendErr := conn.Send(protocol.NewError(err.Error())); sendErr != nil && !errors.Is(sendErr, context.Canceled) {
		that.logger.Error("failed to send error reply", "playerID", playerID, "error", sendErr)
	}
}

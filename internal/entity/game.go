package entity

import (
	"fmt"

	"github.com/dyedai/shiritori-sugoroku/internal/apperror"
)

const (
	PhaseCountdown    = "countdown"
	PhaseRolling      = "rolling"
	PhaseAwaitingWord = "awaiting_word"
	PhaseJudging      = "judging"
	PhaseTurnComplete = "turn_complete"
	PhaseGameOver     = "game_over"
)

// NoWinner marks a game that ended without anyone reaching the goal.
const NoWinner = -1

// Game is the authoritative state of one room's race. It is owned by a
// single session goroutine and never mutated from anywhere else.
type Game struct {
	RoomID      string   `json:"room_id"`
	Goal        int      `json:"goal"`
	Positions   []int    `json:"positions"`
	CurrentTurn int      `json:"current_turn"`
	LastKana    string   `json:"last_kana"`
	WordHistory []string `json:"word_history"`
	PendingRoll int      `json:"pending_roll,omitempty"`
	Phase       string   `json:"phase"`
	Winner      int      `json:"winner"`

	// TurnToken increments on every turn handover; timer callbacks carry
	// the token they were armed with so stale ones become no-ops.
	TurnToken uint64 `json:"-"`
}

func NewGame(roomID string, memberCount, goal int, seedKana string) *Game {
	return &Game{
		RoomID:      roomID,
		Goal:        goal,
		Positions:   make([]int, memberCount),
		CurrentTurn: 0,
		LastKana:    seedKana,
		WordHistory: make([]string, 0),
		Phase:       PhaseCountdown,
		Winner:      NoWinner,
	}
}

func (that *Game) IsOver() bool {
	return that.Phase == PhaseGameOver
}

// ConfirmPhase checks that the game currently sits in one of the given
// phases, mirroring how turn handlers guard their entry points.
func (that *Game) ConfirmPhase(phases ...string) error {
	if that.IsOver() {
		return apperror.ErrGameFinished
	}

	for _, phase := range phases {
		if that.Phase == phase {
			return nil
		}
	}

	return fmt.Errorf("%w: phase %s", apperror.ErrWrongPhase, that.Phase)
}

// ApplyAcceptedWord advances the active player by the pending roll and
// records the word. Positions never decrease and never exceed the goal.
func (that *Game) ApplyAcceptedWord(word, nextKana string) {
	pos := that.Positions[that.CurrentTurn] + that.PendingRoll
	if pos > that.Goal {
		pos = that.Goal
	}

	that.Positions[that.CurrentTurn] = pos
	that.WordHistory = append(that.WordHistory, word)
	that.LastKana = nextKana
}

// AtGoal reports whether the seat has finished the race.
func (that *Game) AtGoal(seat int) bool {
	return that.Positions[seat] >= that.Goal
}

// FinishedCount counts seats that reached the goal.
func (that *Game) FinishedCount() int {
	n := 0
	for seat := range that.Positions {
		if that.AtGoal(seat) {
			n++
		}
	}
	return n
}

// AdvanceTurn hands the turn to the next seat that has not finished yet
// and invalidates any timers armed for the previous turn.
func (that *Game) AdvanceTurn() {
	that.PendingRoll = 0
	that.TurnToken++

	memberCount := len(that.Positions)
	for i := 1; i <= memberCount; i++ {
		next := (that.CurrentTurn + i) % memberCount
		if !that.AtGoal(next) {
			that.CurrentTurn = next
			return
		}
	}
}

// Ranking orders seats by position, best first. Ties keep seat order.
func (that *Game) Ranking() []int {
	seats := make([]int, len(that.Positions))
	for i := range seats {
		seats[i] = i
	}

	for i := 1; i < len(seats); i++ {
		for j := i; j > 0 && that.Positions[seats[j]] > that.Positions[seats[j-1]]; j-- {
			seats[j], seats[j-1] = seats[j-1], seats[j]
		}
	}

	return seats
}

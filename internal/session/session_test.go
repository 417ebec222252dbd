package session

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyedai/shiritori-sugoroku/internal/config"
	"github.com/dyedai/shiritori-sugoroku/internal/entity"
	"github.com/dyedai/shiritori-sugoroku/internal/protocol"
	"github.com/dyedai/shiritori-sugoroku/internal/shiritori"
	"github.com/dyedai/shiritori-sugoroku/testing/logtest"
)

const waitFor = 3 * time.Second

// recorder captures every event sent to one member.
type recorder struct {
	mu     sync.Mutex
	events []any
}

func (that *recorder) Send(v any) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.events = append(that.events, v)
	return nil
}

func (that *recorder) snapshot() []any {
	that.mu.Lock()
	defer that.mu.Unlock()

	return append([]any(nil), that.events...)
}

func (that *recorder) count(match func(any) bool) int {
	n := 0
	for _, ev := range that.snapshot() {
		if match(ev) {
			n++
		}
	}
	return n
}

// wait polls until an event matches or the deadline passes.
func (that *recorder) wait(t *testing.T, match func(any) bool) any {
	t.Helper()

	deadline := time.Now().Add(waitFor)
	for time.Now().Before(deadline) {
		for _, ev := range that.snapshot() {
			if match(ev) {
				return ev
			}
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("no matching event, got %v", that.snapshot())
	return nil
}

func isType(eventType string) func(any) bool {
	return func(ev any) bool {
		switch e := ev.(type) {
		case protocol.RouletteResult:
			return e.Type == eventType
		case protocol.CheckResult:
			return e.Type == eventType
		case protocol.ResultMessage:
			return e.Type == eventType
		case protocol.GameState:
			return e.Type == eventType
		case protocol.StartTurn:
			return e.Type == eventType
		case protocol.GameOver:
			return e.Type == eventType
		case protocol.Countdown:
			return e.Type == eventType
		case protocol.ErrorMessage:
			return e.Type == eventType
		default:
			return false
		}
	}
}

// stubOracle answers every lookup the same way.
type stubOracle struct {
	exists bool
	err    error
	delay  time.Duration

	mu    sync.Mutex
	calls int
}

func (that *stubOracle) Exists(_ context.Context, _ string) (bool, error) {
	that.mu.Lock()
	that.calls++
	that.mu.Unlock()

	if that.delay > 0 {
		time.Sleep(that.delay)
	}

	return that.exists, that.err
}

func (that *stubOracle) callCount() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.calls
}

func testRules() config.Game {
	return config.Game{
		RoomCapacity:  2,
		Goal:          100,
		RollMin:       2,
		RollMax:       8,
		TurnTime:      time.Second,
		DisplayPause:  20 * time.Millisecond,
		CountdownFrom: 0,
		SeatOrder:     config.SeatOrderJoinOrder,
		Termination:   config.TerminationAllButOne,
		RejectRepeats: true,
	}
}

func newTestSession(t *testing.T, rules config.Game, dict *stubOracle, memberCount int) (*Session, []*recorder) {
	t.Helper()

	room := entity.NewRoom("room1", memberCount)
	for i := 0; i < memberCount; i++ {
		require.NoError(t, room.AddMember(playerID(i), "player"+string(rune('A'+i))))
	}
	room.Status = entity.StatusStarting

	rng := rand.New(rand.NewSource(42)) //nolint:gosec // deterministic test rolls

	sess := New(logtest.New(t), rules, room, dict, rng, nil)

	recorders := make([]*recorder, memberCount)
	for i := range recorders {
		recorders[i] = &recorder{}
		sess.Attach(playerID(i), recorders[i])
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go sess.Run(ctx)

	return sess, recorders
}

func playerID(i int) string {
	return "p" + string(rune('0'+i))
}

// chainWord builds a valid hiragana word of the given kana length that
// starts the chain correctly and does not end in the forbidden kana.
func chainWord(head string, length int) string {
	return head + strings.Repeat("あ", length-2) + "る"
}

func rolledResult(t *testing.T, rec *recorder) int {
	t.Helper()

	ev := rec.wait(t, isType(protocol.EventRouletteResult))
	return ev.(protocol.RouletteResult).Result
}

func TestSession_AcceptedWordAdvancesPosition(t *testing.T) {
	dict := &stubOracle{exists: true}
	sess, recs := newTestSession(t, testRules(), dict, 2)

	// Given: the first turn is rolling
	recs[0].wait(t, isType(protocol.EventStartTurn))

	// When: the active player rolls and submits a valid word
	sess.Roll(playerID(0))
	result := rolledResult(t, recs[0])
	require.GreaterOrEqual(t, result, 2)
	require.LessOrEqual(t, result, 8)

	sess.SubmitWord(playerID(0), chainWord(shiritori.SeedKana, result))

	// Then: the word is judged valid and the position advances by the roll
	check := recs[1].wait(t, isType(protocol.EventCheckResult)).(protocol.CheckResult)
	assert.True(t, check.Valid)

	state := recs[1].wait(t, func(ev any) bool {
		gs, ok := ev.(protocol.GameState)
		return ok && len(gs.WordHistory) == 1
	}).(protocol.GameState)

	assert.Equal(t, result, state.Players[0].Position)
	assert.Equal(t, "る", state.LastCharacter)
}

func TestSession_ShortWordRejectedWithoutConsumingTurn(t *testing.T) {
	dict := &stubOracle{exists: true}
	sess, recs := newTestSession(t, testRules(), dict, 2)

	recs[0].wait(t, isType(protocol.EventStartTurn))
	sess.Roll(playerID(0))
	result := rolledResult(t, recs[0])

	// When: the word is one kana short
	short := shiritori.SeedKana + strings.Repeat("あ", result-2)
	sess.SubmitWord(playerID(0), short)

	// Then: only the submitter gets an error; nothing is broadcast and the
	// dictionary is never consulted
	recs[0].wait(t, isType(protocol.EventError))
	assert.Zero(t, recs[1].count(isType(protocol.EventError)))
	assert.Zero(t, recs[1].count(isType(protocol.EventCheckResult)))
	assert.Zero(t, dict.callCount())

	// And: the turn is still live, so a correct word goes through
	sess.SubmitWord(playerID(0), chainWord(shiritori.SeedKana, result))
	check := recs[1].wait(t, isType(protocol.EventCheckResult)).(protocol.CheckResult)
	assert.True(t, check.Valid)
}

func TestSession_ForbiddenEndingForfeitsWithoutOracle(t *testing.T) {
	dict := &stubOracle{exists: true}
	sess, recs := newTestSession(t, testRules(), dict, 2)

	recs[0].wait(t, isType(protocol.EventStartTurn))
	sess.Roll(playerID(0))
	result := rolledResult(t, recs[0])

	// When: the word ends with ん
	word := shiritori.SeedKana + strings.Repeat("あ", result-2) + "ん"
	sess.SubmitWord(playerID(0), word)

	// Then: the turn is consumed as a failure and the oracle is skipped
	check := recs[1].wait(t, isType(protocol.EventCheckResult)).(protocol.CheckResult)
	assert.False(t, check.Valid)
	assert.Zero(t, dict.callCount())

	// And: the turn passes to the next seat with positions unchanged
	state := recs[1].wait(t, func(ev any) bool {
		gs, ok := ev.(protocol.GameState)
		return ok && gs.CurrentPlayerIndex == 1
	}).(protocol.GameState)
	assert.Equal(t, 0, state.Players[0].Position)
}

func TestSession_OracleFailureForfeitsTurn(t *testing.T) {
	dict := &stubOracle{err: errors.New("weblio unreachable")}
	sess, recs := newTestSession(t, testRules(), dict, 2)

	recs[0].wait(t, isType(protocol.EventStartTurn))
	sess.Roll(playerID(0))
	result := rolledResult(t, recs[0])

	sess.SubmitWord(playerID(0), chainWord(shiritori.SeedKana, result))

	// Then: the collaborator error degrades to a failed word, not a crash
	check := recs[1].wait(t, isType(protocol.EventCheckResult)).(protocol.CheckResult)
	assert.False(t, check.Valid)

	recs[1].wait(t, func(ev any) bool {
		gs, ok := ev.(protocol.GameState)
		return ok && gs.CurrentPlayerIndex == 1
	})
}

func TestSession_DeadlineForfeitsAndAdvances(t *testing.T) {
	rules := testRules()
	rules.TurnTime = 50 * time.Millisecond

	dict := &stubOracle{exists: true}
	_, recs := newTestSession(t, rules, dict, 2)

	// Given: the active player never acts

	// Then: the deadline forfeits the turn and hands it over
	recs[0].wait(t, func(ev any) bool {
		msg, ok := ev.(protocol.ResultMessage)
		return ok && strings.Contains(msg.Body, "時間切れ")
	})

	state := recs[0].wait(t, func(ev any) bool {
		gs, ok := ev.(protocol.GameState)
		return ok && gs.CurrentPlayerIndex == 1
	}).(protocol.GameState)

	assert.Equal(t, 0, state.Players[0].Position)
	assert.Equal(t, 0, state.Players[1].Position)
}

func TestSession_RollFromNonActivePlayerRejected(t *testing.T) {
	dict := &stubOracle{exists: true}
	sess, recs := newTestSession(t, testRules(), dict, 2)

	recs[1].wait(t, isType(protocol.EventStartTurn))

	// When: the waiting player tries to roll
	sess.Roll(playerID(1))

	// Then: only that player is told off; no roll is broadcast
	recs[1].wait(t, isType(protocol.EventError))
	assert.Zero(t, recs[0].count(isType(protocol.EventRouletteResult)))
}

func TestSession_ConcurrentSubmissionsConsumeOneTurn(t *testing.T) {
	dict := &stubOracle{exists: true, delay: 50 * time.Millisecond}
	sess, recs := newTestSession(t, testRules(), dict, 2)

	recs[0].wait(t, isType(protocol.EventStartTurn))
	sess.Roll(playerID(0))
	result := rolledResult(t, recs[0])

	// When: two submissions race for the same turn
	word := chainWord(shiritori.SeedKana, result)
	sess.SubmitWord(playerID(0), word)
	sess.SubmitWord(playerID(0), word)

	// Then: exactly one becomes the authoritative move
	recs[1].wait(t, isType(protocol.EventCheckResult))
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, dict.callCount())
	assert.Equal(t, 1, recs[1].count(isType(protocol.EventCheckResult)))
}

func TestSession_GameOverWhenAllButOneFinish(t *testing.T) {
	rules := testRules()
	rules.Goal = 2 // a single accepted word wins

	dict := &stubOracle{exists: true}
	sess, recs := newTestSession(t, rules, dict, 2)

	recs[0].wait(t, isType(protocol.EventStartTurn))
	sess.Roll(playerID(0))
	result := rolledResult(t, recs[0])

	sess.SubmitWord(playerID(0), chainWord(shiritori.SeedKana, result))

	// Then: the race is over and every member learns the ranking
	for _, rec := range recs {
		over := rec.wait(t, isType(protocol.EventGameOver)).(protocol.GameOver)
		assert.Equal(t, 0, over.Winner)
		require.Len(t, over.Ranking, 2)
		assert.Equal(t, playerID(0), over.Ranking[0].ID)
	}
}

func TestSession_CountdownRunsBeforeFirstTurn(t *testing.T) {
	rules := testRules()
	rules.CountdownFrom = 1

	dict := &stubOracle{exists: true}
	_, recs := newTestSession(t, rules, dict, 2)

	// Then: the countdown ticks down to zero before the first turn opens
	recs[0].wait(t, func(ev any) bool {
		cd, ok := ev.(protocol.Countdown)
		return ok && cd.Count == 0
	})
	recs[0].wait(t, isType(protocol.EventStartTurn))
}

func TestRollValue_UniformDistribution(t *testing.T) {
	rng := rand.New(rand.NewSource(7)) //nolint:gosec // statistical test

	const samples = 70000
	counts := make(map[int]int)
	for i := 0; i < samples; i++ {
		v := rollValue(rng, 2, 8)
		require.GreaterOrEqual(t, v, 2)
		require.LessOrEqual(t, v, 8)
		counts[v]++
	}

	// Chi-square against the uniform expectation; 16.81 is the 99th
	// percentile for 6 degrees of freedom.
	expected := float64(samples) / 7
	chi := 0.0
	for v := 2; v <= 8; v++ {
		diff := float64(counts[v]) - expected
		chi += diff * diff / expected
	}

	assert.Less(t, chi, 16.81, "roll distribution is not uniform: %v", counts)
}

package registry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyedai/shiritori-sugoroku/internal/apperror"
	"github.com/dyedai/shiritori-sugoroku/internal/config"
	"github.com/dyedai/shiritori-sugoroku/internal/entity"
	"github.com/dyedai/shiritori-sugoroku/internal/protocol"
	"github.com/dyedai/shiritori-sugoroku/testing/logtest"
)

type fakePlayerRepo struct {
	mu      sync.Mutex
	players map[string]*entity.Participant
}

func newFakePlayerRepo() *fakePlayerRepo {
	return &fakePlayerRepo{players: make(map[string]*entity.Participant)}
}

func (that *fakePlayerRepo) CreateOrUpdate(_ context.Context, player *entity.Participant) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.players[player.ID] = player
	return nil
}

func (that *fakePlayerRepo) DeleteByID(_ context.Context, id string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.players, id)
	return nil
}

type fakeRoomRepo struct {
	mu    sync.Mutex
	rooms map[string]*entity.Room
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{rooms: make(map[string]*entity.Room)}
}

func (that *fakeRoomRepo) CreateOrUpdate(_ context.Context, room *entity.Room) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.rooms[room.ID] = room
	return nil
}

func (that *fakeRoomRepo) DeleteByID(_ context.Context, id string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.rooms, id)
	return nil
}

func (that *fakeRoomRepo) has(id string) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	_, ok := that.rooms[id]
	return ok
}

type fakeConn struct {
	mu     sync.Mutex
	events []any
}

func (that *fakeConn) Send(v any) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.events = append(that.events, v)
	return nil
}

func (that *fakeConn) countStartGame() int {
	that.mu.Lock()
	defer that.mu.Unlock()

	n := 0
	for _, ev := range that.events {
		if _, ok := ev.(protocol.StartGame); ok {
			n++
		}
	}
	return n
}

func (that *fakeConn) lastPlayerUpdate() (protocol.PlayerUpdate, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	for i := len(that.events) - 1; i >= 0; i-- {
		if update, ok := that.events[i].(protocol.PlayerUpdate); ok {
			return update, true
		}
	}
	return protocol.PlayerUpdate{}, false
}

type nullOracle struct{}

func (nullOracle) Exists(_ context.Context, _ string) (bool, error) {
	return true, nil
}

func testConfig(capacity int) *config.Config {
	return &config.Config{
		Game: config.Game{
			RoomCapacity:  capacity,
			Goal:          100,
			RollMin:       2,
			RollMax:       8,
			TurnTime:      time.Second,
			DisplayPause:  20 * time.Millisecond,
			CountdownFrom: 0,
			SeatOrder:     config.SeatOrderJoinOrder,
			Termination:   config.TerminationAllButOne,
			RejectRepeats: true,
		},
	}
}

func newTestRegistry(t *testing.T, capacity int) (*Registry, *fakeRoomRepo) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	roomRepo := newFakeRoomRepo()
	reg := New(ctx, logtest.New(t), testConfig(capacity), newFakePlayerRepo(), roomRepo, nullOracle{})

	return reg, roomRepo
}

func user(i int) *entity.User {
	return &entity.User{ID: "u" + string(rune('0'+i)), Name: "player" + string(rune('A'+i))}
}

func TestRegistry_JoinFillsOldestRoom(t *testing.T) {
	reg, _ := newTestRegistry(t, 4)
	ctx := context.Background()

	// Given: three players waiting
	conns := make([]*fakeConn, 4)
	var roomID string
	for i := 0; i < 3; i++ {
		conns[i] = &fakeConn{}
		room, err := reg.Join(ctx, user(i), conns[i])
		require.NoError(t, err)
		if i == 0 {
			roomID = room.ID
		} else {
			// Then: everyone lands in the same, oldest room
			assert.Equal(t, roomID, room.ID)
		}
	}

	// Then: the roster broadcast reflects every join
	update, ok := conns[0].lastPlayerUpdate()
	require.True(t, ok)
	assert.Equal(t, 3, update.PlayerCount)
	assert.Equal(t, []string{"playerA", "playerB", "playerC"}, update.Players)

	// And: no start has been announced yet
	for i := 0; i < 3; i++ {
		assert.Zero(t, conns[i].countStartGame())
	}
}

func TestRegistry_StartGameFiresExactlyOnce(t *testing.T) {
	reg, _ := newTestRegistry(t, 4)
	ctx := context.Background()

	conns := make([]*fakeConn, 4)
	for i := 0; i < 4; i++ {
		conns[i] = &fakeConn{}
		_, err := reg.Join(ctx, user(i), conns[i])
		require.NoError(t, err)
	}

	// Then: the 4th join triggers exactly one startGame per member
	for i := 0; i < 4; i++ {
		assert.Equal(t, 1, conns[i].countStartGame(), "member %d", i)
	}

	// And: every member is now routed to the same session
	sess, ok := reg.SessionFor(user(0).ID)
	require.True(t, ok)
	for i := 1; i < 4; i++ {
		other, otherOK := reg.SessionFor(user(i).ID)
		require.True(t, otherOK)
		assert.Same(t, sess, other)
	}
}

func TestRegistry_DuplicateJoinRejected(t *testing.T) {
	reg, _ := newTestRegistry(t, 4)
	ctx := context.Background()

	_, err := reg.Join(ctx, user(0), &fakeConn{})
	require.NoError(t, err)

	// When: the same identity joins again while still connected
	_, err = reg.Join(ctx, user(0), &fakeConn{})

	// Then: the duplicate is refused
	assert.ErrorIs(t, err, apperror.ErrAlreadyJoined)
}

func TestRegistry_ReconnectReattachesSeat(t *testing.T) {
	reg, _ := newTestRegistry(t, 4)
	ctx := context.Background()

	first := &fakeConn{}
	room, err := reg.Join(ctx, user(0), first)
	require.NoError(t, err)

	// Given: the connection drops but the seat stays taken
	reg.mu.Lock()
	delete(reg.waiting[0].conns, user(0).ID)
	reg.mu.Unlock()

	// When: the same identity comes back
	second := &fakeConn{}
	rejoined, err := reg.Join(ctx, user(0), second)

	// Then: the player keeps its seat instead of taking a second one
	require.NoError(t, err)
	assert.Equal(t, room.ID, rejoined.ID)
	assert.Len(t, rejoined.Members, 1)

	update, ok := second.lastPlayerUpdate()
	require.True(t, ok)
	assert.Equal(t, 1, update.PlayerCount)
}

func TestRegistry_LeaveDiscardsEmptyRoom(t *testing.T) {
	reg, roomRepo := newTestRegistry(t, 4)
	ctx := context.Background()

	room, err := reg.Join(ctx, user(0), &fakeConn{})
	require.NoError(t, err)
	require.True(t, roomRepo.has(room.ID))

	// When: the only member leaves
	reg.Leave(ctx, user(0).ID)

	// Then: the room is gone and a fresh join opens a new one
	assert.False(t, roomRepo.has(room.ID))

	fresh, err := reg.Join(ctx, user(1), &fakeConn{})
	require.NoError(t, err)
	assert.NotEqual(t, room.ID, fresh.ID)
}

func TestRegistry_LeaveBroadcastsRoster(t *testing.T) {
	reg, _ := newTestRegistry(t, 4)
	ctx := context.Background()

	stayer := &fakeConn{}
	_, err := reg.Join(ctx, user(0), stayer)
	require.NoError(t, err)
	_, err = reg.Join(ctx, user(1), &fakeConn{})
	require.NoError(t, err)

	reg.Leave(ctx, user(1).ID)

	update, ok := stayer.lastPlayerUpdate()
	require.True(t, ok)
	assert.Equal(t, 1, update.PlayerCount)
	assert.Equal(t, []string{"playerA"}, update.Players)
}

func TestRegistry_FullRoomOpensAnother(t *testing.T) {
	reg, _ := newTestRegistry(t, 2)
	ctx := context.Background()

	_, err := reg.Join(ctx, user(0), &fakeConn{})
	require.NoError(t, err)
	first, err := reg.Join(ctx, user(1), &fakeConn{})
	require.NoError(t, err)

	// When: a fifth wheel arrives after the room started
	second, err := reg.Join(ctx, user(2), &fakeConn{})
	require.NoError(t, err)

	// Then: it waits in a brand-new room
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, entity.StatusWaiting, second.Status)
}

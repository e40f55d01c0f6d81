package poll

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-online/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-online/internal/entity"
)

const (
	testApp      = "go-tic-tac-toe"
	testInterval = 10 * time.Millisecond
	waitFor      = time.Second
)

type memoryStore struct {
	mu    sync.Mutex
	games map[string]*entity.GameState
	joins map[string]*entity.JoinRequest
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		games: make(map[string]*entity.GameState),
		joins: make(map[string]*entity.JoinRequest),
	}
}

func (that *memoryStore) CreateOrUpdate(_ context.Context, game *entity.GameState) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.games[game.GameID] = game.Clone()

	return nil
}

func (that *memoryStore) GetByID(_ context.Context, id string) (*entity.GameState, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	game, ok := that.games[id]
	if !ok {
		return nil, apperror.ErrGameNotFound
	}

	return game.Clone(), nil
}

func (that *memoryStore) DeleteByID(_ context.Context, id string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.games[id]; !ok {
		return apperror.ErrGameNotFound
	}

	delete(that.games, id)

	return nil
}

func (that *memoryStore) PushJoinRequest(_ context.Context, gameID string, req *entity.JoinRequest) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.joins[gameID] = req

	return nil
}

func (that *memoryStore) PopJoinRequest(_ context.Context, gameID string) (*entity.JoinRequest, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	req := that.joins[gameID]
	delete(that.joins, gameID)

	return req, nil
}

type recorder struct {
	mu   sync.Mutex
	envs []*entity.Envelope
}

func (that *recorder) handle(_ context.Context, env *entity.Envelope) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.envs = append(that.envs, env)
}

func (that *recorder) snapshot() []*entity.Envelope {
	that.mu.Lock()
	defer that.mu.Unlock()

	return append([]*entity.Envelope(nil), that.envs...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newWaitingGame() *entity.GameState {
	return entity.NewGame("abc123xyz0", entity.PlayerInfo{ID: "p1", Name: "Alice"})
}

func TestPoller_DeliversOnVersionChange(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()

	// Given: a stored game and a poller watching it
	game := newWaitingGame()
	require.NoError(t, store.CreateOrUpdate(ctx, game))

	rec := &recorder{}
	poller := New(testLogger(), store, testApp, testInterval)
	require.NoError(t, poller.Start(ctx, game.GameID, rec.handle))
	t.Cleanup(func() { _ = poller.Close() })

	// Then: the current state is delivered once
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, waitFor, testInterval)

	time.Sleep(5 * testInterval)
	assert.Len(t, rec.snapshot(), 1)

	// When: another participant writes a newer version
	updated := game.Clone()
	require.NoError(t, updated.AcceptJoin(entity.PlayerInfo{ID: "p2", Name: "Bob"}))
	require.NoError(t, store.CreateOrUpdate(ctx, updated))

	// Then: it is delivered as a state sync
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, waitFor, testInterval)

	env := rec.snapshot()[1]
	assert.Equal(t, entity.EnvelopeStateSync, env.Type)
	assert.Equal(t, testApp, env.App)

	state, err := env.DecodeState()
	require.NoError(t, err)
	assert.Equal(t, updated.Version, state.Version)
	assert.True(t, state.IsPlaying())
}

func TestPoller_DoesNotEchoOwnWrites(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()

	rec := &recorder{}
	poller := New(testLogger(), store, testApp, testInterval)
	require.NoError(t, poller.Start(ctx, "abc123xyz0", rec.handle))
	t.Cleanup(func() { _ = poller.Close() })

	// Given: the poller publishes a state itself
	env, err := entity.NewStateSync(testApp, "p1", newWaitingGame())
	require.NoError(t, err)

	// When: it is sent
	require.NoError(t, poller.Send(ctx, env))

	// Then: the write is stored but never delivered back
	time.Sleep(10 * testInterval)
	assert.Empty(t, rec.snapshot())

	stored, err := store.GetByID(ctx, "abc123xyz0")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stored.Version)
}

func TestPoller_AdoptsOverwriteWithSameVersion(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()

	// Given: a playing game both sides have seen
	base := newWaitingGame()
	require.NoError(t, base.AcceptJoin(entity.PlayerInfo{ID: "p2", Name: "Bob"}))

	creatorRec := &recorder{}
	creator := New(testLogger(), store, testApp, testInterval)
	joiner := New(testLogger(), store, testApp, testInterval)

	publish := func(poller *Poller, sender string, state *entity.GameState) {
		env, err := entity.NewStateSync(testApp, sender, state)
		require.NoError(t, err)
		require.NoError(t, poller.Send(ctx, env))
	}

	publish(creator, "p1", base)

	require.NoError(t, creator.Start(ctx, base.GameID, creatorRec.handle))
	t.Cleanup(func() { _ = creator.Close() })

	// When: both sides chat from the same base, so both write the same version
	fromAlice := base.Clone()
	fromAlice.AppendChat(entity.ChatMessage{SenderName: "Alice", Text: "hi from alice", Timestamp: 10})

	fromBob := base.Clone()
	fromBob.AppendChat(entity.ChatMessage{SenderName: "Bob", Text: "hi from bob", Timestamp: 11})
	require.Equal(t, fromAlice.Version, fromBob.Version)

	publish(creator, "p1", fromAlice)
	publish(joiner, "p2", fromBob)

	// Then: the creator adopts what the store holds
	require.Eventually(t, func() bool { return len(creatorRec.snapshot()) == 1 }, waitFor, testInterval)

	state, err := creatorRec.snapshot()[0].DecodeState()
	require.NoError(t, err)
	require.Len(t, state.Chat, 1)
	assert.Equal(t, "hi from bob", state.Chat[0].Text)

	// and does not deliver it again
	time.Sleep(5 * testInterval)
	assert.Len(t, creatorRec.snapshot(), 1)
}

func TestPoller_JoinRequests(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()

	game := newWaitingGame()

	creatorRec, joinerRec := &recorder{}, &recorder{}

	creator := New(testLogger(), store, testApp, testInterval)
	joiner := New(testLogger(), store, testApp, testInterval)

	// Given: the creator published its waiting game
	env, err := entity.NewStateSync(testApp, "p1", game)
	require.NoError(t, err)
	require.NoError(t, creator.Send(ctx, env))

	// When: the joiner sends a join request and both sides poll
	joinEnv, err := entity.NewJoinRequest(testApp, game.GameID, entity.JoinRequest{PlayerID: "p2", PlayerName: "Bob"})
	require.NoError(t, err)
	require.NoError(t, joiner.Send(ctx, joinEnv))

	require.NoError(t, joiner.Start(ctx, game.GameID, joinerRec.handle))
	require.NoError(t, creator.Start(ctx, game.GameID, creatorRec.handle))
	t.Cleanup(func() {
		_ = creator.Close()
		_ = joiner.Close()
	})

	// Then: only the creator receives the request
	require.Eventually(t, func() bool { return len(creatorRec.snapshot()) == 1 }, waitFor, testInterval)

	received := creatorRec.snapshot()[0]
	assert.Equal(t, entity.EnvelopeJoinRequest, received.Type)
	assert.Equal(t, "p2", received.Sender)

	req, err := received.DecodeJoinRequest()
	require.NoError(t, err)
	assert.Equal(t, "Bob", req.PlayerName)

	// and the joiner only sees the waiting state
	require.Eventually(t, func() bool { return len(joinerRec.snapshot()) == 1 }, waitFor, testInterval)
	assert.Equal(t, entity.EnvelopeStateSync, joinerRec.snapshot()[0].Type)
}

func TestPoller_Lookup(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	poller := New(testLogger(), store, testApp, 0)

	t.Run("Lookup_NotFound", func(t *testing.T) {
		_, err := poller.Lookup(ctx, "missing")
		require.ErrorIs(t, err, apperror.ErrGameNotFound)
	})

	t.Run("Lookup_Found", func(t *testing.T) {
		require.NoError(t, store.CreateOrUpdate(ctx, newWaitingGame()))

		state, err := poller.Lookup(ctx, "abc123xyz0")
		require.NoError(t, err)
		assert.True(t, state.IsWaiting())
	})
}

func TestPoller_StartTwice(t *testing.T) {
	poller := New(testLogger(), newMemoryStore(), testApp, testInterval)

	require.NoError(t, poller.Start(context.Background(), "abc123xyz0", func(context.Context, *entity.Envelope) {}))
	t.Cleanup(func() { _ = poller.Close() })

	err := poller.Start(context.Background(), "abc123xyz0", func(context.Context, *entity.Envelope) {})
	require.ErrorIs(t, err, ErrAlreadyStarted)
}

func TestPoller_SendUnknownType(t *testing.T) {
	poller := New(testLogger(), newMemoryStore(), testApp, testInterval)

	err := poller.Send(context.Background(), &entity.Envelope{App: testApp, Type: "bogus"})
	require.ErrorIs(t, err, entity.ErrUnexpectedEnvelope)
}

func TestPoller_Discard(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	poller := New(testLogger(), store, testApp, testInterval)

	// Given: a stored game
	require.NoError(t, store.CreateOrUpdate(ctx, newWaitingGame()))

	// When: it is discarded twice
	require.NoError(t, poller.Discard(ctx, "abc123xyz0"))
	require.NoError(t, poller.Discard(ctx, "abc123xyz0"))

	// Then: the record is gone
	_, err := poller.Lookup(ctx, "abc123xyz0")
	require.ErrorIs(t, err, apperror.ErrGameNotFound)
}

package relay

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"github.com/rocketscienceinc/tictactoe-online/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-online/internal/entity"
	relayserver "github.com/rocketscienceinc/tictactoe-online/transport/websocket"
)

const (
	testApp    = "go-tic-tac-toe"
	testGameID = "abc123xyz0"
	waitFor    = 2 * time.Second
	tick       = 10 * time.Millisecond
)

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

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

func newRelay(t *testing.T) (*relayserver.Server, string) {
	t.Helper()

	srv := relayserver.New(testLogger())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return srv, wsURL(ts.URL)
}

func startClient(t *testing.T, url string, rec *recorder) *Client {
	t.Helper()

	client := New(testLogger(), url, testApp, time.Second, 50*time.Millisecond)
	require.NoError(t, client.Start(context.Background(), testGameID, rec.handle))
	t.Cleanup(func() { _ = client.Close() })

	return client
}

func joinEnvelope(t *testing.T, playerID string) *entity.Envelope {
	t.Helper()

	env, err := entity.NewJoinRequest(testApp, testGameID, entity.JoinRequest{PlayerID: playerID, PlayerName: playerID})
	require.NoError(t, err)

	return env
}

func TestClient_DeliversBetweenClients(t *testing.T) {
	srv, url := newRelay(t)

	// Given: two clients on the same relay
	first, second := &recorder{}, &recorder{}
	sender := startClient(t, url, first)
	startClient(t, url, second)

	require.Eventually(t, func() bool { return srv.Hub().Count() == 2 }, waitFor, tick)

	// When: one sends an envelope
	require.NoError(t, sender.Send(context.Background(), joinEnvelope(t, "p2")))

	// Then: the other receives it and the sender does not
	require.Eventually(t, func() bool { return len(second.snapshot()) == 1 }, waitFor, tick)

	got := second.snapshot()[0]
	assert.Equal(t, entity.EnvelopeJoinRequest, got.Type)
	assert.Equal(t, "p2", got.Sender)
	assert.Empty(t, first.snapshot())
}

func TestClient_DropsForeignTraffic(t *testing.T) {
	srv, url := newRelay(t)

	rec := &recorder{}
	startClient(t, url, rec)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	// Given: a raw peer sharing the relay
	raw, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close(websocket.StatusNormalClosure, "bye") })

	require.Eventually(t, func() bool { return srv.Hub().Count() == 2 }, waitFor, tick)

	// When: it writes garbage, another app's traffic, another game's traffic and a valid envelope
	frames := []string{
		`not json`,
		`{"app":"chess","type":"join_request","gameId":"abc123xyz0"}`,
		`{"app":"go-tic-tac-toe","type":"join_request","gameId":"other"}`,
		`{"app":"go-tic-tac-toe","type":"join_request","gameId":"abc123xyz0","sender":"p2"}`,
	}
	for _, frame := range frames {
		require.NoError(t, raw.Write(ctx, websocket.MessageText, []byte(frame)))
	}

	// Then: only the valid envelope is delivered
	require.Eventually(t, func() bool { return len(rec.snapshot()) == 1 }, waitFor, tick)

	time.Sleep(10 * tick)
	require.Len(t, rec.snapshot(), 1)
	assert.Equal(t, "p2", rec.snapshot()[0].Sender)
}

func TestClient_FlushesQueueInOrder(t *testing.T) {
	srv, url := newRelay(t)

	receiver := &recorder{}
	startClient(t, url, receiver)
	require.Eventually(t, func() bool { return srv.Hub().Count() == 1 }, waitFor, tick)

	// Given: envelopes sent before the client has connected
	sender := New(testLogger(), url, testApp, time.Second, 50*time.Millisecond)
	t.Cleanup(func() { _ = sender.Close() })

	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		require.NoError(t, sender.Send(context.Background(), joinEnvelope(t, id)))
	}

	// When: the client starts
	require.NoError(t, sender.Start(context.Background(), testGameID, func(context.Context, *entity.Envelope) {}))

	// Then: they arrive in send order
	require.Eventually(t, func() bool { return len(receiver.snapshot()) == len(ids) }, waitFor, tick)

	for i, env := range receiver.snapshot() {
		assert.Equal(t, ids[i], env.Sender)
	}
}

func TestClient_ConnectsWhenRelayComesUpLate(t *testing.T) {
	srv := relayserver.New(testLogger())

	// Given: a relay whose listener is not serving yet
	ts := httptest.NewUnstartedServer(srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws://" + ts.Listener.Addr().String() + "/ws"

	rec := &recorder{}
	startClient(t, url, rec)

	// When: the relay starts
	time.Sleep(5 * tick)
	ts.Start()

	// Then: the client connects
	require.Eventually(t, func() bool { return srv.Hub().Count() == 1 }, waitFor, tick)
}

func TestClient_Closed(t *testing.T) {
	_, url := newRelay(t)

	client := New(testLogger(), url, testApp, time.Second, time.Second)
	require.NoError(t, client.Close())

	err := client.Send(context.Background(), joinEnvelope(t, "p2"))
	require.ErrorIs(t, err, apperror.ErrSessionClosed)

	err = client.Start(context.Background(), testGameID, func(context.Context, *entity.Envelope) {})
	require.ErrorIs(t, err, apperror.ErrSessionClosed)
}

func TestClient_StartTwice(t *testing.T) {
	_, url := newRelay(t)

	client := startClient(t, url, &recorder{})

	err := client.Start(context.Background(), testGameID, func(context.Context, *entity.Envelope) {})
	require.ErrorIs(t, err, ErrAlreadyStarted)
}

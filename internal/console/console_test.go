package console

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-online/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-online/internal/entity"
	"github.com/rocketscienceinc/tictactoe-online/internal/usecase"
)

type mockGame struct {
	mock.Mock
}

func (that *mockGame) ClickCell(ctx context.Context, cell int) error {
	return that.Called(ctx, cell).Error(0)
}

func (that *mockGame) Reset(ctx context.Context) error {
	return that.Called(ctx).Error(0)
}

func (that *mockGame) SendChat(ctx context.Context, text string) error {
	return that.Called(ctx, text).Error(0)
}

func (that *mockGame) SendVoice(ctx context.Context, audioBase64 string) error {
	return that.Called(ctx, audioBase64).Error(0)
}

func newTestDriver(game game) (*Driver, *bytes.Buffer) {
	out := &bytes.Buffer{}
	driver := NewDriver(slog.New(slog.NewJSONHandler(io.Discard, nil)), game, NewRenderer(out, entity.PlayerX))

	return driver, out
}

func TestDriver_Run(t *testing.T) {
	ctx := context.Background()

	// Given: a game accepting every intent
	game := &mockGame{}
	game.On("ClickCell", mock.Anything, 4).Return(nil)
	game.On("SendChat", mock.Anything, "hello").Return(nil)
	game.On("Reset", mock.Anything).Return(apperror.ErrGameNotFinished)

	driver, out := newTestDriver(game)

	// When: a session of commands is typed
	input := strings.NewReader("5\n\nchat hello\nreset\nbogus\nquit\n6\n")
	require.NoError(t, driver.Run(ctx, input))

	// Then: intents reach the game in order and input after quit is ignored
	game.AssertExpectations(t)
	game.AssertNotCalled(t, "ClickCell", mock.Anything, 5)

	assert.Contains(t, out.String(), apperror.ErrGameNotFinished.Error())
	assert.Contains(t, out.String(), "unknown command")
}

func TestDriver_RunStopsAtEndOfInput(t *testing.T) {
	driver, _ := newTestDriver(&mockGame{})

	require.NoError(t, driver.Run(context.Background(), strings.NewReader("help\n")))
}

func TestDriver_SendVoice(t *testing.T) {
	ctx := context.Background()
	audio := []byte("RIFF....WAVE")

	// Given: a recording on disk
	game := &mockGame{}
	game.On("SendVoice", mock.Anything, base64.StdEncoding.EncodeToString(audio)).Return(nil)

	driver, out := newTestDriver(game)
	driver.readFile = func(name string) ([]byte, error) {
		if name == "hi.wav" {
			return audio, nil
		}

		return nil, errors.New("no such file")
	}

	// When: it is sent
	assert.False(t, driver.Execute(ctx, "voice hi.wav"))

	// Then: the game gets it base64 encoded
	game.AssertExpectations(t)

	// and a missing file is reported instead of sent
	assert.False(t, driver.Execute(ctx, "voice missing.wav"))
	assert.Contains(t, out.String(), "failed to read voice file")
}

func TestRenderer(t *testing.T) {
	state := entity.NewGame("abc123xyz0", entity.PlayerInfo{ID: "p1", Name: "Alice"})
	require.NoError(t, state.AcceptJoin(entity.PlayerInfo{ID: "p2", Name: "Bob"}))

	t.Run("YourTurn", func(t *testing.T) {
		out := &bytes.Buffer{}
		renderer := NewRenderer(out, entity.PlayerX)

		// When: a playing snapshot arrives on X's turn
		renderer.OnSnapshot(usecase.Snapshot{State: state, Scores: entity.Scores{X: 2, O: 1}})

		// Then: the board, the turn and the score are printed
		text := out.String()
		assert.Contains(t, text, "Your turn")
		assert.Contains(t, text, "X 2 : 1 O")
		for _, n := range []string{"1", "5", "9"} {
			assert.Contains(t, text, n)
		}
	})

	t.Run("OpponentTurn", func(t *testing.T) {
		renderer := NewRenderer(io.Discard, entity.PlayerO)

		status := renderer.Status(usecase.Snapshot{State: state})

		assert.Contains(t, status, "Alice (X)'s turn")
	})

	t.Run("Thinking", func(t *testing.T) {
		renderer := NewRenderer(io.Discard, "")
		thinking := state.Clone()
		require.NoError(t, thinking.MakeTurn(entity.PlayerX, 4))

		status := renderer.Status(usecase.Snapshot{State: thinking, Thinking: true})

		assert.Contains(t, status, "Bob (O) is thinking...")
	})

	t.Run("Winner", func(t *testing.T) {
		renderer := NewRenderer(io.Discard, entity.PlayerX)
		won := state.Clone()
		for _, move := range []struct {
			mark entity.Mark
			cell int
		}{{entity.PlayerX, 0}, {entity.PlayerO, 3}, {entity.PlayerX, 1}, {entity.PlayerO, 4}, {entity.PlayerX, 2}} {
			require.NoError(t, won.MakeTurn(move.mark, move.cell))
		}

		assert.Contains(t, renderer.Status(usecase.Snapshot{State: won}), "Alice (X) wins!")
	})

	t.Run("Waiting", func(t *testing.T) {
		renderer := NewRenderer(io.Discard, entity.PlayerX)
		waiting := entity.NewGame("abc123xyz0", entity.PlayerInfo{ID: "p1", Name: "Alice"})

		assert.Contains(t, renderer.Status(usecase.Snapshot{State: waiting}), "Waiting for opponent")
	})

	t.Run("Messages", func(t *testing.T) {
		out := &bytes.Buffer{}
		renderer := NewRenderer(out, entity.PlayerX)

		renderer.OnChat(entity.ChatMessage{SenderName: "Bob", Text: "hi", Timestamp: 1})
		renderer.OnVoice(entity.VoiceMessage{SenderName: "Bob", AudioBase64: "AAAA", Timestamp: 2})

		assert.Contains(t, out.String(), "Bob: hi")
		assert.Contains(t, out.String(), "Bob sent a voice message (4 bytes)")
	})
}

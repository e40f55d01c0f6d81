package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-online/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-online/internal/entity"
)

const (
	localGameID      = "local"
	defaultMoveDelay = 500 * time.Millisecond
)

type aiMover interface {
	GetMove(ctx context.Context, board entity.Board, mark entity.Mark) (int, bool)
}

// LocalGame runs a game on one device: two people taking turns, or a person
// playing X against the AI playing O.
type LocalGame struct {
	logger   *slog.Logger
	listener Listener
	ai       aiMover
	aiMark   entity.Mark
	delay    time.Duration
	players  [2]entity.PlayerInfo

	mu       sync.Mutex
	state    *entity.GameState
	scores   entity.Scores
	thinking bool
	closed   bool
	// round invalidates a pending AI move when the board it was computed for is gone
	round uint64
	timer *time.Timer

	ctx    context.Context //nolint: containedctx // lifetime of the game
	cancel context.CancelFunc
}

// NewLocalGame - with a nil ai both sides are played locally.
func NewLocalGame(logger *slog.Logger, listener Listener, ai aiMover, first, second entity.PlayerInfo, delay time.Duration) *LocalGame {
	if delay <= 0 {
		delay = defaultMoveDelay
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &LocalGame{
		logger:   logger.With("component", "local_game"),
		listener: listener,
		ai:       ai,
		aiMark:   entity.PlayerO,
		delay:    delay,
		players:  [2]entity.PlayerInfo{first, second},
		state:    entity.NewLocalGame(localGameID, first, second),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (that *LocalGame) Start(_ context.Context) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return apperror.ErrSessionClosed
	}

	that.notify()

	return nil
}

// WaitStarted - a local game is playing from the start.
func (that *LocalGame) WaitStarted(_ context.Context) error {
	return nil
}

func (that *LocalGame) ClickCell(_ context.Context, cell int) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return apperror.ErrSessionClosed
	}

	if that.thinking {
		return apperror.ErrAIMovePending
	}

	mark := that.state.CurrentPlayer
	if that.ai != nil && mark == that.aiMark {
		return apperror.ErrNotYourTurn
	}

	if err := that.state.MakeTurn(mark, cell); err != nil {
		return fmt.Errorf("move rejected: %w", err)
	}

	that.afterMove()

	if that.ai != nil && that.state.IsPlaying() && that.state.CurrentPlayer == that.aiMark {
		that.scheduleAIMove()
	}

	that.notify()

	return nil
}

// Reset - starts a new round at any time and cancels a pending AI move.
func (that *LocalGame) Reset(_ context.Context) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return apperror.ErrSessionClosed
	}

	that.cancelAIMove()
	that.state = entity.NewLocalGame(localGameID, that.players[0], that.players[1])

	that.notify()

	return nil
}

func (that *LocalGame) SendChat(context.Context, string) error {
	return apperror.ErrChatUnavailable
}

func (that *LocalGame) SendVoice(context.Context, string) error {
	return apperror.ErrChatUnavailable
}

func (that *LocalGame) State() *entity.GameState {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.state.Clone()
}

func (that *LocalGame) Scores() entity.Scores {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.scores
}

func (that *LocalGame) Thinking() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.thinking
}

func (that *LocalGame) Close() error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return nil
	}

	that.closed = true
	that.cancelAIMove()
	that.cancel()

	return nil
}

func (that *LocalGame) scheduleAIMove() {
	that.thinking = true
	that.round++

	round := that.round
	board := that.state.Board

	that.timer = time.AfterFunc(that.delay, func() {
		that.playAIMove(round, board)
	})
}

func (that *LocalGame) cancelAIMove() {
	that.round++
	that.thinking = false

	if that.timer != nil {
		that.timer.Stop()
		that.timer = nil
	}
}

// playAIMove - asks the AI without holding the lock, then applies the answer
// only if the round is still the one it was asked about.
func (that *LocalGame) playAIMove(round uint64, board entity.Board) {
	log := that.logger.With("method", "playAIMove")

	move, ok := that.ai.GetMove(that.ctx, board, that.aiMark)

	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed || round != that.round {
		return
	}

	that.thinking = false
	that.timer = nil

	if ok {
		if err := that.state.MakeTurn(that.aiMark, move); err != nil {
			log.Error("ai move rejected", "move", move, "error", err)
		} else {
			that.afterMove()
		}
	}

	that.notify()
}

func (that *LocalGame) afterMove() {
	if that.state.IsFinished() {
		that.scores.Record(that.state.WinnerInfo)
	}
}

func (that *LocalGame) notify() {
	that.listener.OnSnapshot(Snapshot{
		State:    that.state.Clone(),
		Scores:   that.scores,
		Thinking: that.thinking,
	})
}

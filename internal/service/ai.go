package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/rocketscienceinc/tictactoe-online/internal/entity"
)

var (
	ErrNoAvailableMoves = errors.New("no available moves")
	ErrIllegalAIMove    = errors.New("ai proposed an illegal move")
)

// MoveGenerator asks an external model for a move. The answer is not trusted.
type MoveGenerator interface {
	GenerateMove(ctx context.Context, board entity.Board, mark entity.Mark) (int, error)
}

type AIService interface {
	// GetMove - returns a legal cell for mark, or false when the board is full.
	GetMove(ctx context.Context, board entity.Board, mark entity.Mark) (int, bool)
}

type aiService struct {
	logger    *slog.Logger
	generator MoveGenerator
	timeout   time.Duration
}

// NewAIService - a nil generator always plays random moves.
func NewAIService(logger *slog.Logger, generator MoveGenerator, timeout time.Duration) AIService {
	return &aiService{
		logger:    logger.With("component", "ai"),
		generator: generator,
		timeout:   timeout,
	}
}

func (that *aiService) GetMove(ctx context.Context, board entity.Board, mark entity.Mark) (int, bool) {
	log := that.logger.With("method", "GetMove")

	availableCells := board.EmptyCells()
	if len(availableCells) == 0 {
		return -1, false
	}

	move, err := that.askGenerator(ctx, board, mark)
	if err == nil {
		return move, true
	}

	log.Warn("ai move generation failed, falling back to random move", "error", err)

	return availableCells[rand.Intn(len(availableCells))], true //nolint: gosec // it's ok
}

func (that *aiService) askGenerator(ctx context.Context, board entity.Board, mark entity.Mark) (int, error) {
	if that.generator == nil {
		return -1, errors.New("no move generator configured")
	}

	if that.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, that.timeout)
		defer cancel()
	}

	move, err := that.generator.GenerateMove(ctx, board, mark)
	if err != nil {
		return -1, fmt.Errorf("failed to generate move: %w", err)
	}

	if !entity.IsValidCell(move) || board[move] != entity.EmptyCell {
		return -1, fmt.Errorf("%w: %d", ErrIllegalAIMove, move)
	}

	return move, nil
}

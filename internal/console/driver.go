package console

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

type game interface {
	ClickCell(ctx context.Context, cell int) error
	Reset(ctx context.Context) error
	SendChat(ctx context.Context, text string) error
	SendVoice(ctx context.Context, audioBase64 string) error
}

// Driver feeds typed commands into a game.
type Driver struct {
	logger   *slog.Logger
	game     game
	renderer *Renderer
	readFile func(name string) ([]byte, error)
}

func NewDriver(logger *slog.Logger, game game, renderer *Renderer) *Driver {
	return &Driver{
		logger:   logger.With("component", "console"),
		game:     game,
		renderer: renderer,
		readFile: os.ReadFile,
	}
}

// Run - reads commands until quit, end of input or ctx is done.
func (that *Driver) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}

		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("failed to read input: %w", err)
					}
				default:
				}

				return nil
			}

			if quit := that.Execute(ctx, line); quit {
				return nil
			}
		}
	}
}

// Execute - runs one input line and reports whether the user asked to leave.
func (that *Driver) Execute(ctx context.Context, line string) bool {
	cmd, err := ParseCommand(line)
	if errors.Is(err, ErrEmptyCommand) {
		return false
	}

	if err != nil {
		that.renderer.Message("! %v (type help)", err)
		return false
	}

	switch cmd.Kind {
	case CommandMove:
		err = that.game.ClickCell(ctx, cmd.Cell)
	case CommandChat:
		err = that.game.SendChat(ctx, cmd.Text)
	case CommandVoice:
		err = that.sendVoice(ctx, cmd.Text)
	case CommandReset:
		err = that.game.Reset(ctx)
	case CommandHelp:
		that.renderer.Message(helpText)
	case CommandQuit:
		return true
	}

	if err != nil {
		that.logger.Debug("command rejected", "command", string(cmd.Kind), "error", err)
		that.renderer.Message("! %v", err)
	}

	return false
}

func (that *Driver) sendVoice(ctx context.Context, path string) error {
	audio, err := that.readFile(path)
	if err != nil {
		return fmt.Errorf("failed to read voice file: %w", err)
	}

	return that.game.SendVoice(ctx, base64.StdEncoding.EncodeToString(audio))
}

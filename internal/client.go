package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/rocketscienceinc/tictactoe-online/internal/config"
	"github.com/rocketscienceinc/tictactoe-online/internal/console"
	"github.com/rocketscienceinc/tictactoe-online/internal/entity"
	"github.com/rocketscienceinc/tictactoe-online/internal/repository"
	"github.com/rocketscienceinc/tictactoe-online/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-online/internal/service"
	"github.com/rocketscienceinc/tictactoe-online/internal/session"
	"github.com/rocketscienceinc/tictactoe-online/internal/transport"
	"github.com/rocketscienceinc/tictactoe-online/internal/transport/poll"
	"github.com/rocketscienceinc/tictactoe-online/internal/transport/relay"
	"github.com/rocketscienceinc/tictactoe-online/internal/usecase"
)

var (
	ErrAddrNotFound     = errors.New("redis address string is empty")
	ErrUnknownMode      = errors.New("unknown game mode")
	ErrUnknownTransport = errors.New("unknown transport")
	ErrUnknownBackend   = errors.New("unknown poll backend")
)

const (
	secondLocalPlayer = "Player 2"
	aiPlayerName      = "Gemini AI"
)

// game is what the console drives, online or not.
type game interface {
	Start(ctx context.Context) error
	WaitStarted(ctx context.Context) error
	ClickCell(ctx context.Context, cell int) error
	Reset(ctx context.Context) error
	SendChat(ctx context.Context, text string) error
	SendVoice(ctx context.Context, audioBase64 string) error
	Close() error
}

// RunClient - plays one game in the terminal in the configured mode.
func RunClient(logger *slog.Logger, conf *config.Config, in io.Reader, out io.Writer) error {
	log := logger.With("component", "client")

	ctx, cancel := signalContext(log)
	defer cancel()

	var (
		g        game
		renderer *console.Renderer
		err      error
	)

	switch conf.Client.Mode {
	case config.ModeLocal:
		renderer = console.NewRenderer(out, "")
		g = usecase.NewLocalGame(logger, renderer, nil, localPlayer(conf.Client.Name), entity.PlayerInfo{Name: secondLocalPlayer}, conf.AI.MoveDelay)
	case config.ModeAI:
		renderer = console.NewRenderer(out, entity.PlayerX)
		g = usecase.NewLocalGame(logger, renderer, newAIService(ctx, logger, conf), localPlayer(conf.Client.Name), entity.PlayerInfo{Name: aiPlayerName}, conf.AI.MoveDelay)
	case config.ModeOnline:
		g, renderer, err = newOnlineGame(ctx, logger, conf, out)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMode, conf.Client.Mode)
	}

	defer func() {
		if closeErr := g.Close(); closeErr != nil {
			log.Error("failed to close game", "error", closeErr)
		}
	}()

	if err = g.Start(ctx); err != nil {
		return fmt.Errorf("failed to start game: %w", err)
	}

	if conf.Client.Mode == config.ModeOnline && conf.Client.Join != "" {
		if err = g.WaitStarted(ctx); err != nil {
			return fmt.Errorf("failed to join game: %w", err)
		}
	}

	renderer.Message("type help for commands")

	if err = console.NewDriver(logger, g, renderer).Run(ctx, in); err != nil {
		return fmt.Errorf("console stopped: %w", err)
	}

	return nil
}

func localPlayer(name string) entity.PlayerInfo {
	return entity.PlayerInfo{ID: session.NewParticipantID(), Name: name}
}

func newAIService(ctx context.Context, logger *slog.Logger, conf *config.Config) service.AIService {
	if conf.AI.APIKey == "" {
		logger.Warn("GEMINI_API_KEY is not set, the AI plays random moves")
		return service.NewAIService(logger, nil, conf.AI.Timeout)
	}

	generator, err := service.NewGeminiGenerator(ctx, conf.AI.APIKey, conf.AI.Model, conf.AI.Temperature)
	if err != nil {
		logger.Warn("gemini is unavailable, the AI plays random moves", "error", err)
		return service.NewAIService(logger, nil, conf.AI.Timeout)
	}

	return service.NewAIService(logger, generator, conf.AI.Timeout)
}

func newOnlineGame(ctx context.Context, logger *slog.Logger, conf *config.Config, out io.Writer) (*usecase.Synchronizer, *console.Renderer, error) {
	strategy, directory, err := newTransport(ctx, logger, conf)
	if err != nil {
		return nil, nil, err
	}

	manager := session.NewManager(logger, conf.Client.BaseURL, directory)

	var (
		sess  *session.Session
		state *entity.GameState
	)

	if conf.Client.Join != "" {
		sess, state, err = manager.Join(ctx, conf.Client.Join, conf.Client.Name)
	} else {
		sess, state, err = manager.Create(conf.Client.Name)
	}

	if err != nil {
		_ = strategy.Close()
		return nil, nil, fmt.Errorf("failed to open session: %w", err)
	}

	renderer := console.NewRenderer(out, sess.Role)

	if sess.IsCreator() {
		renderer.Message("Share this link with your opponent:\n  %s", sess.Locator)

		if conf.Client.QRPath != "" {
			writeQRCode(logger, renderer, sess, conf.Client.QRPath)
		}
	}

	syncer := usecase.NewSynchronizer(logger, strategy, sess, state, renderer, usecase.SyncOptions{
		App:         conf.AppTag,
		JoinRetry:   conf.Client.JoinRetry,
		JoinTimeout: conf.Client.JoinTimeout,
	})

	return syncer, renderer, nil
}

// newTransport - directory is nil unless the transport can read the shared record.
func newTransport(ctx context.Context, logger *slog.Logger, conf *config.Config) (transport.Strategy, transport.Directory, error) {
	switch conf.Client.Transport {
	case config.TransportRelay:
		return relay.New(logger, conf.Relay.URL, conf.AppTag, conf.Relay.WriteTimeout, conf.Relay.MaxReconnectGap), nil, nil
	case config.TransportPoll:
		store, err := newGameStore(ctx, conf)
		if err != nil {
			return nil, nil, err
		}

		poller := poll.New(logger, store, conf.AppTag, conf.Poll.Interval)

		return poller, poller, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownTransport, conf.Client.Transport)
	}
}

func newGameStore(ctx context.Context, conf *config.Config) (repository.GameRepository, error) {
	switch conf.Poll.Backend {
	case config.BackendRedis:
		redisAddrString := conf.Redis.GetRedisAddr()
		if redisAddrString == "" {
			return nil, ErrAddrNotFound
		}

		redisStorage, err := storage.New(ctx, redisAddrString)
		if err != nil {
			return nil, fmt.Errorf("could not connect to redis storage: %w", err)
		}

		return repository.NewGameRepository(redisStorage, conf.Poll.GameTTL), nil
	case config.BackendDynamo:
		db, err := storage.NewDynamo(conf.Dynamo.Region, conf.Dynamo.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("could not create dynamo client: %w", err)
		}

		return repository.NewDynamoGameRepository(db, conf.Dynamo.TableName, conf.Poll.GameTTL), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, conf.Poll.Backend)
	}
}

func writeQRCode(logger *slog.Logger, renderer *console.Renderer, sess *session.Session, path string) {
	png, err := sess.QRCode(0)
	if err != nil {
		logger.Error("failed to render qr code", "error", err)
		return
	}

	if err = os.WriteFile(path, png, 0o600); err != nil {
		logger.Error("failed to save qr code", "path", path, "error", err)
		return
	}

	renderer.Message("QR code saved to %s", path)
}

// Package poll implements the transport strategy that exchanges state through a
// shared keyed store instead of a live connection.
package poll

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/rocketscienceinc/tictactoe-online/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-online/internal/entity"
	"github.com/rocketscienceinc/tictactoe-online/internal/transport"
)

const defaultInterval = time.Second

var ErrAlreadyStarted = errors.New("poller already started")

type gameStore interface {
	CreateOrUpdate(ctx context.Context, game *entity.GameState) error
	GetByID(ctx context.Context, id string) (*entity.GameState, error)
	DeleteByID(ctx context.Context, id string) error
	PushJoinRequest(ctx context.Context, gameID string, req *entity.JoinRequest) error
	PopJoinRequest(ctx context.Context, gameID string) (*entity.JoinRequest, error)
}

type Poller struct {
	logger   *slog.Logger
	store    gameStore
	app      string
	interval time.Duration

	mu     sync.Mutex
	gameID string
	// last is the revision most recently read or written by this side
	last revision
	// joining is set once this side pushed a join request; it then leaves the
	// request key to the creator.
	joining bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(logger *slog.Logger, store gameStore, app string, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Poller{
		logger:   logger.With("component", "poll"),
		store:    store,
		app:      app,
		interval: interval,
	}
}

var (
	_ transport.Strategy  = (*Poller)(nil)
	_ transport.Directory = (*Poller)(nil)
	_ transport.Discarder = (*Poller)(nil)
)

// revision tells two stored states apart. Both sides may write the same version
// from the same base, so the version alone is not enough.
type revision struct {
	version uint64
	digest  uint64
}

func revisionOf(state *entity.GameState) (revision, error) {
	// Clone normalizes empty collections so that a stored copy hashes like the original
	data, err := json.Marshal(state.Clone())
	if err != nil {
		return revision{}, fmt.Errorf("failed to marshal game state: %w", err)
	}

	return revision{version: state.Version, digest: xxhash.Sum64(data)}, nil
}

func (that *Poller) Start(ctx context.Context, gameID string, handler transport.Handler) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.cancel != nil {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	that.cancel = cancel
	that.gameID = gameID

	that.wg.Add(1)

	go func() {
		defer that.wg.Done()

		that.loop(ctx, gameID, handler)
	}()

	return nil
}

func (that *Poller) loop(ctx context.Context, gameID string, handler transport.Handler) {
	log := that.logger.With("method", "loop", "game_id", gameID)

	ticker := time.NewTicker(that.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("poller stopped")
			return
		case <-ticker.C:
			that.poll(ctx, log, gameID, handler)
		}
	}
}

func (that *Poller) poll(ctx context.Context, log *slog.Logger, gameID string, handler transport.Handler) {
	if env := that.pollState(ctx, log, gameID); env != nil {
		handler(ctx, env)
	}

	if env := that.pollJoin(ctx, log, gameID); env != nil {
		handler(ctx, env)
	}
}

func (that *Poller) pollState(ctx context.Context, log *slog.Logger, gameID string) *entity.Envelope {
	state, err := that.store.GetByID(ctx, gameID)
	if errors.Is(err, apperror.ErrGameNotFound) {
		return nil
	}

	if err != nil {
		if ctx.Err() == nil {
			log.Warn("failed to read game", "error", err)
		}

		return nil
	}

	rev, err := revisionOf(state)
	if err != nil {
		log.Error("failed to compute revision", "error", err)
		return nil
	}

	that.mu.Lock()
	if rev == that.last {
		that.mu.Unlock()
		return nil
	}
	that.last = rev
	that.mu.Unlock()

	env, err := entity.NewStateSync(that.app, "", state)
	if err != nil {
		log.Error("failed to wrap game state", "error", err)
		return nil
	}

	return env
}

func (that *Poller) pollJoin(ctx context.Context, log *slog.Logger, gameID string) *entity.Envelope {
	that.mu.Lock()
	joining := that.joining
	that.mu.Unlock()

	if joining {
		return nil
	}

	req, err := that.store.PopJoinRequest(ctx, gameID)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("failed to pop join request", "error", err)
		}

		return nil
	}

	if req == nil {
		return nil
	}

	env, err := entity.NewJoinRequest(that.app, gameID, *req)
	if err != nil {
		log.Error("failed to wrap join request", "error", err)
		return nil
	}

	return env
}

func (that *Poller) Send(ctx context.Context, env *entity.Envelope) error {
	switch env.Type {
	case entity.EnvelopeStateSync:
		state, err := env.DecodeState()
		if err != nil {
			return err
		}

		rev, err := revisionOf(state)
		if err != nil {
			return err
		}

		if err = that.store.CreateOrUpdate(ctx, state); err != nil {
			return fmt.Errorf("failed to publish game state: %w", err)
		}

		// own writes must not come back as remote updates
		that.mu.Lock()
		that.last = rev
		that.mu.Unlock()

		return nil
	case entity.EnvelopeJoinRequest:
		req, err := env.DecodeJoinRequest()
		if err != nil {
			return err
		}

		that.mu.Lock()
		that.joining = true
		that.mu.Unlock()

		if err = that.store.PushJoinRequest(ctx, env.GameID, req); err != nil {
			return fmt.Errorf("failed to publish join request: %w", err)
		}

		return nil
	default:
		return fmt.Errorf("%w: %s", entity.ErrUnexpectedEnvelope, env.Type)
	}
}

// Lookup - reads the shared record directly, so a joiner can fail fast.
func (that *Poller) Lookup(ctx context.Context, gameID string) (*entity.GameState, error) {
	state, err := that.store.GetByID(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up game: %w", err)
	}

	return state, nil
}

// Discard - deletes the shared record. A game that is already gone is not an error.
func (that *Poller) Discard(ctx context.Context, gameID string) error {
	if err := that.store.DeleteByID(ctx, gameID); err != nil && !errors.Is(err, apperror.ErrGameNotFound) {
		return fmt.Errorf("failed to discard game: %w", err)
	}

	return nil
}

func (that *Poller) Close() error {
	that.mu.Lock()
	cancel := that.cancel
	that.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	that.wg.Wait()

	return nil
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-online/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-online/internal/entity"
	"github.com/rocketscienceinc/tictactoe-online/internal/session"
	"github.com/rocketscienceinc/tictactoe-online/internal/transport"
)

const (
	defaultJoinRetry   = 3 * time.Second
	defaultJoinTimeout = 30 * time.Second
	discardTimeout     = 5 * time.Second
)

type SyncOptions struct {
	App         string
	JoinRetry   time.Duration
	JoinTimeout time.Duration
}

// Synchronizer keeps one online game consistent with the other participant.
// Every local intent and every inbound envelope is applied under one lock;
// each accepted change is broadcast as the full state.
type Synchronizer struct {
	logger    *slog.Logger
	transport transport.Strategy
	listener  Listener
	session   *session.Session
	opts      SyncOptions
	now       func() time.Time

	mu       sync.Mutex
	state    *entity.GameState
	scores   entity.Scores
	started  bool
	closed   bool
	accepted bool
	joinErr  error
	ready    chan struct{}
	isReady  bool

	chatSeen  int64
	voiceSeen int64
	stamps    stamper

	ctx    context.Context //nolint: containedctx // lifetime of the session
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSynchronizer - initial is the waiting state for a creator or the provisional one for a joiner.
func NewSynchronizer(
	logger *slog.Logger,
	strategy transport.Strategy,
	sess *session.Session,
	initial *entity.GameState,
	listener Listener,
	opts SyncOptions,
) *Synchronizer {
	if opts.JoinRetry <= 0 {
		opts.JoinRetry = defaultJoinRetry
	}

	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = defaultJoinTimeout
	}

	return &Synchronizer{
		logger:    logger.With("component", "synchronizer", "game_id", sess.GameID, "role", string(sess.Role)),
		transport: strategy,
		listener:  listener,
		session:   sess,
		opts:      opts,
		now:       time.Now,
		state:     initial.Clone(),
		ready:     make(chan struct{}),
		accepted:  sess.IsCreator(),
	}
}

// Start - connects the transport and announces this participant.
func (that *Synchronizer) Start(ctx context.Context) error {
	log := that.logger.With("method", "Start")

	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return apperror.ErrSessionClosed
	}

	if that.started {
		return apperror.ErrAlreadyStarted
	}

	that.ctx, that.cancel = context.WithCancel(ctx)

	if err := that.transport.Start(that.ctx, that.session.GameID, that.HandleEnvelope); err != nil {
		that.cancel()
		return fmt.Errorf("failed to start transport: %w", err)
	}

	that.started = true

	if that.session.IsCreator() {
		that.broadcast()
		that.notify()

		log.Info("waiting for opponent")

		return nil
	}

	that.sendJoinRequest()
	that.notify()

	that.wg.Add(1)

	go func() {
		defer that.wg.Done()

		that.joinLoop(that.ctx)
	}()

	log.Info("join request sent")

	return nil
}

// joinLoop - repeats the join request until the creator answers or the timeout passes.
func (that *Synchronizer) joinLoop(ctx context.Context) {
	retry := time.NewTicker(that.opts.JoinRetry)
	defer retry.Stop()

	timeout := time.NewTimer(that.opts.JoinTimeout)
	defer timeout.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-that.ready:
			return
		case <-timeout.C:
			that.mu.Lock()
			if !that.accepted {
				that.fail(fmt.Errorf("%w: no answer for game id %s", apperror.ErrGameNotFound, that.session.GameID))
			}
			that.mu.Unlock()

			return
		case <-retry.C:
			that.mu.Lock()
			if !that.accepted && that.joinErr == nil && !that.closed {
				that.sendJoinRequest()
			}
			that.mu.Unlock()
		}
	}
}

// WaitStarted - blocks until the game is playing or joining failed.
func (that *Synchronizer) WaitStarted(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("stopped waiting for opponent: %w", ctx.Err())
	case <-that.ready:
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	return that.joinErr
}

// ClickCell - applies a local move optimistically and broadcasts it.
func (that *Synchronizer) ClickCell(_ context.Context, cell int) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.confirmActive(); err != nil {
		return err
	}

	if err := that.state.MakeTurn(that.session.Role, cell); err != nil {
		return fmt.Errorf("move rejected: %w", err)
	}

	if that.state.IsFinished() {
		that.scores.Record(that.state.WinnerInfo)
	}

	that.broadcast()
	that.notify()

	return nil
}

// Reset - starts the next round after a finished one.
func (that *Synchronizer) Reset(_ context.Context) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.confirmActive(); err != nil {
		return err
	}

	next, err := that.state.Reset()
	if err != nil {
		return fmt.Errorf("reset rejected: %w", err)
	}

	that.state = next

	that.broadcast()
	that.notify()

	return nil
}

func (that *Synchronizer) SendChat(_ context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.confirmCanTalk(); err != nil {
		return err
	}

	msg := entity.ChatMessage{
		SenderName: that.session.Self.Name,
		Text:       text,
		Timestamp:  that.stamps.next(that.now().UnixMilli()),
	}

	that.state.AppendChat(msg)
	that.chatSeen = max(that.chatSeen, msg.Timestamp)
	that.listener.OnChat(msg)

	that.broadcast()
	that.notify()

	return nil
}

func (that *Synchronizer) SendVoice(_ context.Context, audioBase64 string) error {
	if audioBase64 == "" {
		return nil
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if err := that.confirmCanTalk(); err != nil {
		return err
	}

	msg := entity.VoiceMessage{
		SenderName:  that.session.Self.Name,
		AudioBase64: audioBase64,
		Timestamp:   that.stamps.next(that.now().UnixMilli()),
	}

	that.state.AppendVoice(msg)
	that.voiceSeen = max(that.voiceSeen, msg.Timestamp)
	that.listener.OnVoice(msg)

	that.broadcast()
	that.notify()

	return nil
}

// HandleEnvelope - applies one inbound envelope. Anything that does not belong
// to this game is dropped without an error.
func (that *Synchronizer) HandleEnvelope(_ context.Context, env *entity.Envelope) {
	log := that.logger.With("method", "HandleEnvelope")

	if env == nil || env.App != that.opts.App || env.GameID != that.session.GameID {
		return
	}

	if env.Sender != "" && env.Sender == that.session.Self.ID {
		return
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed || !that.started {
		return
	}

	switch env.Type {
	case entity.EnvelopeJoinRequest:
		req, err := env.DecodeJoinRequest()
		if err != nil {
			log.Debug("dropping malformed join request", "error", err)
			return
		}

		that.applyJoinRequest(req)
	case entity.EnvelopeStateSync:
		state, err := env.DecodeState()
		if err != nil {
			log.Debug("dropping malformed state", "error", err)
			return
		}

		that.applyStateSync(state)
	default:
		log.Debug("dropping unknown envelope", "type", env.Type)
	}
}

func (that *Synchronizer) applyJoinRequest(req *entity.JoinRequest) {
	log := that.logger.With("method", "applyJoinRequest", "player_id", req.PlayerID)

	if !that.session.IsCreator() || req.PlayerID == "" {
		return
	}

	if joined := that.state.Players[1]; joined != nil {
		// the joiner missed our answer, repeat it
		if joined.ID == req.PlayerID {
			that.broadcast()
		}

		return
	}

	if err := that.state.AcceptJoin(entity.PlayerInfo{ID: req.PlayerID, Name: req.PlayerName}); err != nil {
		log.Debug("join request ignored", "error", err)
		return
	}

	log.Info("opponent joined", "name", req.PlayerName)

	that.markReady()
	that.broadcast()
	that.notify()
}

func (that *Synchronizer) applyStateSync(incoming *entity.GameState) {
	log := that.logger.With("method", "applyStateSync", "version", incoming.Version)

	if incoming.GameID != that.session.GameID {
		return
	}

	if err := incoming.Validate(); err != nil {
		log.Debug("dropping invalid state", "error", err)
		return
	}

	if !that.accepted {
		opponent := incoming.Players[1]
		if opponent == nil {
			// creator has not processed our request yet
			return
		}

		if opponent.ID != that.session.Self.ID {
			that.fail(fmt.Errorf("%w: game id %s", apperror.ErrGameAlreadyStarted, that.session.GameID))
			return
		}

		that.accepted = true

		log.Info("join accepted")
	}

	if own := incoming.PlayerByMark(that.session.Role); own == nil || own.ID != that.session.Self.ID {
		log.Debug("dropping state of another session")
		return
	}

	previous := that.state
	that.state = incoming

	if incoming.IsFinished() && !previous.IsFinished() {
		that.scores.Record(incoming.WinnerInfo)
	}

	that.surfaceMessages()

	if !incoming.IsWaiting() {
		that.markReady()
	}

	that.notify()
}

// surfaceMessages - reports the chat and voice entries newer than what was already seen.
func (that *Synchronizer) surfaceMessages() {
	chatSeen := that.chatSeen
	for _, msg := range that.state.Chat {
		if msg.Timestamp > that.chatSeen {
			that.listener.OnChat(msg)
		}

		chatSeen = max(chatSeen, msg.Timestamp)
	}
	that.chatSeen = chatSeen

	voiceSeen := that.voiceSeen
	for _, msg := range that.state.VoiceMessages {
		if msg.Timestamp > that.voiceSeen {
			that.listener.OnVoice(msg)
		}

		voiceSeen = max(voiceSeen, msg.Timestamp)
	}
	that.voiceSeen = voiceSeen

	that.stamps.observe(max(chatSeen, voiceSeen))
}

func (that *Synchronizer) confirmActive() error {
	if that.closed {
		return apperror.ErrSessionClosed
	}

	if !that.started || !that.accepted {
		return apperror.ErrGameIsNotStarted
	}

	return nil
}

func (that *Synchronizer) confirmCanTalk() error {
	if err := that.confirmActive(); err != nil {
		return err
	}

	if that.joinErr != nil {
		return that.joinErr
	}

	return nil
}

func (that *Synchronizer) sendJoinRequest() {
	env, err := entity.NewJoinRequest(that.opts.App, that.session.GameID, entity.JoinRequest{
		PlayerID:   that.session.Self.ID,
		PlayerName: that.session.Self.Name,
	})
	if err != nil {
		that.logger.Error("failed to build join request", "error", err)
		return
	}

	that.send(env)
}

func (that *Synchronizer) broadcast() {
	env, err := entity.NewStateSync(that.opts.App, that.session.Self.ID, that.state)
	if err != nil {
		that.logger.Error("failed to build state sync", "error", err)
		return
	}

	that.send(env)
}

// send - transport failures are logged; the next broadcast carries the full state anyway.
func (that *Synchronizer) send(env *entity.Envelope) {
	if err := that.transport.Send(that.ctx, env); err != nil && !errors.Is(err, context.Canceled) {
		that.logger.Warn("failed to send envelope", "type", env.Type, "error", err)
	}
}

func (that *Synchronizer) notify() {
	that.listener.OnSnapshot(Snapshot{
		State:  that.state.Clone(),
		Scores: that.scores,
	})
}

func (that *Synchronizer) markReady() {
	if !that.isReady {
		that.isReady = true
		close(that.ready)
	}
}

func (that *Synchronizer) fail(err error) {
	if that.isReady {
		return
	}

	that.logger.Warn("joining failed", "error", err)

	that.joinErr = err
	that.markReady()
}

// State - returns a copy of the current state.
func (that *Synchronizer) State() *entity.GameState {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.state.Clone()
}

func (that *Synchronizer) Phase() Phase {
	that.mu.Lock()
	defer that.mu.Unlock()

	if !that.started {
		return PhaseUninitialized
	}

	return phaseOf(that.state)
}

func (that *Synchronizer) Scores() entity.Scores {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.scores
}

func (that *Synchronizer) Session() *session.Session {
	return that.session
}

// Close - stops the join retries and the transport. It is safe to call more than once.
// A creator leaving a game that is not in progress also discards its shared record.
func (that *Synchronizer) Close() error {
	that.mu.Lock()
	if that.closed {
		that.mu.Unlock()
		return nil
	}

	that.closed = true
	cancel := that.cancel
	discard := that.started && that.session.IsCreator() && !that.state.IsPlaying()
	that.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	that.wg.Wait()

	if err := that.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}

	if discard {
		that.discard()
	}

	return nil
}

func (that *Synchronizer) discard() {
	discarder, ok := that.transport.(transport.Discarder)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), discardTimeout)
	defer cancel()

	if err := discarder.Discard(ctx, that.session.GameID); err != nil {
		that.logger.Warn("failed to discard game", "error", err)
		return
	}

	that.logger.Info("game discarded")
}

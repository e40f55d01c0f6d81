// Package relay implements the transport strategy that talks through a public
// WebSocket broadcast channel.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"nhooyr.io/websocket"

	"github.com/rocketscienceinc/tictactoe-online/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-online/internal/entity"
	"github.com/rocketscienceinc/tictactoe-online/internal/transport"
)

const (
	defaultWriteTimeout    = 10 * time.Second
	defaultMaxReconnectGap = 30 * time.Second
	readLimit              = 4 << 20
)

var ErrAlreadyStarted = errors.New("relay client already started")

type Client struct {
	logger          *slog.Logger
	url             string
	app             string
	writeTimeout    time.Duration
	maxReconnectGap time.Duration

	mu      sync.Mutex
	queue   [][]byte
	closed  bool
	started bool
	wake    chan struct{}

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New - maxReconnectGap caps the wait between reconnect attempts.
func New(logger *slog.Logger, url, app string, writeTimeout, maxReconnectGap time.Duration) *Client {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	if maxReconnectGap <= 0 {
		maxReconnectGap = defaultMaxReconnectGap
	}

	return &Client{
		logger:          logger.With("component", "relay"),
		url:             url,
		app:             app,
		writeTimeout:    writeTimeout,
		maxReconnectGap: maxReconnectGap,
		wake:            make(chan struct{}, 1),
	}
}

var _ transport.Strategy = (*Client)(nil)

func (that *Client) Start(ctx context.Context, gameID string, handler transport.Handler) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.closed {
		return apperror.ErrSessionClosed
	}

	if that.started {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	that.cancel = cancel
	that.started = true

	that.wg.Add(1)

	go func() {
		defer that.wg.Done()

		that.run(ctx, gameID, handler)
	}()

	return nil
}

// Send - queues env; queued envelopes go out in send order once connected.
func (that *Client) Send(_ context.Context, env *entity.Envelope) error {
	if env.App == "" {
		env.App = that.app
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	that.mu.Lock()
	if that.closed {
		that.mu.Unlock()
		return apperror.ErrSessionClosed
	}
	that.queue = append(that.queue, data)
	that.mu.Unlock()

	that.notify()

	return nil
}

func (that *Client) Close() error {
	that.mu.Lock()
	that.closed = true
	cancel := that.cancel
	that.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	that.wg.Wait()

	return nil
}

func (that *Client) notify() {
	select {
	case that.wake <- struct{}{}:
	default:
	}
}

// run - keeps one connection alive until ctx is done.
func (that *Client) run(ctx context.Context, gameID string, handler transport.Handler) {
	log := that.logger.With("method", "run", "game_id", gameID)

	for {
		conn, err := that.connect(ctx)
		if err != nil {
			log.Debug("relay client stopped", "error", err)
			return
		}

		log.Info("connected to relay", "url", that.url)

		that.serve(ctx, conn, gameID, handler)

		if ctx.Err() != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "bye")
			return
		}

		_ = conn.Close(websocket.StatusGoingAway, "reconnecting")

		log.Warn("relay connection lost, reconnecting")
	}
}

// connect - dials with exponential backoff until it succeeds or ctx is done.
func (that *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	log := that.logger.With("method", "connect")

	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = that.maxReconnectGap
	policy.MaxElapsedTime = 0

	var conn *websocket.Conn

	operation := func() error {
		dialCtx, cancel := context.WithTimeout(ctx, that.writeTimeout)
		defer cancel()

		c, _, err := websocket.Dial(dialCtx, that.url, nil)
		if err != nil {
			return fmt.Errorf("failed to dial relay: %w", err)
		}

		conn = c

		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Warn("relay unavailable", "error", err, "retry_in", wait)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, fmt.Errorf("gave up connecting: %w", err)
	}

	conn.SetReadLimit(readLimit)

	return conn, nil
}

// serve - reads in the background and writes the queue until the connection fails.
func (that *Client) serve(ctx context.Context, conn *websocket.Conn, gameID string, handler transport.Handler) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		defer cancel()

		that.readLoop(connCtx, conn, gameID, handler)
	}()

	that.writeLoop(connCtx, conn)

	cancel()
	<-readerDone
}

func (that *Client) writeLoop(ctx context.Context, conn *websocket.Conn) {
	log := that.logger.With("method", "writeLoop")

	for {
		for {
			that.mu.Lock()
			if len(that.queue) == 0 {
				that.mu.Unlock()
				break
			}
			data := that.queue[0]
			that.mu.Unlock()

			writeCtx, cancel := context.WithTimeout(ctx, that.writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()

			if err != nil {
				if ctx.Err() == nil {
					log.Warn("failed to write envelope", "error", err)
				}

				// the envelope stays queued for the next connection
				return
			}

			that.mu.Lock()
			that.queue = that.queue[1:]
			that.mu.Unlock()
		}

		select {
		case <-ctx.Done():
			return
		case <-that.wake:
		}
	}
}

func (that *Client) readLoop(ctx context.Context, conn *websocket.Conn, gameID string, handler transport.Handler) {
	log := that.logger.With("method", "readLoop")

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Info("relay read failed", "error", err)
			}

			return
		}

		if msgType != websocket.MessageText {
			continue
		}

		env, ok := that.decode(data, gameID)
		if !ok {
			continue
		}

		handler(ctx, env)
	}
}

// decode - drops malformed frames and traffic of other applications or games.
func (that *Client) decode(data []byte, gameID string) (*entity.Envelope, bool) {
	var env entity.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		that.logger.Debug("dropping malformed frame", "error", err)
		return nil, false
	}

	if env.App != that.app || env.GameID != gameID {
		return nil, false
	}

	return &env, true
}

// Package transport defines the channel the synchronizer talks through. Delivery is
// at-least-once, unordered and may contain traffic of other applications.
package transport

import (
	"context"

	"github.com/rocketscienceinc/tictactoe-online/internal/entity"
)

// Handler receives inbound envelopes. It must be safe for concurrent use.
type Handler func(ctx context.Context, env *entity.Envelope)

// Strategy is implemented by the relay and the polling transports.
type Strategy interface {
	// Start - begins delivering inbound envelopes for gameID until Close is called.
	Start(ctx context.Context, gameID string, handler Handler) error
	// Send - hands an envelope over for delivery to the other participants.
	Send(ctx context.Context, env *entity.Envelope) error
	Close() error
}

// Directory is implemented by strategies that can read the shared game record directly.
type Directory interface {
	Lookup(ctx context.Context, gameID string) (*entity.GameState, error)
}

// Discarder is implemented by strategies that keep a shared record which outlives
// the connection.
type Discarder interface {
	Discard(ctx context.Context, gameID string) error
}

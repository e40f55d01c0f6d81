package entity

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	EnvelopeJoinRequest = "join_request"
	EnvelopeStateSync   = "state_sync"
)

var ErrUnexpectedEnvelope = errors.New("unexpected envelope type")

// Envelope is the unit exchanged over a transport. App lets receivers ignore
// unrelated traffic on a shared channel.
type Envelope struct {
	App     string          `json:"app"`
	Type    string          `json:"type"`
	GameID  string          `json:"gameId"`
	Sender  string          `json:"sender,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinRequest struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

func NewStateSync(app, sender string, state *GameState) (*Envelope, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal game state: %w", err)
	}

	return &Envelope{
		App:     app,
		Type:    EnvelopeStateSync,
		GameID:  state.GameID,
		Sender:  sender,
		Payload: payload,
	}, nil
}

func NewJoinRequest(app, gameID string, req JoinRequest) (*Envelope, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal join request: %w", err)
	}

	return &Envelope{
		App:     app,
		Type:    EnvelopeJoinRequest,
		GameID:  gameID,
		Sender:  req.PlayerID,
		Payload: payload,
	}, nil
}

func (that *Envelope) DecodeState() (*GameState, error) {
	if that.Type != EnvelopeStateSync {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedEnvelope, that.Type)
	}

	var state GameState
	if err := json.Unmarshal(that.Payload, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game state: %w", err)
	}

	return &state, nil
}

func (that *Envelope) DecodeJoinRequest() (*JoinRequest, error) {
	if that.Type != EnvelopeJoinRequest {
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedEnvelope, that.Type)
	}

	var req JoinRequest
	if err := json.Unmarshal(that.Payload, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal join request: %w", err)
	}

	return &req, nil
}

package entity

import (
	"errors"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-online/internal/apperror"
)

const (
	StatusWaiting  = "waiting"
	StatusPlaying  = "playing"
	StatusFinished = "finished"
)

var ErrInvalidState = errors.New("invalid game state")

// GameState is the unit of synchronization. It is always replaced as a whole.
type GameState struct {
	GameID        string         `json:"gameId"`
	Version       uint64         `json:"version"`
	Board         Board          `json:"board"`
	Players       [2]*PlayerInfo `json:"players"`
	CurrentPlayer Mark           `json:"currentPlayer"`
	Status        string         `json:"status"`
	WinnerInfo    *Verdict       `json:"winnerInfo"`
	Chat          []ChatMessage  `json:"chat"`
	VoiceMessages []VoiceMessage `json:"voiceMessages"`
}

// NewGame - creates a waiting game owned by the creator, who always plays X.
func NewGame(id string, creator PlayerInfo) *GameState {
	creator.Symbol = PlayerX

	return &GameState{
		GameID:        id,
		Version:       1,
		Players:       [2]*PlayerInfo{&creator, nil},
		CurrentPlayer: PlayerX,
		Status:        StatusWaiting,
		Chat:          []ChatMessage{},
		VoiceMessages: []VoiceMessage{},
	}
}

// NewProvisionalGame - the joiner's view until the creator's state arrives.
func NewProvisionalGame(id string, joiner PlayerInfo) *GameState {
	joiner.Symbol = PlayerO

	return &GameState{
		GameID:        id,
		Players:       [2]*PlayerInfo{nil, &joiner},
		CurrentPlayer: PlayerX,
		Status:        StatusWaiting,
		Chat:          []ChatMessage{},
		VoiceMessages: []VoiceMessage{},
	}
}

// NewLocalGame - both slots filled, ready to play on a single device.
func NewLocalGame(id string, first, second PlayerInfo) *GameState {
	first.Symbol = PlayerX
	second.Symbol = PlayerO

	return &GameState{
		GameID:        id,
		Version:       1,
		Players:       [2]*PlayerInfo{&first, &second},
		CurrentPlayer: PlayerX,
		Status:        StatusPlaying,
		Chat:          []ChatMessage{},
		VoiceMessages: []VoiceMessage{},
	}
}

func (that *GameState) IsWaiting() bool {
	return that.Status == StatusWaiting
}

func (that *GameState) IsPlaying() bool {
	return that.Status == StatusPlaying
}

func (that *GameState) IsFinished() bool {
	return that.Status == StatusFinished
}

func (that *GameState) ConfirmPlayingState() error {
	switch that.Status {
	case StatusWaiting:
		return apperror.ErrGameIsNotStarted
	case StatusFinished:
		return apperror.ErrGameFinished
	case StatusPlaying:
		return nil
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidState, that.Status)
	}
}

// MakeTurn - places mark on cell, flips the turn and finishes the game when terminal.
func (that *GameState) MakeTurn(mark Mark, cell int) error {
	if err := that.ConfirmPlayingState(); err != nil {
		return err
	}

	if !IsValidCell(cell) {
		return fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, cell)
	}

	if that.CurrentPlayer != mark {
		return apperror.ErrNotYourTurn
	}

	if that.Board[cell] != EmptyCell {
		return apperror.ErrCellOccupied
	}

	that.Board[cell] = mark
	that.CurrentPlayer = mark.Opponent()

	if verdict := Evaluate(that.Board); verdict != nil {
		that.WinnerInfo = verdict
		that.Status = StatusFinished
	}

	that.Version++

	return nil
}

// AcceptJoin - fills the second slot and starts the game.
func (that *GameState) AcceptJoin(player PlayerInfo) error {
	if !that.IsWaiting() || that.Players[1] != nil {
		return apperror.ErrGameAlreadyStarted
	}

	player.Symbol = PlayerO
	that.Players[1] = &player
	that.Status = StatusPlaying
	that.Version++

	return nil
}

// Reset - returns a fresh round that keeps the identity and the message history.
func (that *GameState) Reset() (*GameState, error) {
	if !that.IsFinished() {
		return nil, apperror.ErrGameNotFinished
	}

	next := that.Clone()
	next.Board = Board{}
	next.CurrentPlayer = PlayerX
	next.Status = StatusPlaying
	next.WinnerInfo = nil
	next.Version++

	return next, nil
}

func (that *GameState) AppendChat(msg ChatMessage) {
	that.Chat = append(that.Chat, msg)
	that.Version++
}

func (that *GameState) AppendVoice(msg VoiceMessage) {
	that.VoiceMessages = append(that.VoiceMessages, msg)
	that.Version++
}

// Validate - checks the invariants an inbound state must hold before it may replace ours.
func (that *GameState) Validate() error {
	switch that.Status {
	case StatusWaiting, StatusPlaying, StatusFinished:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidState, that.Status)
	}

	if !that.CurrentPlayer.IsPlayer() {
		return fmt.Errorf("%w: current player %q", ErrInvalidState, that.CurrentPlayer)
	}

	for i, cell := range that.Board {
		if cell != EmptyCell && !cell.IsPlayer() {
			return fmt.Errorf("%w: cell %d holds %q", ErrInvalidState, i, cell)
		}
	}

	if diff := that.Board.Count(PlayerX) - that.Board.Count(PlayerO); diff < 0 || diff > 1 {
		return fmt.Errorf("%w: mark balance %d", ErrInvalidState, diff)
	}

	if that.WinnerInfo != nil && !that.IsFinished() {
		return fmt.Errorf("%w: winner set while %s", ErrInvalidState, that.Status)
	}

	return nil
}

func (that *GameState) Clone() *GameState {
	clone := *that

	for i, player := range that.Players {
		if player != nil {
			p := *player
			clone.Players[i] = &p
		}
	}

	if that.WinnerInfo != nil {
		verdict := *that.WinnerInfo
		if that.WinnerInfo.Line != nil {
			verdict.Line = append([]int(nil), that.WinnerInfo.Line...)
		}
		clone.WinnerInfo = &verdict
	}

	clone.Chat = append(make([]ChatMessage, 0, len(that.Chat)), that.Chat...)
	clone.VoiceMessages = append(make([]VoiceMessage, 0, len(that.VoiceMessages)), that.VoiceMessages...)

	return &clone
}

// PlayerByMark - returns the slot holding mark, nil when it is unoccupied.
func (that *GameState) PlayerByMark(mark Mark) *PlayerInfo {
	switch mark {
	case PlayerX:
		return that.Players[0]
	case PlayerO:
		return that.Players[1]
	default:
		return nil
	}
}

package usecase

import "github.com/rocketscienceinc/tictactoe-online/internal/entity"

// Snapshot is what the presentation renders after every applied change.
type Snapshot struct {
	State    *entity.GameState
	Scores   entity.Scores
	Thinking bool
}

// Listener is the presentation side. Its methods are called while the game is
// locked, so they must not call back into the game.
type Listener interface {
	OnSnapshot(snapshot Snapshot)
	OnChat(msg entity.ChatMessage)
	OnVoice(msg entity.VoiceMessage)
}

type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseWaiting       Phase = "waiting"
	PhasePlaying       Phase = "playing"
	PhaseFinished      Phase = "finished"
)

func phaseOf(state *entity.GameState) Phase {
	switch {
	case state.IsPlaying():
		return PhasePlaying
	case state.IsFinished():
		return PhaseFinished
	default:
		return PhaseWaiting
	}
}

// stamper hands out strictly increasing Unix millisecond timestamps.
type stamper struct {
	last int64
}

func (that *stamper) next(nowMillis int64) int64 {
	if nowMillis <= that.last {
		nowMillis = that.last + 1
	}

	that.last = nowMillis

	return nowMillis
}

// observe - keeps later local stamps above a timestamp seen from the other side.
func (that *stamper) observe(millis int64) {
	that.last = max(that.last, millis)
}

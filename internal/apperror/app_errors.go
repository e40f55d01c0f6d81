package apperror

import "errors"

var (
	ErrGameFinished       = errors.New("game is already finished")
	ErrGameIsNotStarted   = errors.New("game is not started")
	ErrGameNotFinished    = errors.New("game is not finished")
	ErrNotYourTurn        = errors.New("it's not your turn")
	ErrCellOccupied       = errors.New("cell is already occupied")
	ErrInvalidCell        = errors.New("invalid cell index")
	ErrGameNotFound       = errors.New("game not found")
	ErrGameAlreadyStarted = errors.New("game already started")
	ErrInvalidLocator     = errors.New("invalid game locator")
	ErrSessionClosed      = errors.New("session is closed")
	ErrAIMovePending      = errors.New("ai move is pending")
	ErrChatUnavailable    = errors.New("chat is only available in online games")
	ErrAlreadyStarted     = errors.New("session already started")
)

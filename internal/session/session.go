package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"github.com/rocketscienceinc/tictactoe-online/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-online/internal/entity"
)

const (
	gameIDLength    = 10
	gameIDParam     = "gameId"
	defaultQRSize   = 256
	defaultNickname = "Player"
)

// Session is the identity of the local participant inside one game.
type Session struct {
	GameID  string
	Role    entity.Mark
	Self    entity.PlayerInfo
	Locator string
}

func (that *Session) IsCreator() bool {
	return that.Role == entity.PlayerX
}

type directory interface {
	Lookup(ctx context.Context, gameID string) (*entity.GameState, error)
}

// Manager hands out roles: whoever creates a game plays X, whoever joins plays O.
type Manager struct {
	logger    *slog.Logger
	baseURL   string
	directory directory
}

// NewManager - directory may be nil when the transport cannot look games up.
func NewManager(logger *slog.Logger, baseURL string, directory directory) *Manager {
	return &Manager{
		logger:    logger.With("component", "session"),
		baseURL:   baseURL,
		directory: directory,
	}
}

// Create - starts a new game as X and returns its waiting state.
func (that *Manager) Create(name string) (*Session, *entity.GameState, error) {
	gameID := GenerateGameID()

	locator, err := BuildLocator(that.baseURL, gameID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build locator: %w", err)
	}

	self := entity.PlayerInfo{ID: NewParticipantID(), Name: nickname(name), Symbol: entity.PlayerX}
	session := &Session{
		GameID:  gameID,
		Role:    entity.PlayerX,
		Self:    self,
		Locator: locator,
	}

	that.logger.Info("game created", "gameID", gameID)

	return session, entity.NewGame(gameID, self), nil
}

// Join - takes the O role in the game the locator points to and returns a provisional state.
func (that *Manager) Join(ctx context.Context, locator, name string) (*Session, *entity.GameState, error) {
	log := that.logger.With("method", "Join")

	gameID, err := ParseLocator(locator)
	if err != nil {
		return nil, nil, err
	}

	if that.directory != nil {
		if err = that.checkJoinable(ctx, gameID); err != nil {
			log.Info("game is not joinable", "gameID", gameID, "error", err)
			return nil, nil, err
		}
	}

	self := entity.PlayerInfo{ID: NewParticipantID(), Name: nickname(name), Symbol: entity.PlayerO}
	session := &Session{
		GameID:  gameID,
		Role:    entity.PlayerO,
		Self:    self,
		Locator: locator,
	}

	log.Info("joining game", "gameID", gameID)

	return session, entity.NewProvisionalGame(gameID, self), nil
}

func (that *Manager) checkJoinable(ctx context.Context, gameID string) error {
	game, err := that.directory.Lookup(ctx, gameID)
	if errors.Is(err, apperror.ErrGameNotFound) {
		return fmt.Errorf("%w: game id %s", apperror.ErrGameNotFound, gameID)
	}

	if err != nil {
		return fmt.Errorf("failed to look up game: %w", err)
	}

	if !game.IsWaiting() || game.Players[1] != nil {
		return fmt.Errorf("%w: game id %s", apperror.ErrGameAlreadyStarted, gameID)
	}

	return nil
}

// GenerateGameID - returns a random lowercase base-36 token.
func GenerateGameID() string {
	id := uuid.New()
	token := new(big.Int).SetBytes(id[:]).Text(36)

	if len(token) < gameIDLength {
		token = strings.Repeat("0", gameIDLength-len(token)) + token
	}

	return token[:gameIDLength]
}

// NewParticipantID - generates a new unique participant id.
func NewParticipantID() string {
	return uuid.NewString()
}

// BuildLocator - embeds gameID into the base URL as a query parameter.
func BuildLocator(baseURL, gameID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse base url: %w", err)
	}

	query := u.Query()
	query.Set(gameIDParam, gameID)
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// ParseLocator - extracts the game id from a join link.
func ParseLocator(locator string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(locator))
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperror.ErrInvalidLocator, err)
	}

	gameID := u.Query().Get(gameIDParam)
	if gameID == "" {
		return "", fmt.Errorf("%w: missing %s", apperror.ErrInvalidLocator, gameIDParam)
	}

	return gameID, nil
}

// QRCode - renders the locator as a PNG image.
func (that *Session) QRCode(size int) ([]byte, error) {
	if size <= 0 {
		size = defaultQRSize
	}

	png, err := qrcode.Encode(that.Locator, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}

	return png, nil
}

func nickname(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return defaultNickname
	}

	return name
}

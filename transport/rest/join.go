package rest

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/rocketscienceinc/tictactoe-online/internal/session"
)

const qrSize = 256

// JoinHandler serves the pages a join link points to.
type JoinHandler interface {
	JoinHandler(w http.ResponseWriter, r *http.Request)
	QRHandler(w http.ResponseWriter, r *http.Request)
}

type joinHandler struct {
	logger  *slog.Logger
	baseURL string
}

func NewJoinHandler(logger *slog.Logger, baseURL string) JoinHandler {
	return &joinHandler{
		logger:  logger.With("component", "join"),
		baseURL: baseURL,
	}
}

// JoinHandler - explains how to join the game the link names.
func (that *joinHandler) JoinHandler(w http.ResponseWriter, r *http.Request) {
	locator, err := that.locator(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	if _, err = fmt.Fprintf(w, "Join this game with:\n\n  client -join '%s'\n", locator); err != nil {
		that.logger.Error("failed to write response", "error", err)
	}
}

// QRHandler - renders the join link as a PNG QR code.
func (that *joinHandler) QRHandler(w http.ResponseWriter, r *http.Request) {
	locator, err := that.locator(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	png, err := (&session.Session{Locator: locator}).QRCode(qrSize)
	if err != nil {
		that.logger.Error("failed to render qr code", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)

	if _, err = w.Write(png); err != nil {
		that.logger.Error("failed to write qr code", "error", err)
	}
}

// locator - rebuilds the canonical link so that only the game id is taken from the request.
func (that *joinHandler) locator(r *http.Request) (string, error) {
	gameID, err := session.ParseLocator(r.URL.String())
	if err != nil {
		return "", err
	}

	return session.BuildLocator(that.baseURL, gameID)
}

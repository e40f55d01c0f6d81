// Package websocket is the relay: a public broadcast channel that game clients
// connect to. It knows nothing about games.
package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	logger   *slog.Logger
	hub      *Hub
	upgrader websocket.Upgrader
}

func New(logger *slog.Logger) *Server {
	return &Server{
		logger: logger.With("component", "relay"),
		hub:    NewHub(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// browsers may connect from any page that shares a join link
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

func (that *Server) Hub() *Hub {
	return that.hub
}

// Handler - returns the relay routes.
func (that *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", that.upgradeToWebSocket)

	return mux
}

// Start - starts WebSocket server and stops it when ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	log := that.logger.With("method", "Start")

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           that.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		that.hub.closeAll()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shut down relay", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// upgradeToWebSocket - upgrades the connection and attaches it to the hub.
func (that *Server) upgradeToWebSocket(writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgradeToWebSocket")

	conn, err := that.upgrader.Upgrade(writer, req, nil)
	if err != nil {
		log.Error("failed to upgrade connection", "error", err)
		return
	}

	p := &peer{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	that.hub.register(p)

	log.Info("WebSocket connection established", "remote", conn.RemoteAddr().String(), "peers", that.hub.Count())

	go that.hub.writePump(p)
	that.hub.readPump(p)
}

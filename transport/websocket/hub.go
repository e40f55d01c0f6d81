package websocket

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 20
	sendBuffer     = 64
)

// peer is one connection on the relay.
type peer struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans every text frame out to every other connected peer. It does not
// look inside the frames.
type Hub struct {
	logger *slog.Logger

	mu    sync.RWMutex
	peers map[*peer]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger.With("component", "hub"),
		peers:  make(map[*peer]struct{}),
	}
}

func (that *Hub) register(p *peer) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.peers[p] = struct{}{}
}

func (that *Hub) unregister(p *peer) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if _, ok := that.peers[p]; ok {
		delete(that.peers, p)
		close(p.send)
	}
}

// Count - returns the number of connected peers.
func (that *Hub) Count() int {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.peers)
}

// broadcast - queues msg for every peer except the sender. A peer whose queue is
// full is disconnected rather than allowed to stall the others.
func (that *Hub) broadcast(from *peer, msg []byte) {
	var slow []*peer

	that.mu.RLock()
	for p := range that.peers {
		if p == from {
			continue
		}

		select {
		case p.send <- msg:
		default:
			slow = append(slow, p)
		}
	}
	that.mu.RUnlock()

	for _, p := range slow {
		that.logger.Warn("dropping slow peer", "remote", p.conn.RemoteAddr().String())
		that.unregister(p)
	}
}

// readPump - reads frames until the connection fails and hands them to the hub.
func (that *Hub) readPump(p *peer) {
	log := that.logger.With("method", "readPump")

	defer func() {
		that.unregister(p)
		_ = p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	_ = p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, msg, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Info("connection closed unexpectedly", "error", err)
			}

			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		that.broadcast(p, msg)
	}
}

// writePump - the only writer of the connection.
func (that *Hub) writePump(p *peer) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		_ = p.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-p.send:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// closeAll - disconnects every peer.
func (that *Hub) closeAll() {
	that.mu.Lock()
	defer that.mu.Unlock()

	for p := range that.peers {
		delete(that.peers, p)
		close(p.send)
	}
}

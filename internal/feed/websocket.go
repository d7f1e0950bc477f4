package feed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/alpacanet/internal/logging"
	"github.com/muurk/alpacanet/internal/registry"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames
	maxMessageSize = 512
)

// Message is the websocket envelope.
type Message struct {
	Type     string             `json:"type"`
	Snapshot *registry.Snapshot `json:"snapshot,omitempty"`
}

func encodeSnapshot(snap registry.Snapshot) ([]byte, error) {
	return json.Marshal(Message{Type: "snapshot", Snapshot: &snap})
}

// client holds at most one pending message; newer snapshots replace it.
type client struct {
	conn   *websocket.Conn
	remote string

	mu      sync.Mutex
	pending []byte
	notify  chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newClient(conn *websocket.Conn, remote string) *client {
	return &client{
		conn:   conn,
		remote: remote,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (c *client) offer(msg []byte) {
	c.mu.Lock()
	c.pending = msg
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *client) take() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	msg := c.pending
	c.pending = nil
	return msg
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logging.Warn("Websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	c := newClient(conn, r.RemoteAddr)
	msg, err := encodeSnapshot(s.reg.Snapshot())
	if err == nil {
		c.offer(msg)
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	logging.Info("Feed client connected", zap.String("remote_addr", c.remote))

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.readPump(c)
	}()
	go func() {
		defer s.wg.Done()
		s.writePump(c)
	}()
}

// readPump discards client frames and notices disconnects.
func (s *Server) readPump(c *client) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("Feed client read error",
					zap.String("remote_addr", c.remote),
					zap.Error(err),
				)
			}
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		_ = c.conn.Close()
		logging.Info("Feed client disconnected", zap.String("remote_addr", c.remote))
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-c.notify:
			msg := c.take()
			if msg == nil {
				continue
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logging.Debug("Feed client write failed",
					zap.String("remote_addr", c.remote),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.close()
	}
}

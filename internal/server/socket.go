package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"songforge/internal/app"
	"songforge/internal/util"
	"songforge/pkg/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The demo serves the web player from another origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// socket owns one websocket connection. Outbound events go through a
// buffered channel drained by the write pump; a full buffer drops the
// frame rather than blocking a simulation timer.
type socket struct {
	conn *websocket.Conn
	send chan []byte
	log  *slog.Logger
}

func newSocket(conn *websocket.Conn, log *slog.Logger) *socket {
	return &socket{
		conn: conn,
		send: make(chan []byte, 256),
		log:  log,
	}
}

// Emit satisfies sim.Emitter. Events are serialized to tagged envelopes
// and queued for the write pump.
func (c *socket) Emit(ev domain.Event) {
	data, err := domain.EncodeEvent(ev)
	if err != nil {
		c.log.Error("encode event", "type", ev.EventType(), "err", err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn("send buffer full, dropping event", "type", ev.EventType())
	}
}

func (c *socket) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err)
		return
	}

	connID := uuid.New().String()
	log := slog.Default().With("conn_id", connID, "request_id", util.RequestIDFromRequest(r))
	sock := newSocket(conn, log)
	sess := s.app.NewSession(connID, sock)

	go sock.writePump()
	sess.Init()
	log.Info("socket connected")

	defer func() {
		// Cancel timers before closing the channel; no emission can be
		// in flight once every run is stopped.
		sess.Close()
		close(sock.send)
		log.Info("socket disconnected")
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Warn("socket read error", "err", err)
			}
			return
		}
		cmd, err := domain.DecodeCommand(data)
		if err != nil {
			log.Warn("invalid command frame", "err", err)
			continue
		}
		s.dispatch(sess, cmd, log)
	}
}

func (s *Server) dispatch(sess *app.Session, cmd domain.Command, log *slog.Logger) {
	switch c := cmd.(type) {
	case *domain.StartSingle:
		id := c.GenerationID
		if id == "" {
			id = "gen_" + util.NewID()
		}
		sess.StartSingle(id, c.Prompt)

	case *domain.StartPaired:
		groupID := c.GroupID
		if groupID == "" {
			groupID = "grp_" + util.NewID()
		}
		sess.StartPaired(groupID, c.Prompt)

	case *domain.Retry:
		if c.GenerationID == "" {
			log.Warn("retry without generation id")
			return
		}
		sess.Retry(c.GenerationID, c.Prompt)
	}
}

package hub

import (
	"time"

	"lrnchat/internal/model"
	"lrnchat/internal/protocol"
	"lrnchat/internal/utils/log"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// Client is one live websocket connection with an authenticated identity
// attached. Its rooms set is guarded by the hub's mutex, never touched
// directly by connection goroutines.
type Client struct {
	id       string
	identity model.Identity
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	rooms    map[string]struct{}
}

func NewClient(h *Hub, conn *websocket.Conn, identity model.Identity) *Client {
	return &Client{
		id:       uuid.NewString(),
		identity: identity,
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		rooms:    make(map[string]struct{}),
	}
}

func (c *Client) Identity() model.Identity {
	return c.identity
}

// Run registers the client and pumps the connection until it closes. It
// blocks for the connection's lifetime; the disconnect path runs exactly once
// on the way out regardless of how the connection died.
func (c *Client) Run() {
	c.hub.Register(c)
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug("websocket closed", zap.String("connID", c.id), zap.Error(err))
			return
		}

		frame, err := protocol.Decode(data)
		if err != nil {
			log.Debug("bad frame", zap.String("connID", c.id), zap.Error(err))
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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

// dispatch is the single per-connection step for every inbound event.
func (c *Client) dispatch(frame *protocol.Frame) {
	switch frame.Event {
	case protocol.EventRoomJoin:
		var req protocol.RoomRequest
		if err := frame.Unmarshal(&req); err != nil {
			log.Debug("bad join payload", zap.String("connID", c.id), zap.Error(err))
			return
		}
		c.hub.Join(c, req.ConversationID)

	case protocol.EventRoomLeave:
		var req protocol.RoomRequest
		if err := frame.Unmarshal(&req); err != nil {
			log.Debug("bad leave payload", zap.String("connID", c.id), zap.Error(err))
			return
		}
		c.hub.Leave(c, req.ConversationID)

	case protocol.EventMessageSend:
		var req protocol.SendRequest
		if err := frame.Unmarshal(&req); err != nil {
			c.sendError("", protocol.ReasonBadRequest)
			return
		}
		c.hub.Relay(c, &req)

	case protocol.EventTypingStart:
		var req protocol.RoomRequest
		if err := frame.Unmarshal(&req); err != nil {
			return
		}
		c.hub.Typing(c, req.ConversationID, true)

	case protocol.EventTypingStop:
		var req protocol.RoomRequest
		if err := frame.Unmarshal(&req); err != nil {
			return
		}
		c.hub.Typing(c, req.ConversationID, false)

	case protocol.EventReadMark:
		var req protocol.ReadMarkRequest
		if err := frame.Unmarshal(&req); err != nil {
			return
		}
		c.hub.MarkRead(c, &req)

	default:
		log.Debug("unknown event", zap.String("connID", c.id), zap.String("event", frame.Event))
	}
}

// sendEvent encodes and queues one outbound frame for this connection.
func (c *Client) sendEvent(event string, payload any) {
	data, err := protocol.Encode(event, payload)
	if err != nil {
		log.Error("encode frame failed", zap.String("event", event), zap.Error(err))
		return
	}
	c.enqueue(data)
}

func (c *Client) sendError(correlationID, reason string) {
	c.sendEvent(protocol.EventMessageError, &protocol.SendError{
		CorrelationID: correlationID,
		Reason:        reason,
	})
}

// enqueue hands a frame to the write pump without ever blocking the caller.
// A consumer that cannot keep up loses frames rather than stalling the hub.
func (c *Client) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		log.Warn("dropping frame for slow consumer", zap.String("connID", c.id))
	}
}

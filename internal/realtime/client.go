package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tablehost/backend/internal/apperr"
	"github.com/tablehost/backend/pkg/response"
)

// Client events. The channel is read-only: anything other than ping is ignored.
const (
	EventPing = "ping"
	EventPong = "pong"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // access is gated by the channel token, not the origin
	},
}

// WSMessage is the WebSocket message envelope.
type WSMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ChannelValidator checks that a channel token was issued for an organization.
type ChannelValidator interface {
	ValidateChannel(token string, orgID uuid.UUID) error
}

// Client represents a single WebSocket connection subscribed to one organization.
type Client struct {
	ID             string
	OrganizationID uuid.UUID
	JoinedAt       time.Time
	hub            *Hub
	conn           *websocket.Conn
	send           chan WSMessage
	logger         *zap.Logger
}

func newClient(hub *Hub, orgID uuid.UUID, conn *websocket.Conn, logger *zap.Logger) *Client {
	return &Client{
		ID:             uuid.New().String(),
		OrganizationID: orgID,
		JoinedAt:       time.Now(),
		hub:            hub,
		conn:           conn,
		send:           make(chan WSMessage, sendBuffer),
		logger:         logger,
	}
}

// ServeWs handles GET /ws?organizationId=&token=. The token must be a channel token issued for
// that organization; the connection then receives the organization's events until it closes.
func ServeWs(hub *Hub, tokens ChannelValidator, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		orgIDStr := c.Query("organizationId")
		token := c.Query("token")
		var missing []string
		if orgIDStr == "" {
			missing = append(missing, "organizationId")
		}
		if token == "" {
			missing = append(missing, "token")
		}
		if len(missing) > 0 {
			response.Error(c, apperr.MissingFields(missing...))
			return
		}
		orgID, err := uuid.Parse(orgIDStr)
		if err != nil {
			response.Error(c, apperr.Validation("invalid organizationId", "organizationId"))
			return
		}
		if err := tokens.ValidateChannel(token, orgID); err != nil {
			response.Error(c, apperr.Unauthenticated("invalid or expired channel token"))
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := newClient(hub, orgID, conn, logger)
		hub.Register(client)
		go client.writePump()
		client.readPump()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
		return nil
	})

	for {
		var msg WSMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read failed", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))

		switch msg.Event {
		case EventPing:
			c.hub.sendTo(c, WSMessage{Event: EventPong})
		default:
			// ignore
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
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

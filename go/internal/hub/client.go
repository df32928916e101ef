package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Client is one connected viewer: an outbound FIFO queue plus the websocket
// transport draining it. The queue decouples broadcasting handlers from the
// wire so a slow socket never blocks a producer.
type Client struct {
	ID      string
	MatchID int64
	Send    chan []byte

	hub  *Hub
	conn *websocket.Conn

	activityMu   sync.Mutex
	lastActivity time.Time

	closeOnce sync.Once
}

// LastActivity returns the time of the last inbound traffic from the client.
func (c *Client) LastActivity() time.Time {
	c.activityMu.Lock()
	defer c.activityMu.Unlock()
	return c.lastActivity
}

func (c *Client) touch() {
	c.activityMu.Lock()
	c.lastActivity = c.hub.clock.Now()
	c.activityMu.Unlock()
}

// writePump drains the outbound queue onto the wire and keeps the connection
// alive with pings. One goroutine per client.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.hub.disconnectClient(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				// Queue closed by Disconnect.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("client_id", c.ID).
					Msg("failed to write to websocket")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump consumes inbound client messages, feeding them to the inbound
// handler and refreshing the activity timestamp. One goroutine per client.
func (c *Client) readPump(inbound InboundHandler) {
	defer c.hub.disconnectClient(c)

	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		c.touch()
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("client_id", c.ID).
					Msg("unexpected websocket close")
			}
			return
		}

		c.touch()
		c.conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		if inbound != nil {
			inbound.HandleClientMessage(c.ID, c.MatchID, message)
		}
	}
}

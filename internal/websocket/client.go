package websocket

import (
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// DocumentID whose status this connection follows
	DocumentID uuid.UUID

	// Buffered channel of outbound frames. Closed by the hub.
	Send chan []byte
}

// readPump only watches for the peer going away; status sockets carry no
// inbound messages.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister(c)
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.Warn("Client", "Unexpected close", map[string]interface{}{"document_id": c.DocumentID.String(), "error": err})
			}
			return
		}
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs streams status frames for documentId over conn. snapshot runs
// after the client is registered, so no transition is missed; it returns the
// first frame and whether the document is already finished.
func ServeWs(hub *Hub, conn *websocket.Conn, documentId uuid.UUID, snapshot func() ([]byte, bool, error)) {
	client := &Client{Hub: hub, Conn: conn, DocumentID: documentId, Send: make(chan []byte, sendBuffer)}
	hub.register(client)

	first, terminal, err := snapshot()
	if err != nil {
		hub.logger.Warn("Client", "Status snapshot failed", map[string]interface{}{"document_id": documentId.String(), "error": err})
		hub.unregister(client)
		conn.Close()
		return
	}
	hub.queue(client, first, terminal)

	go client.writePump()
	client.readPump()
}

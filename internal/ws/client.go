package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rishabh1721/WanderLust/internal/config"
)

// CommandHandler processes a parsed client command. Errors are reported back
// to the client as error events by the read pump.
type CommandHandler func(ctx context.Context, client *Client, cmd ClientCommand) error

// Client is a middleman between a websocket connection and the hub. UserID
// is zero for unauthenticated connections, which stay open but have every
// command rejected.
type Client struct {
	hub  *Hub
	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	UserID uint

	handleCommand CommandHandler

	// onPong refreshes presence on each heartbeat; onClose tears it down.
	onPong  func()
	onClose func()
}

// Authenticated reports whether the connection carries a verified identity.
func (c *Client) Authenticated() bool {
	return c.UserID != 0
}

// Send queues a frame for delivery to this client, dropping it if the queue
// is full.
func (c *Client) Send(payload []byte) {
	select {
	case c.send <- payload:
	default:
		log.Printf("Send queue full for user %d, dropping frame", c.UserID)
	}
}

// SendEvent encodes and queues an event for this client.
func (c *Client) SendEvent(event Event) {
	payload, err := event.Encode()
	if err != nil {
		log.Printf("Failed to encode %q event for user %d: %v", event.Name, c.UserID, err)
		return
	}
	c.Send(payload)
}

// readPump pumps frames from the websocket connection into the command
// handler.
func (c *Client) readPump(wsCfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
		if c.onClose != nil {
			c.onClose()
		}
	}()
	pongWait := time.Duration(wsCfg.PongWaitSeconds) * time.Second
	c.conn.SetReadLimit(int64(wsCfg.MaxMessageSizeBytes))
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if c.onPong != nil {
			c.onPong()
		}
		return nil
	})

	for {
		messageType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error (user %d): %v", c.UserID, err)
			}
			break
		}

		if messageType != websocket.TextMessage {
			continue
		}

		var cmd ClientCommand
		if err := json.Unmarshal(raw, &cmd); err != nil {
			log.Printf("Malformed frame from user %d: %v", c.UserID, err)
			c.SendEvent(ErrorEvent("malformed command"))
			continue
		}

		if !c.Authenticated() {
			c.SendEvent(ErrorEvent("authentication required"))
			continue
		}

		if c.handleCommand != nil {
			if err := c.handleCommand(context.Background(), c, cmd); err != nil {
				log.Printf("Command %q from user %d failed: %v", cmd.Action, c.UserID, err)
				c.SendEvent(ErrorEvent(err.Error()))
			}
		}
	}
}

// writePump pumps frames from the hub to the websocket connection.
func (c *Client) writePump(wsCfg config.WebSocketConfig) {
	writeWait := time.Duration(wsCfg.WriteWaitSeconds) * time.Second
	ticker := time.NewTicker(time.Duration(wsCfg.PingPeriodSeconds) * time.Second)
	newline := []byte("\n")
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
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Drain whatever else is queued into the same frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// ConnectionOptions configures a single websocket connection.
type ConnectionOptions struct {
	// UserID is zero for unauthenticated connections.
	UserID        uint
	HandleCommand CommandHandler
	OnPong        func()
	OnClose       func()
}

// ServeConnection upgrades the HTTP request, registers the client with the
// hub and starts its pumps. Returns the client so the caller can greet it.
func ServeConnection(hub *Hub, opts ConnectionOptions, w http.ResponseWriter, r *http.Request, wsCfg config.WebSocketConfig) (*Client, error) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	client := &Client{
		hub:           hub,
		conn:          conn,
		send:          make(chan []byte, 256),
		UserID:        opts.UserID,
		handleCommand: opts.HandleCommand,
		onPong:        opts.OnPong,
		onClose:       opts.OnClose,
	}
	hub.Register(client)

	go client.writePump(wsCfg)
	go client.readPump(wsCfg)

	return client, nil
}

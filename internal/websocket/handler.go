package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs runs one connection until it closes. The caller's handler goroutine
// becomes the read pump.
func ServeWs(hub *Hub, c *websocket.Conn, userID string) {
	client := &Client{Hub: hub, Conn: c, UserID: userID, Send: make(chan []byte, 256)}
	client.Hub.register <- client

	go client.writePump()
	client.readPump()
}

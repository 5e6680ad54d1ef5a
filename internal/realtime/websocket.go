package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"
)

var errOriginNotAllowed = errors.New("websocket origin not allowed")

// WebSocketHandler upgrades viewer connections and keeps each one in its
// wishlist's room until the socket closes.
type WebSocketHandler struct {
	hub            *Hub
	writeTimeout   time.Duration
	allowedOrigins []string
	log            logrus.FieldLogger
}

func NewWebSocketHandler(hub *Hub, writeTimeout time.Duration, allowedOrigins []string, log logrus.FieldLogger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:            hub,
		writeTimeout:   writeTimeout,
		allowedOrigins: allowedOrigins,
		log:            log,
	}
}

// ServeRoom upgrades the request and blocks until the viewer goes away.
func (h *WebSocketHandler) ServeRoom(w http.ResponseWriter, r *http.Request, wishlistID uuid.UUID) {
	websocket.Server{
		Handshake: h.checkOrigin,
		Handler: func(ws *websocket.Conn) {
			h.serve(ws, wishlistID)
		},
	}.ServeHTTP(w, r)
}

// checkOrigin lets through clients that send no Origin header. Browser
// requests must come from a configured origin.
func (h *WebSocketHandler) checkOrigin(config *websocket.Config, r *http.Request) error {
	origin, err := websocket.Origin(config, r)
	if err != nil {
		return err
	}
	config.Origin = origin
	if origin == nil || slices.Contains(h.allowedOrigins, "*") {
		return nil
	}
	if slices.Contains(h.allowedOrigins, origin.Scheme+"://"+origin.Host) {
		return nil
	}
	h.log.WithField("origin", origin.String()).Warn("rejected websocket origin")
	return errOriginNotAllowed
}

func (h *WebSocketHandler) serve(ws *websocket.Conn, wishlistID uuid.UUID) {
	conn := &wsConn{ws: ws, writeTimeout: h.writeTimeout}
	h.hub.Connect(conn, wishlistID)
	defer func() {
		h.hub.Disconnect(conn, wishlistID)
		conn.Close()
	}()

	// The HTTP server's read timeout must not end an idle viewer.
	if err := ws.SetReadDeadline(time.Time{}); err != nil {
		return
	}

	// Viewers only listen. Reading keeps the connection's control frames
	// flowing and tells us when the client leaves.
	var frame string
	for {
		if err := websocket.Message.Receive(ws, &frame); err != nil {
			return
		}
	}
}

type wsConn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
	mu           sync.Mutex
}

func (c *wsConn) Send(ctx context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}
	if err := websocket.Message.Send(c.ws, string(data)); err != nil {
		return fmt.Errorf("failed to write ws frame: %w", err)
	}
	return nil
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

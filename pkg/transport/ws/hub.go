// Package ws implements peers.Transport over WebSocket connections.
//
// A Hub accepts connections through ServeHTTP and opens them with Dial.
// Every connection is one peer. Each side announces its name in a text
// frame, after which every binary frame carries one replicator datagram.
// Reads and writes run on per-connection goroutines so the Transport
// methods never block on the network.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/apistol78/traktor-sub009/pkg/peers"
)

// ErrBadHello is returned when a peer does not open with its name.
var ErrBadHello = errors.New("ws: expected hello frame")

type datagram struct {
	from peers.Handle
	data []byte
}

// Hub is a set of WebSocket connections acting as one Transport.
// It is safe for concurrent use.
type Hub struct {
	config   *Config
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	next    peers.Handle
	conns   map[peers.Handle]*conn
	inbox   []datagram
	dropped uint64
	closed  bool
}

var _ peers.Transport = (*Hub)(nil)

// conn is one connected peer.
type conn struct {
	hub    *Hub
	handle peers.Handle
	name   string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
}

// NewHub creates a hub. A nil config uses DefaultConfig.
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	} else {
		config = config.Clone()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		config: config,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: config.CheckOrigin,
		},
		next:  1,
		conns: make(map[peers.Handle]*conn),
	}
}

// ServeHTTP upgrades the request and attaches the connection as a peer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	if _, err := h.attach(ws); err != nil {
		h.logger.Warn("peer handshake failed", "remote", r.RemoteAddr, "error", err)
	}
}

// Dial connects to a hub at url, retrying with exponential backoff until
// it succeeds, ctx ends or DialMaxTries is reached.
func (h *Hub) Dial(ctx context.Context, url string) (peers.Handle, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = h.config.DialInitialInterval
	eb.MaxInterval = h.config.DialMaxInterval

	opts := []backoff.RetryOption{backoff.WithBackOff(eb)}
	if h.config.DialMaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(h.config.DialMaxTries))
	}

	attempt := 0
	ws, err := backoff.Retry(ctx, func() (*websocket.Conn, error) {
		attempt++
		if h.isClosed() {
			return nil, backoff.Permanent(peers.ErrClosed)
		}
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			h.logger.Debug("dial failed", "url", url, "attempt", attempt, "error", err)
			return nil, err
		}
		return ws, nil
	}, opts...)
	if err != nil {
		return 0, fmt.Errorf("ws: dial %s: %w", url, err)
	}
	return h.attach(ws)
}

// attach exchanges names and starts the connection's goroutines.
func (h *Hub) attach(ws *websocket.Conn) (peers.Handle, error) {
	ws.SetReadLimit(h.config.MaxMessageSize)

	ws.SetWriteDeadline(time.Now().Add(h.config.HandshakeTimeout))
	if err := ws.WriteMessage(websocket.TextMessage, []byte(h.config.Name)); err != nil {
		ws.Close()
		return 0, err
	}
	ws.SetReadDeadline(time.Now().Add(h.config.HandshakeTimeout))
	kind, hello, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return 0, err
	}
	if kind != websocket.TextMessage {
		ws.Close()
		return 0, ErrBadHello
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		ws.Close()
		return 0, peers.ErrClosed
	}
	c := &conn{
		hub:    h,
		handle: h.next,
		name:   string(hello),
		ws:     ws,
		send:   make(chan []byte, h.config.SendQueue),
		done:   make(chan struct{}),
	}
	h.next++
	h.conns[c.handle] = c
	h.mu.Unlock()

	h.logger.Info("peer attached", "peer", c.handle, "name", c.name, "remote", ws.RemoteAddr().String())
	go c.readLoop()
	go c.writeLoop()
	return c.handle, nil
}

func (h *Hub) detach(c *conn, err error) {
	h.mu.Lock()
	if h.conns[c.handle] == c {
		delete(h.conns, c.handle)
	}
	h.mu.Unlock()
	if err != nil && websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNormalClosure) {
		h.logger.Warn("peer connection lost", "peer", c.handle, "error", err)
	} else {
		h.logger.Info("peer detached", "peer", c.handle)
	}
}

func (c *conn) close() {
	c.once.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// readLoop queues inbound binary frames until the connection fails.
func (c *conn) readLoop() {
	var err error
	defer func() {
		c.close()
		c.hub.detach(c, err)
	}()

	for {
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		var kind int
		var msg []byte
		kind, msg, err = c.ws.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		c.hub.push(c.handle, msg)
	}
}

// writeLoop drains the send queue onto the socket.
func (c *conn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				c.hub.logger.Debug("write failed", "peer", c.handle, "error", err)
				c.close()
				return
			}
		}
	}
}

func (h *Hub) push(from peers.Handle, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.inbox) >= h.config.MaxInbox {
		h.dropped++
		return
	}
	h.inbox = append(h.inbox, datagram{from: from, data: data})
}

func (h *Hub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Dropped returns the number of inbound frames dropped on a full inbox.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Close disconnects every peer. The hub cannot be reused.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.inbox = nil
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.close()
	}
	return nil
}

func (h *Hub) Update() error {
	if h.isClosed() {
		return peers.ErrClosed
	}
	return nil
}

func (h *Hub) PeerHandles() []peers.Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	handles := make([]peers.Handle, 0, len(h.conns))
	for handle := range h.conns {
		handles = append(handles, handle)
	}
	slices.Sort(handles)
	return handles
}

func (h *Hub) SendReady(handle peers.Handle) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.conns[handle]
	return ok && len(c.send) < cap(c.send)
}

// Send queues data for the peer. WebSocket delivery is always reliable, so
// the reliable flag is ignored.
func (h *Hub) Send(handle peers.Handle, data []byte, _ bool) error {
	h.mu.Lock()
	c, ok := h.conns[handle]
	closed := h.closed
	h.mu.Unlock()
	if closed {
		return peers.ErrClosed
	}
	if !ok {
		return peers.ErrUnknownPeer
	}
	select {
	case <-c.done:
		return peers.ErrUnknownPeer
	default:
	}
	msg := append([]byte(nil), data...)
	select {
	case c.send <- msg:
		return nil
	default:
		return peers.ErrNotReady
	}
}

func (h *Hub) ReceiveAnyPending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.inbox) > 0
}

func (h *Hub) Receive(buf []byte) (int, peers.Handle, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.inbox) == 0 {
		return 0, 0, peers.ErrNoPending
	}
	d := h.inbox[0]
	h.inbox[0] = datagram{}
	h.inbox = h.inbox[1:]
	if len(d.data) > len(buf) {
		return 0, d.from, peers.ErrBufferTooSmall
	}
	return copy(buf, d.data), d.from, nil
}

func (h *Hub) IsPrimary() bool {
	return h.config.Primary
}

func (h *Hub) PeerName(handle peers.Handle) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.conns[handle]; ok {
		return c.name
	}
	return ""
}

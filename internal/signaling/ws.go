package signaling

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/loopcall/internal/util"
)

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSChannel is a signaling channel over a single WebSocket connection.
type WSChannel struct {
	conn *websocket.Conn
	in   *inbox
	mu   sync.Mutex // serializes writes

	closeOnce sync.Once
}

var _ Channel = (*WSChannel)(nil)

func newWSChannel(conn *websocket.Conn) *WSChannel {
	c := &WSChannel{conn: conn, in: newInbox()}
	go c.readLoop()
	return c
}

func (c *WSChannel) readLoop() {
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.in.finish(nil)
			} else {
				c.in.finish(fmt.Errorf("failed to read WS message: %w", err))
			}
			return
		}
		c.in.push(msg)
	}
}

// Send writes msg as JSON. The write deadline follows ctx, capped at writeTimeout.
func (c *WSChannel) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.in.done:
		return ErrClosed
	default:
	}

	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write WS message: %w", err)
	}
	return nil
}

func (c *WSChannel) OnMessage(fn func(Message)) { c.in.setHandler(fn) }

func (c *WSChannel) Done() <-chan struct{} { return c.in.done }

func (c *WSChannel) Err() error { return c.in.stopErr() }

// Close sends a close frame and shuts the connection down.
func (c *WSChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.in.stop(nil)

		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		c.mu.Unlock()

		err = c.conn.Close()
	})
	return err
}

// Server is the answer-side WebSocket signaling server. It accepts exactly one
// client presenting the right PIN.
type Server struct {
	pin      string
	listener net.Listener
	http     *http.Server
	connCh   chan *websocket.Conn
}

// Listen starts a signaling server on addr (use port 0 for a random port).
// An empty pin disables the PIN check.
func Listen(addr, pin string) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start WS server: %w", err)
	}

	s := &Server{
		pin:      pin,
		listener: listener,
		connCh:   make(chan *websocket.Conn, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.http = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("WS server stopped: %v", err)
		}
	}()

	return s, nil
}

// Port returns the TCP port the server listens on.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// URL returns the ws:// URL a client on this host would dial, PIN included.
func (s *Server) URL() string {
	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort("127.0.0.1", fmt.Sprint(s.Port())),
		Path:   "/ws",
	}
	if s.pin != "" {
		u.RawQuery = url.Values{"pin": {s.pin}}.Encode()
	}
	return u.String()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.pin != "" && r.URL.Query().Get("pin") != s.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	// Only accept the first client.
	select {
	case s.connCh <- conn:
	default:
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "already connected"))
		conn.Close()
	}
}

// Accept blocks until a client connects or ctx is cancelled.
func (s *Server) Accept(ctx context.Context) (*WSChannel, error) {
	select {
	case conn := <-s.connCh:
		return newWSChannel(conn), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting connections. Channels already accepted stay open.
func (s *Server) Close() error {
	return s.http.Close()
}

// Dial connects to a signaling server URL such as ws://host:port/ws?pin=1234.
func Dial(ctx context.Context, wsURL string) (*WSChannel, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("failed to connect to WS server: %w", ErrInvalidPIN)
		}
		return nil, fmt.Errorf("failed to connect to WS server: %w", err)
	}
	return newWSChannel(conn), nil
}

// ErrInvalidPIN is returned by Dial when the server rejects the PIN.
var ErrInvalidPIN = errors.New("signaling: invalid PIN")

// GeneratePIN returns a random numeric PIN of the specified length.
func GeneratePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}

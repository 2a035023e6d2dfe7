package wsclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const defaultHandshakeTimeout = 10 * time.Second

// Conn is an open WebSocket. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

// Dialer opens WebSockets.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// TokenSource returns the current auth token, or "" when there is none.
type TokenSource func() string

// WebsocketDialer dials with gorilla/websocket and authenticates the
// handshake with "Authorization: Token <token>".
type WebsocketDialer struct {
	dialer *websocket.Dialer
	token  TokenSource
}

// NewWebsocketDialer creates a dialer. token may be nil.
func NewWebsocketDialer(token TokenSource) *WebsocketDialer {
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: defaultHandshakeTimeout,
		},
		token: token,
	}
}

// Dial implements [Dialer].
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	header := http.Header{}
	if d.token != nil {
		if t := d.token(); t != "" {
			header.Set("Authorization", "Token "+t)
		}
	}

	conn, resp, err := d.dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

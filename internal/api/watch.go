package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
)

// Watch streams change events from the server until ctx is cancelled or the
// connection drops. It returns nil only when ctx ends the stream.
func (c *Client) Watch(ctx context.Context, onEvent func(ChangeEvent)) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	wsURL := *c.baseURL
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/ws"
	values := url.Values{}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		if token != "" {
			values.Set("token", token)
		}
	}
	wsURL.RawQuery = values.Encode()

	header := http.Header{}
	header.Set("User-Agent", c.userAgent)
	dialer := websocket.Dialer{HandshakeTimeout: c.timeout}
	conn, resp, err := dialer.DialContext(ctx, wsURL.String(), header)
	if err != nil {
		if resp != nil {
			return &ServerError{Status: resp.StatusCode}
		}
		return &NetworkError{Method: http.MethodGet, Path: "/ws", Err: err}
	}
	defer func() { _ = conn.Close() }()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &NetworkError{Method: http.MethodGet, Path: "/ws", Err: err}
		}
		var event ChangeEvent
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}
		if onEvent != nil {
			onEvent(event)
		}
	}
}

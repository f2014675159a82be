package transport

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket opens binary WebSocket connections with gorilla/websocket.
// Every received WebSocket message is delivered as one OnMessage call.
type WebSocket struct {
	opts   options
	header http.Header
}

// NewWebSocket creates a WebSocket transport factory.
func NewWebSocket(opts ...Option) *WebSocket {
	return &WebSocket{opts: buildOptions(opts)}
}

// WithHeader returns a copy of the factory that sends header with every
// opening handshake.
func (ws *WebSocket) WithHeader(header http.Header) *WebSocket {
	cp := *ws
	cp.header = header.Clone()
	return &cp
}

// Open starts connecting to url in the background.
func (ws *WebSocket) Open(url string, cb Callbacks) (Conn, error) {
	if url == "" {
		return nil, errors.New("transport: empty url")
	}

	logger := ws.opts.logger.With("transport", "websocket", "url", url)
	c := newStreamConn(ws.opts, cb, logger)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: ws.opts.dialTimeout,
	}

	go c.run(func(ctx context.Context) (wire, error) {
		conn, _, err := dialer.DialContext(ctx, url, ws.header)
		if err != nil {
			return nil, err
		}
		conn.SetReadLimit(int64(ws.opts.maxMessageSize))
		return &wsWire{conn: conn}, nil
	})

	return c, nil
}

type wsWire struct {
	conn *websocket.Conn
}

func (w *wsWire) readMessage() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

func (w *wsWire) writeMessage(data []byte, deadline time.Time) error {
	w.conn.SetWriteDeadline(deadline)
	return w.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (w *wsWire) close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return w.conn.Close()
}

func (w *wsWire) clean(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

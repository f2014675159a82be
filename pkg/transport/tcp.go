package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/vango-dev/pomelo/pkg/protocol"
)

// TCP opens raw TCP connections. TCP has no message boundaries, so the read
// loop reassembles whole frames from the stream and delivers one frame per
// OnMessage call.
type TCP struct {
	opts options
}

// NewTCP creates a TCP transport factory.
func NewTCP(opts ...Option) *TCP {
	return &TCP{opts: buildOptions(opts)}
}

// Open starts connecting to addr in the background. addr is "host:port",
// optionally prefixed with "tcp://".
func (t *TCP) Open(addr string, cb Callbacks) (Conn, error) {
	addr = strings.TrimPrefix(addr, "tcp://")
	if addr == "" {
		return nil, errors.New("transport: empty address")
	}

	logger := t.opts.logger.With("transport", "tcp", "addr", addr)
	c := newStreamConn(t.opts, cb, logger)

	maxBody := t.opts.maxMessageSize - protocol.FrameHeaderSize
	go c.run(func(ctx context.Context) (wire, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return &tcpWire{conn: conn, r: bufio.NewReader(conn), maxBody: maxBody}, nil
	})

	return c, nil
}

type tcpWire struct {
	conn    net.Conn
	r       *bufio.Reader
	maxBody int
}

func (w *tcpWire) readMessage() ([]byte, error) {
	return protocol.ReadFrame(w.r, w.maxBody)
}

func (w *tcpWire) writeMessage(data []byte, deadline time.Time) error {
	w.conn.SetWriteDeadline(deadline)
	_, err := w.conn.Write(data)
	return err
}

func (w *tcpWire) close() error {
	return w.conn.Close()
}

func (w *tcpWire) clean(err error) bool {
	return errors.Is(err, io.EOF)
}

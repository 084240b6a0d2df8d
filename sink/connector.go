package sink

import (
	"net"
	"sync"
	"time"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/journal-sink/defs"
	"github.com/relex/journal-sink/util"
)

// sinkConnector owns the socket to the source and the single reusable receive buffer
// shared with the handle that created it.
//
// The buffer keeps a read window [pos, limit); refills compact the unread remainder to the
// front so a trailing partial header or payload survives across frame boundaries without
// being copied out. Payload bytes are handed to journal appenders directly from the buffer.
//
// All buffer access happens on the consumer's goroutine. The socket field alone is guarded
// by connMu, because Close may arrive from the sink's closing goroutine to unblock a read
// in flight.
type sinkConnector struct {
	logger         logger.Logger
	address        string
	reconnectDelay time.Duration
	closeSignal    channels.Awaitable // sink-wide closed flag; wakes the reconnect wait
	metrics        *sinkMetrics
	connMu         sync.Mutex
	conn           net.Conn
	buf            []byte
	pos            int
	limit          int
}

func newSinkConnector(parentLogger logger.Logger, cfg Config, closeSignal channels.Awaitable, metrics *sinkMetrics) *sinkConnector {
	return &sinkConnector{
		logger:         parentLogger.WithField(defs.LabelPart, "connector"),
		address:        cfg.Address,
		reconnectDelay: cfg.ReconnectDelay,
		closeSignal:    closeSignal,
		metrics:        metrics,
		conn:           nil,
		buf:            make([]byte, cfg.MinBufferSize.Bytes()),
		pos:            0,
		limit:          0,
	}
}

// Open blocks until either the sink is closed or a connection to the source succeeds,
// sleeping reconnectDelay between attempts. The receive buffer is emptied on success.
func (c *sinkConnector) Open() bool {
	for !c.closeSignal.Peek() {
		c.pos = 0
		c.limit = 0

		conn, err := net.DialTimeout("tcp", c.address, defs.SinkConnectionTimeout)
		if err == nil {
			if tcpConn, ok := conn.(*net.TCPConn); ok {
				if _, berr := util.TrySetTCPReadBuffer(tcpConn, len(c.buf), 4096); berr != nil {
					c.logger.Warnf("error changing receive buffer size: %s", berr.Error())
				}
			}
			c.setConn(conn)
			c.metrics.OnConnected()
			c.logger.Infof("connected to %s", c.address)
			return true
		}

		c.metrics.OnNetworkError()
		c.logger.Infof("failed to connect to %s, retrying: %s", c.address, err.Error())
		if c.closeSignal.Wait(c.reconnectDelay) {
			break
		}
	}
	return false
}

// IsOpen tells whether the connector holds a live socket and the sink is not closed
func (c *sinkConnector) IsOpen() bool {
	return c.currentConn() != nil && !c.closeSignal.Peek()
}

// Close closes and drops the socket; it may be called repeatedly and from other goroutines
// to unblock a read in flight
func (c *sinkConnector) Close() {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Warnf("error closing socket: %s", err.Error())
		}
	}
}

// WriteFull writes all of p, retrying partial writes. On any error the socket is closed and
// false is returned; the next read attempt triggers a reconnect.
func (c *sinkConnector) WriteFull(p []byte) bool {
	conn := c.currentConn()
	if conn == nil {
		return false
	}
	for len(p) > 0 {
		n, err := conn.Write(p)
		if err != nil {
			c.logger.Warnf("failed to write to %s: %s", c.address, err.Error())
			c.metrics.OnNetworkError()
			c.Close()
			return false
		}
		p = p[n:]
	}
	return true
}

// ReadAtLeast ensures at least min bytes are buffered for consumption. If the current window
// already holds threshold bytes it returns immediately; otherwise the unread remainder is
// compacted to the front and the socket is read until min bytes have accumulated.
// EOF or a read error closes the socket and yields false.
func (c *sinkConnector) ReadAtLeast(threshold int, min int) bool {
	if c.closeSignal.Peek() {
		return false
	}
	if c.limit-c.pos >= threshold {
		return true
	}
	conn := c.currentConn()
	if conn == nil {
		return false
	}

	if c.pos == c.limit {
		c.pos = 0
		c.limit = 0
	} else {
		c.limit = copy(c.buf, c.buf[c.pos:c.limit])
		c.pos = 0
	}

	for c.limit < min {
		n, err := conn.Read(c.buf[c.limit:])
		if n > 0 {
			c.limit += n
			continue
		}
		if err != nil {
			c.logger.Infof("lost connection to %s: %s", c.address, err.Error())
			c.metrics.OnNetworkError()
			c.Close()
			return false
		}
	}
	return true
}

// FillPayload discards the buffered window and reads once from the socket, up to max bytes.
// Used for progressive payload copies larger than the buffer.
func (c *sinkConnector) FillPayload(max int) (int, error) {
	conn := c.currentConn()
	if conn == nil {
		return 0, net.ErrClosed
	}
	if max > len(c.buf) {
		max = len(c.buf)
	}
	for {
		n, err := conn.Read(c.buf[:max])
		if n > 0 {
			c.pos = 0
			c.limit = n
			return n, nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// Buffered returns the number of unread bytes in the window
func (c *sinkConnector) Buffered() int {
	return c.limit - c.pos
}

// Pending returns the unread window without consuming it
func (c *sinkConnector) Pending() []byte {
	return c.buf[c.pos:c.limit]
}

// Consume returns the next n buffered bytes and advances past them
func (c *sinkConnector) Consume(n int) []byte {
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b
}

// Skip advances past n buffered bytes
func (c *sinkConnector) Skip(n int) {
	c.pos += n
}

// Discard advances past n stream bytes, pulling from the socket as needed
func (c *sinkConnector) Discard(n int) bool {
	for n > 0 {
		if c.Buffered() == 0 {
			if !c.ReadAtLeast(1, 1) {
				return false
			}
		}
		step := c.Buffered()
		if step > n {
			step = n
		}
		c.pos += step
		n -= step
	}
	return true
}

// EnsureBuffered makes the whole of an n-byte payload available in the window, growing the
// buffer first when n exceeds its capacity. Only memory-mode handles need the growth; the
// persistent writers stream oversized payloads through FillPayload instead.
func (c *sinkConnector) EnsureBuffered(n int) bool {
	if n > len(c.buf) {
		grown := make([]byte, n)
		c.limit = copy(grown, c.buf[c.pos:c.limit])
		c.pos = 0
		c.buf = grown
	}
	return c.ReadAtLeast(n, n)
}

func (c *sinkConnector) currentConn() net.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.conn
}

func (c *sinkConnector) setConn(conn net.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

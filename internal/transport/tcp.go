// Package transport implements the length-prefixed TCP channel used by file
// transfer and projection streaming.
//
// Every message on the wire is a 4-byte big-endian length followed by the
// payload.
package transport

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"sync"
	"time"

	serrors "github.com/trueLoving/Stationuli/internal/errors"
)

const (
	headerLen = 4

	// DefaultMaxFrame bounds the payload size accepted by Receive. A 1 MiB
	// chunk grows to roughly 1.4 MiB once JSON/base64 encoded.
	DefaultMaxFrame = 64 << 20
)

type Conn struct {
	conn     net.Conn
	rd       *bufio.Reader
	wr       *bufio.Writer
	wmu      sync.Mutex
	maxFrame uint32
	idle     time.Duration

	closeOnce sync.Once
	closeErr  error
}

func newConn(c net.Conn) *Conn {
	if tc, ok := c.(*net.TCPConn); ok {
		tc.SetNoDelay(true)
	}
	return &Conn{
		conn:     c,
		rd:       bufio.NewReaderSize(c, 64*1024),
		wr:       bufio.NewWriterSize(c, 64*1024),
		maxFrame: DefaultMaxFrame,
	}
}

// Wrap adopts an already established connection.
func Wrap(c net.Conn) *Conn {
	return newConn(c)
}

// Connect dials address:port. The dial is bounded by ctx only; there is no
// implicit retry.
func Connect(ctx context.Context, address string, port uint16) (*Conn, error) {
	addr := net.JoinHostPort(address, strconv.Itoa(int(port)))

	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, serrors.Network("connect", err, addr)
	}

	return newConn(c), nil
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetMaxFrame overrides the largest payload Receive accepts.
func (c *Conn) SetMaxFrame(n uint32) {
	c.maxFrame = n
}

// SetIdleTimeout bounds each Receive call. Zero disables the bound.
func (c *Conn) SetIdleTimeout(d time.Duration) {
	c.idle = d
}

// Send writes one framed message and flushes it. Any failure leaves the
// connection unusable.
func (c *Conn) Send(payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return serrors.Protocol("send", serrors.ErrFrameTooLarge, fmt.Sprintf("%d bytes", len(payload)))
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()

	var hdr [headerLen]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))

	if _, err := c.wr.Write(hdr[:]); err != nil {
		return serrors.Network("send", err, "write header")
	}
	if _, err := c.wr.Write(payload); err != nil {
		return serrors.Network("send", err, "write payload")
	}
	if err := c.wr.Flush(); err != nil {
		return serrors.Network("send", err, "flush")
	}

	return nil
}

// Receive reads one framed message.
func (c *Conn) Receive() ([]byte, error) {
	if c.idle > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.idle))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	var hdr [headerLen]byte
	if _, err := io.ReadFull(c.rd, hdr[:]); err != nil {
		return nil, serrors.Network("receive", err, "read header")
	}

	n := binary.BigEndian.Uint32(hdr[:])
	if c.maxFrame > 0 && n > c.maxFrame {
		return nil, serrors.Protocol("receive", serrors.ErrFrameTooLarge,
			fmt.Sprintf("%d > %d bytes", n, c.maxFrame))
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(c.rd, buf); err != nil {
		return nil, serrors.Network("receive", err, fmt.Sprintf("read %d byte payload", n))
	}

	return buf, nil
}

// Poll waits up to d for the next message to start arriving without
// consuming any bytes, so a timed-out Poll leaves the framing intact.
func (c *Conn) Poll(d time.Duration) (bool, error) {
	if c.rd.Buffered() > 0 {
		return true, nil
	}

	c.conn.SetReadDeadline(time.Now().Add(d))
	defer c.conn.SetReadDeadline(time.Time{})

	if _, err := c.rd.Peek(1); err != nil {
		if serrors.IsTimeout(err) {
			return false, nil
		}
		return false, serrors.Network("poll", err, "")
	}

	return true, nil
}

// Close releases the socket. Calling it more than once is harmless.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

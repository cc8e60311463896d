package transport

import (
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	serrors "github.com/trueLoving/Stationuli/internal/errors"
)

type Listener struct {
	ln      *net.TCPListener
	retired atomic.Bool
}

// Listen binds 0.0.0.0:port. Retrying on address-in-use is left to callers.
func Listen(port uint16) (*Listener, error) {
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(int(port)))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, serrors.Network("listen", fmt.Errorf("%w: %w", serrors.ErrBindFailed, err), addr)
	}

	return &Listener{ln: ln.(*net.TCPListener)}, nil
}

func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Port returns the bound port, useful when listening on port 0.
func (l *Listener) Port() uint16 {
	return uint16(l.ln.Addr().(*net.TCPAddr).Port)
}

// Accept blocks until a peer connects or the listener is closed.
func (l *Listener) Accept() (*Conn, error) {
	l.ln.SetDeadline(time.Time{})
	return l.accept()
}

// AcceptTimeout waits at most d for a peer. Expiry is reported as
// ErrAcceptTimeout and leaves the listener usable.
func (l *Listener) AcceptTimeout(d time.Duration) (*Conn, error) {
	l.ln.SetDeadline(time.Now().Add(d))
	return l.accept()
}

func (l *Listener) accept() (*Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		if serrors.IsTimeout(err) {
			return nil, serrors.Network("accept", serrors.ErrAcceptTimeout, "")
		}
		return nil, serrors.Network("accept", err, "")
	}
	return newConn(c), nil
}

// Retire closes the socket and marks the listener as no longer serving, for
// callers that cannot take the lock guarding it.
func (l *Listener) Retire() error {
	l.retired.Store(true)
	return l.Close()
}

func (l *Listener) Retired() bool {
	return l.retired.Load()
}

func (l *Listener) Close() error {
	err := l.ln.Close()
	if serrors.IsClosed(err) {
		return nil
	}
	return err
}

// Package errors defines the error taxonomy shared by the transport,
// discovery, transfer and session packages.
package errors

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrBindFailed         = errors.New("bind failed")
	ErrAcceptTimeout      = errors.New("accept timeout")
	ErrUnexpectedMessage  = errors.New("unexpected message")
	ErrUnknownMessage     = errors.New("unknown message type")
	ErrMissingChunk       = errors.New("missing chunk")
	ErrDuplicateChunk     = errors.New("duplicate chunk")
	ErrChunkOutOfRange    = errors.New("chunk id out of range")
	ErrChunkCountMismatch = errors.New("chunk count mismatch")
	ErrSizeMismatch       = errors.New("file size mismatch")
	ErrFrameTooLarge      = errors.New("frame too large")
	ErrAlreadyStreaming   = errors.New("already streaming")
	ErrNotConnected       = errors.New("not connected")
	ErrBusy               = errors.New("lifecycle operation in progress")
	ErrRemote             = errors.New("remote reported error")
)

// NetworkError reports bind, connect, accept, read and write failures.
type NetworkError struct {
	Operation string
	Err       error
	Details   string
}

func (e *NetworkError) Error() string {
	return format("network", e.Operation, e.Err, e.Details)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProtocolError reports malformed or out-of-sequence messages and codec failures.
type ProtocolError struct {
	Operation string
	Err       error
	Details   string
}

func (e *ProtocolError) Error() string {
	return format("protocol", e.Operation, e.Err, e.Details)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// FileError reports local I/O failures and reassembly validation failures.
type FileError struct {
	Operation string
	Path      string
	Err       error
	Details   string
}

func (e *FileError) Error() string {
	op := e.Operation
	if e.Path != "" {
		op = fmt.Sprintf("%s %s", op, e.Path)
	}
	return format("file", op, e.Err, e.Details)
}

func (e *FileError) Unwrap() error { return e.Err }

func format(kind, op string, err error, details string) string {
	msg := kind + " error"
	if op != "" {
		msg += ": " + op
	}
	if err != nil {
		msg += ": " + err.Error()
	}
	if details != "" {
		msg += " (" + details + ")"
	}
	return msg
}

func Network(op string, err error, details string) error {
	return &NetworkError{Operation: op, Err: err, Details: details}
}

func Protocol(op string, err error, details string) error {
	return &ProtocolError{Operation: op, Err: err, Details: details}
}

func File(op, path string, err error) error {
	return &FileError{Operation: op, Path: path, Err: err}
}

func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

func IsProtocol(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

func IsFile(err error) bool {
	var fe *FileError
	return errors.As(err, &fe)
}

func IsAddrInUse(err error) bool {
	return errors.Is(err, syscall.EADDRINUSE)
}

// IsTimeout reports whether err is a deadline expiry on a socket.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, ErrAcceptTimeout) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}

// Status maps an error to the HTTP status used by the control API.
func Status(err error) int {
	switch {
	case err == nil:
		return 200
	case errors.Is(err, ErrNotFound):
		return 404
	case errors.Is(err, ErrBusy), errors.Is(err, ErrAlreadyStreaming):
		return 409
	case IsProtocol(err):
		return 400
	case IsNetwork(err):
		return 502
	default:
		return 500
	}
}

package transfer

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	serrors "github.com/trueLoving/Stationuli/internal/errors"
	"github.com/trueLoving/Stationuli/internal/transport"
)

const (
	DefaultIdleTimeout = 30 * time.Second

	// completeDrainTimeout bounds the wait for the trailing Complete once
	// every chunk has arrived.
	completeDrainTimeout = 2 * time.Second
)

type ReceiverOption func(*Receiver)

// WithIdleTimeout bounds the wait for each message within a session.
func WithIdleTimeout(d time.Duration) ReceiverOption {
	return func(r *Receiver) {
		if d > 0 {
			r.idleTimeout = d
		}
	}
}

// WithMaxFileSize rejects announced files larger than n bytes. Zero means no
// limit.
func WithMaxFileSize(n uint64) ReceiverOption {
	return func(r *Receiver) {
		r.maxFileSize = n
	}
}

type Receiver struct {
	idleTimeout time.Duration
	maxFileSize uint64
}

func NewReceiver(opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		idleTimeout: DefaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Received describes a file that was written to disk.
type Received struct {
	Path string
	Name string
	Size uint64
}

// Receive runs the receiving side of one session on conn and writes the file
// under saveTarget. saveTarget is a directory when it ends with a separator
// or names an existing directory, otherwise it is the exact output path.
// conn is closed on return.
func (r *Receiver) Receive(conn *transport.Conn, saveTarget string) (Received, error) {
	defer conn.Close()
	conn.SetIdleTimeout(r.idleTimeout)

	start, err := r.readStart(conn)
	if err != nil {
		return Received{}, err
	}

	name, err := sanitizeFileName(start.FileName)
	if err != nil {
		return Received{}, err
	}
	if r.maxFileSize > 0 && start.FileSize > r.maxFileSize {
		return Received{}, serrors.Protocol("receive", fmt.Errorf("file of %d bytes exceeds limit %d",
			start.FileSize, r.maxFileSize), name)
	}

	slog.Info("Receiving file", "file", name, "size", start.FileSize,
		"chunks", start.TotalChunks, "remote", conn.RemoteAddr())

	chunks, err := r.collect(conn, start, name)
	if err != nil {
		return Received{}, err
	}

	data, err := MergeExpect(start.TotalChunks, start.FileSize, chunks)
	if err != nil {
		return Received{}, err
	}

	path := resolveSavePath(saveTarget, name)
	if err := writeFileAtomic(path, data); err != nil {
		return Received{}, err
	}

	slog.Info("File saved", "path", path, "size", len(data))
	return Received{Path: path, Name: name, Size: start.FileSize}, nil
}

func (r *Receiver) readStart(conn *transport.Conn) (StartTransfer, error) {
	b, err := conn.Receive()
	if err != nil {
		return StartTransfer{}, err
	}

	msg, err := Decode(b)
	if err != nil {
		return StartTransfer{}, err
	}

	start, ok := msg.(StartTransfer)
	if !ok {
		return StartTransfer{}, serrors.Protocol("receive", serrors.ErrUnexpectedMessage,
			fmt.Sprintf("expected %s, got %s", TypeStartTransfer, msg.messageType()))
	}
	return start, nil
}

// collect reads chunks until total distinct ids were seen, or until the
// sender says Complete early. A duplicate or out of range id, or more bytes
// than announced, ends the session at once.
func (r *Receiver) collect(conn *transport.Conn, start StartTransfer, name string) ([]FileChunk, error) {
	seen := make(map[uint64]struct{})
	chunks := make([]FileChunk, 0, min(start.TotalChunks, 1024))
	var received uint64

	for uint64(len(seen)) < start.TotalChunks {
		b, err := conn.Receive()
		if err != nil {
			return nil, err
		}

		msg, err := Decode(b)
		if errors.Is(err, serrors.ErrUnknownMessage) {
			slog.Warn("Ignoring unknown message", "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}

		switch m := msg.(type) {
		case Chunk:
			if err := checkChunk(start, seen, received, m, name); err != nil {
				return nil, err
			}
			received += uint64(len(m.Data))

			chunks = append(chunks, FileChunk{
				ChunkID:     m.ChunkID,
				Data:        m.Data,
				TotalChunks: start.TotalChunks,
				FileName:    name,
				FileSize:    start.FileSize,
			})
			seen[m.ChunkID] = struct{}{}

			if len(seen)%10 == 0 {
				slog.Debug("Received chunks", "received", len(seen), "total", start.TotalChunks)
			}
		case Complete:
			return chunks, nil
		case ErrorMessage:
			return nil, serrors.Protocol("receive", fmt.Errorf("%w: %s", serrors.ErrRemote, m.Message), name)
		default:
			slog.Warn("Unexpected message during transfer", "type", msg.messageType())
		}
	}

	r.drainComplete(conn)
	return chunks, nil
}

func checkChunk(start StartTransfer, seen map[uint64]struct{}, received uint64, m Chunk, name string) error {
	if m.ChunkID >= start.TotalChunks {
		return serrors.File("receive", name, fmt.Errorf("%w: chunk %d of %d",
			serrors.ErrChunkOutOfRange, m.ChunkID, start.TotalChunks))
	}
	if _, dup := seen[m.ChunkID]; dup {
		return serrors.File("receive", name, fmt.Errorf("%w: chunk %d", serrors.ErrDuplicateChunk, m.ChunkID))
	}
	if received+uint64(len(m.Data)) > start.FileSize {
		return serrors.File("receive", name, fmt.Errorf("%w: more than %d bytes",
			serrors.ErrSizeMismatch, start.FileSize))
	}
	return nil
}

// drainComplete consumes the trailing Complete so that closing the socket
// does not reset the sender while it is still writing it.
func (r *Receiver) drainComplete(conn *transport.Conn) {
	conn.SetIdleTimeout(completeDrainTimeout)

	b, err := conn.Receive()
	if err != nil {
		slog.Debug("No completion message", "error", err)
		return
	}
	if typ, _ := ParseMessageType(b); typ != TypeComplete {
		slog.Debug("Unexpected trailing message", "type", typ)
	}
}

// sanitizeFileName keeps only the base name so a peer cannot write outside
// the save directory.
func sanitizeFileName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(filepath.FromSlash(name))

	switch base {
	case "", ".", "..", string(filepath.Separator):
		return "", serrors.Protocol("receive", errors.New("invalid file name"), fmt.Sprintf("%q", name))
	}
	return base, nil
}

func resolveSavePath(target, name string) string {
	if target == "" {
		return name
	}
	if strings.HasSuffix(target, "/") || strings.HasSuffix(target, string(filepath.Separator)) {
		return filepath.Join(target, name)
	}
	if fi, err := os.Stat(target); err == nil && fi.IsDir() {
		return filepath.Join(target, name)
	}
	return target
}

// writeFileAtomic writes data next to path and renames it into place, so a
// failed write never leaves a truncated file at path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return serrors.File("mkdir", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".part-*")
	if err != nil {
		return serrors.File("create", path, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return serrors.File("write", path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return serrors.File("sync", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return serrors.File("close", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return serrors.File("chmod", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return serrors.File("rename", path, err)
	}
	return nil
}

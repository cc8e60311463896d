package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	serrors "github.com/trueLoving/Stationuli/internal/errors"
	"github.com/trueLoving/Stationuli/internal/transport"
)

const DefaultConnectTimeout = 10 * time.Second

type SenderOption func(*Sender)

func WithChunkSize(n int) SenderOption {
	return func(s *Sender) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

func WithConnectTimeout(d time.Duration) SenderOption {
	return func(s *Sender) {
		if d > 0 {
			s.connectTimeout = d
		}
	}
}

// Sender pushes one file per connection: StartTransfer, every Chunk in
// ascending order, then Complete.
type Sender struct {
	chunkSize      int
	connectTimeout time.Duration
}

func NewSender(opts ...SenderOption) *Sender {
	s := &Sender{
		chunkSize:      DefaultChunkSize,
		connectTimeout: DefaultConnectTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sender) ChunkSize() int {
	return s.chunkSize
}

// SendFile streams the file at path to address:port, one chunk in memory at
// a time.
func (s *Sender) SendFile(ctx context.Context, path, address string, port uint16, progress ProgressFunc) error {
	fd, err := os.Open(path)
	if err != nil {
		return serrors.File("open", path, err)
	}
	defer fd.Close()

	fi, err := fd.Stat()
	if err != nil {
		return serrors.File("stat", path, err)
	}
	if fi.IsDir() {
		return serrors.File("open", path, errors.New("is a directory"))
	}

	return s.SendReader(ctx, filepath.Base(path), fd, uint64(fi.Size()), address, port, progress)
}

// SendBytes sends an in-memory buffer under the given file name.
func (s *Sender) SendBytes(ctx context.Context, name string, data []byte, address string, port uint16, progress ProgressFunc) error {
	return s.SendReader(ctx, name, bytes.NewReader(data), uint64(len(data)), address, port, progress)
}

// SendReader sends exactly size bytes read from r.
func (s *Sender) SendReader(ctx context.Context, name string, r io.Reader, size uint64, address string, port uint16, progress ProgressFunc) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	conn, err := transport.Connect(dialCtx, address, port)
	cancel()
	if err != nil {
		return err
	}
	defer conn.Close()

	slog.Info("Sending file", "file", name, "size", size, "remote", conn.RemoteAddr())

	err = s.Send(ctx, conn, NewChunker(r, size, s.chunkSize, name), progress)
	if err != nil {
		return err
	}

	slog.Info("File transfer completed", "file", name)
	return nil
}

// Send runs the sending side of one session over an established connection.
func (s *Sender) Send(ctx context.Context, conn *transport.Conn, chunker *Chunker, progress ProgressFunc) error {
	reporter := newProgressReporter(progress)
	defer reporter.close()

	start := StartTransfer{
		FileName:    chunker.name,
		FileSize:    chunker.size,
		TotalChunks: chunker.Total(),
	}
	if err := sendMessage(conn, start); err != nil {
		return err
	}

	var sent uint64
	for {
		if err := ctx.Err(); err != nil {
			abort(conn, "transfer cancelled")
			return err
		}

		chunk, err := chunker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			abort(conn, err.Error())
			return err
		}

		err = sendMessage(conn, Chunk{ChunkID: chunk.ChunkID, Data: chunk.Data})
		if err != nil {
			return err
		}

		sent += uint64(len(chunk.Data))
		reporter.report(sent, start.FileSize)

		if (chunk.ChunkID+1)%10 == 0 {
			slog.Debug("Sent chunks", "sent", chunk.ChunkID+1, "total", start.TotalChunks)
		}
	}

	if start.TotalChunks == 0 {
		reporter.report(0, 0)
	}

	return sendMessage(conn, Complete{})
}

func sendMessage(conn *transport.Conn, m Message) error {
	b, err := Encode(m)
	if err != nil {
		return err
	}
	return conn.Send(b)
}

// abort tells the peer to drop the session. Failures are ignored, the
// connection is going away anyway.
func abort(conn *transport.Conn, reason string) {
	if err := sendMessage(conn, ErrorMessage{Message: reason}); err != nil {
		slog.Debug("Fail to send abort", "error", fmt.Sprint(err))
	}
}

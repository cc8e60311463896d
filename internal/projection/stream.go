package projection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	serrors "github.com/trueLoving/Stationuli/internal/errors"
	"github.com/trueLoving/Stationuli/internal/events"
	"github.com/trueLoving/Stationuli/internal/transport"
)

const (
	acceptPoll  = time.Second
	receivePoll = 100 * time.Millisecond
	frameIdle   = 5 * time.Second
	closeWait   = 2 * time.Second
)

// FrameSource produces the next frame to send.
type FrameSource interface {
	Capture(ctx context.Context) (Frame, error)
}

type FrameSourceFunc func(ctx context.Context) (Frame, error)

func (f FrameSourceFunc) Capture(ctx context.Context) (Frame, error) { return f(ctx) }

type Option func(*Stream)

func WithSink(sink events.Sink) Option {
	return func(s *Stream) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// Stream is one projection session. A Stream either sends or receives; the
// worker for either direction is started at most once at a time.
type Stream struct {
	id     string
	config Config
	sink   events.Sink

	mu        sync.Mutex
	conn      *transport.Conn
	streaming bool
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewStream(cfg Config, opts ...Option) *Stream {
	s := &Stream{
		id:     uuid.NewString(),
		config: cfg,
		sink:   events.Discard{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stream) ID() string {
	return s.id
}

func (s *Stream) Config() Config {
	return s.config
}

// Connect dials the peer that will send or receive frames.
func (s *Stream) Connect(ctx context.Context, address string, port uint16) error {
	conn, err := transport.Connect(ctx, address, port)
	if err != nil {
		return err
	}
	s.setConn(conn)
	slog.Info("Projection connected", "id", s.id, "remote", conn.RemoteAddr())
	return nil
}

// Accept waits for one peer on port until ctx is done.
func (s *Stream) Accept(ctx context.Context, port uint16) error {
	ln, err := transport.Listen(port)
	if err != nil {
		return err
	}
	defer ln.Close()

	slog.Info("Waiting for projection peer", "id", s.id, "port", ln.Port())

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := ln.AcceptTimeout(acceptPoll)
		if errors.Is(err, serrors.ErrAcceptTimeout) {
			continue
		}
		if err != nil {
			return err
		}

		s.setConn(conn)
		slog.Info("Projection peer connected", "id", s.id, "remote", conn.RemoteAddr())
		return nil
	}
}

func (s *Stream) setConn(conn *transport.Conn) {
	conn.SetIdleTimeout(frameIdle)

	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// begin claims the stream for a worker.
func (s *Stream) begin() (*transport.Conn, context.Context, chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil, nil, nil, serrors.ErrNotConnected
	}
	if s.streaming {
		return nil, nil, nil, serrors.ErrAlreadyStreaming
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.streaming = true
	s.cancel = cancel
	s.done = make(chan struct{})
	return s.conn, ctx, s.done, nil
}

func (s *Stream) finish(done chan struct{}) {
	s.mu.Lock()
	if s.done == done {
		s.streaming = false
		s.cancel()
	}
	s.mu.Unlock()
	close(done)
}

// StartStreaming sends one frame from src every 1/FPS until stopped or the
// connection fails. Capture failures skip the tick.
func (s *Stream) StartStreaming(src FrameSource) error {
	conn, ctx, done, err := s.begin()
	if err != nil {
		return err
	}

	s.sink.Emit(events.ProjectionStarted, events.ProjectionPayload{
		SessionID: s.id,
		Remote:    conn.RemoteAddr().String(),
	})

	go func() {
		defer s.finish(done)

		ticker := time.NewTicker(s.config.interval())
		defer ticker.Stop()

		var sent int
		for {
			select {
			case <-ctx.Done():
				slog.Info("Projection stopped", "id", s.id, "frames", sent)
				return
			case <-ticker.C:
			}

			frame, err := src.Capture(ctx)
			if err != nil {
				slog.Warn("Failed to capture frame", "error", err)
				continue
			}

			b, err := EncodeFrame(frame)
			if err != nil {
				slog.Warn("Failed to encode frame", "error", err)
				continue
			}
			if err := conn.Send(b); err != nil {
				slog.Warn("Failed to send frame", "error", err)
				return
			}
			sent++
		}
	}()

	return nil
}

// ReceiveStream hands every decoded frame to onFrame until stopped or the
// connection fails. Malformed frames are skipped.
func (s *Stream) ReceiveStream(onFrame func(Frame)) error {
	conn, ctx, done, err := s.begin()
	if err != nil {
		return err
	}

	s.sink.Emit(events.ProjectionReceivingStarted, events.ProjectionPayload{
		SessionID: s.id,
		Remote:    conn.RemoteAddr().String(),
	})

	go func() {
		defer s.finish(done)

		for ctx.Err() == nil {
			ready, err := conn.Poll(receivePoll)
			if err != nil {
				slog.Warn("Projection connection lost", "error", err)
				return
			}
			if !ready {
				continue
			}

			b, err := conn.Receive()
			if err != nil {
				slog.Warn("Failed to receive frame", "error", err)
				return
			}

			frame, err := DecodeFrame(b)
			if err != nil {
				slog.Warn("Failed to parse frame", "error", err)
				continue
			}

			s.sink.Emit(events.ProjectionFrame, events.ProjectionPayload{
				SessionID: s.id,
				Width:     frame.Width,
				Height:    frame.Height,
				Timestamp: frame.Timestamp,
				Bytes:     len(frame.Data),
			})
			onFrame(frame)
		}
	}()

	return nil
}

func (s *Stream) Streaming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streaming
}

// Done is closed when the current worker exits. It is nil before the first
// StartStreaming or ReceiveStream.
func (s *Stream) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// StopStreaming asks the worker to exit and returns without waiting.
func (s *Stream) StopStreaming() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Close stops the worker and drops the connection.
func (s *Stream) Close() error {
	s.StopStreaming()

	s.mu.Lock()
	conn, done := s.conn, s.done
	s.conn = nil
	s.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(closeWait):
			slog.Warn("Projection worker did not exit", "id", s.id)
		}
	}
	return err
}

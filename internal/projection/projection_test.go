package projection

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	serrors "github.com/trueLoving/Stationuli/internal/errors"
	"github.com/trueLoving/Stationuli/internal/events"
	"github.com/trueLoving/Stationuli/internal/transport"
)

func TestConfigFit(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		w, h   uint32
		ww, wh uint32
	}{
		{800, 600, 800, 600},
		{3840, 2160, 1920, 1080},
		{3840, 1080, 1920, 540},
		{1000, 2160, 500, 1080},
	}

	for _, tt := range tests {
		w, h := cfg.Fit(tt.w, tt.h)
		if w != tt.ww || h != tt.wh {
			t.Errorf("Fit(%d, %d) = %d, %d; want %d, %d", tt.w, tt.h, w, h, tt.ww, tt.wh)
		}
	}

	if w, h := (Config{}).Fit(5000, 5000); w != 5000 || h != 5000 {
		t.Errorf("unbounded Fit = %d, %d", w, h)
	}
}

func TestFrameEnvelope(t *testing.T) {
	b, err := EncodeFrame(Frame{Width: 2, Height: 1, Timestamp: 42, Data: []byte("hi")})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"width":2,"height":1,"timestamp":42,"data":"aGk="}` {
		t.Errorf("frame encodes as %s", b)
	}

	f, err := DecodeFrame(b)
	if err != nil {
		t.Fatal(err)
	}
	if f.Width != 2 || f.Height != 1 || f.Timestamp != 42 || string(f.Data) != "hi" {
		t.Errorf("decoded %+v", f)
	}

	for _, bad := range []string{`{}`, `{"width":1,"height":1,"timestamp":1}`, `nope`, `{"width":-1}`} {
		if _, err := DecodeFrame([]byte(bad)); !serrors.IsProtocol(err) {
			t.Errorf("DecodeFrame(%s) = %v; want ProtocolError", bad, err)
		}
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 0x80, 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFileSourceScalesAndEncodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "screen.png")
	if err := os.WriteFile(path, pngBytes(t, 400, 200), 0o644); err != nil {
		t.Fatal(err)
	}

	src := FileSource{Path: path, Config: Config{Quality: 60, MaxWidth: 100, MaxHeight: 100}}
	f, err := src.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if f.Width != 100 || f.Height != 50 {
		t.Errorf("frame %dx%d; want 100x50", f.Width, f.Height)
	}

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		t.Fatalf("frame is not a JPEG: %v", err)
	}
	if cfg.Width != 100 || cfg.Height != 50 {
		t.Errorf("jpeg %dx%d", cfg.Width, cfg.Height)
	}

	if _, err := (FileSource{Path: filepath.Join(t.TempDir(), "missing.png")}).Capture(context.Background()); !serrors.IsFile(err) {
		t.Errorf("missing file: got %v; want FileError", err)
	}
}

func connectedPair(t *testing.T, opts ...Option) (*Stream, *Stream) {
	t.Helper()
	port := func() uint16 {
		ln, err := transport.Listen(0)
		if err != nil {
			t.Fatal(err)
		}
		defer ln.Close()
		return ln.Port()
	}()

	receiver := NewStream(DefaultConfig(), opts...)
	sender := NewStream(Config{FPS: 50}, opts...)
	t.Cleanup(func() {
		sender.Close()
		receiver.Close()
	})

	accepted := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		accepted <- receiver.Accept(ctx, port)
	}()

	deadline := time.Now().Add(3 * time.Second)
	for {
		err := sender.Connect(context.Background(), "127.0.0.1", port)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("Connect: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err := <-accepted; err != nil {
		t.Fatalf("Accept: %v", err)
	}
	return sender, receiver
}

func TestStreamFrames(t *testing.T) {
	bus := events.NewBus()
	evs, cancel := bus.Subscribe(256)
	defer cancel()

	sender, receiver := connectedPair(t, WithSink(bus))

	var n atomic.Uint64
	src := FrameSourceFunc(func(context.Context) (Frame, error) {
		i := n.Add(1)
		if i%3 == 0 {
			return Frame{}, errors.New("capture glitch")
		}
		return Frame{Width: 4, Height: 3, Timestamp: i, Data: []byte{byte(i)}}, nil
	})

	got := make(chan Frame, 64)
	if err := receiver.ReceiveStream(func(f Frame) {
		select {
		case got <- f:
		default:
		}
	}); err != nil {
		t.Fatalf("ReceiveStream: %v", err)
	}
	if err := sender.StartStreaming(src); err != nil {
		t.Fatalf("StartStreaming: %v", err)
	}
	if err := sender.StartStreaming(src); !errors.Is(err, serrors.ErrAlreadyStreaming) {
		t.Fatalf("second StartStreaming: got %v; want ErrAlreadyStreaming", err)
	}

	var last uint64
	for i := 0; i < 5; i++ {
		select {
		case f := <-got:
			if f.Timestamp%3 == 0 {
				t.Errorf("frame %d should have been skipped", f.Timestamp)
			}
			if f.Timestamp <= last {
				t.Errorf("frames out of order: %d after %d", f.Timestamp, last)
			}
			last = f.Timestamp
		case <-time.After(3 * time.Second):
			t.Fatalf("received %d frames", i)
		}
	}

	sender.StopStreaming()
	select {
	case <-sender.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("sender did not stop")
	}
	if sender.Streaming() {
		t.Error("sender still streaming after stop")
	}

	seen := map[string]bool{}
	for len(evs) > 0 {
		seen[(<-evs).Name] = true
	}
	for _, name := range []string{events.ProjectionStarted, events.ProjectionReceivingStarted, events.ProjectionFrame} {
		if !seen[name] {
			t.Errorf("no %s event", name)
		}
	}
}

func TestReceiverStopsWhenIdle(t *testing.T) {
	_, receiver := connectedPair(t)

	if err := receiver.ReceiveStream(func(Frame) {}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	receiver.StopStreaming()

	select {
	case <-receiver.Done():
	case <-time.After(time.Second):
		t.Fatal("idle receiver did not observe stop")
	}
}

func TestStreamRequiresConnection(t *testing.T) {
	s := NewStream(DefaultConfig())
	if err := s.StartStreaming(FileSource{}); !errors.Is(err, serrors.ErrNotConnected) {
		t.Errorf("got %v; want ErrNotConnected", err)
	}
	if err := s.ReceiveStream(func(Frame) {}); !errors.Is(err, serrors.ErrNotConnected) {
		t.Errorf("got %v; want ErrNotConnected", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestAcceptHonorsContext(t *testing.T) {
	s := NewStream(DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := s.Accept(ctx, 0)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v; want DeadlineExceeded", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("Accept ignored ctx")
	}
}

// Package projection streams encoded screen frames between two peers over
// the length-prefixed transport.
package projection

import (
	"encoding/json"
	"time"

	serrors "github.com/trueLoving/Stationuli/internal/errors"
)

type Config struct {
	FPS       uint32
	Quality   uint8
	MaxWidth  uint32
	MaxHeight uint32
}

func DefaultConfig() Config {
	return Config{
		FPS:       10,
		Quality:   75,
		MaxWidth:  1920,
		MaxHeight: 1080,
	}
}

func (c Config) interval() time.Duration {
	if c.FPS == 0 {
		return time.Second / time.Duration(DefaultConfig().FPS)
	}
	return time.Second / time.Duration(c.FPS)
}

// Fit scales w x h down to the configured bounds, keeping the aspect ratio.
// A zero bound leaves that axis unconstrained.
func (c Config) Fit(w, h uint32) (uint32, uint32) {
	maxW, maxH := c.MaxWidth, c.MaxHeight
	if maxW == 0 {
		maxW = w
	}
	if maxH == 0 {
		maxH = h
	}
	if w <= maxW && h <= maxH {
		return w, h
	}

	ratio := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	return uint32(float64(w) * ratio), uint32(float64(h) * ratio)
}

// Frame is one encoded image. Data travels base64 encoded inside JSON.
type Frame struct {
	Width     uint32 `json:"width"`
	Height    uint32 `json:"height"`
	Timestamp uint64 `json:"timestamp"`
	Data      []byte `json:"data"`
}

func EncodeFrame(f Frame) ([]byte, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return nil, serrors.Protocol("encode frame", err, "")
	}
	return b, nil
}

func DecodeFrame(b []byte) (Frame, error) {
	var raw struct {
		Width     *uint32 `json:"width"`
		Height    *uint32 `json:"height"`
		Timestamp *uint64 `json:"timestamp"`
		Data      *[]byte `json:"data"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return Frame{}, serrors.Protocol("decode frame", err, "")
	}
	if raw.Width == nil || raw.Height == nil || raw.Timestamp == nil || raw.Data == nil {
		return Frame{}, serrors.Protocol("decode frame", serrors.ErrUnexpectedMessage, "missing field")
	}

	return Frame{
		Width:     *raw.Width,
		Height:    *raw.Height,
		Timestamp: *raw.Timestamp,
		Data:      *raw.Data,
	}, nil
}

// Now returns a frame timestamp in milliseconds since the epoch.
func Now() uint64 {
	return uint64(time.Now().UnixMilli())
}

package projection

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"os"

	// decoders for FileSource
	_ "image/gif"
	_ "image/png"

	serrors "github.com/trueLoving/Stationuli/internal/errors"
)

// FileSource re-reads an image file on every capture, scales it into the
// configured bounds and encodes it as JPEG. It stands in for a screen grabber.
type FileSource struct {
	Path   string
	Config Config
}

func (s FileSource) Capture(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}

	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return Frame{}, serrors.File("read frame", s.Path, err)
	}
	return EncodeImage(raw, s.Config)
}

// EncodeImage decodes raw, shrinks it to fit cfg and re-encodes it as JPEG at
// cfg.Quality.
func EncodeImage(raw []byte, cfg Config) (Frame, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Frame{}, serrors.Protocol("decode image", err, "")
	}

	b := img.Bounds()
	w, h := cfg.Fit(uint32(b.Dx()), uint32(b.Dy()))
	if w != uint32(b.Dx()) || h != uint32(b.Dy()) {
		img = resize(img, int(w), int(h))
	}

	quality := int(cfg.Quality)
	if quality <= 0 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return Frame{}, serrors.Protocol("encode image", err, "")
	}

	return Frame{
		Width:     w,
		Height:    h,
		Timestamp: Now(),
		Data:      buf.Bytes(),
	}, nil
}

// resize is a nearest-neighbour scale.
func resize(src image.Image, w, h int) image.Image {
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	sb := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		sy := sb.Min.Y + y*sb.Dy()/h
		for x := 0; x < w; x++ {
			sx := sb.Min.X + x*sb.Dx()/w
			dst.Set(x, y, src.At(sx, sy))
		}
	}
	return dst
}

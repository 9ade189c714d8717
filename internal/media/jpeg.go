package media

import (
	"bytes"
	"image/jpeg"

	"golang.org/x/image/draw"
	errors "golang.org/x/xerrors"

	"github.com/lanikai/visionstream/internal/stream"
)

const DefaultJPEGQuality = 80

// JPEGEncoder compresses image frames to JPEG at the requested resolution. It
// is safe for concurrent use.
type JPEGEncoder struct {
	Quality int

	// Scaler resizes frames that are not already at the requested resolution.
	Scaler draw.Scaler
}

func NewJPEGEncoder(quality int) *JPEGEncoder {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &JPEGEncoder{
		Quality: quality,
		Scaler:  draw.ApproxBiLinear,
	}
}

func (e *JPEGEncoder) Encode(f *stream.ImageFrame, res stream.Resolution) ([]byte, error) {
	img, err := ToImage(f)
	if err != nil {
		return nil, err
	}
	img = Scale(img, res, e.Scaler)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.Quality}); err != nil {
		return nil, errors.Errorf("jpeg: %w", err)
	}
	log.Trace(8, "Encoded %dx%d frame at %s: %d bytes", f.Width, f.Height, res, buf.Len())
	return buf.Bytes(), nil
}

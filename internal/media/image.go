package media

import (
	"image"

	"golang.org/x/image/draw"
	errors "golang.org/x/xerrors"

	"github.com/lanikai/visionstream/internal/stream"
)

// ToImage wraps an image frame as an image.Image. Gray8 and RGBA32 frames
// share their pixel buffer; RGB24 and BGR24 frames are converted to RGBA.
func ToImage(f *stream.ImageFrame) (image.Image, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return nil, errors.Errorf("%dx%d: %w", f.Width, f.Height, errInvalidImage)
	}
	bpp := f.Format.BytesPerPixel()
	stride := f.RowStride()
	if stride < f.Width*bpp || len(f.Pix) < stride*(f.Height-1)+f.Width*bpp {
		return nil, errors.Errorf("%dx%d %v with %d bytes, stride %d: %w",
			f.Width, f.Height, f.Format, len(f.Pix), stride, errInvalidImage)
	}

	rect := image.Rect(0, 0, f.Width, f.Height)
	switch f.Format {
	case stream.Gray8:
		return &image.Gray{Pix: f.Pix, Stride: stride, Rect: rect}, nil
	case stream.RGBA32:
		return &image.RGBA{Pix: f.Pix, Stride: stride, Rect: rect}, nil
	case stream.RGB24, stream.BGR24:
		return packedToRGBA(f, stride), nil
	}
	return nil, errors.Errorf("%v: %w", f.Format, errUnsupportedFormat)
}

func packedToRGBA(f *stream.ImageFrame, stride int) *image.RGBA {
	r, b := 0, 2
	if f.Format == stream.BGR24 {
		r, b = 2, 0
	}

	dst := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		row := f.Pix[y*stride:]
		out := dst.Pix[y*dst.Stride:]
		for x := 0; x < f.Width; x++ {
			px := row[x*3 : x*3+3]
			out[x*4+0] = px[r]
			out[x*4+1] = px[1]
			out[x*4+2] = px[b]
			out[x*4+3] = 0xff
		}
	}
	return dst
}

// Scale resizes src to the dimensions of res. Native, or a source already at
// the requested size, is returned as is.
func Scale(src image.Image, res stream.Resolution, scaler draw.Scaler) image.Image {
	width, height, ok := res.Size()
	if !ok {
		return src
	}
	if b := src.Bounds(); b.Dx() == width && b.Dy() == height {
		return src
	}

	rect := image.Rect(0, 0, width, height)
	var dst draw.Image
	if _, gray := src.(*image.Gray); gray {
		dst = image.NewGray(rect)
	} else {
		dst = image.NewRGBA(rect)
	}
	scaler.Scale(dst, rect, src, src.Bounds(), draw.Src, nil)
	return dst
}

package stream

import (
	"time"

	errors "golang.org/x/xerrors"
)

// StreamType identifies one of the fixed logical video feeds.
type StreamType int

const (
	// Raw images from the camera.
	Raw StreamType = iota
	// Raw images overlaid with whatever markup the inference pipeline drew.
	Result
	// Raw images from the camera, already encoded as H.264 by the hardware.
	EncodedRaw

	numStreamTypes = iota
)

// Types lists every stream type, in serving order.
var Types = [numStreamTypes]StreamType{Raw, Result, EncodedRaw}

var streamTypeNames = [numStreamTypes]string{"raw", "result", "h264"}

func (t StreamType) String() string {
	if t.valid() {
		return streamTypeNames[t]
	}
	return "unknown"
}

func (t StreamType) valid() bool {
	return t >= 0 && t < numStreamTypes
}

// IsEncoded reports whether frames of this type carry a compressed bitstream
// rather than pixels.
func (t StreamType) IsEncoded() bool {
	return t == EncodedRaw
}

// ParseStreamType accepts the names returned by StreamType.String.
func ParseStreamType(s string) (StreamType, error) {
	for i, name := range streamTypeNames {
		if s == name {
			return StreamType(i), nil
		}
	}
	return 0, errors.Errorf("%q: %w", s, ErrUnknownStreamType)
}

// MarshalText and UnmarshalText let stream types key JSON maps.
func (t StreamType) MarshalText() ([]byte, error) {
	if !t.valid() {
		return nil, ErrUnknownStreamType
	}
	return []byte(t.String()), nil
}

func (t *StreamType) UnmarshalText(text []byte) error {
	v, err := ParseStreamType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Resolution is one of the recognized output resolutions.
type Resolution string

const (
	Native Resolution = "native"
	R1080p Resolution = "1080p"
	R720p  Resolution = "720p"
)

// IsValidResolution reports whether s names a recognized resolution. The match
// is exact and case-sensitive.
func IsValidResolution(s string) bool {
	switch Resolution(s) {
	case Native, R1080p, R720p:
		return true
	}
	return false
}

// Size returns the frame dimensions for the resolution. Native has no fixed
// size, so ok is false.
func (r Resolution) Size() (width, height int, ok bool) {
	switch r {
	case R1080p:
		return 1920, 1080, true
	case R720p:
		return 1280, 720, true
	}
	return 0, 0, false
}

// PixelFormat describes the memory layout of an ImageFrame.
type PixelFormat int

const (
	RGB24 PixelFormat = iota
	BGR24
	RGBA32
	Gray8
)

// BytesPerPixel returns the number of bytes one pixel occupies.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case RGBA32:
		return 4
	case Gray8:
		return 1
	default:
		return 3
	}
}

func (f PixelFormat) String() string {
	switch f {
	case RGB24:
		return "RGB24"
	case BGR24:
		return "BGR24"
	case RGBA32:
		return "RGBA32"
	case Gray8:
		return "Gray8"
	}
	return "unknown"
}

// ImageFrame is an uncompressed image, as produced for the Raw and Result
// streams. Stride may be zero for tightly packed rows.
type ImageFrame struct {
	Width  int
	Height int
	Stride int
	Format PixelFormat
	Pix    []byte
}

// RowStride returns the distance in bytes between vertically adjacent pixels.
func (img *ImageFrame) RowStride() int {
	if img.Stride > 0 {
		return img.Stride
	}
	return img.Width * img.Format.BytesPerPixel()
}

// EncodedFrame is one H.264 access unit in Annex B format, with its
// presentation timestamp.
type EncodedFrame struct {
	Data []byte
	PTS  int64
}

// Frame is what a Slot holds: one image or encoded frame plus the metadata
// the manager attached when it was accepted. Frames are immutable once stored.
type Frame struct {
	Type StreamType

	// Exactly one of these is set, depending on Type.
	Image   *ImageFrame
	Encoded *EncodedFrame

	// Per-stream sequence number, starting at 1.
	Seq uint64

	// Resolution epoch in effect when the frame was accepted. Bumped on every
	// resolution change of the stream.
	Epoch uint64

	Received time.Time

	// Encoded frames only: whether the access unit holds an IDR picture, and
	// the picture size from the most recent SPS (zero if none seen yet).
	Keyframe      bool
	Width, Height int
}

// Config is the serving configuration of one stream.
type Config struct {
	Enabled    bool       `json:"enabled"`
	FPS        int        `json:"fps"`
	Resolution Resolution `json:"resolution"`
}

const DefaultFPS = 10

// MaxFPS bounds the serving rate of a stream.
const MaxFPS = 120

// DefaultConfig is applied to every stream at startup unless overridden.
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		FPS:        DefaultFPS,
		Resolution: Native,
	}
}

// Merge returns c with the fields present in p. It does not validate p.
func (c Config) Merge(p Params) Config {
	if p.Resolution != nil {
		c.Resolution = Resolution(*p.Resolution)
	}
	if p.FPS != nil {
		c.FPS = *p.FPS
	}
	if p.Enabled != nil {
		c.Enabled = *p.Enabled
	}
	return c
}

// Params is a partial configuration update. Nil fields are left unchanged.
type Params struct {
	Resolution *string `json:"resolution,omitempty"`
	FPS        *int    `json:"fps,omitempty"`
	Enabled    *bool   `json:"enabled,omitempty"`
}

// Empty reports whether the update changes nothing.
func (p Params) Empty() bool {
	return p.Resolution == nil && p.FPS == nil && p.Enabled == nil
}

// WithResolution, WithFPS and WithEnabled return a copy of p with the field set.

func (p Params) WithResolution(res string) Params {
	p.Resolution = &res
	return p
}

func (p Params) WithFPS(fps int) Params {
	p.FPS = &fps
	return p
}

func (p Params) WithEnabled(enabled bool) Params {
	p.Enabled = &enabled
	return p
}

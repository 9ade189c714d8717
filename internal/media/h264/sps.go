package h264

import (
	"bytes"

	"github.com/nareix/joy4/codec/h264parser"
	errors "golang.org/x/xerrors"
)

var errNotSPS = errors.New("not a sequence parameter set")

// SPS holds the fields of a sequence parameter set that matter for serving.
type SPS struct {
	Profile uint
	Level   uint
	Width   int
	Height  int
}

// ParseSPS decodes the picture size from a sequence parameter set unit
// (including its one byte header).
func ParseSPS(nalu NALU) (SPS, error) {
	if len(nalu) < 4 || nalu.Type() != TypeSPS {
		return SPS{}, errNotSPS
	}

	info, err := h264parser.ParseSPS(unescapeRBSP(nalu))
	if err != nil {
		return SPS{}, errors.Errorf("parse SPS: %w", err)
	}
	return SPS{
		Profile: info.ProfileIdc,
		Level:   info.LevelIdc,
		Width:   int(info.Width),
		Height:  int(info.Height),
	}, nil
}

var emulationPrevention = []byte{0, 0, 3}

// unescapeRBSP removes emulation prevention bytes (0x000003 -> 0x0000).
func unescapeRBSP(b []byte) []byte {
	i := bytes.Index(b, emulationPrevention)
	if i < 0 {
		return b
	}

	out := make([]byte, 0, len(b))
	for i >= 0 {
		out = append(out, b[:i+2]...)
		b = b[i+3:]
		i = bytes.Index(b, emulationPrevention)
	}
	return append(out, b...)
}

package transport

import (
	"encoding/binary"

	errors "golang.org/x/xerrors"

	"github.com/lanikai/visionstream/internal/serve"
	"github.com/lanikai/visionstream/internal/stream"
)

// Every websocket message is a fixed header followed by the payload:
//
//	type(1) flags(1) seq(8) pts(8) length(4) payload(length)
//
// All integers are big endian.
const HeaderSize = 22

const (
	FlagKeyframe = 1 << 0
	FlagRepeat   = 1 << 1
)

var networkOrder = binary.BigEndian

var errShortMessage = errors.New("short message")

type Header struct {
	Type   stream.StreamType
	Flags  byte
	Seq    uint64
	PTS    int64
	Length uint32
}

func (h Header) Keyframe() bool {
	return h.Flags&FlagKeyframe != 0
}

// AppendMessage appends the websocket encoding of p to dst.
func AppendMessage(dst []byte, p serve.Packet) []byte {
	var flags byte
	if p.Keyframe {
		flags |= FlagKeyframe
	}
	if p.Repeat {
		flags |= FlagRepeat
	}

	var hdr [HeaderSize]byte
	hdr[0] = byte(p.Type)
	hdr[1] = flags
	networkOrder.PutUint64(hdr[2:10], p.Seq)
	networkOrder.PutUint64(hdr[10:18], uint64(p.PTS))
	networkOrder.PutUint32(hdr[18:22], uint32(len(p.Data)))

	dst = append(dst, hdr[:]...)
	return append(dst, p.Data...)
}

// ParseMessage splits a websocket message into header and payload.
func ParseMessage(msg []byte) (h Header, payload []byte, err error) {
	if len(msg) < HeaderSize {
		return h, nil, errors.Errorf("%d bytes: %w", len(msg), errShortMessage)
	}
	h = Header{
		Type:   stream.StreamType(msg[0]),
		Flags:  msg[1],
		Seq:    networkOrder.Uint64(msg[2:10]),
		PTS:    int64(networkOrder.Uint64(msg[10:18])),
		Length: networkOrder.Uint32(msg[18:22]),
	}
	payload = msg[HeaderSize:]
	if uint32(len(payload)) < h.Length {
		return h, nil, errors.Errorf("payload %d of %d bytes: %w", len(payload), h.Length, errShortMessage)
	}
	return h, payload[:h.Length], nil
}

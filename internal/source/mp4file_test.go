package source

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nareix/joy4/av"
	"github.com/nareix/joy4/codec/h264parser"
	"github.com/nareix/joy4/format/mp4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/visionstream/internal/media/h264"
)

var (
	testSPS = []byte{0x67, 0x42, 0xc0, 0x1f, 0xf4, 0x02, 0x80, 0x2d, 0xc8}
	testPPS = []byte{0x68, 0xce, 0x38, 0x80}
)

func lengthPrefixed(nalus ...[]byte) []byte {
	var out []byte
	for _, nalu := range nalus {
		out = binary.BigEndian.AppendUint32(out, uint32(len(nalu)))
		out = append(out, nalu...)
	}
	return out
}

func writeMP4(t *testing.T) string {
	codec, err := h264parser.NewCodecDataFromSPSAndPPS(testSPS, testPPS)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "clip.mp4")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	muxer := mp4.NewMuxer(f)
	require.NoError(t, muxer.WriteHeader([]av.CodecData{codec}))
	frames := []av.Packet{
		{IsKeyFrame: true, Time: 0, Data: lengthPrefixed([]byte{0x65, 0x88, 0x84, 0x21})},
		{Time: 10 * time.Millisecond, Data: lengthPrefixed([]byte{0x41, 0x9a, 0x02, 0x03})},
		{Time: 20 * time.Millisecond, Data: lengthPrefixed([]byte{0x41, 0x9a, 0x05, 0x06})},
	}
	for _, pkt := range frames {
		require.NoError(t, muxer.WritePacket(pkt))
	}
	require.NoError(t, muxer.WriteTrailer())
	return path
}

func TestAnnexBFromSample(t *testing.T) {
	codec, err := h264parser.NewCodecDataFromSPSAndPPS(testSPS, testPPS)
	require.NoError(t, err)

	idr := []byte{0x65, 0x88}
	sei := []byte{0x06, 0x05, 0x01}
	au := annexB(av.Packet{IsKeyFrame: true, Data: lengthPrefixed(sei, idr)}, codec)
	assert.Equal(t, h264.AppendAnnexB(nil, testSPS, testPPS, sei, idr), au)

	info := h264.Inspect(au)
	assert.True(t, info.Keyframe)
	assert.Equal(t, 1280, info.Width)

	// Truncated length prefix.
	au = annexB(av.Packet{Data: []byte{0, 0, 0, 9, 0x41}}, codec)
	assert.Empty(t, au)
}

func TestMP4FileLoops(t *testing.T) {
	sink := newFakeSink()
	src, err := OpenMP4File(writeMP4(t), sink)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- src.Run(ctx) }()

	assert.Eventually(t, func() bool { return len(sink.encodedFrames()) >= 5 }, 3*time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)

	frames := sink.encodedFrames()
	assert.True(t, h264.Inspect(frames[0].Data).Keyframe)
	assert.True(t, h264.Inspect(frames[0].Data).HasSPS)
	assert.False(t, h264.Inspect(frames[1].Data).Keyframe)
	assert.True(t, h264.Inspect(frames[3].Data).Keyframe)
	for i := 1; i < len(frames); i++ {
		assert.Greater(t, frames[i].PTS, frames[i-1].PTS)
	}
}

func TestOpenMP4Missing(t *testing.T) {
	_, err := OpenSource("mp4:"+filepath.Join(t.TempDir(), "none.mp4"), newFakeSink(), Options{})
	assert.Error(t, err)
}

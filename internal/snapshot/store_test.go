package snapshot

import (
	"bytes"
	"image/jpeg"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/visionstream/internal/stream"
)

var uuidPattern = `[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`

func newStore(t *testing.T) *FileStore {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "snapshots"), 0)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	return s
}

func TestSaveImage(t *testing.T) {
	s := newStore(t)
	path, err := s.Save(&stream.Frame{
		Type: stream.Result,
		Seq:  1,
		Image: &stream.ImageFrame{
			Width:  4,
			Height: 2,
			Format: stream.RGB24,
			Pix:    make([]byte, 4*2*3),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, s.Dir(), filepath.Dir(path))
	assert.Regexp(t, regexp.MustCompile(`^result-20240506-070809-`+uuidPattern+`\.jpg$`), filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Width)
	assert.Equal(t, 2, cfg.Height)
}

func TestSaveEncoded(t *testing.T) {
	s := newStore(t)
	au := []byte{0, 0, 0, 1, 0x65, 0x88, 0x84}
	path, err := s.Save(&stream.Frame{
		Type:    stream.EncodedRaw,
		Seq:     9,
		Encoded: &stream.EncodedFrame{Data: au, PTS: 3},
	})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^h264-20240506-070809-`+uuidPattern+`\.h264$`), filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, au, data)
}

func TestSaveUniqueNames(t *testing.T) {
	s := newStore(t)
	f := &stream.Frame{Type: stream.EncodedRaw, Encoded: &stream.EncodedFrame{Data: []byte{1}}}

	a, err := s.Save(f)
	require.NoError(t, err)
	b, err := s.Save(f)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestSaveInvalidFrames(t *testing.T) {
	s := newStore(t)

	_, err := s.Save(&stream.Frame{Type: stream.Raw})
	assert.Error(t, err)

	_, err = s.Save(&stream.Frame{
		Type:  stream.Raw,
		Image: &stream.ImageFrame{Width: 8, Height: 8, Format: stream.Gray8, Pix: []byte{1}},
	})
	assert.Error(t, err)

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

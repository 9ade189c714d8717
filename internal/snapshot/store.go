// Package snapshot writes single frames to disk on request.
package snapshot

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/lanikai/visionstream/internal/logging"
	"github.com/lanikai/visionstream/internal/media"
	"github.com/lanikai/visionstream/internal/stream"
)

var log = logging.DefaultLogger.WithTag("snapshot")

const timeLayout = "20060102-150405"

// FileStore saves image frames as JPEG files and encoded frames as raw Annex B
// files, named <type>-<yyyymmdd-hhmmss>-<uuid>.
type FileStore struct {
	dir     string
	quality int
	now     func() time.Time
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string, quality int) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create snapshot directory")
	}
	if quality <= 0 || quality > 100 {
		quality = media.DefaultJPEGQuality
	}
	return &FileStore{
		dir:     dir,
		quality: quality,
		now:     time.Now,
	}, nil
}

func (s *FileStore) Dir() string {
	return s.dir
}

// Save implements stream.SnapshotSink.
func (s *FileStore) Save(f *stream.Frame) (string, error) {
	var (
		data []byte
		ext  string
	)
	switch {
	case f.Encoded != nil:
		data, ext = f.Encoded.Data, ".h264"
	case f.Image != nil:
		img, err := media.ToImage(f.Image)
		if err != nil {
			return "", errors.Wrapf(err, "snapshot of %v frame %d", f.Type, f.Seq)
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.quality}); err != nil {
			return "", errors.Wrap(err, "encode snapshot")
		}
		data, ext = buf.Bytes(), ".jpg"
	default:
		return "", errors.Errorf("%v frame %d has no data", f.Type, f.Seq)
	}

	name := fmt.Sprintf("%s-%s-%s%s", f.Type, s.now().Format(timeLayout), uuid.NewString(), ext)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrap(err, "write snapshot")
	}
	log.Debug("Wrote %d bytes to %s", len(data), path)
	return path, nil
}

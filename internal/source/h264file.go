package source

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/visionstream/internal/media/h264"
	"github.com/lanikai/visionstream/internal/stream"
)

// 90 kHz, as in RTP and MPEG-TS.
const clockRate = 90000

// H264File plays an Annex B H.264 file in a loop on the encoded stream, one
// access unit per frame interval.
type H264File struct {
	path     string
	sink     Sink
	interval time.Duration

	pts      int64
	ptsDelta int64
}

func OpenH264File(path string, sink Sink, fps int) (*H264File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, "open H.264 source")
	}
	if fps <= 0 {
		fps = stream.DefaultFPS
	}
	return &H264File{
		path:     path,
		sink:     sink,
		interval: time.Second / time.Duration(fps),
		ptsDelta: int64(clockRate / fps),
	}, nil
}

// Restart does nothing: a recording has a fixed resolution.
func (s *H264File) Restart(st stream.StreamType) {
	if st == stream.EncodedRaw {
		log.Warn("Cannot change the resolution of %s", s.path)
	}
}

func (s *H264File) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		err := s.play(ctx, ticker.C)
		if err == context.Canceled {
			return nil
		}
		if err != nil {
			return err
		}
		log.Debug("Reached end of %s, starting over", s.path)
	}
}

// play sends every access unit of the file once.
func (s *H264File) play(ctx context.Context, tick <-chan time.Time) error {
	f, err := os.Open(s.path)
	if err != nil {
		return errors.Wrap(err, "open H.264 source")
	}
	defer f.Close()

	r := h264.NewReader(f)
	sent := 0
	for {
		au, err := r.ReadAccessUnit()
		if err == io.EOF {
			if sent == 0 {
				return errors.Errorf("%s contains no H.264 access units", s.path)
			}
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", s.path)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		}

		s.pts += s.ptsDelta
		if err := s.sink.UpdateEncoded(stream.EncodedFrame{Data: au, PTS: s.pts}); err != nil {
			log.Warn("Encoded frame at pts %d: %v", s.pts, err)
		}
		sent++
	}
}

package source

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"time"

	"github.com/nareix/joy4/av"
	"github.com/nareix/joy4/codec/h264parser"
	"github.com/nareix/joy4/format/mp4"
	"github.com/pkg/errors"

	"github.com/lanikai/visionstream/internal/media/h264"
	"github.com/lanikai/visionstream/internal/stream"
)

// MP4File plays the H.264 track of an MP4 file in a loop on the encoded
// stream, paced by the file's own timestamps.
type MP4File struct {
	path string
	sink Sink

	// Timeline offset of the current pass through the file, so that PTS keeps
	// increasing across loops.
	base time.Duration
}

func OpenMP4File(path string, sink Sink) (*MP4File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, "open MP4 source")
	}
	return &MP4File{path: path, sink: sink}, nil
}

// Restart does nothing: a recording has a fixed resolution.
func (s *MP4File) Restart(st stream.StreamType) {
	if st == stream.EncodedRaw {
		log.Warn("Cannot change the resolution of %s", s.path)
	}
}

func (s *MP4File) Run(ctx context.Context) error {
	log.Info("Opening file %s", s.path)
	file, err := os.Open(s.path)
	if err != nil {
		return errors.Wrap(err, "open MP4 source")
	}
	defer file.Close()

	demuxer := mp4.NewDemuxer(file)
	codecs, err := demuxer.Streams()
	if err != nil {
		return errors.Wrapf(err, "read %s", s.path)
	}

	track := -1
	var codec h264parser.CodecData
	for i, c := range codecs {
		if cd, ok := c.(h264parser.CodecData); ok && track < 0 {
			log.Info("%v stream: %dx%d", cd.Type(), cd.Width(), cd.Height())
			track, codec = i, cd
		} else {
			log.Debug("Skipping %v stream", c.Type())
		}
	}
	if track < 0 {
		return errors.Errorf("%s: no H.264 video track", s.path)
	}

	// Wall clock time of the start of the current pass.
	start := time.Now()
	var (
		last time.Duration
		sent int
	)

	for {
		pkt, err := demuxer.ReadPacket()
		if err == io.EOF {
			if sent == 0 {
				return errors.Errorf("%s contains no H.264 frames", s.path)
			}
			if err := demuxer.SeekToTime(0); err != nil {
				return errors.Wrapf(err, "rewind %s", s.path)
			}
			s.base += last + time.Second/time.Duration(stream.DefaultFPS)
			start = time.Now()
			last, sent = 0, 0
			continue
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", s.path)
		}
		if int(pkt.Idx) != track {
			continue
		}

		// Sleep until this packet is ready to be presented.
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Until(start.Add(pkt.Time))):
		}
		last = pkt.Time

		au := annexB(pkt, codec)
		if len(au) == 0 {
			continue
		}
		pts := int64((s.base + pkt.Time).Seconds() * clockRate)
		sent++
		if err := s.sink.UpdateEncoded(stream.EncodedFrame{Data: au, PTS: pts}); err != nil {
			log.Warn("Encoded frame at pts %d: %v", pts, err)
		}
	}
}

// annexB converts a length-prefixed MP4 sample to an Annex B access unit.
// Keyframes are preceded by the track's parameter sets so that a decoder can
// start from any of them.
func annexB(pkt av.Packet, codec h264parser.CodecData) []byte {
	var au []byte
	if pkt.IsKeyFrame {
		au = h264.AppendAnnexB(au, codec.SPS(), codec.PPS())
	}

	data := pkt.Data
	for len(data) >= 4 {
		n := int(binary.BigEndian.Uint32(data))
		data = data[4:]
		if n == 0 || n > len(data) {
			log.Debug("Malformed sample: NAL unit of %d bytes, %d left", n, len(data))
			break
		}
		au = h264.AppendAnnexB(au, data[:n])
		data = data[n:]
	}
	return au
}

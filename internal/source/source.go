// Package source contains frame producers that stand in for a camera and
// inference pipeline.
package source

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/lanikai/visionstream/internal/logging"
	"github.com/lanikai/visionstream/internal/stream"
)

var log = logging.DefaultLogger.WithTag("source")

// Sink receives produced frames. Implemented by *stream.Manager.
type Sink interface {
	UpdateRaw(img stream.ImageFrame) error
	UpdateResult(img stream.ImageFrame) error
	UpdateEncoded(ef stream.EncodedFrame) error
	GetResolution(st stream.StreamType) stream.Resolution
}

// Producer pushes frames into a Sink until its context is cancelled.
type Producer interface {
	Run(ctx context.Context) error

	// Restart picks up a new resolution for stream st.
	Restart(st stream.StreamType)
}

// Options configure a producer opened through OpenSource.
type Options struct {
	// Frame size produced at native resolution.
	Width  int
	Height int

	FPS int
}

// Open a producer based on its "source spec". A source spec is a colon-separated string
// consisting of a source tag and a source path:
//    sourceSpec = sourceTag + ":" + sourcePath
// The format of the source path is defined by the registered OpenFunc.
func OpenSource(spec string, sink Sink, opts Options) (Producer, error) {
	// Log known source types, for debug purposes.
	var tags []string
	for t := range registry {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	log.Debug("Registered source types: %v", tags)

	// Split the spec string into tag and path
	parts := strings.SplitN(spec, ":", 2)
	var tag, path string
	tag = parts[0]
	if len(parts) == 2 {
		path = parts[1]
	}

	open, found := registry[tag]
	if !found {
		return nil, errors.Errorf("Source type '%s' not registered", tag)
	}
	return open(path, sink, opts)
}

// A function used to open a specific source type.
type OpenFunc func(path string, sink Sink, opts Options) (Producer, error)

var registry = map[string]OpenFunc{}

// Register a source type, identified by its "source tag". Sources of this type will be
// opened with the given function.
func RegisterSourceType(tag string, open OpenFunc) {
	registry[tag] = open
}

func init() {
	RegisterSourceType("pattern", func(_ string, sink Sink, opts Options) (Producer, error) {
		return NewTestPattern(sink, opts), nil
	})
	RegisterSourceType("h264", func(path string, sink Sink, opts Options) (Producer, error) {
		return OpenH264File(path, sink, opts.FPS)
	})
	RegisterSourceType("mp4", func(path string, sink Sink, _ Options) (Producer, error) {
		return OpenMP4File(path, sink)
	})
}

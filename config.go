//////////////////////////////////////////////////////////////////////////////
//
// Config contains configuration data for Server
//
//////////////////////////////////////////////////////////////////////////////

package visionstream

import (
	"os"

	jsoniter "github.com/json-iterator/go"
	errors "golang.org/x/xerrors"

	"github.com/lanikai/visionstream/internal/media"
	"github.com/lanikai/visionstream/internal/stream"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const DefaultListenAddress = ":8080"

type Config struct {
	// Address the viewer and control endpoints listen on.
	Listen string `json:"listen"`

	// Directory snapshots are written to. Snapshots are disabled if empty.
	SnapshotDir string `json:"snapshotDir"`

	// Quality of JPEG frames served on the image streams, 1 to 100.
	JPEGQuality int `json:"jpegQuality"`

	// Whether a resolution change discards the frame produced at the old
	// resolution.
	ClearOnResolutionChange bool `json:"clearOnResolutionChange"`

	// Startup overrides, keyed by stream name ("raw", "result", "h264").
	// Fields left out keep their defaults.
	Streams map[string]stream.Params `json:"streams"`
}

func DefaultConfig() Config {
	return Config{
		Listen:                  DefaultListenAddress,
		JPEGQuality:             media.DefaultJPEGQuality,
		ClearOnResolutionChange: true,
	}
}

// LoadConfig reads a JSON configuration file. Settings missing from the file
// keep their default values.
func LoadConfig(filePath string) (Config, error) {
	cfg := DefaultConfig()

	d, err := os.ReadFile(filePath)
	if err != nil {
		return cfg, err
	}
	if err := json.Unmarshal(d, &cfg); err != nil {
		return cfg, errors.Errorf("%s: %w", filePath, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks every stream override.
func (c Config) Validate() error {
	_, err := c.StreamConfigs()
	return err
}

// StreamConfigs returns the startup configuration of every stream.
func (c Config) StreamConfigs() (map[stream.StreamType]stream.Config, error) {
	cfgs := make(map[stream.StreamType]stream.Config, len(stream.Types))
	for _, st := range stream.Types {
		cfgs[st] = stream.DefaultConfig()
	}

	for name, p := range c.Streams {
		st, err := stream.ParseStreamType(name)
		if err != nil {
			return nil, errors.Errorf("streams: %w", err)
		}
		if err := p.Validate(); err != nil {
			return nil, errors.Errorf("streams.%s: %w", name, err)
		}
		cfgs[st] = cfgs[st].Merge(p)
	}
	return cfgs, nil
}

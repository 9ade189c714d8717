package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/lanikai/visionstream"
	"github.com/lanikai/visionstream/internal/logging"
	"github.com/lanikai/visionstream/internal/source"
	"github.com/lanikai/visionstream/internal/stream"
)

var log = logging.DefaultLogger.WithTag("visionstreamd")

// Populated via -ldflags="-X ...".
var GitRevisionId string
var GitTag string

// version displays information and exits successfully (GNU convention)
func version() {
	fmt.Println("visionstreamd", GitTag, GitRevisionId)
}

func main() {
	flag.Parse()

	if flagHelp {
		help()
		os.Exit(0)
	}
	if flagVersion {
		version()
		os.Exit(0)
	}

	cfg := visionstream.DefaultConfig()
	if flagConfig != "" {
		var err error
		if cfg, err = visionstream.LoadConfig(flagConfig); err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}

	// Command line flags override the configuration file.
	if flag.CommandLine.Changed("listen") {
		cfg.Listen = flagListen
	}
	if flag.CommandLine.Changed("snapshot-dir") {
		cfg.SnapshotDir = flagSnapshotDir
	}

	s, err := visionstream.NewServer(cfg)
	if err != nil {
		log.Fatal(err)
	}

	// Open frame sources
	var producers []source.Producer
	for _, spec := range flagInputs {
		p, err := source.OpenSource(spec, s.Manager, source.Options{
			Width:  flagWidth,
			Height: flagHeight,
			FPS:    flagFPS,
		})
		if err != nil {
			log.Fatal(err)
		}
		producers = append(producers, p)
	}

	// Stand-in for restarting the capture pipeline.
	s.OnRestart = func(st stream.StreamType) {
		for _, p := range producers {
			p.Restart(st)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	for i, p := range producers {
		wg.Add(1)
		go func(spec string, p source.Producer) {
			defer wg.Done()
			if err := p.Run(ctx); err != nil {
				log.Error("Source %s failed: %v", spec, err)
			}
		}(flagInputs[i], p)
	}

	if err := s.ListenAndServe(ctx); err != nil {
		log.Error("%v", err)
		cancel()
		wg.Wait()
		os.Exit(1)
	}
	wg.Wait()
}

package main

import (
	"fmt"

	"github.com/fatih/color"
	flag "github.com/spf13/pflag"

	"github.com/lanikai/visionstream/internal/stream"
)

var (
	flagConfig      string
	flagListen      string
	flagSnapshotDir string
	flagInputs      []string
	flagWidth       int
	flagHeight      int
	flagFPS         int
	flagHelp        bool
	flagVersion     bool
)

func init() {
	flag.StringVarP(&flagConfig, "config", "c", "", "Configuration file")
	flag.StringVarP(&flagListen, "listen", "l", "", "Listen address")
	flag.StringVarP(&flagSnapshotDir, "snapshot-dir", "s", "", "Snapshot directory")
	flag.StringSliceVarP(&flagInputs, "input", "i", []string{"pattern"}, "Frame sources")
	flag.IntVarP(&flagWidth, "width", "x", 1280, "Native frame width")
	flag.IntVarP(&flagHeight, "height", "y", 720, "Native frame height")
	flag.IntVarP(&flagFPS, "fps", "f", stream.DefaultFPS, "Source frame rate")

	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

const helpString = `Live video distribution for embedded vision pipelines

Usage: visionstreamd [OPTION]...

Server:
  -c, --config=FILE        JSON configuration file
  -l, --listen=ADDR        Listen address (default: :8080)
  -s, --snapshot-dir=DIR   Write snapshots to DIR (default: snapshots disabled)

Frame sources:
  -i, --input=SPEC         Source spec, may be repeated (default: pattern)
                             pattern        generated raw and result frames
                             h264:FILE      Annex B H.264 file, looped
  -x, --width=NUM          Native frame width (default: 1280)
  -y, --height=NUM         Native frame height (default: 720)
  -f, --fps=NUM            Source frame rate (default: 10)

Viewer endpoints:
  /ws/{raw,result,h264}    Framed websocket stream
  /mjpeg/{raw,result}      Motion JPEG over multipart HTTP
  /api/streams             Stream configuration, snapshots and statistics

Miscellaneous:
  -h, --help               Prints this help message and exits
  -v, --version            Prints version information and exits

Environment:
  LOGLEVEL                 Log level, optionally per tag (e.g. "info,serve=debug")`

// Help information is printed and program exits
func help() {
	r := color.New(color.FgRed)
	y := color.New(color.FgYellow)
	b := color.New(color.FgCyan)

	//        _     _
	// __   _(_)___(_) ___  _ __
	// \ \ / / / __| |/ _ \| '_ \
	//  \ V /| \__ \ | (_) | | | |
	//   \_/ |_|___/_|\___/|_| |_|

	r.Printf("       ")
	y.Printf("_ ")
	b.Printf("    ")
	y.Println("_")

	r.Printf(" __   _")
	y.Printf("(_)")
	b.Printf("___")
	y.Printf("(_)")
	r.Println(" ___  _ __")

	r.Printf(" \\ \\ / /")
	y.Printf(" /")
	b.Printf(" __|")
	y.Printf(" |")
	r.Println("/ _ \\| '_ \\")

	r.Printf("  \\ V /")
	y.Printf("| |")
	b.Printf("\\__ \\")
	y.Printf(" |")
	r.Println(" (_) | | | |")

	r.Printf("   \\_/ ")
	y.Printf("|_|")
	b.Printf("|___/")
	y.Printf("_|")
	r.Println("\\___/|_| |_|")

	fmt.Println()
	fmt.Println(helpString)
}

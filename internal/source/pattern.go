package source

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/lanikai/visionstream/internal/stream"
)

var (
	boxColor   = color.RGBA{0, 255, 0, 255}
	labelColor = color.RGBA{255, 255, 255, 255}
	labelBg    = color.RGBA{0, 0, 0, 180}
)

// TestPattern produces a moving gradient on the raw stream and the same
// gradient with a tracked box drawn over it on the result stream.
type TestPattern struct {
	sink     Sink
	native   image.Point
	interval time.Duration

	// Frames produced so far; drives the animation.
	n int

	// Current output size of the raw and result streams.
	sizes [2]image.Point
	sync.Mutex
}

func NewTestPattern(sink Sink, opts Options) *TestPattern {
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 640, 360
	}
	if opts.FPS <= 0 {
		opts.FPS = stream.DefaultFPS
	}
	p := &TestPattern{
		sink:     sink,
		native:   image.Pt(opts.Width, opts.Height),
		interval: time.Second / time.Duration(opts.FPS),
	}
	p.Restart(stream.Raw)
	p.Restart(stream.Result)
	return p
}

// Restart resizes the output of st to its configured resolution.
func (p *TestPattern) Restart(st stream.StreamType) {
	if st != stream.Raw && st != stream.Result {
		return
	}

	size := p.native
	res := p.sink.GetResolution(st)
	if w, h, ok := res.Size(); ok {
		size = image.Pt(w, h)
	}

	p.Lock()
	p.sizes[st] = size
	p.Unlock()
	log.Info("Test pattern %v stream at %s (%dx%d)", st, res, size.X, size.Y)
}

func (p *TestPattern) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.produce()
		}
	}
}

// produce pushes one frame to each stream. Every frame gets its own buffer,
// since the sink keeps it.
func (p *TestPattern) produce() {
	p.Lock()
	n := p.n
	p.n++
	rawSize, resultSize := p.sizes[stream.Raw], p.sizes[stream.Result]
	p.Unlock()

	raw := gradient(rawSize, n)
	if err := p.sink.UpdateRaw(stream.ImageFrame{
		Width:  rawSize.X,
		Height: rawSize.Y,
		Format: stream.RGBA32,
		Pix:    raw.Pix,
	}); err != nil {
		log.Warn("Raw frame %d: %v", n, err)
	}

	result := gradient(resultSize, n)
	annotate(result, n)
	if err := p.sink.UpdateResult(stream.ImageFrame{
		Width:  resultSize.X,
		Height: resultSize.Y,
		Format: stream.RGBA32,
		Pix:    result.Pix,
	}); err != nil {
		log.Warn("Result frame %d: %v", n, err)
	}
}

func gradient(size image.Point, n int) *image.RGBA {
	img := image.NewRGBA(image.Rectangle{Max: size})
	for y := 0; y < size.Y; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < size.X; x++ {
			px := row[x*4 : x*4+4]
			px[0] = uint8(x + n)
			px[1] = uint8(y)
			px[2] = uint8(n)
			px[3] = 0xff
		}
	}
	return img
}

// annotate draws a labelled box that sweeps across the image, the way an
// object detector's markup would.
func annotate(img *image.RGBA, n int) {
	b := img.Bounds()
	w, h := b.Dx()/4, b.Dy()/3
	if w < 8 || h < 8 {
		return
	}
	x := (n * 4) % (b.Dx() - w)
	y := (b.Dy() - h) / 2
	drawBox(img, image.Rect(x, y, x+w, y+h), boxColor, 2)
	drawLabel(img, image.Pt(x, y-4), fmt.Sprintf("object #%d", n))
}

func drawBox(img *image.RGBA, r image.Rectangle, c color.RGBA, thickness int) {
	edges := []image.Rectangle{
		{r.Min, image.Pt(r.Max.X, r.Min.Y+thickness)},
		{image.Pt(r.Min.X, r.Max.Y-thickness), r.Max},
		{r.Min, image.Pt(r.Min.X+thickness, r.Max.Y)},
		{image.Pt(r.Max.X-thickness, r.Min.Y), r.Max},
	}
	src := image.NewUniform(c)
	for _, e := range edges {
		draw.Draw(img, e.Intersect(img.Bounds()), src, image.Point{}, draw.Src)
	}
}

func drawLabel(img *image.RGBA, at image.Point, label string) {
	face := basicfont.Face7x13
	if at.Y < face.Ascent {
		at.Y = face.Ascent
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(at.X, at.Y),
	}
	bg := image.Rect(at.X, at.Y-face.Ascent, at.X+d.MeasureString(label).Ceil(), at.Y+face.Descent)
	draw.Draw(img, bg.Intersect(img.Bounds()), image.NewUniform(labelBg), image.Point{}, draw.Over)
	d.DrawString(label)
}

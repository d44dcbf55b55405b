package vision

import (
	"fmt"
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/HansolSon1113/MakerProject/internal/nav"
)

var (
	colorDivider = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colorChosen  = color.RGBA{G: 255, A: 255}
	colorText    = color.RGBA{R: 255, G: 255, A: 255}
	colorBanner  = color.RGBA{R: 255, A: 255}
)

// Overlay is what gets drawn on a frame for the debug view.
type Overlay struct {
	Scores nav.ZoneScores
	Chosen nav.Direction
	Status string
	Banner string
}

// Annotate returns a copy of frame with zone dividers, per-zone scores, a box
// around the chosen zone, the status line and an optional banner.
func Annotate(frame image.Image, o Overlay) *image.RGBA {
	b := frame.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(dst, dst.Bounds(), frame, b.Min, xdraw.Src)

	zones := ZoneBounds(dst.Bounds())
	for _, z := range zones[1:] {
		vline(dst, z.Min.X, 0, dst.Bounds().Dy(), colorDivider)
	}
	for i, z := range zones {
		d := nav.Zones[i]
		label := fmt.Sprintf("%s %.2f", d, o.Scores.Get(d))
		drawText(dst, z.Min.X+4, dst.Bounds().Dy()-6, label, colorText)
		if d == o.Chosen {
			box(dst, z.Inset(3), 3, colorChosen)
		}
	}
	if o.Status != "" {
		drawText(dst, 6, 16, o.Status, colorText)
	}
	if o.Banner != "" {
		w := font.MeasureString(basicfont.Face7x13, o.Banner).Ceil()
		drawText(dst, (dst.Bounds().Dx()-w)/2, dst.Bounds().Dy()/2, o.Banner, colorBanner)
	}
	return dst
}

func drawText(dst *image.RGBA, x, y int, s string, c color.Color) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func vline(dst *image.RGBA, x, y0, y1 int, c color.Color) {
	for y := y0; y < y1; y++ {
		dst.Set(x, y, c)
	}
}

func box(dst *image.RGBA, r image.Rectangle, thickness int, c color.Color) {
	u := image.NewUniform(c)
	for _, edge := range []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	} {
		xdraw.Draw(dst, edge.Intersect(dst.Bounds()), u, image.Point{}, xdraw.Src)
	}
}

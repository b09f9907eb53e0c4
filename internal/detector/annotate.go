package detector

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/Harsh-BH/vehicle-counter/internal/domain"
)

var boxColor = color.RGBA{G: 255, A: 255}

const (
	boxWidth    = 2
	labelOffset = 10 // label top sits this far above the box
)

// mark is one box to draw, with an optional text label above it.
type mark struct {
	box   domain.Box
	label string
}

// annotate draws every mark onto the image at src and writes the result to dst.
// PNG output is used when dst ends in .png, JPEG otherwise.
func annotate(src, dst string, marks []mark) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open image: %w", err)
	}
	img, _, err := image.Decode(in)
	in.Close()
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}

	canvas := image.NewRGBA(img.Bounds())
	draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Src)
	for _, m := range marks {
		drawRect(canvas, image.Rect(m.box[0], m.box[1], m.box[2], m.box[3]))
		if m.label != "" {
			drawLabel(canvas, m.box[0], m.box[1]-labelOffset, m.label)
		}
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if strings.EqualFold(filepath.Ext(dst), ".png") {
		err = png.Encode(out, canvas)
	} else {
		err = jpeg.Encode(out, canvas, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("encode output: %w", err)
	}
	return out.Close()
}

// drawRect paints an outline of boxWidth pixels inside r, clipped to the canvas.
func drawRect(dst *image.RGBA, r image.Rectangle) {
	r = r.Canon()
	fill := image.NewUniform(boxColor)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+boxWidth),
		image.Rect(r.Min.X, r.Max.Y-boxWidth, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+boxWidth, r.Max.Y),
		image.Rect(r.Max.X-boxWidth, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), fill, image.Point{}, draw.Src)
	}
}

// drawLabel writes text with its top-left corner at (x, top).
func drawLabel(dst *image.RGBA, x, top int, text string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(boxColor),
		Face: face,
		Dot:  fixed.P(x, top+face.Metrics().Ascent.Ceil()),
	}
	d.DrawString(text)
}

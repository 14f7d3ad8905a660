package images

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/nfnt/resize"
)

// LetterboxColor is the padding color used by YOLO letterboxing.
var LetterboxColor = color.NRGBA{R: 114, G: 114, B: 114, A: 0xff}

// Letterbox records where the source frame landed inside a letterboxed canvas.
type Letterbox struct {
	// Width and Height are the canvas size.
	Width, Height int
	// Content is the region of the canvas covered by the scaled frame.
	Content Rect
}

// Identity reports whether the frame fills the whole canvas.
func (l Letterbox) Identity() bool {
	return l.Content == Rect{X2: l.Width, Y2: l.Height}
}

// Unmap converts a point normalized against the canvas into one normalized against the
// source frame.
func (l Letterbox) Unmap(x, y float32) (float32, float32) {
	if l.Content.Empty() {
		return x, y
	}
	return (x*float32(l.Width) - float32(l.Content.X1)) / float32(l.Content.Dx()),
		(y*float32(l.Height) - float32(l.Content.Y1)) / float32(l.Content.Dy())
}

// Map converts a point normalized against the source frame into one normalized against the
// canvas. It is the inverse of Unmap.
func (l Letterbox) Map(x, y float32) (float32, float32) {
	if l.Content.Empty() {
		return x, y
	}
	return (float32(l.Content.X1) + x*float32(l.Content.Dx())) / float32(l.Width),
		(float32(l.Content.Y1) + y*float32(l.Content.Dy())) / float32(l.Height)
}

// Scale returns the size of a w x h grid laid over the canvas once it is cut down to the
// content region, at least one cell per axis.
func (l Letterbox) Scale(w, h int) (int, int) {
	if l.Content.Empty() || l.Width <= 0 || l.Height <= 0 {
		return w, h
	}
	sw := (w*l.Content.Dx() + l.Width/2) / l.Width
	sh := (h*l.Content.Dy() + l.Height/2) / l.Height
	return max(1, sw), max(1, sh)
}

// UnmapSize converts a normalized canvas extent into a normalized source extent.
func (l Letterbox) UnmapSize(w, h float32) (float32, float32) {
	if l.Content.Empty() {
		return w, h
	}
	return w * float32(l.Width) / float32(l.Content.Dx()),
		h * float32(l.Height) / float32(l.Content.Dy())
}

// Stretch resizes src to exactly width x height with bilinear filtering.
func Stretch(src image.Image, width, height int) (*image.NRGBA, Letterbox) {
	box := Letterbox{Width: width, Height: height, Content: Rect{X2: width, Y2: height}}
	b := src.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return ToNRGBA(src), box
	}
	return ToNRGBA(resize.Resize(uint(width), uint(height), src, resize.Bilinear)), box
}

// Fit scales src to fit inside width x height keeping its aspect ratio, and centers it on a
// canvas filled with fill.
//
// Arguments:
//   - src: The source image.
//   - width: The canvas width.
//   - height: The canvas height.
//   - fill: The padding color.
//
// Returns:
//   - *image.NRGBA: The canvas.
//   - Letterbox: The placement of the frame, for mapping results back.
func Fit(src image.Image, width, height int, fill color.Color) (*image.NRGBA, Letterbox) {
	b := src.Bounds()
	sw, sh := b.Dx(), b.Dy()
	scale := min(float64(width)/float64(sw), float64(height)/float64(sh))
	nw := max(1, min(width, int(float64(sw)*scale+0.5)))
	nh := max(1, min(height, int(float64(sh)*scale+0.5)))

	padX, padY := (width-nw)/2, (height-nh)/2
	box := Letterbox{
		Width:   width,
		Height:  height,
		Content: Rect{X1: padX, Y1: padY, X2: padX + nw, Y2: padY + nh},
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)

	scaled := src
	if nw != sw || nh != sh {
		scaled = resize.Resize(uint(nw), uint(nh), src, resize.Bilinear)
	}
	draw.Draw(canvas, image.Rect(padX, padY, padX+nw, padY+nh), scaled, scaled.Bounds().Min, draw.Src)
	return canvas, box
}

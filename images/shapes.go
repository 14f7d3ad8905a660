// Package images - Image processing utilities
package images

// Rect is a lightweight pixel rectangle.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 int
}

// Dx returns the width of the rectangle.
func (r Rect) Dx() int {
	return r.X2 - r.X1
}

// Dy returns the height of the rectangle.
func (r Rect) Dy() int {
	return r.Y2 - r.Y1
}

// Empty reports whether the rectangle contains no pixels.
func (r Rect) Empty() bool {
	return r.X1 >= r.X2 || r.Y1 >= r.Y2
}

// Intersect returns the largest rectangle contained by both r and o, or the zero Rect when
// they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
		X2: min(r.X2, o.X2),
		Y2: min(r.Y2, o.Y2),
	}
	if out.Empty() {
		return Rect{}
	}
	return out
}

// NormRect converts normalized extents into a pixel rectangle of a w x h grid, rounding
// outward and clipping to the grid.
func NormRect(x1, y1, x2, y2 float32, w, h int) Rect {
	r := Rect{
		X1: int(x1 * float32(w)),
		Y1: int(y1 * float32(h)),
		X2: int(x2*float32(w) + 0.999),
		Y2: int(y2*float32(h) + 0.999),
	}
	return r.Intersect(Rect{X2: w, Y2: h})
}

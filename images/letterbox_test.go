package images

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFit(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	for i := range src.Pix {
		src.Pix[i] = 255
	}

	canvas, box := Fit(src, 64, 64, LetterboxColor)
	assert.Equal(t, image.Rect(0, 0, 64, 64), canvas.Bounds())
	assert.Equal(t, Rect{X1: 0, Y1: 16, X2: 64, Y2: 48}, box.Content)
	assert.False(t, box.Identity())

	assert.Equal(t, LetterboxColor, canvas.NRGBAAt(32, 0))
	inside := canvas.NRGBAAt(32, 32)
	assert.Greater(t, inside.R, uint8(250))
	assert.Equal(t, uint8(255), inside.A)

	x, y := box.Unmap(0.5, 0.25)
	assert.InDelta(t, 0.5, x, 1e-6)
	assert.InDelta(t, 0, y, 1e-6)

	w, h := box.UnmapSize(0.5, 0.25)
	assert.InDelta(t, 0.5, w, 1e-6)
	assert.InDelta(t, 0.5, h, 1e-6)

	for _, p := range [][2]float32{{0, 0}, {0.5, 0.5}, {1, 1}, {0.2, 0.9}} {
		mx, my := box.Map(p[0], p[1])
		ux, uy := box.Unmap(mx, my)
		assert.InDelta(t, p[0], ux, 1e-6)
		assert.InDelta(t, p[1], uy, 1e-6)
	}
	x, y = box.Map(0, 0)
	assert.InDelta(t, 0, x, 1e-6)
	assert.InDelta(t, 0.25, y, 1e-6)

	gw, gh := box.Scale(16, 16)
	assert.Equal(t, 16, gw)
	assert.Equal(t, 8, gh)
}

func TestStretch(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	out, box := Stretch(src, 8, 8)
	assert.Equal(t, image.Rect(0, 0, 8, 8), out.Bounds())
	assert.True(t, box.Identity())

	x, y := box.Unmap(0.3, 0.7)
	assert.InDelta(t, 0.3, x, 1e-6)
	assert.InDelta(t, 0.7, y, 1e-6)

	gw, gh := box.Scale(16, 12)
	assert.Equal(t, 16, gw)
	assert.Equal(t, 12, gh)

	same, _ := Stretch(src, 20, 10)
	assert.Same(t, src, same)
}

package postprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMask(t *testing.T) {
	m := NewMask(5, 3)
	assert.Len(t, m.Bits, 2)

	m.Set(0, 0)
	m.Set(4, 2)
	m.Set(2, 1)
	m.Set(9, 9)

	assert.True(t, m.At(0, 0))
	assert.True(t, m.At(4, 2))
	assert.True(t, m.At(2, 1))
	assert.False(t, m.At(1, 0))
	assert.False(t, m.At(-1, 0))
	assert.Equal(t, 3, m.Count())
	assert.Equal(t, byte(0x81), m.Bits[0])
}

func TestBoxFromExtents(t *testing.T) {
	b := BoxFromExtents(-0.2, 0.1, 0.6, 1.4, 0.5, 1)
	assert.InDelta(t, 0.3, b.X, 1e-6)
	assert.InDelta(t, 0.55, b.Y, 1e-6)
	assert.InDelta(t, 0.6, b.W, 1e-6)
	assert.InDelta(t, 0.9, b.H, 1e-6)
}

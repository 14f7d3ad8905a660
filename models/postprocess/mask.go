package postprocess

// Mask is a packed 1 bit per pixel bitmap. Rows are stored top to bottom, pixels LSB first
// within each byte.
type Mask struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bits   []byte `json:"bits"`
}

// NewMask allocates an empty mask.
func NewMask(width, height int) Mask {
	return Mask{Width: width, Height: height, Bits: make([]byte, (width*height+7)/8)}
}

// Set marks pixel (x, y). Out of bounds coordinates are ignored.
func (m Mask) Set(x, y int) {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return
	}
	i := y*m.Width + x
	m.Bits[i>>3] |= 1 << (i & 7)
}

// At reports whether pixel (x, y) is set.
func (m Mask) At(x, y int) bool {
	if x < 0 || y < 0 || x >= m.Width || y >= m.Height {
		return false
	}
	i := y*m.Width + x
	return m.Bits[i>>3]&(1<<(i&7)) != 0
}

// Count returns the number of set pixels.
func (m Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		for ; b != 0; b &= b - 1 {
			n++
		}
	}
	return n
}

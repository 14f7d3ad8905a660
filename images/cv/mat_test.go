package cv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/edge-vision/images"
)

func TestFromMat(t *testing.T) {
	mat := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV8UC3)
	defer mat.Close()

	ts := time.Unix(1700000000, 0)
	img, err := FromMat(mat, ts)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Width)
	assert.Equal(t, 2, img.Height)
	assert.Equal(t, images.FormatBGR888, img.Format)
	assert.Equal(t, ts, img.Timestamp)
	assert.Len(t, img.Data, 18)
	assert.NoError(t, img.Validate())

	gray := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV8UC1)
	defer gray.Close()
	_, err = FromMat(gray, ts)
	assert.ErrorIs(t, err, images.ErrUnsupportedFormat)

	empty := gocv.NewMat()
	defer empty.Close()
	_, err = FromMat(empty, ts)
	assert.Error(t, err)
}

func TestChecksum(t *testing.T) {
	a := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 4, 4, gocv.MatTypeCV8UC3)
	defer a.Close()
	b := a.Clone()
	defer b.Close()

	sa, ok := Checksum(a)
	require.True(t, ok)
	sb, ok := Checksum(b)
	require.True(t, ok)
	assert.Equal(t, sa, sb)

	b.SetUCharAt(0, 0, 255)
	sb, _ = Checksum(b)
	assert.NotEqual(t, sa, sb)

	empty := gocv.NewMat()
	defer empty.Close()
	_, ok = Checksum(empty)
	assert.False(t, ok)
}

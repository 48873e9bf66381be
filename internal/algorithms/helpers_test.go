package algorithms

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"phash-degrade/internal/core"
)

// gradientImage returns an RGB buffer whose samples vary with position.
func gradientImage(t *testing.T, rows, cols int) gocv.Mat {
	t.Helper()
	pix := make([]uint8, rows*cols*core.Channels)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			off := (y*cols + x) * core.Channels
			pix[off] = uint8(x * 255 / max(cols-1, 1))
			pix[off+1] = uint8(y * 255 / max(rows-1, 1))
			pix[off+2] = uint8((x + y) % 256)
		}
	}
	mat, err := core.FromPixels(rows, cols, pix)
	require.NoError(t, err)
	return mat
}

// solidImage returns an RGB buffer with every sample set to v.
func solidImage(t *testing.T, rows, cols int, v uint8) gocv.Mat {
	t.Helper()
	pix := make([]uint8, rows*cols*core.Channels)
	for i := range pix {
		pix[i] = v
	}
	mat, err := core.FromPixels(rows, cols, pix)
	require.NoError(t, err)
	return mat
}

func pixels(t *testing.T, mat gocv.Mat) []uint8 {
	t.Helper()
	pix, err := core.Pixels(mat)
	require.NoError(t, err)
	return pix
}

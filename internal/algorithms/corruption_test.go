package algorithms

import (
	"image"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phash-degrade/internal/core"
)

func TestScatterPixels(t *testing.T) {
	rows, cols := 40, 50
	pix := make([]uint8, rows*cols*core.Channels)
	for i := range pix {
		pix[i] = 128
	}

	n := int(DefaultPixelFraction * float64(rows*cols))
	distinct := scatterPixels(pix, rows, cols, n, rand.New(rand.NewSource(1)))

	assert.LessOrEqual(t, distinct, n)
	assert.Positive(t, distinct)

	changed := 0
	for i := 0; i < rows*cols; i++ {
		r, g, b := pix[i*3], pix[i*3+1], pix[i*3+2]
		switch {
		case r == 128 && g == 128 && b == 128:
		case r == 0 && g == 0 && b == 0, r == 255 && g == 255 && b == 255:
			changed++
		default:
			t.Fatalf("pixel %d is (%d,%d,%d), want black, white or untouched", i, r, g, b)
		}
	}
	assert.Equal(t, distinct, changed)
}

func TestPaintBlocks_Bounds(t *testing.T) {
	rows, cols := 60, 45
	pix := make([]uint8, rows*cols*core.Channels)
	spec := DefaultNoiseSpec()
	bounds := image.Rect(0, 0, cols, rows)

	blocks := paintBlocks(pix, rows, cols, spec, rand.New(rand.NewSource(7)))
	require.Len(t, blocks, spec.BlockCount)

	for _, b := range blocks {
		assert.True(t, b.In(bounds), "block %v outside %v", b, bounds)
		assert.GreaterOrEqual(t, b.Dx(), spec.BlockMin)
		assert.LessOrEqual(t, b.Dx(), spec.BlockMax)
		assert.GreaterOrEqual(t, b.Dy(), spec.BlockMin)
		assert.LessOrEqual(t, b.Dy(), spec.BlockMax)
	}
}

func TestPaintBlocks_ClampsToSmallImage(t *testing.T) {
	rows, cols := 5, 8
	pix := make([]uint8, rows*cols*core.Channels)

	blocks := paintBlocks(pix, rows, cols, DefaultNoiseSpec(), rand.New(rand.NewSource(3)))
	for _, b := range blocks {
		assert.Equal(t, image.Rect(0, 0, cols, rows), b)
	}
}

func TestNoiseSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*NoiseSpec)
		wantErr bool
	}{
		{"default", func(*NoiseSpec) {}, false},
		{"no noise", func(s *NoiseSpec) { s.PixelFraction, s.BlockCount = 0, 0 }, false},
		{"fraction above one", func(s *NoiseSpec) { s.PixelFraction = 1.5 }, true},
		{"negative blocks", func(s *NoiseSpec) { s.BlockCount = -1 }, true},
		{"inverted range", func(s *NoiseSpec) { s.BlockMin, s.BlockMax = 30, 10 }, true},
		{"zero side", func(s *NoiseSpec) { s.BlockMin = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := DefaultNoiseSpec()
			tt.mutate(&spec)
			err := spec.Validate()
			if tt.wantErr {
				assert.True(t, core.Is(err, core.ErrCodeInvalidParameter))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestMotionSpec_Validate(t *testing.T) {
	tests := []struct {
		name    string
		spec    MotionSpec
		wantErr bool
	}{
		{"default", DefaultMotionSpec(), false},
		{"disabled without sizes", MotionSpec{Probability: 0, Axis: AxisVertical}, false},
		{"enabled without sizes", MotionSpec{Probability: 0.5, Axis: AxisVertical}, true},
		{"even size", MotionSpec{Probability: 1, KernelSizes: []int{8}, Axis: AxisVertical}, true},
		{"probability above one", MotionSpec{Probability: 2, KernelSizes: []int{9}, Axis: AxisVertical}, true},
		{"bad axis", MotionSpec{Probability: 1, KernelSizes: []int{9}, Axis: "sideways"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.True(t, core.Is(err, core.ErrCodeInvalidParameter))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCorruption_SeededIsDeterministic(t *testing.T) {
	input := gradientImage(t, 120, 160)
	defer input.Close()
	before := pixels(t, input)

	run := func() ([]uint8, CorruptionReport) {
		c, err := NewCorruption(DefaultNoiseSpec(), DefaultMotionSpec(), rand.New(rand.NewSource(42)))
		require.NoError(t, err)

		output, report, err := c.Corrupt(input)
		require.NoError(t, err)
		defer output.Close()

		assert.Equal(t, input.Rows(), output.Rows())
		assert.Equal(t, input.Cols(), output.Cols())
		return pixels(t, output), report
	}

	first, firstReport := run()
	second, secondReport := run()

	assert.Equal(t, first, second)
	assert.Equal(t, firstReport, secondReport)
	assert.Equal(t, before, pixels(t, input), "input must not be modified")
	assert.NotEqual(t, before, first)
}

func TestCorruption_MotionProbability(t *testing.T) {
	input := gradientImage(t, 40, 40)
	defer input.Close()

	t.Run("never", func(t *testing.T) {
		motion := DefaultMotionSpec()
		motion.Probability = 0
		c, err := NewCorruption(DefaultNoiseSpec(), motion, rand.New(rand.NewSource(1)))
		require.NoError(t, err)

		output, report, err := c.Corrupt(input)
		require.NoError(t, err)
		defer output.Close()
		assert.Zero(t, report.MotionKernelSize)
	})

	t.Run("always", func(t *testing.T) {
		motion := DefaultMotionSpec()
		motion.Probability = 1
		c, err := NewCorruption(DefaultNoiseSpec(), motion, rand.New(rand.NewSource(1)))
		require.NoError(t, err)

		output, report, err := c.Corrupt(input)
		require.NoError(t, err)
		defer output.Close()
		assert.Contains(t, DefaultMotionKernelSizes(), report.MotionKernelSize)
	})
}

func TestMotionBlur_SpreadsAlongAxis(t *testing.T) {
	const (
		rows, cols = 15, 15
		cy, cx     = 7, 7
		k          = 5
	)
	pix := make([]uint8, rows*cols*core.Channels)
	for ch := 0; ch < core.Channels; ch++ {
		pix[(cy*cols+cx)*core.Channels+ch] = 255
	}
	impulse, err := core.FromPixels(rows, cols, pix)
	require.NoError(t, err)
	defer impulse.Close()

	tests := []struct {
		axis Axis
		// lit reports whether (y, x) lies on the k-pixel streak through the impulse.
		lit func(y, x int) bool
	}{
		{AxisVertical, func(y, x int) bool { return x == cx && y >= cy-k/2 && y <= cy+k/2 }},
		{AxisHorizontal, func(y, x int) bool { return y == cy && x >= cx-k/2 && x <= cx+k/2 }},
	}

	for _, tt := range tests {
		t.Run(string(tt.axis), func(t *testing.T) {
			kernel, err := NewMotionKernel(k, tt.axis)
			require.NoError(t, err)

			output, err := motionBlur(impulse, kernel)
			require.NoError(t, err)
			defer output.Close()
			require.Equal(t, rows, output.Rows())
			require.Equal(t, cols, output.Cols())

			got := pixels(t, output)
			streak := 0
			for y := 0; y < rows; y++ {
				for x := 0; x < cols; x++ {
					for ch := 0; ch < core.Channels; ch++ {
						v := float64(got[(y*cols+x)*core.Channels+ch])
						if tt.lit(y, x) {
							assert.InDelta(t, 255.0/k, v, 1, "pixel (%d,%d)", y, x)
							continue
						}
						assert.Zero(t, v, "pixel (%d,%d)", y, x)
					}
					if tt.lit(y, x) {
						streak++
					}
				}
			}
			assert.Equal(t, k, streak)
		})
	}
}

func TestMotionBlur_ReplicatesEdges(t *testing.T) {
	input := solidImage(t, 10, 12, 200)
	defer input.Close()

	for _, axis := range []Axis{AxisVertical, AxisHorizontal} {
		t.Run(string(axis), func(t *testing.T) {
			kernel, err := NewMotionKernel(15, axis)
			require.NoError(t, err)

			output, err := motionBlur(input, kernel)
			require.NoError(t, err)
			defer output.Close()

			// A kernel longer than the image reaches past every edge.
			for i, v := range pixels(t, output) {
				require.InDelta(t, 200, int(v), 1, "sample %d", i)
			}
		})
	}
}

func TestCorruption_NoNoiseIsIdentity(t *testing.T) {
	input := gradientImage(t, 30, 30)
	defer input.Close()

	noise := DefaultNoiseSpec()
	noise.PixelFraction = 0
	noise.BlockCount = 0
	c, err := NewCorruption(noise, MotionSpec{Probability: 0, Axis: AxisVertical}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	output, details, err := c.Apply(input)
	require.NoError(t, err)
	defer output.Close()

	assert.Equal(t, pixels(t, input), pixels(t, output))
	assert.Equal(t, 0, details["pixel_draws"])
	assert.Equal(t, 0, details["blocks"])
}

func TestCorruption_NilRand(t *testing.T) {
	input := gradientImage(t, 10, 10)
	defer input.Close()

	c, err := NewCorruption(DefaultNoiseSpec(), DefaultMotionSpec(), nil)
	require.NoError(t, err)

	output, _, err := c.Apply(input)
	defer output.Close()
	assert.True(t, core.Is(err, core.ErrCodeInvalidParameter))
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{StageCorruption, StageDownscale, StageGaussianBlur}, Names())
	assert.True(t, IsValidStage(StageDownscale))
	assert.False(t, IsValidStage("sharpen"))

	params, err := GetParameterInfo(StageGaussianBlur)
	require.NoError(t, err)
	assert.Equal(t, "kernel_size", params[0].Name)

	_, err = GetParameterInfo("sharpen")
	assert.Error(t, err)
}

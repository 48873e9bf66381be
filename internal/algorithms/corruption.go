package algorithms

import (
	"image"

	"gocv.io/x/gocv"

	"phash-degrade/internal/core"
)

const (
	StageCorruption = "corruption"

	DefaultPixelFraction     = 0.30
	DefaultBlockCount        = 50
	DefaultBlockMin          = 10
	DefaultBlockMax          = 30
	DefaultMotionProbability = 0.8
	DefaultMotionAxis        = AxisVertical
)

// DefaultMotionKernelSizes returns a fresh copy of the default kernel sizes.
func DefaultMotionKernelSizes() []int {
	return []int{9, 11, 15}
}

// Rand is the randomness the corruption stage draws from. *math/rand.Rand
// satisfies it; pass a seeded one for reproducible output.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

// NoiseSpec parameterizes the pixel and block corruption steps.
type NoiseSpec struct {
	PixelFraction float64 // fraction of rows*cols drawn for salt-and-pepper
	BlockCount    int
	BlockMin      int // block side range, inclusive
	BlockMax      int
}

func DefaultNoiseSpec() NoiseSpec {
	return NoiseSpec{
		PixelFraction: DefaultPixelFraction,
		BlockCount:    DefaultBlockCount,
		BlockMin:      DefaultBlockMin,
		BlockMax:      DefaultBlockMax,
	}
}

func (n NoiseSpec) Validate() error {
	if n.PixelFraction < 0 || n.PixelFraction > 1 {
		return core.NewError(core.ErrCodeInvalidParameter, "pixel_fraction must be in [0,1], got %g", n.PixelFraction)
	}
	if n.BlockCount < 0 {
		return core.NewError(core.ErrCodeInvalidParameter, "block_count must not be negative, got %d", n.BlockCount)
	}
	if n.BlockMin < 1 || n.BlockMax < n.BlockMin {
		return core.NewError(core.ErrCodeInvalidParameter, "block size range [%d,%d] is invalid", n.BlockMin, n.BlockMax)
	}
	return nil
}

// MotionSpec parameterizes the optional motion blur step.
type MotionSpec struct {
	Probability float64
	KernelSizes []int
	Axis        Axis
}

func DefaultMotionSpec() MotionSpec {
	return MotionSpec{
		Probability: DefaultMotionProbability,
		KernelSizes: DefaultMotionKernelSizes(),
		Axis:        DefaultMotionAxis,
	}
}

func (m MotionSpec) Validate() error {
	if m.Probability < 0 || m.Probability > 1 {
		return core.NewError(core.ErrCodeInvalidParameter, "motion probability must be in [0,1], got %g", m.Probability)
	}
	if m.Probability > 0 && len(m.KernelSizes) == 0 {
		return core.NewError(core.ErrCodeInvalidParameter, "motion kernel sizes must not be empty")
	}
	for _, size := range m.KernelSizes {
		if size <= 0 || size%2 == 0 {
			return core.NewError(core.ErrCodeInvalidParameter, "motion kernel size must be a positive odd integer, got %d", size)
		}
	}
	if _, err := ParseAxis(string(m.Axis)); err != nil {
		return err
	}
	return nil
}

// CorruptionReport records what a single Corrupt call did.
type CorruptionReport struct {
	PixelDraws       int
	DistinctPixels   int
	Blocks           []image.Rectangle
	MotionKernelSize int // 0 when motion blur was skipped
}

func (r CorruptionReport) Details() Details {
	return Details{
		"pixel_draws":        r.PixelDraws,
		"distinct_pixels":    r.DistinctPixels,
		"blocks":             len(r.Blocks),
		"motion_kernel_size": r.MotionKernelSize,
	}
}

// Corruption composes salt-and-pepper pixels, random blocks and a motion
// blur, in that order, on a private copy of its input.
type Corruption struct {
	noise  NoiseSpec
	motion MotionSpec
	rng    Rand
}

func NewCorruption(noise NoiseSpec, motion MotionSpec, rng Rand) (*Corruption, error) {
	c := &Corruption{
		noise:  noise,
		motion: motion,
		rng:    rng,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Corruption) Apply(input gocv.Mat) (gocv.Mat, Details, error) {
	output, report, err := c.Corrupt(input)
	if err != nil {
		return output, nil, err
	}
	return output, report.Details(), nil
}

// Corrupt runs the three steps and reports what it did. Not safe for
// concurrent use since the steps share c's Rand.
func (c *Corruption) Corrupt(input gocv.Mat) (gocv.Mat, CorruptionReport, error) {
	var report CorruptionReport

	if c.rng == nil {
		return gocv.NewMat(), report, core.NewError(core.ErrCodeInvalidParameter, "no random source configured").WithStage(StageCorruption)
	}
	if err := core.ValidateImage(input); err != nil {
		return gocv.NewMat(), report, err
	}

	rows, cols := input.Rows(), input.Cols()
	pix, err := core.Pixels(input)
	if err != nil {
		return gocv.NewMat(), report, err
	}

	n := int(c.noise.PixelFraction * float64(rows*cols))
	report.PixelDraws = n
	report.DistinctPixels = scatterPixels(pix, rows, cols, n, c.rng)
	report.Blocks = paintBlocks(pix, rows, cols, c.noise, c.rng)

	noisy, err := core.FromPixels(rows, cols, pix)
	if err != nil {
		return gocv.NewMat(), report, err
	}

	if c.motion.Probability == 0 || c.rng.Float64() >= c.motion.Probability {
		return noisy, report, nil
	}
	defer noisy.Close()

	size := c.motion.KernelSizes[c.rng.Intn(len(c.motion.KernelSizes))]
	kernel, err := NewMotionKernel(size, c.motion.Axis)
	if err != nil {
		return gocv.NewMat(), report, err
	}

	blurred, err := motionBlur(noisy, kernel)
	if err != nil {
		return gocv.NewMat(), report, err
	}
	report.MotionKernelSize = size

	return blurred, report, nil
}

// scatterPixels draws n coordinates with replacement and paints each pure
// black or pure white with equal probability. It returns how many distinct
// pixels were touched.
func scatterPixels(pix []uint8, rows, cols, n int, rng Rand) int {
	touched := make([]bool, rows*cols)
	distinct := 0

	for i := 0; i < n; i++ {
		y := rng.Intn(rows)
		x := rng.Intn(cols)

		var v uint8 = 255
		if rng.Float64() < 0.5 {
			v = 0
		}

		idx := y*cols + x
		off := idx * core.Channels
		pix[off], pix[off+1], pix[off+2] = v, v, v

		if !touched[idx] {
			touched[idx] = true
			distinct++
		}
	}

	return distinct
}

// paintBlocks overwrites spec.BlockCount rectangles with random samples.
// A drawn side larger than the image is clamped to the image extent so the
// block always fits.
func paintBlocks(pix []uint8, rows, cols int, spec NoiseSpec, rng Rand) []image.Rectangle {
	blocks := make([]image.Rectangle, 0, spec.BlockCount)
	span := spec.BlockMax - spec.BlockMin + 1

	for i := 0; i < spec.BlockCount; i++ {
		w := min(spec.BlockMin+rng.Intn(span), cols)
		h := min(spec.BlockMin+rng.Intn(span), rows)
		x0 := rng.Intn(cols - w + 1)
		y0 := rng.Intn(rows - h + 1)

		for y := y0; y < y0+h; y++ {
			row := y * cols * core.Channels
			for x := x0; x < x0+w; x++ {
				off := row + x*core.Channels
				for ch := 0; ch < core.Channels; ch++ {
					pix[off+ch] = uint8(rng.Intn(256))
				}
			}
		}

		blocks = append(blocks, image.Rect(x0, y0, x0+w, y0+h))
	}

	return blocks
}

// motionBlur correlates input with kernel, replicating edge pixels.
func motionBlur(input gocv.Mat, kernel MotionKernel) (gocv.Mat, error) {
	k := kernel.Mat()
	defer k.Close()

	output := gocv.NewMat()
	if err := gocv.Filter2D(input, &output, -1, k, image.Point{X: -1, Y: -1}, 0, gocv.BorderReplicate); err != nil {
		output.Close()
		return gocv.NewMat(), core.WrapError(core.ErrCodeInternal, err, "motion blur failed").WithStage(StageCorruption)
	}
	return output, nil
}

func (c *Corruption) Name() string {
	return StageCorruption
}

func (c *Corruption) Description() string {
	return "Salt-and-pepper pixels, random blocks and an optional motion blur"
}

func (c *Corruption) Validate() error {
	if err := c.noise.Validate(); err != nil {
		return withStage(err, StageCorruption)
	}
	if err := c.motion.Validate(); err != nil {
		return withStage(err, StageCorruption)
	}
	return nil
}

func (c *Corruption) Parameters() []ParameterInfo {
	return []ParameterInfo{
		{
			Name:        "pixel_fraction",
			Type:        "float",
			Min:         0.0,
			Max:         1.0,
			Default:     DefaultPixelFraction,
			Description: "Salt-and-pepper draws as a fraction of all pixels",
		},
		{
			Name:        "block_count",
			Type:        "int",
			Min:         0,
			Default:     DefaultBlockCount,
			Description: "Number of random-valued blocks",
		},
		{
			Name:        "block_min",
			Type:        "int",
			Min:         1,
			Default:     DefaultBlockMin,
			Description: "Smallest block side in pixels",
		},
		{
			Name:        "block_max",
			Type:        "int",
			Min:         1,
			Default:     DefaultBlockMax,
			Description: "Largest block side in pixels",
		},
		{
			Name:        "motion_probability",
			Type:        "float",
			Min:         0.0,
			Max:         1.0,
			Default:     DefaultMotionProbability,
			Description: "Chance that the motion blur step runs",
		},
		{
			Name:        "motion_kernel_sizes",
			Type:        "ints",
			Default:     DefaultMotionKernelSizes(),
			Description: "Kernel sizes picked from uniformly (each odd)",
		},
		{
			Name:        "motion_axis",
			Type:        "enum",
			Default:     string(DefaultMotionAxis),
			Description: "Direction of the simulated motion",
			Options:     []string{string(AxisVertical), string(AxisHorizontal)},
		},
	}
}

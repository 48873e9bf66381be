package algorithms

import (
	"image"

	"gocv.io/x/gocv"

	"phash-degrade/internal/core"
)

const (
	StageGaussianBlur = "gaussian_blur"

	DefaultBlurKernelSize = 121
)

// GaussianBlur smooths every channel with a square isotropic kernel.
// Pixels outside the image are replicated from the nearest edge.
type GaussianBlur struct {
	kernelSize int
	sigma      float64 // 0 derives sigma from kernelSize
}

// NewGaussianBlur creates a blur stage; kernelSize must be a positive odd
// integer and sigma non-negative.
func NewGaussianBlur(kernelSize int, sigma float64) (*GaussianBlur, error) {
	g := &GaussianBlur{kernelSize: kernelSize, sigma: sigma}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *GaussianBlur) Apply(input gocv.Mat) (gocv.Mat, Details, error) {
	if err := core.ValidateImage(input); err != nil {
		return gocv.NewMat(), nil, err
	}

	output := gocv.NewMat()
	ksize := image.Point{X: g.kernelSize, Y: g.kernelSize}
	if err := gocv.GaussianBlur(input, &output, ksize, g.sigma, g.sigma, gocv.BorderReplicate); err != nil {
		output.Close()
		return gocv.NewMat(), nil, core.WrapError(core.ErrCodeInternal, err, "gaussian blur failed").WithStage(StageGaussianBlur)
	}

	return output, Details{
		"kernel_size": g.kernelSize,
		"sigma":       g.EffectiveSigma(),
	}, nil
}

// EffectiveSigma is the standard deviation OpenCV uses for this kernel.
func (g *GaussianBlur) EffectiveSigma() float64 {
	if g.sigma > 0 {
		return g.sigma
	}
	return 0.3*(float64(g.kernelSize-1)*0.5-1) + 0.8
}

func (g *GaussianBlur) Name() string {
	return StageGaussianBlur
}

func (g *GaussianBlur) Description() string {
	return "Large-kernel isotropic Gaussian blur"
}

func (g *GaussianBlur) Validate() error {
	if g.kernelSize <= 0 || g.kernelSize%2 == 0 {
		return core.NewError(core.ErrCodeInvalidParameter, "kernel_size must be a positive odd integer, got %d", g.kernelSize).WithStage(StageGaussianBlur)
	}
	if g.sigma < 0 {
		return core.NewError(core.ErrCodeInvalidParameter, "sigma must not be negative, got %g", g.sigma).WithStage(StageGaussianBlur)
	}
	return nil
}

func (g *GaussianBlur) Parameters() []ParameterInfo {
	return []ParameterInfo{
		{
			Name:        "kernel_size",
			Type:        "int",
			Min:         1,
			Default:     DefaultBlurKernelSize,
			Description: "Side of the square Gaussian kernel (must be odd)",
		},
		{
			Name:        "sigma",
			Type:        "float",
			Min:         0.0,
			Default:     0.0,
			Description: "Standard deviation; 0 derives it from kernel_size",
		},
	}
}

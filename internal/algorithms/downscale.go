package algorithms

import (
	"image"

	"gocv.io/x/gocv"

	"phash-degrade/internal/core"
)

const (
	StageDownscale = "downscale"

	DefaultDownscaleDivisor = 80
)

// Downscale shrinks both axes by an integer divisor using area (box)
// interpolation, so each output pixel is the mean of the source pixels it
// covers.
type Downscale struct {
	divisor int
}

func NewDownscale(divisor int) (*Downscale, error) {
	d := &Downscale{divisor: divisor}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// TargetSize returns floor(width/d) x floor(height/d), or DEGENERATE_SIZE
// when either is zero.
func (d *Downscale) TargetSize(width, height int) (int, int, error) {
	newWidth := width / d.divisor
	newHeight := height / d.divisor
	if newWidth == 0 || newHeight == 0 {
		return 0, 0, core.NewError(core.ErrCodeDegenerateSize,
			"%dx%d divided by %d gives %dx%d", width, height, d.divisor, newWidth, newHeight).WithStage(StageDownscale)
	}
	return newWidth, newHeight, nil
}

func (d *Downscale) Apply(input gocv.Mat) (gocv.Mat, Details, error) {
	if err := core.ValidateImage(input); err != nil {
		return gocv.NewMat(), nil, err
	}

	newWidth, newHeight, err := d.TargetSize(input.Cols(), input.Rows())
	if err != nil {
		return gocv.NewMat(), nil, err
	}

	output := gocv.NewMat()
	if err := gocv.Resize(input, &output, image.Point{X: newWidth, Y: newHeight}, 0, 0, gocv.InterpolationArea); err != nil {
		output.Close()
		return gocv.NewMat(), nil, core.WrapError(core.ErrCodeInternal, err, "resize failed").WithStage(StageDownscale)
	}

	return output, Details{
		"divisor": d.divisor,
		"width":   newWidth,
		"height":  newHeight,
	}, nil
}

func (d *Downscale) Name() string {
	return StageDownscale
}

func (d *Downscale) Description() string {
	return "Integer-divisor downscale with area interpolation"
}

func (d *Downscale) Validate() error {
	if d.divisor < 1 {
		return core.NewError(core.ErrCodeInvalidParameter, "divisor must be at least 1, got %d", d.divisor).WithStage(StageDownscale)
	}
	return nil
}

func (d *Downscale) Parameters() []ParameterInfo {
	return []ParameterInfo{
		{
			Name:        "divisor",
			Type:        "int",
			Min:         1,
			Default:     DefaultDownscaleDivisor,
			Description: "Each axis is divided by this value (floor)",
		},
	}
}

// Concrete implementations of distortion metrics
package metrics

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"

	"phash-degrade/internal/core"
)

// sampleDiffs returns the per-sample differences processed - original over
// every channel.
func sampleDiffs(original, processed gocv.Mat) ([]float64, error) {
	if original.Empty() || processed.Empty() {
		return nil, fmt.Errorf("empty images")
	}
	if !Comparable(original, processed) {
		return nil, fmt.Errorf("image dimensions mismatch: %s vs %s", core.Dimensions(original), core.Dimensions(processed))
	}

	a, err := core.Pixels(original)
	if err != nil {
		return nil, err
	}
	b, err := core.Pixels(processed)
	if err != nil {
		return nil, err
	}

	diffs := make([]float64, len(a))
	for i := range a {
		diffs[i] = float64(b[i]) - float64(a[i])
	}
	return diffs, nil
}

// MAE implements mean absolute error over all samples
type MAE struct{}

// NewMAE creates a new MAE metric
func NewMAE() *MAE {
	return &MAE{}
}

func (m *MAE) Calculate(original, processed gocv.Mat) (float64, error) {
	diffs, err := sampleDiffs(original, processed)
	if err != nil {
		return 0, err
	}
	for i, d := range diffs {
		diffs[i] = math.Abs(d)
	}
	return stat.Mean(diffs, nil), nil
}

func (m *MAE) GetName() string {
	return "MAE"
}

func (m *MAE) GetDescription() string {
	return "Mean absolute sample difference"
}

func (m *MAE) GetRange() (float64, float64) {
	return 0, 255
}

func (m *MAE) IsHigherBetter() bool {
	return false
}

// MSE implements mean squared error over all samples
type MSE struct{}

// NewMSE creates a new MSE metric
func NewMSE() *MSE {
	return &MSE{}
}

func (m *MSE) Calculate(original, processed gocv.Mat) (float64, error) {
	diffs, err := sampleDiffs(original, processed)
	if err != nil {
		return 0, err
	}
	return meanSquare(diffs), nil
}

func meanSquare(diffs []float64) float64 {
	for i, d := range diffs {
		diffs[i] = d * d
	}
	return stat.Mean(diffs, nil)
}

func (m *MSE) GetName() string {
	return "MSE"
}

func (m *MSE) GetDescription() string {
	return "Mean squared sample difference"
}

func (m *MSE) GetRange() (float64, float64) {
	return 0, 255 * 255
}

func (m *MSE) IsHigherBetter() bool {
	return false
}

// PSNR implements Peak Signal-to-Noise Ratio metric
type PSNR struct{}

// NewPSNR creates a new PSNR metric
func NewPSNR() *PSNR {
	return &PSNR{}
}

func (p *PSNR) Calculate(original, processed gocv.Mat) (float64, error) {
	diffs, err := sampleDiffs(original, processed)
	if err != nil {
		return 0, err
	}

	mse := meanSquare(diffs)
	if mse == 0 {
		return math.Inf(1), nil // Perfect match
	}

	maxVal := 255.0
	return 20 * math.Log10(maxVal/math.Sqrt(mse)), nil
}

func (p *PSNR) GetName() string {
	return "PSNR"
}

func (p *PSNR) GetDescription() string {
	return "Peak Signal-to-Noise Ratio in dB"
}

func (p *PSNR) GetRange() (float64, float64) {
	return 0, 100 // Practical range, can go higher
}

func (p *PSNR) IsHigherBetter() bool {
	return true
}

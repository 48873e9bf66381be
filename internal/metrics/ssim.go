package metrics

import (
	"fmt"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/stat"
)

// SSIM constants for 8-bit samples: (0.01*255)^2 and (0.03*255)^2.
const (
	ssimC1 = 6.5025
	ssimC2 = 58.5225
)

// SSIM is a single-window structural similarity over luma: one set of
// moments for the whole frame, no local windows.
type SSIM struct{}

func NewSSIM() *SSIM {
	return &SSIM{}
}

func (s *SSIM) Calculate(original, processed gocv.Mat) (float64, error) {
	if !Comparable(original, processed) {
		return 0, fmt.Errorf("dimension mismatch")
	}

	x, err := luma(original)
	if err != nil {
		return 0, err
	}
	y, err := luma(processed)
	if err != nil {
		return 0, err
	}

	mu1, var1 := stat.PopMeanVariance(x, nil)
	mu2, var2 := stat.PopMeanVariance(y, nil)

	xy := make([]float64, len(x))
	for i := range x {
		xy[i] = x[i] * y[i]
	}
	cov := stat.Mean(xy, nil) - mu1*mu2

	num := (2*mu1*mu2 + ssimC1) * (2*cov + ssimC2)
	den := (mu1*mu1 + mu2*mu2 + ssimC1) * (var1 + var2 + ssimC2)
	return num / den, nil
}

// luma converts an RGB buffer to gray samples.
func luma(m gocv.Mat) ([]float64, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(m, &gray, gocv.ColorRGBToGray); err != nil {
		return nil, fmt.Errorf("gray conversion failed: %w", err)
	}

	data := gray.ToBytes()
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out, nil
}

func (s *SSIM) GetName() string {
	return "SSIM"
}

func (s *SSIM) GetDescription() string {
	return "Structural Similarity Index over luma"
}

func (s *SSIM) GetRange() (float64, float64) {
	return -1, 1
}

func (s *SSIM) IsHigherBetter() bool {
	return true
}

// Distortion metrics between a source buffer and a degraded variant
package metrics

import (
	"fmt"
	"sort"

	"gocv.io/x/gocv"
)

// Metric defines the interface for distortion metrics
type Metric interface {
	// Calculate computes the metric value
	Calculate(original, processed gocv.Mat) (float64, error)

	// GetName returns the metric name
	GetName() string

	// GetDescription returns the metric description
	GetDescription() string

	// GetRange returns the value range (min, max)
	GetRange() (float64, float64)

	// IsHigherBetter returns true if higher values indicate better fidelity
	IsHigherBetter() bool
}

// Evaluator manages and calculates multiple metrics
type Evaluator struct {
	metrics map[string]Metric
}

// NewEvaluator creates a new metrics evaluator
func NewEvaluator() *Evaluator {
	e := &Evaluator{
		metrics: make(map[string]Metric),
	}

	e.RegisterDefaultMetrics()

	return e
}

// RegisterDefaultMetrics registers all default metrics
func (e *Evaluator) RegisterDefaultMetrics() {
	e.Register("mae", NewMAE())
	e.Register("mse", NewMSE())
	e.Register("psnr", NewPSNR())
	e.Register("ssim", NewSSIM())
}

// Register registers a metric
func (e *Evaluator) Register(name string, metric Metric) {
	e.metrics[name] = metric
}

// Names returns the registered metric names in sorted order.
func (e *Evaluator) Names() []string {
	names := make([]string, 0, len(e.metrics))
	for name := range e.metrics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Info describes a registered metric so a reader of its scores knows the
// scale and which direction means less distortion.
type Info struct {
	Key          string  `json:"key"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	HigherBetter bool    `json:"higher_better"`
}

// Describe returns an Info for every registered metric, ordered like Names.
func (e *Evaluator) Describe() []Info {
	names := e.Names()
	infos := make([]Info, 0, len(names))
	for _, key := range names {
		m := e.metrics[key]
		lo, hi := m.GetRange()
		infos = append(infos, Info{
			Key:          key,
			Name:         m.GetName(),
			Description:  m.GetDescription(),
			Min:          lo,
			Max:          hi,
			HigherBetter: m.IsHigherBetter(),
		})
	}
	return infos
}

// Calculate calculates a specific metric
func (e *Evaluator) Calculate(name string, original, processed gocv.Mat) (float64, error) {
	metric, exists := e.metrics[name]
	if !exists {
		return 0, fmt.Errorf("metric not found: %s", name)
	}

	return metric.Calculate(original, processed)
}

// CalculateAll calculates all registered metrics. Metrics that cannot be
// computed (e.g. size mismatch) are left out.
func (e *Evaluator) CalculateAll(original, processed gocv.Mat) map[string]float64 {
	results := make(map[string]float64)

	for name, metric := range e.metrics {
		if value, err := metric.Calculate(original, processed); err == nil {
			results[name] = value
		}
	}

	return results
}

// Comparable reports whether the two buffers can be compared pixel by pixel.
func Comparable(original, processed gocv.Mat) bool {
	return !original.Empty() && !processed.Empty() &&
		original.Rows() == processed.Rows() &&
		original.Cols() == processed.Cols() &&
		original.Channels() == processed.Channels()
}

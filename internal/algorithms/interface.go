// Degradation stages and their registry
package algorithms

import (
	"errors"
	"fmt"
	"sort"

	"gocv.io/x/gocv"

	"phash-degrade/internal/core"
)

// Stage is one degradation applied to an RGB buffer. Apply never mutates
// input; the returned Mat is newly allocated and owned by the caller.
type Stage interface {
	Apply(input gocv.Mat) (gocv.Mat, Details, error)
	Name() string
	Description() string
	Validate() error
	Parameters() []ParameterInfo
}

// Details is what a stage reports about a single application, e.g. the
// motion kernel it picked. Keys are snake_case and values JSON-encodable.
type Details map[string]any

// ParameterInfo describes a parameter for listings and docs
type ParameterInfo struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // "int", "float", "ints", "enum"
	Min         any      `json:"min,omitempty"`
	Max         any      `json:"max,omitempty"`
	Default     any      `json:"default"`
	Description string   `json:"description"`
	Options     []string `json:"options,omitempty"` // For enum type
}

var stages = make(map[string]Stage)

// Register adds a prototype stage configured with its defaults.
func Register(name string, stage Stage) {
	stages[name] = stage
}

func Get(name string) (Stage, bool) {
	stage, exists := stages[name]
	return stage, exists
}

func IsValidStage(name string) bool {
	_, exists := stages[name]
	return exists
}

// Names returns the registered stage names in sorted order.
func Names() []string {
	names := make([]string, 0, len(stages))
	for name := range stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func GetParameterInfo(name string) ([]ParameterInfo, error) {
	stage, exists := stages[name]
	if !exists {
		return nil, fmt.Errorf("stage not found: %s", name)
	}
	return stage.Parameters(), nil
}

func withStage(err error, stage string) error {
	var e *core.Error
	if errors.As(err, &e) {
		return e.WithStage(stage)
	}
	return err
}

func init() {
	Register(StageGaussianBlur, &GaussianBlur{kernelSize: DefaultBlurKernelSize})
	Register(StageDownscale, &Downscale{divisor: DefaultDownscaleDivisor})
	Register(StageCorruption, &Corruption{noise: DefaultNoiseSpec(), motion: DefaultMotionSpec()})
}

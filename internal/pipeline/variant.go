package pipeline

import (
	"time"

	"phash-degrade/internal/algorithms"
	"phash-degrade/internal/core"
	imgio "phash-degrade/internal/io"
	"phash-degrade/internal/metrics"
)

// Variant names, also used as output file suffixes.
const (
	VariantBlurred = "blurred"
	VariantResized = "resized"
	VariantBroken  = "broken"
)

// Variant is one output artifact: a stage plus how its result is stored.
type Variant struct {
	Name    string
	Format  imgio.Format
	Quality int // lossy formats only
	Stage   algorithms.Stage
}

// FileName returns "<base>_<name><ext>".
func (v Variant) FileName(base string) string {
	return base + "_" + v.Name + v.Format.Extension()
}

// DefaultVariants wires the three stages to their output formats: the blur
// and downscale variants are stored losslessly, the corrupted one as JPEG at
// the given quality.
func DefaultVariants(blur, downscale, corruption algorithms.Stage, quality int) []Variant {
	return []Variant{
		{Name: VariantBlurred, Format: imgio.FormatPNG, Stage: blur},
		{Name: VariantResized, Format: imgio.FormatPNG, Stage: downscale},
		{Name: VariantBroken, Format: imgio.FormatJPEG, Quality: quality, Stage: corruption},
	}
}

// Status is the terminal state of a variant.
type Status string

const (
	StatusProduced Status = "produced"
	StatusFailed   Status = "failed"
)

// Result describes how a single variant ended.
type Result struct {
	Variant  string
	Stage    string
	Path     string
	Format   imgio.Format
	Quality  int
	Status   Status
	Err      error
	Width    int
	Height   int
	Bytes    int64
	Duration time.Duration
	Details  algorithms.Details
	// Metrics compares the source with the file as written: lossy variants
	// are decoded back before scoring. Nil when the sizes differ.
	Metrics  map[string]float64
}

func (r Result) Produced() bool {
	return r.Status == StatusProduced
}

// Report is the outcome of one run.
type Report struct {
	RunID      string
	Source     string
	SourceMeta core.ImageMetadata
	Seed       int64
	MetricInfo []metrics.Info // how to read Result.Metrics
	Started    time.Time
	Finished   time.Time
	Results    []Result
}

func (r *Report) ProducedCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Produced() {
			n++
		}
	}
	return n
}

// Failed returns the results that did not produce a file.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.Produced() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Recorder receives run events as they happen. Implementations must be safe
// for concurrent VariantDone calls when the pipeline runs in parallel.
type Recorder interface {
	RunStarted(report *Report) error
	VariantDone(report *Report, result Result) error
	RunFinished(report *Report) error
}

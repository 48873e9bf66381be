// Package pipeline turns one reference image into its degraded variants.
//
// The source is loaded once; a load failure aborts the run before any stage
// executes. Each variant then applies its stage to the shared, read-only
// source and encodes the result. Variants are independent: a failure is
// recorded in that variant's Result and the remaining variants still run.
package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"phash-degrade/internal/core"
	imgio "phash-degrade/internal/io"
	"phash-degrade/internal/metrics"
)

const stageEncode = "encode"

// Options configures a run.
type Options struct {
	Source    string
	OutputDir string // defaults to the source's directory
	Seed      int64  // recorded in the report; the stages own their Rand
	Parallel  bool
	Variants  []Variant
}

type Pipeline struct {
	opts      Options
	loader    *imgio.ImageLoader
	encoder   *imgio.Encoder
	evaluator *metrics.Evaluator
	recorder  Recorder
	logger    logrus.FieldLogger
}

func New(opts Options, logger logrus.FieldLogger) *Pipeline {
	return &Pipeline{
		opts:      opts,
		loader:    imgio.NewImageLoader(logger),
		encoder:   imgio.NewEncoder(logger),
		evaluator: metrics.NewEvaluator(),
		logger:    logger,
	}
}

// SetRecorder attaches a recorder notified after the source loads, after
// each variant and at the end of the run.
func (p *Pipeline) SetRecorder(r Recorder) {
	p.recorder = r
}

// Run loads the source and produces every variant. The returned error is
// non-nil only when the source cannot be loaded; per-variant failures are
// reported in Report.Results.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:   uuid.NewString(),
		Source:  p.opts.Source,
		Seed:    p.opts.Seed,
		Started: time.Now(),
	}
	logger := p.logger.WithField("run_id", report.RunID)

	source, err := p.loader.LoadSource(p.opts.Source)
	if err != nil {
		logger.WithError(err).WithField("code", core.GetCode(err)).Error("PIPELINE: Source could not be loaded, aborting")
		return nil, err
	}
	defer source.Close()

	meta := source.Metadata()
	report.SourceMeta = meta
	report.MetricInfo = p.evaluator.Describe()
	outDir := p.opts.OutputDir
	if outDir == "" {
		outDir = meta.Dir
	}
	dirErr := os.MkdirAll(outDir, 0755)
	if dirErr != nil {
		dirErr = core.WrapError(core.ErrCodeWrite, dirErr, "cannot create output directory %s", outDir)
	}

	logger.WithFields(logrus.Fields{
		"source":     meta.Path,
		"dimensions": core.Dimensions(source.Mat()),
		"output_dir": outDir,
		"variants":   len(p.opts.Variants),
		"parallel":   p.opts.Parallel,
		"seed":       p.opts.Seed,
	}).Info("PIPELINE: Starting run")

	p.record(logger, func(r Recorder) error { return r.RunStarted(report) })

	report.Results = make([]Result, len(p.opts.Variants))
	produce := func(i int) {
		v := p.opts.Variants[i]
		var res Result
		switch {
		case ctx.Err() != nil:
			res = p.failed(v, "", ctx.Err(), v.Stage.Name(), 0)
		case dirErr != nil:
			res = p.failed(v, "", dirErr, stageEncode, 0)
		default:
			res = p.produce(source, v, filepath.Join(outDir, v.FileName(meta.Name)))
		}
		report.Results[i] = res

		p.logResult(logger, res)
		p.record(logger, func(r Recorder) error { return r.VariantDone(report, res) })
	}

	if p.opts.Parallel {
		var wg sync.WaitGroup
		for i := range p.opts.Variants {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				produce(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range p.opts.Variants {
			produce(i)
		}
	}

	report.Finished = time.Now()
	p.record(logger, func(r Recorder) error { return r.RunFinished(report) })

	logger.WithFields(logrus.Fields{
		"produced": report.ProducedCount(),
		"failed":   len(report.Failed()),
		"duration": report.Finished.Sub(report.Started).Round(time.Millisecond),
	}).Info("PIPELINE: Run finished")

	return report, nil
}

// produce applies the variant's stage to the source and writes the result.
func (p *Pipeline) produce(source *core.SourceImage, v Variant, path string) Result {
	start := time.Now()
	stageName := v.Stage.Name()

	output, details, err := v.Stage.Apply(source.Mat())
	defer output.Close()
	if err != nil {
		return p.failed(v, path, err, stageName, time.Since(start))
	}

	n, err := p.encoder.Encode(output, path, v.Format, v.Quality)
	if err != nil {
		res := p.failed(v, path, err, stageEncode, time.Since(start))
		res.Details = details
		return res
	}

	return Result{
		Variant:  v.Name,
		Stage:    stageName,
		Path:     path,
		Format:   v.Format,
		Quality:  v.Quality,
		Status:   StatusProduced,
		Width:    output.Cols(),
		Height:   output.Rows(),
		Bytes:    n,
		Duration: time.Since(start),
		Details:  details,
		Metrics:  p.measure(source.Mat(), output, path, v.Format),
	}
}

// measure scores the variant as written against the source. Lossy formats
// are read back from path so the scores include the encoder's loss.
func (p *Pipeline) measure(source, output gocv.Mat, path string, format imgio.Format) map[string]float64 {
	if !metrics.Comparable(source, output) {
		return nil
	}
	if format.Lossless() {
		return p.evaluator.CalculateAll(source, output)
	}

	written, err := p.loader.Load(path)
	defer written.Close()
	if err != nil {
		p.logger.WithError(err).WithField("filepath", path).Warn("PIPELINE: Could not read back variant, skipping metrics")
		return nil
	}
	return p.evaluator.CalculateAll(source, written)
}

// failed builds a failed result and removes any stale output so the
// directory never holds a file this run did not produce.
func (p *Pipeline) failed(v Variant, path string, err error, stage string, elapsed time.Duration) Result {
	if path != "" {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			p.logger.WithError(rmErr).WithField("filepath", path).Warn("PIPELINE: Could not remove stale output")
		}
	}

	return Result{
		Variant:  v.Name,
		Stage:    stage,
		Path:     path,
		Format:   v.Format,
		Quality:  v.Quality,
		Status:   StatusFailed,
		Err:      core.Tag(err, v.Name, stage),
		Duration: elapsed,
	}
}

func (p *Pipeline) logResult(logger logrus.FieldLogger, res Result) {
	fields := logrus.Fields{
		"variant":  res.Variant,
		"stage":    res.Stage,
		"duration": res.Duration.Round(time.Millisecond),
	}

	if !res.Produced() {
		fields["code"] = core.GetCode(res.Err)
		logger.WithFields(fields).WithError(res.Err).Error("PIPELINE: Variant failed")
		return
	}

	fields["filepath"] = res.Path
	fields["width"] = res.Width
	fields["height"] = res.Height
	for k, v := range res.Details {
		fields[k] = v
	}
	logger.WithFields(fields).Info("PIPELINE: Variant produced")

	if len(res.Metrics) > 0 {
		mfields := logrus.Fields{"variant": res.Variant}
		for k, v := range res.Metrics {
			mfields[k] = v
		}
		logger.WithFields(mfields).Debug("PIPELINE: Distortion against source")
	}
}

// record forwards an event to the recorder. Recorder failures are logged
// but never fail a variant.
func (p *Pipeline) record(logger logrus.FieldLogger, fn func(Recorder) error) {
	if p.recorder == nil {
		return
	}
	if err := fn(p.recorder); err != nil {
		logger.WithError(err).Warn("PIPELINE: Recorder failed")
	}
}

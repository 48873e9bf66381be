// Package manifest records a degradation run as append-only JSON lines.
//
// The file is opened when the run starts, which only happens after the
// source image loaded, so an aborted run leaves nothing behind.
package manifest

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"phash-degrade/internal/core"
	"phash-degrade/internal/metrics"
	"phash-degrade/internal/pipeline"
)

// Event types
const (
	EventRunStart = "run_start"
	EventVariant  = "variant"
	EventRunEnd   = "run_end"
)

// Event is a single line of the manifest.
type Event struct {
	Event string `json:"event"`
	Ts    string `json:"ts"`
	RunID string `json:"run_id"`

	// Run start fields. Format, Width, Height and Bytes describe the source.
	Source     string         `json:"source,omitempty"`
	Seed       *int64         `json:"seed,omitempty"`
	MetricInfo []metrics.Info `json:"metric_info,omitempty"`

	// Variant fields
	Variant    string             `json:"variant,omitempty"`
	Stage      string             `json:"stage,omitempty"`
	Path       string             `json:"path,omitempty"`
	Format     string             `json:"format,omitempty"`
	Quality    int                `json:"quality,omitempty"`
	Status     string             `json:"status,omitempty"`
	Error      string             `json:"error,omitempty"`
	ErrorCode  string             `json:"error_code,omitempty"`
	Width      int                `json:"width,omitempty"`
	Height     int                `json:"height,omitempty"`
	Bytes      int64              `json:"bytes,omitempty"`
	DurationMs int64              `json:"duration_ms,omitempty"`
	Details    map[string]any     `json:"details,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`

	// Run end fields
	Produced *int `json:"produced,omitempty"`
	Failed   *int `json:"failed,omitempty"`
}

// Manifest implements pipeline.Recorder.
type Manifest struct {
	path string

	mu   sync.Mutex
	file *os.File
}

var _ pipeline.Recorder = (*Manifest)(nil)

// New returns a manifest that will be written to path once a run starts.
func New(path string) *Manifest {
	return &Manifest{path: path}
}

// Path returns the file the manifest appends to.
func (m *Manifest) Path() string {
	return m.path
}

func (m *Manifest) RunStarted(report *pipeline.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file == nil {
		if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
			return fmt.Errorf("failed to create manifest directory: %w", err)
		}
		f, err := os.OpenFile(m.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open manifest file: %w", err)
		}
		m.file = f
	}

	seed := report.Seed
	meta := report.SourceMeta
	return m.writeEvent(Event{
		Event:      EventRunStart,
		Ts:         report.Started.UTC().Format(time.RFC3339),
		RunID:      report.RunID,
		Source:     report.Source,
		Seed:       &seed,
		MetricInfo: report.MetricInfo,
		Format:     meta.Format,
		Width:      meta.Width,
		Height:     meta.Height,
		Bytes:      meta.Size,
	})
}

func (m *Manifest) VariantDone(report *pipeline.Report, res pipeline.Result) error {
	event := Event{
		Event:      EventVariant,
		Ts:         time.Now().UTC().Format(time.RFC3339),
		RunID:      report.RunID,
		Variant:    res.Variant,
		Stage:      res.Stage,
		Path:       res.Path,
		Format:     string(res.Format),
		Quality:    res.Quality,
		Status:     string(res.Status),
		Width:      res.Width,
		Height:     res.Height,
		Bytes:      res.Bytes,
		DurationMs: res.Duration.Milliseconds(),
		Details:    res.Details,
		Metrics:    finite(res.Metrics),
	}
	if res.Err != nil {
		event.Error = res.Err.Error()
		event.ErrorCode = string(core.GetCode(res.Err))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeEvent(event)
}

func (m *Manifest) RunFinished(report *pipeline.Report) error {
	produced := report.ProducedCount()
	failed := len(report.Failed())

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeEvent(Event{
		Event:      EventRunEnd,
		Ts:         report.Finished.UTC().Format(time.RFC3339),
		RunID:      report.RunID,
		DurationMs: report.Finished.Sub(report.Started).Milliseconds(),
		Produced:   &produced,
		Failed:     &failed,
	})
}

// Close closes the manifest file if it was opened.
func (m *Manifest) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	return err
}

// writeEvent appends one JSON line and syncs it. Caller holds m.mu.
func (m *Manifest) writeEvent(event Event) error {
	if m.file == nil {
		return fmt.Errorf("manifest %s is not open", m.path)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := m.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return m.file.Sync()
}

// finite drops values JSON cannot carry, such as the infinite PSNR of an
// unchanged buffer.
func finite(values map[string]float64) map[string]float64 {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]float64, len(values))
	for k, v := range values {
		if !math.IsInf(v, 0) && !math.IsNaN(v) {
			out[k] = v
		}
	}
	return out
}

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phash-degrade/internal/core"
	imgio "phash-degrade/internal/io"
)

func writeImage(t *testing.T, path string, rows, cols int) {
	t.Helper()
	pix := make([]uint8, rows*cols*core.Channels)
	for i := range pix {
		pix[i] = uint8(i * 7)
	}
	mat, err := core.FromPixels(rows, cols, pix)
	require.NoError(t, err)
	defer mat.Close()

	logger, _ := test.NewNullLogger()
	_, err = imgio.NewEncoder(logger).Encode(mat, path, imgio.FormatPNG, 0)
	require.NoError(t, err)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.Execute()
	return stdout.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "degrade dev\n", out)
}

func TestStagesCmd(t *testing.T) {
	out, err := execute(t, "stages")
	require.NoError(t, err)
	for _, want := range []string{"gaussian_blur", "downscale", "corruption", "kernel_size", "motion_probability"} {
		assert.Contains(t, out, want)
	}
}

func TestRunCmd_ProducesVariants(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	src := filepath.Join(dir, "photo.png")
	writeImage(t, src, 160, 240)
	out := filepath.Join(dir, "out")

	stdout, err := execute(t, "run", src, "-o", out, "--seed", "3", "--manifest", "run.jsonl", "--motion-kernels", "3,5")
	require.NoError(t, err)

	for _, name := range []string{"photo_blurred.png", "photo_resized.png", "photo_broken.jpg", "run.jsonl"} {
		assert.FileExists(t, filepath.Join(out, name))
	}
	assert.Contains(t, stdout, "seed 3, 3/3 produced")

	data, err := os.ReadFile(filepath.Join(out, "run.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"metric_info"`)
	assert.Contains(t, string(data), `"higher_better":true`)
}

func TestRunCmd_MissingSource(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	_, err := execute(t, "run", filepath.Join(dir, "missing.png"), "--manifest", "run.jsonl")
	require.Error(t, err)
	assert.True(t, core.Is(err, core.ErrCodeSourceNotFound))
	assert.Equal(t, exitFatal, exitCode(err))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunCmd_FailedVariant(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	src := filepath.Join(dir, "photo.png")
	writeImage(t, src, 40, 40)

	stdout, err := execute(t, "run", src, "--seed", "1")
	require.Error(t, err)
	assert.True(t, core.Is(err, core.ErrCodeDegenerateSize))
	assert.Equal(t, exitFailed, exitCode(err))
	assert.Contains(t, stdout, "2/3 produced")

	assert.FileExists(t, filepath.Join(dir, "photo_blurred.png"))
	assert.NoFileExists(t, filepath.Join(dir, "photo_resized.png"))
	assert.FileExists(t, filepath.Join(dir, "photo_broken.jpg"))
}

func TestRunCmd_InvalidFlag(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := execute(t, "run", "x.png", "--quality", "0")
	assert.True(t, core.Is(err, core.ErrCodeInvalidParameter))
	assert.Equal(t, exitFailed, exitCode(err))
}

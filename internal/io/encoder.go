package io

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"phash-degrade/internal/core"
)

// Format is the storage format of an encoded variant.
type Format string

const (
	FormatPNG  Format = "png"  // lossless
	FormatJPEG Format = "jpeg" // lossy, takes a quality factor
)

const (
	MinQuality = 1
	MaxQuality = 100

	// DefaultJPEGQuality is low on purpose: heavy block artifacts are what
	// the broken variant is for.
	DefaultJPEGQuality = 10
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	}
	return "", core.NewError(core.ErrCodeEncode, "unsupported format %q", s)
}

func (f Format) Lossless() bool {
	return f == FormatPNG
}

// Extension returns the file extension written for f, dot included.
func (f Format) Extension() string {
	switch f {
	case FormatPNG:
		return ".png"
	case FormatJPEG:
		return ".jpg"
	}
	return ""
}

// Encoder serializes RGB buffers and writes them to disk.
type Encoder struct {
	logger logrus.FieldLogger
}

func NewEncoder(logger logrus.FieldLogger) *Encoder {
	return &Encoder{
		logger: logger,
	}
}

// EncodeBytes converts mat back to BGR and encodes it. quality is only
// consulted for lossy formats and must lie in [1,100].
func (e *Encoder) EncodeBytes(mat gocv.Mat, format Format, quality int) ([]byte, error) {
	if err := validateFormat(format, quality); err != nil {
		return nil, err
	}
	if err := core.ValidateImage(mat); err != nil {
		return nil, core.WrapError(core.ErrCodeEncode, err, "cannot encode buffer")
	}

	bgr := gocv.NewMat()
	defer bgr.Close()
	if err := gocv.CvtColor(mat, &bgr, gocv.ColorRGBToBGR); err != nil {
		return nil, core.WrapError(core.ErrCodeEncode, err, "RGB to BGR conversion failed")
	}

	var (
		buf *gocv.NativeByteBuffer
		err error
	)
	switch format {
	case FormatPNG:
		buf, err = gocv.IMEncode(gocv.PNGFileExt, bgr)
	case FormatJPEG:
		buf, err = gocv.IMEncodeWithParams(gocv.JPEGFileExt, bgr, []int{int(gocv.IMWriteJpegQuality), quality})
	}
	if err != nil {
		return nil, core.WrapError(core.ErrCodeEncode, err, "%s encoding failed", format)
	}
	defer buf.Close()

	// GetBytes aliases native memory released by Close.
	data := append([]byte(nil), buf.GetBytes()...)
	if len(data) == 0 {
		return nil, core.NewError(core.ErrCodeEncode, "%s encoder produced no data", format)
	}
	return data, nil
}

// Encode writes mat to path, creating or replacing the file. The bytes go to
// a temporary file in the same directory that is renamed into place, so a
// failed write never leaves a partial file at path.
func (e *Encoder) Encode(mat gocv.Mat, path string, format Format, quality int) (int64, error) {
	e.logger.WithFields(logrus.Fields{
		"filepath": path,
		"format":   format,
	}).Debug("Saving image")

	data, err := e.EncodeBytes(mat, format, quality)
	if err != nil {
		return 0, err
	}

	if err := writeFileAtomic(path, data); err != nil {
		return 0, core.WrapError(core.ErrCodeWrite, err, "failed to write %s", path)
	}

	fields := logrus.Fields{
		"filepath": path,
		"width":    mat.Cols(),
		"height":   mat.Rows(),
		"size":     humanize.Bytes(uint64(len(data))),
	}
	if !format.Lossless() {
		fields["quality"] = quality
	}
	e.logger.WithFields(fields).Info("Image saved successfully")

	return int64(len(data)), nil
}

func validateFormat(format Format, quality int) error {
	switch format {
	case FormatPNG:
		return nil
	case FormatJPEG:
		if quality < MinQuality || quality > MaxQuality {
			return core.NewError(core.ErrCodeEncode, "quality %d out of range [%d,%d]", quality, MinQuality, MaxQuality)
		}
		return nil
	}
	return core.NewError(core.ErrCodeEncode, "unsupported format %q", format)
}

// writeFileAtomic writes data to a temp file next to dest, then renames it.
func writeFileAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Core image buffer helpers and the read-only source container
package core

import (
	"fmt"
	"path/filepath"
	"strings"

	"gocv.io/x/gocv"
)

// Channels is the channel count of every buffer in the pipeline. Buffers are
// CV_8UC3 Mats in canonical RGB order; only the loader and the encoder deal
// with OpenCV's native BGR order.
const Channels = 3

// maxDimension guards against decode bombs.
const maxDimension = 16384

// ImageMetadata describes the loaded source.
type ImageMetadata struct {
	Path   string
	Name   string // file name without extension, used to name variants
	Dir    string
	Format string
	Width  int
	Height int
	Size   int64 // encoded size on disk in bytes
}

// SourceImage holds the decoded reference image. It is shared read-only by
// every variant; stages receive it as input and never write to it.
type SourceImage struct {
	mat      gocv.Mat
	metadata ImageMetadata
	closed   bool
}

// NewSourceImage validates mat and takes a private copy of it.
func NewSourceImage(mat gocv.Mat, path string, size int64) (*SourceImage, error) {
	if err := ValidateImage(mat); err != nil {
		return nil, err
	}

	base := filepath.Base(path)
	ext := filepath.Ext(base)

	return &SourceImage{
		mat: mat.Clone(),
		metadata: ImageMetadata{
			Path:   path,
			Name:   strings.TrimSuffix(base, ext),
			Dir:    filepath.Dir(path),
			Format: getFormatFromPath(path),
			Width:  mat.Cols(),
			Height: mat.Rows(),
			Size:   size,
		},
	}, nil
}

// Mat returns the shared buffer. Callers must neither mutate nor close it.
func (s *SourceImage) Mat() gocv.Mat {
	return s.mat
}

// Metadata returns image metadata
func (s *SourceImage) Metadata() ImageMetadata {
	return s.metadata
}

// Close releases the underlying Mat. Mat must not be called afterwards.
func (s *SourceImage) Close() {
	if s.closed {
		return
	}
	s.mat.Close()
	s.closed = true
}

// getFormatFromPath extracts image format from file path
func getFormatFromPath(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case "":
		return "unknown"
	case "jpg":
		return "jpeg"
	}
	return ext
}

// ValidateImage checks that mat is a usable pipeline buffer.
func ValidateImage(mat gocv.Mat) error {
	if mat.Empty() {
		return NewError(ErrCodeInvalidImage, "image is empty")
	}

	if mat.Cols() <= 0 || mat.Rows() <= 0 {
		return NewError(ErrCodeInvalidImage, "invalid dimensions: %dx%d", mat.Cols(), mat.Rows())
	}

	if mat.Type() != gocv.MatTypeCV8UC3 {
		return NewError(ErrCodeInvalidImage, "unsupported buffer type %v (want 8-bit, %d channels)", mat.Type(), Channels)
	}

	if mat.Cols() > maxDimension || mat.Rows() > maxDimension {
		return NewError(ErrCodeInvalidImage, "image too large: %dx%d (max: %d)", mat.Cols(), mat.Rows(), maxDimension)
	}

	return nil
}

// Pixels returns a copy of the buffer's samples laid out row-major as
// [row][col][channel].
func Pixels(mat gocv.Mat) ([]uint8, error) {
	if mat.Empty() {
		return nil, NewError(ErrCodeInternal, "cannot read pixels of an empty buffer")
	}
	if mat.Channels() != Channels {
		return nil, NewError(ErrCodeInternal, "expected %d channels, got %d", Channels, mat.Channels())
	}

	data := mat.ToBytes()
	if want := mat.Rows() * mat.Cols() * Channels; len(data) != want {
		return nil, NewError(ErrCodeInternal, "buffer holds %d bytes, want %d", len(data), want)
	}
	return data, nil
}

// FromPixels builds a new buffer owning a copy of pix.
func FromPixels(rows, cols int, pix []uint8) (gocv.Mat, error) {
	if rows <= 0 || cols <= 0 {
		return gocv.NewMat(), NewError(ErrCodeDegenerateSize, "invalid dimensions: %dx%d", cols, rows)
	}
	if len(pix) != rows*cols*Channels {
		return gocv.NewMat(), NewError(ErrCodeInternal, "pixel slice has %d bytes, want %d", len(pix), rows*cols*Channels)
	}

	view, err := gocv.NewMatFromBytes(rows, cols, gocv.MatTypeCV8UC3, pix)
	if err != nil {
		return gocv.NewMat(), WrapError(ErrCodeInternal, err, "failed to wrap pixel data")
	}
	defer view.Close()

	// NewMatFromBytes may share pix; clone so the Mat owns its memory.
	return view.Clone(), nil
}

// Dimensions formats a buffer's size as WxH.
func Dimensions(mat gocv.Mat) string {
	return fmt.Sprintf("%dx%d", mat.Cols(), mat.Rows())
}

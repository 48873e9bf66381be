// Image loading and saving functionality
package io

import (
	"errors"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"phash-degrade/internal/core"
)

// ImageLoader reads the reference image and normalizes it to RGB.
type ImageLoader struct {
	logger logrus.FieldLogger
}

func NewImageLoader(logger logrus.FieldLogger) *ImageLoader {
	return &ImageLoader{
		logger: logger,
	}
}

// Load decodes the file at path into a new RGB buffer owned by the caller.
// A missing file yields SOURCE_NOT_FOUND; bytes OpenCV cannot decode yield
// DECODE_ERROR.
func (il *ImageLoader) Load(path string) (gocv.Mat, error) {
	data, err := il.read(path)
	if err != nil {
		return gocv.NewMat(), err
	}
	return il.decode(path, data)
}

// LoadSource is Load wrapped into the read-only container shared by the
// pipeline's variants.
func (il *ImageLoader) LoadSource(path string) (*core.SourceImage, error) {
	data, err := il.read(path)
	if err != nil {
		return nil, err
	}

	mat, err := il.decode(path, data)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	return core.NewSourceImage(mat, path, int64(len(data)))
}

func (il *ImageLoader) read(path string) ([]byte, error) {
	il.logger.WithField("filepath", path).Debug("Loading image")

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, core.WrapError(core.ErrCodeSourceNotFound, err, "source image %s does not exist", path)
		}
		return nil, core.WrapError(core.ErrCodeSourceNotFound, err, "cannot access source image %s", path)
	}
	if info.IsDir() {
		return nil, core.NewError(core.ErrCodeSourceNotFound, "source %s is a directory", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.WrapError(core.ErrCodeSourceNotFound, err, "cannot read source image %s", path)
	}
	return data, nil
}

func (il *ImageLoader) decode(path string, data []byte) (gocv.Mat, error) {
	bgr, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), core.WrapError(core.ErrCodeDecode, err, "failed to decode %s", path)
	}
	defer bgr.Close()

	if err := core.ValidateImage(bgr); err != nil {
		return gocv.NewMat(), core.WrapError(core.ErrCodeDecode, err, "failed to decode %s", path)
	}

	rgb := gocv.NewMat()
	if err := gocv.CvtColor(bgr, &rgb, gocv.ColorBGRToRGB); err != nil {
		rgb.Close()
		return gocv.NewMat(), core.WrapError(core.ErrCodeInternal, err, "BGR to RGB conversion failed for %s", path)
	}

	il.logger.WithFields(logrus.Fields{
		"filepath": path,
		"width":    rgb.Cols(),
		"height":   rgb.Rows(),
		"channels": rgb.Channels(),
	}).Info("Image loaded successfully")

	return rgb, nil
}

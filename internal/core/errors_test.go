package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	cause := errors.New("disk full")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"bare", NewError(ErrCodeEncode, "bad quality %d", 0), "ENCODE_ERROR: bad quality 0"},
		{"stage only", NewError(ErrCodeDegenerateSize, "too small").WithStage("downscale"), "DEGENERATE_SIZE [downscale]: too small"},
		{"variant and stage", NewError(ErrCodeWrite, "x").WithVariant("broken").WithStage("encode"), "WRITE_ERROR [broken/encode]: x"},
		{"with cause", WrapError(ErrCodeWrite, cause, "cannot write %s", "a.png"), "WRITE_ERROR: cannot write a.png: disk full"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("outer: %w", WrapError(ErrCodeDecode, cause, "decode"))

	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, ErrCodeDecode))
	assert.False(t, Is(err, ErrCodeEncode))
	assert.Equal(t, ErrCodeDecode, GetCode(err))
	assert.Equal(t, Code(""), GetCode(cause))
}

func TestError_WithCopies(t *testing.T) {
	orig := NewError(ErrCodeEncode, "msg")
	tagged := orig.WithStage("encode").WithVariant("broken")

	assert.Empty(t, orig.Stage)
	assert.Empty(t, orig.Variant)
	assert.Equal(t, "encode", tagged.Stage)
	assert.Equal(t, "broken", tagged.Variant)
}

func TestTag(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.NoError(t, Tag(nil, "blurred", "gaussian_blur"))
	})

	t.Run("uncategorized error becomes internal", func(t *testing.T) {
		err := Tag(errors.New("opencv exploded"), "resized", "downscale")

		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, ErrCodeInternal, e.Code)
		assert.Equal(t, "resized", e.Variant)
		assert.Equal(t, "downscale", e.Stage)
	})

	t.Run("keeps existing stage", func(t *testing.T) {
		err := Tag(NewError(ErrCodeDegenerateSize, "0x0").WithStage("downscale"), "resized", "encode")

		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, ErrCodeDegenerateSize, e.Code)
		assert.Equal(t, "downscale", e.Stage)
	})
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		code Code
		want bool
	}{
		{ErrCodeSourceNotFound, true},
		{ErrCodeDecode, true},
		{ErrCodeDegenerateSize, false},
		{ErrCodeEncode, false},
		{ErrCodeWrite, false},
		{ErrCodeInternal, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, IsFatal(NewError(tt.code, "x")))
		})
	}
	assert.False(t, IsFatal(errors.New("plain")))
}

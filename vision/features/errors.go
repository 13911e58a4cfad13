package features

import (
	"fmt"
	"image"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidInput is returned when the builder input is missing, nil or empty.
	ErrInvalidInput = errors.New("invalid feature builder input")
	// ErrUnsupportedFormat is returned for depth images whose encoding cannot be sampled.
	ErrUnsupportedFormat = errors.New("unsupported depth image format")
)

// NewInvalidInputError is used when a message pack cannot be fused.
func NewInvalidInputError(msg string) error {
	return errors.Wrap(ErrInvalidInput, msg)
}

// NewUnsupportedFormatError is used when a depth image is neither 16UC1 nor 32FC1.
func NewUnsupportedFormatError(img image.Image) error {
	return errors.Wrap(ErrUnsupportedFormat, fmt.Sprintf("got %T", img))
}

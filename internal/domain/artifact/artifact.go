// Package artifact loads the pre-fitted scaler and classifier used by the
// scoring pipeline. Artifacts are produced offline and read once at startup;
// after loading they are immutable and safe for concurrent use.
package artifact

import (
	"errors"
	"fmt"
	"slices"
)

// Sentinel error kinds for this package.
var (
	// ErrMissingArtifact is returned when an artifact file does not exist.
	ErrMissingArtifact = errors.New("model artifact not found")
	// ErrInvalidArtifact is returned when an artifact file cannot be decoded
	// or holds inconsistent parameters.
	ErrInvalidArtifact = errors.New("invalid model artifact")
	// ErrModelShape is returned when an input frame does not match the
	// features an artifact was fitted with.
	ErrModelShape = errors.New("model feature shape mismatch")
)

// Frame is a small named-column matrix, the unit of model input and output.
type Frame struct {
	Columns []string
	Rows    [][]float64
}

// NewFrame builds a single-row frame.
func NewFrame(columns []string, row ...float64) Frame {
	return Frame{Columns: slices.Clone(columns), Rows: [][]float64{row}}
}

// Width returns the number of columns.
func (f Frame) Width() int { return len(f.Columns) }

// validate checks the frame against fitted feature names: same count, same
// order, and every row as wide as the header.
func (f Frame) validate(features []string) error {
	if !slices.Equal(f.Columns, features) {
		return fmt.Errorf("%w: got columns %v, fitted with %v", ErrModelShape, f.Columns, features)
	}
	for i, row := range f.Rows {
		if len(row) != len(features) {
			return fmt.Errorf("%w: row %d has %d values, want %d", ErrModelShape, i, len(row), len(features))
		}
	}
	return nil
}

// Transformer is a fitted feature scaler.
type Transformer interface {
	FeatureNames() []string
	Transform(f Frame) (Frame, error)
}

// Classifier is a fitted binary classifier. Predict returns one 0/1 label
// per input row.
type Classifier interface {
	FeatureNames() []string
	Predict(f Frame) ([]int, error)
	Kind() string
}

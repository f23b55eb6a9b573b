package artifact

import (
	"fmt"
	"math"
	"slices"
)

// ScalerKind names the only supported scaler artifact.
const ScalerKind = "standard_scaler"

// StandardScaler applies a fitted z-score transform: (x - mean) / scale.
type StandardScaler struct {
	Features []string  `json:"feature_names_in"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
}

// FeatureNames returns the columns the scaler was fitted with.
func (s *StandardScaler) FeatureNames() []string { return slices.Clone(s.Features) }

// Transform standardizes every row of f.
func (s *StandardScaler) Transform(f Frame) (Frame, error) {
	if err := f.validate(s.Features); err != nil {
		return Frame{}, err
	}
	out := Frame{Columns: slices.Clone(f.Columns), Rows: make([][]float64, len(f.Rows))}
	for i, row := range f.Rows {
		z := make([]float64, len(row))
		for j, x := range row {
			z[j] = (x - s.Mean[j]) / s.Scale[j]
		}
		out.Rows[i] = z
	}
	return out, nil
}

// check validates decoded parameters. A zero scale is replaced by 1, which
// is what a fitted scaler stores for constant features.
func (s *StandardScaler) check() error {
	n := len(s.Features)
	switch {
	case n == 0:
		return fmt.Errorf("%w: scaler has no feature names", ErrInvalidArtifact)
	case len(s.Mean) != n:
		return fmt.Errorf("%w: scaler has %d means for %d features", ErrInvalidArtifact, len(s.Mean), n)
	case len(s.Scale) != n:
		return fmt.Errorf("%w: scaler has %d scales for %d features", ErrInvalidArtifact, len(s.Scale), n)
	}
	for i := range s.Scale {
		if math.IsNaN(s.Mean[i]) || math.IsInf(s.Mean[i], 0) || math.IsNaN(s.Scale[i]) || math.IsInf(s.Scale[i], 0) {
			return fmt.Errorf("%w: scaler parameter %d is not finite", ErrInvalidArtifact, i)
		}
		if s.Scale[i] == 0 {
			s.Scale[i] = 1
		}
	}
	return nil
}

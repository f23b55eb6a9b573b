// Package scoring turns a raw test score into a derived IQ, a category and
// a pass/fail outcome using the two pre-fitted artifacts.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/okian/iqscore/internal/domain/artifact"
	"github.com/okian/iqscore/internal/domain/model"
)

// Rescaling constants: mean 100, standard deviation 15.
const (
	IQMean   = 100.0
	IQStdDev = 15.0
)

var (
	// ErrNotANumber is returned when the raw score is not a finite number.
	ErrNotANumber = errors.New("raw score is not a valid number")
	// ErrNonFinite is returned when a finite raw score scales to an infinite
	// or NaN value, e.g. a huge input against a small fitted scale.
	ErrNonFinite = errors.New("model output is not finite")
)

// Result is the outcome of one successful computation.
type Result struct {
	RawScore     float64
	Standardized float64
	// DerivedIQ is rounded to 2 decimals. Category is bucketed on the
	// unrounded value, so 109.995 shows as 110.00 but stays Average.
	DerivedIQ float64
	Category  model.Category
	Outcome   model.Outcome
}

// Pipeline computes Results. It holds only the read-only artifacts and is
// safe for concurrent use.
type Pipeline struct {
	transformer artifact.Transformer
	classifier  artifact.Classifier
}

// New creates a Pipeline from loaded artifacts.
func New(transformer artifact.Transformer, classifier artifact.Classifier) *Pipeline {
	if transformer == nil || classifier == nil {
		panic("scoring: nil artifact")
	}
	return &Pipeline{transformer: transformer, classifier: classifier}
}

// Compute parses rawScoreText and scores it. It has no side effects.
func (p *Pipeline) Compute(rawScoreText string) (res Result, err error) {
	raw, err := ParseRawScore(rawScoreText)
	if err != nil {
		return Result{}, err
	}

	// The artifacts are external code; a panic inside them must not take
	// the request down with it.
	defer func() {
		if r := recover(); r != nil {
			res, err = Result{}, fmt.Errorf("scoring: model panic: %v", r)
		}
	}()

	// The input frame takes its column name from the classifier, which
	// must have been fitted on exactly one feature.
	features := p.classifier.FeatureNames()
	if len(features) != 1 {
		return Result{}, fmt.Errorf("%w: classifier expects %d features, input has 1", artifact.ErrModelShape, len(features))
	}
	frame := artifact.NewFrame(features, raw)

	scaled, err := p.transformer.Transform(frame)
	if err != nil {
		return Result{}, fmt.Errorf("scoring: transform: %w", err)
	}
	if scaled.Width() != 1 || len(scaled.Rows) != 1 || len(scaled.Rows[0]) != 1 {
		return Result{}, fmt.Errorf("%w: transformer returned %d rows of %d columns", artifact.ErrModelShape, len(scaled.Rows), scaled.Width())
	}
	standardized := scaled.Rows[0][0]

	derived := standardized*IQStdDev + IQMean
	if !finite(standardized) || !finite(derived) {
		return Result{}, fmt.Errorf("%w: raw score %v scaled to %v", ErrNonFinite, raw, standardized)
	}

	// The classifier is given the raw score, not the standardized one.
	labels, err := p.classifier.Predict(frame)
	if err != nil {
		return Result{}, fmt.Errorf("scoring: predict: %w", err)
	}
	if len(labels) != 1 {
		return Result{}, fmt.Errorf("%w: classifier returned %d labels", artifact.ErrModelShape, len(labels))
	}

	return Result{
		RawScore:     raw,
		Standardized: standardized,
		DerivedIQ:    Round2(derived),
		Category:     model.Categorize(derived),
		Outcome:      model.OutcomeFromPrediction(labels[0]),
	}, nil
}

// ParseRawScore parses a raw score, rejecting NaN and infinities.
func ParseRawScore(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || !finite(v) {
		return 0, fmt.Errorf("%w: %q", ErrNotANumber, s)
	}
	return v, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

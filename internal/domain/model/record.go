// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used on input and in exports.
const DateLayout = "2006-01-02"

// Sentinel validation errors for submission fields.
var (
	ErrInvalidGender = errors.New("invalid gender")
	ErrInvalidDate   = errors.New("invalid date")
)

// Gender is one of the two fixed form choices.
type Gender int

// Gender values. The zero value is deliberately invalid.
const (
	GenderUnknown Gender = iota
	GenderMale
	GenderFemale
)

// ParseGender accepts the English names, single letters and the Indonesian
// choices of the original form, case-insensitively.
func ParseGender(s string) (Gender, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m", "laki-laki":
		return GenderMale, nil
	case "female", "f", "perempuan":
		return GenderFemale, nil
	}
	return GenderUnknown, fmt.Errorf("%w: %q (want male or female)", ErrInvalidGender, s)
}

// Valid reports whether g is male or female.
func (g Gender) Valid() bool { return g == GenderMale || g == GenderFemale }

func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "male"
	case GenderFemale:
		return "female"
	}
	return "unknown"
}

// Label is the human-readable form used in exports.
func (g Gender) Label() string {
	switch g {
	case GenderMale:
		return "Male"
	case GenderFemale:
		return "Female"
	}
	return ""
}

// MarshalText implements encoding.TextMarshaler.
func (g Gender) MarshalText() ([]byte, error) {
	if !g.Valid() {
		return nil, ErrInvalidGender
	}
	return []byte(g.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *Gender) UnmarshalText(b []byte) error {
	v, err := ParseGender(string(b))
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// Category buckets a derived IQ score.
type Category int

// Category values. The zero value is deliberately invalid.
const (
	CategoryUnknown Category = iota
	CategoryAboveAverage
	CategoryAverage
	CategoryBelowAverage
	CategoryDeficient
)

// Lower bounds (inclusive) of each category band.
const (
	AboveAverageMin = 110.0
	AverageMin      = 92.0
	BelowAverageMin = 56.0
)

// Categorize maps a derived IQ to its band. Thresholds are inclusive on the
// lower bound and checked from the top down.
func Categorize(derivedIQ float64) Category {
	switch {
	case derivedIQ >= AboveAverageMin:
		return CategoryAboveAverage
	case derivedIQ >= AverageMin:
		return CategoryAverage
	case derivedIQ >= BelowAverageMin:
		return CategoryBelowAverage
	default:
		return CategoryDeficient
	}
}

// Valid reports whether c is one of the four bands.
func (c Category) Valid() bool { return c >= CategoryAboveAverage && c <= CategoryDeficient }

func (c Category) String() string {
	switch c {
	case CategoryAboveAverage:
		return "aboveAverage"
	case CategoryAverage:
		return "average"
	case CategoryBelowAverage:
		return "belowAverage"
	case CategoryDeficient:
		return "deficient"
	}
	return "unknown"
}

// Label is the human-readable form used in exports and responses.
func (c Category) Label() string {
	switch c {
	case CategoryAboveAverage:
		return "Above Average"
	case CategoryAverage:
		return "Average"
	case CategoryBelowAverage:
		return "Below Average"
	case CategoryDeficient:
		return "Deficient"
	}
	return ""
}

// MarshalText implements encoding.TextMarshaler.
func (c Category) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("invalid category %d", int(c))
	}
	return []byte(c.String()), nil
}

// Outcome is the classifier's pass/fail label.
type Outcome int

// Outcome values. The zero value is deliberately invalid.
const (
	OutcomeUnknown Outcome = iota
	OutcomePass
	OutcomeFail
)

// OutcomeFromPrediction maps a 0/1 class prediction to an Outcome.
func OutcomeFromPrediction(class int) Outcome {
	if class != 0 {
		return OutcomePass
	}
	return OutcomeFail
}

// Valid reports whether o is pass or fail.
func (o Outcome) Valid() bool { return o == OutcomePass || o == OutcomeFail }

func (o Outcome) String() string {
	switch o {
	case OutcomePass:
		return "pass"
	case OutcomeFail:
		return "fail"
	}
	return "unknown"
}

// Label is the human-readable form used in exports and responses.
func (o Outcome) Label() string {
	switch o {
	case OutcomePass:
		return "Pass"
	case OutcomeFail:
		return "Fail"
	}
	return ""
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	if !o.Valid() {
		return nil, fmt.Errorf("invalid outcome %d", int(o))
	}
	return []byte(o.String()), nil
}

// Submission is one filled-in form as received from the user.
type Submission struct {
	Name     string
	Gender   string
	Date     string // YYYY-MM-DD; empty means today
	RawScore string
}

// ParseDate parses a YYYY-MM-DD date. An empty string yields today's date
// according to now.
func ParseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q (want YYYY-MM-DD)", ErrInvalidDate, s)
	}
	return t, nil
}

// PredictionRecord is one accumulated, successfully scored submission.
// Records are values and are never modified after creation.
type PredictionRecord struct {
	Name      string
	Gender    Gender
	Date      time.Time
	RawScore  float64
	DerivedIQ float64 // rounded to 2 decimals
	Category  Category
	Outcome   Outcome
}

// DateString returns the record date as YYYY-MM-DD.
func (r PredictionRecord) DateString() string {
	return r.Date.Format(DateLayout)
}

// Validate reports the first missing or invalid field.
func (r PredictionRecord) Validate() error {
	switch {
	case !r.Gender.Valid():
		return errors.New("missing gender")
	case r.Date.IsZero():
		return errors.New("missing date")
	case !r.Category.Valid():
		return errors.New("missing category")
	case !r.Outcome.Valid():
		return errors.New("missing outcome")
	}
	return nil
}

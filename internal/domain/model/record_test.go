package model_test

import (
	"errors"
	"testing"
	"time"

	model "github.com/okian/iqscore/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestCategorize(t *testing.T) {
	convey.Convey("Given derived IQ values around the band edges", t, func() {
		cases := []struct {
			iq   float64
			want model.Category
		}{
			{145, model.CategoryAboveAverage},
			{110.00, model.CategoryAboveAverage},
			{109.99, model.CategoryAverage},
			{100, model.CategoryAverage},
			{92.00, model.CategoryAverage},
			{91.99, model.CategoryBelowAverage},
			{56.00, model.CategoryBelowAverage},
			{55.99, model.CategoryDeficient},
			{-20, model.CategoryDeficient},
		}

		for _, c := range cases {
			convey.So(model.Categorize(c.iq), convey.ShouldEqual, c.want)
		}
	})
}

func TestParseGender(t *testing.T) {
	convey.Convey("Given gender input strings", t, func() {
		convey.Convey("When they name one of the two choices", func() {
			for _, s := range []string{"male", "Male", " M ", "laki-laki"} {
				g, err := model.ParseGender(s)
				convey.So(err, convey.ShouldBeNil)
				convey.So(g, convey.ShouldEqual, model.GenderMale)
			}
			for _, s := range []string{"female", "FEMALE", "f", "Perempuan"} {
				g, err := model.ParseGender(s)
				convey.So(err, convey.ShouldBeNil)
				convey.So(g, convey.ShouldEqual, model.GenderFemale)
			}
		})

		convey.Convey("When they are anything else", func() {
			for _, s := range []string{"", "other", "x"} {
				g, err := model.ParseGender(s)
				convey.So(errors.Is(err, model.ErrInvalidGender), convey.ShouldBeTrue)
				convey.So(g.Valid(), convey.ShouldBeFalse)
			}
		})
	})
}

func TestParseDate(t *testing.T) {
	convey.Convey("Given a fixed clock", t, func() {
		now := time.Date(2026, 10, 15, 17, 45, 0, 0, time.UTC)

		convey.Convey("When the date is empty", func() {
			d, err := model.ParseDate("", now)

			convey.Convey("Then it should default to today at midnight", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(d.Format(model.DateLayout), convey.ShouldEqual, "2026-10-15")
				convey.So(d.Hour(), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When the date is ISO formatted", func() {
			d, err := model.ParseDate("2025-01-31", now)
			convey.So(err, convey.ShouldBeNil)
			convey.So(d, convey.ShouldEqual, time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
		})

		convey.Convey("When the date is malformed", func() {
			_, err := model.ParseDate("31/01/2025", now)
			convey.So(errors.Is(err, model.ErrInvalidDate), convey.ShouldBeTrue)
		})
	})
}

func TestEnumText(t *testing.T) {
	convey.Convey("Given the enum types", t, func() {
		convey.Convey("Then valid values marshal to their codes", func() {
			b, err := model.CategoryBelowAverage.MarshalText()
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(b), convey.ShouldEqual, "belowAverage")

			b, err = model.OutcomePass.MarshalText()
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(b), convey.ShouldEqual, "pass")

			b, err = model.GenderFemale.MarshalText()
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(b), convey.ShouldEqual, "female")
		})

		convey.Convey("Then zero values refuse to marshal", func() {
			_, err := model.CategoryUnknown.MarshalText()
			convey.So(err, convey.ShouldNotBeNil)
			_, err = model.OutcomeUnknown.MarshalText()
			convey.So(err, convey.ShouldNotBeNil)
			_, err = model.GenderUnknown.MarshalText()
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("Then labels are human readable", func() {
			convey.So(model.CategoryAboveAverage.Label(), convey.ShouldEqual, "Above Average")
			convey.So(model.CategoryDeficient.Label(), convey.ShouldEqual, "Deficient")
			convey.So(model.OutcomeFail.Label(), convey.ShouldEqual, "Fail")
			convey.So(model.GenderMale.Label(), convey.ShouldEqual, "Male")
		})

		convey.Convey("Then gender unmarshals from text", func() {
			var g model.Gender
			convey.So(g.UnmarshalText([]byte("female")), convey.ShouldBeNil)
			convey.So(g, convey.ShouldEqual, model.GenderFemale)
			convey.So(g.UnmarshalText([]byte("robot")), convey.ShouldNotBeNil)
		})

		convey.Convey("Then class predictions map to outcomes", func() {
			convey.So(model.OutcomeFromPrediction(1), convey.ShouldEqual, model.OutcomePass)
			convey.So(model.OutcomeFromPrediction(0), convey.ShouldEqual, model.OutcomeFail)
		})
	})
}

func TestPredictionRecordValidate(t *testing.T) {
	convey.Convey("Given a complete record", t, func() {
		rec := model.PredictionRecord{
			Name:      "Ayu",
			Gender:    model.GenderFemale,
			Date:      time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			RawScore:  2.5,
			DerivedIQ: 115,
			Category:  model.CategoryAboveAverage,
			Outcome:   model.OutcomePass,
		}

		convey.Convey("Then it should validate", func() {
			convey.So(rec.Validate(), convey.ShouldBeNil)
			convey.So(rec.DateString(), convey.ShouldEqual, "2025-03-01")
		})

		convey.Convey("When the name is empty", func() {
			rec.Name = ""
			convey.Convey("Then it is still valid since the form does not require it", func() {
				convey.So(rec.Validate(), convey.ShouldBeNil)
			})
		})

		convey.Convey("When a required field is missing", func() {
			missingDate := rec
			missingDate.Date = time.Time{}
			missingOutcome := rec
			missingOutcome.Outcome = model.OutcomeUnknown
			missingCategory := rec
			missingCategory.Category = model.CategoryUnknown
			missingGender := rec
			missingGender.Gender = model.GenderUnknown

			convey.So(missingDate.Validate(), convey.ShouldNotBeNil)
			convey.So(missingOutcome.Validate(), convey.ShouldNotBeNil)
			convey.So(missingCategory.Validate(), convey.ShouldNotBeNil)
			convey.So(missingGender.Validate(), convey.ShouldNotBeNil)
		})
	})
}

// Package batch scores files of submissions offline, producing the same
// history export as the HTTP service.
package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/okian/iqscore/internal/domain/model"
)

// Column layout of a submissions file.
const (
	colName = iota
	colGender
	colDate
	colRawScore
	numColumns
)

// ErrMalformedRow is reported for rows without exactly four columns.
var ErrMalformedRow = errors.New("malformed row")

// Row is one submission read from a file together with its line number.
// Err is set when the row could not be split into the expected columns.
type Row struct {
	Line       int
	Submission model.Submission
	Err        error
}

// ReadSubmissions reads CSV rows of name,gender,date,raw_score. A leading
// header row is skipped, blank lines and lines starting with '#' are
// ignored. Malformed rows are returned with Err set so the caller can
// report them in order; only I/O and quoting errors abort the read.
func ReadSubmissions(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var rows []Row
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read submissions: %w", err)
		}
		line, _ := cr.FieldPos(0)

		if first {
			first = false
			if isHeader(rec) {
				continue
			}
		}

		if len(rec) != numColumns {
			rows = append(rows, Row{
				Line: line,
				Err:  fmt.Errorf("%w: want %d columns, got %d", ErrMalformedRow, numColumns, len(rec)),
			})
			continue
		}
		rows = append(rows, Row{
			Line: line,
			Submission: model.Submission{
				Name:     rec[colName],
				Gender:   rec[colGender],
				Date:     rec[colDate],
				RawScore: rec[colRawScore],
			},
		})
	}
}

func isHeader(rec []string) bool {
	if len(rec) != numColumns {
		return false
	}
	last := strings.ToLower(strings.TrimSpace(rec[colRawScore]))
	return last == "raw_score" || last == "rawscore" || last == "raw score"
}

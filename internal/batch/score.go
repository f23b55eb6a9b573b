package batch

import (
	"context"

	service "github.com/okian/iqscore/internal/app"
	"github.com/okian/iqscore/internal/domain/model"
	"github.com/okian/iqscore/pkg/logger"
)

// Submitter is the part of the service a batch run needs.
type Submitter interface {
	Submit(ctx context.Context, sessionID string, sub model.Submission) (string, service.Prediction, error)
	Export(ctx context.Context, sessionID string) (service.Export, error)
}

// Rejection records a row that did not make it into the history.
type Rejection struct {
	Line int
	Err  error
}

// Summary describes a finished batch run.
type Summary struct {
	SessionID string
	Accepted  int
	Rejected  []Rejection
}

// Score submits rows in order into a single session. Rejected rows are
// logged and collected; they never stop the run.
func Score(ctx context.Context, svc Submitter, rows []Row, log logger.Logger) (Summary, error) {
	var sum Summary
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if row.Err != nil {
			sum.reject(ctx, log, row.Line, row.Err)
			continue
		}
		sid, _, err := svc.Submit(ctx, sum.SessionID, row.Submission)
		if err != nil {
			sum.reject(ctx, log, row.Line, err)
			continue
		}
		sum.SessionID = sid
		sum.Accepted++
	}
	return sum, nil
}

func (s *Summary) reject(ctx context.Context, log logger.Logger, line int, err error) {
	s.Rejected = append(s.Rejected, Rejection{Line: line, Err: err})
	log.Warn(ctx, "row rejected", logger.Int("line", line), logger.Error(err))
}

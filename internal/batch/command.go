package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/okian/iqscore/internal/adapters/export"
	service "github.com/okian/iqscore/internal/app"
	"github.com/okian/iqscore/internal/domain/artifact"
	"github.com/okian/iqscore/internal/domain/scoring"
	"github.com/okian/iqscore/pkg/logger"
)

const outputFileMode = 0o644

// Flag names.
const (
	flagLogLevel  = "log-level"
	flagLogFormat = "log-format"
	flagScaler    = "scaler"
	flagModel     = "model"
	flagIn        = "in"
	flagOut       = "out"
	flagRaw       = "raw"
)

// artifactFlags are shared by both subcommands. Flags carry parse state, so
// every command tree gets its own.
func artifactFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagScaler,
			Usage:   "Path to the score scaler artifact",
			Value:   service.DefaultScalerPath,
			Sources: cli.EnvVars("IQSCORE_SCALER_PATH"),
		},
		&cli.StringFlag{
			Name:    flagModel,
			Usage:   "Path to the outcome classifier artifact",
			Value:   service.DefaultModelPath,
			Sources: cli.EnvVars("IQSCORE_MODEL_PATH"),
		},
	}
}

// NewCommand returns the batch CLI.
func NewCommand() *cli.Command {
	return &cli.Command{
		Name:  "batch",
		Usage: "Score IQ test submissions offline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagLogLevel,
				Usage:   "Log level [debug, info, warn, error]",
				Value:   "info",
				Sources: cli.EnvVars("IQSCORE_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    flagLogFormat,
				Usage:   "Log format [text, json]",
				Value:   logger.FormatText,
				Sources: cli.EnvVars("IQSCORE_LOG_FORMAT"),
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if err := logger.Init(logger.WithFormat(cmd.String(flagLogFormat)), logger.WithOutput(cmd.Root().ErrWriter)); err != nil {
				return ctx, err
			}
			if err := logger.SetLevelString(cmd.String(flagLogLevel)); err != nil {
				return ctx, err
			}
			return ctx, nil
		},
		After: func(context.Context, *cli.Command) error {
			return logger.Sync()
		},
		Commands: []*cli.Command{
			{
				Name:  "score",
				Usage: "Score every row of a CSV file into one history and export it",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     flagIn,
						Usage:    "CSV file of name,gender,date,raw_score rows",
						Required: true,
					},
					&cli.StringFlag{
						Name:  flagOut,
						Usage: "Where to write the spreadsheet export",
						Value: export.FileName,
					},
				}, artifactFlags()...),
				Action: cmdScore,
			},
			{
				Name:  "predict",
				Usage: "Score a single raw value and print the result as JSON",
				Flags: append([]cli.Flag{
					&cli.StringFlag{
						Name:     flagRaw,
						Usage:    "Raw test score to score",
						Required: true,
					},
				}, artifactFlags()...),
				Action: cmdPredict,
			},
		},
	}
}

func cmdScore(ctx context.Context, cmd *cli.Command) error {
	log := logger.Named("batch")

	svc := service.New(
		service.WithLogger(log),
		service.WithScalerPath(cmd.String(flagScaler)),
		service.WithModelPath(cmd.String(flagModel)),
	)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("starting service: %w", err)
	}
	defer svc.Stop()

	in := cmd.String(flagIn)
	f, err := os.Open(in)
	if err != nil {
		return fmt.Errorf("opening %s: %w", in, err)
	}
	defer f.Close()

	rows, err := ReadSubmissions(f)
	if err != nil {
		return err
	}

	sum, err := Score(ctx, svc, rows, log)
	if err != nil {
		return err
	}
	if sum.Accepted == 0 {
		return fmt.Errorf("no row of %s could be scored (%d rejected): %w", in, len(sum.Rejected), service.ErrEmptyHistory)
	}

	file, err := svc.Export(ctx, sum.SessionID)
	if err != nil {
		return err
	}
	out := cmd.String(flagOut)
	if err := os.WriteFile(out, file.Data, outputFileMode); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	log.Info(ctx, "batch scored",
		logger.String("in", in),
		logger.String("out", out),
		logger.Int("accepted", sum.Accepted),
		logger.Int("rejected", len(sum.Rejected)),
	)
	_, err = fmt.Fprintf(cmd.Root().Writer, "scored %d rows, rejected %d, wrote %s\n", sum.Accepted, len(sum.Rejected), out)
	return err
}

// predictResult is the JSON printed by the predict command.
type predictResult struct {
	RawScore      float64 `json:"raw_score"`
	Standardized  float64 `json:"standardized"`
	DerivedIQ     float64 `json:"derived_iq"`
	Category      string  `json:"category"`
	CategoryLabel string  `json:"category_label"`
	Outcome       string  `json:"outcome"`
	OutcomeLabel  string  `json:"outcome_label"`
}

func cmdPredict(_ context.Context, cmd *cli.Command) error {
	scaler, err := artifact.LoadScaler(cmd.String(flagScaler))
	if err != nil {
		return err
	}
	classifier, err := artifact.LoadClassifier(cmd.String(flagModel))
	if err != nil {
		return err
	}

	res, err := scoring.New(scaler, classifier).Compute(cmd.String(flagRaw))
	if err != nil {
		if errors.Is(err, scoring.ErrNotANumber) {
			return fmt.Errorf("--raw: %w", err)
		}
		return err
	}

	enc := json.NewEncoder(cmd.Root().Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(predictResult{
		RawScore:      res.RawScore,
		Standardized:  res.Standardized,
		DerivedIQ:     res.DerivedIQ,
		Category:      res.Category.String(),
		CategoryLabel: res.Category.Label(),
		Outcome:       res.Outcome.String(),
		OutcomeLabel:  res.Outcome.Label(),
	})
}

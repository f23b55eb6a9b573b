// Package service provides the core business service that implements
// the dependencies required by the HTTP API and the batch CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/iqscore/internal/adapters/export"
	repository "github.com/okian/iqscore/internal/adapters/repository"
	"github.com/okian/iqscore/internal/domain/artifact"
	"github.com/okian/iqscore/internal/domain/model"
	"github.com/okian/iqscore/internal/domain/scoring"
	"github.com/okian/iqscore/pkg/logger"
	"github.com/okian/iqscore/pkg/metrics"
)

// Default artifact locations, relative to the working directory.
const (
	DefaultScalerPath = "scaler_iq.json"
	DefaultModelPath  = "model_iq.json"
)

// Rejection reasons reported to metrics.
const (
	reasonNotANumber    = "not_a_number"
	reasonInvalidGender = "invalid_gender"
	reasonInvalidDate   = "invalid_date"
)

var (
	// ErrNotStarted is returned when the service is used before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrEmptyHistory is returned when exporting a session with no records.
	ErrEmptyHistory = errors.New("history is empty")
)

// Prediction is the result of one accepted submission.
type Prediction struct {
	model.PredictionRecord
	Standardized float64
}

// Export is a rendered history file ready for download.
type Export struct {
	FileName    string
	ContentType string
	Data        []byte
}

// Service scores submissions and keeps one history per session.
type Service struct {
	mu sync.RWMutex

	// Configuration
	scalerPath  string
	modelPath   string
	maxSessions int
	sessionTTL  time.Duration
	now         func() time.Time

	// Core components
	transformer artifact.Transformer
	classifier  artifact.Classifier
	pipeline    *scoring.Pipeline
	sessions    *repository.Sessions

	// State
	started     bool
	startedAt   time.Time
	predictions atomic.Int64
	rejections  atomic.Int64

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithScalerPath sets the score transformer artifact path.
func WithScalerPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.scalerPath = path
		}
	}
}

// WithModelPath sets the outcome classifier artifact path.
func WithModelPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.modelPath = path
		}
	}
}

// WithMaxSessions bounds the number of concurrently held histories.
func WithMaxSessions(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithSessionTTL sets how long an idle session keeps its history.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithClock sets the clock used to default the submission date.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithArtifacts uses already loaded artifacts instead of reading them from
// the configured paths.
func WithArtifacts(t artifact.Transformer, c artifact.Classifier) Option {
	return func(s *Service) {
		s.transformer = t
		s.classifier = c
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		scalerPath:  DefaultScalerPath,
		modelPath:   DefaultModelPath,
		maxSessions: 10_000,
		sessionTTL:  2 * time.Hour,
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start loads both artifacts and prepares the session registry. A missing
// or malformed artifact is returned as an error and the service stays
// stopped.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting prediction service...",
		logger.String("scaler", s.scalerPath),
		logger.String("model", s.modelPath),
	)

	// Artifacts are kept only once both have loaded.
	transformer, classifier := s.transformer, s.classifier
	if transformer == nil {
		scaler, err := artifact.LoadScaler(s.scalerPath)
		if err != nil {
			metrics.SetArtifactLoaded("scaler", artifact.ScalerKind, false)
			return fmt.Errorf("load scaler: %w", err)
		}
		transformer = scaler
	}
	metrics.SetArtifactLoaded("scaler", artifact.ScalerKind, true)

	if classifier == nil {
		loaded, err := artifact.LoadClassifier(s.modelPath)
		if err != nil {
			metrics.SetArtifactLoaded("model", "unknown", false)
			return fmt.Errorf("load model: %w", err)
		}
		classifier = loaded
	}
	metrics.SetArtifactLoaded("model", classifier.Kind(), true)

	s.transformer, s.classifier = transformer, classifier
	s.pipeline = scoring.New(transformer, classifier)
	s.sessions = repository.NewSessions(
		repository.WithMaxSessions(s.maxSessions),
		repository.WithTTL(s.sessionTTL),
		repository.WithOnEnd(s.sessionEnded),
	)

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "prediction service started",
		logger.String("classifier", s.classifier.Kind()),
		logger.Int("maxSessions", s.maxSessions),
		logger.String("sessionTTL", s.sessionTTL.String()),
	)

	return nil
}

// Stop marks the service as stopped. Held histories are dropped with it.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.started = false
	s.sessions = nil
	metrics.UpdateActiveSessions(0)
	s.logger.Info(context.Background(), "prediction service stopped")
}

// sessionEnded runs under the registry lock; it must not touch s.sessions.
func (s *Service) sessionEnded(id string, records int, age time.Duration) {
	metrics.RecordSessionEvicted()
	s.logger.Debug(context.Background(), "session ended",
		logger.String("session", id),
		logger.Int("records", records),
		logger.String("age", age.Round(time.Second).String()),
	)
}

func (s *Service) components() (*scoring.Pipeline, *repository.Sessions, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.pipeline, s.sessions, nil
}

// Submit validates and scores one submission and appends the resulting
// record to the session's history. When sessionID is empty, unknown or
// expired a new session is started; the returned id is the one to use from
// then on. On any error the history is left untouched and sessionID is
// returned as given.
func (s *Service) Submit(ctx context.Context, sessionID string, sub model.Submission) (string, Prediction, error) {
	pipeline, sessions, err := s.components()
	if err != nil {
		return sessionID, Prediction{}, err
	}

	gender, err := model.ParseGender(sub.Gender)
	if err != nil {
		s.reject(ctx, reasonInvalidGender, err)
		return sessionID, Prediction{}, err
	}
	date, err := model.ParseDate(sub.Date, s.now())
	if err != nil {
		s.reject(ctx, reasonInvalidDate, err)
		return sessionID, Prediction{}, err
	}

	begin := time.Now()
	res, err := pipeline.Compute(sub.RawScore)
	metrics.RecordScoringLatency(float64(time.Since(begin).Microseconds()) / 1000)
	if err != nil {
		if errors.Is(err, scoring.ErrNotANumber) {
			s.reject(ctx, reasonNotANumber, err)
			return sessionID, Prediction{}, err
		}
		metrics.RecordModelError()
		s.logger.Error(ctx, "scoring failed", logger.Error(err))
		return sessionID, Prediction{}, err
	}

	rec := model.PredictionRecord{
		Name:      strings.TrimSpace(sub.Name),
		Gender:    gender,
		Date:      date,
		RawScore:  res.RawScore,
		DerivedIQ: res.DerivedIQ,
		Category:  res.Category,
		Outcome:   res.Outcome,
	}

	sid, history, created := sessions.Open(ctx, sessionID)
	if created {
		metrics.RecordSessionOpened()
		metrics.UpdateActiveSessions(sessions.Len())
		s.logger.Debug(ctx, "session started", logger.String("session", sid))
	}
	history.Append(ctx, rec)
	s.predictions.Add(1)

	metrics.RecordHistoryAppend()
	metrics.RecordPrediction(rec.Category.String(), rec.Outcome.String(), rec.DerivedIQ)
	s.logger.Debug(ctx, "prediction recorded",
		logger.String("session", sid),
		logger.Float64("rawScore", rec.RawScore),
		logger.Float64("derivedIQ", rec.DerivedIQ),
		logger.String("category", rec.Category.String()),
		logger.String("outcome", rec.Outcome.String()),
		logger.Int("historyLen", history.Len()),
	)

	return sid, Prediction{PredictionRecord: rec, Standardized: res.Standardized}, nil
}

func (s *Service) reject(ctx context.Context, reason string, err error) {
	s.rejections.Add(1)
	metrics.RecordInputRejection(reason)
	s.logger.Debug(ctx, "submission rejected", logger.String("reason", reason), logger.Error(err))
}

// History returns the session's records in submission order. Unknown
// sessions have an empty history.
func (s *Service) History(ctx context.Context, sessionID string) ([]model.PredictionRecord, error) {
	_, sessions, err := s.components()
	if err != nil {
		return nil, err
	}
	history, ok := sessions.Get(ctx, sessionID)
	if !ok {
		return []model.PredictionRecord{}, nil
	}
	return history.All(ctx), nil
}

// Export renders the session's history as a spreadsheet. The history is
// not modified, so a failed export can be retried.
func (s *Service) Export(ctx context.Context, sessionID string) (Export, error) {
	records, err := s.History(ctx, sessionID)
	if err != nil {
		return Export{}, err
	}
	if len(records) == 0 {
		return Export{}, ErrEmptyHistory
	}

	begin := time.Now()
	data, err := export.Serialize(records)
	if err != nil {
		metrics.RecordExportError()
		s.logger.Error(ctx, "export failed", logger.Int("records", len(records)), logger.Error(err))
		return Export{}, err
	}
	metrics.RecordExport(len(data), float64(time.Since(begin).Microseconds())/1000)

	s.logger.Info(ctx, "history exported",
		logger.Int("records", len(records)),
		logger.Int("bytes", len(data)),
	)

	return Export{
		FileName:    export.FileName,
		ContentType: export.ContentType,
		Data:        data,
	}, nil
}

// EndSession drops the session and its history.
func (s *Service) EndSession(ctx context.Context, sessionID string) error {
	_, sessions, err := s.components()
	if err != nil {
		return err
	}
	if !sessions.Close(ctx, sessionID) {
		return repository.ErrSessionNotFound
	}
	metrics.UpdateActiveSessions(sessions.Len())
	s.logger.Debug(ctx, "session closed", logger.String("session", sessionID))
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":           s.started,
		"scalerPath":        s.scalerPath,
		"modelPath":         s.modelPath,
		"maxSessions":       s.maxSessions,
		"sessionTTLSeconds": int(s.sessionTTL.Seconds()),
		"predictions":       s.predictions.Load(),
		"rejections":        s.rejections.Load(),
	}

	if s.started {
		active := s.sessions.Len()
		stats["activeSessions"] = active
		stats["classifier"] = s.classifier.Kind()
		stats["uptimeSeconds"] = int(time.Since(s.startedAt).Seconds())

		metrics.UpdateActiveSessions(active)
	}

	return stats
}

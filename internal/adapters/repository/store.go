// Package repository holds the per-session prediction histories.
package repository

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/okian/iqscore/internal/domain/model"
)

// History is an append-only, insertion-ordered list of prediction records
// belonging to one session. There is no delete: a history lives and dies
// with its session.
type History struct {
	mu      sync.RWMutex
	records []model.PredictionRecord
	created time.Time
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{created: time.Now()}
}

// Append adds a record at the end.
func (h *History) Append(_ context.Context, rec model.PredictionRecord) {
	h.mu.Lock()
	h.records = append(h.records, rec)
	h.mu.Unlock()
}

// All returns a snapshot of the records in insertion order. The caller owns
// the returned slice.
func (h *History) All(_ context.Context) []model.PredictionRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.records)
}

// Len returns the number of records.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.records)
}

// Created returns when the history was started.
func (h *History) Created() time.Time { return h.created }

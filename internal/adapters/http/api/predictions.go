package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/iqscore/internal/adapters/export"
	service "github.com/okian/iqscore/internal/app"
	"github.com/okian/iqscore/internal/domain/model"
	"github.com/okian/iqscore/internal/domain/scoring"
)

const maxBodyBytes = 64 << 10

// predictionRequest mirrors the OpenAPI schema for POST /predictions.
type predictionRequest struct {
	Name     string    `json:"name"`
	Gender   string    `json:"gender"`
	Date     string    `json:"date"`
	RawScore scoreText `json:"raw_score"`
}

// scoreText keeps raw_score as typed by the user. Both JSON strings and
// numbers are accepted; the scoring pipeline decides what is a number.
type scoreText string

func (s *scoreText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = scoreText(v)
		return nil
	}
	if string(b) == "null" {
		*s = ""
		return nil
	}
	*s = scoreText(b)
	return nil
}

// predictionResponse is one scored record as returned to clients.
type predictionResponse struct {
	Name          string  `json:"name"`
	Gender        string  `json:"gender"`
	Date          string  `json:"date"`
	RawScore      float64 `json:"raw_score"`
	DerivedIQ     float64 `json:"derived_iq"`
	Category      string  `json:"category"`
	CategoryLabel string  `json:"category_label"`
	Outcome       string  `json:"outcome"`
	OutcomeLabel  string  `json:"outcome_label"`
}

func newPredictionResponse(rec model.PredictionRecord) predictionResponse {
	return predictionResponse{
		Name:          rec.Name,
		Gender:        rec.Gender.String(),
		Date:          rec.DateString(),
		RawScore:      rec.RawScore,
		DerivedIQ:     rec.DerivedIQ,
		Category:      rec.Category.String(),
		CategoryLabel: rec.Category.Label(),
		Outcome:       rec.Outcome.String(),
		OutcomeLabel:  rec.Outcome.Label(),
	}
}

// PredictionsHandler handles prediction and history requests.
type PredictionsHandler struct {
	deps    Dependencies
	cookies *cookieJar
}

// newPredictionsHandler creates a new predictions handler.
func newPredictionsHandler(deps Dependencies, cookies *cookieJar) *PredictionsHandler {
	return &PredictionsHandler{deps: deps, cookies: cookies}
}

// HandlePost handles POST /predictions requests.
func (h *PredictionsHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_prediction"
	var req predictionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	current := h.cookies.sessionID(r)
	sid, p, err := h.deps.Submit(r.Context(), current, model.Submission{
		Name:     req.Name,
		Gender:   req.Gender,
		Date:     req.Date,
		RawScore: string(req.RawScore),
	})
	if err != nil {
		status, code := submitErrorStatus(err)
		if status < statusInternalError {
			err = WrapKind(op, ErrBadRequest, err)
		} else {
			err = Wrap(op, err)
		}
		writeError(w, status, code, err)
		return
	}

	if sid != current {
		h.cookies.set(w, sid)
	}
	writeJSON(w, http.StatusCreated, newPredictionResponse(p.PredictionRecord))
}

func submitErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, scoring.ErrNotANumber):
		return http.StatusBadRequest, "not_a_number"
	case errors.Is(err, model.ErrInvalidGender):
		return http.StatusBadRequest, "invalid_gender"
	case errors.Is(err, model.ErrInvalidDate):
		return http.StatusBadRequest, "invalid_date"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "not_ready"
	default:
		return http.StatusInternalServerError, "model_error"
	}
}

// HandleList handles GET /predictions requests.
func (h *PredictionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_predictions"
	records, err := h.deps.History(r.Context(), h.cookies.sessionID(r))
	if err != nil {
		if errors.Is(err, service.ErrNotStarted) {
			writeError(w, http.StatusServiceUnavailable, "not_ready", WrapKind(op, ErrNotReady, err))
			return
		}
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}

	out := make([]predictionResponse, len(records))
	for i, rec := range records {
		out[i] = newPredictionResponse(rec)
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleExport handles GET /predictions/export requests.
func (h *PredictionsHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	const op = "api.export_predictions"
	file, err := h.deps.Export(r.Context(), h.cookies.sessionID(r))
	switch {
	case err == nil:
	case errors.Is(err, service.ErrEmptyHistory):
		writeError(w, http.StatusNotFound, "empty_history", Wrap(op, err))
		return
	case errors.Is(err, export.ErrSerialization):
		writeError(w, http.StatusInternalServerError, "serialization_error", Wrap(op, err))
		return
	case errors.Is(err, service.ErrNotStarted):
		writeError(w, http.StatusServiceUnavailable, "not_ready", WrapKind(op, ErrNotReady, err))
		return
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+file.FileName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(file.Data)
}

package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jroyseravila/heart/internal/common"
	"github.com/jroyseravila/heart/internal/features"
	"github.com/jroyseravila/heart/internal/ml"
	"github.com/jroyseravila/heart/internal/storage"

	"github.com/rs/zerolog/log"
)

// PredictRequest carries either a patient record or a raw positional
// feature vector, never both.
type PredictRequest struct {
	Patient  *features.Patient `json:"patient,omitempty"`
	Features []float64         `json:"features,omitempty"`
}

// PredictResponse is the JSON form of a prediction.
type PredictResponse struct {
	Label         ml.RiskLabel `json:"label"`
	LabelText     string       `json:"label_text"`
	Probabilities [2]float64   `json:"probabilities"`
	Lines         []string     `json:"lines"`
	RequestID     string       `json:"request_id,omitempty"`
	LatencyMS     float64      `json:"latency_ms"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	RequestID string `json:"request_id,omitempty"`
}

type healthResponse struct {
	Status      string    `json:"status"`
	ModelPath   string    `json:"model_path"`
	Error       string    `json:"error,omitempty"`
	FailureRate *float64  `json:"failure_rate,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

type loadsResponse struct {
	Loads []storage.LoadRecord `json:"loads"`
}

var (
	errEmptyRequest     = errors.New("request needs either patient or features")
	errAmbiguousRequest = errors.New("request must not carry both patient and features")
	errNonFinite        = errors.New("features must be finite numbers")
)

func newPredictResponse(res ml.PredictionResult, requestID string, latency time.Duration) PredictResponse {
	return PredictResponse{
		Label:         res.Label,
		LabelText:     res.Label.Headline(),
		Probabilities: res.Probabilities,
		Lines:         res.Lines(),
		RequestID:     requestID,
		LatencyMS:     float64(latency.Microseconds()) / 1000,
	}
}

func decodePredictRequest(r *http.Request, w http.ResponseWriter) (PredictRequest, error) {
	var req PredictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, common.MaxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, err
	}
	if err := req.check(); err != nil {
		return req, err
	}
	return req, nil
}

func (req PredictRequest) check() error {
	switch {
	case req.Patient == nil && req.Features == nil:
		return errEmptyRequest
	case req.Patient != nil && req.Features != nil:
		return errAmbiguousRequest
	case req.Features != nil && !features.Vector(req.Features).Finite():
		return errNonFinite
	}
	return nil
}

// run dispatches the request to the predictor. Raw vectors are passed through
// without a length check.
func (s *Server) run(r *http.Request, req PredictRequest) (ml.PredictionResult, error) {
	if req.Patient != nil {
		return s.predictor.Predict(r.Context(), *req.Patient)
	}
	return s.predictor.PredictVector(r.Context(), req.Features)
}

func (s *Server) handleAPIPredict(w http.ResponseWriter, r *http.Request) {
	requestID := RequestID(r.Context())

	req, err := decodePredictRequest(r, w)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "request", RequestID: requestID})
		return
	}

	start := time.Now()
	res, err := s.run(r, req)
	if err != nil {
		status, kind := apiFailure(err)
		writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind, RequestID: requestID})
		return
	}

	writeJSON(w, http.StatusOK, newPredictResponse(res, requestID, time.Since(start)))
}

// apiFailure maps a predictor error to a status code and error kind.
func apiFailure(err error) (int, string) {
	if errors.Is(err, ml.ErrModelUnavailable) {
		return http.StatusServiceUnavailable, "unavailable"
	}
	var ie *ml.InferenceError
	if errors.As(err, &ie) {
		return http.StatusUnprocessableEntity, string(ie.Kind)
	}
	var re *features.RangeError
	if errors.As(err, &re) {
		return http.StatusBadRequest, "range"
	}
	return http.StatusBadRequest, "request"
}

func (s *Server) handleAPIModel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.predictor.Store().Status())
}

func (s *Server) handleAPILoads(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeJSON(w, http.StatusOK, loadsResponse{Loads: []storage.LoadRecord{}})
		return
	}

	limit := common.DefaultLedgerLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > common.MaxLedgerLimit {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error:     "limit must be between 1 and " + strconv.Itoa(common.MaxLedgerLimit),
				Kind:      "request",
				RequestID: RequestID(r.Context()),
			})
			return
		}
		limit = n
	}

	loads, err := s.ledger.ModelLoads(limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to read model load ledger")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "ledger unavailable", Kind: "storage", RequestID: RequestID(r.Context())})
		return
	}
	if loads == nil {
		loads = []storage.LoadRecord{}
	}
	writeJSON(w, http.StatusOK, loadsResponse{Loads: loads})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	store := s.predictor.Store()
	resp := healthResponse{
		Status:    "ok",
		ModelPath: store.Path(),
		StartedAt: s.startedAt,
	}
	if s.metrics != nil {
		rate := s.metrics.FailureRate()
		resp.FailureRate = &rate
	}
	status := http.StatusOK
	if !s.predictor.Available() {
		resp.Status = "degraded"
		if err := store.LoadError(); err != nil {
			resp.Error = err.Error()
		}
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

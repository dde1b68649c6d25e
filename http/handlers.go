package http

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"pitwall/monitoring"
	"pitwall/predict"
)

const (
	serviceName    = "F1 ML Prediction Service"
	serviceVersion = "1.0.0"
)

var endpoints = []string{
	"/predict/pitstop",
	"/predict/nextlap",
	"/health",
	"/metrics",
	"/ws/predict",
}

type handlers struct {
	svc     *predict.Service
	metrics *monitoring.MetricsCollector
	logger  *zap.Logger
}

func (h *handlers) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleRoot)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /metrics", h.handleMetrics)
	mux.HandleFunc("POST /predict/pitstop", h.handlePitStop)
	mux.HandleFunc("POST /predict/nextlap", h.handleNextLap)
}

func (h *handlers) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service":   serviceName,
		"version":   serviceVersion,
		"endpoints": endpoints,
	})
}

func (h *handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Health())
}

func (h *handlers) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if h.metrics == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{})
		return
	}
	if r.URL.Query().Get("format") == "prometheus" {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(h.metrics.ExportPrometheus()))
		return
	}
	if key := r.URL.Query().Get("series"); key != "" {
		summary, err := h.metrics.GetMetricSummary(key)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, summary)
		return
	}
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}

func (h *handlers) handlePitStop(w http.ResponseWriter, r *http.Request) {
	req, err := decodePitStop(r.Body)
	if err != nil {
		h.writeDecodeError(w, r, err)
		return
	}
	resp, err := h.svc.PredictPitStop(r.Context(), req)
	if err != nil {
		status, detail := errorStatus(err)
		logFailure(h.logger, GetRequestID(r.Context()), r.URL.Path, status, err)
		writeError(w, status, detail)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleNextLap(w http.ResponseWriter, r *http.Request) {
	req, err := decodeLapTime(r.Body)
	if err != nil {
		h.writeDecodeError(w, r, err)
		return
	}
	resp, err := h.svc.PredictNextLap(r.Context(), req)
	if err != nil {
		status, detail := errorStatus(err)
		logFailure(h.logger, GetRequestID(r.Context()), r.URL.Path, status, err)
		writeError(w, status, detail)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	status, detail := errorStatus(err)
	h.logger.Debug("rejected request body",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeError(w, status, detail)
}

// logFailure records server-side prediction failures. Client errors and
// unloaded models are expected and stay quiet.
func logFailure(logger *zap.Logger, requestID, path string, status int, err error) {
	if status < http.StatusInternalServerError || status == http.StatusServiceUnavailable {
		return
	}
	logger.Error("prediction failed",
		zap.String("request_id", requestID),
		zap.String("path", path),
		zap.Error(err))
}

// errorStatus maps request and service errors to a status code and the
// client-facing detail message.
func errorStatus(err error) (int, string) {
	var (
		validation *validationError
		tooLarge   *http.MaxBytesError
		predErr    *predict.PredictionError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, validation.msg
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, "Request body too large."
	case errors.Is(err, predict.ErrModelUnavailable):
		return http.StatusServiceUnavailable, unavailableDetail(err)
	case errors.As(err, &predErr):
		return http.StatusInternalServerError, "Prediction failed: " + predErr.Err.Error()
	default:
		return http.StatusInternalServerError, "Prediction failed: " + err.Error()
	}
}

func unavailableDetail(err error) string {
	var unavailable *predict.UnavailableError
	if errors.As(err, &unavailable) && unavailable.Model == predict.LapTimeModel {
		return "Lap time model not loaded."
	}
	return "Pit stop model not loaded."
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

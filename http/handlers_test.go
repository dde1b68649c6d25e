package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"pitwall/monitoring"
	"pitwall/predict"
)

type fakeClassifier struct {
	probs []float64
	err   error
	seen  []float64
}

func (f *fakeClassifier) PredictProba(features []float64) ([]float64, error) {
	f.seen = features
	return f.probs, f.err
}

type fakeRegressor struct {
	value float64
	err   error
}

func (f *fakeRegressor) Predict(features []float64) (float64, error) {
	return f.value, f.err
}

const pitStopBody = `{
	"driver_number": 44,
	"current_lap": 30,
	"tyre_age": 28,
	"tyre_compound": "SOFT",
	"position": 3,
	"gap_to_leader": 5.2,
	"recent_lap_times": [91.2, 91.5, 91.8],
	"avg_speed": 305.0
}`

const lapTimeBody = `{
	"driver_number": 1,
	"current_lap": 12,
	"tyre_age": 10,
	"tyre_compound": "medium",
	"fuel_load": 60,
	"track_temp": 38,
	"recent_lap_times": [],
	"avg_speed": 300
}`

func newTestHandler(svc *predict.Service, metrics *monitoring.MetricsCollector) http.Handler {
	return NewHandler(DefaultServerConfig(), svc, metrics, zap.NewNop())
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload), w.Body.String())
	return payload
}

func TestRoot(t *testing.T) {
	w := do(t, newTestHandler(predict.NewService(nil, nil), nil), http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, w.Code)

	payload := decodeBody(t, w)
	assert.Equal(t, "F1 ML Prediction Service", payload["service"])
	assert.Equal(t, "1.0.0", payload["version"])
	assert.Contains(t, payload["endpoints"], "/predict/pitstop")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestUnknownPath(t *testing.T) {
	w := do(t, newTestHandler(predict.NewService(nil, nil), nil), http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	w := do(t, newTestHandler(predict.NewService(nil, nil), nil), http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","models_loaded":{"pitstop":false,"laptime":false}}`, w.Body.String())

	svc := predict.NewService(&fakeClassifier{}, &fakeRegressor{})
	w = do(t, newTestHandler(svc, nil), http.MethodGet, "/health", "")
	assert.JSONEq(t, `{"status":"healthy","models_loaded":{"pitstop":true,"laptime":true}}`, w.Body.String())
}

func TestModelsNotLoaded(t *testing.T) {
	h := newTestHandler(predict.NewService(nil, nil), nil)

	w := do(t, h, http.MethodPost, "/predict/pitstop", pitStopBody)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"detail":"Pit stop model not loaded."}`, w.Body.String())

	w = do(t, h, http.MethodPost, "/predict/nextlap", lapTimeBody)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"detail":"Lap time model not loaded."}`, w.Body.String())
}

func TestPredictPitStop(t *testing.T) {
	model := &fakeClassifier{probs: []float64{0.2, 0.8}}
	h := newTestHandler(predict.NewService(model, nil), nil)

	w := do(t, h, http.MethodPost, "/predict/pitstop", pitStopBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{
		"driver_number": 44,
		"pit_probability": 0.8,
		"recommendation": "HIGH - Pit stop likely within 3 laps",
		"confidence": 0.8
	}`, w.Body.String())

	require.Len(t, model.seen, 8)
	assert.Equal(t, 0.0, model.seen[2])
	assert.InDelta(t, 91.5, model.seen[5], 1e-9)
	assert.InDelta(t, 0.06, model.seen[6], 1e-9)
}

func TestPredictPitStopCompoundCodes(t *testing.T) {
	cases := map[string]float64{
		`"hard"`:  2,
		`"slick"`: 1,
		`4`:       4,
		`9`:       1,
	}
	for compound, want := range cases {
		t.Run(compound, func(t *testing.T) {
			model := &fakeClassifier{probs: []float64{0.5, 0.5}}
			h := newTestHandler(predict.NewService(model, nil), nil)
			body := strings.Replace(pitStopBody, `"SOFT"`, compound, 1)

			w := do(t, h, http.MethodPost, "/predict/pitstop", body)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, want, model.seen[2])
		})
	}
}

func TestPredictValidation(t *testing.T) {
	h := newTestHandler(predict.NewService(&fakeClassifier{probs: []float64{0.5, 0.5}}, &fakeRegressor{value: 90}), nil)

	cases := []struct {
		name   string
		path   string
		body   string
		detail string
	}{
		{"malformed", "/predict/pitstop", `{"driver_number":`, "invalid request body"},
		{"missing fields", "/predict/pitstop", `{"driver_number": 44}`, "field required: current_lap"},
		{"null lap times", "/predict/nextlap", strings.Replace(lapTimeBody, `[]`, `null`, 1), "recent_lap_times"},
		{"negative tyre age", "/predict/pitstop", strings.Replace(pitStopBody, `"tyre_age": 28`, `"tyre_age": -1`, 1), "tyre_age must be"},
		{"negative lap", "/predict/nextlap", strings.Replace(lapTimeBody, `"current_lap": 12`, `"current_lap": -3`, 1), "current_lap must be"},
		{"fractional lap", "/predict/pitstop", strings.Replace(pitStopBody, `"current_lap": 30`, `"current_lap": 30.5`, 1), "invalid request body"},
		{"compound type", "/predict/pitstop", strings.Replace(pitStopBody, `"SOFT"`, `true`, 1), "tyre_compound"},
		{"trailing object", "/predict/pitstop", pitStopBody + `{"driver_number": 1}`, "unexpected data after JSON value"},
		{"trailing garbage", "/predict/nextlap", lapTimeBody + ` garbage{`, "invalid request body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
			assert.Contains(t, decodeBody(t, w)["detail"], tc.detail)
		})
	}
}

func TestPredictBodyTooLarge(t *testing.T) {
	config := DefaultServerConfig()
	config.MaxBodyBytes = 32
	h := NewHandler(config, predict.NewService(&fakeClassifier{probs: []float64{0.5, 0.5}}, nil), nil, zap.NewNop())

	w := do(t, h, http.MethodPost, "/predict/pitstop", pitStopBody)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestPredictNextLap(t *testing.T) {
	h := newTestHandler(predict.NewService(nil, &fakeRegressor{value: 90.4444}), nil)

	w := do(t, h, http.MethodPost, "/predict/nextlap", lapTimeBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{
		"driver_number": 1,
		"predicted_lap_time": 90.444,
		"confidence_interval": [89.944, 90.944]
	}`, w.Body.String())
}

func TestPredictionFailure(t *testing.T) {
	h := newTestHandler(predict.NewService(&fakeClassifier{err: errors.New("tree exploded")}, nil), nil)

	w := do(t, h, http.MethodPost, "/predict/pitstop", pitStopBody)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"detail":"Prediction failed: tree exploded"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	metrics := monitoring.NewMetricsCollector()
	h := newTestHandler(predict.NewService(&fakeClassifier{probs: []float64{0.5, 0.5}}, nil, predict.WithMetrics(metrics)), metrics)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/predict/pitstop", pitStopBody).Code)

	w := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	series, ok := decodeBody(t, w)["series"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, series, `predictions_total{model="pitstop",outcome="ok"}`)

	assert.Contains(t, series, `model_loaded{model="laptime"}`)

	w = do(t, h, http.MethodGet, "/metrics?format=prometheus", "")
	assert.Contains(t, w.Body.String(), "# TYPE predictions_total counter")
	assert.Contains(t, w.Body.String(), `model_loaded{model="pitstop"} 1`)

	w = do(t, h, http.MethodGet, "/metrics?series="+url.QueryEscape(`model_loaded{model="laptime"}`), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, decodeBody(t, w)["latest"])

	w = do(t, h, http.MethodGet, "/metrics?series=unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORS(t *testing.T) {
	h := newTestHandler(predict.NewService(nil, nil), nil)

	req := httptest.NewRequest(http.MethodOptions, "/predict/pitstop", nil)
	req.Header.Set("Origin", "http://pitwall.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://pitwall.local", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestRequestIDPropagates(t *testing.T) {
	h := newTestHandler(predict.NewService(nil, nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "lap-30")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "lap-30", w.Header().Get("X-Request-ID"))
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", bytes.NewReader(nil)))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"detail":"Internal server error"}`, w.Body.String())
}

func TestServerStartLogsAddr(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	server := NewServer(ServerConfig{Port: 0, Timeout: time.Second}, predict.NewService(nil, nil), nil, zap.New(core))
	assert.Equal(t, ":0", server.Addr())

	done := make(chan error, 1)
	go func() { done <- server.Start() }()
	require.Eventually(t, func() bool { return logs.FilterMessage("starting HTTP server").Len() == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
	require.NoError(t, <-done)

	entry := logs.FilterMessage("starting HTTP server").All()[0]
	assert.Equal(t, ":0", entry.ContextMap()["addr"])
	assert.Equal(t, "ws://localhost:0/ws/predict", entry.ContextMap()["stream"])
}

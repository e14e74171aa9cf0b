// Package api exposes the inference service over HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"churn-service/internal/churn/inference"
	"churn-service/internal/churn/schema"
	"churn-service/internal/churn/validator"
	apperrors "churn-service/internal/common/errors"
	"churn-service/internal/common/logger"
	"churn-service/internal/common/validation"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultMaxBodyBytes = 1 << 20
	welcomeMessage      = "Customer Churn Prediction API is live!"
)

// Predictor is the part of the inference service the HTTP boundary needs.
type Predictor interface {
	Predict(ctx context.Context, req inference.Request) (*inference.PredictionResult, error)
	Schema() *schema.TrainingSchema
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Config struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
	Checks         map[string]ReadinessCheck
}

type Server struct {
	predictor Predictor
	config    Config
	records   *validation.Validator
	logger    logger.Logger
	handler   http.Handler
}

func NewServer(predictor Predictor, config Config, log logger.Logger) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaultMaxBodyBytes
	}

	s := &Server{
		predictor: predictor,
		config:    config,
		records:   validation.NewRecordValidator(),
		logger:    log.WithFields(map[string]interface{}{"component": "http"}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("GET /schema", s.handleSchema)
	mux.HandleFunc("POST /predict", s.handlePredict)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.handler = s.withLogging(s.withRecovery(s.withCORS(mux)))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ErrorResponse is the body of every non-2xx answer from /predict.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Code   string   `json:"code"`
	Fields []string `json:"fields,omitempty"`
}

// SchemaResponse describes the training schema for clients building requests.
type SchemaResponse struct {
	Columns     []string            `json:"columns"`
	Categorical map[string][]string `json:"categorical"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, welcomeMessage)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	if s.predictor == nil || s.predictor.Schema() == nil {
		failed["inference"] = "not loaded"
	}
	for name, check := range s.config.Checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Format(time.RFC3339),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	ts := s.predictor.Schema()
	resp := SchemaResponse{
		Columns:     ts.Columns(),
		Categorical: make(map[string][]string),
	}
	for _, field := range ts.CategoricalFields() {
		values, _ := ts.Vocabulary(field)
		if values == nil {
			values = []string{}
		}
		resp.Categorical[field] = values
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: "request body too large",
				Code:  string(apperrors.ErrCodeInvalidRequest),
			})
			return
		}
		s.writeError(w, apperrors.NewInvalidRequestError(err.Error()))
		return
	}

	record, err := s.decodeRecord(body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.predictor.Predict(r.Context(), inference.Request{
		Record:     record,
		CustomerID: customerID(r, record),
		Source:     inference.SourceHTTP,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result.Response())
}

// decodeRecord checks the body shape and decodes it keeping numbers as json.Number.
func (s *Server) decodeRecord(body []byte) (validator.RawRecord, error) {
	result, err := s.records.ValidateBytes(body)
	if err != nil {
		return nil, apperrors.NewInvalidRequestError("body is not valid JSON")
	}
	if !result.Valid {
		stdErr := apperrors.NewInvalidRequestError(strings.Join(result.GetErrorMessages(), "; "))
		for _, f := range result.Fields() {
			if f != "(root)" {
				stdErr.Fields = append(stdErr.Fields, f)
			}
		}
		return nil, stdErr
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var record validator.RawRecord
	if err := dec.Decode(&record); err != nil {
		return nil, apperrors.NewInvalidRequestError(err.Error())
	}
	return record, nil
}

// customerID comes from the query string, or the Telco "customerID" column when present.
func customerID(r *http.Request, record validator.RawRecord) string {
	if id := r.URL.Query().Get("customerId"); id != "" {
		return id
	}
	if id, ok := record["customerID"].(string); ok {
		return id
	}
	return ""
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	stdErr := apperrors.Normalize(err)
	status := apperrors.HTTPStatus(stdErr.Code)

	if apperrors.IsClientError(stdErr) {
		writeJSON(w, status, ErrorResponse{
			Error:  stdErr.Message,
			Code:   string(stdErr.Code),
			Fields: stdErr.Fields,
		})
		return
	}

	s.logger.Error("prediction failed", map[string]interface{}{
		"code":    string(stdErr.Code),
		"details": stdErr.Details,
	})
	writeJSON(w, status, ErrorResponse{
		Error: "prediction failed",
		Code:  string(stdErr.Code),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

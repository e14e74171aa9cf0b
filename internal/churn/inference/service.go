// Package inference serves churn predictions: validate, encode, score, label.
package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"churn-service/internal/churn/encoder"
	"churn-service/internal/churn/model"
	"churn-service/internal/churn/schema"
	"churn-service/internal/churn/sink"
	"churn-service/internal/churn/validator"
	apperrors "churn-service/internal/common/errors"
	"churn-service/internal/common/logger"
	"churn-service/internal/common/metrics"
	"churn-service/internal/common/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultSinkTimeout = 2 * time.Second

type Config struct {
	Schema       *schema.TrainingSchema
	Model        model.Classifier
	ModelVersion string
	SinkTimeout  time.Duration
}

// Request is one record to score plus where it came from.
type Request struct {
	Record     validator.RawRecord
	CustomerID string
	Source     string
}

// Service is safe for concurrent use. It holds only read-only references after construction.
type Service struct {
	schema       *schema.TrainingSchema
	encoder      *encoder.Encoder
	model        model.Classifier
	modelVersion string
	sinkTimeout  time.Duration

	cache  Cache
	sink   sink.Sink
	logger logger.Logger
	obs    *observability.Observability
	tracer trace.Tracer
}

type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithSinks records every served prediction in each sink.
func WithSinks(sinks ...sink.Sink) Option {
	return func(s *Service) {
		if len(sinks) == 1 {
			s.sink = sinks[0]
		} else if len(sinks) > 1 {
			s.sink = sink.Multi(sinks)
		}
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithObservability(o *observability.Observability) Option {
	return func(s *Service) { s.obs = o }
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	if cfg.Schema == nil || cfg.Schema.Len() == 0 {
		return nil, fmt.Errorf("inference: training schema is required")
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("inference: model is required")
	}

	s := &Service{
		schema:       cfg.Schema,
		encoder:      encoder.New(cfg.Schema),
		model:        cfg.Model,
		modelVersion: cfg.ModelVersion,
		sinkTimeout:  cfg.SinkTimeout,
		logger:       logger.NewNoOpLogger(),
		obs:          observability.NewNoop(),
	}
	if s.sinkTimeout <= 0 {
		s.sinkTimeout = defaultSinkTimeout
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithFields(map[string]interface{}{"component": "inference"})
	s.tracer = s.obs.Tracer()
	return s, nil
}

func (s *Service) Schema() *schema.TrainingSchema { return s.schema }

func (s *Service) ModelVersion() string { return s.modelVersion }

// Infer scores a single record.
func (s *Service) Infer(ctx context.Context, record validator.RawRecord) (*PredictionResult, error) {
	return s.Predict(ctx, Request{Record: record, Source: SourceDirect})
}

// Predict scores req.Record. Client input errors come back unchanged as MISSING_FIELD or
// INVALID_VALUE; encoder and model failures come back as ENCODING_FAILED and SCORING_FAILED.
func (s *Service) Predict(ctx context.Context, req Request) (*PredictionResult, error) {
	source := req.Source
	if source == "" {
		source = SourceDirect
	}
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "inference.predict", trace.WithAttributes(
		attribute.String("churn.source", source),
	))
	defer span.End()

	result, err := s.predict(ctx, req.Record)
	if err != nil {
		code := apperrors.Normalize(err).Code
		span.SetStatus(codes.Error, string(code))
		metrics.PredictionErrors.WithLabelValues(string(code), source).Inc()
		s.obs.RecordInferenceDuration(ctx, time.Since(start), "error")
		return nil, err
	}

	metrics.PredictionsTotal.WithLabelValues(result.Label, source).Inc()
	s.obs.RecordPrediction(ctx, result.Label, source)
	s.obs.RecordInferenceDuration(ctx, time.Since(start), "success")

	s.record(ctx, req, source, result)
	return result, nil
}

func (s *Service) predict(ctx context.Context, record validator.RawRecord) (*PredictionResult, error) {
	rec, err := s.validate(ctx, record)
	if err != nil {
		return nil, err
	}

	vec, dropped, err := s.encode(ctx, rec)
	if err != nil {
		return nil, err
	}

	var key string
	if s.cache != nil {
		key = CacheKey(s.modelVersion, vec)
		if cached, ok := s.lookup(ctx, key); ok {
			cached.UnseenColumns = dropped
			cached.Cached = true
			return cached, nil
		}
	}

	result, err := s.score(ctx, vec)
	if err != nil {
		return nil, err
	}
	result.UnseenColumns = dropped

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result); err != nil {
			s.logger.Warn("prediction cache write failed", map[string]interface{}{"error": err.Error()})
		}
	}
	return result, nil
}

func (s *Service) validate(ctx context.Context, record validator.RawRecord) (*validator.ValidatedRecord, error) {
	_, span := s.tracer.Start(ctx, "inference.validate")
	defer span.End()
	defer observeStage("validate", time.Now())

	rec, err := validator.Validate(record)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return rec, nil
}

func (s *Service) encode(ctx context.Context, rec *validator.ValidatedRecord) (encoder.AlignedVector, []string, error) {
	_, span := s.tracer.Start(ctx, "inference.encode")
	defer span.End()
	defer observeStage("encode", time.Now())

	vec, dropped, err := s.encoder.EncodeDetailed(rec)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("encoding failed", map[string]interface{}{"error": err.Error()})
		return nil, nil, err
	}

	if len(dropped) > 0 {
		span.SetAttributes(attribute.StringSlice("churn.unseen_columns", dropped))
		for _, field := range s.unseenFields(rec, dropped) {
			metrics.UnseenColumns.WithLabelValues(field).Inc()
		}
		s.logger.Debug("encoded columns not in training schema were dropped", map[string]interface{}{
			"columns": dropped,
		})
	}
	return vec, dropped, nil
}

func (s *Service) score(ctx context.Context, vec encoder.AlignedVector) (*PredictionResult, error) {
	_, span := s.tracer.Start(ctx, "inference.score")
	defer span.End()
	defer observeStage("score", time.Now())

	fail := func(err error) (*PredictionResult, error) {
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("model scoring failed", map[string]interface{}{"error": err.Error()})
		return nil, apperrors.NewScoringFailedError(err)
	}

	class, err := s.model.PredictLabel(vec)
	if err != nil {
		return fail(fmt.Errorf("predict label: %w", err))
	}
	label, err := labelFor(class)
	if err != nil {
		return fail(err)
	}

	p, err := s.model.PredictProbability(vec)
	if err != nil {
		return fail(fmt.Errorf("predict probability: %w", err))
	}
	if err := checkProbability(p); err != nil {
		return fail(err)
	}

	span.SetAttributes(
		attribute.String("churn.label", label),
		attribute.Float64("churn.probability", p),
	)
	return &PredictionResult{Label: label, Probability: p}, nil
}

func (s *Service) lookup(ctx context.Context, key string) (*PredictionResult, bool) {
	cached, ok, err := s.cache.Get(ctx, key)
	if err == nil && ok {
		if err := cached.validate(); err != nil {
			metrics.CacheRequests.WithLabelValues("invalid").Inc()
			s.logger.Warn("discarding invalid cached prediction", map[string]interface{}{
				"key":   key,
				"error": err.Error(),
			})
			return nil, false
		}
	}

	switch {
	case err != nil:
		metrics.CacheRequests.WithLabelValues("error").Inc()
		s.logger.Warn("prediction cache read failed", map[string]interface{}{"error": err.Error()})
		return nil, false
	case !ok:
		metrics.CacheRequests.WithLabelValues("miss").Inc()
		return nil, false
	default:
		metrics.CacheRequests.WithLabelValues("hit").Inc()
		return cached, true
	}
}

// record hands the prediction to the sinks. Sink failures are logged and counted only.
func (s *Service) record(ctx context.Context, req Request, source string, result *PredictionResult) {
	if s.sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.sinkTimeout)
	defer cancel()

	event := sink.NewEvent(req.CustomerID, result.Label, result.Probability, s.modelVersion, source, result.UnseenColumns)
	if err := s.sink.Record(ctx, event); err != nil {
		for _, name := range failedSinks(err, s.sink) {
			metrics.SinkFailures.WithLabelValues(name).Inc()
		}
		s.logger.Warn("prediction event not recorded", map[string]interface{}{
			"eventId": event.ID,
			"error":   err.Error(),
		})
	}
}

// unseenFields maps dropped columns back to a bounded metric label: the categorical field they
// came from, or "other".
func (s *Service) unseenFields(rec *validator.ValidatedRecord, dropped []string) []string {
	categorical := make(map[string]bool)
	for _, f := range s.schema.CategoricalFields() {
		categorical[f] = true
	}

	fields := make([]string, 0, len(dropped))
	for _, column := range dropped {
		field := "other"
		for name, value := range rec.Extra {
			str, ok := value.(string)
			if ok && categorical[name] && encoder.IndicatorName(name, str) == column {
				field = name
				break
			}
		}
		fields = append(fields, field)
	}
	return fields
}

// failedSinks names the sinks behind err, falling back to the configured sink's name.
func failedSinks(err error, fallback sink.Sink) []string {
	var names []string
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			var se *sink.Error
			if errors.As(e, &se) {
				names = append(names, se.Sink)
			}
		}
	}
	if len(names) == 0 {
		names = append(names, fallback.Name())
	}
	return names
}

func observeStage(stage string, start time.Time) {
	metrics.InferenceDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// internal/workers/churn/predict-churn/handler.go
package predictchurn

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"churn-service/internal/churn/inference"
	"churn-service/internal/churn/validator"
	apperrors "churn-service/internal/common/errors"
	"churn-service/internal/common/logger"
	"churn-service/internal/common/validation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "predict-churn"
)

// Predictor scores one customer record.
type Predictor interface {
	Predict(ctx context.Context, req inference.Request) (*inference.PredictionResult, error)
}

type Handler struct {
	config       *Config
	predictor    Predictor
	records      *validation.Validator
	errorHandler *apperrors.ErrorHandler
	logger       logger.Logger
}

func NewHandler(config *Config, predictor Predictor, log logger.Logger) *Handler {
	if config == nil {
		config = LoadConfig()
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		predictor:    predictor,
		records:      validation.NewRecordValidator(),
		errorHandler: apperrors.NewErrorHandler(l),
		logger:       l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	input, err := parseInput(job.Variables)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	output, err := h.execute(ctx, input)
	if err != nil {
		h.errorHandler.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

// parseInput decodes job variables keeping numbers as json.Number.
func parseInput(variables string) (*Input, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(variables)))
	dec.UseNumber()

	var input Input
	if err := dec.Decode(&input); err != nil {
		return nil, apperrors.NewInvalidRequestError("parse variables: " + err.Error())
	}
	return &input, nil
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.Customer == nil {
		return nil, apperrors.NewInvalidRequestError("variable 'customer' is required")
	}

	result, err := h.records.ValidateInput(input.Customer)
	if err != nil {
		return nil, apperrors.NewInvalidRequestError(err.Error())
	}
	if !result.Valid {
		stdErr := apperrors.NewInvalidRequestError(strings.Join(result.GetErrorMessages(), "; "))
		stdErr.Fields = result.Fields()
		return nil, stdErr
	}

	prediction, err := h.predictor.Predict(ctx, inference.Request{
		Record:     validator.RawRecord(input.Customer),
		CustomerID: input.CustomerID,
		Source:     inference.SourceZeebe,
	})
	if err != nil {
		return nil, err
	}

	resp := prediction.Response()
	return &Output{
		ChurnPrediction:  resp.Prediction,
		ChurnProbability: resp.Probability,
		ChurnRisk:        prediction.Label == inference.LabelLeaves,
	}, nil
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":          job.Key,
		"churnPrediction": output.ChurnPrediction,
	})
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

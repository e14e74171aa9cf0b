package inference

import (
	"fmt"
	"math"
)

const (
	LabelStays  = "Stays"
	LabelLeaves = "Leaves"
)

// Request sources, used as a metric label and recorded on sink events.
const (
	SourceDirect = "direct"
	SourceHTTP   = "http"
	SourceZeebe  = "zeebe"
)

// PredictionResult is the outcome of scoring one record.
type PredictionResult struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
	// UnseenColumns lists encoded columns the training schema had no slot for.
	UnseenColumns []string `json:"-"`
	Cached        bool     `json:"-"`
}

// Response is the client-facing shape of a prediction.
type Response struct {
	Prediction  string `json:"prediction"`
	Probability string `json:"probability"`
}

func (r *PredictionResult) Response() Response {
	return Response{
		Prediction:  r.Label,
		Probability: FormatProbability(r.Probability),
	}
}

// FormatProbability renders p with exactly two decimals.
func FormatProbability(p float64) string {
	return fmt.Sprintf("%.2f", p)
}

func labelFor(class int) (string, error) {
	switch class {
	case 0:
		return LabelStays, nil
	case 1:
		return LabelLeaves, nil
	default:
		return "", fmt.Errorf("classifier returned unknown class %d", class)
	}
}

// validate rejects results that could not have come from score, such as a corrupted cache entry.
func (r *PredictionResult) validate() error {
	if r.Label != LabelStays && r.Label != LabelLeaves {
		return fmt.Errorf("unknown label %q", r.Label)
	}
	return checkProbability(r.Probability)
}

func checkProbability(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return fmt.Errorf("probability %v outside [0,1]", p)
	}
	return nil
}

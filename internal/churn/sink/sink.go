// Package sink records served churn predictions in external systems.
// Sinks sit outside the scoring path: their failures never change a prediction.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event is one served prediction.
type Event struct {
	ID            string    `json:"id"`
	CustomerID    string    `json:"customerId,omitempty"`
	Prediction    string    `json:"prediction"`
	Probability   float64   `json:"probability"`
	ModelVersion  string    `json:"modelVersion"`
	Source        string    `json:"source"`
	UnseenColumns []string  `json:"unseenColumns,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// NewEvent stamps a fresh ID and creation time.
func NewEvent(customerID, prediction string, probability float64, modelVersion, source string, unseen []string) Event {
	return Event{
		ID:            uuid.NewString(),
		CustomerID:    customerID,
		Prediction:    prediction,
		Probability:   probability,
		ModelVersion:  modelVersion,
		Source:        source,
		UnseenColumns: unseen,
		CreatedAt:     time.Now().UTC(),
	}
}

type Sink interface {
	Name() string
	Record(ctx context.Context, event Event) error
}

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Name() string { return "multi" }

func (m Multi) Record(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, event); err != nil {
			errs = append(errs, &Error{Sink: s.Name(), Err: err})
		}
	}
	return errors.Join(errs...)
}

// Error ties a failure to the sink that produced it.
type Error struct {
	Sink string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

package sink

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

const insertPredictionQuery = `INSERT INTO churn_predictions
	(id, customer_id, prediction, probability, model_version, source, unseen_columns, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// PostgresSink appends each event to the churn_predictions audit table.
type PostgresSink struct {
	db *sql.DB
}

func NewPostgresSink(db *sql.DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) Record(ctx context.Context, event Event) error {
	var customerID sql.NullString
	if event.CustomerID != "" {
		customerID = sql.NullString{String: event.CustomerID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, insertPredictionQuery,
		event.ID,
		customerID,
		event.Prediction,
		event.Probability,
		event.ModelVersion,
		event.Source,
		pq.Array(event.UnseenColumns),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert prediction %s: %w", event.ID, err)
	}
	return nil
}

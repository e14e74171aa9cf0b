// Package model scores aligned feature vectors with a classifier trained offline.
package model

// Classifier is a trained binary classifier. Vectors are aligned to the training schema.
type Classifier interface {
	// PredictLabel returns 1 when the customer is predicted to leave, 0 otherwise.
	PredictLabel(vector []float64) (int, error)
	// PredictProbability returns the class-1 probability in [0,1].
	PredictProbability(vector []float64) (float64, error)
}

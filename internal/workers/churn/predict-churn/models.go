// internal/workers/churn/predict-churn/models.go
package predictchurn

// Input is the process variables the worker reads.
type Input struct {
	Customer   map[string]interface{} `json:"customer"`
	CustomerID string                 `json:"customerId,omitempty"`
}

// Output is merged back into the process instance.
type Output struct {
	ChurnPrediction  string `json:"churnPrediction"`
	ChurnProbability string `json:"churnProbability"`
	ChurnRisk        bool   `json:"churnRisk"`
}

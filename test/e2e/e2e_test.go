// test/e2e/e2e_test.go
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"churn-service/internal/api"
	"churn-service/internal/churn/inference"
	"churn-service/internal/churn/model"
	"churn-service/internal/churn/schema"
	"churn-service/internal/churn/sink"
	"churn-service/internal/common/config"
	"churn-service/internal/common/logger"
	predictchurn "churn-service/internal/workers/churn/predict-churn"
)

const (
	schemaPath = "../../internal/churn/schema/testdata/X_train.csv"
	modelPath  = "../../internal/churn/model/testdata/churn_model.json"
)

// ==========================
// Test Harness
// ==========================

type harness struct {
	server  *httptest.Server
	service *inference.Service
	sqlMock sqlmock.Sqlmock
	redis   *miniredis.Miniredis
	docs    *docCounter
	alerts  *alertRecorder
}

type docCounter struct {
	mu   sync.Mutex
	docs []map[string]interface{}
}

func (d *docCounter) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.docs)
}

type alertRecorder struct {
	mu     sync.Mutex
	inputs []*sns.PublishInput
}

func (a *alertRecorder) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.inputs = append(a.inputs, params)
	return &sns.PublishOutput{}, nil
}

func (a *alertRecorder) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.inputs)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.NewTestLogger(t)

	trainingSchema, err := schema.NewRegistry(schema.Config{
		Path:              schemaPath,
		CategoricalFields: config.DefaultCategoricalFields,
	}, log).Load()
	require.NoError(t, err)

	classifier, err := model.LoadTreeEnsemble(modelPath, trainingSchema)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	docs := &docCounter{}
	esServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var doc map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&doc)
		docs.mu.Lock()
		docs.docs = append(docs.docs, doc)
		docs.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"result":"created"}`)
	}))
	t.Cleanup(esServer.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{esServer.URL}})
	require.NoError(t, err)

	alerts := &alertRecorder{}

	svc, err := inference.NewService(inference.Config{
		Schema:       trainingSchema,
		Model:        classifier,
		ModelVersion: "e2e-v1",
	},
		inference.WithLogger(log),
		inference.WithCache(inference.NewRedisCache(rdb, 0)),
		inference.WithSinks(
			sink.NewPostgresSink(db),
			sink.NewElasticsearchSink(es, "churn-predictions"),
			sink.NewAlertSink(alerts, "arn:aws:sns:eu-west-1:123456789012:churn-alerts", 0.7),
		),
	)
	require.NoError(t, err)

	srv := httptest.NewServer(api.NewServer(svc, api.Config{}, log))
	t.Cleanup(srv.Close)

	return &harness{
		server:  srv,
		service: svc,
		sqlMock: sqlMock,
		redis:   mr,
		docs:    docs,
		alerts:  alerts,
	}
}

func (h *harness) expectInsert() {
	h.sqlMock.ExpectExec("INSERT INTO churn_predictions").
		WillReturnResult(sqlmock.NewResult(1, 1))
}

func (h *harness) post(t *testing.T, body string) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(h.server.URL+"/predict", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// highRiskCustomer is a new month-to-month subscriber on a cheap plan.
const highRiskCustomer = `{
	"customerID": "7590-VHVEG",
	"gender": 0,
	"SeniorCitizen": 0,
	"Partner": 1,
	"Dependents": 0,
	"tenure": 1,
	"PhoneService": 0,
	"PaperlessBilling": 1,
	"MonthlyCharges": 29.85,
	"TotalCharges": "29.85",
	"MultipleLines": "No phone service",
	"InternetService": "DSL",
	"OnlineSecurity": "No",
	"OnlineBackup": "Yes",
	"DeviceProtection": "No",
	"TechSupport": "No",
	"StreamingTV": "No",
	"StreamingMovies": "No",
	"Contract": "Month-to-month",
	"PaymentMethod": "Electronic check"
}`

// loyalCustomer is five years into a two-year contract.
const loyalCustomer = `{
	"tenure": 60,
	"MonthlyCharges": 80,
	"TotalCharges": 4800,
	"InternetService": "Fiber optic",
	"Contract": "Two year",
	"PaymentMethod": "Credit card (automatic)"
}`

// ==========================
// End-to-End Flows
// ==========================

func TestE2E_PredictOverHTTP(t *testing.T) {
	h := newHarness(t)

	t.Log("🚀 Scoring a high-risk customer")
	h.expectInsert()
	status, body := h.post(t, highRiskCustomer)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]interface{}{"prediction": "Leaves", "probability": "0.72"}, body)
	assert.Len(t, h.redis.Keys(), 1, "prediction cached")

	t.Log("🔁 Scoring the same customer again hits the cache")
	h.expectInsert()
	status, body = h.post(t, highRiskCustomer)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "0.72", body["probability"])
	assert.Len(t, h.redis.Keys(), 1)

	t.Log("✅ Scoring a loyal customer")
	h.expectInsert()
	status, body = h.post(t, loyalCustomer)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, map[string]interface{}{"prediction": "Stays", "probability": "0.32"}, body)
	assert.Len(t, h.redis.Keys(), 2)

	assert.NoError(t, h.sqlMock.ExpectationsWereMet())
	assert.Equal(t, 3, h.docs.count())
	assert.Equal(t, 2, h.alerts.count(), "only Leaves at or above the threshold alert")

	h.docs.mu.Lock()
	first := h.docs.docs[0]
	h.docs.mu.Unlock()
	assert.Equal(t, "7590-VHVEG", first["customerId"])
	assert.Equal(t, "e2e-v1", first["modelVersion"])
	assert.Equal(t, "http", first["source"])
}

func TestE2E_RejectsIncompleteRecords(t *testing.T) {
	h := newHarness(t)

	status, body := h.post(t, `{"tenure": 5, "Contract": "One year"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "MISSING_FIELD", body["code"])
	assert.Equal(t, []interface{}{"MonthlyCharges", "TotalCharges"}, body["fields"])

	status, body = h.post(t, `{"tenure": "five", "MonthlyCharges": 50, "TotalCharges": " "}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_VALUE", body["code"])
	assert.Equal(t, []interface{}{"tenure", "TotalCharges"}, body["fields"])

	status, body = h.post(t, `{"tenure": 5, "MonthlyCharges": 50, "TotalCharges": 250, "addons": ["tv"]}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_REQUEST", body["code"])

	assert.NoError(t, h.sqlMock.ExpectationsWereMet(), "rejected requests are never recorded")
	assert.Zero(t, h.docs.count())
	assert.Empty(t, h.redis.Keys())
}

func TestE2E_SchemaEndpoint(t *testing.T) {
	h := newHarness(t)

	resp, err := http.Get(h.server.URL + "/schema")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out api.SchemaResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Len(t, out.Columns, 40)
	assert.Equal(t, []string{"Month-to-month", "One year", "Two year"}, out.Categorical["Contract"])
}

func TestE2E_ZeebeWorkerSharesService(t *testing.T) {
	h := newHarness(t)
	handler := predictchurn.NewHandler(nil, h.service, logger.NewTestLogger(t))

	var customer map[string]interface{}
	dec := json.NewDecoder(strings.NewReader(highRiskCustomer))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&customer))

	h.expectInsert()
	out, err := handler.Execute(context.Background(), &predictchurn.Input{
		Customer:   customer,
		CustomerID: "7590-VHVEG",
	})
	require.NoError(t, err)
	assert.Equal(t, &predictchurn.Output{
		ChurnPrediction:  "Leaves",
		ChurnProbability: "0.72",
		ChurnRisk:        true,
	}, out)

	assert.NoError(t, h.sqlMock.ExpectationsWereMet())
	assert.Equal(t, 1, h.alerts.count())

	h.docs.mu.Lock()
	defer h.docs.mu.Unlock()
	require.Len(t, h.docs.docs, 1)
	assert.Equal(t, "zeebe", h.docs.docs[0]["source"])
}

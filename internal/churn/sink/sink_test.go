package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestEvent(prediction string, probability float64) Event {
	return NewEvent("7590-VHVEG", prediction, probability, "v1", "http", []string{"Contract_Weekly"})
}

type recordingSink struct {
	name   string
	err    error
	events []Event
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Record(_ context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestNewEvent(t *testing.T) {
	e := createTestEvent("Leaves", 0.83)

	_, err := uuid.Parse(e.ID)
	assert.NoError(t, err)
	assert.Equal(t, "Leaves", e.Prediction)
	assert.False(t, e.CreatedAt.IsZero())
	assert.NotEqual(t, e.ID, createTestEvent("Leaves", 0.83).ID)
}

func TestMulti_Record(t *testing.T) {
	t.Run("all sinks receive the event", func(t *testing.T) {
		a := &recordingSink{name: "a"}
		b := &recordingSink{name: "b"}

		err := Multi{a, b}.Record(context.Background(), createTestEvent("Stays", 0.1))

		require.NoError(t, err)
		assert.Len(t, a.events, 1)
		assert.Len(t, b.events, 1)
	})

	t.Run("a failing sink does not stop the others", func(t *testing.T) {
		boom := errors.New("boom")
		a := &recordingSink{name: "a", err: boom}
		b := &recordingSink{name: "b"}

		err := Multi{a, b}.Record(context.Background(), createTestEvent("Stays", 0.1))

		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "sink a")
		assert.Len(t, b.events, 1)

		var sinkErr *Error
		require.True(t, errors.As(err, &sinkErr))
		assert.Equal(t, "a", sinkErr.Sink)
	})

	t.Run("empty multi is a no-op", func(t *testing.T) {
		assert.NoError(t, Multi{}.Record(context.Background(), createTestEvent("Stays", 0.1)))
	})
}

func TestPostgresSink_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	event := createTestEvent("Leaves", 0.91)
	mock.ExpectExec("INSERT INTO churn_predictions").
		WithArgs(event.ID, sqlmock.AnyArg(), "Leaves", 0.91, "v1", "http", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = NewPostgresSink(db).Record(context.Background(), event)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_Record_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO churn_predictions").
		WillReturnError(errors.New("connection refused"))

	err = NewPostgresSink(db).Record(context.Background(), createTestEvent("Stays", 0.2))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newTestElasticsearch(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return client
}

func TestElasticsearchSink_Record(t *testing.T) {
	var (
		mu     sync.Mutex
		path   string
		stored Event
	)
	client := newTestElasticsearch(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &stored)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	})

	event := createTestEvent("Leaves", 0.77)
	err := NewElasticsearchSink(client, "churn-predictions").Record(context.Background(), event)

	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, strings.HasPrefix(path, "/churn-predictions/_doc/"+event.ID), path)
	assert.Equal(t, event.ID, stored.ID)
	assert.Equal(t, "Leaves", stored.Prediction)
	assert.Equal(t, []string{"Contract_Weekly"}, stored.UnseenColumns)
}

func TestElasticsearchSink_Record_ErrorStatus(t *testing.T) {
	client := newTestElasticsearch(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"mapper_parsing_exception"}`))
	})

	err := NewElasticsearchSink(client, "churn-predictions").Record(context.Background(), createTestEvent("Stays", 0.1))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

type fakePublisher struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{}, nil
}

func TestAlertSink_Record(t *testing.T) {
	tests := []struct {
		name        string
		prediction  string
		probability float64
		wantPublish bool
	}{
		{name: "leaves above threshold", prediction: "Leaves", probability: 0.9, wantPublish: true},
		{name: "leaves at threshold", prediction: "Leaves", probability: 0.7, wantPublish: true},
		{name: "leaves below threshold", prediction: "Leaves", probability: 0.55},
		{name: "stays", prediction: "Stays", probability: 0.95},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			s := NewAlertSink(pub, "arn:aws:sns:us-east-1:123456789012:churn", 0.7)

			err := s.Record(context.Background(), createTestEvent(tt.prediction, tt.probability))

			require.NoError(t, err)
			if !tt.wantPublish {
				assert.Empty(t, pub.inputs)
				return
			}
			require.Len(t, pub.inputs, 1)
			in := pub.inputs[0]
			assert.Equal(t, "arn:aws:sns:us-east-1:123456789012:churn", *in.TopicArn)
			assert.Equal(t, "Leaves", *in.MessageAttributes["prediction"].StringValue)
			assert.Equal(t, "7590-VHVEG", *in.MessageAttributes["customerId"].StringValue)
			assert.Contains(t, *in.Message, `"prediction":"Leaves"`)
		})
	}
}

func TestAlertSink_Record_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("throttled")}
	s := NewAlertSink(pub, "arn", 0.5)

	err := s.Record(context.Background(), createTestEvent("Leaves", 0.8))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

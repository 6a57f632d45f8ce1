package trainer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataset-engine/internal/models"
	"dataset-engine/internal/preprocess"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func sampleResult() *preprocess.Result {
	return &preprocess.Result{
		Features: []preprocess.FeatureSpec{
			{Name: "a", Column: "a", Kind: preprocess.FeatureNumeric},
			{Name: "c__x", Column: "c", Kind: preprocess.FeatureOneHot, Category: "x"},
		},
		Train: models.TrainSplit{
			Split:        models.Split{X: [][]float64{{1, 0}, {2, 1}, {3, 0}}, Y: []float64{0, 1, 0}},
			FeatureNames: []string{"a", "c__x"},
		},
		Validation: models.Split{X: [][]float64{{4, 1}}, Y: []float64{1}},
		Test:       models.Split{X: [][]float64{}, Y: []float64{}},
		YOneHot:    true,
	}
}

func TestService_StartTraining(t *testing.T) {
	r := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, http.MethodPost, req.Method)
		assert.Equal(t, "/api/network/graphs/g1/train/", req.URL.Path)
		assert.NoError(t, req.ParseMultipartForm(1<<20))

		file, header, err := req.FormFile("file")
		if assert.NoError(t, err) {
			defer file.Close()
			data, _ := io.ReadAll(file)
			assert.Equal(t, "dataset.csv", header.Filename)
			assert.Equal(t, "a,c__x,label\n1,0,0\n2,1,1\n3,0,0\n4,1,1\n", string(data))
		}
		assert.Equal(t, `["a","c__x"]`, req.FormValue("x_columns"))
		assert.Equal(t, "label", req.FormValue("y_column"))
		assert.Equal(t, "0.25", req.FormValue("validation_split"))
		assert.Equal(t, "0", req.FormValue("test_split"))
		assert.Equal(t, "true", req.FormValue("y_one_hot"))

		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"id":"job-1","status":"queued"}`))
	}))
	defer srv.Close()

	svc := NewService(Config{BaseURL: srv.URL + "/api/", Retry: fastRetry()})
	job, err := svc.StartTraining(context.Background(), "g1", sampleResult(), "label")
	r.NoError(err)
	r.Equal("job-1", job.ID)
	r.Equal("queued", job.Status)
}

func TestService_RetriesServerErrors(t *testing.T) {
	r := require.New(t)

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"id":"job-2","status":"succeeded"}`))
	}))
	defer srv.Close()

	svc := NewService(Config{BaseURL: srv.URL, Retry: fastRetry()})
	job, err := svc.GetTrainingJob(context.Background(), "job-2")
	r.NoError(err)
	r.Equal("succeeded", job.Status)
	r.Equal(int32(2), atomic.LoadInt32(&calls))
}

func TestService_DoesNotRetryClientErrors(t *testing.T) {
	r := require.New(t)

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad graph", http.StatusBadRequest)
	}))
	defer srv.Close()

	svc := NewService(Config{BaseURL: srv.URL, Retry: fastRetry()})
	_, err := svc.GetTrainingJob(context.Background(), "nope")

	var statusErr *StatusError
	r.True(errors.As(err, &statusErr))
	r.Equal(http.StatusBadRequest, statusErr.StatusCode)
	r.Equal("bad graph", statusErr.Body)
	r.Equal(int32(1), atomic.LoadInt32(&calls))
}

func TestService_GivesUpAfterMaxAttempts(t *testing.T) {
	r := require.New(t)

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	svc := NewService(Config{BaseURL: srv.URL, Retry: fastRetry()})
	_, err := svc.Predict(context.Background(), "job", [][]float64{{1}})

	var statusErr *StatusError
	r.ErrorAs(err, &statusErr)
	r.Equal(int32(3), atomic.LoadInt32(&calls))
}

func TestService_Predict(t *testing.T) {
	r := require.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/network/training-jobs/job-9/predict/", req.URL.Path)
		assert.Equal(t, "application/json", req.Header.Get("Content-Type"))

		var body PredictRequest
		assert.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, [][]float64{{0.5, -1}, {1, 2}}, body.Instances)

		w.Write([]byte(`{"predictions":[[0.1],[0.9]]}`))
	}))
	defer srv.Close()

	svc := NewService(Config{BaseURL: srv.URL, Retry: fastRetry()})
	resp, err := svc.Predict(context.Background(), "job-9", [][]float64{{0.5, -1}, {1, 2}})
	r.NoError(err)
	r.JSONEq(`[[0.1],[0.9]]`, string(resp.Predictions))
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := withRetry(ctx, fastRetry(), func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

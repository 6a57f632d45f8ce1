package trainer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"dataset-engine/internal/logger"
	"dataset-engine/internal/preprocess"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
	Retry   RetryConfig
}

// Service talks to the remote trainer that fits models on exported splits
// and serves predictions for finished jobs.
type Service struct {
	config Config
	client *http.Client
}

func NewService(config Config) *Service {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8000/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Service{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// TrainingJob is the trainer's view of a job
type TrainingJob struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type PredictRequest struct {
	Instances [][]float64 `json:"instances"`
}

type PredictResponse struct {
	// Predictions is passed through as the trainer returned it
	Predictions json.RawMessage `json:"predictions"`
}

// StatusError is a non-success response from the trainer
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("trainer returned status %d: %s", e.StatusCode, e.Body)
}

// StartTraining uploads the processed splits as one CSV and starts a job on
// the given graph.
func (s *Service) StartTraining(ctx context.Context, graphID string, result *preprocess.Result, targetName string) (*TrainingJob, error) {
	var csvBuf bytes.Buffer
	if err := preprocess.ExportTrainingCSV(&csvBuf, result, targetName); err != nil {
		return nil, fmt.Errorf("failed to export training table: %w", err)
	}

	xColumns, err := json.Marshal(result.FeatureNames())
	if err != nil {
		return nil, err
	}
	validation, test := result.SplitFractions()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", "dataset.csv")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(csvBuf.Bytes()); err != nil {
		return nil, err
	}
	fields := []struct{ name, value string }{
		{"x_columns", string(xColumns)},
		{"y_column", targetName},
		{"validation_split", strconv.FormatFloat(validation, 'f', -1, 64)},
		{"test_split", strconv.FormatFloat(test, 'f', -1, 64)},
		{"y_one_hot", strconv.FormatBool(result.YOneHot)},
	}
	for _, f := range fields {
		if err := form.WriteField(f.name, f.value); err != nil {
			return nil, err
		}
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/network/graphs/%s/train/", s.config.BaseURL, url.PathEscape(graphID))
	var job TrainingJob
	err = s.do(ctx, http.MethodPost, endpoint, form.FormDataContentType(), body.Bytes(), &job)
	if err != nil {
		return nil, err
	}

	logger.Info("Training job started",
		zap.String("graph_id", graphID),
		zap.String("job_id", job.ID),
		zap.Int("features", len(result.Features)),
	)
	return &job, nil
}

func (s *Service) GetTrainingJob(ctx context.Context, jobID string) (*TrainingJob, error) {
	endpoint := fmt.Sprintf("%s/network/training-jobs/%s/", s.config.BaseURL, url.PathEscape(jobID))
	var job TrainingJob
	if err := s.do(ctx, http.MethodGet, endpoint, "", nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Predict sends already transformed instances to a finished job
func (s *Service) Predict(ctx context.Context, jobID string, instances [][]float64) (*PredictResponse, error) {
	payload, err := json.Marshal(PredictRequest{Instances: instances})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/network/training-jobs/%s/predict/", s.config.BaseURL, url.PathEscape(jobID))
	var resp PredictResponse
	if err := s.do(ctx, http.MethodPost, endpoint, "application/json", payload, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do sends one request with retries. Server errors and transport failures
// are retried; client errors are returned at once.
func (s *Service) do(ctx context.Context, method, endpoint, contentType string, payload []byte, out interface{}) error {
	return withRetry(ctx, s.config.Retry, func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return permanent(err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
			if resp.StatusCode >= 500 {
				return statusErr
			}
			return permanent(statusErr)
		}

		if out == nil || len(data) == 0 {
			return nil
		}
		if err := json.Unmarshal(data, out); err != nil {
			return permanent(fmt.Errorf("failed to decode trainer response: %w", err))
		}
		return nil
	})
}

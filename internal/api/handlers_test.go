package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataset-engine/internal/analysis"
	"dataset-engine/internal/datasource"
	"dataset-engine/internal/models"
	"dataset-engine/internal/state"
	"dataset-engine/internal/trainer"
)

const sampleCSV = "x,color,y\n1,red,10\n2,blue,20\n3,red,30\n4,blue,40\n5,red,50\n6,blue,60\n"

func newTestRouter(t *testing.T, trainerURL string) (http.Handler, *Handler) {
	t.Helper()

	var trainerSvc *trainer.Service
	if trainerURL != "" {
		trainerSvc = trainer.NewService(trainer.Config{
			BaseURL: trainerURL,
			Retry:   trainer.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond},
		})
	}
	h := NewHandler(state.NewStore(models.DefaultConfig()), analysis.NewCSVService(), trainerSvc)

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r, h
}

func do(t *testing.T, h http.Handler, method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func doJSON(t *testing.T, h http.Handler, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return do(t, h, method, path, "application/json", body)
}

func upload(t *testing.T, h http.Handler, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, form.Close())
	return do(t, h, http.MethodPost, "/api/datasets", form.FormDataContentType(), &buf)
}

func uploadSample(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := upload(t, h, "sample.csv", sampleCSV)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp models.UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.ID
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestRouter(t, "")
	rec := do(t, router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "OK", rec.Body.String())
}

func TestUpload(t *testing.T) {
	r := require.New(t)
	router, _ := newTestRouter(t, "")

	rec := upload(t, router, "sample.csv", sampleCSV)
	r.Equal(http.StatusCreated, rec.Code)

	resp := decode[models.UploadResponse](t, rec)
	r.NotEmpty(resp.ID)
	r.Equal(6, resp.Rows)
	r.Equal([]string{"x", "color", "y"}, resp.ColumnNames)
	r.Equal(models.ColumnTypeCategorical, resp.ColumnInfo[1].Type)

	rec = upload(t, router, "sample.txt", sampleCSV)
	r.Equal(http.StatusBadRequest, rec.Code)
}

func TestDatasetLifecycle(t *testing.T) {
	r := require.New(t)
	router, _ := newTestRouter(t, "")
	id := uploadSample(t, router)
	base := "/api/datasets/" + id

	rec := do(t, router, http.MethodGet, base+"/preview?rows=2", "", nil)
	r.Equal(http.StatusOK, rec.Code)
	preview := decode[models.PreviewResponse](t, rec)
	r.Len(preview.Rows, 2)
	r.Equal(6, preview.Total)

	rec = do(t, router, http.MethodGet, base+"/preview?cleaned=true", "", nil)
	r.Equal(http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodPost, base+"/process", nil)
	r.Equal(http.StatusBadRequest, rec.Code)
	problems := decode[map[string]interface{}](t, rec)
	r.NotEmpty(problems["problems"])

	rec = doJSON(t, router, http.MethodPut, base+"/columns/y/role", models.RoleRequest{Role: models.RoleTarget})
	r.Equal(http.StatusOK, rec.Code)
	info := decode[models.DatasetInfo](t, rec)
	r.Equal("y", info.PreprocessingConfig.TargetColumn)

	rec = doJSON(t, router, http.MethodPatch, base+"/config", map[string]interface{}{"randomSeed": 7})
	r.Equal(http.StatusOK, rec.Code)
	info = decode[models.DatasetInfo](t, rec)
	r.Equal(int64(7), info.PreprocessingConfig.RandomSeed)
	r.False(info.IsProcessed)

	rec = doJSON(t, router, http.MethodPost, base+"/process", nil)
	r.Equal(http.StatusOK, rec.Code, rec.Body.String())
	processed := decode[models.ProcessResponse](t, rec)
	r.Equal([]string{"x", "color__blue", "color__red"}, processed.FeatureNames)
	r.Equal(6, processed.TrainRows+processed.ValidationRows+processed.TestRows)
	r.Equal(models.TaskRegression, processed.TaskType)

	rec = do(t, router, http.MethodGet, base+"/splits/train", "", nil)
	r.Equal(http.StatusOK, rec.Code)
	train := decode[models.TrainSplit](t, rec)
	r.Equal(processed.FeatureNames, train.FeatureNames)
	r.Len(train.X, processed.TrainRows)

	rec = do(t, router, http.MethodGet, base+"/splits/holdout", "", nil)
	r.Equal(http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodGet, base+"/preview?cleaned=true", "", nil)
	r.Equal(http.StatusOK, rec.Code)

	rec = do(t, router, http.MethodGet, base+"/export.csv", "", nil)
	r.Equal(http.StatusOK, rec.Code)
	r.Equal("text/csv", rec.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	r.Equal("x,color__blue,color__red,y", lines[0])
	r.Len(lines, 7)

	rec = do(t, router, http.MethodDelete, base, "", nil)
	r.Equal(http.StatusNoContent, rec.Code)
	rec = do(t, router, http.MethodGet, base, "", nil)
	r.Equal(http.StatusNotFound, rec.Code)
}

func TestGetDataset_NotFound(t *testing.T) {
	router, _ := newTestRouter(t, "")
	rec := do(t, router, http.MethodGet, "/api/datasets/unknown", "", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransform(t *testing.T) {
	r := require.New(t)
	router, _ := newTestRouter(t, "")
	id := uploadSample(t, router)
	base := "/api/datasets/" + id

	rec := doJSON(t, router, http.MethodPut, base+"/columns/y/role", models.RoleRequest{Role: models.RoleTarget})
	r.Equal(http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, base+"/transform", models.TransformRequest{
		Records: []models.RawRow{{"x": "3.5", "color": "red"}, {"x": "1", "color": "green"}},
	})
	r.Equal(http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[models.TransformResponse](t, rec)
	r.Len(resp.Instances, 2)
	r.InDelta(0, resp.Instances[0][0], 1e-12)
	r.Equal([]float64{0, 1}, resp.Instances[0][1:])
	r.Equal([]models.EncodingMismatch{{Record: 1, Column: "color", Value: "green"}}, resp.Mismatches)

	rec = doJSON(t, router, http.MethodPost, base+"/transform", models.TransformRequest{Instances: [][]float64{{1, 2}}})
	r.Equal(http.StatusBadRequest, rec.Code)
}

func TestTransform_RecordWithoutFillValue(t *testing.T) {
	r := require.New(t)
	router, _ := newTestRouter(t, "")

	rec := upload(t, router, "gaps.csv", "x,y\n1,10\n2,20\n,30\n4,40\n5,50\n")
	r.Equal(http.StatusCreated, rec.Code)
	base := "/api/datasets/" + decode[models.UploadResponse](t, rec).ID

	rec = doJSON(t, router, http.MethodPut, base+"/columns/y/role", models.RoleRequest{Role: models.RoleTarget})
	r.Equal(http.StatusOK, rec.Code)
	rec = doJSON(t, router, http.MethodPatch, base+"/config", map[string]interface{}{"missingValueStrategy": "remove-rows"})
	r.Equal(http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, base+"/transform", models.TransformRequest{
		Records: []models.RawRow{{"x": "3"}, {"x": ""}},
	})
	r.Equal(http.StatusBadRequest, rec.Code, rec.Body.String())
	body := decode[map[string]interface{}](t, rec)
	r.Equal([]interface{}{`record 1: column "x": value is missing and has no fill value`}, body["problems"])
}

func TestWriteJSON_UnencodableValue(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusOK, map[string]float64{"x": math.NaN()})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotEmpty(t, rec.Body.String())
}

type fakeSource struct {
	closed bool
}

func (s *fakeSource) ListTables(context.Context) ([]string, error) {
	return []string{"people"}, nil
}

func (s *fakeSource) LoadTable(_ context.Context, table string, limit int) ([]string, []models.RawRow, error) {
	return []string{"age", "name"}, []models.RawRow{{"age": "30", "name": "ann"}, {"age": "41", "name": "bob"}}, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

func TestLoadFromDB(t *testing.T) {
	r := require.New(t)
	router, h := newTestRouter(t, "")

	src := &fakeSource{}
	var gotConfig datasource.Config
	h.OpenSource = func(_ context.Context, cfg datasource.Config) (datasource.Source, error) {
		gotConfig = cfg
		return src, nil
	}
	h.DefaultSource = datasource.Config{Host: "default-host", Port: 5432}

	rec := doJSON(t, router, http.MethodPost, "/api/datasets/from-db", map[string]interface{}{"table": "people"})
	r.Equal(http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[models.UploadResponse](t, rec)
	r.Equal(2, resp.Rows)
	r.Equal("default-host", gotConfig.Host)
	r.True(src.closed)

	rec = doJSON(t, router, http.MethodPost, "/api/datasets/from-db", map[string]interface{}{})
	r.Equal(http.StatusBadRequest, rec.Code)
}

func TestTrainAndPredict(t *testing.T) {
	r := require.New(t)

	trainerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/network/graphs/g1/train/":
			assert.Equal(t, "y", req.FormValue("y_column"))
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"id":"job-1","status":"queued"}`))
		case "/network/training-jobs/job-1/predict/":
			var body trainer.PredictRequest
			assert.NoError(t, json.NewDecoder(req.Body).Decode(&body))
			if assert.Len(t, body.Instances, 1) {
				assert.Less(t, body.Instances[0][0], 0.0)
				assert.Equal(t, []float64{0, 1}, body.Instances[0][1:])
			}
			w.Write([]byte(`{"predictions":[12.5]}`))
		default:
			http.NotFound(w, req)
		}
	}))
	defer trainerSrv.Close()

	router, _ := newTestRouter(t, trainerSrv.URL)
	id := uploadSample(t, router)
	base := "/api/datasets/" + id

	rec := doJSON(t, router, http.MethodPost, base+"/train", models.TrainRequest{GraphID: "g1"})
	r.Equal(http.StatusConflict, rec.Code, "training needs processed splits")

	rec = doJSON(t, router, http.MethodPut, base+"/columns/y/role", models.RoleRequest{Role: models.RoleTarget})
	r.Equal(http.StatusOK, rec.Code)
	rec = doJSON(t, router, http.MethodPost, base+"/process", nil)
	r.Equal(http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, base+"/train", models.TrainRequest{GraphID: "g1"})
	r.Equal(http.StatusAccepted, rec.Code, rec.Body.String())
	job := decode[trainer.TrainingJob](t, rec)
	r.Equal("job-1", job.ID)

	rec = doJSON(t, router, http.MethodPost, base+"/predict", map[string]interface{}{
		"jobId":              "job-1",
		"applyNormalization": true,
		"instances":          [][]float64{{1, 0, 1}},
	})
	r.Equal(http.StatusOK, rec.Code, rec.Body.String())
	r.JSONEq(`{"predictions":[12.5],"mismatches":null}`, rec.Body.String())
}

func TestTrain_NoTrainer(t *testing.T) {
	router, _ := newTestRouter(t, "")
	rec := doJSON(t, router, http.MethodPost, "/api/datasets/x/train", models.TrainRequest{GraphID: "g"})
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"dataset-engine/internal/analysis"
	"dataset-engine/internal/datasource"
	"dataset-engine/internal/logger"
	"dataset-engine/internal/metrics"
	"dataset-engine/internal/models"
	"dataset-engine/internal/preprocess"
	"dataset-engine/internal/state"
	"dataset-engine/internal/trainer"
)

const MaxFileSize = 100 * 1024 * 1024 // 100MB

// SourceOpener connects to a database row source
type SourceOpener func(ctx context.Context, cfg datasource.Config) (datasource.Source, error)

type Handler struct {
	Store      *state.Store
	CSVService *analysis.CSVService
	Trainer    *trainer.Service

	OpenSource SourceOpener
	// DefaultSource is used when a from-db request carries no connection
	DefaultSource datasource.Config
	MaxTableRows  int
	MaxFileSize   int64
}

func NewHandler(store *state.Store, csv *analysis.CSVService, trainerSvc *trainer.Service) *Handler {
	return &Handler{
		Store:      store,
		CSVService: csv,
		Trainer:    trainerSvc,
		OpenSource: func(ctx context.Context, cfg datasource.Config) (datasource.Source, error) {
			return datasource.Connect(ctx, cfg)
		},
		MaxTableRows: 100000,
		MaxFileSize:  MaxFileSize,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HealthCheck)

	r.Route("/api/datasets", func(r chi.Router) {
		r.Get("/", h.ListDatasets)
		r.Post("/", h.Upload)
		r.Post("/from-db", h.LoadFromDB)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetDataset)
			r.Delete("/", h.DeleteDataset)
			r.Get("/preview", h.GetPreview)
			r.Put("/columns/{name}/role", h.SetColumnRole)
			r.Patch("/config", h.UpdateConfig)
			r.Post("/process", h.Process)
			r.Get("/splits/{split}", h.GetSplit)
			r.Get("/export.csv", h.ExportCSV)
			r.Post("/transform", h.Transform)
			r.Post("/train", h.Train)
			r.Post("/predict", h.Predict)
		})
	})
}

// ============================================================================
// Health
// ============================================================================

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

// ============================================================================
// Loading
// ============================================================================

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.MaxFileSize); err != nil {
		http.Error(w, "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "No file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		http.Error(w, "Only CSV files are allowed", http.StatusBadRequest)
		return
	}

	table, err := h.CSVService.Parse(file)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse CSV: %v", err), http.StatusBadRequest)
		return
	}

	name := r.FormValue("name")
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
	}

	h.createDataset(w, r, name, table.Headers, table.Rows)
}

// LoadFromDB reads a Postgres table and registers it as a dataset
func (h *Handler) LoadFromDB(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Connection *datasource.Config `json:"connection,omitempty"`
		Table      string             `json:"table"`
		Limit      int                `json:"limit"`
		Name       string             `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Table == "" {
		http.Error(w, "table is required", http.StatusBadRequest)
		return
	}

	cfg := h.DefaultSource
	if req.Connection != nil {
		cfg = *req.Connection
	}
	limit := req.Limit
	if limit <= 0 || limit > h.MaxTableRows {
		limit = h.MaxTableRows
	}

	src, err := h.OpenSource(r.Context(), cfg)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to connect: %v", err), http.StatusBadGateway)
		return
	}
	defer src.Close()

	headers, rows, err := src.LoadTable(r.Context(), req.Table, limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("Error fetching data: %v", err), http.StatusBadRequest)
		return
	}

	name := req.Name
	if name == "" {
		name = req.Table
	}
	h.createDataset(w, r, name, headers, rows)
}

func (h *Handler) createDataset(w http.ResponseWriter, r *http.Request, name string, headers []string, rows []models.RawRow) {
	d, err := h.Store.Create(r.Context(), name, headers, rows)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, models.UploadResponse{
		Message:     fmt.Sprintf("Dataset '%s' loaded successfully", name),
		ID:          d.ID,
		Rows:        d.TotalRows,
		Columns:     d.TotalColumns,
		ColumnNames: d.Headers,
		ColumnInfo:  d.Columns,
	})
}

// ============================================================================
// Dataset state
// ============================================================================

func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	datasets, err := h.Store.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"datasets": datasets})
}

func (h *Handler) GetDataset(w http.ResponseWriter, r *http.Request) {
	d, err := h.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewDatasetInfo(d))
}

func (h *Handler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Clear(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetPreview(w http.ResponseWriter, r *http.Request) {
	d, err := h.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	limit := getIntParam(r, "rows", 10)
	cleaned := r.URL.Query().Get("cleaned") == "true"

	rows := d.Original
	if cleaned {
		if d.Cleaned == nil {
			http.Error(w, state.ErrNotProcessed.Error(), http.StatusConflict)
			return
		}
		rows = d.Cleaned
	}
	if limit < 0 || limit > len(rows) {
		limit = len(rows)
	}

	writeJSON(w, http.StatusOK, models.PreviewResponse{
		Rows:    rows[:limit],
		Total:   len(rows),
		Cleaned: cleaned,
	})
}

func (h *Handler) SetColumnRole(w http.ResponseWriter, r *http.Request) {
	var req models.RoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	d, err := h.Store.SetRole(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "name"), req.Role)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewDatasetInfo(d))
}

func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var patch models.ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	d, err := h.Store.UpdateConfig(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.NewDatasetInfo(d))
}

// ============================================================================
// Processing
// ============================================================================

func (h *Handler) Process(w http.ResponseWriter, r *http.Request) {
	d, result, err := h.Store.Process(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.ProcessResponse{
		DatasetID:      d.ID,
		TrainRows:      len(result.Train.X),
		ValidationRows: len(result.Validation.X),
		TestRows:       len(result.Test.X),
		FeatureNames:   result.FeatureNames(),
		TaskType:       result.TaskType,
		TargetClasses:  result.TargetClasses,
		YOneHot:        result.YOneHot,
		RemovedRows:    result.RemovedRows,
		DroppedRows:    result.DroppedRows,
	})
}

// GetSplit returns the last published splits, even when the dataset has been
// edited since.
func (h *Handler) GetSplit(w http.ResponseWriter, r *http.Request) {
	d, err := h.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if d.TrainData == nil {
		writeError(w, state.ErrNotProcessed)
		return
	}

	switch split := chi.URLParam(r, "split"); split {
	case "train":
		writeJSON(w, http.StatusOK, d.TrainData)
	case "validation":
		writeJSON(w, http.StatusOK, d.ValidationData)
	case "test":
		writeJSON(w, http.StatusOK, d.TestData)
	default:
		http.Error(w, fmt.Sprintf("Unknown split %q", split), http.StatusBadRequest)
	}
}

func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	d, result, err := h.Store.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", d.DatasetName+"_processed.csv"))
	if err := preprocess.ExportTrainingCSV(w, result, d.PreprocessingConfig.TargetColumn); err != nil {
		logger.Error("Failed to export training table", logger.Dataset(d.ID), zap.Error(err))
	}
}

// ============================================================================
// Inference
// ============================================================================

func (h *Handler) Transform(w http.ResponseWriter, r *http.Request) {
	var req models.TransformRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	resp, err := h.transform(r.Context(), chi.URLParam(r, "id"), req, true)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) transform(ctx context.Context, id string, req models.TransformRequest, scaleInstances bool) (*models.TransformResponse, error) {
	if len(req.Records) > 0 && len(req.Instances) > 0 {
		return nil, &preprocess.ConfigurationError{Problems: []string{"send either instances or records, not both"}}
	}

	t, err := h.Store.Transformer(ctx, id, req.FeatureNames)
	if err != nil {
		return nil, err
	}
	resp := &models.TransformResponse{FeatureNames: t.FeatureNames}

	if len(req.Records) > 0 {
		resp.Instances = make([][]float64, len(req.Records))
		var problems []string
		for i, record := range req.Records {
			instance, mismatches, err := t.EncodeRecord(record)
			if err != nil {
				problems = append(problems, fmt.Sprintf("record %d: %v", i, err))
				continue
			}
			resp.Instances[i] = instance
			for _, m := range mismatches {
				metrics.UnseenCategories.WithLabelValues(m.Column).Inc()
				resp.Mismatches = append(resp.Mismatches, models.EncodingMismatch{Record: i, Column: m.Column, Value: m.Value})
			}
		}
		if len(problems) > 0 {
			return nil, &preprocess.ConfigurationError{Problems: problems}
		}
		return resp, nil
	}

	if !scaleInstances {
		resp.Instances = req.Instances
		return resp, nil
	}
	instances, err := t.TransformAll(req.Instances)
	if err != nil {
		return nil, &preprocess.ConfigurationError{Problems: []string{err.Error()}}
	}
	resp.Instances = instances
	return resp, nil
}

func (h *Handler) Train(w http.ResponseWriter, r *http.Request) {
	if h.Trainer == nil {
		http.Error(w, "Trainer is not configured", http.StatusServiceUnavailable)
		return
	}

	var req models.TrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.GraphID == "" {
		http.Error(w, "graphId is required", http.StatusBadRequest)
		return
	}

	d, result, err := h.Store.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	job, err := h.Trainer.StartTraining(r.Context(), req.GraphID, result, d.PreprocessingConfig.TargetColumn)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if h.Trainer == nil {
		http.Error(w, "Trainer is not configured", http.StatusServiceUnavailable)
		return
	}

	var req models.PredictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.JobID == "" {
		http.Error(w, "jobId is required", http.StatusBadRequest)
		return
	}

	transformed, err := h.transform(r.Context(), chi.URLParam(r, "id"), req.TransformRequest, req.ApplyNormalization)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := h.Trainer.Predict(r.Context(), req.JobID, transformed.Instances)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"predictions": resp.Predictions,
		"mismatches":  transformed.Mismatches,
	})
}

// ============================================================================
// Helpers
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, err error) {
	var cfgErr *preprocess.ConfigurationError
	var statusErr *trainer.StatusError

	switch {
	case errors.As(err, &cfgErr):
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":    cfgErr.Error(),
			"problems": cfgErr.Problems,
		})
	case errors.Is(err, state.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, state.ErrNotProcessed),
		errors.Is(err, state.ErrRunInProgress),
		errors.Is(err, state.ErrStaleRun):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &statusErr):
		http.Error(w, err.Error(), http.StatusBadGateway)
	default:
		logger.Error("Request failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func getIntParam(r *http.Request, name string, defaultVal int) int {
	valStr := r.URL.Query().Get(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

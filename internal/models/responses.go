package models

import "time"

// UploadResponse is returned after a dataset is loaded
type UploadResponse struct {
	Message     string       `json:"message"`
	ID          string       `json:"id"`
	Rows        int          `json:"rows"`
	Columns     int          `json:"columns"`
	ColumnNames []string     `json:"columnNames"`
	ColumnInfo  []ColumnInfo `json:"columnInfo"`
}

// DatasetInfo is a dataset without its row data
type DatasetInfo struct {
	ID                  string              `json:"id"`
	DatasetName         string              `json:"datasetName"`
	Headers             []string            `json:"headers"`
	Columns             []ColumnInfo        `json:"columns"`
	PreprocessingConfig PreprocessingConfig `json:"preprocessingConfig"`
	TotalRows           int                 `json:"totalRows"`
	TotalColumns        int                 `json:"totalColumns"`
	IsProcessed         bool                `json:"isProcessed"`
	HasSplits           bool                `json:"hasSplits"`
	TaskType            TaskType            `json:"taskType,omitempty"`
	TargetClasses       []string            `json:"targetClasses,omitempty"`
	YOneHot             bool                `json:"yOneHot"`
	CreatedAt           time.Time           `json:"createdAt"`
	UpdatedAt           time.Time           `json:"updatedAt"`
}

func NewDatasetInfo(d *ProcessedDataset) DatasetInfo {
	return DatasetInfo{
		ID:                  d.ID,
		DatasetName:         d.DatasetName,
		Headers:             d.Headers,
		Columns:             d.Columns,
		PreprocessingConfig: d.PreprocessingConfig,
		TotalRows:           d.TotalRows,
		TotalColumns:        d.TotalColumns,
		IsProcessed:         d.IsProcessed,
		HasSplits:           d.TrainData != nil,
		TaskType:            d.TaskType,
		TargetClasses:       d.TargetClasses,
		YOneHot:             d.YOneHot,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

// PreviewResponse is returned by the preview endpoint
type PreviewResponse struct {
	Rows    []RawRow `json:"rows"`
	Total   int      `json:"total"`
	Cleaned bool     `json:"cleaned"`
}

// ProcessResponse summarises a finished preprocessing run
type ProcessResponse struct {
	DatasetID      string   `json:"datasetId"`
	TrainRows      int      `json:"trainRows"`
	ValidationRows int      `json:"validationRows"`
	TestRows       int      `json:"testRows"`
	FeatureNames   []string `json:"featureNames"`
	TaskType       TaskType `json:"taskType"`
	TargetClasses  []string `json:"targetClasses,omitempty"`
	YOneHot        bool     `json:"yOneHot"`
	RemovedRows    int      `json:"removedRows"`
	DroppedRows    int      `json:"droppedRows"`
}

// RoleRequest changes the role of one column
type RoleRequest struct {
	Role ColumnRole `json:"role"`
}

// TransformRequest carries inference inputs. Instances are numeric vectors
// aligned to FeatureNames; Records are raw values keyed by column.
type TransformRequest struct {
	FeatureNames []string    `json:"featureNames,omitempty"`
	Instances    [][]float64 `json:"instances,omitempty"`
	Records      []RawRow    `json:"records,omitempty"`
}

// EncodingMismatch reports a value unseen during preprocessing
type EncodingMismatch struct {
	Record int    `json:"record"`
	Column string `json:"column"`
	Value  string `json:"value"`
}

type TransformResponse struct {
	FeatureNames []string           `json:"featureNames"`
	Instances    [][]float64        `json:"instances"`
	Mismatches   []EncodingMismatch `json:"mismatches,omitempty"`
}

// TrainRequest starts a remote training job on a graph
type TrainRequest struct {
	GraphID string `json:"graphId"`
}

// PredictRequest forwards inputs to a finished training job. Records are
// always encoded; instances are scaled only when ApplyNormalization is set.
type PredictRequest struct {
	JobID              string `json:"jobId"`
	ApplyNormalization bool   `json:"applyNormalization"`
	TransformRequest
}

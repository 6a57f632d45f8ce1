package models

import "time"

// RawRow maps a column name to its raw string value
type RawRow map[string]string

// ColumnType is the semantic type inferred for a column
type ColumnType string

const (
	ColumnTypeNumeric     ColumnType = "numeric"
	ColumnTypeCategorical ColumnType = "categorical"
	ColumnTypeText        ColumnType = "text"
)

// ColumnRole decides how a column takes part in training
type ColumnRole string

const (
	RoleFeature ColumnRole = "feature"
	RoleTarget  ColumnRole = "target"
	RoleIgnore  ColumnRole = "ignore"
)

func (r ColumnRole) Valid() bool {
	switch r {
	case RoleFeature, RoleTarget, RoleIgnore:
		return true
	}
	return false
}

// ColumnInfo holds the inferred type and basic statistics of a column
type ColumnInfo struct {
	Name         string     `json:"name"`
	Type         ColumnType `json:"type"`
	Role         ColumnRole `json:"role"`
	MissingCount int        `json:"missingCount"`
	UniqueCount  int        `json:"uniqueCount"`
	Samples      []string   `json:"samples"`
}

// FindColumn returns the column with the given name, or nil
func FindColumn(columns []ColumnInfo, name string) *ColumnInfo {
	for i := range columns {
		if columns[i].Name == name {
			return &columns[i]
		}
	}
	return nil
}

// Split is one row-aligned partition of the numeric dataset
type Split struct {
	X [][]float64 `json:"X"`
	Y []float64   `json:"y"`
}

// TrainSplit is the training partition; it also records the feature order
type TrainSplit struct {
	Split
	FeatureNames []string `json:"featureNames"`
}

// ProcessedDataset is a loaded dataset together with its preprocessing state.
// Stored values are treated as immutable snapshots: edits produce a new value.
type ProcessedDataset struct {
	ID                  string              `json:"id"`
	DatasetName         string              `json:"datasetName"`
	Original            []RawRow            `json:"original"`
	Headers             []string            `json:"headers"`
	Cleaned             []RawRow            `json:"cleaned,omitempty"`
	Columns             []ColumnInfo        `json:"columns"`
	PreprocessingConfig PreprocessingConfig `json:"preprocessingConfig"`

	TrainData      *TrainSplit `json:"trainData,omitempty"`
	ValidationData *Split      `json:"validationData,omitempty"`
	TestData       *Split      `json:"testData,omitempty"`

	TaskType      TaskType `json:"taskType,omitempty"`
	TargetClasses []string `json:"targetClasses,omitempty"`
	YOneHot       bool     `json:"yOneHot"`

	TotalRows    int       `json:"totalRows"`
	TotalColumns int       `json:"totalColumns"`
	IsProcessed  bool      `json:"isProcessed"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Clone returns a shallow copy with its own Columns slice, so edits to the
// copy never leak into a published snapshot.
func (d *ProcessedDataset) Clone() *ProcessedDataset {
	c := *d
	c.Columns = make([]ColumnInfo, len(d.Columns))
	copy(c.Columns, d.Columns)
	return &c
}

// DatasetSummary is a listing entry
type DatasetSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	IsProcessed bool      `json:"isProcessed"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

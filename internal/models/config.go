package models

// CategoricalEncoding controls how categorical feature columns become numbers
type CategoricalEncoding string

const (
	EncodingOneHot CategoricalEncoding = "one-hot"
	EncodingLabel  CategoricalEncoding = "label"
	EncodingRemove CategoricalEncoding = "remove"
)

func (e CategoricalEncoding) Valid() bool {
	switch e {
	case EncodingOneHot, EncodingLabel, EncodingRemove:
		return true
	}
	return false
}

// TargetEncoding controls how a categorical target is handed to the trainer.
// The target is always label encoded in y; one-hot only tells the trainer to
// expand it.
type TargetEncoding string

const (
	TargetLabel  TargetEncoding = "label"
	TargetOneHot TargetEncoding = "one-hot"
)

func (e TargetEncoding) Valid() bool {
	switch e {
	case TargetLabel, TargetOneHot:
		return true
	}
	return false
}

// MissingValueStrategy is the dataset-wide imputation policy
type MissingValueStrategy string

const (
	MissingRemoveRows MissingValueStrategy = "remove-rows"
	MissingFillMean   MissingValueStrategy = "fill-mean"
	MissingFillMedian MissingValueStrategy = "fill-median"
	MissingFillMode   MissingValueStrategy = "fill-mode"
	MissingFillZero   MissingValueStrategy = "fill-zero"
)

func (s MissingValueStrategy) Valid() bool {
	switch s {
	case MissingRemoveRows, MissingFillMean, MissingFillMedian, MissingFillMode, MissingFillZero:
		return true
	}
	return false
}

// NormalizationMethod selects the feature scaler
type NormalizationMethod string

const (
	NormalizeStandard NormalizationMethod = "standard"
	NormalizeMinMax   NormalizationMethod = "minmax"
	NormalizeNone     NormalizationMethod = "none"
)

func (m NormalizationMethod) Valid() bool {
	switch m {
	case NormalizeStandard, NormalizeMinMax, NormalizeNone:
		return true
	}
	return false
}

// ScalingScope selects which rows the scaler statistics are fitted on
type ScalingScope string

const (
	// ScopeDataset fits on every row that survives row removal, before the split.
	ScopeDataset ScalingScope = "dataset"
	// ScopeTrain fits on the training split only.
	ScopeTrain ScalingScope = "train"
)

func (s ScalingScope) Valid() bool {
	switch s {
	case ScopeDataset, ScopeTrain:
		return true
	}
	return false
}

// TaskType is the learning problem the target implies
type TaskType string

const (
	TaskClassification TaskType = "classification"
	TaskRegression     TaskType = "regression"
	TaskAuto           TaskType = "auto"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskClassification, TaskRegression, TaskAuto:
		return true
	}
	return false
}

// PreprocessingConfig is passed by value; edits go through Apply
type PreprocessingConfig struct {
	CategoricalEncoding  CategoricalEncoding  `json:"categoricalEncoding"`
	TargetEncoding       TargetEncoding       `json:"targetEncoding"`
	MissingValueStrategy MissingValueStrategy `json:"missingValueStrategy"`
	NormalizationMethod  NormalizationMethod  `json:"normalizationMethod"`
	ScalingScope         ScalingScope         `json:"scalingScope"`

	TrainSplit      float64 `json:"trainSplit"`
	ValidationSplit float64 `json:"validationSplit"`
	TestSplit       float64 `json:"testSplit"`
	RandomSeed      int64   `json:"randomSeed"`

	TargetColumn string   `json:"targetColumn"`
	TaskType     TaskType `json:"taskType"`
}

// DefaultConfig is the configuration a freshly loaded dataset starts with
func DefaultConfig() PreprocessingConfig {
	return PreprocessingConfig{
		CategoricalEncoding:  EncodingOneHot,
		TargetEncoding:       TargetLabel,
		MissingValueStrategy: MissingFillMean,
		NormalizationMethod:  NormalizeStandard,
		ScalingScope:         ScopeDataset,
		TrainSplit:           0.7,
		ValidationSplit:      0.15,
		TestSplit:            0.15,
		RandomSeed:           42,
		TaskType:             TaskAuto,
	}
}

// ConfigPatch is a partial update; nil fields are left unchanged
type ConfigPatch struct {
	CategoricalEncoding  *CategoricalEncoding  `json:"categoricalEncoding,omitempty"`
	TargetEncoding       *TargetEncoding       `json:"targetEncoding,omitempty"`
	MissingValueStrategy *MissingValueStrategy `json:"missingValueStrategy,omitempty"`
	NormalizationMethod  *NormalizationMethod  `json:"normalizationMethod,omitempty"`
	ScalingScope         *ScalingScope         `json:"scalingScope,omitempty"`
	TrainSplit           *float64              `json:"trainSplit,omitempty"`
	ValidationSplit      *float64              `json:"validationSplit,omitempty"`
	TestSplit            *float64              `json:"testSplit,omitempty"`
	RandomSeed           *int64                `json:"randomSeed,omitempty"`
	TargetColumn         *string               `json:"targetColumn,omitempty"`
	TaskType             *TaskType             `json:"taskType,omitempty"`
}

// Apply returns a copy of c with the non-nil patch fields applied
func (c PreprocessingConfig) Apply(p ConfigPatch) PreprocessingConfig {
	if p.CategoricalEncoding != nil {
		c.CategoricalEncoding = *p.CategoricalEncoding
	}
	if p.TargetEncoding != nil {
		c.TargetEncoding = *p.TargetEncoding
	}
	if p.MissingValueStrategy != nil {
		c.MissingValueStrategy = *p.MissingValueStrategy
	}
	if p.NormalizationMethod != nil {
		c.NormalizationMethod = *p.NormalizationMethod
	}
	if p.ScalingScope != nil {
		c.ScalingScope = *p.ScalingScope
	}
	if p.TrainSplit != nil {
		c.TrainSplit = *p.TrainSplit
	}
	if p.ValidationSplit != nil {
		c.ValidationSplit = *p.ValidationSplit
	}
	if p.TestSplit != nil {
		c.TestSplit = *p.TestSplit
	}
	if p.RandomSeed != nil {
		c.RandomSeed = *p.RandomSeed
	}
	if p.TargetColumn != nil {
		c.TargetColumn = *p.TargetColumn
	}
	if p.TaskType != nil {
		c.TaskType = *p.TaskType
	}
	return c
}

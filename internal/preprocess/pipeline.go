package preprocess

import (
	"math"
	"strconv"

	"go.uber.org/zap"

	"dataset-engine/internal/analysis"
	"dataset-engine/internal/logger"
	"dataset-engine/internal/models"
)

// splitTolerance is how far the three split ratios may drift from 1
const splitTolerance = 0.01

// FeatureKind tells how an output feature was derived from its column
type FeatureKind string

const (
	FeatureNumeric FeatureKind = "numeric"
	FeatureLabel   FeatureKind = "label"
	FeatureOneHot  FeatureKind = "one-hot"
)

// FeatureSpec describes one column of X
type FeatureSpec struct {
	Name     string      `json:"name"`
	Column   string      `json:"column"`
	Kind     FeatureKind `json:"kind"`
	Category string      `json:"category,omitempty"`
}

// Result is the output of a preprocessing run
type Result struct {
	Cleaned    []models.RawRow   `json:"cleaned"`
	Train      models.TrainSplit `json:"train"`
	Validation models.Split      `json:"validation"`
	Test       models.Split      `json:"test"`

	Features []FeatureSpec `json:"features"`
	// Scalers is keyed by feature name and only holds numeric-origin features
	Scalers map[string]Scaler `json:"scalers"`
	// Encoders is keyed by source column for label and one-hot features
	Encoders map[string]*CategoryEncoder `json:"encoders"`
	// FillValues holds the imputed value per numeric column, when finite
	FillValues map[string]float64 `json:"fillValues"`
	// Modes holds the most frequent value per categorical and text column
	Modes map[string]string `json:"modes"`

	TaskType      models.TaskType `json:"taskType"`
	TargetClasses []string        `json:"targetClasses,omitempty"`
	YOneHot       bool            `json:"yOneHot"`

	InputRows   int `json:"inputRows"`
	RemovedRows int `json:"removedRows"`
	DroppedRows int `json:"droppedRows"`
}

// FeatureNames lists the X columns in order
func (r *Result) FeatureNames() []string {
	names := make([]string, len(r.Features))
	for i, f := range r.Features {
		names[i] = f.Name
	}
	return names
}

// SplitFractions returns the validation and test share of the rows that
// reached the splitter, rounded to 4 decimals.
func (r *Result) SplitFractions() (validation, test float64) {
	total := len(r.Train.X) + len(r.Validation.X) + len(r.Test.X)
	if total == 0 {
		return 0, 0
	}
	round := func(v float64) float64 { return math.Round(v*1e4) / 1e4 }
	return round(float64(len(r.Validation.X)) / float64(total)),
		round(float64(len(r.Test.X)) / float64(total))
}

// FeatureColumns returns the feature-role columns, excluding the target
func FeatureColumns(columns []models.ColumnInfo, target string) []models.ColumnInfo {
	var features []models.ColumnInfo
	for _, c := range columns {
		if c.Role == models.RoleFeature && c.Name != target {
			features = append(features, c)
		}
	}
	return features
}

// Validate checks every precondition of Process and reports all failures
// together. It returns nil when the run may proceed.
func Validate(columns []models.ColumnInfo, cfg models.PreprocessingConfig) error {
	cerr := &ConfigurationError{}

	if !cfg.CategoricalEncoding.Valid() {
		cerr.add("unknown categorical encoding %q", cfg.CategoricalEncoding)
	}
	if !cfg.TargetEncoding.Valid() {
		cerr.add("unknown target encoding %q", cfg.TargetEncoding)
	}
	if !cfg.MissingValueStrategy.Valid() {
		cerr.add("unknown missing value strategy %q", cfg.MissingValueStrategy)
	}
	if !cfg.NormalizationMethod.Valid() {
		cerr.add("unknown normalization method %q", cfg.NormalizationMethod)
	}
	if !cfg.ScalingScope.Valid() {
		cerr.add("unknown scaling scope %q", cfg.ScalingScope)
	}
	if !cfg.TaskType.Valid() {
		cerr.add("unknown task type %q", cfg.TaskType)
	}

	total := cfg.TrainSplit + cfg.ValidationSplit + cfg.TestSplit
	if cfg.TrainSplit < 0 || cfg.ValidationSplit < 0 || cfg.TestSplit < 0 || math.Abs(total-1.0) > splitTolerance {
		cerr.add("train/validation/test splits must sum to 1.0 (got %.4f)", total)
	}

	if cfg.TargetColumn == "" {
		cerr.add("target column must be selected")
	} else if models.FindColumn(columns, cfg.TargetColumn) == nil {
		cerr.add("target column %q does not exist", cfg.TargetColumn)
	}

	if len(FeatureColumns(columns, cfg.TargetColumn)) == 0 {
		cerr.add("at least one feature column must be selected")
	}

	if len(cerr.Problems) > 0 {
		return cerr
	}
	return nil
}

// ResolveTaskType turns auto into regression for a numeric target and
// classification otherwise.
func ResolveTaskType(cfg models.PreprocessingConfig, columns []models.ColumnInfo) models.TaskType {
	if cfg.TaskType != models.TaskAuto {
		return cfg.TaskType
	}
	if t := models.FindColumn(columns, cfg.TargetColumn); t != nil && t.Type == models.ColumnTypeNumeric {
		return models.TaskRegression
	}
	return models.TaskClassification
}

// featureColumn is one column of X before scaling, indexed by position in
// the surviving row list.
type featureColumn struct {
	spec   FeatureSpec
	values []float64
}

// Process turns rows into numeric train/validation/test splits. It is a pure
// function of its inputs: the same rows, columns and config always produce
// the same result.
func Process(rows []models.RawRow, columns []models.ColumnInfo, cfg models.PreprocessingConfig) (*Result, error) {
	if err := Validate(columns, cfg); err != nil {
		return nil, err
	}

	target := *models.FindColumn(columns, cfg.TargetColumn)
	features := FeatureColumns(columns, cfg.TargetColumn)
	removeRows := cfg.MissingValueStrategy == models.MissingRemoveRows

	// kept holds the original index of every surviving row; all per-row
	// arrays below are addressed by position in kept.
	var kept []int
	if removeRows {
		kept = FilterCompleteRows(rows, features, target.Name)
	} else {
		kept = make([]int, len(rows))
		for i := range rows {
			kept[i] = i
		}
	}

	result := &Result{
		Cleaned:     make([]models.RawRow, len(kept)),
		Scalers:     make(map[string]Scaler),
		Encoders:    make(map[string]*CategoryEncoder),
		FillValues:  make(map[string]float64),
		Modes:       make(map[string]string),
		TaskType:    ResolveTaskType(cfg, columns),
		YOneHot:     cfg.TargetEncoding == models.TargetOneHot,
		InputRows:   len(rows),
		RemovedRows: len(rows) - len(kept),
	}
	for pos, idx := range kept {
		row := make(models.RawRow, len(rows[idx]))
		for k, v := range rows[idx] {
			row[k] = v
		}
		result.Cleaned[pos] = row
	}

	var cols []featureColumn
	for _, col := range features {
		switch col.Type {
		case models.ColumnTypeNumeric:
			values := numericColumn(result, col.Name, cfg.MissingValueStrategy)
			cols = append(cols, featureColumn{
				spec:   FeatureSpec{Name: col.Name, Column: col.Name, Kind: FeatureNumeric},
				values: values,
			})
		case models.ColumnTypeCategorical:
			if cfg.CategoricalEncoding == models.EncodingRemove {
				continue
			}
			values := categoricalColumn(result, col.Name, !removeRows)
			enc := FitCategories(values)
			result.Encoders[col.Name] = enc
			cols = append(cols, encodeColumn(col.Name, values, enc, cfg.CategoricalEncoding)...)
		case models.ColumnTypeText:
			// free text has no category order worth expanding; it is always
			// mode filled and label encoded
			values := categoricalColumn(result, col.Name, true)
			enc := FitCategories(values)
			result.Encoders[col.Name] = enc
			cols = append(cols, encodeColumn(col.Name, values, enc, models.EncodingLabel)...)
		}
	}

	var y []float64
	if target.Type == models.ColumnTypeNumeric {
		y = numericColumn(result, target.Name, cfg.MissingValueStrategy)
	} else {
		values := categoricalColumn(result, target.Name, true)
		enc := FitCategories(values)
		result.TargetClasses = enc.Categories
		y = make([]float64, len(values))
		for i, v := range values {
			y[i], _ = enc.Label(v)
		}
	}

	// Rows that still hold a non-finite value are dropped silently.
	valid := make([]int, 0, len(kept))
	for pos := range kept {
		if err := checkRow(cols, y, pos, kept[pos], target.Name); err != nil {
			logger.Debug("Dropping row", zap.Error(err))
			continue
		}
		valid = append(valid, pos)
	}
	result.DroppedRows = len(kept) - len(valid)

	parts, err := SplitPairs(valid, cfg.TrainSplit, cfg.ValidationSplit, cfg.TestSplit, cfg.RandomSeed)
	if err != nil {
		return nil, err
	}

	if cfg.NormalizationMethod != models.NormalizeNone {
		for i := range cols {
			c := &cols[i]
			if c.spec.Kind != FeatureNumeric {
				continue
			}
			// dataset scope fits on every row that survived row removal,
			// including rows the sanity filter dropped
			fitValues := c.values
			if cfg.ScalingScope == models.ScopeTrain {
				fitValues = selectRows(c.values, parts.Train)
			}
			scaler := FitScaler(fitValues, cfg.NormalizationMethod)
			result.Scalers[c.spec.Name] = scaler
			c.values = scaler.TransformAll(c.values)
		}
	}

	for _, c := range cols {
		result.Features = append(result.Features, c.spec)
	}
	result.Train = models.TrainSplit{
		Split:        assemble(cols, y, parts.Train),
		FeatureNames: result.FeatureNames(),
	}
	result.Validation = assemble(cols, y, parts.Validation)
	result.Test = assemble(cols, y, parts.Test)

	logger.Info("Dataset processed",
		zap.Int("input_rows", result.InputRows),
		zap.Int("removed_rows", result.RemovedRows),
		zap.Int("dropped_rows", result.DroppedRows),
		zap.Int("features", len(result.Features)),
		zap.Int("train", len(result.Train.X)),
		zap.Int("validation", len(result.Validation.X)),
		zap.Int("test", len(result.Test.X)),
	)
	return result, nil
}

// numericColumn parses a column of the cleaned rows and imputes it unless
// rows were already removed. Imputed values are written back to the
// cleaned preview.
func numericColumn(result *Result, name string, strategy models.MissingValueStrategy) []float64 {
	values := make([]float64, len(result.Cleaned))
	for pos, row := range result.Cleaned {
		if f, ok := analysis.ParseNumber(row[name]); ok {
			values[pos] = f
		} else {
			values[pos] = math.NaN()
		}
	}

	numStrategy, fill := NumericStrategyFor(strategy)
	if !fill {
		return values
	}
	fillValue := NumericFillValue(values, numStrategy)
	if math.IsNaN(fillValue) {
		return values
	}
	result.FillValues[name] = fillValue
	formatted := strconv.FormatFloat(fillValue, 'f', -1, 64)
	for pos, v := range values {
		if math.IsNaN(v) {
			values[pos] = fillValue
			result.Cleaned[pos][name] = formatted
		}
	}
	return values
}

// categoricalColumn reads a column of the cleaned rows. With fill set, blanks
// become the mode and are written back; otherwise they become MissingCategory.
func categoricalColumn(result *Result, name string, fill bool) []string {
	raw := make([]string, len(result.Cleaned))
	for pos, row := range result.Cleaned {
		raw[pos] = row[name]
	}
	result.Modes[name] = Mode(raw)
	if !fill {
		for pos, v := range raw {
			if analysis.IsMissing(v) {
				raw[pos] = MissingCategory
			}
		}
		return raw
	}
	filled := FillCategorical(raw, CategoricalMode)
	for pos, v := range filled {
		result.Cleaned[pos][name] = v
	}
	return filled
}

func encodeColumn(name string, values []string, enc *CategoryEncoder, encoding models.CategoricalEncoding) []featureColumn {
	switch encoding {
	case models.EncodingOneHot:
		out := make([]featureColumn, len(enc.Categories))
		for k, cat := range enc.Categories {
			out[k] = featureColumn{
				spec:   FeatureSpec{Name: OneHotFeatureName(name, cat), Column: name, Kind: FeatureOneHot, Category: cat},
				values: make([]float64, len(values)),
			}
		}
		for pos, v := range values {
			if k, ok := enc.Index(v); ok {
				out[k].values[pos] = 1
			}
		}
		return out
	case models.EncodingLabel:
		encoded := make([]float64, len(values))
		for pos, v := range values {
			encoded[pos], _ = enc.Label(v)
		}
		return []featureColumn{{
			spec:   FeatureSpec{Name: name, Column: name, Kind: FeatureLabel},
			values: encoded,
		}}
	case models.EncodingRemove:
	}
	return nil
}

func checkRow(cols []featureColumn, y []float64, pos, row int, target string) error {
	for _, c := range cols {
		if v := c.values[pos]; math.IsNaN(v) || math.IsInf(v, 0) {
			return &DataIntegrityError{Row: row, Column: c.spec.Column}
		}
	}
	if math.IsNaN(y[pos]) || math.IsInf(y[pos], 0) {
		return &DataIntegrityError{Row: row, Column: target}
	}
	return nil
}

func selectRows(values []float64, positions []int) []float64 {
	out := make([]float64, len(positions))
	for i, pos := range positions {
		out[i] = values[pos]
	}
	return out
}

func assemble(cols []featureColumn, y []float64, positions []int) models.Split {
	split := models.Split{
		X: make([][]float64, len(positions)),
		Y: make([]float64, len(positions)),
	}
	for i, pos := range positions {
		row := make([]float64, len(cols))
		for c := range cols {
			row[c] = cols[c].values[pos]
		}
		split.X[i] = row
		split.Y[i] = y[pos]
	}
	return split
}

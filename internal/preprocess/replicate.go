package preprocess

import (
	"fmt"

	"dataset-engine/internal/analysis"
	"dataset-engine/internal/models"
)

// InstanceTransformer replays the preprocessing of a dataset on new inputs.
// It is rebuilt from the original rows and config rather than from stored
// splits, so its parameters are the ones Process used.
type InstanceTransformer struct {
	FeatureNames []string `json:"featureNames"`
	// Scalers is aligned to FeatureNames; nil entries pass values through
	Scalers []*Scaler `json:"scalers"`

	features   []FeatureSpec
	encoders   map[string]*CategoryEncoder
	fillValues map[string]float64
	modes      map[string]string
}

// Replicate recomputes scaling parameters for featureNames from the original
// dataset and config. Only features whose name is a numeric column get a
// scaler; encoded and unknown features are passed through unscaled. An empty
// featureNames uses the feature order Process produces.
func Replicate(rows []models.RawRow, columns []models.ColumnInfo, cfg models.PreprocessingConfig, featureNames []string) (*InstanceTransformer, error) {
	result, err := Process(rows, columns, cfg)
	if err != nil {
		return nil, err
	}
	return NewInstanceTransformer(result, columns, featureNames), nil
}

// NewInstanceTransformer builds a transformer from a finished run
func NewInstanceTransformer(result *Result, columns []models.ColumnInfo, featureNames []string) *InstanceTransformer {
	if len(featureNames) == 0 {
		featureNames = result.FeatureNames()
	}

	t := &InstanceTransformer{
		FeatureNames: append([]string(nil), featureNames...),
		Scalers:      make([]*Scaler, len(featureNames)),
		features:     make([]FeatureSpec, len(featureNames)),
		encoders:     result.Encoders,
		fillValues:   result.FillValues,
		modes:        result.Modes,
	}

	specs := make(map[string]FeatureSpec, len(result.Features))
	for _, f := range result.Features {
		specs[f.Name] = f
	}

	for i, name := range featureNames {
		spec, ok := specs[name]
		if !ok {
			spec = FeatureSpec{Name: name, Column: name, Kind: FeatureNumeric}
		}
		t.features[i] = spec

		col := models.FindColumn(columns, name)
		if col == nil || col.Type != models.ColumnTypeNumeric {
			continue
		}
		if s, ok := result.Scalers[name]; ok {
			s := s
			t.Scalers[i] = &s
		}
	}
	return t
}

// Transform scales one instance aligned to FeatureNames
func (t *InstanceTransformer) Transform(instance []float64) ([]float64, error) {
	if len(instance) != len(t.FeatureNames) {
		return nil, fmt.Errorf("instance has %d values, expected %d", len(instance), len(t.FeatureNames))
	}
	out := make([]float64, len(instance))
	for i, v := range instance {
		if s := t.Scalers[i]; s != nil {
			out[i] = s.Transform(v)
		} else {
			out[i] = v
		}
	}
	return out, nil
}

// TransformAll scales a batch of instances
func (t *InstanceTransformer) TransformAll(instances [][]float64) ([][]float64, error) {
	out := make([][]float64, len(instances))
	for i, inst := range instances {
		row, err := t.Transform(inst)
		if err != nil {
			return nil, fmt.Errorf("instance %d: %w", i, err)
		}
		out[i] = row
	}
	return out, nil
}

// EncodeRecord turns a raw record keyed by column name into a scaled
// instance. Blanks take the value training filled them with. Categories
// unseen during preprocessing do not fail: they encode to -1 (label) or the
// zero vector (one-hot) and are reported as mismatches. A numeric value that
// is missing or unparseable with no fill value is an error.
func (t *InstanceTransformer) EncodeRecord(record models.RawRow) ([]float64, []*EncodingMismatchError, error) {
	var mismatches []*EncodingMismatchError
	reported := make(map[string]bool)
	out := make([]float64, len(t.features))

	for i, f := range t.features {
		raw := record[f.Column]
		switch f.Kind {
		case FeatureNumeric:
			v, ok := analysis.ParseNumber(raw)
			if !ok {
				fill, has := t.fillValues[f.Column]
				if !has {
					return nil, nil, &MissingValueError{Column: f.Column, Value: raw}
				}
				v = fill
			}
			if s := t.Scalers[i]; s != nil {
				v = s.Transform(v)
			}
			out[i] = v
		case FeatureLabel, FeatureOneHot:
			enc := t.encoders[f.Column]
			if enc == nil {
				return nil, nil, fmt.Errorf("feature %q has no fitted encoder", f.Name)
			}
			if analysis.IsMissing(raw) {
				if mode, ok := t.modes[f.Column]; ok {
					raw = mode
				}
			}
			idx, ok := enc.Index(raw)
			if !ok && !reported[f.Column] {
				reported[f.Column] = true
				mismatches = append(mismatches, &EncodingMismatchError{Column: f.Column, Value: raw})
			}
			switch {
			case f.Kind == FeatureLabel && ok:
				out[i] = float64(idx)
			case f.Kind == FeatureLabel:
				out[i] = -1
			case ok && enc.Categories[idx] == f.Category:
				out[i] = 1
			}
		}
	}
	return out, mismatches, nil
}

package preprocess

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"dataset-engine/internal/models"
)

// Scaler holds fitted normalization parameters for one column
type Scaler struct {
	Method models.NormalizationMethod `json:"method"`
	Mean   float64                    `json:"mean,omitempty"`
	Std    float64                    `json:"std,omitempty"`
	Min    float64                    `json:"min,omitempty"`
	Max    float64                    `json:"max,omitempty"`
}

// FitScaler fits method on the non-NaN entries of values.
// A constant or empty column reports std 1 (standard) or min == max (minmax).
func FitScaler(values []float64, method models.NormalizationMethod) Scaler {
	s := Scaler{Method: method}
	valid := present(values)

	switch method {
	case models.NormalizeStandard:
		if len(valid) == 0 {
			s.Std = 1
			return s
		}
		if floats.Min(valid) == floats.Max(valid) {
			s.Mean, s.Std = valid[0], 1
			return s
		}
		s.Mean, s.Std = stat.PopMeanStdDev(valid, nil)
		if s.Std == 0 {
			s.Std = 1
		}
	case models.NormalizeMinMax:
		if len(valid) == 0 {
			return s
		}
		s.Min, s.Max = floats.Min(valid), floats.Max(valid)
	case models.NormalizeNone:
	}
	return s
}

// Transform scales a single value
func (s Scaler) Transform(v float64) float64 {
	switch s.Method {
	case models.NormalizeStandard:
		return (v - s.Mean) / s.Std
	case models.NormalizeMinMax:
		if s.Max == s.Min {
			return 0.5
		}
		return (v - s.Min) / (s.Max - s.Min)
	case models.NormalizeNone:
	}
	return v
}

// TransformAll scales every value into a new slice
func (s Scaler) TransformAll(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = s.Transform(v)
	}
	return out
}

// StandardScale z-scores values over the full column
func StandardScale(values []float64) (scaled []float64, mean, std float64) {
	s := FitScaler(values, models.NormalizeStandard)
	return s.TransformAll(values), s.Mean, s.Std
}

// MinMaxScale maps values onto [0, 1]; a constant column maps to 0.5
func MinMaxScale(values []float64) (scaled []float64, min, max float64) {
	s := FitScaler(values, models.NormalizeMinMax)
	return s.TransformAll(values), s.Min, s.Max
}

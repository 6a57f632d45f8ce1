package preprocess

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"dataset-engine/internal/analysis"
	"dataset-engine/internal/models"
)

// MissingCategory fills categorical columns that have no value at all
const MissingCategory = "MISSING"

// NumericStrategy fills missing entries of a numeric column.
// Missing numeric entries are represented as NaN.
type NumericStrategy string

const (
	NumericMean   NumericStrategy = "mean"
	NumericMedian NumericStrategy = "median"
	NumericZero   NumericStrategy = "zero"
	NumericRemove NumericStrategy = "remove"
)

// CategoricalStrategy fills missing entries of a categorical or text column.
// Missing entries are blank strings.
type CategoricalStrategy string

const (
	CategoricalMode   CategoricalStrategy = "mode"
	CategoricalRemove CategoricalStrategy = "remove"
)

// NumericStrategyFor maps the dataset-wide policy onto the numeric path.
// fill-mode has no numeric counterpart and falls back to the mean;
// remove-rows is applied at the row level, so ok is false.
func NumericStrategyFor(s models.MissingValueStrategy) (strategy NumericStrategy, ok bool) {
	switch s {
	case models.MissingFillMean, models.MissingFillMode:
		return NumericMean, true
	case models.MissingFillMedian:
		return NumericMedian, true
	case models.MissingFillZero:
		return NumericZero, true
	case models.MissingRemoveRows:
		return NumericRemove, false
	}
	return NumericMean, false
}

func present(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// NumericFillValue computes the value used to fill a column under strategy.
// Mean and median of a column with no values are NaN.
func NumericFillValue(values []float64, strategy NumericStrategy) float64 {
	valid := present(values)
	switch strategy {
	case NumericMean:
		if len(valid) == 0 {
			return math.NaN()
		}
		return stat.Mean(valid, nil)
	case NumericMedian:
		if len(valid) == 0 {
			return math.NaN()
		}
		sort.Float64s(valid)
		return valid[len(valid)/2]
	case NumericZero:
		return 0
	}
	return math.NaN()
}

// FillNumeric returns a copy of values with NaN entries filled. The remove
// strategy drops them instead, so the result is no longer row-aligned.
func FillNumeric(values []float64, strategy NumericStrategy) []float64 {
	if strategy == NumericRemove {
		return present(values)
	}
	fill := NumericFillValue(values, strategy)
	out := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = fill
		} else {
			out[i] = v
		}
	}
	return out
}

// Mode returns the most frequent non-missing value; ties go to the value
// seen first. A column with no values yields MissingCategory.
func Mode(values []string) string {
	counts := make(map[string]int)
	var order []string
	for _, v := range values {
		if analysis.IsMissing(v) {
			continue
		}
		if _, ok := counts[v]; !ok {
			order = append(order, v)
		}
		counts[v]++
	}

	mode := MissingCategory
	best := 0
	for _, v := range order {
		if counts[v] > best {
			best = counts[v]
			mode = v
		}
	}
	return mode
}

// FillCategorical returns a copy of values with blanks replaced by the mode,
// or with blanks dropped under CategoricalRemove.
func FillCategorical(values []string, strategy CategoricalStrategy) []string {
	if strategy == CategoricalRemove {
		out := make([]string, 0, len(values))
		for _, v := range values {
			if !analysis.IsMissing(v) {
				out = append(out, v)
			}
		}
		return out
	}

	mode := Mode(values)
	out := make([]string, len(values))
	for i, v := range values {
		if analysis.IsMissing(v) {
			out[i] = mode
		} else {
			out[i] = v
		}
	}
	return out
}

// FilterCompleteRows returns the indices of rows whose target and every
// non-text feature are present. This is the row-level remove-rows policy.
func FilterCompleteRows(rows []models.RawRow, features []models.ColumnInfo, target string) []int {
	kept := make([]int, 0, len(rows))
	for i, row := range rows {
		if analysis.IsMissing(row[target]) {
			continue
		}
		complete := true
		for _, f := range features {
			if f.Type == models.ColumnTypeText {
				continue
			}
			if analysis.IsMissing(row[f.Name]) {
				complete = false
				break
			}
		}
		if complete {
			kept = append(kept, i)
		}
	}
	return kept
}

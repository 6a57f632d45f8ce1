package analysis

import (
	"math"
	"strconv"
	"strings"

	"dataset-engine/internal/models"
)

const (
	numericThreshold   = 0.8
	categoricalRatio   = 0.5
	maxCategoricalSize = 50
	maxSamples         = 5
)

// IsMissing reports whether a raw value counts as missing
func IsMissing(v string) bool {
	return strings.TrimSpace(v) == ""
}

// ParseNumber parses a raw value as a finite float
func ParseNumber(v string) (float64, bool) {
	s := strings.TrimSpace(v)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// AnalyzeColumn infers the type and basic statistics of one column.
// The role defaults to feature.
func AnalyzeColumn(rows []models.RawRow, name string) models.ColumnInfo {
	var nonEmpty []string
	for _, row := range rows {
		v, ok := row[name]
		if !ok || IsMissing(v) {
			continue
		}
		nonEmpty = append(nonEmpty, v)
	}

	seen := make(map[string]struct{})
	unique := []string{}
	numeric := 0
	for _, v := range nonEmpty {
		if _, ok := ParseNumber(v); ok {
			numeric++
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			unique = append(unique, v)
		}
	}

	colType := models.ColumnTypeText
	switch {
	case numeric > 0 && float64(numeric)/float64(len(nonEmpty)) > numericThreshold:
		colType = models.ColumnTypeNumeric
	case float64(len(unique)) < float64(len(nonEmpty))*categoricalRatio && len(unique) < maxCategoricalSize:
		colType = models.ColumnTypeCategorical
	}

	samples := unique
	if len(samples) > maxSamples {
		samples = samples[:maxSamples]
	}

	return models.ColumnInfo{
		Name:         name,
		Type:         colType,
		Role:         models.RoleFeature,
		MissingCount: len(rows) - len(nonEmpty),
		UniqueCount:  len(unique),
		Samples:      append([]string(nil), samples...),
	}
}

// AnalyzeColumns runs AnalyzeColumn for every header, in header order
func AnalyzeColumns(rows []models.RawRow, headers []string) []models.ColumnInfo {
	columns := make([]models.ColumnInfo, len(headers))
	for i, h := range headers {
		columns[i] = AnalyzeColumn(rows, h)
	}
	return columns
}

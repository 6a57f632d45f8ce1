package preprocess

import (
	"encoding/csv"
	"io"
	"strconv"

	"dataset-engine/internal/models"
)

// ExportTrainingCSV writes the train, validation and test splits, in that
// order, as one table with the feature names and the target as header.
func ExportTrainingCSV(w io.Writer, result *Result, targetName string) error {
	cw := csv.NewWriter(w)

	header := append(result.FeatureNames(), targetName)
	if err := cw.Write(header); err != nil {
		return err
	}

	record := make([]string, len(header))
	for _, split := range []models.Split{result.Train.Split, result.Validation, result.Test} {
		for i, x := range split.X {
			for j, v := range x {
				record[j] = strconv.FormatFloat(v, 'f', -1, 64)
			}
			record[len(x)] = strconv.FormatFloat(split.Y[i], 'f', -1, 64)
			if err := cw.Write(record[:len(x)+1]); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

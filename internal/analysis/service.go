package analysis

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"dataset-engine/internal/models"
)

type CSVService struct{}

func NewCSVService() *CSVService {
	return &CSVService{}
}

// Table is a parsed CSV file
type Table struct {
	Headers []string
	Rows    []models.RawRow
}

// Parse reads a CSV stream into rows keyed by header.
// Files whose header does not split on commas are retried with ';'.
func (s *CSVService) Parse(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	table, err := parseWithComma(data, ',')
	if err != nil || (len(table.Headers) == 1 && strings.Contains(table.Headers[0], ";")) {
		table, err = parseWithComma(data, ';')
		if err != nil {
			return nil, err
		}
	}
	return table, nil
}

func parseWithComma(data []byte, comma rune) (*Table, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.FieldsPerRecord = -1 // Allow variable fields
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read headers: %w", err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	rows := []models.RawRow{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// skip malformed rows
			continue
		}
		if len(record) == 1 && record[0] == "" {
			continue
		}
		row := make(models.RawRow, len(headers))
		for i, h := range headers {
			if i < len(record) {
				row[h] = record[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}

	return &Table{Headers: headers, Rows: rows}, nil
}

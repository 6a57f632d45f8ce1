package preprocess

import (
	"encoding/json"
	"sort"
)

// CategoryEncoder maps a fitted, sorted category set onto label indices and
// one-hot vectors. Label and one-hot encoding share the same ordering.
type CategoryEncoder struct {
	Categories []string `json:"categories"`
	index      map[string]int
}

// FitCategories builds an encoder from the distinct values, sorted
// lexicographically.
func FitCategories(values []string) *CategoryEncoder {
	seen := make(map[string]struct{}, len(values))
	categories := []string{}
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		categories = append(categories, v)
	}
	sort.Strings(categories)
	return NewCategoryEncoder(categories)
}

// NewCategoryEncoder wraps an already ordered category list
func NewCategoryEncoder(categories []string) *CategoryEncoder {
	e := &CategoryEncoder{Categories: categories}
	e.buildIndex()
	return e
}

func (e *CategoryEncoder) buildIndex() {
	e.index = make(map[string]int, len(e.Categories))
	for i, c := range e.Categories {
		e.index[c] = i
	}
}

// UnmarshalJSON restores the category list and rebuilds the lookup index, so
// a decoded encoder is read-only from then on.
func (e *CategoryEncoder) UnmarshalJSON(data []byte) error {
	var raw struct {
		Categories []string `json:"categories"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.Categories = raw.Categories
	e.buildIndex()
	return nil
}

// Index returns the position of v in the category order. It never writes to
// the encoder and is safe for concurrent use.
func (e *CategoryEncoder) Index(v string) (int, bool) {
	if e.index == nil {
		for i, c := range e.Categories {
			if c == v {
				return i, true
			}
		}
		return -1, false
	}
	i, ok := e.index[v]
	return i, ok
}

// Label encodes v as its category index; unseen values encode to -1
func (e *CategoryEncoder) Label(v string) (float64, bool) {
	i, ok := e.Index(v)
	if !ok {
		return -1, false
	}
	return float64(i), true
}

// OneHot encodes v as a vector with a single 1; unseen values encode to the
// zero vector.
func (e *CategoryEncoder) OneHot(v string) ([]float64, bool) {
	vec := make([]float64, len(e.Categories))
	i, ok := e.Index(v)
	if ok {
		vec[i] = 1
	}
	return vec, ok
}

// LabelEncode encodes values with indices into their sorted distinct set
func LabelEncode(values []string) (encoded []float64, mapping map[string]int) {
	enc := FitCategories(values)
	encoded = make([]float64, len(values))
	for i, v := range values {
		encoded[i], _ = enc.Label(v)
	}
	mapping = make(map[string]int, len(enc.Categories))
	for i, c := range enc.Categories {
		mapping[c] = i
	}
	return encoded, mapping
}

// OneHotEncode expands values into one vector per row over the sorted
// distinct set, which is returned as categories.
func OneHotEncode(values []string) (encoded [][]float64, categories []string) {
	enc := FitCategories(values)
	encoded = make([][]float64, len(values))
	for i, v := range values {
		encoded[i], _ = enc.OneHot(v)
	}
	return encoded, enc.Categories
}

// OneHotFeatureName names the output column for one category
func OneHotFeatureName(column, category string) string {
	return column + "__" + category
}

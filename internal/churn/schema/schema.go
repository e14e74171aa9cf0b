// Package schema holds the training schema: the ordered feature columns a model was fit against.
package schema

import (
	"fmt"
	"strings"
)

// TrainingSchema is an immutable, ordered list of unique column names.
// A model's weights are positionally tied to this order.
type TrainingSchema struct {
	columns     []string
	index       map[string]int
	vocabulary  map[string][]string
	categorical []string
}

// New validates columns and builds a TrainingSchema. categoricalFields name the raw fields
// that were one-hot expanded during training; they only drive Vocabulary.
func New(columns []string, categoricalFields []string) (*TrainingSchema, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("schema has no columns")
	}

	s := &TrainingSchema{
		columns:    make([]string, len(columns)),
		index:      make(map[string]int, len(columns)),
		vocabulary: make(map[string][]string, len(categoricalFields)),
	}
	for i, name := range columns {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if prev, dup := s.index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q at positions %d and %d", name, prev, i)
		}
		s.columns[i] = name
		s.index[name] = i
	}

	for _, field := range categoricalFields {
		if _, seen := s.vocabulary[field]; seen {
			continue
		}
		prefix := field + "_"
		values := []string{}
		for _, name := range s.columns {
			if strings.HasPrefix(name, prefix) {
				values = append(values, strings.TrimPrefix(name, prefix))
			}
		}
		s.vocabulary[field] = values
		s.categorical = append(s.categorical, field)
	}

	return s, nil
}

// Len returns the number of columns.
func (s *TrainingSchema) Len() int { return len(s.columns) }

// At returns the column name at position i.
func (s *TrainingSchema) At(i int) string { return s.columns[i] }

// Columns returns a copy of the ordered column names.
func (s *TrainingSchema) Columns() []string {
	return append([]string(nil), s.columns...)
}

// Index returns the position of name, or -1.
func (s *TrainingSchema) Index(name string) int {
	if i, ok := s.index[name]; ok {
		return i
	}
	return -1
}

func (s *TrainingSchema) Contains(name string) bool {
	_, ok := s.index[name]
	return ok
}

// CategoricalFields returns the one-hot expanded field names, in configuration order.
func (s *TrainingSchema) CategoricalFields() []string {
	return append([]string(nil), s.categorical...)
}

// Vocabulary returns the category values seen for field during training, in schema order.
// The second result is false when field is not a configured categorical field.
func (s *TrainingSchema) Vocabulary(field string) ([]string, bool) {
	values, ok := s.vocabulary[field]
	if !ok {
		return nil, false
	}
	return append([]string(nil), values...), true
}

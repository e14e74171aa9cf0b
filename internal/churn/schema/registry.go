package schema

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	apperrors "churn-service/internal/common/errors"
	"churn-service/internal/common/logger"
	"churn-service/pkg/registry"
)

// Config locates the training schema artifact.
type Config struct {
	Path              string
	CategoricalFields []string
}

// Registry loads the training schema exactly once per process.
type Registry struct {
	config Config
	logger logger.Logger

	once   sync.Once
	schema *TrainingSchema
	err    error
}

func NewRegistry(config Config, log logger.Logger) *Registry {
	return &Registry{
		config: config,
		logger: log.WithFields(map[string]interface{}{"component": "schema-registry"}),
	}
}

// Load reads the artifact on first call; later calls return the same schema or error.
func (r *Registry) Load() (*TrainingSchema, error) {
	r.once.Do(func() {
		r.schema, r.err = Load(r.config.Path, r.config.CategoricalFields)
		if r.err != nil {
			r.logger.Error("training schema load failed", map[string]interface{}{
				"path":  r.config.Path,
				"error": r.err.Error(),
			})
			return
		}
		r.logger.Info("training schema loaded", map[string]interface{}{
			"path":        r.config.Path,
			"columns":     r.schema.Len(),
			"categorical": r.schema.CategoricalFields(),
		})
	})
	return r.schema, r.err
}

// Load reads a schema from a processed training matrix (.csv header row)
// or a JSON schema artifact (.json). Failures are SCHEMA_LOAD_FAILED errors.
func Load(path string, categoricalFields []string) (*TrainingSchema, error) {
	var (
		columns []string
		err     error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var artifact *registry.SchemaArtifact
		artifact, err = registry.LoadArtifact(path)
		if err == nil {
			columns = artifact.Columns
			if len(artifact.CategoricalFields) > 0 {
				categoricalFields = artifact.CategoricalFields
			}
		}
	default:
		columns, err = readCSVHeader(path)
	}
	if err != nil {
		return nil, apperrors.NewSchemaLoadError(path, err)
	}

	s, err := New(columns, categoricalFields)
	if err != nil {
		return nil, apperrors.NewSchemaLoadError(path, err)
	}
	return s, nil
}

func readCSVHeader(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := ReadHeader(f)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	return header, nil
}

// ReadHeader returns the first CSV record, with a UTF-8 byte order mark stripped.
func ReadHeader(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("file is empty")
	}
	if err != nil {
		return nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	return header, nil
}

// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// LoadArtifact reads a schema artifact and validates it against artifactJSONSchema.
func LoadArtifact(path string) (*SchemaArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseArtifact(data)
}

// ParseArtifact validates and decodes raw artifact JSON.
func ParseArtifact(data []byte) (*SchemaArtifact, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(artifactJSONSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("parse schema artifact: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			msgs[i] = desc.String()
		}
		return nil, fmt.Errorf("invalid schema artifact: %s", strings.Join(msgs, "; "))
	}

	var artifact SchemaArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("decode schema artifact: %w", err)
	}
	return &artifact, nil
}

// SaveArtifact writes the artifact as indented JSON.
func SaveArtifact(path string, artifact *SchemaArtifact) error {
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

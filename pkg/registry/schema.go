// pkg/registry/schema.go
package registry

// SchemaArtifact is the JSON form of a training schema: the ordered feature columns
// of the processed training matrix, as produced offline.
type SchemaArtifact struct {
	Version           string   `json:"version"`
	GeneratedAt       string   `json:"generatedAt"`
	Source            string   `json:"source,omitempty"`
	Columns           []string `json:"columns"`
	CategoricalFields []string `json:"categoricalFields,omitempty"`
}

// artifactJSONSchema constrains the artifact file before it is decoded.
const artifactJSONSchema = `{
  "type": "object",
  "required": ["columns"],
  "properties": {
    "version": {"type": "string"},
    "generatedAt": {"type": "string"},
    "source": {"type": "string"},
    "columns": {
      "type": "array",
      "minItems": 1,
      "uniqueItems": true,
      "items": {"type": "string", "minLength": 1}
    },
    "categoricalFields": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    }
  }
}`

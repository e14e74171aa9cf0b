// cmd/tools/schema-extract/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"churn-service/internal/churn/model"
	"churn-service/internal/churn/schema"
	"churn-service/internal/common/config"
	"churn-service/pkg/registry"
)

func main() {
	extractCmd := flag.NewFlagSet("extract", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	checkModelCmd := flag.NewFlagSet("check-model", flag.ExitOnError)

	// Extract command flags
	csvPath := extractCmd.String("csv", "processed/X_train.csv", "Processed training matrix (header row is the schema)")
	outPath := extractCmd.String("out", "model/schema.json", "Where to write the schema artifact")
	version := extractCmd.String("version", "", "Model version the schema belongs to")
	categorical := extractCmd.String("categorical", strings.Join(config.DefaultCategoricalFields, ","), "Comma-separated one-hot expanded fields")

	// Validate command flags
	artifactPath := validateCmd.String("path", "model/schema.json", "Schema artifact or training CSV to validate")

	// Check-model command flags
	modelSchema := checkModelCmd.String("schema", "processed/X_train.csv", "Schema artifact or training CSV")
	modelPath := checkModelCmd.String("model", "model/churn_model.json", "XGBoost JSON model dump")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "extract":
		extractCmd.Parse(os.Args[2:])
		artifact, err := extract(*csvPath, *version, splitList(*categorical))
		if err != nil {
			fmt.Printf("Error extracting schema: %v\n", err)
			os.Exit(1)
		}
		if err := registry.SaveArtifact(*outPath, artifact); err != nil {
			fmt.Printf("Error writing artifact: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %d columns to %s\n", len(artifact.Columns), *outPath)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		s, err := schema.Load(*artifactPath, config.DefaultCategoricalFields)
		if err != nil {
			fmt.Printf("Schema validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Schema validation passed: %d columns\n", s.Len())
		for _, field := range s.CategoricalFields() {
			values, _ := s.Vocabulary(field)
			fmt.Printf("  %-18s %s\n", field, strings.Join(values, ", "))
		}

	case "check-model":
		checkModelCmd.Parse(os.Args[2:])
		s, err := schema.Load(*modelSchema, config.DefaultCategoricalFields)
		if err != nil {
			fmt.Printf("Schema load failed: %v\n", err)
			os.Exit(1)
		}
		m, err := model.LoadTreeEnsemble(*modelPath, s)
		if err != nil {
			fmt.Printf("Model check failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Model check passed: %d trees over %d columns\n", m.Trees(), s.Len())

	case "help":
		fallthrough
	default:
		help()
	}
}

func extract(csvPath, version string, categorical []string) (*registry.SchemaArtifact, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	columns, err := schema.ReadHeader(f)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if _, err := schema.New(columns, categorical); err != nil {
		return nil, err
	}

	return &registry.SchemaArtifact{
		Version:           version,
		GeneratedAt:       time.Now().UTC().Format(time.RFC3339),
		Source:            csvPath,
		Columns:           columns,
		CategoricalFields: categorical,
	}, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func help() {
	fmt.Println("Usage: schema-extract <command> [arguments]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  extract      Write a JSON schema artifact from a processed training CSV")
	fmt.Println("  validate     Load a schema artifact or training CSV and print its vocabulary")
	fmt.Println("  check-model  Load a model dump against a schema and report its size")
	fmt.Println("  help         Show this help message")
	fmt.Println("")
	fmt.Println("Use 'schema-extract <command> -h' for more information about a command.")
}

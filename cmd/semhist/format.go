package main

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// OutputFormat represents the output format type
type OutputFormat string

const (
	FormatHuman OutputFormat = "human"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// parseOutputFormat validates a --format value.
func parseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case FormatHuman, FormatJSON, FormatYAML:
		return OutputFormat(s), nil
	case "":
		return FormatHuman, nil
	}
	return "", fmt.Errorf("unsupported format: %s (want human, json or yaml)", s)
}

// writeStructured writes v as JSON or YAML. Human output is handled by the
// caller.
func writeStructured(w io.Writer, v interface{}, format OutputFormat) error {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported format: %s", format)
}

// shortSHA abbreviates a sha for tables.
func shortSHA(sha string) string {
	if len(sha) > 10 {
		return sha[:10]
	}
	return sha
}

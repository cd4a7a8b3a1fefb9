// Package export dumps the mined history as a single JSON or YAML document,
// optionally zstd-compressed.
package export

import (
	"fmt"
	"strings"

	"semhist/internal/model"
	"semhist/internal/storage"
)

// Snapshot is the whole history database in export form.
type Snapshot struct {
	Metadata Metadata               `json:"metadata" yaml:"metadata"`
	Commits  []model.Commit         `json:"commits" yaml:"commits"`
	Refs     []storage.Ref          `json:"refs,omitempty" yaml:"refs,omitempty"`
	Entities []ExportEntity         `json:"entities" yaml:"entities"`
	Changes  []model.Change         `json:"changes" yaml:"changes"`
	Presence []storage.PresenceRow  `json:"presence,omitempty" yaml:"presence,omitempty"`
	Deps     []storage.Dep          `json:"deps,omitempty" yaml:"deps,omitempty"`
	Status   *storage.StatusSummary `json:"status,omitempty" yaml:"status,omitempty"`
}

// Metadata describes where and when the export was made.
type Metadata struct {
	Repo        string `json:"repo" yaml:"repo"`
	Generated   string `json:"generated" yaml:"generated"` // RFC 3339
	ToolVersion string `json:"toolVersion" yaml:"toolVersion"`
}

// ExportEntity is an entity with its dotted name resolved.
type ExportEntity struct {
	model.Entity `yaml:",inline"`
	File         string `json:"file" yaml:"file"`
	Qualified    string `json:"qualified,omitempty" yaml:"qualified,omitempty"`
}

// Format is an output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts the format names used on the command line.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown export format %q (want json or yaml)", s)
}

// Options configures an export.
type Options struct {
	Repo            string
	Format          Format
	Compress        bool // zstd
	IncludePresence bool
	IncludeDeps     bool
}

// Extension returns the conventional file suffix for the options.
func (o Options) Extension() string {
	ext := "." + string(o.Format)
	if o.Format == "" {
		ext = ".json"
	}
	if o.Compress {
		ext += ".zst"
	}
	return ext
}

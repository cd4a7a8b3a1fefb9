// Package deps imports the output of the Depends dependency extractor and
// pins every edge to the entities present at one commit.
package deps

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Kind is a Depends dependency type.
type Kind string

const (
	Annotation Kind = "Annotation"
	Call       Kind = "Call"
	Cast       Kind = "Cast"
	Contain    Kind = "Contain"
	Create     Kind = "Create"
	Extend     Kind = "Extend"
	Implement  Kind = "Implement"
	Import     Kind = "Import"
	Parameter  Kind = "Parameter"
	Return     Kind = "Return"
	Throw      Kind = "Throw"
	Use        Kind = "Use"
)

var kinds = map[Kind]bool{
	Annotation: true, Call: true, Cast: true, Contain: true,
	Create: true, Extend: true, Implement: true, Import: true,
	Parameter: true, Return: true, Throw: true, Use: true,
}

// UnmarshalJSON rejects dependency types Depends does not emit.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if !kinds[Kind(s)] {
		return fmt.Errorf("unknown dependency type %q", s)
	}
	*k = Kind(s)
	return nil
}

// EndpointKind is the kind of object at either end of an edge.
type EndpointKind string

const (
	EndpointFile     EndpointKind = "file"
	EndpointFunction EndpointKind = "function"
	EndpointType     EndpointKind = "type"
	EndpointVar      EndpointKind = "var"
)

// UnmarshalJSON rejects unknown endpoint kinds.
func (k *EndpointKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch EndpointKind(s) {
	case EndpointFile, EndpointFunction, EndpointType, EndpointVar:
		*k = EndpointKind(s)
		return nil
	}
	return fmt.Errorf("unknown endpoint type %q", s)
}

// Endpoint is one side of a dependency.
type Endpoint struct {
	Object string       `json:"object"`
	Type   EndpointKind `json:"type"`
	File   string       `json:"file"`
	Line   int          `json:"lineNumber"`
}

// Name returns the last dotted segment of the object name.
func (e Endpoint) Name() string {
	if i := strings.LastIndexByte(e.Object, '.'); i >= 0 {
		return e.Object[i+1:]
	}
	return e.Object
}

// Dep is one edge reported by Depends.
type Dep struct {
	Src  Endpoint `json:"src"`
	Dest Endpoint `json:"dest"`
	Type Kind     `json:"type"`
}

type dependsFile struct {
	Cells []struct {
		Details []Dep `json:"details"`
	} `json:"cells"`
}

// Load reads a Depends JSON document and flattens the details of every cell.
func Load(r io.Reader) ([]Dep, error) {
	var f dependsFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to decode depends output: %w", err)
	}
	var out []Dep
	for _, c := range f.Cells {
		out = append(out, c.Details...)
	}
	return out, nil
}

// LoadFile is Load over a file on disk.
func LoadFile(path string) ([]Dep, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}

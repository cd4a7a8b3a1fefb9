package lang

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	gotoml "github.com/pelletier/go-toml/v2"

	"semhist/internal/errors"
)

// Override replaces the extensions or capture query of a built-in language.
type Override struct {
	Extensions []string `toml:"extensions,omitempty"`
	Query      string   `toml:"query,multiline,omitempty"`
}

// LoadOverrides decodes a languages.toml file keyed by language tag.
// A missing file yields no overrides.
func LoadOverrides(path string) (map[string]Override, error) {
	overrides := map[string]Override{}
	md, err := toml.DecodeFile(path, &overrides)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Override{}, nil
		}
		return nil, errors.New(errors.InvalidConfig, fmt.Sprintf("cannot decode %s", path), err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, errors.Newf(errors.InvalidConfig, "unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return overrides, nil
}

// Apply installs overrides into the registry. Only enabled tags can be
// overridden since grammars are compiled in.
func (r *Registry) Apply(overrides map[string]Override) error {
	tags := make([]string, 0, len(overrides))
	for tag := range overrides {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	for _, tag := range tags {
		o := overrides[tag]
		cur, err := r.Get(tag)
		if err != nil {
			return err
		}
		next := &Language{
			Tag:         tag,
			Extensions:  cur.Extensions,
			grammar:     cur.grammar,
			nameFunc:    cur.nameFunc,
			querySource: cur.querySource,
		}
		if len(o.Extensions) > 0 {
			next.Extensions = normalizeExtensions(o.Extensions)
		}
		if strings.TrimSpace(o.Query) != "" {
			next.querySource = []byte(o.Query)
		}
		if _, err := next.Query(); err != nil {
			return err
		}
		r.add(next)
	}
	return nil
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// WriteTemplate writes a languages.toml carrying the built-in settings of
// the given tags, ready to be edited.
func WriteTemplate(path string, tags ...string) error {
	if len(tags) == 0 {
		tags = []string{"java"}
	}
	doc := make(map[string]Override, len(tags))
	for _, tag := range tags {
		b, ok := builtins[tag]
		if !ok {
			return errors.Newf(errors.UnsupportedLanguage, "no grammar for language %q", tag)
		}
		src, err := queryFS.ReadFile("queries/" + b.query)
		if err != nil {
			return err
		}
		doc[tag] = Override{Extensions: b.extensions, Query: string(src)}
	}

	var buf bytes.Buffer
	buf.WriteString("# Capture rules per language tag. Each pattern captures the entity node as\n")
	buf.WriteString("# @entity.<kind> and its name as @name. Delete a section to use the built-in rules.\n\n")
	enc := gotoml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode languages template: %w", err)
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// Package lang maps language tags and file extensions to tree-sitter grammars
// and the capture queries that decide which syntax nodes are entities.
package lang

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"semhist/internal/errors"
	"semhist/internal/model"
)

//go:embed queries/*.scm
var queryFS embed.FS

// Capture names used by entity queries. Every pattern captures the entity
// node as "entity.<kind>" and its name node as "name".
const (
	NameCapture   = "name"
	EntityCapture = "entity."
)

// NameFunc rewrites the captured name of an entity node, e.g. to qualify Go
// methods with their receiver type. It returns the name unchanged when it
// does not apply.
type NameFunc func(node *sitter.Node, kind model.Kind, name string, source []byte) string

// Language holds tree-sitter configuration for one language tag.
type Language struct {
	Tag        string
	Extensions []string
	grammar    *sitter.Language
	nameFunc   NameFunc

	querySource []byte
	queryOnce   sync.Once
	query       *sitter.Query
	queryErr    error
}

// Grammar returns the tree-sitter language.
func (l *Language) Grammar() *sitter.Language {
	return l.grammar
}

// NewParser creates a fresh tree-sitter parser for this language.
// Parsers are not safe for concurrent use; each worker owns its own.
func (l *Language) NewParser() *sitter.Parser {
	p := sitter.NewParser()
	p.SetLanguage(l.grammar)
	return p
}

// Query returns the compiled entity query, shared across goroutines.
func (l *Language) Query() (*sitter.Query, error) {
	l.queryOnce.Do(func() {
		q, err := sitter.NewQuery(l.querySource, l.grammar)
		if err != nil {
			l.queryErr = errors.New(errors.InvalidConfig,
				fmt.Sprintf("entity query for %s does not compile", l.Tag), err)
			return
		}
		l.query = q
	})
	return l.query, l.queryErr
}

// QualifyName applies the language's name hook.
func (l *Language) QualifyName(node *sitter.Node, kind model.Kind, name string, source []byte) string {
	if l.nameFunc == nil {
		return name
	}
	return l.nameFunc(node, kind, name, source)
}

// KindOf returns the entity kind named by a capture, or false if the
// capture is not an entity capture.
func KindOf(captureName string) (model.Kind, bool) {
	if !strings.HasPrefix(captureName, EntityCapture) {
		return "", false
	}
	kind := strings.TrimPrefix(captureName, EntityCapture)
	if kind == "" || model.Kind(kind) == model.KindFile {
		return "", false
	}
	return model.Kind(kind), true
}

// builtin describes a compiled-in language.
type builtin struct {
	extensions []string
	grammar    func() *sitter.Language
	query      string // file under queries/
	nameFunc   NameFunc
}

// builtins is populated by init() functions in per-language files.
var builtins = map[string]builtin{}

// Registry resolves language tags and file paths to languages.
type Registry struct {
	languages  map[string]*Language
	extensions map[string]string
}

// NewRegistry creates a registry holding the given built-in tags, or all of
// them when tags is empty.
func NewRegistry(tags ...string) (*Registry, error) {
	if len(tags) == 0 {
		tags = BuiltinTags()
	}
	r := &Registry{
		languages:  make(map[string]*Language, len(tags)),
		extensions: make(map[string]string),
	}
	for _, tag := range tags {
		b, ok := builtins[tag]
		if !ok {
			return nil, errors.Newf(errors.UnsupportedLanguage, "no grammar for language %q", tag)
		}
		src, err := queryFS.ReadFile("queries/" + b.query)
		if err != nil {
			return nil, fmt.Errorf("failed to read query for %s: %w", tag, err)
		}
		r.add(&Language{
			Tag:         tag,
			Extensions:  b.extensions,
			grammar:     b.grammar(),
			nameFunc:    b.nameFunc,
			querySource: src,
		})
	}
	return r, nil
}

func (r *Registry) add(l *Language) {
	if old, ok := r.languages[l.Tag]; ok {
		for _, ext := range old.Extensions {
			delete(r.extensions, ext)
		}
	}
	r.languages[l.Tag] = l
	for _, ext := range l.Extensions {
		r.extensions[strings.ToLower(ext)] = l.Tag
	}
}

// Get returns the language for a tag.
func (r *Registry) Get(tag string) (*Language, error) {
	l, ok := r.languages[tag]
	if !ok {
		return nil, errors.Newf(errors.UnsupportedLanguage, "language %q is not enabled", tag)
	}
	return l, nil
}

// ForPath returns the language tag for a repo-relative path, or "" when the
// extension is not handled.
func (r *Registry) ForPath(p string) string {
	return r.extensions[strings.ToLower(path.Ext(p))]
}

// Tags lists the enabled language tags in sorted order.
func (r *Registry) Tags() []string {
	tags := make([]string, 0, len(r.languages))
	for tag := range r.languages {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// BuiltinTags lists every compiled-in language tag in sorted order.
func BuiltinTags() []string {
	tags := make([]string, 0, len(builtins))
	for tag := range builtins {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// NodeText returns the source text of a tree-sitter node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

package forest

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	sitter "github.com/smacker/go-tree-sitter"

	"semhist/internal/diff"
	"semhist/internal/errors"
	"semhist/internal/lang"
	"semhist/internal/lineindex"
	"semhist/internal/model"
)

// Input is one file version to derive a forest from.
type Input struct {
	Path     string
	Language string
	Content  []byte
	// Previous is a private copy of the parent version's tree. When set, the
	// builder applies Edits to it and reparses incrementally; it takes
	// ownership and closes it.
	Previous *sitter.Tree
	Edits    []diff.Edit
}

// Builder derives entity forests through tree-sitter.
type Builder struct {
	registry *lang.Registry
	logger   *slog.Logger
	timeout  time.Duration

	mu      sync.Mutex
	parsers map[string]*sync.Pool
}

// BuilderOption configures the builder
type BuilderOption func(*Builder)

// WithParseTimeout bounds each parse. Zero disables the bound.
func WithParseTimeout(d time.Duration) BuilderOption {
	return func(b *Builder) {
		b.timeout = d
	}
}

// NewBuilder creates a forest builder over the enabled languages.
func NewBuilder(registry *lang.Registry, logger *slog.Logger, opts ...BuilderOption) *Builder {
	b := &Builder{
		registry: registry,
		logger:   logger,
		parsers:  make(map[string]*sync.Pool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) parserPool(l *lang.Language) *sync.Pool {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.parsers[l.Tag]
	if !ok {
		p = &sync.Pool{New: func() any { return l.NewParser() }}
		b.parsers[l.Tag] = p
	}
	return p
}

// Build parses the input and extracts its forest. It fails with
// PARSE_FAILURE when no usable tree is produced and UNSUPPORTED_LANGUAGE for
// tags that are not enabled. Cancellation of ctx is returned as ctx.Err().
func (b *Builder) Build(ctx context.Context, in Input) (*Forest, error) {
	if in.Previous != nil {
		defer in.Previous.Close()
	}

	l, err := b.registry.Get(in.Language)
	if err != nil {
		return nil, err
	}
	query, err := l.Query()
	if err != nil {
		return nil, err
	}

	tree, err := b.parse(ctx, l, in)
	if err != nil {
		return nil, err
	}

	root := tree.RootNode()
	if root == nil || root.Type() == "ERROR" {
		tree.Close()
		return nil, errors.Newf(errors.ParseFailure, "%s: no syntax tree could be recovered", in.Path)
	}

	f := &Forest{
		Path:            in.Path,
		Language:        l.Tag,
		HasSyntaxErrors: root.HasError(),
		tree:            tree,
	}
	f.Root = &Node{
		Kind:      model.KindFile,
		Name:      in.Path,
		BodyRange: BufferRange(in.Content),
	}
	f.Nodes = []*Node{f.Root}

	candidates := extract(l, query, root, in.Content)
	link(f, candidates)

	if f.HasSyntaxErrors {
		b.logger.Debug("Parsed with syntax errors",
			"path", in.Path,
			"entities", len(f.Nodes)-1,
		)
	}
	return f, nil
}

func (b *Builder) parse(ctx context.Context, l *lang.Language, in Input) (*sitter.Tree, error) {
	pool := b.parserPool(l)
	parser := pool.Get().(*sitter.Parser)
	defer pool.Put(parser)

	parseCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		parseCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	var old *sitter.Tree
	if in.Previous != nil {
		old = in.Previous
		for _, e := range in.Edits {
			old.Edit(sitter.EditInput{
				StartIndex:  e.StartByte,
				OldEndIndex: e.OldEndByte,
				NewEndIndex: e.NewEndByte,
				StartPoint:  toSitterPoint(e.StartPoint),
				OldEndPoint: toSitterPoint(e.OldEndPoint),
				NewEndPoint: toSitterPoint(e.NewEndPoint),
			})
		}
	}

	tree, err := parser.ParseCtx(parseCtx, old, in.Content)
	if err != nil {
		parser.Reset()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if stderrors.Is(parseCtx.Err(), context.DeadlineExceeded) {
			return nil, errors.New(errors.ParseFailure, fmt.Sprintf("%s: parse timed out after %s", in.Path, b.timeout), err)
		}
		return nil, errors.New(errors.ParseFailure, in.Path, err)
	}
	if tree == nil {
		return nil, errors.Newf(errors.ParseFailure, "%s: parser returned no tree", in.Path)
	}
	return tree, nil
}

// candidate is one query match before parent linking.
type candidate struct {
	kind  model.Kind
	name  string
	nameR model.Range
	bodyR model.Range
	seq   int
}

func extract(l *lang.Language, query *sitter.Query, root *sitter.Node, source []byte) []candidate {
	qc := sitter.NewQueryCursor()
	defer qc.Close()
	qc.Exec(query, root)

	type rangeKey struct {
		kind                 model.Kind
		nameStart, bodyStart uint32
		nameEnd, bodyEnd     uint32
	}
	seen := make(map[rangeKey]bool)

	var out []candidate
	for {
		match, ok := qc.NextMatch()
		if !ok {
			break
		}
		match = qc.FilterPredicates(match, source)

		var nameNode, entityNode *sitter.Node
		var kind model.Kind
		for _, c := range match.Captures {
			cname := query.CaptureNameForId(c.Index)
			if cname == lang.NameCapture {
				nameNode = c.Node
			} else if k, ok := lang.KindOf(cname); ok {
				kind, entityNode = k, c.Node
			}
		}
		if nameNode == nil || entityNode == nil {
			continue
		}

		c := candidate{
			kind:  kind,
			nameR: nodeRange(nameNode),
			bodyR: nodeRange(entityNode),
			seq:   len(out),
		}
		if !c.bodyR.Contains(c.nameR) {
			continue
		}
		key := rangeKey{kind, c.nameR.StartByte, c.bodyR.StartByte, c.nameR.EndByte, c.bodyR.EndByte}
		if seen[key] {
			continue
		}
		seen[key] = true

		c.name = l.QualifyName(entityNode, kind, lang.NodeText(nameNode, source), source)
		if c.name == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}

// link orders candidates by position and hangs each under the innermost
// earlier candidate whose body strictly contains it. Candidates sharing a
// body range become siblings.
func link(f *Forest, cs []candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].bodyR.StartByte != cs[j].bodyR.StartByte {
			return cs[i].bodyR.StartByte < cs[j].bodyR.StartByte
		}
		if cs[i].bodyR.EndByte != cs[j].bodyR.EndByte {
			return cs[i].bodyR.EndByte > cs[j].bodyR.EndByte
		}
		return cs[i].seq < cs[j].seq
	})

	stack := []*Node{f.Root}
	for _, c := range cs {
		for len(stack) > 1 && !stack[len(stack)-1].BodyRange.StrictlyContains(c.bodyR) {
			stack = stack[:len(stack)-1]
		}
		n := &Node{Kind: c.kind, Name: c.name, NameRange: c.nameR, BodyRange: c.bodyR}
		f.attach(stack[len(stack)-1], n)
		stack = append(stack, n)
	}
}

func nodeRange(n *sitter.Node) model.Range {
	return model.Range{
		StartByte: n.StartByte(),
		EndByte:   n.EndByte(),
		Start:     fromSitterPoint(n.StartPoint()),
		End:       fromSitterPoint(n.EndPoint()),
	}
}

// BufferRange returns the range spanning all of content.
func BufferRange(content []byte) model.Range {
	end, _ := lineindex.New(content).PositionOf(len(content))
	return model.Range{EndByte: uint32(len(content)), End: end}
}

func toSitterPoint(p model.Point) sitter.Point {
	return sitter.Point{Row: p.Row, Column: p.Column}
}

func fromSitterPoint(p sitter.Point) model.Point {
	return model.Point{Row: p.Row, Column: p.Column}
}

// Package forest builds the entity forest of one file version: a tree rooted
// at the file entity whose descendants are the captured syntactic entities,
// each with its name range and body range.
package forest

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"semhist/internal/model"
)

// Node is one entity observation in a file version.
type Node struct {
	Kind      model.Kind
	Name      string
	NameRange model.Range
	BodyRange model.Range
	Parent    *Node
	Children  []*Node
	Depth     int // 0 for the file entity
	Order     int // preorder position, 0 for the file entity
}

// PathElem is one step of a qualified path.
type PathElem struct {
	Kind model.Kind
	Name string
}

// Path returns the (kind, name) chain from the file entity down to n.
func (n *Node) Path() []PathElem {
	path := make([]PathElem, n.Depth+1)
	for cur := n; cur != nil; cur = cur.Parent {
		path[cur.Depth] = PathElem{Kind: cur.Kind, Name: cur.Name}
	}
	return path
}

// QualifiedName joins the names below the file entity with dots.
func (n *Node) QualifiedName() string {
	if n.Parent == nil {
		return n.Name
	}
	names := make([]string, 0, n.Depth)
	for cur := n; cur.Parent != nil; cur = cur.Parent {
		names = append(names, cur.Name)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, ".")
}

// IsFile reports whether n is the file entity.
func (n *Node) IsFile() bool {
	return n.Kind == model.KindFile
}

// Forest is the entity forest of one file version.
type Forest struct {
	Path     string
	Language string
	Root     *Node
	Nodes    []*Node // preorder, Root first
	// HasSyntaxErrors is set when the tree contains ERROR or MISSING nodes
	// that did not prevent entity extraction.
	HasSyntaxErrors bool

	tree *sitter.Tree
}

// Tree returns the parse tree the forest was derived from, or nil for a
// forest built without one.
func (f *Forest) Tree() *sitter.Tree {
	return f.tree
}

// TakeTree transfers ownership of the parse tree to the caller.
func (f *Forest) TakeTree() *sitter.Tree {
	t := f.tree
	f.tree = nil
	return t
}

// Close releases the parse tree if the forest still owns it.
func (f *Forest) Close() {
	if f.tree != nil {
		f.tree.Close()
		f.tree = nil
	}
}

// Entities returns every node except the file entity, in preorder.
func (f *Forest) Entities() []*Node {
	if len(f.Nodes) == 0 {
		return nil
	}
	return f.Nodes[1:]
}

// NewFileOnly returns a forest holding only the file entity spanning body.
// It stands in for files whose content could not be parsed.
func NewFileOnly(path, language string, body model.Range) *Forest {
	root := &Node{Kind: model.KindFile, Name: path, BodyRange: body}
	return &Forest{Path: path, Language: language, Root: root, Nodes: []*Node{root}}
}

// attach links child under parent and fixes its depth and order.
func (f *Forest) attach(parent, child *Node) {
	child.Parent = parent
	child.Depth = parent.Depth + 1
	child.Order = len(f.Nodes)
	parent.Children = append(parent.Children, child)
	f.Nodes = append(f.Nodes, child)
}

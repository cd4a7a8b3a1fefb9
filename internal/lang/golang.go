package lang

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"semhist/internal/model"
)

func init() {
	builtins["go"] = builtin{
		extensions: []string{".go"},
		grammar:    golang.GetLanguage,
		query:      "go.scm",
		nameFunc:   goQualifyMethod,
	}
}

// goQualifyMethod names methods "Recv.Name" so methods of different
// receivers in one file do not share an identity.
func goQualifyMethod(node *sitter.Node, kind model.Kind, name string, source []byte) string {
	if kind != model.KindMethod || node.Type() != "method_declaration" {
		return name
	}
	receiver := node.ChildByFieldName("receiver")
	if receiver == nil {
		return name
	}
	for i := 0; i < int(receiver.NamedChildCount()); i++ {
		param := receiver.NamedChild(i)
		if param.Type() != "parameter_declaration" {
			continue
		}
		typ := param.ChildByFieldName("type")
		if typ == nil {
			break
		}
		recv := strings.TrimLeft(NodeText(typ, source), "*")
		if cut := strings.IndexByte(recv, '['); cut >= 0 {
			recv = recv[:cut]
		}
		if recv = strings.TrimSpace(recv); recv != "" {
			return recv + "." + name
		}
	}
	return name
}

package lang

import (
	"github.com/smacker/go-tree-sitter/python"
)

func init() {
	builtins["python"] = builtin{
		extensions: []string{".py"},
		grammar:    python.GetLanguage,
		query:      "python.scm",
	}
}

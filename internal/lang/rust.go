package lang

import (
	"github.com/smacker/go-tree-sitter/rust"
)

func init() {
	builtins["rust"] = builtin{
		extensions: []string{".rs"},
		grammar:    rust.GetLanguage,
		query:      "rust.scm",
	}
}

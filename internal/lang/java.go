package lang

import (
	"github.com/smacker/go-tree-sitter/java"
)

func init() {
	builtins["java"] = builtin{
		extensions: []string{".java"},
		grammar:    java.GetLanguage,
		query:      "java.scm",
	}
}

package lang

import (
	"github.com/smacker/go-tree-sitter/kotlin"
)

func init() {
	builtins["kotlin"] = builtin{
		extensions: []string{".kt", ".kts"},
		grammar:    kotlin.GetLanguage,
		query:      "kotlin.scm",
	}
}

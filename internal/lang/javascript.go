package lang

import (
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

func init() {
	builtins["javascript"] = builtin{
		extensions: []string{".js", ".jsx", ".mjs", ".cjs"},
		grammar:    javascript.GetLanguage,
		query:      "javascript.scm",
	}
	builtins["typescript"] = builtin{
		extensions: []string{".ts", ".mts", ".cts"},
		grammar:    typescript.GetLanguage,
		query:      "typescript.scm",
	}
	builtins["tsx"] = builtin{
		extensions: []string{".tsx"},
		grammar:    tsx.GetLanguage,
		query:      "typescript.scm",
	}
}

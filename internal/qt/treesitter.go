package qt

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
)

// SyntaxClassifier parses the file as C++ and only accepts the token as an identifier, so
// that mentions in comments and string literals are ignored. Files the parser rejects fall
// back to Fallback.
type SyntaxClassifier struct {
	Token    string
	Fallback Classifier
	parser   *sitter.Parser
}

func NewSyntaxClassifier(token string) *SyntaxClassifier {
	p := sitter.NewParser()
	p.SetLanguage(cpp.GetLanguage())
	return &SyntaxClassifier{
		Token:    token,
		Fallback: MarkerClassifier{Token: []byte(token)},
		parser:   p,
	}
}

func (c *SyntaxClassifier) Classify(content []byte) bool {
	tree, err := c.parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return c.Fallback.Classify(content)
	}
	defer tree.Close()

	return c.find(tree.RootNode(), content)
}

func (c *SyntaxClassifier) find(n *sitter.Node, content []byte) bool {
	switch n.Type() {
	case "comment", "string_literal", "raw_string_literal", "char_literal", "system_lib_string":
		return false
	case "identifier", "type_identifier", "field_identifier":
		return n.Content(content) == c.Token
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if c.find(n.Child(i), content) {
			return true
		}
	}
	return false
}

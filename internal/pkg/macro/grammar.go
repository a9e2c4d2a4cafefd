package macro

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var (
	ruleName       = lexer.SimpleRule{Name: "Name", Pattern: `[A-Za-z0-9_]+`}
	rulePunct      = lexer.SimpleRule{Name: "Punct", Pattern: `[().,]`}
	ruleWhitespace = lexer.SimpleRule{Name: "Whitespace", Pattern: `\s+`}
)

var macroLexer = lexer.MustSimple([]lexer.SimpleRule{
	ruleWhitespace,
	ruleName,
	rulePunct,
})

var macroParser = participle.MustBuild[sequenceExpr](
	participle.Lexer(macroLexer),
	participle.UseLookahead(2),
	participle.Elide(ruleWhitespace.Name),
)

// sequenceExpr is a dot separated chain of calls: k(a).w(10).k(b)
type sequenceExpr struct {
	Calls []*callExpr `parser:"@@ ( '.' @@ )*"`
}

type callExpr struct {
	Pos       lexer.Position
	Function  string     `parser:"@Name '('"`
	Arguments []*argExpr `parser:"( @@ ( ',' @@ )* )? ')'"`
}

type argExpr struct {
	Pos      lexer.Position
	Sequence *sequenceExpr `parser:"  @@"`
	Value    *string       `parser:"| @Name"`
}

// Package predicate implements a small comparison grammar for the engine's
// `terminate_when` expressions, e.g. "sent_count(producer) >= 10". Grounded
// on the betrace repo's internal/dsl/parser.go (participle v2 grammar,
// lexer.MustSimple token rules), narrowed from that grammar's full
// when/always/never trace-rule language down to a flat metric-comparison
// expression with and/or combinators.
package predicate

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// Expr is the top-level parsed form: an OR of AND-clauses, each an AND of
// Comparisons. Top-level precedence matches the betrace grammar's
// Condition/OrTerm/AndTerm structure.
type Expr struct {
	Or []*AndClause `@@ ( "or" @@ )*`
}

// AndClause is a conjunction of Comparisons.
type AndClause struct {
	Comparisons []*Comparison `@@ ( "and" @@ )*`
}

// Comparison is `metric(actor) OP number`.
type Comparison struct {
	Metric   *Metric `@@`
	Operator string  `@( "==" | "!=" | "<=" | ">=" | "<" | ">" )`
	Value    float64 `( @Float | @Int )`
}

// Metric is a named stats accessor applied to an actor name, e.g.
// `sent_count(producer)`.
type Metric struct {
	Func string `@Ident "("`
	Arg  string `@Ident ")"`
}

var predicateLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Whitespace", Pattern: `[ \t\n\r]+`},
	{Name: "Keyword", Pattern: `\b(and|or)\b`},
	{Name: "Float", Pattern: `\d+\.\d+`},
	{Name: "Int", Pattern: `\d+`},
	{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`},
	{Name: "Operator", Pattern: `==|!=|<=|>=|<|>`},
	{Name: "Punct", Pattern: `[()]`},
})

var parser = participle.MustBuild[Expr](
	participle.Lexer(predicateLexer),
	participle.Elide("Whitespace"),
	participle.UseLookahead(2),
)

// Parse compiles a terminate_when expression string into an Expr.
func Parse(input string) (*Expr, error) {
	return parser.ParseString("", input)
}

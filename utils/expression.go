package utils

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"
)

// ExprParserHelper rewrites every free identifier of an expression into a
// getValue("name") call and records the names. String literals, member names,
// builtins and keywords are separate node kinds and are never collected.
type ExprParserHelper struct {
	Identifiers []string
	seen        map[string]bool
}

func (e *ExprParserHelper) Visit(node *ast.Node) {
	n, ok := (*node).(*ast.IdentifierNode)
	if !ok || n.Value == "getValue" {
		return
	}
	ast.Patch(node, &ast.CallNode{
		Callee:    &ast.IdentifierNode{Value: "getValue"},
		Arguments: []ast.Node{&ast.StringNode{Value: n.Value}},
	})
	if e.seen == nil {
		e.seen = map[string]bool{}
	}
	if !e.seen[n.Value] {
		e.seen[n.Value] = true
		e.Identifiers = append(e.Identifiers, n.Value)
	}
}

// Predicate is a boolean expression compiled once and run per row.
type Predicate struct {
	Text    string
	Columns []string
	prog    *vm.Program
}

func CompilePredicate(text string) (*Predicate, error) {
	helper := ExprParserHelper{}
	prog, err := expr.Compile(text, expr.Patch(&helper))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", text, err)
	}
	return &Predicate{Text: text, Columns: helper.Identifiers, prog: prog}, nil
}

// Env binds the predicate to a value lookup. The returned env can be reused
// for every row as long as getValue follows the current row.
func (p *Predicate) Env(getValue func(name string) any) map[string]any {
	return map[string]any{"getValue": getValue}
}

func (p *Predicate) Run(env map[string]any) (bool, error) {
	out, err := expr.Run(p.prog, env)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate %q: %w", p.Text, err)
	}
	res, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%q evaluates to %T, not bool", p.Text, out)
	}
	return res, nil
}

// Conjoin joins expressions with "and", dropping empty ones.
func Conjoin(exprs ...string) string {
	var parts []string
	for _, e := range exprs {
		if strings.TrimSpace(e) == "" {
			continue
		}
		parts = append(parts, "("+e+")")
	}
	if len(parts) == 1 {
		return strings.TrimSuffix(strings.TrimPrefix(parts[0], "("), ")")
	}
	return strings.Join(parts, " and ")
}

// Test builders for planner tests. These construct the same ASTs the
// parser would, without going through query text, so each test controls
// the exact tree it plans.

package plan

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vanirdb/vanirdb/pkg/ast"
	"github.com/vanirdb/vanirdb/pkg/symbols"
)

type queryBuilder struct {
	storage   *ast.Storage
	anonCount int
}

func newQueryBuilder() *queryBuilder {
	return &queryBuilder{storage: ast.NewStorage()}
}

func (b *queryBuilder) anonIdent() *ast.Identifier {
	b.anonCount++
	return b.storage.NewAnonIdentifier(fmt.Sprintf("anon%d", b.anonCount))
}

func (b *queryBuilder) node(name string, labels ...string) *ast.NodeAtom {
	atom := b.storage.NewNodeAtom(b.storage.NewIdentifier(name))
	atom.Labels = labels
	return atom
}

func (b *queryBuilder) nodeWithProps(name string, labels []string, props ...ast.PropertyPair) *ast.NodeAtom {
	atom := b.node(name, labels...)
	atom.Properties = props
	return atom
}

func (b *queryBuilder) edge(name string, direction ast.EdgeDirection, types ...string) *ast.EdgeAtom {
	atom := b.storage.NewEdgeAtom(b.storage.NewIdentifier(name), direction)
	atom.EdgeTypes = types
	return atom
}

func (b *queryBuilder) varEdge(name string, direction ast.EdgeDirection, lower, upper ast.Expression) *ast.EdgeAtom {
	atom := b.storage.NewEdgeAtom(b.storage.NewIdentifier(name), direction)
	atom.Variable = true
	atom.LowerBound = lower
	atom.UpperBound = upper
	return atom
}

func (b *queryBuilder) pattern(atoms ...ast.PatternAtom) *ast.Pattern {
	return b.storage.NewPattern(b.anonIdent(), atoms...)
}

func (b *queryBuilder) namedPattern(name string, atoms ...ast.PatternAtom) *ast.Pattern {
	return b.storage.NewPattern(b.storage.NewIdentifier(name), atoms...)
}

func (b *queryBuilder) match(patterns ...*ast.Pattern) *ast.Match {
	return b.storage.NewMatch(false, nil, patterns...)
}

func (b *queryBuilder) matchWhere(where ast.Expression, patterns ...*ast.Pattern) *ast.Match {
	return b.storage.NewMatch(false, b.storage.NewWhere(where), patterns...)
}

func (b *queryBuilder) optionalMatch(patterns ...*ast.Pattern) *ast.Match {
	return b.storage.NewMatch(true, nil, patterns...)
}

func (b *queryBuilder) ident(name string) *ast.Identifier {
	return b.storage.NewIdentifier(name)
}

func (b *queryBuilder) prop(name, key string) *ast.PropertyLookup {
	return b.storage.NewPropertyLookup(b.ident(name), key)
}

func (b *queryBuilder) lit(value any) *ast.PrimitiveLiteral {
	return b.storage.NewPrimitiveLiteral(value)
}

func (b *queryBuilder) gt(lhs, rhs ast.Expression) *ast.BinaryOperator {
	return b.storage.NewBinaryOperator(ast.BinaryGreater, lhs, rhs)
}

func (b *queryBuilder) eq(lhs, rhs ast.Expression) *ast.BinaryOperator {
	return b.storage.NewBinaryOperator(ast.BinaryEqual, lhs, rhs)
}

func (b *queryBuilder) and(lhs, rhs ast.Expression) *ast.BinaryOperator {
	return b.storage.NewBinaryOperator(ast.BinaryAnd, lhs, rhs)
}

func (b *queryBuilder) add(lhs, rhs ast.Expression) *ast.BinaryOperator {
	return b.storage.NewBinaryOperator(ast.BinaryAdd, lhs, rhs)
}

func (b *queryBuilder) as(name string, expr ast.Expression) *ast.NamedExpression {
	return b.storage.NewNamedExpression(name, expr)
}

func (b *queryBuilder) ret(items ...*ast.NamedExpression) *ast.Return {
	return b.storage.NewReturn(ast.ReturnBody{NamedExpressions: items})
}

func (b *queryBuilder) retBody(body ast.ReturnBody) *ast.Return {
	return b.storage.NewReturn(body)
}

func (b *queryBuilder) with(where ast.Expression, items ...*ast.NamedExpression) *ast.With {
	var w *ast.Where
	if where != nil {
		w = b.storage.NewWhere(where)
	}
	return b.storage.NewWith(ast.ReturnBody{NamedExpressions: items}, w)
}

func (b *queryBuilder) create(patterns ...*ast.Pattern) *ast.Create {
	return b.storage.NewCreate(patterns...)
}

func (b *queryBuilder) query(clauses ...ast.Clause) *ast.Query {
	return b.storage.NewQuery(clauses...)
}

// plan resolves symbols and plans the query with the given catalog.
func (b *queryBuilder) plan(t *testing.T, query *ast.Query, catalog IndexCatalog) (LogicalOperator, *symbols.Table) {
	t.Helper()
	table, err := symbols.Generate(query)
	require.NoError(t, err)
	planner := NewRuleBasedPlanner(b.storage, table, catalog, DefaultOptions())
	root, err := planner.Plan(context.Background(), query)
	require.NoError(t, err)
	require.NotNil(t, root)
	return root, table
}

// opNames walks the main operator spine root-first.
func opNames(root LogicalOperator) []string {
	var names []string
	for op := root; op != nil; op = op.Input() {
		names = append(names, op.Name())
	}
	return names
}

// findOp returns the first operator of type T on the main spine.
func findOp[T LogicalOperator](t *testing.T, root LogicalOperator) T {
	t.Helper()
	for op := root; op != nil; op = op.Input() {
		if typed, ok := op.(T); ok {
			return typed
		}
	}
	var zero T
	t.Fatalf("operator %T not found in plan", zero)
	return zero
}

func symbolNameSet(syms []symbols.Symbol) map[string]bool {
	out := make(map[string]bool, len(syms))
	for _, sym := range syms {
		out[sym.Name] = true
	}
	return out
}

// fakeCatalog is a test IndexCatalog.
type fakeCatalog struct {
	counts map[string]int64 // "label/property" -> approximate vertex count
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{counts: make(map[string]int64)}
}

func (c *fakeCatalog) addIndex(label, property string, count int64) {
	c.counts[label+"/"+property] = count
}

func (c *fakeCatalog) LabelPropertyIndexExists(label, property string) bool {
	_, ok := c.counts[label+"/"+property]
	return ok
}

func (c *fakeCatalog) ApproxVertexCount(label, property string) int64 {
	return c.counts[label+"/"+property]
}

// checkBoundSymbols verifies that every operator only references symbols
// bound somewhere in its input subtree (or by itself), and returns the
// symbols the subtree introduces.
func checkBoundSymbols(t *testing.T, op LogicalOperator, table *symbols.Table,
	inherited symbolSet) symbolSet {
	t.Helper()
	if op == nil {
		return inherited
	}
	below := checkBoundSymbols(t, op.Input(), table, inherited)
	switch o := op.(type) {
	case *Optional:
		checkBoundSymbols(t, o.Branch, table, below.clone())
	case *Merge:
		checkBoundSymbols(t, o.MergeMatch, table, below.clone())
		checkBoundSymbols(t, o.MergeCreate, table, below.clone())
	}
	available := below.clone()
	for _, sym := range op.IntroducedSymbols(table) {
		available.add(sym)
	}
	for _, expr := range op.ReferencedExpressions() {
		for sym := range collectFreeSymbols(expr, table) {
			require.True(t, available.has(sym),
				"operator %s references unbound symbol %s", op.Name(), sym)
		}
	}
	return available
}

// checkSingleIntroduction verifies no symbol is introduced twice on any
// root-to-leaf path. Produce is exempt: RETURN * expansion re-emits the
// pass-through symbols it projects.
func checkSingleIntroduction(t *testing.T, op LogicalOperator, table *symbols.Table,
	seen symbolSet) {
	t.Helper()
	if op == nil {
		return
	}
	if _, isProduce := op.(*Produce); !isProduce {
		for _, sym := range op.IntroducedSymbols(table) {
			require.True(t, seen.add(sym),
				"symbol %s introduced twice on a root-to-leaf path", sym)
		}
	}
	switch o := op.(type) {
	case *Optional:
		checkSingleIntroduction(t, o.Branch, table, make(symbolSet))
	case *Merge:
		checkSingleIntroduction(t, o.MergeMatch, table, make(symbolSet))
		checkSingleIntroduction(t, o.MergeCreate, table, make(symbolSet))
	}
	checkSingleIntroduction(t, op.Input(), table, seen)
}

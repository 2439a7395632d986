// Expression classifier tests: aggregate/non-aggregate separation, used
// symbol tracking, group-by collection and '*' expansion.

package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanirdb/vanirdb/pkg/ast"
	"github.com/vanirdb/vanirdb/pkg/symbols"
)

// classifierFixture hand-builds symbol associations so each test controls
// exactly which symbols are bound and how identifiers resolve.
type classifierFixture struct {
	storage *ast.Storage
	table   *symbols.Table
	alloc   *symbols.Allocator
	bound   symbolSet
	syms    map[string]symbols.Symbol
}

func newClassifierFixture() *classifierFixture {
	table := symbols.NewTable()
	return &classifierFixture{
		storage: ast.NewStorage(),
		table:   table,
		alloc:   symbols.NewAllocator(table),
		bound:   make(symbolSet),
		syms:    make(map[string]symbols.Symbol),
	}
}

// bindNode declares a bound node symbol.
func (f *classifierFixture) bindNode(name string) symbols.Symbol {
	sym := f.table.CreateSymbol(name, true, symbols.KindNode, 0)
	f.syms[name] = sym
	f.bound.add(sym)
	return sym
}

// ident returns a fresh identifier resolved to the named symbol.
func (f *classifierFixture) ident(name string) *ast.Identifier {
	ident := f.storage.NewIdentifier(name)
	f.table.Associate(ident, f.syms[name])
	return ident
}

func (f *classifierFixture) prop(name, key string) *ast.PropertyLookup {
	return f.storage.NewPropertyLookup(f.ident(name), key)
}

// named wraps expr as `expr AS name` with a fresh output symbol.
func (f *classifierFixture) named(name string, expr ast.Expression) *ast.NamedExpression {
	ne := f.storage.NewNamedExpression(name, expr)
	f.table.Associate(ne, f.table.CreateSymbol(name, true, symbols.KindExpression, 0))
	return ne
}

// agg builds an aggregation with its virtual symbol.
func (f *classifierFixture) agg(op ast.AggregationOp, args ...ast.Expression) *ast.Aggregation {
	var a1, a2 ast.Expression
	if len(args) > 0 {
		a1 = args[0]
	}
	if len(args) > 1 {
		a2 = args[1]
	}
	node := f.storage.NewAggregation(op, a1, a2)
	f.table.Associate(node, f.table.CreateSymbol(op.String(), false, symbols.KindExpression, 0))
	return node
}

func (f *classifierFixture) classify(body ast.ReturnBody, where *ast.Where) *returnBodyContext {
	return newReturnBodyContext(&body, f.alloc, f.bound, f.storage, where)
}

func TestClassifierPlainProjection(t *testing.T) {
	f := newClassifierFixture()
	f.bindNode("n")
	body := ast.ReturnBody{NamedExpressions: []*ast.NamedExpression{
		f.named("k", f.prop("n", "k")),
	}}
	c := f.classify(body, nil)

	assert.Empty(t, c.aggregations)
	// Without aggregation the whole expression lands in group-by; it is
	// only consulted when aggregations exist.
	require.Len(t, c.groupBy, 1)
	assert.Equal(t, map[string]bool{"n": true}, symbolNameSet(c.usedSymbolList()))
	require.Len(t, c.outputSymbols, 1)
	assert.Equal(t, "k", c.outputSymbols[0].Name)
}

func TestClassifierMixedExpressionGroupsByNonAggregateChild(t *testing.T) {
	// sum(n.a) + n.b groups by n.b.
	f := newClassifierFixture()
	f.bindNode("n")
	nb := f.prop("n", "b")
	expr := f.storage.NewBinaryOperator(ast.BinaryAdd,
		f.agg(ast.AggregationSum, f.prop("n", "a")), nb)
	body := ast.ReturnBody{NamedExpressions: []*ast.NamedExpression{
		f.named("s", expr),
	}}
	c := f.classify(body, nil)

	require.Len(t, c.aggregations, 1)
	assert.Equal(t, ast.AggregationSum, c.aggregations[0].Op)
	require.Len(t, c.groupBy, 1)
	assert.Same(t, ast.Expression(nb), c.groupBy[0])
}

func TestClassifierNestedMixedExpression(t *testing.T) {
	// sum(n.a) + 2 * n.b AS s, n.c AS nc groups by `2 * n.b` and `n.c`.
	f := newClassifierFixture()
	f.bindNode("n")
	twice := f.storage.NewBinaryOperator(ast.BinaryMultiply,
		f.storage.NewPrimitiveLiteral(int64(2)), f.prop("n", "b"))
	sum := f.storage.NewBinaryOperator(ast.BinaryAdd,
		f.agg(ast.AggregationSum, f.prop("n", "a")), twice)
	nc := f.prop("n", "c")
	body := ast.ReturnBody{NamedExpressions: []*ast.NamedExpression{
		f.named("s", sum),
		f.named("nc", nc),
	}}
	c := f.classify(body, nil)

	require.Len(t, c.aggregations, 1)
	require.Len(t, c.groupBy, 2)
	assert.Same(t, ast.Expression(twice), c.groupBy[0])
	assert.Same(t, ast.Expression(nc), c.groupBy[1])
}

func TestClassifierCountStar(t *testing.T) {
	f := newClassifierFixture()
	f.bindNode("n")
	body := ast.ReturnBody{NamedExpressions: []*ast.NamedExpression{
		f.named("c", f.agg(ast.AggregationCount)),
	}}
	c := f.classify(body, nil)

	require.Len(t, c.aggregations, 1)
	assert.Nil(t, c.aggregations[0].Arg1)
	assert.Empty(t, c.groupBy)
	assert.Empty(t, c.usedSymbolList())
}

func TestClassifierCollectMap(t *testing.T) {
	// collectMap aggregates key/value argument pairs.
	f := newClassifierFixture()
	f.bindNode("n")
	body := ast.ReturnBody{NamedExpressions: []*ast.NamedExpression{
		f.named("m", f.agg(ast.AggregationCollectMap,
			f.prop("n", "k"), f.prop("n", "v"))),
	}}
	c := f.classify(body, nil)

	require.Len(t, c.aggregations, 1)
	assert.NotNil(t, c.aggregations[0].Arg1)
	assert.NotNil(t, c.aggregations[0].Arg2)
	assert.Empty(t, c.groupBy)
}

func TestClassifierAllQuantifierRemovesLocalSymbol(t *testing.T) {
	// ALL(x IN [1] WHERE x > n.v): x is bound inside the quantifier and
	// must not appear in used symbols.
	f := newClassifierFixture()
	f.bindNode("n")
	xIdent := f.storage.NewIdentifier("x")
	xSym := f.table.CreateSymbol("x", true, symbols.KindAny, 0)
	f.table.Associate(xIdent, xSym)
	xRef := f.storage.NewIdentifier("x")
	f.table.Associate(xRef, xSym)
	pred := f.storage.NewBinaryOperator(ast.BinaryGreater, xRef, f.prop("n", "v"))
	all := f.storage.NewAll(xIdent,
		f.storage.NewListLiteral(f.storage.NewPrimitiveLiteral(int64(1))),
		f.storage.NewWhere(pred))
	body := ast.ReturnBody{NamedExpressions: []*ast.NamedExpression{
		f.named("ok", all),
	}}
	c := f.classify(body, nil)

	assert.Equal(t, map[string]bool{"n": true}, symbolNameSet(c.usedSymbolList()))
	assert.Empty(t, c.aggregations)
}

func TestClassifierAggregationInsideCasePanics(t *testing.T) {
	f := newClassifierFixture()
	f.bindNode("n")
	caseExpr := f.storage.NewIfOperator(
		f.storage.NewPrimitiveLiteral(true),
		f.agg(ast.AggregationCount, f.ident("n")),
		f.storage.NewPrimitiveLiteral(int64(0)))
	body := ast.ReturnBody{NamedExpressions: []*ast.NamedExpression{
		f.named("x", caseExpr),
	}}
	assert.Panics(t, func() { f.classify(body, nil) })
}

func TestClassifierAggregationInOrderByPanics(t *testing.T) {
	// ORDER BY with an aggregation while the body has none is a contract
	// violation the semantic pass should have rejected.
	f := newClassifierFixture()
	f.bindNode("n")
	body := ast.ReturnBody{
		NamedExpressions: []*ast.NamedExpression{
			f.named("k", f.prop("n", "k")),
		},
		OrderBy: []ast.SortItem{{
			Ordering:   ast.OrderingAsc,
			Expression: f.agg(ast.AggregationCount, f.ident("n")),
		}},
	}
	assert.Panics(t, func() { f.classify(body, nil) })
}

func TestClassifierOrderByUsesOldSymbolsOnly(t *testing.T) {
	// Identifiers in ORDER BY referencing output symbols are not "used";
	// referencing old symbols is.
	f := newClassifierFixture()
	f.bindNode("n")
	ne := f.named("k", f.prop("n", "k"))
	orderIdent := f.storage.NewIdentifier("k")
	f.table.Associate(orderIdent, f.table.At(ne))
	body := ast.ReturnBody{
		NamedExpressions: []*ast.NamedExpression{ne},
		OrderBy: []ast.SortItem{{
			Ordering:   ast.OrderingAsc,
			Expression: orderIdent,
		}},
	}
	c := f.classify(body, nil)

	assert.Equal(t, map[string]bool{"n": true}, symbolNameSet(c.usedSymbolList()))
}

func TestClassifierStarExpansionSortsAndGroups(t *testing.T) {
	f := newClassifierFixture()
	f.bindNode("b")
	f.bindNode("a")
	// Anonymous symbols are not expanded.
	anon := f.table.CreateSymbol("anon1", false, symbols.KindNode, 0)
	f.bound.add(anon)
	body := ast.ReturnBody{AllIdentifiers: true}
	c := f.classify(body, nil)

	require.Len(t, c.namedExpressions, 2)
	assert.Equal(t, "a", c.namedExpressions[0].Name)
	assert.Equal(t, "b", c.namedExpressions[1].Name)
	require.Len(t, c.outputSymbols, 2)
	assert.Equal(t, "a", c.outputSymbols[0].Name)
	// Expanded identifiers participate in grouping.
	assert.Len(t, c.groupBy, 2)
	// Round trip: the produced symbols equal the user declared bound set.
	produced := symbolNameSet(c.outputSymbols)
	assert.Equal(t, map[string]bool{"a": true, "b": true}, produced)
}

func TestClassifierDistinctSkipLimitPassThrough(t *testing.T) {
	f := newClassifierFixture()
	f.bindNode("n")
	skip := f.storage.NewPrimitiveLiteral(int64(5))
	limit := f.storage.NewPrimitiveLiteral(int64(10))
	body := ast.ReturnBody{
		Distinct:         true,
		NamedExpressions: []*ast.NamedExpression{f.named("n2", f.ident("n"))},
		Skip:             skip,
		Limit:            limit,
	}
	c := f.classify(body, nil)

	assert.True(t, c.body.Distinct)
	assert.Same(t, ast.Expression(skip), c.body.Skip)
	assert.Same(t, ast.Expression(limit), c.body.Limit)
}

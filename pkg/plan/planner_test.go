// Planner pipeline tests: clause ordering, accumulation, scoping and the
// canonical operator shapes for the supported query forms.

package plan

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vanirdb/vanirdb/pkg/ast"
	"github.com/vanirdb/vanirdb/pkg/symbols"
)

func TestPlanMatchReturn(t *testing.T) {
	// MATCH (n) RETURN n
	b := newQueryBuilder()
	query := b.query(
		b.match(b.pattern(b.node("n"))),
		b.ret(b.as("n", b.ident("n"))),
	)
	root, table := b.plan(t, query, nil)

	assert.Equal(t, []string{"Produce", "ScanAll"}, opNames(root))
	checkBoundSymbols(t, root, table, make(symbolSet))
	checkSingleIntroduction(t, root, table, make(symbolSet))
}

func TestPlanLabelScanFilterOrderByLimit(t *testing.T) {
	// MATCH (n:L) WHERE n.p > 3 RETURN n.p AS p ORDER BY p LIMIT 10
	b := newQueryBuilder()
	query := b.query(
		b.matchWhere(b.gt(b.prop("n", "p"), b.lit(int64(3))),
			b.pattern(b.node("n", "L"))),
		b.retBody(ast.ReturnBody{
			NamedExpressions: []*ast.NamedExpression{b.as("p", b.prop("n", "p"))},
			OrderBy:          []ast.SortItem{{Ordering: ast.OrderingAsc, Expression: b.ident("p")}},
			Limit:            b.lit(int64(10)),
		}),
	)
	root, table := b.plan(t, query, nil)

	assert.Equal(t, []string{"Limit", "OrderBy", "Produce", "Filter", "ScanAllByLabel"},
		opNames(root))
	scan := findOp[*ScanAllByLabel](t, root)
	assert.Equal(t, "L", scan.Label)
	assert.Equal(t, "n", scan.OutputSymbol.Name)
	checkBoundSymbols(t, root, table, make(symbolSet))
}

func TestPlanCountStarAggregation(t *testing.T) {
	// MATCH (n) RETURN count(*) AS c
	b := newQueryBuilder()
	query := b.query(
		b.match(b.pattern(b.node("n"))),
		b.ret(b.as("c", b.storage.NewAggregation(ast.AggregationCount, nil, nil))),
	)
	root, table := b.plan(t, query, nil)

	assert.Equal(t, []string{"Produce", "Aggregate", "ScanAll"}, opNames(root))
	agg := findOp[*Aggregate](t, root)
	require.Len(t, agg.Aggregations, 1)
	assert.Equal(t, ast.AggregationCount, agg.Aggregations[0].Op)
	assert.Nil(t, agg.Aggregations[0].Arg1)
	assert.Empty(t, agg.GroupBy)
	assert.Empty(t, agg.RememberedSymbols)
	checkBoundSymbols(t, root, table, make(symbolSet))
}

func TestPlanAggregationWithGroupBy(t *testing.T) {
	// MATCH (n) RETURN n.k AS k, sum(n.v) AS s
	b := newQueryBuilder()
	query := b.query(
		b.match(b.pattern(b.node("n"))),
		b.ret(
			b.as("k", b.prop("n", "k")),
			b.as("s", b.storage.NewAggregation(ast.AggregationSum, b.prop("n", "v"), nil)),
		),
	)
	root, _ := b.plan(t, query, nil)

	assert.Equal(t, []string{"Produce", "Aggregate", "ScanAll"}, opNames(root))
	agg := findOp[*Aggregate](t, root)
	require.Len(t, agg.Aggregations, 1)
	assert.Equal(t, ast.AggregationSum, agg.Aggregations[0].Op)
	require.Len(t, agg.GroupBy, 1)
	assert.Equal(t, map[string]bool{"n": true}, symbolNameSet(agg.RememberedSymbols))
	produce := findOp[*Produce](t, root)
	require.Len(t, produce.NamedExpressions, 2)
	assert.Equal(t, "k", produce.NamedExpressions[0].Name)
	assert.Equal(t, "s", produce.NamedExpressions[1].Name)
}

func TestPlanWithAggregationAndWhere(t *testing.T) {
	// MATCH (a)-[e]->(b) WITH a, count(e) AS c WHERE c > 5 RETURN a
	b := newQueryBuilder()
	query := b.query(
		b.match(b.pattern(b.node("a"), b.edge("e", ast.EdgeRight), b.node("b"))),
		b.with(b.gt(b.ident("c"), b.lit(int64(5))),
			b.as("a", b.ident("a")),
			b.as("c", b.storage.NewAggregation(ast.AggregationCount, b.ident("e"), nil)),
		),
		b.ret(b.as("a", b.ident("a"))),
	)
	root, table := b.plan(t, query, nil)

	assert.Equal(t,
		[]string{"Produce", "Filter", "Produce", "Aggregate", "Expand", "ScanAll"},
		opNames(root))
	agg := findOp[*Aggregate](t, root)
	require.Len(t, agg.GroupBy, 1)
	assert.Equal(t, map[string]bool{"a": true, "e": true},
		symbolNameSet(agg.RememberedSymbols))
	checkBoundSymbols(t, root, table, make(symbolSet))
	checkSingleIntroduction(t, root, table, make(symbolSet))
}

func TestPlanCreateExpandAccumulate(t *testing.T) {
	// CREATE (a)-[e:R]->(b) RETURN a
	b := newQueryBuilder()
	query := b.query(
		b.create(b.pattern(b.node("a"), b.edge("e", ast.EdgeRight, "R"), b.node("b"))),
		b.ret(b.as("a", b.ident("a"))),
	)
	root, table := b.plan(t, query, nil)

	assert.Equal(t, []string{"Produce", "Accumulate", "CreateExpand", "CreateNode"},
		opNames(root))
	acc := findOp[*Accumulate](t, root)
	assert.False(t, acc.AdvanceCommand)
	assert.Equal(t, map[string]bool{"a": true}, symbolNameSet(acc.Symbols))
	expand := findOp[*CreateExpand](t, root)
	assert.Equal(t, "a", expand.InputSymbol.Name)
	assert.False(t, expand.ExistingNode)
	checkBoundSymbols(t, root, table, make(symbolSet))
	checkSingleIntroduction(t, root, table, make(symbolSet))
}

func TestPlanCreateIntoExistingNode(t *testing.T) {
	// MATCH (a), (b) CREATE (a)-[e:R]->(b)
	b := newQueryBuilder()
	query := b.query(
		b.match(b.pattern(b.node("a")), b.pattern(b.node("b"))),
		b.create(b.pattern(b.node("a"), b.edge("e", ast.EdgeRight, "R"), b.node("b"))),
	)
	root, _ := b.plan(t, query, nil)

	assert.Equal(t, []string{"CreateExpand", "ScanAll", "ScanAll"}, opNames(root))
	expand := findOp[*CreateExpand](t, root)
	assert.True(t, expand.ExistingNode)
}

func TestPlanCreateUndirectedEdgeFails(t *testing.T) {
	b := newQueryBuilder()
	query := b.query(
		b.create(b.pattern(b.node("a"), b.edge("e", ast.EdgeBoth, "R"), b.node("b"))),
	)
	table, err := symbols.Generate(query)
	require.NoError(t, err)
	planner := NewRuleBasedPlanner(b.storage, table, nil, DefaultOptions())
	_, err = planner.Plan(context.Background(), query)
	var semErr *symbols.SemanticError
	require.ErrorAs(t, err, &semErr)
	assert.Equal(t, symbols.ErrInvalidQueryStructure, semErr.Kind)
}

func TestPlanWithScopeReset(t *testing.T) {
	// MATCH (a), (b) WITH a RETURN b must fail: b went out of scope.
	b := newQueryBuilder()
	query := b.query(
		b.match(b.pattern(b.node("a")), b.pattern(b.node("b"))),
		b.with(nil, b.as("a", b.ident("a"))),
		b.ret(b.as("b", b.ident("b"))),
	)
	_, err := symbols.Generate(query)
	var semErr *symbols.SemanticError
	require.ErrorAs(t, err, &semErr)
	assert.Equal(t, symbols.ErrUnboundVariable, semErr.Kind)
}

func TestPlanReturnStarSortedByName(t *testing.T) {
	// MATCH (b), (a) RETURN * expands sorted ascending by symbol name.
	b := newQueryBuilder()
	query := b.query(
		b.match(b.pattern(b.node("b")), b.pattern(b.node("a"))),
		b.retBody(ast.ReturnBody{AllIdentifiers: true}),
	)
	root, table := b.plan(t, query, nil)

	produce := findOp[*Produce](t, root)
	require.Len(t, produce.NamedExpressions, 2)
	assert.Equal(t, "a", produce.NamedExpressions[0].Name)
	assert.Equal(t, "b", produce.NamedExpressions[1].Name)
	// The produced symbols are exactly the user declared bound set.
	syms := produce.IntroducedSymbols(table)
	assert.Equal(t, map[string]bool{"a": true, "b": true}, symbolNameSet(syms))
	for _, sym := range syms {
		assert.True(t, sym.UserDeclared)
	}
}

func TestPlanNamedPathAfterAtomsBound(t *testing.T) {
	// MATCH p = (a)-[e]->(b) RETURN p
	b := newQueryBuilder()
	query := b.query(
		b.match(b.namedPattern("p", b.node("a"), b.edge("e", ast.EdgeRight), b.node("b"))),
		b.ret(b.as("p", b.ident("p"))),
	)
	root, table := b.plan(t, query, nil)

	assert.Equal(t, []string{"Produce", "ConstructNamedPath", "Expand", "ScanAll"},
		opNames(root))
	path := findOp[*ConstructNamedPath](t, root)
	assert.Equal(t, "p", path.PathSymbol.Name)
	assert.Equal(t, map[string]bool{"a": true, "e": true, "b": true},
		symbolNameSet(path.PathElements))
	checkBoundSymbols(t, root, table, make(symbolSet))
}

func TestPlanCreateNamedPath(t *testing.T) {
	// CREATE p = (a)-[e:R]->(b) RETURN p
	b := newQueryBuilder()
	query := b.query(
		b.create(b.namedPattern("p", b.node("a"), b.edge("e", ast.EdgeRight, "R"), b.node("b"))),
		b.ret(b.as("p", b.ident("p"))),
	)
	root, table := b.plan(t, query, nil)

	assert.Equal(t,
		[]string{"Produce", "Accumulate", "ConstructNamedPath", "CreateExpand", "CreateNode"},
		opNames(root))
	checkBoundSymbols(t, root, table, make(symbolSet))
}

func TestPlanOptionalMatch(t *testing.T) {
	// MATCH (a) OPTIONAL MATCH (a)-[e]->(b) RETURN b
	b := newQueryBuilder()
	query := b.query(
		b.match(b.pattern(b.node("a"))),
		b.storage.NewMatch(true, nil,
			b.pattern(b.node("a"), b.edge("e", ast.EdgeRight), b.node("b"))),
		b.ret(b.as("b", b.ident("b"))),
	)
	root, table := b.plan(t, query, nil)

	assert.Equal(t, []string{"Produce", "Optional", "ScanAll"}, opNames(root))
	opt := findOp[*Optional](t, root)
	assert.Equal(t, map[string]bool{"e": true, "b": true},
		symbolNameSet(opt.OptionalSymbols))
	require.NotNil(t, opt.Branch)
	assert.Equal(t, []string{"Expand"}, opNames(opt.Branch))
	checkBoundSymbols(t, root, table, make(symbolSet))
	checkSingleIntroduction(t, root, table, make(symbolSet))
}

func TestPlanUnwind(t *testing.T) {
	// UNWIND [1, 2] AS x RETURN x
	b := newQueryBuilder()
	query := b.query(
		b.storage.NewUnwind(b.as("x", b.storage.NewListLiteral(b.lit(int64(1)), b.lit(int64(2))))),
		b.ret(b.as("x", b.ident("x"))),
	)
	root, table := b.plan(t, query, nil)

	assert.Equal(t, []string{"Produce", "Unwind"}, opNames(root))
	unwind := findOp[*Unwind](t, root)
	assert.Equal(t, "x", unwind.OutputSymbol.Name)
	checkBoundSymbols(t, root, table, make(symbolSet))
}

func TestPlanWriteClauses(t *testing.T) {
	b := newQueryBuilder()
	query := b.query(
		b.match(b.pattern(b.node("n"))),
		b.storage.NewSetProperty(b.prop("n", "x"), b.lit(int64(1))),
		b.storage.NewSetProperties(b.ident("n"), b.storage.NewMapLiteral(), true),
		b.storage.NewSetLabels(b.ident("n"), []string{"L"}),
		b.storage.NewRemoveProperty(b.prop("n", "y")),
		b.storage.NewRemoveLabels(b.ident("n"), []string{"M"}),
		b.storage.NewDelete(true, b.ident("n")),
	)
	root, table := b.plan(t, query, nil)

	assert.Equal(t, []string{
		"Delete", "RemoveLabels", "RemoveProperty", "SetLabels", "SetProperties",
		"SetProperty", "ScanAll",
	}, opNames(root))
	setProps := findOp[*SetProperties](t, root)
	assert.Equal(t, SetPropertiesUpdate, setProps.Op)
	del := findOp[*Delete](t, root)
	assert.True(t, del.Detach)
	checkBoundSymbols(t, root, table, make(symbolSet))
}

func TestPlanSetThenReturnAccumulates(t *testing.T) {
	// MATCH (n) SET n.p = 1 RETURN n accumulates without advancing.
	b := newQueryBuilder()
	query := b.query(
		b.match(b.pattern(b.node("n"))),
		b.storage.NewSetProperty(b.prop("n", "p"), b.lit(int64(1))),
		b.ret(b.as("n", b.ident("n"))),
	)
	root, _ := b.plan(t, query, nil)

	assert.Equal(t, []string{"Produce", "Accumulate", "SetProperty", "ScanAll"},
		opNames(root))
	acc := findOp[*Accumulate](t, root)
	assert.False(t, acc.AdvanceCommand)
}

func TestPlanWriteThenWithAdvancesCommand(t *testing.T) {
	// CREATE (n) WITH n RETURN n: the WITH must accumulate and advance.
	b := newQueryBuilder()
	query := b.query(
		b.create(b.pattern(b.node("n"))),
		b.with(nil, b.as("n", b.ident("n"))),
		b.ret(b.as("n", b.ident("n"))),
	)
	root, _ := b.plan(t, query, nil)

	assert.Equal(t,
		[]string{"Produce", "Accumulate", "Produce", "Accumulate", "CreateNode"},
		opNames(root))
	// The WITH's Accumulate (the lower one) advances the command; the
	// RETURN's does not.
	var accs []*Accumulate
	for op := root; op != nil; op = op.Input() {
		if acc, ok := op.(*Accumulate); ok {
			accs = append(accs, acc)
		}
	}
	require.Len(t, accs, 2)
	assert.False(t, accs[0].AdvanceCommand)
	assert.True(t, accs[1].AdvanceCommand)
}

func TestPlanMergeBranches(t *testing.T) {
	// MERGE (n:L) ON MATCH SET n.seen = 1 ON CREATE SET n.new = 1 RETURN n
	b := newQueryBuilder()
	pattern := b.pattern(b.node("n", "L"))
	merge := b.storage.NewMerge(pattern,
		[]ast.Clause{b.storage.NewSetProperty(b.prop("n", "seen"), b.lit(int64(1)))},
		[]ast.Clause{b.storage.NewSetProperty(b.prop("n", "new"), b.lit(int64(1)))},
	)
	query := b.query(merge, b.ret(b.as("n", b.ident("n"))))
	root, table := b.plan(t, query, nil)

	assert.Equal(t, []string{"Produce", "Accumulate", "Merge"}, opNames(root))
	mergeOp := findOp[*Merge](t, root)
	assert.Equal(t, map[string]bool{"n": true}, symbolNameSet(mergeOp.IntroducedSyms))
	// Match branch: SetProperty over the filtered label scan.
	assert.Equal(t, []string{"SetProperty", "ScanAllByLabel"}, opNames(mergeOp.MergeMatch))
	// Create branch: SetProperty over CreateNode.
	assert.Equal(t, []string{"SetProperty", "CreateNode"}, opNames(mergeOp.MergeCreate))
	checkSingleIntroduction(t, root, table, make(symbolSet))
}

func TestPlanReturnMustBeLast(t *testing.T) {
	b := newQueryBuilder()
	query := b.query(
		b.match(b.pattern(b.node("n"))),
		b.ret(b.as("n", b.ident("n"))),
		b.match(b.pattern(b.node("m"))),
	)
	table, err := symbols.Generate(query)
	require.NoError(t, err)
	planner := NewRuleBasedPlanner(b.storage, table, nil, DefaultOptions())
	_, err = planner.Plan(context.Background(), query)
	var semErr *symbols.SemanticError
	require.ErrorAs(t, err, &semErr)
	assert.Equal(t, symbols.ErrInvalidQueryStructure, semErr.Kind)
}

func TestPlanQueryMustReturnOrWrite(t *testing.T) {
	b := newQueryBuilder()
	query := b.query(b.match(b.pattern(b.node("n"))))
	table, err := symbols.Generate(query)
	require.NoError(t, err)
	planner := NewRuleBasedPlanner(b.storage, table, nil, DefaultOptions())
	_, err = planner.Plan(context.Background(), query)
	var semErr *symbols.SemanticError
	require.ErrorAs(t, err, &semErr)
}

func TestPlanCreateIndexStandsAlone(t *testing.T) {
	b := newQueryBuilder()
	query := b.query(b.storage.NewCreateIndex("L", "p"))
	root, _ := b.plan(t, query, nil)
	idx, ok := root.(*CreateIndex)
	require.True(t, ok)
	assert.Equal(t, "L", idx.Label)
	assert.Equal(t, "p", idx.Property)
	assert.Nil(t, root.Input())
}

func TestPlanAbortsOnCancelledContext(t *testing.T) {
	b := newQueryBuilder()
	query := b.query(
		b.match(b.pattern(b.node("n"))),
		b.ret(b.as("n", b.ident("n"))),
	)
	table, err := symbols.Generate(query)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	planner := NewRuleBasedPlanner(b.storage, table, nil, DefaultOptions())
	_, err = planner.Plan(ctx, query)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPlanIsDeterministic(t *testing.T) {
	build := func() (string, *ast.Query, *queryBuilder) {
		b := newQueryBuilder()
		query := b.query(
			b.matchWhere(
				b.and(b.gt(b.prop("a", "x"), b.lit(int64(0))),
					b.gt(b.prop("b", "y"), b.lit(int64(0)))),
				b.pattern(b.node("a", "L"), b.edge("e", ast.EdgeRight, "R"), b.node("b"))),
			b.ret(b.as("a", b.ident("a")), b.as("b", b.ident("b"))),
		)
		root, table := b.plan(t, query, nil)
		return Format(root, table), query, b
	}
	first, _, _ := build()
	second, _, _ := build()
	assert.Equal(t, first, second)
}

func TestPlanSameInputsTwiceIdentical(t *testing.T) {
	// Planning the identical (AST, SymbolTable) twice yields structurally
	// identical trees.
	b := newQueryBuilder()
	query := b.query(
		b.match(b.pattern(b.node("n", "L"))),
		b.ret(b.as("n", b.ident("n"))),
	)
	table, err := symbols.Generate(query)
	require.NoError(t, err)

	planOnce := func() string {
		planner := NewRuleBasedPlanner(b.storage, table, nil, DefaultOptions())
		root, err := planner.Plan(context.Background(), query)
		require.NoError(t, err)
		return Format(root, table)
	}
	assert.Equal(t, planOnce(), planOnce())
}

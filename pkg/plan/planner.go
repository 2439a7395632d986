// Rule-based query planner for VanirDB.
// This file holds the top level assembler: it iterates clauses in source
// order, threads the bound-symbol set, the write marker and the operator
// tail, and dispatches each clause to its planner.

package plan

import (
	"context"
	"fmt"

	"github.com/vanirdb/vanirdb/pkg/ast"
	"github.com/vanirdb/vanirdb/pkg/symbols"
)

// DefaultVertexCountToExpandExisting bounds how many indexed vertices make
// an indexed lookup plus expand-to-existing preferable to a regular
// expansion. -1 disables the rewrite.
const DefaultVertexCountToExpandExisting = 10

// Options are the planner knobs.
type Options struct {
	VertexCountToExpandExisting int64
}

// DefaultOptions returns the stock planner configuration.
func DefaultOptions() Options {
	return Options{VertexCountToExpandExisting: DefaultVertexCountToExpandExisting}
}

// Validate checks option ranges.
func (o Options) Validate() error {
	if o.VertexCountToExpandExisting < -1 {
		return fmt.Errorf("vertex count to expand existing must be -1 or greater, got %d",
			o.VertexCountToExpandExisting)
	}
	return nil
}

// RuleBasedPlanner turns one analyzed query into one logical operator tree.
// A planner instance is single use and not safe for concurrent sharing;
// concurrent queries each build their own, which needs no synchronization
// because planners share nothing.
type RuleBasedPlanner struct {
	storage *ast.Storage
	table   *symbols.Table
	alloc   *symbols.Allocator
	catalog IndexCatalog
	opts    Options
	ctx     context.Context
}

// NewRuleBasedPlanner builds a planner over the query's AST storage and
// resolved symbol table. catalog may be nil when no index metadata is
// available; the planner then plans no index lookups, only label scans and
// full scans.
func NewRuleBasedPlanner(storage *ast.Storage, table *symbols.Table,
	catalog IndexCatalog, opts Options) *RuleBasedPlanner {
	return &RuleBasedPlanner{
		storage: storage,
		table:   table,
		alloc:   symbols.NewAllocator(table),
		catalog: catalog,
		opts:    opts,
	}
}

// planState is the assembler thread state.
type planState struct {
	bound     symbolSet
	isWrite   bool
	tail      LogicalOperator
	sawReturn bool
}

// abortError carries a context cancellation out of deep recursion.
type abortError struct{ err error }

// Plan emits the logical operator tree for query. Expected semantic errors
// come back as *symbols.SemanticError; ctx cancellation as ctx.Err().
// Contract violations (malformed patterns, unresolved symbols, aggregates
// where the semantic pass must have rejected them) panic, because any plan
// built past them would be wrong. No partial plan is ever returned.
func (p *RuleBasedPlanner) Plan(ctx context.Context, query *ast.Query) (op LogicalOperator, err error) {
	p.ctx = ctx
	ast.AssertAcyclic(query)
	defer func() {
		if r := recover(); r != nil {
			switch e := r.(type) {
			case *symbols.SemanticError:
				op, err = nil, e
			case abortError:
				op, err = nil, e.err
			default:
				panic(r)
			}
		}
	}()

	st := &planState{bound: make(symbolSet)}
	for _, clause := range query.Clauses {
		p.checkAbort()
		if st.sawReturn {
			semanticErr(symbols.ErrInvalidQueryStructure,
				"RETURN can only appear at the end of a query")
		}
		switch c := clause.(type) {
		case *ast.Match:
			st.tail = p.planMatch(c, st)
		case *ast.Return:
			st.tail = p.genReturn(c, st)
			st.sawReturn = true
		case *ast.With:
			st.tail = p.genWith(c, st)
		case *ast.Create:
			st.tail = p.genCreate(c, st)
			st.isWrite = true
		case *ast.Merge:
			st.tail = p.genMerge(c, st)
			st.isWrite = true
		case *ast.Unwind:
			st.tail = p.genUnwind(c, st)
		case *ast.CreateIndex:
			if len(query.Clauses) != 1 {
				semanticErr(symbols.ErrInvalidQueryStructure,
					"CREATE INDEX cannot be combined with other clauses")
			}
			st.tail = NewCreateIndex(c.Label, c.Property)
		default:
			st.tail = p.genWriteClause(clause, st.tail)
			st.isWrite = true
		}
	}
	if _, isIndex := st.tail.(*CreateIndex); !isIndex && !st.sawReturn && !st.isWrite {
		semanticErr(symbols.ErrInvalidQueryStructure,
			"query must either write to the database or RETURN results")
	}
	return st.tail, nil
}

func (p *RuleBasedPlanner) checkAbort() {
	if p.ctx != nil {
		if err := p.ctx.Err(); err != nil {
			panic(abortError{err})
		}
	}
}

func semanticErr(kind symbols.ErrorKind, format string, args ...any) {
	panic(&symbols.SemanticError{Kind: kind, Message: fmt.Sprintf(format, args...)})
}

// genReturn plans a RETURN clause. When earlier clauses wrote to the
// database the pipeline accumulates first, so repeated matches of the same
// record return its final value; RETURN never advances the command.
func (p *RuleBasedPlanner) genReturn(ret *ast.Return, st *planState) LogicalOperator {
	accumulate := st.isWrite
	body := newReturnBodyContext(&ret.Body, p.alloc, st.bound, p.storage, nil)
	return p.genReturnBody(st.tail, false, body, accumulate)
}

// genWith plans a WITH clause and resets the bound symbols to exactly the
// projected ones; WITH is the only scoping boundary.
func (p *RuleBasedPlanner) genWith(with *ast.With, st *planState) LogicalOperator {
	// When the first part updated the database we accumulate and advance
	// the command, so the second part observes final values.
	accumulate := st.isWrite
	advanceCommand := st.isWrite
	body := newReturnBodyContext(&with.Body, p.alloc, st.bound, p.storage, with.Where)
	last := p.genReturnBody(st.tail, advanceCommand, body, accumulate)
	st.bound = newSymbolSet(body.outputSymbols...)
	return last
}

// genReturnBody threads the shared RETURN/WITH pipeline, bottom-up:
// Accumulate, Aggregate, Produce, Distinct, OrderBy, Skip, Limit, Filter.
func (p *RuleBasedPlanner) genReturnBody(input LogicalOperator, advanceCommand bool,
	body *returnBodyContext, accumulate bool) LogicalOperator {
	used := body.usedSymbolList()
	last := input
	if accumulate {
		last = NewAccumulate(last, used, advanceCommand)
	}
	if len(body.aggregations) > 0 {
		// With aggregation present, SKIP and LIMIT always apply after it.
		last = NewAggregate(last, body.aggregations, body.groupBy, used)
	}
	last = NewProduce(last, body.namedExpressions)
	// Distinct only makes produced values unique, so it follows Produce.
	if body.body.Distinct {
		last = NewDistinct(last, body.outputSymbols)
	}
	// OrderBy can read symbols established by Produce, so it comes after.
	if len(body.body.OrderBy) > 0 {
		last = NewOrderBy(last, body.body.OrderBy, body.outputSymbols)
	}
	if body.body.Skip != nil {
		last = NewSkip(last, body.body.Skip)
	}
	// Limit is always after Skip.
	if body.body.Limit != nil {
		last = NewLimit(last, body.body.Limit)
	}
	// WHERE may filter on newly produced columns, so it closes the
	// pipeline.
	if body.where != nil {
		last = NewFilter(last, body.where.Expression)
	}
	return last
}

// genCreate plans a CREATE clause pattern by pattern.
func (p *RuleBasedPlanner) genCreate(create *ast.Create, st *planState) LogicalOperator {
	last := st.tail
	for _, pattern := range create.Patterns {
		p.checkAbort()
		last = p.genCreateForPattern(pattern, last, st)
	}
	return last
}

// genCreateForPattern emits CreateNode/CreateExpand for one pattern. A
// node whose symbol is already bound refers to the existing vertex; an
// edge symbol must always be new. The semantic pass rejects edge
// re-declaration up front, so seeing one here means a pass upstream is
// broken.
func (p *RuleBasedPlanner) genCreateForPattern(pattern *ast.Pattern,
	input LogicalOperator, st *planState) LogicalOperator {
	base := func(node *ast.NodeAtom) LogicalOperator {
		if st.bound.add(p.table.At(node.Identifier)) {
			return NewCreateNode(input, node)
		}
		return input
	}
	collect := func(last LogicalOperator, prevNode *ast.NodeAtom, edge *ast.EdgeAtom,
		node *ast.NodeAtom) LogicalOperator {
		p.checkAbort()
		if edge.Direction == ast.EdgeBoth {
			semanticErr(symbols.ErrInvalidQueryStructure,
				"relationships created with CREATE must have a direction")
		}
		// The previous node's symbol feeds CreateExpand; an already bound
		// second node makes the operator create only the edge.
		inputSymbol := p.table.At(prevNode.Identifier)
		nodeExisting := !st.bound.add(p.table.At(node.Identifier))
		if !st.bound.add(p.table.At(edge.Identifier)) {
			panic("plan: symbol of a created edge was already bound")
		}
		return NewCreateExpand(last, node, edge, inputSymbol, nodeExisting)
	}
	last := ReducePattern(pattern, base, collect)

	if pattern.Identifier != nil && pattern.Identifier.UserDeclared {
		pathSymbol := p.table.At(pattern.Identifier)
		elements := p.atomSymbols(pattern)
		last = NewConstructNamedPath(last, pathSymbol, elements)
		st.bound.add(pathSymbol)
	}
	return last
}

func (p *RuleBasedPlanner) atomSymbols(pattern *ast.Pattern) []symbols.Symbol {
	syms := make([]symbols.Symbol, 0, len(pattern.Atoms))
	for _, atom := range pattern.Atoms {
		syms = append(syms, p.table.At(atom.AtomIdentifier()))
	}
	return syms
}

// genWriteClause plans SET, REMOVE and DELETE clauses.
func (p *RuleBasedPlanner) genWriteClause(clause ast.Clause, input LogicalOperator) LogicalOperator {
	switch c := clause.(type) {
	case *ast.Delete:
		return NewDelete(input, c.Expressions, c.Detach)
	case *ast.SetProperty:
		return NewSetProperty(input, c.PropertyLookup, c.Expression)
	case *ast.SetProperties:
		op := SetPropertiesReplace
		if c.Update {
			op = SetPropertiesUpdate
		}
		return NewSetProperties(input, p.table.At(c.Identifier), c.Expression, op)
	case *ast.SetLabels:
		return NewSetLabels(input, p.table.At(c.Identifier), c.Labels)
	case *ast.RemoveProperty:
		return NewRemoveProperty(input, c.PropertyLookup)
	case *ast.RemoveLabels:
		return NewRemoveLabels(input, p.table.At(c.Identifier), c.Labels)
	}
	panic(fmt.Sprintf("plan: unhandled write clause %T", clause))
}

// genUnwind binds the UNWIND variable to each element of the list.
func (p *RuleBasedPlanner) genUnwind(unwind *ast.Unwind, st *planState) LogicalOperator {
	sym := p.table.At(unwind.NamedExpression)
	last := NewUnwind(st.tail, unwind.NamedExpression.Expression, sym)
	st.bound.add(sym)
	return last
}

// genMerge plans MERGE as a match branch tried per input row with a create
// branch taken when the match yields nothing. ON MATCH and ON CREATE
// actions extend their respective branches.
func (p *RuleBasedPlanner) genMerge(merge *ast.Merge, st *planState) LogicalOperator {
	// The match branch plans against a copy of the bound set: it must
	// treat outer symbols as bound, but only the create branch decides
	// which symbols the merge introduces.
	matchState := &planState{bound: st.bound.clone()}
	synthetic := &ast.Match{Patterns: []*ast.Pattern{merge.Pattern}}
	matchBranch := p.planMatchPart(synthetic, nil, matchState)
	for _, action := range merge.OnMatch {
		matchBranch = p.genWriteClause(action, matchBranch)
	}

	before := st.bound.clone()
	createBranch := p.genCreateForPattern(merge.Pattern, nil, st)
	for _, action := range merge.OnCreate {
		createBranch = p.genWriteClause(action, createBranch)
	}

	introduced := make(symbolSet)
	for sym := range st.bound {
		if !before.has(sym) {
			introduced.add(sym)
		}
	}
	return NewMerge(st.tail, matchBranch, createBranch, introduced.sorted())
}

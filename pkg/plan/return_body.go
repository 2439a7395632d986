// Return body classification for VanirDB planning.
// This file separates aggregate from non-aggregate sub-expressions inside a
// RETURN or WITH body and collects everything genReturnBody needs: output
// symbols, used (old) symbols, aggregations and group-by expressions.

package plan

import (
	"fmt"
	"sort"

	"github.com/vanirdb/vanirdb/pkg/ast"
	"github.com/vanirdb/vanirdb/pkg/symbols"
)

// returnBodyContext is built once per RETURN or WITH clause. It walks the
// body's named expressions in post order, maintaining a stack of "this
// subexpression contains an aggregation" flags. Whenever a composite
// expression mixes aggregate and non-aggregate children, the non-aggregate
// children become group-by expressions.
type returnBodyContext struct {
	body    *ast.ReturnBody
	alloc   *symbols.Allocator
	bound   symbolSet
	storage *ast.Storage
	where   *ast.Where

	usedSymbols      symbolSet
	outputSymbols    []symbols.Symbol
	aggregations     []AggregateElement
	groupBy          []ast.Expression
	namedExpressions []*ast.NamedExpression

	// hasAggregation is the classification stack; one flag per fully
	// visited subexpression.
	hasAggregation []bool
}

func newReturnBodyContext(body *ast.ReturnBody, alloc *symbols.Allocator,
	bound symbolSet, storage *ast.Storage, where *ast.Where) *returnBodyContext {
	c := &returnBodyContext{
		body:        body,
		alloc:       alloc,
		bound:       bound,
		storage:     storage,
		where:       where,
		usedSymbols: make(symbolSet),
	}
	if body.AllIdentifiers {
		// Expand '*' first so its results come before regular named
		// expressions.
		c.expandUserSymbols()
	}
	for _, ne := range body.NamedExpressions {
		c.outputSymbols = append(c.outputSymbols, c.table().At(ne))
		ast.Walk(ne, c)
		c.namedExpressions = append(c.namedExpressions, ne)
	}
	if len(c.aggregations) == 0 {
		// Visit ORDER BY and WHERE only when the body has no aggregations;
		// otherwise we would wrongly collect group-by expressions from
		// them. With aggregation present they may only use new symbols, so
		// their used symbols are irrelevant too.
		before := len(c.aggregations)
		for _, item := range body.OrderBy {
			ast.Walk(item.Expression, c)
			c.hasAggregation = c.hasAggregation[:0]
		}
		if where != nil {
			ast.Walk(where.Expression, c)
			c.hasAggregation = c.hasAggregation[:0]
		}
		if len(c.aggregations) != before {
			panic("plan: unexpected aggregation in ORDER BY or WHERE")
		}
	}
	return c
}

func (c *returnBodyContext) table() *symbols.Table { return c.alloc.Table() }

// expandUserSymbols creates an identifier and named expression for every
// user declared bound symbol, sorted ascending by name as RETURN * and
// WITH * require.
func (c *returnBodyContext) expandUserSymbols() {
	if len(c.namedExpressions) != 0 || len(c.outputSymbols) != 0 {
		panic("plan: '*' expansion must run before named expressions are collected")
	}
	expanded := make([]symbols.Symbol, 0, len(c.bound))
	for sym := range c.bound {
		if sym.UserDeclared {
			expanded = append(expanded, sym)
		}
	}
	sort.Slice(expanded, func(i, j int) bool { return expanded[i].Name < expanded[j].Name })
	for _, sym := range expanded {
		ident := c.storage.NewAnonIdentifier(sym.Name)
		c.alloc.Associate(ident, sym)
		ne := c.storage.NewNamedExpression(sym.Name, ident)
		c.alloc.Associate(ne, sym)
		c.namedExpressions = append(c.namedExpressions, ne)
		c.outputSymbols = append(c.outputSymbols, sym)
		c.usedSymbols.add(sym)
		// The expanded identifiers are group-by expressions too.
		c.groupBy = append(c.groupBy, ident)
	}
}

func (c *returnBodyContext) push(flag bool) {
	c.hasAggregation = append(c.hasAggregation, flag)
}

func (c *returnBodyContext) pop() bool {
	if len(c.hasAggregation) == 0 {
		panic("plan: classification stack underflow")
	}
	flag := c.hasAggregation[len(c.hasAggregation)-1]
	c.hasAggregation = c.hasAggregation[:len(c.hasAggregation)-1]
	return flag
}

// popN pops count flags and returns their disjunction.
func (c *returnBodyContext) popN(count int) bool {
	hasAggr := false
	for i := 0; i < count; i++ {
		hasAggr = c.pop() || hasAggr
	}
	return hasAggr
}

func (c *returnBodyContext) Enter(n ast.Node) bool {
	switch node := n.(type) {
	case *ast.ListSlicingOperator:
		// Visited manually so only the present bounds contribute flags.
		ast.Walk(node.List, c)
		listHasAggr := c.pop()
		hasAggr := listHasAggr
		if node.LowerBound != nil {
			ast.Walk(node.LowerBound, c)
			hasAggr = c.pop() || hasAggr
		}
		if node.UpperBound != nil {
			ast.Walk(node.UpperBound, c)
			hasAggr = c.pop() || hasAggr
		}
		if hasAggr && !listHasAggr {
			// The list expression had no aggregation inside, so group by it.
			c.groupBy = append(c.groupBy, node.List)
		}
		c.push(hasAggr)
		return false
	case *ast.IfOperator:
		ast.Walk(node.Condition, c)
		hasAggr := c.pop()
		ast.Walk(node.Then, c)
		hasAggr = c.pop() || hasAggr
		ast.Walk(node.Else, c)
		hasAggr = c.pop() || hasAggr
		if hasAggr {
			panic("plan: aggregations inside CASE are not allowed")
		}
		c.push(false)
		return false
	}
	return true
}

func (c *returnBodyContext) Leave(n ast.Node) {
	switch node := n.(type) {
	case *ast.PrimitiveLiteral, *ast.ParameterLookup:
		c.push(false)
	case *ast.Identifier:
		sym := c.table().At(node)
		if !containsSymbol(c.outputSymbols, sym) {
			// Don't pick up new symbols, even though ORDER BY or WHERE may
			// use them.
			c.usedSymbols.add(sym)
		}
		c.push(false)
	case *ast.ListLiteral:
		c.push(c.popN(len(node.Elements)))
	case *ast.MapLiteral:
		c.push(c.popN(len(node.Elements)))
	case *ast.Function:
		c.push(c.popN(len(node.Arguments)))
	case *ast.BinaryOperator:
		// The stack is reversed: the top flag is the second operand's.
		aggr2 := c.pop()
		aggr1 := c.pop()
		hasAggr := aggr1 || aggr2
		if hasAggr && !(aggr1 && aggr2) {
			// Group by the operand which does not contain an aggregation.
			if aggr1 {
				c.groupBy = append(c.groupBy, node.Expression2)
			} else {
				c.groupBy = append(c.groupBy, node.Expression1)
			}
		}
		c.push(hasAggr)
	case *ast.All:
		// The quantifier binds its own variable; remove it so usedSymbols
		// holds free symbols only.
		c.usedSymbols.remove(c.table().At(node.Identifier))
		c.push(c.popN(3))
	case *ast.Aggregation:
		sym := c.table().At(node)
		c.aggregations = append(c.aggregations, AggregateElement{
			Arg1:         node.Expression1,
			Arg2:         node.Expression2,
			Op:           node.Op,
			OutputSymbol: sym,
		})
		// Expression1 is absent for count(*) and collectMap carries an
		// extra argument, so the aggregation contributed 0, 1 or 2 flags.
		if node.Op == ast.AggregationCollectMap {
			c.pop()
		}
		if node.Expression1 != nil {
			c.hasAggregation[len(c.hasAggregation)-1] = true
		} else {
			c.push(true)
		}
	case *ast.NamedExpression:
		if len(c.hasAggregation) != 1 {
			panic(fmt.Sprintf("plan: expected a single classification flag, have %d",
				len(c.hasAggregation)))
		}
		if !c.pop() {
			c.groupBy = append(c.groupBy, node.Expression)
		}
	case *ast.UnaryOperator, *ast.PropertyLookup, *ast.LabelsTest, *ast.Where:
		// Single-child wrappers; the child's flag stands for the whole
		// subexpression.
	}
}

// usedSymbolList returns the used symbols in deterministic order.
func (c *returnBodyContext) usedSymbolList() []symbols.Symbol {
	return c.usedSymbols.sorted()
}

func containsSymbol(syms []symbols.Symbol, sym symbols.Symbol) bool {
	for _, s := range syms {
		if s == sym {
			return true
		}
	}
	return false
}

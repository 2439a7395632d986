// Filter collection and pushdown bookkeeping for VanirDB planning.
// WHERE conjuncts and inline pattern constraints are stored together with
// their free symbol sets; after every new binding the planner drains the
// filters whose symbols just became available, which places each Filter
// operator directly above the operator binding its last free symbol.

package plan

import (
	"github.com/vanirdb/vanirdb/pkg/ast"
	"github.com/vanirdb/vanirdb/pkg/symbols"
)

// propertyFilterKind distinguishes how a lifted property constraint can
// feed an index scan.
type propertyFilterKind int

const (
	propertyFilterEqual propertyFilterKind = iota
	propertyFilterLower
	propertyFilterUpper
)

// propertyFilter is index-selection metadata attached to a filter of the
// shape `symbol.property <op> value`.
type propertyFilter struct {
	symbol    symbols.Symbol
	property  string
	kind      propertyFilterKind
	value     ast.Expression
	valueFree symbolSet
	inclusive bool
}

// labelFilter is metadata for a lifted `symbol:Label...` constraint.
type labelFilter struct {
	symbol symbols.Symbol
	labels []string
}

// filterInfo is one pending predicate and the symbols it needs bound.
type filterInfo struct {
	expression ast.Expression
	used       symbolSet

	label    *labelFilter
	property *propertyFilter
}

// filterStore holds the not-yet-placed filters of a single MATCH in source
// order.
type filterStore struct {
	infos []*filterInfo
}

// addWhere splits the WHERE expression on top-level ANDs and stores each
// conjunct separately so it can be pushed down independently.
func (f *filterStore) addWhere(where *ast.Where, table *symbols.Table) {
	if where == nil {
		return
	}
	f.addConjuncts(where.Expression, table)
}

func (f *filterStore) addConjuncts(expr ast.Expression, table *symbols.Table) {
	if binop, ok := expr.(*ast.BinaryOperator); ok && binop.Op == ast.BinaryAnd {
		f.addConjuncts(binop.Expression1, table)
		f.addConjuncts(binop.Expression2, table)
		return
	}
	info := &filterInfo{
		expression: expr,
		used:       collectFreeSymbols(expr, table),
	}
	info.property = analyzePropertyFilter(expr, table)
	f.infos = append(f.infos, info)
}

// addPatternFilters lifts the labels and inline properties of every atom in
// the pattern into filters. The lifted expressions are allocated in storage
// and reference fresh identifiers bound to the atom symbols, leaving the
// original pattern untouched.
func (f *filterStore) addPatternFilters(pattern *ast.Pattern, table *symbols.Table,
	alloc *symbols.Allocator, storage *ast.Storage) {
	for _, atom := range pattern.Atoms {
		switch a := atom.(type) {
		case *ast.NodeAtom:
			sym := table.At(a.Identifier)
			if len(a.Labels) > 0 {
				ident := storage.NewAnonIdentifier(sym.Name)
				alloc.Associate(ident, sym)
				labels := append([]string(nil), a.Labels...)
				f.infos = append(f.infos, &filterInfo{
					expression: storage.NewLabelsTest(ident, labels),
					used:       newSymbolSet(sym),
					label:      &labelFilter{symbol: sym, labels: labels},
				})
			}
			f.addPropertyPairs(sym, a.Properties, table, alloc, storage)
		case *ast.EdgeAtom:
			if a.Variable {
				// Property maps on variable length edges constrain every
				// traversed edge; that belongs to the expansion itself, not
				// to a row filter.
				continue
			}
			sym := table.At(a.Identifier)
			f.addPropertyPairs(sym, a.Properties, table, alloc, storage)
		}
	}
}

func (f *filterStore) addPropertyPairs(sym symbols.Symbol, pairs []ast.PropertyPair,
	table *symbols.Table, alloc *symbols.Allocator, storage *ast.Storage) {
	for _, pair := range pairs {
		ident := storage.NewAnonIdentifier(sym.Name)
		alloc.Associate(ident, sym)
		lookup := storage.NewPropertyLookup(ident, pair.Key)
		eq := storage.NewBinaryOperator(ast.BinaryEqual, lookup, pair.Value)
		valueFree := collectFreeSymbols(pair.Value, table)
		used := valueFree.clone()
		used.add(sym)
		f.infos = append(f.infos, &filterInfo{
			expression: eq,
			used:       used,
			property: &propertyFilter{
				symbol:    sym,
				property:  pair.Key,
				kind:      propertyFilterEqual,
				value:     pair.Value,
				valueFree: valueFree,
			},
		})
	}
}

// extractBound removes every filter whose free symbols are all bound and
// returns them AND-joined into a single predicate, or nil when none
// qualified. Ties keep source order.
func (f *filterStore) extractBound(bound symbolSet, storage *ast.Storage) ast.Expression {
	var joined ast.Expression
	kept := f.infos[:0]
	for _, info := range f.infos {
		if bound.containsAll(info.used) {
			if joined == nil {
				joined = info.expression
			} else {
				joined = storage.NewBinaryOperator(ast.BinaryAnd, joined, info.expression)
			}
		} else {
			kept = append(kept, info)
		}
	}
	f.infos = kept
	return joined
}

// remove drops a specific filter, used when an index scan consumed it.
func (f *filterStore) remove(target *filterInfo) {
	kept := f.infos[:0]
	for _, info := range f.infos {
		if info != target {
			kept = append(kept, info)
		}
	}
	f.infos = kept
}

func (f *filterStore) empty() bool { return len(f.infos) == 0 }

// labelsFor returns the lifted label constraints of sym in source order.
func (f *filterStore) labelsFor(sym symbols.Symbol) []*filterInfo {
	var out []*filterInfo
	for _, info := range f.infos {
		if info.label != nil && info.label.symbol == sym {
			out = append(out, info)
		}
	}
	return out
}

// propertiesFor returns the property constraints of sym whose value
// expressions depend only on bound symbols.
func (f *filterStore) propertiesFor(sym symbols.Symbol, bound symbolSet) []*filterInfo {
	var out []*filterInfo
	for _, info := range f.infos {
		if info.property != nil && info.property.symbol == sym &&
			bound.containsAll(info.property.valueFree) {
			out = append(out, info)
		}
	}
	return out
}

// analyzePropertyFilter recognizes `ident.prop <op> value` (and the
// mirrored form) so comparisons can drive index range scans.
func analyzePropertyFilter(expr ast.Expression, table *symbols.Table) *propertyFilter {
	binop, ok := expr.(*ast.BinaryOperator)
	if !ok {
		return nil
	}
	var kind propertyFilterKind
	var inclusive bool
	switch binop.Op {
	case ast.BinaryEqual:
		kind = propertyFilterEqual
	case ast.BinaryGreater:
		kind = propertyFilterLower
	case ast.BinaryGreaterEqual:
		kind, inclusive = propertyFilterLower, true
	case ast.BinaryLess:
		kind = propertyFilterUpper
	case ast.BinaryLessEqual:
		kind, inclusive = propertyFilterUpper, true
	default:
		return nil
	}
	if pf := propertyFilterSide(binop.Expression1, binop.Expression2, kind, inclusive, table); pf != nil {
		return pf
	}
	// `value < ident.prop` bounds the property from the other side.
	flipped := kind
	switch kind {
	case propertyFilterLower:
		flipped = propertyFilterUpper
	case propertyFilterUpper:
		flipped = propertyFilterLower
	}
	return propertyFilterSide(binop.Expression2, binop.Expression1, flipped, inclusive, table)
}

func propertyFilterSide(lhs, rhs ast.Expression, kind propertyFilterKind,
	inclusive bool, table *symbols.Table) *propertyFilter {
	lookup, ok := lhs.(*ast.PropertyLookup)
	if !ok {
		return nil
	}
	ident, ok := lookup.Expression.(*ast.Identifier)
	if !ok {
		return nil
	}
	valueFree := collectFreeSymbols(rhs, table)
	sym := table.At(ident)
	if valueFree.has(sym) {
		// Self-referencing comparisons cannot seed an index scan.
		return nil
	}
	return &propertyFilter{
		symbol:    sym,
		property:  lookup.PropertyName,
		kind:      kind,
		value:     rhs,
		valueFree: valueFree,
		inclusive: inclusive,
	}
}

// collectFreeSymbols gathers the symbols an expression references, minus
// any variable bound locally by a quantifier.
func collectFreeSymbols(expr ast.Expression, table *symbols.Table) symbolSet {
	free := make(symbolSet)
	var locals []symbols.Symbol
	ast.Inspect(expr, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.Identifier:
			free.add(table.At(node))
		case *ast.All:
			locals = append(locals, table.At(node.Identifier))
		}
		return true
	})
	for _, sym := range locals {
		free.remove(sym)
	}
	return free
}

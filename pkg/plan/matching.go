// MATCH planning for VanirDB.
// This file picks a starting atom per pattern, orders expansions so bound
// symbols are reused, drains the filter store after every binding and
// wraps OPTIONAL MATCH subtrees in Optional.

package plan

import (
	"github.com/vanirdb/vanirdb/pkg/ast"
)

// IndexCatalog supplies the index metadata MATCH planning consults when
// choosing between an index lookup, a label scan and a full scan. A nil
// catalog behaves as if no indexes exist.
type IndexCatalog interface {
	// LabelPropertyIndexExists reports whether a label+property index is
	// available.
	LabelPropertyIndexExists(label, property string) bool
	// ApproxVertexCount estimates how many vertices the label+property
	// index holds. Only meaningful when the index exists.
	ApproxVertexCount(label, property string) int64
}

// planMatch plans one MATCH clause. Optional matches plan their subtree
// against a leaf input and wrap it in Optional, so missing matches null
// the introduced symbols instead of dropping rows.
func (p *RuleBasedPlanner) planMatch(match *ast.Match, st *planState) LogicalOperator {
	if !match.Optional {
		return p.planMatchPart(match, st.tail, st)
	}
	branchState := &planState{bound: st.bound.clone()}
	branch := p.planMatchPart(match, nil, branchState)
	optional := make(symbolSet)
	for sym := range branchState.bound {
		if !st.bound.has(sym) {
			optional.add(sym)
		}
	}
	optionalSymbols := optional.sorted()
	for _, sym := range optionalSymbols {
		st.bound.add(sym)
	}
	return NewOptional(st.tail, branch, optionalSymbols)
}

// planMatchPart plans the patterns and WHERE of a single MATCH. All
// filters land in one store; every new binding drains the ones whose free
// symbols just became available, which is the earliest legal placement.
func (p *RuleBasedPlanner) planMatchPart(match *ast.Match, input LogicalOperator,
	st *planState) LogicalOperator {
	fs := &filterStore{}
	paths := newNamedPathBuilder()
	fs.addWhere(match.Where, p.table)
	for _, pattern := range match.Patterns {
		fs.addPatternFilters(pattern, p.table, p.alloc, p.storage)
		if pattern.Identifier != nil && pattern.Identifier.UserDeclared {
			paths.addPath(p.table.At(pattern.Identifier), p.atomSymbols(pattern))
		}
	}

	last := input
	// Filters over symbols bound by earlier clauses can run before any
	// scanning.
	last = p.genFilters(last, st, fs)
	for _, pattern := range match.Patterns {
		p.checkAbort()
		last = p.planMatchPattern(pattern, last, st, fs, paths)
	}
	if !fs.empty() {
		panic("plan: filters left unplaced after match planning")
	}
	return last
}

// genFilters drains every satisfiable filter into a single Filter operator.
func (p *RuleBasedPlanner) genFilters(last LogicalOperator, st *planState,
	fs *filterStore) LogicalOperator {
	if expr := fs.extractBound(st.bound, p.storage); expr != nil {
		last = NewFilter(last, expr)
	}
	return last
}

// afterBinding drains filters and completes named paths once new symbols
// were bound. Filters run again after path construction because a
// completed path may be the last free symbol of a pending predicate.
func (p *RuleBasedPlanner) afterBinding(last LogicalOperator, st *planState,
	fs *filterStore, paths *namedPathBuilder) LogicalOperator {
	last = p.genFilters(last, st, fs)
	last = paths.genConstructs(last, st.bound)
	last = p.genFilters(last, st, fs)
	return last
}

// planMatchPattern expands one pattern. The chain is walked left to right
// unless only its rightmost node is already bound, in which case walking
// right to left reuses that binding instead of scanning.
func (p *RuleBasedPlanner) planMatchPattern(pattern *ast.Pattern, input LogicalOperator,
	st *planState, fs *filterStore, paths *namedPathBuilder) LogicalOperator {
	atoms := pattern.Atoms
	if len(atoms) == 0 {
		panic("plan: pattern has no atoms")
	}
	first, ok := atoms[0].(*ast.NodeAtom)
	if !ok {
		panic("plan: first pattern atom is not a node")
	}
	reversed := false
	if len(atoms) > 1 {
		lastNode, ok := atoms[len(atoms)-1].(*ast.NodeAtom)
		if !ok {
			panic("plan: last pattern atom is not a node")
		}
		if !st.bound.has(p.table.At(first.Identifier)) &&
			st.bound.has(p.table.At(lastNode.Identifier)) {
			reversed = true
		}
	}

	nodeAt := func(i int) *ast.NodeAtom {
		n, ok := atoms[i].(*ast.NodeAtom)
		if !ok {
			panic("plan: expected a node atom in pattern")
		}
		return n
	}
	edgeAt := func(i int) *ast.EdgeAtom {
		e, ok := atoms[i].(*ast.EdgeAtom)
		if !ok {
			panic("plan: expected an edge atom in pattern")
		}
		return e
	}

	startIdx := 0
	if reversed {
		startIdx = len(atoms) - 1
	}
	current := nodeAt(startIdx)
	last := p.planStartingAtom(current, input, st, fs)
	last = p.afterBinding(last, st, fs, paths)

	for step := 1; step*2 <= len(atoms); step++ {
		p.checkAbort()
		var edge *ast.EdgeAtom
		var next *ast.NodeAtom
		if reversed {
			edge = edgeAt(len(atoms) - 2*step)
			next = nodeAt(len(atoms) - 2*step - 1)
		} else {
			edge = edgeAt(2*step - 1)
			next = nodeAt(2 * step)
		}
		last = p.planExpand(current, edge, next, reversed, last, st, fs)
		last = p.afterBinding(last, st, fs, paths)
		current = next
	}
	return last
}

// planStartingAtom binds the pattern's first node: already bound symbols
// cost nothing, then a label+property index lookup, then a label scan,
// then a full scan.
func (p *RuleBasedPlanner) planStartingAtom(node *ast.NodeAtom, input LogicalOperator,
	st *planState, fs *filterStore) LogicalOperator {
	sym := p.table.At(node.Identifier)
	if st.bound.has(sym) {
		return input
	}
	if op := p.genIndexedScan(node, input, st, fs); op != nil {
		st.bound.add(sym)
		return op
	}
	labelInfos := fs.labelsFor(sym)
	if len(labelInfos) > 0 {
		info := labelInfos[0]
		label := info.label.labels[0]
		if len(info.label.labels) == 1 {
			// The scan fully covers the single label test.
			fs.remove(info)
		}
		st.bound.add(sym)
		return NewScanAllByLabel(input, sym, label)
	}
	st.bound.add(sym)
	return NewScanAll(input, sym)
}

// genIndexedScan emits an index lookup for node when a label+property
// index matches one of its pending filters, choosing the index with the
// fewest vertices. Returns nil when no index applies. The consumed
// property filter and, for a single-label test, the label filter are
// removed from the store.
func (p *RuleBasedPlanner) genIndexedScan(node *ast.NodeAtom, input LogicalOperator,
	st *planState, fs *filterStore) LogicalOperator {
	if p.catalog == nil {
		return nil
	}
	sym := p.table.At(node.Identifier)
	labelInfos := fs.labelsFor(sym)
	if len(labelInfos) == 0 {
		return nil
	}
	propInfos := fs.propertiesFor(sym, st.bound)
	if len(propInfos) == 0 {
		return nil
	}

	var bestLabel *filterInfo
	var bestProp *filterInfo
	var bestLabelName string
	bestCount := int64(-1)
	for _, labelInfo := range labelInfos {
		for _, label := range labelInfo.label.labels {
			for _, propInfo := range propInfos {
				pf := propInfo.property
				if !p.catalog.LabelPropertyIndexExists(label, pf.property) {
					continue
				}
				count := p.catalog.ApproxVertexCount(label, pf.property)
				if bestCount < 0 || count < bestCount {
					bestLabel, bestProp, bestLabelName, bestCount = labelInfo, propInfo, label, count
				}
			}
		}
	}
	if bestProp == nil {
		return nil
	}

	fs.remove(bestProp)
	if len(bestLabel.label.labels) == 1 {
		fs.remove(bestLabel)
	}
	pf := bestProp.property
	switch pf.kind {
	case propertyFilterEqual:
		return NewScanAllByLabelPropertyValue(input, sym, bestLabelName, pf.property, pf.value)
	case propertyFilterLower:
		lower := &Bound{Value: pf.value, Inclusive: pf.inclusive}
		return NewScanAllByLabelPropertyRange(input, sym, bestLabelName, pf.property, lower, nil)
	default:
		upper := &Bound{Value: pf.value, Inclusive: pf.inclusive}
		return NewScanAllByLabelPropertyRange(input, sym, bestLabelName, pf.property, nil, upper)
	}
}

// planExpand emits the Expand for one (prev, edge, next) triple. When the
// destination is unbound but a small indexed lookup can bind it first, the
// expansion switches to expand-to-existing, bounded by the configured
// vertex count threshold.
func (p *RuleBasedPlanner) planExpand(prev *ast.NodeAtom, edge *ast.EdgeAtom,
	next *ast.NodeAtom, reversed bool, last LogicalOperator, st *planState,
	fs *filterStore) LogicalOperator {
	prevSymbol := p.table.At(prev.Identifier)
	edgeSymbol := p.table.At(edge.Identifier)
	nextSymbol := p.table.At(next.Identifier)
	if st.bound.has(edgeSymbol) {
		panic("plan: edge symbol bound before its expansion")
	}

	direction := edge.Direction
	if reversed {
		switch direction {
		case ast.EdgeLeft:
			direction = ast.EdgeRight
		case ast.EdgeRight:
			direction = ast.EdgeLeft
		}
	}

	existingNode := st.bound.has(nextSymbol)
	if !existingNode && !edge.Variable {
		if op := p.genExpandToIndexed(next, last, st, fs); op != nil {
			last = op
			existingNode = true
		}
	}

	st.bound.add(edgeSymbol)
	st.bound.add(nextSymbol)
	if edge.Variable {
		return NewExpandVariable(last, prevSymbol, nextSymbol, edgeSymbol, direction,
			edge.EdgeTypes, edge.LowerBound, edge.UpperBound, existingNode)
	}
	return NewExpand(last, prevSymbol, nextSymbol, edgeSymbol, direction,
		edge.EdgeTypes, existingNode)
}

// genExpandToIndexed binds the expansion target through an index lookup
// when the index holds at most the configured number of vertices; scanning
// a handful of indexed candidates and expanding into them beats walking
// all edges of the source.
func (p *RuleBasedPlanner) genExpandToIndexed(next *ast.NodeAtom, last LogicalOperator,
	st *planState, fs *filterStore) LogicalOperator {
	threshold := p.opts.VertexCountToExpandExisting
	if threshold < 0 || p.catalog == nil {
		return nil
	}
	sym := p.table.At(next.Identifier)
	labelInfos := fs.labelsFor(sym)
	propInfos := fs.propertiesFor(sym, st.bound)
	for _, labelInfo := range labelInfos {
		for _, label := range labelInfo.label.labels {
			for _, propInfo := range propInfos {
				pf := propInfo.property
				if pf.kind != propertyFilterEqual {
					continue
				}
				if !p.catalog.LabelPropertyIndexExists(label, pf.property) {
					continue
				}
				if p.catalog.ApproxVertexCount(label, pf.property) > threshold {
					continue
				}
				fs.remove(propInfo)
				if len(labelInfo.label.labels) == 1 {
					fs.remove(labelInfo)
				}
				op := NewScanAllByLabelPropertyValue(last, sym, label, pf.property, pf.value)
				st.bound.add(sym)
				return op
			}
		}
	}
	return nil
}

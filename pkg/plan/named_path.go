// Deferred named path construction for VanirDB planning.

package plan

import (
	"github.com/vanirdb/vanirdb/pkg/symbols"
)

// namedPathBuilder defers ConstructNamedPath emission until every atom
// symbol along a path is bound. Paths are checked after each new binding
// and emitted in declaration order.
type namedPathBuilder struct {
	order   []symbols.Symbol
	pending map[symbols.Symbol][]symbols.Symbol
}

func newNamedPathBuilder() *namedPathBuilder {
	return &namedPathBuilder{pending: make(map[symbols.Symbol][]symbols.Symbol)}
}

// addPath registers a named path and the atom symbols it consists of.
func (b *namedPathBuilder) addPath(pathSymbol symbols.Symbol, atoms []symbols.Symbol) {
	if _, ok := b.pending[pathSymbol]; ok {
		return
	}
	b.order = append(b.order, pathSymbol)
	b.pending[pathSymbol] = atoms
}

// genConstructs emits ConstructNamedPath for every pending path whose atoms
// are all bound, marks the path symbols bound and returns the new tail.
func (b *namedPathBuilder) genConstructs(lastOp LogicalOperator, bound symbolSet) LogicalOperator {
	remaining := b.order[:0]
	for _, pathSymbol := range b.order {
		atoms := b.pending[pathSymbol]
		if allBound(bound, atoms) {
			lastOp = NewConstructNamedPath(lastOp, pathSymbol, atoms)
			bound.add(pathSymbol)
			delete(b.pending, pathSymbol)
		} else {
			remaining = append(remaining, pathSymbol)
		}
	}
	b.order = remaining
	return lastOp
}

func allBound(bound symbolSet, syms []symbols.Symbol) bool {
	for _, sym := range syms {
		if !bound.has(sym) {
			return false
		}
	}
	return true
}

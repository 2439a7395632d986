// Symbol set helpers for VanirDB planning.

package plan

import (
	"sort"

	"github.com/vanirdb/vanirdb/pkg/symbols"
)

// symbolSet tracks bound or used symbols. Symbols are value types keyed by
// their creation identity, so a plain map works.
type symbolSet map[symbols.Symbol]struct{}

func newSymbolSet(syms ...symbols.Symbol) symbolSet {
	set := make(symbolSet, len(syms))
	for _, sym := range syms {
		set.add(sym)
	}
	return set
}

func (s symbolSet) add(sym symbols.Symbol) bool {
	if _, ok := s[sym]; ok {
		return false
	}
	s[sym] = struct{}{}
	return true
}

func (s symbolSet) remove(sym symbols.Symbol) {
	delete(s, sym)
}

func (s symbolSet) has(sym symbols.Symbol) bool {
	_, ok := s[sym]
	return ok
}

func (s symbolSet) containsAll(other symbolSet) bool {
	for sym := range other {
		if !s.has(sym) {
			return false
		}
	}
	return true
}

func (s symbolSet) clone() symbolSet {
	out := make(symbolSet, len(s))
	for sym := range s {
		out[sym] = struct{}{}
	}
	return out
}

// sorted returns the members ordered by creation position, which makes
// every plan that embeds a symbol list deterministic.
func (s symbolSet) sorted() []symbols.Symbol {
	out := make([]symbols.Symbol, 0, len(s))
	for sym := range s {
		out = append(out, sym)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}

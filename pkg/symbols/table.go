// Symbol table for VanirDB query planning.

package symbols

import (
	"fmt"

	"github.com/vanirdb/vanirdb/pkg/ast"
)

// Table maps AST node identity to the Symbol the semantic pass resolved for
// it. The planner treats the table as read only; the single sanctioned
// mutation path is the Allocator used for RETURN * expansion.
type Table struct {
	nextPosition int
	byNode       map[ast.Node]Symbol
}

// NewTable returns an empty symbol table.
func NewTable() *Table {
	return &Table{byNode: make(map[ast.Node]Symbol)}
}

// CreateSymbol mints a new symbol. Positions start at 1 and never repeat,
// so two symbols with equal names from different bindings stay distinct.
func (t *Table) CreateSymbol(name string, userDeclared bool, kind Kind, tokenPos int) Symbol {
	t.nextPosition++
	return Symbol{
		Name:         name,
		Position:     t.nextPosition,
		Kind:         kind,
		UserDeclared: userDeclared,
		TokenPos:     tokenPos,
	}
}

// Associate records that node resolves to sym.
func (t *Table) Associate(node ast.Node, sym Symbol) {
	t.byNode[node] = sym
}

// At returns the symbol for node. A missing entry means an earlier pass let
// an unresolved node through, which would make any plan built from it
// wrong, so At panics rather than guessing.
func (t *Table) At(node ast.Node) Symbol {
	sym, ok := t.byNode[node]
	if !ok {
		panic(fmt.Sprintf("symbols: node %T has no resolved symbol", node))
	}
	return sym
}

// Has reports whether node has a resolved symbol.
func (t *Table) Has(node ast.Node) bool {
	_, ok := t.byNode[node]
	return ok
}

// Len returns the number of node associations.
func (t *Table) Len() int { return len(t.byNode) }

// Allocator is the planner's window for introducing new symbols during
// RETURN * expansion. Keeping the write path on a separate type makes the
// one sanctioned mutation of the table explicit instead of letting the
// planner retroactively edit its inputs through the read API.
type Allocator struct {
	table *Table
}

// NewAllocator returns an allocator writing through to table.
func NewAllocator(table *Table) *Allocator {
	return &Allocator{table: table}
}

// Associate binds a planner-created node to an existing symbol.
func (a *Allocator) Associate(node ast.Node, sym Symbol) {
	a.table.Associate(node, sym)
}

// Table returns the wrapped table for read access.
func (a *Allocator) Table() *Table { return a.table }

package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vanirdb/vanirdb/pkg/ast"
)

func TestTableCreateSymbolPositionsAreUnique(t *testing.T) {
	table := NewTable()
	a := table.CreateSymbol("x", true, KindNode, 0)
	b := table.CreateSymbol("x", true, KindNode, 0)
	assert.NotEqual(t, a, b)
	assert.True(t, a.Valid())
	assert.True(t, b.Valid())
	assert.False(t, Symbol{}.Valid())
}

func TestTableAtPanicsOnMissingNode(t *testing.T) {
	table := NewTable()
	storage := ast.NewStorage()
	ident := storage.NewIdentifier("n")
	assert.Panics(t, func() { table.At(ident) })

	sym := table.CreateSymbol("n", true, KindNode, 0)
	table.Associate(ident, sym)
	assert.Equal(t, sym, table.At(ident))
	assert.True(t, table.Has(ident))
}

func TestAllocatorWritesThrough(t *testing.T) {
	table := NewTable()
	alloc := NewAllocator(table)
	storage := ast.NewStorage()
	ident := storage.NewAnonIdentifier("n")
	sym := table.CreateSymbol("n", true, KindNode, 0)
	alloc.Associate(ident, sym)
	assert.Equal(t, sym, table.At(ident))
	assert.Same(t, table, alloc.Table())
}

// Package symbols implements symbol resolution for VanirDB Cypher queries.
//
// The symbol generator walks a parsed AST, assigns a Symbol to every
// variable binding and produces the Table the planner consumes. Symbols are
// cheap value types; equality compares the (name, position, kind) identity
// assigned at creation.
package symbols

import "fmt"

// Kind describes what a symbol binds to.
type Kind int

const (
	KindAny Kind = iota
	KindNode
	KindEdge
	KindPath
	KindExpression
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindEdge:
		return "edge"
	case KindPath:
		return "path"
	case KindExpression:
		return "expression"
	}
	return "any"
}

// Symbol is a handle to a variable binding. Position is unique per Table,
// so comparing symbols with == compares binding identity. The zero Symbol
// is invalid.
type Symbol struct {
	Name         string
	Position     int
	Kind         Kind
	UserDeclared bool
	TokenPos     int
}

// Valid reports whether the symbol was created by a Table.
func (s Symbol) Valid() bool { return s.Position > 0 }

func (s Symbol) String() string {
	return fmt.Sprintf("%s#%d(%s)", s.Name, s.Position, s.Kind)
}

// Typed semantic errors for VanirDB query analysis and planning.

package symbols

import "fmt"

// ErrorKind distinguishes semantic error classes so the surrounding query
// engine can map them onto Cypher error codes.
type ErrorKind int

const (
	// ErrUnboundVariable: an identifier references a name with no binding
	// in scope.
	ErrUnboundVariable ErrorKind = iota
	// ErrRedeclaredVariable: a name is declared twice where redeclaration
	// is illegal (named paths, UNWIND and WITH output variables, and MERGE
	// on a lone node that is already bound).
	ErrRedeclaredVariable
	// ErrEdgeRedeclaration: an edge variable is bound more than once; edges
	// cannot be re-declared by MATCH, CREATE or MERGE.
	ErrEdgeRedeclaration
	// ErrTypeMismatch: a bound variable is used in a position requiring a
	// different kind (an edge variable in a node slot and the like).
	ErrTypeMismatch
	// ErrAggregationMisuse: an aggregation appears outside RETURN or WITH
	// projections.
	ErrAggregationMisuse
	// ErrInvalidQueryStructure: clause ordering violations, such as clauses
	// after RETURN or a query that neither returns nor writes.
	ErrInvalidQueryStructure
)

func (k ErrorKind) String() string {
	switch k {
	case ErrUnboundVariable:
		return "unbound variable"
	case ErrRedeclaredVariable:
		return "redeclared variable"
	case ErrEdgeRedeclaration:
		return "edge redeclaration"
	case ErrTypeMismatch:
		return "type mismatch"
	case ErrAggregationMisuse:
		return "aggregation misuse"
	case ErrInvalidQueryStructure:
		return "invalid query structure"
	}
	return "semantic error"
}

// SemanticError is an expected, user-facing query error. It is never used
// for planner contract violations; those panic.
type SemanticError struct {
	Kind    ErrorKind
	Message string
}

func (e *SemanticError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func semanticErrorf(kind ErrorKind, format string, args ...any) *SemanticError {
	return &SemanticError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

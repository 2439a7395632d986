// Pattern reduction for VanirDB planning.

package plan

import (
	"fmt"

	"github.com/vanirdb/vanirdb/pkg/ast"
)

// ReducePattern iterates a pattern's atoms and accumulates a result. Every
// pattern has the shape `NodeAtom (EdgeAtom NodeAtom)*`; base is called on
// the first node and collect on each following (prev, edge, next) triple,
// threading the accumulator through. A malformed pattern means the parser
// or a test builder produced something no plan could be correct for, so
// shape violations panic.
func ReducePattern[T any](pattern *ast.Pattern,
	base func(*ast.NodeAtom) T,
	collect func(T, *ast.NodeAtom, *ast.EdgeAtom, *ast.NodeAtom) T) T {
	if len(pattern.Atoms) == 0 {
		panic("plan: pattern has no atoms")
	}
	current, ok := pattern.Atoms[0].(*ast.NodeAtom)
	if !ok {
		panic(fmt.Sprintf("plan: first pattern atom is %T, want node", pattern.Atoms[0]))
	}
	acc := base(current)
	for i := 1; i < len(pattern.Atoms); i += 2 {
		edge, ok := pattern.Atoms[i].(*ast.EdgeAtom)
		if !ok {
			panic(fmt.Sprintf("plan: pattern atom %d is %T, want edge", i, pattern.Atoms[i]))
		}
		if i+1 >= len(pattern.Atoms) {
			panic("plan: edge atom ends the pattern")
		}
		next, ok := pattern.Atoms[i+1].(*ast.NodeAtom)
		if !ok {
			panic(fmt.Sprintf("plan: pattern atom %d is %T, want node", i+1, pattern.Atoms[i+1]))
		}
		acc = collect(acc, current, edge, next)
		current = next
	}
	return acc
}

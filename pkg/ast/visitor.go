// Depth-controlled AST traversal for VanirDB.

package ast

// Visitor is the callback pair used by Walk. Enter runs before a node's
// children; returning false skips both the children and the matching Leave
// call, which lets a visitor take over traversal of a subtree. Leave runs
// after all children were walked.
type Visitor interface {
	Enter(n Node) bool
	Leave(n Node)
}

// Walk traverses n in depth-first order, calling v.Enter before and v.Leave
// after each node's children. Nil children are skipped. Children are walked
// in source order, which visitors with evaluation stacks rely on.
func Walk(n Node, v Visitor) {
	if n == nil {
		return
	}
	if !v.Enter(n) {
		return
	}
	switch node := n.(type) {
	case *Query:
		for _, clause := range node.Clauses {
			Walk(clause, v)
		}
	case *PrimitiveLiteral, *Identifier, *ParameterLookup, *CreateIndex:
		// Leaves.
	case *ListLiteral:
		for _, e := range node.Elements {
			Walk(e, v)
		}
	case *MapLiteral:
		for _, pair := range node.Elements {
			Walk(pair.Value, v)
		}
	case *PropertyLookup:
		Walk(node.Expression, v)
	case *LabelsTest:
		Walk(node.Expression, v)
	case *UnaryOperator:
		Walk(node.Expression, v)
	case *BinaryOperator:
		Walk(node.Expression1, v)
		Walk(node.Expression2, v)
	case *ListSlicingOperator:
		Walk(node.List, v)
		walkExpr(node.LowerBound, v)
		walkExpr(node.UpperBound, v)
	case *IfOperator:
		Walk(node.Condition, v)
		Walk(node.Then, v)
		Walk(node.Else, v)
	case *Function:
		for _, arg := range node.Arguments {
			Walk(arg, v)
		}
	case *All:
		Walk(node.Identifier, v)
		Walk(node.ListExpression, v)
		if node.Where != nil {
			Walk(node.Where, v)
		}
	case *Aggregation:
		walkExpr(node.Expression1, v)
		walkExpr(node.Expression2, v)
	case *NamedExpression:
		Walk(node.Expression, v)
	case *Where:
		Walk(node.Expression, v)
	case *NodeAtom:
		Walk(node.Identifier, v)
		for _, pair := range node.Properties {
			Walk(pair.Value, v)
		}
	case *EdgeAtom:
		Walk(node.Identifier, v)
		for _, pair := range node.Properties {
			Walk(pair.Value, v)
		}
		walkExpr(node.LowerBound, v)
		walkExpr(node.UpperBound, v)
	case *Pattern:
		if node.Identifier != nil {
			Walk(node.Identifier, v)
		}
		for _, atom := range node.Atoms {
			Walk(atom, v)
		}
	case *Match:
		for _, pattern := range node.Patterns {
			Walk(pattern, v)
		}
		if node.Where != nil {
			Walk(node.Where, v)
		}
	case *Return:
		walkReturnBody(&node.Body, v)
	case *With:
		walkReturnBody(&node.Body, v)
		if node.Where != nil {
			Walk(node.Where, v)
		}
	case *Create:
		for _, pattern := range node.Patterns {
			Walk(pattern, v)
		}
	case *SetProperty:
		Walk(node.PropertyLookup, v)
		Walk(node.Expression, v)
	case *SetProperties:
		Walk(node.Identifier, v)
		Walk(node.Expression, v)
	case *SetLabels:
		Walk(node.Identifier, v)
	case *RemoveProperty:
		Walk(node.PropertyLookup, v)
	case *RemoveLabels:
		Walk(node.Identifier, v)
	case *Delete:
		for _, e := range node.Expressions {
			Walk(e, v)
		}
	case *Merge:
		Walk(node.Pattern, v)
		for _, clause := range node.OnMatch {
			Walk(clause, v)
		}
		for _, clause := range node.OnCreate {
			Walk(clause, v)
		}
	case *Unwind:
		Walk(node.NamedExpression, v)
	}
	v.Leave(n)
}

func walkExpr(e Expression, v Visitor) {
	if e != nil {
		Walk(e, v)
	}
}

func walkReturnBody(body *ReturnBody, v Visitor) {
	for _, ne := range body.NamedExpressions {
		Walk(ne, v)
	}
	for _, item := range body.OrderBy {
		Walk(item.Expression, v)
	}
	walkExpr(body.Skip, v)
	walkExpr(body.Limit, v)
}

// inspector adapts a function to the Visitor interface.
type inspector func(Node) bool

func (f inspector) Enter(n Node) bool { return f(n) }
func (inspector) Leave(Node)          {}

// Inspect walks n calling f on every node; f returning false prunes the
// node's subtree.
func Inspect(n Node, f func(Node) bool) {
	Walk(n, inspector(f))
}

type acyclicChecker struct {
	seen map[Node]struct{}
}

func (c *acyclicChecker) Enter(n Node) bool {
	if _, ok := c.seen[n]; ok {
		panic("ast: cycle detected in syntax tree")
	}
	c.seen[n] = struct{}{}
	return true
}

func (c *acyclicChecker) Leave(Node) {}

// AssertAcyclic panics if the tree rooted at n contains a back-edge. The
// AST is a tree by construction; a cycle means a builder bug and would
// break every post-order pass downstream.
func AssertAcyclic(n Node) {
	c := &acyclicChecker{seen: make(map[Node]struct{})}
	Walk(n, c)
}

// AST node storage for VanirDB.
// Storage owns every node of a single query so that expression handles held
// by a logical plan stay valid for the plan's lifetime.

package ast

// Storage allocates and owns AST nodes. The parser builds a query inside a
// Storage; the planner allocates expansion helpers (RETURN *, lifted inline
// filters) through the same Storage so the plan never references nodes with
// a shorter lifetime than itself.
type Storage struct {
	nodes []Node
}

// NewStorage returns an empty node storage.
func NewStorage() *Storage {
	return &Storage{}
}

// Len returns the number of nodes allocated so far.
func (s *Storage) Len() int { return len(s.nodes) }

func register[T Node](s *Storage, n T) T {
	s.nodes = append(s.nodes, n)
	return n
}

func (s *Storage) NewQuery(clauses ...Clause) *Query {
	return register(s, &Query{Clauses: clauses})
}

func (s *Storage) NewPrimitiveLiteral(value any) *PrimitiveLiteral {
	return register(s, &PrimitiveLiteral{Value: value})
}

func (s *Storage) NewListLiteral(elements ...Expression) *ListLiteral {
	return register(s, &ListLiteral{Elements: elements})
}

func (s *Storage) NewMapLiteral(elements ...PropertyPair) *MapLiteral {
	return register(s, &MapLiteral{Elements: elements})
}

// NewIdentifier allocates a user-declared identifier.
func (s *Storage) NewIdentifier(name string) *Identifier {
	return register(s, &Identifier{Name: name, UserDeclared: true})
}

// NewAnonIdentifier allocates an identifier invented by the parser or the
// planner. The parser derives the name from a generated unique suffix; the
// planner reuses the name of the existing symbol it associates the
// identifier with.
func (s *Storage) NewAnonIdentifier(name string) *Identifier {
	return register(s, &Identifier{Name: name})
}

func (s *Storage) NewParameterLookup(name string) *ParameterLookup {
	return register(s, &ParameterLookup{Name: name})
}

func (s *Storage) NewPropertyLookup(expr Expression, property string) *PropertyLookup {
	return register(s, &PropertyLookup{Expression: expr, PropertyName: property})
}

func (s *Storage) NewLabelsTest(expr Expression, labels []string) *LabelsTest {
	return register(s, &LabelsTest{Expression: expr, Labels: labels})
}

func (s *Storage) NewUnaryOperator(op UnaryOp, expr Expression) *UnaryOperator {
	return register(s, &UnaryOperator{Op: op, Expression: expr})
}

func (s *Storage) NewBinaryOperator(op BinaryOp, expr1, expr2 Expression) *BinaryOperator {
	return register(s, &BinaryOperator{Op: op, Expression1: expr1, Expression2: expr2})
}

func (s *Storage) NewListSlicingOperator(list, lower, upper Expression) *ListSlicingOperator {
	return register(s, &ListSlicingOperator{List: list, LowerBound: lower, UpperBound: upper})
}

func (s *Storage) NewIfOperator(condition, then, els Expression) *IfOperator {
	return register(s, &IfOperator{Condition: condition, Then: then, Else: els})
}

func (s *Storage) NewFunction(name string, arguments ...Expression) *Function {
	return register(s, &Function{Name: name, Arguments: arguments})
}

func (s *Storage) NewAll(identifier *Identifier, list Expression, where *Where) *All {
	return register(s, &All{Identifier: identifier, ListExpression: list, Where: where})
}

func (s *Storage) NewAggregation(op AggregationOp, expr1, expr2 Expression) *Aggregation {
	return register(s, &Aggregation{Op: op, Expression1: expr1, Expression2: expr2})
}

func (s *Storage) NewNamedExpression(name string, expr Expression) *NamedExpression {
	return register(s, &NamedExpression{Name: name, Expression: expr})
}

func (s *Storage) NewNodeAtom(identifier *Identifier) *NodeAtom {
	return register(s, &NodeAtom{Identifier: identifier})
}

func (s *Storage) NewEdgeAtom(identifier *Identifier, direction EdgeDirection) *EdgeAtom {
	return register(s, &EdgeAtom{Identifier: identifier, Direction: direction})
}

func (s *Storage) NewPattern(identifier *Identifier, atoms ...PatternAtom) *Pattern {
	return register(s, &Pattern{Identifier: identifier, Atoms: atoms})
}

func (s *Storage) NewWhere(expr Expression) *Where {
	return register(s, &Where{Expression: expr})
}

func (s *Storage) NewMatch(optional bool, where *Where, patterns ...*Pattern) *Match {
	return register(s, &Match{Optional: optional, Patterns: patterns, Where: where})
}

func (s *Storage) NewReturn(body ReturnBody) *Return {
	return register(s, &Return{Body: body})
}

func (s *Storage) NewWith(body ReturnBody, where *Where) *With {
	return register(s, &With{Body: body, Where: where})
}

func (s *Storage) NewCreate(patterns ...*Pattern) *Create {
	return register(s, &Create{Patterns: patterns})
}

func (s *Storage) NewSetProperty(lookup *PropertyLookup, expr Expression) *SetProperty {
	return register(s, &SetProperty{PropertyLookup: lookup, Expression: expr})
}

func (s *Storage) NewSetProperties(identifier *Identifier, expr Expression, update bool) *SetProperties {
	return register(s, &SetProperties{Identifier: identifier, Expression: expr, Update: update})
}

func (s *Storage) NewSetLabels(identifier *Identifier, labels []string) *SetLabels {
	return register(s, &SetLabels{Identifier: identifier, Labels: labels})
}

func (s *Storage) NewRemoveProperty(lookup *PropertyLookup) *RemoveProperty {
	return register(s, &RemoveProperty{PropertyLookup: lookup})
}

func (s *Storage) NewRemoveLabels(identifier *Identifier, labels []string) *RemoveLabels {
	return register(s, &RemoveLabels{Identifier: identifier, Labels: labels})
}

func (s *Storage) NewDelete(detach bool, expressions ...Expression) *Delete {
	return register(s, &Delete{Expressions: expressions, Detach: detach})
}

func (s *Storage) NewMerge(pattern *Pattern, onMatch, onCreate []Clause) *Merge {
	return register(s, &Merge{Pattern: pattern, OnMatch: onMatch, OnCreate: onCreate})
}

func (s *Storage) NewUnwind(namedExpr *NamedExpression) *Unwind {
	return register(s, &Unwind{NamedExpression: namedExpr})
}

func (s *Storage) NewCreateIndex(label, property string) *CreateIndex {
	return register(s, &CreateIndex{Label: label, Property: property})
}

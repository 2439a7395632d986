// Package plan implements the rule-based Cypher query planner for VanirDB.
//
// The planner takes a parsed AST together with the symbol table resolved by
// the semantic pass and emits a tree of logical operators. Operators say
// what to compute; a downstream physical evaluator decides how. Every
// operator exclusively owns its single input child, publishes the symbols
// it introduces and the AST expressions it references, and nothing else:
// the executor contract ends there.
package plan

import (
	"github.com/vanirdb/vanirdb/pkg/ast"
	"github.com/vanirdb/vanirdb/pkg/symbols"
)

// LogicalOperator is a node of the emitted plan tree.
type LogicalOperator interface {
	// Name returns the operator name used by EXPLAIN output.
	Name() string
	// Input returns the operator's single input child, or nil for leaves.
	// Optional and Merge additionally carry branch subtrees.
	Input() LogicalOperator
	// IntroducedSymbols lists the symbols this operator binds. Symbols
	// bound by ancestors are not repeated, except by Produce: a RETURN * or
	// WITH * projection lists the already bound symbols it passes through.
	IntroducedSymbols(table *symbols.Table) []symbols.Symbol
	// ReferencedExpressions lists the AST expressions the operator
	// evaluates. The AST must outlive the plan.
	ReferencedExpressions() []ast.Expression
}

// baseOp supplies the input child and the no-op defaults shared by all
// operators.
type baseOp struct {
	input LogicalOperator
}

func (b *baseOp) Input() LogicalOperator                            { return b.input }
func (b *baseOp) IntroducedSymbols(*symbols.Table) []symbols.Symbol { return nil }
func (b *baseOp) ReferencedExpressions() []ast.Expression           { return nil }

// ScanAll produces every vertex in the graph bound to OutputSymbol.
type ScanAll struct {
	baseOp
	OutputSymbol symbols.Symbol
}

func NewScanAll(input LogicalOperator, sym symbols.Symbol) *ScanAll {
	return &ScanAll{baseOp{input}, sym}
}

func (*ScanAll) Name() string { return "ScanAll" }
func (op *ScanAll) IntroducedSymbols(*symbols.Table) []symbols.Symbol {
	return []symbols.Symbol{op.OutputSymbol}
}

// ScanAllByLabel produces vertices with the given label.
type ScanAllByLabel struct {
	baseOp
	OutputSymbol symbols.Symbol
	Label        string
}

func NewScanAllByLabel(input LogicalOperator, sym symbols.Symbol, label string) *ScanAllByLabel {
	return &ScanAllByLabel{baseOp{input}, sym, label}
}

func (*ScanAllByLabel) Name() string { return "ScanAllByLabel" }
func (op *ScanAllByLabel) IntroducedSymbols(*symbols.Table) []symbols.Symbol {
	return []symbols.Symbol{op.OutputSymbol}
}

// ScanAllByLabelPropertyValue uses a label+property index to produce
// vertices whose property equals Expression.
type ScanAllByLabelPropertyValue struct {
	baseOp
	OutputSymbol symbols.Symbol
	Label        string
	Property     string
	Expression   ast.Expression
}

func NewScanAllByLabelPropertyValue(input LogicalOperator, sym symbols.Symbol,
	label, property string, expr ast.Expression) *ScanAllByLabelPropertyValue {
	return &ScanAllByLabelPropertyValue{baseOp{input}, sym, label, property, expr}
}

func (*ScanAllByLabelPropertyValue) Name() string { return "ScanAllByLabelPropertyValue" }
func (op *ScanAllByLabelPropertyValue) IntroducedSymbols(*symbols.Table) []symbols.Symbol {
	return []symbols.Symbol{op.OutputSymbol}
}
func (op *ScanAllByLabelPropertyValue) ReferencedExpressions() []ast.Expression {
	return []ast.Expression{op.Expression}
}

// Bound is one end of an index range scan.
type Bound struct {
	Value     ast.Expression
	Inclusive bool
}

// ScanAllByLabelPropertyRange uses a label+property index to produce
// vertices whose property falls between the bounds. Either bound may be
// nil for a half-open range.
type ScanAllByLabelPropertyRange struct {
	baseOp
	OutputSymbol symbols.Symbol
	Label        string
	Property     string
	LowerBound   *Bound
	UpperBound   *Bound
}

func NewScanAllByLabelPropertyRange(input LogicalOperator, sym symbols.Symbol,
	label, property string, lower, upper *Bound) *ScanAllByLabelPropertyRange {
	return &ScanAllByLabelPropertyRange{baseOp{input}, sym, label, property, lower, upper}
}

func (*ScanAllByLabelPropertyRange) Name() string { return "ScanAllByLabelPropertyRange" }
func (op *ScanAllByLabelPropertyRange) IntroducedSymbols(*symbols.Table) []symbols.Symbol {
	return []symbols.Symbol{op.OutputSymbol}
}
func (op *ScanAllByLabelPropertyRange) ReferencedExpressions() []ast.Expression {
	var exprs []ast.Expression
	if op.LowerBound != nil {
		exprs = append(exprs, op.LowerBound.Value)
	}
	if op.UpperBound != nil {
		exprs = append(exprs, op.UpperBound.Value)
	}
	return exprs
}

// Expand traverses edges from the vertex bound to InputSymbol, binding the
// edge to EdgeSymbol and the reached vertex to NodeSymbol. ExistingNode is
// set when NodeSymbol was already bound, turning the expansion into an
// edge-existence check against that vertex.
type Expand struct {
	baseOp
	InputSymbol  symbols.Symbol
	NodeSymbol   symbols.Symbol
	EdgeSymbol   symbols.Symbol
	Direction    ast.EdgeDirection
	EdgeTypes    []string
	ExistingNode bool
}

func NewExpand(input LogicalOperator, inputSym, nodeSym, edgeSym symbols.Symbol,
	direction ast.EdgeDirection, edgeTypes []string, existingNode bool) *Expand {
	return &Expand{baseOp{input}, inputSym, nodeSym, edgeSym, direction, edgeTypes, existingNode}
}

func (*Expand) Name() string { return "Expand" }
func (op *Expand) IntroducedSymbols(*symbols.Table) []symbols.Symbol {
	syms := []symbols.Symbol{op.EdgeSymbol}
	if !op.ExistingNode {
		syms = append(syms, op.NodeSymbol)
	}
	return syms
}

// ExpandVariable is a variable length Expand. Bounds are hop counts; nil
// means unbounded on that end. The edge symbol binds to the list of
// traversed edges.
type ExpandVariable struct {
	baseOp
	InputSymbol  symbols.Symbol
	NodeSymbol   symbols.Symbol
	EdgeSymbol   symbols.Symbol
	Direction    ast.EdgeDirection
	EdgeTypes    []string
	LowerBound   ast.Expression
	UpperBound   ast.Expression
	ExistingNode bool
}

func NewExpandVariable(input LogicalOperator, inputSym, nodeSym, edgeSym symbols.Symbol,
	direction ast.EdgeDirection, edgeTypes []string, lower, upper ast.Expression,
	existingNode bool) *ExpandVariable {
	return &ExpandVariable{baseOp{input}, inputSym, nodeSym, edgeSym, direction,
		edgeTypes, lower, upper, existingNode}
}

func (*ExpandVariable) Name() string { return "ExpandVariable" }
func (op *ExpandVariable) IntroducedSymbols(*symbols.Table) []symbols.Symbol {
	syms := []symbols.Symbol{op.EdgeSymbol}
	if !op.ExistingNode {
		syms = append(syms, op.NodeSymbol)
	}
	return syms
}
func (op *ExpandVariable) ReferencedExpressions() []ast.Expression {
	var exprs []ast.Expression
	if op.LowerBound != nil {
		exprs = append(exprs, op.LowerBound)
	}
	if op.UpperBound != nil {
		exprs = append(exprs, op.UpperBound)
	}
	return exprs
}

// Filter keeps rows for which Expression evaluates to true.
type Filter struct {
	baseOp
	Expression ast.Expression
}

func NewFilter(input LogicalOperator, expr ast.Expression) *Filter {
	return &Filter{baseOp{input}, expr}
}

func (*Filter) Name() string { return "Filter" }
func (op *Filter) ReferencedExpressions() []ast.Expression {
	return []ast.Expression{op.Expression}
}

// Produce evaluates the named expressions and emits them as the visible
// result columns.
type Produce struct {
	baseOp
	NamedExpressions []*ast.NamedExpression
}

func NewProduce(input LogicalOperator, namedExprs []*ast.NamedExpression) *Produce {
	return &Produce{baseOp{input}, namedExprs}
}

func (*Produce) Name() string { return "Produce" }
func (op *Produce) IntroducedSymbols(table *symbols.Table) []symbols.Symbol {
	syms := make([]symbols.Symbol, 0, len(op.NamedExpressions))
	for _, ne := range op.NamedExpressions {
		syms = append(syms, table.At(ne))
	}
	return syms
}
func (op *Produce) ReferencedExpressions() []ast.Expression {
	exprs := make([]ast.Expression, 0, len(op.NamedExpressions))
	for _, ne := range op.NamedExpressions {
		exprs = append(exprs, ne)
	}
	return exprs
}

// Accumulate materializes its whole input before any row flows on. It is
// placed when the preceding pipeline wrote to the graph so later reads see
// final values. AdvanceCommand additionally makes the writes visible to
// the rest of the same query (WITH after a write).
type Accumulate struct {
	baseOp
	Symbols        []symbols.Symbol
	AdvanceCommand bool
}

func NewAccumulate(input LogicalOperator, syms []symbols.Symbol, advanceCommand bool) *Accumulate {
	return &Accumulate{baseOp{input}, syms, advanceCommand}
}

func (*Accumulate) Name() string { return "Accumulate" }

// AggregateElement is a single aggregation to compute. Arg1 is nil for
// count(*); Arg2 is set only for collectMap.
type AggregateElement struct {
	Arg1         ast.Expression
	Arg2         ast.Expression
	Op           ast.AggregationOp
	OutputSymbol symbols.Symbol
}

// Aggregate groups its input by the GroupBy expressions and computes the
// aggregations per group. RememberedSymbols are carried through so later
// operators can keep referencing pre-aggregation values.
type Aggregate struct {
	baseOp
	Aggregations      []AggregateElement
	GroupBy           []ast.Expression
	RememberedSymbols []symbols.Symbol
}

func NewAggregate(input LogicalOperator, aggregations []AggregateElement,
	groupBy []ast.Expression, remembered []symbols.Symbol) *Aggregate {
	return &Aggregate{baseOp{input}, aggregations, groupBy, remembered}
}

func (*Aggregate) Name() string { return "Aggregate" }
func (op *Aggregate) IntroducedSymbols(*symbols.Table) []symbols.Symbol {
	syms := make([]symbols.Symbol, 0, len(op.Aggregations))
	for _, el := range op.Aggregations {
		syms = append(syms, el.OutputSymbol)
	}
	return syms
}
func (op *Aggregate) ReferencedExpressions() []ast.Expression {
	var exprs []ast.Expression
	for _, el := range op.Aggregations {
		if el.Arg1 != nil {
			exprs = append(exprs, el.Arg1)
		}
		if el.Arg2 != nil {
			exprs = append(exprs, el.Arg2)
		}
	}
	exprs = append(exprs, op.GroupBy...)
	return exprs
}

// Skip drops the first Expression rows.
type Skip struct {
	baseOp
	Expression ast.Expression
}

func NewSkip(input LogicalOperator, expr ast.Expression) *Skip {
	return &Skip{baseOp{input}, expr}
}

func (*Skip) Name() string { return "Skip" }
func (op *Skip) ReferencedExpressions() []ast.Expression {
	return []ast.Expression{op.Expression}
}

// Limit stops after Expression rows.
type Limit struct {
	baseOp
	Expression ast.Expression
}

func NewLimit(input LogicalOperator, expr ast.Expression) *Limit {
	return &Limit{baseOp{input}, expr}
}

func (*Limit) Name() string { return "Limit" }
func (op *Limit) ReferencedExpressions() []ast.Expression {
	return []ast.Expression{op.Expression}
}

// OrderBy sorts the input. OutputSymbols are the symbols whose values must
// survive the sort.
type OrderBy struct {
	baseOp
	Order         []ast.SortItem
	OutputSymbols []symbols.Symbol
}

func NewOrderBy(input LogicalOperator, order []ast.SortItem, outputSymbols []symbols.Symbol) *OrderBy {
	return &OrderBy{baseOp{input}, order, outputSymbols}
}

func (*OrderBy) Name() string { return "OrderBy" }
func (op *OrderBy) ReferencedExpressions() []ast.Expression {
	exprs := make([]ast.Expression, 0, len(op.Order))
	for _, item := range op.Order {
		exprs = append(exprs, item.Expression)
	}
	return exprs
}

// Distinct drops rows whose ValueSymbols values were already produced.
type Distinct struct {
	baseOp
	ValueSymbols []symbols.Symbol
}

func NewDistinct(input LogicalOperator, valueSymbols []symbols.Symbol) *Distinct {
	return &Distinct{baseOp{input}, valueSymbols}
}

func (*Distinct) Name() string { return "Distinct" }

// Optional runs Branch for every input row; when the branch yields nothing
// the OptionalSymbols are bound to null instead of dropping the row.
type Optional struct {
	baseOp
	Branch          LogicalOperator
	OptionalSymbols []symbols.Symbol
}

func NewOptional(input, branch LogicalOperator, optionalSymbols []symbols.Symbol) *Optional {
	return &Optional{baseOp{input}, branch, optionalSymbols}
}

func (*Optional) Name() string { return "Optional" }
func (op *Optional) IntroducedSymbols(*symbols.Table) []symbols.Symbol {
	return op.OptionalSymbols
}

// ConstructNamedPath materializes a named path from its already bound atom
// symbols.
type ConstructNamedPath struct {
	baseOp
	PathSymbol   symbols.Symbol
	PathElements []symbols.Symbol
}

func NewConstructNamedPath(input LogicalOperator, pathSymbol symbols.Symbol,
	pathElements []symbols.Symbol) *ConstructNamedPath {
	return &ConstructNamedPath{baseOp{input}, pathSymbol, pathElements}
}

func (*ConstructNamedPath) Name() string { return "ConstructNamedPath" }
func (op *ConstructNamedPath) IntroducedSymbols(*symbols.Table) []symbols.Symbol {
	return []symbols.Symbol{op.PathSymbol}
}

// CreateNode creates a vertex from the atom's labels and properties and
// binds it to the atom's symbol.
type CreateNode struct {
	baseOp
	Node *ast.NodeAtom
}

func NewCreateNode(input LogicalOperator, node *ast.NodeAtom) *CreateNode {
	return &CreateNode{baseOp{input}, node}
}

func (*CreateNode) Name() string { return "CreateNode" }
func (op *CreateNode) IntroducedSymbols(table *symbols.Table) []symbols.Symbol {
	return []symbols.Symbol{table.At(op.Node.Identifier)}
}
func (op *CreateNode) ReferencedExpressions() []ast.Expression {
	return propertyValues(op.Node.Properties)
}

// CreateExpand creates an edge from the vertex bound to InputSymbol to the
// Node atom's vertex, creating that vertex too unless ExistingNode is set.
type CreateExpand struct {
	baseOp
	Node         *ast.NodeAtom
	Edge         *ast.EdgeAtom
	InputSymbol  symbols.Symbol
	ExistingNode bool
}

func NewCreateExpand(input LogicalOperator, node *ast.NodeAtom, edge *ast.EdgeAtom,
	inputSymbol symbols.Symbol, existingNode bool) *CreateExpand {
	return &CreateExpand{baseOp{input}, node, edge, inputSymbol, existingNode}
}

func (*CreateExpand) Name() string { return "CreateExpand" }
func (op *CreateExpand) IntroducedSymbols(table *symbols.Table) []symbols.Symbol {
	syms := []symbols.Symbol{table.At(op.Edge.Identifier)}
	if !op.ExistingNode {
		syms = append(syms, table.At(op.Node.Identifier))
	}
	return syms
}
func (op *CreateExpand) ReferencedExpressions() []ast.Expression {
	exprs := propertyValues(op.Edge.Properties)
	if !op.ExistingNode {
		exprs = append(exprs, propertyValues(op.Node.Properties)...)
	}
	return exprs
}

// Delete removes the graph elements the expressions evaluate to. Detach
// first removes edges attached to deleted vertices.
type Delete struct {
	baseOp
	Expressions []ast.Expression
	Detach      bool
}

func NewDelete(input LogicalOperator, expressions []ast.Expression, detach bool) *Delete {
	return &Delete{baseOp{input}, expressions, detach}
}

func (*Delete) Name() string { return "Delete" }
func (op *Delete) ReferencedExpressions() []ast.Expression { return op.Expressions }

// SetProperty writes a single property.
type SetProperty struct {
	baseOp
	Lookup     *ast.PropertyLookup
	Expression ast.Expression
}

func NewSetProperty(input LogicalOperator, lookup *ast.PropertyLookup, expr ast.Expression) *SetProperty {
	return &SetProperty{baseOp{input}, lookup, expr}
}

func (*SetProperty) Name() string { return "SetProperty" }
func (op *SetProperty) ReferencedExpressions() []ast.Expression {
	return []ast.Expression{op.Lookup, op.Expression}
}

// SetPropertiesOp selects between merging into and replacing the property
// set of a record.
type SetPropertiesOp int

const (
	SetPropertiesUpdate SetPropertiesOp = iota
	SetPropertiesReplace
)

// SetProperties rewrites all properties of the record bound to InputSymbol.
type SetProperties struct {
	baseOp
	InputSymbol symbols.Symbol
	Expression  ast.Expression
	Op          SetPropertiesOp
}

func NewSetProperties(input LogicalOperator, inputSymbol symbols.Symbol,
	expr ast.Expression, op SetPropertiesOp) *SetProperties {
	return &SetProperties{baseOp{input}, inputSymbol, expr, op}
}

func (*SetProperties) Name() string { return "SetProperties" }
func (op *SetProperties) ReferencedExpressions() []ast.Expression {
	return []ast.Expression{op.Expression}
}

// SetLabels adds labels to the vertex bound to InputSymbol.
type SetLabels struct {
	baseOp
	InputSymbol symbols.Symbol
	Labels      []string
}

func NewSetLabels(input LogicalOperator, inputSymbol symbols.Symbol, labels []string) *SetLabels {
	return &SetLabels{baseOp{input}, inputSymbol, labels}
}

func (*SetLabels) Name() string { return "SetLabels" }

// RemoveProperty erases a single property.
type RemoveProperty struct {
	baseOp
	Lookup *ast.PropertyLookup
}

func NewRemoveProperty(input LogicalOperator, lookup *ast.PropertyLookup) *RemoveProperty {
	return &RemoveProperty{baseOp{input}, lookup}
}

func (*RemoveProperty) Name() string { return "RemoveProperty" }
func (op *RemoveProperty) ReferencedExpressions() []ast.Expression {
	return []ast.Expression{op.Lookup}
}

// RemoveLabels removes labels from the vertex bound to InputSymbol.
type RemoveLabels struct {
	baseOp
	InputSymbol symbols.Symbol
	Labels      []string
}

func NewRemoveLabels(input LogicalOperator, inputSymbol symbols.Symbol, labels []string) *RemoveLabels {
	return &RemoveLabels{baseOp{input}, inputSymbol, labels}
}

func (*RemoveLabels) Name() string { return "RemoveLabels" }

// Merge runs MergeMatch for each input row; when the match branch yields
// nothing, MergeCreate runs instead. IntroducedSyms are the pattern
// symbols newly bound by the merge.
type Merge struct {
	baseOp
	MergeMatch     LogicalOperator
	MergeCreate    LogicalOperator
	IntroducedSyms []symbols.Symbol
}

func NewMerge(input, mergeMatch, mergeCreate LogicalOperator,
	introduced []symbols.Symbol) *Merge {
	return &Merge{baseOp{input}, mergeMatch, mergeCreate, introduced}
}

func (*Merge) Name() string { return "Merge" }
func (op *Merge) IntroducedSymbols(*symbols.Table) []symbols.Symbol {
	return op.IntroducedSyms
}

// Unwind binds OutputSymbol to each element of the list InputExpression
// evaluates to.
type Unwind struct {
	baseOp
	InputExpression ast.Expression
	OutputSymbol    symbols.Symbol
}

func NewUnwind(input LogicalOperator, inputExpression ast.Expression,
	outputSymbol symbols.Symbol) *Unwind {
	return &Unwind{baseOp{input}, inputExpression, outputSymbol}
}

func (*Unwind) Name() string { return "Unwind" }
func (op *Unwind) IntroducedSymbols(*symbols.Table) []symbols.Symbol {
	return []symbols.Symbol{op.OutputSymbol}
}
func (op *Unwind) ReferencedExpressions() []ast.Expression {
	return []ast.Expression{op.InputExpression}
}

// CreateIndex instructs the storage layer to build a label+property index.
// It is always the sole operator of its plan.
type CreateIndex struct {
	baseOp
	Label    string
	Property string
}

func NewCreateIndex(label, property string) *CreateIndex {
	return &CreateIndex{baseOp{}, label, property}
}

func (*CreateIndex) Name() string { return "CreateIndex" }

func propertyValues(pairs []ast.PropertyPair) []ast.Expression {
	if len(pairs) == 0 {
		return nil
	}
	exprs := make([]ast.Expression, 0, len(pairs))
	for _, pair := range pairs {
		exprs = append(exprs, pair.Value)
	}
	return exprs
}

// Symbol generation for VanirDB Cypher queries.
// This file implements the semantic pass that resolves every variable
// occurrence in a parsed query to a Symbol and builds the Table the
// planner consumes.

package symbols

import (
	"github.com/vanirdb/vanirdb/pkg/ast"
)

// Generate resolves all variable bindings in query and returns the
// populated symbol table. Expected user errors are returned as
// *SemanticError; anything else panicking out of here is a bug in the
// caller-supplied AST.
func Generate(query *ast.Query) (table *Table, err error) {
	g := &generator{
		table: NewTable(),
		scope: make(map[string]Symbol),
	}
	defer func() {
		if r := recover(); r != nil {
			if semErr, ok := r.(*SemanticError); ok {
				table, err = nil, semErr
				return
			}
			panic(r)
		}
	}()
	for _, clause := range query.Clauses {
		g.genClause(clause)
	}
	return g.table, nil
}

// bindContext says which clause a pattern appears in; CREATE and MERGE
// forbid variable length edges and treat node references differently from
// MATCH only at planning time, so the generator mostly shares one path.
type bindContext int

const (
	bindMatch bindContext = iota
	bindCreate
	bindMerge
)

type generator struct {
	table *Table
	// scope maps visible variable names to their symbols. WITH replaces the
	// whole map, except WITH *, which layers the new names over the old
	// scope; ALL(...) shadows a single name temporarily.
	scope map[string]Symbol
	// aggregationAllowed is set only while visiting the named expressions
	// of a RETURN or WITH body.
	aggregationAllowed bool
	// identifiersForbidden rejects variables inside SKIP and LIMIT.
	identifiersForbidden bool
}

func (g *generator) genClause(clause ast.Clause) {
	switch c := clause.(type) {
	case *ast.Match:
		for _, pattern := range c.Patterns {
			g.bindPattern(pattern, bindMatch)
		}
		if c.Where != nil {
			g.visitExpr(c.Where.Expression)
		}
	case *ast.Create:
		for _, pattern := range c.Patterns {
			g.bindPattern(pattern, bindCreate)
		}
	case *ast.Merge:
		g.bindPattern(c.Pattern, bindMerge)
		for _, action := range c.OnMatch {
			g.genClause(action)
		}
		for _, action := range c.OnCreate {
			g.genClause(action)
		}
	case *ast.Return:
		g.genReturnBody(&c.Body, nil, false)
	case *ast.With:
		g.genReturnBody(&c.Body, c.Where, true)
	case *ast.Unwind:
		ne := c.NamedExpression
		g.visitExpr(ne.Expression)
		if _, bound := g.scope[ne.Name]; bound {
			panic(semanticErrorf(ErrRedeclaredVariable,
				"variable %q already declared", ne.Name))
		}
		sym := g.table.CreateSymbol(ne.Name, true, KindExpression, ne.TokenPos)
		g.scope[ne.Name] = sym
		g.table.Associate(ne, sym)
	case *ast.Delete:
		for _, expr := range c.Expressions {
			g.visitExpr(expr)
		}
	case *ast.SetProperty:
		g.visitExpr(c.PropertyLookup)
		g.visitExpr(c.Expression)
	case *ast.SetProperties:
		g.referenceIdentifier(c.Identifier)
		g.visitExpr(c.Expression)
	case *ast.SetLabels:
		g.referenceIdentifier(c.Identifier)
	case *ast.RemoveProperty:
		g.visitExpr(c.PropertyLookup)
	case *ast.RemoveLabels:
		g.referenceIdentifier(c.Identifier)
	case *ast.CreateIndex:
		// No variables.
	default:
		panic(semanticErrorf(ErrInvalidQueryStructure,
			"unsupported clause %T", clause))
	}
}

func (g *generator) bindPattern(pattern *ast.Pattern, ctx bindContext) {
	if ctx == bindMerge && len(pattern.Atoms) == 1 {
		// MERGE on a lone already-bound variable has nothing to merge.
		if node, ok := pattern.Atoms[0].(*ast.NodeAtom); ok {
			if _, bound := g.scope[node.Identifier.Name]; bound {
				panic(semanticErrorf(ErrRedeclaredVariable,
					"variable %q already declared", node.Identifier.Name))
			}
		}
	}
	if pattern.Identifier != nil {
		if pattern.Identifier.UserDeclared {
			if _, bound := g.scope[pattern.Identifier.Name]; bound {
				panic(semanticErrorf(ErrRedeclaredVariable,
					"variable %q already declared", pattern.Identifier.Name))
			}
			sym := g.table.CreateSymbol(pattern.Identifier.Name, true, KindPath,
				pattern.Identifier.TokenPos)
			g.scope[pattern.Identifier.Name] = sym
			g.table.Associate(pattern.Identifier, sym)
		} else {
			sym := g.table.CreateSymbol(pattern.Identifier.Name, false, KindPath,
				pattern.Identifier.TokenPos)
			g.table.Associate(pattern.Identifier, sym)
		}
	}
	for _, atom := range pattern.Atoms {
		switch a := atom.(type) {
		case *ast.NodeAtom:
			g.bindNodeAtom(a)
		case *ast.EdgeAtom:
			g.bindEdgeAtom(a, ctx)
		}
	}
}

func (g *generator) bindNodeAtom(atom *ast.NodeAtom) {
	ident := atom.Identifier
	if sym, bound := g.scope[ident.Name]; bound {
		if sym.Kind == KindEdge || sym.Kind == KindPath {
			panic(semanticErrorf(ErrTypeMismatch,
				"variable %q is a %s, not a node", ident.Name, sym.Kind))
		}
		g.table.Associate(ident, sym)
	} else {
		sym := g.table.CreateSymbol(ident.Name, ident.UserDeclared, KindNode,
			ident.TokenPos)
		g.scope[ident.Name] = sym
		g.table.Associate(ident, sym)
	}
	for _, pair := range atom.Properties {
		g.visitExpr(pair.Value)
	}
}

func (g *generator) bindEdgeAtom(atom *ast.EdgeAtom, ctx bindContext) {
	ident := atom.Identifier
	if _, bound := g.scope[ident.Name]; bound {
		// An edge variable names exactly one relationship; re-binding it in
		// any pattern is illegal.
		panic(semanticErrorf(ErrEdgeRedeclaration,
			"edge variable %q already declared", ident.Name))
	}
	if atom.Variable && ctx != bindMatch {
		panic(semanticErrorf(ErrInvalidQueryStructure,
			"variable length relationships cannot be created"))
	}
	sym := g.table.CreateSymbol(ident.Name, ident.UserDeclared, KindEdge,
		ident.TokenPos)
	g.scope[ident.Name] = sym
	g.table.Associate(ident, sym)
	for _, pair := range atom.Properties {
		g.visitExpr(pair.Value)
	}
	if atom.LowerBound != nil {
		g.visitExpr(atom.LowerBound)
	}
	if atom.UpperBound != nil {
		g.visitExpr(atom.UpperBound)
	}
}

func (g *generator) genReturnBody(body *ast.ReturnBody, where *ast.Where, isWith bool) {
	newBindings := make(map[string]Symbol)
	g.aggregationAllowed = true
	for _, ne := range body.NamedExpressions {
		g.visitExpr(ne.Expression)
		if _, dup := newBindings[ne.Name]; dup && isWith {
			panic(semanticErrorf(ErrRedeclaredVariable,
				"variable %q already declared", ne.Name))
		}
		sym := g.table.CreateSymbol(ne.Name, true, KindExpression, ne.TokenPos)
		newBindings[ne.Name] = sym
		g.table.Associate(ne, sym)
	}
	g.aggregationAllowed = false

	// ORDER BY and WHERE see the projected names layered over the previous
	// scope.
	saved := g.scope
	merged := make(map[string]Symbol, len(saved)+len(newBindings))
	for name, sym := range saved {
		merged[name] = sym
	}
	for name, sym := range newBindings {
		merged[name] = sym
	}
	g.scope = merged
	for _, item := range body.OrderBy {
		g.visitExpr(item.Expression)
	}
	g.identifiersForbidden = true
	if body.Skip != nil {
		g.visitExpr(body.Skip)
	}
	if body.Limit != nil {
		g.visitExpr(body.Limit)
	}
	g.identifiersForbidden = false
	if where != nil {
		g.visitExpr(where.Expression)
	}

	if isWith {
		if body.AllIdentifiers {
			// WITH * keeps the old scope and adds the new names on top.
			g.scope = merged
		} else {
			g.scope = newBindings
		}
	} else {
		g.scope = saved
	}
}

func (g *generator) referenceIdentifier(ident *ast.Identifier) {
	sym, bound := g.scope[ident.Name]
	if !bound {
		panic(semanticErrorf(ErrUnboundVariable, "variable %q is not defined",
			ident.Name))
	}
	g.table.Associate(ident, sym)
}

// visitExpr resolves identifiers inside an expression and assigns virtual
// symbols to aggregations.
func (g *generator) visitExpr(expr ast.Expression) {
	ast.Walk(expr, &exprResolver{g: g})
}

type exprResolver struct {
	g *generator
}

func (r *exprResolver) Enter(n ast.Node) bool {
	g := r.g
	switch node := n.(type) {
	case *ast.Identifier:
		if g.identifiersForbidden {
			panic(semanticErrorf(ErrInvalidQueryStructure,
				"SKIP and LIMIT may only contain literals and parameters"))
		}
		g.referenceIdentifier(node)
	case *ast.Aggregation:
		if !g.aggregationAllowed {
			panic(semanticErrorf(ErrAggregationMisuse,
				"aggregation functions are only allowed in RETURN and WITH projections"))
		}
		sym := g.table.CreateSymbol(node.Op.String(), false, KindExpression, 0)
		g.table.Associate(node, sym)
	case *ast.All:
		// The quantifier variable shadows any outer binding for the
		// duration of its predicate.
		g.visitExpr(node.ListExpression)
		prev, had := g.scope[node.Identifier.Name]
		sym := g.table.CreateSymbol(node.Identifier.Name, true, KindAny,
			node.Identifier.TokenPos)
		g.scope[node.Identifier.Name] = sym
		g.table.Associate(node.Identifier, sym)
		g.visitExpr(node.Where.Expression)
		if had {
			g.scope[node.Identifier.Name] = prev
		} else {
			delete(g.scope, node.Identifier.Name)
		}
		return false
	}
	return true
}

func (r *exprResolver) Leave(ast.Node) {}

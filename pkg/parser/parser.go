// Recursive descent Cypher parser for VanirDB.

package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/vanirdb/vanirdb/pkg/ast"
)

// SyntaxError is a user-facing parse failure.
type SyntaxError struct {
	Pos     int
	Message string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Message)
}

// Parser consumes a token stream and builds an AST inside a Storage. One
// parser handles one query.
type Parser struct {
	input   string
	tokens  []token
	pos     int
	storage *ast.Storage
	runID   string
	anonSeq int
}

// Parse parses a Cypher query and returns the AST together with the
// Storage owning its nodes.
func Parse(input string) (query *ast.Query, storage *ast.Storage, err error) {
	if strings.TrimSpace(input) == "" {
		return nil, nil, &SyntaxError{0, "empty query"}
	}
	tokens, lexErr := lex(input)
	if lexErr != nil {
		return nil, nil, lexErr
	}
	p := &Parser{
		input:   input,
		tokens:  tokens,
		storage: ast.NewStorage(),
		runID:   uuid.NewString()[:8],
	}
	defer func() {
		if r := recover(); r != nil {
			if synErr, ok := r.(*SyntaxError); ok {
				query, storage, err = nil, nil, synErr
				return
			}
			panic(r)
		}
	}()
	var clauses []ast.Clause
	for !p.at(tokenEOF) {
		clauses = append(clauses, p.parseClause()...)
	}
	return p.storage.NewQuery(clauses...), p.storage, nil
}

// anonName generates a variable name no user query can collide with.
func (p *Parser) anonName() string {
	p.anonSeq++
	return fmt.Sprintf("anon_%s_%d", p.runID, p.anonSeq)
}

// ---- token plumbing ----

func (p *Parser) peek() token { return p.tokens[p.pos] }

func (p *Parser) peekAt(n int) token {
	if p.pos+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[p.pos+n]
}

func (p *Parser) next() token {
	tok := p.tokens[p.pos]
	if tok.typ != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *Parser) at(typ tokenType) bool { return p.peek().typ == typ }

func (p *Parser) accept(typ tokenType) bool {
	if p.at(typ) {
		p.next()
		return true
	}
	return false
}

func (p *Parser) acceptKeyword(word string) bool {
	if p.peek().keywordIs(word) {
		p.next()
		return true
	}
	return false
}

func (p *Parser) expect(typ tokenType, what string) token {
	if !p.at(typ) {
		p.fail("expected %s, got %s", what, p.peek())
	}
	return p.next()
}

func (p *Parser) expectKeyword(word string) {
	if !p.acceptKeyword(word) {
		p.fail("expected %s, got %s", word, p.peek())
	}
}

func (p *Parser) fail(format string, args ...any) {
	panic(&SyntaxError{Pos: p.peek().pos, Message: fmt.Sprintf(format, args...)})
}

// ---- clauses ----

func (p *Parser) parseClause() []ast.Clause {
	tok := p.peek()
	switch {
	case tok.keywordIs("MATCH"):
		return []ast.Clause{p.parseMatch(false)}
	case tok.keywordIs("OPTIONAL"):
		p.next()
		p.expectKeyword("MATCH")
		return []ast.Clause{p.parseMatchBody(true)}
	case tok.keywordIs("CREATE"):
		p.next()
		if p.peek().keywordIs("INDEX") {
			return []ast.Clause{p.parseCreateIndex()}
		}
		return []ast.Clause{p.storage.NewCreate(p.parsePatterns()...)}
	case tok.keywordIs("MERGE"):
		return []ast.Clause{p.parseMerge()}
	case tok.keywordIs("WITH"):
		return []ast.Clause{p.parseWith()}
	case tok.keywordIs("RETURN"):
		return []ast.Clause{p.parseReturn()}
	case tok.keywordIs("UNWIND"):
		return []ast.Clause{p.parseUnwind()}
	case tok.keywordIs("DETACH"):
		p.next()
		p.expectKeyword("DELETE")
		return []ast.Clause{p.parseDelete(true)}
	case tok.keywordIs("DELETE"):
		p.next()
		return []ast.Clause{p.parseDelete(false)}
	case tok.keywordIs("SET"):
		p.next()
		return p.parseSetItems()
	case tok.keywordIs("REMOVE"):
		p.next()
		return p.parseRemoveItems()
	}
	p.fail("expected a clause, got %s", tok)
	return nil
}

func (p *Parser) parseMatch(optional bool) *ast.Match {
	p.expectKeyword("MATCH")
	return p.parseMatchBody(optional)
}

func (p *Parser) parseMatchBody(optional bool) *ast.Match {
	patterns := p.parsePatterns()
	var where *ast.Where
	if p.acceptKeyword("WHERE") {
		where = p.storage.NewWhere(p.parseExpression())
	}
	return p.storage.NewMatch(optional, where, patterns...)
}

func (p *Parser) parseCreateIndex() *ast.CreateIndex {
	p.expectKeyword("INDEX")
	p.expectKeyword("ON")
	p.expect(tokenColon, "':'")
	label := p.expect(tokenIdent, "label").literal
	p.expect(tokenLParen, "'('")
	property := p.expect(tokenIdent, "property").literal
	p.expect(tokenRParen, "')'")
	return p.storage.NewCreateIndex(label, property)
}

func (p *Parser) parseMerge() *ast.Merge {
	p.expectKeyword("MERGE")
	pattern := p.parsePattern()
	var onMatch, onCreate []ast.Clause
	for p.peek().keywordIs("ON") {
		p.next()
		switch {
		case p.acceptKeyword("MATCH"):
			p.expectKeyword("SET")
			onMatch = append(onMatch, p.parseSetItems()...)
		case p.acceptKeyword("CREATE"):
			p.expectKeyword("SET")
			onCreate = append(onCreate, p.parseSetItems()...)
		default:
			p.fail("expected MATCH or CREATE after ON, got %s", p.peek())
		}
	}
	return p.storage.NewMerge(pattern, onMatch, onCreate)
}

func (p *Parser) parseWith() *ast.With {
	p.expectKeyword("WITH")
	body := p.parseReturnBody()
	var where *ast.Where
	if p.acceptKeyword("WHERE") {
		where = p.storage.NewWhere(p.parseExpression())
	}
	return p.storage.NewWith(body, where)
}

func (p *Parser) parseReturn() *ast.Return {
	p.expectKeyword("RETURN")
	return p.storage.NewReturn(p.parseReturnBody())
}

func (p *Parser) parseReturnBody() ast.ReturnBody {
	var body ast.ReturnBody
	if p.acceptKeyword("DISTINCT") {
		body.Distinct = true
	}
	wantItems := true
	if p.at(tokenStar) {
		p.next()
		body.AllIdentifiers = true
		wantItems = p.accept(tokenComma)
	}
	if wantItems {
		for {
			body.NamedExpressions = append(body.NamedExpressions, p.parseNamedExpression())
			if !p.accept(tokenComma) {
				break
			}
		}
	}
	if p.peek().keywordIs("ORDER") {
		p.next()
		p.expectKeyword("BY")
		for {
			item := ast.SortItem{Ordering: ast.OrderingAsc, Expression: p.parseExpression()}
			if p.acceptKeyword("DESC") || p.acceptKeyword("DESCENDING") {
				item.Ordering = ast.OrderingDesc
			} else if p.acceptKeyword("ASC") || p.acceptKeyword("ASCENDING") {
				item.Ordering = ast.OrderingAsc
			}
			body.OrderBy = append(body.OrderBy, item)
			if !p.accept(tokenComma) {
				break
			}
		}
	}
	if p.acceptKeyword("SKIP") {
		body.Skip = p.parseExpression()
	}
	if p.acceptKeyword("LIMIT") {
		body.Limit = p.parseExpression()
	}
	return body
}

// parseNamedExpression parses `expr [AS name]`; without an alias the
// column is named by the expression's source text.
func (p *Parser) parseNamedExpression() *ast.NamedExpression {
	startTok := p.peek()
	expr := p.parseExpression()
	name := ""
	if p.acceptKeyword("AS") {
		name = p.expect(tokenIdent, "column name").literal
	} else {
		name = strings.TrimSpace(p.input[startTok.pos:p.peek().pos])
	}
	ne := p.storage.NewNamedExpression(name, expr)
	ne.TokenPos = startTok.pos
	return ne
}

func (p *Parser) parseUnwind() *ast.Unwind {
	p.expectKeyword("UNWIND")
	expr := p.parseExpression()
	p.expectKeyword("AS")
	nameTok := p.expect(tokenIdent, "variable name")
	ne := p.storage.NewNamedExpression(nameTok.literal, expr)
	ne.TokenPos = nameTok.pos
	return p.storage.NewUnwind(ne)
}

func (p *Parser) parseDelete(detach bool) *ast.Delete {
	var exprs []ast.Expression
	for {
		exprs = append(exprs, p.parseExpression())
		if !p.accept(tokenComma) {
			break
		}
	}
	return p.storage.NewDelete(detach, exprs...)
}

// parseSetItems parses the comma separated items of a SET clause; each
// item becomes its own clause so the planner emits one operator per item.
func (p *Parser) parseSetItems() []ast.Clause {
	var clauses []ast.Clause
	for {
		clauses = append(clauses, p.parseSetItem())
		if !p.accept(tokenComma) {
			break
		}
	}
	return clauses
}

func (p *Parser) parseSetItem() ast.Clause {
	ident := p.parseIdentifier()
	switch {
	case p.at(tokenDot):
		lookup := p.parsePropertyChain(ident)
		p.expect(tokenEq, "'='")
		return p.storage.NewSetProperty(lookup, p.parseExpression())
	case p.at(tokenColon):
		return p.storage.NewSetLabels(ident, p.parseLabels())
	case p.accept(tokenEq):
		return p.storage.NewSetProperties(ident, p.parseExpression(), false)
	case p.accept(tokenPlusEq):
		return p.storage.NewSetProperties(ident, p.parseExpression(), true)
	}
	p.fail("expected '.', ':', '=' or '+=' in SET, got %s", p.peek())
	return nil
}

func (p *Parser) parseRemoveItems() []ast.Clause {
	var clauses []ast.Clause
	for {
		ident := p.parseIdentifier()
		switch {
		case p.at(tokenDot):
			clauses = append(clauses, p.storage.NewRemoveProperty(p.parsePropertyChain(ident)))
		case p.at(tokenColon):
			clauses = append(clauses, p.storage.NewRemoveLabels(ident, p.parseLabels()))
		default:
			p.fail("expected '.' or ':' in REMOVE, got %s", p.peek())
		}
		if !p.accept(tokenComma) {
			break
		}
	}
	return clauses
}

func (p *Parser) parseIdentifier() *ast.Identifier {
	tok := p.expect(tokenIdent, "variable")
	ident := p.storage.NewIdentifier(tok.literal)
	ident.TokenPos = tok.pos
	return ident
}

func (p *Parser) parsePropertyChain(base ast.Expression) *ast.PropertyLookup {
	var lookup *ast.PropertyLookup
	for p.accept(tokenDot) {
		name := p.expect(tokenIdent, "property name").literal
		lookup = p.storage.NewPropertyLookup(base, name)
		base = lookup
	}
	if lookup == nil {
		p.fail("expected property lookup")
	}
	return lookup
}

func (p *Parser) parseLabels() []string {
	var labels []string
	for p.accept(tokenColon) {
		labels = append(labels, p.expect(tokenIdent, "label").literal)
	}
	if len(labels) == 0 {
		p.fail("expected at least one label")
	}
	return labels
}

// ---- patterns ----

func (p *Parser) parsePatterns() []*ast.Pattern {
	var patterns []*ast.Pattern
	for {
		patterns = append(patterns, p.parsePattern())
		if !p.accept(tokenComma) {
			break
		}
	}
	return patterns
}

func (p *Parser) parsePattern() *ast.Pattern {
	var identifier *ast.Identifier
	if p.at(tokenIdent) && p.peekAt(1).typ == tokenEq && p.peekAt(2).typ == tokenLParen {
		identifier = p.parseIdentifier()
		p.next() // '='
	} else {
		identifier = p.storage.NewAnonIdentifier(p.anonName())
	}

	atoms := []ast.PatternAtom{p.parseNodeAtom()}
	for p.at(tokenMinus) || p.at(tokenArrowLeft) {
		atoms = append(atoms, p.parseEdgeAtom())
		atoms = append(atoms, p.parseNodeAtom())
	}
	return p.storage.NewPattern(identifier, atoms...)
}

func (p *Parser) parseNodeAtom() *ast.NodeAtom {
	p.expect(tokenLParen, "'('")
	var ident *ast.Identifier
	if p.at(tokenIdent) {
		ident = p.parseIdentifier()
	} else {
		ident = p.storage.NewAnonIdentifier(p.anonName())
	}
	atom := p.storage.NewNodeAtom(ident)
	for p.at(tokenColon) {
		atom.Labels = append(atom.Labels, p.parseSingleLabel())
	}
	if p.at(tokenLBrace) {
		atom.Properties = p.parsePropertyMap()
	}
	p.expect(tokenRParen, "')'")
	return atom
}

func (p *Parser) parseSingleLabel() string {
	p.expect(tokenColon, "':'")
	return p.expect(tokenIdent, "label").literal
}

func (p *Parser) parseEdgeAtom() *ast.EdgeAtom {
	leftArrow := p.accept(tokenArrowLeft)
	if !leftArrow {
		p.expect(tokenMinus, "'-'")
	}

	var ident *ast.Identifier
	var types []string
	var properties []ast.PropertyPair
	variable := false
	var lower, upper ast.Expression

	if p.accept(tokenLBracket) {
		if p.at(tokenIdent) {
			ident = p.parseIdentifier()
		}
		if p.at(tokenColon) {
			p.next()
			types = append(types, p.expect(tokenIdent, "edge type").literal)
			for p.accept(tokenPipe) {
				p.accept(tokenColon)
				types = append(types, p.expect(tokenIdent, "edge type").literal)
			}
		}
		if p.accept(tokenStar) {
			variable = true
			if p.at(tokenInt) {
				lower = p.parseIntLiteral()
				if p.accept(tokenDotDot) {
					if p.at(tokenInt) {
						upper = p.parseIntLiteral()
					}
				} else {
					// A single bound fixes both ends. The upper end gets its
					// own literal node so the tree shares no nodes.
					lit := lower.(*ast.PrimitiveLiteral)
					upperLit := p.storage.NewPrimitiveLiteral(lit.Value)
					upperLit.TokenPos = lit.TokenPos
					upper = upperLit
				}
			} else if p.accept(tokenDotDot) {
				if p.at(tokenInt) {
					upper = p.parseIntLiteral()
				}
			}
		}
		if p.at(tokenLBrace) {
			properties = p.parsePropertyMap()
		}
		p.expect(tokenRBracket, "']'")
	}
	if ident == nil {
		ident = p.storage.NewAnonIdentifier(p.anonName())
	}

	rightArrow := p.accept(tokenArrowRight)
	if !rightArrow {
		p.expect(tokenMinus, "'-'")
	}
	if leftArrow && rightArrow {
		p.fail("relationship cannot point both ways")
	}
	direction := ast.EdgeBoth
	if leftArrow {
		direction = ast.EdgeLeft
	} else if rightArrow {
		direction = ast.EdgeRight
	}

	atom := p.storage.NewEdgeAtom(ident, direction)
	atom.EdgeTypes = types
	atom.Properties = properties
	atom.Variable = variable
	atom.LowerBound = lower
	atom.UpperBound = upper
	return atom
}

func (p *Parser) parseIntLiteral() *ast.PrimitiveLiteral {
	tok := p.expect(tokenInt, "integer")
	value, err := strconv.ParseInt(tok.literal, 10, 64)
	if err != nil {
		p.fail("invalid integer %q", tok.literal)
	}
	lit := p.storage.NewPrimitiveLiteral(value)
	lit.TokenPos = tok.pos
	return lit
}

func (p *Parser) parsePropertyMap() []ast.PropertyPair {
	p.expect(tokenLBrace, "'{'")
	var pairs []ast.PropertyPair
	if !p.at(tokenRBrace) {
		for {
			key := p.expect(tokenIdent, "property name").literal
			p.expect(tokenColon, "':'")
			pairs = append(pairs, ast.PropertyPair{Key: key, Value: p.parseExpression()})
			if !p.accept(tokenComma) {
				break
			}
		}
	}
	p.expect(tokenRBrace, "'}'")
	return pairs
}

// ---- expressions ----

func (p *Parser) parseExpression() ast.Expression { return p.parseOr() }

func (p *Parser) parseOr() ast.Expression {
	expr := p.parseXor()
	for p.acceptKeyword("OR") {
		expr = p.storage.NewBinaryOperator(ast.BinaryOr, expr, p.parseXor())
	}
	return expr
}

func (p *Parser) parseXor() ast.Expression {
	expr := p.parseAnd()
	for p.acceptKeyword("XOR") {
		expr = p.storage.NewBinaryOperator(ast.BinaryXor, expr, p.parseAnd())
	}
	return expr
}

func (p *Parser) parseAnd() ast.Expression {
	expr := p.parseNot()
	for p.acceptKeyword("AND") {
		expr = p.storage.NewBinaryOperator(ast.BinaryAnd, expr, p.parseNot())
	}
	return expr
}

func (p *Parser) parseNot() ast.Expression {
	if p.acceptKeyword("NOT") {
		return p.storage.NewUnaryOperator(ast.UnaryNot, p.parseNot())
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() ast.Expression {
	expr := p.parseAdditive()
	for {
		var op ast.BinaryOp
		switch {
		case p.accept(tokenEq):
			op = ast.BinaryEqual
		case p.accept(tokenNeq):
			op = ast.BinaryNotEqual
		case p.accept(tokenLe):
			op = ast.BinaryLessEqual
		case p.accept(tokenGe):
			op = ast.BinaryGreaterEqual
		case p.accept(tokenLt):
			op = ast.BinaryLess
		case p.accept(tokenGt):
			op = ast.BinaryGreater
		case p.peek().keywordIs("IN"):
			p.next()
			op = ast.BinaryIn
		case p.peek().keywordIs("IS"):
			p.next()
			if p.acceptKeyword("NOT") {
				p.expectKeyword("NULL")
				expr = p.storage.NewUnaryOperator(ast.UnaryNot,
					p.storage.NewUnaryOperator(ast.UnaryIsNull, expr))
			} else {
				p.expectKeyword("NULL")
				expr = p.storage.NewUnaryOperator(ast.UnaryIsNull, expr)
			}
			continue
		default:
			return expr
		}
		expr = p.storage.NewBinaryOperator(op, expr, p.parseAdditive())
	}
}

func (p *Parser) parseAdditive() ast.Expression {
	expr := p.parseMultiplicative()
	for {
		switch {
		case p.accept(tokenPlus):
			expr = p.storage.NewBinaryOperator(ast.BinaryAdd, expr, p.parseMultiplicative())
		case p.accept(tokenMinus):
			expr = p.storage.NewBinaryOperator(ast.BinarySubtract, expr, p.parseMultiplicative())
		default:
			return expr
		}
	}
}

func (p *Parser) parseMultiplicative() ast.Expression {
	expr := p.parseUnary()
	for {
		switch {
		case p.accept(tokenStar):
			expr = p.storage.NewBinaryOperator(ast.BinaryMultiply, expr, p.parseUnary())
		case p.accept(tokenSlash):
			expr = p.storage.NewBinaryOperator(ast.BinaryDivide, expr, p.parseUnary())
		case p.accept(tokenPercent):
			expr = p.storage.NewBinaryOperator(ast.BinaryMod, expr, p.parseUnary())
		default:
			return expr
		}
	}
}

func (p *Parser) parseUnary() ast.Expression {
	switch {
	case p.accept(tokenMinus):
		return p.storage.NewUnaryOperator(ast.UnaryMinus, p.parseUnary())
	case p.accept(tokenPlus):
		return p.storage.NewUnaryOperator(ast.UnaryPlus, p.parseUnary())
	}
	return p.parsePostfix(p.parseAtom())
}

func (p *Parser) parsePostfix(expr ast.Expression) ast.Expression {
	for {
		switch {
		case p.accept(tokenDot):
			name := p.expect(tokenIdent, "property name").literal
			expr = p.storage.NewPropertyLookup(expr, name)
		case p.at(tokenColon):
			expr = p.storage.NewLabelsTest(expr, p.parseLabels())
		case p.accept(tokenLBracket):
			expr = p.parseSubscriptOrSlice(expr)
		default:
			return expr
		}
	}
}

func (p *Parser) parseSubscriptOrSlice(list ast.Expression) ast.Expression {
	var lower ast.Expression
	if !p.at(tokenDotDot) {
		lower = p.parseExpression()
	}
	if p.accept(tokenDotDot) {
		var upper ast.Expression
		if !p.at(tokenRBracket) {
			upper = p.parseExpression()
		}
		p.expect(tokenRBracket, "']'")
		return p.storage.NewListSlicingOperator(list, lower, upper)
	}
	p.expect(tokenRBracket, "']'")
	if lower == nil {
		p.fail("expected index expression")
	}
	return p.storage.NewBinaryOperator(ast.BinarySubscript, list, lower)
}

var aggregationOps = map[string]ast.AggregationOp{
	"count":   ast.AggregationCount,
	"sum":     ast.AggregationSum,
	"avg":     ast.AggregationAvg,
	"min":     ast.AggregationMin,
	"max":     ast.AggregationMax,
	"collect": ast.AggregationCollect,
}

func (p *Parser) parseAtom() ast.Expression {
	tok := p.peek()
	switch tok.typ {
	case tokenInt:
		return p.parseIntLiteral()
	case tokenFloat:
		p.next()
		value, err := strconv.ParseFloat(tok.literal, 64)
		if err != nil {
			p.fail("invalid number %q", tok.literal)
		}
		lit := p.storage.NewPrimitiveLiteral(value)
		lit.TokenPos = tok.pos
		return lit
	case tokenString:
		p.next()
		lit := p.storage.NewPrimitiveLiteral(tok.literal)
		lit.TokenPos = tok.pos
		return lit
	case tokenParam:
		p.next()
		return p.storage.NewParameterLookup(tok.literal)
	case tokenLParen:
		p.next()
		expr := p.parseExpression()
		p.expect(tokenRParen, "')'")
		return expr
	case tokenLBracket:
		p.next()
		var elements []ast.Expression
		if !p.at(tokenRBracket) {
			for {
				elements = append(elements, p.parseExpression())
				if !p.accept(tokenComma) {
					break
				}
			}
		}
		p.expect(tokenRBracket, "']'")
		return p.storage.NewListLiteral(elements...)
	case tokenLBrace:
		return p.storage.NewMapLiteral(p.parsePropertyMap()...)
	case tokenIdent:
		return p.parseIdentAtom()
	}
	p.fail("expected an expression, got %s", tok)
	return nil
}

func (p *Parser) parseIdentAtom() ast.Expression {
	tok := p.peek()
	switch {
	case tok.keywordIs("TRUE"):
		p.next()
		return p.storage.NewPrimitiveLiteral(true)
	case tok.keywordIs("FALSE"):
		p.next()
		return p.storage.NewPrimitiveLiteral(false)
	case tok.keywordIs("NULL"):
		p.next()
		return p.storage.NewPrimitiveLiteral(nil)
	case tok.keywordIs("CASE"):
		return p.parseCase()
	case tok.keywordIs("ALL") && p.peekAt(1).typ == tokenLParen:
		return p.parseAllQuantifier()
	}
	if p.peekAt(1).typ == tokenLParen {
		return p.parseCall()
	}
	return p.parseIdentifier()
}

// parseCase parses the searched form `CASE WHEN cond THEN val ... [ELSE
// val] END`, nesting chained WHENs right to left. A missing ELSE yields
// null.
func (p *Parser) parseCase() ast.Expression {
	p.expectKeyword("CASE")
	type whenThen struct {
		when ast.Expression
		then ast.Expression
	}
	var arms []whenThen
	for p.acceptKeyword("WHEN") {
		cond := p.parseExpression()
		p.expectKeyword("THEN")
		arms = append(arms, whenThen{cond, p.parseExpression()})
	}
	if len(arms) == 0 {
		p.fail("expected WHEN in CASE expression")
	}
	var els ast.Expression
	if p.acceptKeyword("ELSE") {
		els = p.parseExpression()
	} else {
		els = p.storage.NewPrimitiveLiteral(nil)
	}
	p.expectKeyword("END")
	expr := els
	for i := len(arms) - 1; i >= 0; i-- {
		expr = p.storage.NewIfOperator(arms[i].when, arms[i].then, expr)
	}
	return expr
}

func (p *Parser) parseAllQuantifier() ast.Expression {
	p.expectKeyword("ALL")
	p.expect(tokenLParen, "'('")
	ident := p.parseIdentifier()
	p.expectKeyword("IN")
	list := p.parseExpression()
	p.expectKeyword("WHERE")
	where := p.storage.NewWhere(p.parseExpression())
	p.expect(tokenRParen, "')'")
	return p.storage.NewAll(ident, list, where)
}

// parseCall parses function invocations; aggregation names build
// Aggregation nodes, everything else a Function.
func (p *Parser) parseCall() ast.Expression {
	nameTok := p.expect(tokenIdent, "function name")
	p.expect(tokenLParen, "'('")
	name := nameTok.literal

	if op, isAggregation := aggregationOps[strings.ToLower(name)]; isAggregation {
		if op == ast.AggregationCount && p.accept(tokenStar) {
			p.expect(tokenRParen, "')'")
			return p.storage.NewAggregation(ast.AggregationCount, nil, nil)
		}
		first := p.parseExpression()
		var second ast.Expression
		if p.accept(tokenComma) {
			if op != ast.AggregationCollect {
				p.fail("%s takes a single argument", strings.ToLower(name))
			}
			// collect(key, value) aggregates into a map.
			op = ast.AggregationCollectMap
			second = p.parseExpression()
		}
		p.expect(tokenRParen, "')'")
		return p.storage.NewAggregation(op, first, second)
	}

	var args []ast.Expression
	if !p.at(tokenRParen) {
		for {
			args = append(args, p.parseExpression())
			if !p.accept(tokenComma) {
				break
			}
		}
	}
	p.expect(tokenRParen, "')'")
	return p.storage.NewFunction(name, args...)
}

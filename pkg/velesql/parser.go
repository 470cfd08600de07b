package velesql

import (
	"strconv"
	"strings"

	"github.com/velesdb/veles/pkg/veles"
)

// Parser consumes a token stream from a Lexer and builds a Statement,
// generalizing the structural shape of the teacher's pkg/cypher parser
// (a single-pass recursive-descent walk over clauses) into a real
// precedence-climbing expression parser, since the teacher's own
// parseMatch/parseWhere/etc. never got past placeholder stubs.
type Parser struct {
	lex    *Lexer
	cur    Token
	peek   Token
	lexErr error
}

// Parse parses a single VelesQL statement, including any trailing
// UNION/INTERSECT/EXCEPT chain.
func Parse(src string) (Statement, error) {
	p := &Parser{lex: NewLexer(src)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	stmt, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	for p.curIsKeyword("UNION") || p.curIsKeyword("INTERSECT") || p.curIsKeyword("EXCEPT") {
		op, err := p.parseSetOp()
		if err != nil {
			return nil, err
		}
		right, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		stmt = &CompoundStatement{Left: stmt, Op: op, Right: right}
	}
	if p.lexErr != nil {
		return nil, p.lexErr
	}
	if p.cur.Kind != TokenEOF {
		return nil, newParseError("unexpected trailing input after statement", p.cur.Pos)
	}
	return stmt, nil
}

func (p *Parser) parseSetOp() (SetOp, error) {
	switch {
	case p.curIsKeyword("UNION"):
		p.advanceMust()
		if p.curIsKeyword("ALL") {
			p.advanceMust()
			return SetOpUnionAll, nil
		}
		return SetOpUnion, nil
	case p.curIsKeyword("INTERSECT"):
		p.advanceMust()
		return SetOpIntersect, nil
	case p.curIsKeyword("EXCEPT"):
		p.advanceMust()
		return SetOpExcept, nil
	}
	return "", newParseError("expected UNION, INTERSECT, or EXCEPT", p.cur.Pos)
}

func (p *Parser) parseStatement() (Statement, error) {
	switch {
	case p.curIsKeyword("SELECT"):
		return p.parseSelect()
	case p.curIsKeyword("MATCH"):
		return p.parseMatch()
	}
	return nil, newParseError("expected SELECT or MATCH", p.cur.Pos)
}

// --- token plumbing ---

// advance pulls the next token from the lexer. Once the lexer has
// produced an error, advance keeps returning that same error instead of
// calling the lexer again: a lexer error (e.g. an unterminated string)
// leaves the scan position past the bad input, so a retry would silently
// resume at EOF and mask the failure.
func (p *Parser) advance() error {
	if p.lexErr != nil {
		return p.lexErr
	}
	tok, err := p.lex.Next()
	if err != nil {
		p.lexErr = err
		return err
	}
	p.cur = p.peek
	p.peek = tok
	return nil
}

// advanceMust advances ignoring the immediate return value; callers rely
// on the next checked advance()/expect* call to surface a sticky lexErr.
func (p *Parser) advanceMust() {
	_ = p.advance()
}

func (p *Parser) curIsKeyword(kw string) bool {
	return p.cur.Kind == TokenIdent && strings.EqualFold(p.cur.Text, kw)
}

func (p *Parser) peekIsKeyword(kw string) bool {
	return p.peek.Kind == TokenIdent && strings.EqualFold(p.peek.Text, kw)
}

func (p *Parser) curIsSymbol(s string) bool {
	return (p.cur.Kind == TokenSymbol || p.cur.Kind == TokenOp) && p.cur.Text == s
}

func (p *Parser) expectSymbol(s string) error {
	if !p.curIsSymbol(s) {
		return newParseError("expected '"+s+"'", p.cur.Pos)
	}
	return p.advance()
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.curIsKeyword(kw) {
		return newParseError("expected "+kw, p.cur.Pos)
	}
	return p.advance()
}

func (p *Parser) expectIdent() (string, error) {
	if p.cur.Kind != TokenIdent && p.cur.Kind != TokenQuotedIdent {
		return "", newParseError("expected identifier", p.cur.Pos)
	}
	text := p.cur.Text
	return text, p.advance()
}

// --- SELECT ---

func (p *Parser) parseSelect() (*SelectStatement, error) {
	if err := p.expectKeyword("SELECT"); err != nil {
		return nil, err
	}
	stmt := &SelectStatement{}

	items, err := p.parseSelectList()
	if err != nil {
		return nil, err
	}
	stmt.Projection = items

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	from, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	stmt.From = from
	if p.cur.Kind == TokenIdent && !p.isClauseKeyword(p.cur.Text) {
		alias, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		stmt.FromAlias = alias
	}

	for p.curIsKeyword("INNER") || p.curIsKeyword("LEFT") || p.curIsKeyword("RIGHT") || p.curIsKeyword("FULL") || p.curIsKeyword("JOIN") {
		join, err := p.parseJoin()
		if err != nil {
			return nil, err
		}
		stmt.Joins = append(stmt.Joins, join)
	}

	if p.curIsKeyword("WHERE") {
		p.advanceMust()
		where, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	if p.curIsKeyword("GROUP") {
		p.advanceMust()
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		for {
			e, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			stmt.GroupBy = append(stmt.GroupBy, e)
			if p.curIsSymbol(",") {
				p.advanceMust()
				continue
			}
			break
		}
	}

	if p.curIsKeyword("HAVING") {
		p.advanceMust()
		having, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		stmt.Having = having
	}

	orderBy, err := p.parseOrderBy()
	if err != nil {
		return nil, err
	}
	stmt.OrderBy = orderBy

	limit, offset, err := p.parseLimitOffset()
	if err != nil {
		return nil, err
	}
	stmt.Limit = limit
	stmt.Offset = offset

	return stmt, nil
}

// isClauseKeyword reports whether text starts a clause that would
// otherwise be mistaken for a FROM/MATCH alias.
func (p *Parser) isClauseKeyword(text string) bool {
	switch strings.ToUpper(text) {
	case "WHERE", "GROUP", "HAVING", "ORDER", "LIMIT", "OFFSET", "INNER", "LEFT", "RIGHT", "FULL", "JOIN", "UNION", "INTERSECT", "EXCEPT", "RETURN":
		return true
	}
	return false
}

func (p *Parser) parseSelectList() ([]SelectItem, error) {
	var items []SelectItem
	for {
		if p.curIsSymbol("*") {
			p.advanceMust()
			items = append(items, SelectItem{Star: true})
		} else {
			expr, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			item := SelectItem{Expr: expr}
			if p.curIsKeyword("AS") {
				p.advanceMust()
				alias, err := p.expectIdent()
				if err != nil {
					return nil, err
				}
				item.Alias = alias
			}
			items = append(items, item)
		}
		if p.curIsSymbol(",") {
			p.advanceMust()
			continue
		}
		break
	}
	return items, nil
}

func (p *Parser) parseJoin() (*JoinClause, error) {
	kind := JoinInner
	switch {
	case p.curIsKeyword("INNER"):
		p.advanceMust()
	case p.curIsKeyword("LEFT"):
		kind = JoinLeft
		p.advanceMust()
	case p.curIsKeyword("RIGHT"):
		kind = JoinRight
		p.advanceMust()
	case p.curIsKeyword("FULL"):
		kind = JoinFull
		p.advanceMust()
	}
	if err := p.expectKeyword("JOIN"); err != nil {
		return nil, err
	}
	collection, err := p.expectIdent()
	if err != nil {
		return nil, err
	}
	join := &JoinClause{Kind: kind, Collection: collection}
	if p.cur.Kind == TokenIdent && !p.curIsKeyword("ON") {
		alias, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		join.Alias = alias
	}
	if err := p.expectKeyword("ON"); err != nil {
		return nil, err
	}
	on, err := p.parseExpr(0)
	if err != nil {
		return nil, err
	}
	join.On = on
	return join, nil
}

func (p *Parser) parseOrderBy() ([]OrderItem, error) {
	if !p.curIsKeyword("ORDER") {
		return nil, nil
	}
	p.advanceMust()
	if err := p.expectKeyword("BY"); err != nil {
		return nil, err
	}
	var items []OrderItem
	for {
		e, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		item := OrderItem{Expr: e}
		if p.curIsKeyword("DESC") {
			item.Descending = true
			p.advanceMust()
		} else if p.curIsKeyword("ASC") {
			p.advanceMust()
		}
		items = append(items, item)
		if p.curIsSymbol(",") {
			p.advanceMust()
			continue
		}
		break
	}
	return items, nil
}

func (p *Parser) parseLimitOffset() (*int64, *int64, error) {
	var limit, offset *int64
	if p.curIsKeyword("LIMIT") {
		p.advanceMust()
		n, err := p.expectInt()
		if err != nil {
			return nil, nil, err
		}
		limit = &n
	}
	if p.curIsKeyword("OFFSET") {
		p.advanceMust()
		n, err := p.expectInt()
		if err != nil {
			return nil, nil, err
		}
		offset = &n
	}
	return limit, offset, nil
}

func (p *Parser) expectInt() (int64, error) {
	if p.cur.Kind != TokenNumber {
		return 0, newParseErrorKind(veles.ParseInvalidValue, "expected an integer", p.cur.Pos)
	}
	n, err := strconv.ParseInt(p.cur.Text, 10, 64)
	if err != nil {
		return 0, newParseErrorKind(veles.ParseInvalidValue, "invalid integer literal '"+p.cur.Text+"'", p.cur.Pos)
	}
	return n, p.advance()
}

// --- MATCH ---

func (p *Parser) parseMatch() (*MatchStatement, error) {
	if err := p.expectKeyword("MATCH"); err != nil {
		return nil, err
	}
	stmt := &MatchStatement{}
	for {
		pattern, err := p.parsePattern()
		if err != nil {
			return nil, err
		}
		stmt.Patterns = append(stmt.Patterns, pattern)
		if p.curIsSymbol(",") {
			p.advanceMust()
			continue
		}
		break
	}

	if p.curIsKeyword("WHERE") {
		p.advanceMust()
		where, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		stmt.Where = where
	}

	if err := p.expectKeyword("RETURN"); err != nil {
		return nil, err
	}
	items, err := p.parseSelectList()
	if err != nil {
		return nil, err
	}
	stmt.Return = items

	orderBy, err := p.parseOrderBy()
	if err != nil {
		return nil, err
	}
	stmt.OrderBy = orderBy

	limit, offset, err := p.parseLimitOffset()
	if err != nil {
		return nil, err
	}
	stmt.Limit = limit
	stmt.Offset = offset

	return stmt, nil
}

func (p *Parser) parsePattern() (*Pattern, error) {
	start, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}
	pattern := &Pattern{Start: start}
	for p.curIsSymbol("-") || p.curIsOpText("<-") {
		step, err := p.parsePatternStep()
		if err != nil {
			return nil, err
		}
		pattern.Steps = append(pattern.Steps, step)
	}
	return pattern, nil
}

// parseNodePattern parses `(alias:Label {prop: val, ...})`, generalizing
// the quote/bracket depth-tracked scanning idiom of the teacher's
// pattern_parser.go parseNodePattern into token-stream form.
func (p *Parser) parseNodePattern() (*NodePattern, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	node := &NodePattern{}
	if p.cur.Kind == TokenIdent {
		node.Alias = p.cur.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if p.curIsSymbol(":") {
		p.advanceMust()
		label, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		node.Label = label
	}
	if p.curIsSymbol("{") {
		props, err := p.parsePropertyMap()
		if err != nil {
			return nil, err
		}
		node.Properties = props
	}
	if err := p.expectSymbol(")"); err != nil {
		return nil, err
	}
	return node, nil
}

func (p *Parser) parsePropertyMap() (map[string]Expr, error) {
	if err := p.expectSymbol("{"); err != nil {
		return nil, err
	}
	props := make(map[string]Expr)
	for !p.curIsSymbol("}") {
		key, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol(":"); err != nil {
			return nil, err
		}
		val, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		props[key] = val
		if p.curIsSymbol(",") {
			p.advanceMust()
			continue
		}
		break
	}
	return props, p.expectSymbol("}")
}

// parsePatternStep parses one relationship hop: `-[:TYPE|TYPE2*min..max]->`
// and its leftward/undirected variants, then the node it leads to. The
// lexer folds the direction arrows into single tokens ("->" and "<-"),
// so the leading dash is either that combined token or a bare "-", and
// likewise for the trailing dash.
func (p *Parser) parsePatternStep() (*PatternStep, error) {
	edge := &EdgePattern{MinHops: 1, MaxHops: 1}
	if p.curIsOpText("<-") {
		edge.Incoming = true
		p.advanceMust()
	} else if err := p.expectSymbol("-"); err != nil {
		return nil, err
	}
	if p.curIsSymbol("[") {
		p.advanceMust()
		if p.cur.Kind == TokenIdent && !p.curIsSymbol(":") {
			edge.Alias = p.cur.Text
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if p.curIsSymbol(":") {
			p.advanceMust()
			for {
				t, err := p.expectIdent()
				if err != nil {
					return nil, err
				}
				edge.Types = append(edge.Types, t)
				if p.curIsSymbol("|") {
					p.advanceMust()
					continue
				}
				break
			}
		}
		if p.curIsOpText("*") {
			p.advanceMust()
			edge.VariableHops = true
			min, max, err := p.parseHopRange()
			if err != nil {
				return nil, err
			}
			edge.MinHops, edge.MaxHops = min, max
		}
		if err := p.expectSymbol("]"); err != nil {
			return nil, err
		}
	}
	if p.curIsOpText("->") {
		edge.Outgoing = true
		p.advanceMust()
	} else if err := p.expectSymbol("-"); err != nil {
		return nil, err
	}
	node, err := p.parseNodePattern()
	if err != nil {
		return nil, err
	}
	return &PatternStep{Edge: edge, Node: node}, nil
}

func (p *Parser) curIsOpText(s string) bool {
	return p.cur.Kind == TokenOp && p.cur.Text == s
}

// parseHopRange parses the `min..max` (or bare `n`, or nothing for
// unbounded) following a `*` in a variable-length relationship pattern.
func (p *Parser) parseHopRange() (int, int, error) {
	if p.cur.Kind != TokenNumber {
		return 1, maxHopsUnbounded, nil
	}
	min, err := p.expectInt()
	if err != nil {
		return 0, 0, err
	}
	max := min
	if p.curIsSymbol(".") {
		p.advanceMust()
		if err := p.expectSymbol("."); err != nil {
			return 0, 0, err
		}
		if p.cur.Kind == TokenNumber {
			m, err := p.expectInt()
			if err != nil {
				return 0, 0, err
			}
			max = m
		} else {
			max = maxHopsUnbounded
		}
	}
	return int(min), int(max), nil
}

// maxHopsUnbounded marks a variable-length pattern with no declared upper
// bound (`[*2..]`); the executor caps such a pattern at
// query.cappedMaxHops (50) hops.
const maxHopsUnbounded = -1

// --- Expressions: Pratt / precedence climbing ---

var binaryPrecedence = map[string]int{
	"OR":  1,
	"AND": 2,
	"=":   3, "!=": 3, "<>": 3, "<": 3, "<=": 3, ">": 3, ">=": 3,
	"MATCH": 3, "NEAR": 3, "IN": 3,
	"+": 4, "-": 4, "|": 4,
	"*": 5, "/": 5,
}

func (p *Parser) parseExpr(minPrec int) (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.currentBinaryOp()
		if !ok {
			break
		}
		prec, ok := binaryPrecedence[op]
		if !ok || prec < minPrec {
			break
		}
		p.advanceMust()

		switch strings.ToUpper(op) {
		case "NEAR":
			right, err := p.parseExpr(prec + 1)
			if err != nil {
				return nil, err
			}
			col, err := exprColumnName(left)
			if err != nil {
				return nil, err
			}
			left = &NearPredicate{Column: col, Param: right}
			continue
		case "MATCH":
			right, err := p.parseExpr(prec + 1)
			if err != nil {
				return nil, err
			}
			col, err := exprColumnName(left)
			if err != nil {
				return nil, err
			}
			lit, ok := right.(*Literal)
			if !ok || lit.Kind != LiteralString {
				return nil, newParseError("MATCH requires a string literal pattern", p.cur.Pos)
			}
			left = &MatchTextPredicate{Column: col, Pattern: lit.Value.(string)}
			continue
		}

		right, err := p.parseExpr(prec + 1)
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: strings.ToUpper(op), Left: left, Right: right}
	}
	return left, nil
}

func exprColumnName(e Expr) (string, error) {
	switch v := e.(type) {
	case *Identifier:
		return v.Name, nil
	case *PropertyAccess:
		return v.Alias + "." + v.Property, nil
	}
	return "", newParseError("expected a column reference", 0)
}

// currentBinaryOp returns the textual operator at cur if it begins a
// binary expression. NEAR_FUSED is not one of them: it is not in
// binaryPrecedence, and maybeNearFused parses it right after its column
// operand since it isn't infix in the same way NEAR is.
func (p *Parser) currentBinaryOp() (string, bool) {
	if p.cur.Kind == TokenOp || p.cur.Kind == TokenSymbol {
		if _, ok := binaryPrecedence[p.cur.Text]; ok {
			return p.cur.Text, true
		}
		return "", false
	}
	if p.cur.Kind == TokenIdent {
		upper := strings.ToUpper(p.cur.Text)
		if _, ok := binaryPrecedence[upper]; ok {
			return upper, true
		}
	}
	return "", false
}

func (p *Parser) parseUnary() (Expr, error) {
	if p.curIsKeyword("NOT") {
		p.advanceMust()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "NOT", Operand: operand}, nil
	}
	if p.curIsOpText("-") {
		p.advanceMust()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: "-", Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *Parser) parsePrimary() (Expr, error) {
	switch {
	case p.cur.Kind == TokenNumber:
		return p.parseNumberLiteral()
	case p.cur.Kind == TokenString:
		lit := &Literal{Kind: LiteralString, Value: p.cur.Text}
		return lit, p.advance()
	case p.cur.Kind == TokenParam:
		param := &Parameter{Name: p.cur.Text}
		return param, p.advance()
	case p.curIsSymbol("("):
		p.advanceMust()
		if p.curIsKeyword("SELECT") {
			sel, err := p.parseSelect()
			if err != nil {
				return nil, err
			}
			if err := p.expectSymbol(")"); err != nil {
				return nil, err
			}
			return &Subquery{Statement: sel}, nil
		}
		inner, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		return inner, p.expectSymbol(")")
	case p.curIsSymbol("["):
		return p.parseArrayLiteral()
	case p.curIsKeyword("TRUE"):
		p.advanceMust()
		return &Literal{Kind: LiteralBool, Value: true}, nil
	case p.curIsKeyword("FALSE"):
		p.advanceMust()
		return &Literal{Kind: LiteralBool, Value: false}, nil
	case p.curIsKeyword("NULL"):
		p.advanceMust()
		return &Literal{Kind: LiteralNull}, nil
	case p.curIsKeyword("INTERVAL"):
		return p.parseInterval()
	case p.curIsKeyword("NEAR_FUSED"):
		return nil, newParseError("NEAR_FUSED must follow a column reference", p.cur.Pos)
	case p.cur.Kind == TokenIdent || p.cur.Kind == TokenQuotedIdent:
		return p.parseIdentOrCall()
	}
	return nil, newParseError("unexpected token '"+p.cur.Text+"'", p.cur.Pos)
}

func (p *Parser) parseNumberLiteral() (Expr, error) {
	text := p.cur.Text
	pos := p.cur.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	if strings.Contains(text, ".") {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, newParseErrorKind(veles.ParseInvalidValue, "invalid numeric literal '"+text+"'", pos)
		}
		return &Literal{Kind: LiteralFloat, Value: f}, nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, newParseErrorKind(veles.ParseInvalidValue, "invalid numeric literal '"+text+"'", pos)
	}
	return &Literal{Kind: LiteralInt, Value: n}, nil
}

func (p *Parser) parseArrayLiteral() (Expr, error) {
	if err := p.expectSymbol("["); err != nil {
		return nil, err
	}
	arr := &ArrayLiteral{}
	for !p.curIsSymbol("]") {
		e, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		arr.Elements = append(arr.Elements, e)
		if p.curIsSymbol(",") {
			p.advanceMust()
			continue
		}
		break
	}
	return arr, p.expectSymbol("]")
}

func (p *Parser) parseInterval() (Expr, error) {
	if err := p.expectKeyword("INTERVAL"); err != nil {
		return nil, err
	}
	if p.cur.Kind != TokenString {
		return nil, newParseErrorKind(veles.ParseInvalidValue, "INTERVAL requires a quoted duration, e.g. INTERVAL '7d'", p.cur.Pos)
	}
	raw := p.cur.Text
	pos := p.cur.Pos
	if err := p.advance(); err != nil {
		return nil, err
	}
	quantity, unit, err := parseDuration(raw, pos)
	if err != nil {
		return nil, err
	}
	return &IntervalLiteral{Quantity: quantity, Unit: unit}, nil
}

// parseDuration splits an INTERVAL literal body like "7d" or "30 minutes"
// into its integer quantity and unit suffix.
func parseDuration(raw string, pos int) (int64, string, error) {
	trimmed := strings.TrimSpace(raw)
	i := 0
	for i < len(trimmed) && (trimmed[i] == '-' || (trimmed[i] >= '0' && trimmed[i] <= '9')) {
		i++
	}
	if i == 0 {
		return 0, "", newParseErrorKind(veles.ParseInvalidValue, "invalid INTERVAL literal '"+raw+"'", pos)
	}
	n, err := strconv.ParseInt(trimmed[:i], 10, 64)
	if err != nil {
		return 0, "", newParseErrorKind(veles.ParseInvalidValue, "invalid INTERVAL literal '"+raw+"'", pos)
	}
	unit := strings.TrimSpace(trimmed[i:])
	if unit == "" {
		return 0, "", newParseErrorKind(veles.ParseInvalidValue, "INTERVAL literal '"+raw+"' is missing a unit", pos)
	}
	return n, unit, nil
}

// parseIdentOrCall parses a bare identifier, an alias.property path, a
// function call (including NEAR_FUSED's fusion-strategy call form), or a
// NEAR_FUSED predicate.
func (p *Parser) parseIdentOrCall() (Expr, error) {
	name := p.cur.Text
	if err := p.advance(); err != nil {
		return nil, err
	}

	if p.curIsSymbol(".") {
		p.advanceMust()
		prop, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		left := &PropertyAccess{Alias: name, Property: prop}
		return p.maybeNearFused(left)
	}

	if p.curIsSymbol("(") {
		return p.parseCallArgs(name)
	}

	left := &Identifier{Name: name}
	return p.maybeNearFused(left)
}

// maybeNearFused checks for `col NEAR_FUSED [...] USING FUSION '...'(...)`
// immediately following an identifier/property-access operand, since
// NEAR_FUSED's keyword sits where a binary operator normally would but
// carries a multi-part grammar of its own.
func (p *Parser) maybeNearFused(left Expr) (Expr, error) {
	if !p.curIsKeyword("NEAR_FUSED") {
		return left, nil
	}
	p.advanceMust()
	col, err := exprColumnName(left)
	if err != nil {
		return nil, err
	}
	arr, err := p.parseArrayLiteral()
	if err != nil {
		return nil, err
	}
	params := arr.(*ArrayLiteral).Elements
	pred := &NearFusedPredicate{Column: col, Params: params}

	if p.curIsKeyword("USING") {
		p.advanceMust()
		if err := p.expectKeyword("FUSION"); err != nil {
			return nil, err
		}
		if p.cur.Kind != TokenString {
			return nil, newParseErrorKind(veles.ParseInvalidValue, "expected a quoted fusion strategy name", p.cur.Pos)
		}
		pred.Strategy = p.cur.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.curIsSymbol("(") {
			args, err := p.parseFusionArgs()
			if err != nil {
				return nil, err
			}
			pred.StrategyArgs = args
		}
	}
	return pred, nil
}

func (p *Parser) parseFusionArgs() (map[string]float64, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	args := make(map[string]float64)
	for !p.curIsSymbol(")") {
		key, err := p.expectIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectSymbol("="); err != nil {
			return nil, err
		}
		if p.cur.Kind != TokenNumber {
			return nil, newParseErrorKind(veles.ParseInvalidValue, "fusion argument '"+key+"' must be numeric", p.cur.Pos)
		}
		val, err := strconv.ParseFloat(p.cur.Text, 64)
		if err != nil {
			return nil, newParseErrorKind(veles.ParseInvalidValue, "invalid numeric value for fusion argument '"+key+"'", p.cur.Pos)
		}
		args[key] = val
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.curIsSymbol(",") {
			p.advanceMust()
			continue
		}
		break
	}
	return args, p.expectSymbol(")")
}

func (p *Parser) parseCallArgs(name string) (Expr, error) {
	if err := p.expectSymbol("("); err != nil {
		return nil, err
	}
	call := &FunctionCall{Name: strings.ToUpper(name)}
	if strings.EqualFold(name, "COUNT") && p.curIsKeyword("DISTINCT") {
		call.Distinct = true
		p.advanceMust()
	}
	for !p.curIsSymbol(")") {
		if p.curIsSymbol("*") {
			p.advanceMust()
			call.Args = append(call.Args, &Identifier{Name: "*"})
		} else {
			arg, err := p.parseExpr(0)
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
		}
		if p.curIsSymbol(",") {
			p.advanceMust()
			continue
		}
		break
	}
	return call, p.expectSymbol(")")
}

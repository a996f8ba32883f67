package compiler

import (
	"strings"

	"coilc/pkg/arena"
	"coilc/pkg/diag"
	"coilc/pkg/types"
)

// Parser consumes the flat token slice produced by the Lexer and builds a
// Program.
//
// Precedence (lowest to highest): assignment (right-associative);
// conditional ?:; logical or; logical and; bitwise or; bitwise xor;
// bitwise and; equality; relational; shift; additive; multiplicative;
// unary (prefix) and cast; postfix (call, index, field, ++/--); primary.
type Parser struct {
	tokens      []Token
	pos         int
	sourceLines []string
	retType     *types.Type // return type of the function currently being parsed
	syms        *SymbolTable
	arena       *arena.Arena
}

func NewParser(tokens []Token, rawSource string) *Parser {
	return &Parser{
		tokens:      tokens,
		sourceLines: strings.Split(rawSource, "\n"),
		syms:        NewSymbolTable(),
		arena:       arena.New(),
	}
}

// node returns a zero-valued *T owned by the parser's arena, the sole
// allocator for everything reachable from the program it builds.
func node[T any](p *Parser) *T { return arena.Alloc[T](p.arena) }

// defineOrRedefine binds name at the current scope. A redefinition in the
// same scope is a SemanticError; shadowing an outer scope is always fine.
// Re-declaring a function (a prototype, or a repeated prototype) is not
// treated as a redefinition.
func (p *Parser) defineOrRedefine(name string, t *types.Type, pos Position) error {
	b := node[Binding](p)
	b.Name, b.Type, b.Pos = name, t, pos
	existing, ok := p.syms.Define(b)
	if ok {
		return nil
	}
	if existing.Type != nil && existing.Type.Kind == types.Function && t.Kind == types.Function {
		return nil
	}
	return diag.NewSemanticError(pos.Diag(), "redefinition of %q", name)
}

// identType resolves name against the symbol table, or the unresolved
// placeholder if nothing is bound yet — the code generator re-resolves
// identifiers against its own table before lowering.
func (p *Parser) identType(name string) *types.Type {
	if b, ok := p.syms.Lookup(name); ok {
		return b.Type
	}
	return types.UnresolvedType()
}

// fmtError builds a SyntaxError carrying the offending token's position
// and, when available, the source line it came from.
func (p *Parser) fmtError(tok Token, format string, args ...any) error {
	err := diag.NewSyntaxError(tok.Pos.Diag(), format, args...)
	lineIdx := tok.Pos.Line - 1
	if lineIdx >= 0 && lineIdx < len(p.sourceLines) {
		err.Snippet = strings.TrimSpace(p.sourceLines[lineIdx])
	}
	return err
}

func (p *Parser) peek() Token { return p.peekAt(0) }

func (p *Parser) peekAt(offset int) Token {
	if p.pos+offset >= len(p.tokens) {
		if len(p.tokens) == 0 {
			return Token{Type: EOF}
		}
		return Token{Type: EOF, Pos: p.tokens[len(p.tokens)-1].Pos}
	}
	return p.tokens[p.pos+offset]
}

func (p *Parser) advance() Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

func (p *Parser) expect(tt TokenType) (Token, error) {
	tok := p.advance()
	if tok.Type != tt {
		return tok, p.fmtError(tok, "expected %s, got %s (%q)", tt, tok.Type, tok.Lexeme)
	}
	return tok, nil
}

//  Type specifiers

// isTypeStart reports whether tt can begin a type specifier or
// declaration: a base-type keyword or a storage-class/qualifier keyword.
func isTypeStart(tt TokenType) bool {
	switch tt {
	case VOID, INT, BYTE, UNSIGNED, FLOAT, DOUBLE, STATIC, EXTERN, CONST, VOLATILE:
		return true
	}
	return false
}

// parseStorageClass consumes any leading static/extern/const/volatile
// keywords in any order and returns which were seen.
func (p *Parser) parseStorageClass() (static, extern bool) {
	for {
		switch p.peek().Type {
		case STATIC:
			p.advance()
			static = true
		case EXTERN:
			p.advance()
			extern = true
		case CONST, VOLATILE:
			p.advance() // parsed but not modeled on the Type; accepted for source compatibility
		default:
			return
		}
	}
}

// parseTypeSpecifier parses a base type and any pointer stars, e.g.
// "unsigned int", "byte", "float*", "void**".
func (p *Parser) parseTypeSpecifier() (*types.Type, error) {
	unsigned := false
	if p.peek().Type == UNSIGNED {
		p.advance()
		unsigned = true
	}

	var base *types.Type
	tok := p.peek()
	switch tok.Type {
	case VOID:
		p.advance()
		base = types.Void_()
	case INT:
		p.advance()
		base = types.Int(32, !unsigned)
	case BYTE:
		p.advance()
		base = types.Int(8, !unsigned)
	case FLOAT:
		p.advance()
		base = types.Float(32)
	case DOUBLE:
		p.advance()
		base = types.Float(64)
	default:
		if unsigned {
			base = types.Int(32, false)
			break
		}
		return nil, p.fmtError(tok, "expected a type, got %s (%q)", tok.Type, tok.Lexeme)
	}

	for p.peek().Type == STAR {
		p.advance()
		base = types.PointerTo(base)
	}
	return base, nil
}

// tryParseCastType attempts to consume "(" type-specifier ")" at the
// current position. On any mismatch it rewinds and returns false so the
// caller can fall back to parsing a parenthesized expression.
func (p *Parser) tryParseCastType() (*types.Type, bool) {
	if p.peek().Type != LPAREN || !isBaseTypeStart(p.peekAt(1).Type) {
		return nil, false
	}
	save := p.pos
	p.advance() // (
	t, err := p.parseTypeSpecifier()
	if err != nil || p.peek().Type != RPAREN {
		p.pos = save
		return nil, false
	}
	p.advance() // )
	return t, true
}

func isBaseTypeStart(tt TokenType) bool {
	switch tt {
	case VOID, INT, BYTE, UNSIGNED, FLOAT, DOUBLE:
		return true
	}
	return false
}

//  Type assignment
//
// The parser stamps a ResultType on every expression node as it is built
// (§4.F). Literals get their natural type immediately; an identifier's
// type comes from whatever the symbol table has bound so far, or the
// unresolved placeholder if nothing matches yet. Anything built on top of
// an unresolved operand stays unresolved — the generator is the one that
// walks the fully-declared program and can always resolve a name.

// elementType returns the pointee/element type for an index or deref
// target, or the unresolved placeholder if t isn't a pointer or array.
func elementType(t *types.Type) *types.Type {
	if types.IsUnresolved(t) {
		return types.UnresolvedType()
	}
	if t.Kind == types.Pointer || t.Kind == types.Array {
		return t.Elem
	}
	return types.UnresolvedType()
}

// callResultType returns a callee's return type when calleeType is a
// resolved function type, else the unresolved placeholder.
func callResultType(calleeType *types.Type) *types.Type {
	if !types.IsUnresolved(calleeType) && calleeType.Kind == types.Function {
		return calleeType.Elem
	}
	return types.UnresolvedType()
}

// unaryResultType applies the prefix-operator typing rules: ! always
// yields boolean; & yields pointer(operand); * dereferences a pointer or
// array to its element type; everything else keeps the operand's type.
func unaryResultType(op TokenType, operand *types.Type) *types.Type {
	switch op {
	case NOT:
		return types.Bool()
	case AND:
		return types.PointerTo(operand)
	case STAR:
		return elementType(operand)
	default:
		return operand
	}
}

// conditionalResultType applies the common-type rule when both arms are
// numeric, falls back to the then-arm's type when the two sides already
// agree, and otherwise defers to the unresolved placeholder.
func conditionalResultType(then, els *types.Type) *types.Type {
	if types.IsUnresolved(then) || types.IsUnresolved(els) {
		return types.UnresolvedType()
	}
	if types.IsNumeric(then) && types.IsNumeric(els) {
		return types.Common(then, els)
	}
	if types.Equal(then, els) {
		return then
	}
	return types.UnresolvedType()
}

// binaryResultType applies the fixed promotion rule for arithmetic and
// bitwise operators, and the boolean result for comparisons. Operands the
// parser couldn't resolve yet propagate as unresolved.
func binaryResultType(op TokenType, l, r *types.Type) *types.Type {
	if types.IsUnresolved(l) || types.IsUnresolved(r) {
		return types.UnresolvedType()
	}
	switch op {
	case EQUALS, NOT_EQ, LESS, GREATER, LESS_EQ, GREATER_EQ:
		return types.Bool()
	default:
		if types.IsNumeric(l) && types.IsNumeric(r) {
			return types.Common(l, r)
		}
		return types.UnresolvedType()
	}
}

//  Expressions

func (p *Parser) parseExpression() (Expr, error) {
	return p.parseAssignment()
}

var assignOps = map[TokenType]bool{
	ASSIGN: true, PLUS_ASSIGN: true, MINUS_ASSIGN: true, STAR_ASSIGN: true, SLASH_ASSIGN: true,
	PERCENT_ASSIGN: true, AND_ASSIGN: true, OR_ASSIGN: true, XOR_ASSIGN: true,
	SHL_ASSIGN: true, SHR_ASSIGN: true,
}

// parseAssignment is right-associative and lowest precedence: the target
// is whatever the next level up produced, validated as an lvalue only
// once we know an assignment operator actually follows.
func (p *Parser) parseAssignment() (Expr, error) {
	left, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	tok := p.peek()
	if !assignOps[tok.Type] {
		return left, nil
	}
	if !isAssignTarget(left) {
		return nil, diag.NewSyntaxError(tok.Pos.Diag(), "invalid assignment target")
	}
	p.advance()
	value, err := p.parseAssignment()
	if err != nil {
		return nil, err
	}
	return &AssignExpr{exprBase: exprBase{Pos: left.Position(), ResultType: left.Type()}, Target: left, Op: tok.Type, Value: value}, nil
}

func isAssignTarget(e Expr) bool {
	switch t := e.(type) {
	case *Ident:
		return true
	case *UnaryExpr:
		return t.Op == STAR
	case *IndexExpr, *FieldExpr:
		return true
	default:
		return false
	}
}

func (p *Parser) parseConditional() (Expr, error) {
	cond, err := p.parseLogicalOr()
	if err != nil {
		return nil, err
	}
	if p.peek().Type != QUESTION {
		return cond, nil
	}
	pos := p.advance().Pos
	then, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COLON); err != nil {
		return nil, err
	}
	els, err := p.parseConditional()
	if err != nil {
		return nil, err
	}
	return &ConditionalExpr{exprBase: exprBase{Pos: pos, ResultType: conditionalResultType(then.Type(), els.Type())}, Cond: cond, Then: then, Else: els}, nil
}

func (p *Parser) parseLogicalOr() (Expr, error) {
	expr, err := p.parseLogicalAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == OR_LOGICAL {
		tok := p.advance()
		right, err := p.parseLogicalAnd()
		if err != nil {
			return nil, err
		}
		expr = &LogicalExpr{exprBase: exprBase{Pos: tok.Pos, ResultType: types.Bool()}, Op: tok.Type, Left: expr, Right: right}
	}
	return expr, nil
}

func (p *Parser) parseLogicalAnd() (Expr, error) {
	expr, err := p.parseBitwiseOr()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == AND_LOGICAL {
		tok := p.advance()
		right, err := p.parseBitwiseOr()
		if err != nil {
			return nil, err
		}
		expr = &LogicalExpr{exprBase: exprBase{Pos: tok.Pos, ResultType: types.Bool()}, Op: tok.Type, Left: expr, Right: right}
	}
	return expr, nil
}

func (p *Parser) parseBitwiseOr() (Expr, error) {
	expr, err := p.parseBitwiseXor()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == PIPE {
		tok := p.advance()
		right, err := p.parseBitwiseXor()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{exprBase: exprBase{Pos: tok.Pos, ResultType: binaryResultType(tok.Type, expr.Type(), right.Type())}, Op: tok.Type, Left: expr, Right: right}
	}
	return expr, nil
}

func (p *Parser) parseBitwiseXor() (Expr, error) {
	expr, err := p.parseBitwiseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == CARET {
		tok := p.advance()
		right, err := p.parseBitwiseAnd()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{exprBase: exprBase{Pos: tok.Pos, ResultType: binaryResultType(tok.Type, expr.Type(), right.Type())}, Op: tok.Type, Left: expr, Right: right}
	}
	return expr, nil
}

// parseBitwiseAnd handles binary &; unary & (address-of) is handled in
// parseUnary and is never seen at this level.
func (p *Parser) parseBitwiseAnd() (Expr, error) {
	expr, err := p.parseEquality()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == AND {
		tok := p.advance()
		right, err := p.parseEquality()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{exprBase: exprBase{Pos: tok.Pos, ResultType: binaryResultType(tok.Type, expr.Type(), right.Type())}, Op: tok.Type, Left: expr, Right: right}
	}
	return expr, nil
}

func (p *Parser) parseEquality() (Expr, error) {
	expr, err := p.parseRelational()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == EQUALS || p.peek().Type == NOT_EQ {
		tok := p.advance()
		right, err := p.parseRelational()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{exprBase: exprBase{Pos: tok.Pos, ResultType: binaryResultType(tok.Type, expr.Type(), right.Type())}, Op: tok.Type, Left: expr, Right: right}
	}
	return expr, nil
}

func (p *Parser) parseRelational() (Expr, error) {
	expr, err := p.parseShift()
	if err != nil {
		return nil, err
	}
	for {
		tt := p.peek().Type
		if tt != LESS && tt != GREATER && tt != LESS_EQ && tt != GREATER_EQ {
			break
		}
		tok := p.advance()
		right, err := p.parseShift()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{exprBase: exprBase{Pos: tok.Pos, ResultType: binaryResultType(tok.Type, expr.Type(), right.Type())}, Op: tok.Type, Left: expr, Right: right}
	}
	return expr, nil
}

func (p *Parser) parseShift() (Expr, error) {
	expr, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	for p.peek().Type == SHL_OP || p.peek().Type == SHR_OP {
		tok := p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{exprBase: exprBase{Pos: tok.Pos, ResultType: binaryResultType(tok.Type, expr.Type(), right.Type())}, Op: tok.Type, Left: expr, Right: right}
	}
	return expr, nil
}

func (p *Parser) parseAdditive() (Expr, error) {
	expr, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		tt := p.peek().Type
		if tt != PLUS && tt != MINUS {
			break
		}
		tok := p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{exprBase: exprBase{Pos: tok.Pos, ResultType: binaryResultType(tok.Type, expr.Type(), right.Type())}, Op: tok.Type, Left: expr, Right: right}
	}
	return expr, nil
}

func (p *Parser) parseMultiplicative() (Expr, error) {
	expr, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tt := p.peek().Type
		if tt != STAR && tt != SLASH && tt != PERCENT {
			break
		}
		tok := p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		expr = &BinaryExpr{exprBase: exprBase{Pos: tok.Pos, ResultType: binaryResultType(tok.Type, expr.Type(), right.Type())}, Op: tok.Type, Left: expr, Right: right}
	}
	return expr, nil
}

var prefixOps = map[TokenType]bool{
	AND: true, STAR: true, TILDE: true, NOT: true, MINUS: true, PLUS_PLUS: true, MINUS_MINUS: true,
}

// parseUnary handles casts, prefix operators, and sizeof.
func (p *Parser) parseUnary() (Expr, error) {
	startPos := p.peek().Pos
	if t, ok := p.tryParseCastType(); ok {
		pos := startPos
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &CastExpr{exprBase: exprBase{Pos: pos, ResultType: t}, Target: t, Operand: operand}, nil
	}

	if p.peek().Type == SIZEOF {
		pos := p.advance().Pos
		if _, err := p.expect(LPAREN); err != nil {
			return nil, err
		}
		t, err := p.parseTypeSpecifier()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return &SizeofExpr{exprBase: exprBase{Pos: pos, ResultType: types.Int(32, false)}, Target: t}, nil
	}

	if prefixOps[p.peek().Type] {
		tok := p.advance()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{exprBase: exprBase{Pos: tok.Pos, ResultType: unaryResultType(tok.Type, operand.Type())}, Op: tok.Type, Operand: operand}, nil
	}

	return p.parsePostfix()
}

func (p *Parser) parsePostfix() (Expr, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for {
		switch p.peek().Type {
		case LBRACKET:
			p.advance()
			index, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(RBRACKET); err != nil {
				return nil, err
			}
			expr = &IndexExpr{exprBase: exprBase{Pos: expr.Position(), ResultType: elementType(expr.Type())}, Array: expr, Index: index}

		case DOT:
			p.advance()
			name, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			expr = &FieldExpr{exprBase: exprBase{Pos: expr.Position(), ResultType: types.UnresolvedType()}, Obj: expr, Name: name.Lexeme}

		case ARROW:
			p.advance()
			name, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			expr = &FieldExpr{exprBase: exprBase{Pos: expr.Position(), ResultType: types.UnresolvedType()}, Obj: expr, Name: name.Lexeme, Arrow: true}

		case LPAREN:
			ident, ok := expr.(*Ident)
			if !ok {
				return nil, p.fmtError(p.peek(), "only a plain function name can be called")
			}
			p.advance()
			args, err := p.parseCallArgs()
			if err != nil {
				return nil, err
			}
			expr = &CallExpr{exprBase: exprBase{Pos: ident.Pos, ResultType: callResultType(ident.Type())}, Callee: ident.Name, Args: args}

		case PLUS_PLUS, MINUS_MINUS:
			tok := p.advance()
			expr = &PostfixExpr{exprBase: exprBase{Pos: expr.Position(), ResultType: expr.Type()}, Op: tok.Type, Operand: expr}

		default:
			return expr, nil
		}
	}
}

func (p *Parser) parseCallArgs() ([]Expr, error) {
	var args []Expr
	if p.peek().Type != RPAREN {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.peek().Type != COMMA {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.Type {
	case INT_LITERAL:
		p.advance()
		n := node[IntLiteral](p)
		n.Pos, n.ResultType, n.Value = tok.Pos, types.Int(32, true), tok.IntValue
		return n, nil

	case UNSIGNED_LIT:
		p.advance()
		n := node[IntLiteral](p)
		n.Pos, n.ResultType, n.Value, n.IsUnsigned = tok.Pos, types.Int(32, false), tok.IntValue, true
		return n, nil

	case FLOAT_LITERAL:
		p.advance()
		n := node[FloatLiteral](p)
		n.Pos, n.ResultType, n.Value = tok.Pos, types.Float(32), tok.FloatValue
		return n, nil

	case CHAR_LITERAL:
		p.advance()
		n := node[CharLiteral](p)
		n.Pos, n.ResultType, n.Value = tok.Pos, types.Int(8, true), tok.CharValue
		return n, nil

	case STRING_LITERAL:
		p.advance()
		n := node[StringLiteral](p)
		n.Pos, n.ResultType, n.Value = tok.Pos, types.PointerTo(types.Int(8, true)), p.arena.DupString(tok.StringValue)
		return n, nil

	case IDENTIFIER:
		p.advance()
		n := node[Ident](p)
		n.Pos, n.ResultType, n.Name = tok.Pos, p.identType(tok.Lexeme), p.arena.DupString(tok.Lexeme)
		return n, nil

	case LPAREN:
		p.advance()
		expr, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(RPAREN); err != nil {
			return nil, err
		}
		return expr, nil

	default:
		return nil, p.fmtError(tok, "expected expression, got %s (%q)", tok.Type, tok.Lexeme)
	}
}

//  Declarations

// parseArraySuffix consumes a single "[" size? "]" and wraps base
// accordingly. A second "[" is rejected: multi-dimensional arrays are not
// part of this language.
func (p *Parser) parseArraySuffix(base *types.Type) (*types.Type, error) {
	if p.peek().Type != LBRACKET {
		return base, nil
	}
	p.advance()
	var result *types.Type
	if p.peek().Type == RBRACKET {
		result = types.UnsizedArrayOf(base)
	} else {
		sizeTok, err := p.expect(INT_LITERAL)
		if err != nil {
			return nil, err
		}
		result = types.ArrayOf(base, int(sizeTok.IntValue))
	}
	if _, err := p.expect(RBRACKET); err != nil {
		return nil, err
	}
	if p.peek().Type == LBRACKET {
		return nil, p.fmtError(p.peek(), "multi-dimensional arrays are not supported")
	}
	return result, nil
}

// parseLocalDecl parses a variable declaration appearing at statement
// position, wrapped as a DeclStmt.
func (p *Parser) parseLocalDecl() (Stmt, error) {
	pos := p.peek().Pos
	static, extern := p.parseStorageClass()
	base, err := p.parseTypeSpecifier()
	if err != nil {
		return nil, err
	}
	nameTok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	declType, err := p.parseArraySuffix(base)
	if err != nil {
		return nil, err
	}

	var init Expr
	if p.peek().Type == ASSIGN {
		p.advance()
		init, err = p.parseExpression()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}

	if err := p.defineOrRedefine(nameTok.Lexeme, declType, nameTok.Pos); err != nil {
		return nil, err
	}

	decl := node[VarDecl](p)
	decl.Pos, decl.Name, decl.Type, decl.Init, decl.Static, decl.Extern = pos, nameTok.Lexeme, declType, init, static, extern
	stmt := node[DeclStmt](p)
	stmt.Pos, stmt.Decl = pos, decl
	return stmt, nil
}

//  Statements

// parseBlockStmts parses statements up to (and consuming) the closing
// '}' without touching scope — the caller owns the scope the statements
// are parsed into. This lets a function body share one scope with its
// parameters instead of nesting a second one just for the braces.
func (p *Parser) parseBlockStmts() ([]Stmt, Position, error) {
	pos := p.peek().Pos // caller already consumed '{'; this token is the first body token or '}'
	var stmts []Stmt
	for p.peek().Type != RBRACE && p.peek().Type != EOF {
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, pos, err
		}
		stmts = append(stmts, stmt)
	}
	if _, err := p.expect(RBRACE); err != nil {
		return nil, pos, err
	}
	return stmts, pos, nil
}

func (p *Parser) parseBlock() (*BlockStmt, error) {
	p.syms.EnterScope()
	stmts, pos, err := p.parseBlockStmts()
	p.syms.ExitScope()
	if err != nil {
		return nil, err
	}
	return &BlockStmt{stmtBase: stmtBase{Pos: pos}, Stmts: stmts}, nil
}

func (p *Parser) parseIf() (Stmt, error) {
	pos := p.advance().Pos // IF
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	then, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	var els Stmt
	if p.peek().Type == ELSE {
		p.advance()
		els, err = p.parseStatement()
		if err != nil {
			return nil, err
		}
	}
	return &IfStmt{stmtBase: stmtBase{Pos: pos}, Cond: cond, Then: then, Else: els}, nil
}

func (p *Parser) parseWhile() (Stmt, error) {
	pos := p.advance().Pos // WHILE
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	return &WhileStmt{stmtBase: stmtBase{Pos: pos}, Cond: cond, Body: body}, nil
}

func (p *Parser) parseDoWhile() (Stmt, error) {
	pos := p.advance().Pos // DO
	body, err := p.parseStatement()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(WHILE); err != nil {
		return nil, err
	}
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &DoWhileStmt{stmtBase: stmtBase{Pos: pos}, Body: body, Cond: cond}, nil
}

// parseFor parses for (init?; cond?; post?) body. A C99 declaration in
// the init clause is scoped to the loop by wrapping the whole statement
// in a synthesized block.
func (p *Parser) parseFor() (Stmt, error) {
	pos := p.advance().Pos // FOR
	if _, err := p.expect(LPAREN); err != nil {
		return nil, err
	}

	var init Stmt
	declaredScope := false
	if p.peek().Type != SEMICOLON {
		if isTypeStart(p.peek().Type) {
			declaredScope = true
			p.syms.EnterScope()
			var err error
			init, err = p.parseLocalDecl() // consumes the trailing ';'
			if err != nil {
				p.syms.ExitScope()
				return nil, err
			}
		} else {
			expr, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(SEMICOLON); err != nil {
				return nil, err
			}
			init = &ExprStmt{stmtBase: stmtBase{Pos: expr.Position()}, Expr: expr}
		}
	} else {
		p.advance() // ;
	}

	var cond Expr
	if p.peek().Type != SEMICOLON {
		var err error
		cond, err = p.parseExpression()
		if err != nil {
			if declaredScope {
				p.syms.ExitScope()
			}
			return nil, err
		}
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		if declaredScope {
			p.syms.ExitScope()
		}
		return nil, err
	}

	var post Stmt
	if p.peek().Type != RPAREN {
		expr, err := p.parseExpression()
		if err != nil {
			if declaredScope {
				p.syms.ExitScope()
			}
			return nil, err
		}
		post = &ExprStmt{stmtBase: stmtBase{Pos: expr.Position()}, Expr: expr}
	}
	if _, err := p.expect(RPAREN); err != nil {
		if declaredScope {
			p.syms.ExitScope()
		}
		return nil, err
	}

	body, err := p.parseStatement()
	if declaredScope {
		p.syms.ExitScope()
	}
	if err != nil {
		return nil, err
	}

	forStmt := &ForStmt{stmtBase: stmtBase{Pos: pos}, Init: init, Cond: cond, Post: post, Body: body}
	if declaredScope {
		return &BlockStmt{stmtBase: stmtBase{Pos: pos}, Stmts: []Stmt{forStmt}}, nil
	}
	return forStmt, nil
}

func (p *Parser) parseReturn() (Stmt, error) {
	pos := p.advance().Pos // RETURN
	if p.retType != nil && p.retType.Kind == types.Void {
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &ReturnStmt{stmtBase: stmtBase{Pos: pos}}, nil
	}
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &ReturnStmt{stmtBase: stmtBase{Pos: pos}, Expr: expr}, nil
}

func (p *Parser) parseStatement() (Stmt, error) {
	tok := p.peek()
	switch tok.Type {
	case LBRACE:
		p.advance()
		return p.parseBlock()

	case IF:
		return p.parseIf()
	case WHILE:
		return p.parseWhile()
	case DO:
		return p.parseDoWhile()
	case FOR:
		return p.parseFor()

	case BREAK:
		p.advance()
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &BreakStmt{stmtBase{Pos: tok.Pos}}, nil

	case CONTINUE:
		p.advance()
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &ContinueStmt{stmtBase{Pos: tok.Pos}}, nil

	case GOTO:
		p.advance()
		label, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		return &GotoStmt{stmtBase: stmtBase{Pos: tok.Pos}, Label: label.Lexeme}, nil

	case RETURN:
		return p.parseReturn()

	case IDENTIFIER:
		if p.peekAt(1).Type == COLON {
			p.advance()
			p.advance()
			stmt, err := p.parseStatement()
			if err != nil {
				return nil, err
			}
			return &LabelStmt{stmtBase: stmtBase{Pos: tok.Pos}, Label: tok.Lexeme, Stmt: stmt}, nil
		}
		return p.parseExprStatement()

	default:
		if isTypeStart(tok.Type) {
			return p.parseLocalDecl()
		}
		return p.parseExprStatement()
	}
}

func (p *Parser) parseExprStatement() (Stmt, error) {
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(SEMICOLON); err != nil {
		return nil, err
	}
	return &ExprStmt{stmtBase: stmtBase{Pos: expr.Position()}, Expr: expr}, nil
}

//  Top level

// parseTopLevelDecl parses one top-level declaration: a global variable,
// a function prototype, or a function definition. The two are
// disambiguated by whether "(" follows the declared name.
func (p *Parser) parseTopLevelDecl() (Stmt, error) {
	pos := p.peek().Pos
	static, extern := p.parseStorageClass()
	retType, err := p.parseTypeSpecifier()
	if err != nil {
		return nil, err
	}
	nameTok, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}

	if p.peek().Type != LPAREN {
		declType, err := p.parseArraySuffix(retType)
		if err != nil {
			return nil, err
		}
		var init Expr
		if p.peek().Type == ASSIGN {
			p.advance()
			init, err = p.parseExpression()
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.expect(SEMICOLON); err != nil {
			return nil, err
		}
		if err := p.defineOrRedefine(nameTok.Lexeme, declType, nameTok.Pos); err != nil {
			return nil, err
		}
		decl := node[VarDecl](p)
		decl.Pos, decl.Name, decl.Type, decl.Init = pos, nameTok.Lexeme, declType, init
		decl.Static, decl.Extern, decl.IsGlobal = static, extern, true
		return decl, nil
	}

	// Function declaration.
	p.advance() // (
	var params []*VarDecl
	if p.peek().Type != RPAREN {
		for {
			paramPos := p.peek().Pos
			paramType, err := p.parseTypeSpecifier()
			if err != nil {
				return nil, err
			}
			paramName, err := p.expect(IDENTIFIER)
			if err != nil {
				return nil, err
			}
			param := node[VarDecl](p)
			param.Pos, param.Name, param.Type = paramPos, paramName.Lexeme, paramType
			params = append(params, param)
			if p.peek().Type != COMMA {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(RPAREN); err != nil {
		return nil, err
	}

	fn := node[FuncDecl](p)
	fn.Pos, fn.Name, fn.ReturnType, fn.Params, fn.Static, fn.Extern = pos, nameTok.Lexeme, retType, params, static, extern

	paramTypes := make([]*types.Type, len(params))
	for i, param := range params {
		paramTypes[i] = param.Type
	}
	if err := p.defineOrRedefine(nameTok.Lexeme, types.FuncOf(retType, paramTypes, false), nameTok.Pos); err != nil {
		return nil, err
	}

	if p.peek().Type == SEMICOLON {
		p.advance() // prototype only
		return fn, nil
	}

	if _, err := p.expect(LBRACE); err != nil {
		return nil, err
	}
	prevRetType := p.retType
	p.retType = retType
	p.syms.EnterScope()
	for _, param := range params {
		b := node[Binding](p)
		b.Name, b.Type, b.Pos = param.Name, param.Type, param.Pos
		if _, ok := p.syms.Define(b); !ok {
			p.syms.ExitScope()
			p.retType = prevRetType
			return nil, diag.NewSemanticError(param.Pos.Diag(), "duplicate parameter name %q", param.Name)
		}
	}
	stmts, bodyPos, err := p.parseBlockStmts()
	p.syms.ExitScope()
	p.retType = prevRetType
	if err != nil {
		return nil, err
	}
	fn.Body = &BlockStmt{stmtBase: stmtBase{Pos: bodyPos}, Stmts: stmts}
	return fn, nil
}

// Parse tokenizes nothing itself — it consumes an already-lexed stream
// and returns the top-level declaration list, or the first error
// encountered. rawSource is used only to render source-line snippets in
// diagnostics.
func Parse(tokens []Token, rawSource string) (*Program, error) {
	p := NewParser(tokens, rawSource)
	var decls []Stmt
	for p.peek().Type != EOF {
		decl, err := p.parseTopLevelDecl()
		if err != nil {
			return nil, err
		}
		decls = append(decls, decl)
	}
	return &Program{Decls: decls}, nil
}

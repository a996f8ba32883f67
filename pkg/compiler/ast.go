package compiler

import (
	"fmt"

	"coilc/pkg/types"
)

//  Expression nodes

// Expr is implemented by every node that produces a value. Every Expr is
// stamped with its ResultType once the parser (or, for identifiers whose
// type the parser cannot yet know, the code generator) determines it.
type Expr interface {
	exprNode()
	String() string
	Type() *types.Type
	SetType(*types.Type)
	Position() Position
}

// exprBase carries the two fields every Expr variant shares: its result
// type and its source position.
type exprBase struct {
	ResultType *types.Type
	Pos        Position
}

func (e *exprBase) Type() *types.Type     { return e.ResultType }
func (e *exprBase) SetType(t *types.Type) { e.ResultType = t }
func (e *exprBase) Position() Position    { return e.Pos }

// IntLiteral is a compile-time integer constant, e.g. 10 or 0x2A or 10u.
type IntLiteral struct {
	exprBase
	Value      int64
	IsUnsigned bool
}

func (*IntLiteral) exprNode()        {}
func (l *IntLiteral) String() string { return fmt.Sprintf("%d", l.Value) }

// FloatLiteral is a compile-time floating-point constant, e.g. 3.14.
type FloatLiteral struct {
	exprBase
	Value float64
}

func (*FloatLiteral) exprNode()        {}
func (l *FloatLiteral) String() string { return fmt.Sprintf("%g", l.Value) }

// CharLiteral is a compile-time character constant, e.g. 'a'.
type CharLiteral struct {
	exprBase
	Value int64
}

func (*CharLiteral) exprNode()        {}
func (l *CharLiteral) String() string { return fmt.Sprintf("%q", rune(l.Value)) }

// StringLiteral is a string constant "...".
type StringLiteral struct {
	exprBase
	Value string
}

func (*StringLiteral) exprNode()        {}
func (s *StringLiteral) String() string { return fmt.Sprintf("%q", s.Value) }

// Ident is a read of a named variable or function.
type Ident struct {
	exprBase
	Name string
}

func (*Ident) exprNode()        {}
func (v *Ident) String() string { return v.Name }

// BinaryExpr represents a binary operation: Left Op Right.
type BinaryExpr struct {
	exprBase
	Op    TokenType
	Left  Expr
	Right Expr
}

func (*BinaryExpr) exprNode() {}
func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, b.Op, b.Right)
}

// LogicalExpr represents Left && Right or Left || Right. Kept distinct
// from BinaryExpr so the generator can short-circuit instead of always
// evaluating both sides.
type LogicalExpr struct {
	exprBase
	Op    TokenType
	Left  Expr
	Right Expr
}

func (*LogicalExpr) exprNode() {}
func (l *LogicalExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", l.Left, l.Op, l.Right)
}

// UnaryExpr represents a prefix operator: -e, ~e, !e, &e, *e, ++e, --e.
type UnaryExpr struct {
	exprBase
	Op      TokenType
	Operand Expr
}

func (*UnaryExpr) exprNode()        {}
func (u *UnaryExpr) String() string { return fmt.Sprintf("(%s %s)", u.Op, u.Operand) }

// PostfixExpr represents Operand++ or Operand--.
type PostfixExpr struct {
	exprBase
	Op      TokenType
	Operand Expr
}

func (*PostfixExpr) exprNode()        {}
func (p *PostfixExpr) String() string { return fmt.Sprintf("(%s %s)", p.Operand, p.Op) }

// CallExpr represents callee(args...).
type CallExpr struct {
	exprBase
	Callee string
	Args   []Expr
}

func (*CallExpr) exprNode() {}
func (c *CallExpr) String() string {
	return fmt.Sprintf("%s(%v)", c.Callee, c.Args)
}

// CastExpr represents (T) e.
type CastExpr struct {
	exprBase
	Target  *types.Type
	Operand Expr
}

func (*CastExpr) exprNode() {}
func (c *CastExpr) String() string {
	return fmt.Sprintf("(%s)(%s)", c.Target, c.Operand)
}

// SizeofExpr represents sizeof(T). The result is always an unsigned 32-bit
// integer.
type SizeofExpr struct {
	exprBase
	Target *types.Type
}

func (*SizeofExpr) exprNode()        {}
func (s *SizeofExpr) String() string { return fmt.Sprintf("sizeof(%s)", s.Target) }

// ConditionalExpr represents Cond ? Then : Else.
type ConditionalExpr struct {
	exprBase
	Cond Expr
	Then Expr
	Else Expr
}

func (*ConditionalExpr) exprNode() {}
func (c *ConditionalExpr) String() string {
	return fmt.Sprintf("(%s ? %s : %s)", c.Cond, c.Then, c.Else)
}

// IndexExpr represents Array[Index].
type IndexExpr struct {
	exprBase
	Array Expr
	Index Expr
}

func (*IndexExpr) exprNode()        {}
func (e *IndexExpr) String() string { return fmt.Sprintf("%s[%s]", e.Array, e.Index) }

// FieldExpr represents Obj.Name or, when Arrow is set, Obj->Name. The
// language has no struct type, so the code generator rejects every
// FieldExpr with a TypeError; the node exists so the parser can still
// accept and report on the syntax.
type FieldExpr struct {
	exprBase
	Obj   Expr
	Name  string
	Arrow bool
}

func (*FieldExpr) exprNode() {}
func (e *FieldExpr) String() string {
	if e.Arrow {
		return fmt.Sprintf("%s->%s", e.Obj, e.Name)
	}
	return fmt.Sprintf("%s.%s", e.Obj, e.Name)
}

// AssignExpr represents Target Op Value (= += -= *= /= %= &= |= ^= <<= >>=).
// It is an expression, not a statement, so that "a = b = 1" and "f(a = 1)"
// both parse: its value is the value stored.
type AssignExpr struct {
	exprBase
	Target Expr
	Op     TokenType
	Value  Expr
}

func (*AssignExpr) exprNode() {}
func (a *AssignExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", a.Target, a.Op, a.Value)
}

//  Statement nodes

// Stmt is implemented by every node that does not itself produce a value.
type Stmt interface {
	stmtNode()
	String() string
	Position() Position
}

type stmtBase struct {
	Pos Position
}

func (s *stmtBase) Position() Position { return s.Pos }

// ExprStmt is an expression evaluated for its side effects.
type ExprStmt struct {
	stmtBase
	Expr Expr
}

func (*ExprStmt) stmtNode() {}
func (e *ExprStmt) String() string {
	return fmt.Sprintf("%s;", e.Expr)
}

// BlockStmt represents { stmt... }.
type BlockStmt struct {
	stmtBase
	Stmts []Stmt
}

func (*BlockStmt) stmtNode() {}
func (b *BlockStmt) String() string {
	return fmt.Sprintf("{ %d stmts }", len(b.Stmts))
}

// IfStmt represents if (Cond) Then [else Else].
type IfStmt struct {
	stmtBase
	Cond Expr
	Then Stmt
	Else Stmt // nil if absent
}

func (*IfStmt) stmtNode() {}
func (i *IfStmt) String() string {
	if i.Else != nil {
		return fmt.Sprintf("if (%s) %s else %s", i.Cond, i.Then, i.Else)
	}
	return fmt.Sprintf("if (%s) %s", i.Cond, i.Then)
}

// WhileStmt represents while (Cond) Body.
type WhileStmt struct {
	stmtBase
	Cond Expr
	Body Stmt
}

func (*WhileStmt) stmtNode() {}
func (w *WhileStmt) String() string {
	return fmt.Sprintf("while (%s) %s", w.Cond, w.Body)
}

// DoWhileStmt represents do Body while (Cond);
type DoWhileStmt struct {
	stmtBase
	Body Stmt
	Cond Expr
}

func (*DoWhileStmt) stmtNode() {}
func (d *DoWhileStmt) String() string {
	return fmt.Sprintf("do %s while (%s)", d.Body, d.Cond)
}

// ForStmt represents for (Init; Cond; Post) Body. Init, Cond, and Post may
// each be nil when the corresponding clause is omitted.
type ForStmt struct {
	stmtBase
	Init Stmt
	Cond Expr
	Post Stmt
	Body Stmt
}

func (*ForStmt) stmtNode() {}
func (f *ForStmt) String() string {
	return fmt.Sprintf("for (%s; %s; %s) %s", f.Init, f.Cond, f.Post, f.Body)
}

// ReturnStmt represents return [Expr];
type ReturnStmt struct {
	stmtBase
	Expr Expr // nil for a bare "return;"
}

func (*ReturnStmt) stmtNode() {}
func (r *ReturnStmt) String() string {
	if r.Expr == nil {
		return "return;"
	}
	return fmt.Sprintf("return %s;", r.Expr)
}

// BreakStmt represents break;
type BreakStmt struct{ stmtBase }

func (*BreakStmt) stmtNode()        {}
func (s *BreakStmt) String() string { return "break;" }

// ContinueStmt represents continue;
type ContinueStmt struct{ stmtBase }

func (*ContinueStmt) stmtNode()        {}
func (s *ContinueStmt) String() string { return "continue;" }

// GotoStmt represents goto Label;
type GotoStmt struct {
	stmtBase
	Label string
}

func (*GotoStmt) stmtNode()        {}
func (g *GotoStmt) String() string { return fmt.Sprintf("goto %s;", g.Label) }

// LabelStmt represents Label: Stmt.
type LabelStmt struct {
	stmtBase
	Label string
	Stmt  Stmt
}

func (*LabelStmt) stmtNode()        {}
func (l *LabelStmt) String() string { return fmt.Sprintf("%s: %s", l.Label, l.Stmt) }

// DeclStmt wraps a declaration appearing at statement position (a local
// variable declaration inside a block or a for-loop initializer).
type DeclStmt struct {
	stmtBase
	Decl *VarDecl
}

func (*DeclStmt) stmtNode()        {}
func (d *DeclStmt) String() string { return d.Decl.String() }

//  Declarations

// VarDecl represents "T name [= Init];" — a global, a local, or a
// function parameter, distinguished by where it appears.
type VarDecl struct {
	stmtBase
	Name     string
	Type     *types.Type
	Init     Expr // nil when there is no initializer
	Static   bool
	Extern   bool
	IsGlobal bool
}

func (*VarDecl) stmtNode() {}
func (d *VarDecl) String() string {
	if d.Init != nil {
		return fmt.Sprintf("%s %s = %s;", d.Type, d.Name, d.Init)
	}
	return fmt.Sprintf("%s %s;", d.Type, d.Name)
}

// FuncDecl represents "RetType name(params) { body }" or, when Body is
// nil, a prototype "RetType name(params);".
type FuncDecl struct {
	stmtBase
	Name       string
	ReturnType *types.Type
	Params     []*VarDecl
	Variadic   bool
	Body       *BlockStmt // nil for a prototype
	Static     bool
	Extern     bool
}

func (*FuncDecl) stmtNode() {}
func (f *FuncDecl) String() string {
	return fmt.Sprintf("%s %s(%v) %s", f.ReturnType, f.Name, f.Params, f.Body)
}

// Program is the ordered sequence of top-level declarations a parse
// produces.
type Program struct {
	Decls []Stmt // each element is a *VarDecl or *FuncDecl
}

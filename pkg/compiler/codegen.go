package compiler

import (
	"coilc/pkg/arena"
	"coilc/pkg/diag"
	"coilc/pkg/isa"
	"coilc/pkg/objfile"
	"coilc/pkg/types"
)

// loopLabels records the break/continue targets for the loop currently
// being generated, so a nested BreakStmt/ContinueStmt can find them
// without threading them through every statement-lowering call.
type loopLabels struct {
	breakLabel    int32
	continueLabel int32
}

// CodeGen walks a fully-typed Program and lowers it to a flat isa.Instruction
// stream plus the symbol/entrypoint bookkeeping objfile.Unit needs. It
// consumes the types the parser already stamped on every expression,
// re-resolving only the placeholders the parser deliberately left
// unresolved (an identifier the parser couldn't yet see declared, or any
// field access, which this language never allows).
type CodeGen struct {
	syms      *SymbolTable
	instrs    []isa.Instruction
	symbols   []objfile.SymbolDecl
	entryIdx  int
	nextReg   uint32
	nextLabel int32
	loopStack []loopLabels
	funcs     map[string]*types.Type // function name -> FuncOf type, for call resolution
	wordSize  int
	arena     *arena.Arena // owns every Binding the generator adds: globals, functions, parameters, locals

	// namedLabels maps a source-level goto/label name to the Virtual ISA
	// label id standing in for it, allocated the first time either the
	// goto or the label itself is seen.
	namedLabels map[string]int32
}

func newCodeGen() *CodeGen {
	return &CodeGen{
		syms:     NewSymbolTable(),
		entryIdx: -1,
		funcs:    make(map[string]*types.Type),
		wordSize: 8,
		arena:    arena.New(),
	}
}

// Generate lowers an entire program to an objfile.Unit. Every top-level
// function and global is visited in source order, matching the spec's
// only ordering guarantee.
func Generate(prog *Program) (objfile.Unit, error) {
	cg := newCodeGen()

	// Pre-register every function's signature so a call appearing before
	// its definition (or a prototype-only declaration) still resolves —
	// mirrors the parser's own self-recursion pre-binding.
	for _, decl := range prog.Decls {
		if fn, ok := decl.(*FuncDecl); ok {
			paramTypes := make([]*types.Type, len(fn.Params))
			for i, p := range fn.Params {
				paramTypes[i] = p.Type
			}
			cg.funcs[fn.Name] = types.FuncOf(fn.ReturnType, paramTypes, fn.Variadic)
		}
	}

	cg.emit(isa.Instruction{Op: isa.DirVersion, Operands: []isa.Operand{isa.Imm(1, 0x00, 4)}})
	cg.emit(isa.Instruction{Op: isa.DirTarget, Operands: []isa.Operand{isa.Sym("virtual")}})

	for _, decl := range prog.Decls {
		switch d := decl.(type) {
		case *VarDecl:
			if err := cg.genGlobal(d); err != nil {
				return objfile.Unit{}, err
			}
		case *FuncDecl:
			if err := cg.genFunction(d); err != nil {
				return objfile.Unit{}, err
			}
		}
	}

	return objfile.Unit{Instructions: cg.instrs, EntryIndex: cg.entryIdx, Symbols: cg.symbols}, nil
}

func (cg *CodeGen) emit(in isa.Instruction) int {
	cg.instrs = append(cg.instrs, in)
	return len(cg.instrs) - 1
}

func (cg *CodeGen) allocReg() uint32 {
	id := cg.nextReg
	cg.nextReg++
	return id
}

func (cg *CodeGen) allocLabel() int32 {
	id := cg.nextLabel
	cg.nextLabel++
	return id
}

// placeLabel marks the current instruction position with id, so a prior
// branch referencing id lands here. A NOP carrying the label as its sole
// operand is the marker: the object writer frames it like any other
// instruction and does no resolution of its own.
func (cg *CodeGen) placeLabel(id int32) {
	cg.emit(isa.Instruction{Op: isa.OpNOP, Operands: []isa.Operand{isa.Lbl(id)}})
}

func (cg *CodeGen) branch(id int32) {
	cg.emit(isa.Instruction{Op: isa.OpBR, Operands: []isa.Operand{isa.Lbl(id)}})
}

func (cg *CodeGen) branchCond(cond isa.Cond, id int32) {
	cg.emit(isa.Instruction{Op: isa.OpBRC, Qualifier: uint8(cond), Operands: []isa.Operand{isa.Lbl(id)}})
}

func (cg *CodeGen) enc(t *types.Type) types.Encoding {
	return types.Encode(t, cg.wordSize)
}

func (cg *CodeGen) regOperand(id uint32, t *types.Type) isa.Operand {
	e := cg.enc(t)
	return isa.Reg(id, e.TypeByte, e.WidthByte)
}

func (cg *CodeGen) varOperand(id uint32, t *types.Type) isa.Operand {
	e := cg.enc(t)
	return isa.Var(id, e.TypeByte, e.WidthByte)
}

// resolveType re-derives an expression's type when the parser left it
// unresolved: it walks down to the identifier/field culprit and resolves
// it against the generator's own symbol table, which — unlike the
// parser's — sees every global and every function once generation
// begins. A FieldExpr is always a TypeError: this language has no struct
// type, so field access never resolves no matter what the generator
// knows.
func (cg *CodeGen) resolveType(e Expr) (*types.Type, error) {
	if !types.IsUnresolved(e.Type()) {
		return e.Type(), nil
	}
	switch n := e.(type) {
	case *Ident:
		if b, ok := cg.syms.Lookup(n.Name); ok {
			return b.Type, nil
		}
		if ft, ok := cg.funcs[n.Name]; ok {
			return ft, nil
		}
		return nil, diag.NewSemanticError(n.Pos.Diag(), "undeclared identifier %q", n.Name)
	case *FieldExpr:
		return nil, diag.NewTypeError(n.Pos.Diag(), "field access on %s: this language has no struct type", n.Obj)
	case *CallExpr:
		ft, ok := cg.funcs[n.Callee]
		if !ok {
			return nil, diag.NewSemanticError(n.Pos.Diag(), "call to undeclared function %q", n.Callee)
		}
		return ft.Elem, nil
	case *IndexExpr:
		arr, err := cg.resolveType(n.Array)
		if err != nil {
			return nil, err
		}
		if arr.Kind != types.Pointer && arr.Kind != types.Array {
			return nil, diag.NewTypeError(n.Pos.Diag(), "cannot index non-pointer, non-array type %s", arr)
		}
		return arr.Elem, nil
	case *UnaryExpr:
		operand, err := cg.resolveType(n.Operand)
		if err != nil {
			return nil, err
		}
		return unaryResultType(n.Op, operand), nil
	case *BinaryExpr:
		l, err := cg.resolveType(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := cg.resolveType(n.Right)
		if err != nil {
			return nil, err
		}
		rt := binaryResultType(n.Op, l, r)
		if types.IsUnresolved(rt) {
			return nil, diag.NewTypeError(n.Pos.Diag(), "operator %s needs numeric operands, got %s and %s", n.Op, l, r)
		}
		return rt, nil
	case *ConditionalExpr:
		t, err := cg.resolveType(n.Then)
		if err != nil {
			return nil, err
		}
		el, err := cg.resolveType(n.Else)
		if err != nil {
			return nil, err
		}
		return conditionalResultType(t, el), nil
	case *AssignExpr:
		return cg.resolveType(n.Target)
	case *PostfixExpr:
		return cg.resolveType(n.Operand)
	case *LogicalExpr:
		return types.Bool(), nil
	case *CastExpr:
		return n.Target, nil
	case *SizeofExpr:
		return types.Int(32, false), nil
	default:
		return nil, diag.NewTypeError(e.Position().Diag(), "could not resolve type of %s", e)
	}
}

// typeOf resolves e's type and, if the parser had left it unresolved,
// stamps the resolved type back onto the node so later passes (and
// String()-based diagnostics) see a fully-typed tree.
func (cg *CodeGen) typeOf(e Expr) (*types.Type, error) {
	t, err := cg.resolveType(e)
	if err != nil {
		return nil, err
	}
	if types.IsUnresolved(e.Type()) {
		e.SetType(t)
	}
	return t, nil
}

// genGlobal lowers a global variable declaration to a VARCR reserving
// storage for it and, when present, the instructions that evaluate and
// store its initializer.
func (cg *CodeGen) genGlobal(d *VarDecl) error {
	nb := arena.Alloc[Binding](cg.arena)
	nb.Name, nb.Type, nb.Pos = d.Name, d.Type, d.Pos
	b, ok := cg.syms.Define(nb)
	if !ok {
		return diag.NewSemanticError(d.Pos.Diag(), "redefinition of %q", d.Name)
	}
	b.VarID = int(cg.allocReg())

	e := cg.enc(d.Type)
	cg.emit(isa.Instruction{Op: isa.OpVARCR, Operands: []isa.Operand{
		isa.Var(uint32(b.VarID), e.TypeByte, e.WidthByte),
	}})

	if d.Init != nil {
		reg, _, err := cg.genExpr(d.Init)
		if err != nil {
			return err
		}
		cg.emit(isa.Instruction{Op: isa.OpVARSET, Operands: []isa.Operand{
			isa.Var(uint32(b.VarID), e.TypeByte, e.WidthByte),
			cg.regOperand(reg, d.Type),
		}})
	}
	return nil
}

// genFunction lowers one function definition: a SYMB directive naming it
// (recorded for the object symbol table, and as the entrypoint when the
// name is "main"), ENTER/LEAVE framing, a VARCR+PARAM pair per parameter,
// the body, and an implicit LEAVE+RET when the body falls off the end
// without an explicit return.
func (cg *CodeGen) genFunction(fn *FuncDecl) error {
	paramTypes := make([]*types.Type, len(fn.Params))
	for i, p := range fn.Params {
		paramTypes[i] = p.Type
	}
	fnb := arena.Alloc[Binding](cg.arena)
	fnb.Name, fnb.Type, fnb.Pos = fn.Name, types.FuncOf(fn.ReturnType, paramTypes, fn.Variadic), fn.Pos
	cg.syms.Define(fnb)

	if fn.Body == nil {
		return nil // prototype only: nothing to generate
	}

	symbIdx := cg.emit(isa.Instruction{Op: isa.OpSYMB, Operands: []isa.Operand{isa.Sym(fn.Name)}})
	cg.symbols = append(cg.symbols, objfile.SymbolDecl{Name: fn.Name, InstrIndex: symbIdx})
	if fn.Name == "main" {
		cg.entryIdx = symbIdx
	}

	enterIdx := cg.emit(isa.Instruction{Op: isa.OpENTER, Operands: []isa.Operand{isa.Imm(0, 0x00, 4)}})

	fg := &funcGen{cg: cg, retType: fn.ReturnType}
	cg.syms.EnterScope()
	for i, p := range fn.Params {
		pb := arena.Alloc[Binding](cg.arena)
		pb.Name, pb.Type, pb.Pos = p.Name, p.Type, p.Pos
		b, _ := cg.syms.Define(pb)
		b.VarID = int(cg.allocReg())
		e := cg.enc(p.Type)
		cg.emit(isa.Instruction{Op: isa.OpVARCR, Operands: []isa.Operand{isa.Var(uint32(b.VarID), e.TypeByte, e.WidthByte)}})
		cg.emit(isa.Instruction{Op: isa.OpPARAM, Operands: []isa.Operand{
			isa.Imm(int64(i), 0x00, 4),
			isa.Var(uint32(b.VarID), e.TypeByte, e.WidthByte),
		}})
	}

	terminated, err := fg.genBlock(fn.Body)
	cg.syms.ExitScope()
	if err != nil {
		return err
	}

	if !terminated {
		if err := fg.genImplicitReturn(); err != nil {
			return err
		}
	}

	// Frame size is now known: every local this function declared got a
	// fresh VARCR, one word each under this generator's fixed word size.
	cg.instrs[enterIdx].Operands[0] = isa.Imm(int64(fg.localCount)*int64(cg.wordSize), 0x00, 4)
	return nil
}

// funcGen carries the state scoped to a single function body: its
// declared return type (for return-statement validation and the
// implicit-return value) and a running count of locals it has declared
// (for the ENTER frame size).
type funcGen struct {
	cg         *CodeGen
	retType    *types.Type
	localCount int
}

// genImplicitReturn emits the LEAVE+RET pair a function falling off the
// end of its body needs. A non-void function returns 0 in this case,
// matching the minimal scenario's expectation that "return 0" and an
// absent return are generated identically when the value is the same.
func (fg *funcGen) genImplicitReturn() error {
	cg := fg.cg
	if fg.retType == nil || fg.retType.Kind != types.Void {
		rt := fg.retType
		if rt == nil {
			rt = types.Int(32, true)
		}
		reg := cg.allocReg()
		e := cg.enc(rt)
		cg.emit(isa.Instruction{Op: isa.OpMOVI, Operands: []isa.Operand{cg.regOperand(reg, rt), isa.Imm(0, e.TypeByte, e.WidthByte)}})
		cg.emit(isa.Instruction{Op: isa.OpRESULT, Operands: []isa.Operand{cg.regOperand(reg, rt)}})
	}
	cg.emit(isa.Instruction{Op: isa.OpLEAVE})
	cg.emit(isa.Instruction{Op: isa.OpRET})
	return nil
}

// genBlock lowers every statement in b in order. It reports whether the
// block is guaranteed to have already emitted a terminating
// return — used by the caller to decide whether an implicit return is
// still needed.
func (fg *funcGen) genBlock(b *BlockStmt) (bool, error) {
	terminated := false
	for _, stmt := range b.Stmts {
		t, err := fg.genStmt(stmt)
		if err != nil {
			return false, err
		}
		if t {
			terminated = true
		}
	}
	return terminated, nil
}

// genStmt lowers one statement, returning whether it unconditionally
// terminates control flow: true for a return, and for a nested block or
// labeled statement whose inner statements do. Branching and looping
// statements and break/continue/goto always report false.
func (fg *funcGen) genStmt(stmt Stmt) (bool, error) {
	cg := fg.cg
	switch s := stmt.(type) {
	case *DeclStmt:
		return false, fg.genLocal(s.Decl)

	case *ExprStmt:
		_, _, err := cg.genExpr(s.Expr)
		return false, err

	case *BlockStmt:
		cg.emit(isa.Instruction{Op: isa.OpVARSC})
		cg.syms.EnterScope()
		terminated, err := fg.genBlock(s)
		cg.syms.ExitScope()
		cg.emit(isa.Instruction{Op: isa.OpVAREND})
		return terminated, err

	case *IfStmt:
		return false, fg.genIf(s)

	case *WhileStmt:
		return false, fg.genWhile(s)

	case *DoWhileStmt:
		return false, fg.genDoWhile(s)

	case *ForStmt:
		return false, fg.genFor(s)

	case *ReturnStmt:
		return true, fg.genReturn(s)

	case *BreakStmt:
		if len(cg.loopStack) == 0 {
			return false, diag.NewSemanticError(s.Pos.Diag(), "break outside a loop")
		}
		cg.branch(cg.loopStack[len(cg.loopStack)-1].breakLabel)
		return false, nil

	case *ContinueStmt:
		if len(cg.loopStack) == 0 {
			return false, diag.NewSemanticError(s.Pos.Diag(), "continue outside a loop")
		}
		cg.branch(cg.loopStack[len(cg.loopStack)-1].continueLabel)
		return false, nil

	case *LabelStmt:
		// This language exposes goto/label at the source level but the
		// Virtual ISA's label ids are a generator-internal addressing
		// device; a source label reuses the same id space via a dedicated
		// symbol-style lookup keyed by name instead of position.
		id := cg.namedLabel(s.Label)
		cg.placeLabel(id)
		return fg.genStmt(s.Stmt)

	case *GotoStmt:
		cg.branch(cg.namedLabel(s.Label))
		return false, nil

	default:
		return false, diag.NewCodegenError(stmt.Position().Diag(), "unsupported statement %T", stmt)
	}
}

// namedLabel returns a generator-internal label id for a source-level
// goto/label name, allocating one the first time the name is seen so a
// forward goto resolves to the same id its target label will later mark.
func (cg *CodeGen) namedLabel(name string) int32 {
	if cg.namedLabels == nil {
		cg.namedLabels = make(map[string]int32)
	}
	if id, ok := cg.namedLabels[name]; ok {
		return id
	}
	id := cg.allocLabel()
	cg.namedLabels[name] = id
	return id
}

func (fg *funcGen) genLocal(d *VarDecl) error {
	cg := fg.cg
	lb := arena.Alloc[Binding](cg.arena)
	lb.Name, lb.Type, lb.Pos = d.Name, d.Type, d.Pos
	b, ok := cg.syms.Define(lb)
	if !ok {
		return diag.NewSemanticError(d.Pos.Diag(), "redefinition of %q", d.Name)
	}
	b.VarID = int(cg.allocReg())
	fg.localCount++

	e := cg.enc(d.Type)
	cg.emit(isa.Instruction{Op: isa.OpVARCR, Operands: []isa.Operand{isa.Var(uint32(b.VarID), e.TypeByte, e.WidthByte)}})

	if d.Init != nil {
		reg, rt, err := cg.genExpr(d.Init)
		if err != nil {
			return err
		}
		reg = cg.coerce(reg, rt, d.Type)
		cg.emit(isa.Instruction{Op: isa.OpVARSET, Operands: []isa.Operand{
			isa.Var(uint32(b.VarID), e.TypeByte, e.WidthByte),
			cg.regOperand(reg, d.Type),
		}})
	}
	return nil
}

// invertCond returns the condition that holds exactly when c does not —
// used to turn "branch to the body when true" into "branch past the body
// when false" without evaluating the condition twice.
func invertCond(c isa.Cond) isa.Cond {
	switch c {
	case isa.CondEQ:
		return isa.CondNE
	case isa.CondNE:
		return isa.CondEQ
	case isa.CondLT:
		return isa.CondGE
	case isa.CondLE:
		return isa.CondGT
	case isa.CondGT:
		return isa.CondLE
	case isa.CondGE:
		return isa.CondLT
	default:
		return isa.CondALWAYS
	}
}

// genBranchIfFalse lowers cond and branches to falseLabel when it
// evaluates to false, falling straight through otherwise. A comparison
// or logical expression branches directly off its own CMP instead of
// materializing a 0/1 value and comparing that against zero a second
// time; anything else falls back to evaluate-then-compare.
func (cg *CodeGen) genBranchIfFalse(cond Expr, falseLabel int32) error {
	switch n := cond.(type) {
	case *BinaryExpr:
		opName, ok := binaryOpName[n.Op]
		if !ok {
			break
		}
		bcond, ok := isa.CompareCond[opName]
		if !ok {
			break
		}
		lreg, lt, err := cg.genExpr(n.Left)
		if err != nil {
			return err
		}
		rreg, rt, err := cg.genExpr(n.Right)
		if err != nil {
			return err
		}
		common := lt
		if types.IsNumeric(lt) && types.IsNumeric(rt) {
			common = types.Common(lt, rt)
		}
		lreg = cg.coerce(lreg, lt, common)
		rreg = cg.coerce(rreg, rt, common)
		cg.emit(isa.Instruction{Op: isa.OpCMP, Operands: []isa.Operand{cg.regOperand(lreg, common), cg.regOperand(rreg, common)}})
		cg.branchCond(invertCond(bcond), falseLabel)
		return nil

	case *LogicalExpr:
		if n.Op == AND_LOGICAL {
			if err := cg.genBranchIfFalse(n.Left, falseLabel); err != nil {
				return err
			}
			return cg.genBranchIfFalse(n.Right, falseLabel)
		}
		trueLabel := cg.allocLabel()
		if err := cg.genBranchIfTrue(n.Left, trueLabel); err != nil {
			return err
		}
		if err := cg.genBranchIfFalse(n.Right, falseLabel); err != nil {
			return err
		}
		cg.placeLabel(trueLabel)
		return nil

	case *UnaryExpr:
		if n.Op == NOT {
			return cg.genBranchIfTrue(n.Operand, falseLabel)
		}
	}

	reg, t, err := cg.genExpr(cond)
	if err != nil {
		return err
	}
	enc := cg.enc(t)
	cg.emit(isa.Instruction{Op: isa.OpCMP, Operands: []isa.Operand{cg.regOperand(reg, t), isa.Imm(0, enc.TypeByte, enc.WidthByte)}})
	cg.branchCond(isa.CondEQ, falseLabel)
	return nil
}

// genBranchIfTrue is genBranchIfFalse's mirror: it branches to trueLabel
// when cond evaluates to true.
func (cg *CodeGen) genBranchIfTrue(cond Expr, trueLabel int32) error {
	switch n := cond.(type) {
	case *BinaryExpr:
		opName, ok := binaryOpName[n.Op]
		if !ok {
			break
		}
		bcond, ok := isa.CompareCond[opName]
		if !ok {
			break
		}
		lreg, lt, err := cg.genExpr(n.Left)
		if err != nil {
			return err
		}
		rreg, rt, err := cg.genExpr(n.Right)
		if err != nil {
			return err
		}
		common := lt
		if types.IsNumeric(lt) && types.IsNumeric(rt) {
			common = types.Common(lt, rt)
		}
		lreg = cg.coerce(lreg, lt, common)
		rreg = cg.coerce(rreg, rt, common)
		cg.emit(isa.Instruction{Op: isa.OpCMP, Operands: []isa.Operand{cg.regOperand(lreg, common), cg.regOperand(rreg, common)}})
		cg.branchCond(bcond, trueLabel)
		return nil

	case *LogicalExpr:
		if n.Op == OR_LOGICAL {
			if err := cg.genBranchIfTrue(n.Left, trueLabel); err != nil {
				return err
			}
			return cg.genBranchIfTrue(n.Right, trueLabel)
		}
		falseLabel := cg.allocLabel()
		if err := cg.genBranchIfFalse(n.Left, falseLabel); err != nil {
			return err
		}
		if err := cg.genBranchIfTrue(n.Right, trueLabel); err != nil {
			return err
		}
		cg.placeLabel(falseLabel)
		return nil

	case *UnaryExpr:
		if n.Op == NOT {
			return cg.genBranchIfFalse(n.Operand, trueLabel)
		}
	}

	reg, t, err := cg.genExpr(cond)
	if err != nil {
		return err
	}
	enc := cg.enc(t)
	cg.emit(isa.Instruction{Op: isa.OpCMP, Operands: []isa.Operand{cg.regOperand(reg, t), isa.Imm(0, enc.TypeByte, enc.WidthByte)}})
	cg.branchCond(isa.CondNE, trueLabel)
	return nil
}

func (fg *funcGen) genIf(s *IfStmt) error {
	cg := fg.cg
	elseLabel := cg.allocLabel()
	endLabel := cg.allocLabel()

	if err := cg.genBranchIfFalse(s.Cond, elseLabel); err != nil {
		return err
	}

	if _, err := fg.genStmt(s.Then); err != nil {
		return err
	}
	if s.Else != nil {
		cg.branch(endLabel)
		cg.placeLabel(elseLabel)
		if _, err := fg.genStmt(s.Else); err != nil {
			return err
		}
		cg.placeLabel(endLabel)
	} else {
		cg.placeLabel(elseLabel)
	}
	return nil
}

func (fg *funcGen) genWhile(s *WhileStmt) error {
	cg := fg.cg
	startLabel := cg.allocLabel()
	endLabel := cg.allocLabel()

	cg.placeLabel(startLabel)
	if err := cg.genBranchIfFalse(s.Cond, endLabel); err != nil {
		return err
	}

	cg.loopStack = append(cg.loopStack, loopLabels{breakLabel: endLabel, continueLabel: startLabel})
	_, err := fg.genStmt(s.Body)
	cg.loopStack = cg.loopStack[:len(cg.loopStack)-1]
	if err != nil {
		return err
	}

	cg.branch(startLabel)
	cg.placeLabel(endLabel)
	return nil
}

func (fg *funcGen) genDoWhile(s *DoWhileStmt) error {
	cg := fg.cg
	startLabel := cg.allocLabel()
	condLabel := cg.allocLabel()
	endLabel := cg.allocLabel()

	cg.placeLabel(startLabel)
	cg.loopStack = append(cg.loopStack, loopLabels{breakLabel: endLabel, continueLabel: condLabel})
	_, err := fg.genStmt(s.Body)
	cg.loopStack = cg.loopStack[:len(cg.loopStack)-1]
	if err != nil {
		return err
	}

	cg.placeLabel(condLabel)
	if err := cg.genBranchIfTrue(s.Cond, startLabel); err != nil {
		return err
	}
	cg.placeLabel(endLabel)
	return nil
}

func (fg *funcGen) genFor(s *ForStmt) error {
	cg := fg.cg
	if s.Init != nil {
		if _, err := fg.genStmt(s.Init); err != nil {
			return err
		}
	}

	startLabel := cg.allocLabel()
	postLabel := cg.allocLabel()
	endLabel := cg.allocLabel()

	cg.placeLabel(startLabel)
	if s.Cond != nil {
		if err := cg.genBranchIfFalse(s.Cond, endLabel); err != nil {
			return err
		}
	}
	// A for loop with no condition clause is an infinite loop per the
	// boundary behaviors: no CMP/BRC is emitted at all, so nothing ever
	// branches to endLabel except an explicit break.

	cg.loopStack = append(cg.loopStack, loopLabels{breakLabel: endLabel, continueLabel: postLabel})
	_, err := fg.genStmt(s.Body)
	cg.loopStack = cg.loopStack[:len(cg.loopStack)-1]
	if err != nil {
		return err
	}

	cg.placeLabel(postLabel)
	if s.Post != nil {
		if _, err := fg.genStmt(s.Post); err != nil {
			return err
		}
	}
	cg.branch(startLabel)
	cg.placeLabel(endLabel)
	return nil
}

func (fg *funcGen) genReturn(s *ReturnStmt) error {
	cg := fg.cg
	if s.Expr == nil {
		cg.emit(isa.Instruction{Op: isa.OpLEAVE})
		cg.emit(isa.Instruction{Op: isa.OpRET})
		return nil
	}
	reg, rt, err := cg.genExpr(s.Expr)
	if err != nil {
		return err
	}
	reg = cg.coerce(reg, rt, fg.retType)
	cg.emit(isa.Instruction{Op: isa.OpRESULT, Operands: []isa.Operand{cg.regOperand(reg, fg.retType)}})
	cg.emit(isa.Instruction{Op: isa.OpLEAVE})
	cg.emit(isa.Instruction{Op: isa.OpRET})
	return nil
}

// coerce emits an MOV when widening/narrowing from to to; same-type
// values pass through untouched. Float<->int conversions go through
// FTOI/ITOF per spec §4.C.
func (cg *CodeGen) coerce(reg uint32, from, to *types.Type) uint32 {
	if from == nil || to == nil || types.Equal(from, to) {
		return reg
	}
	if types.IsFloating(from) && types.IsIntegral(to) {
		out := cg.allocReg()
		cg.emit(isa.Instruction{Op: isa.OpFTOI, Operands: []isa.Operand{cg.regOperand(out, to), cg.regOperand(reg, from)}})
		return out
	}
	if types.IsIntegral(from) && types.IsFloating(to) {
		out := cg.allocReg()
		cg.emit(isa.Instruction{Op: isa.OpITOF, Operands: []isa.Operand{cg.regOperand(out, to), cg.regOperand(reg, from)}})
		return out
	}
	if types.IsNumeric(from) && types.IsNumeric(to) {
		out := cg.allocReg()
		cg.emit(isa.Instruction{Op: isa.OpMOV, Operands: []isa.Operand{cg.regOperand(out, to), cg.regOperand(reg, from)}})
		return out
	}
	return reg
}

// genExpr lowers e to the instructions that compute it and returns the
// virtual register holding the result plus e's (now fully resolved)
// type. Every call site threads the returned type through rather than
// re-reading e.Type(), since constant-folded or coerced results may not
// match the node's original stamp exactly.
func (cg *CodeGen) genExpr(e Expr) (uint32, *types.Type, error) {
	t, err := cg.typeOf(e)
	if err != nil {
		return 0, nil, err
	}

	switch n := e.(type) {
	case *IntLiteral:
		reg := cg.allocReg()
		enc := cg.enc(t)
		cg.emit(isa.Instruction{Op: isa.OpMOVI, Operands: []isa.Operand{cg.regOperand(reg, t), isa.Imm(n.Value, enc.TypeByte, enc.WidthByte)}})
		return reg, t, nil

	case *CharLiteral:
		reg := cg.allocReg()
		enc := cg.enc(t)
		cg.emit(isa.Instruction{Op: isa.OpMOVI, Operands: []isa.Operand{cg.regOperand(reg, t), isa.Imm(n.Value, enc.TypeByte, enc.WidthByte)}})
		return reg, t, nil

	case *FloatLiteral:
		reg := cg.allocReg()
		enc := cg.enc(t)
		cg.emit(isa.Instruction{Op: isa.OpMOVI, Operands: []isa.Operand{cg.regOperand(reg, t), isa.ImmFloat(n.Value, enc.WidthByte)}})
		return reg, t, nil

	case *StringLiteral:
		reg := cg.allocReg()
		enc := cg.enc(t)
		cg.emit(isa.Instruction{Op: isa.OpMOVI, Operands: []isa.Operand{cg.regOperand(reg, t), isa.Str(n.Value)}})
		return reg, t, nil

	case *Ident:
		return cg.genIdentLoad(n, t)

	case *BinaryExpr:
		return cg.genBinary(n, t)

	case *LogicalExpr:
		return cg.genLogical(n)

	case *UnaryExpr:
		return cg.genUnary(n, t)

	case *PostfixExpr:
		return cg.genPostfix(n, t)

	case *ConditionalExpr:
		return cg.genConditional(n, t)

	case *IndexExpr:
		return cg.genIndex(n, t)

	case *CallExpr:
		return cg.genCall(n, t)

	case *AssignExpr:
		return cg.genAssign(n)

	case *CastExpr:
		return cg.genCast(n)

	case *SizeofExpr:
		reg := cg.allocReg()
		size := int64(cg.enc(n.Target).WidthByte)
		enc := cg.enc(t)
		cg.emit(isa.Instruction{Op: isa.OpMOVI, Operands: []isa.Operand{cg.regOperand(reg, t), isa.Imm(size, enc.TypeByte, enc.WidthByte)}})
		return reg, t, nil

	case *FieldExpr:
		return 0, nil, diag.NewTypeError(n.Pos.Diag(), "field access is not supported: this language has no struct type")

	default:
		return 0, nil, diag.NewCodegenError(e.Position().Diag(), "unsupported expression %T", e)
	}
}

func (cg *CodeGen) genIdentLoad(n *Ident, t *types.Type) (uint32, *types.Type, error) {
	b, ok := cg.syms.Lookup(n.Name)
	if !ok {
		return 0, nil, diag.NewSemanticError(n.Pos.Diag(), "undeclared identifier %q", n.Name)
	}
	reg := cg.allocReg()
	e := cg.enc(t)
	cg.emit(isa.Instruction{Op: isa.OpVARGET, Operands: []isa.Operand{
		cg.regOperand(reg, t), isa.Var(uint32(b.VarID), e.TypeByte, e.WidthByte),
	}})
	return reg, t, nil
}

// genBinary lowers Left Op Right. A comparison operator produces a
// boolean 0/1 via CMP + a conditional branch over two MOVIs, per the
// fixed operator-to-condition table; every other operator lowers to a
// single arithmetic/bitwise opcode over the two already-evaluated
// operands. Two literal operands are constant-folded at generation time
// instead of emitting dead arithmetic for a value the compiler already
// knows.
func (cg *CodeGen) genBinary(n *BinaryExpr, t *types.Type) (uint32, *types.Type, error) {
	if folded, ok := foldConstantBinary(n); ok {
		reg := cg.allocReg()
		enc := cg.enc(t)
		cg.emit(isa.Instruction{Op: isa.OpMOVI, Operands: []isa.Operand{cg.regOperand(reg, t), isa.Imm(folded, enc.TypeByte, enc.WidthByte)}})
		return reg, t, nil
	}

	lreg, lt, err := cg.genExpr(n.Left)
	if err != nil {
		return 0, nil, err
	}
	rreg, rt, err := cg.genExpr(n.Right)
	if err != nil {
		return 0, nil, err
	}

	opName, ok := binaryOpName[n.Op]
	if !ok {
		return 0, nil, diag.NewCodegenError(n.Pos.Diag(), "unsupported binary operator %s", n.Op)
	}
	if cond, ok := isa.CompareCond[opName]; ok {
		return cg.genCompare(cond, lreg, lt, rreg, rt, t)
	}

	op, ok := isa.BinaryOpcode[opName]
	if !ok {
		return 0, nil, diag.NewCodegenError(n.Pos.Diag(), "unsupported binary operator %s", n.Op)
	}
	lreg = cg.coerce(lreg, lt, t)
	rreg = cg.coerce(rreg, rt, t)
	out := cg.allocReg()
	cg.emit(isa.Instruction{Op: op, Operands: []isa.Operand{cg.regOperand(out, t), cg.regOperand(lreg, t), cg.regOperand(rreg, t)}})
	return out, t, nil
}

// binaryOpName maps the token-level operator to the lookup key
// isa.BinaryOpcode and isa.CompareCond both index by.
var binaryOpName = map[TokenType]string{
	PLUS: "+", MINUS: "-", STAR: "*", SLASH: "/", PERCENT: "%",
	AND: "&", PIPE: "|", CARET: "^", SHL_OP: "<<", SHR_OP: ">>",
	EQUALS: "==", NOT_EQ: "!=", LESS: "<", LESS_EQ: "<=", GREATER: ">", GREATER_EQ: ">=",
}

func (cg *CodeGen) genCompare(cond isa.Cond, lreg uint32, lt *types.Type, rreg uint32, rt *types.Type, resultType *types.Type) (uint32, *types.Type, error) {
	common := lt
	if types.IsNumeric(lt) && types.IsNumeric(rt) {
		common = types.Common(lt, rt)
	}
	lreg = cg.coerce(lreg, lt, common)
	rreg = cg.coerce(rreg, rt, common)

	trueLabel := cg.allocLabel()
	endLabel := cg.allocLabel()

	cg.emit(isa.Instruction{Op: isa.OpCMP, Operands: []isa.Operand{cg.regOperand(lreg, common), cg.regOperand(rreg, common)}})
	cg.branchCond(cond, trueLabel)

	out := cg.allocReg()
	enc := cg.enc(resultType)
	cg.emit(isa.Instruction{Op: isa.OpMOVI, Operands: []isa.Operand{cg.regOperand(out, resultType), isa.Imm(0, enc.TypeByte, enc.WidthByte)}})
	cg.branch(endLabel)
	cg.placeLabel(trueLabel)
	cg.emit(isa.Instruction{Op: isa.OpMOVI, Operands: []isa.Operand{cg.regOperand(out, resultType), isa.Imm(1, enc.TypeByte, enc.WidthByte)}})
	cg.placeLabel(endLabel)
	return out, resultType, nil
}

// genLogical lowers && and || with short-circuit evaluation: the right
// side is never evaluated once the left side alone determines the
// result.
func (cg *CodeGen) genLogical(n *LogicalExpr) (uint32, *types.Type, error) {
	resultType := types.Bool()
	out := cg.allocReg()
	enc := cg.enc(resultType)

	lreg, lt, err := cg.genExpr(n.Left)
	if err != nil {
		return 0, nil, err
	}
	cg.emit(isa.Instruction{Op: isa.OpCMP, Operands: []isa.Operand{cg.regOperand(lreg, lt), isa.Imm(0, cg.enc(lt).TypeByte, cg.enc(lt).WidthByte)}})

	shortCircuit := cg.allocLabel()
	endLabel := cg.allocLabel()

	if n.Op == AND_LOGICAL {
		cg.branchCond(isa.CondEQ, shortCircuit) // left is false: skip right, result false
	} else {
		cg.branchCond(isa.CondNE, shortCircuit) // left is true: skip right, result true
	}

	rreg, rt, err := cg.genExpr(n.Right)
	if err != nil {
		return 0, nil, err
	}
	cg.emit(isa.Instruction{Op: isa.OpCMP, Operands: []isa.Operand{cg.regOperand(rreg, rt), isa.Imm(0, cg.enc(rt).TypeByte, cg.enc(rt).WidthByte)}})
	trueFromRight := cg.allocLabel()
	cg.branchCond(isa.CondNE, trueFromRight)
	cg.emit(isa.Instruction{Op: isa.OpMOVI, Operands: []isa.Operand{cg.regOperand(out, resultType), isa.Imm(0, enc.TypeByte, enc.WidthByte)}})
	cg.branch(endLabel)
	cg.placeLabel(trueFromRight)
	cg.emit(isa.Instruction{Op: isa.OpMOVI, Operands: []isa.Operand{cg.regOperand(out, resultType), isa.Imm(1, enc.TypeByte, enc.WidthByte)}})
	cg.branch(endLabel)

	cg.placeLabel(shortCircuit)
	shortVal := int64(0)
	if n.Op == OR_LOGICAL {
		shortVal = 1
	}
	cg.emit(isa.Instruction{Op: isa.OpMOVI, Operands: []isa.Operand{cg.regOperand(out, resultType), isa.Imm(shortVal, enc.TypeByte, enc.WidthByte)}})

	cg.placeLabel(endLabel)
	return out, resultType, nil
}

func (cg *CodeGen) genUnary(n *UnaryExpr, t *types.Type) (uint32, *types.Type, error) {
	switch n.Op {
	case AND: // address-of
		return cg.genAddress(n.Operand)

	case STAR: // dereference
		ptrReg, ptrType, err := cg.genExpr(n.Operand)
		if err != nil {
			return 0, nil, err
		}
		out := cg.allocReg()
		elemEnc := cg.enc(t)
		cg.emit(isa.Instruction{Op: isa.OpLOAD, Operands: []isa.Operand{
			cg.regOperand(out, t), isa.Mem(int32(ptrReg), 0, elemEnc.TypeByte, elemEnc.WidthByte),
		}})
		_ = ptrType
		return out, t, nil

	case NOT:
		operand, ot, err := cg.genExpr(n.Operand)
		if err != nil {
			return 0, nil, err
		}
		zero := cg.allocReg()
		zenc := cg.enc(ot)
		cg.emit(isa.Instruction{Op: isa.OpMOVI, Operands: []isa.Operand{cg.regOperand(zero, ot), isa.Imm(0, zenc.TypeByte, zenc.WidthByte)}})
		return cg.genCompare(isa.CondEQ, operand, ot, zero, ot, types.Bool())

	case MINUS:
		operand, ot, err := cg.genExpr(n.Operand)
		if err != nil {
			return 0, nil, err
		}
		out := cg.allocReg()
		cg.emit(isa.Instruction{Op: isa.OpNEG, Operands: []isa.Operand{cg.regOperand(out, ot), cg.regOperand(operand, ot)}})
		return out, ot, nil

	case TILDE:
		operand, ot, err := cg.genExpr(n.Operand)
		if err != nil {
			return 0, nil, err
		}
		out := cg.allocReg()
		cg.emit(isa.Instruction{Op: isa.OpNOT, Operands: []isa.Operand{cg.regOperand(out, ot), cg.regOperand(operand, ot)}})
		return out, ot, nil

	case PLUS_PLUS, MINUS_MINUS:
		return cg.genIncDec(n.Operand, n.Op, true)

	default:
		return 0, nil, diag.NewCodegenError(n.Pos.Diag(), "unsupported unary operator %s", n.Op)
	}
}

func (cg *CodeGen) genPostfix(n *PostfixExpr, t *types.Type) (uint32, *types.Type, error) {
	return cg.genIncDec(n.Operand, n.Op, false)
}

// genIncDec lowers ++/-- in both prefix and postfix position. A local
// variable is the only lvalue shape this language's VARGET/VARSET
// instructions can address directly; anything else (a dereferenced
// pointer, an index) loads through its address instead.
func (cg *CodeGen) genIncDec(target Expr, op TokenType, prefix bool) (uint32, *types.Type, error) {
	cur, t, err := cg.genExpr(target)
	if err != nil {
		return 0, nil, err
	}
	one := cg.allocReg()
	enc := cg.enc(t)
	cg.emit(isa.Instruction{Op: isa.OpMOVI, Operands: []isa.Operand{cg.regOperand(one, t), isa.Imm(1, enc.TypeByte, enc.WidthByte)}})

	updated := cg.allocReg()
	incOp := isa.OpADD
	if op == MINUS_MINUS {
		incOp = isa.OpSUB
	}
	cg.emit(isa.Instruction{Op: incOp, Operands: []isa.Operand{cg.regOperand(updated, t), cg.regOperand(cur, t), cg.regOperand(one, t)}})

	if err := cg.storeTo(target, updated, t); err != nil {
		return 0, nil, err
	}
	if prefix {
		return updated, t, nil
	}
	return cur, t, nil
}

func (cg *CodeGen) genConditional(n *ConditionalExpr, t *types.Type) (uint32, *types.Type, error) {
	cond, condType, err := cg.genExpr(n.Cond)
	if err != nil {
		return 0, nil, err
	}
	elseLabel := cg.allocLabel()
	endLabel := cg.allocLabel()
	out := cg.allocReg()

	cg.emit(isa.Instruction{Op: isa.OpCMP, Operands: []isa.Operand{cg.regOperand(cond, condType), isa.Imm(0, cg.enc(condType).TypeByte, cg.enc(condType).WidthByte)}})
	cg.branchCond(isa.CondEQ, elseLabel)

	thenReg, thenType, err := cg.genExpr(n.Then)
	if err != nil {
		return 0, nil, err
	}
	thenReg = cg.coerce(thenReg, thenType, t)
	cg.emit(isa.Instruction{Op: isa.OpMOV, Operands: []isa.Operand{cg.regOperand(out, t), cg.regOperand(thenReg, t)}})
	cg.branch(endLabel)

	cg.placeLabel(elseLabel)
	elseReg, elseType, err := cg.genExpr(n.Else)
	if err != nil {
		return 0, nil, err
	}
	elseReg = cg.coerce(elseReg, elseType, t)
	cg.emit(isa.Instruction{Op: isa.OpMOV, Operands: []isa.Operand{cg.regOperand(out, t), cg.regOperand(elseReg, t)}})
	cg.placeLabel(endLabel)
	return out, t, nil
}

func (cg *CodeGen) genIndex(n *IndexExpr, t *types.Type) (uint32, *types.Type, error) {
	addr, err := cg.genElementAddress(n)
	if err != nil {
		return 0, nil, err
	}
	out := cg.allocReg()
	e := cg.enc(t)
	cg.emit(isa.Instruction{Op: isa.OpLOAD, Operands: []isa.Operand{cg.regOperand(out, t), isa.Mem(int32(addr), 0, e.TypeByte, e.WidthByte)}})
	return out, t, nil
}

// genElementAddress computes the base+offset address of arr[idx] into a
// single register holding the pointer, used by both a load (IndexExpr
// read) and a store (IndexExpr as an assignment target).
func (cg *CodeGen) genElementAddress(n *IndexExpr) (uint32, error) {
	arrReg, arrType, err := cg.genExpr(n.Array)
	if err != nil {
		return 0, err
	}
	arrType = types.DecayArray(arrType)
	idxReg, idxType, err := cg.genExpr(n.Index)
	if err != nil {
		return 0, err
	}

	elemSize := int64(cg.enc(arrType.Elem).WidthByte)
	sizeReg := cg.allocReg()
	enc := cg.enc(idxType)
	cg.emit(isa.Instruction{Op: isa.OpMOVI, Operands: []isa.Operand{cg.regOperand(sizeReg, idxType), isa.Imm(elemSize, enc.TypeByte, enc.WidthByte)}})

	scaled := cg.allocReg()
	cg.emit(isa.Instruction{Op: isa.OpMUL, Operands: []isa.Operand{cg.regOperand(scaled, idxType), cg.regOperand(idxReg, idxType), cg.regOperand(sizeReg, idxType)}})

	addr := cg.allocReg()
	cg.emit(isa.Instruction{Op: isa.OpADD, Operands: []isa.Operand{cg.regOperand(addr, arrType), cg.regOperand(arrReg, arrType), cg.regOperand(scaled, arrType)}})
	return addr, nil
}

func (cg *CodeGen) genCall(n *CallExpr, t *types.Type) (uint32, *types.Type, error) {
	ft, ok := cg.funcs[n.Callee]
	if !ok {
		return 0, nil, diag.NewSemanticError(n.Pos.Diag(), "call to undeclared function %q", n.Callee)
	}
	for i, arg := range n.Args {
		reg, at, err := cg.genExpr(arg)
		if err != nil {
			return 0, nil, err
		}
		var pt *types.Type
		if i < len(ft.Params) {
			pt = ft.Params[i]
		} else {
			pt = at // variadic tail: pass as evaluated
		}
		reg = cg.coerce(reg, at, pt)
		cg.emit(isa.Instruction{Op: isa.OpPUSH, Operands: []isa.Operand{cg.regOperand(reg, pt)}})
	}
	cg.emit(isa.Instruction{Op: isa.OpCALL, Operands: []isa.Operand{isa.Sym(n.Callee)}})
	if len(n.Args) > 0 {
		cg.emit(isa.Instruction{Op: isa.OpADJSP, Operands: []isa.Operand{isa.Imm(int64(len(n.Args)), 0x00, 4)}})
	}
	if ft.Elem == nil || ft.Elem.Kind == types.Void {
		return 0, types.Void_(), nil
	}
	out := cg.allocReg()
	cg.emit(isa.Instruction{Op: isa.OpRESULT, Operands: []isa.Operand{cg.regOperand(out, ft.Elem)}})
	return out, ft.Elem, nil
}

// genAssign lowers Target Op= Value. A compound assignment (+=, &=, ...)
// first loads Target's current value and folds the operator in before
// storing; plain = stores Value directly.
func (cg *CodeGen) genAssign(n *AssignExpr) (uint32, *types.Type, error) {
	t, err := cg.typeOf(n.Target)
	if err != nil {
		return 0, nil, err
	}
	valReg, valType, err := cg.genExpr(n.Value)
	if err != nil {
		return 0, nil, err
	}
	valReg = cg.coerce(valReg, valType, t)

	if n.Op != ASSIGN {
		curReg, _, err := cg.genExpr(n.Target)
		if err != nil {
			return 0, nil, err
		}
		opName, ok := compoundAssignOp[n.Op]
		if !ok {
			return 0, nil, diag.NewCodegenError(n.Pos.Diag(), "unsupported assignment operator %s", n.Op)
		}
		op := isa.BinaryOpcode[opName]
		out := cg.allocReg()
		cg.emit(isa.Instruction{Op: op, Operands: []isa.Operand{cg.regOperand(out, t), cg.regOperand(curReg, t), cg.regOperand(valReg, t)}})
		valReg = out
	}

	if err := cg.storeTo(n.Target, valReg, t); err != nil {
		return 0, nil, err
	}
	return valReg, t, nil
}

var compoundAssignOp = map[TokenType]string{
	PLUS_ASSIGN: "+", MINUS_ASSIGN: "-", STAR_ASSIGN: "*", SLASH_ASSIGN: "/", PERCENT_ASSIGN: "%",
	AND_ASSIGN: "&", OR_ASSIGN: "|", XOR_ASSIGN: "^", SHL_ASSIGN: "<<", SHR_ASSIGN: ">>",
}

// storeTo writes valReg into target, dispatching on target's shape: a
// bare identifier goes through VARSET; a dereference or index target
// computes an address and goes through STORE.
func (cg *CodeGen) storeTo(target Expr, valReg uint32, t *types.Type) error {
	switch tgt := target.(type) {
	case *Ident:
		b, ok := cg.syms.Lookup(tgt.Name)
		if !ok {
			return diag.NewSemanticError(tgt.Pos.Diag(), "undeclared identifier %q", tgt.Name)
		}
		e := cg.enc(t)
		cg.emit(isa.Instruction{Op: isa.OpVARSET, Operands: []isa.Operand{
			isa.Var(uint32(b.VarID), e.TypeByte, e.WidthByte), cg.regOperand(valReg, t),
		}})
		return nil

	case *UnaryExpr:
		if tgt.Op != STAR {
			return diag.NewSyntaxError(tgt.Pos.Diag(), "invalid assignment target")
		}
		ptrReg, _, err := cg.genExpr(tgt.Operand)
		if err != nil {
			return err
		}
		e := cg.enc(t)
		cg.emit(isa.Instruction{Op: isa.OpSTORE, Operands: []isa.Operand{isa.Mem(int32(ptrReg), 0, e.TypeByte, e.WidthByte), cg.regOperand(valReg, t)}})
		return nil

	case *IndexExpr:
		addr, err := cg.genElementAddress(tgt)
		if err != nil {
			return err
		}
		e := cg.enc(t)
		cg.emit(isa.Instruction{Op: isa.OpSTORE, Operands: []isa.Operand{isa.Mem(int32(addr), 0, e.TypeByte, e.WidthByte), cg.regOperand(valReg, t)}})
		return nil

	case *FieldExpr:
		return diag.NewTypeError(tgt.Pos.Diag(), "field access is not supported: this language has no struct type")

	default:
		return diag.NewSyntaxError(target.Position().Diag(), "invalid assignment target")
	}
}

// genAddress computes &e into a register holding e's address. Only an
// identifier or an index expression has an address this generator can
// compute; VARREF reads a local's address directly, an index target goes
// through the same element-address arithmetic a load or store would use.
func (cg *CodeGen) genAddress(e Expr) (uint32, *types.Type, error) {
	switch n := e.(type) {
	case *Ident:
		b, ok := cg.syms.Lookup(n.Name)
		if !ok {
			return 0, nil, diag.NewSemanticError(n.Pos.Diag(), "undeclared identifier %q", n.Name)
		}
		ptrType := types.PointerTo(b.Type)
		out := cg.allocReg()
		e := cg.enc(b.Type)
		cg.emit(isa.Instruction{Op: isa.OpVARREF, Operands: []isa.Operand{cg.regOperand(out, ptrType), isa.Var(uint32(b.VarID), e.TypeByte, e.WidthByte)}})
		return out, ptrType, nil

	case *IndexExpr:
		_, arrType, err := cg.genExpr(n.Array)
		if err != nil {
			return 0, nil, err
		}
		addr, err := cg.genElementAddress(n)
		if err != nil {
			return 0, nil, err
		}
		return addr, types.PointerTo(types.DecayArray(arrType).Elem), nil

	default:
		return 0, nil, diag.NewSyntaxError(e.Position().Diag(), "cannot take the address of this expression")
	}
}

func (cg *CodeGen) genCast(n *CastExpr) (uint32, *types.Type, error) {
	reg, from, err := cg.genExpr(n.Operand)
	if err != nil {
		return 0, nil, err
	}
	out := cg.coerce(reg, from, n.Target)
	if out == reg && !types.Equal(from, n.Target) {
		// Same representation (e.g. pointer-to-pointer, or int widths this
		// generator treats as reinterpretation): a plain MOV still makes
		// the new virtual register's type tag match the cast's target.
		moved := cg.allocReg()
		cg.emit(isa.Instruction{Op: isa.OpMOV, Operands: []isa.Operand{cg.regOperand(moved, n.Target), cg.regOperand(reg, from)}})
		return moved, n.Target, nil
	}
	return out, n.Target, nil
}

// foldConstantBinary evaluates Left Op Right at generation time when
// both sides are already-parsed integer literals, so "a + 2 * 3" emits
// one MOVI for the folded 6 instead of dead MUL arithmetic.
func foldConstantBinary(n *BinaryExpr) (int64, bool) {
	l, ok := n.Left.(*IntLiteral)
	if !ok {
		return 0, false
	}
	r, ok := n.Right.(*IntLiteral)
	if !ok {
		return 0, false
	}
	switch n.Op {
	case PLUS:
		return l.Value + r.Value, true
	case MINUS:
		return l.Value - r.Value, true
	case STAR:
		return l.Value * r.Value, true
	case SLASH:
		if r.Value == 0 {
			return 0, false
		}
		return l.Value / r.Value, true
	case PERCENT:
		if r.Value == 0 {
			return 0, false
		}
		return l.Value % r.Value, true
	case AND:
		return l.Value & r.Value, true
	case PIPE:
		return l.Value | r.Value, true
	case CARET:
		return l.Value ^ r.Value, true
	case SHL_OP:
		return l.Value << uint64(r.Value), true
	case SHR_OP:
		return l.Value >> uint64(r.Value), true
	}
	return 0, false
}

package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coilc/pkg/diag"
	"coilc/pkg/isa"
	"coilc/pkg/types"
)

func mustGenerate(t *testing.T, src string) []isa.Instruction {
	t.Helper()
	prog := mustParse(t, src)
	unit, err := Generate(prog)
	require.NoError(t, err)
	return unit.Instructions
}

// opcodes maps every instruction, directives and VARCR/VARSC bookkeeping
// included, to its bare opcode, dropping operands and qualifiers.
func opcodes(instrs []isa.Instruction) []isa.Opcode {
	ops := make([]isa.Opcode, len(instrs))
	for i, in := range instrs {
		ops[i] = in.Op
	}
	return ops
}

func indexOfOp(instrs []isa.Instruction, op isa.Opcode, from int) int {
	for i := from; i < len(instrs); i++ {
		if instrs[i].Op == op {
			return i
		}
	}
	return -1
}

func TestGenerateMinimalMain(t *testing.T) {
	instrs := mustGenerate(t, "int main() { return 0; }")

	symb := indexOfOp(instrs, isa.OpSYMB, 0)
	require.True(t, symb >= 0)
	require.Equal(t, isa.OpENTER, instrs[symb+1].Op)

	movi := indexOfOp(instrs, isa.OpMOVI, symb)
	result := indexOfOp(instrs, isa.OpRESULT, movi)
	leave := indexOfOp(instrs, isa.OpLEAVE, result)
	ret := indexOfOp(instrs, isa.OpRET, leave)
	require.True(t, movi > symb && result > movi && leave > result && ret > leave)
}

func TestGenerateArithmeticOrdersOperandsBeforeOperator(t *testing.T) {
	instrs := mustGenerate(t, "int f(int a, int b) { return a + b * 2; }")

	param0 := indexOfOp(instrs, isa.OpPARAM, 0)
	param1 := indexOfOp(instrs, isa.OpPARAM, param0+1)
	mul := indexOfOp(instrs, isa.OpMUL, param1)
	add := indexOfOp(instrs, isa.OpADD, mul)
	result := indexOfOp(instrs, isa.OpRESULT, add)

	require.True(t, param0 >= 0)
	require.True(t, param1 > param0)
	require.True(t, mul > param1, "b*2 must be computed before it feeds the add")
	require.True(t, add > mul)
	require.True(t, result > add)
}

func TestGenerateWhileLoopUsesOneCompareAndOneConditionalBranch(t *testing.T) {
	instrs := mustGenerate(t, `
		int f(int n) {
			int i;
			int sum;
			i = 0;
			sum = 0;
			while (i < n) {
				sum = sum + i;
				i = i + 1;
			}
			return sum;
		}
	`)

	cmpCount := 0
	brcCount := 0
	brCount := 0
	for _, in := range instrs {
		switch in.Op {
		case isa.OpCMP:
			cmpCount++
		case isa.OpBRC:
			brcCount++
		case isa.OpBR:
			brCount++
		}
	}
	require.Equal(t, 1, cmpCount, "the loop condition lowers to a single compare, not a materialize-then-retest pair")
	require.Equal(t, 1, brcCount)
	require.Equal(t, 1, brCount, "the back edge closing the loop body")

	cmp := indexOfOp(instrs, isa.OpCMP, 0)
	require.Equal(t, isa.OpBRC, instrs[cmp+1].Op, "BRC immediately follows the compare, with nothing materialized in between")
}

func TestGenerateRecursiveCall(t *testing.T) {
	instrs := mustGenerate(t, `
		int fact(int n) {
			if (n <= 1) return 1;
			return n * fact(n - 1);
		}
	`)

	call := indexOfOp(instrs, isa.OpCALL, 0)
	require.True(t, call >= 0)

	sub := indexOfOp(instrs, isa.OpSUB, 0)
	require.True(t, sub >= 0 && sub < call, "n-1 must be computed before the call that consumes it")

	mul := indexOfOp(instrs, isa.OpMUL, call)
	require.True(t, mul > call, "the multiply by the call result happens after the call returns")
}

func TestGenerateNestedBlocksGetDistinctVariableIds(t *testing.T) {
	instrs := mustGenerate(t, `
		int f() {
			{
				int x;
				x = 1;
			}
			{
				int x;
				x = 2;
			}
			return 0;
		}
	`)

	var varcrIDs []uint32
	scopeCount := 0
	endCount := 0
	for _, in := range instrs {
		switch in.Op {
		case isa.OpVARSC:
			scopeCount++
		case isa.OpVAREND:
			endCount++
		case isa.OpVARCR:
			varcrIDs = append(varcrIDs, in.Operands[0].Reg)
		}
	}
	require.Equal(t, 2, scopeCount, "each block opens its own variable scope")
	require.Equal(t, 2, endCount)
	require.Len(t, varcrIDs, 2, "one VARCR per block-local x")
	require.NotEqual(t, varcrIDs[0], varcrIDs[1], "the two same-named locals never share a variable id")
}

func TestGenerateRedefinitionInSameScopeIsSemanticError(t *testing.T) {
	// The parser already rejects "int x; int x;" in one scope, so the
	// program is built directly to reach the generator's own check.
	intT := types.Int(32, true)
	prog := &Program{Decls: []Stmt{&FuncDecl{
		Name:       "f",
		ReturnType: intT,
		Body: &BlockStmt{Stmts: []Stmt{
			&DeclStmt{Decl: &VarDecl{Name: "x", Type: intT}},
			&DeclStmt{Decl: &VarDecl{Name: "x", Type: intT}},
			&ReturnStmt{Expr: &IntLiteral{exprBase: exprBase{ResultType: intT}}},
		}},
	}}}
	_, err := Generate(prog)
	require.Error(t, err)
	var de *diag.Error
	require.True(t, diag.As(err, &de))
	require.Equal(t, diag.KindSemantic, de.Kind)
}

func TestGenerateLogicalAndShortCircuits(t *testing.T) {
	instrs := mustGenerate(t, `
		int f(int a, int b) {
			if (a > 0 && b > 0) return 1;
			return 0;
		}
	`)
	require.Equal(t, 2, countOp(instrs, isa.OpCMP), "each comparison lowers to its own compare")
	require.Equal(t, 2, countOp(instrs, isa.OpBRC), "&& lowers to two guarded branches, not a materialized boolean")
}

func countOp(instrs []isa.Instruction, op isa.Opcode) int {
	n := 0
	for _, in := range instrs {
		if in.Op == op {
			n++
		}
	}
	return n
}

func TestGenerateGlobalVariableEmitsVarcrAndVarset(t *testing.T) {
	instrs := mustGenerate(t, `
		int counter = 5;
		int main() { return 0; }
	`)
	varcr := indexOfOp(instrs, isa.OpVARCR, 0)
	varset := indexOfOp(instrs, isa.OpVARSET, 0)
	require.True(t, varcr >= 0)
	require.True(t, varset > varcr)
}

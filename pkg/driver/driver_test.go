package driver

import (
	"testing"

	"github.com/stretchr/testify/require"

	"coilc/pkg/objfile"
)

func TestCompileMinimalMain(t *testing.T) {
	res, err := Compile("t.c", "int main() { return 0; }", Options{})
	require.NoError(t, err)
	require.Equal(t, objfile.Magic[:], res.Object[0:4])
}

func TestCompileArithmeticFunction(t *testing.T) {
	res, err := Compile("t.c", "int f(int a, int b) { return a + b * 2; }", Options{})
	require.NoError(t, err)
	require.True(t, len(res.Object) > 0)
}

func TestCompileControlFlow(t *testing.T) {
	src := `
		int sumTo(int n) {
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
		int main() { return sumTo(5); }
	`
	res, err := Compile("t.c", src, Options{})
	require.NoError(t, err)
	require.True(t, len(res.Object) > 0)
}

func TestCompileRecursion(t *testing.T) {
	src := `
		int fact(int n) {
			if (n <= 1) return 1;
			return n * fact(n - 1);
		}
		int main() { return fact(5); }
	`
	res, err := Compile("t.c", src, Options{})
	require.NoError(t, err)
	require.True(t, len(res.Object) > 0)
}

func TestCompileScopedBlocksDoNotCollide(t *testing.T) {
	src := `
		int main() {
			{ int x; x = 1; }
			{ int x; x = 2; }
			return 0;
		}
	`
	res, err := Compile("t.c", src, Options{})
	require.NoError(t, err)
	require.True(t, len(res.Object) > 0)
}

func TestCompileRedefinitionIsReportedAsFailure(t *testing.T) {
	src := `
		int main() {
			int x;
			int x;
			return 0;
		}
	`
	_, err := Compile("t.c", src, Options{})
	require.Error(t, err)
}

func TestCompileDumpsTokensAndAST(t *testing.T) {
	res, err := Compile("t.c", "int main() { return 0; }", Options{DumpTokens: true, DumpAST: true})
	require.NoError(t, err)
	require.NotEmpty(t, res.Tokens)
	require.NotEmpty(t, res.AST)
}

func TestCompileSourceWithLexErrorFails(t *testing.T) {
	_, err := Compile("t.c", `int main() { char c = '; return 0; }`, Options{})
	require.Error(t, err)
}

// Package driver wires the compiler's stages together: lex, parse, and
// generate, then hand the result to the Object Format writer. It owns the
// single compile-and-teardown lifecycle — one invocation, one set of
// per-stage arenas, released when the call returns whether it succeeded or
// failed.
package driver

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"coilc/pkg/arena"
	"coilc/pkg/compiler"
	"coilc/pkg/diag"
	"coilc/pkg/objfile"
)

// Options controls the debug surfaces a caller can ask for in addition to
// the compiled object: --tokens and --ast from §6's flag table, plus a
// logger for -v progress narration. A nil Log means silent.
type Options struct {
	DumpTokens bool
	DumpAST    bool
	Log        *logrus.Logger
}

// Result carries everything a caller might want out of a successful
// compile: the object bytes, and (only when requested) the textual token
// and AST dumps so the CLI can print them without re-parsing.
type Result struct {
	Object []byte
	Tokens string
	AST    string
}

func (o Options) log() *logrus.Logger {
	if o.Log != nil {
		return o.Log
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Compile runs one source file through every stage and returns its object
// bytes. file is used only for diagnostic positions; src is the already-
// read source text. An arena.ErrExhausted panic from any stage is recovered
// here and reported as an InternalError, matching §5's "out-of-memory from
// the arena is fatal" — the only panic this pipeline ever recovers from.
func Compile(file, src string, opts Options) (res Result, err error) {
	log := opts.log()

	defer func() {
		if r := recover(); r != nil {
			if oom, ok := r.(*arena.ErrExhausted); ok {
				err = diag.NewInternalError(diag.Position{File: file}, "%v", oom)
				return
			}
			panic(r)
		}
	}()

	log.WithField("file", file).Info("lexing")
	tokens, lexErr := compiler.Lex(file, src)
	if lexErr != nil {
		return Result{}, lexErr
	}
	if opts.DumpTokens {
		res.Tokens = dumpTokens(tokens)
	}

	log.Info("parsing")
	prog, parseErr := compiler.Parse(tokens, src)
	if parseErr != nil {
		return Result{}, parseErr
	}
	if opts.DumpAST {
		res.AST = dumpAST(prog)
	}

	log.Info("generating code")
	unit, genErr := compiler.Generate(prog)
	if genErr != nil {
		return Result{}, genErr
	}
	log.WithFields(logrus.Fields{
		"instructions": len(unit.Instructions),
		"symbols":      len(unit.Symbols),
	}).Debug("generated unit")

	log.Info("writing object")
	w := objfile.NewWriter()
	data, buildErr := w.Build(unit)
	if buildErr != nil {
		return Result{}, diag.NewInternalError(diag.Position{File: file}, "building object: %v", buildErr)
	}
	res.Object = data
	return res, nil
}

// CompileFile reads path and compiles it, writing the object to outPath.
// It is the entry point cmd/coilc drives: everything about file I/O lives
// here so Compile itself stays pure over in-memory source text.
func CompileFile(path, outPath string, opts Options) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, diag.NewIOError(diag.Position{File: path}, err, "reading source")
	}

	res, err := Compile(path, string(data), opts)
	if err != nil {
		return Result{}, err
	}

	if err := os.WriteFile(outPath, res.Object, 0o644); err != nil {
		return Result{}, diag.NewIOError(diag.Position{File: outPath}, err, "writing object")
	}
	return res, nil
}

func dumpTokens(tokens []compiler.Token) string {
	out := ""
	for _, tok := range tokens {
		out += fmt.Sprintln(tok)
	}
	return out
}

func dumpAST(prog *compiler.Program) string {
	out := ""
	for _, decl := range prog.Decls {
		out += fmt.Sprintln(decl)
	}
	return out
}

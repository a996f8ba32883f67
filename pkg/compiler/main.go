// Package compiler provides a C-subset lexer, parser, and code generator
// that targets the Virtual ISA consumed by pkg/objfile.
//
// Pipeline: source text → Lex → Parse → Generate → isa.Instruction stream.
// pkg/driver wires this package to pkg/objfile for a complete compile.
package compiler

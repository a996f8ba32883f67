package compiler

import (
	"fmt"
	"sort"
	"strings"

	"coilc/pkg/types"
)

// Binding is a name's resolved meaning: its type, the scope level it was
// declared at, whether it was declared at the global scope, the
// generator-assigned VarID, and its declaration position for diagnostics.
// The generator gives globals, parameters and locals alike a VarID and
// references all of them through it; no variable is referenced by name.
type Binding struct {
	Name       string
	Type       *types.Type
	ScopeLevel int
	IsGlobal   bool
	VarID      int // assigned by the generator, for globals and locals alike
	Pos        Position
}

// SymbolTable is a single stack of scopes keyed by name; its depth rises
// on EnterScope and falls on ExitScope. Scope 0 is the
// translation-unit (global) scope. Exiting a scope makes its bindings
// invisible to subsequent lookups but a Binding already handed out as a
// *Binding stays valid for as long as the caller holds the pointer — the
// table itself never frees one.
type SymbolTable struct {
	scopes []map[string]*Binding
}

// NewSymbolTable returns a table positioned at the global scope.
func NewSymbolTable() *SymbolTable {
	return &SymbolTable{scopes: []map[string]*Binding{make(map[string]*Binding)}}
}

// EnterScope pushes a new, empty scope.
func (s *SymbolTable) EnterScope() {
	s.scopes = append(s.scopes, make(map[string]*Binding))
}

// ExitScope pops the innermost scope. It is an error to call this at the
// global scope; callers never do, since the global scope is never entered
// via EnterScope.
func (s *SymbolTable) ExitScope() {
	if len(s.scopes) <= 1 {
		panic("compiler: ExitScope called at global scope")
	}
	s.scopes = s.scopes[:len(s.scopes)-1]
}

// Depth returns the current scope level: 0 at the global scope.
func (s *SymbolTable) Depth() int { return len(s.scopes) - 1 }

// AtGlobalScope reports whether the table is currently at scope 0.
func (s *SymbolTable) AtGlobalScope() bool { return len(s.scopes) == 1 }

// Define binds name in the current scope. If name is already bound in
// THIS scope (not an outer one), Define does nothing and returns
// (existing, false) so the caller can raise SemanticError.Redefinition.
// Shadowing a name from an outer scope is always permitted.
func (s *SymbolTable) Define(b *Binding) (*Binding, bool) {
	cur := s.scopes[len(s.scopes)-1]
	if existing, ok := cur[b.Name]; ok {
		return existing, false
	}
	b.ScopeLevel = len(s.scopes) - 1
	b.IsGlobal = s.AtGlobalScope()
	cur[b.Name] = b
	return b, true
}

// Lookup walks scopes from innermost to outermost, returning the first
// match — the most recently declared binding visible at this point.
func (s *SymbolTable) Lookup(name string) (*Binding, bool) {
	for i := len(s.scopes) - 1; i >= 0; i-- {
		if b, ok := s.scopes[i][name]; ok {
			return b, true
		}
	}
	return nil, false
}

// String returns a deterministically ordered dump of the table, one
// section per scope with names sorted.
func (s *SymbolTable) String() string {
	var sb strings.Builder
	for level, scope := range s.scopes {
		fmt.Fprintf(&sb, "scope %d:\n", level)
		names := make([]string, 0, len(scope))
		for name := range scope {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b := scope[name]
			fmt.Fprintf(&sb, "  %-16s %s  global=%v varid=%d\n", name, b.Type, b.IsGlobal, b.VarID)
		}
	}
	return sb.String()
}

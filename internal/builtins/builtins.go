// Package builtins is the production built-in registry spec §4.6 describes:
// a bootstrap function that registers every native function a bare VM needs
// before it can run real programs, as globals under their Lisp-visible
// names. Grounded on the teacher's internal/evaluator/builtins*.go family —
// one file per concern (numeric.go, pairs.go, print.go, ...), each exposing
// a builtinsXxx() map merged together by Install — adapted from the
// teacher's map[string]*Builtin{Name, TypeInfo, Fn} shape (which carries a
// Hindley-Milner TypeInfo this core has no typechecker to consume) down to
// this core's simpler registered-id calling convention: every builtin is a
// vm.BuiltinFn, registered once and Def'd as a global.
package builtins

import (
	"github.com/funvibe/funxylisp/internal/value"
	vmpkg "github.com/funvibe/funxylisp/internal/vm"
)

// def interns name, registers fn as a builtin, and binds the two together
// as a global — the one piece of bookkeeping every builtins*.go file in
// this package needs, factored out so each concern file just lists names.
func def(vm *vmpkg.VM, name string, fn vmpkg.BuiltinFn) {
	id := vm.RegisterBuiltin(fn)
	sym := vm.Interner.Intern(name)
	vm.Globals.Def(uint32(sym), value.Builtin(id))
}

// Install registers every builtin this core ships against vm. A freshly
// constructed *vm.VM has none of these; programs run against a bare VM
// only see the handful of ad-hoc globals a test or embedder defines itself.
func Install(vm *vmpkg.VM) {
	installNumeric(vm)
	installPairs(vm)
	installPrint(vm)
	installCallCC(vm)
	installCollections(vm)
	installBytes(vm)
	installIO(vm)
	installSys(vm)
	installGensym(vm)
}

package builtins

import (
	"github.com/funvibe/funxylisp/internal/diagnostics"
	"github.com/funvibe/funxylisp/internal/value"
	vmpkg "github.com/funvibe/funxylisp/internal/vm"
)

// installCallCC registers `call/cc`, wired directly to the VM's own
// continuation capture/replay machinery (internal/vm/continuation.go)
// rather than reimplementing it here — the continuation this captures is
// one-shot and upward-only, per that file's documented design.
func installCallCC(vm *vmpkg.VM) {
	def(vm, "call/cc", builtinCallCC)
}

func builtinCallCC(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "call/cc takes exactly 1 argument")
	}
	k := vm.CaptureContinuation()
	return vm.CallSync(vm.Unref(args[0]), []value.Value{k})
}

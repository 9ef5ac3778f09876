package builtins

import (
	"github.com/google/uuid"

	"github.com/funvibe/funxylisp/internal/value"
	vmpkg "github.com/funvibe/funxylisp/internal/vm"
)

// installGensym registers `gensym`, the hygiene primitive a macro body
// calls to mint a fresh symbol name a user's own source text could never
// collide with — `__g-<uuid>`, backed by google/uuid the same way the
// analyzer's own template-expansion path would if it minted temporaries
// automatically (spec §6 DOMAIN STACK).
func installGensym(vm *vmpkg.VM) {
	def(vm, "gensym", builtinGensym)
}

func builtinGensym(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	id := vm.Interner.Intern("__g-" + uuid.NewString())
	return value.Symbol(id), nil
}

package builtins

import (
	"fmt"

	"github.com/funvibe/funxylisp/internal/printer"
	"github.com/funvibe/funxylisp/internal/value"
	vmpkg "github.com/funvibe/funxylisp/internal/vm"
)

// installPrint registers `pr`/`prn` (spec §6): pr writes each argument's
// display form to stdout with no trailing newline, prn adds one. Both
// build a fresh printer.Printer per call — printers are stateless views
// over a VM's heap/interner, cheap enough not to bother caching.
func installPrint(vm *vmpkg.VM) {
	def(vm, "pr", builtinPr)
	def(vm, "prn", builtinPrn)
}

func printArgs(vm *vmpkg.VM, args []value.Value) {
	p := printer.New(vm.Heap, vm.Interner)
	for i, a := range args {
		if i > 0 {
			fmt.Print(" ")
		}
		fmt.Print(p.Display(vm.Unref(a)))
	}
}

func builtinPr(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	printArgs(vm, args)
	return value.Nil, nil
}

func builtinPrn(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	printArgs(vm, args)
	fmt.Println()
	return value.Nil, nil
}

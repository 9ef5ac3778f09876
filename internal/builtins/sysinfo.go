package builtins

import (
	"runtime"

	"github.com/dustin/go-humanize"

	"github.com/funvibe/funxylisp/internal/value"
	vmpkg "github.com/funvibe/funxylisp/internal/vm"
)

// installSys registers `mem-info`, a diagnostic builtin reporting the
// VM's own heap occupancy alongside the process's Go runtime footprint,
// humanized the way go-humanize renders every other byte/count figure
// this core surfaces to a human (spec §6 DOMAIN STACK).
func installSys(vm *vmpkg.VM) {
	def(vm, "mem-info", builtinMemInfo)
}

func builtinMemInfo(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	report := "heap slots: " + humanize.Comma(int64(vm.Heap.Len())) +
		" (" + humanize.Comma(int64(vm.Heap.Live())) + " live), " +
		"globals: " + humanize.Comma(int64(vm.Globals.Len())) + ", " +
		"process rss: " + humanize.Bytes(ms.Sys) +
		", heap in use: " + humanize.Bytes(ms.HeapInuse)

	return value.String(vm.Heap, report), nil
}

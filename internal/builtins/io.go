package builtins

import (
	"bufio"
	"io"
	"os"

	"github.com/funvibe/funxylisp/internal/diagnostics"
	"github.com/funvibe/funxylisp/internal/value"
	vmpkg "github.com/funvibe/funxylisp/internal/vm"
)

// ioState is one state of the handle state machine spec §6 describes:
// a handle starts as a bare File, is promoted exactly once to either a
// BufReader or a BufWriter depending on the mode `open` was called with,
// and can only ever move forward to Closed — there is no transition back
// to File or between Reader and Writer short of calling `open` again for
// a fresh handle.
type ioState int

const (
	ioStateFile ioState = iota
	ioStateReader
	ioStateWriter
	ioStateClosed
)

// ioHandle is the heap object a KIOHandle Value points at. Never inspected
// by the VM core itself; only this file's builtins know its shape.
type ioHandle struct {
	state ioState
	path  string
	file  *os.File
	r     *bufio.Reader
	w     *bufio.Writer
}

// installIO registers `open`/`read-line`/`write`/`close`, guarding every
// operation against the handle's current state (spec §6 "any operation on
// a handle whose state doesn't support it is a VM error, not fatal").
func installIO(vm *vmpkg.VM) {
	def(vm, "open", builtinOpen)
	def(vm, "read-line", builtinReadLine)
	def(vm, "write", builtinWrite)
	def(vm, "close", builtinClose)
}

func asString(vm *vmpkg.VM, v value.Value) (string, error) {
	v = vm.Unref(v)
	switch v.Kind {
	case value.KString:
		obj, err := vm.Heap.Get(v.H)
		if err != nil {
			return "", err
		}
		return string(obj.(*value.StringObj).Data), nil
	default:
		return "", diagnostics.NewVM(diagnostics.ErrTypeMismatch, "expected a string")
	}
}

func asIOHandle(vm *vmpkg.VM, v value.Value) (*ioHandle, error) {
	v = vm.Unref(v)
	if v.Kind != value.KIOHandle {
		return nil, diagnostics.NewVM(diagnostics.ErrTypeMismatch, "expected an io handle")
	}
	obj, err := vm.Heap.Get(v.H)
	if err != nil {
		return nil, err
	}
	return obj.(*ioHandle), nil
}

// builtinOpen takes a path and a mode keyword (:read, :write, or :append)
// and returns a handle already promoted out of the File state: read mode
// wraps a BufReader, write/append wraps a BufWriter.
func builtinOpen(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "open takes exactly 2 arguments")
	}
	path, err := asString(vm, args[0])
	if err != nil {
		return value.Value{}, err
	}
	mode := vm.Unref(args[1])
	if mode.Kind != value.KKeyword {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, "open's mode must be a keyword")
	}
	modeName, _ := vm.Interner.Resolve(mode.Sym)

	h := &ioHandle{path: path, state: ioStateFile}
	switch modeName {
	case "read":
		f, err := os.Open(path)
		if err != nil {
			return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, err.Error())
		}
		h.file = f
		h.r = bufio.NewReader(f)
		h.state = ioStateReader
	case "write":
		f, err := os.Create(path)
		if err != nil {
			return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, err.Error())
		}
		h.file = f
		h.w = bufio.NewWriter(f)
		h.state = ioStateWriter
	case "append":
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, err.Error())
		}
		h.file = f
		h.w = bufio.NewWriter(f)
		h.state = ioStateWriter
	default:
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, "open's mode must be :read, :write, or :append")
	}
	return value.IOHandle(vm.Heap.Alloc(h)), nil
}

// builtinReadLine returns Nil at end-of-file rather than erroring — EOF is
// an ordinary outcome, not a VM error; only a handle in the wrong state is.
func builtinReadLine(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "read-line takes exactly 1 argument")
	}
	h, err := asIOHandle(vm, args[0])
	if err != nil {
		return value.Value{}, err
	}
	switch h.state {
	case ioStateClosed:
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, "read-line on a closed handle")
	case ioStateWriter:
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, "read-line on a handle opened for writing")
	case ioStateFile:
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, "read-line on a handle never promoted to a reader")
	}
	line, err := h.r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line == "" {
			return value.Nil, nil
		}
		if err != io.EOF {
			return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, err.Error())
		}
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return value.String(vm.Heap, line), nil
}

func builtinWrite(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "write takes exactly 2 arguments")
	}
	h, err := asIOHandle(vm, args[0])
	if err != nil {
		return value.Value{}, err
	}
	switch h.state {
	case ioStateClosed:
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, "write on a closed handle")
	case ioStateReader:
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, "write on a handle opened for reading")
	case ioStateFile:
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, "write on a handle never promoted to a writer")
	}
	s, err := asString(vm, args[1])
	if err != nil {
		return value.Value{}, err
	}
	if _, err := h.w.WriteString(s); err != nil {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, err.Error())
	}
	if err := h.w.Flush(); err != nil {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, err.Error())
	}
	return value.Nil, nil
}

func builtinClose(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "close takes exactly 1 argument")
	}
	h, err := asIOHandle(vm, args[0])
	if err != nil {
		return value.Value{}, err
	}
	if h.state == ioStateClosed {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, "close on an already-closed handle")
	}
	if h.w != nil {
		if err := h.w.Flush(); err != nil {
			return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, err.Error())
		}
	}
	if h.file != nil {
		if err := h.file.Close(); err != nil {
			return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, err.Error())
		}
	}
	h.state = ioStateClosed
	return value.Nil, nil
}

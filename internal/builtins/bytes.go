package builtins

import (
	"github.com/funvibe/funbit/pkg/funbit"

	"github.com/funvibe/funxylisp/internal/diagnostics"
	"github.com/funvibe/funxylisp/internal/value"
	vmpkg "github.com/funvibe/funxylisp/internal/vm"
)

// installBytes registers the Bytes-kind builtins, backed by funbit — the
// vendored Erlang-bitstring binary construction/matching library — rather
// than a hand-rolled byte-slice concatenation: bytes-concat builds through
// funbit.NewBuilder/AddBinary/Build the way a funbit caller assembles any
// multi-segment binary, and the UTF-8 codec and hex dump reuse funbit's
// own decode/encode/ToHexDump instead of reimplementing them.
func installBytes(vm *vmpkg.VM) {
	def(vm, "bytes-concat", builtinBytesConcat)
	def(vm, "bytes-decode-utf8", builtinBytesDecodeUTF8)
	def(vm, "bytes-encode-utf8", builtinBytesEncodeUTF8)
	def(vm, "bytes-hex", builtinBytesHex)
	def(vm, "bytes-len", builtinBytesLen)
}

func asBytes(vm *vmpkg.VM, v value.Value) ([]byte, error) {
	v = vm.Unref(v)
	if v.Kind != value.KBytes {
		return nil, diagnostics.NewVM(diagnostics.ErrTypeMismatch, "expected a bytes value")
	}
	obj, err := vm.Heap.Get(v.H)
	if err != nil {
		return nil, err
	}
	return obj.(*value.BytesObj).Data, nil
}

func builtinBytesConcat(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	b := funbit.NewBuilder()
	for _, a := range args {
		data, err := asBytes(vm, a)
		if err != nil {
			return value.Value{}, err
		}
		funbit.AddBinary(b, data)
	}
	bs, err := funbit.Build(b)
	if err != nil {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, err.Error())
	}
	return value.Bytes(vm.Heap, bs.ToBytes()), nil
}

func builtinBytesDecodeUTF8(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "bytes-decode-utf8 takes exactly 1 argument")
	}
	data, err := asBytes(vm, args[0])
	if err != nil {
		return value.Value{}, err
	}
	s, err := funbit.DecodeUTF8(data)
	if err != nil {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, err.Error())
	}
	return value.String(vm.Heap, s), nil
}

func builtinBytesEncodeUTF8(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "bytes-encode-utf8 takes exactly 1 argument")
	}
	v := vm.Unref(args[0])
	if v.Kind != value.KString {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, "expected a string")
	}
	obj, err := vm.Heap.Get(v.H)
	if err != nil {
		return value.Value{}, err
	}
	data, err := funbit.EncodeUTF8(string(obj.(*value.StringObj).Data))
	if err != nil {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrTypeMismatch, err.Error())
	}
	return value.Bytes(vm.Heap, data), nil
}

func builtinBytesHex(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "bytes-hex takes exactly 1 argument")
	}
	data, err := asBytes(vm, args[0])
	if err != nil {
		return value.Value{}, err
	}
	dump := funbit.ToHexDump(funbit.NewBitStringFromBytes(data))
	return value.String(vm.Heap, dump), nil
}

func builtinBytesLen(vm *vmpkg.VM, args []value.Value) (value.Value, error) {
	if len(args) != 1 {
		return value.Value{}, diagnostics.NewVM(diagnostics.ErrArityMismatch, "bytes-len takes exactly 1 argument")
	}
	data, err := asBytes(vm, args[0])
	if err != nil {
		return value.Value{}, err
	}
	return value.Int32(int32(len(data))), nil
}

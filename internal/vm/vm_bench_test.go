package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/funvibe/funxylisp/internal/value"
	vmpkg "github.com/funvibe/funxylisp/internal/vm"
)

// emitCmpJump hand-writes a WIDE-prefixed two-register compare-jump
// instruction (JMPLT/JMPGT/JMPEQ); see emitJumpEQ in vm_test.go for why
// chunk.go has no Emit helper for this shape. Returns the placeholder
// offset for PatchJump, which works the same regardless of which opcode
// wrote the displacement bytes.
func emitCmpJump(c *vmpkg.Chunk, op vmpkg.Opcode, aReg, bReg uint16, line int) int {
	c.Code = append(c.Code, byte(vmpkg.WIDE))
	c.Code = append(c.Code, byte(op))
	c.Code = append(c.Code, byte(aReg>>8), byte(aReg))
	c.Code = append(c.Code, byte(bReg>>8), byte(bReg))
	for i := 0; i < 6; i++ {
		c.Lines = append(c.Lines, line)
	}
	pos := len(c.Code)
	c.Code = append(c.Code, 0, 0)
	c.Lines = append(c.Lines, line, line)
	return pos
}

// TestEvalPolScenario hand-assembles the polynomial-evaluation benchmark
// from http://dan.corlan.net/bench.html, the same loop vm.rs::test_pol
// drives directly against the bytecode dispatch loop rather than through a
// reader/compiler pipeline — scenario E from spec §8:
//
//	(defn eval-pol (n x)
//	  (let ((su 0.0) (mu 10.0) (pu 0.0) (pol (make-vec 100 0.0)))
//	    (dotimes-i i n
//	      (do
//	        (set! su 0.0)
//	        (dotimes-i j 100
//	          (do (set! mu (/ (+ mu 2.0) 2.0)) (vec-set! pol j mu)))
//	        (dotimes-i j 100
//	          (set! su (+ (vec-nth pol j) (* su x))))
//	        (set! pu (+ pu su))))
//	    pu))
//
// with n=5000, x=0.2, asserting the known result 12500.0.
func TestEvalPolScenario(t *testing.T) {
	vm := vmpkg.New()
	c := vmpkg.NewChunk("eval-pol")

	n := c.AddConstant(value.Int32(5000))
	x := c.AddConstant(value.Float64(vm.Heap, 0.2))
	zerof := c.AddConstant(value.Float64(vm.Heap, 0.0))
	tenf := c.AddConstant(value.Float64(vm.Heap, 10.0))
	twof := c.AddConstant(value.Float64(vm.Heap, 2.0))
	zero := c.AddConstant(value.Int32(0))
	hundred := c.AddConstant(value.Int32(100))

	const line = 1

	// r1=n r2=x r3=su r4=mu r5=pu r6=i r7=j r8=2.0 r100=100 r10=pol
	c.Emit2(vmpkg.CONST, 1, uint16(n), line)
	c.Emit2(vmpkg.CONST, 2, uint16(x), line)
	c.Emit2(vmpkg.CONST, 4, uint16(tenf), line)
	c.Emit2(vmpkg.CONST, 5, uint16(zerof), line)
	c.Emit2(vmpkg.CONST, 6, uint16(zero), line)
	c.Emit2(vmpkg.CONST, 8, uint16(twof), line)
	c.Emit2(vmpkg.CONST, 100, uint16(hundred), line)
	c.Emit2(vmpkg.CONST, 103, uint16(zerof), line)
	c.Emit3(vmpkg.VECMKD, 10, 100, 103, line) // pol = (make-vec 100 0.0)

	// outer loop: while i < n
	outerTop := c.Len()
	c.Emit2(vmpkg.CONST, 3, uint16(zerof), line) // su = 0.0
	c.Emit2(vmpkg.CONST, 7, uint16(zero), line)  // j = 0

	// inner loop 1: while j < 100, mu = (mu + 2.0) / 2.0, pol[j] = mu
	inner1Top := c.Len()
	c.Emit3(vmpkg.ADD, 4, 4, 8, line)
	c.Emit3(vmpkg.DIV, 4, 4, 8, line)
	c.Emit3(vmpkg.VECSTH, 10, 7, 4, line)
	c.Emit2(vmpkg.INC, 7, 7, line)
	inner1Jump := emitCmpJump(c, vmpkg.JMPLT, 7, 100, line)
	c.PatchJump(inner1Jump, inner1Top)

	c.Emit2(vmpkg.CONST, 7, uint16(zero), line) // j = 0

	// inner loop 2: while j < 100, su = pol[j] + su*x
	inner2Top := c.Len()
	c.Emit3(vmpkg.MUL, 50, 3, 2, line)
	c.Emit3(vmpkg.VECNTH, 51, 10, 7, line)
	c.Emit3(vmpkg.ADD, 3, 51, 50, line)
	c.Emit2(vmpkg.INC, 7, 7, line)
	inner2Jump := emitCmpJump(c, vmpkg.JMPLT, 7, 100, line)
	c.PatchJump(inner2Jump, inner2Top)

	c.Emit3(vmpkg.ADD, 5, 5, 3, line) // pu += su
	c.Emit2(vmpkg.INC, 6, 6, line)    // i++
	outerJump := emitCmpJump(c, vmpkg.JMPLT, 6, 1, line)
	c.PatchJump(outerJump, outerTop)

	c.Emit2(vmpkg.MOV, 0, 5, line)
	c.EmitOp(vmpkg.RET, line)

	result, err := vm.Execute(c, nil)
	assert.NoError(t, err)
	f, err := result.GetFloat(vm.Heap)
	assert.NoError(t, err)
	assert.Equal(t, 12500.0, f)
}

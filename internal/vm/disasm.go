package vm

import (
	"fmt"
	"strings"

	"github.com/funvibe/funxylisp/internal/printer"
)

// Disassemble renders c's bytecode as one line per instruction: offset,
// mnemonic, and decoded operands, constants printed through p rather than
// as bare indices. Grounded on operandCounts (internal/vm/opcodes.go),
// the same table the dispatch loop doesn't need but a disassembler does,
// to know how many operand slots follow each opcode byte.
func Disassemble(c *Chunk, p *printer.Printer) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; %s (arity %d%s)\n", c.Source, c.Arity.Fixed, restSuffix(c.Arity.HasRest))

	ip := 0
	wide := false
	for ip < len(c.Code) {
		start := ip
		op := Opcode(c.Code[ip])
		ip++
		if op == WIDE {
			wide = true
			fmt.Fprintf(&sb, "%04d  WIDE\n", start)
			continue
		}

		count := 0
		if int(op) < len(operandCounts) {
			count = operandCounts[op]
		}
		operands := make([]uint16, count)
		for i := 0; i < count; i++ {
			if wide {
				if ip+1 >= len(c.Code) {
					break
				}
				hi, lo := c.Code[ip], c.Code[ip+1]
				operands[i] = uint16(hi)<<8 | uint16(lo)
				ip += 2
			} else {
				operands[i] = uint16(c.Code[ip])
				ip++
			}
		}
		wide = false

		fmt.Fprintf(&sb, "%04d  %-8s", start, op.String())
		for _, o := range operands {
			fmt.Fprintf(&sb, " %d", o)
		}
		if (op == CONST || op == REF || op == DEF || op == DEFV) && len(operands) >= 2 {
			idx := int(operands[1])
			if op == DEF || op == DEFV {
				idx = int(operands[0])
			}
			if idx < len(c.Constants) {
				fmt.Fprintf(&sb, "  ; %s", p.Write(c.Constants[idx]))
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func restSuffix(hasRest bool) string {
	if hasRest {
		return "+"
	}
	return ""
}

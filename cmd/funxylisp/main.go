// Command funxylisp is the CLI front end for the core: read a source file
// (or a REPL line), compile it with internal/analyzer, and run it on a
// bootstrapped internal/vm.VM. Grounded on the teacher's cmd/funxy/main.go
// argument-dispatch shape (os.Args[1] selects a subcommand, each subcommand
// is its own small function) with funxy's module/import pipeline stripped
// down to this core's single-file compile-and-run model.
package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/funvibe/funxylisp/internal/analyzer"
	"github.com/funvibe/funxylisp/internal/builtins"
	"github.com/funvibe/funxylisp/internal/chunkstore"
	"github.com/funvibe/funxylisp/internal/diagnostics"
	"github.com/funvibe/funxylisp/internal/printer"
	"github.com/funvibe/funxylisp/internal/reader"
	"github.com/funvibe/funxylisp/internal/value"
	vmpkg "github.com/funvibe/funxylisp/internal/vm"
)

// cacheDBPath is where the CLI's compiled-chunk cache lives. The path is
// relative, so the file is created in the current working directory.
const cacheDBPath = ".funxylisp-cache.db"

// loadChunk compiles src under path, first checking the on-disk chunk
// cache so an unchanged file skips analysis entirely on repeat CLI
// invocations (spec §6 DOMAIN STACK: sqlite-backed chunk cache).
func loadChunk(vm *vmpkg.VM, path, src string) (*vmpkg.Chunk, error) {
	store, err := chunkstore.Open(cacheDBPath)
	if err != nil {
		// Cache unavailable is not fatal: fall back to compiling directly.
		return compile(vm, path, src)
	}
	defer store.Close()

	hash := chunkstore.HashSource(src)
	if chunk, ok, err := store.Lookup(hash, vm.Heap); err == nil && ok {
		return chunk, nil
	}

	chunk, err := compile(vm, path, src)
	if err != nil {
		return nil, err
	}
	_ = store.Put(hash, path, chunk, vm.Heap)
	return chunk, nil
}

func compile(vm *vmpkg.VM, path, src string) (*vmpkg.Chunk, error) {
	r := reader.New(src, vm.Heap, vm.Interner)
	forms, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	c := analyzer.New(vm)
	return c.Compile(path, forms)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		if len(os.Args) < 3 {
			usage()
			os.Exit(1)
		}
		runFile(os.Args[2])
	case "dasm":
		if len(os.Args) < 3 {
			usage()
			os.Exit(1)
		}
		dasmFile(os.Args[2])
	case "repl":
		repl()
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s run <file> | dasm <file> | repl\n", os.Args[0])
}

// newVM builds a VM with the full production builtin registry installed —
// the bootstrap path spec §4.6 requires and that, before this file
// existed, nothing outside test fixtures ever called.
func newVM() *vmpkg.VM {
	vm := vmpkg.New()
	builtins.Install(vm)
	return vm
}

// isANSITerminal reports whether stderr is an interactive terminal, the
// go-isatty check that decides whether a printed backtrace gets ANSI
// highlighting or plain text (spec §6 DOMAIN STACK: CLI error rendering).
func isANSITerminal() bool {
	return isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
}

func printErr(err error) {
	msg := err.Error()
	if !isANSITerminal() {
		fmt.Fprintln(os.Stderr, msg)
		return
	}
	fmt.Fprintf(os.Stderr, "\x1b[31m%s\x1b[0m\n", msg)
}

func runFile(path string) {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	vm := newVM()
	chunk, err := loadChunk(vm, path, string(src))
	if err != nil {
		printErr(err)
		os.Exit(1)
	}

	if _, err := vm.Execute(chunk, nil); err != nil {
		printErr(err)
		os.Exit(1)
	}
}

func dasmFile(path string) {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	vm := newVM()
	chunk, err := loadChunk(vm, path, string(src))
	if err != nil {
		printErr(err)
		os.Exit(1)
	}

	p := printer.New(vm.Heap, vm.Interner)
	dasmChunk(vm, chunk, p, map[*vmpkg.Chunk]bool{})
}

// dasmChunk prints chunk's disassembly and recurses into any nested
// lambda/closure constants, so `dasm` shows a whole program's callables
// the way a reader would expect "disassemble this" to behave, not just
// the outermost top-level form.
func dasmChunk(vm *vmpkg.VM, chunk *vmpkg.Chunk, p *printer.Printer, seen map[*vmpkg.Chunk]bool) {
	if seen[chunk] {
		return
	}
	seen[chunk] = true
	fmt.Print(vmpkg.Disassemble(chunk, p))
	for _, k := range chunk.Constants {
		if k.Kind != value.KLambda && k.Kind != value.KClosure {
			continue
		}
		obj, err := vm.Heap.Get(k.H)
		if err != nil {
			continue
		}
		lam, ok := obj.(*value.LambdaObj)
		if !ok {
			continue
		}
		nested, ok := lam.Chunk.(*vmpkg.Chunk)
		if !ok {
			continue
		}
		fmt.Println()
		dasmChunk(vm, nested, p, seen)
	}
}

func repl() {
	vm := newVM()
	pr := printer.New(vm.Heap, vm.Interner)
	c := analyzer.New(vm)
	scanner := bufio.NewScanner(os.Stdin)

	interactive := isANSITerminal()
	for {
		if interactive {
			fmt.Print("funxylisp> ")
		}
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		if line == "" {
			continue
		}

		r := reader.New(line, vm.Heap, vm.Interner)
		forms, err := r.ReadAll()
		if err != nil {
			printErr(err)
			continue
		}

		chunk, err := c.Compile("<repl>", forms)
		if err != nil {
			printErr(err)
			continue
		}

		result, err := vm.Execute(chunk, nil)
		if err != nil {
			if d, ok := err.(*diagnostics.Diagnostic); ok {
				printErr(d)
			} else {
				printErr(err)
			}
			continue
		}
		fmt.Println(pr.Write(result))
	}
}

// Package config centralizes the VM's tunable constants, the same way the
// teacher's internal/config package centralizes source-extension and
// builtin-name tables rather than scattering magic numbers through the
// interpreter.
package config

const (
	// InitialStackSize is how many registers the VM pre-allocates before
	// its first grow. Matches the teacher lineage's sl-sh default of 1024.
	InitialStackSize = 1024

	// InitialInternerCapacity sizes the interner's backing storage so a
	// typical program's symbol set doesn't force repeated reallocation.
	InitialInternerCapacity = 8192

	// MaxRecursionDepth bounds host call-stack depth for recursive
	// bytecode calls that haven't (or can't) become tail calls, per
	// spec §5 "Cancellation & timeouts".
	MaxRecursionDepth = 500

	// SourceFileExt is the default extension the CLI looks for when
	// given a bare module name.
	SourceFileExt = ".lsp"
)

// SourceFileExtensions lists every extension the CLI treats as a source
// file, mirroring the teacher's SourceFileExtensions slice.
var SourceFileExtensions = []string{".lsp", ".scm", ".lisp"}

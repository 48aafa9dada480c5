//go:build linux && (amd64 || arm64)

// Package native performs the irreversible control transfer into a loaded
// program: it switches the active stack pointer and jumps to the entry
// address. The Go runtime is abandoned mid-flight; nothing here ever runs
// again for that invocation.
package native

// Transfer establishes sp as the active stack and jumps to entry. It does
// not return; the panic below turns any violation of that contract into a
// loud invariant failure instead of undefined behavior on a dead stack.
func Transfer(entry, sp uintptr) {
	transfer(entry, sp)
	panic("native: transfer returned")
}

func transfer(entry, sp uintptr)

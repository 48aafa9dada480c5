//go:build !linux || (!amd64 && !arm64)

package native

// Transfer is only implemented for linux on amd64 and arm64.
func Transfer(entry, sp uintptr) {
	panic("native: control transfer unsupported on this platform")
}

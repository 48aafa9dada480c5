package models

// Geometry is the validated layout extracted from an AURA header. Every
// instance satisfies the file-bounds invariants: both sections lie inside the
// file, the entry point lies inside text, and all sizes fit the host word.
type Geometry struct {
	Entry     uint64
	StackSize uint64
	TextOff   uint64
	TextSize  uint64
	DataOff   uint64
	DataSize  uint64

	// Declared by the format but not consumed by this loader. Kept so a
	// relocation/symbol stage can be added without a format break.
	BssSize     uint64
	RelocCount  uint64
	SymbolCount uint64
}

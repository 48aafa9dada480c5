package models

// LoadedImage is a program mapped into the current address space and ready
// to run. On success the mappings belong to the loaded program; nothing here
// is ever released.
type LoadedImage struct {
	Entry        uintptr
	StackPointer uintptr

	Text  []byte // text span at the base of the working region
	Data  []byte // fixed-address data region; nil when the image has no data
	Stack []byte

	Regions []Region
}

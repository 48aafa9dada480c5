package models

import "fmt"

const (
	PROT_READ  = 1
	PROT_WRITE = 2
	PROT_EXEC  = 4
)

// Region describes one live memory mapping belonging to a loaded image.
type Region struct {
	Addr, Size uint64
	Prot       int
	Desc       string
}

func (r *Region) Contains(addr uint64) bool {
	return r.Addr <= addr && addr < r.Addr+r.Size
}

func (r *Region) String() string {
	desc := fmt.Sprintf("0x%x-0x%x", r.Addr, r.Addr+r.Size)

	// add prot
	prots := []int{PROT_READ, PROT_WRITE, PROT_EXEC}
	chars := []string{"r", "w", "x"}
	prot := " "
	for i := range prots {
		if r.Prot&prots[i] != 0 {
			prot += chars[i]
		} else {
			prot += "-"
		}
	}
	desc += prot

	if r.Desc != "" {
		desc += fmt.Sprintf(" [%s]", r.Desc)
	}
	return desc
}

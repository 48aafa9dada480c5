// auradump prints the header and section contents of an AURA container.
package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/auravm/auraload/loader"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <program.aura>\n", os.Args[0])
		os.Exit(1)
	}
	if err := dump(os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func dump(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return err
	}
	geo, err := loader.Parse(f, fi.Size())
	if err != nil {
		return err
	}

	fmt.Printf("aura v%d executable\n", loader.Version)
	fmt.Printf("entry point: 0x%016x\n", geo.Entry)
	fmt.Printf("stack size:  %d\n", geo.StackSize)
	fmt.Printf("text:        offset %d, %d bytes\n", geo.TextOff, geo.TextSize)
	fmt.Printf("data:        offset %d, %d bytes\n", geo.DataOff, geo.DataSize)
	fmt.Printf("bss size:    %d\n", geo.BssSize)
	fmt.Printf("relocations: %d\n", geo.RelocCount)
	fmt.Printf("symbols:     %d\n", geo.SymbolCount)

	if err := dumpSection(f, "text", geo.TextOff, geo.TextSize); err != nil {
		return err
	}
	return dumpSection(f, "data", geo.DataOff, geo.DataSize)
}

func dumpSection(f *os.File, name string, off, size uint64) error {
	if size == 0 {
		return nil
	}
	fmt.Printf("\n%s section (%d bytes):\n", name, size)
	d := hex.Dumper(os.Stdout)
	defer d.Close()
	_, err := io.Copy(d, io.NewSectionReader(f, int64(off), int64(size)))
	return err
}

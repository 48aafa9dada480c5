package main

import (
	"fmt"
	"os"

	"github.com/auravm/auraload"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <program.aura>\n", os.Args[0])
		os.Exit(1)
	}
	// Run only comes back on failure; success jumps into the program.
	if err := auraload.NewLauncher(nil).Run(os.Args[1]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

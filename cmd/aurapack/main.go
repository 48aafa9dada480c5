// aurapack wraps a flat text binary (and optional data blob) into an AURA
// container runnable by auraload.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/auravm/auraload/loader"
)

func main() {
	fs := flag.NewFlagSet("aurapack", flag.ExitOnError)
	text := fs.String("text", "", "flat binary to use as the text section (required)")
	data := fs.String("data", "", "initial data section, mapped at the fixed data address")
	entry := fs.Uint64("entry", 0, "entry point offset within text")
	stack := fs.Uint64("stack", loader.DefaultStackSize, "stack size in bytes")
	bss := fs.Uint64("bss", 0, "declared zero-initialized size")
	out := fs.String("o", "a.aura", "output file")
	fs.Parse(os.Args[1:])

	if *text == "" {
		fs.Usage()
		os.Exit(1)
	}

	obj := &loader.Object{
		Entry:     *entry,
		StackSize: *stack,
		BssSize:   *bss,
	}
	var err error
	if obj.Text, err = os.ReadFile(*text); err != nil {
		die(err)
	}
	if *data != "" {
		if obj.Data, err = os.ReadFile(*data); err != nil {
			die(err)
		}
	}
	if err := loader.WriteFile(*out, obj); err != nil {
		die(err)
	}
}

func die(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	os.Exit(1)
}

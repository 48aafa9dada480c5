// Package auraload loads and launches AURA executables without the host's
// executable loader: no ELF interpreter, no dynamic linker. The format is a
// flat container with one text section, one data section duplicated at a
// fixed virtual address (image.DataBase), and a private stack. See loader
// for the format, image for the address-space layout, native for the final
// jump.
package auraload

import (
	"fmt"
	"os"
	"runtime"

	"github.com/pkg/errors"

	"github.com/auravm/auraload/image"
	"github.com/auravm/auraload/loader"
	"github.com/auravm/auraload/models"
	"github.com/auravm/auraload/native"
)

// Launcher runs a single AURA image in the current process. One Launcher
// loads one image on one thread of control; there is no unload and no
// re-entrant use.
type Launcher struct {
	config *models.Config

	// Handoff receives the entry address and prepared stack pointer and
	// must not return. Defaults to native.Transfer; tests substitute it.
	Handoff func(entry, sp uintptr)
}

func NewLauncher(config *models.Config) *Launcher {
	return &Launcher{
		config:  config.Init(),
		Handoff: native.Transfer,
	}
}

// Run loads path and transfers control to it. On success it never returns:
// the process belongs to the loaded program from that point on. Every error
// path has already released all mappings and the file by the time the error
// is reported; none of these failures is transient, so nothing is retried.
func (l *Launcher) Run(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "cannot open file")
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return errors.Wrap(err, "cannot get file size")
	}
	geo, err := loader.Parse(f, fi.Size())
	if err != nil {
		f.Close()
		return err
	}
	img, err := image.NewBuilder().Build(f, geo) // Build closes f
	if err != nil {
		return err
	}
	if l.config.Verbose {
		for i := range img.Regions {
			fmt.Fprintln(l.config.Output, &img.Regions[i])
		}
		fmt.Fprintf(l.config.Output, "[entry point @ 0x%x]\n", img.Entry)
	}
	runtime.LockOSThread()
	l.Handoff(img.Entry, img.StackPointer)
	panic("auraload: handoff returned")
}

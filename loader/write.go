package loader

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

// DefaultStackSize matches what the aurac toolchain reserves when a program
// does not ask for more.
const DefaultStackSize = 4096

// sections are padded to this boundary in the file
const sectionAlign = 16

// Object is a program image about to be packed into an AURA container.
type Object struct {
	Entry     uint64
	StackSize uint64
	BssSize   uint64
	Text      []byte
	Data      []byte
}

// Pack writes o as a version-1 AURA image: header, then text at offset
// HeaderSize, then data at the next 16-byte boundary, both zero-padded.
func (o *Object) Pack(w io.Writer) error {
	stack := o.StackSize
	if stack == 0 {
		stack = DefaultStackSize
	}
	hdr := &auraHeader{
		Version:   Version,
		Entry:     o.Entry,
		StackSize: stack,
		TextOff:   HeaderSize,
		TextSize:  uint64(len(o.Text)),
		DataOff:   HeaderSize + alignTo(uint64(len(o.Text)), sectionAlign),
		DataSize:  uint64(len(o.Data)),
		BssSize:   o.BssSize,
	}
	copy(hdr.Magic[:], auraMagic)
	if err := struc.PackWithOrder(w, hdr, binary.LittleEndian); err != nil {
		return errors.Wrap(err, "cannot pack header")
	}
	if err := writePadded(w, o.Text); err != nil {
		return errors.Wrap(err, "cannot write text section")
	}
	if err := writePadded(w, o.Data); err != nil {
		return errors.Wrap(err, "cannot write data section")
	}
	return nil
}

// WriteFile packs o to a fresh file at path with the execute bit set.
func WriteFile(path string, o *Object) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0755)
	if err != nil {
		return errors.Wrapf(err, "cannot create %s", path)
	}
	if err := o.Pack(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writePadded(w io.Writer, p []byte) error {
	if _, err := w.Write(p); err != nil {
		return err
	}
	if pad := alignTo(uint64(len(p)), sectionAlign) - uint64(len(p)); pad > 0 {
		if _, err := w.Write(make([]byte, pad)); err != nil {
			return err
		}
	}
	return nil
}

func alignTo(n, align uint64) uint64 {
	return (n + align - 1) / align * align
}

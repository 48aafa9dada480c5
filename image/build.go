// Package image constructs a runnable address space from validated AURA
// geometry: a contiguous read/write/execute working region holding text and
// data, a second copy of the data at a fixed virtual address, and a stack.
package image

import (
	"fmt"
	"io"
	"math"
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/auravm/auraload/models"
)

// DataBase is the virtual address of the fixed data region. It is part of
// the version-1 format contract: programs built for AURA address their data
// here, and changing it breaks every existing image.
const DataBase = 0x1000000

var (
	ErrAllocation = errors.New("cannot allocate memory")
	ErrFixedMap   = errors.New("cannot map data at fixed address")
)

// SectionError reports a short or failed read of a file section.
type SectionError struct {
	Section   string
	Off, Size uint64
	Err       error
}

func (e *SectionError) Error() string {
	return fmt.Sprintf("cannot read %s section (%d bytes at offset %d): %s", e.Section, e.Size, e.Off, e.Err)
}

func (e *SectionError) Unwrap() error { return e.Err }

// Builder maps one AURA image into the current address space. Mappings are
// tracked in map order and released in reverse on any failure; the success
// path leaks every region on purpose, as the loaded program owns them from
// then on. A Builder is good for one Build.
type Builder struct {
	pageSize uint64
	mapped   [][]byte
	regions  []models.Region
}

func NewBuilder() *Builder {
	return &Builder{pageSize: uint64(os.Getpagesize())}
}

// Build maps the working, fixed-data and stack regions for geo and stages
// the section bytes from f. It takes ownership of f and closes it on every
// path; loading does no file I/O after Build returns.
func (b *Builder) Build(f *os.File, geo *models.Geometry) (*models.LoadedImage, error) {
	defer f.Close()
	img, err := b.build(f, geo)
	if err != nil {
		b.unwind()
		return nil, err
	}
	return img, nil
}

func (b *Builder) build(f *os.File, geo *models.Geometry) (*models.LoadedImage, error) {
	// one page of slack keeps alignment headroom past text+data
	total, ok := addSizes(geo.TextSize, geo.DataSize, b.pageSize)
	if !ok {
		return nil, errors.Wrapf(ErrAllocation, "text+data size %d+%d overflows", geo.TextSize, geo.DataSize)
	}
	working, err := b.mapAnon(int(total), unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC, "text+data")
	if err != nil {
		return nil, errors.Wrapf(ErrAllocation, "%d byte working region: %s", total, err)
	}
	// mmap returns page-aligned zeroed memory, so text sits at the base and
	// data immediately after it. Keeping them in one reservation guarantees
	// their relative offsets survive wherever the kernel places the region.
	text := working[:geo.TextSize]
	data := working[geo.TextSize : geo.TextSize+geo.DataSize]

	if err := readSection(f, "text", text, geo.TextOff); err != nil {
		return nil, err
	}
	if geo.DataSize > 0 {
		if err := readSection(f, "data", data, geo.DataOff); err != nil {
			return nil, err
		}
	}

	// Programs address their data through DataBase, not the working copy, so
	// the staged bytes are duplicated there. No data, no fixed mapping.
	var fixed []byte
	if geo.DataSize > 0 {
		fixed, err = b.mapFixed(DataBase, int(geo.DataSize+b.pageSize), unix.PROT_READ|unix.PROT_WRITE, "data")
		if err != nil {
			return nil, errors.Wrapf(ErrFixedMap, "0x%x: %s", uint64(DataBase), err)
		}
		copy(fixed, data)
	}

	stackTotal, ok := addSizes(geo.StackSize, b.pageSize, 0)
	if !ok {
		return nil, errors.Wrapf(ErrAllocation, "stack size %d overflows", geo.StackSize)
	}
	stack, err := b.mapAnon(int(stackTotal), unix.PROT_READ|unix.PROT_WRITE, "stack")
	if err != nil {
		return nil, errors.Wrapf(ErrAllocation, "%d byte stack: %s", stackTotal, err)
	}

	// stacks grow down: start at the top, 16-byte aligned
	sp := uintptr(unsafe.Pointer(&stack[0])) + uintptr(geo.StackSize)
	sp &^= 15

	return &models.LoadedImage{
		Entry:        uintptr(unsafe.Pointer(&working[0])) + uintptr(geo.Entry),
		StackPointer: sp,
		Text:         text,
		Data:         fixed,
		Stack:        stack,
		Regions:      b.regions,
	}, nil
}

func (b *Builder) mapAnon(length, prot int, desc string) ([]byte, error) {
	mem, err := mmapAnon(length, prot)
	if err != nil {
		return nil, err
	}
	b.track(mem, prot, desc)
	return mem, nil
}

func (b *Builder) mapFixed(addr uintptr, length, prot int, desc string) ([]byte, error) {
	mem, err := mmapFixedAnon(addr, length, prot)
	if err != nil {
		return nil, err
	}
	b.track(mem, prot, desc)
	return mem, nil
}

func (b *Builder) track(mem []byte, prot int, desc string) {
	b.mapped = append(b.mapped, mem)
	b.regions = append(b.regions, models.Region{
		Addr: uint64(uintptr(unsafe.Pointer(&mem[0]))),
		Size: uint64(len(mem)),
		Prot: prot,
		Desc: desc,
	})
}

// unwind releases every region mapped so far, newest first.
func (b *Builder) unwind() {
	for i := len(b.mapped) - 1; i >= 0; i-- {
		mustMunmap(b.mapped[i])
	}
	b.mapped = nil
	b.regions = nil
}

// readSection preads exactly len(dst) bytes at off. A short read is
// surfaced, never zero-filled: geometry was validated against the file size,
// so coming up short means the file changed underneath us.
func readSection(f *os.File, name string, dst []byte, off uint64) error {
	if len(dst) == 0 {
		return nil
	}
	if n, err := f.ReadAt(dst, int64(off)); n < len(dst) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return &SectionError{Section: name, Off: off, Size: uint64(len(dst)), Err: err}
	}
	return nil
}

// addSizes sums up to three sizes, reporting overflow of uint64 or of the
// host int so the sum is always a safe mmap length.
func addSizes(a, b, c uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	if sum+c < sum {
		return 0, false
	}
	sum += c
	if sum > math.MaxInt {
		return 0, false
	}
	return sum, true
}

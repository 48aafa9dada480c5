package image

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func mmapAnon(length, prot int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, length, prot, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, errors.Wrap(err, "mmap")
	}
	return b, nil
}

// mmapFixedAnon demands the exact address. MAP_FIXED_NOREPLACE fails with
// EEXIST on collision instead of clobbering whatever already lives there;
// kernels predating the flag treat it as a hint, so the result address is
// verified as well.
func mmapFixedAnon(addr uintptr, length, prot int) ([]byte, error) {
	p, _, errno := unix.Syscall6(unix.SYS_MMAP,
		addr, uintptr(length), uintptr(prot),
		uintptr(unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_FIXED_NOREPLACE),
		^uintptr(0), 0)
	if errno != 0 {
		return nil, errors.Wrap(errno, "mmap")
	}
	if p != addr {
		unix.Syscall(unix.SYS_MUNMAP, p, uintptr(length), 0)
		return nil, errors.Errorf("mmap: wanted 0x%x, kernel placed 0x%x", addr, p)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), length), nil
}

// mustMunmap releases a region via the raw syscall: regions mapped by
// mmapFixedAnon bypass unix.Mmap's slice bookkeeping, so unix.Munmap would
// reject them with EINVAL.
func mustMunmap(b []byte) {
	if _, _, errno := unix.Syscall(unix.SYS_MUNMAP,
		uintptr(unsafe.Pointer(&b[0])), uintptr(len(b)), 0); errno != 0 {
		panic(errors.Wrap(errno, "munmap"))
	}
}

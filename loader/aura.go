// Package loader parses and emits the AURA container format: an 80-byte
// little-endian header followed by one text and one data section located by
// absolute file offsets. The header layout is a versioned contract with the
// aurac toolchain.
package loader

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/auravm/auraload/models"
)

// HeaderSize is the exact on-disk header length. Multi-byte fields are
// little-endian with no padding between them.
const HeaderSize = 80

// Version is the only format revision this loader accepts. Later revisions
// are rejected outright, never best-effort parsed.
const Version = 1

var auraMagic = []byte{'A', 'U', 'R', 'A'}

var (
	ErrTruncatedHeader    = errors.New("truncated header")
	ErrBadMagic           = errors.New("bad magic")
	ErrUnsupportedVersion = errors.New("unsupported version")
	ErrInvalidGeometry    = errors.New("invalid geometry")
)

type auraHeader struct {
	Magic       [4]byte
	Version     uint8
	Flags       uint8
	Reserved    uint16
	Entry       uint64
	StackSize   uint64
	TextOff     uint64
	TextSize    uint64
	DataOff     uint64
	DataSize    uint64
	BssSize     uint64
	RelocCount  uint64
	SymbolCount uint64
}

func getMagic(r io.ReaderAt) []byte {
	ret := make([]byte, 4)
	r.ReadAt(ret, 0)
	return ret
}

func MatchAura(r io.ReaderAt) bool {
	return bytes.Equal(getMagic(r), auraMagic)
}

// Parse reads the fixed-size header at offset 0 and validates it against
// fileSize. Reads are absolute-offset only, so the handle's position is
// neither consulted nor changed. The returned Geometry is safe to act on:
// every size and offset has been bounds- and overflow-checked.
func Parse(r io.ReaderAt, fileSize int64) (*models.Geometry, error) {
	buf := make([]byte, HeaderSize)
	n, err := r.ReadAt(buf, 0)
	if n < HeaderSize {
		if err == nil || err == io.EOF {
			return nil, errors.Wrapf(ErrTruncatedHeader, "%d of %d bytes", n, HeaderSize)
		}
		return nil, errors.Wrap(err, "cannot read header")
	}
	var hdr auraHeader
	if err := struc.UnpackWithOrder(bytes.NewReader(buf), &hdr, binary.LittleEndian); err != nil {
		return nil, errors.Wrap(err, "cannot unpack header")
	}
	if !bytes.Equal(hdr.Magic[:], auraMagic) {
		return nil, errors.Wrapf(ErrBadMagic, "%q", hdr.Magic[:])
	}
	if hdr.Version != Version {
		return nil, errors.Wrapf(ErrUnsupportedVersion, "version %d", hdr.Version)
	}
	if err := hdr.validate(uint64(fileSize)); err != nil {
		return nil, err
	}
	return &models.Geometry{
		Entry:       hdr.Entry,
		StackSize:   hdr.StackSize,
		TextOff:     hdr.TextOff,
		TextSize:    hdr.TextSize,
		DataOff:     hdr.DataOff,
		DataSize:    hdr.DataSize,
		BssSize:     hdr.BssSize,
		RelocCount:  hdr.RelocCount,
		SymbolCount: hdr.SymbolCount,
	}, nil
}

// validate enforces the geometry invariants. Header fields are attacker
// controlled; nothing past this point may assume a size or offset is sane
// unless it is checked here.
func (h *auraHeader) validate(fileSize uint64) error {
	if err := checkBounds("text", h.TextOff, h.TextSize, fileSize); err != nil {
		return err
	}
	if err := checkBounds("data", h.DataOff, h.DataSize, fileSize); err != nil {
		return err
	}
	if h.Entry >= h.TextSize {
		return errors.Wrapf(ErrInvalidGeometry, "entry point 0x%x outside text (%d bytes)", h.Entry, h.TextSize)
	}
	if sum := h.TextSize + h.DataSize; sum < h.TextSize || sum > math.MaxInt {
		return errors.Wrapf(ErrInvalidGeometry, "text+data size %d+%d overflows", h.TextSize, h.DataSize)
	}
	if h.StackSize > math.MaxInt {
		return errors.Wrapf(ErrInvalidGeometry, "stack size %d overflows", h.StackSize)
	}
	return nil
}

func checkBounds(section string, off, size, fileSize uint64) error {
	end := off + size
	if end < off || end > fileSize {
		return errors.Wrapf(ErrInvalidGeometry, "%s section %d+%d exceeds file size %d", section, off, size, fileSize)
	}
	return nil
}

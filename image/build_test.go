package image

import (
	"bufio"
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/auravm/auraload/loader"
	"github.com/auravm/auraload/models"
)

func writeImage(t *testing.T, obj *loader.Object) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prog.aura")
	if err := loader.WriteFile(path, obj); err != nil {
		t.Fatal(err)
	}
	return path
}

func buildImage(t *testing.T, path string) (*models.LoadedImage, error) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	fi, err := f.Stat()
	if err != nil {
		t.Fatal(err)
	}
	geo, err := loader.Parse(f, fi.Size())
	if err != nil {
		t.Fatal(err)
	}
	return NewBuilder().Build(f, geo)
}

// fixedMapped reports whether a mapping currently starts at DataBase.
// Success-path builds leak that mapping for the lifetime of the test
// process, so order-sensitive tests check it before acting.
func fixedMapped(t *testing.T) bool {
	t.Helper()
	f, err := os.Open("/proc/self/maps")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	s := bufio.NewScanner(f)
	for s.Scan() {
		start := strings.SplitN(s.Text(), "-", 2)[0]
		if addr, err := strconv.ParseUint(start, 16, 64); err == nil && addr == DataBase {
			return true
		}
	}
	return false
}

func TestBuildTextOnly(t *testing.T) {
	hadFixed := fixedMapped(t)
	path := writeImage(t, &loader.Object{
		StackSize: 0x10000,
		Text:      bytes.Repeat([]byte{0xf4}, 4096),
	})
	img, err := buildImage(t, path)
	if err != nil {
		t.Fatal(err)
	}
	if img.Entry != uintptr(unsafe.Pointer(&img.Text[0])) {
		t.Fatalf("entry 0x%x is not the text base", img.Entry)
	}
	if img.Data != nil {
		t.Fatal("image without data got a fixed data region")
	}
	if !hadFixed && fixedMapped(t) {
		t.Fatal("fixed data mapping appeared for a data-less image")
	}
	if img.StackPointer%16 != 0 {
		t.Fatalf("stack pointer 0x%x not 16-byte aligned", img.StackPointer)
	}
	want := uintptr(unsafe.Pointer(&img.Stack[0])) + 0x10000
	if img.StackPointer != want&^15 {
		t.Fatalf("stack pointer 0x%x, want 0x%x", img.StackPointer, want&^15)
	}
	if len(img.Regions) != 2 {
		t.Fatalf("expected working+stack regions, got %d", len(img.Regions))
	}
}

func TestBuildEntryOffset(t *testing.T) {
	path := writeImage(t, &loader.Object{
		Entry: 0x40,
		Text:  bytes.Repeat([]byte{0x90}, 256),
	})
	img, err := buildImage(t, path)
	if err != nil {
		t.Fatal(err)
	}
	if img.Entry != uintptr(unsafe.Pointer(&img.Text[0]))+0x40 {
		t.Fatalf("entry 0x%x, want text base + 0x40", img.Entry)
	}
}

func TestBuildRollbackReleasesFixedMapping(t *testing.T) {
	if fixedMapped(t) {
		t.Skip("fixed data address already occupied by an earlier test")
	}
	// a stack no host can map forces a failure after the fixed region exists
	path := writeImage(t, &loader.Object{
		StackSize: 1 << 61,
		Text:      bytes.Repeat([]byte{0xf4}, 64),
		Data:      bytes.Repeat([]byte{0x55}, 64),
	})
	_, err := buildImage(t, path)
	if errors.Cause(err) != ErrAllocation {
		t.Fatalf("expected allocation failure, got %v", err)
	}
	if fixedMapped(t) {
		t.Fatal("fixed data mapping leaked across a failed build")
	}
}

func TestBuildDataRoundTrip(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i * 7)
	}
	path := writeImage(t, &loader.Object{
		StackSize: 0x10000,
		Text:      bytes.Repeat([]byte{0xf4}, 4096),
		Data:      data,
	})
	img, err := buildImage(t, path)
	if err != nil {
		t.Fatal(err)
	}
	if got := uintptr(unsafe.Pointer(&img.Data[0])); got != DataBase {
		t.Fatalf("data region at 0x%x, want 0x%x", got, uintptr(DataBase))
	}
	if !bytes.Equal(img.Data[:len(data)], data) {
		t.Fatal("fixed data region does not hold the section bytes")
	}
	if !bytes.Equal(img.Text, bytes.Repeat([]byte{0xf4}, 4096)) {
		t.Fatal("text region does not hold the section bytes")
	}
	if len(img.Regions) != 3 {
		t.Fatalf("expected working+data+stack regions, got %d", len(img.Regions))
	}
}

func TestBuildFixedAddressCollision(t *testing.T) {
	if !fixedMapped(t) {
		// claim the address ourselves if no prior build leaked it
		mem, err := mmapFixedAnon(DataBase, os.Getpagesize(), models.PROT_READ|models.PROT_WRITE)
		if err != nil {
			t.Fatal(err)
		}
		defer mustMunmap(mem)
	}
	path := writeImage(t, &loader.Object{
		Text: bytes.Repeat([]byte{0xf4}, 64),
		Data: bytes.Repeat([]byte{0x55}, 64),
	})
	_, err := buildImage(t, path)
	if errors.Cause(err) != ErrFixedMap {
		t.Fatalf("expected fixed-map failure, got %v", err)
	}
}

func TestBuildShortSectionRead(t *testing.T) {
	// shrink the file between validation and section staging: the read must
	// fail loudly, never zero-fill
	path := writeImage(t, &loader.Object{
		Text: bytes.Repeat([]byte{0xf4}, 4096),
	})
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	fi, err := f.Stat()
	if err != nil {
		t.Fatal(err)
	}
	geo, err := loader.Parse(f, fi.Size())
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(path, loader.HeaderSize); err != nil {
		t.Fatal(err)
	}
	_, err = NewBuilder().Build(f, geo)
	var serr *SectionError
	if !errors.As(err, &serr) {
		t.Fatalf("expected a section error, got %v", err)
	}
	if serr.Section != "text" {
		t.Fatalf("wrong section named: %s", serr.Section)
	}
}

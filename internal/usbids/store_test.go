package usbids

import (
	"path/filepath"
	"strings"
	"testing"
)

const sampleIDs = `# usb.ids sample
#
0781  SanDisk Corp.
	5567  Cruzer Blade
	5583  Ultra Fit
1d6b  Linux Foundation
	0002  2.0 root hub

# List of known device classes
C 00  (Defined at Interface level)
C 08  Mass Storage
`

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "usbids.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestImportAndLookup(t *testing.T) {
	s := openTestStore(t)

	n, err := s.Import(strings.NewReader(sampleIDs))
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	// 2 vendors + 3 products; the class section is not imported
	if n != 5 {
		t.Errorf("imported %d entries, want 5", n)
	}

	vendor, product, ok := s.Lookup(0x0781, 0x5567)
	if !ok || vendor != "SanDisk Corp." || product != "Cruzer Blade" {
		t.Errorf("Lookup = %q/%q/%v", vendor, product, ok)
	}

	// known vendor, unknown product: vendor still resolves
	vendor, product, ok = s.Lookup(0x1d6b, 0x9999)
	if !ok || vendor != "Linux Foundation" || product != "" {
		t.Errorf("Lookup = %q/%q/%v", vendor, product, ok)
	}

	if _, _, ok := s.Lookup(0xdead, 0xbeef); ok {
		t.Error("unknown vendor should not resolve")
	}
}

func TestImportIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Import(strings.NewReader(sampleIDs)); err != nil {
		t.Fatalf("first import: %v", err)
	}
	if _, err := s.Import(strings.NewReader(sampleIDs)); err != nil {
		t.Fatalf("re-import: %v", err)
	}
	vendor, _, ok := s.Lookup(0x0781, 0x5583)
	if !ok || vendor != "SanDisk Corp." {
		t.Errorf("Lookup after re-import = %q/%v", vendor, ok)
	}
}

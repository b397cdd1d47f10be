package sysfs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Hara602/usbTop/internal/model"
)

func writeDevice(t *testing.T, root, name string, attrs map[string]string) {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	for file, content := range attrs {
		if err := os.WriteFile(filepath.Join(dir, file), []byte(content+"\n"), 0644); err != nil {
			t.Fatalf("write %s: %v", file, err)
		}
	}
}

type fakeNames struct{}

func (fakeNames) Lookup(vid, pid uint16) (string, string, bool) {
	if vid == 0x0781 {
		return "SanDisk Corp.", "Cruzer Blade", true
	}
	return "", "", false
}

func newTestRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeDevice(t, root, "usb1", map[string]string{
		"busnum": "1", "devnum": "1", "speed": "480",
	})
	writeDevice(t, root, "1-1", map[string]string{
		"busnum":          "1",
		"devnum":          "5",
		"speed":           "12",
		"idVendor":        "0781",
		"idProduct":       "5567",
		"serial":          "4C5300",
		"bcdDevice":       "0210",
		"bMaxPacketSize0": "64",
	})
	// interface directories must be ignored
	writeDevice(t, root, "1-1:1.0", map[string]string{"bInterfaceClass": "08"})
	return root
}

func TestBusSpeed(t *testing.T) {
	s := NewSourceRoot(newTestRoot(t), nil)
	if got := s.BusSpeed(1); got != model.SpeedHigh {
		t.Errorf("bus speed = %v, want High", got)
	}
	if got := s.BusSpeed(9); got != model.SpeedUnknown {
		t.Errorf("missing bus should be Unknown, got %v", got)
	}
}

func TestDevicePatch(t *testing.T) {
	s := NewSourceRoot(newTestRoot(t), fakeNames{})

	p := s.DevicePatch(1, 5)
	if p == nil {
		t.Fatal("patch should be found via busnum/devnum")
	}
	if p.Speed == nil || *p.Speed != model.SpeedFull {
		t.Errorf("speed = %v, want Full", p.Speed)
	}
	if p.VendorID == nil || *p.VendorID != 0x0781 {
		t.Errorf("vendor id = %v", p.VendorID)
	}
	if p.Serial == nil || *p.Serial != "4C5300" {
		t.Errorf("serial = %v", p.Serial)
	}
	// bcdDevice 0x0210 is below 0x0300, bMaxPacketSize0 64 hints High
	if p.Capability == nil || *p.Capability != model.SpeedHigh {
		t.Errorf("capability = %v, want High", p.Capability)
	}
	// sysfs had no manufacturer/product strings, usb.ids fills them in
	if p.Vendor == nil || *p.Vendor != "SanDisk Corp." {
		t.Errorf("vendor = %v", p.Vendor)
	}
	if p.Product == nil || *p.Product != "Cruzer Blade" {
		t.Errorf("product = %v", p.Product)
	}
}

func TestDevicePatchMissingDevice(t *testing.T) {
	s := NewSourceRoot(newTestRoot(t), nil)
	if p := s.DevicePatch(1, 99); p != nil {
		t.Errorf("unknown devnum should yield nil, got %+v", p)
	}
}

func TestCapabilityHintModernDevice(t *testing.T) {
	root := t.TempDir()
	writeDevice(t, root, "2-3", map[string]string{
		"busnum": "2", "devnum": "3", "bcdDevice": "0310",
	})
	s := NewSourceRoot(root, nil)
	p := s.DevicePatch(2, 3)
	if p == nil || p.Capability == nil || *p.Capability != model.SpeedSuper {
		t.Errorf("bcdDevice >= 0x0300 should hint SuperSpeed, got %+v", p)
	}
}

func TestEnumerate(t *testing.T) {
	s := NewSourceRoot(newTestRoot(t), nil)
	patches := s.Enumerate()
	if len(patches) != 2 {
		t.Fatalf("enumerated %d devices, want 2 (root hub + device)", len(patches))
	}
	seen := map[uint8]bool{}
	for _, p := range patches {
		if p.BusID != 1 {
			t.Errorf("bus = %d, want 1", p.BusID)
		}
		seen[p.DeviceID] = true
	}
	if !seen[1] || !seen[5] {
		t.Errorf("missing devices, saw %v", seen)
	}
}

package device

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/PiSCSI/piscsi-sub003/scsi"
)

func TestValidateFileRejectsZeroBlockCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.img")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ValidateFile(path, 512); err == nil {
		t.Fatalf("expected zero-byte file to fail validation")
	}
}

func TestValidateFileRejectsPartialSector(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.img")
	if err := os.WriteFile(path, make([]byte, 700), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ValidateFile(path, 512); err == nil {
		t.Fatalf("expected non-multiple-of-sector-size file to fail validation")
	}
}

func TestValidateFileAcceptsWholeSectors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ok.img")
	if err := os.WriteFile(path, make([]byte, 512*4), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	size, err := ValidateFile(path, 512)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if size != 512*4 {
		t.Fatalf("want size %d, got %d", 512*4, size)
	}
}

func newTestDisk(t *testing.T) (*Disk, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.img")
	if err := os.WriteFile(path, make([]byte, 512*10), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	d := NewDisk(0, Identity{Vendor: "TEST", Product: "DISK", Revision: "1.0"}, NewReservationTable(), 512)
	return d, path
}

func TestOpenRaisesUnitAttention(t *testing.T) {
	d, path := newTestDisk(t)
	if err := d.Open(path, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	resp, _, err := d.testUnitReady()
	if err == nil {
		t.Fatalf("expected UNIT ATTENTION to be pending after Open")
	}
	_ = resp
}

func TestEjectDoesNotRaiseUnitAttention(t *testing.T) {
	d, path := newTestDisk(t)
	if err := d.Open(path, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	// Drain the attention raised by Open.
	d.testUnitReady()

	if !d.Eject(true) {
		t.Fatalf("expected Eject to succeed")
	}
	_, _, err := d.testUnitReady()
	fault, ok := err.(*scsi.ScsiFault)
	if !ok || fault.SenseKey != scsi.SenseNotReady || fault.Asc != scsi.AscMediumNotPresent {
		t.Fatalf("expected NOT READY/MEDIUM NOT PRESENT and no UNIT ATTENTION after Eject, got %v", err)
	}
}

func TestPermissionDeniedFallbackClearsProtectable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ro.img")
	if err := os.WriteFile(path, make([]byte, 512*2), 0o400); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	// Running as root bypasses the permission bits, so this exercises the
	// fallback branch only under a non-root test user; skip otherwise.
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	// Force the read-write open to fail by dropping write access on the
	// file via the chmod below, then attempt to open read-write by
	// constructing a Storage directly.
	base := NewPrimary(KindDisk, 0, Identity{Vendor: "TEST", Product: "DISK", Revision: "1.0"})
	s := NewStorage(base, NewReservationTable())
	s.sectorSize = 512
	if err := os.Chmod(path, 0o444); err != nil {
		t.Fatalf("Chmod: %v", err)
	}
	if err := s.Open(path, 2); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !s.readOnly {
		t.Fatalf("expected readOnly after permission-denied fallback")
	}
	if s.protectable {
		t.Fatalf("expected protectable cleared after permission-denied fallback")
	}
	if s.protected {
		t.Fatalf("expected protected cleared after permission-denied fallback")
	}
}

package device

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCDROMOpenRejectsCueSheet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.cue")
	body := []byte("FILE \"image.iso\" BINARY\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	c := NewCDROM(0, Identity{Vendor: "TEST", Product: "CD", Revision: "1.0"}, NewReservationTable())
	if err := c.Open(path, 0); err == nil {
		t.Fatalf("expected cue sheet content to be rejected")
	}
}

func TestCDROMOpenRejectsRawMode1Image(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "raw.img")
	sector := make([]byte, 2352)
	sector[15] = 0x01 // mode byte: mode 1
	if err := os.WriteFile(path, sector, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	c := NewCDROM(0, Identity{Vendor: "TEST", Product: "CD", Revision: "1.0"}, NewReservationTable())
	if err := c.Open(path, 0); err == nil {
		t.Fatalf("expected raw mode-1 image to be rejected")
	}
}

func TestCDROMOpenAcceptsPlainISO(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.iso")
	if err := os.WriteFile(path, make([]byte, CDSectorSize*4), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	c := NewCDROM(0, Identity{Vendor: "TEST", Product: "CD", Revision: "1.0"}, NewReservationTable())
	if err := c.Open(path, 0); err != nil {
		t.Fatalf("unexpected error opening plain ISO: %v", err)
	}
}

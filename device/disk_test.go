package device

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/PiSCSI/piscsi-sub003/scsi"
)

func TestFormatDevicePageOffsets(t *testing.T) {
	d := NewDisk(0, Identity{Vendor: "TEST", Product: "DISK", Revision: "1.0"}, nil, 512)
	page := d.formatDevicePage()

	// spec.md's end-to-end MODE SENSE(6) scenario puts sectors/track at
	// response offset 18 and track skew at response offset 22; the 4-byte
	// header + 8-byte block descriptor puts this page's own byte 0 at
	// response offset 12, so those land at page-local offsets 6 and 10.
	if got := binary.BigEndian.Uint16(page[6:8]); got != 25 {
		t.Fatalf("sectors/track: want 25, got %d", got)
	}
	if got := binary.BigEndian.Uint16(page[10:12]); got != 11 {
		t.Fatalf("track skew: want 11, got %d", got)
	}
	if got := binary.BigEndian.Uint16(page[8:10]); got != 512 {
		t.Fatalf("bytes/sector: want 512, got %d", got)
	}
}

func TestRecordSenseRoundTrip(t *testing.T) {
	p := NewPrimary(KindDisk, 0, Identity{Vendor: "TEST", Product: "DISK", Revision: "1.0"})
	p.RecordSense(scsi.SenseIllegalRequest, scsi.AscInvalidFieldInCdb)

	if got := p.SenseKey(); got != scsi.SenseIllegalRequest {
		t.Fatalf("SenseKey: want 0x%02x, got 0x%02x", scsi.SenseIllegalRequest, got)
	}
	if got := p.Asc(); got != scsi.AscInvalidFieldInCdb {
		t.Fatalf("Asc: want 0x%04x, got 0x%04x", scsi.AscInvalidFieldInCdb, got)
	}
}

func TestReadWriteRangeValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.img")
	if err := os.WriteFile(path, make([]byte, 512*4), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	d := NewDisk(0, Identity{Vendor: "TEST", Product: "DISK", Revision: "1.0"}, NewReservationTable(), 512)
	if err := d.Open(path, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}

	cdb := []byte{scsi.Read6, 0, 0, 0, 10, 0} // LBA 0, count 10 > 4 blocks
	if _, err := d.read(scsi.Read6, cdb); err == nil {
		t.Fatalf("expected out-of-range read to fail")
	}

	cdb = []byte{scsi.Read6, 0, 0, 0, 2, 0} // LBA 0, count 2, within range
	if _, err := d.read(scsi.Read6, cdb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

package device

import (
	"testing"
)

func TestWriteFrameRejectsUnrecognizedFormat(t *testing.T) {
	d := NewDaynaPort(0, Identity{Vendor: "TEST", Product: "DP", Revision: "1.0"}, "")
	cdb := []byte{0x0a, 0, 0, 0x00, 0x40, 0x7f} // format byte 0x7f is neither 0x00 nor 0x80
	if _, err := d.writeFrame(cdb); err == nil {
		t.Fatalf("expected unrecognized format byte to be rejected")
	}
}

func TestWriteFrameRejectsOversizeLength(t *testing.T) {
	d := NewDaynaPort(0, Identity{Vendor: "TEST", Product: "DP", Revision: "1.0"}, "")
	cdb := []byte{0x0a, 0, 0, 0x07, 0x00, 0x00} // length 0x0700 = 1792 > 1514
	if _, err := d.writeFrame(cdb); err == nil {
		t.Fatalf("expected oversize frame length to be rejected")
	}
}

func TestWriteFrameAcceptsValidEnvelope(t *testing.T) {
	d := NewDaynaPort(0, Identity{Vendor: "TEST", Product: "DP", Revision: "1.0"}, "")
	cdb := []byte{0x0a, 0, 0, 0x00, 0x40, 0x00} // length 64, format 0x00
	resp, err := d.writeFrame(cdb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.BlockSize != 64 {
		t.Fatalf("want BlockSize 64, got %d", resp.BlockSize)
	}
}

func TestReadFrameRejectsIllegalFormatByte(t *testing.T) {
	d := NewDaynaPort(0, Identity{Vendor: "TEST", Product: "DP", Revision: "1.0"}, "")
	cdb := []byte{0x08, 0, 0, 0, 0, 0xff}
	if _, err := d.readFrame(cdb); err == nil {
		t.Fatalf("expected cdb[5]==0xFF to be rejected")
	}
}

func TestReadFrameDrainsQueueInOrder(t *testing.T) {
	d := NewDaynaPort(0, Identity{Vendor: "TEST", Product: "DP", Revision: "1.0"}, "")
	d.InjectFrame([]byte("first"))
	d.InjectFrame([]byte("second"))

	resp, err := d.readFrame([]byte{0x08, 0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Data[2:]) != "first" {
		t.Fatalf("want %q, got %q", "first", string(resp.Data[2:]))
	}
}

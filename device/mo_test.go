package device

import (
	"encoding/binary"
	"testing"
)

func TestSpareBlocksPageKnownCapacity(t *testing.T) {
	m := NewMO(0, Identity{Vendor: "TEST", Product: "MO", Revision: "1.0"}, nil, 512)
	m.SetGeometry(512, 248826)

	page := m.spareBlocksPage()
	if got := binary.BigEndian.Uint32(page[4:8]); got != 248826 {
		t.Fatalf("block count: want 248826, got %d", got)
	}
	if got := binary.BigEndian.Uint16(page[8:10]); got != 1024 {
		t.Fatalf("spare blocks: want 1024, got %d", got)
	}
	if got := binary.BigEndian.Uint16(page[10:12]); got != 1 {
		t.Fatalf("spare bands: want 1, got %d", got)
	}
}

func TestSpareBlocksPageUnknownCapacityIsZero(t *testing.T) {
	m := NewMO(0, Identity{Vendor: "TEST", Product: "MO", Revision: "1.0"}, nil, 512)
	m.SetGeometry(512, 12345)

	page := m.spareBlocksPage()
	if got := binary.BigEndian.Uint16(page[8:10]); got != 0 {
		t.Fatalf("spare blocks for unknown capacity: want 0, got %d", got)
	}
	if got := binary.BigEndian.Uint16(page[10:12]); got != 0 {
		t.Fatalf("spare bands for unknown capacity: want 0, got %d", got)
	}
}

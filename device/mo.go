package device

// MO is a rewritable optical-disk LUN: ordinary block I/O plus a capacity-
// dependent spare-blocks vendor page (0x20), per spec.md §4.8.
type MO struct {
	*Disk
}

// NewMO constructs an MO LUN at the given sector size (typically 512 or
// 2048, per the manifest's block_size option).
func NewMO(lun int, id Identity, table *ReservationTable, sectorSize int) *MO {
	d := NewDisk(lun, id, table, sectorSize)
	d.Kind = KindMO
	m := &MO{Disk: d}
	m.mp = NewModePages(m.pages, m.blockDescriptor)
	m.mp.SetApplyPage(d.applyPage)
	return m
}

func (m *MO) pages(changeable bool) map[byte][]byte {
	pages := m.Disk.pages(changeable)
	if changeable {
		pages[0x06] = make([]byte, 4)
		pages[0x20] = make([]byte, 12)
		return pages
	}
	pages[0x06] = []byte{0x06, 0x02, 0, 0} // optical memory page, no defects reported
	pages[0x20] = m.spareBlocksPage()
	return pages
}

// moSpareEntry is a well-known MO capacity's spare-blocks/bands fields.
type moSpareEntry struct {
	blocks uint16
	bands  uint16
}

// moSpareCapacity keys a well-known MO block count to its spare-blocks/bands
// fields, per spec.md §4.9's explicit table (248826x512=128MB,
// 446325x512=230MB, 1041500x512=540MB, 310352x2048=640MB,
// 605846x2048=1.3GB). Unrecognized block counts report zeros.
var moSpareCapacity = map[uint64]moSpareEntry{
	248826:  {1024, 1},
	446325:  {1025, 10},
	1041500: {2250, 18},
	310352:  {2244, 11},
	605846:  {4437, 18},
}

// spareBlocksPage reports the block count, spare-blocks, and spare-bands
// fields this capacity's table entry gives, or zeros for an unrecognized
// capacity, per spec.md §4.9.
func (m *MO) spareBlocksPage() []byte {
	buf := make([]byte, 12)
	buf[0] = 0x20
	buf[1] = 0x0a
	blockCount := m.BlockCount()
	buf[4] = byte(blockCount >> 24)
	buf[5] = byte(blockCount >> 16)
	buf[6] = byte(blockCount >> 8)
	buf[7] = byte(blockCount)
	entry := moSpareCapacity[blockCount]
	buf[8] = byte(entry.blocks >> 8)
	buf[9] = byte(entry.blocks)
	buf[10] = byte(entry.bands >> 8)
	buf[11] = byte(entry.bands)
	return buf
}

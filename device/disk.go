package device

import (
	"encoding/binary"

	"github.com/PiSCSI/piscsi-sub003/ctrl"
	"github.com/PiSCSI/piscsi-sub003/scsi"
)

// DefaultSectorSize is what a disk uses unless its manifest option overrides
// it with an explicit block_size (spec.md §6.3).
const DefaultSectorSize = 512

// Disk is a block-addressed, file-backed LUN: READ/WRITE/VERIFY/SEEK,
// READ CAPACITY, READ/WRITE LONG, FORMAT UNIT, SYNCHRONIZE CACHE, READ
// DEFECT DATA, and PREVENT/ALLOW REMOVAL, per spec.md §4.8.
type Disk struct {
	*Storage
	mp *ModePages

	cachingPage [12]byte // mode page 0x08 body, mutable via MODE SELECT
}

// NewDisk constructs a Disk for lun backed (once Open is called) by a file
// whose size must be a whole multiple of sectorSize.
func NewDisk(lun int, id Identity, table *ReservationTable, sectorSize int) *Disk {
	if sectorSize <= 0 {
		sectorSize = DefaultSectorSize
	}
	base := NewPrimary(KindDisk, lun, id)
	st := NewStorage(base, table)
	st.sectorSize = sectorSize

	d := &Disk{Storage: st}
	d.cachingPage = [12]byte{0x08, 0x0a} // page code + length, rest zero (write-through)
	d.mp = NewModePages(d.pages, d.blockDescriptor)
	d.mp.SetApplyPage(d.applyPage)
	return d
}

// Open additionally derives the block count from the bound file's size, on
// top of Storage.Open's reservation-table and permission handling.
func (d *Disk) Open(path string, blockCount uint64) error {
	if blockCount == 0 {
		size, err := ValidateFile(path, d.sectorSize)
		if err != nil {
			return err
		}
		blockCount = uint64(size) / uint64(d.sectorSize)
	}
	return d.Storage.Open(path, blockCount)
}

// Dispatch chains the shared primary table, the mode-page table, and the
// disk-specific block I/O table, in that order, per spec.md §9's capability
// composition design.
func (d *Disk) Dispatch(opcode byte, cdb []byte, initiatorID int) (ctrl.Response, error) {
	if resp, handled, err := d.DispatchPrimary(opcode, cdb, initiatorID); handled {
		return resp, err
	}
	if resp, handled, err := d.mp.DispatchModePages(opcode, cdb); handled {
		return resp, err
	}
	return d.dispatchDisk(opcode, cdb)
}

func (d *Disk) dispatchDisk(opcode byte, cdb []byte) (ctrl.Response, error) {
	if !d.Ready() {
		return ctrl.Response{}, scsi.MediumNotPresent()
	}
	switch opcode {
	case scsi.Read6, scsi.Read10, scsi.Read16, scsi.Read12:
		return d.read(opcode, cdb)
	case scsi.Write6, scsi.Write10, scsi.Write16, scsi.Write12:
		return d.write(opcode, cdb)
	case scsi.Verify10, scsi.Verify16:
		return d.verify(opcode, cdb)
	case scsi.Seek6, scsi.Seek10:
		return d.seek(opcode, cdb)
	case scsi.ReadCapacity10:
		return d.readCapacity10()
	case scsi.ServiceActionIn16:
		return d.serviceActionIn16(cdb)
	case scsi.ReadLong10, scsi.WriteLong10:
		return ctrl.Response{}, scsi.IllegalRequest() // vendor-specific, unsupported
	case scsi.FormatUnit:
		return d.formatUnit()
	case scsi.SynchronizeCache10, scsi.SynchronizeCache16:
		return d.synchronizeCache()
	case scsi.ReadDefectData10:
		return d.readDefectData()
	case scsi.PreventAllowRemoval:
		return d.preventAllowRemoval(cdb)
	case scsi.StartStopUnit:
		return d.startStopUnit(cdb)
	default:
		return d.unsupportedOpcode(opcode)
	}
}

// lbaAndCount decodes LBA/transfer-length out of whichever CDB form opcode
// implies, per spec.md §4.8.
func lbaAndCount(opcode byte, cdb []byte) (lba uint64, count uint32) {
	switch opcode {
	case scsi.Read6, scsi.Write6:
		lba = uint64(cdb[1]&0x1f)<<16 | uint64(cdb[2])<<8 | uint64(cdb[3])
		count = uint32(cdb[4])
		if count == 0 {
			count = 256
		}
	case scsi.Read16, scsi.Write16, scsi.Verify16:
		lba = binary.BigEndian.Uint64(cdb[2:10])
		count = binary.BigEndian.Uint32(cdb[10:14])
	case scsi.Read12, scsi.Write12:
		lba = uint64(binary.BigEndian.Uint32(cdb[2:6]))
		count = binary.BigEndian.Uint32(cdb[6:10])
	default: // 10-byte forms
		lba = uint64(binary.BigEndian.Uint32(cdb[2:6]))
		count = uint32(binary.BigEndian.Uint16(cdb[7:9]))
	}
	return lba, count
}

func (d *Disk) validateRange(lba uint64, count uint32) error {
	if count == 0 {
		return nil
	}
	if lba+uint64(count) > d.BlockCount() {
		return scsi.LbaOutOfRange()
	}
	return nil
}

func (d *Disk) read(opcode byte, cdb []byte) (ctrl.Response, error) {
	lba, count := lbaAndCount(opcode, cdb)
	if err := d.validateRange(lba, count); err != nil {
		return ctrl.Response{}, err
	}
	next := lba
	remaining := count
	xfer := func() ([]byte, error) {
		buf := make([]byte, d.SectorSize())
		_, err := d.ReadAt(buf, int64(next)*int64(d.SectorSize()))
		if err != nil {
			return nil, err
		}
		next++
		remaining--
		return buf, nil
	}
	return ctrl.Response{
		Status:    scsi.StatusGood,
		XferIn:    xfer,
		Blocks:    int(count),
		BlockSize: d.SectorSize(),
	}, nil
}

func (d *Disk) write(opcode byte, cdb []byte) (ctrl.Response, error) {
	lba, count := lbaAndCount(opcode, cdb)
	if err := d.validateRange(lba, count); err != nil {
		return ctrl.Response{}, err
	}
	next := lba
	xfer := func(chunk []byte) error {
		_, err := d.WriteAt(chunk, int64(next)*int64(d.SectorSize()))
		if err != nil {
			return err
		}
		next++
		return nil
	}
	return ctrl.Response{
		Status:    scsi.StatusGood,
		XferOut:   xfer,
		Blocks:    int(count),
		BlockSize: d.SectorSize(),
	}, nil
}

// verify only range-checks; byte-compare verification (BYTCHK=1) is not
// implemented, matching the no-compare default most initiators use.
func (d *Disk) verify(opcode byte, cdb []byte) (ctrl.Response, error) {
	lba, count := lbaAndCount(opcode, cdb)
	if err := d.validateRange(lba, count); err != nil {
		return ctrl.Response{}, err
	}
	return ctrl.Response{Status: scsi.StatusGood}, nil
}

func (d *Disk) seek(opcode byte, cdb []byte) (ctrl.Response, error) {
	lba, _ := lbaAndCount(opcode, cdb)
	if lba >= d.BlockCount() {
		return ctrl.Response{}, scsi.LbaOutOfRange()
	}
	return ctrl.Response{Status: scsi.StatusGood}, nil
}

func (d *Disk) readCapacity10() (ctrl.Response, error) {
	buf := make([]byte, 8)
	last := d.BlockCount() - 1
	if d.BlockCount() == 0 {
		last = 0
	}
	if last > 0xffffffff {
		binary.BigEndian.PutUint32(buf[0:4], 0xffffffff) // caller should use SERVICE ACTION IN(16)
	} else {
		binary.BigEndian.PutUint32(buf[0:4], uint32(last))
	}
	binary.BigEndian.PutUint32(buf[4:8], uint32(d.SectorSize()))
	return ctrl.Response{Status: scsi.StatusGood, Data: buf}, nil
}

func (d *Disk) serviceActionIn16(cdb []byte) (ctrl.Response, error) {
	if len(cdb) < 2 {
		return ctrl.Response{}, scsi.IllegalRequest()
	}
	switch cdb[1] & 0x1f {
	case scsi.SaiReadCapacity16:
		buf := make([]byte, 32)
		last := uint64(0)
		if d.BlockCount() > 0 {
			last = d.BlockCount() - 1
		}
		binary.BigEndian.PutUint64(buf[0:8], last)
		binary.BigEndian.PutUint32(buf[8:12], uint32(d.SectorSize()))
		return ctrl.Response{Status: scsi.StatusGood, Data: buf}, nil
	default:
		return ctrl.Response{}, scsi.IllegalRequest()
	}
}

// formatUnit is a no-op success: spec.md §4.8 treats FORMAT UNIT as an
// already-initialized medium acknowledgment, not an actual low-level format.
func (d *Disk) formatUnit() (ctrl.Response, error) {
	return ctrl.Response{Status: scsi.StatusGood}, nil
}

func (d *Disk) synchronizeCache() (ctrl.Response, error) {
	if err := d.Sync(); err != nil {
		return ctrl.Response{}, scsi.Fault(scsi.SenseMediumError, scsi.AscWriteError)
	}
	return ctrl.Response{Status: scsi.StatusGood}, nil
}

// readDefectData always reports zero defects: this core never maintains a
// grown defect list.
func (d *Disk) readDefectData() (ctrl.Response, error) {
	buf := make([]byte, 4)
	return ctrl.Response{Status: scsi.StatusGood, Data: buf}, nil
}

func (d *Disk) preventAllowRemoval(cdb []byte) (ctrl.Response, error) {
	if len(cdb) > 4 {
		d.locked = cdb[4]&0x01 != 0
	}
	return ctrl.Response{Status: scsi.StatusGood}, nil
}

// startStopUnit handles START/STOP and LOEJ (load/eject); host-services
// repurposes this opcode for shutdown requests, which Disk doesn't.
func (d *Disk) startStopUnit(cdb []byte) (ctrl.Response, error) {
	if len(cdb) < 5 {
		return ctrl.Response{}, scsi.IllegalRequest()
	}
	start := cdb[4]&0x01 != 0
	loej := cdb[4]&0x02 != 0
	if loej && !start {
		if !d.Eject(false) {
			return ctrl.Response{}, scsi.Fault(scsi.SenseIllegalRequest, scsi.AscLoadOrEjectFailed)
		}
		return ctrl.Response{Status: scsi.StatusGood}, nil
	}
	d.SetReady(start)
	return ctrl.Response{Status: scsi.StatusGood}, nil
}

// blockDescriptor builds the 8-byte short-form block descriptor MODE SENSE
// prefixes the page data with, per spec.md §6.2.
func (d *Disk) blockDescriptor() []byte {
	buf := make([]byte, 8)
	count := d.BlockCount()
	if count > 0xffffff {
		count = 0xffffff
	}
	buf[1] = byte(count >> 16)
	buf[2] = byte(count >> 8)
	buf[3] = byte(count)
	ss := d.SectorSize()
	buf[5] = byte(ss >> 16)
	buf[6] = byte(ss >> 8)
	buf[7] = byte(ss)
	return buf
}

// pages builds this disk's mode page table: 0x01 read-write error recovery,
// 0x03 format device, 0x04 rigid disk geometry, 0x08 caching, per spec.md
// §4.8. A plain hard disk (not a CD-ROM/MO riding on this same struct) also
// carries 0x30, the Apple vendor-identification page classic Mac drivers
// probe for. changeable returns the bitmask of fields MODE SELECT may
// alter; only the caching page (0x08) accepts writes here.
func (d *Disk) pages(changeable bool) map[byte][]byte {
	pages := map[byte][]byte{
		0x01: {0x01, 0x0a, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		0x03: d.formatDevicePage(),
		0x04: d.rigidDiskGeometryPage(),
		0x08: d.cachingPage[:],
	}
	if d.Kind == KindDisk {
		pages[0x30] = appleVendorPage()
	}
	if changeable {
		mask := make(map[byte][]byte)
		for code, body := range pages {
			m := make([]byte, len(body))
			if code == 0x08 {
				m[2] = 0x04 // WCE bit is the only field this core allows changing
			}
			mask[code] = m
		}
		return mask
	}
	return pages
}

// formatDevicePage lays out mode page 0x03 per spec.md §4.8: 8 tracks/zone,
// 25 sectors/track, current bytes/sector, interleave 1, track skew 11,
// cylinder skew 20, bit 0x20 of byte 20 set iff removable, bit 0x40 always
// set ("hard-sectored"). Field offsets are pinned against the end-to-end
// MODE SENSE(6) scenario (spec.md §8 #5), which puts sectors/track at
// response offset 18 and track skew at response offset 22 — i.e. page-body
// offsets 6 and 10, not the SCSI-2 textbook layout.
func (d *Disk) formatDevicePage() []byte {
	buf := make([]byte, 24)
	buf[0] = 0x03
	buf[1] = 0x16
	buf[3] = 8                                                    // tracks per zone
	binary.BigEndian.PutUint16(buf[6:8], 25)                      // sectors per track
	binary.BigEndian.PutUint16(buf[8:10], uint16(d.SectorSize())) // bytes per sector
	binary.BigEndian.PutUint16(buf[10:12], 11)                    // track skew factor
	binary.BigEndian.PutUint16(buf[12:14], 1)                     // interleave
	binary.BigEndian.PutUint16(buf[14:16], 20)                    // cylinder skew factor
	buf[20] = 0x40
	if d.removable {
		buf[20] |= 0x20
	}
	return buf
}

func (d *Disk) rigidDiskGeometryPage() []byte {
	buf := make([]byte, 24)
	buf[0] = 0x04
	buf[1] = 0x16
	cyl := d.BlockCount()
	if cyl > 0xffffff {
		cyl = 0xffffff
	}
	buf[2] = byte(cyl >> 16)
	buf[3] = byte(cyl >> 8)
	buf[4] = byte(cyl)
	buf[5] = 1 // heads
	return buf
}

// appleVendorPage is mode page 0x30, the Apple-identification vendor page
// some classic Mac drivers probe for before trusting a SCSI disk.
func appleVendorPage() []byte {
	buf := make([]byte, 30)
	buf[0] = 0x30
	buf[1] = 0x1c
	copy(buf[2:], "APPLE COMPUTER, INC.")
	return buf
}

// applyPage accepts writes to the caching page's WCE bit only; every other
// page code is read-only on this device.
func (d *Disk) applyPage(pageCode byte, data []byte) error {
	if pageCode != 0x08 || len(data) < 3 {
		return scsi.IllegalRequest()
	}
	d.cachingPage[2] = data[2] & 0x04
	return nil
}

package device

import (
	"encoding/binary"
	"os"

	"github.com/PiSCSI/piscsi-sub003/ctrl"
	"github.com/PiSCSI/piscsi-sub003/scsi"
)

// CDSectorSize is the fixed Mode 1 sector size this core serves; raw Mode 1
// images and .cue sheets are rejected at Open, per spec.md §4.8's CD-ROM
// non-goals. Raw images with any other mode byte are not detected.
const CDSectorSize = 2048

// CDROM is a read-only, fixed-sector-size disk variant: no WRITE, no MODE
// SELECT, plus READ TOC and the CD-specific mode pages 0x0d/0x0e.
type CDROM struct {
	*Disk
}

// NewCDROM constructs a CD-ROM LUN. Unlike Disk, sector size is fixed at
// CDSectorSize and not configurable by manifest option.
func NewCDROM(lun int, id Identity, table *ReservationTable) *CDROM {
	d := NewDisk(lun, id, table, CDSectorSize)
	d.Kind = KindCDROM
	d.readOnly = true
	c := &CDROM{Disk: d}
	c.mp = NewModePages(c.pages, c.blockDescriptor)
	return c
}

// Open rejects cue sheets and raw "mode 1" images by content, not filename,
// per spec.md §4.8: a cue sheet's first four bytes spell "FILE", and a raw
// sector image's 16-byte sector header (sync + address + mode byte) carries
// mode byte 0x01 at header offset 15. Either tell means this image isn't the
// plain 2048-byte-sector ISO layout this core serves.
func (c *CDROM) Open(path string, blockCount uint64) error {
	header := make([]byte, 16)
	f, err := os.Open(path)
	if err != nil {
		return scsi.Fault(scsi.SenseNotReady, scsi.AscMediumNotPresent)
	}
	n, _ := f.Read(header)
	f.Close()
	header = header[:n]

	if len(header) >= 4 && string(header[0:4]) == "FILE" {
		return scsi.IllegalRequest()
	}
	if len(header) == 16 && header[15] == 0x01 {
		return scsi.IllegalRequest()
	}
	return c.Disk.Open(path, blockCount)
}

// Dispatch layers READ TOC on top of Disk's table and rejects every
// write-capable opcode Disk would otherwise accept.
func (c *CDROM) Dispatch(opcode byte, cdb []byte, initiatorID int) (ctrl.Response, error) {
	switch opcode {
	case scsi.Write6, scsi.Write10, scsi.Write12, scsi.Write16,
		scsi.WriteVerify10, scsi.FormatUnit, scsi.ModeSelect, scsi.ModeSelect10:
		return ctrl.Response{}, scsi.Fault(scsi.SenseIllegalRequest, scsi.AscInvalidCommandOperationCode)
	case scsi.ReadToc:
		return c.readToc(cdb)
	default:
		return c.Disk.Dispatch(opcode, cdb, initiatorID)
	}
}

// readToc reports a single data track spanning the whole image; multi-track
// .cue-described images are out of scope (rejected at Open instead).
func (c *CDROM) readToc(cdb []byte) (ctrl.Response, error) {
	if !c.Ready() {
		return ctrl.Response{}, scsi.MediumNotPresent()
	}
	buf := make([]byte, 20)
	binary.BigEndian.PutUint16(buf[0:2], 18)
	buf[2] = 1 // first track
	buf[3] = 1 // last track
	// track descriptor 1
	buf[4+1] = 0x14 // data track, not audio
	buf[4+2] = 1    // track number
	// lead-out descriptor
	buf[12+1] = 0x14
	buf[12+2] = 0xaa
	lastLBA := uint32(0)
	if c.BlockCount() > 0 {
		lastLBA = uint32(c.BlockCount())
	}
	binary.BigEndian.PutUint32(buf[16:20], lastLBA)
	return ctrl.Response{Status: scsi.StatusGood, Data: buf}, nil
}

func (c *CDROM) pages(changeable bool) map[byte][]byte {
	pages := c.Disk.pages(changeable)
	if changeable {
		pages[0x0d] = make([]byte, 8)
		pages[0x0e] = make([]byte, 16)
		return pages
	}
	pages[0x0d] = []byte{0x0d, 0x06, 0, 0, 0, 0, 0, 0} // CD-ROM parameters, defaults
	pages[0x0e] = c.audioControlPage()
	return pages
}

// audioControlPage reports no audio support: this core never plays CD-DA.
func (c *CDROM) audioControlPage() []byte {
	buf := make([]byte, 16)
	buf[0] = 0x0e
	buf[1] = 0x0e
	return buf
}

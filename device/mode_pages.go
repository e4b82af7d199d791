package device

import (
	"sort"

	"github.com/PiSCSI/piscsi-sub003/ctrl"
	"github.com/PiSCSI/piscsi-sub003/scsi"
)

// ModePages adds MODE SENSE/SELECT command handling on top of Primary. A
// device kind supplies its page table through the pageSource callback
// (usually its own pages method) plus a block descriptor built from its own
// geometry.
type ModePages struct {
	pageSource  func(changeable bool) map[byte][]byte
	blockDescFn func() []byte // 8-byte block descriptor, or nil if none

	// applyPage receives a MODE SELECT page's body (code byte included) and
	// either applies it or returns an illegal-request fault. Nil means the
	// device kind accepts no MODE SELECT writes.
	applyPage func(pageCode byte, data []byte) error
}

// NewModePages builds a page dispatcher. pageSource(changeable) must return
// the current values when changeable is false, and the bitmask of fields the
// initiator may modify via MODE SELECT when true.
func NewModePages(pageSource func(changeable bool) map[byte][]byte, blockDescFn func() []byte) *ModePages {
	return &ModePages{pageSource: pageSource, blockDescFn: blockDescFn}
}

// SetApplyPage wires the MODE SELECT write-back callback; device kinds with
// writable pages (e.g. disk's caching page) call this from their
// constructor.
func (m *ModePages) SetApplyPage(f func(pageCode byte, data []byte) error) {
	m.applyPage = f
}

func (m *ModePages) ModePages(changeable bool) map[byte][]byte {
	if m.pageSource == nil {
		return nil
	}
	return m.pageSource(changeable)
}

// DispatchModePages chains MODE SENSE(6/10) and MODE SELECT(6/10) onto
// Primary's table, per spec.md §4.6.
func (m *ModePages) DispatchModePages(opcode byte, cdb []byte) (ctrl.Response, bool, error) {
	switch opcode {
	case scsi.ModeSense:
		return m.modeSense(cdb, false)
	case scsi.ModeSense10:
		return m.modeSense(cdb, true)
	case scsi.ModeSelect:
		return m.modeSelect(cdb, false)
	case scsi.ModeSelect10:
		return m.modeSelect(cdb, true)
	default:
		return ctrl.Response{}, false, nil
	}
}

// modeSelect accepts the parameter list as a single DATA-OUT block and
// applies each mode page in it through applyPage, per spec.md §4.6. A
// device with no writable pages rejects MODE SELECT outright.
func (m *ModePages) modeSelect(cdb []byte, long bool) (ctrl.Response, bool, error) {
	if m.applyPage == nil {
		return ctrl.Response{}, true, scsi.IllegalRequest()
	}
	// Parameter list length: byte 4 for MODE SELECT(6), bytes 7-8 for (10).
	allocLen := int(cdb[4])
	if long {
		allocLen = int(cdb[7])<<8 | int(cdb[8])
	}
	if allocLen <= 0 {
		return ctrl.Response{Status: scsi.StatusGood}, true, nil
	}
	return ctrl.Response{
		Status:    scsi.StatusGood,
		Blocks:    1,
		BlockSize: allocLen,
		XferOut:   func(data []byte) error { return m.applyModeSelectData(data, long) },
	}, true, nil
}

func (m *ModePages) applyModeSelectData(data []byte, long bool) error {
	hdrLen := 4
	if long {
		hdrLen = 8
	}
	if len(data) < hdrLen {
		return scsi.IllegalRequest()
	}
	blockDescLen := int(data[3])
	if long {
		blockDescLen = int(data[6])<<8 | int(data[7])
	}
	off := hdrLen + blockDescLen
	for off < len(data) {
		if off+2 > len(data) {
			break
		}
		pageCode := data[off] & 0x3f
		pageLen := int(data[off+1])
		end := off + 2 + pageLen
		if end > len(data) {
			end = len(data)
		}
		if err := m.applyPage(pageCode, data[off:end]); err != nil {
			return err
		}
		off = end
	}
	return nil
}

// modeSense builds the header + optional block descriptor + requested pages,
// in (6) or (10) format depending on long. PC (bits 7:6 of byte 2) selects
// current (00) or changeable (01) values; saved/default (10/11) are not
// supported and fault.
func (m *ModePages) modeSense(cdb []byte, long bool) (ctrl.Response, bool, error) {
	if len(cdb) < 3 {
		return ctrl.Response{}, true, scsi.IllegalRequest()
	}
	pc := (cdb[2] >> 6) & 0x03
	pageCode := cdb[2] & 0x3f
	if pc == 0x02 || pc == 0x03 {
		return ctrl.Response{}, true, scsi.IllegalRequest()
	}
	changeable := pc == 0x01

	pages := m.ModePages(changeable)
	var codes []byte
	if pageCode == 0x3f {
		for code := range pages {
			codes = append(codes, code)
		}
		// Ascending by page code, except page 0 (if supported) goes last,
		// per spec.md §3's "all pages" aggregation rule.
		sort.Slice(codes, func(i, j int) bool {
			if codes[i] == 0 {
				return false
			}
			if codes[j] == 0 {
				return true
			}
			return codes[i] < codes[j]
		})
	} else if page, ok := pages[pageCode]; ok {
		_ = page
		codes = []byte{pageCode}
	} else {
		return ctrl.Response{}, true, scsi.IllegalRequest()
	}

	var blockDesc []byte
	if cdb[1]&0x08 == 0 && m.blockDescFn != nil { // DBD = 0 means include it
		blockDesc = m.blockDescFn()
	}

	var body []byte
	for _, code := range codes {
		body = append(body, pages[code]...)
	}

	var buf []byte
	if long {
		hdr := make([]byte, 8)
		hdr[6] = byte(len(blockDesc) >> 8)
		hdr[7] = byte(len(blockDesc))
		buf = append(hdr, blockDesc...)
		buf = append(buf, body...)
		total := len(buf) - 2
		buf[0] = byte(total >> 8)
		buf[1] = byte(total)
	} else {
		hdr := make([]byte, 4)
		hdr[3] = byte(len(blockDesc))
		buf = append(hdr, blockDesc...)
		buf = append(buf, body...)
		buf[0] = byte(len(buf) - 1)
	}
	return ctrl.Response{Status: scsi.StatusGood, Data: buf}, true, nil
}

package device

import (
	"encoding/binary"

	"github.com/PiSCSI/piscsi-sub003/ctrl"
	"github.com/PiSCSI/piscsi-sub003/internal/rlog"
	"github.com/PiSCSI/piscsi-sub003/scsi"
)

// Identity is the INQUIRY-visible product data spec.md §3 describes:
// vendor <=8, product <=16, revision <=4 bytes, padded with spaces.
type Identity struct {
	Vendor   string
	Product  string
	Revision string
}

func padField(s string, n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	copy(b, s)
	return b
}

// validateIdentity enforces the bounds spec.md §3 calls a programming
// error to violate: vendor 1..8, product 1..16, revision 1..4.
func validateIdentity(id Identity) {
	if len(id.Vendor) < 1 || len(id.Vendor) > 8 {
		panic("device: vendor string must be 1..8 bytes")
	}
	if len(id.Product) < 1 || len(id.Product) > 16 {
		panic("device: product string must be 1..16 bytes")
	}
	if len(id.Revision) < 1 || len(id.Revision) > 4 {
		panic("device: revision string must be 1..4 bytes")
	}
}

// Primary is the base behavior shared by every LUN: INQUIRY, TEST UNIT
// READY, REQUEST SENSE, REPORT LUNS, RESERVE/RELEASE, sense code, and
// reservation. Concrete device kinds embed Primary and add their own
// command tables on top.
type Primary struct {
	Kind Kind
	lun  int

	Identity   Identity
	ScsiLevel  byte
	statusCode uint32 // (sense_key<<16)|ASC, per spec.md §3

	ready     bool
	wasReset  bool
	attn      bool
	readOnly  bool

	protectable bool
	protected   bool
	stoppable   bool
	stopped     bool
	removable   bool
	removed     bool
	lockable    bool
	locked      bool

	supportsFile   bool
	supportsParams bool

	reservedBy int
	reserved   bool

	// reportLuns, if set, lists every LUN attached to this device's
	// controller (set by the manager at attach time, since a Device has no
	// back-reference to its controller per spec.md §9 design notes).
	reportLuns func() []int
}

// NewPrimary constructs a Primary for the given kind, LUN, and identity.
// id must satisfy the vendor/product/revision length bounds.
func NewPrimary(kind Kind, lun int, id Identity) *Primary {
	validateIdentity(id)
	return &Primary{
		Kind:       kind,
		lun:        lun,
		Identity:   id,
		ScsiLevel:  2,
		reservedBy: -1,
	}
}

func (p *Primary) LUN() int { return p.lun }

// SetReportLuns wires the manager's LUN-listing callback (spec.md §9: the
// device holds a weak back-reference only through whatever callbacks the
// manager chooses to give it, never the controller itself).
func (p *Primary) SetReportLuns(f func() []int) { p.reportLuns = f }

func (p *Primary) ClearSense() { p.statusCode = 0 }

// RecordSense packs (sense_key<<16)|asc; asc already carries (ASC<<8)|ASCQ
// per the scsi package's constants, so it lands untouched in the low 16 bits.
func (p *Primary) RecordSense(senseKey byte, asc uint16) {
	p.statusCode = uint32(senseKey)<<16 | uint32(asc)
}

func (p *Primary) SenseKey() byte { return byte(p.statusCode >> 16) }
func (p *Primary) Asc() uint16    { return uint16(p.statusCode) }

func (p *Primary) ReservingInitiator() (int, bool) { return p.reservedBy, p.reserved }

func (p *Primary) Reset() {
	p.wasReset = true
	p.statusCode = 0
	p.reserved = false
	p.reservedBy = -1
}

// SetReady sets whether the medium/device is ready to accept commands.
func (p *Primary) SetReady(v bool) { p.ready = v }
func (p *Primary) Ready() bool     { return p.ready }

// RaiseUnitAttention marks a pending attention condition (e.g. after a
// medium change), reported on the next TEST UNIT READY.
func (p *Primary) RaiseUnitAttention() { p.attn = true }

// InquiryInternal builds the raw INQUIRY response: 5-byte header + 3-byte
// vendor id marker + 8 vendor + 16 product + 4 revision, per spec.md §6.2.
func (p *Primary) InquiryInternal() []byte {
	buf := make([]byte, 36)
	if p.removable {
		buf[1] = 0x80
	}
	buf[0] = p.Kind.PeripheralType()
	buf[2] = p.ScsiLevel
	buf[3] = 0x02 // response data format
	buf[4] = 31   // additional length
	copy(buf[8:16], padField(p.Identity.Vendor, 8))
	copy(buf[16:32], padField(p.Identity.Product, 16))
	copy(buf[32:36], padField(p.Identity.Revision, 4))
	return buf
}

// DispatchPrimary implements the shared command table of spec.md §4.5. It
// returns handled=false for opcodes this layer doesn't own, so that
// subtypes can chain into their own tables.
func (p *Primary) DispatchPrimary(opcode byte, cdb []byte, initiatorID int) (resp ctrl.Response, handled bool, err error) {
	switch opcode {
	case scsi.TestUnitReady:
		return p.testUnitReady()
	case scsi.RequestSense:
		return p.requestSense(cdb)
	case scsi.Inquiry:
		return p.inquiry(cdb)
	case scsi.Reserve:
		return p.reserve(cdb, initiatorID)
	case scsi.Release:
		return p.release(cdb)
	case scsi.SendDiagnostic:
		return p.sendDiagnostic(cdb)
	case scsi.ReportLuns:
		return p.reportLunsCmd(cdb)
	default:
		return ctrl.Response{}, false, nil
	}
}

// testUnitReady implements the reset/attention ordering of spec.md §4.5:
// reset&&attn -> POWER_ON_OR_RESET; !reset&&attn -> NOT_READY_TO_READY_CHANGE;
// reset&&!attn -> POWER_ON_OR_RESET. The first TEST UNIT READY after a
// reset clears it; attn is cleared whenever it alone was reported.
func (p *Primary) testUnitReady() (ctrl.Response, bool, error) {
	if p.wasReset {
		p.wasReset = false
		return ctrl.Response{}, true, scsi.Fault(scsi.SenseUnitAttention, scsi.AscPowerOnOrReset)
	}
	if p.attn {
		p.attn = false
		return ctrl.Response{}, true, scsi.Fault(scsi.SenseUnitAttention, scsi.AscNotReadyToReadyChange)
	}
	if !p.ready {
		return ctrl.Response{}, true, scsi.MediumNotPresent()
	}
	return ctrl.Response{Status: scsi.StatusGood}, true, nil
}

// requestSense produces the fixed 18-byte sense format of spec.md §6.2.
// INQUIRY and REQUEST SENSE are always served regardless of readiness;
// !ready maps to NOT_READY/MEDIUM_NOT_PRESENT if no other sense is pending.
func (p *Primary) requestSense(cdb []byte) (ctrl.Response, bool, error) {
	senseKey, asc := p.SenseKey(), p.Asc()
	if senseKey == 0 && asc == 0 && !p.ready {
		senseKey, asc = scsi.SenseNotReady, scsi.AscMediumNotPresent
	}
	buf := make([]byte, 18)
	buf[0] = 0x70
	buf[2] = senseKey
	buf[7] = 10
	buf[12] = byte(asc >> 8)
	buf[13] = byte(asc)
	p.statusCode = 0
	return ctrl.Response{Status: scsi.StatusGood, Data: buf}, true, nil
}

// inquiry rejects EVPD and nonzero page code (this core doesn't implement
// vendor pages on the shared path) and otherwise answers InquiryInternal.
func (p *Primary) inquiry(cdb []byte) (ctrl.Response, bool, error) {
	if len(cdb) > 1 && cdb[1]&0x01 != 0 {
		return ctrl.Response{}, true, scsi.IllegalRequest()
	}
	if len(cdb) > 2 && cdb[2] != 0x00 {
		return ctrl.Response{}, true, scsi.IllegalRequest()
	}
	data := p.InquiryInternal()
	allocLen := 256
	if len(cdb) > 4 {
		allocLen = int(cdb[4])
	}
	if allocLen < len(data) {
		data = data[:allocLen]
	}
	return ctrl.Response{Status: scsi.StatusGood, Data: data}, true, nil
}

func (p *Primary) reserve(cdb []byte, initiatorID int) (ctrl.Response, bool, error) {
	p.reserved = true
	p.reservedBy = initiatorID
	return ctrl.Response{Status: scsi.StatusGood}, true, nil
}

func (p *Primary) release(cdb []byte) (ctrl.Response, bool, error) {
	p.reserved = false
	p.reservedBy = -1
	return ctrl.Response{Status: scsi.StatusGood}, true, nil
}

func (p *Primary) sendDiagnostic(cdb []byte) (ctrl.Response, bool, error) {
	if len(cdb) > 1 && cdb[1]&0x10 != 0 {
		return ctrl.Response{}, true, scsi.IllegalRequest()
	}
	if len(cdb) > 4 && (cdb[3] != 0 || cdb[4] != 0) {
		return ctrl.Response{}, true, scsi.IllegalRequest()
	}
	return ctrl.Response{Status: scsi.StatusGood}, true, nil
}

// unsupportedOpcode is the shared fallback every device kind's own dispatch
// table reaches once it exhausts its switch: log the rejected opcode and
// report INVALID_COMMAND_OPERATION_CODE.
func (p *Primary) unsupportedOpcode(opcode byte) (ctrl.Response, error) {
	rlog.Debugf("lun %d: rejecting unsupported opcode 0x%02x", p.lun, opcode)
	return ctrl.Response{}, scsi.Fault(scsi.SenseIllegalRequest, scsi.AscInvalidCommandOperationCode)
}

// reportLunsCmd returns an 8-byte header + 8 bytes per attached LUN, per
// spec.md §6.2. Only SELECT REPORT = 0 is accepted.
func (p *Primary) reportLunsCmd(cdb []byte) (ctrl.Response, bool, error) {
	if len(cdb) > 2 && cdb[2] != 0 {
		return ctrl.Response{}, true, scsi.IllegalRequest()
	}
	var luns []int
	if p.reportLuns != nil {
		luns = p.reportLuns()
	}
	buf := make([]byte, 8+8*len(luns))
	binary.BigEndian.PutUint32(buf[0:4], uint32(8*len(luns)))
	for i, lun := range luns {
		off := 8 + i*8
		buf[off+1] = byte(lun)
	}
	return ctrl.Response{Status: scsi.StatusGood, Data: buf}, true, nil
}

// Package scsi holds the wire-level constants of the SCSI protocol: opcodes,
// status bytes, sense keys, additional sense codes, message bytes, and the
// phase enumeration the bus truth table resolves to.
//
// Find codes in the various SCSI specs. Sense codes are at
// www.t10.org/lists/asc-num.txt
package scsi

// Opcodes used by this core's device command tables. Not exhaustive of the
// SCSI standard, only of what PrimaryDevice and its descendants dispatch.
const (
	TestUnitReady      = 0x00
	RezeroUnit         = 0x01
	RequestSense       = 0x03
	FormatUnit         = 0x04
	ReassignBlocks     = 0x07
	Read6              = 0x08
	Write6             = 0x0a
	Seek6              = 0x0b
	Inquiry            = 0x12
	ModeSelect         = 0x15
	Reserve            = 0x16
	Release            = 0x17
	SendDiagnostic     = 0x1d
	PreventAllowRemoval = 0x1e
	ReadCapacity10     = 0x25
	Read10             = 0x28
	Write10            = 0x2a
	Seek10             = 0x2b
	WriteVerify10      = 0x2e
	Verify10           = 0x2f
	SynchronizeCache10 = 0x35
	ReadDefectData10   = 0x37
	ReadToc            = 0x43
	ModeSense          = 0x1a
	StartStopUnit      = 0x1b
	ReadLong10         = 0x3e
	WriteLong10        = 0x3f
	ModeSelect10       = 0x55
	ModeSense10        = 0x5a
	ReportLuns         = 0xa0
	Read12             = 0xa8
	Write12            = 0xaa
	Read16             = 0x88
	Write16            = 0x8a
	Verify16           = 0x8f
	SynchronizeCache16 = 0x91
	ServiceActionIn16  = 0x9e
	ReadLong16         = 0x9e // distinguished from ReadCapacity16 by the service action sub-code
	WriteLong16        = 0x9f

	// Printer device opcodes; PRINT and STOP PRINT share opcodes with other
	// device types' WRITE6/START STOP UNIT, distinguished by peripheral type.
	PrinterPrint             = 0x0a
	PrinterSynchronizeBuffer = 0x10
	PrinterStopPrint         = 0x1b

	// DaynaPort vendor-unique opcodes (Apple Ethernet over SCSI).
	DaynaPortReadFrame        = 0x08 // shares READ6's opcode, distinguished by CDB[5]
	DaynaPortWriteFrame       = 0x0a // shares WRITE6's opcode
	DaynaPortRetrieveStats    = 0x09
	DaynaPortSetInterfaceMode = 0x0c
	DaynaPortSetMulticastAddr = 0x0d
	DaynaPortEnableInterface  = 0x0e
)

// Service-action-in(16) sub-codes.
const (
	SaiReadCapacity16 = 0x10
	SaiReadLong16     = 0x11
)

// Status byte values (SAM status codes), per spec.md §6.2.
const (
	StatusGood                = 0x00
	StatusCheckCondition      = 0x02
	StatusBusy                = 0x08
	StatusReservationConflict = 0x18
)

// Message byte values, per spec.md §6.2.
const (
	MsgCommandComplete = 0x00
	MsgExtendedMessage = 0x01
	MsgAbort           = 0x06
	MsgMessageReject   = 0x07
	MsgBusDeviceReset  = 0x0c
	MsgIdentifyLow     = 0x80
	MsgIdentifyHigh    = 0x9f
)

// Extended message sub-codes.
const (
	ExtMsgSDTR = 0x01
)

// Sense keys.
const (
	SenseNoSense        = 0x00
	SenseRecoveredError = 0x01
	SenseNotReady       = 0x02
	SenseMediumError    = 0x03
	SenseHardwareError  = 0x04
	SenseIllegalRequest = 0x05
	SenseUnitAttention  = 0x06
	SenseDataProtect    = 0x07
	SenseBlankCheck     = 0x08
	SenseAbortedCommand = 0x0b
	SenseVolumeOverflow = 0x0d
	SenseMiscompare     = 0x0e
)

// Additional Sense Codes (ASC/ASCQ), packed as (asc<<8)|ascq so the value
// already occupies the low 16 bits of the 32-bit "status code"
// (sense_key<<16)|ASC spec.md describes.
const (
	AscNoAdditionalSenseInfo       = 0x0000
	AscPowerOnOrReset              = 0x2900
	AscNotReadyToReadyChange       = 0x2800
	AscMediumNotPresent            = 0x3a00
	AscInvalidCommandOperationCode = 0x2000
	AscInvalidFieldInCdb           = 0x2400
	AscInvalidLun                  = 0x2500
	AscInvalidFieldInParameterList = 0x2600
	AscParameterListLengthError    = 0x1a00
	AscLbaOutOfRange               = 0x2100
	AscLoadOrEjectFailed           = 0x5300
	AscReadError                   = 0x1100
	AscWriteError                  = 0x0c00
	AscInternalTargetFailure       = 0x4400
)

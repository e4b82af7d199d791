package device

import (
	"fmt"
	"os"
)

// ReservationTable tracks which backing filename is already bound to a
// device elsewhere in the process, the process-wide check spec.md §4.7
// requires so two LUNs can't silently share one image file.
type ReservationTable struct {
	held map[string]bool
}

func NewReservationTable() *ReservationTable {
	return &ReservationTable{held: make(map[string]bool)}
}

func (t *ReservationTable) Hold(path string) bool {
	if t.held[path] {
		return false
	}
	t.held[path] = true
	return true
}

func (t *ReservationTable) Release(path string) {
	delete(t.held, path)
}

// Storage is the file-backed medium lifecycle shared by disk, CD-ROM, and MO
// devices: open/validate/eject, tracked against a process-wide
// ReservationTable so the same image can't be attached twice, per spec.md
// §4.7.
type Storage struct {
	*Primary

	table *ReservationTable

	path       string
	file       *os.File
	sectorSize int
	blocks     uint64
}

// NewStorage wraps base with file-backing state. table may be nil for
// devices that never call Open (host services, printer, DaynaPort).
func NewStorage(base *Primary, table *ReservationTable) *Storage {
	s := &Storage{Primary: base, table: table}
	s.removable = true
	s.protectable = true
	return s
}

// ValidateFile enforces spec.md §4.7's open preconditions: the path exists,
// is not a directory, its size as reported by os.Stat is a whole multiple of
// sectorSize, and the resulting block_count is greater than zero. Block
// devices get no special handling, so one that reports size 0 is rejected.
func ValidateFile(path string, sectorSize int) (size int64, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("device: %w", err)
	}
	if info.IsDir() {
		return 0, fmt.Errorf("device: %s is a directory", path)
	}
	size = info.Size()
	if sectorSize > 0 && size%int64(sectorSize) != 0 {
		return 0, fmt.Errorf("device: %s size %d is not a multiple of sector size %d", path, size, sectorSize)
	}
	if size == 0 || (sectorSize > 0 && size/int64(sectorSize) == 0) {
		return 0, fmt.Errorf("device: %s has a zero block count", path)
	}
	return size, nil
}

// Open binds path as this device's backing store: it must not already be
// held by another LUN through the same ReservationTable. It does not call
// ValidateFile itself; Disk.Open does so when it derives the block count.
func (s *Storage) Open(path string, blockCount uint64) error {
	if s.path != "" {
		return fmt.Errorf("device: already bound to %s", s.path)
	}
	if s.table != nil && !s.table.Hold(path) {
		return fmt.Errorf("device: %s is already attached to another LUN", path)
	}
	flag := os.O_RDWR
	if s.readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		if s.table != nil {
			s.table.Release(path)
		}
		if os.IsPermission(err) {
			f, err = os.OpenFile(path, os.O_RDONLY, 0)
			if err == nil {
				// A read-only medium can't be software-protected, per
				// spec.md §4.7.
				s.readOnly = true
				s.protectable = false
				s.protected = false
				if s.table != nil {
					s.table.Hold(path)
				}
			}
		}
		if err != nil {
			return fmt.Errorf("device: open %s: %w", path, err)
		}
	}

	s.path = path
	s.file = f
	if blockCount > 0 {
		s.blocks = blockCount
	}
	s.SetReady(true)
	s.removed = false
	// MediumChanged is set whenever the backing file is rebound, per
	// spec.md §4.7; cleared by the next TEST UNIT READY.
	s.RaiseUnitAttention()
	return nil
}

// Eject detaches the backing file, releasing it from the reservation table.
// force bypasses the locked/reserved checks PREVENT ALLOW MEDIUM REMOVAL
// otherwise enforces at the device-kind layer.
func (s *Storage) Eject(force bool) bool {
	if !force && (s.locked || s.reserved) {
		return false
	}
	if s.file != nil {
		s.file.Close()
	}
	if s.table != nil && s.path != "" {
		s.table.Release(s.path)
	}
	s.path = ""
	s.file = nil
	s.SetReady(false)
	s.removed = true
	return true
}

func (s *Storage) BlockCount() uint64 { return s.blocks }
func (s *Storage) SectorSize() int    { return s.sectorSize }

// SetGeometry fixes the sector size and block count directly, without
// binding a file. Open sets the block count on its own; no device kind's
// constructor or Open calls SetGeometry.
func (s *Storage) SetGeometry(sectorSize int, blocks uint64) {
	s.sectorSize = sectorSize
	s.blocks = blocks
}

// ReadAt/WriteAt expose the backing file for the block-I/O layer built on
// top (disk.go). Both fault with SenseMediumError/AscReadError|WriteError
// shaping left to the caller, since only it knows which ASC applies.
func (s *Storage) ReadAt(p []byte, off int64) (int, error) {
	if s.file == nil {
		return 0, fmt.Errorf("device: no medium")
	}
	return s.file.ReadAt(p, off)
}

func (s *Storage) WriteAt(p []byte, off int64) (int, error) {
	if s.file == nil {
		return 0, fmt.Errorf("device: no medium")
	}
	if s.readOnly {
		return 0, fmt.Errorf("device: write-protected")
	}
	return s.file.WriteAt(p, off)
}

func (s *Storage) Sync() error {
	if s.file == nil {
		return nil
	}
	return s.file.Sync()
}

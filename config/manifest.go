// Package config decodes the YAML device manifest spec.md §6.3 describes:
// a list of target ids, their LUNs, device kinds, and per-kind options.
// Unknown options are a hard error at attach time rather than silently
// ignored, per spec.md §7's fail-fast error taxonomy.
package config

import (
	"fmt"

	"gopkg.in/yaml.v2"
)

// Manifest is the top-level YAML document: one entry per SCSI target id,
// each listing the LUNs attached to it.
type Manifest struct {
	Targets []TargetSpec `yaml:"targets"`
}

// TargetSpec is one target id's LUN list.
type TargetSpec struct {
	ID   byte      `yaml:"id"`
	Luns []LunSpec `yaml:"luns"`
}

// LunSpec names a device kind, its LUN number, and its options, decoded
// loosely here and validated strictly by Validate for the named kind.
type LunSpec struct {
	Lun     int               `yaml:"lun"`
	Kind    string            `yaml:"kind"`
	Options map[string]string `yaml:"options"`
}

// ParseManifest decodes raw YAML into a Manifest. It does not validate
// per-kind options; callers run those through Validate.
func ParseManifest(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("config: parse manifest: %w", err)
	}
	for _, t := range m.Targets {
		seen := make(map[int]bool)
		for _, l := range t.Luns {
			if l.Lun < 0 || l.Lun >= 32 {
				return nil, fmt.Errorf("config: target %d: lun %d out of range", t.ID, l.Lun)
			}
			if seen[l.Lun] {
				return nil, fmt.Errorf("config: target %d: duplicate lun %d", t.ID, l.Lun)
			}
			seen[l.Lun] = true
		}
	}
	return &m, nil
}

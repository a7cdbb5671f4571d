package exchange

import (
	"fmt"
	"strings"
)

// FieldCapability flags describe how a persisted field may be handled by
// storage backends.
type FieldCapability uint8

const (
	// CapIndexed marks a field the store should index for lookups.
	CapIndexed FieldCapability = 1 << iota
	// CapEncrypted marks a field that must be encrypted at rest.
	CapEncrypted
	// CapSearchableEncrypted marks an encrypted field that must still
	// support equality search. Requires CapEncrypted.
	CapSearchableEncrypted
)

// Has reports whether all bits in flag are set.
func (c FieldCapability) Has(flag FieldCapability) bool { return c&flag == flag }

// SchemaDescriptor maps a record type's field names to capability flags.
// It is validated once at registration time, never re-derived per event.
type SchemaDescriptor struct {
	Name    string                     `json:"name"`
	Version int                        `json:"version"`
	Fields  map[string]FieldCapability `json:"fields"`
}

// Validate checks the descriptor's internal consistency.
func (d SchemaDescriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("schema descriptor: empty name")
	}
	if d.Version <= 0 {
		return fmt.Errorf("schema descriptor %s: version must be positive", d.Name)
	}
	if len(d.Fields) == 0 {
		return fmt.Errorf("schema descriptor %s: no fields", d.Name)
	}
	for field, caps := range d.Fields {
		if strings.TrimSpace(field) == "" {
			return fmt.Errorf("schema descriptor %s: empty field name", d.Name)
		}
		if caps.Has(CapSearchableEncrypted) && !caps.Has(CapEncrypted) {
			return fmt.Errorf("schema descriptor %s: field %s is searchable-encrypted but not encrypted", d.Name, field)
		}
	}
	return nil
}

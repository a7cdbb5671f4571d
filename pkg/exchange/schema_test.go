package exchange

import "testing"

func TestFieldCapability_Has(t *testing.T) {
	caps := CapIndexed | CapEncrypted
	if !caps.Has(CapIndexed) || !caps.Has(CapEncrypted) {
		t.Fatal("set bits not reported")
	}
	if caps.Has(CapSearchableEncrypted) {
		t.Fatal("unset bit reported")
	}
	if !caps.Has(CapIndexed | CapEncrypted) {
		t.Fatal("combined flags not reported")
	}
}

func TestSchemaDescriptor_Validate(t *testing.T) {
	valid := SchemaDescriptor{
		Name:    "interaction_event",
		Version: 1,
		Fields: map[string]FieldCapability{
			"relationship_key": CapIndexed,
			"outcome_value":    CapEncrypted | CapSearchableEncrypted,
			"response_quality": 0,
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid descriptor rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*SchemaDescriptor)
	}{
		{"blank name", func(d *SchemaDescriptor) { d.Name = "  " }},
		{"zero version", func(d *SchemaDescriptor) { d.Version = 0 }},
		{"no fields", func(d *SchemaDescriptor) { d.Fields = nil }},
		{"blank field name", func(d *SchemaDescriptor) {
			d.Fields = map[string]FieldCapability{"": CapIndexed}
		}},
		{"searchable without encryption", func(d *SchemaDescriptor) {
			d.Fields = map[string]FieldCapability{"outcome_value": CapSearchableEncrypted}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := valid
			tc.mutate(&d)
			if err := d.Validate(); err == nil {
				t.Fatal("invalid descriptor accepted")
			}
		})
	}
}

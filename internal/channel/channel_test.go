package channel

import "testing"

func u8(v uint8) *uint8 { return &v }
func b(v bool) *bool    { return &v }

func baseEntry(id uint8) Entry {
	return Entry{
		ID:                u8(id),
		Enabled:           b(true),
		PulsePolarity:     "Positive",
		Pretrigger:        100,
		Pregate:           10,
		GateShort:         20,
		GateLong:          40,
		TrapezoidRisetime: 5,
	}
}

func TestBuildTableMissingID(t *testing.T) {
	entries := []Entry{{Enabled: b(true)}}
	if _, err := BuildTable(entries); err == nil {
		t.Error("expected error for missing id")
	}
}

func TestBuildTableMissingEnabled(t *testing.T) {
	entries := []Entry{{ID: u8(1)}}
	if _, err := BuildTable(entries); err == nil {
		t.Error("expected error for missing enabled")
	}
}

func TestBuildTableDuplicateEnabledID(t *testing.T) {
	entries := []Entry{baseEntry(3), baseEntry(3)}
	if _, err := BuildTable(entries); err == nil {
		t.Error("expected error for duplicate enabled id")
	}
}

func TestBuildTableRejectsPregateNotLessThanPretrigger(t *testing.T) {
	e := Entry{
		ID: u8(1), Enabled: b(true), PulsePolarity: "positive",
		Pretrigger: 10, Pregate: 10, TrapezoidRisetime: 5,
	}
	if _, err := BuildTable([]Entry{e}); err == nil {
		t.Error("expected error for pretrigger <= pregate")
	}
}

func TestBuildTableUnknownPolarity(t *testing.T) {
	e := Entry{
		ID: u8(1), Enabled: b(true), PulsePolarity: "sideways",
		Pretrigger: 100, Pregate: 10, TrapezoidRisetime: 5,
	}
	if _, err := BuildTable([]Entry{e}); err == nil {
		t.Error("expected error for unknown polarity")
	}
}

func TestBuildTablePolarityCaseInsensitiveSubstring(t *testing.T) {
	e := Entry{
		ID: u8(1), Enabled: b(true), PulsePolarity: "very NEGATIVE indeed",
		Pretrigger: 100, Pregate: 10, TrapezoidRisetime: 5,
	}
	table, err := BuildTable([]Entry{e})
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	p, ok := table.Get(1)
	if !ok {
		t.Fatal("expected channel 1 to be present")
	}
	if p.PulsePolarity != Negative {
		t.Errorf("polarity = %v, want Negative", p.PulsePolarity)
	}
}

// Invariant 4: two lookups of the same id on the same Table return the
// same record.
func TestGetIsPure(t *testing.T) {
	e := Entry{
		ID: u8(7), Enabled: b(true), PulsePolarity: "positive",
		Pretrigger: 100, Pregate: 10, TrapezoidRisetime: 5, GateShort: 30,
	}
	table, err := BuildTable([]Entry{e})
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	p1, ok1 := table.Get(7)
	p2, ok2 := table.Get(7)
	if !ok1 || !ok2 || p1 != p2 {
		t.Errorf("Get not pure: (%v,%v) != (%v,%v)", p1, ok1, p2, ok2)
	}
}

func TestGetUnknownOrDisabledChannel(t *testing.T) {
	disabled := Entry{ID: u8(2), Enabled: b(false)}
	table, err := BuildTable([]Entry{disabled})
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	if _, ok := table.Get(2); ok {
		t.Error("expected disabled channel to report ok=false")
	}
	if _, ok := table.Get(99); ok {
		t.Error("expected unknown channel to report ok=false")
	}
}

func TestGetOnNilTable(t *testing.T) {
	var table *Table
	if _, ok := table.Get(1); ok {
		t.Error("expected nil table Get to report ok=false")
	}
}

type fakeUnmarshaler struct {
	entries []Entry
	err     error
}

func (f fakeUnmarshaler) UnmarshalKey(key string, rawVal interface{}) error {
	if f.err != nil {
		return f.err
	}
	ptr := rawVal.(*[]Entry)
	*ptr = f.entries
	return nil
}

func TestBuildFromConfig(t *testing.T) {
	e := Entry{
		ID: u8(4), Enabled: b(true), PulsePolarity: "positive",
		Pretrigger: 100, Pregate: 10, TrapezoidRisetime: 5,
	}
	table, err := BuildFromConfig(fakeUnmarshaler{entries: []Entry{e}})
	if err != nil {
		t.Fatalf("BuildFromConfig: %v", err)
	}
	if _, ok := table.Get(4); !ok {
		t.Error("expected channel 4 to be present")
	}
}

package proxy

import (
	"testing"

	"github.com/haianbui/clawrouter/internal/catalog"
)

func TestStats_RecordAndSnapshot(t *testing.T) {
	s := NewStats(1000)

	s.Record(catalog.Simple, "gpt-4o-mini", 0.5)
	s.Record(catalog.Simple, "gpt-4o-mini", 0.25)
	s.Record(catalog.Medium, "gpt-4o", 0.1)

	snap := s.Snapshot()
	if snap.ByTier[string(catalog.Simple)] != 2 {
		t.Errorf("ByTier[SIMPLE] = %d, want 2", snap.ByTier[string(catalog.Simple)])
	}
	if snap.ByModel["gpt-4o-mini"] != 2 {
		t.Errorf("ByModel[gpt-4o-mini] = %d, want 2", snap.ByModel["gpt-4o-mini"])
	}
	if snap.ByModel["gpt-4o"] != 1 {
		t.Errorf("ByModel[gpt-4o] = %d, want 1", snap.ByModel["gpt-4o"])
	}
	want := 0.5 + 0.25 + 0.1
	diff := snap.TotalSavingsUSD - want
	if diff < 0 {
		diff = -diff
	}
	if diff > 1e-9 {
		t.Errorf("TotalSavingsUSD = %f, want %f", snap.TotalSavingsUSD, want)
	}
	if snap.StartedAt != 1000 {
		t.Errorf("StartedAt = %d, want 1000", snap.StartedAt)
	}
}

func TestStats_Snapshot_EmptyLedger(t *testing.T) {
	s := NewStats(0)
	snap := s.Snapshot()
	if len(snap.ByTier) != 0 || len(snap.ByModel) != 0 || snap.TotalSavingsUSD != 0 {
		t.Errorf("Snapshot() of empty ledger = %+v, want all zero", snap)
	}
}

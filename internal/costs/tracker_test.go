package costs

import (
	"testing"

	"github.com/haianbui/clawrouter/internal/catalog"
)

func testTrackerCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.ModelEntry{
		{ID: "m1", Tier: catalog.Simple, InputPricePerMTok: 1.0, OutputPricePerMTok: 2.0},
	}, "m1")
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	return cat
}

func TestTracker_TrackUsage(t *testing.T) {
	cat := testTrackerCatalog(t)
	tr := NewTracker(cat, Config{DailyBudgetUSD: 10, MonthlyBudgetUSD: 100})

	cost := tr.TrackUsage("m1", 1_000_000, 500_000)
	want := 1.0 + 1.0 // 1M input at $1/M + 0.5M output at $2/M
	if cost != want {
		t.Errorf("TrackUsage() cost = %f, want %f", cost, want)
	}

	status := tr.GetStatus()
	if status.DailySpend != cost {
		t.Errorf("GetStatus().DailySpend = %f, want %f", status.DailySpend, cost)
	}
	if status.RequestCount != 1 {
		t.Errorf("GetStatus().RequestCount = %d, want 1", status.RequestCount)
	}
	if status.TokenCount != 1_500_000 {
		t.Errorf("GetStatus().TokenCount = %d, want 1500000", status.TokenCount)
	}
}

func TestTracker_TrackUsage_UnknownModel(t *testing.T) {
	cat := testTrackerCatalog(t)
	tr := NewTracker(cat, Config{})

	cost := tr.TrackUsage("does-not-exist", 1000, 1000)
	if cost != 0 {
		t.Errorf("TrackUsage() for unknown model: cost = %f, want 0", cost)
	}
}

func TestTracker_CheckBudget(t *testing.T) {
	cat := testTrackerCatalog(t)
	tr := NewTracker(cat, Config{DailyBudgetUSD: 5.0})

	if allowed, _ := tr.CheckBudget(4.0); !allowed {
		t.Error("CheckBudget(4.0) against 5.0 budget: allowed = false, want true")
	}

	tr.TrackUsage("m1", 4_000_000, 0) // $4 spent
	if allowed, reason := tr.CheckBudget(2.0); allowed {
		t.Errorf("CheckBudget(2.0) after $4 spent against $5 budget: allowed = true, want false (reason=%q)", reason)
	}
}

func TestTracker_CheckBudget_ZeroBudgetDisablesGate(t *testing.T) {
	cat := testTrackerCatalog(t)
	tr := NewTracker(cat, Config{})

	if allowed, _ := tr.CheckBudget(1_000_000); !allowed {
		t.Error("CheckBudget() with zero budget configured: allowed = false, want true (budget gate disabled)")
	}
}

func TestTracker_GetStatus_RemainingAndPercent(t *testing.T) {
	cat := testTrackerCatalog(t)
	tr := NewTracker(cat, Config{DailyBudgetUSD: 10.0})

	tr.TrackUsage("m1", 5_000_000, 0) // $5 spent

	status := tr.GetStatus()
	if status.DailyRemaining != 5.0 {
		t.Errorf("DailyRemaining = %f, want 5.0", status.DailyRemaining)
	}
	if status.DailyPercent != 50.0 {
		t.Errorf("DailyPercent = %f, want 50.0", status.DailyPercent)
	}
}

func TestMax0AndSafePercent(t *testing.T) {
	if got := max0(-5); got != 0 {
		t.Errorf("max0(-5) = %f, want 0", got)
	}
	if got := max0(5); got != 5 {
		t.Errorf("max0(5) = %f, want 5", got)
	}
	if got := safePercent(5, 0); got != 0 {
		t.Errorf("safePercent(5, 0) = %f, want 0", got)
	}
	if got := safePercent(25, 100); got != 25 {
		t.Errorf("safePercent(25, 100) = %f, want 25", got)
	}
}

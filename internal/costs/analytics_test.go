package costs

import (
	"testing"
	"time"

	"github.com/haianbui/clawrouter/internal/catalog"
)

func testAnalyticsCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.ModelEntry{
		{ID: "m1", Tier: catalog.Simple, InputPricePerMTok: 1.0, OutputPricePerMTok: 2.0},
	}, "m1")
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	return cat
}

func TestAnalytics_RecordSnapshot_RespectsInterval(t *testing.T) {
	cat := testAnalyticsCatalog(t)
	tr := NewTracker(cat, Config{})
	a := NewAnalytics(AnalyticsConfig{Tracker: tr, SnapshotInterval: time.Hour})

	a.RecordSnapshot()
	a.RecordSnapshot() // should be a no-op, interval not elapsed

	if len(a.history) != 1 {
		t.Errorf("len(history) = %d, want 1 (second snapshot suppressed)", len(a.history))
	}
}

func TestAnalytics_RecordSnapshot_CapsHistorySize(t *testing.T) {
	cat := testAnalyticsCatalog(t)
	tr := NewTracker(cat, Config{})
	a := NewAnalytics(AnalyticsConfig{Tracker: tr, MaxHistorySize: 3, SnapshotInterval: 0})

	for i := 0; i < 5; i++ {
		a.lastSnapshot = time.Time{} // force RecordSnapshot to not skip
		a.RecordSnapshot()
	}

	if len(a.history) != 3 {
		t.Errorf("len(history) = %d, want capped at 3", len(a.history))
	}
}

func TestAnalytics_PredictMonthlyCost(t *testing.T) {
	cat := testAnalyticsCatalog(t)
	tr := NewTracker(cat, Config{MonthlyBudgetUSD: 50.0})
	tr.TrackUsage("m1", 10_000_000, 5_000_000)

	a := NewAnalytics(AnalyticsConfig{Tracker: tr})
	prediction := a.PredictMonthlyCost()

	if prediction.CurrentMonthlySpend <= 0 {
		t.Errorf("CurrentMonthlySpend = %f, want > 0", prediction.CurrentMonthlySpend)
	}
	if prediction.Confidence < 0 || prediction.Confidence > 1 {
		t.Errorf("Confidence = %f, want within [0, 1]", prediction.Confidence)
	}
	if prediction.MonthlyBudget != 50.0 {
		t.Errorf("MonthlyBudget = %f, want 50.0", prediction.MonthlyBudget)
	}
}

func TestAnalytics_GetAlerts_ThresholdCrossing(t *testing.T) {
	cat := testAnalyticsCatalog(t)
	tr := NewTracker(cat, Config{DailyBudgetUSD: 10.0})
	tr.TrackUsage("m1", 8_000_000, 0) // $8 spent, 80% of $10 budget

	a := NewAnalytics(AnalyticsConfig{Tracker: tr})
	alerts := a.GetAlerts()

	var found bool
	for _, alert := range alerts {
		if alert.Type == "daily_budget_75" {
			found = true
		}
	}
	if !found {
		t.Errorf("GetAlerts() = %+v, want a daily_budget_75 alert at 80%% spend", alerts)
	}
}

func TestAnalytics_GetAlerts_NoAlertsBelowThreshold(t *testing.T) {
	cat := testAnalyticsCatalog(t)
	tr := NewTracker(cat, Config{DailyBudgetUSD: 1000.0, MonthlyBudgetUSD: 1000.0})
	tr.TrackUsage("m1", 1_000_000, 0) // tiny fraction of budget

	a := NewAnalytics(AnalyticsConfig{Tracker: tr})
	alerts := a.GetAlerts()
	if len(alerts) != 0 {
		t.Errorf("GetAlerts() = %+v, want no alerts at low spend", alerts)
	}
}

func TestTrendMetrics_EmptyAndComputed(t *testing.T) {
	if got := trendMetrics(nil); got != (TrendMetrics{}) {
		t.Errorf("trendMetrics(nil) = %+v, want zero value", got)
	}

	now := time.Now()
	snaps := []Snapshot{
		{Timestamp: now.Add(-2 * time.Hour), TotalSpend: 1.0, RequestCount: 1, TokenCount: 100},
		{Timestamp: now, TotalSpend: 3.0, RequestCount: 4, TokenCount: 400},
	}
	m := trendMetrics(snaps)
	if m.SpendChange != 2.0 {
		t.Errorf("SpendChange = %f, want 2.0", m.SpendChange)
	}
	if m.RequestChange != 3 {
		t.Errorf("RequestChange = %d, want 3", m.RequestChange)
	}
}

func TestPredictionConfidence(t *testing.T) {
	if got := predictionConfidence(0, 0); got != 0 {
		t.Errorf("predictionConfidence(0, 0) = %f, want 0", got)
	}
	if got := predictionConfidence(14, 2000); got != 1.0 {
		t.Errorf("predictionConfidence(14, 2000) = %f, want 1.0 (both clamped)", got)
	}
}

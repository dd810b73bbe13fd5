package costs

import (
	"sort"
	"sync"
	"time"
)

// Analytics keeps a ring-bounded history of Tracker snapshots and derives
// trends, an end-of-month projection, and threshold alerts from them.
type Analytics struct {
	tracker *Tracker

	mu      sync.Mutex
	history []Snapshot

	maxHistorySize   int
	snapshotInterval time.Duration
	lastSnapshot     time.Time
}

// Snapshot is the ledger state at a point in time.
type Snapshot struct {
	Timestamp    time.Time
	DailySpend   float64
	MonthlySpend float64
	TotalSpend   float64
	RequestCount int64
	TokenCount   int64
}

// AnalyticsConfig configures an Analytics instance's retention.
type AnalyticsConfig struct {
	Tracker          *Tracker
	MaxHistorySize   int           // default 1440 (24h at 1-minute snapshots)
	SnapshotInterval time.Duration // default 1 minute
}

// NewAnalytics builds an Analytics over cfg.Tracker.
func NewAnalytics(cfg AnalyticsConfig) *Analytics {
	if cfg.MaxHistorySize == 0 {
		cfg.MaxHistorySize = 1440
	}
	if cfg.SnapshotInterval == 0 {
		cfg.SnapshotInterval = time.Minute
	}
	return &Analytics{
		tracker:          cfg.Tracker,
		history:          make([]Snapshot, 0, cfg.MaxHistorySize),
		maxHistorySize:   cfg.MaxHistorySize,
		snapshotInterval: cfg.SnapshotInterval,
	}
}

// RecordSnapshot appends the tracker's current status to history, no-op
// if called again before SnapshotInterval has elapsed. Call this from a
// ticker goroutine.
func (a *Analytics) RecordSnapshot() {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	if now.Sub(a.lastSnapshot) < a.snapshotInterval {
		return
	}

	status := a.tracker.GetStatus()
	a.history = append(a.history, Snapshot{
		Timestamp:    now,
		DailySpend:   status.DailySpend,
		MonthlySpend: status.MonthlySpend,
		TotalSpend:   status.TotalSpend,
		RequestCount: status.RequestCount,
		TokenCount:   status.TokenCount,
	})
	a.lastSnapshot = now

	if len(a.history) > a.maxHistorySize {
		a.history = a.history[len(a.history)-a.maxHistorySize:]
	}
}

// TrendMetrics summarizes change over a window.
type TrendMetrics struct {
	SpendChange        float64
	RequestChange      int64
	TokenChange        int64
	DurationHours      float64
	AvgSpendPerHour    float64
	AvgRequestsPerHour float64
}

// Trends buckets spend/request/token change over the last hour, day, and
// week.
type Trends struct {
	Last1Hour   TrendMetrics
	Last24Hours TrendMetrics
	Last7Days   TrendMetrics
}

// GetTrends computes Trends from the retained history.
func (a *Analytics) GetTrends() Trends {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := time.Now()
	return Trends{
		Last1Hour:   trendMetrics(a.filterSinceLocked(now.Add(-time.Hour))),
		Last24Hours: trendMetrics(a.filterSinceLocked(now.Add(-24 * time.Hour))),
		Last7Days:   trendMetrics(a.filterSinceLocked(now.Add(-7 * 24 * time.Hour))),
	}
}

// Prediction is a linear end-of-month cost projection.
type Prediction struct {
	PredictedMonthlyTotal float64
	CurrentMonthlySpend   float64
	DaysElapsed           float64
	DaysRemaining         float64
	DailyAverage          float64
	Confidence            float64
	WillExceedBudget      bool
	PercentOfBudget       float64
	MonthlyBudget         float64
}

// PredictMonthlyCost projects the month's total spend linearly from the
// average daily spend so far.
func (a *Analytics) PredictMonthlyCost() Prediction {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.predictLocked()
}

func (a *Analytics) predictLocked() Prediction {
	now := time.Now()
	status := a.tracker.GetStatus()

	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	lastOfMonth := firstOfMonth.AddDate(0, 1, 0).Add(-time.Second)
	daysInMonth := float64(lastOfMonth.Day())
	daysElapsed := float64(now.Day()) + float64(now.Hour())/24.0
	daysRemaining := daysInMonth - daysElapsed

	dailyAverage := 0.0
	if daysElapsed > 0 {
		dailyAverage = status.MonthlySpend / daysElapsed
	}
	predictedTotal := status.MonthlySpend + dailyAverage*daysRemaining

	confidence := predictionConfidence(daysElapsed, len(a.history))

	willExceed := status.MonthlyBudget > 0 && predictedTotal > status.MonthlyBudget
	percentOfBudget := 0.0
	if status.MonthlyBudget > 0 {
		percentOfBudget = (predictedTotal / status.MonthlyBudget) * 100
	}

	return Prediction{
		PredictedMonthlyTotal: predictedTotal,
		CurrentMonthlySpend:   status.MonthlySpend,
		DaysElapsed:           daysElapsed,
		DaysRemaining:         daysRemaining,
		DailyAverage:          dailyAverage,
		Confidence:            confidence,
		WillExceedBudget:      willExceed,
		PercentOfBudget:       percentOfBudget,
		MonthlyBudget:         status.MonthlyBudget,
	}
}

// Alert is a single threshold crossing, info/warning/critical.
type Alert struct {
	Level     string
	Type      string
	Message   string
	Percent   float64
	Spend     float64
	Budget    float64
	Threshold float64
}

// GetAlerts reports every budget threshold currently crossed, plus a
// warning if the end-of-month projection alone would exceed budget.
func (a *Analytics) GetAlerts() []Alert {
	a.mu.Lock()
	defer a.mu.Unlock()

	status := a.tracker.GetStatus()
	var alerts []Alert

	alerts = append(alerts, budgetAlerts("daily", status.DailySpend, status.DailyBudget, status.DailyPercent)...)
	alerts = append(alerts, budgetAlerts("monthly", status.MonthlySpend, status.MonthlyBudget, status.MonthlyPercent)...)

	prediction := a.predictLocked()
	if prediction.WillExceedBudget && status.MonthlyBudget > 0 {
		alerts = append(alerts, Alert{
			Level:     "warning",
			Type:      "predicted_budget_exceeded",
			Message:   "predicted to exceed monthly budget",
			Percent:   prediction.PercentOfBudget,
			Spend:     prediction.PredictedMonthlyTotal,
			Budget:    status.MonthlyBudget,
			Threshold: 100,
		})
	}

	return alerts
}

func budgetAlerts(period string, spend, budget, percent float64) []Alert {
	if budget <= 0 {
		return nil
	}
	thresholds := []struct {
		level     string
		threshold float64
	}{
		{"critical", 100},
		{"warning", 90},
		{"info", 75},
		{"info", 50},
	}
	for _, th := range thresholds {
		if percent >= th.threshold {
			return []Alert{{
				Level:     th.level,
				Type:      period + "_budget_" + levelSuffix(th.threshold),
				Message:   period + " budget at " + levelSuffix(th.threshold) + "%",
				Percent:   percent,
				Spend:     spend,
				Budget:    budget,
				Threshold: th.threshold,
			}}
		}
	}
	return nil
}

func levelSuffix(threshold float64) string {
	switch threshold {
	case 100:
		return "exceeded"
	case 90:
		return "90"
	case 75:
		return "75"
	case 50:
		return "50"
	default:
		return ""
	}
}

func (a *Analytics) filterSinceLocked(since time.Time) []Snapshot {
	var out []Snapshot
	for _, s := range a.history {
		if !s.Timestamp.Before(since) {
			out = append(out, s)
		}
	}
	return out
}

func trendMetrics(snapshots []Snapshot) TrendMetrics {
	if len(snapshots) == 0 {
		return TrendMetrics{}
	}
	sorted := make([]Snapshot, len(snapshots))
	copy(sorted, snapshots)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	first, last := sorted[0], sorted[len(sorted)-1]
	spendChange := last.TotalSpend - first.TotalSpend
	requestChange := last.RequestCount - first.RequestCount
	tokenChange := last.TokenCount - first.TokenCount
	duration := last.Timestamp.Sub(first.Timestamp).Hours()

	m := TrendMetrics{
		SpendChange:   spendChange,
		RequestChange: requestChange,
		TokenChange:   tokenChange,
		DurationHours: duration,
	}
	if duration > 0 {
		m.AvgSpendPerHour = spendChange / duration
		m.AvgRequestsPerHour = float64(requestChange) / duration
	}
	return m
}

func predictionConfidence(daysElapsed float64, historySize int) float64 {
	dayConfidence := daysElapsed / 7.0
	if dayConfidence > 1.0 {
		dayConfidence = 1.0
	}
	historyConfidence := float64(historySize) / 1440.0
	if historyConfidence > 1.0 {
		historyConfidence = 1.0
	}
	return dayConfidence*0.7 + historyConfidence*0.3
}

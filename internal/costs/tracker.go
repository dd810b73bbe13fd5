// Package costs turns the per-request cost figures a RoutingDecision
// already carries into a running daily/monthly ledger with budget alerts
// and an end-of-month projection.
package costs

import (
	"sync"
	"time"

	"github.com/haianbui/clawrouter/internal/catalog"
)

// Tracker accumulates spend across requests and resets its daily/monthly
// counters on calendar boundaries.
type Tracker struct {
	mu sync.Mutex

	catalog *catalog.Catalog

	dailyBudget   float64
	monthlyBudget float64

	dailySpend   float64
	monthlySpend float64
	totalSpend   float64

	lastDayReset   time.Time
	lastMonthReset time.Time

	requestCount int64
	tokenCount   int64
}

// Config configures a Tracker's budgets. A zero budget disables that
// budget's alerts and CheckBudget gate.
type Config struct {
	DailyBudgetUSD   float64
	MonthlyBudgetUSD float64
}

// Status is a point-in-time read of the ledger, suitable for GET /stats.
type Status struct {
	DailySpend     float64
	DailyBudget    float64
	DailyRemaining float64
	DailyPercent   float64

	MonthlySpend     float64
	MonthlyBudget    float64
	MonthlyRemaining float64
	MonthlyPercent   float64

	TotalSpend   float64
	RequestCount int64
	TokenCount   int64
}

// NewTracker builds a Tracker that prices usage against cat's per-model
// rates.
func NewTracker(cat *catalog.Catalog, cfg Config) *Tracker {
	now := time.Now()
	return &Tracker{
		catalog:        cat,
		dailyBudget:    cfg.DailyBudgetUSD,
		monthlyBudget:  cfg.MonthlyBudgetUSD,
		lastDayReset:   now,
		lastMonthReset: now,
	}
}

// TrackUsage reconciles the actual prompt/completion token counts an
// upstream reported against the catalog's pricing for model, records the
// cost into the ledger, and returns it.
func (t *Tracker) TrackUsage(model string, promptTokens, completionTokens int) float64 {
	cost := t.priceUsage(model, promptTokens, completionTokens)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.maybeResetPeriodsLocked()

	t.dailySpend += cost
	t.monthlySpend += cost
	t.totalSpend += cost
	t.requestCount++
	t.tokenCount += int64(promptTokens + completionTokens)

	return cost
}

func (t *Tracker) priceUsage(model string, promptTokens, completionTokens int) float64 {
	entry, ok := t.catalog.Get(model)
	if !ok {
		return 0
	}
	input := float64(promptTokens) * entry.InputPricePerMTok / 1_000_000
	output := float64(completionTokens) * entry.OutputPricePerMTok / 1_000_000
	return input + output
}

// CheckBudget reports whether adding estimatedCost would stay within the
// configured daily and monthly budgets.
func (t *Tracker) CheckBudget(estimatedCost float64) (allowed bool, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.maybeResetPeriodsLocked()

	if t.dailyBudget > 0 && t.dailySpend+estimatedCost > t.dailyBudget {
		return false, "daily budget exceeded"
	}
	if t.monthlyBudget > 0 && t.monthlySpend+estimatedCost > t.monthlyBudget {
		return false, "monthly budget exceeded"
	}
	return true, ""
}

// GetStatus returns the current ledger state.
func (t *Tracker) GetStatus() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.maybeResetPeriodsLocked()

	return Status{
		DailySpend:     t.dailySpend,
		DailyBudget:    t.dailyBudget,
		DailyRemaining: max0(t.dailyBudget - t.dailySpend),
		DailyPercent:   safePercent(t.dailySpend, t.dailyBudget),

		MonthlySpend:     t.monthlySpend,
		MonthlyBudget:    t.monthlyBudget,
		MonthlyRemaining: max0(t.monthlyBudget - t.monthlySpend),
		MonthlyPercent:   safePercent(t.monthlySpend, t.monthlyBudget),

		TotalSpend:   t.totalSpend,
		RequestCount: t.requestCount,
		TokenCount:   t.tokenCount,
	}
}

// maybeResetPeriodsLocked must be called with mu held.
func (t *Tracker) maybeResetPeriodsLocked() {
	now := time.Now()
	if now.YearDay() != t.lastDayReset.YearDay() || now.Year() != t.lastDayReset.Year() {
		t.dailySpend = 0
		t.lastDayReset = now
	}
	if now.Month() != t.lastMonthReset.Month() || now.Year() != t.lastMonthReset.Year() {
		t.monthlySpend = 0
		t.lastMonthReset = now
	}
}

func safePercent(spend, budget float64) float64 {
	if budget <= 0 {
		return 0
	}
	return (spend / budget) * 100
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

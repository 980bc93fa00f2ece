package cache

import "time"

// DefaultTTL is used for categories and series without a table entry.
const DefaultTTL = time.Hour

// categoryTTL maps broad data categories to how long their entries stay
// fresh. Intraday buckets (rates, indices, FX) get short TTLs; slow-moving
// series (monthly CPI, quarterly GDP) get long ones.
var categoryTTL = map[string]time.Duration{
	"market_index":  15 * time.Minute,
	"interest_rate": time.Hour,
	"exchange_rate": 30 * time.Minute,
	"commodity":     time.Hour,
	"inflation":     12 * time.Hour,
	"employment":    12 * time.Hour,
	"housing":       24 * time.Hour,
	"gdp":           24 * time.Hour,
	"ai_analysis":   4 * time.Hour,
}

// seriesTTL overrides the category default for individual series, e.g. a
// daily-updated series living inside an otherwise monthly category.
var seriesTTL = map[string]time.Duration{
	"SP500":      15 * time.Minute,   // S&P 500, intraday
	"DJIA":       15 * time.Minute,   // Dow Jones, intraday
	"DFF":        time.Hour,          // federal funds rate, daily
	"DGS10":      time.Hour,          // 10-year treasury yield, daily
	"DCOILWTICO": time.Hour,          // WTI crude, daily series in a slow bucket
	"CPIAUCSL":   24 * time.Hour,     // CPI, monthly release
	"UNRATE":     24 * time.Hour,     // unemployment rate, monthly release
	"GDP":        7 * 24 * time.Hour, // quarterly release
	"GDPC1":      7 * 24 * time.Hour, // real GDP, quarterly release
}

// TTLFor returns the freshness window for a (category, series) pair. A series
// override wins over its category default. Pure lookup; never depends on the
// current time or entry age.
func TTLFor(category, seriesID string) time.Duration {
	if ttl, ok := seriesTTL[seriesID]; ok {
		return ttl
	}
	if ttl, ok := categoryTTL[category]; ok {
		return ttl
	}
	return DefaultTTL
}

// IsFresh reports whether the entry is still inside its freshness window at
// the given instant.
func IsFresh(e Entry, ttl time.Duration, now time.Time) bool {
	return now.Sub(e.Time()) < ttl
}

package fredapi

import "fmt"

// TrendPoint is one observation in an indicator's history.
type TrendPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// Indicator is one economic series as shaped by the FRED proxy: the latest
// value, the previous one, the formatted change, and a trend window for
// charting.
type Indicator struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Value    string       `json:"value"`
	Previous string       `json:"previous"`
	Change   string       `json:"change"`
	Date     string       `json:"date"`
	Unit     string       `json:"unit"`
	Trend    []TrendPoint `json:"trend"`
}

// ObservationsRequest selects which series to fetch. Either Category or
// SeriesID is set; TimeSpanMonths bounds the trend window.
type ObservationsRequest struct {
	Category       string `json:"category,omitempty"`
	SeriesID       string `json:"seriesId,omitempty"`
	TimeSpanMonths int    `json:"timeSpan"`
	ForceRefresh   bool   `json:"forceRefresh,omitempty"`
}

// CacheKey returns the deterministic cache key for this request: the same
// logical request always lands on the same entry.
func (r ObservationsRequest) CacheKey() string {
	subject := r.SeriesID
	if subject == "" {
		subject = r.Category
	}
	return fmt.Sprintf("econ_%s_%d", subject, r.TimeSpanMonths)
}

// Package hitstore persists individual hit events for analytics. Two
// backends implement core.HitStorage: a SQLite rowstore for single-box
// deployments and a ClickHouse columnstore for high-volume ones. The
// Buffered wrapper batches single-event writes in front of either.
//
// Aggregations follow the same rules in both backends: empty dimension
// values (device, browser, country) count under the "unknown" label,
// top referers exclude empty values and break count ties by referer
// ascending, and hits-over-time covers the trailing N days in UTC.
package hitstore

import (
	"time"

	"github.com/shortr-io/shortr/internal/core"
)

// dayFormat is the wire format for per-day buckets.
const dayFormat = "2006-01-02"

// windowStart returns midnight UTC of the first day in a trailing
// window of days ending today.
func windowStart(now time.Time, days int) time.Time {
	return now.UTC().Truncate(24 * time.Hour).AddDate(0, 0, -(days - 1))
}

// fillDays expands grouped counts into one entry per day, oldest first,
// zero-filling days without hits.
func fillDays(now time.Time, days int, counts map[string]int64) []core.DayCount {
	start := windowStart(now, days)
	out := make([]core.DayCount, 0, days)
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format(dayFormat)
		out = append(out, core.DayCount{Date: date, Count: counts[date]})
	}
	return out
}

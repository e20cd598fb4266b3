package core

import "time"

// URLRecord is the authoritative representation of a shortened URL.
// ShortCode is empty only during the brief second phase of creation,
// before the generated code is assigned.
type URLRecord struct {
	ID        int64      `db:"id" json:"id"`
	LongURL   string     `db:"long_url" json:"long_url"`
	ShortCode string     `db:"short_code" json:"short_code"`
	TotalHits int64      `db:"total_hits" json:"total_hits"`
	IsActive  bool       `db:"is_active" json:"is_active"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at"`
}

// HitEvent is one redirect, as published to the queue and stored for
// analytics. The wire format is a single JSON object under the stream
// field "data". Timestamps are UTC.
type HitEvent struct {
	ShortCode  string    `json:"short_code"`
	Timestamp  time.Time `json:"timestamp"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Referer    string    `json:"referer,omitempty"`
	Country    string    `json:"country,omitempty"`
	DeviceType string    `json:"device_type,omitempty"`
	Browser    string    `json:"browser,omitempty"`

	// MessageID is assigned by the queue backend on consume and is the
	// handle passed back to Ack. Never serialized.
	MessageID string `json:"-"`
}

// URLStats summarizes one short URL: the authoritative counter plus,
// when hit storage is wired in, the analytical breakdowns.
type URLStats struct {
	ShortCode    string        `json:"short_code"`
	TotalHits    int64         `json:"total_hits"`
	CreatedAt    time.Time     `json:"created_at"`
	LastAccessed *time.Time    `json:"last_accessed"`
	Analytics    *HitAnalytics `json:"analytics,omitempty"`
}

// HitAnalytics aggregates hit storage over one short code. Dimension
// values missing from an event are reported under "unknown".
type HitAnalytics struct {
	ByDevice    map[string]int64 `json:"by_device"`
	ByBrowser   map[string]int64 `json:"by_browser"`
	ByCountry   map[string]int64 `json:"by_country"`
	TopReferers []RefererCount   `json:"top_referers"`
	Daily       []DayCount       `json:"daily"`
}

// RefererCount is one entry of a top-referers ranking.
type RefererCount struct {
	Referer string `json:"referer" db:"referer"`
	Count   int64  `json:"count" db:"count"`
}

// DayCount is one day of hit history. Date is YYYY-MM-DD in UTC.
type DayCount struct {
	Date  string `json:"date" db:"date"`
	Count int64  `json:"count" db:"count"`
}

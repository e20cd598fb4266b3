package hitstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shortr-io/shortr/internal/config"
	"github.com/shortr-io/shortr/internal/core"
)

func newTestRowstore(t *testing.T) *Rowstore {
	t.Helper()
	s, err := NewRowstore(filepath.Join(t.TempDir(), "hits.db"), nil)
	require.NoError(t, err, "Failed to open rowstore")
	t.Cleanup(func() { s.Close() })
	return s
}

func hitAt(code string, ts time.Time) *core.HitEvent {
	return &core.HitEvent{
		ShortCode:  code,
		Timestamp:  ts,
		IPAddress:  "203.0.113.7",
		UserAgent:  "Mozilla/5.0",
		Referer:    "https://a.example/",
		Country:    "DE",
		DeviceType: "desktop",
		Browser:    "Firefox",
	}
}

func TestRowstoreStoreAndTotals(t *testing.T) {
	s := newTestRowstore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.StoreHit(ctx, hitAt("kh", now)))
	require.NoError(t, s.StoreHit(ctx, hitAt("kh", now)))
	require.NoError(t, s.StoreHit(ctx, hitAt("kg", now)))

	n, err := s.TotalHits(ctx, "kh")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.TotalHits(ctx, "kg")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.TotalHits(ctx, "nope")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestRowstoreStoreHitsBatch(t *testing.T) {
	s := newTestRowstore(t)
	ctx := context.Background()
	now := time.Now()

	batch := []*core.HitEvent{hitAt("kh", now), hitAt("kh", now), hitAt("kh", now)}
	require.NoError(t, s.StoreHits(ctx, batch))

	n, err := s.TotalHits(ctx, "kh")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, s.StoreHits(ctx, nil), "empty batch is a no-op")
}

func TestRowstoreBreakdowns(t *testing.T) {
	s := newTestRowstore(t)
	ctx := context.Background()
	now := time.Now()

	events := []*core.HitEvent{
		{ShortCode: "kh", Timestamp: now, DeviceType: "desktop", Browser: "Firefox", Country: "DE"},
		{ShortCode: "kh", Timestamp: now, DeviceType: "desktop", Browser: "Chrome", Country: "DE"},
		{ShortCode: "kh", Timestamp: now, DeviceType: "mobile", Browser: "Chrome", Country: "DE"},
		{ShortCode: "kh", Timestamp: now},
		// A different code must not leak into kh aggregates.
		{ShortCode: "zz", Timestamp: now, DeviceType: "tablet", Browser: "Safari", Country: "JP"},
	}
	require.NoError(t, s.StoreHits(ctx, events))

	devices, err := s.HitsByDevice(ctx, "kh")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"desktop": 2, "mobile": 1, "unknown": 1}, devices)

	browsers, err := s.HitsByBrowser(ctx, "kh")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Firefox": 1, "Chrome": 2, "unknown": 1}, browsers)

	countries, err := s.HitsByCountry(ctx, "kh")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"DE": 3, "unknown": 1}, countries)
}

func TestRowstoreTopReferers(t *testing.T) {
	s := newTestRowstore(t)
	ctx := context.Background()
	now := time.Now()

	ref := func(r string) *core.HitEvent {
		return &core.HitEvent{ShortCode: "kh", Timestamp: now, Referer: r}
	}
	events := []*core.HitEvent{
		ref("https://a.example/"), ref("https://a.example/"),
		ref("https://b.example/"), ref("https://b.example/"),
		ref("https://c.example/"),
		ref(""), ref(""),
	}
	require.NoError(t, s.StoreHits(ctx, events))

	top, err := s.TopReferers(ctx, "kh", 2)
	require.NoError(t, err)
	assert.Equal(t, []core.RefererCount{
		{Referer: "https://a.example/", Count: 2},
		{Referer: "https://b.example/", Count: 2},
	}, top, "count ties break by referer ascending")

	all, err := s.TopReferers(ctx, "kh", 10)
	require.NoError(t, err)
	assert.Equal(t, []core.RefererCount{
		{Referer: "https://a.example/", Count: 2},
		{Referer: "https://b.example/", Count: 2},
		{Referer: "https://c.example/", Count: 1},
	}, all, "empty referers are excluded")

	none, err := s.TopReferers(ctx, "kh", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRowstoreHitsOverTime(t *testing.T) {
	s := newTestRowstore(t)
	ctx := context.Background()

	today := time.Now().UTC().Truncate(24 * time.Hour).Add(12 * time.Hour)
	yesterday := today.AddDate(0, 0, -1)
	lastWeek := today.AddDate(0, 0, -7)

	events := []*core.HitEvent{
		hitAt("kh", today), hitAt("kh", today),
		hitAt("kh", yesterday),
		hitAt("kh", lastWeek),
	}
	require.NoError(t, s.StoreHits(ctx, events))

	series, err := s.HitsOverTime(ctx, "kh", 3)
	require.NoError(t, err)
	require.Len(t, series, 3)

	assert.Equal(t, today.AddDate(0, 0, -2).Format("2006-01-02"), series[0].Date)
	assert.Equal(t, int64(0), series[0].Count, "days without hits are zero-filled")
	assert.Equal(t, yesterday.Format("2006-01-02"), series[1].Date)
	assert.Equal(t, int64(1), series[1].Count)
	assert.Equal(t, today.Format("2006-01-02"), series[2].Date)
	assert.Equal(t, int64(2), series[2].Count)

	none, err := s.HitsOverTime(ctx, "kh", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRowstoreClosedErrors(t *testing.T) {
	s := newTestRowstore(t)
	require.NoError(t, s.Close())

	err := s.StoreHit(context.Background(), hitAt("kh", time.Now()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrStorageBackendFailure))

	_, err = s.TotalHits(context.Background(), "kh")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrStorageBackendFailure))
}

func TestRowstoreRejectsEmptyPath(t *testing.T) {
	_, err := NewRowstore("", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidConfiguration))
}

func TestHitStoreFactory(t *testing.T) {
	t.Run("rowstore", func(t *testing.T) {
		s, err := New(config.HitStorageConfig{
			Backend: config.HitStoreRow,
			Target:  filepath.Join(t.TempDir(), "hits.db"),
		}, nil)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &Rowstore{}, s)
	})

	t.Run("buffered rowstore", func(t *testing.T) {
		s, err := New(config.HitStorageConfig{
			Backend:       config.HitStoreRow,
			Target:        filepath.Join(t.TempDir(), "hits.db"),
			Buffered:      true,
			BufferSize:    10,
			FlushInterval: time.Second,
		}, nil)
		require.NoError(t, err)
		defer s.Close()
		assert.IsType(t, &Buffered{}, s)
	})

	t.Run("columnstore without DSN", func(t *testing.T) {
		_, err := New(config.HitStorageConfig{Backend: config.HitStoreColumn}, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrInvalidConfiguration))
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := New(config.HitStorageConfig{Backend: "parquet"}, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrInvalidConfiguration))
	})
}

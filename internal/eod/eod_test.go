package eod

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartapi-basket/internal/quotelog"
	"smartapi-basket/internal/types"
)

func quote(ltp string, vol int64) *types.Quote {
	return &types.Quote{Exchange: "NSE", LTP: decimal.RequireFromString(ltp), Volume: vol}
}

func TestSummarizeDay(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 10, 16, 10, 0, 0, 0, ist)

	var lines []byte
	for i, snap := range []map[string]*types.Quote{
		{"ITC": quote("400", 50), "SBIN": quote("570", 100)},
		{"ITC": quote("396", 80), "SBIN": quote("580", 150)},
		{"SBIN": quote("574.2", 200)},
	} {
		for _, sym := range []string{"ITC", "SBIN"} {
			q, ok := snap[sym]
			if !ok {
				continue
			}
			b, err := json.Marshal(quotelog.Entry{
				Time:   day.Add(time.Duration(i) * time.Minute).Format("2006-01-02 15:04:05"),
				Symbol: sym,
				Mode:   "LTP",
				Quote:  q,
			})
			require.NoError(t, err)
			lines = append(append(lines, b...), '\n')
		}
	}
	lines = append(lines, "not json\n"...)
	require.NoError(t, os.WriteFile(quotelog.Path(dir, day), lines, 0o644))

	s := &eodSummarizer{dir: dir, now: func() time.Time { return day }}
	p, err := s.SummarizeToday(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "eod", "2026-10-16.csv"), p)

	out, err := os.Open(p)
	require.NoError(t, err)
	defer out.Close()
	rows, err := csv.NewReader(out).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "symbol", rows[0][0])
	assert.Equal(t, []string{"ITC", "NSE", "2"}, rows[1][:3])
	assert.Equal(t, "-1.00", rows[1][9])
	assert.Equal(t, "SBIN", rows[2][0])
	assert.Equal(t, "3", rows[2][2])
	assert.Equal(t, "570.00", rows[2][5])
	assert.Equal(t, "574.20", rows[2][6])
	assert.Equal(t, "580.00", rows[2][7])
	assert.Equal(t, "570.00", rows[2][8])
	assert.Equal(t, "0.74", rows[2][9])
	assert.Equal(t, "200", rows[2][10])
}

func TestSummarizeDayWithoutLog(t *testing.T) {
	s := NewSummarizer(t.TempDir())
	p, err := s.SummarizeDay(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestShouldRunNow(t *testing.T) {
	dir := t.TempDir()
	before := time.Date(2026, 10, 16, 15, 0, 0, 0, ist)
	after := time.Date(2026, 10, 16, 15, 45, 0, 0, ist)

	s := &eodSummarizer{dir: dir, now: func() time.Time { return before }}
	run, _ := s.ShouldRunNow()
	assert.False(t, run)

	s.now = func() time.Time { return after }
	run, p := s.ShouldRunNow()
	assert.True(t, run)

	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte("symbol\n"), 0o644))
	run, _ = s.ShouldRunNow()
	assert.False(t, run)
}

func TestShouldRunNowOnceForEmptyDay(t *testing.T) {
	after := time.Date(2026, 10, 16, 15, 45, 0, 0, ist)
	s := &eodSummarizer{dir: t.TempDir(), now: func() time.Time { return after }}

	run, _ := s.ShouldRunNow()
	require.True(t, run)

	p, err := s.SummarizeToday(context.Background())
	require.NoError(t, err)
	assert.Empty(t, p)

	run, _ = s.ShouldRunNow()
	assert.False(t, run, "a day without quotes is attempted once")

	s.now = func() time.Time { return after.AddDate(0, 0, 1) }
	run, _ = s.ShouldRunNow()
	assert.True(t, run)
}

package eod

import (
	"path/filepath"
	"time"

	"smartapi-basket/internal/quotelog"
)

var ist = time.FixedZone("IST", 19800)

func istNow() time.Time {
	return time.Now().In(ist)
}

func dayKey(t time.Time) string {
	return t.In(ist).Format("2006-01-02")
}

func eodCSVPath(dir string, t time.Time) string {
	return filepath.Join(dir, "eod", dayKey(t)+".csv")
}

func quoteFile(dir string, t time.Time) string {
	return quotelog.Path(dir, t)
}

// marketCloseTime is when the summary for t's day may be written.
func marketCloseTime(t time.Time) time.Time {
	t = t.In(ist)
	return time.Date(t.Year(), t.Month(), t.Day(), 15, 40, 0, 0, ist)
}

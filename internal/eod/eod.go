// Package eod writes an end-of-day CSV summary of the quote log.
package eod

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"smartapi-basket/internal/interfaces"
	"smartapi-basket/internal/logger"
)

type eodSummarizer struct {
	dir string
	now func() time.Time

	mu sync.Mutex
	// days summarized by this process, including days with no quotes
	done map[string]bool
}

var _ interfaces.EodSummarizer = (*eodSummarizer)(nil)

// NewSummarizer summarizes the quote log kept in dir.
func NewSummarizer(dir string) interfaces.EodSummarizer {
	return &eodSummarizer{dir: dir, now: istNow, done: map[string]bool{}}
}

// SummarizeDay aggregates t's quote log per symbol. It returns an empty
// path and no error when there is nothing to summarize.
func (s *eodSummarizer) SummarizeDay(ctx context.Context, t time.Time) (string, error) {
	p, err := s.summarize(ctx, t)
	if err == nil {
		s.markDone(t)
	}
	return p, err
}

func (s *eodSummarizer) markDone(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		s.done = map[string]bool{}
	}
	s.done[dayKey(t)] = true
}

func (s *eodSummarizer) isDone(t time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done[dayKey(t)]
}

func (s *eodSummarizer) summarize(ctx context.Context, t time.Time) (string, error) {
	inPath := quoteFile(s.dir, t)
	f, err := os.Open(inPath)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	aggs := map[string]*aggRow{}
	skipped := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var l quoteLine
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil || l.Quote == nil || l.Symbol == "" {
			skipped++
			continue
		}
		row := aggs[l.Symbol]
		if row == nil {
			row = &aggRow{Symbol: l.Symbol}
			aggs[l.Symbol] = row
		}
		row.add(l)
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if skipped > 0 {
		logger.Warn(ctx, "Skipped unreadable quote log lines", "path", inPath, "skipped", skipped)
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := eodCSVPath(s.dir, t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	headers := []string{"symbol", "exchange", "samples", "first_time", "last_time", "first_ltp", "last_ltp", "high_ltp", "low_ltp", "change_pct", "volume"}
	if err := w.Write(headers); err != nil {
		return "", err
	}
	for _, k := range keys {
		r := aggs[k]
		rec := []string{
			r.Symbol,
			r.Exchange,
			strconv.Itoa(r.Samples),
			r.FirstTime,
			r.LastTime,
			r.FirstLTP.StringFixed(2),
			r.LastLTP.StringFixed(2),
			r.HighLTP.StringFixed(2),
			r.LowLTP.StringFixed(2),
			r.changePct().StringFixed(2),
			strconv.FormatInt(r.Volume, 10),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return outPath, nil
}

func (s *eodSummarizer) SummarizeToday(ctx context.Context) (string, error) {
	return s.SummarizeDay(ctx, s.now())
}

// ShouldRunNow reports whether the market has closed and today's summary
// has been neither written nor attempted.
func (s *eodSummarizer) ShouldRunNow() (bool, string) {
	now := s.now()
	outPath := eodCSVPath(s.dir, now)
	if now.After(marketCloseTime(now)) && !s.isDone(now) {
		if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
			return true, outPath
		}
	}
	return false, outPath
}

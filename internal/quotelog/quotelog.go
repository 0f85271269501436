// Package quotelog appends basket market data snapshots to daily JSON-lines
// files named after the IST trading date.
package quotelog

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"smartapi-basket/internal/types"
)

const DefaultDir = "logs/quotes"

var ist = time.FixedZone("IST", 19800)

type Entry struct {
	Time       string       `json:"time"`
	SnapshotID string       `json:"snapshot_id,omitempty"`
	Symbol     string       `json:"symbol"`
	Mode       string       `json:"mode"`
	Quote      *types.Quote `json:"quote"`
}

// Log writes entries under dir. It is safe for concurrent use.
type Log struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

func New(dir string) *Log {
	if dir == "" {
		dir = DefaultDir
	}
	return &Log{dir: dir, now: time.Now}
}

func (l *Log) Dir() string {
	return l.dir
}

// Path returns the quote log file under dir for t's IST date.
func Path(dir string, t time.Time) string {
	return filepath.Join(dir, t.In(ist).Format("2006-01-02")+".txt")
}

// AppendSnapshot writes one line per quote, in symbol order.
func (l *Log) AppendSnapshot(snapshotID string, mode types.MarketDataMode, quotes map[string]*types.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().In(ist)
	p := Path(l.dir, now)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	symbols := make([]string, 0, len(quotes))
	for s := range quotes {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	ts := now.Format("2006-01-02 15:04:05")
	for _, s := range symbols {
		b, err := json.Marshal(Entry{
			Time:       ts,
			SnapshotID: snapshotID,
			Symbol:     s,
			Mode:       string(mode),
			Quote:      quotes[s],
		})
		if err != nil {
			return fmt.Errorf("encode %s: %w", s, err)
		}
		if _, err := fmt.Fprintln(f, string(b)); err != nil {
			return err
		}
	}
	return nil
}

// CompressOlder gzips daily files last modified more than retentionDays
// ago and removes the originals. retentionDays <= 0 disables it.
func (l *Log) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := l.now().AddDate(0, 0, -retentionDays)

	return filepath.WalkDir(l.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".txt" {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}

		gz := p + ".gz"
		// already compressed by an earlier run
		if _, err := os.Stat(gz); err == nil {
			_ = os.Remove(p)
			return nil
		}
		if err := gzipFile(p, gz); err != nil {
			_ = os.Remove(gz)
			return nil
		}
		_ = os.Remove(p)
		return nil
	})
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		out.Close()
		return err
	}
	if err := gw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

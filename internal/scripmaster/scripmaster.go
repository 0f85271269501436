// Package scripmaster indexes the broker's instrument reference file so that
// human-entered symbols can be resolved to exchange tokens.
package scripmaster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"smartapi-basket/internal/interfaces"
	"smartapi-basket/internal/logger"
	"smartapi-basket/internal/types"
)

// DefaultSegment is used by Lookup when no segment is given.
const DefaultSegment = "NSE"

// equitySuffix is appended to a symbol when the exact symbol is not listed.
const equitySuffix = "-EQ"

var (
	ErrNotLoaded      = errors.New("scrip master data not loaded")
	ErrMasterNotFound = errors.New("scrip master file not found")
	ErrSymbolNotFound = errors.New("symbol not found")
)

// Record is one element of OpenAPIScripMaster.json. Pointer fields
// distinguish a missing key from an empty value.
type Record struct {
	Token          *string `json:"token"`
	Symbol         *string `json:"symbol"`
	Name           *string `json:"name"`
	Expiry         Text    `json:"expiry"`
	Strike         Text    `json:"strike"`
	LotSize        Text    `json:"lotsize"`
	InstrumentType Text    `json:"instrumenttype"`
	ExchSeg        *string `json:"exch_seg"`
	TickSize       Text    `json:"tick_size"`
}

// Text holds an unindexed master field. The file mixes strings and numbers
// for these, so any scalar is accepted and kept as its text.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	if string(b) == "null" {
		*t = ""
		return nil
	}
	*t = Text(b)
	return nil
}

// NewRecord builds a Record with all indexed keys present.
func NewRecord(token, symbol, name, exchSeg string) Record {
	return Record{Token: &token, Symbol: &symbol, Name: &name, ExchSeg: &exchSeg}
}

func (r *Record) complete() bool {
	return r.Symbol != nil && r.Token != nil && r.ExchSeg != nil && r.Name != nil
}

// SymbolEntry is what the symbol index stores.
type SymbolEntry struct {
	Token   string `json:"token"`
	ExchSeg string `json:"exch_seg"`
	Name    string `json:"name"`
}

// TokenEntry is what the token index stores.
type TokenEntry struct {
	Symbol  string `json:"symbol"`
	ExchSeg string `json:"exch_seg"`
	Name    string `json:"name"`
}

// Index holds the two reverse mappings built from the scrip master. It is
// safe for concurrent use.
type Index struct {
	mu       sync.RWMutex
	bySymbol map[string]SymbolEntry
	byToken  map[string]TokenEntry
	source   string
}

var _ interfaces.ScripResolver = (*Index)(nil)

func NewIndex() *Index {
	return &Index{}
}

// Loaded reports whether the index holds any data.
func (ix *Index) Loaded() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.bySymbol) > 0
}

// Len returns the number of distinct symbols.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.bySymbol)
}

// Source returns the path or description of what was loaded.
func (ix *Index) Source() string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.source
}

// Load reads the scrip master JSON array at path. It is a no-op when the
// index is already loaded.
func (ix *Index) Load(ctx context.Context, path string) error {
	if ix.Loaded() {
		logger.Info(ctx, "Scrip master already loaded", "source", ix.Source())
		return nil
	}

	timer := logger.StartOperation(ctx, "scripmaster.Load", "path", path)
	ctx = timer.GetContext()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w at %s, download it from %s", ErrMasterNotFound, path, DefaultURL)
		}
		timer.EndWithError(err)
		return err
	}
	defer f.Close()

	logger.Info(ctx, "Loading scrip master", "path", path)

	bySymbol, byToken, skipped, err := decode(f)
	if err != nil {
		err = fmt.Errorf("error decoding scrip master JSON from %s: %w", path, err)
		timer.EndWithError(err)
		return err
	}

	ix.install(bySymbol, byToken, path)
	logger.Info(ctx, "Scrip master loaded", "entries", len(bySymbol), "tokens", len(byToken), "skipped", skipped)
	timer.End("entries", len(bySymbol))
	return nil
}

// LoadRecords indexes in-memory records, e.g. converted from another
// broker's instrument dump. It is a no-op when the index is already loaded.
func (ix *Index) LoadRecords(ctx context.Context, source string, records []Record) error {
	if ix.Loaded() {
		logger.Info(ctx, "Scrip master already loaded", "source", ix.Source())
		return nil
	}

	bySymbol := make(map[string]SymbolEntry, len(records))
	byToken := make(map[string]TokenEntry, len(records))
	skipped := 0
	for i := range records {
		if !add(bySymbol, byToken, &records[i]) {
			skipped++
		}
	}
	if len(bySymbol) == 0 {
		return fmt.Errorf("no usable records from %s", source)
	}

	ix.install(bySymbol, byToken, source)
	logger.Info(ctx, "Scrip master loaded", "source", source, "entries", len(bySymbol), "skipped", skipped)
	return nil
}

func (ix *Index) install(bySymbol map[string]SymbolEntry, byToken map[string]TokenEntry, source string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.bySymbol = bySymbol
	ix.byToken = byToken
	ix.source = source
}

// decode streams the top-level array so the whole file is never held as
// generic values.
func decode(r io.Reader) (map[string]SymbolEntry, map[string]TokenEntry, int, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, 0, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil, nil, 0, fmt.Errorf("expected a JSON array, got %v", tok)
	}

	bySymbol := make(map[string]SymbolEntry)
	byToken := make(map[string]TokenEntry)
	skipped := 0
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			// The value was consumed, so the stream is still in step.
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &typeErr) {
				skipped++
				continue
			}
			return nil, nil, 0, err
		}
		if !add(bySymbol, byToken, &rec) {
			skipped++
		}
	}
	if _, err := dec.Token(); err != nil {
		return nil, nil, 0, err
	}
	return bySymbol, byToken, skipped, nil
}

// add indexes rec if it has all four keys. Later records replace earlier
// ones with the same symbol or token.
func add(bySymbol map[string]SymbolEntry, byToken map[string]TokenEntry, rec *Record) bool {
	if !rec.complete() {
		return false
	}
	bySymbol[*rec.Symbol] = SymbolEntry{Token: *rec.Token, ExchSeg: *rec.ExchSeg, Name: *rec.Name}
	byToken[*rec.Token] = TokenEntry{Symbol: *rec.Symbol, ExchSeg: *rec.ExchSeg, Name: *rec.Name}
	return true
}

// Lookup resolves a human-entered symbol in segment. The upper-cased symbol
// is tried as-is and then with the -EQ suffix; a candidate only matches if
// it is listed in the requested segment.
func (ix *Index) Lookup(symbol, segment string) (types.Instrument, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.bySymbol) == 0 {
		return types.Instrument{}, ErrNotLoaded
	}
	if segment == "" {
		segment = DefaultSegment
	}

	exact := strings.ToUpper(strings.TrimSpace(symbol))
	for _, candidate := range []string{exact, exact + equitySuffix} {
		if e, ok := ix.bySymbol[candidate]; ok && e.ExchSeg == segment {
			return types.Instrument{Symbol: candidate, Token: e.Token, Exchange: e.ExchSeg}, nil
		}
	}
	return types.Instrument{}, fmt.Errorf("%w: %q in %s segment (checked exact and %s forms)", ErrSymbolNotFound, symbol, segment, equitySuffix)
}

// BySymbol returns the entry stored under the exact master symbol.
func (ix *Index) BySymbol(symbol string) (SymbolEntry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.bySymbol[symbol]
	return e, ok
}

// ByToken returns the entry stored under token.
func (ix *Index) ByToken(token string) (TokenEntry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.byToken[token]
	return e, ok
}

// SearchResult is one Search hit.
type SearchResult struct {
	Symbol string `json:"symbol"`
	SymbolEntry
}

// Search returns up to limit entries whose symbol or name contains query,
// case-insensitively, sorted by symbol. An empty segment matches all
// segments; limit <= 0 means no limit.
func (ix *Index) Search(query, segment string, limit int) []SearchResult {
	q := strings.ToUpper(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	ix.mu.RLock()
	var out []SearchResult
	for sym, e := range ix.bySymbol {
		if segment != "" && e.ExchSeg != segment {
			continue
		}
		if strings.Contains(strings.ToUpper(sym), q) || strings.Contains(strings.ToUpper(e.Name), q) {
			out = append(out, SearchResult{Symbol: sym, SymbolEntry: e})
		}
	}
	ix.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

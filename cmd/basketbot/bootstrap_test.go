package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartapi-basket/internal/basket"
	"smartapi-basket/internal/store"
	"smartapi-basket/internal/types"
)

func testConfig(t *testing.T) *store.Config {
	t.Helper()
	t.Setenv("ANGELONE_CLIENT_ID", "abcdefgh")
	t.Setenv("ANGELONE_USERNAME", "A123456")
	t.Setenv("DEMO_FUNDS", "60000")

	master := filepath.Join(t.TempDir(), "OpenAPIScripMaster.json")
	require.NoError(t, os.WriteFile(master, []byte(`[
		{"token":"3045","symbol":"SBIN-EQ","name":"SBIN","exch_seg":"NSE"},
		{"token":"1660","symbol":"ITC-EQ","name":"ITC","exch_seg":"NSE"}
	]`), 0o644))
	t.Setenv("SCRIP_MASTER_PATH", master)

	cfg, err := store.LoadConfig("")
	require.NoError(t, err)
	return cfg
}

func TestPrintConfigSummary(t *testing.T) {
	cfg := testConfig(t)

	var buf bytes.Buffer
	printConfigSummary(&buf, cfg)
	out := buf.String()

	assert.Contains(t, out, "abcd****")
	assert.NotContains(t, out, "abcdefgh")
	assert.Contains(t, out, "A123456")
	assert.Contains(t, out, "true")
	assert.Contains(t, out, "60000.00")
}

func TestMask(t *testing.T) {
	assert.Equal(t, "****", mask(""))
	assert.Equal(t, "****", mask("abcd"))
	assert.Equal(t, "abcd****", mask("abcdef"))
}

func TestLoadScripMasterFromFile(t *testing.T) {
	cfg := testConfig(t)

	ix, err := loadScripMaster(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Len())

	inst, err := ix.Lookup("itc", cfg.Exchange)
	require.NoError(t, err)
	assert.Equal(t, "1660", inst.Token)
}

func TestLoadScripMasterKiteNeedsZerodha(t *testing.T) {
	cfg := testConfig(t)
	cfg.ScripMaster.Source = store.SourceKite

	_, err := loadScripMaster(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestPrintQuotes(t *testing.T) {
	items := []basket.Item{
		{Symbol: "SBIN", Token: "3045", Exchange: "NSE"},
		{Symbol: "ITC", Token: "1660", Exchange: "NSE"},
	}
	snap := basket.Snapshot{
		Mode: types.ModeLTP,
		Quotes: map[string]*types.Quote{
			"SBIN": {LTP: decimal.RequireFromString("571.8"), Volume: 42},
		},
	}

	var buf bytes.Buffer
	printQuotes(&buf, items, snap)
	out := buf.String()

	assert.Contains(t, out, "SYMBOL")
	assert.Contains(t, out, "571.80")
	assert.Contains(t, out, "42")
	assert.Regexp(t, `ITC\s+NSE\s+-`, out)
}

func TestParseMode(t *testing.T) {
	cfg := testConfig(t)

	m, err := parseMode("", cfg)
	require.NoError(t, err)
	assert.Equal(t, types.ModeFull, m)

	m, err = parseMode("ltp", cfg)
	require.NoError(t, err)
	assert.Equal(t, types.ModeLTP, m)

	_, err = parseMode("depth", cfg)
	assert.Error(t, err)
}

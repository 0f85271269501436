package scripmaster

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gocolly/colly/v2"

	"smartapi-basket/internal/logger"
)

// DefaultURL is where Angel One publishes the scrip master.
const DefaultURL = "https://margincalculator.angelbroking.com/OpenAPI_File/files/OpenAPIScripMaster.json"

const downloadTimeout = 2 * time.Minute

// ctxTransport binds every request the collector makes to ctx.
type ctxTransport struct {
	ctx  context.Context
	base http.RoundTripper
}

func (t ctxTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.base.RoundTrip(req.Clone(t.ctx))
}

// Download fetches the scrip master from url and replaces path atomically.
// The file is tens of megabytes, so the collector body limit is lifted.
func Download(ctx context.Context, url, path string) error {
	if url == "" {
		url = DefaultURL
	}

	timer := logger.StartOperation(ctx, "scripmaster.Download", "url", url, "path", path)
	ctx = timer.GetContext()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		timer.EndWithError(err)
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		timer.EndWithError(err)
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpName)

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.Async(false),
	)
	c.MaxBodySize = 0
	c.SetRequestTimeout(downloadTimeout)
	c.WithTransport(ctxTransport{ctx: ctx, base: http.DefaultTransport})

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "application/json")
		logger.Debug(ctx, "Requesting scrip master", "url", r.URL.String())
	})

	var saveErr error
	size := 0
	c.OnResponse(func(r *colly.Response) {
		size = len(r.Body)
		saveErr = r.Save(tmpName)
	})

	var fetchErr error
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
	})

	if err := c.Visit(url); err != nil && fetchErr == nil {
		fetchErr = err
	}
	if fetchErr == nil && ctx.Err() != nil {
		fetchErr = ctx.Err()
	}
	if err := errors.Join(fetchErr, saveErr); err != nil {
		err = fmt.Errorf("failed to download scrip master from %s: %w", url, err)
		timer.EndWithError(err)
		return err
	}
	if size == 0 {
		err := fmt.Errorf("scrip master download from %s returned an empty body", url)
		timer.EndWithError(err)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		timer.EndWithError(err)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}

	logger.Info(ctx, "Scrip master downloaded", "path", path, "bytes", size)
	timer.End("bytes", size)
	return nil
}

// IsStale reports whether the file at path is missing or older than maxAge.
// A non-positive maxAge only checks for existence.
func IsStale(path string, maxAge time.Duration) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return true
	}
	if maxAge <= 0 {
		return false
	}
	return time.Since(fi.ModTime()) > maxAge
}

package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// Defaults for rendering script-driven calendar pages.
const (
	DefaultWidth      = 1280
	DefaultHeight     = 2000
	DefaultTimeoutSec = 30
	DefaultReadyQuery = "body"
)

// RenderOptions defines parameters for a Chromium-based page render.
type RenderOptions struct {
	// URL to render, e.g. "https://events.example.edu/calendar/day/2025/3/5".
	URL string

	// ReadyQuery is a CSS selector that must be visible before the DOM is
	// read. Calendar widgets usually populate a list container late; point
	// this at it. If empty, DefaultReadyQuery is used.
	ReadyQuery string

	// Width and Height are the viewport dimensions in pixels. If zero,
	// DefaultWidth / DefaultHeight are used.
	Width  int
	Height int

	// Timeout bounds the entire render. If zero, DefaultTimeoutSec is used.
	Timeout time.Duration

	// Settle is an extra delay after ReadyQuery appears so late scripts can
	// finish writing structured data.
	Settle time.Duration
}

// RenderHTML launches a headless Chromium via chromedp, navigates to
// opts.URL, waits for opts.ReadyQuery and returns the serialized DOM.
func RenderHTML(parentCtx context.Context, opts RenderOptions) ([]byte, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("capture: URL is required")
	}
	if opts.ReadyQuery == "" {
		opts.ReadyQuery = DefaultReadyQuery
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(DefaultTimeoutSec) * time.Second
	}
	if opts.Settle <= 0 {
		opts.Settle = 500 * time.Millisecond
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var html string
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(opts.ReadyQuery, chromedp.ByQuery),
		chromedp.Sleep(opts.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}

	if err := chromedp.Run(ctx, tasks); err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	return []byte(html), nil
}

// Renderer adapts RenderHTML to the feed fetcher.
type Renderer struct {
	ReadyQuery string
	Timeout    time.Duration
}

func (r Renderer) Render(ctx context.Context, url string) ([]byte, error) {
	return RenderHTML(ctx, RenderOptions{URL: url, ReadyQuery: r.ReadyQuery, Timeout: r.Timeout})
}

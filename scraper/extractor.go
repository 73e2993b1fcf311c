// Package scraper drives a headless browser against the supported grocery
// sites and reads their search result cards.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"pricecompare/models"

	"github.com/avast/retry-go/v4"
	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
)

// Source IDs
const (
	SourceBigBasket = "bigbasket"
	SourceBlinkit   = "blinkit"
	SourceSwiggy    = "swiggy"
)

// ErrBlocked is returned when a site answers with a bot wall or redirects
// away from its own domain
var ErrBlocked = errors.New("blocked by site bot protection")

var errMissingPrice = errors.New("listings without price")

// Extractor produces the raw listings one source shows for a query
type Extractor interface {
	Source() string
	Extract(ctx context.Context, query string) ([]models.RawListing, error)
}

// Options tunes how extractors drive their pages
type Options struct {
	// MaxAttempts bounds the reload and search cycles when listings lack a price
	MaxAttempts int
	// Timeout caps one Extract call
	Timeout time.Duration
	// RetryDelay is the pause between attempts
	RetryDelay time.Duration
	// ElementWait caps waiting for a single element to appear
	ElementWait time.Duration
}

// DefaultOptions returns the defaults used when a field is left zero
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		Timeout:     90 * time.Second,
		RetryDelay:  2 * time.Second,
		ElementWait: 15 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = d.RetryDelay
	}
	if o.ElementWait <= 0 {
		o.ElementWait = d.ElementWait
	}
	return o
}

// site is the per-source part of an extractor
type site interface {
	source() string
	// open navigates to the entry page and gets it ready for a search
	open(page *rod.Page) error
	// search submits query and waits for result cards
	search(page *rod.Page, query string) error
	parse(html string) ([]models.RawListing, error)
}

// siteExtractor runs a site on the shared browser
type siteExtractor struct {
	site     site
	browser  *Browser
	detector *BotDetector
	opts     Options
	logger   *log.Logger
}

func newSiteExtractor(s site, browser *Browser, opts Options, logger *log.Logger) *siteExtractor {
	return &siteExtractor{
		site:     s,
		browser:  browser,
		detector: NewBotDetector(),
		opts:     opts.withDefaults(),
		logger:   logger,
	}
}

// NewExtractors returns one extractor per supported source
func NewExtractors(browser *Browser, opts Options, logger *log.Logger) []Extractor {
	opts = opts.withDefaults()
	bb := logger.With("source", SourceBigBasket)
	bl := logger.With("source", SourceBlinkit)
	sw := logger.With("source", SourceSwiggy)
	return []Extractor{
		newSiteExtractor(newBigBasket(opts, bb), browser, opts, bb),
		newSiteExtractor(newBlinkit(opts, bl), browser, opts, bl),
		newSiteExtractor(newSwiggy(opts, sw), browser, opts, sw),
	}
}

func (e *siteExtractor) Source() string {
	return e.site.source()
}

func (e *siteExtractor) Extract(ctx context.Context, query string) ([]models.RawListing, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	start := time.Now()
	page, err := e.browser.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	defer page.Close()

	if err := e.site.open(page); err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", e.site.source(), err)
	}
	if err := e.checkBlocked(page); err != nil {
		return nil, err
	}

	listings, err := extractWithRetry(ctx, e.opts, e.logger, func(attempt int) ([]models.RawListing, error) {
		if attempt > 1 {
			if err := page.Reload(); err != nil {
				return nil, fmt.Errorf("failed to reload: %w", err)
			}
			if err := settle(page, time.Second); err != nil {
				return nil, err
			}
		}

		if err := e.site.search(page, query); err != nil {
			if blockedErr := e.checkBlocked(page); blockedErr != nil {
				return nil, blockedErr
			}
			return nil, err
		}

		html, err := page.HTML()
		if err != nil {
			return nil, fmt.Errorf("failed to read page: %w", err)
		}
		return e.site.parse(html)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("listings extracted", "query", query, "count", len(listings), "duration", time.Since(start).Round(time.Millisecond))
	return listings, nil
}

// checkBlocked inspects the page title and visible text for a bot wall
func (e *siteExtractor) checkBlocked(page *rod.Page) error {
	title := ""
	if info, err := page.Info(); err == nil {
		title = info.Title
	}

	text := ""
	if body, err := page.Timeout(2 * time.Second).Element("body"); err == nil {
		if t, err := body.Text(); err == nil {
			text = t
		}
	}

	verdict := e.detector.Detect(text, title)
	if verdict.Blocked {
		e.logger.Warn("bot wall detected", "kind", verdict.Kind, "reason", verdict.Reason, "score", verdict.Score)
		return fmt.Errorf("%s (%s): %w", e.site.source(), verdict.Kind, ErrBlocked)
	}
	return nil
}

// extractWithRetry runs attempt until every listing carries a price, up to
// opts.MaxAttempts times. When the attempts run out the listings of the last
// successful attempt are kept minus those still without price. ErrBlocked is
// never retried.
func extractWithRetry(ctx context.Context, opts Options, logger *log.Logger, attempt func(n int) ([]models.RawListing, error)) ([]models.RawListing, error) {
	opts = opts.withDefaults()
	var (
		last []models.RawListing
		n    int
	)

	listings, err := retry.DoWithData(
		func() ([]models.RawListing, error) {
			n++
			got, err := attempt(n)
			if err != nil {
				return nil, err
			}
			last = got
			if missing := countMissingPrice(got); missing > 0 {
				return nil, fmt.Errorf("%d of %d %w", missing, len(got), errMissingPrice)
			}
			return got, nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(opts.MaxAttempts)),
		retry.Delay(opts.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrBlocked)
		}),
		retry.OnRetry(func(i uint, err error) {
			logger.Warn("extraction attempt failed, retrying", "attempt", i+1, "max_attempts", opts.MaxAttempts, "err", err)
		}),
	)
	if err == nil {
		return listings, nil
	}

	if errors.Is(err, errMissingPrice) {
		kept := withPrice(last)
		logger.Warn("dropping listings without price", "dropped", len(last)-len(kept), "kept", len(kept))
		return kept, nil
	}
	return nil, err
}

func countMissingPrice(listings []models.RawListing) int {
	missing := 0
	for _, l := range listings {
		if !l.HasPrice() {
			missing++
		}
	}
	return missing
}

func withPrice(listings []models.RawListing) []models.RawListing {
	out := make([]models.RawListing, 0, len(listings))
	for _, l := range listings {
		if l.HasPrice() {
			out = append(out, l)
		}
	}
	return out
}

// splitTitle treats the first word of a card title as the brand and the
// rest as the item name
func splitTitle(title string) (brand, itemName string) {
	parts := strings.Fields(title)
	switch len(parts) {
	case 0:
		return models.Unknown, models.Unknown
	case 1:
		return parts[0], models.Unknown
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

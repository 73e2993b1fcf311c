package scraper

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const systemChromium = "/usr/bin/chromium-browser"

// stealthScript hides the most common automation fingerprints
const stealthScript = `
	Object.defineProperty(navigator, 'userAgent', {
		get: function () { return 'Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36'; }
	});
	Object.defineProperty(navigator, 'webdriver', {
		get: () => undefined,
	});
	Object.defineProperty(navigator, 'plugins', {
		get: () => [1, 2, 3, 4, 5],
	});
	Object.defineProperty(navigator, 'languages', {
		get: () => ['en-IN', 'en'],
	});
	Object.defineProperty(navigator, 'platform', {
		get: () => 'Win32',
	});
	window.chrome = {
		runtime: {},
	};
`

// BrowserOptions configures the shared browser
type BrowserOptions struct {
	Headless bool
	// Bin is an explicit Chromium binary. Empty means the system Chromium
	// when present, otherwise rod's managed download.
	Bin string
}

// Browser is one Chromium process shared by all extractors
type Browser struct {
	browser *rod.Browser
	logger  *log.Logger
}

// NewBrowser launches Chromium and connects to it
func NewBrowser(opts BrowserOptions, logger *log.Logger) (*Browser, error) {
	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(true).
		Leakless(false)

	bin := opts.Bin
	if bin == "" {
		if _, err := os.Stat(systemChromium); err == nil {
			bin = systemChromium
		}
	}
	if bin != "" {
		l = l.Bin(bin)
		logger.Debug("using system chromium", "bin", bin)
	}

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	logger.Info("browser ready", "headless", opts.Headless)

	return &Browser{browser: browser, logger: logger}, nil
}

// NewPage opens a blank tab bound to ctx with the stealth script and a
// desktop viewport applied
func (b *Browser) NewPage(ctx context.Context) (*rod.Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	page = page.Context(ctx)

	if _, err := page.EvalOnNewDocument(stealthScript); err != nil {
		page.Close()
		return nil, fmt.Errorf("failed to install stealth script: %w", err)
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1920,
		Height:            1080,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		page.Close()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	return page, nil
}

// Close shuts the browser down
func (b *Browser) Close() error {
	if b.browser == nil {
		return nil
	}
	return b.browser.Close()
}

// settle waits for the page load event and for the DOM to stop changing
func settle(page *rod.Page, stable time.Duration) error {
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("page did not load: %w", err)
	}
	// a page that keeps animating never becomes stable, which is not fatal
	_ = page.Timeout(stable * 4).WaitStable(stable)
	return nil
}

// typeQuery replaces the content of the input matching selector with query
// and submits it
func typeQuery(page *rod.Page, selector, query string, wait time.Duration) error {
	box, err := page.Timeout(wait).Element(selector)
	if err != nil {
		return fmt.Errorf("search input %q not found: %w", selector, err)
	}
	box = box.CancelTimeout()

	if err := box.SelectAllText(); err != nil {
		return fmt.Errorf("failed to clear search input: %w", err)
	}
	if err := box.Input(query); err != nil {
		return fmt.Errorf("failed to type query: %w", err)
	}
	if err := box.Type(input.Enter); err != nil {
		return fmt.Errorf("failed to submit query: %w", err)
	}
	return nil
}

// dismissPopups clicks any visible dialog buttons matching selector
func dismissPopups(page *rod.Page, selector string, logger *log.Logger) {
	buttons, err := page.Elements(selector)
	if err != nil {
		return
	}
	for _, btn := range buttons {
		visible, err := btn.Visible()
		if err != nil || !visible {
			continue
		}
		if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
			logger.Debug("popup click failed", "err", err)
			continue
		}
		logger.Debug("popup closed")
	}
}

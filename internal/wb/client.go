package wb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/playwright-community/playwright-go"

	"github.com/sellerlab/wbcompare/internal/auth"
	"github.com/sellerlab/wbcompare/internal/session"
)

// FlagSource supplies runtime mode flags. Consulted per invocation, not
// cached: the source of truth re-reads on every job.
type FlagSource interface {
	UseMockCompare(ctx context.Context) bool
}

type Options struct {
	Phone         string
	Headless      bool
	StateFile     string
	DownloadsPath string
}

// Client owns the browser, context and page for the seller portal.
// Exactly one pipeline runs against it at a time; the queue worker's
// single-consumer design is the only mechanism enforcing that.
type Client struct {
	opts  Options
	store *session.Store
	codes *auth.CodeSource
	flags FlagSource

	pw         *playwright.Playwright
	browser    playwright.Browser
	browserCtx playwright.BrowserContext
	page       playwright.Page

	scraper *Scraper
	auth    *authService
}

func NewClient(opts Options, store *session.Store, codes *auth.CodeSource, flags FlagSource) *Client {
	return &Client{
		opts:  opts,
		store: store,
		codes: codes,
		flags: flags,
	}
}

// Connect launches the browser and creates a context seeded with the
// stored session when one is present and valid. Authorization is NOT
// checked here: the code relay needs the bot polling loop to be up
// first, so EnsureAuthorized runs as a separate background step.
func (c *Client) Connect(ctx context.Context) error {
	slog.Info("starting browser")

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("start playwright: %w", err)
	}
	c.pw = pw

	var launchArgs []string
	if c.opts.Headless {
		launchArgs = []string{
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--disable-dev-shm-usage",
		}
	}

	browser, err := pw.Firefox.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(c.opts.Headless),
		Args:     launchArgs,
	})
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	c.browser = browser

	ctxOpts := playwright.BrowserNewContextOptions{
		Locale:     playwright.String("ru-RU"),
		TimezoneId: playwright.String("Europe/Moscow"),
	}

	if _, ok := c.store.Load(); ok {
		// The store just validated the file on disk, load it directly.
		slog.Info("valid state found, loading into browser context")
		ctxOpts.StorageStatePath = playwright.String(c.opts.StateFile)
	} else {
		slog.Warn("no valid state available, fresh authentication will be required")
	}

	browserCtx, err := browser.NewContext(ctxOpts)
	if err != nil {
		return fmt.Errorf("create browser context: %w", err)
	}
	c.browserCtx = browserCtx

	page, err := browserCtx.NewPage()
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	c.page = page

	c.scraper = NewScraper(page, c.opts.DownloadsPath)
	c.auth = &authService{
		page:     page,
		store:    c.store,
		codes:    c.codes,
		phone:    c.opts.Phone,
		snapshot: c.snapshotState,
	}

	slog.Info("browser ready", "url", page.URL())
	return nil
}

// Disconnect closes the browser and stops the playwright driver.
func (c *Client) Disconnect() {
	if c.browser != nil {
		if err := c.browser.Close(); err != nil {
			slog.Warn("error closing browser", "err", err)
		}
	}
	if c.pw != nil {
		if err := c.pw.Stop(); err != nil {
			slog.Warn("error stopping playwright", "err", err)
		}
	}
	slog.Info("browser closed")
}

// EnsureAuthorized checks the session and performs the interactive login
// if needed. Must run after the bot polling loop has started, otherwise
// the auth code from the admin can never arrive.
func (c *Client) EnsureAuthorized(ctx context.Context) error {
	return c.auth.EnsureAuthorized(ctx)
}

// CompareCards runs stage one. The fake path is chosen per call from the
// compare-stage flag.
func (c *Client) CompareCards(ctx context.Context, articles []int64) error {
	if c.flags != nil && c.flags.UseMockCompare(ctx) {
		slog.Info("compare mock flag enabled, using fake comparison")
		return c.scraper.FakeCompareCards(articles)
	}
	return c.scraper.CompareCards(articles)
}

// ProcessFilters runs stage two.
func (c *Client) ProcessFilters(ctx context.Context) (int64, int, error) {
	return c.scraper.ProcessFilters()
}

// DownloadDocuments runs stage three and returns the merged archive path.
func (c *Client) DownloadDocuments(ctx context.Context, uniqueID int64, expectedCount int) (string, error) {
	return c.scraper.DownloadDocuments(uniqueID, expectedCount)
}

// SaveCurrentState snapshots the live browser session into the store.
func (c *Client) SaveCurrentState() error {
	if c.browserCtx == nil {
		slog.Warn("cannot save state, browser context not initialized")
		return nil
	}
	state, err := c.snapshotState()
	if err != nil {
		return fmt.Errorf("snapshot browser state: %w", err)
	}
	return c.store.Save(state)
}

func (c *Client) snapshotState() (*session.State, error) {
	raw, err := c.browserCtx.StorageState()
	if err != nil {
		return nil, fmt.Errorf("read storage state: %w", err)
	}

	// Round-trip through JSON so the session package stays independent
	// of playwright's cookie type.
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode storage state: %w", err)
	}
	var state session.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode storage state: %w", err)
	}
	return &state, nil
}

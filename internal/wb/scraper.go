package wb

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/playwright-community/playwright-go"

	"github.com/sellerlab/wbcompare/internal/common"
)

const comparisonURL = "https://seller.wildberries.ru/platform-analytics/cards-comparison"

func isTimeout(err error) bool {
	return errors.Is(err, playwright.ErrTimeout)
}

// Scraper drives the comparison UI on an already-authorized page.
type Scraper struct {
	page          playwright.Page
	downloadsPath string
}

func NewScraper(page playwright.Page, downloadsPath string) *Scraper {
	return &Scraper{page: page, downloadsPath: downloadsPath}
}

func (s *Scraper) gotoComparison() error {
	if _, err := s.page.Goto(comparisonURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("navigate to comparison page: %w", err)
	}
	slog.Info("page loaded", "url", s.page.URL())

	s.page.WaitForTimeout(3000)
	if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(15000),
	}); err != nil {
		slog.Warn("network idle timeout after navigation")
	}
	return nil
}

// FakeCompareCards simulates a comparison by opening the first existing
// row in the comparison table. Used while the real flow is flagged off.
func (s *Scraper) FakeCompareCards(articles []int64) error {
	if err := s.gotoComparison(); err != nil {
		return err
	}
	slog.Info("starting fake card comparison", "articles", len(articles))

	tableContainer := s.page.Locator(`[class^="Table__container"]`).First()
	if err := tableContainer.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(15000),
	}); err != nil {
		return fmt.Errorf("table container not found: %w", err)
	}
	s.page.WaitForTimeout(1000)

	firstRow := tableContainer.Locator("table").First().Locator("tbody").First().Locator("tr").First()
	if err := firstRow.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(15000),
	}); err != nil {
		return fmt.Errorf("first table row not found: %w", err)
	}
	s.page.WaitForTimeout(1000)

	if err := firstRow.Click(playwright.LocatorClickOptions{
		Force:   playwright.Bool(true),
		Timeout: playwright.Float(15000),
	}); err != nil {
		if !isTimeout(err) {
			return fmt.Errorf("click first row: %w", err)
		}
		slog.Warn("normal click failed, trying JavaScript click")
		if _, err := firstRow.Evaluate("element => element.click()", nil); err != nil {
			return fmt.Errorf("javascript click: %w", err)
		}
	}
	s.page.WaitForTimeout(2000)

	if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(20000),
	}); err != nil {
		slog.Warn("network idle timeout, waiting additional time")
		s.page.WaitForTimeout(5000)
	}
	s.page.WaitForTimeout(2000)

	slog.Info("fake card comparison completed")
	return nil
}

// CompareCards registers a comparison set containing exactly the given
// articles, verifying the server-confirmed echo of each article before
// moving to the next.
func (s *Scraper) CompareCards(articles []int64) error {
	slog.Info("starting card comparison", "articles", len(articles))
	if err := s.gotoComparison(); err != nil {
		return err
	}

	createButton := s.page.Locator(`[class^="Create-comparison-button"]`).First()
	if err := createButton.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(15000),
	}); err != nil {
		return fmt.Errorf("create comparison button not found: %w", err)
	}
	s.page.WaitForTimeout(1000)
	if err := createButton.Click(); err != nil {
		return fmt.Errorf("click create comparison button: %w", err)
	}
	s.page.WaitForTimeout(2000)

	for idx, article := range articles {
		slog.Info("processing article", "n", idx+1, "of", len(articles), "article", article)
		if err := s.addArticle(article); err != nil {
			return fmt.Errorf("article %d: %w", article, err)
		}
	}
	slog.Info("all articles processed", "total", len(articles))
	s.page.WaitForTimeout(1000)

	// The second header button starts the comparison itself.
	headerButtons := s.page.Locator(`[class^="Recommendation-header__control-buttons"]`).First()
	if err := headerButtons.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(15000),
	}); err != nil {
		return fmt.Errorf("final buttons container not found: %w", err)
	}
	s.page.WaitForTimeout(1000)

	buttons := headerButtons.Locator("button")
	count, err := buttons.Count()
	if err != nil {
		return fmt.Errorf("count final buttons: %w", err)
	}
	if count < 2 {
		return fmt.Errorf("expected at least 2 buttons, found: %d", count)
	}

	second := buttons.Nth(1)
	if err := second.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(10000),
	}); err != nil {
		return fmt.Errorf("second button not visible: %w", err)
	}
	s.page.WaitForTimeout(1000)
	if err := second.Click(); err != nil {
		return fmt.Errorf("click second button: %w", err)
	}
	s.page.WaitForTimeout(1000)

	if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(20000),
	}); err != nil {
		slog.Warn("network idle timeout, waiting additional time")
		s.page.WaitForTimeout(5000)
	}
	s.page.WaitForTimeout(1000)

	slog.Info("card comparison completed")
	return nil
}

func (s *Scraper) addArticle(article int64) error {
	simpleInput := s.page.Locator(`[class^="Simple-input"]`).First()
	if err := simpleInput.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(15000),
	}); err != nil {
		return fmt.Errorf("input field not found: %w", err)
	}
	s.page.WaitForTimeout(500)

	input := simpleInput.Locator("input").First()
	if err := input.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(10000),
	}); err != nil {
		return fmt.Errorf("inner input not found: %w", err)
	}
	s.page.WaitForTimeout(500)

	if err := input.Fill(strconv.FormatInt(article, 10)); err != nil {
		return fmt.Errorf("fill article: %w", err)
	}
	s.page.WaitForTimeout(1000)
	if err := input.Press("Enter"); err != nil {
		return fmt.Errorf("press enter: %w", err)
	}
	s.page.WaitForTimeout(1000)

	cardsList := s.page.Locator(`[class^="Recommended-cards__list"]`).First()
	if err := cardsList.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(15000),
	}); err != nil {
		return fmt.Errorf("recommended cards container not found: %w", err)
	}
	s.page.WaitForTimeout(1000)

	// Verify the server echoed the article back in the freshly added card.
	cards := cardsList.Locator(`[class^="Nm-card__description"]`)
	lastCard := cards.Last()
	if err := lastCard.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(15000),
	}); err != nil {
		return fmt.Errorf("card description not visible: %w", err)
	}
	s.page.WaitForTimeout(1000)

	articleSpan := lastCard.Locator(fmt.Sprintf(`span:has-text("%d")`, article)).First()
	if err := articleSpan.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(10000),
	}); err != nil {
		actual, _ := lastCard.InnerText()
		return fmt.Errorf("article %d not found in last card, card text: %q", article, actual)
	}
	echoed, _ := articleSpan.InnerText()
	slog.Info("article confirmed", "article", article, "text", echoed)

	controls := cardsList.Locator(`[class^="Nm-card__control-button"]`)
	if err := controls.First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(10000),
	}); err != nil {
		return fmt.Errorf("card control buttons not found: %w", err)
	}
	s.page.WaitForTimeout(1000)

	count, err := controls.Count()
	if err != nil {
		return fmt.Errorf("count control buttons: %w", err)
	}
	if count == 0 {
		slog.Warn("control buttons not found")
		return nil
	}

	last := controls.Last()
	if err := last.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(10000),
	}); err != nil {
		return fmt.Errorf("last control button not visible: %w", err)
	}
	s.page.WaitForTimeout(500)
	if err := last.Click(); err != nil {
		return fmt.Errorf("click control button: %w", err)
	}
	s.page.WaitForTimeout(2000)
	return nil
}

// clickWithRetry retries a click that timed out; filter buttons are
// occasionally covered by loading overlays.
func (s *Scraper) clickWithRetry(l playwright.Locator, attempts int) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = l.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(15000)})
		if err == nil {
			return nil
		}
		if !isTimeout(err) {
			return err
		}
		if attempt < attempts {
			slog.Warn("click attempt failed, retrying", "attempt", attempt)
			s.page.WaitForTimeout(2000)
		}
	}
	return fmt.Errorf("all %d click attempts failed: %w", attempts, err)
}

// ProcessFilters iterates every period x segment filter combination in
// rendered order and triggers a named export for each. Export attempts
// that time out are skipped, not retried; partial success is expected.
// Returns the export batch id and the number of exports triggered.
func (s *Scraper) ProcessFilters() (int64, int, error) {
	slog.Info("starting filter processing")

	if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(20000),
	}); err != nil {
		slog.Warn("network idle timeout, continuing anyway")
	}
	s.page.WaitForTimeout(3000)

	uniqueID := NewExportID()
	slog.Info("generated export id", "unique_id", uniqueID)
	processed := 0

	periodFilters := s.page.Locator(`[class^="Period-filters"]`).First()
	if err := periodFilters.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(20000),
	}); err != nil {
		return 0, 0, fmt.Errorf("period filters not found: %w", err)
	}
	s.page.WaitForTimeout(1000)

	periodButtons := periodFilters.Locator("> div").First().Locator("button")
	periodCount, err := periodButtons.Count()
	if err != nil {
		return 0, 0, fmt.Errorf("count period buttons: %w", err)
	}
	slog.Info("found period buttons", "count", periodCount)

	for p := 0; p < periodCount; p++ {
		periodButton := periodButtons.Nth(p)
		periodText, _ := periodButton.InnerText()
		slog.Info("clicking period button", "n", p+1, "of", periodCount, "period", periodText)

		if err := s.clickWithRetry(periodButton, 3); err != nil {
			return 0, 0, fmt.Errorf("period %q: %w", periodText, err)
		}
		s.page.WaitForTimeout(3000)

		segments := s.page.Locator(`[class^="Params-segments"]`).First()
		if err := segments.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(20000),
		}); err != nil {
			return 0, 0, fmt.Errorf("params segments not found: %w", err)
		}
		s.page.WaitForTimeout(2000)

		segmentButtons := segments.Locator("> div").First().Locator("button")
		segmentCount, err := segmentButtons.Count()
		if err != nil {
			return 0, 0, fmt.Errorf("count segment buttons: %w", err)
		}

		for g := 0; g < segmentCount; g++ {
			segmentButton := segmentButtons.Nth(g)
			segmentText, _ := segmentButton.InnerText()
			slog.Info("clicking segment", "n", g+1, "of", segmentCount, "segment", segmentText)

			if err := s.clickWithRetry(segmentButton, 3); err != nil {
				return 0, 0, fmt.Errorf("segment %q: %w", segmentText, err)
			}
			s.page.WaitForTimeout(3000)

			if err := s.triggerExport(uniqueID, periodText, segmentText); err != nil {
				if isTimeout(err) {
					slog.Warn("export controls not found, skipping",
						"period", periodText, "segment", segmentText)
					continue
				}
				return 0, 0, err
			}
			processed++
			slog.Info("export triggered", "period", periodText, "segment", segmentText, "total", processed)
		}
	}

	slog.Info("all filters processed", "exports", processed)
	return uniqueID, processed, nil
}

func (s *Scraper) triggerExport(uniqueID int64, periodText, segmentText string) error {
	downloadButton := s.page.GetByTestId("Download-manager-open-modal-button-interface")
	if err := downloadButton.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(10000),
	}); err != nil {
		return err
	}
	s.page.WaitForTimeout(1000)
	if err := downloadButton.Click(); err != nil {
		return err
	}
	s.page.WaitForTimeout(2000)

	simpleInput := s.page.Locator(`[class^="Simple-input"]`).First()
	if err := simpleInput.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(15000),
	}); err != nil {
		return err
	}
	s.page.WaitForTimeout(1000)

	input := simpleInput.Locator("input")
	if err := input.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(10000),
	}); err != nil {
		return err
	}
	s.page.WaitForTimeout(500)

	fileName := fmt.Sprintf("%d-%s-%s", uniqueID, periodText, segmentText)
	if err := input.Fill(fileName); err != nil {
		return err
	}
	s.page.WaitForTimeout(1000)

	modal := s.page.Locator(`[class^="Create-excel-modal"]`).First()
	if err := modal.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(15000),
	}); err != nil {
		return err
	}
	s.page.WaitForTimeout(1000)

	confirm := modal.Locator("button").First()
	if err := confirm.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(10000),
	}); err != nil {
		return err
	}
	s.page.WaitForTimeout(500)
	if err := confirm.Click(); err != nil {
		return err
	}
	s.page.WaitForTimeout(2000)
	return nil
}

// DownloadDocuments downloads up to expectedCount completed exports into
// a session-scoped temp folder, merges them into a single archive and
// removes the temp folder. Zero downloaded files is a hard failure.
func (s *Scraper) DownloadDocuments(uniqueID int64, expectedCount int) (string, error) {
	slog.Info("starting document download", "expected", expectedCount)

	if err := os.MkdirAll(s.downloadsPath, 0o755); err != nil {
		return "", fmt.Errorf("create downloads folder: %w", err)
	}

	sessionFolder := filepath.Join(s.downloadsPath, strconv.FormatInt(uniqueID, 10))
	if err := os.RemoveAll(sessionFolder); err != nil {
		return "", fmt.Errorf("clean session folder: %w", err)
	}
	if err := os.MkdirAll(sessionFolder, 0o755); err != nil {
		return "", fmt.Errorf("create session folder: %w", err)
	}

	showList := s.page.GetByTestId("Download-manager-wrapper-show-list-button-interface")
	if err := showList.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(20000),
	}); err != nil {
		return "", fmt.Errorf("downloads list button not found: %w", err)
	}
	s.page.WaitForTimeout(2000)
	if err := showList.Click(); err != nil {
		return "", fmt.Errorf("open downloads list: %w", err)
	}
	s.page.WaitForTimeout(3000)
	slog.Info("downloads list opened")

	chips := s.page.Locator(`button[data-testid="File-row-SUCCESS-chips-component"]`)
	if err := chips.First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(90000),
	}); err != nil {
		return "", fmt.Errorf("no completed exports appeared: %w", err)
	}
	// Let the list settle before counting.
	s.page.WaitForTimeout(5000)

	available, err := chips.Count()
	if err != nil {
		return "", fmt.Errorf("count export chips: %w", err)
	}
	toDownload := min(available, expectedCount)
	slog.Info("downloading files", "available", available, "to_download", toDownload)

	var downloaded []string
	for i := 0; i < toDownload; i++ {
		slog.Info("downloading file", "n", i+1, "of", toDownload)
		path, err := s.downloadOne(chips.Nth(i), sessionFolder)
		if err != nil {
			slog.Warn("error downloading file", "n", i+1, "err", err)
			continue
		}
		downloaded = append(downloaded, path)
		s.page.WaitForTimeout(2000)
	}
	slog.Info("download completed", "downloaded", len(downloaded))

	if len(downloaded) == 0 {
		return "", common.ErrNoFilesDownloaded
	}

	mergedPath, err := MergeArchives(downloaded, uniqueID, s.downloadsPath)
	if err != nil {
		return "", err
	}

	if err := os.RemoveAll(sessionFolder); err != nil {
		slog.Warn("error removing session folder", "path", sessionFolder, "err", err)
	} else {
		slog.Info("session folder removed", "path", sessionFolder)
	}

	return mergedPath, nil
}

func (s *Scraper) downloadOne(chip playwright.Locator, folder string) (string, error) {
	if err := chip.ScrollIntoViewIfNeeded(); err != nil {
		return "", fmt.Errorf("scroll to button: %w", err)
	}
	s.page.WaitForTimeout(2000)

	if err := chip.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(10000),
	}); err != nil {
		return "", fmt.Errorf("button not visible: %w", err)
	}
	s.page.WaitForTimeout(1000)

	download, err := s.page.ExpectDownload(func() error {
		return chip.Click()
	}, playwright.PageExpectDownloadOptions{Timeout: playwright.Float(45000)})
	if err != nil {
		return "", fmt.Errorf("wait for download: %w", err)
	}

	name := download.SuggestedFilename()
	target := filepath.Join(folder, name)
	if err := download.SaveAs(target); err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	slog.Info("file saved", "path", target)
	return target, nil
}

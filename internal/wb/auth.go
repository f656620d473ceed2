package wb

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/sellerlab/wbcompare/internal/auth"
	"github.com/sellerlab/wbcompare/internal/common"
	"github.com/sellerlab/wbcompare/internal/session"
)

const (
	authURLMarker   = "auth"
	targetURLMarker = "cards-comparison"
)

// authService performs the interactive phone + SMS-code login and keeps
// the session store in sync with proven-authenticated browser state.
type authService struct {
	page     playwright.Page
	store    *session.Store
	codes    *auth.CodeSource
	phone    string
	snapshot func() (*session.State, error)
}

// NeedsAuthorization detects whether a fresh login is required. Three
// layered signals, because any single one is unreliable mid-redirect:
// a visible phone input, an auth marker in the URL, or the URL already
// matching the target page.
func (a *authService) NeedsAuthorization() bool {
	phoneInput := a.page.GetByTestId("phone-input")
	if err := phoneInput.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(3000),
	}); err == nil {
		slog.Info("found phone input field, authorization needed")
		return true
	}

	url := a.page.URL()
	if strings.Contains(url, "seller-auth") || strings.Contains(url, authURLMarker) {
		slog.Info("url contains auth marker, authorization needed", "url", url)
		return true
	}
	if strings.Contains(url, targetURLMarker) {
		slog.Info("already on target page, authorization not needed", "url", url)
		return false
	}

	slog.Info("unclear auth state", "url", url)
	return false
}

// EnsureAuthorized navigates to the target page, lets redirects settle,
// logs in if required and ends on the comparison page.
func (a *authService) EnsureAuthorized(ctx context.Context) error {
	if _, err := a.page.Goto(comparisonURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("navigate to target page: %w", err)
	}
	slog.Info("page loaded", "url", a.page.URL())

	if err := a.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(10000),
	}); err != nil {
		slog.Warn("network idle timeout, continuing anyway")
	}
	// Give pending redirects a moment.
	a.page.WaitForTimeout(2000)
	slog.Info("url after stabilization", "url", a.page.URL())

	if a.NeedsAuthorization() {
		slog.Warn("authorization required, starting login")
		if err := a.Authorize(ctx); err != nil {
			return err
		}
	} else {
		slog.Info("authorization not required, using saved session")
	}

	if !strings.Contains(a.page.URL(), targetURLMarker) {
		slog.Warn("current url does not match expected", "url", a.page.URL())
		if _, err := a.page.Goto(comparisonURL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		}); err != nil {
			return fmt.Errorf("navigate to target page: %w", err)
		}
	}
	return nil
}

// Authorize runs the two-factor login: submit the phone, obtain the
// one-time code from the operator, enter it digit by digit, and confirm
// the target-page postcondition before persisting the session.
func (a *authService) Authorize(ctx context.Context) error {
	slog.Info("starting authorization process")

	phoneInput := a.page.GetByTestId("phone-input")
	if err := phoneInput.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(15000),
	}); err != nil {
		return fmt.Errorf("phone input field not found: %w", err)
	}
	if err := phoneInput.Fill(a.phone); err != nil {
		return fmt.Errorf("enter phone number: %w", err)
	}
	slog.Info("phone number entered")

	if err := a.page.GetByTestId("submit-phone-button").Click(); err != nil {
		return fmt.Errorf("click submit button: %w", err)
	}
	a.page.WaitForTimeout(2000)
	slog.Info("waiting for code input form", "url", a.page.URL())

	code, err := a.codes.RequestCode(ctx)
	if err != nil {
		return err
	}
	if len(code) == 0 {
		return fmt.Errorf("empty code received")
	}
	slog.Info("received code", "digits", len(code))

	codeForm := a.page.Locator(".FormCodeInput ul")
	if err := codeForm.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(10000),
	}); err != nil {
		return fmt.Errorf("code form not found: %w", err)
	}

	if err := a.enterCode(codeForm, code); err != nil {
		return err
	}

	// A timeout here is fine, the page may already be loaded.
	_ = a.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: playwright.Float(5000),
	})

	if err := a.verifyOnTarget(); err != nil {
		return err
	}

	// Persist only after the target-page postcondition is confirmed; a
	// session must never be saved in an unproven state.
	slog.Info("saving session state after verified login")
	state, err := a.snapshot()
	if err != nil {
		return fmt.Errorf("snapshot browser state: %w", err)
	}
	if err := a.store.Save(state); err != nil {
		return fmt.Errorf("save session state: %w", err)
	}
	return nil
}

func (a *authService) enterCode(codeForm playwright.Locator, code string) error {
	digits := []rune(code)
	for i, d := range digits {
		input := codeForm.Locator(fmt.Sprintf("li:nth-child(%d) input", i+1))
		if err := input.WaitFor(playwright.LocatorWaitForOptions{
			State:   playwright.WaitForSelectorStateVisible,
			Timeout: playwright.Float(5000),
		}); err != nil {
			return fmt.Errorf("digit input %d not found: %w", i+1, err)
		}

		if i < len(digits)-1 {
			if err := input.Fill(string(d)); err != nil {
				return fmt.Errorf("enter digit %d: %w", i+1, err)
			}
			a.page.WaitForTimeout(200)
			continue
		}

		// The last digit submits the form; wait for the redirect.
		slog.Info("entering last digit", "n", i+1, "of", len(digits))
		if err := input.Fill(string(d)); err != nil {
			return fmt.Errorf("enter digit %d: %w", i+1, err)
		}
		slog.Info("waiting for redirect")
		if err := a.page.WaitForURL("**/platform-analytics/cards-comparison", playwright.PageWaitForURLOptions{
			Timeout: playwright.Float(15000),
		}); err != nil {
			if strings.Contains(a.page.URL(), targetURLMarker) {
				slog.Info("redirect successful (already on page)")
			} else {
				slog.Warn("redirect timeout, will verify in final check", "url", a.page.URL())
			}
		} else {
			slog.Info("redirect successful")
		}
	}
	return nil
}

// verifyOnTarget confirms the post-login location, allowing one explicit
// re-navigation attempt. A one-time escape hatch, not a retry policy.
func (a *authService) verifyOnTarget() error {
	url := a.page.URL()
	if strings.Contains(url, targetURLMarker) {
		slog.Info("authorization verified", "url", url)
		return nil
	}

	if strings.Contains(url, "seller-auth") || strings.Contains(url, authURLMarker) {
		return fmt.Errorf("%w: still on auth page: %s", common.ErrAuthIncomplete, url)
	}

	slog.Warn("not on target page, attempting navigation", "url", url)
	if _, err := a.page.Goto(comparisonURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(10000),
	}); err != nil {
		return fmt.Errorf("%w: navigation failed: %v", common.ErrAuthIncomplete, err)
	}
	if !strings.Contains(a.page.URL(), targetURLMarker) {
		return fmt.Errorf("%w: url after retry: %s", common.ErrAuthIncomplete, a.page.URL())
	}
	slog.Info("navigation successful", "url", a.page.URL())
	return nil
}

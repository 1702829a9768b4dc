// Package scraper turns an unreliable, JavaScript-rendered booking page
// into a structured fare list with classified failure handling.
package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/farewatch/backend/internal/scraper/browser"
)

// Page fragments raced after navigation. The site sometimes interposes an
// interstitial that needs a click-through before showing results.
const (
	selResultsFragment = ".price-matrix--details-titles"
	selContinueButton  = "#form-mixin--submit-button"
)

// pageState is the explicit two-state machine for the post-navigation
// wait: whichever fragment appears first decides how the fetch proceeds.
type pageState int

const (
	stateResults pageState = iota
	stateContinueButton
)

// FetcherConfig controls fare page fetching.
type FetcherConfig struct {
	BookingBaseURL string // scheme+host of the booking site
	FirstPartyHost string // requests outside this host are dropped as tracking noise
}

// DefaultFetcherConfig returns the production fetcher configuration.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		BookingBaseURL: "https://www.southwest.com",
		FirstPartyHost: "southwest.com",
	}
}

// Fetcher drives one browser tab per search against the shared session
// pool and parses the rendered page into fares.
type Fetcher struct {
	pool   *browser.Pool
	cfg    FetcherConfig
	logger *slog.Logger
}

// NewFetcher creates a Fetcher on top of a session pool.
func NewFetcher(pool *browser.Pool, cfg FetcherConfig, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BookingBaseURL == "" {
		cfg = DefaultFetcherConfig()
	}
	return &Fetcher{pool: pool, cfg: cfg, logger: logger}
}

// FetchFares prices one search. It holds a session permit for the whole
// tab lifetime and releases it on every exit path.
func (f *Fetcher) FetchFares(ctx context.Context, q SearchQuery) ([]Fare, error) {
	release, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	html, err := f.fetchPage(ctx, q)
	if err != nil {
		return nil, err
	}

	fares, err := ExtractFares(html)
	if err != nil {
		return nil, err
	}
	if len(fares) == 0 {
		// The results page rendered but carried no priced trips, which
		// usually means the date has no remaining schedule.
		return nil, newScrapeError(q.Route(), SearchURL(f.cfg.BookingBaseURL, q), ErrNoFaresFound, html)
	}
	return fares, nil
}

// fetchPage loads the search results page and returns its rendered HTML.
// The results wait is retried exactly once with a fresh navigation; the
// tab is blanked and closed no matter how the fetch exits.
func (f *Fetcher) fetchPage(ctx context.Context, q SearchQuery) (string, error) {
	searchURL := SearchURL(f.cfg.BookingBaseURL, q)

	page, err := f.pool.NewPage()
	if err != nil {
		return "", newScrapeError(q.Route(), searchURL, ErrUnknownScrape, err.Error())
	}
	pageCtx, cancel := fetchContext(ctx, f.pool.PageTimeout())
	defer cancel()
	page = page.Context(pageCtx)
	defer f.cleanupPage(page)

	router := page.HijackRequests()
	if err := router.Add("*", "", f.handleRequest); err != nil {
		return "", newScrapeError(q.Route(), searchURL, ErrUnknownScrape, err.Error())
	}
	go router.Run()
	defer func() { _ = router.Stop() }()

	f.logger.Debug("Fetching fare page",
		slog.String("route", q.Route()),
		slog.String("url", searchURL),
	)

	navErr := f.navigateAndAwait(page, searchURL)
	if navErr != nil {
		if isNetworkDown(navErr) {
			return "", newScrapeError(q.Route(), searchURL, ErrNetworkUnavailable, navErr.Error())
		}

		f.logger.Warn("Fare results did not appear, retrying navigation once",
			slog.String("route", q.Route()),
			slog.String("error", navErr.Error()),
		)

		navErr = f.navigateAndAwait(page, searchURL)
		if navErr != nil {
			if isNetworkDown(navErr) {
				return "", newScrapeError(q.Route(), searchURL, ErrNetworkUnavailable, navErr.Error())
			}
			content, _ := page.HTML()
			return "", newScrapeError(q.Route(), searchURL, classifyPageFailure(content), content)
		}
	}

	html, err := page.HTML()
	if err != nil {
		return "", newScrapeError(q.Route(), searchURL, ErrUnknownScrape, err.Error())
	}
	return html, nil
}

// navigateAndAwait navigates and races the two possible page outcomes. If
// the interstitial wins, it is clicked through and the resulting
// navigation allowed to settle.
func (f *Fetcher) navigateAndAwait(page *rod.Page, searchURL string) error {
	if err := page.Navigate(searchURL); err != nil {
		return err
	}

	state := stateResults
	el, err := page.Race().
		Element(selResultsFragment).Handle(func(*rod.Element) error {
			state = stateResults
			return nil
		}).
		Element(selContinueButton).Handle(func(*rod.Element) error {
			state = stateContinueButton
			return nil
		}).
		Do()
	if err != nil {
		return err
	}

	if state == stateContinueButton {
		f.logger.Debug("Interstitial detected, clicking through")
		wait := page.WaitNavigation(proto.PageLifecycleEventNameNetworkAlmostIdle)
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return err
		}
		wait()

		// the click-through must still land on results
		if _, err := page.Element(selResultsFragment); err != nil {
			return err
		}
	}
	return nil
}

// fetchContext bounds one tab's work by the pool's page timeout while
// keeping the caller's cancellation intact. Binding a context to a rod
// page replaces the page's context wholesale, so the per-tab deadline
// must already be on the context handed to the page.
func fetchContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

// cleanupPage blanks and closes a tab. Errors are ignored; the tab must
// not leak back into the shared browser regardless of fetch outcome.
func (f *Fetcher) cleanupPage(page *rod.Page) {
	_ = page.Navigate("about:blank")
	_ = page.Close()
}

// handleRequest enforces the request filter installed before navigation.
func (f *Fetcher) handleRequest(h *rod.Hijack) {
	if requestVerdict(h.Request.Type(), h.Request.URL().String(), f.cfg.FirstPartyHost) == blockRequest {
		h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
		return
	}
	h.ContinueRequest(&proto.FetchContinueRequest{})
}

type verdict int

const (
	allowRequest verdict = iota
	blockRequest
)

// requestVerdict decides per-request: images, fonts and stylesheets never
// hit the network (data-URI images excepted) to keep proxied bandwidth
// down; scripts, documents, XHR and favicons only pass when first-party,
// which drops the tracking noise the page tries to load.
func requestVerdict(resourceType proto.NetworkResourceType, rawURL, firstPartyHost string) verdict {
	switch resourceType {
	case proto.NetworkResourceTypeFont,
		proto.NetworkResourceTypeImage,
		proto.NetworkResourceTypeStylesheet:
		if strings.HasPrefix(rawURL, "data:image") {
			return allowRequest
		}
		return blockRequest
	case proto.NetworkResourceTypeScript,
		proto.NetworkResourceTypeDocument,
		proto.NetworkResourceTypeXHR,
		proto.NetworkResourceTypeOther:
		parsed, err := url.Parse(rawURL)
		if err != nil {
			return blockRequest
		}
		if strings.Contains(parsed.Hostname(), firstPartyHost) {
			return allowRequest
		}
		return blockRequest
	default:
		return allowRequest
	}
}

package scraper

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Classified scrape failures. Every error leaving this package wraps one
// of these so the monitoring pass can decide between "retry next pass"
// and "this search yielded nothing".
var (
	ErrNetworkUnavailable = errors.New("network unavailable")
	ErrScrapeTimeout      = errors.New("fare results never appeared")
	ErrAccessDenied       = errors.New("request blocked by remote site")
	ErrNoFaresFound       = errors.New("no fares found on page")
	ErrUnknownScrape      = errors.New("unknown scrape failure")
)

// ScrapeError carries the classification plus enough context to diagnose
// a failed fetch from the logs alone.
type ScrapeError struct {
	Route       string // "OAK→DAL 3/15/2026"
	URL         string
	Err         error
	Diagnostics string // truncated page content captured at failure time
	Timestamp   time.Time
}

func (e *ScrapeError) Error() string {
	return fmt.Sprintf("[%s] %v (url: %s)", e.Route, e.Err, e.URL)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

func newScrapeError(route, url string, err error, diagnostics string) *ScrapeError {
	return &ScrapeError{
		Route:       route,
		URL:         url,
		Err:         err,
		Diagnostics: truncateDiagnostics(diagnostics),
		Timestamp:   time.Now(),
	}
}

const maxDiagnostics = 4096

func truncateDiagnostics(s string) string {
	if len(s) <= maxDiagnostics {
		return s
	}
	return s[:maxDiagnostics]
}

// netDownMarkers are Chromium error strings that indicate connectivity
// problems rather than scrape failures.
var netDownMarkers = []string{
	"ERR_INTERNET_DISCONNECTED",
	"ERR_NAME_NOT_RESOLVED",
	"ERR_PROXY_CONNECTION_FAILED",
	"ERR_CONNECTION_REFUSED",
	"ERR_NETWORK_CHANGED",
}

func isNetworkDown(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range netDownMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// classifyPageFailure inspects captured page content once the results
// selector failed to appear after the retry. An explicit block page is
// reported distinctly so proxy rotation can be diagnosed operationally.
func classifyPageFailure(content string) error {
	if strings.Contains(content, "Access Denied") {
		return ErrAccessDenied
	}
	return ErrScrapeTimeout
}

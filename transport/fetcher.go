// Package transport fetches documents from the target platforms with
// browser-shaped sessions: cookie continuity, user-agent rotation and a
// referer consistent with the simulated navigation path.
package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrorKind distinguishes transport failures so call sites can decide
// whether to skip one URL or abort the category.
type ErrorKind string

const (
	ErrTimeout     ErrorKind = "timeout"
	ErrConnection  ErrorKind = "connection"
	ErrHTTPStatus  ErrorKind = "http_status"
	ErrRateLimited ErrorKind = "rate_limited"
)

// FetchError is returned for every transport failure; never swallowed.
type FetchError struct {
	Kind   ErrorKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Kind, e.Status)
}

func (e *FetchError) Unwrap() error { return e.Err }

// AsFetchError unwraps err into a *FetchError when possible.
func AsFetchError(err error) (*FetchError, bool) {
	var fe *FetchError
	ok := errors.As(err, &fe)
	return fe, ok
}

// Fetcher performs session-aware GETs. It carries no per-platform state of
// its own; all of that lives in the SessionState the caller threads through.
type Fetcher struct {
	client      *http.Client
	baseDelay   time.Duration
	jitterDelay time.Duration
}

// NewFetcher wraps an HTTP client. After every request the fetcher sleeps
// baseDelay plus a random component bounded by jitter, re-drawn per request.
func NewFetcher(client *http.Client, baseDelay, jitter time.Duration) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{client: client, baseDelay: baseDelay, jitterDelay: jitter}
}

// Fetch retrieves url as a parsed document, updating session in place.
// There is no internal retry loop: retries belong to the call site, because
// an index page and a detail page tolerate loss differently.
func (f *Fetcher) Fetch(ctx context.Context, url string, session *SessionState) (*goquery.Document, error) {
	if session.stale() {
		if err := f.establish(ctx, session); err != nil {
			return nil, err
		}
	}

	doc, resp, err := f.get(ctx, url, session)
	if err != nil {
		return nil, err
	}

	session.absorb(resp)
	session.Referer = url
	session.RequestCount++

	f.pause(ctx)
	return doc, nil
}

// establish requests the platform root to pick up session cookies under a
// freshly rotated identity.
func (f *Fetcher) establish(ctx context.Context, session *SessionState) error {
	session.rotateIdentity()

	_, resp, err := f.get(ctx, session.RootURL, session)
	if err != nil {
		return err
	}

	session.absorb(resp)
	session.Referer = session.RootURL
	session.Established = true
	return nil
}

func (f *Fetcher) get(ctx context.Context, url string, session *SessionState) (*goquery.Document, *http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, &FetchError{Kind: ErrConnection, URL: url, Err: err}
	}

	// A fresh agent per request, not per session; the last one used stays
	// on the session for logging.
	session.UserAgent = userAgents[rand.Intn(len(userAgents))]
	req.Header.Set("User-Agent", session.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "de-AT,de;q=0.9,en;q=0.8")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	if session.Cookies != "" {
		req.Header.Set("Cookie", session.Cookies)
	}
	if session.Referer != "" {
		req.Header.Set("Referer", session.Referer)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		kind := ErrConnection
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			kind = ErrTimeout
		} else if errors.Is(err, context.DeadlineExceeded) {
			kind = ErrTimeout
		}
		return nil, nil, &FetchError{Kind: kind, URL: url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, nil, &FetchError{Kind: ErrRateLimited, URL: url, Status: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return nil, nil, &FetchError{Kind: ErrHTTPStatus, URL: url, Status: resp.StatusCode}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, nil, &FetchError{Kind: ErrConnection, URL: url, Err: err}
	}
	return doc, resp, nil
}

// pause sleeps the configured jittered delay, cancellable via ctx.
func (f *Fetcher) pause(ctx context.Context) {
	delay := f.baseDelay
	if f.jitterDelay > 0 {
		delay += time.Duration(rand.Int63n(int64(f.jitterDelay)))
	}
	if delay <= 0 {
		return
	}
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

package transport

import (
	"math/rand"
	"net/http"
	"strings"
)

// Pool of realistic browser identifiers, rotated per request.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Safari/605.1.15",
}

// sessionMaxRequests is how many fetches a session serves before the
// fetcher re-establishes it against the platform root (stale cookies get
// rejected well before this on some sites, hence the low number).
const sessionMaxRequests = 50

// SessionState is the per-adapter navigation state. It is an explicit
// value owned by the caller and threaded through every Fetch, never hidden
// package state, so two adapters can never corrupt each other's session.
type SessionState struct {
	RootURL      string // platform root used to (re-)establish
	Cookies      string // Cookie header value
	UserAgent    string
	Referer      string
	RequestCount int
	Established  bool
}

// NewSession returns an unestablished session for a platform root.
func NewSession(rootURL string) SessionState {
	return SessionState{
		RootURL:   rootURL,
		UserAgent: userAgents[rand.Intn(len(userAgents))],
	}
}

// stale reports whether the session must be (re-)established before the
// next request.
func (s *SessionState) stale() bool {
	return !s.Established || s.RequestCount >= sessionMaxRequests
}

// absorb merges Set-Cookie headers from a response into the session.
func (s *SessionState) absorb(resp *http.Response) {
	setCookies := resp.Header.Values("Set-Cookie")
	if len(setCookies) == 0 {
		return
	}

	jar := map[string]string{}
	for _, pair := range strings.Split(s.Cookies, "; ") {
		if name, value, ok := strings.Cut(pair, "="); ok {
			jar[name] = value
		}
	}
	for _, sc := range setCookies {
		pair, _, _ := strings.Cut(sc, ";")
		if name, value, ok := strings.Cut(strings.TrimSpace(pair), "="); ok {
			jar[name] = value
		}
	}

	var parts []string
	for name, value := range jar {
		parts = append(parts, name+"="+value)
	}
	s.Cookies = strings.Join(parts, "; ")
}

// rotateIdentity picks a fresh user agent and clears cookies; used when a
// session is re-established.
func (s *SessionState) rotateIdentity() {
	s.UserAgent = userAgents[rand.Intn(len(userAgents))]
	s.Cookies = ""
	s.Referer = ""
	s.RequestCount = 0
	s.Established = false
}

package spotapi

import (
	"io"
	"net/url"
	"strings"
	"sync"
	"testing"

	http "github.com/bogdanfinn/fhttp"
)

// fakeHTTPClient satisfies the transport's httpClient slice with canned
// routes so component flows run without the network.
type fakeHTTPClient struct {
	mu      sync.Mutex
	routes  []fakeRoute
	calls   []string
	cookies map[string][]*http.Cookie
}

type fakeRoute struct {
	method  string
	prefix  string
	handler func(req *http.Request) (*http.Response, error)
}

func newFakeHTTPClient() *fakeHTTPClient {
	return &fakeHTTPClient{cookies: map[string][]*http.Cookie{}}
}

// handle registers a canned response for requests whose URL starts with
// prefix.
func (f *fakeHTTPClient) handle(method, prefix string, status int, body string) {
	f.handleFunc(method, prefix, func(*http.Request) (*http.Response, error) {
		return fakeResponse(status, body, nil), nil
	})
}

// handleFunc registers a handler; later registrations win over earlier ones
// for the same prefix.
func (f *fakeHTTPClient) handleFunc(method, prefix string, handler func(req *http.Request) (*http.Response, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append([]fakeRoute{{method: method, prefix: prefix, handler: handler}}, f.routes...)
}

func (f *fakeHTTPClient) Do(req *http.Request) (*http.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req.Method+" "+req.URL.String())
	routes := make([]fakeRoute, len(f.routes))
	copy(routes, f.routes)
	f.mu.Unlock()

	for _, r := range routes {
		if r.method == req.Method && strings.HasPrefix(req.URL.String(), r.prefix) {
			return r.handler(req)
		}
	}
	return fakeResponse(http.StatusNotFound, "no route", nil), nil
}

// callCount returns how many recorded requests hit the given URL prefix.
func (f *fakeHTTPClient) callCount(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.Contains(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeHTTPClient) GetCookies(u *url.URL) []*http.Cookie {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cookies[u.Host]
}

func (f *fakeHTTPClient) SetCookies(u *url.URL, cookies []*http.Cookie) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies[u.Host] = append(f.cookies[u.Host], cookies...)
}

func (f *fakeHTTPClient) SetCookieJar(jar http.CookieJar) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies = map[string][]*http.Cookie{}
}

func (f *fakeHTTPClient) SetProxy(proxyURL string) error { return nil }

func (f *fakeHTTPClient) CloseIdleConnections() {}

func fakeResponse(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		StatusCode: status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestTransport(t *testing.T, fake *fakeHTTPClient) *Transport {
	t.Helper()
	tr, err := NewTransport(noopLogger(), withHTTPClient(fake), WithRetries(1))
	if err != nil {
		t.Fatalf("failed to create transport: %v", err)
	}
	return tr
}

func newTestConfig(t *testing.T, fake *fakeHTTPClient, solver Solver) *Config {
	t.Helper()
	return &Config{
		Client: newTestTransport(t, fake),
		Log:    noopLogger(),
		Solver: solver,
	}
}

// staticSolver returns a fixed token without any network calls.
type staticSolver struct {
	mu    sync.Mutex
	token string
	calls []string
}

func (s *staticSolver) Solve(pageURL, siteKey, action, variant string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, action)
	return s.token, nil
}

func (s *staticSolver) solveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

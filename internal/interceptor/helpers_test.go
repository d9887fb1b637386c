package interceptor

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iTrooz/shadow-gate/internal/animes"
	"github.com/iTrooz/shadow-gate/internal/cache"
	"github.com/iTrooz/shadow-gate/internal/config"
	"github.com/iTrooz/shadow-gate/internal/notify"
)

const testCacheName = "shadow-gate-test-v2"

var testManifest = []string{"/", "/index.html", "/app.js", "/dashboard.css"}

// fixture_upstream serves "body of <path>" for every path except /missing
func fixture_upstream(t *testing.T) *httptest.Server {
	t.Helper()
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, requ *http.Request) {
		if requ.URL.Path == "/missing" {
			http.NotFound(w, requ)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "body of %s", requ.URL.Path)
	}))
	t.Cleanup(upstream.Close)
	return upstream
}

// countingFetcher counts every network request
type countingFetcher struct {
	client *http.Client
	calls  atomic.Int64
}

func (f *countingFetcher) Do(req *http.Request) (*http.Response, error) {
	f.calls.Add(1)
	return f.client.Do(req)
}

type failingFetcher struct{}

func (failingFetcher) Do(req *http.Request) (*http.Response, error) {
	return nil, errors.New("dial tcp: connection refused")
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Payload
}

func (r *recordingNotifier) Alert(message string, severity notify.Severity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, notify.Payload{Message: message, Severity: severity})
}

func (r *recordingNotifier) all() []notify.Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Payload(nil), r.alerts...)
}

func (r *recordingNotifier) last() notify.Payload {
	alerts := r.all()
	if len(alerts) == 0 {
		return notify.Payload{}
	}
	return alerts[len(alerts)-1]
}

// testStorage wraps a storage to inject failures and count lookups
type testStorage struct {
	cache.Storage
	failDelete map[string]bool
	failSet    bool
	gets       atomic.Int64
}

func (s *testStorage) Open(name string) (cache.GenericCache, error) {
	c, err := s.Storage.Open(name)
	if err != nil {
		return nil, err
	}
	return &testGeneration{GenericCache: c, storage: s}, nil
}

func (s *testStorage) Delete(name string) (bool, error) {
	if s.failDelete[name] {
		return false, fmt.Errorf("permission denied")
	}
	return s.Storage.Delete(name)
}

type testGeneration struct {
	cache.GenericCache
	storage *testStorage
}

func (g *testGeneration) Get(key string) ([]byte, error) {
	g.storage.gets.Add(1)
	return g.GenericCache.Get(key)
}

func (g *testGeneration) Set(key string, value []byte) error {
	if g.storage.failSet {
		return errors.New("disk full")
	}
	return g.GenericCache.Set(key, value)
}

type fixture struct {
	upstream    *httptest.Server
	storage     *testStorage
	fetcher     *countingFetcher
	notifier    *recordingNotifier
	interceptor *Interceptor
}

func newFixture(t *testing.T, network Fetcher) *fixture {
	t.Helper()
	upstream := fixture_upstream(t)
	origin, err := url.Parse(upstream.URL)
	require.NoError(t, err)

	f := &fixture{
		upstream: upstream,
		storage:  &testStorage{Storage: cache.NewMemoryStorage(), failDelete: map[string]bool{}},
		fetcher:  &countingFetcher{client: NewNetwork(5 * time.Second)},
		notifier: &recordingNotifier{},
	}
	if network == nil {
		network = f.fetcher
	}

	f.interceptor, err = New(Options{
		CacheName: testCacheName,
		Origin:    origin,
		Manifest:  testManifest,
		Storage:   f.storage,
		Network:   network,
		Mock:      animes.New("/animes", config.MatchSubstring, f.notifier),
		Notifier:  f.notifier,
	})
	require.NoError(t, err)
	return f
}

// activated returns a fixture that went through Install and Activate
func activated(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t, nil)
	require.NoError(t, f.interceptor.Install(t.Context()))
	require.NoError(t, f.interceptor.Activate(t.Context()))
	return f
}

func (f *fixture) request(t *testing.T, method, path string) *http.Request {
	t.Helper()
	requ, err := http.NewRequest(method, f.upstream.URL+path, nil)
	require.NoError(t, err)
	return requ
}

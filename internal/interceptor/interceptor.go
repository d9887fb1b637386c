// Offline cache interceptor: install, activate and per-request routing
package interceptor

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/iTrooz/shadow-gate/internal/animes"
	"github.com/iTrooz/shadow-gate/internal/cache"
	"github.com/iTrooz/shadow-gate/internal/cache/httpcache"
	"github.com/iTrooz/shadow-gate/internal/notify"
)

var (
	// ErrInstallFailed wraps every Install failure. The generation never becomes ready.
	ErrInstallFailed = errors.New("cache install failed")
	// ErrActivationFailed wraps stale-generation cleanup failures. The generation is active anyway.
	ErrActivationFailed = errors.New("cache activation failed")
	// ErrInvalidState is returned when a lifecycle trigger arrives out of order
	ErrInvalidState = errors.New("invalid lifecycle state")
)

// State of the interceptor lifecycle
type State int

const (
	StateNew State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	// StateRedundant is terminal: the install failed
	StateRedundant
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	case StateRedundant:
		return "redundant"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Fetcher performs network requests. *http.Client satisfies it.
type Fetcher interface {
	Do(req *http.Request) (*http.Response, error)
}

type Options struct {
	// CacheName identifies the generation owned by this deployment
	CacheName string
	// Origin resolves manifest entries
	Origin   *url.URL
	Manifest []string
	Storage  cache.Storage
	Network  Fetcher
	Mock     *animes.Handler
	Notifier notify.Notifier
}

type Interceptor struct {
	cacheName string
	origin    *url.URL
	manifest  []string
	storage   cache.Storage
	network   Fetcher
	mock      *animes.Handler
	notifier  notify.Notifier

	mu     sync.RWMutex
	state  State
	active *httpcache.Generation

	// in-flight asynchronous cache writes
	pending sync.WaitGroup
}

func New(opts Options) (*Interceptor, error) {
	switch {
	case opts.CacheName == "":
		return nil, errors.New("cache name is required")
	case opts.Origin == nil:
		return nil, errors.New("origin is required")
	case opts.Storage == nil:
		return nil, errors.New("cache storage is required")
	case opts.Network == nil:
		return nil, errors.New("network fetcher is required")
	case opts.Mock == nil:
		return nil, errors.New("mock handler is required")
	case opts.Notifier == nil:
		return nil, errors.New("notifier is required")
	}

	return &Interceptor{
		cacheName: opts.CacheName,
		origin:    opts.Origin,
		manifest:  append([]string(nil), opts.Manifest...),
		storage:   opts.Storage,
		network:   opts.Network,
		mock:      opts.Mock,
		notifier:  opts.Notifier,
		state:     StateNew,
	}, nil
}

func (i *Interceptor) CacheName() string {
	return i.cacheName
}

func (i *Interceptor) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Wait blocks until every asynchronous cache write has finished
func (i *Interceptor) Wait() {
	i.pending.Wait()
}

// transition moves to next if the current state is one of from
func (i *Interceptor) transition(next State, from ...State) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for _, s := range from {
		if i.state == s {
			i.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: cannot move from %s to %s", ErrInvalidState, i.state, next)
}

func (i *Interceptor) setState(s State) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = s
}

// activeCache returns the generation used for lookups, or nil before activation
func (i *Interceptor) activeCache() *httpcache.Generation {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.state != StateActivated {
		return nil
	}
	return i.active
}

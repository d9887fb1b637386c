package interceptor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/iTrooz/shadow-gate/internal/cache/httpcache"
	"github.com/iTrooz/shadow-gate/internal/notify"
)

type manifestEntry struct {
	request  *http.Request
	response *http.Response
}

// Install fetches every manifest entry and stores them in the generation.
// Nothing is written unless every fetch succeeded with an ok status.
func (i *Interceptor) Install(ctx context.Context) error {
	if err := i.transition(StateInstalling, StateNew); err != nil {
		return err
	}

	logrus.Infof("Installing cache generation %s (%d resources)", i.cacheName, len(i.manifest))

	if err := i.install(ctx); err != nil {
		i.setState(StateRedundant)
		logrus.Errorf("Failed to install cache generation %s: %v", i.cacheName, err)
		i.notifier.Alert(fmt.Sprintf("Falha na instalação do cache: %v", err), notify.Danger)
		return fmt.Errorf("%w: %w", ErrInstallFailed, err)
	}

	i.setState(StateInstalled)
	logrus.Infof("Cache generation %s installed", i.cacheName)
	i.notifier.Alert("Cache instalado com sucesso!", notify.Success)
	return nil
}

func (i *Interceptor) install(ctx context.Context) error {
	fetched, err := i.fetchManifest(ctx)
	if err != nil {
		return err
	}

	existed, err := i.storage.Has(i.cacheName)
	if err != nil {
		return fmt.Errorf("checking cache %s: %w", i.cacheName, err)
	}
	generation, err := i.storage.Open(i.cacheName)
	if err != nil {
		return fmt.Errorf("opening cache %s: %w", i.cacheName, err)
	}

	entries := httpcache.New(generation)
	for _, entry := range fetched {
		if err := entries.Put(entry.request, entry.response); err != nil {
			if !existed {
				if _, delErr := i.storage.Delete(i.cacheName); delErr != nil {
					logrus.Errorf("Failed to discard partial cache %s: %v", i.cacheName, delErr)
				}
			}
			return fmt.Errorf("storing %s: %w", entry.request.URL, err)
		}
	}
	return nil
}

func (i *Interceptor) fetchManifest(ctx context.Context) ([]manifestEntry, error) {
	entries := make([]manifestEntry, len(i.manifest))

	g, gctx := errgroup.WithContext(ctx)
	for idx, resource := range i.manifest {
		g.Go(func() error {
			entry, err := i.fetchResource(gctx, resource)
			if err != nil {
				return err
			}
			entries[idx] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (i *Interceptor) fetchResource(ctx context.Context, resource string) (manifestEntry, error) {
	ref, err := url.Parse(resource)
	if err != nil {
		return manifestEntry{}, fmt.Errorf("invalid manifest entry %s: %w", resource, err)
	}

	requ, err := http.NewRequestWithContext(ctx, http.MethodGet, i.origin.ResolveReference(ref).String(), nil)
	if err != nil {
		return manifestEntry{}, fmt.Errorf("building request for %s: %w", resource, err)
	}

	resp, err := i.network.Do(requ)
	if err != nil {
		return manifestEntry{}, fmt.Errorf("fetching %s: %w", resource, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if !isOK(resp.StatusCode) {
		return manifestEntry{}, fmt.Errorf("fetching %s: unexpected status %d", resource, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return manifestEntry{}, fmt.Errorf("reading %s: %w", resource, err)
	}
	logrus.Debugf("Fetched manifest entry %s (%d bytes)", resource, len(body))

	return manifestEntry{request: requ, response: withBody(resp, body)}, nil
}

package interceptor

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/iTrooz/shadow-gate/internal/cache/httpcache"
	"github.com/iTrooz/shadow-gate/internal/notify"
)

// Activate deletes every generation but the current one and makes the current
// one authoritative for lookups. Deletion failures do not stop the remaining
// deletions nor the activation; they are reported in the returned error,
// which wraps ErrActivationFailed. Calling Activate again re-runs the cleanup.
func (i *Interceptor) Activate(ctx context.Context) error {
	if err := i.transition(StateActivating, StateInstalled, StateActivated); err != nil {
		return err
	}

	var errs []error

	names, err := i.storage.Keys()
	if err != nil {
		errs = append(errs, fmt.Errorf("listing caches: %w", err))
	}
	for _, name := range names {
		if name == i.cacheName {
			continue
		}
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := i.storage.Delete(name); err != nil {
			errs = append(errs, fmt.Errorf("deleting cache %s: %w", name, err))
			continue
		}
		logrus.Infof("Deleted stale cache generation %s", name)
	}

	var active *httpcache.Generation
	generation, err := i.storage.Open(i.cacheName)
	if err != nil {
		errs = append(errs, fmt.Errorf("opening cache %s: %w", i.cacheName, err))
	} else {
		active = httpcache.New(generation)
	}

	i.mu.Lock()
	i.active = active
	i.state = StateActivated
	i.mu.Unlock()

	if err := errors.Join(errs...); err != nil {
		logrus.Errorf("Cache generation %s activated with errors: %v", i.cacheName, err)
		i.notifier.Alert(fmt.Sprintf("Falha na ativação: %v", err), notify.Danger)
		return fmt.Errorf("%w: %w", ErrActivationFailed, err)
	}

	logrus.Infof("Cache generation %s activated", i.cacheName)
	i.notifier.Alert("Service Worker ativado!", notify.Success)
	return nil
}

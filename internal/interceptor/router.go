package interceptor

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/elazarl/goproxy"
	"github.com/sirupsen/logrus"

	"github.com/iTrooz/shadow-gate/internal/cache/httpcache"
	"github.com/iTrooz/shadow-gate/internal/logging"
	"github.com/iTrooz/shadow-gate/internal/notify"
)

// OfflineBody is returned with a 503 when the network cannot be reached
const OfflineBody = "Offline - Recursos não disponíveis"

// Fetch answers an intercepted request. It never returns nil:
//   - mock endpoint requests are served by the mock handler, with no cache or network access
//   - GET requests found in the active generation are served from it
//   - everything else goes to the network; ok GET responses are stored in the background
//   - network failures yield a 503 offline response
func (i *Interceptor) Fetch(ctx context.Context, requ *http.Request) *http.Response {
	log := logrus.WithFields(logging.RequestFields(requ))

	if i.mock.Match(requ) {
		log.Debug("Routing to mock endpoint")
		return i.mock.Serve(requ)
	}

	active := i.activeCache()
	if active != nil && requ.Method == http.MethodGet {
		if resp := getCachedResponse(active, requ, log); resp != nil {
			log.Info("Serving from cache")
			return resp
		}
	}

	return i.fetchNetwork(ctx, requ, active, log)
}

// getCachedResponse returns a cached HTTP response if available
func getCachedResponse(active *httpcache.Generation, requ *http.Request, log *logrus.Entry) *http.Response {
	resp, err := active.Match(requ)
	if err != nil {
		log.Errorf("Failed to get cached data: %v", err)
		return nil
	}
	if resp == nil {
		log.Debug("No cached data found")
		return nil
	}

	resp.Header.Set("X-Cache", "HIT")
	return resp
}

func (i *Interceptor) fetchNetwork(ctx context.Context, requ *http.Request, active *httpcache.Generation, log *logrus.Entry) *http.Response {
	resp, err := i.network.Do(outbound(ctx, requ))
	if err != nil {
		return i.offline(requ, err, log)
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}

	if active != nil && requ.Method == http.MethodGet && isOK(resp.StatusCode) {
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return i.offline(requ, fmt.Errorf("reading response body: %w", err), log)
		}
		i.cacheResponse(active, requ, cloneWithBody(resp, body), log)
		resp = withBody(resp, body)
	}

	resp.Header.Set("X-Cache", "MISS")
	log.Infof("Forwarded request -> %d", resp.StatusCode)
	return resp
}

// cacheResponse stores a response in the background; Wait drains pending writes
func (i *Interceptor) cacheResponse(active *httpcache.Generation, requ *http.Request, resp *http.Response, log *logrus.Entry) {
	key, err := httpcache.Key(requ)
	if err != nil {
		log.Errorf("Failed to cache response: %v", err)
		return
	}

	i.pending.Add(1)
	go func() {
		defer i.pending.Done()
		if err := active.PutKey(key, resp); err != nil {
			log.Errorf("Failed to cache response: %v", err)
			return
		}
		log.Debugf("Stored response under %s", key)
	}()
}

func (i *Interceptor) offline(requ *http.Request, err error, log *logrus.Entry) *http.Response {
	log.Warnf("Network request failed: %v", err)
	i.notifier.Alert(fmt.Sprintf("Falha na requisição: %v", err), notify.Warning)
	return goproxy.NewResponse(requ, goproxy.ContentTypeText, http.StatusServiceUnavailable, OfflineBody)
}

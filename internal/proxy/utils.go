package proxy

import (
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
)

// resolveTarget maps a request made directly to the proxy onto the origin
func resolveTarget(origin *url.URL, r *http.Request) *url.URL {
	return origin.ResolveReference(&url.URL{
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	})
}

// writeResponse copies an http.Response to a ResponseWriter
func writeResponse(w http.ResponseWriter, resp *http.Response) {
	defer func() { _ = resp.Body.Close() }()

	for key, values := range resp.Header {
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		logrus.Errorf("Failed to write response body: %v", err)
	}
}

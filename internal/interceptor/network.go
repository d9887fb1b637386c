package interceptor

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"
)

// NewNetwork returns the HTTP client used for outbound requests
func NewNetwork(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	// Never chain through an environment proxy, which may be this process
	transport.Proxy = nil
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			// Redirects are returned to the page as-is
			return http.ErrUseLastResponse
		},
	}
}

var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Upgrade",
}

// outbound turns an intercepted request into one suitable for an http.Client
func outbound(ctx context.Context, requ *http.Request) *http.Request {
	out := requ.Clone(ctx)
	out.RequestURI = ""
	for _, h := range hopHeaders {
		out.Header.Del(h)
	}
	// Let the transport negotiate compression and decode it
	out.Header.Del("Accept-Encoding")
	return out
}

func isOK(status int) bool {
	return status >= 200 && status <= 299
}

// withBody replaces the body of resp with an in-memory copy of body
func withBody(resp *http.Response, body []byte) *http.Response {
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.TransferEncoding = nil
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
	return resp
}

// cloneWithBody returns a copy of resp that owns its headers and body
func cloneWithBody(resp *http.Response, body []byte) *http.Response {
	clone := *resp
	clone.Header = resp.Header.Clone()
	clone.Trailer = nil
	return withBody(&clone, body)
}

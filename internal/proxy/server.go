package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/elazarl/goproxy"
	"github.com/sirupsen/logrus"

	"github.com/iTrooz/shadow-gate/internal/config"
	"github.com/iTrooz/shadow-gate/internal/interceptor"
	"github.com/iTrooz/shadow-gate/internal/notify"
)

// AlertsPath is reserved on the proxy itself for the notification stream
const AlertsPath = "/__shadow-gate/alerts"

// Server exposes the interceptor as an HTTP proxy
type Server struct {
	config      *config.Config
	origin      *url.URL
	proxy       *goproxy.ProxyHttpServer
	interceptor *interceptor.Interceptor
	alerts      *notify.Registry

	closing   chan struct{}
	closeOnce sync.Once
}

// New creates a new proxy server
func New(cfg *config.Config, icpt *interceptor.Interceptor, alerts *notify.Registry) (*Server, error) {
	origin, err := cfg.GetOrigin()
	if err != nil {
		return nil, fmt.Errorf("invalid origin: %w", err)
	}

	s := &Server{
		config:      cfg,
		origin:      origin,
		proxy:       goproxy.NewProxyHttpServer(),
		interceptor: icpt,
		alerts:      alerts,
		closing:     make(chan struct{}),
	}
	s.proxy.Logger = logrus.StandardLogger()
	s.proxy.Verbose = logrus.IsLevelEnabled(logrus.TraceLevel)
	s.proxy.CertStore = newHostCertStore()

	if cfg.Server.HTTPS.Enabled {
		if err := s.setupHTTPSProxyHandler(); err != nil {
			return nil, err
		}
	}

	s.proxy.OnRequest().DoFunc(s.handleRequest)
	s.proxy.NonproxyHandler = s.nonproxyHandler()

	return s, nil
}

// GetProxy returns the underlying handler (exported for testing)
func (s *Server) GetProxy() *goproxy.ProxyHttpServer {
	return s.proxy
}

// Start listens on the configured port and serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Server.Port))
	if err != nil {
		return fmt.Errorf("listening on port %d: %w", s.config.Server.Port, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts proxy connections on ln until ctx is cancelled, then shuts
// down gracefully. Open alerts streams are closed as part of the shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if addr := s.config.Server.HTTPS.TransparentAddr; addr != "" {
		go func() {
			if err := s.StartTransparentHTTPS(ctx, addr); err != nil {
				logrus.Errorf("Transparent HTTPS listener stopped: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Handler:           s.proxy,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.RegisterOnShutdown(s.closeStreams)

	logrus.Infof("Starting offline cache proxy on %s", ln.Addr())
	logrus.Infof("Origin: %s", s.origin)
	logrus.Infof("Cache generation: %s (%s)", s.interceptor.CacheName(), s.config.Cache.Backend)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// closeStreams ends every open alerts stream
func (s *Server) closeStreams() {
	s.closeOnce.Do(func() { close(s.closing) })
}

// handleRequest answers proxied requests (absolute URL) through the interceptor
func (s *Server) handleRequest(requ *http.Request, ctx *goproxy.ProxyCtx) (*http.Request, *http.Response) {
	return requ, s.interceptor.Fetch(requ.Context(), requ)
}

// nonproxyHandler answers requests addressed to the proxy itself: the alerts
// stream, and the application browsed directly through the proxy
func (s *Server) nonproxyHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(AlertsPath, s.handleAlerts)
	mux.HandleFunc("/", s.handleDirect)
	return mux
}

func (s *Server) handleDirect(w http.ResponseWriter, requ *http.Request) {
	target := resolveTarget(s.origin, requ)

	out := requ.Clone(requ.Context())
	out.URL = target
	out.Host = target.Host
	out.RequestURI = ""

	resp := s.interceptor.Fetch(requ.Context(), out)
	writeResponse(w, resp)
}

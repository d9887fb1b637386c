package proxy

import (
	"crypto/tls"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// hostCertStore implements goproxy.CertStorage. Certificates forged for MITM
// are kept for the lifetime of the process, one per intercepted host.
type hostCertStore struct {
	mu     sync.Mutex
	byHost map[string]*tls.Certificate
}

func newHostCertStore() *hostCertStore {
	return &hostCertStore{byHost: make(map[string]*tls.Certificate)}
}

func (s *hostCertStore) Fetch(host string, gen func() (*tls.Certificate, error)) (*tls.Certificate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cert := s.byHost[host]; cert != nil {
		return cert, nil
	}

	logrus.Debugf("Forging certificate for %s", host)
	cert, err := gen()
	if err != nil {
		return nil, fmt.Errorf("forging certificate for %s: %w", host, err)
	}
	s.byHost[host] = cert
	return cert, nil
}

// Len returns the number of hosts with a forged certificate
func (s *hostCertStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byHost)
}

// Stores HTTP responses inside a cache generation, keyed by request identity
package httpcache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/iTrooz/shadow-gate/internal/cache"
)

// ErrRelativeURL is returned for requests that carry no host
var ErrRelativeURL = errors.New("request URL must be absolute")

// Generation wraps a cache generation with request/response semantics
type Generation struct {
	entries cache.GenericCache
}

func New(entries cache.GenericCache) *Generation {
	return &Generation{entries: entries}
}

// Key identifies a request by method and URL:
// host/path/METHOD[_p<hash>][_q<hash>].bin.
// The readable path is the cleaned, decoded one; when the escaped path differs
// from it (trailing slash, encoded separators, dot segments) the escaped path
// is hashed into the name so distinct URLs never share a key.
// Headers and body do not take part in the identity.
func Key(requ *http.Request) (string, error) {
	if requ.URL == nil || requ.URL.Host == "" {
		return "", ErrRelativeURL
	}

	dir := strings.Trim(path.Clean("/"+requ.URL.Path), "/")
	segments := []string{trimDefaultPort(requ.URL.Host)}
	if dir != "" {
		segments = append(segments, dir)
	}
	return path.Join(append(segments, entryName(requ, "/"+dir))...), nil
}

func trimDefaultPort(host string) string {
	for _, port := range []string{":80", ":443"} {
		if h, ok := strings.CutSuffix(host, port); ok {
			return h
		}
	}
	return host
}

func entryName(requ *http.Request, canonical string) string {
	name := requ.Method
	if escaped := requ.URL.EscapedPath(); escaped != "" && escaped != canonical {
		name += "_p" + shortHash(escaped)
	}
	if q := requ.URL.RawQuery; q != "" {
		name += "_q" + shortHash(q)
	}
	return name + ".bin"
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// Put stores resp as the answer to requ, consuming its body
func (g *Generation) Put(requ *http.Request, resp *http.Response) error {
	key, err := Key(requ)
	if err != nil {
		return err
	}
	return g.PutKey(key, resp)
}

// PutKey stores resp under a key computed earlier with Key
func (g *Generation) PutKey(key string, resp *http.Response) error {
	data, err := Serialize(resp)
	if err != nil {
		return fmt.Errorf("serializing response for %s: %w", key, err)
	}
	if err := g.entries.Set(key, data); err != nil {
		return fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	return nil
}

// Match returns the response stored for requ, or nil, nil when there is none.
// The returned response is attached to requ.
func (g *Generation) Match(requ *http.Request) (*http.Response, error) {
	key, err := Key(requ)
	if err != nil {
		return nil, err
	}

	data, err := g.entries.Get(key)
	if err != nil {
		return nil, fmt.Errorf("reading cache entry %s: %w", key, err)
	}
	if data == nil {
		return nil, nil
	}

	resp, err := Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("decoding cache entry %s: %w", key, err)
	}
	resp.Request = requ
	return resp, nil
}

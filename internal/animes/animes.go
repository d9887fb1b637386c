// Static /animes endpoint answered without touching cache or network
package animes

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elazarl/goproxy"
	"github.com/sirupsen/logrus"

	"github.com/iTrooz/shadow-gate/internal/config"
	"github.com/iTrooz/shadow-gate/internal/notify"
)

const ContentTypeJSON = "application/json"

// timestampLayout matches JavaScript's Date.toISOString
const timestampLayout = "2006-01-02T15:04:05.000Z"

type Anime struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Episodes int    `json:"episodes"`
}

// Document is the body returned for every matched request
type Document struct {
	ProjectID string  `json:"projectId"`
	Animes    []Anime `json:"animes"`
	UpdatedAt string  `json:"updatedAt"`
}

// Catalog is returned verbatim, whatever the project
var Catalog = []Anime{
	{ID: 1, Title: "Demon Slayer", Episodes: 26},
	{ID: 2, Title: "Jujutsu Kaisen", Episodes: 24},
}

type Handler struct {
	prefix   string
	match    string
	notifier notify.Notifier

	now    func() time.Time
	encode func(v any) ([]byte, error)
}

// New creates the handler. match is config.MatchSubstring or config.MatchSegment.
func New(prefix, match string, notifier notify.Notifier) *Handler {
	return &Handler{
		prefix:   prefix,
		match:    match,
		notifier: notifier,
		now:      time.Now,
		encode:   json.Marshal,
	}
}

// Match reports whether the request belongs to the mock endpoint.
//
// In substring mode any URL containing the prefix matches, query string
// included. In segment mode the prefix must appear as whole path segments.
func (h *Handler) Match(req *http.Request) bool {
	if req.URL == nil {
		return false
	}
	if h.match == config.MatchSegment {
		return containsSegments(req.URL.Path, h.prefix)
	}
	return strings.Contains(req.URL.String(), h.prefix)
}

func splitSegments(p string) []string {
	var segments []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}

func containsSegments(p, prefix string) bool {
	path := splitSegments(p)
	want := splitSegments(prefix)
	if len(want) == 0 {
		return false
	}
	for i := 0; i+len(want) <= len(path); i++ {
		matched := true
		for j := range want {
			if path[i+j] != want[j] {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

// ProjectID returns the first path segment, unvalidated. "/proj42/animes"
// yields "proj42"; a bare "/animes" yields "animes".
func ProjectID(req *http.Request) string {
	parts := strings.Split(req.URL.Path, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// Serve builds the endpoint response. It always returns a response: 200 with
// the document, or 500 with {"error": ...} when the document cannot be built.
func (h *Handler) Serve(req *http.Request) *http.Response {
	body, err := h.build(req)
	if err != nil {
		message := fmt.Sprintf("Erro no endpoint %s: %v", h.prefix, err)
		logrus.Errorf("Failed to build %s response for %s: %v", h.prefix, req.URL, err)
		h.notifier.Alert(message, notify.Danger)

		errBody, _ := json.Marshal(map[string]string{"error": err.Error()})
		return goproxy.NewResponse(req, ContentTypeJSON, http.StatusInternalServerError, string(errBody))
	}

	logrus.Debugf("Served mock %s for %s", h.prefix, req.URL)
	return goproxy.NewResponse(req, ContentTypeJSON, http.StatusOK, string(body))
}

func (h *Handler) build(req *http.Request) ([]byte, error) {
	doc := Document{
		ProjectID: ProjectID(req),
		Animes:    append([]Anime(nil), Catalog...),
		UpdatedAt: h.now().UTC().Format(timestampLayout),
	}
	return h.encode(doc)
}

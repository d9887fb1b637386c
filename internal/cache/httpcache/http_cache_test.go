package httpcache

import (
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iTrooz/shadow-gate/internal/cache"
)

func newResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode:    status,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Header:        http.Header{"Content-Type": []string{"application/javascript"}},
	}
}

func TestKey(t *testing.T) {
	tests := []struct {
		name      string
		targetURL string
		method    string
		want      string
	}{
		{
			name:      "simple URL",
			targetURL: "https://example.com/api/users",
			method:    "GET",
			want:      "example.com/api/users/GET.bin",
		},
		{
			name:      "root path",
			targetURL: "http://example.com/",
			method:    "GET",
			want:      "example.com/GET.bin",
		},
		{
			name:      "default port is dropped",
			targetURL: "http://example.com:80/app.js",
			method:    "GET",
			want:      "example.com/app.js/GET.bin",
		},
		{
			name:      "custom port is kept",
			targetURL: "http://localhost:3000/index.html",
			method:    "HEAD",
			want:      "localhost:3000/index.html/HEAD.bin",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, tt.targetURL, nil)
			require.NoError(t, err)

			got, err := Key(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKeyIgnoresHeaders(t *testing.T) {
	a, _ := http.NewRequest("GET", "https://example.com/page?x=1", nil)
	b, _ := http.NewRequest("GET", "https://example.com/page?x=1", nil)
	b.Header.Set("Accept", "text/html")
	c, _ := http.NewRequest("GET", "https://example.com/page?x=2", nil)

	keyA, err := Key(a)
	require.NoError(t, err)
	keyB, err := Key(b)
	require.NoError(t, err)
	keyC, err := Key(c)
	require.NoError(t, err)

	assert.Equal(t, keyA, keyB)
	assert.NotEqual(t, keyA, keyC)
	assert.True(t, strings.HasPrefix(keyA, "example.com/page/GET_q"))
}

func TestKeyDistinguishesPaths(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
	}{
		{name: "trailing slash", a: "http://example.com/docs", b: "http://example.com/docs/"},
		{name: "encoded separator", a: "http://example.com/a/b", b: "http://example.com/a%2Fb"},
		{name: "dot segments", a: "http://example.com/b", b: "http://example.com/a/../b"},
		{name: "double slash", a: "http://example.com/a/b", b: "http://example.com/a//b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := http.NewRequest(http.MethodGet, tt.a, nil)
			require.NoError(t, err)
			b, err := http.NewRequest(http.MethodGet, tt.b, nil)
			require.NoError(t, err)

			keyA, err := Key(a)
			require.NoError(t, err)
			keyB, err := Key(b)
			require.NoError(t, err)
			assert.NotEqual(t, keyA, keyB)
		})
	}
}

func TestKeyTrailingSlashIsReadable(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://example.com/docs/", nil)
	require.NoError(t, err)

	key, err := Key(req)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "example.com/docs/GET_p"), "got %s", key)
	assert.True(t, strings.HasSuffix(key, ".bin"))
}

func TestKeyEmptyPathIsRoot(t *testing.T) {
	bare, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)
	root, err := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	require.NoError(t, err)

	keyBare, err := Key(bare)
	require.NoError(t, err)
	keyRoot, err := Key(root)
	require.NoError(t, err)
	assert.Equal(t, "example.com/GET.bin", keyBare)
	assert.Equal(t, keyRoot, keyBare)
}

func TestKeyRequiresAbsoluteURL(t *testing.T) {
	req := &http.Request{Method: "GET", URL: &url.URL{Path: "/relative"}}

	_, err := Key(req)
	assert.ErrorIs(t, err, ErrRelativeURL)
}

func TestGenerationPutAndMatch(t *testing.T) {
	generation := New(cache.NewMemory())

	req, err := http.NewRequest("GET", "https://example.com/app.js", nil)
	require.NoError(t, err)

	cachedResp, err := generation.Match(req)
	require.NoError(t, err)
	assert.Nil(t, cachedResp, "expected a miss before Put")

	testData := "console.log('hello')"
	require.NoError(t, generation.Put(req, newResponse(http.StatusOK, testData)))

	cachedResp, err = generation.Match(req)
	require.NoError(t, err)
	require.NotNil(t, cachedResp)

	assert.Equal(t, http.StatusOK, cachedResp.StatusCode)
	assert.Equal(t, "application/javascript", cachedResp.Header.Get("Content-Type"))
	assert.Same(t, req, cachedResp.Request)

	cachedData, err := io.ReadAll(cachedResp.Body)
	require.NoError(t, err)
	assert.Equal(t, testData, string(cachedData))
}

func TestDeserializeRejectsForeignData(t *testing.T) {
	_, err := Deserialize([]byte("garbage"))
	assert.Error(t, err)

	_, err = Deserialize(nil)
	assert.Error(t, err)
}

package httpcache

import (
	"bufio"
	"bytes"
	"fmt"
	"net/http"
	"net/http/httputil"
)

// entryHeader marks every serialized entry
const entryHeader = "---HTTP-RESPONSE---\n"

// Serialize encodes resp in HTTP/1.1 wire format. The body is consumed and
// replaced with an equivalent reader.
func Serialize(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(entryHeader)

	dump, err := httputil.DumpResponse(resp, true)
	if err != nil {
		return nil, err
	}
	buf.Write(dump)
	return buf.Bytes(), nil
}

// Deserialize decodes an entry written by Serialize
func Deserialize(data []byte) (*http.Response, error) {
	wire, ok := bytes.CutPrefix(data, []byte(entryHeader))
	if !ok {
		return nil, fmt.Errorf("not a cached response: missing %q header", entryHeader)
	}
	return http.ReadResponse(bufio.NewReader(bytes.NewReader(wire)), nil)
}

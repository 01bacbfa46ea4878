package kasaapi

import (
	"fmt"
	"strings"
)

// QueryParam is one key/value pair of a query string.  A slice of these keeps
// the order that the service expects.
type QueryParam struct {
	Key   string
	Value string
}

// EncodeQuery joins params as key=value pairs separated by '&'.  Values are
// copied verbatim, the caller owns any escaping.
func EncodeQuery(params []QueryParam) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		parts = append(parts, p.Key+"="+p.Value)
	}

	return strings.Join(parts, "&")
}

// escapeQuery percent-encodes the bytes that cannot appear raw in the query
// of an https request line: controls, space, non-ASCII and the characters
// " # ' < >.  Everything else, '+' and '=' included, is left as it is.
func escapeQuery(q string) string {
	var b strings.Builder
	b.Grow(len(q))

	for i := 0; i < len(q); i++ {
		c := q[i]
		switch {
		case c <= 0x20, c >= 0x7f, c == '"', c == '#', c == '\'', c == '<', c == '>':
			fmt.Fprintf(&b, "%%%02X", c)
		default:
			b.WriteByte(c)
		}
	}

	return b.String()
}

func withQuery(baseURL string, params []QueryParam) string {
	return baseURL + "?" + escapeQuery(EncodeQuery(params))
}

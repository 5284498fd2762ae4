package hls

import (
	"fmt"
	"strings"

	"github.com/iconidentify/lectura/internal/domain"
)

// NormalizeBaseURL ensures the segment base URL ends with exactly one slash.
func NormalizeBaseURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/"
}

// BuildSegmentURL composes a signed segment URL from a base URL, a filename
// and optional CDN auth parameters. The query parameter order is fixed:
// Key-Pair-Id, Policy, Signature. Absent parameters are omitted. Policy and
// Signature are Base64-like tokens and are percent-encoded with no safe
// characters; Key-Pair-Id is inserted verbatim.
func BuildSegmentURL(baseURL, filename string, auth domain.SignedURLAuth) string {
	url := NormalizeBaseURL(baseURL) + filename

	var params []string
	if auth.KeyPairID != "" {
		params = append(params, "Key-Pair-Id="+auth.KeyPairID)
	}
	if auth.Policy != "" {
		params = append(params, "Policy="+escapeAll(auth.Policy))
	}
	if auth.Signature != "" {
		params = append(params, "Signature="+escapeAll(auth.Signature))
	}

	if len(params) > 0 {
		url += "?" + strings.Join(params, "&")
	}
	return url
}

// escapeAll percent-encodes every byte outside the RFC 3986 unreserved set.
// url.QueryEscape is unsuitable here: it leaves space as '+' and the CDN
// requires '+', '/' and '=' inside Policy/Signature tokens to be escaped.
func escapeAll(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9':
			b.WriteByte(c)
		case c == '-' || c == '_' || c == '.' || c == '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

package searchclient

import (
	"net/url"
	"strings"
)

// Constants for URL canonicalization.
const (
	portHTTP  = ":80"
	portHTTPS = ":443"
)

// CanonicalizeURL normalizes a source URL for consistent existsBySourceUrl
// lookups: lowercases scheme/host, strips default ports and fragments,
// drops utm_* and share tracking parameters, sorts the remaining query
// parameters, and trims a trailing slash from the path.
func CanonicalizeURL(rawURL string) string {
	return canonicalizeURL(rawURL)
}

func canonicalizeURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = removeDefaultPort(strings.ToLower(parsed.Host), parsed.Scheme)
	parsed.Fragment = ""

	if parsed.Path != "/" && strings.HasSuffix(parsed.Path, "/") {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}

	if parsed.RawQuery != "" {
		query := parsed.Query()
		for key := range query {
			if strings.HasPrefix(key, "utm_") || key == "share" {
				query.Del(key)
			}
		}

		parsed.RawQuery = query.Encode()
	}

	return parsed.String()
}

// removeDefaultPort removes default ports (80 for http, 443 for https).
func removeDefaultPort(host, scheme string) string {
	switch {
	case scheme == "http" && strings.HasSuffix(host, portHTTP):
		return strings.TrimSuffix(host, portHTTP)
	case scheme == "https" && strings.HasSuffix(host, portHTTPS):
		return strings.TrimSuffix(host, portHTTPS)
	default:
		return host
	}
}

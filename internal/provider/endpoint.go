package provider

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

const defaultCompletionsPath = "/chat/completions"

// ResolveEndpoint turns a profile base URL into the completions URL. A path
// that already names a completions-style route (a "chat" or "completions"
// segment) is used verbatim, so gateways with nonstandard shapes like
// /v1/api/chat work without the client guessing.
func ResolveEndpoint(baseURL string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(base)
	if err != nil {
		return base + defaultCompletionsPath
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if seg == "chat" || seg == "completions" {
			return base
		}
	}
	return base + defaultCompletionsPath
}

// IsLocalEndpoint reports whether the URL's host is loopback or in a private
// range (10/8, 192.168/16, 172.16/12). The 172 check parses the second octet
// numerically: 172.200.0.1 is public, 172.20.0.1 is not. Self-hosted
// backends commonly reject a bearer header when no key is configured, so
// callers omit Authorization entirely for local endpoints.
func IsLocalEndpoint(baseURL string) bool {
	host := hostOf(strings.TrimSpace(baseURL))
	if host == "localhost" || host == "127.0.0.1" {
		return true
	}
	octets := strings.Split(host, ".")
	if len(octets) != 4 {
		return false
	}
	switch octets[0] {
	case "10":
		return true
	case "192":
		return octets[1] == "168"
	case "172":
		second, err := strconv.Atoi(octets[1])
		return err == nil && second >= 16 && second <= 31
	}
	return false
}

func hostOf(baseURL string) string {
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		return u.Hostname()
	}
	// Tolerate bare host[:port] values pasted without a scheme.
	h := baseURL
	if i := strings.Index(h, "/"); i >= 0 {
		h = h[:i]
	}
	if host, _, err := net.SplitHostPort(h); err == nil {
		return host
	}
	return h
}

// Package security implements the SSRF-defense layer shared by every
// network sink: URL validation, IP classification, DNS preflight with
// bounded concurrency and caching, and a pinned-client cache keyed on the
// preflight result.
package security

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Policy is the validated, construction-time-frozen configuration of a
// single HTTP sink's target URL. It never changes after NewPolicy succeeds.
type Policy struct {
	URL            *url.URL
	Host           string
	PathPrefix     string
	AllowedHosts   map[string]struct{}
	PublicIPCheck  bool
	Strict         bool
}

// Options configures a Policy before validation.
type Options struct {
	RawURL        string
	AllowedHosts  []string
	PathPrefix    string
	PublicIPCheck bool
	Strict        bool
}

// NewPolicy validates rawURL and the surrounding options against every
// rule in the URL policy contract, failing the caller's sink factory
// instead of the network at dispatch time.
func NewPolicy(opts Options) (*Policy, error) {
	if opts.Strict {
		if len(opts.AllowedHosts) == 0 {
			return nil, fmt.Errorf("strict mode requires a non-empty allowed host set")
		}
		if strings.TrimSpace(opts.PathPrefix) == "" {
			return nil, fmt.Errorf("strict mode requires a non-empty path prefix")
		}
		if !opts.PublicIPCheck {
			return nil, fmt.Errorf("strict mode requires public IP checking to stay enabled")
		}
	}

	u, err := url.Parse(strings.TrimSpace(opts.RawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "https" {
		return nil, fmt.Errorf("url scheme must be https, got %q", u.Scheme)
	}
	if u.User != nil {
		return nil, fmt.Errorf("url must not carry userinfo")
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return nil, fmt.Errorf("url host must not be empty")
	}
	if host == "localhost" {
		return nil, fmt.Errorf("url host must not be localhost")
	}
	if net.ParseIP(host) != nil {
		return nil, fmt.Errorf("url host must not be an IP literal")
	}

	if port := u.Port(); port != "" && port != "443" {
		return nil, fmt.Errorf("url port must be 443, got %q", port)
	}

	allowed := make(map[string]struct{}, len(opts.AllowedHosts))
	for _, h := range opts.AllowedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h == "" {
			return nil, fmt.Errorf("allowed host must not be empty")
		}
		allowed[h] = struct{}{}
	}
	if len(allowed) > 0 {
		if _, ok := allowed[host]; !ok {
			return nil, fmt.Errorf("url host %q is not in the allowed host set", host)
		}
	}

	pathPrefix := strings.TrimSpace(opts.PathPrefix)
	if pathPrefix != "" {
		if !matchesPathPrefix(u.Path, pathPrefix) {
			return nil, fmt.Errorf("url path %q does not match required prefix %q", u.Path, pathPrefix)
		}
	}

	return &Policy{
		URL:           u,
		Host:          host,
		PathPrefix:    pathPrefix,
		AllowedHosts:  allowed,
		PublicIPCheck: opts.PublicIPCheck,
		Strict:        opts.Strict,
	}, nil
}

// matchesPathPrefix reports whether path matches prefix at a segment
// boundary: prefix "/send" matches "/send" and "/send/x" but not
// "/sendMessage".
func matchesPathPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

// RedactURL renders u with its path, query and userinfo stripped, leaving
// only the scheme and host for logging and error messages.
func RedactURL(u *url.URL) string {
	if u == nil {
		return "<nil>"
	}
	return u.Scheme + "://" + u.Host + "/<redacted>"
}

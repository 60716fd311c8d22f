package security

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultPinnedClientTTL is how long a pinned client stays reusable
	// before its addresses are considered stale enough to warrant a fresh
	// preflight.
	DefaultPinnedClientTTL = 60 * time.Second
	// DefaultPinnedClientCacheCapacity bounds how many distinct
	// (host, timeout, addrs) clients are kept alive at once.
	DefaultPinnedClientCacheCapacity = 256
)

type pinnedKey struct {
	host    string
	timeout time.Duration
	addrs   string
}

func newPinnedKey(host string, timeout time.Duration, addrs []net.IP) pinnedKey {
	sorted := make([]string, len(addrs))
	for i, ip := range addrs {
		sorted[i] = ip.String()
	}
	sort.Strings(sorted)
	return pinnedKey{host: host, timeout: timeout, addrs: strings.Join(sorted, ",")}
}

func (k pinnedKey) String() string {
	return k.host + "|" + strconv.FormatInt(k.timeout.Nanoseconds(), 10) + "|" + k.addrs
}

// PinnedClientCache hands out *http.Client instances whose DialContext is
// overridden to a fixed set of preflighted addresses, eliminating the
// TOCTOU window between DNS preflight and the actual TCP connect.
type PinnedClientCache struct {
	cache   *lru.LRU[pinnedKey, *http.Client]
	inflight singleflight.Group
}

// NewPinnedClientCache builds a cache with the given capacity and TTL.
func NewPinnedClientCache(capacity int, ttl time.Duration) *PinnedClientCache {
	if capacity <= 0 {
		capacity = DefaultPinnedClientCacheCapacity
	}
	if ttl <= 0 {
		ttl = DefaultPinnedClientTTL
	}
	return &PinnedClientCache{cache: lru.NewLRU[pinnedKey, *http.Client](capacity, nil, ttl)}
}

// Get returns a pinned client for (host, timeout, addrs), building one if
// none is cached. The hit path never touches the build-lock table.
func (c *PinnedClientCache) Get(ctx context.Context, host string, timeout time.Duration, addrs []net.IP) (*http.Client, error) {
	if len(addrs) == 0 {
		return nil, fmt.Errorf("pinned client requires at least one address for %s", host)
	}
	key := newPinnedKey(host, timeout, addrs)

	if client, ok := c.cache.Get(key); ok {
		return client, nil
	}

	resultCh := c.inflight.DoChan(key.String(), func() (any, error) {
		if client, ok := c.cache.Get(key); ok {
			return client, nil
		}
		client, err := buildPinnedClient(host, timeout, addrs)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, client)
		return client, nil
	})

	select {
	case <-ctx.Done():
		// The build-lock entry is owned by singleflight and is discarded
		// automatically once the in-flight builder returns; we simply stop
		// waiting on it and never touch the cache on this path.
		return nil, ctx.Err()
	case res := <-resultCh:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*http.Client), nil
	}
}

func buildPinnedClient(host string, timeout time.Duration, addrs []net.IP) (*http.Client, error) {
	if timeout <= 0 {
		return nil, fmt.Errorf("pinned client timeout must be positive")
	}

	pinned := make([]string, len(addrs))
	for i, ip := range addrs {
		pinned[i] = ip.String()
	}

	dialer := &net.Dialer{Timeout: timeout}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			_, port, err := net.SplitHostPort(addr)
			if err != nil {
				port = "443"
			}
			var lastErr error
			for _, ip := range pinned {
				conn, dialErr := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if dialErr == nil {
					return conn, nil
				}
				lastErr = dialErr
			}
			return nil, fmt.Errorf("dial pinned addresses for %s: %w", host, lastErr)
		},
		TLSClientConfig: &tls.Config{ServerName: host},
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}

package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

// DNSErrorKind classifies why a preflight resolution failed.
type DNSErrorKind int

const (
	DNSTimeout DNSErrorKind = iota
	DNSFailed
	DNSPrivateAddress
)

func (k DNSErrorKind) String() string {
	switch k {
	case DNSTimeout:
		return "dns_timeout"
	case DNSFailed:
		return "dns_failed"
	case DNSPrivateAddress:
		return "private_address"
	default:
		return "dns_unknown"
	}
}

// DNSError is the error type returned by Preflighter.Resolve.
type DNSError struct {
	Kind DNSErrorKind
	Host string
	err  error
}

func (e *DNSError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s resolving %s: %v", e.Kind, e.Host, e.err)
	}
	return fmt.Sprintf("%s resolving %s", e.Kind, e.Host)
}

func (e *DNSError) Unwrap() error { return e.err }

// MaxPreflightBudget is the absolute cap on a single resolution's budget,
// regardless of a caller-supplied larger timeout; error messages state
// this cap so operators are not surprised by a shorter-than-requested wait.
const MaxPreflightBudget = 2 * time.Second

const (
	defaultPositiveTTL   = 60 * time.Second
	defaultNegativeTTL   = 5 * time.Second
	defaultCacheCapacity = 256
)

type lookupFunc func(ctx context.Context, host string) ([]net.IPAddr, error)

// Preflighter resolves hosts to their public IP addresses, deduplicating
// concurrent lookups for the same host, bounding simultaneous OS DNS calls,
// and caching both successful and failed resolutions with independent
// TTLs.
type Preflighter struct {
	lookup lookupFunc
	sem    *semaphore.Weighted
	group  singleflight.Group

	positive *lru.LRU[string, []net.IP]
	negative *lru.LRU[string, *DNSError]
}

// NewPreflighter builds a Preflighter bounding concurrent OS lookups to
// maxConcurrentLookups.
func NewPreflighter(maxConcurrentLookups int64) *Preflighter {
	return newPreflighter(maxConcurrentLookups, net.DefaultResolver.LookupIPAddr)
}

// newPreflighterWithLookup builds a Preflighter around an injected lookup
// function, letting tests exercise caching, dedup and classification
// without touching a real resolver.
func newPreflighterWithLookup(maxConcurrentLookups int64, lookup lookupFunc) *Preflighter {
	return newPreflighter(maxConcurrentLookups, lookup)
}

func newPreflighter(maxConcurrentLookups int64, lookup lookupFunc) *Preflighter {
	if maxConcurrentLookups <= 0 {
		maxConcurrentLookups = 32
	}
	return &Preflighter{
		lookup:   lookup,
		sem:      semaphore.NewWeighted(maxConcurrentLookups),
		positive: lru.NewLRU[string, []net.IP](defaultCacheCapacity, nil, defaultPositiveTTL),
		negative: lru.NewLRU[string, *DNSError](defaultCacheCapacity, nil, defaultNegativeTTL),
	}
}

// Resolve returns the deduplicated, all-public addresses for host, or a
// *DNSError. budget is clamped to MaxPreflightBudget; the semaphore wait
// counts against the budget, not against a freshly-started sub-budget.
func (p *Preflighter) Resolve(ctx context.Context, host string, budget time.Duration) ([]net.IP, error) {
	if budget > MaxPreflightBudget {
		budget = MaxPreflightBudget
	}

	if addrs, ok := p.positive.Get(host); ok {
		return addrs, nil
	}
	if derr, ok := p.negative.Get(host); ok {
		return nil, derr
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	v, err, _ := p.group.Do(host, func() (any, error) {
		return p.resolveOnce(ctx, host)
	})
	if err != nil {
		return nil, err
	}
	return v.([]net.IP), nil
}

func (p *Preflighter) resolveOnce(ctx context.Context, host string) ([]net.IP, error) {
	// Re-check the positive/negative cache: another singleflight generation
	// may have populated it between our first check and winning the Do call.
	if addrs, ok := p.positive.Get(host); ok {
		return addrs, nil
	}
	if derr, ok := p.negative.Get(host); ok {
		return nil, derr
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		derr := &DNSError{Kind: DNSTimeout, Host: host, err: fmt.Errorf("semaphore wait capped at %s: %w", MaxPreflightBudget, err)}
		p.negative.Add(host, derr)
		return nil, derr
	}

	addrs, lookupErr := p.lookup(ctx, host)
	// Release immediately after the OS call returns, before classification,
	// so slow public-IP classification never holds a scarce permit.
	p.sem.Release(1)

	if lookupErr != nil {
		kind := DNSFailed
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			kind = DNSTimeout
		}
		derr := &DNSError{Kind: kind, Host: host, err: fmt.Errorf("lookup capped at %s: %w", MaxPreflightBudget, lookupErr)}
		p.negative.Add(host, derr)
		return nil, derr
	}

	unique := dedupeIPs(addrs)
	for _, ip := range unique {
		if !IsPublicIP(ip) {
			derr := &DNSError{Kind: DNSPrivateAddress, Host: host, err: fmt.Errorf("resolved address %s is not public", ip)}
			p.negative.Add(host, derr)
			return nil, derr
		}
	}

	p.positive.Add(host, unique)
	return unique, nil
}

func dedupeIPs(addrs []net.IPAddr) []net.IP {
	seen := make(map[string]net.IP, len(addrs))
	for _, a := range addrs {
		seen[a.IP.String()] = a.IP
	}
	out := make([]net.IP, 0, len(seen))
	for _, ip := range seen {
		out = append(out, ip)
	}
	return out
}

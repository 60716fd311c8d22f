package security

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreflightRejectsPrivateAddresses(t *testing.T) {
	p := newPreflighterWithLookup(4, func(ctx context.Context, host string) ([]net.IPAddr, error) {
		return []net.IPAddr{{IP: net.ParseIP("10.0.0.5")}, {IP: net.ParseIP("8.8.8.8")}}, nil
	})

	_, err := p.Resolve(context.Background(), "internal.example.com", time.Second)
	require.Error(t, err)
	var dnsErr *DNSError
	require.ErrorAs(t, err, &dnsErr)
	assert.Equal(t, DNSPrivateAddress, dnsErr.Kind)
}

func TestPreflightAcceptsAllPublicAddresses(t *testing.T) {
	p := newPreflighterWithLookup(4, func(ctx context.Context, host string) ([]net.IPAddr, error) {
		return []net.IPAddr{{IP: net.ParseIP("8.8.8.8")}, {IP: net.ParseIP("8.8.4.4")}}, nil
	})

	addrs, err := p.Resolve(context.Background(), "public.example.com", time.Second)
	require.NoError(t, err)
	assert.Len(t, addrs, 2)
}

func TestPreflightDeduplicatesConcurrentLookups(t *testing.T) {
	var calls int64
	p := newPreflighterWithLookup(4, func(ctx context.Context, host string) ([]net.IPAddr, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return []net.IPAddr{{IP: net.ParseIP("8.8.8.8")}}, nil
	})

	const n = 8
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			_, _ = p.Resolve(context.Background(), "shared.example.com", time.Second)
			done <- struct{}{}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestPreflightCachesPositiveResult(t *testing.T) {
	var calls int64
	p := newPreflighterWithLookup(4, func(ctx context.Context, host string) ([]net.IPAddr, error) {
		atomic.AddInt64(&calls, 1)
		return []net.IPAddr{{IP: net.ParseIP("8.8.8.8")}}, nil
	})

	_, err := p.Resolve(context.Background(), "cached.example.com", time.Second)
	require.NoError(t, err)
	_, err = p.Resolve(context.Background(), "cached.example.com", time.Second)
	require.NoError(t, err)

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestPreflightBudgetIsCappedAtMax(t *testing.T) {
	p := newPreflighterWithLookup(4, func(ctx context.Context, host string) ([]net.IPAddr, error) {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.LessOrEqual(t, time.Until(deadline), MaxPreflightBudget+50*time.Millisecond)
		return []net.IPAddr{{IP: net.ParseIP("8.8.8.8")}}, nil
	})

	_, err := p.Resolve(context.Background(), "capped.example.com", time.Hour)
	require.NoError(t, err)
}

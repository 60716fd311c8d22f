package security

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPinnedClientCacheReusesEntryForSameKey(t *testing.T) {
	c := NewPinnedClientCache(4, time.Minute)
	addrs := []net.IP{net.ParseIP("93.184.216.34")}

	c1, err := c.Get(context.Background(), "example.com", 2*time.Second, addrs)
	require.NoError(t, err)
	c2, err := c.Get(context.Background(), "example.com", 2*time.Second, addrs)
	require.NoError(t, err)

	assert.Same(t, c1, c2)
}

func TestPinnedClientCacheDistinguishesByAddrSet(t *testing.T) {
	c := NewPinnedClientCache(4, time.Minute)

	c1, err := c.Get(context.Background(), "example.com", 2*time.Second, []net.IP{net.ParseIP("1.1.1.1")})
	require.NoError(t, err)
	c2, err := c.Get(context.Background(), "example.com", 2*time.Second, []net.IP{net.ParseIP("2.2.2.2")})
	require.NoError(t, err)

	assert.NotSame(t, c1, c2)
}

func TestPinnedClientCacheRejectsEmptyAddrs(t *testing.T) {
	c := NewPinnedClientCache(4, time.Minute)
	_, err := c.Get(context.Background(), "example.com", 2*time.Second, nil)
	assert.Error(t, err)
}

func TestPinnedClientRedirectsDisabled(t *testing.T) {
	c := NewPinnedClientCache(4, time.Minute)
	client, err := c.Get(context.Background(), "example.com", 2*time.Second, []net.IP{net.ParseIP("1.1.1.1")})
	require.NoError(t, err)
	require.NotNil(t, client.CheckRedirect)
}

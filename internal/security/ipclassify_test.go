package security

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPublicIPRejectsSpecialUseRanges(t *testing.T) {
	cases := []string{
		"0.1.2.3",
		"10.0.0.5",
		"100.64.1.1",
		"127.0.0.1",
		"169.254.1.1",
		"172.16.0.1",
		"192.0.0.1",
		"192.0.2.1",
		"192.88.99.1",
		"192.168.1.1",
		"198.18.0.1",
		"198.51.100.1",
		"203.0.113.1",
		"224.0.0.1",
		"240.0.0.1",
		"255.255.255.255",
		"::1",
		"::",
		"fe80::1",
		"fec0::1",
		"fc00::1",
		"ff00::1",
		"2001:db8::1",
		"::ffff:10.0.0.1",
		"2002:0a00:0001::",
		"64:ff9b::7f00:1",
	}
	for _, c := range cases {
		ip := net.ParseIP(c)
		assert.False(t, IsPublicIP(ip), "expected %s to be non-public", c)
	}
}

func TestIsPublicIPAcceptsCommonPublicRanges(t *testing.T) {
	cases := []string{"8.8.8.8", "1.1.1.1", "93.184.216.34", "2606:4700:4700::1111"}
	for _, c := range cases {
		ip := net.ParseIP(c)
		assert.True(t, IsPublicIP(ip), "expected %s to be public", c)
	}
}

func TestIsPublicIPRejectsNil(t *testing.T) {
	assert.False(t, IsPublicIP(nil))
}

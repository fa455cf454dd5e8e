package webhook

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withFakeResolver(t *testing.T, ips map[string][]net.IP) {
	t.Helper()
	original := resolveHost
	resolveHost = func(host string) ([]net.IP, error) {
		return ips[host], nil
	}
	t.Cleanup(func() { resolveHost = original })
}

func TestValidateCallbackURL_RejectsNonHTTPS(t *testing.T) {
	err := validateCallbackURL("http://example.com/webhook")
	require.Error(t, err)
}

func TestValidateCallbackURL_RejectsLoopback(t *testing.T) {
	withFakeResolver(t, map[string][]net.IP{"internal.example.com": {net.ParseIP("127.0.0.1")}})
	err := validateCallbackURL("https://internal.example.com/webhook")
	require.Error(t, err)
}

func TestValidateCallbackURL_RejectsRFC1918(t *testing.T) {
	cases := []string{"10.1.2.3", "172.16.5.6", "192.168.1.1"}
	for _, ip := range cases {
		withFakeResolver(t, map[string][]net.IP{"internal.example.com": {net.ParseIP(ip)}})
		err := validateCallbackURL("https://internal.example.com/webhook")
		require.Error(t, err, "expected rejection for %s", ip)
	}
}

func TestValidateCallbackURL_RejectsLinkLocal(t *testing.T) {
	withFakeResolver(t, map[string][]net.IP{"internal.example.com": {net.ParseIP("169.254.1.1")}})
	err := validateCallbackURL("https://internal.example.com/webhook")
	require.Error(t, err)
}

func TestValidateCallbackURL_AllowsPublicAddress(t *testing.T) {
	withFakeResolver(t, map[string][]net.IP{"api.example.com": {net.ParseIP("93.184.216.34")}})
	err := validateCallbackURL("https://api.example.com/webhook")
	assert.NoError(t, err)
}

func TestValidateCallbackURL_RejectsIfAnyResolvedAddressIsInternal(t *testing.T) {
	withFakeResolver(t, map[string][]net.IP{
		"split.example.com": {net.ParseIP("93.184.216.34"), net.ParseIP("10.0.0.5")},
	})
	err := validateCallbackURL("https://split.example.com/webhook")
	require.Error(t, err)
}

package subnet

import (
	"context"
	stderrors "errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/openvas-reporter/internal/errors"
)

func staticLister(ifaces ...Interface) Lister {
	return ListerFunc(func(context.Context) ([]Interface, error) {
		return ifaces, nil
	})
}

func TestDiscover(t *testing.T) {
	tests := []struct {
		name      string
		ifaces    []Interface
		cidr      string
		address   string
		netmask   string
		iface     string
		expectErr bool
	}{
		{
			name: "skips loopback and takes first qualifying interface",
			ifaces: []Interface{
				{Name: "lo", Addrs: []string{"127.0.0.1/8", "::1/128"}},
				{Name: "eth0", Addrs: []string{"fe80::1/64", "192.168.1.23/24"}},
				{Name: "eth1", Addrs: []string{"10.0.0.5/8"}},
			},
			cidr:    "192.168.1.0/24",
			address: "192.168.1.23",
			netmask: "255.255.255.0",
			iface:   "eth0",
		},
		{
			name: "host bits are masked off",
			ifaces: []Interface{
				{Name: "wlan0", Addrs: []string{"172.16.5.77/20"}},
			},
			cidr:    "172.16.0.0/20",
			address: "172.16.5.77",
			netmask: "255.255.240.0",
			iface:   "wlan0",
		},
		{
			name: "interfaces without IPv4 are skipped",
			ifaces: []Interface{
				{Name: "tun0", Addrs: []string{"fd00::2/64"}},
				{Name: "eth0", Addrs: nil},
				{Name: "eth1", Addrs: []string{"10.1.2.3/30"}},
			},
			cidr:    "10.1.2.0/30",
			address: "10.1.2.3",
			netmask: "255.255.255.252",
			iface:   "eth1",
		},
		{
			name: "loopback only yields not found",
			ifaces: []Interface{
				{Name: "lo", Addrs: []string{"127.0.0.1/8"}},
				{Name: "lo:1", Addrs: []string{"127.0.1.1/8"}},
			},
			expectErr: true,
		},
		{
			name:      "no interfaces yields not found",
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network, err := Discover(context.Background(), staticLister(tt.ifaces...))
			if tt.expectErr {
				require.Error(t, err)
				assert.True(t, stderrors.Is(err, ErrNoInterface))
				assert.True(t, errors.IsCode(err, errors.CodeDiscoveryFailed))
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.cidr, network.CIDR())
			assert.Equal(t, tt.address, network.Address.String())
			assert.Equal(t, tt.netmask, network.Netmask)
			assert.Equal(t, tt.iface, network.Interface)
		})
	}
}

func TestDiscoverListerError(t *testing.T) {
	cause := stderrors.New("netlink unavailable")
	lister := ListerFunc(func(context.Context) ([]Interface, error) {
		return nil, cause
	})

	_, err := Discover(context.Background(), lister)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, errors.IsCode(err, errors.CodeDiscoveryFailed))
}

func TestFromAddrMask(t *testing.T) {
	tests := []struct {
		addr      string
		mask      string
		expected  string
		expectErr bool
	}{
		{"192.168.1.23", "255.255.255.0", "192.168.1.0/24", false},
		{"10.20.30.40", "255.0.0.0", "10.0.0.0/8", false},
		{"192.168.1.2", "255.255.255.252", "192.168.1.0/30", false},
		{"192.168.1.2", "255.255.255.255", "192.168.1.2/32", false},
		{"192.168.1.2", "255.0.255.0", "", true},
		{"not-an-ip", "255.255.255.0", "", true},
		{"fe80::1", "255.255.255.0", "", true},
		{"192.168.1.2", "garbage", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.addr+"/"+tt.mask, func(t *testing.T) {
			network, err := FromAddrMask(tt.addr, tt.mask)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, network.CIDR())
			assert.Equal(t, tt.mask, network.Netmask)
		})
	}
}

func TestHosts(t *testing.T) {
	t.Run("slash 30 includes network and broadcast", func(t *testing.T) {
		hosts := Hosts(netip.MustParsePrefix("192.168.1.0/30"))
		assert.Equal(t, []string{"192.168.1.0", "192.168.1.1", "192.168.1.2", "192.168.1.3"}, hosts)
	})

	t.Run("unmasked prefix is masked first", func(t *testing.T) {
		hosts := Hosts(netip.MustParsePrefix("192.168.1.2/31"))
		assert.Equal(t, []string{"192.168.1.2", "192.168.1.3"}, hosts)
	})

	t.Run("slash 32 is a single address", func(t *testing.T) {
		hosts := Hosts(netip.MustParsePrefix("10.0.0.9/32"))
		assert.Equal(t, []string{"10.0.0.9"}, hosts)
	})

	t.Run("slash 24 is ascending and complete", func(t *testing.T) {
		hosts := Hosts(netip.MustParsePrefix("10.1.1.0/24"))
		require.Len(t, hosts, 256)
		assert.Equal(t, "10.1.1.0", hosts[0])
		assert.Equal(t, "10.1.1.10", hosts[10])
		assert.Equal(t, "10.1.1.255", hosts[255])
	})

	t.Run("top of the address space terminates", func(t *testing.T) {
		hosts := Hosts(netip.MustParsePrefix("255.255.255.252/30"))
		assert.Equal(t, []string{"255.255.255.252", "255.255.255.253", "255.255.255.254", "255.255.255.255"}, hosts)
	})
}

func TestAddressesMatchesHosts(t *testing.T) {
	prefix := netip.MustParsePrefix("172.16.0.0/28")

	var lazy []string
	for a := range Addresses(prefix) {
		lazy = append(lazy, a.String())
	}
	assert.Equal(t, Hosts(prefix), lazy)
}

func TestAddressesStopsEarly(t *testing.T) {
	count := 0
	for range Addresses(netip.MustParsePrefix("10.0.0.0/8")) {
		count++
		if count == 3 {
			break
		}
	}
	assert.Equal(t, 3, count)
}

func TestCheckSize(t *testing.T) {
	assert.NoError(t, CheckSize(netip.MustParsePrefix("192.168.0.0/16"), 16))
	assert.NoError(t, CheckSize(netip.MustParsePrefix("10.0.0.0/8"), 0))

	err := CheckSize(netip.MustParsePrefix("10.0.0.0/8"), 16)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeDiscoveryFailed))
	assert.Contains(t, err.Error(), "10.0.0.0/8")
}

func TestNetworkSize(t *testing.T) {
	network, err := FromAddrMask("192.168.7.1", "255.255.255.0")
	require.NoError(t, err)
	assert.Equal(t, uint64(256), network.Size())
}

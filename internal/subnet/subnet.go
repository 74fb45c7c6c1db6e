// Package subnet discovers the local IPv4 network and enumerates its addresses.
package subnet

import (
	"context"
	stderrors "errors"
	"fmt"
	"iter"
	"net"
	"net/netip"

	psnet "github.com/shirou/gopsutil/v3/net"

	"github.com/anstrom/openvas-reporter/internal/errors"
)

const ipv4Bits = 32

// ErrNoInterface is wrapped by Discover when no interface carries a
// non-loopback IPv4 address.
var ErrNoInterface = stderrors.New("no non-loopback IPv4 interface found")

// Interface is a host network interface and its addresses in CIDR form
// ("192.168.1.23/24"). Host bits are kept as reported by the system.
type Interface struct {
	Name  string
	Addrs []string
}

// Lister returns the host's interfaces in a stable, implementation-defined order.
type Lister interface {
	Interfaces(ctx context.Context) ([]Interface, error)
}

// ListerFunc adapts a function to the Lister interface.
type ListerFunc func(ctx context.Context) ([]Interface, error)

// Interfaces calls f(ctx).
func (f ListerFunc) Interfaces(ctx context.Context) ([]Interface, error) {
	return f(ctx)
}

// SystemLister reads interfaces from the operating system through gopsutil.
type SystemLister struct{}

// Interfaces implements Lister.
func (SystemLister) Interfaces(ctx context.Context) ([]Interface, error) {
	stats, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	ifaces := make([]Interface, 0, len(stats))
	for _, st := range stats {
		iface := Interface{Name: st.Name, Addrs: make([]string, 0, len(st.Addrs))}
		for _, a := range st.Addrs {
			iface.Addrs = append(iface.Addrs, a.Addr)
		}
		ifaces = append(ifaces, iface)
	}
	return ifaces, nil
}

// Network describes the local network a run scans.
type Network struct {
	// Interface is the name of the interface the address was taken from.
	Interface string
	// Address is the interface address, host bits included.
	Address netip.Addr
	// Netmask is the dotted-quad form of the prefix length.
	Netmask string
	// Prefix is the masked network.
	Prefix netip.Prefix
}

// CIDR returns the network in CIDR notation, e.g. "192.168.1.0/24".
func (n *Network) CIDR() string {
	return n.Prefix.String()
}

// Size returns the number of addresses in the network.
func (n *Network) Size() uint64 {
	return Size(n.Prefix)
}

// Discover returns the network of the first interface whose first IPv4
// address is outside 127.0.0.0/8.
func Discover(ctx context.Context, lister Lister) (*Network, error) {
	ifaces, err := lister.Interfaces(ctx)
	if err != nil {
		return nil, errors.WrapDiscoveryError(errors.CodeDiscoveryFailed, "failed to list network interfaces", err)
	}

	for _, iface := range ifaces {
		addr, ok := firstIPv4(iface.Addrs)
		if !ok || isLoopback(addr.Addr()) {
			continue
		}
		return newNetwork(iface.Name, addr), nil
	}

	return nil, errors.WrapDiscoveryError(errors.CodeDiscoveryFailed, "no usable network interface", ErrNoInterface)
}

// FromAddrMask builds a Network from an address and a dotted-quad netmask.
// Host bits in addr are allowed; the network is derived by masking.
func FromAddrMask(addr, mask string) (*Network, error) {
	ip, err := netip.ParseAddr(addr)
	if err != nil || !ip.Is4() {
		return nil, errors.NewDiscoveryError(errors.CodeValidation, fmt.Sprintf("invalid IPv4 address %q", addr))
	}

	maskIP := net.ParseIP(mask).To4()
	if maskIP == nil {
		return nil, errors.NewDiscoveryError(errors.CodeValidation, fmt.Sprintf("invalid netmask %q", mask))
	}
	ones, bits := net.IPMask(maskIP).Size()
	if bits == 0 {
		return nil, errors.NewDiscoveryError(errors.CodeValidation, fmt.Sprintf("non-contiguous netmask %q", mask))
	}

	return newNetwork("", netip.PrefixFrom(ip, ones)), nil
}

func newNetwork(name string, addr netip.Prefix) *Network {
	return &Network{
		Interface: name,
		Address:   addr.Addr(),
		Netmask:   net.IP(net.CIDRMask(addr.Bits(), ipv4Bits)).String(),
		Prefix:    addr.Masked(),
	}
}

func firstIPv4(addrs []string) (netip.Prefix, bool) {
	for _, a := range addrs {
		p, err := netip.ParsePrefix(a)
		if err != nil {
			// Some platforms report bare addresses without a prefix length.
			ip, ipErr := netip.ParseAddr(a)
			if ipErr != nil {
				continue
			}
			p = netip.PrefixFrom(ip, ip.BitLen())
		}
		if p.Addr().Is4() {
			return p, true
		}
	}
	return netip.Prefix{}, false
}

func isLoopback(ip netip.Addr) bool {
	return ip.As4()[0] == 127
}

// Size returns the number of addresses in an IPv4 prefix.
func Size(prefix netip.Prefix) uint64 {
	return uint64(1) << (ipv4Bits - prefix.Bits())
}

// CheckSize rejects prefixes shorter than minBits so huge interface networks
// do not turn into multi-million entry targets. minBits <= 0 disables the check.
func CheckSize(prefix netip.Prefix, minBits int) error {
	if minBits <= 0 || prefix.Bits() >= minBits {
		return nil
	}
	err := errors.NewDiscoveryError(errors.CodeDiscoveryFailed,
		fmt.Sprintf("network has %d addresses, limit is a /%d", Size(prefix), minBits))
	err.Network = prefix.String()
	return err
}

// Addresses yields every address of the prefix in ascending order, network
// and broadcast addresses included.
func Addresses(prefix netip.Prefix) iter.Seq[netip.Addr] {
	return func(yield func(netip.Addr) bool) {
		p := prefix.Masked()
		for a := p.Addr(); a.IsValid() && p.Contains(a); a = a.Next() {
			if !yield(a) {
				return
			}
		}
	}
}

// Hosts returns every address of the prefix as strings, in ascending order.
func Hosts(prefix netip.Prefix) []string {
	hosts := make([]string, 0, Size(prefix))
	for a := range Addresses(prefix) {
		hosts = append(hosts, a.String())
	}
	return hosts
}

package discovery

import "net"

// excludedRanges names VPN/proxy interface ranges that must never be
// treated as a real LAN address, even though they are technically
// private-use space (§4.8).
var excludedRanges = mustParseCIDRs(
	"198.18.0.0/15", // benchmarking space, reused by several proxy/VPN tools
	"100.64.0.0/10", // carrier-grade NAT / Tailscale
)

// includedRanges are the standard private ranges accepted as real LAN
// addresses.
var includedRanges = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic("discovery: invalid CIDR literal " + c)
		}
		nets = append(nets, n)
	}
	return nets
}

// IsRealLANIPv4 reports whether ip belongs to one of the standard
// private ranges and is not inside a known VPN/proxy range (§8 invariant
// 8, §4.8).
func IsRealLANIPv4(ip net.IP) bool {
	v4 := ip.To4()
	if v4 == nil {
		return false
	}
	for _, n := range excludedRanges {
		if n.Contains(v4) {
			return false
		}
	}
	for _, n := range includedRanges {
		if n.Contains(v4) {
			return true
		}
	}
	return false
}

// localSubnets returns the IPv4 networks bound to this host's
// interfaces, used to prefer a peer address in a subnet we also have.
func localSubnets() []*net.IPNet {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	var nets []*net.IPNet
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.To4() == nil {
			continue
		}
		nets = append(nets, ipNet)
	}
	return nets
}

func sameSubnetAsLocal(ip net.IP, subnets []*net.IPNet) bool {
	for _, n := range subnets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// bestAddress implements the §4.8 preference order across a peer's
// announced IPv4 addresses: (1) one in a subnet we also have, (2) a real
// LAN address, (3) any IPv4.
func bestAddress(addrs []net.IP) (net.IP, bool) {
	if len(addrs) == 0 {
		return nil, false
	}

	subnets := localSubnets()
	var realLAN, any net.IP
	for _, ip := range addrs {
		v4 := ip.To4()
		if v4 == nil {
			continue
		}
		if any == nil {
			any = v4
		}
		if sameSubnetAsLocal(v4, subnets) {
			return v4, true
		}
		if realLAN == nil && IsRealLANIPv4(v4) {
			realLAN = v4
		}
	}
	if realLAN != nil {
		return realLAN, true
	}
	if any != nil {
		return any, true
	}
	return nil, false
}

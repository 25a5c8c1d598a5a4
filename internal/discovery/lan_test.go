package discovery

import (
	"net"
	"testing"
)

func TestIsRealLANIPv4(t *testing.T) {
	tests := []struct {
		name string
		ip   string
		want bool
	}{
		{"private class A", "10.1.2.3", true},
		{"private class B", "172.16.5.9", true},
		{"private class C", "192.168.1.42", true},
		{"link local", "169.254.1.1", true},
		{"cgnat/tailscale", "100.64.0.5", false},
		{"benchmarking/vpn proxy range", "198.18.0.1", false},
		{"benchmarking/vpn proxy range upper half", "198.19.255.254", false},
		{"public address", "8.8.8.8", false},
		{"public address 2", "1.1.1.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsRealLANIPv4(net.ParseIP(tt.ip))
			if got != tt.want {
				t.Errorf("IsRealLANIPv4(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}

func TestIsRealLANIPv4RejectsIPv6(t *testing.T) {
	if IsRealLANIPv4(net.ParseIP("fe80::1")) {
		t.Fatal("expected IPv6 address to be rejected")
	}
}

func TestBestAddressPrefersRealLANOverPublic(t *testing.T) {
	addrs := []net.IP{net.ParseIP("8.8.8.8"), net.ParseIP("192.168.1.50")}
	got, ok := bestAddress(addrs)
	if !ok {
		t.Fatal("expected a result")
	}
	if got.String() != "192.168.1.50" {
		t.Fatalf("got %s, want 192.168.1.50", got)
	}
}

func TestBestAddressFallsBackToAnyIPv4(t *testing.T) {
	addrs := []net.IP{net.ParseIP("8.8.8.8")}
	got, ok := bestAddress(addrs)
	if !ok || got.String() != "8.8.8.8" {
		t.Fatalf("got (%v,%v), want (8.8.8.8,true)", got, ok)
	}
}

func TestBestAddressEmptyListFails(t *testing.T) {
	if _, ok := bestAddress(nil); ok {
		t.Fatal("expected no result for empty address list")
	}
}

func TestParseTXT(t *testing.T) {
	fields := parseTXT([]string{"id=abc-123", "name=My Laptop", "version=1"})
	if fields["id"] != "abc-123" || fields["name"] != "My Laptop" || fields["version"] != "1" {
		t.Fatalf("parseTXT = %+v", fields)
	}
}

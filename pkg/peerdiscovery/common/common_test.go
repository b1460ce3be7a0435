package common

import (
	"net"
	"testing"
)

func testAddr(t *testing.T, cidr string, loopback, up bool) InterfaceAddr {
	t.Helper()
	ip, network, err := net.ParseCIDR(cidr)
	if err != nil {
		t.Fatalf("ParseCIDR(%q): %v", cidr, err)
	}
	network.IP = ip
	return InterfaceAddr{Interface: "eth0", Network: network, Loopback: loopback, Up: up}
}

func TestIsNetworkOrBroadcast(t *testing.T) {
	_, network, _ := net.ParseCIDR("192.168.1.0/24")
	_, network6, _ := net.ParseCIDR("fd00::/64")

	tests := []struct {
		name    string
		ip      string
		network *net.IPNet
		want    bool
	}{
		{"network address", "192.168.1.0", network, true},
		{"broadcast address", "192.168.1.255", network, true},
		{"host", "192.168.1.1", network, false},
		{"ipv6 network", "fd00::", network6, true},
		{"ipv6 multicast", "ff02::1", network6, true},
		{"ipv6 host", "fd00::1", network6, false},
		{"nil network", "192.168.1.0", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNetworkOrBroadcast(net.ParseIP(tt.ip), tt.network); got != tt.want {
				t.Errorf("IsNetworkOrBroadcast(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}

func TestNetwork24(t *testing.T) {
	network, err := Network24(net.ParseIP("192.168.1.77"))
	if err != nil {
		t.Fatalf("Network24() error = %v", err)
	}
	if network.String() != "192.168.1.0/24" {
		t.Errorf("Network24() = %s", network)
	}
	if _, err := Network24(net.ParseIP("fe80::1")); err == nil {
		t.Error("expected error for IPv6")
	}
}

func TestLocalIPv4(t *testing.T) {
	addrs := []InterfaceAddr{
		testAddr(t, "127.0.0.1/8", true, true),
		testAddr(t, "10.9.9.9/24", false, false),
		testAddr(t, "fe80::1/64", false, true),
		testAddr(t, "169.254.3.3/16", false, true),
		testAddr(t, "192.168.1.7/24", false, true),
	}
	ip, err := LocalIPv4(addrs)
	if err != nil {
		t.Fatalf("LocalIPv4() error = %v", err)
	}
	if !ip.Equal(net.ParseIP("192.168.1.7")) {
		t.Errorf("LocalIPv4() = %s, want 192.168.1.7", ip)
	}
	if _, err := LocalIPv4(addrs[:2]); err == nil {
		t.Error("expected error without a usable address")
	}
}

func TestSameNetwork(t *testing.T) {
	addrs := []InterfaceAddr{
		testAddr(t, "127.0.0.1/8", true, true),
		testAddr(t, "172.20.4.2/22", false, true),
	}
	tests := []struct {
		ip   string
		want bool
	}{
		{"172.20.5.9", true},
		{"172.20.8.1", false},
		{"127.0.0.2", false},
		{"8.8.8.8", false},
	}
	for _, tt := range tests {
		if got := SameNetwork(net.ParseIP(tt.ip), addrs); got != tt.want {
			t.Errorf("SameNetwork(%s) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

package prescan

import (
	"bytes"
	"fmt"
	"math"
	"net"
	"sort"

	"github.com/projectdiscovery/mapcidr"
	"github.com/projectdiscovery/netprobe/pkg/peerdiscovery/common"
)

// Order expands cidr, drops the network and broadcast addresses and ranks
// what is left
func Order(cidr string) ([]net.IP, *net.IPNet, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid CIDR: %w", err)
	}
	addrs, err := mapcidr.IPAddresses(cidr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to expand CIDR %s: %w", cidr, err)
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		ip := net.ParseIP(addr)
		if ip == nil || common.IsNetworkOrBroadcast(ip, network) {
			continue
		}
		if ip4 := ip.To4(); ip4 != nil {
			ip = ip4
		}
		ips = append(ips, ip)
	}
	return Rank(ips, network), network, nil
}

// Rank returns ips sorted by priority, ties broken by address
func Rank(ips []net.IP, network *net.IPNet) []net.IP {
	ranked := make([]net.IP, len(ips))
	copy(ranked, ips)
	sort.SliceStable(ranked, func(i, j int) bool {
		pi, pj := Priority(ranked[i], network), Priority(ranked[j], network)
		if pi != pj {
			return pi > pj
		}
		return compareIP(ranked[i], ranked[j]) < 0
	})
	return ranked
}

// Select keeps the leading ratio share of ranked addresses, at least one
// when ratio is positive
func Select(ranked []net.IP, ratio float64) []net.IP {
	switch {
	case ratio <= 0:
		return []net.IP{}
	case ratio >= 1:
		return ranked
	}
	count := int(math.Ceil(float64(len(ranked)) * ratio))
	if count == 0 && len(ranked) > 0 {
		count = 1
	}
	return ranked[:count]
}

// compareIP orders IPv4 before IPv6, then bytewise
func compareIP(a, b net.IP) int {
	a4, b4 := a.To4(), b.To4()
	switch {
	case a4 != nil && b4 == nil:
		return -1
	case a4 == nil && b4 != nil:
		return 1
	case a4 != nil:
		return bytes.Compare(a4, b4)
	}
	return bytes.Compare(a.To16(), b.To16())
}

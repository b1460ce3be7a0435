package common

import (
	"fmt"
	"net"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// InterfaceAddr is one address assigned to a local interface
type InterfaceAddr struct {
	Interface string
	Network   *net.IPNet
	Loopback  bool
	Up        bool
}

// InterfaceAddrs lists the addresses of every local interface
func InterfaceAddrs() ([]InterfaceAddr, error) {
	interfaces, err := psnet.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}

	var addrs []InterfaceAddr
	for _, iface := range interfaces {
		var loopback, up bool
		for _, flag := range iface.Flags {
			switch flag {
			case "loopback":
				loopback = true
			case "up":
				up = true
			}
		}
		for _, addr := range iface.Addrs {
			ip, network, err := net.ParseCIDR(addr.Addr)
			if err != nil {
				continue
			}
			network.IP = ip
			addrs = append(addrs, InterfaceAddr{
				Interface: iface.Name,
				Network:   network,
				Loopback:  loopback || ip.IsLoopback(),
				Up:        up,
			})
		}
	}
	return addrs, nil
}

// LocalIPv4 returns the first address of an up, non-loopback interface
func LocalIPv4(addrs []InterfaceAddr) (net.IP, error) {
	for _, addr := range addrs {
		if addr.Loopback || !addr.Up {
			continue
		}
		if ip4 := addr.Network.IP.To4(); ip4 != nil && !ip4.IsLinkLocalUnicast() {
			return ip4, nil
		}
	}
	return nil, fmt.Errorf("no non-loopback IPv4 address found")
}

// Network24 returns the /24 holding ip
func Network24(ip net.IP) (*net.IPNet, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("%s is not an IPv4 address", ip)
	}
	mask := net.CIDRMask(24, 32)
	return &net.IPNet{IP: ip4.Mask(mask), Mask: mask}, nil
}

// SameNetwork reports whether ip lies in the subnet of any local address
func SameNetwork(ip net.IP, addrs []InterfaceAddr) bool {
	for _, addr := range addrs {
		if addr.Loopback {
			continue
		}
		mask := addr.Network.Mask
		if addr.Network.IP.Mask(mask).Equal(ip.Mask(mask)) {
			return true
		}
	}
	return false
}

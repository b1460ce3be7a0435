package prescan

import (
	"net"

	"github.com/projectdiscovery/netprobe/pkg/peerdiscovery/common"
)

// Priority tiers, higher probes first
const (
	TierGateway  = 100 // .1, .254
	TierReserved = 90  // .2-.5, .250-.253
	TierEarly    = 80  // .6-.10
	TierPeak     = 70  // .50, .100, .150
	TierPool     = 50  // .51-.99, .101-.149, .151-.200
	TierTail     = 20  // .11-.49, .201-.249 and IPv6
	TierExcluded = 0   // network and broadcast
)

// Priority scores ip within network. Only the last IPv4 octet is considered.
func Priority(ip net.IP, network *net.IPNet) int {
	ip4 := ip.To4()
	if ip4 == nil || network == nil {
		return TierTail
	}
	if common.IsNetworkOrBroadcast(ip4, network) {
		return TierExcluded
	}
	return octetTier(int(ip4[3]))
}

func octetTier(octet int) int {
	switch {
	case octet == 1 || octet == 254:
		return TierGateway
	case octet >= 2 && octet <= 5, octet >= 250 && octet <= 253:
		return TierReserved
	case octet >= 6 && octet <= 10:
		return TierEarly
	case octet == 50 || octet == 100 || octet == 150:
		return TierPeak
	case octet >= 51 && octet <= 200:
		return TierPool
	case octet == 0 || octet == 255:
		return TierExcluded
	default:
		return TierTail
	}
}

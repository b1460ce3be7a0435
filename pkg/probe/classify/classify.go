package classify

import (
	"net"
	"time"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/netprobe/pkg/peerdiscovery/common"
)

// Kind is where a target sits relative to this host
type Kind int

const (
	Remote Kind = iota
	LocalNetwork
	Loopback
)

func (k Kind) String() string {
	switch k {
	case Loopback:
		return "loopback"
	case LocalNetwork:
		return "local"
	default:
		return "remote"
	}
}

// Tuning is the default timeout and worker count for a target kind
type Tuning struct {
	Timeout time.Duration
	Threads int
}

var tunings = map[Kind]Tuning{
	Loopback:     {Timeout: 25 * time.Millisecond, Threads: 7},
	LocalNetwork: {Timeout: 1000 * time.Millisecond, Threads: 50},
	Remote:       {Timeout: 2500 * time.Millisecond, Threads: 50},
}

// Classifier places targets relative to the local interfaces
type Classifier struct {
	addrs []common.InterfaceAddr
}

// New creates a classifier from the current interface addresses. When they
// cannot be listed only the address ranges are used.
func New() *Classifier {
	addrs, err := common.InterfaceAddrs()
	if err != nil {
		gologger.Verbose().Msgf("classifier without interface addresses: %v", err)
	}
	return &Classifier{addrs: addrs}
}

// NewWithAddrs creates a classifier for a fixed set of interface addresses
func NewWithAddrs(addrs []common.InterfaceAddr) *Classifier {
	return &Classifier{addrs: addrs}
}

// Classify returns Loopback for this host's own addresses, LocalNetwork for
// private, link-local and directly attached addresses, and Remote otherwise.
func (c *Classifier) Classify(ip net.IP) Kind {
	if ip == nil {
		return Remote
	}
	if ip.IsLoopback() || ip.IsUnspecified() {
		return Loopback
	}
	for _, addr := range c.addrs {
		if addr.Network.IP.Equal(ip) {
			return Loopback
		}
	}
	if ip.IsPrivate() || ip.IsLinkLocalUnicast() || common.SameNetwork(ip, c.addrs) {
		return LocalNetwork
	}
	return Remote
}

// Tuning returns the defaults for kind
func (c *Classifier) Tuning(kind Kind) Tuning {
	if tuning, ok := tunings[kind]; ok {
		return tuning
	}
	return tunings[Remote]
}

// TuningFor classifies ip and returns its defaults
func (c *Classifier) TuningFor(ip net.IP) Tuning {
	return c.Tuning(c.Classify(ip))
}

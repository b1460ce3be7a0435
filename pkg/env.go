package pkg

import (
	"strconv"
	"strings"
	"time"

	envutil "github.com/projectdiscovery/utils/env"
)

var (
	PingBinary     = envutil.GetEnvOrDefault("NETPROBE_PING_BINARY", "ping")
	Ping6Binary    = envutil.GetEnvOrDefault("NETPROBE_PING6_BINARY", "ping6")
	NeighborFile   = envutil.GetEnvOrDefault("NETPROBE_NEIGHBOR_FILE", "/proc/net/arp")
	DNSServersEnv  = envutil.GetEnvOrDefault("NETPROBE_DNS_SERVERS", "")
	BatchSizeEnv   = envutil.GetEnvOrDefault("NETPROBE_OUTPUT_BATCH_SIZE", "100")
	FlushPeriodEnv = envutil.GetEnvOrDefault("NETPROBE_OUTPUT_FLUSH_INTERVAL", "2")
)

// DNSServers returns the resolvers configured through the environment
func DNSServers() []string {
	if DNSServersEnv == "" {
		return nil
	}
	var servers []string
	for _, server := range strings.Split(DNSServersEnv, ",") {
		if server = strings.TrimSpace(server); server != "" {
			servers = append(servers, server)
		}
	}
	return servers
}

// OutputBatchSize returns the number of records buffered before a flush
func OutputBatchSize() int {
	if size, err := strconv.Atoi(BatchSizeEnv); err == nil && size > 0 {
		return size
	}
	return 100
}

// OutputFlushInterval returns how often buffered records are flushed
func OutputFlushInterval() time.Duration {
	if seconds, err := strconv.Atoi(FlushPeriodEnv); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return 2 * time.Second
}

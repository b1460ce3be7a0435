package traceroute

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ReplyKind is what a single TTL-limited echo came back with
type ReplyKind int

const (
	// ReplySilent means no usable answer, the hop is skipped
	ReplySilent ReplyKind = iota
	// ReplyExceeded means a router on the path dropped the packet
	ReplyExceeded
	// ReplyDestination means the target itself answered
	ReplyDestination
)

// Reply is the parsed output of one hop
type Reply struct {
	Kind     ReplyKind
	IP       string
	Hostname string
	Elapsed  time.Duration
}

var (
	exceededRe = regexp.MustCompile(`(?i)time to live exceeded|time exceeded|ttl expired in transit`)
	fromRe     = regexp.MustCompile(`(?i)from (\S+?)(?: \(([^)]+)\))?:?(?:\s|$)`)
	timeRe     = regexp.MustCompile(`time[=<]([\d.]+) ?ms`)
)

// ParseHop reads ping output produced with a limited TTL. The first line
// reporting either an expired TTL or an echo reply decides the result.
func ParseHop(text string) Reply {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if exceededRe.MatchString(line) {
			reply := Reply{Kind: ReplyExceeded}
			reply.IP, reply.Hostname = source(line)
			return reply
		}

		lower := strings.ToLower(line)
		if !strings.Contains(lower, "bytes from") && !strings.HasPrefix(lower, "reply from") {
			continue
		}
		elapsed := timeRe.FindStringSubmatch(line)
		if elapsed == nil {
			// unreachable notices also start with "Reply from"
			continue
		}
		ms, err := strconv.ParseFloat(elapsed[1], 64)
		if err != nil {
			continue
		}
		reply := Reply{
			Kind:    ReplyDestination,
			Elapsed: time.Duration(math.Round(ms*1000)) * time.Microsecond,
		}
		reply.IP, reply.Hostname = source(line)
		return reply
	}
	return Reply{Kind: ReplySilent}
}

// source extracts "from <ip>" or "from <host> (<ip>)"
func source(line string) (ip, hostname string) {
	match := fromRe.FindStringSubmatch(line)
	if match == nil {
		return "", ""
	}
	if match[2] != "" {
		return match[2], match[1]
	}
	return match[1], ""
}

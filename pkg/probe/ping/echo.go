package ping

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/projectdiscovery/gologger"
	"github.com/projectdiscovery/netprobe/pkg/probe/sockerr"
	"github.com/projectdiscovery/netprobe/pkg/types"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

const (
	protocolICMP     = 1
	protocolIPv6ICMP = 58

	// DefaultEchoPort is the TCP echo service used when no ICMP socket can be opened
	DefaultEchoPort = 7
)

var errNoSocket = errors.New("no icmp socket available")

// Socket pings through an ICMP echo socket, or through a TCP connect to the
// echo port when the process may not open one.
type Socket struct {
	EchoPort int
	seq      atomic.Uint32
}

// NewSocket creates a socket pinger
func NewSocket() *Socket {
	return &Socket{EchoPort: DefaultEchoPort}
}

func (s *Socket) Echo(ctx context.Context, addr types.Address, timeout time.Duration, ttl int) (types.ProbeResult, error) {
	if addr.IP == nil {
		return types.ProbeResult{}, fmt.Errorf("no ip address for %s", addr)
	}
	result, err := s.icmpEcho(ctx, addr, timeout, ttl)
	if err == nil {
		return result, nil
	}
	if !errors.Is(err, errNoSocket) {
		return types.ProbeResult{}, err
	}
	gologger.Debug().Msgf("%s: %v, using tcp echo", addr, err)
	return s.tcpEcho(ctx, addr, timeout), nil
}

// listen opens the unprivileged datagram socket first, then the raw socket
func listen(useIPv6 bool) (*icmp.PacketConn, bool, error) {
	candidates := []struct {
		network    string
		address    string
		privileged bool
	}{
		{"udp4", "0.0.0.0", false},
		{"ip4:icmp", "0.0.0.0", true},
	}
	if useIPv6 {
		candidates = []struct {
			network    string
			address    string
			privileged bool
		}{
			{"udp6", "::", false},
			{"ip6:ipv6-icmp", "::", true},
		}
	}

	var errs []error
	for _, candidate := range candidates {
		conn, err := icmp.ListenPacket(candidate.network, candidate.address)
		if err == nil {
			return conn, candidate.privileged, nil
		}
		errs = append(errs, err)
	}
	return nil, false, fmt.Errorf("%w: %v", errNoSocket, errors.Join(errs...))
}

func (s *Socket) icmpEcho(ctx context.Context, addr types.Address, timeout time.Duration, ttl int) (types.ProbeResult, error) {
	useIPv6 := addr.IsIPv6()
	conn, privileged, err := listen(useIPv6)
	if err != nil {
		return types.ProbeResult{}, err
	}
	defer func() {
		_ = conn.Close()
	}()

	var (
		requestType icmp.Type = ipv4.ICMPTypeEcho
		replyType   icmp.Type = ipv4.ICMPTypeEchoReply
		protocol              = protocolICMP
	)
	if useIPv6 {
		requestType, replyType, protocol = ipv6.ICMPTypeEchoRequest, ipv6.ICMPTypeEchoReply, protocolIPv6ICMP
		if pc := conn.IPv6PacketConn(); pc != nil {
			_ = pc.SetHopLimit(ttl)
		}
	} else if pc := conn.IPv4PacketConn(); pc != nil {
		_ = pc.SetTTL(ttl)
	}

	id := os.Getpid() & 0xffff
	seq := int(s.seq.Add(1) & 0xffff)
	msg := &icmp.Message{
		Type: requestType,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: seq, Data: []byte("netprobe-echo")},
	}
	payload, err := msg.Marshal(nil)
	if err != nil {
		return types.ProbeResult{}, fmt.Errorf("failed to marshal ICMP message: %w", err)
	}

	var dst net.Addr = &net.IPAddr{IP: addr.IP}
	if !privileged {
		dst = &net.UDPAddr{IP: addr.IP}
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return types.ProbeResult{}, fmt.Errorf("failed to set read deadline: %w", err)
	}

	result := types.ProbeResult{Address: addr, Strategy: types.StrategyICMP}
	start := time.Now()
	if _, err := conn.WriteTo(payload, dst); err != nil {
		if sockerr.IsUnreachable(err) {
			result.Error, result.Detail = types.ErrorUnreachable, err.Error()
			return result, nil
		}
		return types.ProbeResult{}, fmt.Errorf("failed to send echo request: %w", err)
	}

	reply := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(reply)
		if err != nil {
			if ctx.Err() != nil {
				return interrupted(addr), nil
			}
			if sockerr.IsTimeout(err) {
				result.Error, result.Detail = types.ErrorTimeout, "timed out"
				return result, nil
			}
			return types.ProbeResult{}, fmt.Errorf("failed to read echo reply: %w", err)
		}

		rm, err := icmp.ParseMessage(protocol, reply[:n])
		if err != nil || rm.Type != replyType {
			continue
		}
		echo, ok := rm.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq {
			continue
		}
		// the kernel rewrites the identifier on datagram sockets
		if privileged && echo.ID != id {
			continue
		}
		if !peerIP(peer).Equal(addr.IP) {
			continue
		}

		result.Reached = true
		result.Elapsed = time.Since(start)
		return result, nil
	}
}

func (s *Socket) tcpEcho(ctx context.Context, addr types.Address, timeout time.Duration) types.ProbeResult {
	port := s.EchoPort
	if port == 0 {
		port = DefaultEchoPort
	}
	dialer := net.Dialer{Timeout: timeout}

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr.IP.String(), strconv.Itoa(port)))
	result := types.ProbeResult{Address: addr, Strategy: types.StrategyTCPEcho}

	switch {
	case err == nil:
		_ = conn.Close()
		result.Reached, result.Elapsed = true, time.Since(start)
	case sockerr.IsRefused(err):
		// a reset still proves the host is up
		result.Reached, result.Elapsed = true, time.Since(start)
	case ctx.Err() != nil:
		return interrupted(addr)
	case sockerr.IsTimeout(err):
		result.Error, result.Detail = types.ErrorTimeout, "timed out"
	default:
		result.Error, result.Detail = types.ErrorUnreachable, err.Error()
	}
	return result
}

func peerIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.IPAddr:
		return a.IP
	case *net.UDPAddr:
		return a.IP
	}
	return nil
}

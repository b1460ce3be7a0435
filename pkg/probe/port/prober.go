package port

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/projectdiscovery/netprobe/pkg/probe/sockerr"
	"github.com/projectdiscovery/netprobe/pkg/types"
)

// udpPayloadSize is the size of the zeroed datagram sent to UDP ports
const udpPayloadSize = 128

// Probe checks a single port with the given transport
func Probe(ctx context.Context, addr types.Address, port int, transport types.Transport, timeout time.Duration) types.PortResult {
	if transport == types.UDP {
		return ProbeUDP(ctx, addr, port, timeout)
	}
	return ProbeTCP(ctx, addr, port, timeout)
}

// ProbeTCP reports a port open when a handshake completes within timeout.
// Every failure counts as closed.
func ProbeTCP(ctx context.Context, addr types.Address, port int, timeout time.Duration) types.PortResult {
	result := types.PortResult{Address: addr, Port: port, Transport: types.TCP, State: types.PortClosed}

	dialer := net.Dialer{Timeout: orDefault(timeout)}
	conn, err := dialer.DialContext(ctx, "tcp", hostPort(addr, port))
	if err != nil {
		return result
	}
	_ = conn.Close()

	result.Open, result.State = true, types.PortOpen
	return result
}

// ProbeUDP sends an empty datagram and waits for an answer. A reply means
// open and an ICMP port unreachable means closed. Silence cannot tell an open
// port from a filtered one, so it is reported as open|filtered with Open set.
func ProbeUDP(ctx context.Context, addr types.Address, port int, timeout time.Duration) types.PortResult {
	result := types.PortResult{Address: addr, Port: port, Transport: types.UDP, State: types.PortUnknown}
	timeout = orDefault(timeout)

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "udp", hostPort(addr, port))
	if err != nil {
		return udpState(result, err)
	}
	defer func() {
		_ = conn.Close()
	}()

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return result
	}

	if _, err := conn.Write(make([]byte, udpPayloadSize)); err != nil {
		return udpState(result, err)
	}
	reply := make([]byte, udpPayloadSize)
	if _, err := conn.Read(reply); err != nil {
		return udpState(result, err)
	}

	result.Open, result.State = true, types.PortOpen
	return result
}

func udpState(result types.PortResult, err error) types.PortResult {
	switch {
	case sockerr.IsRefused(err):
		result.State = types.PortClosed
	case sockerr.IsTimeout(err):
		result.Open, result.State = true, types.PortOpenFiltered
	default:
		result.State = types.PortUnknown
	}
	return result
}

func hostPort(addr types.Address, port int) string {
	return net.JoinHostPort(addr.IP.String(), strconv.Itoa(port))
}

func orDefault(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return types.DefaultTimeout
	}
	return timeout
}

package ping

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/projectdiscovery/netprobe/pkg"
	"github.com/projectdiscovery/netprobe/pkg/types"
	osutils "github.com/projectdiscovery/utils/os"
)

// commandGrace bounds the process beyond its own timeout argument
const commandGrace = 2 * time.Second

// Native pings by invoking the platform ping command
type Native struct {
	Runner  pkg.CommandRunner
	Dialect Dialect
	Ping    string
	Ping6   string
}

// NewNative creates a native pinger with platform defaults
func NewNative(runner pkg.CommandRunner) *Native {
	if runner == nil {
		runner = pkg.DefaultRunner
	}
	return &Native{
		Runner:  runner,
		Dialect: DefaultDialect(),
		Ping:    pkg.PingBinary,
		Ping6:   pkg.Ping6Binary,
	}
}

// TimeoutSeconds converts timeout to the whole seconds the command accepts.
// Sub-second values are raised to one second.
func TimeoutSeconds(timeout time.Duration) int {
	seconds := int(math.Ceil(timeout.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

// TimeoutMillis converts timeout to the milliseconds ping.exe accepts,
// with a floor of one
func TimeoutMillis(timeout time.Duration) int64 {
	ms := timeout.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return ms
}

func windowsArgs(addr types.Address, timeout time.Duration, ttl int) []string {
	args := []string{"-n", "1", "-w", strconv.FormatInt(TimeoutMillis(timeout), 10), "-i", strconv.Itoa(ttl)}
	if addr.IsIPv6() {
		args = append([]string{"-6"}, args...)
	}
	return append(args, addr.String())
}

// Command returns the binary and arguments for one echo request
func (n *Native) Command(addr types.Address, timeout time.Duration, ttl int) (string, []string) {
	if ttl < 1 {
		ttl = 1
	}
	target := addr.String()
	switch {
	case osutils.IsWindows():
		return n.Ping, windowsArgs(addr, timeout, ttl)
	case osutils.IsOSX():
		if addr.IsIPv6() {
			// ping6 on darwin has no wait flag, the context deadline bounds it
			return n.Ping6, []string{"-c", "1", "-h", strconv.Itoa(ttl), target}
		}
		ms := strconv.Itoa(TimeoutSeconds(timeout) * 1000)
		return n.Ping, []string{"-c", "1", "-W", ms, "-m", strconv.Itoa(ttl), target}
	default:
		binary := n.Ping
		if addr.IsIPv6() {
			binary = n.Ping6
		}
		seconds := strconv.Itoa(TimeoutSeconds(timeout))
		return binary, []string{"-c", "1", "-W", seconds, "-t", strconv.Itoa(ttl), target}
	}
}

// Echo runs one native echo request. An error means the native path gave no
// usable answer and the caller should fall back.
func (n *Native) Echo(ctx context.Context, addr types.Address, timeout time.Duration, ttl int) (types.ProbeResult, error) {
	binary, args := n.Command(addr, timeout, ttl)

	cmdCtx, cancel := context.WithTimeout(ctx, time.Duration(TimeoutSeconds(timeout))*time.Second+commandGrace)
	defer cancel()

	output, err := n.Runner.Run(cmdCtx, binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return interrupted(addr), nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return types.ProbeResult{}, fmt.Errorf("%s did not exit within its timeout", binary)
		}
		return types.ProbeResult{}, &types.InvocationError{Command: binary, Err: err}
	}

	text := output.Stdout + "\n" + output.Stderr
	outcome, err := n.Dialect.Parse(text)
	if err != nil {
		return types.ProbeResult{}, fmt.Errorf("%s exited with %d: %w", binary, output.ExitCode, err)
	}

	return types.ProbeResult{
		Address:  addr,
		Reached:  outcome.Reached,
		Elapsed:  outcome.Elapsed,
		Error:    outcome.Error,
		Detail:   outcome.Detail,
		Raw:      output.Stdout,
		Strategy: types.StrategyNative,
	}, nil
}

func interrupted(addr types.Address) types.ProbeResult {
	return types.ProbeResult{Address: addr, Error: types.ErrorInterrupted, Detail: "interrupted"}
}

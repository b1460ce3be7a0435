package ping

import (
	"context"
	"errors"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/projectdiscovery/netprobe/pkg"
	"github.com/projectdiscovery/netprobe/pkg/types"
	osutils "github.com/projectdiscovery/utils/os"
)

type recordingRunner struct {
	name   string
	args   []string
	result *pkg.CommandResult
	err    error
}

func (r *recordingRunner) Run(ctx context.Context, name string, args ...string) (*pkg.CommandResult, error) {
	r.name, r.args = name, args
	if r.err != nil {
		return nil, r.err
	}
	if ctx.Err() != nil {
		return &pkg.CommandResult{ExitCode: -1}, ctx.Err()
	}
	return r.result, nil
}

func newTestNative(runner pkg.CommandRunner) *Native {
	return &Native{Runner: runner, Dialect: UnixDialect{}, Ping: "ping", Ping6: "ping6"}
}

func TestTimeoutSeconds(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		want    int
	}{
		{0, 1},
		{25 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{2500 * time.Millisecond, 3},
	}
	for _, tt := range tests {
		if got := TimeoutSeconds(tt.timeout); got != tt.want {
			t.Errorf("TimeoutSeconds(%v) = %d, want %d", tt.timeout, got, tt.want)
		}
	}
}

func TestWindowsArgs(t *testing.T) {
	v4 := types.NewAddress(net.ParseIP("10.0.0.1"))
	v6 := types.NewAddress(net.ParseIP("2001:db8::1"))
	tests := []struct {
		name    string
		addr    types.Address
		timeout time.Duration
		want    []string
	}{
		{"sub second", v4, 250 * time.Millisecond, []string{"-n", "1", "-w", "250", "-i", "64", "10.0.0.1"}},
		{"zero floors to one", v4, 0, []string{"-n", "1", "-w", "1", "-i", "64", "10.0.0.1"}},
		{"seconds", v4, 3 * time.Second, []string{"-n", "1", "-w", "3000", "-i", "64", "10.0.0.1"}},
		{"ipv6", v6, 1500 * time.Millisecond, []string{"-6", "-n", "1", "-w", "1500", "-i", "64", "2001:db8::1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := windowsArgs(tt.addr, tt.timeout, 64); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("windowsArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNativeCommandLinux(t *testing.T) {
	if !osutils.IsLinux() {
		t.Skip("linux argument layout")
	}
	n := newTestNative(nil)

	tests := []struct {
		name       string
		addr       types.Address
		timeout    time.Duration
		ttl        int
		wantBinary string
		wantArgs   []string
	}{
		{
			name:       "ipv4",
			addr:       types.NewAddress(net.ParseIP("10.0.0.1")),
			timeout:    2500 * time.Millisecond,
			ttl:        128,
			wantBinary: "ping",
			wantArgs:   []string{"-c", "1", "-W", "3", "-t", "128", "10.0.0.1"},
		},
		{
			name:       "ipv6 uses ping6",
			addr:       types.NewAddress(net.ParseIP("fe80::1")),
			timeout:    100 * time.Millisecond,
			ttl:        5,
			wantBinary: "ping6",
			wantArgs:   []string{"-c", "1", "-W", "1", "-t", "5", "fe80::1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			binary, args := n.Command(tt.addr, tt.timeout, tt.ttl)
			if binary != tt.wantBinary {
				t.Errorf("binary = %q, want %q", binary, tt.wantBinary)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestNativeEcho(t *testing.T) {
	addr := types.NewAddress(net.ParseIP("127.0.0.1"))

	t.Run("reply", func(t *testing.T) {
		runner := &recordingRunner{result: &pkg.CommandResult{Stdout: linuxReply}}
		result, err := newTestNative(runner).Echo(context.Background(), addr, time.Second, 64)
		if err != nil {
			t.Fatalf("Echo() error = %v", err)
		}
		if !result.Reached || result.Strategy != types.StrategyNative {
			t.Errorf("result = %+v, want reached native", result)
		}
		if result.Raw != linuxReply {
			t.Error("raw output not preserved")
		}
	})

	t.Run("loss is a result not an error", func(t *testing.T) {
		runner := &recordingRunner{result: &pkg.CommandResult{Stdout: linuxLoss, ExitCode: 1}}
		result, err := newTestNative(runner).Echo(context.Background(), addr, time.Second, 64)
		if err != nil {
			t.Fatalf("Echo() error = %v", err)
		}
		if result.Reached || result.Error != types.ErrorTimeout {
			t.Errorf("result = %+v, want timeout", result)
		}
	})

	t.Run("missing binary", func(t *testing.T) {
		runner := &recordingRunner{err: errors.New("executable file not found")}
		_, err := newTestNative(runner).Echo(context.Background(), addr, time.Second, 64)
		var invocationErr *types.InvocationError
		if !errors.As(err, &invocationErr) {
			t.Fatalf("Echo() error = %v, want InvocationError", err)
		}
	})

	t.Run("unparseable output", func(t *testing.T) {
		runner := &recordingRunner{result: &pkg.CommandResult{Stderr: "ping: socket: Operation not permitted", ExitCode: 2}}
		_, err := newTestNative(runner).Echo(context.Background(), addr, time.Second, 64)
		if !errors.Is(err, ErrUnparseable) {
			t.Fatalf("Echo() error = %v, want ErrUnparseable", err)
		}
	})

	t.Run("cancelled parent", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		runner := &recordingRunner{result: &pkg.CommandResult{Stdout: linuxReply}}
		result, err := newTestNative(runner).Echo(ctx, addr, time.Second, 64)
		if err != nil {
			t.Fatalf("Echo() error = %v", err)
		}
		if result.Error != types.ErrorInterrupted {
			t.Errorf("Error = %q, want interrupted", result.Error)
		}
	})
}

package port

import (
	"context"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/projectdiscovery/netprobe/pkg/probe/classify"
	"github.com/projectdiscovery/netprobe/pkg/types"
)

func newTestEngine(probe ProbeFunc) *Engine {
	return NewEngine(WithClassifier(classify.NewWithAddrs(nil)), WithProbeFunc(probe))
}

func TestEngineScan(t *testing.T) {
	engine := newTestEngine(func(_ context.Context, addr types.Address, port int, transport types.Transport, _ time.Duration) types.PortResult {
		open := port%10 == 0
		state := types.PortClosed
		if open {
			state = types.PortOpen
		}
		return types.PortResult{Address: addr, Port: port, Transport: transport, Open: open, State: state}
	})

	opts := types.MustProbeOptions(WithExpression("1-100"), types.WithThreads(8))
	op := engine.ScanAsync(context.Background(), loopback, opts)

	var partials int
	summary, err := op.Wait(func(types.PortResult) { partials++ })
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if partials != 100 || summary.Scanned != 100 {
		t.Errorf("partials = %d, scanned = %d, want 100", partials, summary.Scanned)
	}
	want := []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	if !reflect.DeepEqual(summary.OpenPorts, want) {
		t.Errorf("OpenPorts = %v, want %v", summary.OpenPorts, want)
	}
	if summary.Cancelled {
		t.Error("summary marked cancelled")
	}
}

func TestEngineAutoTuning(t *testing.T) {
	var gotTimeout atomic.Int64
	engine := newTestEngine(func(_ context.Context, addr types.Address, port int, transport types.Transport, timeout time.Duration) types.PortResult {
		gotTimeout.Store(int64(timeout))
		return types.PortResult{Address: addr, Port: port, Transport: transport, State: types.PortClosed}
	})

	tests := []struct {
		name string
		opts types.ProbeOptions
		want time.Duration
	}{
		{name: "loopback default", opts: types.MustProbeOptions(types.WithPorts(80)), want: 25 * time.Millisecond},
		{name: "override", opts: types.MustProbeOptions(types.WithPorts(80), types.WithTimeout(time.Second)), want: time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := engine.Scan(context.Background(), loopback, tt.opts); err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			if got := time.Duration(gotTimeout.Load()); got != tt.want {
				t.Errorf("timeout = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEngineCancel(t *testing.T) {
	engine := newTestEngine(func(_ context.Context, addr types.Address, port int, transport types.Transport, _ time.Duration) types.PortResult {
		time.Sleep(5 * time.Millisecond)
		return types.PortResult{Address: addr, Port: port, Transport: transport, Open: true, State: types.PortOpen}
	})

	opts := types.MustProbeOptions(WithExpression("1-1000"), types.WithThreads(2))
	op := engine.ScanAsync(context.Background(), loopback, opts)

	var partials, terminal int
	var summary types.ScanSummary
	for event := range op.Events() {
		switch event.Kind {
		case types.EventPartial:
			partials++
			if partials == 5 {
				op.Cancel()
			}
		case types.EventDone:
			terminal++
			summary = event.Done
		case types.EventFailed:
			terminal++
		}
	}

	if terminal != 1 {
		t.Fatalf("terminal events = %d, want 1", terminal)
	}
	if !summary.Cancelled {
		t.Error("summary not marked cancelled")
	}
	if summary.Scanned >= 1000 || summary.Scanned != partials {
		t.Errorf("scanned = %d, partials = %d", summary.Scanned, partials)
	}
	if len(summary.OpenPorts) != summary.Scanned {
		t.Errorf("open ports = %d, want %d", len(summary.OpenPorts), summary.Scanned)
	}
}

func TestEngineValidation(t *testing.T) {
	engine := newTestEngine(Probe)

	if _, err := engine.Scan(context.Background(), loopback, types.MustProbeOptions()); !types.IsValidationError(err) {
		t.Errorf("Scan() without ports error = %v, want validation error", err)
	}
	if _, err := engine.Scan(context.Background(), types.Address{Hostname: "x"}, types.MustProbeOptions(types.WithPorts(80))); !types.IsValidationError(err) {
		t.Errorf("Scan() without ip error = %v, want validation error", err)
	}
}

func TestEngineLoopback(t *testing.T) {
	open := listenTCP(t)
	closed := closedTCPPort(t)

	engine := NewEngine(WithClassifier(classify.NewWithAddrs(nil)))
	opts := types.MustProbeOptions(types.WithPorts(closed, open), types.WithTimeout(time.Second))
	summary, err := engine.Scan(context.Background(), loopback, opts)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if !reflect.DeepEqual(summary.OpenPorts, []int{open}) {
		t.Errorf("OpenPorts = %v, want [%d]", summary.OpenPorts, open)
	}
}

func TestEngineDurationBound(t *testing.T) {
	const overhead = 250 * time.Millisecond
	tests := []struct {
		name    string
		ports   int
		threads int
		timeout time.Duration
	}{
		{"two rounds", 8, 4, 50 * time.Millisecond},
		{"partial last round", 10, 4, 30 * time.Millisecond},
		{"single thread", 3, 1, 20 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newTestEngine(func(_ context.Context, addr types.Address, port int, transport types.Transport, timeout time.Duration) types.PortResult {
				time.Sleep(timeout)
				return types.PortResult{Address: addr, Port: port, Transport: transport, State: types.PortClosed}
			})
			ports := make([]int, tt.ports)
			for i := range ports {
				ports[i] = i + 1
			}
			opts := types.MustProbeOptions(types.WithPorts(ports...), types.WithThreads(tt.threads), types.WithTimeout(tt.timeout))

			summary, err := engine.Scan(context.Background(), loopback, opts)
			if err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			rounds := (tt.ports + tt.threads - 1) / tt.threads
			if limit := tt.timeout*time.Duration(rounds) + overhead; summary.Elapsed > limit {
				t.Errorf("Elapsed = %v, want <= %v", summary.Elapsed, limit)
			}
			if summary.Elapsed < tt.timeout {
				t.Errorf("Elapsed = %v, shorter than one timeout %v", summary.Elapsed, tt.timeout)
			}
			if summary.Scanned != tt.ports {
				t.Errorf("scanned = %d, want %d", summary.Scanned, tt.ports)
			}
		})
	}
}

func TestEngineRepeatedScans(t *testing.T) {
	open := listenTCP(t)
	closed := []int{closedTCPPort(t), closedTCPPort(t), closedTCPPort(t)}

	engine := NewEngine(WithClassifier(classify.NewWithAddrs(nil)))
	opts := types.MustProbeOptions(types.WithPorts(append(closed, open)...), types.WithTimeout(time.Second))

	const runs = 3
	seen := map[int]int{}
	for i := 0; i < runs; i++ {
		summary, err := engine.Scan(context.Background(), loopback, opts)
		if err != nil {
			t.Fatalf("Scan() run %d error = %v", i, err)
		}
		for _, port := range summary.OpenPorts {
			seen[port]++
		}
	}

	var majority []int
	for port, count := range seen {
		if count*2 > runs {
			majority = append(majority, port)
		}
	}
	if !reflect.DeepEqual(majority, []int{open}) {
		t.Errorf("open in most runs = %v, want [%d] (counts %v)", majority, open, seen)
	}
}

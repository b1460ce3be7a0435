package ping

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/projectdiscovery/netprobe/pkg/types"
	osutils "github.com/projectdiscovery/utils/os"
)

// ErrUnparseable is returned when command output carries none of the known markers
var ErrUnparseable = errors.New("unrecognized ping output")

// Outcome is what a single native echo reported
type Outcome struct {
	Reached bool
	Elapsed time.Duration
	Error   types.ErrorKind
	Detail  string
}

// Dialect parses the output of one platform's ping command
type Dialect interface {
	Parse(text string) (Outcome, error)
}

// UnixDialect understands iputils and BSD ping output
type UnixDialect struct{}

// WindowsDialect understands ping.exe output
type WindowsDialect struct{}

var (
	unixLossRe  = regexp.MustCompile(`([\d.]+)% packet loss`)
	unixStatsRe = regexp.MustCompile(`= ([\d.]+)/([\d.]+)/([\d.]+)(?:/([\d.]+))? ?ms`)

	windowsLossRe = regexp.MustCompile(`\((\d+)% loss\)`)
	windowsAvgRe  = regexp.MustCompile(`Average = (\d+)ms`)

	unknownHostMarkers = []string{
		"unknown host",
		"Name or service not known",
		"cannot resolve",
		"Temporary failure in name resolution",
		"could not find host",
	}
	unreachableMarkers = []string{
		"Destination Host Unreachable",
		"Destination host unreachable",
		"Destination Net Unreachable",
		"Network is unreachable",
	}
)

// DefaultDialect returns the dialect of the running platform
func DefaultDialect() Dialect {
	if osutils.IsWindows() {
		return WindowsDialect{}
	}
	return UnixDialect{}
}

// ParseOutput parses ping output with the running platform's dialect
func ParseOutput(text string) (Outcome, error) {
	return DefaultDialect().Parse(text)
}

func (UnixDialect) Parse(text string) (Outcome, error) {
	if containsAny(text, unknownHostMarkers) {
		return Outcome{Error: types.ErrorResolution, Detail: "unknown host"}, nil
	}

	match := unixLossRe.FindStringSubmatch(text)
	if match == nil {
		return Outcome{}, ErrUnparseable
	}
	loss, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return Outcome{}, ErrUnparseable
	}

	switch {
	case loss == 0:
		stats := unixStatsRe.FindStringSubmatch(text)
		if stats == nil {
			return Outcome{}, ErrUnparseable
		}
		avg, err := strconv.ParseFloat(stats[2], 64)
		if err != nil {
			return Outcome{}, ErrUnparseable
		}
		return Outcome{Reached: true, Elapsed: millis(avg)}, nil
	case loss >= 100:
		return lostOutcome(text), nil
	default:
		return Outcome{Error: types.ErrorPartialLoss, Detail: "partial packet loss"}, nil
	}
}

func (WindowsDialect) Parse(text string) (Outcome, error) {
	if containsAny(text, unknownHostMarkers) {
		return Outcome{Error: types.ErrorResolution, Detail: "unknown host"}, nil
	}

	match := windowsLossRe.FindStringSubmatch(text)
	if match == nil {
		return Outcome{}, ErrUnparseable
	}
	loss, err := strconv.Atoi(match[1])
	if err != nil {
		return Outcome{}, ErrUnparseable
	}

	switch {
	case loss == 0:
		// ping.exe counts "destination host unreachable" replies as received
		if containsAny(text, unreachableMarkers) {
			return Outcome{Error: types.ErrorUnreachable, Detail: "destination host unreachable"}, nil
		}
		avg := windowsAvgRe.FindStringSubmatch(text)
		if avg == nil {
			return Outcome{}, ErrUnparseable
		}
		ms, err := strconv.ParseFloat(avg[1], 64)
		if err != nil {
			return Outcome{}, ErrUnparseable
		}
		return Outcome{Reached: true, Elapsed: millis(ms)}, nil
	case loss >= 100:
		return lostOutcome(text), nil
	default:
		return Outcome{Error: types.ErrorPartialLoss, Detail: "partial packet loss"}, nil
	}
}

func lostOutcome(text string) Outcome {
	if containsAny(text, unreachableMarkers) {
		return Outcome{Error: types.ErrorUnreachable, Detail: "destination host unreachable"}
	}
	return Outcome{Error: types.ErrorTimeout, Detail: "100% packet loss"}
}

func containsAny(text string, markers []string) bool {
	for _, marker := range markers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

// millis converts a millisecond reading to a duration at microsecond precision
func millis(ms float64) time.Duration {
	return time.Duration(math.Round(ms*1000)) * time.Microsecond
}

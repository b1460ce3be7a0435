package port

import (
	"sort"
	"strconv"
	"strings"

	"github.com/projectdiscovery/netprobe/pkg/types"
	sliceutil "github.com/projectdiscovery/utils/slice"
)

// ParseExpression parses a port expression such as "21-23,25,80" into
// ascending, de-duplicated ports
func ParseExpression(expr string) ([]int, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, types.NewValidationError("ports", "empty port expression")
	}

	var ports []int
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, types.NewValidationError("ports", "empty element in port expression %q", expr)
		}

		low, high, isRange := strings.Cut(part, "-")
		if !isRange {
			port, err := parsePort(part)
			if err != nil {
				return nil, err
			}
			ports = append(ports, port)
			continue
		}

		start, err := parsePort(low)
		if err != nil {
			return nil, err
		}
		end, err := parsePort(high)
		if err != nil {
			return nil, err
		}
		if start > end {
			return nil, types.NewValidationError("ports", "invalid port range %q", part)
		}
		for port := start; port <= end; port++ {
			ports = append(ports, port)
		}
	}

	ports = sliceutil.Dedupe(ports)
	sort.Ints(ports)
	return ports, nil
}

func parsePort(value string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, types.NewValidationError("ports", "invalid port %q", value)
	}
	if err := types.ValidatePort(port); err != nil {
		return 0, err
	}
	return port, nil
}

// PrivilegedPorts returns 1-1023
func PrivilegedPorts() []int {
	return portRange(types.MinPort, 1023)
}

// AllPorts returns 1-65535
func AllPorts() []int {
	return portRange(types.MinPort, types.MaxPort)
}

func portRange(start, end int) []int {
	ports := make([]int, 0, end-start+1)
	for port := start; port <= end; port++ {
		ports = append(ports, port)
	}
	return ports
}

// WithExpression sets the port set from an expression
func WithExpression(expr string) types.Option {
	return func(o *types.ProbeOptions) error {
		ports, err := ParseExpression(expr)
		if err != nil {
			return err
		}
		o.Ports = ports
		return nil
	}
}

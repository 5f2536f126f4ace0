package util

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/samber/lo"
)

// VLAN id and MTU bounds accepted by the daemon.
const (
	MinVLANID = 1
	MaxVLANID = 4095
	MinMTU    = 68
	MaxMTU    = 9716
)

// ParseRange expands a list such as "100-103,200" into sorted, distinct
// values. A single range may not cover more than maxSpan values.
func ParseRange(s string, maxSpan int) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		first, last, isRange := strings.Cut(part, "-")
		start, err := strconv.Atoi(strings.TrimSpace(first))
		if err != nil {
			return nil, fmt.Errorf("invalid value in %q", part)
		}
		end := start
		if isRange {
			if end, err = strconv.Atoi(strings.TrimSpace(last)); err != nil {
				return nil, fmt.Errorf("invalid range end in %q", part)
			}
		}
		if start > end {
			return nil, fmt.Errorf("range %q runs backwards", part)
		}
		if end-start >= maxSpan {
			return nil, fmt.Errorf("range %q covers more than %d values", part, maxSpan)
		}
		for v := start; v <= end; v++ {
			out = append(out, v)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// FormatRange renders values in the notation ParseRange reads:
// [1 2 3 5 7 8] becomes "1-3,5,7-8".
func FormatRange(values []int) string {
	sorted := slices.Clone(values)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	var parts []string
	for i := 0; i < len(sorted); {
		j := i
		for j+1 < len(sorted) && sorted[j+1] == sorted[j]+1 {
			j++
		}
		parts = append(parts, lo.Ternary(i == j,
			strconv.Itoa(sorted[i]),
			fmt.Sprintf("%d-%d", sorted[i], sorted[j])))
		i = j + 1
	}
	return strings.Join(parts, ",")
}

// ValidateVLANID checks a VLAN id is within 1-4095.
func ValidateVLANID(id int) error {
	if id < MinVLANID || id > MaxVLANID {
		return fmt.Errorf("invalid vlan id: %d", id)
	}
	return nil
}

// ValidateMTU checks if MTU is within valid range
func ValidateMTU(mtu int) error {
	if mtu < MinMTU || mtu > MaxMTU {
		return fmt.Errorf("MTU must be between %d and %d, got %d", MinMTU, MaxMTU, mtu)
	}
	return nil
}

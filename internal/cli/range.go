package cli

import (
	"fmt"
	"strconv"
	"strings"
)

// ExpandIndexes takes a slice of strings that may contain ranges (e.g., "0-4")
// and/or single indexes (e.g., "3") and expands them into a flat slice of
// journal indexes.
//
// Examples:
//   - ["0-4"] → [0, 1, 2, 3, 4]
//   - ["1", "3-5", "8"] → [1, 3, 4, 5, 8]
//   - ["1,3-5,8"] → [1, 3, 4, 5, 8] (handles comma-separated within single string)
func ExpandIndexes(input []string) ([]int, error) {
	var result []int

	for _, item := range input {
		// cobra's StringSlice already splits on commas, but quoted values may not be
		segments := strings.Split(item, ",")

		for _, segment := range segments {
			segment = strings.TrimSpace(segment)
			if segment == "" {
				continue
			}

			expanded, err := expandSegment(segment)
			if err != nil {
				return nil, err
			}
			result = append(result, expanded...)
		}
	}

	return result, nil
}

// expandSegment handles a single segment which may be an index ("5") or a range ("1-5")
func expandSegment(segment string) ([]int, error) {
	// A leading "-" is a negative number, not a range
	if idx := strings.Index(segment, "-"); idx > 0 && idx < len(segment)-1 {
		startStr := strings.TrimSpace(segment[:idx])
		endStr := strings.TrimSpace(segment[idx+1:])

		start, err := parseIndex(startStr)
		if err != nil {
			return nil, fmt.Errorf("invalid range %q: start value %q is not a valid index", segment, startStr)
		}

		end, err := parseIndex(endStr)
		if err != nil {
			return nil, fmt.Errorf("invalid range %q: end value %q is not a valid index", segment, endStr)
		}

		if start > end {
			return nil, fmt.Errorf("invalid range %q: start (%d) is greater than end (%d)", segment, start, end)
		}

		result := make([]int, 0, end-start+1)
		for i := start; i <= end; i++ {
			result = append(result, i)
		}
		return result, nil
	}

	n, err := parseIndex(segment)
	if err != nil {
		return nil, fmt.Errorf("invalid value %q: not a valid index", segment)
	}
	return []int{n}, nil
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative index %d", n)
	}
	return n, nil
}

// Package hostlist expands and compresses Slurm host-range expressions.
//
// A host-range expression names many hosts compactly, e.g.
// "cluster-a-[0-2,7],cluster-b-3" expands to cluster-a-0, cluster-a-1,
// cluster-a-2, cluster-a-7 and cluster-b-3. Numeric zero padding is
// preserved in both directions.
package hostlist

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Expand converts a host-range expression into individual hostnames.
// Hostnames without a bracketed range pass through unchanged.
func Expand(expr string) ([]string, error) {
	var hosts []string
	for _, part := range splitOutsideBrackets(expr) {
		if part == "" {
			continue
		}
		expanded, err := expandPart(part)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, expanded...)
	}
	return hosts, nil
}

// Compress converts hostnames into a compact host-range expression.
// Hosts sharing a prefix and numeric width are collapsed into ranges;
// the result is deterministic for a given input set.
func Compress(hosts []string) string {
	type key struct {
		prefix string
		width  int
	}
	plain := []string{}
	numbered := map[key][]int{}

	for _, h := range hosts {
		prefix, digits := splitTrailingDigits(h)
		if digits == "" {
			plain = append(plain, h)
			continue
		}
		n, err := strconv.Atoi(digits)
		if err != nil {
			plain = append(plain, h)
			continue
		}
		k := key{prefix: prefix, width: len(digits)}
		numbered[k] = append(numbered[k], n)
	}

	var parts []string
	keys := make([]key, 0, len(numbered))
	for k := range numbered {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].prefix != keys[j].prefix {
			return keys[i].prefix < keys[j].prefix
		}
		return keys[i].width < keys[j].width
	})

	for _, k := range keys {
		nums := numbered[k]
		sort.Ints(nums)
		nums = dedupInts(nums)
		ranges := collapseRanges(nums, k.width)
		if len(ranges) == 1 && !strings.Contains(ranges[0], "-") {
			parts = append(parts, k.prefix+ranges[0])
			continue
		}
		parts = append(parts, fmt.Sprintf("%s[%s]", k.prefix, strings.Join(ranges, ",")))
	}

	sort.Strings(plain)
	parts = append(parts, plain...)
	return strings.Join(parts, ",")
}

func expandPart(part string) ([]string, error) {
	open := strings.IndexByte(part, '[')
	if open < 0 {
		if strings.IndexByte(part, ']') >= 0 {
			return nil, fmt.Errorf("unbalanced brackets in %q", part)
		}
		return []string{part}, nil
	}
	closing := strings.IndexByte(part, ']')
	if closing < open {
		return nil, fmt.Errorf("unbalanced brackets in %q", part)
	}
	prefix := part[:open]
	suffix := part[closing+1:]
	if strings.ContainsAny(suffix, "[]") {
		return nil, fmt.Errorf("nested brackets in %q", part)
	}

	var hosts []string
	for _, r := range strings.Split(part[open+1:closing], ",") {
		lo, hi, width, err := parseRange(r)
		if err != nil {
			return nil, fmt.Errorf("bad range %q in %q: %w", r, part, err)
		}
		for n := lo; n <= hi; n++ {
			hosts = append(hosts, fmt.Sprintf("%s%0*d%s", prefix, width, n, suffix))
		}
	}
	return hosts, nil
}

func parseRange(r string) (lo, hi, width int, err error) {
	loStr, hiStr, isRange := strings.Cut(r, "-")
	if !isRange {
		hiStr = loStr
	}
	lo, err = strconv.Atoi(loStr)
	if err != nil {
		return 0, 0, 0, err
	}
	hi, err = strconv.Atoi(hiStr)
	if err != nil {
		return 0, 0, 0, err
	}
	if hi < lo {
		return 0, 0, 0, fmt.Errorf("descending range")
	}
	return lo, hi, len(loStr), nil
}

// splitOutsideBrackets splits on commas that are not inside a bracketed range.
func splitOutsideBrackets(expr string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(expr[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(expr[start:]))
	return parts
}

func splitTrailingDigits(host string) (prefix, digits string) {
	i := len(host)
	for i > 0 && host[i-1] >= '0' && host[i-1] <= '9' {
		i--
	}
	return host[:i], host[i:]
}

func collapseRanges(nums []int, width int) []string {
	var ranges []string
	for i := 0; i < len(nums); {
		j := i
		for j+1 < len(nums) && nums[j+1] == nums[j]+1 {
			j++
		}
		if i == j {
			ranges = append(ranges, fmt.Sprintf("%0*d", width, nums[i]))
		} else {
			ranges = append(ranges, fmt.Sprintf("%0*d-%0*d", width, nums[i], width, nums[j]))
		}
		i = j + 1
	}
	return ranges
}

func dedupInts(sorted []int) []int {
	out := sorted[:0]
	for i, n := range sorted {
		if i == 0 || n != sorted[i-1] {
			out = append(out, n)
		}
	}
	return out
}

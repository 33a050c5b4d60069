package classifier

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/m-lab/shapebench/pkg/experiment/model"
)

// ErrInvalidRanges is returned for overlapping or malformed partitions.
var ErrInvalidRanges = errors.New("invalid test id ranges")

// Range is a closed interval of test ids assigned to a group.
type Range struct {
	Group model.TestGroup
	First uint64
	Last  uint64
}

// Contains says whether id is in [First, Last].
func (r Range) Contains(id uint64) bool {
	return id >= r.First && id <= r.Last
}

// Len returns the number of ids in the range.
func (r Range) Len() int {
	return int(r.Last - r.First + 1)
}

func (r Range) String() string {
	return fmt.Sprintf("%s=%d-%d", r.Group, r.First, r.Last)
}

// Ranges is a partition of test ids into groups. The Driver and the
// Classifier must agree on it: it is derived from the sweep lengths of the
// matrix that produced the logs.
type Ranges []Range

// Consecutive builds ranges starting at 0 for the given groups and sizes,
// in order. Groups with size zero are skipped.
func Consecutive(groups []model.TestGroup, sizes []int) Ranges {
	r := Ranges{}
	next := uint64(0)
	for i, g := range groups {
		if i >= len(sizes) || sizes[i] <= 0 {
			continue
		}
		r = append(r, Range{Group: g, First: next, Last: next + uint64(sizes[i]) - 1})
		next += uint64(sizes[i])
	}
	return r
}

// Validate checks that every range is well formed, that no group appears
// twice and that ranges do not overlap.
func (r Ranges) Validate() error {
	if len(r) == 0 {
		return fmt.Errorf("%w: empty partition", ErrInvalidRanges)
	}
	seen := map[model.TestGroup]bool{}
	sorted := append(Ranges{}, r...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].First < sorted[j].First })
	for i, rg := range sorted {
		if !rg.Group.Valid() {
			return fmt.Errorf("%w: unknown group %q", ErrInvalidRanges, rg.Group)
		}
		if rg.First > rg.Last {
			return fmt.Errorf("%w: %s is empty", ErrInvalidRanges, rg)
		}
		if seen[rg.Group] {
			return fmt.Errorf("%w: duplicate group %s", ErrInvalidRanges, rg.Group)
		}
		seen[rg.Group] = true
		if i > 0 && rg.First <= sorted[i-1].Last {
			return fmt.Errorf("%w: %s overlaps %s", ErrInvalidRanges, rg, sorted[i-1])
		}
	}
	return nil
}

// Classify returns the group whose range contains id.
func (r Ranges) Classify(id uint64) (model.TestGroup, bool) {
	for _, rg := range r {
		if rg.Contains(id) {
			return rg.Group, true
		}
	}
	return "", false
}

// Lookup returns the range of group g.
func (r Ranges) Lookup(g model.TestGroup) (Range, bool) {
	for _, rg := range r {
		if rg.Group == g {
			return rg, true
		}
	}
	return Range{}, false
}

// Map returns the ranges as "first-last" strings keyed by group.
func (r Ranges) Map() map[model.TestGroup]string {
	m := map[model.TestGroup]string{}
	for _, rg := range r {
		m[rg.Group] = fmt.Sprintf("%d-%d", rg.First, rg.Last)
	}
	return m
}

func (r Ranges) String() string {
	parts := make([]string, 0, len(r))
	for _, rg := range r {
		parts = append(parts, rg.String())
	}
	return strings.Join(parts, ",")
}

// ParseRanges parses "FileSize=0-5,Bandwidth=6-9,Delay=10-15". Groups may
// also be given by number ("1=0-5").
func ParseRanges(s string) (Ranges, error) {
	r := Ranges{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, interval, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRanges, part)
		}
		g, err := model.ParseGroup(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRanges, err)
		}
		first, last, ok := strings.Cut(interval, "-")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRanges, part)
		}
		f, err := strconv.ParseUint(strings.TrimSpace(first), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRanges, part)
		}
		l, err := strconv.ParseUint(strings.TrimSpace(last), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRanges, part)
		}
		r = append(r, Range{Group: g, First: f, Last: l})
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Package rank implements the rank predicates used to decide whether a
// task is eligible to run on the local broker rank: "all", an RFC 22
// idset string (e.g. "0-3,7"), or a "<N"/">N" comparison.
package rank

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidArgument is returned for malformed rank expressions, and
// reused by internal/catalogue for malformed TOML (spec.md §7).
var ErrInvalidArgument = errors.New("invalid argument")

// Predicate reports whether a task is enabled for the given local rank.
type Predicate interface {
	Test(rank int) bool
	String() string
}

// All matches every rank. It is the default predicate.
type All struct{}

func (All) Test(int) bool  { return true }
func (All) String() string { return "all" }

// LessThan matches ranks strictly less than N.
type LessThan int

func (l LessThan) Test(rank int) bool { return rank < int(l) }
func (l LessThan) String() string     { return fmt.Sprintf("<%d", int(l)) }

// GreaterThan matches ranks strictly greater than N.
type GreaterThan int

func (g GreaterThan) Test(rank int) bool { return rank > int(g) }
func (g GreaterThan) String() string     { return fmt.Sprintf(">%d", int(g)) }

// IDSet matches ranks that are members of an RFC 22 idset: a
// comma-separated list of non-negative integers and inclusive ranges,
// e.g. "0-3,7,9-10".
type IDSet struct {
	raw     string
	members map[int]struct{}
}

func (s IDSet) Test(rank int) bool {
	_, ok := s.members[rank]
	return ok
}

func (s IDSet) String() string { return s.raw }

func parseIDSet(arg string) (IDSet, error) {
	members := make(map[int]struct{})
	for _, chunk := range strings.Split(arg, ",") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		lo, hi, found := strings.Cut(chunk, "-")
		first, err := strconv.Atoi(lo)
		if err != nil {
			return IDSet{}, fmt.Errorf("invalid rank idset %q: %w", arg, ErrInvalidArgument)
		}
		last := first
		if found {
			last, err = strconv.Atoi(hi)
			if err != nil {
				return IDSet{}, fmt.Errorf("invalid rank idset %q: %w", arg, ErrInvalidArgument)
			}
		}
		if last < first {
			return IDSet{}, fmt.Errorf("invalid rank idset %q: range reversed: %w", arg, ErrInvalidArgument)
		}
		for r := first; r <= last; r++ {
			members[r] = struct{}{}
		}
	}
	return IDSet{raw: arg, members: members}, nil
}

// Parse builds a Predicate from a rank expression: "all", ">N", "<N", or
// an idset string.
func Parse(arg string) (Predicate, error) {
	if arg == "" || arg == "all" {
		return All{}, nil
	}
	if strings.HasPrefix(arg, ">") || strings.HasPrefix(arg, "<") {
		n, err := strconv.Atoi(arg[1:])
		if err != nil {
			return nil, fmt.Errorf("invalid rank condition %q: %w", arg, ErrInvalidArgument)
		}
		if arg[0] == '>' {
			return GreaterThan(n), nil
		}
		return LessThan(n), nil
	}
	return parseIDSet(arg)
}

package record

import (
	"cmp"
	"fmt"
	"strings"
)

// Ordering compares two values. Every component that sorts values (index trees,
// ORDER BY) goes through an Ordering so the behavior is chosen in one place.
type Ordering interface {
	Name() string
	Compare(a, b Value) int
}

const (
	OrderingCanonical = "canonical"
	OrderingTyped     = "typed"
)

var (
	// Canonical orders by the byte-wise order of canonical forms, so "10" < "9".
	// This is the default and the compatibility contract for stored databases.
	Canonical Ordering = canonicalOrdering{}

	// Typed compares numbers numerically and booleans as false < true.
	Typed Ordering = typedOrdering{}
)

// OrderingByName resolves a configured ordering name. Empty means canonical.
func OrderingByName(name string) (Ordering, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", OrderingCanonical:
		return Canonical, nil
	case OrderingTyped:
		return Typed, nil
	default:
		return nil, fmt.Errorf("record: unknown ordering %q", name)
	}
}

type canonicalOrdering struct{}

func (canonicalOrdering) Name() string { return OrderingCanonical }

func (canonicalOrdering) Compare(a, b Value) int {
	return strings.Compare(a.String(), b.String())
}

type typedOrdering struct{}

func (typedOrdering) Name() string { return OrderingTyped }

func (typedOrdering) Compare(a, b Value) int {
	switch {
	case isNumeric(a) && isNumeric(b):
		if a.kind == KindInteger && b.kind == KindInteger {
			return cmp.Compare(a.i, b.i)
		}
		return cmp.Compare(a.float(), b.float())
	case a.kind == KindBoolean && b.kind == KindBoolean:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	default:
		// text, or mixed kinds
		return strings.Compare(a.String(), b.String())
	}
}

func isNumeric(v Value) bool { return v.kind == KindInteger || v.kind == KindFloat }

func (v Value) float() float64 {
	if v.kind == KindInteger {
		return float64(v.i)
	}
	return v.f
}

// CompareOptional orders possibly-absent values: absent sorts before any present value.
func CompareOptional(o Ordering, a Value, aok bool, b Value, bok bool) int {
	switch {
	case !aok && !bok:
		return 0
	case !aok:
		return -1
	case !bok:
		return 1
	default:
		return o.Compare(a, b)
	}
}

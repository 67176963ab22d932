package form

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/tbxark/talkform/types"
)

type PredicateKind string

const (
	PredicateOneOf    PredicateKind = "one_of"
	PredicateCity     PredicateKind = "city"
	PredicateRange    PredicateKind = "range"
	PredicateFreeText PredicateKind = "free_text"
)

// AllCities is the city value meaning "every city of the chosen market".
const AllCities = "Todas"

type Predicate struct {
	Kind   PredicateKind
	Values []string
	// Cities maps a country to its cities, for PredicateCity.
	Cities map[string][]string
	Min    int
	Max    int
}

func (p *Predicate) check() error {
	switch p.Kind {
	case PredicateOneOf:
		if len(p.Values) == 0 {
			return errors.New("one_of predicate without values")
		}
	case PredicateCity:
		if len(p.Cities) == 0 {
			return errors.New("city predicate without cities")
		}
	case PredicateRange:
		if p.Max < p.Min {
			return fmt.Errorf("range predicate bounds %d-%d", p.Min, p.Max)
		}
	case PredicateFreeText:
	default:
		return fmt.Errorf("unknown predicate kind %q", p.Kind)
	}
	return nil
}

func (p *Predicate) Accepts(value string) bool {
	switch p.Kind {
	case PredicateOneOf:
		return slices.Contains(p.Values, value)
	case PredicateCity:
		if value == AllCities {
			return true
		}
		for _, cities := range p.Cities {
			if slices.Contains(cities, value) {
				return true
			}
		}
		return false
	case PredicateRange:
		lo, hi, err := ParseRange(value)
		if err != nil {
			return false
		}
		return lo >= p.Min && hi <= p.Max
	case PredicateFreeText:
		return strings.TrimSpace(value) != ""
	}
	return false
}

// ParseRange parses a "min-max" window such as "30-60".
func ParseRange(value string) (int, int, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(value), "-")
	if !ok {
		return 0, 0, fmt.Errorf("range %q: missing '-'", value)
	}
	min, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("range %q: %w", value, err)
	}
	max, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return 0, 0, fmt.Errorf("range %q: %w", value, err)
	}
	if min < 0 || max < min {
		return 0, 0, fmt.Errorf("range %q: invalid bounds", value)
	}
	return min, max, nil
}

type Result struct {
	Accepted bool
	Derived  map[string]*string
	Message  string
}

// Validate checks a candidate value for slot. Accepted results carry the slot itself plus
// every derived slot; rejected results clear the slot.
func Validate(spec *Spec, slot, value string) Result {
	if strings.TrimSpace(value) == "" {
		return reject(spec, slot)
	}
	rule, ok := spec.Rules[slot]
	if ok && rule.Predicate != nil && !rule.Predicate.Accepts(value) {
		return reject(spec, slot)
	}
	derived := map[string]*string{slot: types.Value(value)}
	for _, d := range spec.Derivations {
		if d.Slot != slot || d.Value != value {
			continue
		}
		for name, v := range d.Sets {
			derived[name] = types.Value(v)
		}
	}
	return Result{Accepted: true, Derived: derived}
}

func reject(spec *Spec, slot string) Result {
	return Result{
		Accepted: false,
		Derived:  map[string]*string{slot: nil},
		Message:  spec.Messages.Invalid,
	}
}

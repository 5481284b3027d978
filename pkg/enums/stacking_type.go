package enums

import "fmt"

// StackingType controls whether a campaign may combine with others.
type StackingType string

const (
	StackingTypeNone      StackingType = "none"
	StackingTypeAll       StackingType = "all"
	StackingTypeExclusive StackingType = "exclusive"
	StackingTypeCombined  StackingType = "combined"
)

var validStackingTypes = []StackingType{
	StackingTypeNone,
	StackingTypeAll,
	StackingTypeExclusive,
	StackingTypeCombined,
}

// String implements fmt.Stringer.
func (s StackingType) String() string {
	return string(s)
}

// IsExclusive reports whether the campaign refuses to join a stack.
// Both "none" and "exclusive" behave identically in the stacking walk.
func (s StackingType) IsExclusive() bool {
	return s == StackingTypeNone || s == StackingTypeExclusive
}

// IsValid reports whether the value is a known StackingType.
func (s StackingType) IsValid() bool {
	for _, candidate := range validStackingTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseStackingType converts raw input into a StackingType.
func ParseStackingType(value string) (StackingType, error) {
	for _, candidate := range validStackingTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stacking type %q", value)
}

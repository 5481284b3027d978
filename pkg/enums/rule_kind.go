package enums

import "fmt"

// RuleKind identifies what a campaign rule matches against.
type RuleKind string

const (
	RuleKindProduct   RuleKind = "product"
	RuleKindVariant   RuleKind = "variant"
	RuleKindCategory  RuleKind = "category"
	RuleKindBrand     RuleKind = "brand"
	RuleKindAttribute RuleKind = "attribute"
)

var validRuleKinds = []RuleKind{
	RuleKindProduct,
	RuleKindVariant,
	RuleKindCategory,
	RuleKindBrand,
	RuleKindAttribute,
}

// IsValid reports whether the value is a known RuleKind.
func (k RuleKind) IsValid() bool {
	for _, candidate := range validRuleKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseRuleKind converts raw input into a RuleKind.
func ParseRuleKind(value string) (RuleKind, error) {
	for _, candidate := range validRuleKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rule kind %q", value)
}

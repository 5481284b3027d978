package enums

import "fmt"

// DiscountType identifies how a campaign discount is computed.
type DiscountType string

const (
	DiscountTypePercentage    DiscountType = "percentage"
	DiscountTypeFixedAmount   DiscountType = "fixed_amount"
	DiscountTypePriceOverride DiscountType = "price_override"
)

var validDiscountTypes = []DiscountType{
	DiscountTypePercentage,
	DiscountTypeFixedAmount,
	DiscountTypePriceOverride,
}

// IsValid reports whether the value is a known DiscountType.
func (t DiscountType) IsValid() bool {
	for _, candidate := range validDiscountTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseDiscountType converts raw input into a DiscountType.
func ParseDiscountType(value string) (DiscountType, error) {
	for _, candidate := range validDiscountTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid discount type %q", value)
}

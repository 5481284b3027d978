package enums

import "fmt"

// RuleAction marks a campaign rule as including or excluding its target.
type RuleAction string

const (
	RuleActionInclude RuleAction = "include"
	RuleActionExclude RuleAction = "exclude"
)

var validRuleActions = []RuleAction{
	RuleActionInclude,
	RuleActionExclude,
}

// IsValid reports whether the value is a known RuleAction.
func (a RuleAction) IsValid() bool {
	for _, candidate := range validRuleActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseRuleAction converts raw input into a RuleAction.
func ParseRuleAction(value string) (RuleAction, error) {
	for _, candidate := range validRuleActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rule action %q", value)
}

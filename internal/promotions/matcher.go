package promotions

import (
	"github.com/google/uuid"

	"github.com/mfeldmann/storehaus-backend/pkg/db/models"
	"github.com/mfeldmann/storehaus-backend/pkg/enums"
)

// Subject is the catalog identity a campaign is matched against.
type Subject struct {
	VariantID  uuid.UUID
	ProductID  uuid.UUID
	CategoryID *uuid.UUID
	Brand      string
	Attributes map[string]string
}

// Matches evaluates a campaign's rules against the subject. A campaign
// with no include rules matches everything; exclude rules always win.
func Matches(campaign *models.Campaign, subject Subject) bool {
	included := false
	hasInclude := false
	for i := range campaign.Rules {
		rule := &campaign.Rules[i]
		hit := ruleHits(rule, subject)
		switch rule.Action {
		case enums.RuleActionExclude:
			if hit {
				return false
			}
		default:
			hasInclude = true
			if hit {
				included = true
			}
		}
	}
	if !hasInclude {
		return true
	}
	return included
}

func ruleHits(rule *models.CampaignRule, subject Subject) bool {
	switch rule.Kind {
	case enums.RuleKindVariant:
		return rule.VariantID != nil && *rule.VariantID == subject.VariantID
	case enums.RuleKindProduct:
		return rule.ProductID != nil && *rule.ProductID == subject.ProductID
	case enums.RuleKindCategory:
		return rule.CategoryID != nil && subject.CategoryID != nil && *rule.CategoryID == *subject.CategoryID
	case enums.RuleKindBrand:
		return rule.Brand != "" && rule.Brand == subject.Brand
	case enums.RuleKindAttribute:
		if rule.AttrKey == "" {
			return false
		}
		value, ok := subject.Attributes[rule.AttrKey]
		return ok && value == rule.AttrValue
	default:
		return false
	}
}

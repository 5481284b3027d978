package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mfeldmann/storehaus-backend/internal/promotions"
	"github.com/mfeldmann/storehaus-backend/pkg/db/models"
	"github.com/mfeldmann/storehaus-backend/pkg/enums"
	apperrors "github.com/mfeldmann/storehaus-backend/pkg/errors"
	"github.com/mfeldmann/storehaus-backend/pkg/logger"
)

// Service resolves the effective unit price for a variant in a context.
type Service interface {
	ResolvePrice(ctx context.Context, input ResolveInput) (*Quote, error)
	Explain(ctx context.Context, input ResolveInput) (*Explanation, error)
}

type service struct {
	repo       Repository
	promos     promotions.Service
	logg       *logger.Logger
	defaultTax decimal.Decimal
	now        func() time.Time
}

// ResolveInput identifies the variant and the pricing context.
type ResolveInput struct {
	VariantID     uuid.UUID
	Quantity      int
	Currency      string
	Country       string
	Channel       string
	CustomerGroup string
	At            *time.Time
}

// Quote is a fully resolved price with the trail of decisions behind it.
type Quote struct {
	VariantID     uuid.UUID
	Quantity      int
	Currency      string
	BasePrice     decimal.Decimal
	BaseSource    string
	PriceBookCode string
	Campaigns     []AppliedCampaign
	UnitPrice     decimal.Decimal
	TaxRate       decimal.Decimal
	TaxPerUnit    decimal.Decimal
	Subtotal      decimal.Decimal
	TaxTotal      decimal.Decimal
	Total         decimal.Decimal
	Steps         []string
}

// AppliedCampaign records one campaign's effect in the stacking walk.
// Discount is the cut computed from the base price; PriceAfter is the
// base minus everything applied so far.
type AppliedCampaign struct {
	Code         string
	Name         string
	StackingType enums.StackingType
	Discount     decimal.Decimal
	PriceAfter   decimal.Decimal
}

// Explanation is a quote plus every candidate that was considered and
// turned down, each with the reason it did not make the quote.
type Explanation struct {
	Quote
	Rejected []RejectedCandidate
}

// RejectedCandidate names one price book entry or campaign that was not
// used. Code is empty for price book entries.
type RejectedCandidate struct {
	Kind   string
	ID     uuid.UUID
	Code   string
	Reason string
}

const (
	candidatePriceBookEntry = "price_book_entry"
	candidateCampaign       = "campaign"
)

const (
	defaultCurrency = "EUR"
	baseSourceBook  = "price_book"
	baseSourceList  = "variant_base_price"
)

var defaultTaxRate = decimal.RequireFromString("0.19")

// NewService wires the pricing service.
func NewService(repo Repository, promos promotions.Service, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("pricing repository required")
	}
	if promos == nil {
		return nil, fmt.Errorf("promotions service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:       repo,
		promos:     promos,
		logg:       logg,
		defaultTax: defaultTaxRate,
		now:        time.Now,
	}, nil
}

func (s *service) ResolvePrice(ctx context.Context, input ResolveInput) (*Quote, error) {
	return s.resolve(ctx, input, nil)
}

// Explain resolves the same quote but also reports every price book entry
// and campaign that was considered and rejected, with the mismatch reason.
func (s *service) Explain(ctx context.Context, input ResolveInput) (*Explanation, error) {
	rejected := make([]RejectedCandidate, 0, 8)
	quote, err := s.resolve(ctx, input, &rejected)
	if err != nil {
		return nil, err
	}
	return &Explanation{Quote: *quote, Rejected: rejected}, nil
}

func (s *service) resolve(ctx context.Context, input ResolveInput, rejects *[]RejectedCandidate) (*Quote, error) {
	if input.VariantID == uuid.Nil {
		return nil, apperrors.New(apperrors.CodeValidation, "variant id is required")
	}
	if input.Quantity <= 0 {
		return nil, apperrors.New(apperrors.CodeValidation, "quantity must be positive")
	}
	if input.Currency == "" {
		input.Currency = defaultCurrency
	}
	at := s.now().UTC()
	if input.At != nil {
		at = input.At.UTC()
	}

	variant, err := s.repo.GetVariant(ctx, input.VariantID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "variant not found")
	}
	if err != nil {
		return nil, err
	}
	if !variant.IsActive {
		return nil, apperrors.New(apperrors.CodeStateConflict, "variant is inactive")
	}

	quote := &Quote{
		VariantID: input.VariantID,
		Quantity:  input.Quantity,
		Currency:  input.Currency,
	}

	base, err := s.resolveBase(ctx, variant, input, at, quote, rejects)
	if err != nil {
		return nil, err
	}

	subject := promotions.Subject{
		VariantID: variant.ID,
		ProductID: variant.ProductID,
	}
	if variant.Product != nil {
		subject.CategoryID = variant.Product.CategoryID
		subject.Brand = variant.Product.Brand
	}
	if len(variant.Attributes) > 0 {
		subject.Attributes = map[string]string(variant.Attributes)
	}

	var campaigns []models.Campaign
	if rejects == nil {
		campaigns, err = s.promos.EligibleCampaigns(ctx, subject, input.CustomerGroup, input.Quantity, at)
	} else {
		var turned []promotions.CampaignRejection
		campaigns, turned, err = s.promos.ExplainCampaigns(ctx, subject, input.CustomerGroup, input.Quantity, at)
		for _, rej := range turned {
			*rejects = append(*rejects, RejectedCandidate{
				Kind: candidateCampaign, ID: rej.ID, Code: rej.Code, Reason: rej.Reason,
			})
		}
	}
	if err != nil {
		return nil, err
	}

	final := s.applyCampaigns(base, campaigns, quote, rejects)

	// Round the unit price before extending by quantity so the customer
	// sees line totals that are exact multiples of the shown price.
	unit := roundMoney(final)
	quote.UnitPrice = unit

	rate := s.taxRate(ctx, variant, input.Country, at, quote)
	quote.TaxRate = rate
	quote.TaxPerUnit = roundMoney(unit.Mul(rate))

	qty := decimal.NewFromInt(int64(input.Quantity))
	quote.Subtotal = unit.Mul(qty)
	quote.TaxTotal = quote.TaxPerUnit.Mul(qty)
	quote.Total = quote.Subtotal.Add(quote.TaxTotal)
	return quote, nil
}

// resolveBase picks the base price: the best matching price book entry,
// falling back to the default book, then to the variant's list price.
func (s *service) resolveBase(ctx context.Context, variant *models.Variant, input ResolveInput, at time.Time, quote *Quote, rejects *[]RejectedCandidate) (decimal.Decimal, error) {
	var categoryID *uuid.UUID
	if variant.Product != nil {
		categoryID = variant.Product.CategoryID
	}

	books, err := s.repo.ListBooksForContext(ctx, input.Currency, input.Country, input.Channel, input.CustomerGroup)
	if err != nil {
		return decimal.Zero, err
	}

	entry, book := s.bestEntry(ctx, books, variant, categoryID, input.Quantity, at, rejects)
	if entry == nil {
		fallback, err := s.repo.GetDefaultBook(ctx, input.Currency)
		if err == nil {
			entry, book = s.bestEntry(ctx, []models.PriceBook{*fallback}, variant, categoryID, input.Quantity, at, rejects)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, err
		}
	}

	if entry != nil {
		quote.BasePrice = entry.Price
		quote.BaseSource = baseSourceBook
		quote.PriceBookCode = book.Code
		quote.Steps = append(quote.Steps, fmt.Sprintf("base %s from book %s (scope level %d, min qty %d)",
			entry.Price.StringFixed(2), book.Code, entry.ScopeLevel(), entry.MinQuantity))
		return entry.Price, nil
	}

	quote.BasePrice = variant.BasePrice
	quote.BaseSource = baseSourceList
	quote.Steps = append(quote.Steps, fmt.Sprintf("base %s from variant list price", variant.BasePrice.StringFixed(2)))
	return variant.BasePrice, nil
}

// bestEntry returns the winning entry across the given books: the most
// specific scope wins, then the highest quantity tier.
func (s *service) bestEntry(ctx context.Context, books []models.PriceBook, variant *models.Variant, categoryID *uuid.UUID, quantity int, at time.Time, rejects *[]RejectedCandidate) (*models.PriceBookEntry, *models.PriceBook) {
	if len(books) == 0 {
		return nil, nil
	}
	booksByID := make(map[uuid.UUID]*models.PriceBook, len(books))
	ids := make([]uuid.UUID, 0, len(books))
	for i := range books {
		booksByID[books[i].ID] = &books[i]
		ids = append(ids, books[i].ID)
	}

	entries, err := s.repo.ListEntries(ctx, ids, variant.ID, variant.ProductID, categoryID)
	if err != nil {
		return nil, nil
	}

	var candidates []models.PriceBookEntry
	for i := range entries {
		switch {
		case !entries[i].InWindow(at):
			rejectEntry(rejects, &entries[i], "outside effective window")
		case !entries[i].CoversQuantity(quantity):
			rejectEntry(rejects, &entries[i], fmt.Sprintf("quantity %d outside tier", quantity))
		default:
			candidates = append(candidates, entries[i])
		}
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].ScopeLevel() != candidates[j].ScopeLevel() {
			return candidates[i].ScopeLevel() < candidates[j].ScopeLevel()
		}
		if candidates[i].MinQuantity != candidates[j].MinQuantity {
			return candidates[i].MinQuantity > candidates[j].MinQuantity
		}
		// On a full tie the more context-specific book wins over a
		// wildcard or default book.
		return bookSpecificity(booksByID[candidates[i].PriceBookID]) > bookSpecificity(booksByID[candidates[j].PriceBookID])
	})
	winner := candidates[0]
	for i := 1; i < len(candidates); i++ {
		rejectEntry(rejects, &candidates[i], "outranked by a more specific entry")
	}
	return &winner, booksByID[winner.PriceBookID]
}

func rejectEntry(rejects *[]RejectedCandidate, entry *models.PriceBookEntry, reason string) {
	if rejects == nil {
		return
	}
	*rejects = append(*rejects, RejectedCandidate{
		Kind: candidatePriceBookEntry, ID: entry.ID, Reason: reason,
	})
}

// applyCampaigns walks eligible campaigns in priority order and stacks
// their discounts. Every discount is computed from the base price and the
// amounts are summed; the final price is base minus the sum, clamped at
// zero. The first campaign always applies. An exclusive campaign seen
// after something applied is skipped; once an exclusive campaign applies
// the walk stops.
func (s *service) applyCampaigns(base decimal.Decimal, campaigns []models.Campaign, quote *Quote, rejects *[]RejectedCandidate) decimal.Decimal {
	total := decimal.Zero
	for i := range campaigns {
		c := &campaigns[i]
		if len(quote.Campaigns) > 0 && !s.canStack(c, quote.Campaigns) {
			quote.Steps = append(quote.Steps, fmt.Sprintf("campaign %s skipped (stacking %s)", c.Code, c.StackingType))
			rejectCampaign(rejects, c, fmt.Sprintf("stacking %s cannot join the applied set", c.StackingType))
			continue
		}

		cut := decimal.Zero
		for j := range c.Discounts {
			cut = cut.Add(discountAmount(base, &c.Discounts[j]))
		}
		total = total.Add(cut)
		after := base.Sub(total)
		if after.IsNegative() {
			after = decimal.Zero
		}

		quote.Campaigns = append(quote.Campaigns, AppliedCampaign{
			Code:         c.Code,
			Name:         c.Name,
			StackingType: c.StackingType,
			Discount:     cut,
			PriceAfter:   after,
		})
		quote.Steps = append(quote.Steps, fmt.Sprintf("campaign %s applied: -%s (price %s)",
			c.Code, cut.StringFixed(2), after.StringFixed(2)))

		if c.StackingType.IsExclusive() {
			quote.Steps = append(quote.Steps, fmt.Sprintf("campaign %s is exclusive, stack closed", c.Code))
			for j := i + 1; j < len(campaigns); j++ {
				rejectCampaign(rejects, &campaigns[j], fmt.Sprintf("stack closed by exclusive campaign %s", c.Code))
			}
			break
		}
	}

	final := base.Sub(total)
	if final.IsNegative() {
		final = decimal.Zero
	}
	return final
}

func rejectCampaign(rejects *[]RejectedCandidate, c *models.Campaign, reason string) {
	if rejects == nil {
		return
	}
	*rejects = append(*rejects, RejectedCandidate{
		Kind: candidateCampaign, ID: c.ID, Code: c.Code, Reason: reason,
	})
}

// canStack decides whether the candidate may join the applied set.
func (s *service) canStack(candidate *models.Campaign, applied []AppliedCampaign) bool {
	switch candidate.StackingType {
	case enums.StackingTypeAll:
		return true
	case enums.StackingTypeCombined:
		for _, a := range applied {
			if !candidate.CombinableWithCode(a.Code) {
				return false
			}
		}
		return true
	default:
		// none and exclusive never join an existing stack.
		return false
	}
}

func bookSpecificity(book *models.PriceBook) int {
	if book == nil {
		return -1
	}
	score := 0
	for _, dim := range []string{book.Country, book.Channel, book.CustomerGroup} {
		if dim != "" {
			score++
		}
	}
	return score
}

// discountAmount computes one discount's cut from the base price. The cut
// is capped by max_discount_amount and limited so the base minus this cut
// never drops below min_price. An override above the base cuts nothing.
func discountAmount(base decimal.Decimal, discount *models.CampaignDiscount) decimal.Decimal {
	var cut decimal.Decimal
	switch discount.DiscountType {
	case enums.DiscountTypePercentage:
		cut = base.Mul(discount.Value).Div(decimal.NewFromInt(100))
	case enums.DiscountTypeFixedAmount:
		cut = discount.Value
	case enums.DiscountTypePriceOverride:
		cut = base.Sub(discount.Value)
	default:
		return decimal.Zero
	}
	cut = capDiscount(cut, discount.MaxDiscountAmount)
	if discount.MinPrice != nil {
		room := base.Sub(*discount.MinPrice)
		if cut.GreaterThan(room) {
			cut = room
		}
	}
	if cut.IsNegative() {
		cut = decimal.Zero
	}
	return cut
}

func capDiscount(cut decimal.Decimal, max *decimal.Decimal) decimal.Decimal {
	if max != nil && cut.GreaterThan(*max) {
		return *max
	}
	return cut
}

func (s *service) taxRate(ctx context.Context, variant *models.Variant, country string, at time.Time, quote *Quote) decimal.Decimal {
	taxClass := variant.TaxClass
	if taxClass == "" {
		taxClass = "standard"
	}
	if country != "" {
		rate, err := s.repo.FindTaxRate(ctx, country, taxClass, at)
		if err == nil {
			quote.Steps = append(quote.Steps, fmt.Sprintf("tax rate %s for %s/%s", rate.Rate.String(), country, taxClass))
			return rate.Rate
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Error(ctx, "tax rate lookup failed", err)
		}
	}
	quote.Steps = append(quote.Steps, fmt.Sprintf("tax rate %s (default)", s.defaultTax.String()))
	return s.defaultTax
}

// roundMoney rounds half up to two decimal places.
func roundMoney(value decimal.Decimal) decimal.Decimal {
	return value.Round(2)
}

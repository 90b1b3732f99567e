package pricing

import (
	"sort"

	"github.com/shopspring/decimal"

	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/api_leads/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Calculate prices a batch lead purchase. It performs no I/O and returns the
// same Quote for the same request and ruleset.
func Calculate(req Request, rs Ruleset) (Quote, error) {
	cfg := rs.Config
	if req.Quantity < 1 {
		return Quote{}, errs.Invalid("quantity must be at least 1")
	}
	if req.Quantity < cfg.MinPurchaseQty {
		return Quote{}, errs.BelowMinimum(cfg.MinPurchaseQty)
	}

	filters := req.Filters
	if !req.UseFilters {
		filters = models.Filters{}
	}

	hasFilters := filteredByToggles(filters, cfg.Toggles)
	perLead := cfg.BaseLeadPrice
	if hasFilters {
		perLead = perLead.Add(cfg.FilteredSurcharge).Mul(cfg.FilteredMultiplier)
	}

	// Toggles gate the surcharge only. Rule matching sees the request as sent,
	// so a dimension rule and the unfiltered rule never both fire.
	adjustments := make([]Adjustment, 0)
	for _, rule := range matchingRules(rs.Rules, filters, !filters.IsEmpty()) {
		next := apply(perLead, rule.AdjustmentType, rule.AdjustmentValue)
		adjustments = append(adjustments, Adjustment{
			RuleID:         rule.ID,
			RuleName:       rule.Name,
			ConditionType:  rule.ConditionType,
			AdjustmentType: rule.AdjustmentType,
			Amount:         next.Sub(perLead),
		})
		perLead = next
	}

	subtotal := perLead.Mul(decimal.NewFromInt(int64(req.Quantity)))

	discount := decimal.Zero
	var tierID int64
	if tier, ok := selectTier(rs.Tiers, req.Quantity); ok {
		tierID = tier.ID
		switch tier.DiscountType {
		case DiscountFlat:
			discount = tier.DiscountValue
		case DiscountPercentage:
			discount = subtotal.Mul(tier.DiscountValue).Div(hundred)
		}
		ceiling := decimal.Max(subtotal, decimal.Zero)
		discount = decimal.Min(decimal.Max(discount, decimal.Zero), ceiling)
	}

	total := decimal.Max(subtotal.Sub(discount), decimal.Zero)

	return Quote{
		BasePrice:    cfg.BaseLeadPrice,
		HasFilters:   hasFilters,
		PerLeadPrice: perLead,
		Quantity:     req.Quantity,
		Subtotal:     subtotal,
		Adjustments:  adjustments,
		BulkDiscount: discount,
		BulkTierID:   tierID,
		// Round rounds half away from zero, which is half-up for a non-negative total.
		TotalPrice:  total.Round(0).IntPart(),
		MinQuantity: cfg.MinPurchaseQty,
	}, nil
}

func apply(price decimal.Decimal, kind AdjustmentType, value decimal.Decimal) decimal.Decimal {
	switch kind {
	case AdjustFlatFee:
		return price.Add(value)
	case AdjustMultiplier:
		return price.Mul(value)
	case AdjustPercentage:
		return price.Add(price.Mul(value).Div(hundred))
	default:
		return price
	}
}

func filteredByToggles(f models.Filters, t Toggles) bool {
	return (t.City && f.City != "") ||
		(t.Region && f.Region != "") ||
		(t.Brand && f.Brand != "") ||
		(t.Model && f.Model != "") ||
		(t.LeadType && f.LeadType != "") ||
		(t.DateRange && f.HasDateFilter())
}

// matchingRules returns active rules that apply to f, by ascending priority
// with declaration order kept for ties.
func matchingRules(rules []Rule, f models.Filters, requestFiltered bool) []Rule {
	var out []Rule
	for _, r := range rules {
		if r.IsActive && ruleMatches(r, f, requestFiltered) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

func ruleMatches(r Rule, f models.Filters, requestFiltered bool) bool {
	var value string
	switch r.ConditionType {
	case ConditionFiltered:
		return requestFiltered
	case ConditionUnfiltered:
		return !requestFiltered
	case ConditionCity:
		value = f.City
	case ConditionRegion:
		value = f.Region
	case ConditionBrand:
		value = f.Brand
	case ConditionModel:
		value = f.Model
	case ConditionLeadType:
		value = f.LeadType
	case ConditionDateRange:
		value = f.DateRange
	default:
		return false
	}
	return value != "" && value == r.ConditionValue
}

// selectTier picks the covering tier with the highest priority; equal
// priorities go to the larger minQuantity, then to declaration order.
func selectTier(tiers []BulkTier, quantity int) (BulkTier, bool) {
	var best BulkTier
	found := false
	for _, t := range tiers {
		if !t.IsActive || !t.covers(quantity) {
			continue
		}
		if !found || t.Priority > best.Priority ||
			(t.Priority == best.Priority && t.MinQuantity > best.MinQuantity) {
			best = t
			found = true
		}
	}
	return best, found
}

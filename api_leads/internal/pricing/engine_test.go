package pricing

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/api_leads/internal/models"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func intPtr(v int) *int { return &v }

func baseRuleset(base string, minQty int) Ruleset {
	cfg := DefaultConfig()
	cfg.BaseLeadPrice = d(base)
	cfg.MinPurchaseQty = minQty
	return Ruleset{Config: cfg}
}

func TestCalculateIsDeterministic(t *testing.T) {
	rs := baseRuleset("100", 1)
	rs.Config.FilteredSurcharge = d("5")
	rs.Config.FilteredMultiplier = d("1.5")
	rs.Rules = []Rule{
		{ID: 1, Name: "pune", ConditionType: ConditionCity, ConditionValue: "Pune", AdjustmentType: AdjustPercentage, AdjustmentValue: d("12.5"), Priority: 1, IsActive: true},
		{ID: 2, Name: "honda", ConditionType: ConditionBrand, ConditionValue: "Honda", AdjustmentType: AdjustFlatFee, AdjustmentValue: d("-3"), Priority: 1, IsActive: true},
	}
	rs.Tiers = []BulkTier{{ID: 1, MinQuantity: 5, DiscountType: DiscountPercentage, DiscountValue: d("10"), Priority: 1, IsActive: true}}
	req := Request{UseFilters: true, Filters: models.Filters{City: "Pune", Brand: "Honda"}, Quantity: 7}

	first, err := Calculate(req, rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Calculate(req, rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical quotes:\n%+v\n%+v", first, second)
	}
}

func TestCalculateBelowMinimumCarriesMinimum(t *testing.T) {
	rs := baseRuleset("100", 10)
	for _, qty := range []int{1, 5, 9} {
		_, err := Calculate(Request{UseFilters: true, Quantity: qty}, rs)
		if !errors.Is(err, errs.ErrBelowMinimumQuantity) {
			t.Fatalf("quantity %d: expected BelowMinimumQuantity, got %v", qty, err)
		}
		e, _ := errs.As(err)
		if e.Details["minQuantity"] != 10 {
			t.Fatalf("expected minQuantity 10, got %v", e.Details["minQuantity"])
		}
	}
}

func TestCalculateRejectsZeroQuantity(t *testing.T) {
	_, err := Calculate(Request{Quantity: 0}, baseRuleset("100", 0))
	if errs.KindOf(err) != errs.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCalculateSingleFlatFee(t *testing.T) {
	rs := baseRuleset("100", 1)
	rs.Rules = []Rule{{ID: 1, Name: "pune", ConditionType: ConditionCity, ConditionValue: "Pune", AdjustmentType: AdjustFlatFee, AdjustmentValue: d("50"), Priority: 1, IsActive: true}}

	q, err := Calculate(Request{UseFilters: true, Filters: models.Filters{City: "Pune"}, Quantity: 1}, rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.PerLeadPrice.Equal(d("150")) || !q.Subtotal.Equal(d("150")) || q.TotalPrice != 150 {
		t.Fatalf("expected 150/150/150, got %s/%s/%d", q.PerLeadPrice, q.Subtotal, q.TotalPrice)
	}
	if len(q.Adjustments) != 1 || !q.Adjustments[0].Amount.Equal(d("50")) {
		t.Fatalf("expected one +50 adjustment, got %+v", q.Adjustments)
	}
}

func TestCalculateAppliesRulesByPriorityNotDeclaration(t *testing.T) {
	rs := baseRuleset("100", 1)
	rs.Rules = []Rule{
		{ID: 1, Name: "double", ConditionType: ConditionBrand, ConditionValue: "Honda", AdjustmentType: AdjustMultiplier, AdjustmentValue: d("2"), Priority: 20, IsActive: true},
		{ID: 2, Name: "fee", ConditionType: ConditionCity, ConditionValue: "Pune", AdjustmentType: AdjustFlatFee, AdjustmentValue: d("50"), Priority: 10, IsActive: true},
	}

	q, err := Calculate(Request{UseFilters: true, Filters: models.Filters{City: "Pune", Brand: "Honda"}, Quantity: 1}, rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.TotalPrice != 300 {
		t.Fatalf("expected (100+50)*2 = 300, got %d", q.TotalPrice)
	}
	if q.Adjustments[0].RuleName != "fee" || q.Adjustments[1].RuleName != "double" {
		t.Fatalf("unexpected application order %+v", q.Adjustments)
	}
}

func TestCalculateEqualPriorityKeepsDeclarationOrder(t *testing.T) {
	rs := baseRuleset("100", 1)
	rs.Rules = []Rule{
		{ID: 7, Name: "first", ConditionType: ConditionCity, ConditionValue: "Pune", AdjustmentType: AdjustMultiplier, AdjustmentValue: d("2"), Priority: 5, IsActive: true},
		{ID: 3, Name: "second", ConditionType: ConditionBrand, ConditionValue: "Honda", AdjustmentType: AdjustFlatFee, AdjustmentValue: d("10"), Priority: 5, IsActive: true},
	}
	q, err := Calculate(Request{UseFilters: true, Filters: models.Filters{City: "Pune", Brand: "Honda"}, Quantity: 1}, rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.TotalPrice != 210 {
		t.Fatalf("expected 100*2+10 = 210, got %d", q.TotalPrice)
	}
}

func TestCalculateNoMatchingRulesUsesFilteredPrice(t *testing.T) {
	rs := baseRuleset("100", 1)
	rs.Config.FilteredSurcharge = d("20")
	rs.Config.FilteredMultiplier = d("1.5")
	rs.Rules = []Rule{
		{ID: 1, Name: "mumbai", ConditionType: ConditionCity, ConditionValue: "Mumbai", AdjustmentType: AdjustFlatFee, AdjustmentValue: d("50"), Priority: 1, IsActive: true},
		{ID: 2, Name: "inactive", ConditionType: ConditionCity, ConditionValue: "Pune", AdjustmentType: AdjustFlatFee, AdjustmentValue: d("50"), Priority: 1, IsActive: false},
		{ID: 3, Name: "case", ConditionType: ConditionCity, ConditionValue: "pune", AdjustmentType: AdjustFlatFee, AdjustmentValue: d("50"), Priority: 1, IsActive: true},
	}

	q, err := Calculate(Request{UseFilters: true, Filters: models.Filters{City: "Pune"}, Quantity: 2}, rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.HasFilters || !q.PerLeadPrice.Equal(d("180")) || q.TotalPrice != 360 {
		t.Fatalf("expected (100+20)*1.5 = 180 per lead, got %+v", q)
	}
	if len(q.Adjustments) != 0 {
		t.Fatalf("expected no adjustments, got %+v", q.Adjustments)
	}
}

func TestCalculateDisabledToggleSkipsSurcharge(t *testing.T) {
	rs := baseRuleset("100", 1)
	rs.Config.FilteredSurcharge = d("20")
	rs.Config.Toggles.City = false

	q, err := Calculate(Request{UseFilters: true, Filters: models.Filters{City: "Pune"}, Quantity: 1}, rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.HasFilters || q.TotalPrice != 100 {
		t.Fatalf("expected base price with toggle disabled, got %+v", q)
	}
}

func TestCalculateFilteredAndUnfilteredRules(t *testing.T) {
	rs := baseRuleset("100", 1)
	rs.Rules = []Rule{
		{ID: 1, Name: "filtered", ConditionType: ConditionFiltered, AdjustmentType: AdjustPercentage, AdjustmentValue: d("50"), Priority: 1, IsActive: true},
		{ID: 2, Name: "firehose", ConditionType: ConditionUnfiltered, AdjustmentType: AdjustPercentage, AdjustmentValue: d("-20"), Priority: 1, IsActive: true},
	}

	filtered, err := Calculate(Request{UseFilters: true, Filters: models.Filters{Model: "Activa"}, Quantity: 1}, rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filtered.TotalPrice != 150 {
		t.Fatalf("expected filtered rule only, got %d", filtered.TotalPrice)
	}

	unfiltered, err := Calculate(Request{UseFilters: false, Filters: models.Filters{Model: "Activa"}, Quantity: 1}, rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if unfiltered.TotalPrice != 80 || unfiltered.HasFilters {
		t.Fatalf("expected useFilters=false to price as unfiltered, got %+v", unfiltered)
	}
}

func TestCalculateDisabledToggleStillCountsAsFiltered(t *testing.T) {
	rs := baseRuleset("100", 1)
	rs.Config.FilteredSurcharge = d("50")
	rs.Config.Toggles.City = false
	rs.Rules = []Rule{
		{ID: 1, Name: "pune", ConditionType: ConditionCity, ConditionValue: "Pune", AdjustmentType: AdjustFlatFee, AdjustmentValue: d("10"), Priority: 1, IsActive: true},
		{ID: 2, Name: "filtered", ConditionType: ConditionFiltered, AdjustmentType: AdjustFlatFee, AdjustmentValue: d("20"), Priority: 2, IsActive: true},
		{ID: 3, Name: "firehose", ConditionType: ConditionUnfiltered, AdjustmentType: AdjustFlatFee, AdjustmentValue: d("-30"), Priority: 3, IsActive: true},
	}

	q, err := Calculate(Request{UseFilters: true, Filters: models.Filters{City: "Pune"}, Quantity: 1}, rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var names []string
	for _, a := range q.Adjustments {
		names = append(names, a.RuleName)
	}
	if !reflect.DeepEqual(names, []string{"pune", "filtered"}) {
		t.Fatalf("expected pune and filtered rules, got %v", names)
	}
	if q.HasFilters || q.TotalPrice != 130 {
		t.Fatalf("expected no surcharge and total 130, got %+v", q)
	}
}

func TestCalculateFlatBulkTierUnbounded(t *testing.T) {
	rs := baseRuleset("100", 1)
	rs.Tiers = []BulkTier{{ID: 4, MinQuantity: 10, MaxQuantity: nil, DiscountType: DiscountFlat, DiscountValue: d("500"), Priority: 1, IsActive: true}}

	q, err := Calculate(Request{Quantity: 10}, rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Subtotal.Equal(d("1000")) || !q.BulkDiscount.Equal(d("500")) || q.TotalPrice != 500 {
		t.Fatalf("expected 1000-500=500, got %s-%s=%d", q.Subtotal, q.BulkDiscount, q.TotalPrice)
	}

	q, err = Calculate(Request{Quantity: 10000}, rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.BulkTierID != 4 {
		t.Fatalf("unbounded tier should match large quantities")
	}
}

func TestCalculateOverlappingTiersHigherPriorityWins(t *testing.T) {
	low := BulkTier{ID: 1, MinQuantity: 10, MaxQuantity: intPtr(50), DiscountType: DiscountPercentage, DiscountValue: d("5"), Priority: 1, IsActive: true}
	high := BulkTier{ID: 2, MinQuantity: 20, MaxQuantity: intPtr(30), DiscountType: DiscountPercentage, DiscountValue: d("15"), Priority: 9, IsActive: true}

	for name, tiers := range map[string][]BulkTier{
		"high declared last":  {low, high},
		"high declared first": {high, low},
	} {
		rs := baseRuleset("100", 1)
		rs.Tiers = tiers
		q, err := Calculate(Request{Quantity: 20}, rs)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		if q.BulkTierID != 2 || q.TotalPrice != 1700 {
			t.Fatalf("%s: expected tier 2 and total 1700, got tier %d total %d", name, q.BulkTierID, q.TotalPrice)
		}
	}
}

func TestCalculateTierTieBreakPrefersLargerMinimum(t *testing.T) {
	rs := baseRuleset("10", 1)
	rs.Tiers = []BulkTier{
		{ID: 1, MinQuantity: 10, DiscountType: DiscountFlat, DiscountValue: d("10"), Priority: 3, IsActive: true},
		{ID: 2, MinQuantity: 20, DiscountType: DiscountFlat, DiscountValue: d("30"), Priority: 3, IsActive: true},
	}
	q, err := Calculate(Request{Quantity: 25}, rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.BulkTierID != 2 {
		t.Fatalf("expected the more specific tier, got %d", q.BulkTierID)
	}
}

func TestCalculateNegativeAdjustmentsClampOnlyTheTotal(t *testing.T) {
	rs := baseRuleset("10", 1)
	rs.Rules = []Rule{
		{ID: 1, Name: "promo", ConditionType: ConditionCity, ConditionValue: "Pune", AdjustmentType: AdjustFlatFee, AdjustmentValue: d("-25"), Priority: 1, IsActive: true},
		{ID: 2, Name: "surge", ConditionType: ConditionBrand, ConditionValue: "Honda", AdjustmentType: AdjustFlatFee, AdjustmentValue: d("5"), Priority: 2, IsActive: true},
	}
	rs.Tiers = []BulkTier{{ID: 1, MinQuantity: 1, DiscountType: DiscountFlat, DiscountValue: d("100"), Priority: 1, IsActive: true}}

	q, err := Calculate(Request{UseFilters: true, Filters: models.Filters{City: "Pune", Brand: "Honda"}, Quantity: 2}, rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.PerLeadPrice.Equal(d("-10")) {
		t.Fatalf("per-step prices must not be floored, got %s", q.PerLeadPrice)
	}
	if !q.BulkDiscount.IsZero() || q.TotalPrice != 0 {
		t.Fatalf("expected zero discount and total clamped at 0, got %s / %d", q.BulkDiscount, q.TotalPrice)
	}
}

func TestCalculateRoundsHalfUp(t *testing.T) {
	rs := baseRuleset("2.5", 1)
	q, err := Calculate(Request{Quantity: 1}, rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.TotalPrice != 3 {
		t.Fatalf("expected 2.5 to round to 3, got %d", q.TotalPrice)
	}
	rs.Config.BaseLeadPrice = d("2.49")
	q, _ = Calculate(Request{Quantity: 1}, rs)
	if q.TotalPrice != 2 {
		t.Fatalf("expected 2.49 to round to 2, got %d", q.TotalPrice)
	}
}

func TestCalculateDateRangeRule(t *testing.T) {
	rs := baseRuleset("100", 1)
	rs.Rules = []Rule{{ID: 1, Name: "fresh", ConditionType: ConditionDateRange, ConditionValue: "today", AdjustmentType: AdjustMultiplier, AdjustmentValue: d("3"), Priority: 1, IsActive: true}}

	q, err := Calculate(Request{UseFilters: true, Filters: models.Filters{DateRange: "today"}, Quantity: 1}, rs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.TotalPrice != 300 {
		t.Fatalf("expected 300, got %d", q.TotalPrice)
	}
}

package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"dopahiyaa/api_leads/internal/models"
)

type ConditionType string

const (
	ConditionCity       ConditionType = "city"
	ConditionRegion     ConditionType = "region"
	ConditionBrand      ConditionType = "brand"
	ConditionModel      ConditionType = "model"
	ConditionLeadType   ConditionType = "lead_type"
	ConditionDateRange  ConditionType = "date_range"
	ConditionFiltered   ConditionType = "filtered"
	ConditionUnfiltered ConditionType = "unfiltered"
)

func ParseConditionType(s string) (ConditionType, error) {
	switch c := ConditionType(s); c {
	case ConditionCity, ConditionRegion, ConditionBrand, ConditionModel,
		ConditionLeadType, ConditionDateRange, ConditionFiltered, ConditionUnfiltered:
		return c, nil
	}
	return "", fmt.Errorf("unknown pricing condition type %q", s)
}

type AdjustmentType string

const (
	AdjustFlatFee    AdjustmentType = "flat_fee"
	AdjustMultiplier AdjustmentType = "multiplier"
	AdjustPercentage AdjustmentType = "percentage"
)

func ParseAdjustmentType(s string) (AdjustmentType, error) {
	switch a := AdjustmentType(s); a {
	case AdjustFlatFee, AdjustMultiplier, AdjustPercentage:
		return a, nil
	}
	return "", fmt.Errorf("unknown pricing adjustment type %q", s)
}

type DiscountType string

const (
	DiscountFlat       DiscountType = "flat"
	DiscountPercentage DiscountType = "percentage"
)

func ParseDiscountType(s string) (DiscountType, error) {
	switch d := DiscountType(s); d {
	case DiscountFlat, DiscountPercentage:
		return d, nil
	}
	return "", fmt.Errorf("unknown bulk discount type %q", s)
}

// Toggles enable a filter dimension for the filtered surcharge.
type Toggles struct {
	City      bool `json:"city"`
	Region    bool `json:"region"`
	Brand     bool `json:"brand"`
	Model     bool `json:"model"`
	LeadType  bool `json:"leadType"`
	DateRange bool `json:"dateRange"`
}

type Config struct {
	BaseLeadPrice      decimal.Decimal `json:"baseLeadPrice"`
	FilteredSurcharge  decimal.Decimal `json:"filteredSurcharge"`
	FilteredMultiplier decimal.Decimal `json:"filteredMultiplier"`
	MinPurchaseQty     int             `json:"minPurchaseQty"`
	Toggles            Toggles         `json:"toggles"`
}

func DefaultConfig() Config {
	return Config{
		BaseLeadPrice:      decimal.NewFromInt(1),
		FilteredSurcharge:  decimal.Zero,
		FilteredMultiplier: decimal.NewFromInt(1),
		MinPurchaseQty:     10,
		Toggles:            Toggles{City: true, Region: true, Brand: true, Model: true, LeadType: true, DateRange: true},
	}
}

type Rule struct {
	ID              int64           `json:"id"`
	Name            string          `json:"name"`
	ConditionType   ConditionType   `json:"conditionType"`
	ConditionValue  string          `json:"conditionValue,omitempty"`
	AdjustmentType  AdjustmentType  `json:"adjustmentType"`
	AdjustmentValue decimal.Decimal `json:"adjustmentValue"`
	Priority        int             `json:"priority"`
	IsActive        bool            `json:"isActive"`
}

type BulkTier struct {
	ID            int64           `json:"id"`
	Name          string          `json:"name,omitempty"`
	MinQuantity   int             `json:"minQuantity"`
	MaxQuantity   *int            `json:"maxQuantity,omitempty"`
	DiscountType  DiscountType    `json:"discountType"`
	DiscountValue decimal.Decimal `json:"discountValue"`
	Priority      int             `json:"priority"`
	IsActive      bool            `json:"isActive"`
}

func (t BulkTier) covers(quantity int) bool {
	if quantity < t.MinQuantity {
		return false
	}
	return t.MaxQuantity == nil || quantity <= *t.MaxQuantity
}

// Ruleset is everything Calculate needs besides the request. Rules and
// Tiers are kept in insertion order.
type Ruleset struct {
	Config Config     `json:"config"`
	Rules  []Rule     `json:"rules"`
	Tiers  []BulkTier `json:"tiers"`
}

type Request struct {
	UseFilters bool
	Filters    models.Filters
	Quantity   int
}

type Adjustment struct {
	RuleID         int64           `json:"ruleId"`
	RuleName       string          `json:"ruleName"`
	ConditionType  ConditionType   `json:"conditionType"`
	AdjustmentType AdjustmentType  `json:"adjustmentType"`
	Amount         decimal.Decimal `json:"amount"`
}

type Quote struct {
	BasePrice    decimal.Decimal `json:"basePrice"`
	HasFilters   bool            `json:"hasFilters"`
	PerLeadPrice decimal.Decimal `json:"perLeadPrice"`
	Quantity     int             `json:"quantity"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Adjustments  []Adjustment    `json:"adjustments"`
	BulkDiscount decimal.Decimal `json:"bulkDiscount"`
	BulkTierID   int64           `json:"bulkTierId,omitempty"`
	TotalPrice   int64           `json:"totalPrice"`
	MinQuantity  int             `json:"minQuantity"`
}

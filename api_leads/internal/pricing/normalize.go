package pricing

import (
	"math"
	"strings"

	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/api_leads/internal/models"
)

// Input is a price or purchase request as callers send it.
type Input struct {
	UseFilters *bool    `json:"useFilters,omitempty"`
	City       string   `json:"city,omitempty"`
	Region     string   `json:"region,omitempty"`
	Brand      string   `json:"brand,omitempty"`
	Model      string   `json:"model,omitempty"`
	LeadType   string   `json:"leadType,omitempty"`
	DateRange  string   `json:"dateRange,omitempty"`
	StartDate  string   `json:"startDate,omitempty"`
	EndDate    string   `json:"endDate,omitempty"`
	Quantity   *float64 `json:"quantity,omitempty"`
}

// Normalize trims values, treats "all"/"any" as unset and floors the quantity.
// A missing quantity becomes 1; negative or non-finite quantities are rejected.
func Normalize(in Input) (Request, error) {
	quantity := 1
	if in.Quantity != nil {
		q := *in.Quantity
		if math.IsNaN(q) || math.IsInf(q, 0) || q < 0 || q > math.MaxInt32 {
			return Request{}, errs.Invalid("quantity must be a non-negative number")
		}
		if f := int(math.Floor(q)); f > 1 {
			quantity = f
		}
	}

	useFilters := true
	if in.UseFilters != nil {
		useFilters = *in.UseFilters
	}
	req := Request{UseFilters: useFilters, Quantity: quantity}
	if !useFilters {
		return req, nil
	}

	req.Filters = models.Filters{
		City:      NormalizeText(in.City),
		Region:    NormalizeText(in.Region),
		Brand:     NormalizeText(in.Brand),
		Model:     NormalizeText(in.Model),
		LeadType:  NormalizeText(in.LeadType),
		DateRange: NormalizeText(in.DateRange),
		StartDate: NormalizeText(in.StartDate),
		EndDate:   NormalizeText(in.EndDate),
	}
	return req, nil
}

func NormalizeText(v string) string {
	v = strings.TrimSpace(v)
	switch strings.ToLower(v) {
	case "all", "any":
		return ""
	}
	return v
}

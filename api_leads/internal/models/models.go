package models

import (
	"strings"
	"time"
)

type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusAllocated LeadStatus = "allocated"
	LeadStatusUnlocked  LeadStatus = "unlocked"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusConverted LeadStatus = "converted"
	LeadStatusClosed    LeadStatus = "closed"
)

const DefaultLeadType = "buy_used"

func (s LeadStatus) rank() int {
	switch s {
	case LeadStatusNew:
		return 0
	case LeadStatusAllocated:
		return 1
	case LeadStatusUnlocked:
		return 2
	case LeadStatusContacted:
		return 3
	case LeadStatusConverted, LeadStatusClosed:
		return 4
	default:
		return -1
	}
}

func (s LeadStatus) Valid() bool { return s.rank() >= 0 }

// Terminal statuses accept no further transitions.
func (s LeadStatus) Terminal() bool {
	return s == LeadStatusConverted || s == LeadStatusClosed
}

// CanAdvanceTo reports whether moving from s to next is a forward move.
// Statuses never revert; contacted may still become converted or closed.
func (s LeadStatus) CanAdvanceTo(next LeadStatus) bool {
	if !s.Valid() || !next.Valid() || s.Terminal() {
		return false
	}
	return next.rank() > s.rank()
}

// LeadAttributes are frozen on the lead at creation time.
type LeadAttributes struct {
	City     string `json:"city,omitempty"`
	Region   string `json:"region,omitempty"`
	Brand    string `json:"brand,omitempty"`
	Model    string `json:"model,omitempty"`
	LeadType string `json:"leadType,omitempty"`
}

type Lead struct {
	ID         string         `json:"id"`
	ListingID  string         `json:"listingId"`
	BuyerID    string         `json:"buyerId"`
	Message    string         `json:"message,omitempty"`
	Status     LeadStatus     `json:"status"`
	Attributes LeadAttributes `json:"attributes"`
	CreatedAt  time.Time      `json:"createdAt"`
}

type Listing struct {
	ID       string `json:"id"`
	SellerID string `json:"sellerId"`
	Title    string `json:"title"`
	City     string `json:"city"`
	Make     string `json:"make"`
	Model    string `json:"model"`
	LeadType string `json:"leadType,omitempty"`
}

type Profile struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Role     string `json:"role"`
	// BusinessName is set for dealers.
	BusinessName string `json:"businessName,omitempty"`
}

// DisplayName prefers the business name, then the full name, then fallback.
func (p Profile) DisplayName(fallback string) string {
	if name := strings.TrimSpace(p.BusinessName); name != "" {
		return name
	}
	if name := strings.TrimSpace(p.FullName); name != "" {
		return name
	}
	return fallback
}

// Filters is the dimension set shared by price requests and subscriptions.
// An empty string means "any".
type Filters struct {
	City      string `json:"city,omitempty"`
	Region    string `json:"region,omitempty"`
	Brand     string `json:"brand,omitempty"`
	Model     string `json:"model,omitempty"`
	LeadType  string `json:"leadType,omitempty"`
	DateRange string `json:"dateRange,omitempty"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
}

// Specificity counts the dimensions that are not "any".
func (f Filters) Specificity() int {
	n := 0
	for _, v := range []string{f.City, f.Region, f.Brand, f.Model, f.LeadType} {
		if v != "" {
			n++
		}
	}
	if f.HasDateFilter() {
		n++
	}
	return n
}

func (f Filters) HasDateFilter() bool {
	return f.DateRange != "" || f.StartDate != "" || f.EndDate != ""
}

func (f Filters) IsEmpty() bool { return f.Specificity() == 0 }

type Subscription struct {
	ID             string     `json:"id"`
	DealerID       string     `json:"dealerId"`
	Filters        Filters    `json:"filters"`
	WindowStart    *time.Time `json:"windowStart,omitempty"`
	WindowEnd      *time.Time `json:"windowEnd,omitempty"`
	QuotaTotal     int        `json:"quotaTotal"`
	QuotaRemaining int        `json:"quotaRemaining"`
	PricePaid      int64      `json:"pricePaid"`
	IdempotencyKey string     `json:"idempotencyKey"`
	IsActive       bool       `json:"isActive"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// DealerLead is one entry of a dealer's inbox: a lead that was allocated to
// the dealer, unlocked by the dealer, or both.
type DealerLead struct {
	Lead         Lead       `json:"lead"`
	ListingTitle string     `json:"listingTitle,omitempty"`
	AllocatedAt  *time.Time `json:"allocatedAt,omitempty"`
	UnlockedAt   *time.Time `json:"unlockedAt,omitempty"`
}

func (d DealerLead) Unlocked() bool { return d.UnlockedAt != nil }

// DealerLeadQuery selects a page of a dealer's inbox, newest lead first. An
// empty Status matches every status.
type DealerLeadQuery struct {
	DealerID     string
	Status       LeadStatus
	UnlockedOnly bool
	Limit        int
	Offset       int
}

type UnlockEvent struct {
	LeadID      string    `json:"leadId"`
	DealerID    string    `json:"dealerId"`
	CostCredits int64     `json:"costCredits"`
	UnlockedAt  time.Time `json:"unlockedAt"`
}

type AllocatedDealer struct {
	DealerID       string `json:"dealerId"`
	SubscriptionID string `json:"subscriptionId"`
}

type AllocationResult struct {
	LeadID    string            `json:"leadId"`
	Allocated []AllocatedDealer `json:"allocated"`
	// AlreadyAttempted is set when the per-lead marker existed before this call.
	AlreadyAttempted bool      `json:"alreadyAttempted"`
	AttemptedAt      time.Time `json:"attemptedAt"`
}

// AllocationFailure is logged whenever a lead ends up with no recipients.
type AllocationFailure struct {
	LeadID       string         `json:"leadId"`
	Source       string         `json:"source"`
	Attributes   LeadAttributes `json:"attributes"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}

type Notification struct {
	UserID  string
	Title   string
	Message string
	Type    string
}

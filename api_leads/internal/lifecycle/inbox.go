package lifecycle

import (
	"context"
	"strings"

	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/api_leads/internal/models"
)

const (
	defaultInboxLimit = 20
	maxInboxLimit     = 100
)

// InboxQuery selects a page of a dealer's leads. Page counts from 1.
type InboxQuery struct {
	Status       string
	UnlockedOnly bool
	Page         int
	Limit        int
}

// InboxLead carries buyer identity and contact only once the dealer has
// unlocked the lead.
type InboxLead struct {
	models.DealerLead
	Contact *Contact `json:"contact,omitempty"`
}

type LeadInbox struct {
	Leads      []InboxLead `json:"leads"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"totalPages"`
}

// ListDealerLeads returns the leads allocated to or unlocked by the dealer,
// newest first, so allocations missed on the live feed can be found again.
func (c *Coordinator) ListDealerLeads(ctx context.Context, dealerID string, q InboxQuery) (LeadInbox, error) {
	dealerID = strings.TrimSpace(dealerID)
	if dealerID == "" {
		return LeadInbox{}, errs.Invalid("dealerId is required")
	}

	status := models.LeadStatus(strings.ToLower(strings.TrimSpace(q.Status)))
	if status == "all" {
		status = ""
	}
	if status != "" && !status.Valid() {
		return LeadInbox{}, errs.Invalid("unknown lead status").With("status", q.Status)
	}
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.Limit <= 0:
		q.Limit = defaultInboxLimit
	case q.Limit > maxInboxLimit:
		q.Limit = maxInboxLimit
	}

	rows, total, err := c.Store.ListDealerLeads(ctx, models.DealerLeadQuery{
		DealerID:     dealerID,
		Status:       status,
		UnlockedOnly: q.UnlockedOnly,
		Limit:        q.Limit,
		Offset:       (q.Page - 1) * q.Limit,
	})
	if err != nil {
		return LeadInbox{}, storeErr(err)
	}

	out := LeadInbox{
		Leads:      make([]InboxLead, 0, len(rows)),
		Total:      total,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: (total + q.Limit - 1) / q.Limit,
	}
	for _, row := range rows {
		entry := InboxLead{DealerLead: row}
		if row.Unlocked() {
			entry.Contact = c.contactFor(ctx, row.Lead.BuyerID)
		} else {
			entry.Lead.BuyerID = ""
			entry.Lead.Message = ""
		}
		out.Leads = append(out.Leads, entry)
	}
	return out, nil
}

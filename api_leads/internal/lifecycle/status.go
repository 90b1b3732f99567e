package lifecycle

import (
	"context"
	"strings"

	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/api_leads/internal/events"
	"dopahiyaa/api_leads/internal/models"
)

// AdvanceLeadStatus moves a lead forward to contacted, converted or closed.
// Dealers may only touch leads they unlocked; moving backwards fails with
// INVALID_TRANSITION and repeating the current status is a no-op.
func (c *Coordinator) AdvanceLeadStatus(ctx context.Context, actor Actor, leadID string, next models.LeadStatus) (models.Lead, error) {
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return models.Lead{}, errs.Invalid("leadId is required")
	}
	switch next {
	case models.LeadStatusContacted, models.LeadStatusConverted, models.LeadStatusClosed:
	default:
		return models.Lead{}, errs.Invalid("status must be one of contacted, converted, closed")
	}

	lead, err := c.Store.GetLead(ctx, leadID)
	if err != nil {
		return models.Lead{}, storeErr(err)
	}
	if !actor.IsAdmin() {
		if _, found, err := c.Store.FindUnlock(ctx, leadID, actor.UserID); err != nil {
			return models.Lead{}, storeErr(err)
		} else if !found {
			return models.Lead{}, errs.ErrLeadNotFound
		}
	}

	for attempt := 0; attempt < 3; attempt++ {
		if lead.Status == next {
			return lead, nil
		}
		if !lead.Status.CanAdvanceTo(next) {
			return models.Lead{}, errs.ErrInvalidTransition.
				With("from", string(lead.Status)).
				With("to", string(next))
		}
		ok, err := c.Store.UpdateLeadStatus(ctx, leadID, lead.Status, next)
		if err != nil {
			return models.Lead{}, storeErr(err)
		}
		if ok {
			from := lead.Status
			lead.Status = next
			c.Logger.WithField("lead_id", leadID).
				WithField("from", from).
				WithField("to", next).
				Info("Lead status advanced")
			c.background(ctx, "publish_status", func(ctx context.Context) error {
				c.publish(ctx, events.Event{
					Type:     events.LeadStatusChanged,
					LeadID:   leadID,
					DealerID: actor.UserID,
					Data:     map[string]any{"from": from, "to": next},
				})
				return nil
			})
			return lead, nil
		}
		if lead, err = c.Store.GetLead(ctx, leadID); err != nil {
			return models.Lead{}, storeErr(err)
		}
	}
	return models.Lead{}, errs.ErrConcurrentUpdateConflict
}

package lifecycle

import (
	"context"
	"errors"
	"strings"
	"time"

	"dopahiyaa/api_leads/internal/credits"
	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/api_leads/internal/events"
	"dopahiyaa/api_leads/internal/models"
	"dopahiyaa/api_leads/internal/notify"
	"dopahiyaa/pkg/logging"
)

// Contact is the buyer detail a dealer pays to see.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type UnlockResult struct {
	Success          bool      `json:"success"`
	LeadID           string    `json:"leadId"`
	CreditsRemaining int64     `json:"creditsRemaining"`
	Cost             int64     `json:"cost"`
	AlreadyUnlocked  bool      `json:"alreadyUnlocked"`
	UnlockedAt       time.Time `json:"unlockedAt"`
	Contact          *Contact  `json:"contact,omitempty"`
}

// UnlockLead charges the dealer once per lead and reveals the buyer contact.
// Repeat calls report AlreadyUnlocked and cost nothing.
func (c *Coordinator) UnlockLead(ctx context.Context, dealerID, leadID string) (UnlockResult, error) {
	res, err := c.unlockLead(ctx, strings.TrimSpace(dealerID), strings.TrimSpace(leadID))
	switch {
	case err != nil:
		c.Metrics.IncUnlock(statusLabel(err))
	case res.AlreadyUnlocked:
		c.Metrics.IncUnlock("already_unlocked")
	default:
		c.Metrics.IncUnlock("success")
	}
	return res, err
}

func (c *Coordinator) unlockLead(ctx context.Context, dealerID, leadID string) (UnlockResult, error) {
	if dealerID == "" || leadID == "" {
		return UnlockResult{}, errs.Invalid("dealerId and leadId are required")
	}
	log := c.Logger.WithFields(logging.Fields{"lead_id": leadID, "dealer_id": dealerID})

	lead, err := c.Store.GetLead(ctx, leadID)
	if err != nil {
		return UnlockResult{}, storeErr(err)
	}

	existing, found, err := c.Store.FindUnlock(ctx, leadID, dealerID)
	if err != nil {
		return UnlockResult{}, storeErr(err)
	}
	if found {
		return c.alreadyUnlocked(ctx, lead, existing), nil
	}

	cost := c.unlockCost(ctx)
	ev := models.UnlockEvent{LeadID: leadID, DealerID: dealerID, CostCredits: cost, UnlockedAt: c.now().UTC()}

	debit, err := c.Ledger.DebitWithRollback(ctx, dealerID, cost, credits.ReasonLeadUnlock, leadID, func(ctx context.Context) error {
		return c.Store.InsertUnlock(ctx, ev)
	})
	if err != nil {
		var rb *credits.RollbackError
		if !errors.As(err, &rb) {
			return UnlockResult{}, storeErr(err)
		}
		if errors.Is(rb.Cause, errs.ErrAlreadyExists) {
			// A concurrent request for the same pair recorded first.
			if prior, ok, findErr := c.Store.FindUnlock(ctx, leadID, dealerID); findErr == nil && ok {
				log.Info("Concurrent unlock lost the race, charge refunded")
				return c.alreadyUnlocked(ctx, lead, prior), nil
			}
		}
		log.WithError(rb.Cause).WithField("compensated", rb.Compensated).Error("Unlock recording failed")
		return UnlockResult{}, errs.ErrUnlockRecordingFailed.With("refunded", rb.Compensated).Wrap(rb.Cause)
	}

	c.markUnlocked(ctx, lead, log)
	log.WithFields(logging.Fields{"cost": cost, "balance": debit.NewBalance}).Info("Lead unlocked")

	unlocked := lead
	c.background(ctx, "notify_unlock", func(ctx context.Context) error {
		c.notifyUnlock(ctx, unlocked, dealerID)
		c.publish(ctx, events.Event{
			Type:     events.LeadUnlocked,
			LeadID:   leadID,
			DealerID: dealerID,
			Data:     map[string]any{"cost": cost, "balance": debit.NewBalance},
		})
		c.pushFeed(ctx, feedItem(events.LeadUnlocked, unlocked), dealerID)
		return nil
	})

	return UnlockResult{
		Success:          true,
		LeadID:           leadID,
		CreditsRemaining: debit.NewBalance,
		Cost:             cost,
		UnlockedAt:       ev.UnlockedAt,
		Contact:          c.contactFor(ctx, lead.BuyerID),
	}, nil
}

func (c *Coordinator) alreadyUnlocked(ctx context.Context, lead models.Lead, ev models.UnlockEvent) UnlockResult {
	res := UnlockResult{
		Success:         true,
		LeadID:          lead.ID,
		AlreadyUnlocked: true,
		UnlockedAt:      ev.UnlockedAt,
		Contact:         c.contactFor(ctx, lead.BuyerID),
	}
	if balance, err := c.Ledger.Balance(ctx, ev.DealerID); err == nil {
		res.CreditsRemaining = balance
	}
	return res
}

func (c *Coordinator) unlockCost(ctx context.Context) int64 {
	price, ok, err := c.Store.UnlockPrice(ctx)
	if err != nil {
		c.Logger.WithError(err).Warn("Unlock price lookup failed, using default")
		return c.unlockPrice
	}
	if !ok {
		return c.unlockPrice
	}
	return price
}

// markUnlocked moves the lead to unlocked from new or allocated. A lead
// already further along is left alone.
func (c *Coordinator) markUnlocked(ctx context.Context, lead models.Lead, log logging.Entry) {
	for attempt := 0; attempt < 3; attempt++ {
		if lead.Status != models.LeadStatusNew && lead.Status != models.LeadStatusAllocated {
			return
		}
		ok, err := c.Store.UpdateLeadStatus(ctx, lead.ID, lead.Status, models.LeadStatusUnlocked)
		if err != nil {
			log.WithError(err).Warn("Failed to mark lead unlocked")
			return
		}
		if ok {
			return
		}
		if lead, err = c.Store.GetLead(ctx, lead.ID); err != nil {
			log.WithError(err).Warn("Failed to re-read lead status")
			return
		}
	}
}

func (c *Coordinator) contactFor(ctx context.Context, buyerID string) *Contact {
	p, err := c.Store.GetProfile(ctx, buyerID)
	if err != nil {
		return nil
	}
	return &Contact{Name: p.DisplayName("Buyer"), Phone: p.Phone, Email: p.Email}
}

func (c *Coordinator) notifyUnlock(ctx context.Context, lead models.Lead, dealerID string) {
	if c.Notifier == nil {
		return
	}
	bike := "Bike"
	if listing, err := c.Store.GetListing(ctx, lead.ListingID); err == nil && strings.TrimSpace(listing.Title) != "" {
		bike = listing.Title
	}
	buyer, buyerErr := c.Store.GetProfile(ctx, lead.BuyerID)
	dealer, dealerErr := c.Store.GetProfile(ctx, dealerID)

	if dealerErr == nil {
		c.Notifier.NotifyProfile(ctx, dealer, notify.TemplateLeadUnlocked, buyer.DisplayName("Buyer"), bike)
	}
	if buyerErr == nil {
		c.Notifier.NotifyProfile(ctx, buyer, notify.TemplateBuyerUnlocked, dealer.DisplayName("A dealer"), bike)
	}
}

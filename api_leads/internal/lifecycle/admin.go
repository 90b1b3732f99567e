package lifecycle

import (
	"context"
	"strings"

	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/api_leads/internal/models"
)

const maxReconciliationPage = 200

func (c *Coordinator) Balance(ctx context.Context, dealerID string) (int64, error) {
	if strings.TrimSpace(dealerID) == "" {
		return 0, errs.Invalid("dealerId is required")
	}
	balance, err := c.Ledger.Balance(ctx, dealerID)
	if err != nil {
		return 0, storeErr(err)
	}
	return balance, nil
}

// ListReconciliations returns compensation failures, oldest first. An empty
// status lists open records.
func (c *Coordinator) ListReconciliations(ctx context.Context, status string, limit int) ([]models.ReconciliationEvent, error) {
	switch status {
	case "":
		status = models.ReconciliationOpen
	case models.ReconciliationOpen, models.ReconciliationResolved, "all":
	default:
		return nil, errs.Invalid("status must be open, resolved or all")
	}
	if status == "all" {
		status = ""
	}
	if limit <= 0 || limit > maxReconciliationPage {
		limit = maxReconciliationPage
	}
	out, err := c.Store.ListReconciliations(ctx, status, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}

// ResolveReconciliation closes a record once an operator has fixed the balance.
func (c *Coordinator) ResolveReconciliation(ctx context.Context, actor Actor, id, note string) (models.ReconciliationEvent, error) {
	id, note = strings.TrimSpace(id), strings.TrimSpace(note)
	if id == "" {
		return models.ReconciliationEvent{}, errs.Invalid("id is required")
	}
	if note == "" {
		return models.ReconciliationEvent{}, errs.Invalid("a resolution note is required")
	}
	ev, err := c.Store.ResolveReconciliation(ctx, id, note, c.now().UTC())
	if err != nil {
		return models.ReconciliationEvent{}, storeErr(err)
	}
	c.Logger.WithField("reconciliation_id", id).
		WithField("resolved_by", actor.UserID).
		WithField("dealer_id", ev.DealerID).
		Info("Reconciliation resolved")
	return ev, nil
}

// RefreshPricing drops the cached catalogue on every instance.
func (c *Coordinator) RefreshPricing(ctx context.Context, actor Actor) error {
	if err := c.Pricer.Invalidate(ctx, actor.UserID); err != nil {
		return errs.ErrStoreUnavailable.Wrap(err)
	}
	return nil
}

package lifecycle

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"dopahiyaa/api_leads/internal/allocation"
	"dopahiyaa/api_leads/internal/credits"
	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/api_leads/internal/events"
	"dopahiyaa/api_leads/internal/models"
	"dopahiyaa/api_leads/internal/pricing"
	"dopahiyaa/pkg/logging"
)

// CalculatePrice normalizes the input and prices it against the live catalogue.
func (c *Coordinator) CalculatePrice(ctx context.Context, in pricing.Input) (pricing.Quote, error) {
	req, err := pricing.Normalize(in)
	if err != nil {
		return pricing.Quote{}, err
	}
	q, _, err := c.Pricer.Quote(ctx, req)
	if err != nil {
		return pricing.Quote{}, storeErr(err)
	}
	return q, nil
}

type PurchaseRequest struct {
	DealerID string
	Input    pricing.Input
	// ExpectedTotalPrice is the total the dealer was shown.
	ExpectedTotalPrice *int64
	// IdempotencyKey makes retries safe; one is generated when empty.
	IdempotencyKey string
}

type PurchaseResult struct {
	Subscription    models.Subscription `json:"subscription"`
	SubscriptionID  string              `json:"subscriptionId"`
	DeductedCredits int64               `json:"deductedCredits"`
	NewBalance      int64               `json:"newBalance"`
	Quote           *pricing.Quote      `json:"quote,omitempty"`
	CurrentPrice    int64               `json:"currentPrice"`
	// Replayed is set when the idempotency key matched an earlier purchase.
	Replayed bool `json:"replayed"`
}

// PurchaseFilterPack debits the quoted total and creates a subscription with
// a quota of the purchased quantity. The purchase fails with PRICE_MISMATCH
// when the expected total no longer matches the catalogue.
func (c *Coordinator) PurchaseFilterPack(ctx context.Context, req PurchaseRequest) (PurchaseResult, error) {
	res, err := c.purchase(ctx, req)
	switch {
	case err != nil:
		c.Metrics.IncPurchase(statusLabel(err))
	case res.Replayed:
		c.Metrics.IncPurchase("replayed")
	default:
		c.Metrics.IncPurchase("success")
	}
	return res, err
}

func (c *Coordinator) purchase(ctx context.Context, req PurchaseRequest) (PurchaseResult, error) {
	dealerID := strings.TrimSpace(req.DealerID)
	if dealerID == "" {
		return PurchaseResult{}, errs.Invalid("dealerId is required")
	}
	if req.ExpectedTotalPrice == nil {
		return PurchaseResult{}, errs.Invalid("expectedTotalPrice is required")
	}
	key := strings.TrimSpace(req.IdempotencyKey)
	if len(key) > 128 {
		return PurchaseResult{}, errs.Invalid("idempotencyKey must be at most 128 characters")
	}

	if key != "" {
		if prior, found, err := c.Store.FindSubscriptionByKey(ctx, dealerID, key); err != nil {
			return PurchaseResult{}, storeErr(err)
		} else if found {
			return c.replay(ctx, prior), nil
		}
	} else {
		key = uuid.NewString()
	}

	priceReq, err := pricing.Normalize(req.Input)
	if err != nil {
		return PurchaseResult{}, err
	}
	quote, _, err := c.Pricer.Quote(ctx, priceReq)
	if err != nil {
		return PurchaseResult{}, storeErr(err)
	}
	if *req.ExpectedTotalPrice != quote.TotalPrice {
		return PurchaseResult{}, errs.ErrPriceMismatch.
			With("currentPrice", quote.TotalPrice).
			With("expectedPrice", *req.ExpectedTotalPrice)
	}

	now := c.now().UTC()
	start, end, err := allocation.ResolveWindow(priceReq.Filters, now)
	if err != nil {
		return PurchaseResult{}, err
	}

	sub := models.Subscription{
		ID:             uuid.NewString(),
		DealerID:       dealerID,
		Filters:        priceReq.Filters,
		WindowStart:    start,
		WindowEnd:      end,
		QuotaTotal:     quote.Quantity,
		QuotaRemaining: quote.Quantity,
		PricePaid:      quote.TotalPrice,
		IdempotencyKey: key,
		IsActive:       quote.Quantity > 0,
		CreatedAt:      now,
	}
	log := c.Logger.WithFields(logging.Fields{
		"dealer_id":       dealerID,
		"subscription_id": sub.ID,
		"quantity":        quote.Quantity,
		"total":           quote.TotalPrice,
	})

	create := func(ctx context.Context) error { return c.Store.CreateSubscription(ctx, sub) }
	var balance int64
	if quote.TotalPrice == 0 {
		if err := create(ctx); err != nil {
			return c.purchaseRecordFailed(ctx, dealerID, key, err, true, log)
		}
		balance, _ = c.Ledger.Balance(ctx, dealerID)
	} else {
		debit, err := c.Ledger.DebitWithRollback(ctx, dealerID, quote.TotalPrice, credits.ReasonFilterPack, sub.ID, create)
		if err != nil {
			var rb *credits.RollbackError
			if errors.As(err, &rb) {
				return c.purchaseRecordFailed(ctx, dealerID, key, rb.Cause, rb.Compensated, log)
			}
			return PurchaseResult{}, storeErr(err)
		}
		balance = debit.NewBalance
	}
	log.WithField("balance", balance).Info("Filter pack purchased")

	c.background(ctx, "publish_subscription", func(ctx context.Context) error {
		c.publish(ctx, events.Event{
			Type:     events.SubscriptionPurchased,
			DealerID: dealerID,
			Data: map[string]any{
				"subscription_id": sub.ID,
				"filters":         sub.Filters,
				"quantity":        sub.QuotaTotal,
				"price":           sub.PricePaid,
			},
		})
		c.pushFeed(ctx, events.FeedItem{Type: events.SubscriptionPurchased}, dealerID)
		return nil
	})

	return PurchaseResult{
		Subscription:    sub,
		SubscriptionID:  sub.ID,
		DeductedCredits: quote.TotalPrice,
		NewBalance:      balance,
		Quote:           &quote,
		CurrentPrice:    quote.TotalPrice,
	}, nil
}

// purchaseRecordFailed handles a subscription insert that failed after the
// debit. A key collision means a concurrent retry won; its result is returned.
func (c *Coordinator) purchaseRecordFailed(ctx context.Context, dealerID, key string, cause error, refunded bool, log logging.Entry) (PurchaseResult, error) {
	if errors.Is(cause, errs.ErrAlreadyExists) {
		if prior, found, err := c.Store.FindSubscriptionByKey(ctx, dealerID, key); err == nil && found {
			log.Info("Concurrent purchase with the same key, returning earlier subscription")
			return c.replay(ctx, prior), nil
		}
	}
	log.WithError(cause).WithField("refunded", refunded).Error("Subscription recording failed")
	return PurchaseResult{}, errs.ErrStoreUnavailable.With("refunded", refunded).Wrap(cause)
}

func (c *Coordinator) replay(ctx context.Context, sub models.Subscription) PurchaseResult {
	res := PurchaseResult{
		Subscription:   sub,
		SubscriptionID: sub.ID,
		CurrentPrice:   sub.PricePaid,
		Replayed:       true,
	}
	if balance, err := c.Ledger.Balance(ctx, sub.DealerID); err == nil {
		res.NewBalance = balance
	}
	return res
}

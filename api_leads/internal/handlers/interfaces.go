package handlers

import (
	"context"
	"net/http"

	"dopahiyaa/api_leads/internal/lifecycle"
	"dopahiyaa/api_leads/internal/models"
	"dopahiyaa/api_leads/internal/payments"
	"dopahiyaa/api_leads/internal/pricing"
)

// LeadService is the lead core as the HTTP layer sees it.
type LeadService interface {
	CreateInquiry(ctx context.Context, buyerID, listingID, message string) (models.Lead, error)
	UnlockLead(ctx context.Context, dealerID, leadID string) (lifecycle.UnlockResult, error)
	AdvanceLeadStatus(ctx context.Context, actor lifecycle.Actor, leadID string, next models.LeadStatus) (models.Lead, error)
	CalculatePrice(ctx context.Context, in pricing.Input) (pricing.Quote, error)
	PurchaseFilterPack(ctx context.Context, req lifecycle.PurchaseRequest) (lifecycle.PurchaseResult, error)
	Balance(ctx context.Context, dealerID string) (int64, error)
	ListDealerLeads(ctx context.Context, dealerID string, q lifecycle.InboxQuery) (lifecycle.LeadInbox, error)
	ListReconciliations(ctx context.Context, status string, limit int) ([]models.ReconciliationEvent, error)
	ResolveReconciliation(ctx context.Context, actor lifecycle.Actor, id, note string) (models.ReconciliationEvent, error)
	RefreshPricing(ctx context.Context, actor lifecycle.Actor) error
}

type PaymentProcessor interface {
	Handle(ctx context.Context, body []byte, signature string) (payments.Result, error)
}

type FeedServer interface {
	Serve(w http.ResponseWriter, r *http.Request, dealerID string)
}

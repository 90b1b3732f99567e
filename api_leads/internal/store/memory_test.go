package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/api_leads/internal/models"
)

func TestMemoryCreateLeadEnforcesUniquePair(t *testing.T) {
	m := NewMemory()
	m.PutListing(models.Listing{ID: "x1"})
	ctx := context.Background()

	if err := m.CreateLead(ctx, models.Lead{ID: "l1", ListingID: "x1", BuyerID: "b1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.CreateLead(ctx, models.Lead{ID: "l2", ListingID: "x1", BuyerID: "b1"}); !errors.Is(err, errs.ErrDuplicateInquiry) {
		t.Fatalf("expected DuplicateInquiry, got %v", err)
	}
	if err := m.CreateLead(ctx, models.Lead{ID: "l3", ListingID: "missing", BuyerID: "b1"}); !errors.Is(err, errs.ErrListingNotFound) {
		t.Fatalf("expected ListingNotFound, got %v", err)
	}
	if m.LeadCount() != 1 {
		t.Fatalf("expected one lead, got %d", m.LeadCount())
	}
}

func TestMemoryAllocateLeadHonoursQuotaAndMarker(t *testing.T) {
	m := NewMemory()
	now := time.Now()
	m.PutSubscription(models.Subscription{ID: "s1", DealerID: "d1", QuotaRemaining: 1, IsActive: true, CreatedAt: now})
	all := func(c []models.Subscription) []models.Subscription { return c }
	ctx := context.Background()

	res, err := m.AllocateLead(ctx, models.Lead{ID: "l1"}, now, all, 0)
	if err != nil || len(res.Allocated) != 1 {
		t.Fatalf("expected one allocation, got %+v %v", res, err)
	}
	sub, _ := m.Subscription("s1")
	if sub.QuotaRemaining != 0 || sub.IsActive {
		t.Fatalf("expected exhausted inactive subscription, got %+v", sub)
	}

	res, err = m.AllocateLead(ctx, models.Lead{ID: "l2"}, now, all, 0)
	if err != nil || len(res.Allocated) != 0 {
		t.Fatalf("expected exhausted quota to be skipped, got %+v %v", res, err)
	}

	res, err = m.AllocateLead(ctx, models.Lead{ID: "l1"}, now, all, 0)
	if err != nil || !res.AlreadyAttempted || len(res.Allocated) != 1 {
		t.Fatalf("expected repeat to return the original allocation, got %+v %v", res, err)
	}
}

func TestMemoryUnlockPriceOverride(t *testing.T) {
	m := NewMemory()
	if _, ok, _ := m.UnlockPrice(context.Background()); ok {
		t.Fatalf("expected no override by default")
	}
	m.SetPlatformConfig(unlockPriceKey, " 3 ")
	price, ok, err := m.UnlockPrice(context.Background())
	if err != nil || !ok || price != 3 {
		t.Fatalf("expected override 3, got %d %v %v", price, ok, err)
	}
}

func TestMemoryClaimPaymentOnce(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	tx := models.PaymentTransaction{OrderID: "order_1", DealerID: "d1", Credits: 10}

	if ok, _ := m.ClaimPayment(ctx, tx); !ok {
		t.Fatalf("expected first claim")
	}
	if ok, _ := m.ClaimPayment(ctx, tx); ok {
		t.Fatalf("expected second claim to be rejected")
	}
	if err := m.CompletePayment(ctx, "order_1", models.PaymentFailed); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if ok, _ := m.ClaimPayment(ctx, tx); !ok {
		t.Fatalf("expected failed payment to be claimable again")
	}
}

func TestMemoryListDealerLeads(t *testing.T) {
	m := NewMemory()
	m.PutListing(models.Listing{ID: "x1", Title: "Pulsar 150"})
	m.PutSubscription(models.Subscription{ID: "s1", DealerID: "d1", QuotaRemaining: 5, IsActive: true})
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	all := func(c []models.Subscription) []models.Subscription { return c }

	for i, id := range []string{"l1", "l2", "l3"} {
		lead := models.Lead{ID: id, ListingID: "x1", BuyerID: "b" + id, Status: models.LeadStatusNew, CreatedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := m.CreateLead(ctx, lead); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	// l1 and l2 are allocated to d1, l3 is only unlocked by d1.
	for _, id := range []string{"l1", "l2"} {
		if _, err := m.AllocateLead(ctx, models.Lead{ID: id}, base, all, 0); err != nil {
			t.Fatalf("allocate %s: %v", id, err)
		}
	}
	if err := m.InsertUnlock(ctx, models.UnlockEvent{LeadID: "l3", DealerID: "d1", CostCredits: 1, UnlockedAt: base}); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	got, total, err := m.ListDealerLeads(ctx, models.DealerLeadQuery{DealerID: "d1"})
	if err != nil || total != 3 || len(got) != 3 {
		t.Fatalf("expected three leads, got %d/%d %v", len(got), total, err)
	}
	if got[0].Lead.ID != "l3" || got[2].Lead.ID != "l1" {
		t.Fatalf("expected newest first, got %s..%s", got[0].Lead.ID, got[2].Lead.ID)
	}
	if !got[0].Unlocked() || got[0].AllocatedAt != nil || got[0].ListingTitle != "Pulsar 150" {
		t.Fatalf("unexpected unlocked entry %+v", got[0])
	}
	if got[1].Unlocked() || got[1].AllocatedAt == nil {
		t.Fatalf("unexpected allocated entry %+v", got[1])
	}

	page, total, _ := m.ListDealerLeads(ctx, models.DealerLeadQuery{DealerID: "d1", Limit: 2, Offset: 2})
	if total != 3 || len(page) != 1 || page[0].Lead.ID != "l1" {
		t.Fatalf("unexpected second page %+v (total %d)", page, total)
	}

	unlocked, total, _ := m.ListDealerLeads(ctx, models.DealerLeadQuery{DealerID: "d1", UnlockedOnly: true})
	if total != 1 || unlocked[0].Lead.ID != "l3" {
		t.Fatalf("expected only l3 unlocked, got %+v", unlocked)
	}

	none, total, _ := m.ListDealerLeads(ctx, models.DealerLeadQuery{DealerID: "d1", Status: models.LeadStatusContacted})
	if total != 0 || len(none) != 0 {
		t.Fatalf("expected no contacted leads, got %+v", none)
	}

	other, total, _ := m.ListDealerLeads(ctx, models.DealerLeadQuery{DealerID: "d2"})
	if total != 0 || len(other) != 0 {
		t.Fatalf("expected empty inbox for d2, got %+v", other)
	}
}

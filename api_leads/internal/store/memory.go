package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/api_leads/internal/models"
	"dopahiyaa/api_leads/internal/pricing"
)

// Memory is a process-local store. A single mutex makes every method
// atomic, which is what the Postgres store gets from transactions and
// conditional writes. It backs STORE_BACKEND=memory and the tests.
type Memory struct {
	mu sync.Mutex

	profiles        map[string]models.Profile
	listings        map[string]models.Listing
	regions         map[string]string
	leads           map[string]models.Lead
	leadKeys        map[string]string
	balances        map[string]int64
	ledger          []models.LedgerEntry
	reconciliations []models.ReconciliationEvent
	subscriptions   []models.Subscription
	markers         map[string]time.Time
	allocations     map[string][]models.AllocatedDealer
	failures        []models.AllocationFailure
	unlocks         map[string]models.UnlockEvent
	notifications   []models.Notification
	platform        map[string]string
	ruleset         pricing.Ruleset
	payments        map[string]models.PaymentTransaction
}

func NewMemory() *Memory {
	return &Memory{
		profiles:    make(map[string]models.Profile),
		listings:    make(map[string]models.Listing),
		regions:     make(map[string]string),
		leads:       make(map[string]models.Lead),
		leadKeys:    make(map[string]string),
		balances:    make(map[string]int64),
		markers:     make(map[string]time.Time),
		allocations: make(map[string][]models.AllocatedDealer),
		unlocks:     make(map[string]models.UnlockEvent),
		platform:    make(map[string]string),
		ruleset:     pricing.Ruleset{Config: pricing.DefaultConfig()},
		payments:    make(map[string]models.PaymentTransaction),
	}
}

func pairKey(a, b string) string { return a + "\x00" + b }

// Seeding helpers.

func (m *Memory) PutProfile(p models.Profile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.ID] = p
}

func (m *Memory) PutListing(l models.Listing) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listings[l.ID] = l
}

func (m *Memory) DeleteListing(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listings, id)
}

func (m *Memory) PutRegion(city, region string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions[city] = region
}

func (m *Memory) PutDealer(id string, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[id] = balance
}

func (m *Memory) PutSubscription(s models.Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, s)
}

func (m *Memory) SetRuleset(rs pricing.Ruleset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ruleset = rs
}

func (m *Memory) SetPlatformConfig(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.platform[key] = value
}

// Inspection helpers.

func (m *Memory) LeadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.leads)
}

func (m *Memory) Allocations(leadID string) []models.AllocatedDealer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AllocatedDealer(nil), m.allocations[leadID]...)
}

func (m *Memory) AllocationFailures() []models.AllocationFailure {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AllocationFailure(nil), m.failures...)
}

func (m *Memory) Notifications() []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Notification(nil), m.notifications...)
}

func (m *Memory) LedgerEntries(dealerID string) []models.LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.LedgerEntry
	for _, e := range m.ledger {
		if e.DealerID == dealerID {
			out = append(out, e)
		}
	}
	return out
}

func (m *Memory) Subscription(id string) (models.Subscription, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subscriptions {
		if s.ID == id {
			return s, true
		}
	}
	return models.Subscription{}, false
}

// Ledger.

func (m *Memory) GetBalance(ctx context.Context, dealerID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[dealerID]
	if !ok {
		return 0, errs.ErrDealerNotFound
	}
	return b, nil
}

func (m *Memory) CompareAndSwapBalance(ctx context.Context, dealerID string, expected, next int64, entry models.LedgerEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.balances[dealerID]
	if !ok {
		return false, errs.ErrDealerNotFound
	}
	if current != expected || next < 0 {
		return false, nil
	}
	m.balances[dealerID] = next
	m.ledger = append(m.ledger, entry)
	return true, nil
}

func (m *Memory) RecordReconciliation(ctx context.Context, ev models.ReconciliationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconciliations = append(m.reconciliations, ev)
	return nil
}

func (m *Memory) ListReconciliations(ctx context.Context, status string, limit int) ([]models.ReconciliationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ReconciliationEvent
	for _, ev := range m.reconciliations {
		if status != "" && ev.Status != status {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) ResolveReconciliation(ctx context.Context, id, note string, at time.Time) (models.ReconciliationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, ev := range m.reconciliations {
		if ev.ID != id {
			continue
		}
		if ev.Status == models.ReconciliationResolved {
			return ev, errs.ErrAlreadyExists
		}
		ev.Status = models.ReconciliationResolved
		ev.ResolutionNote = note
		ev.ResolvedAt = &at
		m.reconciliations[i] = ev
		return ev, nil
	}
	return models.ReconciliationEvent{}, errs.ErrNotFound
}

// Leads and listings.

func (m *Memory) CreateLead(ctx context.Context, lead models.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[lead.ListingID]; !ok {
		return errs.ErrListingNotFound
	}
	key := pairKey(lead.ListingID, lead.BuyerID)
	if _, ok := m.leadKeys[key]; ok {
		return errs.ErrDuplicateInquiry
	}
	m.leadKeys[key] = lead.ID
	m.leads[lead.ID] = lead
	return nil
}

func (m *Memory) GetLead(ctx context.Context, id string) (models.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return models.Lead{}, errs.ErrLeadNotFound
	}
	return l, nil
}

func (m *Memory) FreezeLeadAttributes(ctx context.Context, leadID string, attrs models.LeadAttributes) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
	if !ok {
		return errs.ErrLeadNotFound
	}
	if l.Attributes == (models.LeadAttributes{}) {
		l.Attributes = attrs
		m.leads[leadID] = l
	}
	return nil
}

func (m *Memory) UpdateLeadStatus(ctx context.Context, leadID string, from, to models.LeadStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[leadID]
	if !ok {
		return false, errs.ErrLeadNotFound
	}
	if l.Status != from {
		return false, nil
	}
	l.Status = to
	m.leads[leadID] = l
	return true, nil
}

func (m *Memory) GetListing(ctx context.Context, id string) (models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return models.Listing{}, errs.ErrListingNotFound
	}
	return l, nil
}

func (m *Memory) ResolveRegion(ctx context.Context, city string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regions[city], nil
}

func (m *Memory) GetProfile(ctx context.Context, id string) (models.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return models.Profile{}, errs.ErrNotFound
	}
	return p, nil
}

func (m *Memory) InsertNotification(ctx context.Context, n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return nil
}

// Unlocks.

func (m *Memory) FindUnlock(ctx context.Context, leadID, dealerID string) (models.UnlockEvent, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.unlocks[pairKey(leadID, dealerID)]
	return ev, ok, nil
}

func (m *Memory) InsertUnlock(ctx context.Context, ev models.UnlockEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey(ev.LeadID, ev.DealerID)
	if _, ok := m.unlocks[key]; ok {
		return errs.ErrAlreadyExists
	}
	m.unlocks[key] = ev
	return nil
}

func (m *Memory) UnlockPrice(ctx context.Context) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return parseUnlockPrice(m.platform[unlockPriceKey])
}

// Subscriptions and allocation.

func (m *Memory) FindSubscriptionByKey(ctx context.Context, dealerID, key string) (models.Subscription, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subscriptions {
		if s.DealerID == dealerID && s.IdempotencyKey == key {
			return s, true, nil
		}
	}
	return models.Subscription{}, false, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, sub models.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subscriptions {
		if s.DealerID == sub.DealerID && s.IdempotencyKey == sub.IdempotencyKey {
			return errs.ErrAlreadyExists
		}
	}
	m.subscriptions = append(m.subscriptions, sub)
	return nil
}

func (m *Memory) AllocateLead(ctx context.Context, lead models.Lead, at time.Time, choose func([]models.Subscription) []models.Subscription, limit int) (models.AllocationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.markers[lead.ID]; ok {
		return models.AllocationResult{
			LeadID:           lead.ID,
			Allocated:        append([]models.AllocatedDealer{}, m.allocations[lead.ID]...),
			AlreadyAttempted: true,
			AttemptedAt:      prev,
		}, nil
	}
	m.markers[lead.ID] = at

	var candidates []models.Subscription
	for _, s := range m.subscriptions {
		if s.IsActive && s.QuotaRemaining > 0 {
			candidates = append(candidates, s)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].CreatedAt.Before(candidates[j].CreatedAt) })

	allocated := []models.AllocatedDealer{}
	for _, chosen := range choose(candidates) {
		if limit > 0 && len(allocated) >= limit {
			break
		}
		idx := m.subscriptionIndex(chosen.ID)
		if idx < 0 {
			continue
		}
		s := &m.subscriptions[idx]
		if !s.IsActive || s.QuotaRemaining <= 0 {
			continue
		}
		s.QuotaRemaining--
		s.IsActive = s.QuotaRemaining > 0
		allocated = append(allocated, models.AllocatedDealer{DealerID: s.DealerID, SubscriptionID: s.ID})
	}
	m.allocations[lead.ID] = allocated

	if len(allocated) > 0 {
		if l, ok := m.leads[lead.ID]; ok && l.Status == models.LeadStatusNew {
			l.Status = models.LeadStatusAllocated
			m.leads[lead.ID] = l
		}
	}
	return models.AllocationResult{LeadID: lead.ID, Allocated: allocated, AttemptedAt: at}, nil
}

// ListDealerLeads returns one page of the dealer's inbox and the total
// number of matching leads. The allocation time is the lead's marker time.
func (m *Memory) ListDealerLeads(ctx context.Context, q models.DealerLeadQuery) ([]models.DealerLead, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []models.DealerLead
	for id, lead := range m.leads {
		var entry models.DealerLead
		for _, a := range m.allocations[id] {
			if a.DealerID == q.DealerID {
				at := m.markers[id]
				entry.AllocatedAt = &at
				break
			}
		}
		if ev, ok := m.unlocks[pairKey(id, q.DealerID)]; ok {
			at := ev.UnlockedAt
			entry.UnlockedAt = &at
		}
		if entry.AllocatedAt == nil && entry.UnlockedAt == nil {
			continue
		}
		if q.UnlockedOnly && !entry.Unlocked() {
			continue
		}
		if q.Status != "" && lead.Status != q.Status {
			continue
		}
		entry.Lead = lead
		entry.ListingTitle = m.listings[lead.ListingID].Title
		matched = append(matched, entry)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i].Lead, matched[j].Lead
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	total := len(matched)
	if q.Offset >= total {
		return []models.DealerLead{}, total, nil
	}
	end := total
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	return matched[q.Offset:end], total, nil
}

func (m *Memory) subscriptionIndex(id string) int {
	for i := range m.subscriptions {
		if m.subscriptions[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Memory) RecordAllocationFailure(ctx context.Context, f models.AllocationFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, f)
	return nil
}

// Pricing.

func (m *Memory) LoadRuleset(ctx context.Context) (pricing.Ruleset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rs := m.ruleset
	rs.Rules = append([]pricing.Rule(nil), m.ruleset.Rules...)
	rs.Tiers = append([]pricing.BulkTier(nil), m.ruleset.Tiers...)
	return rs, nil
}

// Payments.

func (m *Memory) ClaimPayment(ctx context.Context, tx models.PaymentTransaction) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.payments[tx.OrderID]
	if ok && existing.Status != models.PaymentFailed {
		return false, nil
	}
	tx.Status = models.PaymentProcessing
	m.payments[tx.OrderID] = tx
	return true, nil
}

func (m *Memory) CompletePayment(ctx context.Context, orderID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.payments[orderID]
	if !ok {
		return errs.ErrNotFound
	}
	tx.Status = status
	m.payments[orderID] = tx
	return nil
}

func (m *Memory) Payment(orderID string) (models.PaymentTransaction, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.payments[orderID]
	return tx, ok
}

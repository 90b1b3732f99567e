package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dopahiyaa/api_leads/internal/credits"
	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/api_leads/internal/events"
	"dopahiyaa/api_leads/internal/models"
	"dopahiyaa/api_leads/internal/notify"
	"dopahiyaa/api_leads/internal/pricing"
	"dopahiyaa/pkg/logging"
)

// DefaultUnlockPrice applies when neither config nor the platform table set one.
const DefaultUnlockPrice int64 = 1

type Store interface {
	CreateLead(ctx context.Context, lead models.Lead) error
	GetLead(ctx context.Context, id string) (models.Lead, error)
	FreezeLeadAttributes(ctx context.Context, leadID string, attrs models.LeadAttributes) error
	UpdateLeadStatus(ctx context.Context, leadID string, from, to models.LeadStatus) (bool, error)
	GetListing(ctx context.Context, id string) (models.Listing, error)
	ResolveRegion(ctx context.Context, city string) (string, error)
	GetProfile(ctx context.Context, id string) (models.Profile, error)

	FindUnlock(ctx context.Context, leadID, dealerID string) (models.UnlockEvent, bool, error)
	InsertUnlock(ctx context.Context, ev models.UnlockEvent) error
	UnlockPrice(ctx context.Context) (int64, bool, error)
	ListDealerLeads(ctx context.Context, q models.DealerLeadQuery) ([]models.DealerLead, int, error)

	FindSubscriptionByKey(ctx context.Context, dealerID, key string) (models.Subscription, bool, error)
	CreateSubscription(ctx context.Context, sub models.Subscription) error

	ListReconciliations(ctx context.Context, status string, limit int) ([]models.ReconciliationEvent, error)
	ResolveReconciliation(ctx context.Context, id, note string, at time.Time) (models.ReconciliationEvent, error)
}

type Ledger interface {
	Balance(ctx context.Context, dealerID string) (int64, error)
	DebitWithRollback(ctx context.Context, dealerID string, amount int64, reason, referenceID string, record func(ctx context.Context) error) (credits.Result, error)
}

type Allocator interface {
	Allocate(ctx context.Context, lead models.Lead) (models.AllocationResult, error)
}

type Pricer interface {
	Quote(ctx context.Context, req pricing.Request) (pricing.Quote, pricing.Ruleset, error)
	Invalidate(ctx context.Context, requestedBy string) error
}

type Notifier interface {
	Notify(ctx context.Context, msg notify.Message) bool
	NotifyProfile(ctx context.Context, p models.Profile, template string, params ...string) bool
}

type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
	PushFeed(ctx context.Context, item events.FeedItem, dealerIDs ...string) error
}

// Tasks runs best-effort work off the request path.
type Tasks interface {
	Go(ctx context.Context, name string, fn func(ctx context.Context) error)
}

type Metrics struct {
	Inquiries *prometheus.CounterVec
	Unlocks   *prometheus.CounterVec
	Purchases *prometheus.CounterVec
}

func (m *Metrics) IncInquiry(status string) {
	if m == nil || m.Inquiries == nil {
		return
	}
	m.Inquiries.WithLabelValues(status).Inc()
}

func (m *Metrics) IncUnlock(status string) {
	if m == nil || m.Unlocks == nil {
		return
	}
	m.Unlocks.WithLabelValues(status).Inc()
}

func (m *Metrics) IncPurchase(status string) {
	if m == nil || m.Purchases == nil {
		return
	}
	m.Purchases.WithLabelValues(status).Inc()
}

// statusLabel turns an error into a metric label.
func statusLabel(err error) string {
	if err == nil {
		return "success"
	}
	if e, ok := errs.As(err); ok {
		return strings.ToLower(e.Code)
	}
	return "error"
}

type Deps struct {
	Store     Store
	Ledger    Ledger
	Allocator Allocator
	Pricer    Pricer
	Notifier  Notifier
	Publisher Publisher
	Tasks     Tasks
	Logger    logging.Logger
	Metrics   *Metrics
}

type Config struct {
	// UnlockPrice is used when the platform config has no override.
	UnlockPrice int64
}

// Coordinator drives a lead from inquiry through allocation and unlock, and
// sells filter packs.
type Coordinator struct {
	Deps
	unlockPrice int64
	now         func() time.Time
}

func NewCoordinator(deps Deps, cfg Config) *Coordinator {
	if cfg.UnlockPrice <= 0 {
		cfg.UnlockPrice = DefaultUnlockPrice
	}
	return &Coordinator{Deps: deps, unlockPrice: cfg.UnlockPrice, now: time.Now}
}

// Actor is the authenticated caller.
type Actor struct {
	UserID string
	Role   string
}

const roleAdmin = "admin"

func (a Actor) IsAdmin() bool { return a.Role == roleAdmin }

func (c *Coordinator) background(ctx context.Context, name string, fn func(ctx context.Context) error) {
	if c.Tasks == nil {
		return
	}
	c.Tasks.Go(ctx, name, fn)
}

func (c *Coordinator) publish(ctx context.Context, ev events.Event) {
	if c.Publisher == nil {
		return
	}
	if err := c.Publisher.Publish(ctx, ev); err != nil {
		c.Logger.WithError(err).WithField("event", ev.Type).Warn("Failed to publish lead event")
	}
}

func (c *Coordinator) pushFeed(ctx context.Context, item events.FeedItem, dealerIDs ...string) {
	if c.Publisher == nil || len(dealerIDs) == 0 {
		return
	}
	if err := c.Publisher.PushFeed(ctx, item, dealerIDs...); err != nil {
		c.Logger.WithError(err).WithField("lead_id", item.LeadID).Warn("Failed to push dealer feed")
	}
}

func feedItem(t events.Type, lead models.Lead) events.FeedItem {
	return events.FeedItem{
		Type:     t,
		LeadID:   lead.ID,
		City:     lead.Attributes.City,
		Brand:    lead.Attributes.Brand,
		Model:    lead.Attributes.Model,
		LeadType: lead.Attributes.LeadType,
	}
}

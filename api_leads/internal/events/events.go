package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dopahiyaa/pkg/logging"
	pkgredis "dopahiyaa/pkg/redis"
)

const DefaultTopic = "lead_events"

var ErrFeedDisabled = errors.New("dealer feed not configured")

type Type string

const (
	LeadCreated           Type = "lead.created"
	LeadAllocated         Type = "lead.allocated"
	LeadUnlocked          Type = "lead.unlocked"
	LeadStatusChanged     Type = "lead.status_changed"
	SubscriptionPurchased Type = "subscription.purchased"
	CreditsToppedUp       Type = "credits.topped_up"
)

// Event is the envelope written to the lead events topic. Key is the lead id
// when there is one, else the dealer id, so events for a lead stay ordered.
type Event struct {
	ID         string         `json:"id"`
	Type       Type           `json:"type"`
	LeadID     string         `json:"lead_id,omitempty"`
	DealerID   string         `json:"dealer_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

func (e Event) key() string {
	if e.LeadID != "" {
		return e.LeadID
	}
	return e.DealerID
}

// FeedItem is what a dealer's live feed receives.
type FeedItem struct {
	Type     Type      `json:"type"`
	LeadID   string    `json:"lead_id"`
	City     string    `json:"city,omitempty"`
	Brand    string    `json:"brand,omitempty"`
	Model    string    `json:"model,omitempty"`
	LeadType string    `json:"lead_type,omitempty"`
	At       time.Time `json:"at"`
}

// FeedChannel is the Redis channel carrying one dealer's feed.
func FeedChannel(dealerID string) string {
	return "dealer:" + dealerID + ":feed"
}

type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Publisher fans events out to Kafka and dealer feeds. Both sinks are
// optional; a nil sink is skipped.
type Publisher struct {
	producer Producer
	topic    string
	feed     *pkgredis.TypedPubSub[FeedItem]
	logger   logging.Logger
	now      func() time.Time
}

func NewPublisher(producer Producer, topic string, feed *pkgredis.TypedPubSub[FeedItem], logger logging.Logger) *Publisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Publisher{producer: producer, topic: topic, feed: feed, logger: logger, now: time.Now}
}

// Publish writes ev to the events topic.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if p == nil || p.producer == nil {
		return nil
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = p.now().UTC()
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	headers := map[string]string{"event_type": string(ev.Type)}
	if ev.DealerID != "" {
		headers["dealer_id"] = ev.DealerID
	}
	if err := p.producer.Produce(ctx, p.topic, []byte(ev.key()), value, headers); err != nil {
		return fmt.Errorf("produce %s: %w", ev.Type, err)
	}
	return nil
}

// PushFeed sends item to every dealer in dealerIDs. All dealers are attempted
// even when some fail.
func (p *Publisher) PushFeed(ctx context.Context, item FeedItem, dealerIDs ...string) error {
	if p == nil || p.feed == nil {
		return nil
	}
	if item.At.IsZero() {
		item.At = p.now().UTC()
	}
	var errList []error
	for _, id := range dealerIDs {
		if err := p.feed.Publish(ctx, FeedChannel(id), item); err != nil {
			errList = append(errList, fmt.Errorf("dealer %s: %w", id, err))
		}
	}
	return errors.Join(errList...)
}

// Subscribe blocks delivering one dealer's feed to handler until ctx ends.
func (p *Publisher) Subscribe(ctx context.Context, dealerID string, ready chan<- struct{}, handler func(FeedItem)) error {
	if p == nil || p.feed == nil {
		return ErrFeedDisabled
	}
	return p.feed.Subscribe(ctx, FeedChannel(dealerID), ready, handler)
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"dopahiyaa/pkg/logging"
	pkgredis "dopahiyaa/pkg/redis"
)

type produced struct {
	topic   string
	key     string
	value   []byte
	headers map[string]string
}

type fakeProducer struct {
	records []produced
	err     error
}

func (f *fakeProducer) Produce(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	f.records = append(f.records, produced{topic, string(key), value, headers})
	return f.err
}

func TestPublishKeysByLead(t *testing.T) {
	prod := &fakeProducer{}
	p := NewPublisher(prod, "", nil, logging.NewLogger())

	err := p.Publish(context.Background(), Event{Type: LeadUnlocked, LeadID: "l-1", DealerID: "d-1"})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(prod.records) != 1 {
		t.Fatalf("expected one record, got %d", len(prod.records))
	}
	rec := prod.records[0]
	if rec.topic != DefaultTopic || rec.key != "l-1" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.headers["event_type"] != "lead.unlocked" || rec.headers["dealer_id"] != "d-1" {
		t.Fatalf("unexpected headers %v", rec.headers)
	}
	var ev Event
	if err := json.Unmarshal(rec.value, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.ID == "" || ev.OccurredAt.IsZero() {
		t.Fatalf("expected id and timestamp to be stamped, got %+v", ev)
	}
}

func TestPublishKeysByDealerWithoutLead(t *testing.T) {
	prod := &fakeProducer{}
	p := NewPublisher(prod, "custom", nil, logging.NewLogger())
	if err := p.Publish(context.Background(), Event{Type: CreditsToppedUp, DealerID: "d-9"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if prod.records[0].key != "d-9" || prod.records[0].topic != "custom" {
		t.Fatalf("unexpected record %+v", prod.records[0])
	}
}

func TestPublishWrapsProducerError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewPublisher(&fakeProducer{err: boom}, "", nil, logging.NewLogger())
	if err := p.Publish(context.Background(), Event{Type: LeadCreated, LeadID: "l"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestDisabledSinksAreNoops(t *testing.T) {
	p := NewPublisher(nil, "", nil, logging.NewLogger())
	if err := p.Publish(context.Background(), Event{Type: LeadCreated}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := p.PushFeed(context.Background(), FeedItem{LeadID: "l"}, "d-1"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := p.Subscribe(context.Background(), "d-1", nil, func(FeedItem) {}); !errors.Is(err, ErrFeedDisabled) {
		t.Fatalf("expected ErrFeedDisabled, got %v", err)
	}
}

func TestPushFeedReachesSubscribedDealer(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	p := NewPublisher(nil, "", pkgredis.NewTypedPubSub[FeedItem](client, nil), logging.NewLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ready := make(chan struct{})
	got := make(chan FeedItem, 1)
	go func() { _ = p.Subscribe(ctx, "d-1", ready, func(it FeedItem) { got <- it }) }()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not confirmed")
	}

	if err := p.PushFeed(ctx, FeedItem{Type: LeadAllocated, LeadID: "l-7", City: "pune"}, "d-1", "d-2"); err != nil {
		t.Fatalf("push: %v", err)
	}
	select {
	case it := <-got:
		if it.LeadID != "l-7" || it.City != "pune" || it.At.IsZero() {
			t.Fatalf("unexpected item %+v", it)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("feed item not delivered")
	}
}

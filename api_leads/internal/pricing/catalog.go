package pricing

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"dopahiyaa/pkg/cache"
	pkgredis "dopahiyaa/pkg/redis"
)

const catalogKey = "ruleset"

// InvalidationChannel carries catalogue refresh requests between instances.
const InvalidationChannel = "pricing:invalidate"

// Source loads the current ruleset from storage.
type Source interface {
	LoadRuleset(ctx context.Context) (Ruleset, error)
}

type InvalidationMessage struct {
	RequestedBy string    `json:"requested_by"`
	At          time.Time `json:"at"`
}

// Catalog caches the active ruleset so quotes do not hit the store on every
// keystroke of a live price preview.
type Catalog struct {
	source Source
	cache  *cache.Cache[Ruleset]
	ttl    time.Duration
	pubsub *pkgredis.TypedPubSub[InvalidationMessage]
	logger *logrus.Logger
}

func NewCatalog(source Source, ttl time.Duration, logger *logrus.Logger) *Catalog {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	c := &Catalog{source: source, ttl: ttl, logger: logger}
	c.cache = cache.New[Ruleset](cache.Options{
		TTL:                  ttl,
		StaleWhileRevalidate: ttl,
		MaxEntries:           1,
	}, cache.Hooks{
		OnError: func(key string, err error) {
			if logger != nil {
				logger.WithError(err).Warn("Failed to load pricing ruleset")
			}
		},
	})
	return c
}

// WithInvalidation makes Invalidate broadcast to every instance.
func (c *Catalog) WithInvalidation(ps *pkgredis.TypedPubSub[InvalidationMessage]) *Catalog {
	c.pubsub = ps
	return c
}

func (c *Catalog) Current(ctx context.Context) (Ruleset, error) {
	return c.cache.Get(ctx, catalogKey, func(ctx context.Context, _ string) (Ruleset, error) {
		return c.source.LoadRuleset(ctx)
	})
}

// Quote prices req against the cached ruleset.
func (c *Catalog) Quote(ctx context.Context, req Request) (Quote, Ruleset, error) {
	rs, err := c.Current(ctx)
	if err != nil {
		return Quote{}, Ruleset{}, err
	}
	q, err := Calculate(req, rs)
	return q, rs, err
}

// Invalidate drops the local copy and asks other instances to do the same.
func (c *Catalog) Invalidate(ctx context.Context, requestedBy string) error {
	c.cache.Purge()
	if c.pubsub == nil {
		return nil
	}
	return c.pubsub.Publish(ctx, InvalidationChannel, InvalidationMessage{RequestedBy: requestedBy, At: time.Now().UTC()})
}

// ListenForInvalidation blocks until ctx is done.
func (c *Catalog) ListenForInvalidation(ctx context.Context, ready chan<- struct{}) error {
	if c.pubsub == nil {
		return nil
	}
	return c.pubsub.Subscribe(ctx, InvalidationChannel, ready, func(msg InvalidationMessage) {
		c.cache.Purge()
		if c.logger != nil {
			c.logger.WithField("requested_by", msg.RequestedBy).Info("Pricing catalogue invalidated")
		}
	})
}

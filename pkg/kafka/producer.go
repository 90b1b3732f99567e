package kafka

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

const defaultProduceTimeout = 5 * time.Second

// Producer is a synchronous franz-go producer.
type Producer struct {
	client  *kgo.Client
	logger  *logrus.Logger
	timeout time.Duration
}

// NewProducer connects to the seed brokers. Records with the same key land on
// the same partition, so per-lead ordering holds when keyed by lead id.
func NewProducer(brokers []string, clientID string, logger *logrus.Logger) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &Producer{client: client, logger: logger, timeout: defaultProduceTimeout}, nil
}

// Produce writes one record and waits for the broker ack, bounded by the
// producer timeout even when ctx has no deadline.
func (p *Producer) Produce(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.client.ProduceSync(ctx, buildRecord(topic, key, value, headers)).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

// Client returns the underlying kgo.Client for health checks
func (p *Producer) Client() *kgo.Client {
	return p.client
}

func (p *Producer) Close() {
	p.client.Close()
}

func buildRecord(topic string, key, value []byte, headers map[string]string) *kgo.Record {
	record := &kgo.Record{Topic: topic, Key: key, Value: value}
	if len(headers) == 0 {
		return record
	}
	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: k, Value: []byte(headers[k])})
	}
	return record
}

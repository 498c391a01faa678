// Package kafka sends requests to the remote numeric worker and crawler as
// JSON messages, one topic per request kind.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/custodia-labs/corpus-core/internal/core/domain"
	"github.com/custodia-labs/corpus-core/internal/core/ports/driven"
)

var (
	_ driven.NumericWorker = (*Publisher)(nil)
	_ driven.Crawler       = (*Publisher)(nil)
)

// Topics names the request topics
type Topics struct {
	ComputeMatrices   string
	FactorizeMatrices string
	IntegrityCheck    string
	Crawl             string
}

// DefaultTopics returns the topic names used when none are configured
func DefaultTopics() Topics {
	return Topics{
		ComputeMatrices:   "corpus.compute-matrices",
		FactorizeMatrices: "corpus.factorize-matrices",
		IntegrityCheck:    "corpus.integrity-check",
		Crawl:             "corpus.crawl",
	}
}

// MessageWriter is the part of *kafka.Writer the publisher uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements driven.NumericWorker and driven.Crawler. Messages are
// keyed by corpus id so requests for one corpus stay ordered.
type Publisher struct {
	writer MessageWriter
	topics Topics
	logger *slog.Logger
}

// NewWriter creates a synchronous writer for brokers. The topic is set per
// message.
func NewWriter(brokers []string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

// NewPublisher creates a publisher on writer. Empty topic names take the
// defaults.
func NewPublisher(writer MessageWriter, topics Topics, logger *slog.Logger) (*Publisher, error) {
	if writer == nil {
		return nil, errors.New("kafka writer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultTopics()
	if topics.ComputeMatrices == "" {
		topics.ComputeMatrices = d.ComputeMatrices
	}
	if topics.FactorizeMatrices == "" {
		topics.FactorizeMatrices = d.FactorizeMatrices
	}
	if topics.IntegrityCheck == "" {
		topics.IntegrityCheck = d.IntegrityCheck
	}
	if topics.Crawl == "" {
		topics.Crawl = d.Crawl
	}
	return &Publisher{
		writer: writer,
		topics: topics,
		logger: logger.With("component", "kafka-publisher"),
	}, nil
}

// ComputeMatrices asks for base vectors and a factorization from raw text
func (p *Publisher) ComputeMatrices(ctx context.Context, req domain.ComputeRequest) error {
	return p.publish(ctx, p.topics.ComputeMatrices, req.CorpusID, req)
}

// FactorizeMatrices asks for a factorization from existing base vectors
func (p *Publisher) FactorizeMatrices(ctx context.Context, req domain.ComputeRequest) error {
	return p.publish(ctx, p.topics.FactorizeMatrices, req.CorpusID, req)
}

// IntegrityCheck asks the worker to reconcile artifacts with the corpus
func (p *Publisher) IntegrityCheck(ctx context.Context, req domain.IntegrityRequest) error {
	return p.publish(ctx, p.topics.IntegrityCheck, req.CorpusID, req)
}

// StartCrawl sends a crawl request
func (p *Publisher) StartCrawl(ctx context.Context, req domain.CrawlRequest) error {
	return p.publish(ctx, p.topics.Crawl, req.CorpusID, req)
}

func (p *Publisher) publish(ctx context.Context, topic, key string, v any) error {
	value, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", topic, err)
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish request", "topic", topic, "corpus_id", key, "error", err)
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.logger.Debug("request published", "topic", topic, "corpus_id", key, "value_size", len(value))
	return nil
}

// Close flushes pending writes and closes the writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}

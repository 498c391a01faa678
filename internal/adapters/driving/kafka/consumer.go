// Package kafka consumes the reports of the remote workers and applies them
// through the callback service.
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
	"github.com/custodia-labs/corpus-core/internal/core/ports/driving"
)

// Topics names the callback topics
type Topics struct {
	ComputeDone   string
	IntegrityDone string
	FileExtracted string
}

// DefaultTopics returns the topic names used when none are configured
func DefaultTopics() Topics {
	return Topics{
		ComputeDone:   "corpus.compute-done",
		IntegrityDone: "corpus.integrity-done",
		FileExtracted: "corpus.file-extracted",
	}
}

// List returns the topics in subscription order
func (t Topics) List() []string {
	return []string{t.ComputeDone, t.IntegrityDone, t.FileExtracted}
}

// MessageReader is the part of *kafka.Reader the consumer uses
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewReader creates a consumer group reader subscribed to every callback topic
func NewReader(brokers []string, groupID string, topics Topics) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		GroupTopics:    topics.List(),
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        time.Second,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
	})
}

// CallbackConsumer reads callback messages and hands them to the callback
// service. A message is committed once it has been applied or found
// unusable; transient failures leave it uncommitted for redelivery.
type CallbackConsumer struct {
	reader    MessageReader
	callbacks driving.CallbackService
	topics    Topics
	logger    *slog.Logger
}

// NewCallbackConsumer creates a consumer. Empty topic names take the defaults.
func NewCallbackConsumer(reader MessageReader, callbacks driving.CallbackService, topics Topics, logger *slog.Logger) *CallbackConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultTopics()
	if topics.ComputeDone == "" {
		topics.ComputeDone = d.ComputeDone
	}
	if topics.IntegrityDone == "" {
		topics.IntegrityDone = d.IntegrityDone
	}
	if topics.FileExtracted == "" {
		topics.FileExtracted = d.FileExtracted
	}
	return &CallbackConsumer{
		reader:    reader,
		callbacks: callbacks,
		topics:    topics,
		logger:    logger.With("component", "kafka-callbacks"),
	}
}

// Run consumes until ctx is cancelled.
func (c *CallbackConsumer) Run(ctx context.Context) error {
	c.logger.Info("callback consumer started", "topics", c.topics.List())
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("callback consumer stopping")
				return nil
			}
			c.logger.Error("failed to fetch message", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if err := c.Handle(ctx, msg); err != nil {
			c.logger.Error("callback not applied, leaving uncommitted",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.Error("failed to commit message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

// Handle applies one message. It returns an error only for failures worth
// redelivering: malformed messages, invalid callbacks and failed computations
// reported by the worker are logged and consumed.
func (c *CallbackConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	logger := c.logger.With("topic", msg.Topic, "offset", msg.Offset)

	var err error
	switch msg.Topic {
	case c.topics.ComputeDone:
		var cb domain.ComputeCallback
		if err = decode(msg.Value, &cb); err == nil {
			err = c.callbacks.ComputeCompleted(ctx, cb)
		}
	case c.topics.IntegrityDone:
		var cb domain.IntegrityCallback
		if err = decode(msg.Value, &cb); err == nil {
			err = c.callbacks.IntegrityCompleted(ctx, cb)
		}
	case c.topics.FileExtracted:
		var cb domain.FileExtractCallback
		if err = decode(msg.Value, &cb); err == nil {
			err = c.callbacks.FileExtracted(ctx, cb)
		}
	default:
		logger.Warn("message on unknown topic dropped")
		return nil
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errMalformed), errors.Is(err, domain.ErrInvalidInput):
		logger.Warn("unusable callback dropped", "error", err)
		return nil
	case errors.Is(err, domain.ErrRemoteWorkerFailure):
		logger.Warn("remote worker reported failure", "error", err)
		return nil
	case errors.Is(err, domain.ErrNotFound):
		logger.Warn("callback for unknown corpus dropped", "error", err)
		return nil
	default:
		return err
	}
}

var errMalformed = errors.New("malformed callback")

func decode(value []byte, v any) error {
	if err := json.Unmarshal(value, v); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	return nil
}

// Close closes the reader
func (c *CallbackConsumer) Close() error {
	return c.reader.Close()
}

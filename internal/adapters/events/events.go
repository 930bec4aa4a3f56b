// Package events announces newly resolved winners on a watermill topic.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/okian/poolscore/internal/domain/model"
	"github.com/okian/poolscore/pkg/logger"
	"github.com/okian/poolscore/pkg/metrics"
)

// DefaultTopic carries WinnerRecord payloads.
const DefaultTopic = "winners.resolved"

// ErrClosed is returned after the publisher has been closed.
var ErrClosed = errors.New("events: publisher closed")

// Option configures a Publisher.
type Option func(*Publisher)

// WithTopic overrides DefaultTopic.
func WithTopic(topic string) Option {
	return func(p *Publisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// WithLogger sets the publisher logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// Publisher serialises winner records as JSON messages.
type Publisher struct {
	pub    message.Publisher
	topic  string
	logger logger.Logger
}

// NewPublisher wraps any watermill publisher.
func NewPublisher(pub message.Publisher, opts ...Option) *Publisher {
	p := &Publisher{pub: pub, topic: DefaultTopic, logger: logger.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("events")
	return p
}

// Topic returns the topic records are published on.
func (p *Publisher) Topic() string { return p.topic }

// PublishWinner implements winners.Publisher.
func (p *Publisher) PublishWinner(ctx context.Context, rec model.WinnerRecord) error {
	if p.pub == nil {
		return ErrClosed
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		metrics.RecordEventPublishError()
		return fmt.Errorf("marshal winner record: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("pool_id", rec.PoolID)
	msg.Metadata.Set("scope_type", string(rec.ScopeType))
	msg.Metadata.Set("scope_id", rec.ScopeID)

	if err := p.pub.Publish(p.topic, msg); err != nil {
		metrics.RecordEventPublishError()
		return fmt.Errorf("publish %s: %w", p.topic, err)
	}
	metrics.RecordEventPublished()
	p.logger.Debug(ctx, "winner published",
		logger.String("topic", p.topic),
		logger.String("message_id", msg.UUID),
		logger.String("scope", rec.ScopeID))
	return nil
}

// Decode reads a WinnerRecord back from a message payload.
func Decode(msg *message.Message) (model.WinnerRecord, error) {
	var rec model.WinnerRecord
	if err := json.Unmarshal(msg.Payload, &rec); err != nil {
		return rec, fmt.Errorf("decode winner record: %w", err)
	}
	return rec, nil
}

// NewGoChannel returns an in-process pub/sub. Messages published with no
// subscriber are dropped.
func NewGoChannel(buffer int64, l logger.Logger) *gochannel.GoChannel {
	return gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: buffer}, NewWatermillLogger(l))
}

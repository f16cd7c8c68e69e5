package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/pastrypickup-backend/pkg/logger"
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// message is the body consumed by the email and WhatsApp senders.
type message struct {
	Channel   Channel       `json:"channel"`
	Recipient string        `json:"recipient"`
	Order     OrderSnapshot `json:"order"`
}

// PubSubDispatcher publishes one message per channel and waits for the
// broker to acknowledge each.
type PubSubDispatcher struct {
	email    publisher
	whatsapp publisher
	logg     *logger.Logger
}

// NewPubSubDispatcher wraps the email and WhatsApp topic publishers.
func NewPubSubDispatcher(email, whatsapp *gcppubsub.Publisher, logg *logger.Logger) (*PubSubDispatcher, error) {
	if email == nil || whatsapp == nil {
		return nil, fmt.Errorf("email and whatsapp publishers required")
	}
	return newPubSubDispatcher(&gcpPublisher{Publisher: email}, &gcpPublisher{Publisher: whatsapp}, logg), nil
}

func newPubSubDispatcher(email, whatsapp publisher, logg *logger.Logger) *PubSubDispatcher {
	if logg == nil {
		logg = logger.Nop()
	}
	return &PubSubDispatcher{email: email, whatsapp: whatsapp, logg: logg}
}

func (d *PubSubDispatcher) NotifyOrderConfirmation(ctx context.Context, snapshot OrderSnapshot) Result {
	email := d.publish(ctx, d.email, ChannelEmail, snapshot)
	whatsapp := d.publish(ctx, d.whatsapp, ChannelWhatsApp, snapshot)
	return Result{
		Email:    d.await(ctx, ChannelEmail, snapshot, email),
		WhatsApp: d.await(ctx, ChannelWhatsApp, snapshot, whatsapp),
	}
}

type pending struct {
	result publishResult
	err    error
}

func (d *PubSubDispatcher) publish(ctx context.Context, pub publisher, channel Channel, snapshot OrderSnapshot) pending {
	recipient := snapshot.Recipient(channel)
	if recipient == "" {
		return pending{err: ErrNoRecipient}
	}
	body, err := json.Marshal(message{Channel: channel, Recipient: recipient, Order: snapshot})
	if err != nil {
		return pending{err: fmt.Errorf("encode %s message: %w", channel, err)}
	}
	res := pub.Publish(ctx, &gcppubsub.Message{
		Data: body,
		Attributes: map[string]string{
			"channel":      string(channel),
			"order_number": snapshot.OrderNumber,
		},
	})
	if res == nil {
		return pending{err: fmt.Errorf("%s publisher unavailable", channel)}
	}
	return pending{result: res}
}

func (d *PubSubDispatcher) await(ctx context.Context, channel Channel, snapshot OrderSnapshot, p pending) error {
	if p.err != nil {
		return p.err
	}
	serverID, err := p.result.Get(ctx)
	logCtx := d.logg.WithOrderNumber(ctx, snapshot.OrderNumber)
	logCtx = d.logg.WithField(logCtx, "channel", string(channel))
	if err != nil {
		d.logg.Warn(logCtx, fmt.Sprintf("publish confirmation failed: %v", err))
		return err
	}
	d.logg.Info(d.logg.WithField(logCtx, "message_id", serverID), "order confirmation published")
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", fmt.Errorf("publish result unavailable")
	}
	return r.PublishResult.Get(ctx)
}

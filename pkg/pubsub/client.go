// Package pubsub holds the GCP Pub/Sub connection used to hand order
// confirmations to the email and WhatsApp senders.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	gcp "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"go.uber.org/multierr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/pastrypickup-backend/pkg/config"
	"github.com/angelmondragon/pastrypickup-backend/pkg/logger"
)

var ErrTopicMissing = errors.New("pubsub topic does not exist")

type topicGetter interface {
	GetTopic(ctx context.Context, name string) error
}

type adminGetter struct{ client *gcp.Client }

func (a adminGetter) GetTopic(ctx context.Context, name string) error {
	_, err := a.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	return err
}

// Client resolves topic ids against the configured project and keeps one
// publisher per topic so Close can flush them all.
type Client struct {
	gcp        *gcp.Client
	topics     topicGetter
	project    string
	email      string
	whatsapp   string
	mu         sync.Mutex
	publishers map[string]*gcp.Publisher
}

// NewClient connects and refuses to start if any configured topic is missing;
// creating topics is left to infrastructure.
func NewClient(ctx context.Context, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(cfg.ProjectID)
	if project == "" {
		return nil, errors.New("gcp project id is required")
	}
	conn, err := gcp.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	c := &Client{
		gcp:        conn,
		topics:     adminGetter{client: conn},
		project:    project,
		email:      strings.TrimSpace(cfg.EmailTopic),
		whatsapp:   strings.TrimSpace(cfg.WhatsAppTopic),
		publishers: map[string]*gcp.Publisher{},
	}
	if err := c.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"project": project, "topics": c.topicNames()}), "pubsub connected")
	}
	return c, nil
}

func (c *Client) topicNames() []string {
	var names []string
	for _, t := range []string{c.email, c.whatsapp} {
		if t != "" {
			names = append(names, c.resource(t))
		}
	}
	return names
}

// Ping checks every configured topic and reports all missing ones at once.
func (c *Client) Ping(ctx context.Context) error {
	names := c.topicNames()
	if len(names) == 0 {
		return errors.New("no pubsub topics configured")
	}
	var errs error
	for _, name := range names {
		err := c.topics.GetTopic(ctx, name)
		switch {
		case err == nil:
		case status.Code(err) == codes.NotFound:
			errs = multierr.Append(errs, fmt.Errorf("%w: %s", ErrTopicMissing, name))
		default:
			errs = multierr.Append(errs, fmt.Errorf("get topic %s: %w", name, err))
		}
	}
	return errs
}

func (c *Client) EmailPublisher() *gcp.Publisher {
	if c == nil {
		return nil
	}
	return c.publisher(c.email)
}

func (c *Client) WhatsAppPublisher() *gcp.Publisher {
	if c == nil {
		return nil
	}
	return c.publisher(c.whatsapp)
}

func (c *Client) publisher(topic string) *gcp.Publisher {
	if c.gcp == nil || topic == "" {
		return nil
	}
	name := c.resource(topic)
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[name]; ok {
		return p
	}
	p := c.gcp.Publisher(name)
	c.publishers[name] = p
	return p
}

// Close flushes outstanding publishes before dropping the connection.
func (c *Client) Close() error {
	if c == nil || c.gcp == nil {
		return nil
	}
	c.mu.Lock()
	for _, p := range c.publishers {
		p.Stop()
	}
	c.publishers = map[string]*gcp.Publisher{}
	c.mu.Unlock()
	return c.gcp.Close()
}

// resource expands a bare topic id; full resource names pass through.
func (c *Client) resource(topic string) string {
	if strings.HasPrefix(topic, "projects/") {
		return topic
	}
	return "projects/" + c.project + "/topics/" + topic
}

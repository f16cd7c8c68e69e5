package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
	"github.com/angelmondragon/pastrypickup-backend/pkg/logger"
)

// Channel is an outbound delivery channel.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// ErrNoRecipient marks a channel skipped because the order has no address for it.
var ErrNoRecipient = errors.New("no recipient for channel")

// SnapshotItem is one line of the confirmation.
type SnapshotItem struct {
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"lineTotal"`
}

// OrderSnapshot is everything a confirmation message needs, frozen at commit.
type OrderSnapshot struct {
	OrderID       uuid.UUID           `json:"orderId"`
	OrderNumber   string              `json:"orderNumber"`
	CustomerName  string              `json:"customerName"`
	Email         string              `json:"email,omitempty"`
	Phone         string              `json:"phone,omitempty"`
	PickupDate    string              `json:"pickupDate"`
	PickupTime    string              `json:"pickupTime"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	Subtotal      int64               `json:"subtotal"`
	Discount      int64               `json:"discount"`
	Total         int64               `json:"total"`
	Items         []SnapshotItem      `json:"items"`
	Notes         string              `json:"notes,omitempty"`
}

// Recipient returns the address for channel, or "" when there is none.
func (s OrderSnapshot) Recipient(channel Channel) string {
	switch channel {
	case ChannelEmail:
		return s.Email
	case ChannelWhatsApp:
		return s.Phone
	default:
		return ""
	}
}

// Snapshot builds the confirmation snapshot for an order. Registered users
// are looked up by the caller; guests carry their own contact data.
func Snapshot(order models.Order, user *models.User) OrderSnapshot {
	snap := OrderSnapshot{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Phone:         order.ContactPhone,
		PickupDate:    order.PickupDate,
		PickupTime:    order.PickupTime,
		PaymentMethod: order.PaymentMethod,
		Subtotal:      order.Subtotal,
		Discount:      order.DiscountAmount,
		Total:         order.Total,
		Items:         make([]SnapshotItem, 0, len(order.Items)),
	}
	if order.Notes != nil {
		snap.Notes = *order.Notes
	}
	switch {
	case user != nil:
		snap.Email = user.Email
		snap.CustomerName = fullName(user.FirstName, user.LastName)
	case order.GuestEmail != nil:
		snap.Email = *order.GuestEmail
		snap.CustomerName = fullName(deref(order.GuestFirstName), deref(order.GuestLastName))
	}
	for _, item := range order.Items {
		snap.Items = append(snap.Items, SnapshotItem{Name: item.ProductName, Quantity: item.Quantity, LineTotal: item.LineTotal()})
	}
	return snap
}

// Result is the per-channel outcome of a confirmation dispatch. A nil error
// means the message was handed to the channel.
type Result struct {
	Email    error
	WhatsApp error
}

// Err combines the real failures; skipped channels are not failures.
func (r Result) Err() error {
	return multierr.Combine(channelErr(ChannelEmail, r.Email), channelErr(ChannelWhatsApp, r.WhatsApp))
}

// Failed lists the channels whose delivery failed.
func (r Result) Failed() []Channel {
	var out []Channel
	if channelErr(ChannelEmail, r.Email) != nil {
		out = append(out, ChannelEmail)
	}
	if channelErr(ChannelWhatsApp, r.WhatsApp) != nil {
		out = append(out, ChannelWhatsApp)
	}
	return out
}

func channelErr(channel Channel, err error) error {
	if err == nil || errors.Is(err, ErrNoRecipient) {
		return nil
	}
	return fmt.Errorf("%s: %w", channel, err)
}

// Dispatcher sends order confirmations. It never returns a bare error; each
// channel succeeds or fails on its own.
type Dispatcher interface {
	NotifyOrderConfirmation(ctx context.Context, snapshot OrderSnapshot) Result
}

// LogDispatcher only logs confirmations. It is used when Pub/Sub is not configured.
type LogDispatcher struct {
	logg *logger.Logger
}

func NewLogDispatcher(logg *logger.Logger) *LogDispatcher {
	if logg == nil {
		logg = logger.Nop()
	}
	return &LogDispatcher{logg: logg}
}

func (d *LogDispatcher) NotifyOrderConfirmation(ctx context.Context, snapshot OrderSnapshot) Result {
	var result Result
	for _, channel := range []Channel{ChannelEmail, ChannelWhatsApp} {
		var err error
		if snapshot.Recipient(channel) == "" {
			err = ErrNoRecipient
		}
		if channel == ChannelEmail {
			result.Email = err
		} else {
			result.WhatsApp = err
		}
	}
	logCtx := d.logg.WithOrderNumber(ctx, snapshot.OrderNumber)
	logCtx = d.logg.WithFields(logCtx, map[string]any{
		"email_skipped":    result.Email != nil,
		"whatsapp_skipped": result.WhatsApp != nil,
	})
	d.logg.Info(logCtx, "order confirmation logged")
	return result
}

func fullName(first, last string) string {
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

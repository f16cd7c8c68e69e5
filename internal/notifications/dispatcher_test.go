package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/pastrypickup-backend/pkg/db/models"
	"github.com/angelmondragon/pastrypickup-backend/pkg/enums"
)

type fakeResult struct {
	id  string
	err error
}

func (r fakeResult) Get(context.Context) (string, error) {
	return r.id, r.err
}

type fakePublisher struct {
	messages []*gcppubsub.Message
	err      error
}

func (p *fakePublisher) Publish(_ context.Context, msg *gcppubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	return fakeResult{id: "msg-1", err: p.err}
}

func snapshotFixture() OrderSnapshot {
	return OrderSnapshot{
		OrderID:     uuid.New(),
		OrderNumber: "PP250310042",
		Email:       "ana@example.com",
		Phone:       "+56912345678",
		Total:       12000,
	}
}

func TestPubSubDispatcherPublishesBothChannels(t *testing.T) {
	email := &fakePublisher{}
	whatsapp := &fakePublisher{}
	d := newPubSubDispatcher(email, whatsapp, nil)

	result := d.NotifyOrderConfirmation(context.Background(), snapshotFixture())
	if result.Err() != nil {
		t.Fatalf("unexpected error: %v", result.Err())
	}
	if len(email.messages) != 1 || len(whatsapp.messages) != 1 {
		t.Fatalf("expected one message per channel, got %d/%d", len(email.messages), len(whatsapp.messages))
	}
	msg := email.messages[0]
	if msg.Attributes["channel"] != "email" || msg.Attributes["order_number"] != "PP250310042" {
		t.Fatalf("unexpected attributes %v", msg.Attributes)
	}
	var body message
	if err := json.Unmarshal(msg.Data, &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Recipient != "ana@example.com" || body.Order.Total != 12000 {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestPubSubDispatcherReportsChannelsIndependently(t *testing.T) {
	email := &fakePublisher{err: errors.New("broker down")}
	whatsapp := &fakePublisher{}
	d := newPubSubDispatcher(email, whatsapp, nil)

	result := d.NotifyOrderConfirmation(context.Background(), snapshotFixture())
	if result.Email == nil {
		t.Fatal("expected email failure")
	}
	if result.WhatsApp != nil {
		t.Fatalf("whatsapp should succeed, got %v", result.WhatsApp)
	}
	failed := result.Failed()
	if len(failed) != 1 || failed[0] != ChannelEmail {
		t.Fatalf("unexpected failed channels %v", failed)
	}
}

func TestPubSubDispatcherSkipsMissingRecipient(t *testing.T) {
	email := &fakePublisher{}
	whatsapp := &fakePublisher{}
	d := newPubSubDispatcher(email, whatsapp, nil)
	snap := snapshotFixture()
	snap.Email = ""

	result := d.NotifyOrderConfirmation(context.Background(), snap)
	if !errors.Is(result.Email, ErrNoRecipient) {
		t.Fatalf("expected skipped email, got %v", result.Email)
	}
	if result.Err() != nil {
		t.Fatalf("skipped channels are not failures: %v", result.Err())
	}
	if len(email.messages) != 0 {
		t.Fatal("nothing should be published without a recipient")
	}
}

func TestLogDispatcher(t *testing.T) {
	snap := snapshotFixture()
	snap.Phone = ""
	result := NewLogDispatcher(nil).NotifyOrderConfirmation(context.Background(), snap)
	if result.Email != nil {
		t.Fatalf("unexpected email result %v", result.Email)
	}
	if !errors.Is(result.WhatsApp, ErrNoRecipient) {
		t.Fatalf("expected whatsapp skipped, got %v", result.WhatsApp)
	}
}

func TestSnapshotForGuestAndUser(t *testing.T) {
	first, last, email := "Luis", "Soto", "luis@example.com"
	order := models.Order{
		OrderNumber:    "PP250310001",
		ContactPhone:   "+56900000000",
		GuestEmail:     &email,
		GuestFirstName: &first,
		GuestLastName:  &last,
		PaymentMethod:  enums.PaymentMethodCash,
		Items:          []models.OrderItem{{ProductName: "Pan", Price: 300, Quantity: 4}},
	}
	snap := Snapshot(order, nil)
	if snap.CustomerName != "Luis Soto" || snap.Email != email {
		t.Fatalf("unexpected guest snapshot %+v", snap)
	}
	if len(snap.Items) != 1 || snap.Items[0].LineTotal != 1200 {
		t.Fatalf("unexpected items %+v", snap.Items)
	}

	user := &models.User{Email: "ana@example.com", FirstName: "Ana"}
	snap = Snapshot(order, user)
	if snap.Email != "ana@example.com" || snap.CustomerName != "Ana" {
		t.Fatalf("unexpected user snapshot %+v", snap)
	}
}

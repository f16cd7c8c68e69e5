package enums

import "testing"

func TestParseOrderStatus(t *testing.T) {
	for _, status := range OrderStatuses() {
		got, err := ParseOrderStatus(string(status))
		if err != nil {
			t.Fatalf("parse %s: %v", status, err)
		}
		if got != status {
			t.Fatalf("expected %s got %s", status, got)
		}
		if status.Label() == "" || status.Label() == string(status) {
			t.Fatalf("status %s has no label", status)
		}
	}
	if _, err := ParseOrderStatus("SHIPPED"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	terminal := map[OrderStatus]bool{OrderStatusPickedUp: true, OrderStatusCancelled: true}
	for _, status := range OrderStatuses() {
		if status.IsTerminal() != terminal[status] {
			t.Fatalf("unexpected terminal flag for %s", status)
		}
	}
}

func TestEnumMembership(t *testing.T) {
	if !PaymentMethodWebpay.IsValid() || PaymentMethod("BITCOIN").IsValid() {
		t.Fatal("payment method membership is wrong")
	}
	if RoleSystem.IsValid() || !RoleSystem.IsStaff() {
		t.Fatal("system role must be staff but never valid in tokens")
	}
	if !EventPointsRedeemed.IsValid() || AggregateOrder == "" || !AggregateLoyaltyAccount.IsValid() {
		t.Fatal("outbox enums are wrong")
	}
	if _, err := ParseLoyaltyLevel("PLATINUM"); err == nil {
		t.Fatal("expected unknown level to fail")
	}
	statuses := OrderStatuses()
	statuses[0] = "MUTATED"
	if OrderStatuses()[0] != OrderStatusDraft {
		t.Fatal("OrderStatuses must return a copy")
	}
}

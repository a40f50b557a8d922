package enums

import "testing"

func TestParseOrderStatus(t *testing.T) {
	for _, status := range OrderStatuses() {
		got, err := ParseOrderStatus(status.String())
		if err != nil {
			t.Fatalf("parse %q: %v", status, err)
		}
		if got != status {
			t.Fatalf("expected %q got %q", status, got)
		}
	}
	if _, err := ParseOrderStatus("returned"); err == nil {
		t.Fatalf("expected unknown status to fail")
	}
	if _, err := ParseOrderStatus("Booked"); err == nil {
		t.Fatalf("status parsing is case sensitive")
	}
}

func TestOrderStatusTerminalAndStock(t *testing.T) {
	cases := map[OrderStatus]struct {
		terminal bool
		holds    bool
	}{
		OrderStatusBooked:       {terminal: false, holds: true},
		OrderStatusWithCustomer: {terminal: false, holds: true},
		OrderStatusCompleted:    {terminal: true, holds: true},
		OrderStatusCancelled:    {terminal: true, holds: false},
	}
	for status, want := range cases {
		if status.IsTerminal() != want.terminal {
			t.Fatalf("%s terminal: expected %v", status, want.terminal)
		}
		if status.HoldsStock() != want.holds {
			t.Fatalf("%s holds stock: expected %v", status, want.holds)
		}
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole("admin"); err != nil || r != RoleAdmin {
		t.Fatalf("expected admin role, got %q err=%v", r, err)
	}
	if _, err := ParseRole("owner"); err == nil {
		t.Fatalf("expected unknown role to fail")
	}
}

func TestEnumValidity(t *testing.T) {
	if !ItemStatusActive.IsValid() || ItemStatus("archived").IsValid() {
		t.Fatal("item status validity mismatch")
	}
	if !PaymentStatusCanceled.IsValid() || PaymentStatus("cancelled").IsValid() {
		t.Fatal("payment status uses the provider spelling")
	}
	if !OrderPaymentPaid.IsValid() || OrderPaymentStatus("refunded").IsValid() {
		t.Fatal("order payment status validity mismatch")
	}
	if !EventOrderPaid.IsValid() || OutboxEventType("order_exploded").IsValid() {
		t.Fatal("outbox event type validity mismatch")
	}
	if !AggregateOrder.IsValid() || OutboxAggregateType("cart").IsValid() {
		t.Fatal("aggregate type validity mismatch")
	}
}

func TestOrderStatusesReturnsCopy(t *testing.T) {
	got := OrderStatuses()
	got[0] = "mutated"
	if OrderStatuses()[0] != OrderStatusBooked {
		t.Fatal("caller must not be able to mutate the status list")
	}
}

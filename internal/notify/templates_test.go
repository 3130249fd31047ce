package notify

import (
	"strings"
	"testing"
)

func TestTemplatesCarryBrandAndEscapeHTML(t *testing.T) {
	tpl := Templates{Brand: "Purevit"}

	msg := tpl.OrderPlaced("a@example.com", "<Ann>", "abc123", 149.5)
	if msg.Subject != "Purevit - Order Placed Successfully" {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	if !strings.Contains(msg.Text, "₹149.50") || !strings.Contains(msg.Text, "abc123") {
		t.Fatalf("text body missing total or id: %q", msg.Text)
	}
	if strings.Contains(msg.HTML, "<Ann>") {
		t.Fatalf("expected name to be escaped in html body: %q", msg.HTML)
	}

	status := tpl.StatusUpdated("a@example.com", "Ann", "abc123", "Out for delivery")
	if status.Subject != "Purevit - Order status updated to Out for delivery" {
		t.Fatalf("unexpected subject %q", status.Subject)
	}

	otp := tpl.PasswordReset("a@example.com", "123456")
	if !strings.Contains(otp.Text, "123456") || otp.To != "a@example.com" {
		t.Fatalf("unexpected otp message %+v", otp)
	}
}

package notify

import (
	"fmt"
	"html"
)

// Templates renders the customer-facing emails for one storefront brand.
type Templates struct {
	Brand string
}

func (t Templates) OrderPlaced(to, name, orderID string, total float64) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s - Order Placed Successfully", t.Brand),
		Text: fmt.Sprintf("Hi %s,\n\nThank you for your order! Your order ID is %s.\nTotal amount: ₹%.2f\n\nWe will notify you when it ships.",
			name, orderID, total),
		HTML: fmt.Sprintf("<h1>Thank you for your order!</h1><p>Hi %s,</p><p>Your order ID is <b>%s</b>.</p><p>Total amount: ₹%.2f</p>",
			html.EscapeString(name), html.EscapeString(orderID), total),
	}
}

func (t Templates) StatusUpdated(to, name, orderID, status string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s - Order status updated to %s", t.Brand, status),
		Text:    fmt.Sprintf("Hi %s,\n\nYour order %s status has been updated to: %s.", name, orderID, status),
		HTML: fmt.Sprintf("<h1>Order Update</h1><p>Hi %s,</p><p>Your order <b>%s</b> status is now: <b>%s</b></p>",
			html.EscapeString(name), html.EscapeString(orderID), html.EscapeString(status)),
	}
}

func (t Templates) PasswordReset(to, otp string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s - Password Reset OTP", t.Brand),
		Text:    fmt.Sprintf("Your OTP for password reset is %s. It is valid for 10 minutes.", otp),
		HTML: fmt.Sprintf("<h1>Password Reset</h1><p>Your OTP for password reset is <b>%s</b>.</p><p>It is valid for 10 minutes.</p>",
			html.EscapeString(otp)),
	}
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	StatusProcessing     OrderStatus = "Processing"
	StatusOutForDelivery OrderStatus = "Out for delivery"
	StatusDelivered      OrderStatus = "Delivered"
	StatusCancelled      OrderStatus = "Cancelled"
	StatusReturned       OrderStatus = "Returned"
	StatusReplaced       OrderStatus = "Replaced"
)

// PaymentCOD is the cash-on-delivery marker used when no payment method is given.
const PaymentCOD = "COD"

var orderStatuses = []OrderStatus{
	StatusProcessing,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCancelled,
	StatusReturned,
	StatusReplaced,
}

// OrderStatuses lists every accepted status in display order.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(orderStatuses))
	copy(out, orderStatuses)
	return out
}

// Valid reports whether s is one of the known statuses.
func (s OrderStatus) Valid() bool {
	for _, known := range orderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// RestoresStock reports whether entering s gives the order's units back to stock.
func (s OrderStatus) RestoresStock() bool {
	return s == StatusCancelled || s == StatusReturned
}

// OrderItem is a line item. Name, price and image are snapshots taken at checkout.
type OrderItem struct {
	ProductID primitive.ObjectID `bson:"product" json:"product"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	Price     float64            `bson:"price" json:"price"`
	Name      string             `bson:"name,omitempty" json:"name,omitempty"`
	Image     string             `bson:"image,omitempty" json:"image,omitempty"`
}

// ShippingAddress is the postal destination of an order.
type ShippingAddress struct {
	Street  string `bson:"street,omitempty" json:"street,omitempty"`
	City    string `bson:"city,omitempty" json:"city,omitempty"`
	State   string `bson:"state,omitempty" json:"state,omitempty"`
	Zip     string `bson:"zip,omitempty" json:"zip,omitempty"`
	Country string `bson:"country,omitempty" json:"country,omitempty"`
	Phone   string `bson:"phone,omitempty" json:"phone,omitempty"`
}

// TimelineEntry records one status change.
type TimelineEntry struct {
	Status OrderStatus `bson:"status" json:"status"`
	Date   time.Time   `bson:"date" json:"date"`
}

// Order defines the persisted order document.
type Order struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	UserID          primitive.ObjectID `bson:"user" json:"user"`
	Items           []OrderItem        `bson:"items" json:"items"`
	TotalAmount     float64            `bson:"totalAmount" json:"totalAmount"`
	ShippingAddress ShippingAddress    `bson:"shippingAddress" json:"shippingAddress"`
	Status          OrderStatus        `bson:"status" json:"status"`
	Timeline        []TimelineEntry    `bson:"timeline" json:"timeline"`
	AdminNotes      string             `bson:"adminNotes,omitempty" json:"adminNotes,omitempty"`
	UserNotes       string             `bson:"userNotes,omitempty" json:"userNotes,omitempty"`
	PaymentMethod   string             `bson:"paymentMethod" json:"paymentMethod"`
	IsPaid          bool               `bson:"isPaid" json:"isPaid"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

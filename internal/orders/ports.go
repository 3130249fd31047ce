// Package orders runs the checkout and fulfilment workflow: stock moves on
// placement and on cancellation or return, every status change lands on the
// order timeline, and the customer is notified once the write has committed.
package orders

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/events"
	"storefront/internal/models"
	"storefront/internal/notify"
)

// StockRecord is the part of a product the workflow reads.
type StockRecord struct {
	ID    primitive.ObjectID
	Name  string
	Stock int
}

// StockLedger reads and writes product stock. Both calls return
// ErrProductNotFound for unknown or deleted products.
type StockLedger interface {
	FindProduct(ctx context.Context, id primitive.ObjectID) (StockRecord, error)
	SetStock(ctx context.Context, id primitive.ObjectID, stock int) error
}

// Store persists orders. FindByID returns ErrOrderNotFound for unknown ids.
type Store interface {
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	Save(ctx context.Context, order *models.Order) error
	ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error)
	ListAll(ctx context.Context) ([]models.Order, error)
}

type Contact struct {
	Name  string
	Email string
}

// Directory resolves the contact details of an order's owner.
type Directory interface {
	FindContact(ctx context.Context, userID primitive.ObjectID) (Contact, error)
}

type Notifier interface {
	Enqueue(ctx context.Context, msg notify.Message) error
}

// Transactor runs fn so that every store and ledger call made with the
// context it receives commits or aborts together.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Caller is the authenticated user placing an order.
type Caller struct {
	ID    primitive.ObjectID
	Name  string
	Email string
}

type CreateInput struct {
	Items           []models.OrderItem
	ShippingAddress models.ShippingAddress
	PaymentMethod   string
	ItemsPrice      float64
	TaxPrice        float64
	ShippingPrice   float64
	TotalPrice      float64
	UserNotes       string
}

// Deps bundles the collaborators of a Service. Notifier, Events, Directory
// and Transactor are optional.
type Deps struct {
	Ledger     StockLedger
	Store      Store
	Directory  Directory
	Notifier   Notifier
	Events     events.Publisher
	Transactor Transactor
	Templates  notify.Templates
}

package orders

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/events"
	"storefront/internal/logging"
	"storefront/internal/metrics"
	"storefront/internal/models"
	"storefront/internal/notify"
)

const sideEffectTimeout = 3 * time.Second

type Service struct {
	ledger    StockLedger
	store     Store
	directory Directory
	notifier  Notifier
	events    events.Publisher
	tx        Transactor
	templates notify.Templates
	policy    Policy
	now       func() time.Time
}

func NewService(deps Deps, policy Policy) *Service {
	if policy.Consistency == "" {
		policy.Consistency = ConsistencyTransaction
	}
	if policy.Consistency == ConsistencyTransaction && deps.Transactor == nil {
		log.Println("[ORDER] [WARN] no transactor configured, stock consistency falls back to none")
		policy.Consistency = ConsistencyNone
	}

	s := &Service{
		ledger:    deps.Ledger,
		store:     deps.Store,
		directory: deps.Directory,
		notifier:  deps.Notifier,
		events:    deps.Events,
		tx:        deps.Transactor,
		templates: deps.Templates,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },
	}
	if s.events == nil {
		s.events = events.Discard{}
	}
	return s
}

func (s *Service) Policy() Policy {
	return s.policy
}

/* =========================
   CREATE ORDER
========================= */

// CreateOrder takes stock for every line, persists the order in Processing
// and queues the confirmation email. Lines whose product is gone are skipped.
func (s *Service) CreateOrder(ctx context.Context, caller Caller, in CreateInput) (order *models.Order, err error) {
	defer func() { metrics.RecordOrderOperation("create", err == nil) }()

	if err := validateItems(in.Items); err != nil {
		return nil, err
	}

	now := s.now()
	items := make([]models.OrderItem, len(in.Items))
	copy(items, in.Items)

	order = &models.Order{
		ID:              primitive.NewObjectID(),
		UserID:          caller.ID,
		Items:           items,
		ShippingAddress: in.ShippingAddress,
		Status:          models.StatusProcessing,
		Timeline:        []models.TimelineEntry{},
		UserNotes:       in.UserNotes,
		PaymentMethod:   strings.TrimSpace(in.PaymentMethod),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if order.PaymentMethod == "" {
		order.PaymentMethod = models.PaymentCOD
	}
	if s.policy.TrustClientTotal {
		order.TotalAmount = in.TotalPrice
	} else {
		order.TotalAmount = orderTotal(items, in.TaxPrice, in.ShippingPrice)
	}

	err = s.inScope(ctx, "create", func(ctx context.Context, moves *moveLog) error {
		for _, item := range order.Items {
			if _, err := s.moveStock(ctx, order.ID, item.ProductID, -item.Quantity, moves); err != nil {
				return err
			}
		}
		if err := s.store.Create(ctx, order); err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return nil
	})
	if err != nil {
		log.Printf("[ORDER] [ERROR] order for user %s not created: %v", caller.ID.Hex(), err)
		return nil, err
	}

	log.Println("[ORDER] [INFO] order created:", order.ID.Hex())

	s.publish(ctx, events.New(events.TypeOrderCreated, order.ID.Hex(), map[string]any{
		"user":        caller.ID.Hex(),
		"items":       len(order.Items),
		"totalAmount": order.TotalAmount,
	}))
	to := s.recipient(ctx, caller)
	s.notifyCustomer(ctx, order.ID, s.templates.OrderPlaced(to.Email, to.Name, order.ID.Hex(), order.TotalAmount))

	return order, nil
}

func validateItems(items []models.OrderItem) error {
	if len(items) == 0 {
		return ValidationError{Message: "No order items"}
	}
	for i, item := range items {
		if item.ProductID.IsZero() {
			return ValidationError{Message: fmt.Sprintf("item %d: product is required", i+1)}
		}
		if item.Quantity <= 0 {
			return ValidationError{Message: fmt.Sprintf("item %d: quantity must be a positive integer", i+1)}
		}
		if item.Price < 0 {
			return ValidationError{Message: fmt.Sprintf("item %d: price must not be negative", i+1)}
		}
	}
	return nil
}

/* =========================
   UPDATE STATUS
========================= */

// UpdateStatus moves an order to target. Entering Cancelled or Returned from
// any other status gives the units back; any later move between those two
// does not. Every call appends one timeline entry.
func (s *Service) UpdateStatus(ctx context.Context, orderID primitive.ObjectID, target models.OrderStatus, adminNote string) (order *models.Order, err error) {
	defer func() { metrics.RecordOrderOperation("update_status", err == nil) }()

	if !target.Valid() {
		return nil, ValidationError{Message: "Invalid status"}
	}

	var previous models.OrderStatus
	restored := 0

	err = s.inScope(ctx, "update_status", func(ctx context.Context, moves *moveLog) error {
		current, err := s.store.FindByID(ctx, orderID)
		if err != nil {
			return err
		}

		previous = current.Status
		restored = 0
		if target.RestoresStock() && !previous.RestoresStock() {
			for _, item := range current.Items {
				applied, err := s.moveStock(ctx, current.ID, item.ProductID, item.Quantity, moves)
				if err != nil {
					return err
				}
				if applied {
					restored += item.Quantity
				}
			}
		}

		now := s.now()
		current.Status = target
		if adminNote != "" {
			current.AdminNotes = adminNote
		}
		current.Timeline = append(current.Timeline, models.TimelineEntry{Status: target, Date: now})
		current.UpdatedAt = now

		if err := s.store.Save(ctx, current); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		order = current
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrOrderNotFound) {
			log.Printf("[ORDER] [ERROR] status update of %s failed: %v", orderID.Hex(), err)
		}
		return nil, err
	}

	metrics.RecordStockRestored(restored)
	log.Printf("[ORDER] [INFO] order %s: %s -> %s (restored %d units)", order.ID.Hex(), previous, target, restored)

	s.publish(ctx, events.New(events.TypeOrderStatusUpdated, order.ID.Hex(), map[string]any{
		"from":     string(previous),
		"to":       string(target),
		"restored": restored,
	}))

	if s.directory != nil {
		contact, err := s.directory.FindContact(ctx, order.UserID)
		if err != nil {
			log.Printf("[ORDER] [WARN] owner of order %s not resolved: %v", order.ID.Hex(), err)
		} else {
			s.notifyCustomer(ctx, order.ID, s.templates.StatusUpdated(contact.Email, contact.Name, order.ID.Hex(), string(target)))
		}
	}

	return order, nil
}

/* =========================
   PAYMENT + READS
========================= */

// MarkPaid flags the order as paid. Status and timeline are left alone.
func (s *Service) MarkPaid(ctx context.Context, orderID primitive.ObjectID) (order *models.Order, err error) {
	defer func() { metrics.RecordOrderOperation("mark_paid", err == nil) }()

	order, err = s.store.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	order.IsPaid = true
	order.UpdatedAt = s.now()
	if err := s.store.Save(ctx, order); err != nil {
		return nil, fmt.Errorf("save order: %w", err)
	}

	s.publish(ctx, events.New(events.TypeOrderPaid, order.ID.Hex(), nil))
	return order, nil
}

func (s *Service) Get(ctx context.Context, orderID primitive.ObjectID) (*models.Order, error) {
	return s.store.FindByID(ctx, orderID)
}

func (s *Service) ListForUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	return s.store.ListByUser(ctx, userID)
}

func (s *Service) ListAll(ctx context.Context) ([]models.Order, error) {
	return s.store.ListAll(ctx)
}

/* =========================
   SIDE EFFECTS
========================= */

func (s *Service) publish(ctx context.Context, evt events.Event) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err := s.events.Publish(pubCtx, evt); err != nil {
		log.Printf("[ORDER] [WARN] event %s for order %s not published: %v", evt.Type, evt.OrderID, err)
	}
}

// recipient prefers the address on record over the one carried by the token,
// which can be stale after a profile change.
func (s *Service) recipient(ctx context.Context, caller Caller) Contact {
	fallback := Contact{Name: caller.Name, Email: caller.Email}
	if s.directory == nil {
		return fallback
	}
	contact, err := s.directory.FindContact(ctx, caller.ID)
	if err != nil {
		log.Printf("[ORDER] [WARN] contact of user %s not resolved, using token claims: %v", caller.ID.Hex(), err)
		return fallback
	}
	if contact.Email == "" {
		return fallback
	}
	if contact.Name == "" {
		contact.Name = caller.Name
	}
	return contact
}

func (s *Service) notifyCustomer(ctx context.Context, orderID primitive.ObjectID, msg notify.Message) {
	if s.notifier == nil {
		return
	}
	if msg.To == "" {
		log.Printf("[ORDER] [INFO] order %s: no email on record, notification skipped", orderID.Hex())
		return
	}

	enqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if err := s.notifier.Enqueue(enqCtx, msg); err != nil {
		log.Printf("[ORDER] [WARN] notification for order %s not queued: %v", orderID.Hex(), err)
	}
}

func (s *Service) reportDrift(orderID, productID primitive.ObjectID) {
	metrics.RecordStockDrift()
	logging.Warn(logging.Fields{
		Event:     "stock.drift",
		OrderID:   orderID.Hex(),
		ProductID: productID.Hex(),
		Message:   "order line references a product that is no longer in the catalog",
	})
}

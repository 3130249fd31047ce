// Package orderstest provides in-memory implementations of the orders ports.
package orderstest

import (
	"context"
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/events"
	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/orders"
)

/* =========================
   LEDGER
========================= */

type Ledger struct {
	mu     sync.Mutex
	stock  map[primitive.ObjectID]int
	writes int
	// SetErr, when set, is returned by every SetStock call.
	SetErr error
}

func NewLedger() *Ledger {
	return &Ledger{stock: map[primitive.ObjectID]int{}}
}

// Add registers a product with the given stock and returns its id.
func (l *Ledger) Add(stock int) primitive.ObjectID {
	id := primitive.NewObjectID()
	l.Put(id, stock)
	return id
}

func (l *Ledger) Put(id primitive.ObjectID, stock int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stock[id] = stock
}

func (l *Ledger) Delete(id primitive.ObjectID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.stock, id)
}

func (l *Ledger) Stock(id primitive.ObjectID) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.stock[id]
	return v, ok
}

// Writes counts successful SetStock calls.
func (l *Ledger) Writes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writes
}

func (l *Ledger) FindProduct(_ context.Context, id primitive.ObjectID) (orders.StockRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.stock[id]
	if !ok {
		return orders.StockRecord{}, orders.ErrProductNotFound
	}
	return orders.StockRecord{ID: id, Stock: v}, nil
}

func (l *Ledger) SetStock(_ context.Context, id primitive.ObjectID, stock int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.SetErr != nil {
		return l.SetErr
	}
	if _, ok := l.stock[id]; !ok {
		return orders.ErrProductNotFound
	}
	l.stock[id] = stock
	l.writes++
	return nil
}

func (l *Ledger) snapshot() map[primitive.ObjectID]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[primitive.ObjectID]int, len(l.stock))
	for k, v := range l.stock {
		out[k] = v
	}
	return out
}

func (l *Ledger) restore(snap map[primitive.ObjectID]int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stock = snap
}

/* =========================
   STORE
========================= */

type Store struct {
	mu     sync.Mutex
	orders map[primitive.ObjectID]models.Order
	// CreateErr and SaveErr, when set, fail the matching call.
	CreateErr error
	SaveErr   error
}

func NewStore() *Store {
	return &Store{orders: map[primitive.ObjectID]models.Order{}}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Store) Create(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateErr != nil {
		return s.CreateErr
	}
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	s.orders[order.ID] = cloneOrder(*order)
	return nil
}

func (s *Store) FindByID(_ context.Context, id primitive.ObjectID) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, orders.ErrOrderNotFound
	}
	out := cloneOrder(o)
	return &out, nil
}

func (s *Store) Save(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.SaveErr != nil {
		return s.SaveErr
	}
	if _, ok := s.orders[order.ID]; !ok {
		return orders.ErrOrderNotFound
	}
	s.orders[order.ID] = cloneOrder(*order)
	return nil
}

func (s *Store) ListByUser(_ context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	return s.list(func(o models.Order) bool { return o.UserID == userID }), nil
}

func (s *Store) ListAll(_ context.Context) ([]models.Order, error) {
	return s.list(func(models.Order) bool { return true }), nil
}

func (s *Store) list(keep func(models.Order) bool) []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Order{}
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Store) snapshot() map[primitive.ObjectID]models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[primitive.ObjectID]models.Order, len(s.orders))
	for k, v := range s.orders {
		out[k] = cloneOrder(v)
	}
	return out
}

func (s *Store) restore(snap map[primitive.ObjectID]models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = snap
}

func cloneOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	o.Timeline = append([]models.TimelineEntry{}, o.Timeline...)
	return o
}

/* =========================
   TRANSACTOR
========================= */

// Transactor snapshots the ledger and store and puts them back when fn fails.
type Transactor struct {
	Ledger *Ledger
	Store  *Store
	Calls  int
}

func (t *Transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.Calls++
	stock := t.Ledger.snapshot()
	saved := t.Store.snapshot()
	if err := fn(ctx); err != nil {
		t.Ledger.restore(stock)
		t.Store.restore(saved)
		return err
	}
	return nil
}

/* =========================
   DIRECTORY, NOTIFIER, EVENTS
========================= */

type Directory struct {
	Contacts map[primitive.ObjectID]orders.Contact
	Err      error
}

func (d *Directory) FindContact(_ context.Context, userID primitive.ObjectID) (orders.Contact, error) {
	if d.Err != nil {
		return orders.Contact{}, d.Err
	}
	return d.Contacts[userID], nil
}

type Notifier struct {
	mu       sync.Mutex
	Err      error
	messages []notify.Message
}

func (n *Notifier) Enqueue(_ context.Context, msg notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.Err != nil {
		return n.Err
	}
	n.messages = append(n.messages, msg)
	return nil
}

func (n *Notifier) Messages() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.messages...)
}

type Events struct {
	mu     sync.Mutex
	Err    error
	events []events.Event
}

func (e *Events) Publish(_ context.Context, evt events.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return e.Err
	}
	e.events = append(e.events, evt)
	return nil
}

func (e *Events) Types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.events))
	for _, evt := range e.events {
		out = append(out, evt.Type)
	}
	return out
}

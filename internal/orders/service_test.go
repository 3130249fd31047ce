package orders_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/orders"
	"storefront/internal/orders/orderstest"
)

type fixture struct {
	ledger    *orderstest.Ledger
	store     *orderstest.Store
	directory *orderstest.Directory
	notifier  *orderstest.Notifier
	events    *orderstest.Events
	tx        *orderstest.Transactor
	svc       *orders.Service
}

func newFixture(t *testing.T, policy orders.Policy) *fixture {
	t.Helper()
	f := &fixture{
		ledger:    orderstest.NewLedger(),
		store:     orderstest.NewStore(),
		directory: &orderstest.Directory{Contacts: map[primitive.ObjectID]orders.Contact{}},
		notifier:  &orderstest.Notifier{},
		events:    &orderstest.Events{},
	}
	f.tx = &orderstest.Transactor{Ledger: f.ledger, Store: f.store}
	f.svc = orders.NewService(orders.Deps{
		Ledger:     f.ledger,
		Store:      f.store,
		Directory:  f.directory,
		Notifier:   f.notifier,
		Events:     f.events,
		Transactor: f.tx,
		Templates:  notify.Templates{Brand: "Purevit"},
	}, policy)
	return f
}

func (f *fixture) stock(t *testing.T, id primitive.ObjectID) int {
	t.Helper()
	v, ok := f.ledger.Stock(id)
	if !ok {
		t.Fatalf("product %s missing from ledger", id.Hex())
	}
	return v
}

var buyer = orders.Caller{ID: primitive.NewObjectID(), Name: "Ann", Email: "ann@example.com"}

func item(id primitive.ObjectID, qty int, price float64) models.OrderItem {
	return models.OrderItem{ProductID: id, Quantity: qty, Price: price, Name: "Vitamin C", Image: "/uploads/c.jpg"}
}

// placeTwoLines creates the reference order: P1 x2 (stock 10), P2 x1 (stock 5).
func placeTwoLines(t *testing.T, f *fixture) (p1, p2 primitive.ObjectID, order *models.Order) {
	t.Helper()
	p1 = f.ledger.Add(10)
	p2 = f.ledger.Add(5)

	order, err := f.svc.CreateOrder(context.Background(), buyer, orders.CreateInput{
		Items: []models.OrderItem{item(p1, 2, 100), item(p2, 1, 50)},
	})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return p1, p2, order
}

/* =========================
   CREATE
========================= */

func TestCreateOrderDecrementsStockAndStartsProcessing(t *testing.T) {
	f := newFixture(t, orders.DefaultPolicy())
	p1, p2, order := placeTwoLines(t, f)

	if got := f.stock(t, p1); got != 8 {
		t.Fatalf("expected P1 stock 8, got %d", got)
	}
	if got := f.stock(t, p2); got != 4 {
		t.Fatalf("expected P2 stock 4, got %d", got)
	}
	if order.ID.IsZero() {
		t.Fatalf("expected an assigned order id")
	}
	if order.Status != models.StatusProcessing {
		t.Fatalf("expected Processing, got %s", order.Status)
	}
	if order.Timeline == nil || len(order.Timeline) != 0 {
		t.Fatalf("expected an empty timeline, got %v", order.Timeline)
	}
	if order.PaymentMethod != models.PaymentCOD {
		t.Fatalf("expected default payment method COD, got %q", order.PaymentMethod)
	}
	if order.UserID != buyer.ID {
		t.Fatalf("expected order owned by caller")
	}
	if f.tx.Calls != 1 {
		t.Fatalf("expected one transaction, got %d", f.tx.Calls)
	}
}

func TestCreateOrderKeepsItemSnapshots(t *testing.T) {
	f := newFixture(t, orders.DefaultPolicy())
	p := f.ledger.Add(3)

	in := item(p, 1, 42.5)
	in.Name = "Old label"
	order, err := f.svc.CreateOrder(context.Background(), buyer, orders.CreateInput{Items: []models.OrderItem{in}})
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}

	stored, err := f.svc.Get(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Items[0].Name != "Old label" || stored.Items[0].Price != 42.5 || stored.Items[0].Image != in.Image {
		t.Fatalf("item snapshot changed: %+v", stored.Items[0])
	}
}

func TestCreateOrderSkipsMissingProducts(t *testing.T) {
	f := newFixture(t, orders.DefaultPolicy())
	p1 := f.ledger.Add(10)
	ghost := primitive.NewObjectID()

	order, err := f.svc.CreateOrder(context.Background(), buyer, orders.CreateInput{
		Items: []models.OrderItem{item(ghost, 4, 10), item(p1, 3, 10)},
	})
	if err != nil {
		t.Fatalf("expected missing product to be tolerated, got %v", err)
	}
	if got := f.stock(t, p1); got != 7 {
		t.Fatalf("expected P1 stock 7, got %d", got)
	}
	if _, ok := f.ledger.Stock(ghost); ok {
		t.Fatalf("missing product must not be created")
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected both lines kept on the order, got %d", len(order.Items))
	}
}

func TestCreateOrderRejectsInvalidItems(t *testing.T) {
	p := primitive.NewObjectID()
	cases := map[string][]models.OrderItem{
		"empty":         nil,
		"zero quantity": {item(p, 0, 10)},
		"negative qty":  {item(p, -1, 10)},
		"no product":    {item(primitive.NilObjectID, 1, 10)},
		"negative cost": {item(p, 1, -5)},
	}

	for name, items := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, orders.DefaultPolicy())
			f.ledger.Put(p, 10)

			_, err := f.svc.CreateOrder(context.Background(), buyer, orders.CreateInput{Items: items})
			if !errors.Is(err, orders.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if f.ledger.Writes() != 0 || f.store.Len() != 0 {
				t.Fatalf("expected no mutation on validation failure")
			}
		})
	}
}

func TestCreateOrderSucceedsWhenNotificationFails(t *testing.T) {
	f := newFixture(t, orders.DefaultPolicy())
	f.notifier.Err = notify.ErrQueueFull
	f.events.Err = errors.New("broker down")
	p := f.ledger.Add(2)

	order, err := f.svc.CreateOrder(context.Background(), buyer, orders.CreateInput{Items: []models.OrderItem{item(p, 1, 10)}})
	if err != nil {
		t.Fatalf("expected success despite notification failure, got %v", err)
	}
	if order == nil || order.ID.IsZero() {
		t.Fatalf("expected persisted order with id")
	}
	if f.store.Len() != 1 {
		t.Fatalf("expected order stored")
	}
}

func TestCreateOrderQueuesConfirmationAndEvent(t *testing.T) {
	f := newFixture(t, orders.DefaultPolicy())
	_, _, order := placeTwoLines(t, f)

	msgs := f.notifier.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one notification, got %d", len(msgs))
	}
	if msgs[0].To != buyer.Email || !strings.Contains(msgs[0].Text, order.ID.Hex()) {
		t.Fatalf("unexpected confirmation %+v", msgs[0])
	}
	if types := f.events.Types(); len(types) != 1 || types[0] != "order.created" {
		t.Fatalf("expected order.created event, got %v", types)
	}
}

func TestCreateOrderMailsAddressOnRecord(t *testing.T) {
	f := newFixture(t, orders.DefaultPolicy())
	f.directory.Contacts[buyer.ID] = orders.Contact{Name: "Ann B", Email: "ann.new@example.com"}
	placeTwoLines(t, f)

	msgs := f.notifier.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one notification, got %d", len(msgs))
	}
	if msgs[0].To != "ann.new@example.com" {
		t.Fatalf("expected the current address, got %q", msgs[0].To)
	}
	if !strings.Contains(msgs[0].Text, "Ann B") {
		t.Fatalf("expected the name on record in %q", msgs[0].Text)
	}
}

func TestCreateOrderFallsBackToCallerWhenLookupFails(t *testing.T) {
	f := newFixture(t, orders.DefaultPolicy())
	f.directory.Err = errors.New("user lookup failed")
	placeTwoLines(t, f)

	msgs := f.notifier.Messages()
	if len(msgs) != 1 || msgs[0].To != buyer.Email {
		t.Fatalf("expected confirmation to the token address, got %+v", msgs)
	}
}

func TestCreateOrderTotal(t *testing.T) {
	p := primitive.NewObjectID()
	in := orders.CreateInput{
		Items:         []models.OrderItem{item(p, 3, 19.99), item(p, 1, 0.1)},
		TaxPrice:      5.005,
		ShippingPrice: 40,
		TotalPrice:    1,
	}

	f := newFixture(t, orders.DefaultPolicy())
	f.ledger.Put(p, 100)
	order, err := f.svc.CreateOrder(context.Background(), buyer, in)
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if order.TotalAmount != 105.08 {
		t.Fatalf("expected recomputed total 105.08, got %v", order.TotalAmount)
	}

	trusting := orders.DefaultPolicy()
	trusting.TrustClientTotal = true
	f = newFixture(t, trusting)
	f.ledger.Put(p, 100)
	order, err = f.svc.CreateOrder(context.Background(), buyer, in)
	if err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if order.TotalAmount != 1 {
		t.Fatalf("expected client total 1, got %v", order.TotalAmount)
	}
}

func TestCreateOrderAllowsNegativeStockByDefault(t *testing.T) {
	f := newFixture(t, orders.DefaultPolicy())
	p := f.ledger.Add(1)

	if _, err := f.svc.CreateOrder(context.Background(), buyer, orders.CreateInput{Items: []models.OrderItem{item(p, 3, 10)}}); err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	if got := f.stock(t, p); got != -2 {
		t.Fatalf("expected stock -2, got %d", got)
	}
}

func TestCreateOrderStrictStockPerConsistency(t *testing.T) {
	cases := []struct {
		consistency orders.Consistency
		wantFirst   int
	}{
		{orders.ConsistencyTransaction, 10},
		{orders.ConsistencyCompensate, 10},
		{orders.ConsistencyNone, 8},
	}

	for _, tc := range cases {
		t.Run(string(tc.consistency), func(t *testing.T) {
			f := newFixture(t, orders.Policy{Consistency: tc.consistency})
			first := f.ledger.Add(10)
			short := f.ledger.Add(1)

			_, err := f.svc.CreateOrder(context.Background(), buyer, orders.CreateInput{
				Items: []models.OrderItem{item(first, 2, 10), item(short, 2, 10)},
			})

			var stockErr orders.InsufficientStockError
			if !errors.As(err, &stockErr) || !errors.Is(err, orders.ErrInsufficientStock) {
				t.Fatalf("expected insufficient stock error, got %v", err)
			}
			if stockErr.ProductID != short || stockErr.Available != 1 || stockErr.Requested != 2 {
				t.Fatalf("unexpected error detail %+v", stockErr)
			}
			if got := f.stock(t, first); got != tc.wantFirst {
				t.Fatalf("expected first product stock %d, got %d", tc.wantFirst, got)
			}
			if got := f.stock(t, short); got != 1 {
				t.Fatalf("short product must stay at 1, got %d", got)
			}
			if f.store.Len() != 0 {
				t.Fatalf("no order may be stored")
			}
		})
	}
}

func TestCreateOrderPersistenceFailure(t *testing.T) {
	cases := []struct {
		consistency orders.Consistency
		want        int
	}{
		{orders.ConsistencyNone, 8},
		{orders.ConsistencyCompensate, 10},
		{orders.ConsistencyTransaction, 10},
	}

	for _, tc := range cases {
		t.Run(string(tc.consistency), func(t *testing.T) {
			f := newFixture(t, orders.Policy{AllowNegativeStock: true, Consistency: tc.consistency})
			f.store.CreateErr = errors.New("disk full")
			p := f.ledger.Add(10)

			_, err := f.svc.CreateOrder(context.Background(), buyer, orders.CreateInput{Items: []models.OrderItem{item(p, 2, 10)}})
			if err == nil {
				t.Fatalf("expected persistence failure to surface")
			}
			if got := f.stock(t, p); got != tc.want {
				t.Fatalf("expected stock %d, got %d", tc.want, got)
			}
			if len(f.notifier.Messages()) != 0 {
				t.Fatalf("no notification may be sent for a failed order")
			}
		})
	}
}

/* =========================
   UPDATE STATUS
========================= */

func TestUpdateStatusReturnedRestoresStock(t *testing.T) {
	f := newFixture(t, orders.DefaultPolicy())
	p1, p2, order := placeTwoLines(t, f)

	updated, err := f.svc.UpdateStatus(context.Background(), order.ID, models.StatusReturned, "")
	if err != nil {
		t.Fatalf("update status failed: %v", err)
	}
	if f.stock(t, p1) != 10 || f.stock(t, p2) != 5 {
		t.Fatalf("expected stock restored to 10/5, got %d/%d", f.stock(t, p1), f.stock(t, p2))
	}
	if len(updated.Timeline) != 1 || updated.Timeline[0].Status != models.StatusReturned || updated.Timeline[0].Date.IsZero() {
		t.Fatalf("expected one Returned timeline entry, got %+v", updated.Timeline)
	}
}

func TestUpdateStatusRestoresOnlyOnce(t *testing.T) {
	f := newFixture(t, orders.DefaultPolicy())
	p1, p2, order := placeTwoLines(t, f)

	if _, err := f.svc.UpdateStatus(context.Background(), order.ID, models.StatusCancelled, ""); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if _, err := f.svc.UpdateStatus(context.Background(), order.ID, models.StatusReturned, ""); err != nil {
		t.Fatalf("return failed: %v", err)
	}
	if _, err := f.svc.UpdateStatus(context.Background(), order.ID, models.StatusCancelled, ""); err != nil {
		t.Fatalf("second cancel failed: %v", err)
	}

	if f.stock(t, p1) != 10 || f.stock(t, p2) != 5 {
		t.Fatalf("expected stock restored exactly once, got %d/%d", f.stock(t, p1), f.stock(t, p2))
	}
}

func TestUpdateStatusDeliveryPathLeavesStockAlone(t *testing.T) {
	f := newFixture(t, orders.DefaultPolicy())
	p1, _, order := placeTwoLines(t, f)
	writes := f.ledger.Writes()

	for _, status := range []models.OrderStatus{models.StatusOutForDelivery, models.StatusDelivered, models.StatusReplaced} {
		if _, err := f.svc.UpdateStatus(context.Background(), order.ID, status, ""); err != nil {
			t.Fatalf("update to %s failed: %v", status, err)
		}
	}

	if f.ledger.Writes() != writes {
		t.Fatalf("expected no stock writes, got %d", f.ledger.Writes()-writes)
	}
	if got := f.stock(t, p1); got != 8 {
		t.Fatalf("expected P1 stock 8, got %d", got)
	}
}

func TestUpdateStatusAppendsTimelineForSameStatus(t *testing.T) {
	f := newFixture(t, orders.DefaultPolicy())
	_, _, order := placeTwoLines(t, f)

	var updated *models.Order
	var err error
	for i := 0; i < 2; i++ {
		updated, err = f.svc.UpdateStatus(context.Background(), order.ID, models.StatusProcessing, "")
		if err != nil {
			t.Fatalf("update failed: %v", err)
		}
	}
	if len(updated.Timeline) != 2 {
		t.Fatalf("expected 2 timeline entries, got %d", len(updated.Timeline))
	}
}

func TestUpdateStatusSkipsDeletedProduct(t *testing.T) {
	f := newFixture(t, orders.DefaultPolicy())
	p1, p2, order := placeTwoLines(t, f)
	f.ledger.Delete(p1)

	if _, err := f.svc.UpdateStatus(context.Background(), order.ID, models.StatusCancelled, ""); err != nil {
		t.Fatalf("expected cancel to tolerate a deleted product, got %v", err)
	}
	if got := f.stock(t, p2); got != 5 {
		t.Fatalf("expected P2 restored to 5, got %d", got)
	}
	if _, ok := f.ledger.Stock(p1); ok {
		t.Fatalf("deleted product must not reappear")
	}
}

func TestUpdateStatusErrors(t *testing.T) {
	f := newFixture(t, orders.DefaultPolicy())
	_, _, order := placeTwoLines(t, f)
	writes := f.ledger.Writes()

	if _, err := f.svc.UpdateStatus(context.Background(), primitive.NewObjectID(), models.StatusCancelled, ""); !errors.Is(err, orders.ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := f.svc.UpdateStatus(context.Background(), order.ID, models.OrderStatus("Shipped"), ""); !errors.Is(err, orders.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.ledger.Writes() != writes {
		t.Fatalf("failed updates must not touch stock")
	}
}

func TestUpdateStatusSaveFailureUndoesRestoration(t *testing.T) {
	for _, consistency := range []orders.Consistency{orders.ConsistencyTransaction, orders.ConsistencyCompensate} {
		t.Run(string(consistency), func(t *testing.T) {
			f := newFixture(t, orders.Policy{AllowNegativeStock: true, Consistency: consistency})
			p1, _, order := placeTwoLines(t, f)
			f.store.SaveErr = errors.New("write conflict")

			if _, err := f.svc.UpdateStatus(context.Background(), order.ID, models.StatusCancelled, ""); err == nil {
				t.Fatalf("expected save failure to surface")
			}
			if got := f.stock(t, p1); got != 8 {
				t.Fatalf("expected restoration undone (8), got %d", got)
			}
		})
	}
}

func TestUpdateStatusAdminNotes(t *testing.T) {
	f := newFixture(t, orders.DefaultPolicy())
	_, _, order := placeTwoLines(t, f)

	updated, err := f.svc.UpdateStatus(context.Background(), order.ID, models.StatusOutForDelivery, "courier picked up")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.AdminNotes != "courier picked up" {
		t.Fatalf("expected admin note stored, got %q", updated.AdminNotes)
	}

	updated, err = f.svc.UpdateStatus(context.Background(), order.ID, models.StatusDelivered, "")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.AdminNotes != "courier picked up" {
		t.Fatalf("empty note must not clear the stored one, got %q", updated.AdminNotes)
	}
}

func TestUpdateStatusNotifiesOwner(t *testing.T) {
	f := newFixture(t, orders.DefaultPolicy())
	f.directory.Contacts[buyer.ID] = orders.Contact{Name: buyer.Name, Email: buyer.Email}
	_, _, order := placeTwoLines(t, f)

	if _, err := f.svc.UpdateStatus(context.Background(), order.ID, models.StatusOutForDelivery, ""); err != nil {
		t.Fatalf("update failed: %v", err)
	}

	msgs := f.notifier.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected confirmation and status mail, got %d", len(msgs))
	}
	if msgs[1].Subject != "Purevit - Order status updated to Out for delivery" {
		t.Fatalf("unexpected subject %q", msgs[1].Subject)
	}
}

func TestUpdateStatusWithoutOwnerEmailStillSucceeds(t *testing.T) {
	f := newFixture(t, orders.DefaultPolicy())
	_, _, order := placeTwoLines(t, f)
	f.directory.Err = errors.New("user lookup failed")

	if _, err := f.svc.UpdateStatus(context.Background(), order.ID, models.StatusDelivered, ""); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if len(f.notifier.Messages()) != 1 {
		t.Fatalf("expected only the confirmation mail")
	}
}

/* =========================
   PAYMENT + READS
========================= */

func TestMarkPaidLeavesStatusAndTimeline(t *testing.T) {
	f := newFixture(t, orders.DefaultPolicy())
	_, _, order := placeTwoLines(t, f)

	paid, err := f.svc.MarkPaid(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if !paid.IsPaid || paid.Status != models.StatusProcessing || len(paid.Timeline) != 0 {
		t.Fatalf("unexpected paid order %+v", paid)
	}
	if _, err := f.svc.MarkPaid(context.Background(), primitive.NewObjectID()); !errors.Is(err, orders.ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListForUserOnlyReturnsOwnOrders(t *testing.T) {
	f := newFixture(t, orders.DefaultPolicy())
	placeTwoLines(t, f)

	other := orders.Caller{ID: primitive.NewObjectID(), Email: "bob@example.com"}
	p := f.ledger.Add(1)
	if _, err := f.svc.CreateOrder(context.Background(), other, orders.CreateInput{Items: []models.OrderItem{item(p, 1, 1)}}); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	mine, err := f.svc.ListForUser(context.Background(), buyer.ID)
	if err != nil || len(mine) != 1 {
		t.Fatalf("expected one order for buyer, got %d (%v)", len(mine), err)
	}
	all, err := f.svc.ListAll(context.Background())
	if err != nil || len(all) != 2 {
		t.Fatalf("expected two orders in total, got %d (%v)", len(all), err)
	}
}

func TestParseConsistency(t *testing.T) {
	if c, err := orders.ParseConsistency(" Compensate "); err != nil || c != orders.ConsistencyCompensate {
		t.Fatalf("expected compensate, got %q (%v)", c, err)
	}
	if c, err := orders.ParseConsistency(""); err != nil || c != orders.ConsistencyTransaction {
		t.Fatalf("expected transaction default, got %q (%v)", c, err)
	}
	if _, err := orders.ParseConsistency("eventual"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

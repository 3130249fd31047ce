package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/idempotency"
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/orders"
)

// IdempotencyKeys is the key store consulted when a client sends an
// Idempotency-Key header with an order. *idempotency.Store implements it.
type IdempotencyKeys interface {
	Claim(ctx context.Context, scope, key string) (idempotency.Claim, error)
	Complete(ctx context.Context, scope, key, orderID string) error
	Release(ctx context.Context, scope, key string) error
}

type orderItemRequest struct {
	Product string  `json:"product"`
	Qty     int     `json:"qty"`
	Price   float64 `json:"price"`
	Name    string  `json:"name"`
	Image   string  `json:"image"`
}

type createOrderRequest struct {
	OrderItems      []orderItemRequest     `json:"orderItems"`
	ShippingAddress models.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   string                 `json:"paymentMethod"`
	ItemsPrice      float64                `json:"itemsPrice"`
	TaxPrice        float64                `json:"taxPrice"`
	ShippingPrice   float64                `json:"shippingPrice"`
	TotalPrice      float64                `json:"totalPrice"`
	UserNotes       string                 `json:"userNotes"`
}

type updateOrderStatusRequest struct {
	Status     string `json:"status"`
	AdminNotes string `json:"adminNotes"`
}

func (r createOrderRequest) toInput() (orders.CreateInput, error) {
	items := make([]models.OrderItem, 0, len(r.OrderItems))
	for _, item := range r.OrderItems {
		productID, err := primitive.ObjectIDFromHex(strings.TrimSpace(item.Product))
		if err != nil {
			return orders.CreateInput{}, orders.ValidationError{Message: "Invalid product id: " + item.Product}
		}
		items = append(items, models.OrderItem{
			ProductID: productID,
			Quantity:  item.Qty,
			Price:     item.Price,
			Name:      strings.TrimSpace(item.Name),
			Image:     strings.TrimSpace(item.Image),
		})
	}

	return orders.CreateInput{
		Items:           items,
		ShippingAddress: r.ShippingAddress,
		PaymentMethod:   r.PaymentMethod,
		ItemsPrice:      r.ItemsPrice,
		TaxPrice:        r.TaxPrice,
		ShippingPrice:   r.ShippingPrice,
		TotalPrice:      r.TotalPrice,
		UserNotes:       strings.TrimSpace(r.UserNotes),
	}, nil
}

/* =========================
   POST /api/orders
========================= */

// CreateOrder places an order for the caller. keys may be nil, in which case
// the Idempotency-Key header is ignored.
func CreateOrder(svc *orders.Service, keys IdempotencyKeys) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/orders"
		defer handlePanic(c, route)

		identity, ok := middleware.CurrentIdentity(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "Not authorized, no token")
			return
		}

		var req createOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "Invalid request body")
			return
		}

		input, err := req.toInput()
		if err != nil {
			respondOrderError(c, route, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		scope := identity.UserID.Hex()
		key := strings.TrimSpace(c.GetHeader(idempotency.Header))
		useKey := keys != nil && key != ""

		if useKey {
			claim, err := keys.Claim(ctx, scope, key)
			if err != nil {
				respondOrderError(c, route, err)
				return
			}
			if !claim.Claimed {
				replayOrder(ctx, c, svc, route, claim.OrderID)
				return
			}
		}

		order, err := svc.CreateOrder(ctx, orders.Caller{
			ID:    identity.UserID,
			Name:  identity.Name,
			Email: identity.Email,
		}, input)
		if err != nil {
			if useKey {
				if relErr := keys.Release(context.WithoutCancel(ctx), scope, key); relErr != nil {
					log.Println("[ORDER] [WARN] idempotency release failed:", relErr)
				}
			}
			respondOrderError(c, route, err)
			return
		}

		if useKey {
			if err := keys.Complete(context.WithoutCancel(ctx), scope, key, order.ID.Hex()); err != nil {
				log.Println("[ORDER] [WARN] idempotency complete failed:", err)
			}
		}

		c.JSON(http.StatusCreated, order)
	}
}

func replayOrder(ctx context.Context, c *gin.Context, svc *orders.Service, route, rawID string) {
	orderID, err := primitive.ObjectIDFromHex(rawID)
	if err != nil {
		respondWithError(c, http.StatusInternalServerError, route, "Server Error")
		return
	}
	order, err := svc.Get(ctx, orderID)
	if err != nil {
		respondOrderError(c, route, err)
		return
	}
	log.Println("[ORDER] [INFO] idempotent replay of order:", rawID)
	c.JSON(http.StatusOK, order)
}

/* =========================
   GET /api/orders/myorders
========================= */

func GetMyOrders(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders/myorders"
		defer handlePanic(c, route)

		identity, ok := middleware.CurrentIdentity(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "Not authorized, no token")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		list, err := svc.ListForUser(ctx, identity.UserID)
		if err != nil {
			respondOrderError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

/* =========================
   GET /api/orders/:id
========================= */

// GetOrderByID returns an order to its owner or to an admin.
func GetOrderByID(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders/:id"
		defer handlePanic(c, route)

		identity, ok := middleware.CurrentIdentity(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "Not authorized, no token")
			return
		}

		orderID, ok := objectIDParam(c, "id")
		if !ok {
			respondWithError(c, http.StatusNotFound, route, "Order not found")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		order, err := svc.Get(ctx, orderID)
		if err != nil {
			respondOrderError(c, route, err)
			return
		}

		if order.UserID != identity.UserID && !identity.IsAdmin() {
			respondWithError(c, http.StatusForbidden, route, "Not authorized to view this order")
			return
		}

		c.JSON(http.StatusOK, order)
	}
}

/* =========================
   GET /api/orders (admin)
========================= */

func GetOrders(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/orders"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		list, err := svc.ListAll(ctx)
		if err != nil {
			respondOrderError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

/* =========================
   PUT /api/orders/:id/status (admin)
========================= */

func UpdateOrderStatus(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/orders/:id/status"
		defer handlePanic(c, route)

		orderID, ok := objectIDParam(c, "id")
		if !ok {
			respondWithError(c, http.StatusNotFound, route, "Order not found")
			return
		}

		var req updateOrderStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "Invalid request body")
			return
		}

		// stock writes may run inside a transaction
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*requestTimeout)
		defer cancel()

		order, err := svc.UpdateStatus(ctx, orderID, models.OrderStatus(strings.TrimSpace(req.Status)), strings.TrimSpace(req.AdminNotes))
		if err != nil {
			respondOrderError(c, route, err)
			return
		}

		c.JSON(http.StatusOK, order)
	}
}

/* =========================
   PUT /api/orders/:id/pay (admin)
========================= */

func MarkOrderPaid(svc *orders.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/orders/:id/pay"
		defer handlePanic(c, route)

		orderID, ok := objectIDParam(c, "id")
		if !ok {
			respondWithError(c, http.StatusNotFound, route, "Order not found")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		order, err := svc.MarkPaid(ctx, orderID)
		if err != nil {
			respondOrderError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

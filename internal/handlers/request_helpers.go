package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"storefront/internal/idempotency"
	"storefront/internal/orders"
)

const requestTimeout = 5 * time.Second

func handlePanic(c *gin.Context, route string) {
	if r := recover(); r != nil {
		log.Printf("[%s] panic recovered: %v", route, r)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"message": "Server Error"})
	}
}

func ensureDBConnection(ctx context.Context, db *mongo.Database) error {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return db.Client().Ping(checkCtx, readpref.Primary())
}

func respondWithError(c *gin.Context, status int, route string, message string) {
	log.Printf("[%s] returning error %d: %s", route, status, message)
	c.AbortWithStatusJSON(status, gin.H{"message": message})
}

// respondOrderError maps order workflow errors onto HTTP statuses.
func respondOrderError(c *gin.Context, route string, err error) {
	var stockErr orders.InsufficientStockError
	var validationErr orders.ValidationError

	switch {
	case errors.As(err, &stockErr):
		log.Printf("[%s] returning error 409: %v", route, err)
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{
			"message":   "Insufficient stock",
			"productId": stockErr.ProductID.Hex(),
			"available": stockErr.Available,
			"requested": stockErr.Requested,
		})
	case errors.As(err, &validationErr):
		respondWithError(c, http.StatusBadRequest, route, validationErr.Message)
	case errors.Is(err, orders.ErrValidation):
		respondWithError(c, http.StatusBadRequest, route, err.Error())
	case errors.Is(err, orders.ErrOrderNotFound):
		respondWithError(c, http.StatusNotFound, route, "Order not found")
	case errors.Is(err, idempotency.ErrInFlight):
		respondWithError(c, http.StatusConflict, route, "A request with this Idempotency-Key is already in progress")
	default:
		log.Printf("[%s] unexpected error: %v", route, err)
		respondWithError(c, http.StatusInternalServerError, route, "Server Error")
	}
}

func objectIDParam(c *gin.Context, name string) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(c.Param(name)))
	if err != nil {
		return primitive.NilObjectID, false
	}
	return id, true
}

func parseObjectIDs(values []string) ([]primitive.ObjectID, error) {
	ids := make([]primitive.ObjectID, 0, len(values))
	for _, raw := range values {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := primitive.ObjectIDFromHex(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

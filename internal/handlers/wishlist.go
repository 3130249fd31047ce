package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/middleware"
	"storefront/internal/models"
)

type wishlistRequest struct {
	ProductID string `json:"productId" binding:"required"`
}

var errUserNotFound = errors.New("user not found")

// wishlistProducts loads the live products behind ids, keeping wishlist order.
func wishlistProducts(ctx context.Context, db *mongo.Database, ids []primitive.ObjectID) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	match := liveProductFilter()
	match["_id"] = bson.M{"$in": ids}

	cursor, err := db.Collection("products").Aggregate(ctx, productPipeline(match, nil, 0, 0))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	products, err := decodeProducts(ctx, cursor)
	if err != nil {
		return nil, err
	}

	productByID := make(map[primitive.ObjectID]models.Product, len(products))
	for _, product := range products {
		productByID[product.ID] = product
	}

	ordered := make([]models.Product, 0, len(products))
	for _, id := range ids {
		if product, exists := productByID[id]; exists {
			ordered = append(ordered, product)
		}
	}
	return ordered, nil
}

func loadWishlist(ctx context.Context, db *mongo.Database, userID primitive.ObjectID) ([]models.Product, error) {
	var user models.User
	err := db.Collection("users").FindOne(ctx, bson.M{"_id": userID}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return wishlistProducts(ctx, db, user.Wishlist)
}

func respondWithWishlist(ctx context.Context, c *gin.Context, db *mongo.Database, route string, userID primitive.ObjectID) {
	products, err := loadWishlist(ctx, db, userID)
	if errors.Is(err, errUserNotFound) {
		respondWithError(c, http.StatusNotFound, route, "User not found")
		return
	}
	if err != nil {
		log.Printf("[%s] load wishlist failed: %v", route, err)
		respondWithError(c, http.StatusInternalServerError, route, "Server Error")
		return
	}
	c.JSON(http.StatusOK, products)
}

/* =========================
   GET /api/wishlist
========================= */

func GetWishlist(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/wishlist"
		defer handlePanic(c, route)

		identity, ok := middleware.CurrentIdentity(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "Not authorized, no token")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		respondWithWishlist(ctx, c, db, route, identity.UserID)
	}
}

/* =========================
   POST /api/wishlist
========================= */

func AddToWishlist(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/wishlist"
		defer handlePanic(c, route)

		identity, ok := middleware.CurrentIdentity(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "Not authorized, no token")
			return
		}

		var req wishlistRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		productID, err := primitive.ObjectIDFromHex(strings.TrimSpace(req.ProductID))
		if err != nil {
			respondWithError(c, http.StatusNotFound, route, "Product not found")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		filter := liveProductFilter()
		filter["_id"] = productID
		if err := db.Collection("products").FindOne(ctx, filter).Err(); err != nil {
			if errors.Is(err, mongo.ErrNoDocuments) {
				respondWithError(c, http.StatusNotFound, route, "Product not found")
				return
			}
			log.Printf("[%s] product lookup failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		res, err := db.Collection("users").UpdateOne(ctx, bson.M{
			"_id":      identity.UserID,
			"wishlist": bson.M{"$ne": productID},
		}, bson.M{
			"$push": bson.M{"wishlist": productID},
			"$set":  bson.M{"updatedAt": time.Now()},
		})
		if err != nil {
			log.Printf("[%s] add failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}
		if res.MatchedCount == 0 {
			exists, err := db.Collection("users").CountDocuments(ctx, bson.M{"_id": identity.UserID})
			if err != nil {
				respondWithError(c, http.StatusInternalServerError, route, "Server Error")
				return
			}
			if exists == 0 {
				respondWithError(c, http.StatusNotFound, route, "User not found")
				return
			}
			respondWithError(c, http.StatusBadRequest, route, "Product already in wishlist")
			return
		}

		respondWithWishlist(ctx, c, db, route, identity.UserID)
	}
}

/* =========================
   DELETE /api/wishlist/:id
========================= */

func RemoveFromWishlist(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/wishlist/:id"
		defer handlePanic(c, route)

		identity, ok := middleware.CurrentIdentity(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "Not authorized, no token")
			return
		}

		productID, ok := objectIDParam(c, "id")
		if !ok {
			respondWithError(c, http.StatusNotFound, route, "Product not found")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		res, err := db.Collection("users").UpdateByID(ctx, identity.UserID, bson.M{
			"$pull": bson.M{"wishlist": productID},
			"$set":  bson.M{"updatedAt": time.Now()},
		})
		if err != nil {
			log.Printf("[%s] remove failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}
		if res.MatchedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, "User not found")
			return
		}

		respondWithWishlist(ctx, c, db, route, identity.UserID)
	}
}

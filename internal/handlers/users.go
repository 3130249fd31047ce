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
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/middleware"
	"storefront/internal/models"
)

type updateProfileRequest struct {
	Name     string          `json:"name"`
	Email    string          `json:"email"`
	Phone    string          `json:"phone"`
	Address  *models.Address `json:"address"`
	Password string          `json:"password"`
}

type profileResponse struct {
	ID       string           `json:"_id"`
	Name     string           `json:"name"`
	Email    string           `json:"email"`
	Role     string           `json:"role"`
	Phone    string           `json:"phone,omitempty"`
	Address  models.Address   `json:"address"`
	Wishlist []models.Product `json:"wishlist,omitempty"`
}

func newProfileResponse(user models.User) profileResponse {
	return profileResponse{
		ID:      user.ID.Hex(),
		Name:    user.Name,
		Email:   user.Email,
		Role:    user.Role,
		Phone:   user.Phone,
		Address: user.Address,
	}
}

func firstNonEmpty(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

/* =========================
   GET /api/users/profile
========================= */

func GetUserProfile(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/users/profile"
		defer handlePanic(c, route)

		identity, ok := middleware.CurrentIdentity(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "Not authorized, no token")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var user models.User
		err := db.Collection("users").FindOne(ctx, bson.M{"_id": identity.UserID}).Decode(&user)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "User not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		wishlist, err := wishlistProducts(ctx, db, user.Wishlist)
		if err != nil {
			log.Printf("[%s] wishlist load failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		resp := newProfileResponse(user)
		resp.Wishlist = wishlist
		c.JSON(http.StatusOK, resp)
	}
}

/* =========================
   PUT /api/users/profile
========================= */

// UpdateUserProfile keeps stored values for blank fields.
func UpdateUserProfile(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/users/profile"
		defer handlePanic(c, route)

		identity, ok := middleware.CurrentIdentity(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "Not authorized, no token")
			return
		}

		var req updateProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "Invalid request body")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var user models.User
		err := db.Collection("users").FindOne(ctx, bson.M{"_id": identity.UserID}).Decode(&user)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "User not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		user.Name = firstNonEmpty(req.Name, user.Name)
		user.Email = firstNonEmpty(normalizeEmail(req.Email), user.Email)
		user.Phone = firstNonEmpty(req.Phone, user.Phone)
		if req.Address != nil {
			user.Address = models.Address{
				Street:  firstNonEmpty(req.Address.Street, user.Address.Street),
				City:    firstNonEmpty(req.Address.City, user.Address.City),
				State:   firstNonEmpty(req.Address.State, user.Address.State),
				Zip:     firstNonEmpty(req.Address.Zip, user.Address.Zip),
				Country: firstNonEmpty(req.Address.Country, user.Address.Country),
			}
		}

		set := bson.M{
			"name":      user.Name,
			"email":     user.Email,
			"phone":     user.Phone,
			"address":   user.Address,
			"updatedAt": time.Now(),
		}
		if req.Password != "" {
			if len(req.Password) < 6 {
				respondWithError(c, http.StatusBadRequest, route, "password must be at least 6 characters")
				return
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
			if err != nil {
				respondWithError(c, http.StatusInternalServerError, route, "Server Error")
				return
			}
			set["password"] = string(hash)
		}

		if _, err := db.Collection("users").UpdateByID(ctx, user.ID, bson.M{"$set": set}); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				respondWithError(c, http.StatusBadRequest, route, "Email already in use")
				return
			}
			log.Printf("[%s] update failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		c.JSON(http.StatusOK, newProfileResponse(user))
	}
}

/* =========================
   GET /api/users (admin)
========================= */

func GetUsers(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/users"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		cursor, err := db.Collection("users").Find(ctx, bson.M{},
			options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}
		defer cursor.Close(ctx)

		users := make([]models.User, 0)
		if err := cursor.All(ctx, &users); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		c.JSON(http.StatusOK, users)
	}
}

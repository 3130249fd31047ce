package handlers

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/models"
)

// TokenConfig holds the signing secret and lifetimes of issued tokens.
type TokenConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Phone    string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type authResponse struct {
	ID           string `json:"_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	Phone        string `json:"phone,omitempty"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

func newAuthResponse(user models.User, tokens *issuedTokens) authResponse {
	return authResponse{
		ID:           user.ID.Hex(),
		Name:         user.Name,
		Email:        user.Email,
		Role:         user.Role,
		Phone:        user.Phone,
		Token:        tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
	}
}

func respondValidationError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			field := lowerCamel(fieldError.Field())
			switch fieldError.Tag() {
			case "required":
				details = append(details, fmt.Sprintf("%s is required", field))
			case "email":
				details = append(details, fmt.Sprintf("%s must be a valid email", field))
			case "min":
				details = append(details, fmt.Sprintf("%s must be at least %s characters", field, fieldError.Param()))
			default:
				details = append(details, fmt.Sprintf("%s is invalid", field))
			}
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"message": strings.Join(details, ", "),
			"details": details,
		})
		return
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
}

func lowerCamel(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

/* =========================
   POST /api/auth/register
========================= */

func Register(db *mongo.Database, cfg TokenConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/register"
		defer handlePanic(c, route)

		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		email := normalizeEmail(req.Email)
		count, err := db.Collection("users").CountDocuments(ctx, bson.M{"email": email})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}
		if count > 0 {
			respondWithError(c, http.StatusBadRequest, route, "User already exists")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		now := time.Now()
		user := models.User{
			ID:           primitive.NewObjectID(),
			Name:         strings.TrimSpace(req.Name),
			Email:        email,
			PasswordHash: string(hash),
			Role:         models.RoleUser,
			Phone:        strings.TrimSpace(req.Phone),
			Wishlist:     []primitive.ObjectID{},
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if _, err := db.Collection("users").InsertOne(ctx, user); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				respondWithError(c, http.StatusBadRequest, route, "User already exists")
				return
			}
			log.Printf("[%s] insert failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		tokens, err := issueTokens(ctx, db, user, cfg)
		if err != nil {
			log.Printf("[%s] token issue failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		log.Println("[AUTH] [INFO] user registered:", user.ID.Hex())
		c.JSON(http.StatusCreated, newAuthResponse(user, tokens))
	}
}

/* =========================
   POST /api/auth/login
========================= */

func Login(db *mongo.Database, cfg TokenConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/login"
		defer handlePanic(c, route)

		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var user models.User
		err := db.Collection("users").FindOne(ctx, bson.M{"email": normalizeEmail(req.Email)}).Decode(&user)
		if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
			log.Printf("[%s] lookup failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}
		if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			respondWithError(c, http.StatusUnauthorized, route, "Invalid email or password")
			return
		}

		tokens, err := issueTokens(ctx, db, user, cfg)
		if err != nil {
			log.Printf("[%s] token issue failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		c.JSON(http.StatusOK, newAuthResponse(user, tokens))
	}
}

/* =========================
   POST /api/auth/refresh
========================= */

// Refresh rotates a refresh token: the presented one is revoked and linked to
// its replacement.
func Refresh(db *mongo.Database, cfg TokenConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/refresh"
		defer handlePanic(c, route)

		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var token models.RefreshToken
		if err := db.Collection("refresh_tokens").FindOne(ctx, bson.M{
			"tokenHash": hashToken(strings.TrimSpace(req.RefreshToken)),
			"revoked":   false,
		}).Decode(&token); err != nil {
			respondWithError(c, http.StatusUnauthorized, route, "Invalid refresh token")
			return
		}

		if time.Now().After(token.ExpiresAt) {
			_, _ = db.Collection("refresh_tokens").UpdateByID(ctx, token.ID, bson.M{"$set": bson.M{"revoked": true}})
			respondWithError(c, http.StatusUnauthorized, route, "Refresh token expired")
			return
		}

		var user models.User
		if err := db.Collection("users").FindOne(ctx, bson.M{"_id": token.UserID}).Decode(&user); err != nil {
			respondWithError(c, http.StatusUnauthorized, route, "User not found")
			return
		}

		tokens, err := issueTokens(ctx, db, user, cfg)
		if err != nil {
			log.Printf("[%s] token issue failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		if _, err := db.Collection("refresh_tokens").UpdateByID(ctx, token.ID, bson.M{
			"$set": bson.M{
				"revoked":         true,
				"replacedByToken": tokens.RefreshTokenID,
			},
		}); err != nil {
			log.Printf("[%s] revoke of rotated token failed: %v", route, err)
		}

		c.JSON(http.StatusOK, newAuthResponse(user, tokens))
	}
}

/* =========================
   POST /api/auth/logout
========================= */

func Logout(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/auth/logout"
		defer handlePanic(c, route)

		var req RefreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		res, err := db.Collection("refresh_tokens").UpdateOne(ctx, bson.M{
			"tokenHash": hashToken(strings.TrimSpace(req.RefreshToken)),
			"revoked":   false,
		}, bson.M{"$set": bson.M{"revoked": true}})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}
		if res.MatchedCount == 0 {
			respondWithError(c, http.StatusUnauthorized, route, "Invalid refresh token")
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

/* =========================
   TOKENS
========================= */

type issuedTokens struct {
	AccessToken    string
	RefreshToken   string
	RefreshTokenID primitive.ObjectID
	ExpiresIn      int64
}

// signAccessToken carries the claims the auth middleware reads back.
func signAccessToken(user models.User, cfg TokenConfig, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"userId": user.ID.Hex(),
		"role":   user.Role,
		"email":  user.Email,
		"name":   user.Name,
		"iat":    now.Unix(),
		"exp":    now.Add(cfg.AccessTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
}

func issueTokens(ctx context.Context, db *mongo.Database, user models.User, cfg TokenConfig) (*issuedTokens, error) {
	now := time.Now()

	accessToken, err := signAccessToken(user, cfg, now)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	plainRefresh, err := generateRefreshString()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	refresh := models.RefreshToken{
		ID:        primitive.NewObjectID(),
		UserID:    user.ID,
		TokenHash: hashToken(plainRefresh),
		ExpiresAt: now.Add(cfg.RefreshTTL),
		CreatedAt: now,
	}
	if _, err := db.Collection("refresh_tokens").InsertOne(ctx, refresh); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &issuedTokens{
		AccessToken:    accessToken,
		RefreshToken:   plainRefresh,
		RefreshTokenID: refresh.ID,
		ExpiresIn:      int64(cfg.AccessTTL.Seconds()),
	}, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func generateRefreshString() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

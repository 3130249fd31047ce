package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/database"
	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/notify"
)

func startMongo(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping MongoDB integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := mongodb.Run(ctx, "mongo:7")
	testcontainers.CleanupContainer(t, ctr)
	require.NoError(t, err)

	uri, err := ctr.ConnectionString(ctx)
	require.NoError(t, err)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("storefront_handlers_test")
	require.NoError(t, database.EnsureIndexes(db))
	return db
}

func seedUser(t *testing.T, db *mongo.Database, user models.User) {
	t.Helper()
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	if user.Wishlist == nil {
		user.Wishlist = []primitive.ObjectID{}
	}
	_, err := db.Collection("users").InsertOne(context.Background(), user)
	require.NoError(t, err)
}

func seedProduct(t *testing.T, db *mongo.Database, name string, images ...string) primitive.ObjectID {
	t.Helper()
	now := time.Now().UTC()
	id := primitive.NewObjectID()
	_, err := db.Collection("products").InsertOne(context.Background(), models.Product{
		ID:             id,
		Name:           name,
		Slug:           slugify(name) + "-" + id.Hex(),
		Price:          100,
		Stock:          5,
		TargetAudience: []primitive.ObjectID{},
		ProductForm:    []primitive.ObjectID{},
		Images:         images,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	require.NoError(t, err)
	return id
}

// call serves one JSON request; user may be nil for anonymous routes.
func call(t *testing.T, r *gin.Engine, method, target string, user *models.User, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, *user))
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func messageOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Message
}

func productIDs(t *testing.T, w *httptest.ResponseRecorder) []string {
	t.Helper()
	var products []struct {
		ID string `json:"_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &products))
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}

/* =========================
   WISHLIST
========================= */

func TestWishlistFlow(t *testing.T) {
	db := startMongo(t)
	gin.SetMode(gin.TestMode)

	seedUser(t, db, customer)
	first := seedProduct(t, db, "Zinc Tablets")
	second := seedProduct(t, db, "Ashwagandha")

	r := gin.New()
	wl := r.Group("/api/wishlist", middleware.UserAuth(testSecret))
	wl.GET("", GetWishlist(db))
	wl.POST("", AddToWishlist(db))
	wl.DELETE("/:id", RemoveFromWishlist(db))

	w := call(t, r, http.MethodPost, "/api/wishlist", &customer, gin.H{"productId": second.Hex()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = call(t, r, http.MethodPost, "/api/wishlist", &customer, gin.H{"productId": first.Hex()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = call(t, r, http.MethodPost, "/api/wishlist", &customer, gin.H{"productId": second.Hex()})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Product already in wishlist", messageOf(t, w))

	w = call(t, r, http.MethodPost, "/api/wishlist", &customer, gin.H{"productId": primitive.NewObjectID().Hex()})
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "Product not found", messageOf(t, w))

	w = call(t, r, http.MethodGet, "/api/wishlist", &customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{second.Hex(), first.Hex()}, productIDs(t, w), "wishlist keeps insertion order")

	w = call(t, r, http.MethodDelete, "/api/wishlist/"+second.Hex(), &customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []string{first.Hex()}, productIDs(t, w))

	_, err := db.Collection("products").UpdateByID(context.Background(), first, bson.M{"$set": bson.M{"isDeleted": true}})
	require.NoError(t, err)
	w = call(t, r, http.MethodGet, "/api/wishlist", &customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, productIDs(t, w), "soft-deleted products drop out of the wishlist")
}

/* =========================
   CATEGORIES
========================= */

func TestCategoriesCreateAndFilter(t *testing.T) {
	db := startMongo(t)
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/api/categories", GetCategories(db))
	r.POST("/api/categories", middleware.AdminAuth(testSecret), CreateCategory(db))

	create := func(body gin.H) models.Category {
		t.Helper()
		w := call(t, r, http.MethodPost, "/api/categories", &admin, body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var cat models.Category
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cat))
		return cat
	}

	kids := create(gin.H{"name": "Kids", "type": "audience"})
	require.Equal(t, "kids", kids.Slug)
	create(gin.H{"name": "Gummies", "type": "form"})
	create(gin.H{"name": "Toddlers", "type": "audience", "parent": kids.ID.Hex()})

	w := call(t, r, http.MethodPost, "/api/categories", &admin, gin.H{"name": "Kids"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Category already exists", messageOf(t, w))

	w = call(t, r, http.MethodPost, "/api/categories", &customer, gin.H{"name": "Sneaky"})
	require.Equal(t, http.StatusForbidden, w.Code)

	names := func(query string) []string {
		t.Helper()
		w := call(t, r, http.MethodGet, "/api/categories"+query, nil, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var cats []models.Category
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cats))
		out := make([]string, 0, len(cats))
		for _, c := range cats {
			out = append(out, c.Name)
		}
		return out
	}

	require.Equal(t, []string{"Gummies", "Kids", "Toddlers"}, names(""))
	require.Equal(t, []string{"Kids", "Toddlers"}, names("?type=audience"))
	require.Equal(t, []string{"Toddlers"}, names("?parent="+kids.ID.Hex()))
	require.Equal(t, []string{"Gummies", "Kids"}, names("?parent=null"))

	w = call(t, r, http.MethodGet, "/api/categories?parent=bogus", nil, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

/* =========================
   REELS
========================= */

func TestReelsThumbnailFallbackAndLikes(t *testing.T) {
	db := startMongo(t)
	gin.SetMode(gin.TestMode)

	original := seedProduct(t, db, "Fish Oil", "/uploads/images/fish.jpg", "/uploads/images/fish-2.jpg")
	replacement := seedProduct(t, db, "Biotin", "/uploads/images/biotin.jpg")

	r := gin.New()
	r.GET("/api/reels", GetReels(db))
	r.POST("/api/reels", middleware.AdminAuth(testSecret), CreateReel(db))
	r.PUT("/api/reels/:id", middleware.AdminAuth(testSecret), UpdateReel(db))
	r.POST("/api/reels/:id/like", middleware.UserAuth(testSecret), LikeReel(db))

	w := call(t, r, http.MethodPost, "/api/reels", &admin, gin.H{
		"title": "Morning routine", "videoUrl": "/uploads/videos/a.mp4", "productId": primitive.NewObjectID().Hex(),
	})
	require.Equal(t, http.StatusNotFound, w.Code)

	w = call(t, r, http.MethodPost, "/api/reels", &admin, gin.H{
		"title": "Morning routine", "videoUrl": "/uploads/videos/a.mp4", "productId": original.Hex(),
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var reel struct {
		ID           string `json:"_id"`
		ThumbnailURL string `json:"thumbnailUrl"`
		Likes        int    `json:"likes"`
		Product      struct {
			ID string `json:"_id"`
		} `json:"product"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reel))
	require.Equal(t, "/uploads/images/fish.jpg", reel.ThumbnailURL)
	require.Equal(t, original.Hex(), reel.Product.ID)

	w = call(t, r, http.MethodPut, "/api/reels/"+reel.ID, &admin, gin.H{"productId": replacement.Hex()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reel))
	require.Equal(t, "/uploads/images/biotin.jpg", reel.ThumbnailURL)
	require.Equal(t, replacement.Hex(), reel.Product.ID)

	w = call(t, r, http.MethodPut, "/api/reels/"+reel.ID, &admin, gin.H{"thumbnailUrl": "/uploads/images/custom.jpg"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reel))
	require.Equal(t, "/uploads/images/custom.jpg", reel.ThumbnailURL)

	token := tokenFor(t, customer)
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/reels/"+reel.ID+"/like", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			r.ServeHTTP(httptest.NewRecorder(), req)
		}()
	}
	wg.Wait()

	w = call(t, r, http.MethodPost, "/api/reels/"+reel.ID+"/like", &customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reel))
	require.Equal(t, 6, reel.Likes, "concurrent likes are not lost")

	w = call(t, r, http.MethodPost, "/api/reels/"+primitive.NewObjectID().Hex()+"/like", &customer, nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

/* =========================
   PASSWORD RESET
========================= */

type mailbox struct {
	mu   sync.Mutex
	err  error
	sent []notify.Message
}

func (m *mailbox) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

var otpPattern = regexp.MustCompile(`\b\d{6}\b`)

func (m *mailbox) lastOTP(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	otp := otpPattern.FindString(m.sent[len(m.sent)-1].Text)
	require.NotEmpty(t, otp)
	return otp
}

func newPasswordRouter(db *mongo.Database, box *mailbox) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/forgot", ForgotPassword(db, box, notify.Templates{Brand: "Purevit"}))
	r.POST("/verify", VerifyOTP(db))
	r.POST("/reset", ResetPassword(db))
	return r
}

func storedUser(t *testing.T, db *mongo.Database, id primitive.ObjectID) models.User {
	t.Helper()
	var user models.User
	require.NoError(t, db.Collection("users").FindOne(context.Background(), bson.M{"_id": id}).Decode(&user))
	return user
}

func TestPasswordResetFlow(t *testing.T) {
	db := startMongo(t)
	box := &mailbox{}
	r := newPasswordRouter(db, box)
	seedUser(t, db, customer)

	_, err := db.Collection("refresh_tokens").InsertOne(context.Background(), models.RefreshToken{
		ID: primitive.NewObjectID(), UserID: customer.ID, TokenHash: hashToken("old-refresh"),
		ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	t.Run("send failure withdraws the code", func(t *testing.T) {
		box.err = errors.New("smtp down")
		defer func() { box.err = nil }()

		w := call(t, r, http.MethodPost, "/forgot", nil, gin.H{"email": customer.Email})
		require.Equal(t, http.StatusInternalServerError, w.Code)
		require.Equal(t, "Email could not be sent", messageOf(t, w))

		user := storedUser(t, db, customer.ID)
		require.Empty(t, user.ResetOTPHash)
		require.Nil(t, user.ResetOTPExpiresAt)
	})

	t.Run("unknown email", func(t *testing.T) {
		w := call(t, r, http.MethodPost, "/forgot", nil, gin.H{"email": "nobody@example.com"})
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("reset revokes refresh tokens", func(t *testing.T) {
		w := call(t, r, http.MethodPost, "/forgot", nil, gin.H{"email": " Ann@Example.com "})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		otp := box.lastOTP(t)

		user := storedUser(t, db, customer.ID)
		require.Equal(t, hashToken(otp), user.ResetOTPHash, "only the hash is stored")

		w = call(t, r, http.MethodPost, "/verify", nil, gin.H{"email": customer.Email, "otp": otp})
		require.Equal(t, http.StatusOK, w.Code)

		w = call(t, r, http.MethodPost, "/reset", nil, gin.H{"email": customer.Email, "otp": otp, "password": "new-secret"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		user = storedUser(t, db, customer.ID)
		require.Empty(t, user.ResetOTPHash)
		require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("new-secret")))

		active, err := db.Collection("refresh_tokens").CountDocuments(context.Background(), bson.M{"user": customer.ID, "revoked": false})
		require.NoError(t, err)
		require.Zero(t, active)

		w = call(t, r, http.MethodPost, "/reset", nil, gin.H{"email": customer.Email, "otp": otp, "password": "again-secret"})
		require.Equal(t, http.StatusBadRequest, w.Code, "a code works once")
	})

	t.Run("too many wrong codes withdraw the code", func(t *testing.T) {
		w := call(t, r, http.MethodPost, "/forgot", nil, gin.H{"email": customer.Email})
		require.Equal(t, http.StatusOK, w.Code)
		otp := box.lastOTP(t)

		wrong := "000000"
		if otp == wrong {
			wrong = "111111"
		}
		for i := 0; i < maxOTPAttempts; i++ {
			w = call(t, r, http.MethodPost, "/verify", nil, gin.H{"email": customer.Email, "otp": wrong})
			require.Equal(t, http.StatusBadRequest, w.Code)
		}

		w = call(t, r, http.MethodPost, "/verify", nil, gin.H{"email": customer.Email, "otp": otp})
		require.Equal(t, http.StatusBadRequest, w.Code, "the right code no longer works")
		require.Empty(t, storedUser(t, db, customer.ID).ResetOTPHash)

		w = call(t, r, http.MethodPost, "/forgot", nil, gin.H{"email": customer.Email})
		require.Equal(t, http.StatusOK, w.Code)
		fresh := box.lastOTP(t)
		w = call(t, r, http.MethodPost, "/verify", nil, gin.H{"email": customer.Email, "otp": fresh})
		require.Equal(t, http.StatusOK, w.Code, "a new code resets the counter")
	})
}

/* =========================
   PROFILE
========================= */

func TestProfileUpdate(t *testing.T) {
	db := startMongo(t)
	gin.SetMode(gin.TestMode)
	seedUser(t, db, customer)
	seedUser(t, db, stranger)

	r := gin.New()
	r.GET("/api/users/profile", middleware.UserAuth(testSecret), GetUserProfile(db))
	r.PUT("/api/users/profile", middleware.UserAuth(testSecret), UpdateUserProfile(db))

	w := call(t, r, http.MethodPut, "/api/users/profile", &customer, gin.H{
		"email":   "Ann.New@Example.com",
		"address": gin.H{"city": "Pune"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = call(t, r, http.MethodGet, "/api/users/profile", &customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var profile profileResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	require.Equal(t, "ann.new@example.com", profile.Email)
	require.Equal(t, customer.Name, profile.Name, "blank fields keep stored values")
	require.Equal(t, "Pune", profile.Address.City)

	w = call(t, r, http.MethodPut, "/api/users/profile", &customer, gin.H{"email": stranger.Email})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "Email already in use", messageOf(t, w))

	w = call(t, r, http.MethodPut, "/api/users/profile", &customer, gin.H{"password": "123"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

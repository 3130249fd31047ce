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
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
)

var errReelNotFound = errors.New("reel not found")

type reelRequest struct {
	Title        string `json:"title"`
	VideoURL     string `json:"videoUrl"`
	ThumbnailURL string `json:"thumbnailUrl"`
	ProductID    string `json:"productId"`
}

func reelPipeline(match bson.M) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "products"},
			{Key: "localField", Value: "product"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "productDoc"},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$productDoc"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
	}
}

func findReels(ctx context.Context, db *mongo.Database, match bson.M) ([]models.Reel, error) {
	cursor, err := db.Collection("reels").Aggregate(ctx, reelPipeline(match))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	reels := make([]models.Reel, 0)
	if err := cursor.All(ctx, &reels); err != nil {
		return nil, err
	}
	for i := range reels {
		if p := reels[i].Product; p != nil {
			p.IsOnSale = isProductOnSale(p.Price, p.DiscountPrice)
			p.InStock = p.Stock > 0
		}
	}
	return reels, nil
}

func findReel(ctx context.Context, db *mongo.Database, id primitive.ObjectID) (models.Reel, error) {
	reels, err := findReels(ctx, db, bson.M{"_id": id})
	if err != nil {
		return models.Reel{}, err
	}
	if len(reels) == 0 {
		return models.Reel{}, errReelNotFound
	}
	return reels[0], nil
}

// reelProduct loads the product a reel points at.
func reelProduct(ctx context.Context, db *mongo.Database, raw string) (models.Product, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(raw))
	if err != nil {
		return models.Product{}, errProductNotFound
	}
	filter := liveProductFilter()
	filter["_id"] = id

	var product models.Product
	err = db.Collection("products").FindOne(ctx, filter).Decode(&product)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Product{}, errProductNotFound
	}
	return product, err
}

func respondWithReel(ctx context.Context, c *gin.Context, db *mongo.Database, route string, id primitive.ObjectID, status int) {
	reel, err := findReel(ctx, db, id)
	if err != nil {
		log.Printf("[%s] reload failed: %v", route, err)
		respondWithError(c, http.StatusInternalServerError, route, "Server Error")
		return
	}
	c.JSON(status, reel)
}

/* =========================
   GET /api/reels
========================= */

func GetReels(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/reels"
		defer handlePanic(c, route)

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		reels, err := findReels(ctx, db, bson.M{})
		if err != nil {
			log.Printf("[%s] list failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}
		c.JSON(http.StatusOK, reels)
	}
}

/* =========================
   POST /api/reels (admin)
========================= */

func CreateReel(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/reels"
		defer handlePanic(c, route)

		var req reelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "Invalid request body")
			return
		}
		if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.VideoURL) == "" {
			respondWithError(c, http.StatusBadRequest, route, "title and videoUrl are required")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		product, err := reelProduct(ctx, db, req.ProductID)
		if errors.Is(err, errProductNotFound) {
			respondWithError(c, http.StatusNotFound, route, "Product not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		now := time.Now()
		reel := models.Reel{
			ID:           primitive.NewObjectID(),
			Title:        strings.TrimSpace(req.Title),
			VideoURL:     strings.TrimSpace(req.VideoURL),
			ThumbnailURL: firstNonEmpty(req.ThumbnailURL, product.Images.First()),
			ProductID:    product.ID,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if _, err := db.Collection("reels").InsertOne(ctx, reel); err != nil {
			log.Printf("[%s] insert failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		respondWithReel(ctx, c, db, route, reel.ID, http.StatusCreated)
	}
}

/* =========================
   PUT /api/reels/:id (admin)
========================= */

// UpdateReel keeps stored values for blank fields. Moving a reel to another
// product without a new thumbnail takes that product's first image.
func UpdateReel(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/reels/:id"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, "id")
		if !ok {
			respondWithError(c, http.StatusNotFound, route, "Reel not found")
			return
		}

		var req reelRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "Invalid request body")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var reel models.Reel
		err := db.Collection("reels").FindOne(ctx, bson.M{"_id": id}).Decode(&reel)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "Reel not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		set := bson.M{
			"title":     firstNonEmpty(req.Title, reel.Title),
			"videoUrl":  firstNonEmpty(req.VideoURL, reel.VideoURL),
			"updatedAt": time.Now(),
		}

		if strings.TrimSpace(req.ProductID) != "" {
			product, err := reelProduct(ctx, db, req.ProductID)
			if errors.Is(err, errProductNotFound) {
				respondWithError(c, http.StatusNotFound, route, "Product not found")
				return
			}
			if err != nil {
				respondWithError(c, http.StatusInternalServerError, route, "Server Error")
				return
			}
			if product.ID != reel.ProductID {
				set["product"] = product.ID
				if strings.TrimSpace(req.ThumbnailURL) == "" {
					set["thumbnailUrl"] = product.Images.First()
				}
			}
		}
		if thumb := strings.TrimSpace(req.ThumbnailURL); thumb != "" {
			set["thumbnailUrl"] = thumb
		}

		if _, err := db.Collection("reels").UpdateByID(ctx, id, bson.M{"$set": set}); err != nil {
			log.Printf("[%s] update failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		respondWithReel(ctx, c, db, route, id, http.StatusOK)
	}
}

/* =========================
   DELETE /api/reels/:id (admin)
========================= */

// DeleteReel removes the reel and any media it kept in the upload directory.
func DeleteReel(db *mongo.Database, uploads *UploadStorage) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/reels/:id"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, "id")
		if !ok {
			respondWithError(c, http.StatusNotFound, route, "Reel not found")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var reel models.Reel
		err := db.Collection("reels").FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&reel)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "Reel not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		if uploads != nil {
			if err := uploads.Delete(reel.VideoURL); err != nil {
				log.Printf("[%s] video delete failed: %v", route, err)
			}
			if err := deleteReelThumbnail(ctx, db, uploads, reel); err != nil {
				log.Printf("[%s] thumbnail delete failed: %v", route, err)
			}
		}

		c.JSON(http.StatusOK, gin.H{"message": "Reel removed"})
	}
}

// deleteReelThumbnail leaves thumbnails that are still a product image.
func deleteReelThumbnail(ctx context.Context, db *mongo.Database, uploads *UploadStorage, reel models.Reel) error {
	if reel.ThumbnailURL == "" {
		return nil
	}
	shared, err := db.Collection("products").CountDocuments(ctx, bson.M{"images": reel.ThumbnailURL})
	if err != nil {
		return err
	}
	if shared > 0 {
		return nil
	}
	return uploads.Delete(reel.ThumbnailURL)
}

/* =========================
   POST /api/reels/:id/like
========================= */

func LikeReel(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/reels/:id/like"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, "id")
		if !ok {
			respondWithError(c, http.StatusNotFound, route, "Reel not found")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var reel models.Reel
		err := db.Collection("reels").FindOneAndUpdate(ctx,
			bson.M{"_id": id},
			bson.M{"$inc": bson.M{"likes": 1}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		).Decode(&reel)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "Reel not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		c.JSON(http.StatusOK, reel)
	}
}

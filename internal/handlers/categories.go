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

type categoryRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Image       *string `json:"image"`
	Type        *string `json:"type"`
	Parent      *string `json:"parent"`
}

func validCategoryType(t string) bool {
	switch t {
	case models.CategoryGeneral, models.CategoryAudience, models.CategoryForm:
		return true
	}
	return false
}

// parseParent maps "" and "null" to no parent.
func parseParent(raw string) (*primitive.ObjectID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return nil, nil
	}
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

/*
GET /api/categories
- ?parent=<id> children of a category
- ?type=audience|form|general
*/
func GetCategories(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/categories"
		defer handlePanic(c, route)

		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondWithError(c, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		filter := bson.M{}
		if raw := strings.TrimSpace(c.Query("parent")); raw != "" {
			parent, err := parseParent(raw)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid parent id")
				return
			}
			filter["parent"] = parent
		}
		if t := strings.TrimSpace(c.Query("type")); t != "" {
			filter["type"] = t
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		cursor, err := db.Collection("categories").Find(ctx, filter,
			options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}
		defer cursor.Close(ctx)

		categories := make([]models.Category, 0)
		if err := cursor.All(ctx, &categories); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		log.Printf("[%s] returning %d categories", route, len(categories))
		c.JSON(http.StatusOK, categories)
	}
}

/*
POST /api/categories (admin)
- names are unique
*/
func CreateCategory(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/categories"
		defer handlePanic(c, route)

		var req categoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "Invalid request body")
			return
		}

		if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
			respondWithError(c, http.StatusBadRequest, route, "name is required")
			return
		}
		name := strings.TrimSpace(*req.Name)

		category := models.Category{
			ID:   primitive.NewObjectID(),
			Name: name,
			Slug: slugify(name),
			Type: models.CategoryGeneral,
		}
		if req.Description != nil {
			category.Description = strings.TrimSpace(*req.Description)
		}
		if req.Image != nil {
			category.Image = strings.TrimSpace(*req.Image)
		}
		if req.Type != nil && strings.TrimSpace(*req.Type) != "" {
			category.Type = strings.TrimSpace(*req.Type)
		}
		if !validCategoryType(category.Type) {
			respondWithError(c, http.StatusBadRequest, route, "invalid category type")
			return
		}
		if req.Parent != nil {
			parent, err := parseParent(*req.Parent)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid parent id")
				return
			}
			category.Parent = parent
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		count, err := db.Collection("categories").CountDocuments(ctx, bson.M{"name": name})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}
		if count > 0 {
			respondWithError(c, http.StatusBadRequest, route, "Category already exists")
			return
		}

		now := time.Now()
		category.CreatedAt = now
		category.UpdatedAt = now

		if _, err := db.Collection("categories").InsertOne(ctx, category); err != nil {
			// the unique index catches concurrent creates
			if mongo.IsDuplicateKeyError(err) {
				respondWithError(c, http.StatusBadRequest, route, "Category already exists")
				return
			}
			log.Printf("[%s] insert failed: %v", route, err)
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		c.JSON(http.StatusCreated, category)
	}
}

/*
PUT /api/categories/:id (admin)
- partial update, renaming re-derives the slug
*/
func UpdateCategory(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/categories/:id"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, "id")
		if !ok {
			respondWithError(c, http.StatusNotFound, route, "Category not found")
			return
		}

		var req categoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, http.StatusBadRequest, route, "Invalid request body")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		var category models.Category
		err := db.Collection("categories").FindOne(ctx, bson.M{"_id": id}).Decode(&category)
		if errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusNotFound, route, "Category not found")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		set := bson.M{}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				respondWithError(c, http.StatusBadRequest, route, "name must not be empty")
				return
			}
			if name != category.Name {
				count, err := db.Collection("categories").CountDocuments(ctx, bson.M{"name": name, "_id": bson.M{"$ne": id}})
				if err != nil {
					respondWithError(c, http.StatusInternalServerError, route, "Server Error")
					return
				}
				if count > 0 {
					respondWithError(c, http.StatusBadRequest, route, "Category already exists")
					return
				}
				category.Name = name
				category.Slug = slugify(name)
				set["name"] = category.Name
				set["slug"] = category.Slug
			}
		}
		if req.Description != nil {
			category.Description = strings.TrimSpace(*req.Description)
			set["description"] = category.Description
		}
		if req.Image != nil {
			category.Image = strings.TrimSpace(*req.Image)
			set["image"] = category.Image
		}
		if req.Type != nil {
			t := strings.TrimSpace(*req.Type)
			if !validCategoryType(t) {
				respondWithError(c, http.StatusBadRequest, route, "invalid category type")
				return
			}
			category.Type = t
			set["type"] = t
		}
		if req.Parent != nil {
			parent, err := parseParent(*req.Parent)
			if err != nil {
				respondWithError(c, http.StatusBadRequest, route, "invalid parent id")
				return
			}
			if parent != nil && *parent == id {
				respondWithError(c, http.StatusBadRequest, route, "category cannot be its own parent")
				return
			}
			category.Parent = parent
			set["parent"] = parent
		}

		category.UpdatedAt = time.Now()
		set["updatedAt"] = category.UpdatedAt

		if _, err := db.Collection("categories").UpdateByID(ctx, id, bson.M{"$set": set}); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				respondWithError(c, http.StatusBadRequest, route, "Category already exists")
				return
			}
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}

		c.JSON(http.StatusOK, category)
	}
}

/*
DELETE /api/categories/:id (admin)
*/
func DeleteCategory(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/categories/:id"
		defer handlePanic(c, route)

		id, ok := objectIDParam(c, "id")
		if !ok {
			respondWithError(c, http.StatusNotFound, route, "Category not found")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		res, err := db.Collection("categories").DeleteOne(ctx, bson.M{"_id": id})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "Server Error")
			return
		}
		if res.DeletedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, "Category not found")
			return
		}

		log.Println("[CATEGORY] [INFO] category removed:", id.Hex())
		c.JSON(http.StatusOK, gin.H{"message": "Category removed"})
	}
}

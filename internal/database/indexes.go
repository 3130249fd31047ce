package database

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureIndexes creates every index the storefront relies on. Failures are
// logged and the first one is returned; later collections are still tried.
func EnsureIndexes(db *mongo.Database) error {
	var firstErr error
	for _, ensure := range []func(*mongo.Database) error{
		EnsureProductIndexes,
		EnsureCategoryIndexes,
		EnsureUserIndexes,
		EnsureOrderIndexes,
		EnsureRefreshTokenIndexes,
		EnsureReelIndexes,
	} {
		if err := ensure(db); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func createIndexes(db *mongo.Database, collection string, models []mongo.IndexModel) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	log.Printf("EnsureIndexes: creating %d index(es) on %s", len(models), collection)
	if _, err := db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
		log.Printf("EnsureIndexes: %s index error: %v", collection, err)
		return err
	}
	return nil
}

func EnsureProductIndexes(db *mongo.Database) error {
	return createIndexes(db, "products", []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "slug", Value: 1}},
			Options: options.Index().
				SetName("slug_unique").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"slug": bson.M{"$exists": true},
				}),
		},
		{
			Keys:    bson.D{{Key: "isDeleted", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("isDeleted_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "targetAudience", Value: 1}},
			Options: options.Index().SetName("targetAudience_index"),
		},
		{
			Keys:    bson.D{{Key: "productForm", Value: 1}},
			Options: options.Index().SetName("productForm_index"),
		},
	})
}

func EnsureCategoryIndexes(db *mongo.Database) error {
	return createIndexes(db, "categories", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetName("name_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "parent", Value: 1}, {Key: "type", Value: 1}},
			Options: options.Index().SetName("parent_type"),
		},
	})
}

func EnsureUserIndexes(db *mongo.Database) error {
	return createIndexes(db, "users", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("email_unique").SetUnique(true),
		},
	})
}

func EnsureOrderIndexes(db *mongo.Database) error {
	return createIndexes(db, "orders", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("user_createdAt"),
		},
		{
			Keys:    bson.D{{Key: "status", Value: 1}},
			Options: options.Index().SetName("status_index"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("createdAt_index"),
		},
	})
}

func EnsureRefreshTokenIndexes(db *mongo.Database) error {
	return createIndexes(db, "refresh_tokens", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tokenHash", Value: 1}},
			Options: options.Index().SetName("tokenHash_unique").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetName("expiresAt_ttl").SetExpireAfterSeconds(0),
		},
	})
}

func EnsureReelIndexes(db *mongo.Database) error {
	return createIndexes(db, "reels", []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("createdAt_index"),
		},
	})
}

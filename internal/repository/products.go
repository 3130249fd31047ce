// Package repository implements the orders ports on MongoDB.
package repository

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/orders"
)

// liveProduct matches a product that has not been soft deleted.
func liveProduct(id primitive.ObjectID) bson.M {
	return bson.M{"_id": id, "isDeleted": bson.M{"$ne": true}}
}

type ProductLedger struct {
	products *mongo.Collection
}

func NewProductLedger(db *mongo.Database) *ProductLedger {
	return &ProductLedger{products: db.Collection("products")}
}

func (l *ProductLedger) FindProduct(ctx context.Context, id primitive.ObjectID) (orders.StockRecord, error) {
	var doc struct {
		ID    primitive.ObjectID `bson:"_id"`
		Name  string             `bson:"name"`
		Stock int                `bson:"stock"`
	}

	opts := options.FindOne().SetProjection(bson.M{"name": 1, "stock": 1})
	err := l.products.FindOne(ctx, liveProduct(id), opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return orders.StockRecord{}, orders.ErrProductNotFound
	}
	if err != nil {
		return orders.StockRecord{}, err
	}
	return orders.StockRecord{ID: doc.ID, Name: doc.Name, Stock: doc.Stock}, nil
}

func (l *ProductLedger) SetStock(ctx context.Context, id primitive.ObjectID, stock int) error {
	res, err := l.products.UpdateOne(ctx, liveProduct(id), bson.M{
		"$set": bson.M{"stock": stock, "updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return orders.ErrProductNotFound
	}
	return nil
}

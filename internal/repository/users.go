package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/orders"
)

var ErrUserNotFound = errors.New("user not found")

type UserDirectory struct {
	users *mongo.Collection
}

func NewUserDirectory(db *mongo.Database) *UserDirectory {
	return &UserDirectory{users: db.Collection("users")}
}

func (d *UserDirectory) FindContact(ctx context.Context, userID primitive.ObjectID) (orders.Contact, error) {
	var doc struct {
		Name  string `bson:"name"`
		Email string `bson:"email"`
	}

	opts := options.FindOne().SetProjection(bson.M{"name": 1, "email": 1})
	err := d.users.FindOne(ctx, bson.M{"_id": userID}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return orders.Contact{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID.Hex())
	}
	if err != nil {
		return orders.Contact{}, err
	}
	return orders.Contact{Name: doc.Name, Email: doc.Email}, nil
}

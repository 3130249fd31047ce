package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"storefront/internal/models"
	"storefront/internal/orders"
)

type OrderStore struct {
	orders *mongo.Collection
}

func NewOrderStore(db *mongo.Database) *OrderStore {
	return &OrderStore{orders: db.Collection("orders")}
}

func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if order.Timeline == nil {
		order.Timeline = []models.TimelineEntry{}
	}
	_, err := s.orders.InsertOne(ctx, order)
	return err
}

func (s *OrderStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	var order models.Order
	err := s.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, orders.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	normalizeOrder(&order)
	return &order, nil
}

func (s *OrderStore) Save(ctx context.Context, order *models.Order) error {
	res, err := s.orders.ReplaceOne(ctx, bson.M{"_id": order.ID}, order)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return orders.ErrOrderNotFound
	}
	return nil
}

func (s *OrderStore) ListByUser(ctx context.Context, userID primitive.ObjectID) ([]models.Order, error) {
	return s.find(ctx, bson.M{"user": userID})
}

func (s *OrderStore) ListAll(ctx context.Context) ([]models.Order, error) {
	return s.find(ctx, bson.M{})
}

func (s *OrderStore) find(ctx context.Context, filter bson.M) ([]models.Order, error) {
	cursor, err := s.orders.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []models.Order{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	for i := range out {
		normalizeOrder(&out[i])
	}
	return out, nil
}

func normalizeOrder(order *models.Order) {
	if order.Items == nil {
		order.Items = []models.OrderItem{}
	}
	if order.Timeline == nil {
		order.Timeline = []models.TimelineEntry{}
	}
}

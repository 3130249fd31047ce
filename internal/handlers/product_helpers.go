package handlers

import (
	"context"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/models"
)

var productFlagFields = []string{"isFeatured", "isBestSeller", "isNewLaunch", "isSuperSaver"}

// normalizeProductDocument coerces loosely typed legacy fields before decoding
// and fills the derived isOnSale and inStock flags.
func normalizeProductDocument(raw bson.M) (models.Product, error) {
	raw["price"] = coerceFloat(raw["price"])
	raw["discountPrice"] = coerceFloat(raw["discountPrice"])
	raw["stock"] = int(coerceFloat(raw["stock"]))

	for _, field := range productFlagFields {
		switch typed := raw[field].(type) {
		case bool:
		case string:
			raw[field] = strings.EqualFold(strings.TrimSpace(typed), "true")
		default:
			raw[field] = false
		}
	}

	data, err := bson.Marshal(raw)
	if err != nil {
		return models.Product{}, err
	}

	var p models.Product
	if err := bson.Unmarshal(data, &p); err != nil {
		return models.Product{}, err
	}

	p.IsOnSale = isProductOnSale(p.Price, p.DiscountPrice)
	p.InStock = p.Stock > 0

	return p, nil
}

func coerceFloat(val interface{}) float64 {
	switch typed := val.(type) {
	case float64:
		return typed
	case int32:
		return float64(typed)
	case int64:
		return float64(typed)
	case int:
		return float64(typed)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func decodeProducts(ctx context.Context, cursor *mongo.Cursor) ([]models.Product, error) {
	products := make([]models.Product, 0)

	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, err
		}

		product, err := normalizeProductDocument(raw)
		if err != nil {
			return nil, err
		}

		products = append(products, product)
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

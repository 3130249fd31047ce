package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Reel is a short merchandising video pointing at one product.
type Reel struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	Title        string             `bson:"title" json:"title"`
	VideoURL     string             `bson:"videoUrl" json:"videoUrl"`
	ThumbnailURL string             `bson:"thumbnailUrl,omitempty" json:"thumbnailUrl,omitempty"`
	ProductID    primitive.ObjectID `bson:"product" json:"-"`
	Product      *Product           `bson:"productDoc,omitempty" json:"product,omitempty"`
	Views        int                `bson:"views" json:"views"`
	Likes        int                `bson:"likes" json:"likes"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

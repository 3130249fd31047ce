package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Category types. Audience and form categories drive the two catalog filters.
const (
	CategoryGeneral  = "general"
	CategoryAudience = "audience"
	CategoryForm     = "form"
)

type Category struct {
	ID          primitive.ObjectID  `bson:"_id,omitempty" json:"_id"`
	Name        string              `bson:"name" json:"name"`
	Slug        string              `bson:"slug" json:"slug"`
	Description string              `bson:"description,omitempty" json:"description,omitempty"`
	Image       string              `bson:"image,omitempty" json:"image,omitempty"`
	Type        string              `bson:"type" json:"type"`
	Parent      *primitive.ObjectID `bson:"parent" json:"parent"`
	CreatedAt   time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// CategoryRef is the projection embedded into products when categories are joined.
type CategoryRef struct {
	ID   primitive.ObjectID `bson:"_id" json:"_id"`
	Name string             `bson:"name" json:"name"`
}

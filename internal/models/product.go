package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ProductVariant struct {
	UnitCount int    `bson:"unitCount" json:"unitCount"`
	UnitName  string `bson:"unitName" json:"unitName"`
}

type DetailedBenefit struct {
	Title       string `bson:"title" json:"title"`
	Description string `bson:"description" json:"description"`
	IconType    string `bson:"iconType,omitempty" json:"iconType,omitempty"`
}

type Product struct {
	ID                primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	Name              string               `bson:"name" json:"name"`
	Slug              string               `bson:"slug" json:"slug"`
	Description       string               `bson:"description" json:"description"`
	ShortDescription  string               `bson:"shortDescription,omitempty" json:"shortDescription,omitempty"`
	Price             float64              `bson:"price" json:"price"`
	DiscountPrice     float64              `bson:"discountPrice" json:"discountPrice"`
	IsOnSale          bool                 `bson:"-" json:"isOnSale"`
	Brand             string               `bson:"brand,omitempty" json:"brand,omitempty"`
	UnitCount         int                  `bson:"unitCount" json:"unitCount"`
	UnitName          string               `bson:"unitName" json:"unitName"`
	PackageSize       string               `bson:"packageSize,omitempty" json:"packageSize,omitempty"`
	Variants          []ProductVariant     `bson:"variants,omitempty" json:"variants,omitempty"`
	Sizes             StringList           `bson:"sizes,omitempty" json:"sizes,omitempty"`
	Colors            StringList           `bson:"colors,omitempty" json:"colors,omitempty"`
	Stock             int                  `bson:"stock" json:"stock"`
	InStock           bool                 `bson:"-" json:"inStock"`
	TargetAudience    []primitive.ObjectID `bson:"targetAudience" json:"-"`
	ProductForm       []primitive.ObjectID `bson:"productForm" json:"-"`
	Audience          []CategoryRef        `bson:"audience,omitempty" json:"targetAudience"`
	Form              []CategoryRef        `bson:"form,omitempty" json:"productForm"`
	Images            StringList           `bson:"images" json:"images"`
	VideoURL          string               `bson:"videoUrl,omitempty" json:"videoUrl,omitempty"`
	PrimaryMedia      string               `bson:"primaryMedia,omitempty" json:"primaryMedia,omitempty"`
	Benefits          StringList           `bson:"benefits,omitempty" json:"benefits,omitempty"`
	DetailedBenefits  []DetailedBenefit    `bson:"detailedBenefits,omitempty" json:"detailedBenefits,omitempty"`
	Ingredients       StringList           `bson:"ingredients,omitempty" json:"ingredients,omitempty"`
	UsageInstructions string               `bson:"usageInstructions,omitempty" json:"usageInstructions,omitempty"`
	IsFeatured        bool                 `bson:"isFeatured" json:"isFeatured"`
	IsBestSeller      bool                 `bson:"isBestSeller" json:"isBestSeller"`
	IsNewLaunch       bool                 `bson:"isNewLaunch" json:"isNewLaunch"`
	IsSuperSaver      bool                 `bson:"isSuperSaver" json:"isSuperSaver"`
	Rating            float64              `bson:"rating" json:"rating"`
	NumReviews        int                  `bson:"numReviews" json:"numReviews"`
	IsDeleted         bool                 `bson:"isDeleted" json:"isDeleted,omitempty"`
	DeletedAt         *time.Time           `bson:"deletedAt,omitempty" json:"deletedAt,omitempty"`
	CreatedAt         time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time            `bson:"updatedAt" json:"updatedAt"`
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Address is the single postal address kept on a user profile.
type Address struct {
	Street  string `bson:"street,omitempty" json:"street,omitempty"`
	City    string `bson:"city,omitempty" json:"city,omitempty"`
	State   string `bson:"state,omitempty" json:"state,omitempty"`
	Zip     string `bson:"zip,omitempty" json:"zip,omitempty"`
	Country string `bson:"country,omitempty" json:"country,omitempty"`
}

// User represents the application user account.
type User struct {
	ID                primitive.ObjectID   `bson:"_id,omitempty" json:"_id"`
	Name              string               `bson:"name" json:"name"`
	Email             string               `bson:"email" json:"email"`
	PasswordHash      string               `bson:"password" json:"-"`
	Role              string               `bson:"role" json:"role"`
	Phone             string               `bson:"phone,omitempty" json:"phone,omitempty"`
	Address           Address              `bson:"address" json:"address"`
	Wishlist          []primitive.ObjectID `bson:"wishlist" json:"wishlist"`
	ResetOTPHash      string               `bson:"resetPasswordOTP,omitempty" json:"-"`
	ResetOTPExpiresAt *time.Time           `bson:"resetPasswordOTPExpires,omitempty" json:"-"`
	ResetOTPAttempts  int                  `bson:"resetPasswordOTPAttempts,omitempty" json:"-"`
	CreatedAt         time.Time            `bson:"createdAt" json:"createdAt"`
	UpdatedAt         time.Time            `bson:"updatedAt" json:"updatedAt"`
}

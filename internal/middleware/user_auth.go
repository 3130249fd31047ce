package middleware

import (
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserAuth validates user JWT tokens and injects the caller into the context.
func UserAuth(secret string) gin.HandlerFunc {
	return AuthGuard(secret)
}

// Identity is the authenticated caller as read from the token.
type Identity struct {
	UserID primitive.ObjectID
	Role   string
	Email  string
	Name   string
}

func (i Identity) IsAdmin() bool {
	return i.Role == "admin"
}

// CurrentIdentity returns the caller set by AuthGuard. ok is false on routes
// without an auth middleware.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	raw, exists := c.Get(ctxUserID)
	if !exists {
		return Identity{}, false
	}
	userID, ok := raw.(primitive.ObjectID)
	if !ok {
		return Identity{}, false
	}
	return Identity{
		UserID: userID,
		Role:   c.GetString(ctxRole),
		Email:  c.GetString(ctxEmail),
		Name:   c.GetString(ctxName),
	}, true
}

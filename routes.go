package main

import (
	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront/internal/handlers"
	"storefront/internal/middleware"
	"storefront/internal/notify"
	"storefront/internal/orders"
)

type routeDeps struct {
	db        *mongo.Database
	secret    string
	tokens    handlers.TokenConfig
	uploads   *handlers.UploadStorage
	orders    *orders.Service
	keys      handlers.IdempotencyKeys
	sink      notify.Sink
	templates notify.Templates
}

func registerRoutes(r *gin.Engine, d routeDeps) {
	db := d.db
	userAuth := middleware.UserAuth(d.secret)
	adminAuth := middleware.AdminAuth(d.secret)

	api := r.Group("/api")

	auth := api.Group("/auth")
	{
		auth.POST("/register", handlers.Register(db, d.tokens))
		auth.POST("/login", handlers.Login(db, d.tokens))
		auth.POST("/refresh", handlers.Refresh(db, d.tokens))
		auth.POST("/logout", handlers.Logout(db))
		auth.POST("/forgot-password", handlers.ForgotPassword(db, d.sink, d.templates))
		auth.POST("/verify-otp", handlers.VerifyOTP(db))
		auth.POST("/reset-password", handlers.ResetPassword(db))
	}

	products := api.Group("/products")
	{
		products.GET("", handlers.GetProducts(db))
		products.GET("/:id", handlers.GetProductByID(db))
		products.POST("", adminAuth, handlers.CreateProduct(db, d.uploads))
		products.PUT("/:id", adminAuth, handlers.UpdateProduct(db, d.uploads))
		products.DELETE("/:id", adminAuth, handlers.DeleteProduct(db))
	}

	categories := api.Group("/categories")
	{
		categories.GET("", handlers.GetCategories(db))
		categories.POST("", adminAuth, handlers.CreateCategory(db))
		categories.PUT("/:id", adminAuth, handlers.UpdateCategory(db))
		categories.DELETE("/:id", adminAuth, handlers.DeleteCategory(db))
	}

	users := api.Group("/users")
	{
		users.GET("", adminAuth, handlers.GetUsers(db))
		users.GET("/profile", userAuth, handlers.GetUserProfile(db))
		users.PUT("/profile", userAuth, handlers.UpdateUserProfile(db))
		mountWishlist(users.Group("/wishlist", userAuth), db)
	}

	mountWishlist(api.Group("/wishlist", userAuth), db)

	reels := api.Group("/reels")
	{
		reels.GET("", handlers.GetReels(db))
		reels.POST("", adminAuth, handlers.CreateReel(db))
		reels.PUT("/:id", adminAuth, handlers.UpdateReel(db))
		reels.DELETE("/:id", adminAuth, handlers.DeleteReel(db, d.uploads))
		reels.POST("/:id/like", userAuth, handlers.LikeReel(db))
	}

	upload := api.Group("/upload", adminAuth)
	{
		upload.POST("", handlers.UploadImage(d.uploads))
		upload.POST("/multiple", handlers.UploadImages(d.uploads))
		upload.POST("/video", handlers.UploadVideo(d.uploads))
	}

	ordersGroup := api.Group("/orders")
	{
		ordersGroup.POST("", userAuth, handlers.CreateOrder(d.orders, d.keys))
		ordersGroup.GET("/myorders", userAuth, handlers.GetMyOrders(d.orders))
		ordersGroup.GET("/:id", userAuth, handlers.GetOrderByID(d.orders))
		ordersGroup.GET("", adminAuth, handlers.GetOrders(d.orders))
		ordersGroup.PUT("/:id/status", adminAuth, handlers.UpdateOrderStatus(d.orders))
		ordersGroup.PUT("/:id/pay", adminAuth, handlers.MarkOrderPaid(d.orders))
	}
}

func mountWishlist(g *gin.RouterGroup, db *mongo.Database) {
	g.GET("", handlers.GetWishlist(db))
	g.POST("", handlers.AddToWishlist(db))
	g.DELETE("/:id", handlers.RemoveFromWishlist(db))
}
